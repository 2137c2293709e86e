package pg

import (
	"context"
	"fmt"
	"strings"
)

// schema is the full DDL, applied idempotently. Statements are split on
// semicolons; none of them embed string literals containing one.
const schema = `
create table if not exists organizations (
	id         text primary key,
	name       text not null,
	kind       text not null,
	created_at timestamptz not null default now()
);

create table if not exists users (
	id            text primary key,
	email         text not null unique,
	password_hash text not null,
	role          text not null,
	home_org      text not null references organizations(id),
	elevated      boolean not null default false
);

create table if not exists cases (
	id          text primary key,
	number      text not null unique,
	owning_org  text not null references organizations(id),
	status      text not null,
	priority    text not null,
	title       text not null,
	diagnosis   text not null default '',
	patient_mrn text not null default '',
	patient_first_name text not null default '',
	patient_last_name  text not null default '',
	patient_dob text not null default '',
	secret      boolean not null default false,
	created_by  text not null,
	created_at  timestamptz not null,
	updated_at  timestamptz not null
);

create index if not exists cases_owning_org_created_idx on cases (owning_org, created_at desc);

create table if not exists plan_versions (
	case_id     text not null references cases(id),
	version     integer not null,
	author      text not null,
	content     jsonb not null default '{}',
	status      text not null,
	token       text not null,
	approved_by text,
	approved_at timestamptz,
	created_at  timestamptz not null,
	updated_at  timestamptz not null,
	primary key (case_id, version)
);

create table if not exists share_policies (
	case_id text primary key references cases(id),
	scope   text not null,
	set_by  text not null,
	set_at  timestamptz not null
);

create table if not exists audit_events (
	id          text primary key,
	actor_id    text not null,
	verb        text not null,
	object_type text not null,
	object_id   text not null default '',
	org_context text not null default '',
	ts          timestamptz not null,
	outcome     text not null,
	extra       jsonb not null default '{}'
);

create index if not exists audit_events_ts_idx on audit_events (ts, id);
`

// Migrate applies the schema inside one transaction.
func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return tx.Commit()
}
