package pg

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"caseshare.org/internal/audit"
)

var _ audit.Sink = (*Store)(nil)

// Append writes one audit event. The table is append-only; nothing in this
// adapter updates or deletes rows.
func (s *Store) Append(ctx context.Context, e audit.Event) error {
	extra, err := json.Marshal(e.Extra)
	if err != nil {
		return fmt.Errorf("encode audit extra: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into audit_events (id, actor_id, verb, object_type, object_id, org_context, ts, outcome, extra)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, e.ID, e.ActorID, e.Verb, e.ObjectType, e.ObjectID, e.OrgContext, e.Timestamp, string(e.Outcome), extra)
	return err
}

// Export pages through matching events ordered by id ascending. Event ids
// are ULIDs minted at the event timestamp, so id order is timestamp order.
func (s *Store) Export(ctx context.Context, f audit.Filter, afterID string, limit int) ([]audit.Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	conds := []string{"id > $1"}
	args := []any{afterID}
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !f.From.IsZero() {
		add("ts >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("ts <= $%d", f.To)
	}
	if f.Verb != "" {
		add("verb = $%d", f.Verb)
	}
	if f.ObjectType != "" {
		add("object_type = $%d", f.ObjectType)
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		select id, actor_id, verb, object_type, object_id, org_context, ts, outcome, extra
		from audit_events
		where %s
		order by id asc
		limit $%d
	`, strings.Join(conds, " and "), len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var e audit.Event
		var outcome string
		var extra []byte
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Verb, &e.ObjectType, &e.ObjectID, &e.OrgContext, &e.Timestamp, &outcome, &extra); err != nil {
			return nil, err
		}
		e.Outcome = audit.Outcome(outcome)
		if len(extra) > 0 && string(extra) != "null" {
			if err := json.Unmarshal(extra, &e.Extra); err != nil {
				return nil, fmt.Errorf("decode audit extra: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
