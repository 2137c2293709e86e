package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"caseshare.org/internal/cases"
	"caseshare.org/internal/plan"
)

var _ plan.VersionStore = (*Store)(nil)

const versionColumns = `case_id, version, author, content, status, token,
	approved_by, approved_at, created_at, updated_at`

func scanVersion(scan func(...any) error) (cases.PlanVersion, error) {
	var v cases.PlanVersion
	var content []byte
	var status string
	var approvedBy sql.NullString
	var approvedAt sql.NullTime
	err := scan(&v.CaseID, &v.Version, &v.Author, &content, &status, &v.Token,
		&approvedBy, &approvedAt, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return cases.PlanVersion{}, err
	}
	v.Status = cases.VersionStatus(status)
	if approvedBy.Valid {
		v.ApprovedBy = approvedBy.String
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		v.ApprovedAt = &t
	}
	if len(content) > 0 {
		if err := json.Unmarshal(content, &v.Content); err != nil {
			return cases.PlanVersion{}, fmt.Errorf("decode plan content: %w", err)
		}
	}
	return v, nil
}

func (s *Store) ListVersions(ctx context.Context, caseID string) ([]cases.PlanVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+versionColumns+` from plan_versions where case_id = $1 order by version asc
	`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []cases.PlanVersion
	for rows.Next() {
		v, err := scanVersion(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) GetVersion(ctx context.Context, caseID string, version int) (cases.PlanVersion, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+versionColumns+` from plan_versions where case_id = $1 and version = $2
	`, caseID, version)
	v, err := scanVersion(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return cases.PlanVersion{}, fmt.Errorf("%w: case %s version %d", cases.ErrNotFound, caseID, version)
	}
	return v, err
}

func (s *Store) InsertVersion(ctx context.Context, v cases.PlanVersion) error {
	content, err := json.Marshal(v.Content)
	if err != nil {
		return fmt.Errorf("encode plan content: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into plan_versions (`+versionColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, v.CaseID, v.Version, v.Author, content, string(v.Status), v.Token,
		nullString(v.ApprovedBy), nullTime(v.ApprovedAt), v.CreatedAt, v.UpdatedAt)
	return err
}

func (s *Store) ReplaceDraft(ctx context.Context, v cases.PlanVersion) error {
	content, err := json.Marshal(v.Content)
	if err != nil {
		return fmt.Errorf("encode plan content: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		update plan_versions set author=$3, content=$4, token=$5, updated_at=$6
		where case_id=$1 and version=$2
	`, v.CaseID, v.Version, v.Author, content, v.Token, v.UpdatedAt)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: case %s version %d", cases.ErrNotFound, v.CaseID, v.Version)
	}
	return nil
}

func (s *Store) ApplyApproval(ctx context.Context, caseID string, version int, approver string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update plan_versions set status=$3, approved_by=$4, approved_at=$5, updated_at=$5
		where case_id=$1 and version=$2
	`, caseID, version, string(cases.VersionApproved), approver, at)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: case %s version %d", cases.ErrNotFound, caseID, version)
	}

	if _, err := tx.ExecContext(ctx, `
		update plan_versions set status=$3, updated_at=$4
		where case_id=$1 and version <> $2 and status <> $3
	`, caseID, version, string(cases.VersionArchived), at); err != nil {
		return err
	}
	return tx.Commit()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
