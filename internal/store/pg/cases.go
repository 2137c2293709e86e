package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"caseshare.org/internal/cases"
)

var _ cases.Store = (*Store)(nil)

func (s *Store) CreateOrganization(ctx context.Context, org cases.Organization) error {
	_, err := s.db.ExecContext(ctx, `
		insert into organizations (id, name, kind, created_at)
		values ($1, $2, $3, $4)
		on conflict (id) do nothing
	`, org.ID, org.Name, string(org.Kind), org.CreatedAt)
	return err
}

func (s *Store) GetOrganization(ctx context.Context, id string) (cases.Organization, error) {
	var org cases.Organization
	var kind string
	err := s.db.QueryRowContext(ctx, `
		select id, name, kind, created_at from organizations where id = $1
	`, id).Scan(&org.ID, &org.Name, &kind, &org.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return cases.Organization{}, fmt.Errorf("%w: organization %s", cases.ErrNotFound, id)
	}
	if err != nil {
		return cases.Organization{}, err
	}
	org.Kind = cases.OrgKind(kind)
	return org, nil
}

func (s *Store) ListOrganizations(ctx context.Context) ([]cases.Organization, error) {
	rows, err := s.db.QueryContext(ctx, `select id, name, kind, created_at from organizations order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []cases.Organization
	for rows.Next() {
		var org cases.Organization
		var kind string
		if err := rows.Scan(&org.ID, &org.Name, &kind, &org.CreatedAt); err != nil {
			return nil, err
		}
		org.Kind = cases.OrgKind(kind)
		out = append(out, org)
	}
	return out, rows.Err()
}

const caseColumns = `id, number, owning_org, status, priority, title, diagnosis,
	patient_mrn, patient_first_name, patient_last_name, patient_dob,
	secret, created_by, created_at, updated_at`

func scanCase(scan func(...any) error) (cases.Case, error) {
	var c cases.Case
	var status, priority string
	err := scan(&c.ID, &c.Number, &c.OwningOrg, &status, &priority, &c.Title, &c.Diagnosis,
		&c.Patient.MRN, &c.Patient.FirstName, &c.Patient.LastName, &c.Patient.DateOfBirth,
		&c.Secret, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return cases.Case{}, err
	}
	c.Status = cases.CaseStatus(status)
	c.Priority = cases.Priority(priority)
	return c, nil
}

func (s *Store) CreateCase(ctx context.Context, c cases.Case) error {
	_, err := s.db.ExecContext(ctx, `
		insert into cases (`+caseColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, c.ID, c.Number, c.OwningOrg, string(c.Status), string(c.Priority), c.Title, c.Diagnosis,
		c.Patient.MRN, c.Patient.FirstName, c.Patient.LastName, c.Patient.DateOfBirth,
		c.Secret, c.CreatedBy, c.CreatedAt, c.UpdatedAt)
	return err
}

func (s *Store) GetCase(ctx context.Context, id string) (cases.Case, error) {
	row := s.db.QueryRowContext(ctx, `select `+caseColumns+` from cases where id = $1`, id)
	c, err := scanCase(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return cases.Case{}, fmt.Errorf("%w: case %s", cases.ErrNotFound, id)
	}
	return c, err
}

func (s *Store) UpdateCase(ctx context.Context, c cases.Case) error {
	res, err := s.db.ExecContext(ctx, `
		update cases set status=$2, priority=$3, title=$4, diagnosis=$5,
			patient_mrn=$6, patient_first_name=$7, patient_last_name=$8, patient_dob=$9,
			secret=$10, updated_at=$11
		where id=$1
	`, c.ID, string(c.Status), string(c.Priority), c.Title, c.Diagnosis,
		c.Patient.MRN, c.Patient.FirstName, c.Patient.LastName, c.Patient.DateOfBirth,
		c.Secret, c.UpdatedAt)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: case %s", cases.ErrNotFound, c.ID)
	}
	return nil
}

func (s *Store) ListCases(ctx context.Context, f cases.Filter) ([]cases.Case, error) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Priority != "" {
		add("priority = $%d", string(f.Priority))
	}
	if f.Query != "" {
		args = append(args, "%"+f.Query+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(title ilike $%d or number ilike $%d)", n, n))
	}
	if !f.CreatedFrom.IsZero() {
		add("created_at >= $%d", f.CreatedFrom)
	}
	if !f.CreatedTo.IsZero() {
		add("created_at <= $%d", f.CreatedTo)
	}
	query := `select ` + caseColumns + ` from cases`
	if len(conds) > 0 {
		query += " where " + strings.Join(conds, " and ")
	}
	query += " order by created_at desc"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []cases.Case
	for rows.Next() {
		c, err := scanCase(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetPolicy(ctx context.Context, caseID string) (*cases.SharePolicy, error) {
	var p cases.SharePolicy
	var policyScope string
	err := s.db.QueryRowContext(ctx, `
		select case_id, scope, set_by, set_at from share_policies where case_id = $1
	`, caseID).Scan(&p.CaseID, &policyScope, &p.SetBy, &p.SetAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Scope = cases.ShareScope(policyScope)
	return &p, nil
}

func (s *Store) SetPolicy(ctx context.Context, p cases.SharePolicy) error {
	if !p.Scope.Valid() {
		return fmt.Errorf("%w: unknown share scope %s", cases.ErrInvalidInput, p.Scope)
	}
	_, err := s.db.ExecContext(ctx, `
		insert into share_policies (case_id, scope, set_by, set_at)
		values ($1, $2, $3, $4)
		on conflict (case_id) do update set scope = excluded.scope, set_by = excluded.set_by, set_at = excluded.set_at
	`, p.CaseID, string(p.Scope), p.SetBy, p.SetAt)
	return err
}
