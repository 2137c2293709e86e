package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"caseshare.org/internal/actor"
	"caseshare.org/internal/audit"
	"caseshare.org/internal/cases"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

var caseCols = []string{
	"id", "number", "owning_org", "status", "priority", "title", "diagnosis",
	"patient_mrn", "patient_first_name", "patient_last_name", "patient_dob",
	"secret", "created_by", "created_at", "updated_at",
}

func TestGetCase(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("select .* from cases where id").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(caseCols).AddRow(
			"c1", "BRA-20260501-AB12CD", "org-a", "OPEN", "HIGH", "Crown 24", "Fracture",
			"MRN-7", "Eva", "Horvat", "1990-07-01",
			false, "u1", now, now,
		))

	c, err := s.GetCase(context.Background(), "c1")
	if err != nil {
		t.Fatalf("GetCase: %v", err)
	}
	if c.Status != cases.CaseOpen || c.Patient.MRN != "MRN-7" {
		t.Fatalf("unexpected case: %+v", c)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetCaseNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("select .* from cases where id").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(caseCols))

	if _, err := s.GetCase(context.Background(), "ghost"); !errors.Is(err, cases.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListCasesBuildsConditions(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`select .* from cases where status = \$1 and \(title ilike \$2 or number ilike \$2\) order by created_at desc`).
		WithArgs("OPEN", "%molar%").
		WillReturnRows(sqlmock.NewRows(caseCols))

	_, err := s.ListCases(context.Background(), cases.Filter{Status: cases.CaseOpen, Query: "molar"})
	if err != nil {
		t.Fatalf("ListCases: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetPolicyAbsentIsNil(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("select case_id, scope, set_by, set_at from share_policies").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"case_id", "scope", "set_by", "set_at"}))

	p, err := s.GetPolicy(context.Background(), "c1")
	if err != nil {
		t.Fatalf("GetPolicy: %v", err)
	}
	if p != nil {
		t.Fatalf("absent policy not nil: %+v", p)
	}
}

func TestSetPolicyRejectsUnknownScope(t *testing.T) {
	s, _ := newMockStore(t)
	err := s.SetPolicy(context.Background(), cases.SharePolicy{CaseID: "c1", Scope: "PUBLIC"})
	if !errors.Is(err, cases.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestApplyApprovalArchivesSiblingsInOneTransaction(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`update plan_versions set status=\$3, approved_by=\$4`).
		WithArgs("c1", 2, "APPROVED", "u1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`update plan_versions set status=\$3, updated_at=\$4`).
		WithArgs("c1", 2, "ARCHIVED", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := s.ApplyApproval(context.Background(), "c1", 2, "u1", at); err != nil {
		t.Fatalf("ApplyApproval: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestApplyApprovalMissingVersionRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`update plan_versions set status=\$3, approved_by=\$4`).
		WithArgs("c1", 9, "APPROVED", "u1", at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	if err := s.ApplyApproval(context.Background(), "c1", 9, "u1", at); !errors.Is(err, cases.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestInsertAndScanVersionContent(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectExec("insert into plan_versions").
		WithArgs("c1", 1, "u1", []byte(`{"tooth":"16"}`), "DRAFT", "tok-1",
			sqlmock.AnyArg(), sqlmock.AnyArg(), now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.InsertVersion(context.Background(), cases.PlanVersion{
		CaseID: "c1", Version: 1, Author: "u1",
		Content: cases.PlanContent{"tooth": "16"},
		Status:  cases.VersionDraft, Token: "tok-1",
		CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("InsertVersion: %v", err)
	}

	versionCols := []string{"case_id", "version", "author", "content", "status", "token",
		"approved_by", "approved_at", "created_at", "updated_at"}
	mock.ExpectQuery("select .* from plan_versions where case_id").
		WithArgs("c1", 1).
		WillReturnRows(sqlmock.NewRows(versionCols).AddRow(
			"c1", 1, "u1", []byte(`{"tooth":"16"}`), "DRAFT", "tok-1",
			nil, nil, now, now,
		))

	v, err := s.GetVersion(context.Background(), "c1", 1)
	if err != nil {
		t.Fatalf("GetVersion: %v", err)
	}
	if v.Content["tooth"] != "16" || v.ApprovedBy != "" || v.ApprovedAt != nil {
		t.Fatalf("unexpected version: %+v", v)
	}
}

func TestAuditExportPaginates(t *testing.T) {
	s, mock := newMockStore(t)
	auditCols := []string{"id", "actor_id", "verb", "object_type", "object_id", "org_context", "ts", "outcome", "extra"}
	now := time.Now()

	mock.ExpectQuery(`select id, actor_id, verb, .* where id > \$1 and verb = \$2 order by id asc`).
		WithArgs("01ABC", "case.view", 100).
		WillReturnRows(sqlmock.NewRows(auditCols).
			AddRow("01ABD", "u1", "case.view", "case", "c1", "org-a", now, "DENIED", []byte(`{"reason":"out of scope"}`)).
			AddRow("01ABE", "u2", "case.view", "case", "c2", "org-b", now, "ALLOWED", []byte(`null`)))

	out, err := s.Export(context.Background(), audit.Filter{Verb: "case.view"}, "01ABC", 100)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("exported %d events, want 2", len(out))
	}
	if out[0].Extra["reason"] != "out of scope" {
		t.Fatalf("extra lost: %+v", out[0])
	}
	if out[1].Extra != nil {
		t.Fatalf("null extra decoded as %+v", out[1].Extra)
	}
}

func TestAuthenticateUnknownUser(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("select id, email, password_hash, role, home_org, elevated from users").
		WithArgs("nobody@test").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "role", "home_org", "elevated"}))

	if _, err := s.Authenticate(context.Background(), "nobody@test", "pw"); !errors.Is(err, actor.ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
}

func TestAuthenticateBadPassword(t *testing.T) {
	s, mock := newMockStore(t)
	hash, err := actor.HashPassword("right-password")
	if err != nil {
		t.Fatal(err)
	}
	mock.ExpectQuery("select id, email, password_hash, role, home_org, elevated from users").
		WithArgs("dr@test").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "role", "home_org", "elevated"}).
			AddRow("u1", "dr@test", hash, "DENTIST", "org-a", false))

	if _, err := s.Authenticate(context.Background(), "dr@test", "wrong"); !errors.Is(err, actor.ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
}
