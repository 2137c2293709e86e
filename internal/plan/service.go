// Package plan owns the treatment-plan version lifecycle: draft creation,
// in-place draft mutation, version comparison and the irreversible approval
// boundary. All mutations for one case run under that case's exclusive
// lock, which is what makes the version sequence gapless and the single
// DRAFT head invariant hold under concurrency.
package plan

import (
	"context"
	"fmt"
	"time"

	"caseshare.org/internal/cases"
	"caseshare.org/internal/ids"
)

// Service executes plan state transitions. Authorization happens in the
// calling layer; Service assumes the actor was already cleared.
type Service struct {
	store VersionStore
	locks *CaseLocks
	now   func() time.Time
}

// NewService builds a plan service over the given store and lock manager.
func NewService(store VersionStore, locks *CaseLocks) *Service {
	return &Service{store: store, locks: locks, now: func() time.Time { return time.Now().UTC() }}
}

// CreateDraft opens a new draft version for the case. The new version
// number is max(existing)+1, computed under the case lock so concurrent
// creators cannot race to the same number. Fails with cases.ErrConflict
// when a draft head already exists.
func (s *Service) CreateDraft(ctx context.Context, caseID, author string, content cases.PlanContent) (cases.VersionRef, error) {
	if caseID == "" || author == "" {
		return cases.VersionRef{}, fmt.Errorf("%w: case id and author are required", cases.ErrInvalidInput)
	}
	release, err := s.locks.Acquire(ctx, caseID)
	if err != nil {
		return cases.VersionRef{}, err
	}
	defer release()

	versions, err := s.store.ListVersions(ctx, caseID)
	if err != nil {
		return cases.VersionRef{}, err
	}
	next := 1
	for _, v := range versions {
		if v.Status == cases.VersionDraft {
			return cases.VersionRef{}, fmt.Errorf("%w: case %s already has draft v%d", cases.ErrConflict, caseID, v.Version)
		}
		if v.Version >= next {
			next = v.Version + 1
		}
	}

	now := s.now()
	draft := cases.PlanVersion{
		CaseID:    caseID,
		Version:   next,
		Author:    author,
		Content:   cloneContent(content),
		Status:    cases.VersionDraft,
		Token:     ids.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertVersion(ctx, draft); err != nil {
		return cases.VersionRef{}, err
	}
	return draft.Ref(), nil
}

// UpdateDraft replaces the draft head's content in place. The version
// number is unchanged; the concurrency token rotates on every write.
// Editing anything but the current draft head is cases.ErrConflict; a
// token mismatch is cases.ErrStaleWrite.
func (s *Service) UpdateDraft(ctx context.Context, caseID string, version int, expectedToken, author string, content cases.PlanContent) (cases.VersionRef, error) {
	if caseID == "" || author == "" {
		return cases.VersionRef{}, fmt.Errorf("%w: case id and author are required", cases.ErrInvalidInput)
	}
	release, err := s.locks.Acquire(ctx, caseID)
	if err != nil {
		return cases.VersionRef{}, err
	}
	defer release()

	stored, err := s.store.GetVersion(ctx, caseID, version)
	if err != nil {
		return cases.VersionRef{}, err
	}
	if stored.Status != cases.VersionDraft {
		return cases.VersionRef{}, fmt.Errorf("%w: v%d is %s, not the draft head", cases.ErrConflict, version, stored.Status)
	}
	if expectedToken != stored.Token {
		return cases.VersionRef{}, fmt.Errorf("%w: expected token does not match stored draft", cases.ErrStaleWrite)
	}

	stored.Content = cloneContent(content)
	stored.Author = author
	stored.Token = ids.New()
	stored.UpdatedAt = s.now()
	if err := s.store.ReplaceDraft(ctx, stored); err != nil {
		return cases.VersionRef{}, err
	}
	return stored.Ref(), nil
}

// Compare produces the field-level diff between two versions of the same
// case. It takes no lock and has no side effect.
func (s *Service) Compare(ctx context.Context, caseID string, from, to int) (Diff, error) {
	a, err := s.store.GetVersion(ctx, caseID, from)
	if err != nil {
		return Diff{}, err
	}
	b, err := s.store.GetVersion(ctx, caseID, to)
	if err != nil {
		return Diff{}, err
	}
	return CompareContent(a.Content, b.Content), nil
}

// Approve marks the draft head as APPROVED and archives every other
// non-archived version in the same store transaction. Approval is
// idempotent: retrying against an already-approved version with the same
// approver returns the existing approval instead of an error, so the
// calling layer can deliver at least once.
func (s *Service) Approve(ctx context.Context, caseID string, version int, approver string) (cases.VersionRef, error) {
	if caseID == "" || approver == "" {
		return cases.VersionRef{}, fmt.Errorf("%w: case id and approver are required", cases.ErrInvalidInput)
	}
	release, err := s.locks.Acquire(ctx, caseID)
	if err != nil {
		return cases.VersionRef{}, err
	}
	defer release()

	stored, err := s.store.GetVersion(ctx, caseID, version)
	if err != nil {
		return cases.VersionRef{}, err
	}
	switch stored.Status {
	case cases.VersionApproved:
		if stored.ApprovedBy == approver {
			return stored.Ref(), nil
		}
		return cases.VersionRef{}, fmt.Errorf("%w: v%d approved by %s", cases.ErrAlreadyApproved, version, stored.ApprovedBy)
	case cases.VersionArchived:
		return cases.VersionRef{}, fmt.Errorf("%w: v%d was superseded", cases.ErrAlreadyApproved, version)
	}

	if err := s.store.ApplyApproval(ctx, caseID, version, approver, s.now()); err != nil {
		return cases.VersionRef{}, err
	}
	approved, err := s.store.GetVersion(ctx, caseID, version)
	if err != nil {
		return cases.VersionRef{}, err
	}
	return approved.Ref(), nil
}

// Head returns the current draft head of the case, if one exists.
func (s *Service) Head(ctx context.Context, caseID string) (cases.PlanVersion, bool, error) {
	versions, err := s.store.ListVersions(ctx, caseID)
	if err != nil {
		return cases.PlanVersion{}, false, err
	}
	for _, v := range versions {
		if v.Status == cases.VersionDraft {
			return v, true, nil
		}
	}
	return cases.PlanVersion{}, false, nil
}

// Version returns one stored version of a case.
func (s *Service) Version(ctx context.Context, caseID string, version int) (cases.PlanVersion, error) {
	return s.store.GetVersion(ctx, caseID, version)
}

// Versions exposes the full ordered history of a case.
func (s *Service) Versions(ctx context.Context, caseID string) ([]cases.PlanVersion, error) {
	return s.store.ListVersions(ctx, caseID)
}

func cloneContent(content cases.PlanContent) cases.PlanContent {
	out := make(cases.PlanContent, len(content))
	for k, v := range content {
		out[k] = v
	}
	return out
}
