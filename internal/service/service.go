// Package service is the orchestration layer every request passes through:
// the permission engine and scope resolver gate the operation, the plan
// service executes versioned transitions under the per-case lock, the share
// evaluator filters cross-organization responses, and the audit recorder
// logs the decision regardless of the response path.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"caseshare.org/internal/actor"
	"caseshare.org/internal/audit"
	"caseshare.org/internal/cases"
	"caseshare.org/internal/ids"
	"caseshare.org/internal/obs"
	"caseshare.org/internal/perm"
	"caseshare.org/internal/plan"
	"caseshare.org/internal/scope"
	"caseshare.org/internal/share"
)

// Service wires the access-control kernel together.
type Service struct {
	store    cases.Store
	plans    *plan.Service
	engine   *perm.Engine
	resolver *scope.Resolver
	shares   *share.Evaluator
	auditor  *audit.Recorder
	locks    *plan.CaseLocks
	now      func() time.Time
}

// New assembles the service. The lock manager is shared with the plan
// service so share-policy writes serialize against plan mutations of the
// same case.
func New(store cases.Store, plans *plan.Service, engine *perm.Engine, resolver *scope.Resolver, shares *share.Evaluator, auditor *audit.Recorder, locks *plan.CaseLocks) *Service {
	return &Service{
		store:    store,
		plans:    plans,
		engine:   engine,
		resolver: resolver,
		shares:   shares,
		auditor:  auditor,
		locks:    locks,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Page is one page of a case listing.
type Page struct {
	Items  []cases.CaseView `json:"items"`
	Total  int              `json:"total"`
	Offset int              `json:"offset"`
}

// CaseInput is the payload for creating a case.
type CaseInput struct {
	OwningOrg string
	Title     string
	Diagnosis string
	Priority  cases.Priority
	Patient   cases.Patient
	Secret    bool
}

// authorize evaluates the engine, reports the decision to the audit
// recorder, and translates denial into the caller-facing error. Denials on
// targets the actor cannot even see surface as not-found so existence is
// not disclosed.
func (s *Service) authorize(ctx context.Context, a actor.Context, op perm.Operation, target perm.Target) error {
	decision := s.engine.Authorize(a, op, target)
	obs.ObserveAuthzDecision(string(op), decision.Allow)
	if decision.Allow {
		return nil
	}
	if err := s.auditor.Record(ctx, s.denyEvent(a, op, target, decision.Reason)); err != nil {
		return err
	}
	if target.Case != nil && !s.resolver.CaseVisible(a, *target.Case, target.Policy) {
		return fmt.Errorf("%w: case", cases.ErrNotFound)
	}
	return fmt.Errorf("%w: %s", cases.ErrPermissionDenied, op)
}

func (s *Service) denyEvent(a actor.Context, op perm.Operation, target perm.Target, reason string) audit.Event {
	e := audit.Event{
		ActorID:    a.ActorID,
		Verb:       string(op),
		ObjectType: "case",
		OrgContext: a.HomeOrg,
		Outcome:    audit.OutcomeDenied,
		Extra:      map[string]string{"reason": reason},
	}
	if target.Case != nil {
		e.ObjectID = target.Case.ID
	}
	return e
}

func (s *Service) allowEvent(a actor.Context, op perm.Operation, objectType, objectID string) audit.Event {
	return audit.Event{
		ActorID:    a.ActorID,
		Verb:       string(op),
		ObjectType: objectType,
		ObjectID:   objectID,
		OrgContext: a.HomeOrg,
		Outcome:    audit.OutcomeAllowed,
	}
}

// loadTarget fetches the case and its policy. A missing case is reported
// as not-found without an audit event: no authorization decision was made.
func (s *Service) loadTarget(ctx context.Context, caseID string) (perm.Target, error) {
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return perm.Target{}, err
	}
	policy, err := s.store.GetPolicy(ctx, caseID)
	if err != nil {
		return perm.Target{}, err
	}
	return perm.Target{Case: &c, Policy: policy}, nil
}

// CreateCase opens a new case. Non-HQ actors always create inside their
// home organization regardless of the requested owner.
func (s *Service) CreateCase(ctx context.Context, a actor.Context, in CaseInput) (cases.CaseView, error) {
	owning := in.OwningOrg
	if owning == "" || (a.Role != actor.RoleHQAdmin && !a.Elevated) {
		owning = a.HomeOrg
	}
	org, err := s.store.GetOrganization(ctx, owning)
	if err != nil {
		return cases.CaseView{}, err
	}

	now := s.now()
	c := cases.Case{
		ID:        ids.New(),
		Number:    ids.CaseNumber(org.Name, now),
		OwningOrg: owning,
		Status:    cases.CaseDraft,
		Priority:  in.Priority,
		Title:     in.Title,
		Diagnosis: in.Diagnosis,
		Patient:   in.Patient,
		Secret:    in.Secret,
		CreatedBy: a.ActorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if c.Priority == "" {
		c.Priority = cases.PriorityMedium
	}
	if err := s.authorize(ctx, a, perm.OpCreateCase, perm.Target{Case: &c}); err != nil {
		return cases.CaseView{}, err
	}
	if err := s.store.CreateCase(ctx, c); err != nil {
		return cases.CaseView{}, err
	}
	if err := s.auditor.Record(ctx, s.allowEvent(a, perm.OpCreateCase, "case", c.ID)); err != nil {
		return cases.CaseView{}, err
	}
	view, err := s.shares.Project(a, c, nil)
	if err != nil {
		return cases.CaseView{}, err
	}
	return view, nil
}

// CaseUpdate carries the editable case fields. Nil means "leave unchanged".
type CaseUpdate struct {
	Title     *string
	Diagnosis *string
	Priority  *cases.Priority
	Status    *cases.CaseStatus
	Patient   *cases.Patient
}

// UpdateCase edits case metadata. Completed and cancelled cases are frozen
// for non-admin actors; the edit runs under the case lock so it serializes
// with plan and policy writes.
func (s *Service) UpdateCase(ctx context.Context, a actor.Context, caseID string, up CaseUpdate) (cases.CaseView, error) {
	target, err := s.loadTarget(ctx, caseID)
	if err != nil {
		return cases.CaseView{}, err
	}
	if err := s.authorize(ctx, a, perm.OpEditCase, target); err != nil {
		return cases.CaseView{}, err
	}
	release, err := s.locks.Acquire(ctx, caseID)
	if err != nil {
		return cases.CaseView{}, err
	}
	defer release()

	c := *target.Case
	if up.Title != nil {
		c.Title = *up.Title
	}
	if up.Diagnosis != nil {
		c.Diagnosis = *up.Diagnosis
	}
	if up.Priority != nil {
		c.Priority = *up.Priority
	}
	if up.Status != nil {
		switch *up.Status {
		case cases.CaseDraft, cases.CaseOpen, cases.CaseInProgress, cases.CaseReview, cases.CaseCompleted, cases.CaseCancelled:
			c.Status = *up.Status
		default:
			return cases.CaseView{}, fmt.Errorf("%w: unknown case status %s", cases.ErrInvalidInput, *up.Status)
		}
	}
	if up.Patient != nil {
		c.Patient = *up.Patient
	}
	c.UpdatedAt = s.now()

	if err := s.store.UpdateCase(ctx, c); err != nil {
		return cases.CaseView{}, err
	}
	if err := s.auditor.Record(ctx, s.allowEvent(a, perm.OpEditCase, "case", c.ID)); err != nil {
		return cases.CaseView{}, err
	}
	view, err := s.shares.Project(a, c, target.Policy)
	if err != nil {
		return cases.CaseView{}, fmt.Errorf("%w: case", cases.ErrNotFound)
	}
	return view, nil
}

// ListCases returns the page of cases visible to the actor. Out-of-scope
// cases without a permissive share policy are silently absent; the call
// never errors for lack of data.
func (s *Service) ListCases(ctx context.Context, a actor.Context, f cases.Filter, offset, limit int) (Page, error) {
	if err := s.authorize(ctx, a, perm.OpListCases, perm.Target{}); err != nil {
		return Page{}, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	all, err := s.store.ListCases(ctx, f)
	if err != nil {
		return Page{}, err
	}

	var visible []cases.CaseView
	for _, c := range all {
		policy, err := s.store.GetPolicy(ctx, c.ID)
		if err != nil {
			return Page{}, err
		}
		if !s.resolver.CaseVisible(a, c, policy) {
			continue
		}
		view, err := s.shares.Project(a, c, policy)
		if err != nil {
			// Visibility raced a policy change; skip rather than leak.
			continue
		}
		visible = append(visible, view)
	}

	s.auditor.RecordRead(ctx, s.allowEvent(a, perm.OpListCases, "case", ""))

	total := len(visible)
	if offset >= total {
		return Page{Items: []cases.CaseView{}, Total: total, Offset: offset}, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return Page{Items: visible[offset:end], Total: total, Offset: offset}, nil
}

// GetCase returns the projected view of one case.
func (s *Service) GetCase(ctx context.Context, a actor.Context, caseID string) (cases.CaseView, error) {
	target, err := s.loadTarget(ctx, caseID)
	if err != nil {
		return cases.CaseView{}, err
	}
	if err := s.authorize(ctx, a, perm.OpViewCase, target); err != nil {
		return cases.CaseView{}, err
	}
	view, err := s.shares.Project(a, *target.Case, target.Policy)
	if err != nil {
		return cases.CaseView{}, fmt.Errorf("%w: case", cases.ErrNotFound)
	}
	s.auditor.RecordRead(ctx, s.allowEvent(a, perm.OpViewCase, "case", caseID))
	return view, nil
}

// CreatePlanDraft opens a new treatment-plan draft for the case.
func (s *Service) CreatePlanDraft(ctx context.Context, a actor.Context, caseID string, content cases.PlanContent) (cases.VersionRef, error) {
	target, err := s.loadTarget(ctx, caseID)
	if err != nil {
		return cases.VersionRef{}, err
	}
	if err := s.authorize(ctx, a, perm.OpCreateDraft, target); err != nil {
		return cases.VersionRef{}, err
	}
	ref, err := s.plans.CreateDraft(ctx, caseID, a.ActorID, content)
	if err != nil {
		return cases.VersionRef{}, err
	}
	if err := s.auditor.Record(ctx, s.allowEvent(a, perm.OpCreateDraft, "plan_version", versionObjectID(ref))); err != nil {
		return cases.VersionRef{}, err
	}
	return ref, nil
}

// UpdatePlanDraft replaces the draft head content under optimistic
// concurrency control.
func (s *Service) UpdatePlanDraft(ctx context.Context, a actor.Context, caseID string, version int, expectedToken string, content cases.PlanContent) (cases.VersionRef, error) {
	target, err := s.loadTarget(ctx, caseID)
	if err != nil {
		return cases.VersionRef{}, err
	}
	if v, err := s.plans.Version(ctx, caseID, version); err == nil {
		target.Version = &v
	}
	if err := s.authorize(ctx, a, perm.OpUpdateDraft, target); err != nil {
		return cases.VersionRef{}, err
	}
	ref, err := s.plans.UpdateDraft(ctx, caseID, version, expectedToken, a.ActorID, content)
	if err != nil {
		return cases.VersionRef{}, err
	}
	if err := s.auditor.Record(ctx, s.allowEvent(a, perm.OpUpdateDraft, "plan_version", versionObjectID(ref))); err != nil {
		return cases.VersionRef{}, err
	}
	return ref, nil
}

// ComparePlanVersions produces the field-level diff between two versions.
func (s *Service) ComparePlanVersions(ctx context.Context, a actor.Context, caseID string, from, to int) (plan.Diff, error) {
	target, err := s.loadTarget(ctx, caseID)
	if err != nil {
		return plan.Diff{}, err
	}
	if err := s.authorize(ctx, a, perm.OpComparePlans, target); err != nil {
		return plan.Diff{}, err
	}
	diff, err := s.plans.Compare(ctx, caseID, from, to)
	if err != nil {
		return plan.Diff{}, err
	}
	s.auditor.RecordRead(ctx, s.allowEvent(a, perm.OpComparePlans, "plan_version", fmt.Sprintf("%s/v%d..v%d", caseID, from, to)))
	return diff, nil
}

// ApprovePlan crosses the irreversible approval boundary. The approval
// audit event is durable: if it cannot be written the caller sees
// cases.ErrAuditWrite even though the approval itself committed.
func (s *Service) ApprovePlan(ctx context.Context, a actor.Context, caseID string, version int) (cases.VersionRef, error) {
	target, err := s.loadTarget(ctx, caseID)
	if err != nil {
		return cases.VersionRef{}, err
	}
	if err := s.authorize(ctx, a, perm.OpApprovePlan, target); err != nil {
		return cases.VersionRef{}, err
	}
	ref, err := s.plans.Approve(ctx, caseID, version, a.ActorID)
	if err != nil {
		return cases.VersionRef{}, err
	}
	if err := s.auditor.Record(ctx, s.allowEvent(a, perm.OpApprovePlan, "plan_version", versionObjectID(ref))); err != nil {
		return ref, err
	}
	return ref, nil
}

// SetSharePolicy installs or replaces the case's share policy. The write
// holds the same per-case lock as plan mutations so projections never
// observe a policy mid-update.
func (s *Service) SetSharePolicy(ctx context.Context, a actor.Context, caseID string, policyScope cases.ShareScope) error {
	target, err := s.loadTarget(ctx, caseID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, a, perm.OpSetPolicy, target); err != nil {
		return err
	}
	release, err := s.locks.Acquire(ctx, caseID)
	if err != nil {
		return err
	}
	defer release()

	p := cases.SharePolicy{CaseID: caseID, Scope: policyScope, SetBy: a.ActorID, SetAt: s.now()}
	if err := s.store.SetPolicy(ctx, p); err != nil {
		return err
	}
	return s.auditor.Record(ctx, s.allowEvent(a, perm.OpSetPolicy, "share_policy", caseID))
}

// ExportAudit streams matching audit events to fn in timestamp order.
// HQ-only per the permission matrix.
func (s *Service) ExportAudit(ctx context.Context, a actor.Context, f audit.Filter, pageSize int, fn func(audit.Event) error) error {
	if err := s.authorize(ctx, a, perm.OpExportAudit, perm.Target{}); err != nil {
		return err
	}
	if err := s.auditor.Record(ctx, s.allowEvent(a, perm.OpExportAudit, "audit_event", "")); err != nil {
		return err
	}
	return s.auditor.Stream(ctx, f, pageSize, fn)
}

// PlanVersions exposes the ordered version history of a case the actor may
// view.
func (s *Service) PlanVersions(ctx context.Context, a actor.Context, caseID string) ([]cases.PlanVersion, error) {
	target, err := s.loadTarget(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, a, perm.OpViewCase, target); err != nil {
		return nil, err
	}
	s.auditor.RecordRead(ctx, s.allowEvent(a, perm.OpViewCase, "plan_version", caseID))
	return s.plans.Versions(ctx, caseID)
}

func versionObjectID(ref cases.VersionRef) string {
	return fmt.Sprintf("%s/v%d", ref.CaseID, ref.Version)
}

// IsNotFound reports whether err should surface as a 404.
func IsNotFound(err error) bool {
	return errors.Is(err, cases.ErrNotFound)
}
