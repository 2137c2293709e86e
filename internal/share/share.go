// Package share filters and redacts case data crossing organization
// boundaries according to the per-case share policy.
package share

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"caseshare.org/internal/actor"
	"caseshare.org/internal/cases"
	"caseshare.org/internal/scope"
)

// Evaluator projects cases through the share policy. It is stateless and
// lock-free; policy writes go through the same per-case lock as plan
// mutations, so a projection never observes a policy mid-update.
type Evaluator struct {
	resolver *scope.Resolver
}

// NewEvaluator builds an evaluator over the scope resolver.
func NewEvaluator(resolver *scope.Resolver) *Evaluator {
	return &Evaluator{resolver: resolver}
}

// Project returns the view of c the actor is entitled to, or a
// cases.ErrPermissionDenied error. Callers surface that denial as
// not-found so unauthorized actors cannot probe for case existence.
func (e *Evaluator) Project(a actor.Context, c cases.Case, policy *cases.SharePolicy) (cases.CaseView, error) {
	if e.resolver.InScope(a, c.OwningOrg) {
		return fullView(c), nil
	}
	if c.Secret || policy == nil {
		return cases.CaseView{}, fmt.Errorf("%w: case %s not visible to org %s", cases.ErrPermissionDenied, c.ID, a.HomeOrg)
	}
	switch policy.Scope {
	case cases.ShareCrossBranch:
		return fullView(c), nil
	case cases.ShareDeidentified:
		return deidentifiedView(c), nil
	default:
		return cases.CaseView{}, fmt.Errorf("%w: case %s not shared beyond its branch", cases.ErrPermissionDenied, c.ID)
	}
}

func fullView(c cases.Case) cases.CaseView {
	return cases.CaseView{
		ID:        c.ID,
		Number:    c.Number,
		OwningOrg: c.OwningOrg,
		Status:    c.Status,
		Priority:  c.Priority,
		Title:     c.Title,
		Diagnosis: c.Diagnosis,
		Patient:   c.Patient,
	}
}

// deidentifiedView strips every patient-identifying field. The replacement
// token is derived from the case id alone: stable across repeated
// projections of the same case, never reused across cases, and carrying no
// patient information, so two de-identified views cannot be joined back to
// an identity.
func deidentifiedView(c cases.Case) cases.CaseView {
	v := fullView(c)
	v.Redacted = true
	v.Patient = cases.Patient{MRN: Pseudonym(c.ID)}
	return v
}

// Pseudonym returns the de-identification token for a case.
func Pseudonym(caseID string) string {
	sum := sha256.Sum256([]byte("caseshare.deid.v1:" + caseID))
	return "ANON-" + strings.ToUpper(hex.EncodeToString(sum[:4]))
}
