// Package scope computes the set of organizations an actor may resolve and
// the predicate every listing and lookup must pass through. Nothing in the
// repository reads case data without going through this package or the
// share evaluator built on top of it.
package scope

import (
	"caseshare.org/internal/actor"
	"caseshare.org/internal/cases"
)

// Resolver resolves actor visibility against the registered organizations.
// It is stateless apart from the org registry and safe for concurrent use.
type Resolver struct {
	orgs map[string]struct{}
}

// NewResolver builds a resolver over the known organization ids.
func NewResolver(orgIDs []string) *Resolver {
	set := make(map[string]struct{}, len(orgIDs))
	for _, id := range orgIDs {
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	return &Resolver{orgs: set}
}

// ResolvableOrgs returns the organizations whose data the actor may see.
// HQ admins and elevated actors resolve every organization; everyone else
// resolves only their home organization.
func (r *Resolver) ResolvableOrgs(a actor.Context) map[string]struct{} {
	if a.Role == actor.RoleHQAdmin || a.Elevated {
		out := make(map[string]struct{}, len(r.orgs))
		for id := range r.orgs {
			out[id] = struct{}{}
		}
		return out
	}
	if _, known := r.orgs[a.HomeOrg]; !known {
		return map[string]struct{}{}
	}
	return map[string]struct{}{a.HomeOrg: {}}
}

// InScope reports whether owningOrg is resolvable by the actor.
func (r *Resolver) InScope(a actor.Context, owningOrg string) bool {
	if _, known := r.orgs[owningOrg]; !known {
		return false
	}
	if a.Role == actor.RoleHQAdmin || a.Elevated {
		return true
	}
	return owningOrg == a.HomeOrg
}

// Predicate returns the owning-org filter for the actor. Listing code applies
// it to every entity exposing an owning organization.
func (r *Resolver) Predicate(a actor.Context) func(owningOrg string) bool {
	resolvable := r.ResolvableOrgs(a)
	return func(owningOrg string) bool {
		_, ok := resolvable[owningOrg]
		return ok
	}
}

// CaseVisible extends the owning-org predicate with share-policy awareness:
// a case outside the actor's scope is still listed when a policy permits
// cross-organization visibility. Secret cases never cross the org boundary.
func (r *Resolver) CaseVisible(a actor.Context, c cases.Case, policy *cases.SharePolicy) bool {
	if r.InScope(a, c.OwningOrg) {
		return true
	}
	if c.Secret || policy == nil {
		return false
	}
	return policy.Scope == cases.ShareCrossBranch || policy.Scope == cases.ShareDeidentified
}
