// Package perm is the permission engine: a pure decision function over an
// explicit role×operation matrix plus per-entity state guards. It never
// logs; callers report every decision to the audit recorder.
package perm

import (
	"caseshare.org/internal/actor"
	"caseshare.org/internal/cases"
	"caseshare.org/internal/scope"
)

// Target carries the current state of the entity an operation acts on.
// Nil fields mean the operation has no such target (e.g. listing).
type Target struct {
	Case    *cases.Case
	Version *cases.PlanVersion
	Policy  *cases.SharePolicy
}

// Decision is the authorization outcome. Reason is for the audit trail,
// never for the caller-facing error, which stays uniform.
type Decision struct {
	Allow  bool
	Reason string
}

func allow(reason string) Decision { return Decision{Allow: true, Reason: reason} }
func deny(reason string) Decision  { return Decision{Allow: false, Reason: reason} }

// Engine evaluates the matrix and state guards. It is stateless and safe
// for concurrent use.
type Engine struct {
	matrix   Matrix
	resolver *scope.Resolver
}

// NewEngine builds an engine over the given matrix and scope resolver.
func NewEngine(matrix Matrix, resolver *scope.Resolver) *Engine {
	return &Engine{matrix: matrix, resolver: resolver}
}

// Authorize decides whether the actor may perform op against target.
//
// Guard order: role matrix, org scope, case state, approval immutability.
// The first failing guard decides; reasons name the guard for the audit
// trail.
func (e *Engine) Authorize(a actor.Context, op Operation, target Target) Decision {
	if !a.Valid() {
		return deny("unauthenticated actor")
	}
	if !e.matrix.Allows(op, a.Role) {
		return deny("role " + string(a.Role) + " not permitted for " + string(op))
	}

	if target.Case != nil {
		if d := e.orgGuard(a, op, target); !d.Allow {
			return d
		}
		if d := e.stateGuard(a, op, *target.Case); !d.Allow {
			return d
		}
	}

	if op == OpUpdateDraft && target.Version != nil && target.Version.Status == cases.VersionApproved {
		return deny("approved versions are immutable")
	}

	if op == OpSetPolicy && target.Case != nil && target.Case.Secret {
		return deny("secret cases cannot be shared")
	}

	return allow("matrix and guards passed")
}

// orgGuard denies unless the target's owning org is resolvable by the
// actor, except for reads of cases whose share policy permits crossing the
// org boundary.
func (e *Engine) orgGuard(a actor.Context, op Operation, target Target) Decision {
	c := *target.Case
	if e.resolver.InScope(a, c.OwningOrg) {
		return allow("owning org in scope")
	}
	if op.Reads() && e.resolver.CaseVisible(a, c, target.Policy) {
		return allow("cross-org read permitted by share policy")
	}
	return deny("owning org out of scope")
}

// stateGuard freezes clinical mutation on completed or cancelled cases.
// Admins of the owning org (or HQ) may still override.
func (e *Engine) stateGuard(a actor.Context, op Operation, c cases.Case) Decision {
	if op.Reads() || !c.Status.Terminal() {
		return allow("case state permits mutation")
	}
	if a.Role == actor.RoleHQAdmin {
		return allow("hq admin override on closed case")
	}
	if a.Role == actor.RoleBranchAdmin && (a.HomeOrg == c.OwningOrg || a.Elevated) {
		return allow("branch admin override on closed case")
	}
	return deny("case is " + string(c.Status))
}
