package perm

import (
	"testing"

	"caseshare.org/internal/actor"
	"caseshare.org/internal/cases"
	"caseshare.org/internal/scope"
)

func testEngine() *Engine {
	return NewEngine(DefaultMatrix(), scope.NewResolver([]string{"org-hq", "org-a", "org-b"}))
}

func TestAuthorizeMatrixSweep(t *testing.T) {
	e := testEngine()
	c := &cases.Case{ID: "c1", OwningOrg: "org-a", Status: cases.CaseOpen}

	tests := []struct {
		role actor.Role
		op   Operation
		want bool
	}{
		{actor.RoleReadOnly, OpViewCase, true},
		{actor.RoleReadOnly, OpCreateDraft, false},
		{actor.RoleFrontDesk, OpListCases, true},
		{actor.RoleFrontDesk, OpUpdateDraft, false},
		{actor.RoleAssistant, OpCreateDraft, true},
		{actor.RoleAssistant, OpApprovePlan, false},
		{actor.RoleDentist, OpApprovePlan, true},
		{actor.RoleDentist, OpSetPolicy, false},
		{actor.RoleBranchAdmin, OpSetPolicy, true},
		{actor.RoleBranchAdmin, OpExportAudit, false},
		{actor.RoleHQAdmin, OpExportAudit, true},
		{actor.RoleExternalGuest, OpViewCase, true},
		{actor.RoleExternalGuest, OpCreateCase, false},
	}
	for _, tc := range tests {
		a := actor.Context{ActorID: "u1", Role: tc.role, HomeOrg: "org-a"}
		d := e.Authorize(a, tc.op, Target{Case: c})
		if d.Allow != tc.want {
			t.Errorf("%s %s: allow=%v want %v (%s)", tc.role, tc.op, d.Allow, tc.want, d.Reason)
		}
	}
}

func TestAuthorizeInvalidActor(t *testing.T) {
	e := testEngine()
	if d := e.Authorize(actor.Context{}, OpListCases, Target{}); d.Allow {
		t.Fatal("unauthenticated actor was allowed")
	}
}

func TestAuthorizeOrgGuard(t *testing.T) {
	e := testEngine()
	outsider := actor.Context{ActorID: "u1", Role: actor.RoleDentist, HomeOrg: "org-b"}
	c := &cases.Case{ID: "c1", OwningOrg: "org-a", Status: cases.CaseOpen}

	// Mutation across orgs is always denied, policy or not.
	cross := &cases.SharePolicy{CaseID: "c1", Scope: cases.ShareCrossBranch}
	if d := e.Authorize(outsider, OpCreateDraft, Target{Case: c, Policy: cross}); d.Allow {
		t.Fatal("cross-org mutation allowed")
	}

	// Reads cross only with a permissive policy.
	if d := e.Authorize(outsider, OpViewCase, Target{Case: c}); d.Allow {
		t.Fatal("cross-org read allowed without policy")
	}
	if d := e.Authorize(outsider, OpViewCase, Target{Case: c, Policy: cross}); !d.Allow {
		t.Fatalf("cross-org read denied despite CROSS_BRANCH policy: %s", d.Reason)
	}
}

func TestAuthorizeStateGuard(t *testing.T) {
	e := testEngine()
	closed := &cases.Case{ID: "c1", OwningOrg: "org-a", Status: cases.CaseCompleted}

	dentist := actor.Context{ActorID: "u1", Role: actor.RoleDentist, HomeOrg: "org-a"}
	if d := e.Authorize(dentist, OpCreateDraft, Target{Case: closed}); d.Allow {
		t.Fatal("mutation on completed case allowed for dentist")
	}
	if d := e.Authorize(dentist, OpViewCase, Target{Case: closed}); !d.Allow {
		t.Fatalf("read on completed case denied: %s", d.Reason)
	}

	branchAdmin := actor.Context{ActorID: "u2", Role: actor.RoleBranchAdmin, HomeOrg: "org-a"}
	if d := e.Authorize(branchAdmin, OpEditCase, Target{Case: closed}); !d.Allow {
		t.Fatalf("owning branch admin override denied: %s", d.Reason)
	}

	foreignAdmin := actor.Context{ActorID: "u3", Role: actor.RoleBranchAdmin, HomeOrg: "org-b"}
	if d := e.Authorize(foreignAdmin, OpEditCase, Target{Case: closed}); d.Allow {
		t.Fatal("foreign branch admin mutated a closed case")
	}

	hq := actor.Context{ActorID: "u4", Role: actor.RoleHQAdmin, HomeOrg: "org-hq"}
	if d := e.Authorize(hq, OpEditCase, Target{Case: closed}); !d.Allow {
		t.Fatalf("hq admin override denied: %s", d.Reason)
	}
}

func TestAuthorizeApprovedVersionImmutable(t *testing.T) {
	e := testEngine()
	c := &cases.Case{ID: "c1", OwningOrg: "org-a", Status: cases.CaseOpen}
	v := &cases.PlanVersion{CaseID: "c1", Version: 2, Status: cases.VersionApproved}
	a := actor.Context{ActorID: "u1", Role: actor.RoleDentist, HomeOrg: "org-a"}

	if d := e.Authorize(a, OpUpdateDraft, Target{Case: c, Version: v}); d.Allow {
		t.Fatal("update of an approved version allowed")
	}
	draft := &cases.PlanVersion{CaseID: "c1", Version: 3, Status: cases.VersionDraft}
	if d := e.Authorize(a, OpUpdateDraft, Target{Case: c, Version: draft}); !d.Allow {
		t.Fatalf("update of draft denied: %s", d.Reason)
	}
}

func TestAuthorizeSecretCasePolicy(t *testing.T) {
	e := testEngine()
	secret := &cases.Case{ID: "c1", OwningOrg: "org-a", Status: cases.CaseOpen, Secret: true}
	admin := actor.Context{ActorID: "u1", Role: actor.RoleBranchAdmin, HomeOrg: "org-a"}

	if d := e.Authorize(admin, OpSetPolicy, Target{Case: secret}); d.Allow {
		t.Fatal("share policy set on a secret case")
	}
}
