package perm

import (
	"encoding/json"
	"fmt"
	"os"

	"caseshare.org/internal/actor"
)

// Operation identifies a gated action. Values double as audit verbs.
type Operation string

const (
	OpListCases    Operation = "case.list"
	OpViewCase     Operation = "case.view"
	OpCreateCase   Operation = "case.create"
	OpEditCase     Operation = "case.edit"
	OpCreateDraft  Operation = "plan.draft.create"
	OpUpdateDraft  Operation = "plan.draft.update"
	OpComparePlans Operation = "plan.compare"
	OpApprovePlan  Operation = "plan.approve"
	OpSetPolicy    Operation = "policy.set"
	OpExportAudit  Operation = "audit.export"
)

// Reads reports whether the operation only observes state.
func (op Operation) Reads() bool {
	switch op {
	case OpListCases, OpViewCase, OpComparePlans, OpExportAudit:
		return true
	}
	return false
}

// Matrix is the role×operation decision table. It is an explicit value
// rather than scattered per-endpoint checks so deployments can override it
// at load time and tests can sweep it exhaustively.
type Matrix map[Operation]map[actor.Role]bool

// allRoles enumerates every known role for matrix construction.
var allRoles = []actor.Role{
	actor.RoleHQAdmin,
	actor.RoleBranchAdmin,
	actor.RoleDentist,
	actor.RoleAssistant,
	actor.RoleFrontDesk,
	actor.RoleReadOnly,
	actor.RoleExternalGuest,
}

// DefaultMatrix builds the shipped decision table from the role hierarchy:
// reads for everyone, clinical mutation from ASSISTANT rank upwards,
// approval restricted to roles licensed to sign off plans, audit export
// restricted to HQ administration.
func DefaultMatrix() Matrix {
	m := make(Matrix)
	grant := func(op Operation, allowed func(actor.Role) bool) {
		row := make(map[actor.Role]bool, len(allRoles))
		for _, r := range allRoles {
			row[r] = allowed(r)
		}
		m[op] = row
	}

	everyone := func(actor.Role) bool { return true }
	clinical := func(r actor.Role) bool { return r.Rank() >= actor.RoleAssistant.Rank() }

	grant(OpListCases, everyone)
	grant(OpViewCase, everyone)
	grant(OpComparePlans, everyone)
	grant(OpCreateCase, clinical)
	grant(OpEditCase, clinical)
	grant(OpCreateDraft, clinical)
	grant(OpUpdateDraft, clinical)
	grant(OpApprovePlan, func(r actor.Role) bool { return r.CanApprovePlans() })
	grant(OpSetPolicy, func(r actor.Role) bool { return r.Admin() })
	grant(OpExportAudit, func(r actor.Role) bool { return r == actor.RoleHQAdmin })
	return m
}

// Allows reports the matrix cell for (op, role). Unknown operations deny.
func (m Matrix) Allows(op Operation, role actor.Role) bool {
	row, ok := m[op]
	if !ok {
		return false
	}
	return row[role]
}

// matrixFile is the on-disk override format: operation -> allowed roles.
type matrixFile map[string][]string

// LoadMatrix reads a JSON override file and merges it over the default
// matrix. Operations absent from the file keep their default rows.
func LoadMatrix(path string) (Matrix, error) {
	m := DefaultMatrix()
	if path == "" {
		return m, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read permission matrix: %w", err)
	}
	var file matrixFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse permission matrix: %w", err)
	}
	for opName, roles := range file {
		row := make(map[actor.Role]bool, len(allRoles))
		for _, r := range allRoles {
			row[r] = false
		}
		for _, roleName := range roles {
			row[actor.ParseRole(roleName)] = true
		}
		m[Operation(opName)] = row
	}
	return m, nil
}
