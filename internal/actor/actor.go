package actor

import "strings"

// Role is the clinical role attached to an acting user.
type Role string

const (
	RoleHQAdmin       Role = "HQ_ADMIN"
	RoleBranchAdmin   Role = "BRANCH_ADMIN"
	RoleDentist       Role = "DENTIST"
	RoleAssistant     Role = "ASSISTANT"
	RoleFrontDesk     Role = "FRONT_DESK"
	RoleReadOnly      Role = "READ_ONLY"
	RoleExternalGuest Role = "EXTERNAL_GUEST"
)

// roleRanks orders roles by mutation authority. READ_ONLY and EXTERNAL_GUEST
// share the bottom rank and never mutate.
var roleRanks = map[Role]int{
	RoleHQAdmin:       6,
	RoleBranchAdmin:   5,
	RoleDentist:       4,
	RoleAssistant:     4,
	RoleFrontDesk:     2,
	RoleReadOnly:      0,
	RoleExternalGuest: 0,
}

// ParseRole normalizes a role string. Unknown values map to EXTERNAL_GUEST,
// the least privileged role.
func ParseRole(s string) Role {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := roleRanks[r]; ok {
		return r
	}
	return RoleExternalGuest
}

// Rank returns the mutation-authority rank of the role.
func (r Role) Rank() int {
	return roleRanks[r]
}

// Admin reports whether the role carries administrative override authority.
func (r Role) Admin() bool {
	return r == RoleHQAdmin || r == RoleBranchAdmin
}

// CanApprovePlans reports whether the role may approve treatment plans.
func (r Role) CanApprovePlans() bool {
	return r == RoleHQAdmin || r == RoleBranchAdmin || r == RoleDentist
}

// Context is the immutable description of the acting user for one request.
// It carries identity, role, home organization and the elevation flag and
// nothing else; per-user preferences never belong here.
type Context struct {
	ActorID  string `json:"actor_id"`
	Role     Role   `json:"role"`
	HomeOrg  string `json:"home_org"`
	Elevated bool   `json:"elevated"`
}

// Valid reports whether the actor context is usable for authorization.
func (a Context) Valid() bool {
	return a.ActorID != "" && a.HomeOrg != ""
}
