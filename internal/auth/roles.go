package auth

import "strings"

// Role is the access level carried in a ledger token.
type Role string

// Roles are ordered; each unlocks everything the one below it can do.
const (
	// RoleViewer reads balances, charge listings, summaries, dashboards, projections and exports.
	RoleViewer Role = "viewer"
	// RoleOperator also issues and settles charges and moves funds out of custody.
	RoleOperator Role = "operator"
	// RoleAdmin also registers municipalities and runs balance reconciliation.
	RoleAdmin Role = "admin"
)

var roleRanks = map[Role]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// NormalizeRole accepts a known role name, case-insensitively.
func NormalizeRole(value string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := roleRanks[role]; !ok {
		return "", false
	}
	return role, true
}

// RoleAtLeast reports whether role may perform an operation guarded by required.
// Unknown roles satisfy nothing.
func RoleAtLeast(role Role, required Role) bool {
	rank, ok := roleRanks[role]
	if !ok {
		return false
	}
	return rank >= roleRanks[required]
}
