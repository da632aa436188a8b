package auth

import "strings"

type Role string

const (
	RoleMember Role = "member"
	RoleStaff  Role = "staff"
)

// NormalizeRole maps a claim value onto a known role. Unknown values become
// RoleMember so a malformed claim never grants staff access.
func NormalizeRole(role string) Role {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case string(RoleStaff):
		return RoleStaff
	default:
		return RoleMember
	}
}

func IsStaff(role string) bool {
	return NormalizeRole(role) == RoleStaff
}
