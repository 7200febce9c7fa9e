package rbac

import "strings"

type Role string

const (
	RoleViewer  Role = "viewer"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// Normalize maps an externally supplied role string onto a known role.
// Unknown or empty roles degrade to viewer, the least-privileged role.
func Normalize(role string) Role {
	normalized := Role(strings.ToLower(strings.TrimSpace(role)))
	switch normalized {
	case RoleViewer, RoleManager, RoleAdmin:
		return normalized
	default:
		return RoleViewer
	}
}

// SeesAllDepartments reports whether the role may read documents from
// every department. Viewers are scoped to their home department.
func SeesAllDepartments(role Role) bool {
	return role == RoleManager || role == RoleAdmin
}
