package auth

import (
	"errors"
	"slices"
)

// ErrTokenInvalid is returned when a token fails signature, expiry or
// claim checks.
var ErrTokenInvalid = errors.New("auth: invalid token")

// ErrForbidden is returned when a valid token lacks a permission.
var ErrForbidden = errors.New("auth: forbidden")

// Role represents an authorisation tier.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// ValidRoles is the set of roles a token may carry.
var ValidRoles = []Role{RoleViewer, RoleOperator, RoleAdmin}

// IsValidRole reports whether r is one of ValidRoles.
func IsValidRole(r Role) bool {
	return slices.Contains(ValidRoles, r)
}

// Permission represents a named capability.
type Permission string

const (
	PermVacuumRead    Permission = "vacuum:read"
	PermVacuumOperate Permission = "vacuum:operate"
)

// rolePermissions maps each role to its granted permissions.
var rolePermissions = map[Role][]Permission{
	RoleViewer:   {PermVacuumRead},
	RoleOperator: {PermVacuumRead, PermVacuumOperate},
	RoleAdmin:    {PermVacuumRead, PermVacuumOperate},
}

// HasPermission reports whether role grants perm.
func HasPermission(role Role, perm Permission) bool {
	return slices.Contains(rolePermissions[role], perm)
}
