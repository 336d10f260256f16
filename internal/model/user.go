package model

import "time"

// User is a verified principal mapped to a local row. Credentials live with the
// identity provider; only its subject identifier is stored.
type User struct {
	ID         string    `db:"id" json:"id"`
	ExternalID string    `db:"external_id" json:"external_id"`
	Email      string    `db:"email" json:"email"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Role is an organization member role. The set is closed; see ParseRole.
type Role string

// Roles, strongest first.
const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
	RoleViewer   Role = "viewer"
)

// Roles lists every valid role, strongest first.
var Roles = []Role{RoleAdmin, RoleManager, RoleEmployee, RoleViewer}

// roleAliases maps the coarse role names used by older permission checks.
var roleAliases = map[string]Role{
	"writer":     RoleManager,
	"read-write": RoleEmployee,
	"reader":     RoleViewer,
}

// ParseRole converts a stored or user-supplied role name to a Role.
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleAdmin, RoleManager, RoleEmployee, RoleViewer:
		return r, true
	}
	if r, ok := roleAliases[s]; ok {
		return r, true
	}
	return "", false
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

var roleLevels = map[Role]int{
	RoleAdmin:    4,
	RoleManager:  3,
	RoleEmployee: 2,
	RoleViewer:   1,
}

// RoleAtLeast checks if role meets or exceeds the minimum required role.
// Unknown roles fail closed.
func RoleAtLeast(role, minimum Role) bool {
	have, ok := roleLevels[role]
	if !ok {
		return false
	}
	need, ok := roleLevels[minimum]
	if !ok {
		return false
	}
	return have >= need
}
