package models

import "strings"

// Role is the only authorization axis of the studio.
type Role string

const (
	RoleGuest      Role = "guest"
	RoleClient     Role = "client"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// Roles lists every known role.
var Roles = []Role{RoleGuest, RoleClient, RoleInstructor, RoleAdmin}

// ParseRole maps a stored string to a Role; unknown values become guest.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleGuest:
		return RoleGuest, true
	case RoleClient:
		return RoleClient, true
	case RoleInstructor:
		return RoleInstructor, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return RoleGuest, false
	}
}

// HomePath is where a role lands after login or on a forbidden route.
func (r Role) HomePath() string {
	switch r {
	case RoleClient:
		return "/dashboard"
	case RoleInstructor:
		return "/calendario-instructor"
	case RoleAdmin:
		return "/gestion-clientes"
	default:
		return "/"
	}
}

func (r Role) String() string {
	return string(r)
}
