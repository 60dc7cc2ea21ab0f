package session

import "strings"

// Role is the visitor's role as reported by the identity collaborator.
type Role string

const (
	RoleNone      Role = "none"
	RoleStudent   Role = "student"
	RoleAssistant Role = "assistant"
	RoleAdmin     Role = "admin"
	RoleDeveloper Role = "developer"
)

// ParseRole maps a collaborator role string onto a Role. Unknown values
// report ok=false; callers treat them as unauthenticated.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleStudent:
		return RoleStudent, true
	case RoleAssistant:
		return RoleAssistant, true
	case RoleAdmin:
		return RoleAdmin, true
	case RoleDeveloper:
		return RoleDeveloper, true
	default:
		return RoleNone, false
	}
}

// Valid reports whether r is an authenticated role.
func (r Role) Valid() bool {
	_, ok := ParseRole(string(r))
	return ok
}

func (r Role) String() string {
	if r == "" {
		return string(RoleNone)
	}
	return string(r)
}
