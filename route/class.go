package route

import (
	"strings"

	"github.com/MrEthical07/goGuard/session"
)

// Kind is the access requirement of a path.
type Kind uint8

const (
	// AuthenticatedAny requires any authenticated session. It is the zero value
	// so an unset class fails closed.
	AuthenticatedAny Kind = iota
	// Public is reachable without a session.
	Public
	// RoleRestricted requires an authenticated session with one of Class.Roles.
	RoleRestricted
	// SignedLinkEligible is reachable through a valid signed link.
	SignedLinkEligible
)

func (k Kind) String() string {
	switch k {
	case Public:
		return "public"
	case RoleRestricted:
		return "role_restricted"
	case SignedLinkEligible:
		return "signed_link"
	default:
		return "authenticated"
	}
}

// Area names a top-level section of the application.
type Area string

const (
	AreaNone      Area = ""
	AreaStaff     Area = "staff"
	AreaStudent   Area = "student"
	AreaDeveloper Area = "developer"
)

// Class is the access requirement resolved for one path.
type Class struct {
	Kind  Kind
	Roles []session.Role
	Area  Area
}

// Allows reports whether role satisfies the class's role set. Classes other
// than RoleRestricted allow every role.
func (c Class) Allows(role session.Role) bool {
	if c.Kind != RoleRestricted {
		return true
	}
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (c Class) String() string {
	if c.Kind != RoleRestricted {
		return c.Kind.String()
	}
	names := make([]string, 0, len(c.Roles))
	for _, r := range c.Roles {
		names = append(names, r.String())
	}
	return c.Kind.String() + "(" + strings.Join(names, ",") + ")"
}
