package route

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/goGuard/session"
)

// Fixed logical redirect targets.
const (
	Root     = "/"
	Login    = "/login"
	SignUp   = "/signup"
	NotFound = "/not-found"
	Contact  = "/contact"

	SignedRecord = "/public/record"

	StaffHome     = "/admin"
	StudentHome   = "/student"
	DeveloperHome = "/developer"
)

// AreaRule binds an area root and everything below it to a role set.
type AreaRule struct {
	Prefix string
	Area   Area
	Roles  []session.Role
}

// Table is the static route configuration.
type Table struct {
	Public     []string
	SignedLink []string
	Areas      []AreaRule
	Homes      map[session.Role]string
	LoginPath  string
	NotFound   string
}

// DefaultTable returns the dashboard's route layout.
func DefaultTable() Table {
	return Table{
		Public:     []string{Root, Login, SignUp, NotFound, Contact, "/contact-us"},
		SignedLink: []string{SignedRecord},
		Areas: []AreaRule{
			{
				Prefix: StaffHome,
				Area:   AreaStaff,
				Roles:  []session.Role{session.RoleAssistant, session.RoleAdmin, session.RoleDeveloper},
			},
			{
				Prefix: DeveloperHome,
				Area:   AreaDeveloper,
				Roles:  []session.Role{session.RoleDeveloper},
			},
			{
				Prefix: StudentHome,
				Area:   AreaStudent,
				Roles:  []session.Role{session.RoleStudent},
			},
		},
		Homes: map[session.Role]string{
			session.RoleStudent:   StudentHome,
			session.RoleAssistant: StaffHome,
			session.RoleAdmin:     StaffHome,
			session.RoleDeveloper: DeveloperHome,
		},
		LoginPath: Login,
		NotFound:  NotFound,
	}
}

// Validate checks the table for overlapping or malformed entries.
func (t Table) Validate() error {
	if !isRooted(t.LoginPath) {
		return errors.New("route table LoginPath must be an absolute path")
	}
	if !isRooted(t.NotFound) {
		return errors.New("route table NotFound must be an absolute path")
	}

	seen := make(map[string]string)
	claim := func(p, owner string) error {
		if !isRooted(p) {
			return fmt.Errorf("route %q must be an absolute path", p)
		}
		p = fold(p)
		if prev, ok := seen[p]; ok {
			return fmt.Errorf("route %q listed as both %s and %s", p, prev, owner)
		}
		seen[p] = owner
		return nil
	}
	for _, p := range t.Public {
		if err := claim(p, "public"); err != nil {
			return err
		}
	}
	for _, p := range t.SignedLink {
		if err := claim(p, "signed link"); err != nil {
			return err
		}
	}
	for _, a := range t.Areas {
		if a.Prefix == Root {
			return errors.New("area prefix cannot be the root path")
		}
		if len(a.Roles) == 0 {
			return fmt.Errorf("area %q has no roles", a.Prefix)
		}
		if err := claim(a.Prefix, "area"); err != nil {
			return err
		}
	}
	for role, home := range t.Homes {
		if !role.Valid() {
			return fmt.Errorf("home configured for invalid role %q", role)
		}
		if !isRooted(home) {
			return fmt.Errorf("home for %s must be an absolute path", role)
		}
	}
	return nil
}

// Home returns the landing path for role, or LoginPath for roles without one.
func (t Table) Home(role session.Role) string {
	if home, ok := t.Homes[role]; ok {
		return home
	}
	return t.LoginPath
}

func isRooted(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//")
}
