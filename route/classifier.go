package route

import (
	"path"
	"sort"
	"strings"

	"github.com/MrEthical07/goGuard/session"
)

// Classifier resolves paths against a frozen Table.
type Classifier struct {
	table      Table
	public     map[string]struct{}
	signedLink map[string]struct{}
	areas      []AreaRule // longest prefix first
}

// NewClassifier validates t and returns a Classifier.
func NewClassifier(t Table) (*Classifier, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	c := &Classifier{
		table:      t,
		public:     make(map[string]struct{}, len(t.Public)),
		signedLink: make(map[string]struct{}, len(t.SignedLink)),
	}
	for _, p := range t.Public {
		c.public[fold(p)] = struct{}{}
	}
	for _, p := range t.SignedLink {
		c.signedLink[fold(p)] = struct{}{}
	}
	for _, a := range t.Areas {
		a.Prefix = fold(a.Prefix)
		a.Roles = append([]session.Role(nil), a.Roles...)
		c.areas = append(c.areas, a)
	}
	sort.SliceStable(c.areas, func(i, j int) bool {
		return len(c.areas[i].Prefix) > len(c.areas[j].Prefix)
	})
	return c, nil
}

// Classify returns the class of p. p may carry a query string or fragment.
// Matching ignores case, so /Admin is the staff area whatever the page
// router does with case.
func (c *Classifier) Classify(p string) Class {
	p = fold(p)

	if _, ok := c.public[p]; ok {
		return Class{Kind: Public}
	}
	if _, ok := c.signedLink[p]; ok {
		return Class{Kind: SignedLinkEligible}
	}
	for _, a := range c.areas {
		if p == a.Prefix || strings.HasPrefix(p, a.Prefix+"/") {
			return Class{Kind: RoleRestricted, Roles: a.Roles, Area: a.Area}
		}
	}
	return Class{Kind: AuthenticatedAny}
}

// Table returns the classifier's route table.
func (c *Classifier) Table() Table {
	return c.table
}

// Home returns the landing path for role.
func (c *Classifier) Home(role session.Role) string {
	return c.table.Home(role)
}

// Normalize strips query and fragment, resolves dot segments, and drops a
// trailing slash so equivalent spellings classify identically.
func Normalize(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return Root
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// fold is the lookup form of a path: normalized and lower case.
func fold(p string) string {
	return strings.ToLower(Normalize(p))
}
