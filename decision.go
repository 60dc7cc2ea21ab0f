package goGuard

import (
	"github.com/MrEthical07/goGuard/route"
	"github.com/MrEthical07/goGuard/session"
	"github.com/MrEthical07/goGuard/subscription"
)

// DecisionKind is the shape of an access decision.
type DecisionKind uint8

const (
	// Pending means an input is still loading. It is the zero value.
	Pending DecisionKind = iota
	// Allow grants the page.
	Allow
	// RedirectTo sends the visitor to Decision.Target.
	RedirectTo
)

func (k DecisionKind) String() string {
	switch k {
	case Allow:
		return "allow"
	case RedirectTo:
		return "redirect"
	default:
		return "pending"
	}
}

// Reason names the decision table row that produced a Decision.
type Reason string

const (
	ReasonPublic              Reason = "public"
	ReasonLinkGranted         Reason = "link-granted"
	ReasonLinkRejected        Reason = "link-rejected"
	ReasonCheckPending        Reason = "check-pending"
	ReasonUnauthenticated     Reason = "unauthenticated"
	ReasonRoleMismatch        Reason = "role-mismatch"
	ReasonSubscriptionExpired Reason = "subscription-expired"
	ReasonSubscriptionPending Reason = "subscription-pending"
	ReasonGranted             Reason = "granted"
)

// Denied reports whether the reason is a refusal of an identified visitor or
// link, as opposed to a plain login redirect.
func (r Reason) Denied() bool {
	return r == ReasonLinkRejected || r == ReasonRoleMismatch
}

// Decision is the guard's answer for one navigation.
type Decision struct {
	Kind DecisionKind
	// Target is the redirect path for RedirectTo.
	Target string
	// Return is the originally requested path, kept for one post-login hop.
	Return string
	Reason Reason
	// Subject is the only record a link-granted Allow may expose.
	Subject string
}

// LinkStatus is the outcome of signed-link verification for one navigation.
type LinkStatus struct {
	SubjectID string
	// Verified is true only for a signature that verified and was not revoked.
	Verified bool
	// Pending is true while verification is still running.
	Pending bool
}

// Targets are the redirect destinations available to Decide.
type Targets struct {
	Login    string
	NotFound string
	// Home is the landing page of the session's role.
	Home string
}

// Input is everything Decide looks at.
type Input struct {
	Class route.Class
	// Path is the requested path including its query.
	Path string
	// Checking is true while the latest session check has not resolved.
	Checking     bool
	Session      session.Session
	Subscription subscription.State
	Link         LinkStatus
	Targets      Targets
}

// Decide combines one navigation's inputs into a Decision. The first matching
// row wins:
//
//  1. Public                                   -> Allow
//  2. SignedLinkEligible, link verified          -> Allow scoped to the subject
//     (Pending while verification runs)
//  3. SignedLinkEligible, otherwise              -> RedirectTo(not-found)
//  4. session check in flight                    -> Pending
//  5. unauthenticated                            -> RedirectTo(login), Return = path
//  6. RoleRestricted, role not allowed           -> RedirectTo(role home)
//  7. non-exempt, subscription expired           -> RedirectTo(login)
//  8. non-exempt, subscription not yet known     -> Pending
//  9. otherwise                                  -> Allow
//
// Decide is pure and never returns Allow for a non-public class without a
// verified link or an authenticated session.
func Decide(in Input) Decision {
	t := in.Targets.withDefaults()

	switch in.Class.Kind {
	case route.Public:
		return Decision{Kind: Allow, Reason: ReasonPublic}
	case route.SignedLinkEligible:
		if in.Link.Pending {
			return Decision{Kind: Pending, Reason: ReasonCheckPending}
		}
		if in.Link.Verified && in.Link.SubjectID != "" {
			return Decision{Kind: Allow, Reason: ReasonLinkGranted, Subject: in.Link.SubjectID}
		}
		return Decision{Kind: RedirectTo, Target: t.NotFound, Reason: ReasonLinkRejected}
	}

	if in.Checking {
		return Decision{Kind: Pending, Reason: ReasonCheckPending}
	}

	s := in.Session
	if !s.Authenticated || !s.Role.Valid() || s.UserID == "" {
		return Decision{Kind: RedirectTo, Target: t.Login, Return: in.Path, Reason: ReasonUnauthenticated}
	}

	if !in.Class.Allows(s.Role) {
		home := t.Home
		if home == "" {
			home = route.Root
		}
		return Decision{Kind: RedirectTo, Target: home, Reason: ReasonRoleMismatch}
	}

	sub := in.Subscription
	if !sub.Exempt {
		switch sub.Phase {
		case subscription.PhaseExpired:
			return Decision{Kind: RedirectTo, Target: t.Login, Reason: ReasonSubscriptionExpired}
		case subscription.PhaseKnown:
		default:
			return Decision{Kind: Pending, Reason: ReasonSubscriptionPending}
		}
	}

	return Decision{Kind: Allow, Reason: ReasonGranted}
}

func (t Targets) withDefaults() Targets {
	if t.Login == "" {
		t.Login = route.Login
	}
	if t.NotFound == "" {
		t.NotFound = route.NotFound
	}
	return t
}
