package subscription

import (
	"context"
	"time"

	"github.com/MrEthical07/goGuard/session"
)

// Record is the subscription collaborator's answer.
type Record struct {
	Active    bool       `json:"active"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// Fetcher is the getSubscription collaborator.
type Fetcher interface {
	GetSubscription(ctx context.Context, userID string) (Record, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, userID string) (Record, error)

// GetSubscription implements Fetcher.
func (f FetcherFunc) GetSubscription(ctx context.Context, userID string) (Record, error) {
	return f(ctx, userID)
}

// Phase is the monitor's lifecycle position.
type Phase uint8

const (
	PhaseUnknown Phase = iota
	PhaseLoading
	PhaseKnown
	PhaseExpired
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseKnown:
		return "known"
	case PhaseExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// State is a snapshot of a monitor.
type State struct {
	Phase     Phase
	Active    bool
	ExpiresAt time.Time // zero when the record has no expiry
	Remaining time.Duration
	Exempt    bool
}

// Settled reports whether the state is final enough to decide on.
func (s State) Settled() bool {
	return s.Exempt || s.Phase == PhaseKnown || s.Phase == PhaseExpired
}

// Evaluate derives the state for rec at now without a monitor. A fetch error
// or an inactive record is Expired; so is an expiry at or before now.
func Evaluate(rec Record, err error, now time.Time) State {
	if err != nil || !rec.Active {
		return State{Phase: PhaseExpired}
	}
	st := State{Phase: PhaseKnown, Active: true}
	if rec.ExpiresAt != nil {
		st.ExpiresAt = *rec.ExpiresAt
		st.Remaining = st.ExpiresAt.Sub(now)
		if st.Remaining <= 0 {
			return State{Phase: PhaseExpired, ExpiresAt: st.ExpiresAt}
		}
	}
	return st
}

// Policy decides which roles are subject to expiry.
type Policy struct {
	exempt map[session.Role]struct{}
}

// NewPolicy returns a Policy exempting developer, student, and any extra roles.
func NewPolicy(extra ...session.Role) Policy {
	p := Policy{exempt: map[session.Role]struct{}{
		session.RoleDeveloper: {},
		session.RoleStudent:   {},
	}}
	for _, r := range extra {
		p.exempt[r] = struct{}{}
	}
	return p
}

// Exempt reports whether role never expires.
func (p Policy) Exempt(role session.Role) bool {
	if p.exempt == nil {
		return role == session.RoleDeveloper || role == session.RoleStudent
	}
	_, ok := p.exempt[role]
	return ok
}
