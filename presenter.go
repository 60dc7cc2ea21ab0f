package goGuard

import (
	"time"

	"github.com/MrEthical07/goGuard/session"
	"github.com/MrEthical07/goGuard/subscription"
)

// PresenterState is one of the three transition screens.
type PresenterState uint8

const (
	StateLoading PresenterState = iota
	StateAccessDenied
	StateRedirecting
)

func (s PresenterState) String() string {
	switch s {
	case StateAccessDenied:
		return "access_denied"
	case StateRedirecting:
		return "redirecting"
	default:
		return "loading"
	}
}

// Grant describes what an allowed page may show.
type Grant struct {
	Path    string
	Session session.Session
	// Subject is set for link-granted pages; only that record may be shown.
	Subject      string
	Subscription subscription.State
	Reason       Reason
}

// Scoped reports whether the grant comes from a signed link rather than a session.
func (g Grant) Scoped() bool {
	return g.Reason == ReasonLinkGranted
}

// Presenter is the UI side of a Navigator. Methods are called from the
// navigator's event loop, one at a time; they must return promptly and must
// not call back into the Navigator synchronously.
type Presenter interface {
	// Show displays a transition screen.
	Show(state PresenterState)
	// Navigate changes the visible location. The Navigator evaluates the new
	// target itself afterwards.
	Navigate(target string)
	// Render displays the granted page.
	Render(g Grant)
}

// CountdownPresenter is implemented by presenters that display the remaining
// subscription time.
type CountdownPresenter interface {
	Countdown(remaining time.Duration)
}

// PresenterFuncs adapts plain functions to Presenter. Nil fields are no-ops.
type PresenterFuncs struct {
	ShowFunc     func(PresenterState)
	NavigateFunc func(string)
	RenderFunc   func(Grant)
}

func (p PresenterFuncs) Show(state PresenterState) {
	if p.ShowFunc != nil {
		p.ShowFunc(state)
	}
}

func (p PresenterFuncs) Navigate(target string) {
	if p.NavigateFunc != nil {
		p.NavigateFunc(target)
	}
}

func (p PresenterFuncs) Render(g Grant) {
	if p.RenderFunc != nil {
		p.RenderFunc(g)
	}
}
