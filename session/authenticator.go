package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

var (
	// ErrUnauthenticated is returned by an Identity for the explicit
	// "not logged in" answer (HTTP 401).
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrMalformedPrincipal marks a 2xx answer that cannot be trusted.
	ErrMalformedPrincipal = errors.New("malformed principal")
	// ErrNoIdentity is reported when no Identity collaborator is configured.
	ErrNoIdentity = errors.New("identity collaborator not configured")
)

// Identity is the whoAmI collaborator.
type Identity interface {
	WhoAmI(ctx context.Context) (Principal, error)
}

// IdentityFunc adapts a function to Identity.
type IdentityFunc func(ctx context.Context) (Principal, error)

// WhoAmI implements Identity.
func (f IdentityFunc) WhoAmI(ctx context.Context) (Principal, error) {
	return f(ctx)
}

// Outcome classifies a check.
type Outcome uint8

const (
	// OutcomeFailure is a transient or malformed answer. Treated as unauthenticated.
	OutcomeFailure Outcome = iota
	// OutcomeUnauthenticated is the expected "not logged in" answer.
	OutcomeUnauthenticated
	// OutcomeAuthenticated carries a trusted role and user id.
	OutcomeAuthenticated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomeUnauthenticated:
		return "unauthenticated"
	default:
		return "failure"
	}
}

// Result is a Session plus the diagnostics of how it was produced.
type Result struct {
	Session Session
	Outcome Outcome
	Err     error
}

// Authenticator wraps an Identity and normalizes every answer into a Session.
type Authenticator struct {
	identity Identity
	timeout  time.Duration
	logger   *slog.Logger
}

// NewAuthenticator returns an Authenticator. timeout <= 0 disables the
// per-check deadline; a nil logger discards.
func NewAuthenticator(identity Identity, timeout time.Duration, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Authenticator{identity: identity, timeout: timeout, logger: logger}
}

// Check asks the identity collaborator who the visitor is. It never returns an
// authenticated session unless the collaborator positively confirmed one.
func (a *Authenticator) Check(ctx context.Context) Result {
	if a == nil || a.identity == nil {
		return failed(ErrNoIdentity)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	p, err := a.identity.WhoAmI(ctx)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			a.logger.DebugContext(ctx, "session check: unauthenticated")
			return Result{Session: Anonymous(), Outcome: OutcomeUnauthenticated}
		}
		a.logger.WarnContext(ctx, "session check failed", "error", err)
		return failed(err)
	}

	role, ok := ParseRole(p.Role)
	if !ok {
		err := fmt.Errorf("%w: role %q", ErrMalformedPrincipal, p.Role)
		a.logger.WarnContext(ctx, "session check failed", "error", err)
		return failed(err)
	}
	userID := strings.TrimSpace(p.UserID)
	if userID == "" {
		err := fmt.Errorf("%w: empty user id", ErrMalformedPrincipal)
		a.logger.WarnContext(ctx, "session check failed", "error", err)
		return failed(err)
	}

	return Result{
		Session: Session{Authenticated: true, Role: role, UserID: userID},
		Outcome: OutcomeAuthenticated,
	}
}

func failed(err error) Result {
	return Result{Session: Anonymous(), Outcome: OutcomeFailure, Err: err}
}
