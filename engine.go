package goGuard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goGuard/internal/audit"
	"github.com/MrEthical07/goGuard/internal/rate"
	"github.com/MrEthical07/goGuard/route"
	"github.com/MrEthical07/goGuard/session"
	"github.com/MrEthical07/goGuard/signedlink"
	"github.com/MrEthical07/goGuard/subscription"
)

// LinkVerifier is the verifySignedLink collaborator. Both
// signedlink.Verifier and linktoken.Manager implement it.
type LinkVerifier interface {
	Verify(subjectID, signature string) bool
}

// Engine evaluates navigations. It is safe for concurrent use after Build.
type Engine struct {
	config      Config
	logger      *slog.Logger
	classifier  *route.Classifier
	auth        *session.Authenticator
	fetcher     subscription.Fetcher
	logout      subscription.LogoutFunc
	links       LinkVerifier
	revocations signedlink.Revocations
	limiter     *rate.Limiter
	latch       subscription.Latch
	policy      subscription.Policy
	clock       subscription.Clock
	audit       *audit.Dispatcher
	metrics     *Metrics
	closed      atomic.Bool
}

// Evaluation is the result of Engine.Evaluate.
type Evaluation struct {
	Decision     Decision
	Path         string
	Class        route.Class
	Session      session.Session
	Outcome      session.Outcome
	Subscription subscription.State
}

// Grant returns the Grant for an Allow evaluation.
func (ev Evaluation) Grant() Grant {
	g := Grant{
		Path:         ev.Path,
		Session:      ev.Session,
		Subject:      ev.Decision.Subject,
		Subscription: ev.Subscription,
		Reason:       ev.Decision.Reason,
	}
	if g.Scoped() {
		g.Session = session.Anonymous()
	}
	return g
}

// Evaluate runs one navigation to completion: classify rawURL, verify a signed
// link or check the session, load the subscription for non-exempt roles, and
// decide. Collaborator failures become denials; Evaluate never returns Pending.
// ctx may carry WithClientIP and WithRequestID values.
func (e *Engine) Evaluate(ctx context.Context, rawURL string) (Evaluation, error) {
	if e == nil || e.closed.Load() {
		return Evaluation{}, ErrEngineNotReady
	}
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	u, err := parseTarget(rawURL)
	if err != nil {
		return Evaluation{}, err
	}

	ev := Evaluation{
		Path:    requestPath(u),
		Class:   e.classifier.Classify(u.Path),
		Session: session.Anonymous(),
		Outcome: session.OutcomeUnauthenticated,
	}
	in := Input{Class: ev.Class, Path: ev.Path, Targets: e.targets(session.RoleNone)}

	switch ev.Class.Kind {
	case route.Public:
	case route.SignedLinkEligible:
		in.Link = e.verifyLink(ctx, u.Query())
	default:
		res := e.checkSession(ctx)
		ev.Session, ev.Outcome = res.Session, res.Outcome
		in.Session = res.Session
		in.Targets = e.targets(res.Session.Role)

		if res.Session.Authenticated && ev.Class.Allows(res.Session.Role) {
			ev.Subscription = e.loadSubscription(ctx, res.Session)
			in.Subscription = ev.Subscription
		}
	}

	ev.Decision = Decide(in)
	e.recordDecision(ctx, ev.Path, ev.Session, ev.Decision)
	e.metricObserve(MetricEvaluateLatency, time.Since(start))

	return ev, nil
}

// ExpireSession logs sess out after its subscription lapsed. sessionKey
// identifies the session lifetime (e.g. a hash of the session cookie); empty
// falls back to the WithSessionKey value of ctx, then to the user id. Concurrent and repeated calls for the same key
// invoke logout at most once per latch TTL. Logout failures are logged and
// swallowed. It reports whether this call invoked logout.
func (e *Engine) ExpireSession(ctx context.Context, sess session.Session, sessionKey string) bool {
	if e == nil || !sess.Authenticated || e.logout == nil {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}
	sessionKey = latchKey(ctx, sess, sessionKey)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.Subscription.LogoutTimeout)
	defer cancel()

	if !e.latch.Acquire(ctx, sessionKey) {
		return false
	}
	e.metricInc(MetricSubscriptionExpired)
	err := e.logout(ctx)
	e.recordLogout(ctx, sess, sessionKey, err)
	return true
}

// SessionKey derives an opaque latch key from a session token such as a cookie value.
func SessionKey(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return "sess:" + hex.EncodeToString(sum[:16])
}

func latchKey(ctx context.Context, sess session.Session, sessionKey string) string {
	if sessionKey == "" {
		sessionKey = sessionKeyFromContext(ctx)
	}
	if sessionKey == "" {
		sessionKey = "user:" + sess.UserID
	}
	return sessionKey
}

// Classifier returns the engine's route classifier.
func (e *Engine) Classifier() *route.Classifier {
	return e.classifier
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Close flushes the audit dispatcher. Navigators must be closed first.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditDroppedByType returns the dropped audit events per event type.
func (e *Engine) AuditDroppedByType() map[string]uint64 {
	if e == nil {
		return map[string]uint64{}
	}
	return e.audit.DroppedByType()
}

// MetricsSnapshot returns the current guard metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

func (e *Engine) targets(role session.Role) Targets {
	t := Targets{
		Login:    e.config.Routes.LoginPath,
		NotFound: e.config.Routes.NotFound,
	}
	if role.Valid() {
		t.Home = e.classifier.Home(role)
	}
	return t
}

func (e *Engine) checkSession(ctx context.Context) session.Result {
	res := e.auth.Check(ctx)
	switch res.Outcome {
	case session.OutcomeAuthenticated:
		e.metricInc(MetricSessionAuthenticated)
	case session.OutcomeUnauthenticated:
		e.metricInc(MetricSessionUnauthenticated)
	default:
		e.metricInc(MetricSessionCheckFailure)
	}
	return res
}

func (e *Engine) loadSubscription(ctx context.Context, sess session.Session) subscription.State {
	if e.policy.Exempt(sess.Role) {
		return subscription.State{Phase: subscription.PhaseKnown, Exempt: true}
	}

	fetcher := e.countingFetcher()
	ctx, cancel := context.WithTimeout(ctx, e.config.Subscription.FetchTimeout)
	defer cancel()

	rec, err := fetcher.GetSubscription(ctx, sess.UserID)
	if err != nil {
		e.logger.WarnContext(ctx, "subscription fetch failed", "user_id", sess.UserID, "error", err)
	}
	return subscription.Evaluate(rec, err, e.clock.Now())
}

// countingFetcher wraps the configured fetcher with failure metrics.
func (e *Engine) countingFetcher() subscription.Fetcher {
	return subscription.FetcherFunc(func(ctx context.Context, userID string) (subscription.Record, error) {
		if e.fetcher == nil {
			e.metricInc(MetricSubscriptionFetchFailure)
			return subscription.Record{}, subscription.ErrNoFetcher
		}
		rec, err := e.fetcher.GetSubscription(ctx, userID)
		if err != nil {
			e.metricInc(MetricSubscriptionFetchFailure)
		}
		return rec, err
	})
}

// verifyLink checks the signed-link query of one navigation. Every failure,
// including a revocation lookup error, is a rejection.
func (e *Engine) verifyLink(ctx context.Context, q url.Values) LinkStatus {
	link, ok := signedlink.ParseQuery(q)
	if !ok || e.links == nil {
		e.metricInc(MetricLinkRejected)
		return LinkStatus{SubjectID: link.SubjectID}
	}
	status := LinkStatus{SubjectID: link.SubjectID}

	ip := clientIPFromContext(ctx)
	if err := e.limiter.CheckLink(ctx, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricLinkRateLimited)
			e.emitAudit(ctx, auditEventLinkRateLimited, false, "", link.SubjectID, "", nil)
			return status
		}
		e.logger.WarnContext(ctx, "link rate limiter unavailable", "error", err)
	}

	if !e.links.Verify(link.SubjectID, link.Signature) {
		e.metricInc(MetricLinkRejected)
		if err := e.limiter.IncrementLink(ctx, ip); err != nil && !errors.Is(err, rate.ErrRateLimited) {
			e.logger.WarnContext(ctx, "link rate limiter unavailable", "error", err)
		}
		return status
	}

	if e.revocations != nil {
		revoked, err := e.revocations.IsRevoked(ctx, link.SubjectID)
		if err != nil {
			e.logger.WarnContext(ctx, "link revocation lookup failed", "subject", link.SubjectID, "error", err)
			e.metricInc(MetricLinkRejected)
			return status
		}
		if revoked {
			e.metricInc(MetricLinkRejected)
			return status
		}
	}

	e.metricInc(MetricLinkGranted)
	status.Verified = true
	return status
}

func (e *Engine) recordDecision(ctx context.Context, p string, sess session.Session, d Decision) {
	switch d.Kind {
	case Allow:
		e.metricInc(MetricDecisionAllow)
	case RedirectTo:
		e.metricInc(MetricDecisionRedirect)
	default:
		e.metricInc(MetricDecisionPending)
		return
	}
	e.emitAudit(ctx, auditEventAccessDecision, d.Kind == Allow, route.Normalize(p), d.Subject, string(d.Reason), func(ev *AuditEvent) {
		ev.UserID = sess.UserID
		if sess.Authenticated {
			ev.Role = sess.Role.String()
		}
		if d.Kind == RedirectTo {
			ev.Metadata = map[string]string{"target": d.Target}
		}
	})
}

func (e *Engine) recordLogout(ctx context.Context, sess session.Session, key string, err error) {
	e.metricInc(MetricLogout)
	if err != nil {
		e.metricInc(MetricLogoutFailure)
		e.logger.WarnContext(ctx, "logout failed", "user_id", sess.UserID, "error", err)
	}
	e.emitAudit(ctx, auditEventSessionLogout, err == nil, "", "", "", func(ev *AuditEvent) {
		ev.UserID = sess.UserID
		ev.Role = sess.Role.String()
		ev.SessionKey = key
		if err != nil {
			ev.Error = err.Error()
		}
	})
}

func parseTarget(rawURL string) (*url.URL, error) {
	if rawURL == "" {
		rawURL = route.Root
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Join(ErrInvalidURL, err)
	}
	if u.Path == "" {
		u.Path = route.Root
	}
	return u, nil
}

// requestPath returns the cleaned path plus the original query.
func requestPath(u *url.URL) string {
	p := route.Normalize(u.Path)
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return p
}
