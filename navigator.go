package goGuard

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/MrEthical07/goGuard/route"
	"github.com/MrEthical07/goGuard/session"
	"github.com/MrEthical07/goGuard/subscription"
	"github.com/google/uuid"
)

// Navigator guards one visitor's navigations. All guard state is owned by a
// single event loop goroutine; collaborator calls run on helper goroutines and
// post their results back, so a superseded result is recognized and dropped.
type Navigator struct {
	engine    *Engine
	presenter Presenter
	countdown CountdownPresenter

	ctx    context.Context
	cancel context.CancelFunc

	events    chan navEvent
	closed    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	checks session.Sequencer
	hop    ReturnHop

	mu   sync.Mutex
	view navView

	// owned by the event loop
	st navState
}

type navView struct {
	decision     Decision
	session      session.Session
	subscription subscription.State
}

type navState struct {
	nav      uint64
	path     string
	class    route.Class
	link     LinkStatus
	checking bool

	sess       session.Session
	monitor    *subscription.Monitor
	monitorKey string
	sub        subscription.State

	// boundUser owns the session key carried by the navigator context.
	boundUser string
	// ended is the last identity logged out; loggedOut holds until a
	// different identity is adopted.
	ended     session.Session
	endedKey  string
	loggedOut bool

	last      Decision
	presented bool

	redirect   *time.Timer
	redirectID uint64
}

type navEvent interface{}

type navigateEvent struct {
	u *url.URL
}

type checkEvent struct {
	ticket session.Ticket
	res    session.Result
}

type linkEvent struct {
	nav    uint64
	status LinkStatus
}

type subscriptionEvent struct {
	monitor *subscription.Monitor
	state   subscription.State
}

type redirectEvent struct {
	id     uint64
	target string
}

type logoutRequest struct {
	ctx  context.Context
	done chan struct{}
}

// NewNavigator starts a Navigator for one visitor. ctx is the parent of every
// collaborator call, so request-scoped values such as forwarded cookies reach
// them; cancelling it aborts in-flight calls but does not close the Navigator.
func (e *Engine) NewNavigator(ctx context.Context, p Presenter) (*Navigator, error) {
	if e == nil || e.closed.Load() {
		return nil, ErrEngineNotReady
	}
	if p == nil {
		return nil, ErrNoPresenter
	}
	if ctx == nil {
		ctx = context.Background()
	}

	nctx, cancel := context.WithCancel(ctx)
	n := &Navigator{
		engine:    e,
		presenter: p,
		ctx:       nctx,
		cancel:    cancel,
		events:    make(chan navEvent, 16),
		closed:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	if cp, ok := p.(CountdownPresenter); ok {
		n.countdown = cp
	}
	n.st.sess = session.Anonymous()
	n.view.session = n.st.sess

	go n.run()
	return n, nil
}

// Navigate evaluates rawURL. The outcome is delivered to the Presenter; a
// newer call supersedes this one, including any redirect it scheduled.
func (n *Navigator) Navigate(rawURL string) error {
	u, err := parseTarget(rawURL)
	if err != nil {
		return err
	}
	return n.post(navigateEvent{u: u})
}

// Logout ends the current session through the same once-per-session guard the
// subscription expiry uses, then re-evaluates the current page. Logout
// failures are swallowed.
func (n *Navigator) Logout(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	req := logoutRequest{ctx: ctx, done: make(chan struct{})}
	if err := n.post(req); err != nil {
		return err
	}
	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-n.done:
		return ErrNavigatorClosed
	}
}

// Decision returns the most recently presented decision.
func (n *Navigator) Decision() Decision {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.view.decision
}

// Session returns the session the current decision was made for.
func (n *Navigator) Session() session.Session {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.view.session
}

// Subscription returns the latest subscription state of the current session.
func (n *Navigator) Subscription() subscription.State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.view.subscription
}

// ReturnPath yields the page remembered on the last login redirect, once.
func (n *Navigator) ReturnPath() (string, bool) {
	return n.hop.Consume()
}

// Close stops the event loop, cancels scheduled redirects, tears down the
// subscription monitor and waits for every helper goroutine. No Presenter
// method is called after Close returns.
func (n *Navigator) Close() {
	n.closeOnce.Do(func() {
		close(n.closed)
		<-n.done
		n.cancel()
		n.wg.Wait()
	})
}

func (n *Navigator) post(ev navEvent) error {
	select {
	case <-n.closed:
		return ErrNavigatorClosed
	default:
	}
	select {
	case n.events <- ev:
		return nil
	case <-n.closed:
		return ErrNavigatorClosed
	}
}

func (n *Navigator) spawn(fn func()) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		fn()
	}()
}

func (n *Navigator) run() {
	defer close(n.done)

	for {
		select {
		case <-n.closed:
			n.shutdown()
			return
		default:
		}

		select {
		case <-n.closed:
			n.shutdown()
			return
		case ev := <-n.events:
			n.handle(ev)
		}
	}
}

func (n *Navigator) handle(ev navEvent) {
	switch ev := ev.(type) {
	case navigateEvent:
		n.onNavigate(ev.u)
	case checkEvent:
		n.onCheck(ev)
	case linkEvent:
		n.onLink(ev)
	case subscriptionEvent:
		n.onSubscription(ev)
	case redirectEvent:
		n.onRedirect(ev)
	case logoutRequest:
		n.onLogout(ev)
	}
}

func (n *Navigator) onNavigate(u *url.URL) {
	s := &n.st
	e := n.engine

	n.cancelRedirect()
	s.nav++
	s.path = requestPath(u)
	s.class = e.classifier.Classify(u.Path)
	s.link = LinkStatus{}
	s.presented = false

	if s.class.Kind == route.SignedLinkEligible {
		s.link = LinkStatus{Pending: true}
		nav, q := s.nav, u.Query()
		n.spawn(func() {
			_ = n.post(linkEvent{nav: nav, status: e.verifyLink(n.ctx, q)})
		})
	}

	ticket := n.checks.Begin()
	s.checking = true
	n.spawn(func() {
		_ = n.post(checkEvent{ticket: ticket, res: e.checkSession(n.ctx)})
	})

	n.update()
}

func (n *Navigator) onCheck(ev checkEvent) {
	if !n.checks.Current(ev.ticket) {
		n.engine.metricInc(MetricStaleResultDropped)
		return
	}
	n.st.checking = false
	n.adoptSession(ev.res.Session)
	n.update()
}

func (n *Navigator) onLink(ev linkEvent) {
	if ev.nav != n.st.nav {
		n.engine.metricInc(MetricStaleResultDropped)
		return
	}
	n.st.link = ev.status
	n.update()
}

func (n *Navigator) onSubscription(ev subscriptionEvent) {
	s := &n.st
	if ev.monitor != s.monitor {
		return
	}
	prev := s.sub.Phase
	s.sub = ev.state

	if ev.state.Phase == subscription.PhaseExpired && prev != subscription.PhaseExpired {
		n.engine.metricInc(MetricSubscriptionExpired)
		n.engine.emitAudit(n.ctx, auditEventSubscriptionExpired, false, s.path, "", "", func(a *AuditEvent) {
			a.UserID = s.sess.UserID
			a.Role = s.sess.Role.String()
			a.SessionKey = s.monitorKey
		})
	}
	if n.countdown != nil && ev.state.Phase == subscription.PhaseKnown && !ev.state.Exempt && !ev.state.ExpiresAt.IsZero() {
		n.countdown.Countdown(ev.state.Remaining)
	}

	n.update()
}

func (n *Navigator) onRedirect(ev redirectEvent) {
	s := &n.st
	if s.redirect == nil || ev.id != s.redirectID {
		return
	}
	s.redirect = nil
	n.presenter.Navigate(ev.target)

	u, err := parseTarget(ev.target)
	if err != nil {
		return
	}
	n.onNavigate(u)
}

func (n *Navigator) onLogout(req logoutRequest) {
	s := &n.st
	e := n.engine
	m, sess, key := s.monitor, s.sess, s.monitorKey
	if m == nil {
		key = s.endedKey
	}
	first := !s.loggedOut
	s.loggedOut = true
	if sess.Authenticated {
		s.ended, s.endedKey = sess, key
	}

	n.checks.Invalidate()
	s.checking = false
	n.adoptSession(session.Anonymous())

	switch {
	case m != nil:
		n.spawn(func() {
			m.TriggerLogout(req.ctx)
			close(req.done)
		})
	case first && e.logout != nil:
		if key == "" {
			key = sessionKeyFromContext(n.ctx)
		}
		ctx := n.ctx
		n.spawn(func() {
			defer close(req.done)
			lctx, cancel := context.WithTimeout(context.WithoutCancel(req.ctx), e.config.Subscription.LogoutTimeout)
			defer cancel()
			if key != "" && !e.latch.Acquire(lctx, key) {
				return
			}
			err := e.logout(lctx)
			e.recordLogout(ctx, sess, key, err)
		})
	default:
		close(req.done)
	}

	n.update()
}

// adoptSession replaces the current session. A different identity tears the
// old monitor down and starts a fresh one. Monitors of the same session key
// share the engine latch, so a session is logged out once however many
// monitors it outlives.
func (n *Navigator) adoptSession(sess session.Session) {
	s := &n.st
	if sameSession(s.sess, sess) {
		return
	}

	n.teardownMonitor()
	s.sess = sess
	s.sub = subscription.State{}
	if !sess.Authenticated {
		return
	}
	if s.ended.UserID != sess.UserID {
		s.ended, s.endedKey, s.loggedOut = session.Anonymous(), "", false
	}

	e := n.engine
	key := n.sessionKey(sess)
	var m *subscription.Monitor
	m = subscription.NewMonitor(e.monitorConfig(), subscription.Options{
		Context: n.ctx,
		Key:     key,
		Session: sess,
		Policy:  e.policy,
		Fetcher: e.countingFetcher(),
		Logout: func(ctx context.Context) error {
			if e.logout == nil {
				return nil
			}
			return e.logout(ctx)
		},
		Latch:  e.latch,
		Clock:  e.clock,
		Logger: e.logger.With("monitor_id", uuid.NewString(), "session_key", key),
		OnChange: func(st subscription.State) {
			select {
			case n.events <- subscriptionEvent{monitor: m, state: st}:
			case <-m.Done():
			case <-n.closed:
			}
		},
		OnLogout: func(err error) {
			e.recordLogout(n.ctx, sess, key, err)
		},
	})

	s.monitor = m
	s.monitorKey = key
	s.sub = m.State()
	n.spawn(m.Start)
}

// sessionKey returns the latch key of sess. The context session key belongs
// to the first identity adopted; later identities fall back to their user id.
func (n *Navigator) sessionKey(sess session.Session) string {
	s := &n.st
	if s.boundUser == "" {
		s.boundUser = sess.UserID
	}
	if s.boundUser != sess.UserID {
		return latchKey(context.Background(), sess, "")
	}
	return latchKey(n.ctx, sess, "")
}

func (n *Navigator) teardownMonitor() {
	s := &n.st
	if s.monitor == nil {
		return
	}
	m := s.monitor
	s.monitor = nil
	s.monitorKey = ""
	n.spawn(m.Stop)
}

func (n *Navigator) update() {
	s := &n.st
	if s.nav == 0 {
		return
	}

	d := Decide(Input{
		Class:        s.class,
		Path:         s.path,
		Checking:     s.checking,
		Session:      s.sess,
		Subscription: s.sub,
		Link:         s.link,
		Targets:      n.engine.targets(s.sess.Role),
	})

	n.mu.Lock()
	n.view = navView{decision: d, session: s.sess, subscription: s.sub}
	n.mu.Unlock()

	if s.presented && d == s.last {
		return
	}
	s.last = d
	s.presented = true

	n.engine.recordDecision(n.ctx, s.path, s.sess, d)
	n.present(d)
}

func (n *Navigator) present(d Decision) {
	s := &n.st
	n.cancelRedirect()

	switch d.Kind {
	case Pending:
		n.presenter.Show(StateLoading)
	case Allow:
		g := Grant{
			Path:         s.path,
			Session:      s.sess,
			Subject:      d.Subject,
			Subscription: s.sub,
			Reason:       d.Reason,
		}
		if g.Scoped() {
			g.Session = session.Anonymous()
		}
		n.presenter.Render(g)
	case RedirectTo:
		if d.Reason == ReasonUnauthenticated {
			n.hop.Remember(d.Return)
		}
		state := StateRedirecting
		if d.Reason.Denied() {
			state = StateAccessDenied
		}
		n.presenter.Show(state)
		n.scheduleRedirect(d.Target)
	}
}

func (n *Navigator) scheduleRedirect(target string) {
	s := &n.st
	s.redirectID++
	id := s.redirectID
	s.redirect = time.AfterFunc(n.engine.config.Presenter.MinRedirectDisplay, func() {
		_ = n.post(redirectEvent{id: id, target: target})
	})
}

func (n *Navigator) cancelRedirect() {
	s := &n.st
	if s.redirect == nil {
		return
	}
	s.redirect.Stop()
	s.redirect = nil
	s.redirectID++
	n.engine.metricInc(MetricRedirectCancelled)
}

func (n *Navigator) shutdown() {
	s := &n.st
	if s.redirect != nil {
		s.redirect.Stop()
		s.redirect = nil
	}
	n.checks.Invalidate()
	n.teardownMonitor()
}

func (e *Engine) monitorConfig() subscription.Config {
	return subscription.Config{
		TickInterval:  e.config.Subscription.TickInterval,
		PollInterval:  e.config.Subscription.PollInterval,
		FetchTimeout:  e.config.Subscription.FetchTimeout,
		LogoutTimeout: e.config.Subscription.LogoutTimeout,
	}
}

func sameSession(a, b session.Session) bool {
	return a.Authenticated == b.Authenticated && a.Role == b.Role && a.UserID == b.UserID
}
