package goGuard

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/session"
	"github.com/MrEthical07/goGuard/subscription"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	testSecret      = "0123456789abcdef0123456789abcdef"
	testSecretOther = "fedcba9876543210fedcba9876543210"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

/* ---------- collaborators ---------- */

type stubIdentity struct {
	mu        sync.Mutex
	principal session.Principal
	err       error
	calls     atomic.Int64
}

func (s *stubIdentity) WhoAmI(context.Context) (session.Principal, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principal, s.err
}

func (s *stubIdentity) set(role, userID string) {
	s.mu.Lock()
	s.principal = session.Principal{Role: role, UserID: userID}
	s.err = nil
	s.mu.Unlock()
}

func (s *stubIdentity) fail(err error) {
	s.mu.Lock()
	s.principal = session.Principal{}
	s.err = err
	s.mu.Unlock()
}

// gatedIdentity parks every WhoAmI call until the test answers it.
type gatedIdentity struct {
	calls chan *gatedCall
}

type gatedCall struct {
	reply chan gatedReply
}

type gatedReply struct {
	principal session.Principal
	err       error
}

func newGatedIdentity() *gatedIdentity {
	return &gatedIdentity{calls: make(chan *gatedCall, 16)}
}

func (g *gatedIdentity) WhoAmI(ctx context.Context) (session.Principal, error) {
	c := &gatedCall{reply: make(chan gatedReply, 1)}
	select {
	case g.calls <- c:
	case <-ctx.Done():
		return session.Principal{}, ctx.Err()
	}
	select {
	case r := <-c.reply:
		return r.principal, r.err
	case <-ctx.Done():
		return session.Principal{}, ctx.Err()
	}
}

func (g *gatedIdentity) next(t *testing.T) *gatedCall {
	t.Helper()
	select {
	case c := <-g.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for whoAmI call")
		return nil
	}
}

func (c *gatedCall) answer(role, userID string) {
	c.reply <- gatedReply{principal: session.Principal{Role: role, UserID: userID}}
}

func (c *gatedCall) reject(err error) {
	c.reply <- gatedReply{err: err}
}

type stubSubscriptions struct {
	mu     sync.Mutex
	record subscription.Record
	err    error
	users  []string
	calls  atomic.Int64
}

func (s *stubSubscriptions) GetSubscription(_ context.Context, userID string) (subscription.Record, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, userID)
	return s.record, s.err
}

func (s *stubSubscriptions) set(rec subscription.Record, err error) {
	s.mu.Lock()
	s.record, s.err = rec, err
	s.mu.Unlock()
}

func (s *stubSubscriptions) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.users...)
}

type logoutCounter struct {
	calls atomic.Int64
	err   error
	after func()
}

func (l *logoutCounter) Logout(context.Context) error {
	l.calls.Add(1)
	if l.after != nil {
		l.after()
	}
	return l.err
}

/* ---------- clock ---------- */

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

type fakeTicker struct {
	clock   *fakeClock
	every   time.Duration
	next    time.Time
	ch      chan time.Time
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(d time.Duration) subscription.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{clock: c, every: d, next: c.now.Add(d), ch: make(chan time.Time, 1)}
	c.tickers = append(c.tickers, t)
	return t
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	t.stopped = true
	t.clock.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	var due []*fakeTicker
	for _, t := range c.tickers {
		if t.stopped || t.next.After(now) {
			continue
		}
		due = append(due, t)
		for !t.next.After(now) {
			t.next = t.next.Add(t.every)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		select {
		case t.ch <- now:
		default:
		}
	}
}

func (c *fakeClock) active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.tickers {
		if !t.stopped {
			n++
		}
	}
	return n
}

/* ---------- engine ---------- */

type testEnv struct {
	engine   *Engine
	identity *stubIdentity
	subs     *stubSubscriptions
	logouts  *logoutCounter
	clock    *fakeClock
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Link.Secrets = []string{testSecret}
	cfg.Metrics.Enabled = true
	cfg.Presenter.MinRedirectDisplay = 5 * time.Millisecond
	return cfg
}

func newTestEnv(t testing.TB, mutate func(*Config), opts ...func(*Builder)) *testEnv {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{
		identity: &stubIdentity{err: session.ErrUnauthenticated},
		subs:     &stubSubscriptions{},
		logouts:  &logoutCounter{},
		clock:    newFakeClock(),
	}
	b := New().
		WithConfig(cfg).
		WithIdentity(env.identity).
		WithSubscriptions(env.subs).
		WithLogout(env.logouts.Logout).
		WithClock(env.clock)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func (env *testEnv) activeUntil(d time.Duration) {
	exp := env.clock.Now().Add(d)
	env.subs.set(subscription.Record{Active: true, ExpiresAt: &exp}, nil)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

/* ---------- presenter ---------- */

type presenterEvent struct {
	kind      string
	state     PresenterState
	target    string
	grant     Grant
	remaining time.Duration
}

type recordingPresenter struct {
	events chan presenterEvent
}

func newRecordingPresenter() *recordingPresenter {
	return &recordingPresenter{events: make(chan presenterEvent, 256)}
}

func (p *recordingPresenter) Show(state PresenterState) {
	p.events <- presenterEvent{kind: "show", state: state}
}

func (p *recordingPresenter) Navigate(target string) {
	p.events <- presenterEvent{kind: "navigate", target: target}
}

func (p *recordingPresenter) Render(g Grant) {
	p.events <- presenterEvent{kind: "render", grant: g}
}

func (p *recordingPresenter) Countdown(remaining time.Duration) {
	p.events <- presenterEvent{kind: "countdown", remaining: remaining}
}

// expect reads events until match accepts one.
func (p *recordingPresenter) expect(t *testing.T, what string, match func(presenterEvent) bool) presenterEvent {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-p.events:
			if match(ev) {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", what)
			return presenterEvent{}
		}
	}
}

func (p *recordingPresenter) expectRender(t *testing.T, path string) Grant {
	t.Helper()
	ev := p.expect(t, "render "+path, func(ev presenterEvent) bool {
		return ev.kind == "render" && ev.grant.Path == path
	})
	return ev.grant
}

func (p *recordingPresenter) expectShow(t *testing.T, state PresenterState) {
	t.Helper()
	p.expect(t, "show "+state.String(), func(ev presenterEvent) bool {
		return ev.kind == "show" && ev.state == state
	})
}

func (p *recordingPresenter) expectNavigate(t *testing.T, target string) {
	t.Helper()
	p.expect(t, "navigate "+target, func(ev presenterEvent) bool {
		return ev.kind == "navigate" && ev.target == target
	})
}

// drain returns every event already delivered.
func (p *recordingPresenter) drain() []presenterEvent {
	var out []presenterEvent
	for {
		select {
		case ev := <-p.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}
