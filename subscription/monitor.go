package subscription

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goGuard/session"
)

// ErrNoFetcher is reported when a monitor has no Fetcher.
var ErrNoFetcher = errors.New("subscription fetcher not configured")

// Config tunes a Monitor.
type Config struct {
	TickInterval  time.Duration
	PollInterval  time.Duration
	FetchTimeout  time.Duration
	LogoutTimeout time.Duration
}

// DefaultConfig returns a one-second countdown and five-minute re-poll.
func DefaultConfig() Config {
	return Config{
		TickInterval:  time.Second,
		PollInterval:  5 * time.Minute,
		FetchTimeout:  5 * time.Second,
		LogoutTimeout: 5 * time.Second,
	}
}

// LogoutFunc is the logout collaborator.
type LogoutFunc func(ctx context.Context) error

// Options are the per-session collaborators of a Monitor.
type Options struct {
	// Context is the parent of every collaborator call; its values reach the
	// Fetcher and Logout. Defaults to context.Background.
	Context context.Context
	// Key identifies the session lifetime for the shared latch.
	Key     string
	Session session.Session
	Policy  Policy
	Fetcher Fetcher
	Logout  LogoutFunc
	// Latch is consulted after the monitor's own flag; nil means local only.
	Latch  Latch
	Clock  Clock
	Logger *slog.Logger
	// OnChange receives every state change. It must not block indefinitely and
	// must not call Stop.
	OnChange func(State)
	// OnLogout receives the result of the logout call.
	OnLogout func(error)
}

// Monitor is the subscription state machine of one session.
type Monitor struct {
	cfg  Config
	opts Options

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup

	loggedOut atomic.Bool

	mu      sync.Mutex
	state   State
	started bool
	stopped bool
	tasks   []*Handle
}

// NewMonitor returns a Monitor in PhaseUnknown. Call Start to begin loading.
func NewMonitor(cfg Config, opts Options) *Monitor {
	def := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if cfg.LogoutTimeout <= 0 {
		cfg.LogoutTimeout = def.LogoutTimeout
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	parent := opts.Context
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Monitor{
		cfg:    cfg,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  State{Phase: PhaseUnknown, Exempt: opts.Policy.Exempt(opts.Session.Role)},
	}
}

// Key returns the session key the monitor was created for.
func (m *Monitor) Key() string {
	return m.opts.Key
}

// State returns the current snapshot.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Done is closed when Stop begins. OnChange implementations select on it so a
// pending notification never blocks teardown.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// Start moves to Loading and fetches the record in the background. Calling
// Start more than once, or after Stop, has no effect.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.started || m.stopped {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.state.Phase = PhaseLoading
	st := m.state
	m.wg.Add(1)
	m.mu.Unlock()

	m.notify(st)

	go func() {
		defer m.wg.Done()
		rec, err := m.fetch()
		m.applyInitial(rec, err)
	}()
}

// TriggerLogout ends the session on request. It shares the once-per-session
// guard with the expiry path; it reports whether this call invoked logout.
func (m *Monitor) TriggerLogout(ctx context.Context) bool {
	m.cancelTasks()
	m.mu.Lock()
	if !m.state.Exempt && m.state.Phase != PhaseExpired {
		m.state.Phase = PhaseExpired
	}
	m.mu.Unlock()
	return m.logoutOnce(ctx)
}

// Stop cancels both periodic tasks and any in-flight fetch, then waits for
// every monitor goroutine to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	tasks := m.tasks
	m.tasks = nil
	m.mu.Unlock()

	close(m.done)
	m.cancel()
	for _, h := range tasks {
		h.Stop()
	}
	m.wg.Wait()
}

func (m *Monitor) applyInitial(rec Record, err error) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	if m.state.Exempt {
		if err != nil {
			m.opts.Logger.Warn("subscription load failed for exempt role", "user_id", m.opts.Session.UserID, "error", err)
		}
		m.state = exemptState(rec, err, m.opts.Clock.Now())
		st := m.state
		m.mu.Unlock()
		m.notify(st)
		return
	}
	m.mu.Unlock()

	if !m.apply(rec, err) {
		return
	}

	m.mu.Lock()
	if !m.stopped && m.state.Phase == PhaseKnown {
		m.tasks = append(m.tasks,
			Every(m.opts.Clock, m.cfg.TickInterval, m.tick),
			Every(m.opts.Clock, m.cfg.PollInterval, m.poll),
		)
	}
	m.mu.Unlock()
}

// apply folds a fetched record into the state. It reports whether the
// monitor is still Known afterwards.
func (m *Monitor) apply(rec Record, err error) bool {
	if err != nil {
		m.opts.Logger.Warn("subscription fetch failed", "user_id", m.opts.Session.UserID, "error", err)
		m.expire("fetch_failed")
		return false
	}
	if !rec.Active {
		m.expire("inactive")
		return false
	}

	now := m.opts.Clock.Now()
	m.mu.Lock()
	if m.stopped || m.state.Phase == PhaseExpired {
		m.mu.Unlock()
		return false
	}
	m.state = State{Phase: PhaseKnown, Active: true}
	if rec.ExpiresAt != nil {
		m.state.ExpiresAt = *rec.ExpiresAt
		m.state.Remaining = rec.ExpiresAt.Sub(now)
	}
	st := m.state
	m.mu.Unlock()

	m.notify(st)
	return true
}

func (m *Monitor) tick(now time.Time) {
	m.mu.Lock()
	if m.stopped || m.state.Phase != PhaseKnown {
		m.mu.Unlock()
		return
	}
	if m.state.ExpiresAt.IsZero() {
		m.mu.Unlock()
		return
	}
	m.state.Remaining = m.state.ExpiresAt.Sub(m.opts.Clock.Now())
	st := m.state
	m.mu.Unlock()

	if st.Remaining <= 0 {
		m.expire("countdown")
		return
	}
	m.notify(st)
}

func (m *Monitor) poll(time.Time) {
	rec, err := m.fetch()
	m.apply(rec, err)
}

func (m *Monitor) expire(reason string) {
	m.mu.Lock()
	if m.stopped || m.state.Phase == PhaseExpired {
		m.mu.Unlock()
		return
	}
	m.state.Phase = PhaseExpired
	m.state.Active = false
	m.state.Remaining = 0
	m.mu.Unlock()

	m.cancelTasks()
	m.opts.Logger.Info("subscription expired", "user_id", m.opts.Session.UserID, "reason", reason)
	m.logoutOnce(m.ctx)

	m.notify(m.State())
}

func (m *Monitor) logoutOnce(ctx context.Context) bool {
	if !m.loggedOut.CompareAndSwap(false, true) {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.LogoutTimeout)
	defer cancel()

	if m.opts.Latch != nil && !m.opts.Latch.Acquire(ctx, m.opts.Key) {
		return false
	}
	if m.opts.Logout == nil {
		return true
	}

	err := m.opts.Logout(ctx)
	if err != nil {
		m.opts.Logger.Warn("logout failed", "user_id", m.opts.Session.UserID, "error", err)
	}
	if m.opts.OnLogout != nil {
		m.opts.OnLogout(err)
	}
	return true
}

func (m *Monitor) cancelTasks() {
	m.mu.Lock()
	tasks := m.tasks
	m.mu.Unlock()
	for _, h := range tasks {
		h.Cancel()
	}
}

func (m *Monitor) fetch() (Record, error) {
	if m.opts.Fetcher == nil {
		return Record{}, ErrNoFetcher
	}
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.FetchTimeout)
	defer cancel()
	return m.opts.Fetcher.GetSubscription(ctx, m.opts.Session.UserID)
}

func (m *Monitor) notify(st State) {
	m.mu.Lock()
	stopped := m.stopped
	m.mu.Unlock()
	if stopped || m.opts.OnChange == nil {
		return
	}
	m.opts.OnChange(st)
}

func exemptState(rec Record, err error, now time.Time) State {
	st := State{Phase: PhaseKnown, Exempt: true}
	if err != nil {
		return st
	}
	st.Active = rec.Active
	if rec.ExpiresAt != nil {
		st.ExpiresAt = *rec.ExpiresAt
		st.Remaining = rec.ExpiresAt.Sub(now)
	}
	return st
}
