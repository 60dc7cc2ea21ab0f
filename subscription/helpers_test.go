package subscription

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/session"
)

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
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
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

// Advance moves time forward and fires every due ticker once.
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

type harness struct {
	clock   *fakeClock
	monitor *Monitor
	states  chan State
	logouts atomic.Int64

	mu     sync.Mutex
	record Record
	err    error
}

func newHarness(t *testing.T, role session.Role, rec Record, mutate func(*Options)) *harness {
	t.Helper()

	h := &harness{
		clock:  newFakeClock(),
		states: make(chan State, 256),
		record: rec,
	}
	opts := Options{
		Key:     "sess-1",
		Session: session.Session{Authenticated: true, Role: role, UserID: "u1"},
		Policy:  NewPolicy(),
		Fetcher: FetcherFunc(func(context.Context, string) (Record, error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			return h.record, h.err
		}),
		Logout: func(context.Context) error {
			h.logouts.Add(1)
			return nil
		},
		Clock: h.clock,
	}
	if mutate != nil {
		mutate(&opts)
	}

	var m *Monitor
	opts.OnChange = func(st State) {
		select {
		case h.states <- st:
		case <-m.Done():
		}
	}
	m = NewMonitor(Config{TickInterval: time.Second, PollInterval: time.Minute}, opts)
	h.monitor = m
	t.Cleanup(m.Stop)
	return h
}

func (h *harness) setRecord(rec Record, err error) {
	h.mu.Lock()
	h.record, h.err = rec, err
	h.mu.Unlock()
}

func (h *harness) waitPhase(t *testing.T, phase Phase) State {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case st := <-h.states:
			if st.Phase == phase {
				return st
			}
		case <-timeout:
			t.Fatalf("timed out waiting for phase %s (current %s)", phase, h.monitor.State().Phase)
		}
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
