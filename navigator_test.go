package goGuard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/route"
	"github.com/MrEthical07/goGuard/session"
	"github.com/MrEthical07/goGuard/subscription"
)

func newTestNavigator(t *testing.T, env *testEnv) (*Navigator, *recordingPresenter) {
	t.Helper()
	p := newRecordingPresenter()
	n, err := env.engine.NewNavigator(context.Background(), p)
	if err != nil {
		t.Fatalf("NewNavigator failed: %v", err)
	}
	t.Cleanup(n.Close)
	return n, p
}

func TestNewNavigatorRequiresPresenter(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.engine.NewNavigator(context.Background(), nil); !errors.Is(err, ErrNoPresenter) {
		t.Fatalf("expected ErrNoPresenter, got %v", err)
	}
}

func TestNavigatorPublicPageDoesNotWaitForSession(t *testing.T) {
	gate := newGatedIdentity()
	env := newTestEnv(t, nil, func(b *Builder) { b.WithIdentity(gate) })
	env.activeUntil(time.Hour)
	n, p := newTestNavigator(t, env)

	if err := n.Navigate("/"); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	g := p.expectRender(t, "/")
	if g.Reason != ReasonPublic {
		t.Fatalf("unexpected grant %+v", g)
	}

	// the check still runs; answering it changes nothing for a public page
	gate.next(t).answer("admin", "a1")
	waitFor(t, "session adopted", func() bool { return n.Session().Authenticated })
	for _, ev := range p.drain() {
		if ev.kind == "show" || ev.kind == "navigate" {
			t.Fatalf("unexpected presenter event %+v", ev)
		}
	}
}

func TestNavigatorLoadingThenRender(t *testing.T) {
	env := newTestEnv(t, nil)
	env.identity.set("admin", "a1")
	env.activeUntil(time.Hour)
	n, p := newTestNavigator(t, env)

	if err := n.Navigate("/admin/users"); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	p.expectShow(t, StateLoading)
	g := p.expectRender(t, "/admin/users")
	if g.Session.UserID != "a1" || g.Scoped() {
		t.Fatalf("unexpected grant %+v", g)
	}
	if g.Subscription.Phase != subscription.PhaseKnown {
		t.Fatalf("expected known subscription in grant, got %s", g.Subscription.Phase)
	}
	if d := n.Decision(); d.Kind != Allow {
		t.Fatalf("Decision() = %+v", d)
	}
}

func TestNavigatorDropsStaleSessionCheck(t *testing.T) {
	gate := newGatedIdentity()
	env := newTestEnv(t, nil, func(b *Builder) { b.WithIdentity(gate) })
	env.activeUntil(time.Hour)
	n, p := newTestNavigator(t, env)

	if err := n.Navigate("/admin"); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	first := gate.next(t)
	if err := n.Navigate("/admin/users"); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	second := gate.next(t)

	second.answer("admin", "a1")
	p.expectRender(t, "/admin/users")

	// the slower, older answer must not log the visitor out
	first.reject(session.ErrUnauthenticated)
	waitFor(t, "stale result dropped", func() bool {
		return env.engine.MetricsSnapshot().Counters[MetricStaleResultDropped] == 1
	})

	for _, ev := range p.drain() {
		if ev.kind == "navigate" || (ev.kind == "show" && ev.state != StateLoading) {
			t.Fatalf("stale result leaked into presenter: %+v", ev)
		}
	}
	if d := n.Decision(); d.Kind != Allow {
		t.Fatalf("decision overwritten by stale check: %+v", d)
	}
}

func TestNavigatorRedirectFollowsAfterDisplay(t *testing.T) {
	env := newTestEnv(t, nil)
	n, p := newTestNavigator(t, env)

	if err := n.Navigate("/admin/reports?range=7d"); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	p.expectShow(t, StateRedirecting)
	p.expectNavigate(t, route.Login)
	p.expectRender(t, route.Login)

	ret, ok := n.ReturnPath()
	if !ok || ret != "/admin/reports?range=7d" {
		t.Fatalf("ReturnPath() = %q, %v", ret, ok)
	}
	if _, ok := n.ReturnPath(); ok {
		t.Fatal("return path must be consumed once")
	}
}

func TestNavigatorNewNavigationCancelsRedirect(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.Presenter.MinRedirectDisplay = time.Hour
	})
	n, p := newTestNavigator(t, env)

	if err := n.Navigate("/admin"); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	p.expectShow(t, StateRedirecting)

	if err := n.Navigate("/contact"); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	p.expectRender(t, "/contact")

	if got := env.engine.MetricsSnapshot().Counters[MetricRedirectCancelled]; got != 1 {
		t.Fatalf("expected one cancelled redirect, got %d", got)
	}
	for _, ev := range p.drain() {
		if ev.kind == "navigate" {
			t.Fatalf("cancelled redirect navigated: %+v", ev)
		}
	}
}

func TestNavigatorRoleMismatchShowsAccessDenied(t *testing.T) {
	env := newTestEnv(t, nil)
	env.identity.set("student", "s1")
	n, p := newTestNavigator(t, env)

	if err := n.Navigate("/admin"); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	p.expectShow(t, StateAccessDenied)
	p.expectNavigate(t, route.StudentHome)
	p.expectRender(t, route.StudentHome)

	if _, ok := n.ReturnPath(); ok {
		t.Fatal("role mismatch must not remember a return path")
	}
}

func TestNavigatorSignedLink(t *testing.T) {
	env := newTestEnv(t, nil)
	env.identity.set("admin", "a1")
	env.activeUntil(time.Hour)
	n, p := newTestNavigator(t, env)
	link := signedRecordURL(t, env.engine.Config().Link, "rec-9")

	if err := n.Navigate(link); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	ev := p.expect(t, "scoped render", func(ev presenterEvent) bool { return ev.kind == "render" })
	if !ev.grant.Scoped() || ev.grant.Subject != "rec-9" || ev.grant.Session.Authenticated {
		t.Fatalf("unexpected grant %+v", ev.grant)
	}

	if err := n.Navigate(route.SignedRecord + "?id=rec-9&sig=deadbeef"); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	p.expectShow(t, StateAccessDenied)
	p.expectNavigate(t, route.NotFound)
}

func TestNavigatorCountdownExpiry(t *testing.T) {
	env := newTestEnv(t, nil)
	env.identity.set("admin", "a1")
	env.activeUntil(3 * time.Second)
	env.logouts.after = func() { env.identity.fail(session.ErrUnauthenticated) }
	n, p := newTestNavigator(t, env)

	if err := n.Navigate("/admin"); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	p.expectRender(t, "/admin")
	waitFor(t, "countdown tickers", func() bool { return env.clock.active() == 2 })

	for _, want := range []time.Duration{2 * time.Second, time.Second} {
		env.clock.Advance(time.Second)
		ev := p.expect(t, "countdown", func(ev presenterEvent) bool {
			return ev.kind == "countdown" && ev.remaining == want
		})
		if ev.remaining != want {
			t.Fatalf("countdown = %s, want %s", ev.remaining, want)
		}
	}

	env.clock.Advance(time.Second)
	p.expectShow(t, StateRedirecting)
	p.expectNavigate(t, route.Login)
	p.expectRender(t, route.Login)

	if got := env.logouts.calls.Load(); got != 1 {
		t.Fatalf("expected one logout, got %d", got)
	}
	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricSubscriptionExpired] != 1 || snap.Counters[MetricLogout] != 1 {
		t.Fatalf("unexpected counters %+v", snap.Counters)
	}
}

func TestNavigatorLogoutRacesExpiry(t *testing.T) {
	env := newTestEnv(t, nil)
	env.identity.set("admin", "a1")
	env.activeUntil(time.Second)
	n, p := newTestNavigator(t, env)

	if err := n.Navigate("/admin"); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	p.expectRender(t, "/admin")
	waitFor(t, "countdown tickers", func() bool { return env.clock.active() == 2 })

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		env.clock.Advance(time.Second)
	}()
	go func() {
		defer wg.Done()
		if err := n.Logout(context.Background()); err != nil {
			t.Errorf("Logout failed: %v", err)
		}
	}()
	wg.Wait()

	waitFor(t, "logout", func() bool { return env.logouts.calls.Load() >= 1 })
	time.Sleep(20 * time.Millisecond)
	if got := env.logouts.calls.Load(); got != 1 {
		t.Fatalf("expected exactly one logout, got %d", got)
	}
}

func TestNavigatorLogoutRedirectsToLogin(t *testing.T) {
	env := newTestEnv(t, nil)
	env.identity.set("admin", "a1")
	env.activeUntil(time.Hour)
	env.logouts.after = func() { env.identity.fail(session.ErrUnauthenticated) }
	n, p := newTestNavigator(t, env)

	if err := n.Navigate("/admin"); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	p.expectRender(t, "/admin")

	if err := n.Logout(context.Background()); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	p.expectNavigate(t, route.Login)
	if n.Session().Authenticated {
		t.Fatal("session still authenticated after logout")
	}
	if got := env.logouts.calls.Load(); got != 1 {
		t.Fatalf("expected one logout, got %d", got)
	}
}

func TestNavigatorSecondLogoutIsNoop(t *testing.T) {
	env := newTestEnv(t, nil)
	env.identity.set("admin", "a1")
	env.activeUntil(time.Hour)
	n, p := newTestNavigator(t, env)

	if err := n.Navigate("/admin"); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	p.expectRender(t, "/admin")

	// whoAmI keeps reporting the admin, as if the backend were slow to forget
	for i := 0; i < 2; i++ {
		if err := n.Logout(context.Background()); err != nil {
			t.Fatalf("Logout %d failed: %v", i, err)
		}
	}
	if got := env.logouts.calls.Load(); got != 1 {
		t.Fatalf("expected one logout, got %d", got)
	}

	// the same identity comes back on the next check; its new monitor shares the latch
	if err := n.Navigate("/admin/users"); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	p.expectRender(t, "/admin/users")
	if err := n.Logout(context.Background()); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if got := env.logouts.calls.Load(); got != 1 {
		t.Fatalf("expected one logout for the same session, got %d", got)
	}

	env.identity.set("assistant", "as2")
	if err := n.Navigate("/admin/users"); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	p.expect(t, "render for as2", func(ev presenterEvent) bool {
		return ev.kind == "render" && ev.grant.Session.UserID == "as2"
	})
	if err := n.Logout(context.Background()); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if got := env.logouts.calls.Load(); got != 2 {
		t.Fatalf("expected a fresh logout for a new identity, got %d", got)
	}
}

func TestNavigatorSharesLatchWithExpireSession(t *testing.T) {
	env := newTestEnv(t, nil)
	env.identity.set("admin", "a1")
	env.activeUntil(time.Second)

	key := SessionKey("cookie-a1")
	p := newRecordingPresenter()
	n, err := env.engine.NewNavigator(WithSessionKey(context.Background(), key), p)
	if err != nil {
		t.Fatalf("NewNavigator failed: %v", err)
	}
	t.Cleanup(n.Close)

	sess := session.Session{Authenticated: true, Role: session.RoleAdmin, UserID: "a1"}
	if !env.engine.ExpireSession(context.Background(), sess, key) {
		t.Fatal("ExpireSession did not log out")
	}

	if err := n.Navigate("/admin"); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	p.expectRender(t, "/admin")
	waitFor(t, "countdown tickers", func() bool { return env.clock.active() == 2 })

	env.clock.Advance(time.Second)
	p.expectNavigate(t, route.Login)

	if got := env.logouts.calls.Load(); got != 1 {
		t.Fatalf("expected one logout across guard paths, got %d", got)
	}
}

func TestNavigatorExemptRoleRendersWithoutSubscription(t *testing.T) {
	env := newTestEnv(t, nil, func(b *Builder) {
		b.WithSubscriptions(subscription.FetcherFunc(func(ctx context.Context, _ string) (subscription.Record, error) {
			<-ctx.Done()
			return subscription.Record{}, ctx.Err()
		}))
	})
	env.identity.set("developer", "d1")
	n, p := newTestNavigator(t, env)

	if err := n.Navigate("/developer"); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	g := p.expectRender(t, "/developer")
	if !g.Subscription.Exempt {
		t.Fatalf("expected exempt grant, got %+v", g.Subscription)
	}
}

func TestNavigatorIdentityChangeRestartsMonitor(t *testing.T) {
	env := newTestEnv(t, nil)
	env.identity.set("admin", "a1")
	env.activeUntil(time.Hour)
	n, p := newTestNavigator(t, env)

	if err := n.Navigate("/admin"); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	p.expectRender(t, "/admin")

	env.identity.set("assistant", "as2")
	if err := n.Navigate("/admin/users"); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	g := p.expectRender(t, "/admin/users")
	if g.Session.UserID != "as2" {
		t.Fatalf("grant for stale identity: %+v", g.Session)
	}

	seen := env.subs.seen()
	if len(seen) != 2 || seen[0] != "a1" || seen[1] != "as2" {
		t.Fatalf("expected one fetch per identity, got %v", seen)
	}
}

func TestNavigatorClosed(t *testing.T) {
	env := newTestEnv(t, nil)
	n, _ := newTestNavigator(t, env)
	n.Close()
	n.Close()

	if err := n.Navigate("/"); !errors.Is(err, ErrNavigatorClosed) {
		t.Fatalf("expected ErrNavigatorClosed, got %v", err)
	}
	if err := n.Logout(context.Background()); !errors.Is(err, ErrNavigatorClosed) {
		t.Fatalf("expected ErrNavigatorClosed, got %v", err)
	}
}

func TestReturnHop(t *testing.T) {
	var h ReturnHop
	for _, p := range []string{"", "admin", "//evil.example", "/\\evil", "https://evil.example/x", "/a\nb", "/a\\b"} {
		if h.Remember(p) {
			t.Fatalf("Remember(%q) accepted", p)
		}
	}
	if !h.Remember("/admin/users?page=2") {
		t.Fatal("local path rejected")
	}
	if p, ok := h.Consume(); !ok || p != "/admin/users?page=2" {
		t.Fatalf("Consume() = %q, %v", p, ok)
	}
	if _, ok := h.Consume(); ok {
		t.Fatal("second Consume returned a path")
	}

	h.Remember("/x")
	h.Clear()
	if _, ok := h.Consume(); ok {
		t.Fatal("Clear did not forget the path")
	}
}
