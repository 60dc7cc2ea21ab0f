package test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/client"
	"github.com/MrEthical07/goGuard/middleware"
	"github.com/MrEthical07/goGuard/session"
	"github.com/MrEthical07/goGuard/subscription"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// fakeBackend serves the whoami, subscription, and logout endpoints. Sessions
// are keyed by the "session" cookie value.
type fakeBackend struct {
	mu       sync.Mutex
	sessions map[string]session.Principal
	subs     map[string]subscription.Record
	logouts  atomic.Int64
	whoami   atomic.Int64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		sessions: make(map[string]session.Principal),
		subs:     make(map[string]subscription.Record),
	}
}

func (b *fakeBackend) login(token, role, userID string) {
	b.mu.Lock()
	b.sessions[token] = session.Principal{Role: role, UserID: userID}
	b.mu.Unlock()
}

func (b *fakeBackend) setSubscription(userID string, active bool, expires time.Time) {
	b.mu.Lock()
	b.subs[userID] = subscription.Record{Active: active, ExpiresAt: &expires}
	b.mu.Unlock()
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+client.DefaultWhoAmIPath, func(w http.ResponseWriter, r *http.Request) {
		b.whoami.Add(1)
		p, ok := b.principal(r)
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, p)
	})
	mux.HandleFunc("GET "+client.DefaultSubscriptionPath+"{id}", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		rec, ok := b.subs[r.PathValue("id")]
		b.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, rec)
	})
	mux.HandleFunc("POST "+client.DefaultLogoutPath, func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("session")
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		b.logouts.Add(1)
		b.mu.Lock()
		delete(b.sessions, ck.Value)
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func (b *fakeBackend) principal(r *http.Request) (session.Principal, bool) {
	ck, err := r.Cookie("session")
	if err != nil {
		return session.Principal{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.sessions[ck.Value]
	return p, ok
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// stack is a guarded site: backend API, engine over miniredis, and the
// middleware in front of a page handler that echoes its grant.
type stack struct {
	backend *fakeBackend
	engine  *goGuard.Engine
	redis   *miniredis.Miniredis
	site    *httptest.Server
	audit   *goGuard.ChannelSink
}

func newStack(t *testing.T, mutate func(*goGuard.Config)) *stack {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	be := newFakeBackend()
	api := httptest.NewServer(be.handler())

	c, err := client.New(client.Config{BaseURL: api.URL}, api.Client())
	if err != nil {
		t.Fatalf("client.New failed: %v", err)
	}

	cfg := goGuard.DefaultConfig()
	cfg.Link.Secrets = []string{testSecret}
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	cfg.Metrics.Enabled = true
	if mutate != nil {
		mutate(&cfg)
	}

	sink := goGuard.NewChannelSink(256)
	engine, err := goGuard.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentity(c).
		WithSubscriptions(c).
		WithLogout(c.Logout).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	pages := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g, _ := middleware.GrantFromContext(r.Context())
		writeJSON(w, map[string]string{
			"path":    g.Path,
			"user":    g.Session.UserID,
			"role":    g.Session.Role.String(),
			"subject": g.Subject,
			"reason":  string(g.Reason),
		})
	})
	site := httptest.NewServer(middleware.Guard(engine, middleware.Options{})(pages))

	t.Cleanup(func() {
		site.Close()
		engine.Close()
		api.Close()
		_ = rdb.Close()
		mr.Close()
	})

	return &stack{backend: be, engine: engine, redis: mr, site: site, audit: sink}
}

// get fetches target without following redirects.
func (s *stack) get(t *testing.T, target, sessionToken string) (*http.Response, map[string]string) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, s.site.URL+target, nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if sessionToken != "" {
		req.AddCookie(&http.Cookie{Name: "session", Value: sessionToken})
	}

	hc := s.site.Client()
	hc.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	resp, err := hc.Do(req)
	if err != nil {
		t.Fatalf("request %s failed: %v", target, err)
	}
	defer resp.Body.Close()

	var body map[string]string
	if resp.StatusCode == http.StatusOK && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode body failed: %v", err)
		}
	}
	return resp, body
}
