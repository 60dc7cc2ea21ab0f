package goGuard

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/session"
)

func collectAudit(t *testing.T, sink *ChannelSink, n int) []AuditEvent {
	t.Helper()
	out := make([]AuditEvent, 0, n)
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case ev := <-sink.Events():
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("expected %d audit events, got %d", n, len(out))
		}
	}
	return out
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	sink := NewChannelSink(8)
	env := newTestEnv(t, func(c *Config) { c.Audit.Enabled = false }, func(b *Builder) { b.WithAuditSink(sink) })

	if _, err := env.engine.Evaluate(context.Background(), "/admin"); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	select {
	case ev := <-sink.Events():
		t.Fatalf("unexpected audit event %+v", ev)
	default:
	}
}

func TestAuditAccessDecisionFields(t *testing.T) {
	sink := NewChannelSink(8)
	env := newTestEnv(t, func(c *Config) { c.Audit.Enabled = true }, func(b *Builder) { b.WithAuditSink(sink) })
	env.identity.set("student", "s1")

	ctx := WithRequestID(WithClientIP(context.Background(), "198.51.100.33"), "req-1")
	if _, err := env.engine.Evaluate(ctx, "/admin/users"); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	ev := collectAudit(t, sink, 1)[0]
	if ev.EventType != auditEventAccessDecision || ev.Success {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.IP != "198.51.100.33" || ev.RequestID != "req-1" {
		t.Fatalf("context values missing: %+v", ev)
	}
	if ev.UserID != "s1" || ev.Role != "student" || ev.Path != "/admin/users" {
		t.Fatalf("identity fields missing: %+v", ev)
	}
	if ev.Reason != string(ReasonRoleMismatch) || ev.Metadata["target"] != "/student" {
		t.Fatalf("decision fields missing: %+v", ev)
	}
}

func TestAuditLinkEventsCarryNoSignature(t *testing.T) {
	sink := NewChannelSink(8)
	env := newTestEnv(t, func(c *Config) { c.Audit.Enabled = true }, func(b *Builder) { b.WithAuditSink(sink) })
	link := signedRecordURL(t, env.engine.Config().Link, "rec-5")
	sig := link[strings.Index(link, "sig=")+len("sig="):]

	if _, err := env.engine.Evaluate(context.Background(), link); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	ev := collectAudit(t, sink, 1)[0]
	if ev.Subject != "rec-5" || !ev.Success {
		t.Fatalf("unexpected event %+v", ev)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if strings.Contains(string(data), sig) {
		t.Fatal("link signature leaked into audit event")
	}
}

func TestAuditLogoutEvent(t *testing.T) {
	sink := NewChannelSink(8)
	env := newTestEnv(t, func(c *Config) { c.Audit.Enabled = true }, func(b *Builder) { b.WithAuditSink(sink) })
	sess := session.Session{Authenticated: true, Role: session.RoleAdmin, UserID: "a1"}
	key := SessionKey("cookie")

	env.engine.ExpireSession(context.Background(), sess, key)

	ev := collectAudit(t, sink, 1)[0]
	if ev.EventType != auditEventSessionLogout || ev.SessionKey != key || ev.UserID != "a1" || !ev.Success {
		t.Fatalf("unexpected event %+v", ev)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestAuditJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: auditEventSubscriptionExpired,
		UserID:    "u1",
		IP:        "127.0.0.1",
	})

	out := buf.String()
	if !strings.Contains(out, "subscription_expired") {
		t.Fatal("expected JSON log line to contain event type")
	}
	if !strings.Contains(out, "\"user_id\":\"u1\"") {
		t.Fatal("expected JSON log line to contain user id")
	}
	if !strings.HasSuffix(out, "\n") {
		t.Fatal("expected newline-terminated JSON line")
	}
}

func TestAuditSlogSink(t *testing.T) {
	var buf syncBuffer
	sink := NewSlogSink(slog.New(slog.NewJSONHandler(&buf, nil)))
	sink.Emit(context.Background(), AuditEvent{EventType: auditEventLinkRateLimited, IP: "203.0.113.9"})

	out := buf.String()
	if !strings.Contains(out, "link_rate_limited") || !strings.Contains(out, "203.0.113.9") {
		t.Fatalf("unexpected slog output %q", out)
	}
}
