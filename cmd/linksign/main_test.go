package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestSignThenVerify(t *testing.T) {
	t.Setenv("GOGUARD_LINK_SECRETS", testSecret)

	var out bytes.Buffer
	if err := run(context.Background(), []string{"sign", "--base", "/public/record", "rec-42"}, &out); err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	link := strings.TrimSpace(out.String())
	if !strings.HasPrefix(link, "/public/record?") || !strings.Contains(link, "id=rec-42") {
		t.Fatalf("unexpected link %q", link)
	}

	_, query, _ := strings.Cut(link, "?")
	var sig string
	for _, kv := range strings.Split(query, "&") {
		if v, ok := strings.CutPrefix(kv, "sig="); ok {
			sig = v
		}
	}
	if sig == "" {
		t.Fatalf("link has no sig: %q", link)
	}

	out.Reset()
	if err := run(context.Background(), []string{"verify", "rec-42", sig}, &out); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if err := run(context.Background(), []string{"verify", "rec-43", sig}, &out); err == nil {
		t.Fatal("expected signature for another subject rejected")
	}
}

func TestSignJWTFormat(t *testing.T) {
	t.Setenv("GOGUARD_LINK_SECRETS", testSecret)
	t.Setenv("GOGUARD_LINK_FORMAT", "jwt")

	var out bytes.Buffer
	if err := run(context.Background(), []string{"sign", "--ttl", "1h", "rec-1"}, &out); err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if strings.Count(out.String(), ".") < 2 {
		t.Fatalf("expected a jwt in the link, got %q", out.String())
	}
}

func TestRevokeAndRestore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	defer mr.Close()
	t.Setenv("GOGUARD_LINK_SECRETS", testSecret)
	t.Setenv("GOGUARD_REDIS_ADDR", mr.Addr())

	var out bytes.Buffer
	if err := run(context.Background(), []string{"revoke", "rec-9"}, &out); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if len(mr.Keys()) != 1 {
		t.Fatalf("expected one revocation key, got %v", mr.Keys())
	}
	if err := run(context.Background(), []string{"restore", "rec-9"}, &out); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("expected revocation removed, got %v", mr.Keys())
	}
}

func TestRunUsageErrors(t *testing.T) {
	t.Setenv("GOGUARD_LINK_SECRETS", testSecret)

	tests := [][]string{
		nil,
		{"sign"},
		{"verify", "rec-1"},
		{"frobnicate", "rec-1"},
		{"revoke", "rec-1"},
	}
	for _, args := range tests {
		if err := run(context.Background(), args, &bytes.Buffer{}); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}
