package goGuard

import (
	"net/url"
	"strings"
	"sync"
)

// ReturnHop remembers the page a visitor asked for before a login redirect
// and hands it back exactly once.
type ReturnHop struct {
	mu   sync.Mutex
	path string
}

// Remember stores p if it is a local path. It reports whether p was kept.
func (h *ReturnHop) Remember(p string) bool {
	p, ok := SafeReturnPath(p)
	if !ok {
		return false
	}
	h.mu.Lock()
	h.path = p
	h.mu.Unlock()
	return true
}

// Consume returns the remembered path and forgets it.
func (h *ReturnHop) Consume() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.path
	h.path = ""
	return p, p != ""
}

// Clear forgets the remembered path.
func (h *ReturnHop) Clear() {
	h.mu.Lock()
	h.path = ""
	h.mu.Unlock()
}

// SafeReturnPath accepts only same-origin absolute paths, so a return hop can
// never become an open redirect.
func SafeReturnPath(p string) (string, bool) {
	if p == "" || len(p) > 2048 {
		return "", false
	}
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return "", false
	}
	for i := 0; i < len(p); i++ {
		if p[i] < 0x20 || p[i] == 0x7f || p[i] == '\\' {
			return "", false
		}
	}
	u, err := url.Parse(p)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return "", false
	}
	return p, true
}
