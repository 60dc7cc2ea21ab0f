package goGuard

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/session"
)

// LintSeverity ranks a configuration warning.
type LintSeverity uint8

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintHigh:
		return "HIGH"
	case LintWarn:
		return "WARN"
	default:
		return "INFO"
	}
}

// LintWarning is one finding of Config.Lint.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the list of findings of Config.Lint.
type LintResult []LintWarning

// Lint reports settings that validate but are likely mistakes.
func (c Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if c.Session.CheckTimeout <= 0 {
		add("session_timeout_disabled", LintHigh, "a hung whoAmI call keeps protected pages pending forever")
	}
	if len(c.Routes.SignedLink) > 0 && len(c.Link.Secrets) == 0 {
		add("link_secret_missing", LintWarn, "signed-link routes are configured but every link will be rejected")
	}
	if c.Link.Format == LinkFormatHMAC && len(c.Link.Secrets) == 1 {
		add("link_single_secret", LintInfo, "rotating the only secret revokes every outstanding link at once")
	}
	if c.Link.Format == LinkFormatJWT && c.Link.MaxTTL > 90*24*time.Hour {
		add("link_ttl_long", LintWarn, "link tokens may stay valid for more than 90 days")
	}
	if c.Link.MaxAttempts == 0 {
		add("link_rate_limit_disabled", LintWarn, "signed-link guessing is not rate limited")
	}
	if c.Subscription.TickInterval > 10*time.Second {
		add("tick_interval_long", LintWarn, "expired subscriptions may stay usable for more than ten seconds")
	}
	if c.Subscription.PollInterval > 30*time.Minute {
		add("poll_interval_long", LintWarn, "server-side deactivation may go unnoticed for more than thirty minutes")
	}
	if roles, err := parseRoles(c.Subscription.ExemptRoles); err == nil {
		for _, r := range roles {
			if r == session.RoleAdmin || r == session.RoleAssistant {
				add("staff_role_exempt", LintWarn, fmt.Sprintf("role %s never expires", r))
			}
		}
	}
	if c.Presenter.MinRedirectDisplay == 0 {
		add("redirect_display_zero", LintInfo, "redirects navigate immediately and may flicker")
	}
	if c.Presenter.MinRedirectDisplay > 3*time.Second {
		add("redirect_display_long", LintWarn, "visitors wait more than three seconds on every redirect")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo, "guard decisions are not audited")
	}

	return ws
}

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// BySeverity returns the warnings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError joins the warnings at or above min into one error, or returns nil.
func (r LintResult) AsError(min LintSeverity) error {
	ws := r.BySeverity(min)
	if len(ws) == 0 {
		return nil
	}
	parts := make([]string, 0, len(ws))
	for _, w := range ws {
		parts = append(parts, fmt.Sprintf("[%s] %s: %s", w.Severity, w.Code, w.Message))
	}
	return errors.New("config lint: " + strings.Join(parts, "; "))
}
