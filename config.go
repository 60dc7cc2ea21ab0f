package goGuard

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/route"
	"github.com/MrEthical07/goGuard/session"
	"github.com/MrEthical07/goGuard/signedlink"
	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every variable read by LoadConfigFromEnv.
const EnvPrefix = "GOGUARD_"

// Config is the complete guard configuration. Build a default with
// DefaultConfig, override fields, and pass it to Builder.WithConfig.
type Config struct {
	Routes       route.Table
	Link         LinkConfig         `envPrefix:"LINK_"`
	Session      SessionConfig      `envPrefix:"SESSION_"`
	Subscription SubscriptionConfig `envPrefix:"SUBSCRIPTION_"`
	Presenter    PresenterConfig    `envPrefix:"PRESENTER_"`
	Audit        AuditConfig        `envPrefix:"AUDIT_"`
	Metrics      MetricsConfig      `envPrefix:"METRICS_"`
	Redis        RedisConfig        `envPrefix:"REDIS_"`
}

/*
====================================
LINK CONFIG
====================================
*/

// Link formats.
const (
	LinkFormatHMAC = "hmac"
	LinkFormatJWT  = "jwt"
)

// LinkConfig configures signed-link verification.
type LinkConfig struct {
	// Format is "hmac" (id + HMAC signature, no expiry) or "jwt" (expiring token in sig).
	Format string `env:"FORMAT"`
	// Secrets verify links; the first one signs. Rotating drops old links.
	Secrets  []string `env:"SECRETS"`
	Encoding string   `env:"ENCODING"` // "hex" (default) or "base64url"

	Issuer     string        `env:"ISSUER"`
	Audience   string        `env:"AUDIENCE"`
	Scope      string        `env:"SCOPE"`
	DefaultTTL time.Duration `env:"DEFAULT_TTL"`
	MaxTTL     time.Duration `env:"MAX_TTL"`
	Leeway     time.Duration `env:"LEEWAY"`

	RevocationPrefix string `env:"REVOCATION_PREFIX"`
	// MaxAttempts caps rejected link attempts per client IP per AttemptWindow. 0 disables.
	MaxAttempts   int           `env:"MAX_ATTEMPTS"`
	AttemptWindow time.Duration `env:"ATTEMPT_WINDOW"`
}

/*
====================================
SESSION / SUBSCRIPTION CONFIG
====================================
*/

// SessionConfig configures whoAmI checks.
type SessionConfig struct {
	// CheckTimeout bounds one whoAmI call. A timeout counts as a failed check.
	CheckTimeout time.Duration `env:"CHECK_TIMEOUT"`
	// CookieName is the session cookie forwarded to the collaborators and
	// hashed into the logout latch key.
	CookieName string `env:"COOKIE_NAME"`
}

// SubscriptionConfig configures the per-session subscription monitor.
type SubscriptionConfig struct {
	TickInterval  time.Duration `env:"TICK_INTERVAL"`
	PollInterval  time.Duration `env:"POLL_INTERVAL"`
	FetchTimeout  time.Duration `env:"FETCH_TIMEOUT"`
	LogoutTimeout time.Duration `env:"LOGOUT_TIMEOUT"`
	// ExemptRoles are added to developer and student, which are always exempt.
	ExemptRoles []string      `env:"EXEMPT_ROLES"`
	LatchPrefix string        `env:"LATCH_PREFIX"`
	LatchTTL    time.Duration `env:"LATCH_TTL"`
}

// PresenterConfig configures transition timing.
type PresenterConfig struct {
	// MinRedirectDisplay is how long the redirecting state stays up before navigating.
	MinRedirectDisplay time.Duration `env:"MIN_REDIRECT_DISPLAY"`
}

/*
====================================
AUDIT / METRICS / REDIS CONFIG
====================================
*/

// AuditConfig configures the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `env:"ENABLED"`
	BufferSize int  `env:"BUFFER_SIZE"`
	DropIfFull bool `env:"DROP_IF_FULL"`
}

// MetricsConfig configures in-process counters.
type MetricsConfig struct {
	Enabled                 bool `env:"ENABLED"`
	EnableLatencyHistograms bool `env:"LATENCY_HISTOGRAMS"`
}

// RedisConfig describes how binaries reach redis. The Engine itself takes a
// client through Builder.WithRedis.
type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB"`
}

// DefaultConfig returns the dashboard defaults: one-second countdown,
// five-minute re-poll, 400ms redirect display.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Routes: route.DefaultTable(),
		Link: LinkConfig{
			Format:           LinkFormatHMAC,
			Encoding:         string(signedlink.EncodingHex),
			Scope:            "record",
			DefaultTTL:       24 * time.Hour,
			MaxTTL:           30 * 24 * time.Hour,
			Leeway:           30 * time.Second,
			RevocationPrefix: "gl:rev",
			MaxAttempts:      20,
			AttemptWindow:    10 * time.Minute,
		},
		Session: SessionConfig{
			CheckTimeout: 5 * time.Second,
			CookieName:   "session",
		},
		Subscription: SubscriptionConfig{
			TickInterval:  time.Second,
			PollInterval:  5 * time.Minute,
			FetchTimeout:  5 * time.Second,
			LogoutTimeout: 5 * time.Second,
			LatchPrefix:   "gl:logout",
			LatchTTL:      time.Hour,
		},
		Presenter: PresenterConfig{
			MinRedirectDisplay: 400 * time.Millisecond,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Redis: RedisConfig{
			Addr: "",
		},
	}
}

// LoadConfigFromEnv starts from DefaultConfig and overrides every field whose
// GOGUARD_* variable is set, e.g. GOGUARD_LINK_SECRETS or
// GOGUARD_SUBSCRIPTION_POLL_INTERVAL. The result is validated.
func LoadConfigFromEnv() (Config, error) {
	return loadConfig(env.Options{Prefix: EnvPrefix})
}

func loadConfig(opts env.Options) (Config, error) {
	cfg := defaultConfig()
	if opts.Prefix == "" {
		opts.Prefix = EnvPrefix
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Routes = cloneTable(cfg.Routes)
	out.Link.Secrets = append([]string(nil), cfg.Link.Secrets...)
	out.Subscription.ExemptRoles = append([]string(nil), cfg.Subscription.ExemptRoles...)
	return out
}

func cloneTable(t route.Table) route.Table {
	out := t
	out.Public = append([]string(nil), t.Public...)
	out.SignedLink = append([]string(nil), t.SignedLink...)
	out.Areas = make([]route.AreaRule, len(t.Areas))
	for i, a := range t.Areas {
		a.Roles = append([]session.Role(nil), a.Roles...)
		out.Areas[i] = a
	}
	if t.Homes != nil {
		out.Homes = make(map[session.Role]string, len(t.Homes))
		for r, h := range t.Homes {
			out.Homes[r] = h
		}
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) validate() error {
	// Routes
	if err := c.Routes.Validate(); err != nil {
		return err
	}

	// Link
	switch c.Link.Format {
	case LinkFormatHMAC:
		switch signedlink.Encoding(c.Link.Encoding) {
		case signedlink.EncodingHex, signedlink.EncodingBase64URL:
		default:
			return errors.New("Link Encoding must be 'hex' or 'base64url'")
		}
	case LinkFormatJWT:
		if c.Link.DefaultTTL <= 0 {
			return errors.New("Link DefaultTTL must be > 0 in jwt format")
		}
		if c.Link.MaxTTL < c.Link.DefaultTTL {
			return errors.New("Link MaxTTL must be >= DefaultTTL")
		}
		if c.Link.Leeway < 0 || c.Link.Leeway > 2*time.Minute {
			return errors.New("Link Leeway must be between 0 and 2m")
		}
	default:
		return errors.New("Link Format must be 'hmac' or 'jwt'")
	}
	for i, s := range c.Link.Secrets {
		if len(s) < signedlink.MinSecretLength {
			return fmt.Errorf("Link Secrets[%d] must be at least %d bytes", i, signedlink.MinSecretLength)
		}
	}
	if c.Link.MaxAttempts < 0 {
		return errors.New("Link MaxAttempts must be >= 0")
	}
	if c.Link.MaxAttempts > 0 && c.Link.AttemptWindow <= 0 {
		return errors.New("Link AttemptWindow must be > 0 when MaxAttempts is set")
	}

	// Session
	if c.Session.CheckTimeout < 0 {
		return errors.New("Session CheckTimeout must be >= 0")
	}
	if strings.TrimSpace(c.Session.CookieName) == "" {
		return errors.New("Session CookieName must be set")
	}

	// Subscription
	if c.Subscription.TickInterval <= 0 {
		return errors.New("Subscription TickInterval must be > 0")
	}
	if c.Subscription.PollInterval < c.Subscription.TickInterval {
		return errors.New("Subscription PollInterval must be >= TickInterval")
	}
	if c.Subscription.FetchTimeout <= 0 {
		return errors.New("Subscription FetchTimeout must be > 0")
	}
	if c.Subscription.LogoutTimeout <= 0 {
		return errors.New("Subscription LogoutTimeout must be > 0")
	}
	if c.Subscription.LatchTTL < 0 {
		return errors.New("Subscription LatchTTL must be >= 0")
	}
	if _, err := parseRoles(c.Subscription.ExemptRoles); err != nil {
		return err
	}

	// Presenter
	if c.Presenter.MinRedirectDisplay < 0 {
		return errors.New("Presenter MinRedirectDisplay must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

func parseRoles(names []string) ([]session.Role, error) {
	out := make([]session.Role, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		r, ok := session.ParseRole(n)
		if !ok {
			return nil, fmt.Errorf("Subscription ExemptRoles has unknown role %q", n)
		}
		out = append(out, r)
	}
	return out, nil
}
