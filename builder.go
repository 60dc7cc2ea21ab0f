package goGuard

import (
	"io"
	"log/slog"
	"strconv"

	"github.com/MrEthical07/goGuard/internal/audit"
	"github.com/MrEthical07/goGuard/internal/rate"
	"github.com/MrEthical07/goGuard/linktoken"
	"github.com/MrEthical07/goGuard/route"
	"github.com/MrEthical07/goGuard/session"
	"github.com/MrEthical07/goGuard/signedlink"
	"github.com/MrEthical07/goGuard/subscription"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. Configure it during initialization, call
// Build once, and discard it.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	logger *slog.Logger
	clock  subscription.Clock

	identity    session.Identity
	fetcher     subscription.Fetcher
	logout      subscription.LogoutFunc
	links       LinkVerifier
	revocations signedlink.Revocations
	latch       subscription.Latch
	auditSink   AuditSink

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis enables the redis-backed revocation list, link rate limiter and
// cross-replica logout latch.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithIdentity sets the whoAmI collaborator. Required.
func (b *Builder) WithIdentity(identity session.Identity) *Builder {
	b.identity = identity
	return b
}

// WithSubscriptions sets the getSubscription collaborator. Without one every
// non-exempt session is treated as expired.
func (b *Builder) WithSubscriptions(fetcher subscription.Fetcher) *Builder {
	b.fetcher = fetcher
	return b
}

// WithLogout sets the logout collaborator.
func (b *Builder) WithLogout(logout subscription.LogoutFunc) *Builder {
	b.logout = logout
	return b
}

// WithLinkVerifier overrides the verifier built from Config.Link.
func (b *Builder) WithLinkVerifier(v LinkVerifier) *Builder {
	b.links = v
	return b
}

// WithRevocations overrides the revocation list built from the redis client.
func (b *Builder) WithRevocations(r signedlink.Revocations) *Builder {
	b.revocations = r
	return b
}

// WithLatch overrides the logout latch used by ExpireSession.
func (b *Builder) WithLatch(l subscription.Latch) *Builder {
	b.latch = l
	return b
}

// WithAuditSink sets the audit sink. Audit must also be enabled in Config.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. The default discards.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces the wall clock, mainly for tests.
func (b *Builder) WithClock(clock subscription.Clock) *Builder {
	b.clock = clock
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the evaluate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.identity == nil {
		return nil, ErrNoIdentity
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	clock := b.clock
	if clock == nil {
		clock = subscription.SystemClock()
	}

	// -------- ROUTES --------
	classifier, err := route.NewClassifier(cfg.Routes)
	if err != nil {
		return nil, err
	}

	// -------- SUBSCRIPTION POLICY --------
	exempt, err := parseRoles(cfg.Subscription.ExemptRoles)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:      cfg,
		logger:      logger,
		classifier:  classifier,
		auth:        session.NewAuthenticator(b.identity, cfg.Session.CheckTimeout, logger),
		fetcher:     b.fetcher,
		logout:      b.logout,
		revocations: b.revocations,
		latch:       b.latch,
		policy:      subscription.NewPolicy(exempt...),
		clock:       clock,
		metrics:     NewMetrics(cfg.Metrics),
	}

	// -------- SIGNED LINKS --------
	engine.links = b.links
	if engine.links == nil {
		links, err := newLinkVerifier(cfg.Link)
		if err != nil {
			return nil, err
		}
		if links == nil {
			logger.Warn("no signed-link secret configured; every signed link will be rejected")
		}
		engine.links = links
	}

	// -------- REDIS --------
	if b.redis != nil {
		if engine.revocations == nil {
			engine.revocations = signedlink.NewRedisRevocations(b.redis, cfg.Link.RevocationPrefix)
		}
		engine.limiter = rate.New(b.redis, rate.Config{
			MaxLinkAttempts: cfg.Link.MaxAttempts,
			LinkWindow:      cfg.Link.AttemptWindow,
		})
		if engine.latch == nil {
			engine.latch = subscription.NewRedisLatch(b.redis, cfg.Subscription.LatchPrefix, cfg.Subscription.LatchTTL, logger)
		}
	}
	if engine.latch == nil {
		engine.latch = subscription.NewMemoryLatch(cfg.Subscription.LatchTTL)
	}

	// -------- AUDIT --------
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Retain:     []string{auditEventSessionLogout, auditEventSubscriptionExpired},
	}, b.auditSink)

	if err := cfg.Lint().AsError(LintHigh); err != nil {
		logger.Warn("risky guard configuration", "error", err)
	}

	b.built = true

	return engine, nil
}

// newLinkVerifier builds the verifier for cfg. It returns nil, nil when no
// secret is configured.
func newLinkVerifier(cfg LinkConfig) (LinkVerifier, error) {
	if len(cfg.Secrets) == 0 {
		return nil, nil
	}

	switch cfg.Format {
	case LinkFormatJWT:
		var verifyKeys map[string][]byte
		if len(cfg.Secrets) > 1 {
			verifyKeys = make(map[string][]byte, len(cfg.Secrets))
			for i, s := range cfg.Secrets {
				verifyKeys[keyID(i)] = []byte(s)
			}
		}
		return linktoken.NewManager(linktoken.Config{
			SigningMethod: linktoken.MethodHS256,
			PrivateKey:    []byte(cfg.Secrets[0]),
			Issuer:        cfg.Issuer,
			Audience:      cfg.Audience,
			Scope:         cfg.Scope,
			DefaultTTL:    cfg.DefaultTTL,
			MaxTTL:        cfg.MaxTTL,
			Leeway:        cfg.Leeway,
			KeyID:         keyID(0),
			VerifyKeys:    verifyKeys,
		})
	default:
		secrets := make([][]byte, 0, len(cfg.Secrets))
		for _, s := range cfg.Secrets {
			secrets = append(secrets, []byte(s))
		}
		return signedlink.NewVerifier(signedlink.Encoding(cfg.Encoding), secrets...)
	}
}

func keyID(i int) string {
	return "k" + strconv.Itoa(i)
}

// NewLinkSigner returns a signer for the hmac link format of cfg, for tools
// that mint links.
func NewLinkSigner(cfg LinkConfig) (*signedlink.Signer, error) {
	secrets := make([][]byte, 0, len(cfg.Secrets))
	for _, s := range cfg.Secrets {
		secrets = append(secrets, []byte(s))
	}
	v, err := signedlink.NewVerifier(signedlink.Encoding(cfg.Encoding), secrets...)
	if err != nil {
		return nil, err
	}
	return signedlink.NewSigner(v)
}

// NewLinkIssuer returns the token manager for the jwt link format of cfg.
func NewLinkIssuer(cfg LinkConfig) (*linktoken.Manager, error) {
	m, err := newLinkVerifier(LinkConfig{
		Format:     LinkFormatJWT,
		Secrets:    cfg.Secrets,
		Issuer:     cfg.Issuer,
		Audience:   cfg.Audience,
		Scope:      cfg.Scope,
		DefaultTTL: cfg.DefaultTTL,
		MaxTTL:     cfg.MaxTTL,
		Leeway:     cfg.Leeway,
	})
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, signedlink.ErrNoSecret
	}
	return m.(*linktoken.Manager), nil
}
