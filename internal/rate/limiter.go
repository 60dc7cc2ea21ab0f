package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	// MaxLinkAttempts is the number of rejected signed-link attempts allowed
	// per client IP within LinkWindow. Zero disables the limiter.
	MaxLinkAttempts int
	LinkWindow      time.Duration
	// Prefix namespaces the counter keys. Defaults to "gl:rl".
	Prefix string
}

// Limiter enforces a per-IP budget of rejected signed-link attempts using
// Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "gl:rl"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Enabled reports whether the limiter enforces anything.
func (l *Limiter) Enabled() bool {
	return l != nil && l.redis != nil && l.config.MaxLinkAttempts > 0
}

// CheckLink returns ErrRateLimited when ip has used up its attempt budget.
// It does not count an attempt.
func (l *Limiter) CheckLink(ctx context.Context, ip string) error {
	if !l.Enabled() || ip == "" {
		return nil
	}

	count, err := l.attempts(ctx, l.linkKey(ip))
	if err != nil {
		return err
	}
	if count >= l.config.MaxLinkAttempts {
		return ErrRateLimited
	}

	return nil
}

// IncrementLink records a rejected link attempt from ip. It returns
// ErrRateLimited once the budget is exceeded.
func (l *Limiter) IncrementLink(ctx context.Context, ip string) error {
	if !l.Enabled() || ip == "" {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, l.linkKey(ip), l.config.LinkWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxLinkAttempts) {
		return ErrRateLimited
	}

	return nil
}

// ResetLink clears the counter for ip.
func (l *Limiter) ResetLink(ctx context.Context, ip string) error {
	if !l.Enabled() || ip == "" {
		return nil
	}

	if err := l.redis.Del(ctx, l.linkKey(ip)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// LinkAttempts returns the current counter for ip.
func (l *Limiter) LinkAttempts(ctx context.Context, ip string) (int, error) {
	if !l.Enabled() || ip == "" {
		return 0, nil
	}
	return l.attempts(ctx, l.linkKey(ip))
}

func (l *Limiter) attempts(ctx context.Context, key string) (int, error) {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(count), nil
}

func (l *Limiter) linkKey(ip string) string {
	return l.config.Prefix + ":link:" + ip
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
