package subscription

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Latch grants the logout of a session key at most once.
type Latch interface {
	Acquire(ctx context.Context, key string) bool
}

// MemoryLatch is a process-local keyed latch. Entries lapse after ttl so the
// map does not grow without bound; ttl <= 0 keeps them forever.
type MemoryLatch struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	fired map[string]time.Time
}

// NewMemoryLatch returns an empty MemoryLatch.
func NewMemoryLatch(ttl time.Duration) *MemoryLatch {
	return &MemoryLatch{
		ttl:   ttl,
		now:   time.Now,
		fired: make(map[string]time.Time),
	}
}

// Acquire implements Latch.
func (l *MemoryLatch) Acquire(_ context.Context, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if at, ok := l.fired[key]; ok {
		if l.ttl <= 0 || now.Sub(at) < l.ttl {
			return false
		}
	}
	l.fired[key] = now
	if l.ttl > 0 && len(l.fired) > 1024 {
		for k, at := range l.fired {
			if now.Sub(at) >= l.ttl {
				delete(l.fired, k)
			}
		}
	}
	return true
}

// RedisLatch shares the latch across guard replicas with SET NX.
type RedisLatch struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisLatch returns a redis-backed latch. An empty prefix defaults to "gl:logout".
func NewRedisLatch(client redis.UniversalClient, prefix string, ttl time.Duration, logger *slog.Logger) *RedisLatch {
	if prefix == "" {
		prefix = "gl:logout"
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &RedisLatch{redis: client, prefix: prefix, ttl: ttl, logger: logger}
}

// Acquire implements Latch. When redis is unreachable the latch grants the
// logout; the caller's own once-per-session flag still applies.
func (l *RedisLatch) Acquire(ctx context.Context, key string) bool {
	ok, err := l.redis.SetNX(ctx, l.prefix+":"+key, 1, l.ttl).Result()
	if err != nil {
		l.logger.WarnContext(ctx, "logout latch unavailable", "key", key, "error", err)
		return true
	}
	return ok
}
