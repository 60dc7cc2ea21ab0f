package signedlink

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revocations reports subjects whose links must no longer grant access.
type Revocations interface {
	IsRevoked(ctx context.Context, subjectID string) (bool, error)
}

// RedisRevocations keeps revoked subject ids as individual redis keys so each
// revocation can carry its own TTL.
type RedisRevocations struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisRevocations returns a redis-backed revocation list. An empty prefix
// defaults to "gl:rev".
func NewRedisRevocations(client redis.UniversalClient, prefix string) *RedisRevocations {
	if prefix == "" {
		prefix = "gl:rev"
	}
	return &RedisRevocations{redis: client, prefix: prefix}
}

// Revoke marks subjectID as revoked. ttl <= 0 revokes permanently.
func (r *RedisRevocations) Revoke(ctx context.Context, subjectID string, ttl time.Duration) error {
	if subjectID == "" {
		return ErrEmptySubject
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := r.redis.Set(ctx, r.key(subjectID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Restore removes a revocation. Restoring an unrevoked subject is a no-op.
func (r *RedisRevocations) Restore(ctx context.Context, subjectID string) error {
	if err := r.redis.Del(ctx, r.key(subjectID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// IsRevoked implements Revocations.
func (r *RedisRevocations) IsRevoked(ctx context.Context, subjectID string) (bool, error) {
	n, err := r.redis.Exists(ctx, r.key(subjectID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

func (r *RedisRevocations) key(subjectID string) string {
	return r.prefix + ":" + subjectID
}
