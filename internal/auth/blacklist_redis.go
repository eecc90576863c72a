package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBlacklist is a Blacklist backed by a shared Redis instance so that
// revocation is visible to every server instance. Expiry is delegated to
// Redis key TTLs; no sweep loop is needed.
type RedisBlacklist struct {
	client *redis.Client
	prefix string
}

// NewRedisBlacklist constructs a Redis-backed Blacklist.
func NewRedisBlacklist(client *redis.Client) *RedisBlacklist {
	return &RedisBlacklist{client: client, prefix: "ripple:token:revoked:"}
}

// Revoke marks the token invalid until expiresAt.
// Already-expired tokens are ignored; there is nothing left to invalidate.
func (b *RedisBlacklist) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return b.client.Set(ctx, b.prefix+hashToken(token), 1, ttl).Err()
}

// IsRevoked reports whether the token is currently invalidated.
func (b *RedisBlacklist) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := b.client.Exists(ctx, b.prefix+hashToken(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
