package persistence

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const tokenCachePrefix = "stepup:token:"

// TokenCache maps verification token hashes to session ids in Redis with
// the session TTL. It is a read fast path only; Postgres remains the
// authority, so every method degrades to a miss when Redis is absent.
type TokenCache struct {
	client *redis.Client
}

// NewTokenCache wraps the redis client, which may be nil.
func NewTokenCache(client *redis.Client) *TokenCache {
	return &TokenCache{client: client}
}

// Put stores the mapping for ttl.
func (c *TokenCache) Put(ctx context.Context, tokenHash, sessionID string, ttl time.Duration) {
	if c == nil || c.client == nil || ttl <= 0 {
		return
	}
	_ = c.client.Set(ctx, tokenCachePrefix+tokenHash, sessionID, ttl).Err()
}

// Get returns the cached session id, or "" on miss or Redis failure.
func (c *TokenCache) Get(ctx context.Context, tokenHash string) string {
	if c == nil || c.client == nil {
		return ""
	}
	val, err := c.client.Get(ctx, tokenCachePrefix+tokenHash).Result()
	if err != nil {
		// redis.Nil and transport failures both read as a miss.
		return ""
	}
	return val
}

// Delete drops the mapping once a session leaves PENDING.
func (c *TokenCache) Delete(ctx context.Context, tokenHash string) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Del(ctx, tokenCachePrefix+tokenHash).Err()
}
