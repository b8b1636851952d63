package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// idemPrefix namespaces initiate-response cache keys. The key itself is
// already "user_id:idempotency_key", so a full entry reads
// payments:idem:<user>:<key>.
const idemPrefix = "payments:idem:"

// IdempotencyCache is the Redis fast path of the two-layer idempotency
// check: it holds the serialized initiate response so a retried request can
// be answered without touching the providers or the database again. The
// durable layer is the idempotency record in PostgreSQL.
type IdempotencyCache struct {
	client *goredis.Client
}

// NewIdempotencyCache creates the Redis-backed idempotency cache.
func NewIdempotencyCache(client *goredis.Client) *IdempotencyCache {
	return &IdempotencyCache{client: client}
}

// Get returns the cached response for a key, or nil when the key is absent
// or already expired.
func (c *IdempotencyCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, idemPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency cache get: %w", err)
	}
	return val, nil
}

// Set stores a response under the key for the given TTL.
func (c *IdempotencyCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, idemPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("idempotency cache set: %w", err)
	}
	return nil
}
