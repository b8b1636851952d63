package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCacheForTest(t *testing.T) (*IdempotencyCache, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	return NewIdempotencyCache(goredis.NewClient(&goredis.Options{Addr: s.Addr()})), s
}

func TestIdempotencyCache(t *testing.T) {
	ctx := context.Background()
	key := "7f9c0a4e-user:promote-listing-9"
	response := []byte(`{"reference":"PAY-1A2B3C4D5E6F7A8B","status":"processing"}`)

	t.Run("miss then hit", func(t *testing.T) {
		cache, _ := newCacheForTest(t)

		got, err := cache.Get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, got, "a key never set must read as absent, not as an error")

		require.NoError(t, cache.Set(ctx, key, response, 24*time.Hour))

		got, err = cache.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, response, got)
	})

	t.Run("entry expires with its ttl", func(t *testing.T) {
		cache, s := newCacheForTest(t)

		require.NoError(t, cache.Set(ctx, key, response, time.Second))
		s.FastForward(2 * time.Second)

		got, err := cache.Get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("set overwrites", func(t *testing.T) {
		cache, _ := newCacheForTest(t)

		require.NoError(t, cache.Set(ctx, key, []byte(`{"status":"processing"}`), time.Hour))
		require.NoError(t, cache.Set(ctx, key, []byte(`{"status":"completed"}`), time.Hour))

		got, err := cache.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"status":"completed"}`), got)
	})
}
