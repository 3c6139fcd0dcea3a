package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCache_LocalOnly_SetAndGet(t *testing.T) {
	c := New(DefaultConfig(), nil)
	ctx := context.Background()

	require.NoError(t, c.SetWithTTL(ctx, "k1", "v1", time.Minute))
	got, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "v1", got)
}

func TestCache_Miss(t *testing.T) {
	c := New(DefaultConfig(), nil)
	_, err := c.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestCache_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	c := New(cfg, nil)
	ctx := context.Background()

	require.NoError(t, c.SetWithTTL(ctx, "k1", "v1", time.Minute))
	_, err := c.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestCache_Delete(t *testing.T) {
	c := New(DefaultConfig(), nil)
	ctx := context.Background()
	require.NoError(t, c.SetWithTTL(ctx, "k1", "v1", time.Minute))
	require.NoError(t, c.Delete(ctx, "k1"))
	_, err := c.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestCache_ClearPrefix(t *testing.T) {
	c := New(DefaultConfig(), nil)
	ctx := context.Background()
	require.NoError(t, c.SetWithTTL(ctx, "stage:initial:a", "1", time.Minute))
	require.NoError(t, c.SetWithTTL(ctx, "stage:initial:b", "2", time.Minute))
	require.NoError(t, c.SetWithTTL(ctx, "stage:meta:a", "3", time.Minute))

	n := c.ClearPrefix(ctx, "stage:initial:")
	assert.Equal(t, 2, n)

	_, err := c.Get(ctx, "stage:meta:a")
	require.NoError(t, err)
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Cache) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := DefaultConfig()
	cfg.Redis = rdb

	return mr, New(cfg, zap.NewNop())
}

func TestCache_RedisTier_SetAndGet(t *testing.T) {
	mr, c := setupTestRedis(t)
	defer mr.Close()
	ctx := context.Background()

	require.NoError(t, c.SetWithTTL(ctx, "k1", "v1", time.Minute))
	got, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "v1", got)
}

func TestCache_RedisTier_FallbackOnLocalMiss(t *testing.T) {
	mr, c := setupTestRedis(t)
	defer mr.Close()
	ctx := context.Background()

	require.NoError(t, c.SetWithTTL(ctx, "k1", "v1", time.Minute))
	c.local.clear() // force a local miss so the Redis tier must answer

	got, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "v1", got)

	// Redis hit should have refilled the local tier.
	_, ok := c.local.get("k1")
	assert.True(t, ok)
}

func TestCache_RedisTier_Expiry(t *testing.T) {
	mr, c := setupTestRedis(t)
	defer mr.Close()
	ctx := context.Background()

	require.NoError(t, c.SetWithTTL(ctx, "k1", "v1", 10*time.Millisecond))
	c.local.clear()
	mr.FastForward(20 * time.Millisecond)

	_, err := c.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestCache_Stats(t *testing.T) {
	c := New(DefaultConfig(), nil)
	require.NoError(t, c.SetWithTTL(context.Background(), "k1", "v1", time.Minute))

	s := c.Stats()
	assert.Equal(t, 1, s.LocalSize)
	assert.False(t, s.RedisEnabled)
}
