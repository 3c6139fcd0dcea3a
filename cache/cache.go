package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrMiss is returned by Get when no entry exists for the key (or it has
// expired).
var ErrMiss = errors.New("cache miss")

const keyPrefix = "orchestra:cache:"

// Config tunes a Cache instance (spec §4.4).
type Config struct {
	LocalMaxSize int
	DefaultTTL   time.Duration
	Redis        *redis.Client // nil disables the Redis tier
	Enabled      bool          // CacheEnabled; false makes every op a no-op miss
}

// DefaultConfig mirrors the teacher's DefaultCacheConfig defaults, minus the
// struct-reflection cacheability check (this engine decides cacheability
// via GenerateOptions.SkipCache, not request-shape inspection).
func DefaultConfig() Config {
	return Config{
		LocalMaxSize: 1000,
		DefaultTTL:   1 * time.Hour,
		Enabled:      true,
	}
}

// Cache is the two-tier Response Cache: an always-present in-process LRU,
// backed by an optional Redis tier for cross-process sharing.
type Cache struct {
	cfg    Config
	local  *lru
	logger *zap.Logger
}

// New builds a Cache from cfg.
func New(cfg Config, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 1 * time.Hour
	}
	return &Cache{
		cfg:    cfg,
		local:  newLRU(cfg.LocalMaxSize),
		logger: logger,
	}
}

func (c *Cache) redisKey(key string) string {
	return keyPrefix + key
}

// Get returns the cached payload for key, checking the local tier first and
// falling back to Redis (refilling the local tier on a Redis hit).
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	if !c.cfg.Enabled {
		return "", ErrMiss
	}

	if entry, ok := c.local.get(key); ok {
		return entry.Payload, nil
	}

	if c.cfg.Redis != nil {
		data, err := c.cfg.Redis.Get(ctx, c.redisKey(key)).Result()
		if err == nil {
			entry := Entry{Payload: data, CreatedAt: time.Now(), TTL: c.cfg.DefaultTTL}
			c.local.set(key, entry)
			return data, nil
		}
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis get error", zap.Error(err), zap.String("key", key))
		}
	}

	return "", ErrMiss
}

// SetWithTTL stores payload under key in every enabled tier, using ttl (or
// the configured default when ttl <= 0).
func (c *Cache) SetWithTTL(ctx context.Context, key, payload string, ttl time.Duration) error {
	if !c.cfg.Enabled {
		return nil
	}
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}

	c.local.set(key, Entry{Payload: payload, CreatedAt: time.Now(), TTL: ttl})

	if c.cfg.Redis != nil {
		if err := c.cfg.Redis.Set(ctx, c.redisKey(key), payload, ttl).Err(); err != nil {
			c.logger.Warn("redis set error", zap.Error(err), zap.String("key", key))
			return err
		}
	}
	return nil
}

// Delete removes key from every tier.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.local.delete(key)
	if c.cfg.Redis != nil {
		if err := c.cfg.Redis.Del(ctx, c.redisKey(key)).Err(); err != nil {
			return err
		}
	}
	return nil
}

// ExistsByPattern reports whether any local-tier key starts with prefix.
// Redis is not scanned (a SCAN-based prefix match is not worth the
// production cost for a check this engine only uses for diagnostics).
func (c *Cache) ExistsByPattern(prefix string) bool {
	c.local.mu.Lock()
	defer c.local.mu.Unlock()
	for k := range c.local.items {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}

// ClearPrefix removes every local-tier entry whose key starts with prefix.
func (c *Cache) ClearPrefix(ctx context.Context, prefix string) int {
	c.local.mu.Lock()
	var toDelete []string
	for k := range c.local.items {
		if strings.HasPrefix(k, prefix) {
			toDelete = append(toDelete, k)
		}
	}
	c.local.mu.Unlock()

	for _, k := range toDelete {
		c.local.delete(k)
		if c.cfg.Redis != nil {
			c.cfg.Redis.Del(ctx, c.redisKey(k))
		}
	}
	return len(toDelete)
}

// Stats reports the in-process tier's current size and capacity.
type Stats struct {
	LocalSize     int
	LocalCapacity int
	RedisEnabled  bool
}

func (c *Cache) Stats() Stats {
	return Stats{
		LocalSize:     c.local.size(),
		LocalCapacity: c.local.capacity,
		RedisEnabled:  c.cfg.Redis != nil,
	}
}

// String implements fmt.Stringer for debug logging.
func (c *Cache) String() string {
	s := c.Stats()
	return fmt.Sprintf("Cache(local=%d/%d redis=%v)", s.LocalSize, s.LocalCapacity, s.RedisEnabled)
}
