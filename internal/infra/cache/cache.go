package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a thin key-value facade over Redis with a best-effort
// mutual-exclusion primitive. Read failures degrade to zero values so a
// cache outage never breaks a read path; write failures propagate and the
// caller decides whether to proceed uncached.
type Cache struct {
	client *redis.Client
	logger *slog.Logger
}

func New(client *redis.Client, logger *slog.Logger) *Cache {
	return &Cache{
		client: client,
		logger: logger.With(slog.String("component", "cache")),
	}
}

// Get returns the value and whether the key was present. Connectivity
// errors are logged and reported as a miss.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		return "", false
	}
	return val, true
}

func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %q: %w", key, err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

func (c *Cache) Exists(ctx context.Context, key string) bool {
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		c.logger.Warn("cache exists failed", "key", key, "error", err)
		return false
	}
	return n > 0
}

func (c *Cache) Increment(ctx context.Context, key string, by int64) (int64, error) {
	n, err := c.client.IncrBy(ctx, key, by).Result()
	if err != nil {
		return 0, fmt.Errorf("cache increment %q: %w", key, err)
	}
	return n, nil
}

// MGet returns values positionally; absent keys yield empty strings.
func (c *Cache) MGet(ctx context.Context, keys ...string) []string {
	values := make([]string, len(keys))
	if len(keys) == 0 {
		return values
	}

	raw, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn("cache mget failed", "keys", len(keys), "error", err)
		return values
	}

	for i, v := range raw {
		if s, ok := v.(string); ok {
			values[i] = s
		}
	}
	return values
}

func (c *Cache) MSet(ctx context.Context, pairs map[string]string) error {
	if len(pairs) == 0 {
		return nil
	}

	args := make([]interface{}, 0, len(pairs)*2)
	for k, v := range pairs {
		args = append(args, k, v)
	}
	if err := c.client.MSet(ctx, args...).Err(); err != nil {
		return fmt.Errorf("cache mset: %w", err)
	}
	return nil
}

// AcquireLock sets the lock key only if absent. The TTL makes the lock
// self-healing after a crash mid-section; it is advisory, not consensus.
func (c *Cache) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, lockKey, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cache lock %q: %w", lockKey, err)
	}
	return ok, nil
}

func (c *Cache) ReleaseLock(ctx context.Context, lockKey string) error {
	if err := c.client.Del(ctx, lockKey).Err(); err != nil {
		return fmt.Errorf("cache unlock %q: %w", lockKey, err)
	}
	return nil
}

// AcquireLockAndSet writes dataKey only while holding lockKey. Returns false
// without writing when the lock is already held elsewhere.
func (c *Cache) AcquireLockAndSet(ctx context.Context, lockKey, dataKey, value string, ttl, lockTimeout time.Duration) (bool, error) {
	acquired, err := c.AcquireLock(ctx, lockKey, lockTimeout)
	if err != nil {
		return false, err
	}
	if !acquired {
		return false, nil
	}

	defer func() {
		if err := c.ReleaseLock(ctx, lockKey); err != nil {
			c.logger.Warn("failed to release lock", "key", lockKey, "error", err)
		}
	}()

	if err := c.Set(ctx, dataKey, value, ttl); err != nil {
		return false, err
	}
	return true, nil
}
