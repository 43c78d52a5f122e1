// Package storecache provides the Redis-backed validation cache and the
// per-store harvest lock.
package storecache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"shopharvest/packages/domain"
)

const (
	validationKeyPrefix = "shopharvest:validation:"
	lockKeyPrefix       = "shopharvest:harvest_lock:"
)

type Config struct {
	Addr           string
	Password       string
	DB             int
	ValidationTTL  time.Duration
	HarvestLockTTL time.Duration
}

type Cache struct {
	client *redis.Client
	cfg    Config
}

func New(ctx context.Context, cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Cache{client: client, cfg: cfg}, nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}

// GetValidation returns a cached probe result for a normalized store URL.
// A cache miss or a Redis error both read as "not cached" — the validator
// is cheap enough to fall back to.
func (c *Cache) GetValidation(ctx context.Context, normalizedURL string) (domain.ValidationResult, bool) {
	data, err := c.client.Get(ctx, validationKeyPrefix+normalizedURL).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("Validation cache read failed", "url", normalizedURL, "error", err)
		}
		return domain.ValidationResult{}, false
	}
	var result domain.ValidationResult
	if err := json.Unmarshal(data, &result); err != nil {
		return domain.ValidationResult{}, false
	}
	return result, true
}

func (c *Cache) PutValidation(ctx context.Context, normalizedURL string, result domain.ValidationResult) {
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, validationKeyPrefix+normalizedURL, data, c.cfg.ValidationTTL).Err(); err != nil {
		slog.Warn("Validation cache write failed", "url", normalizedURL, "error", err)
	}
}

// AcquireLock takes the per-store harvest lock. The TTL is a safety net for
// crashed workers; normal completion releases explicitly.
func (c *Cache) AcquireLock(ctx context.Context, normalizedURL string) (bool, error) {
	return c.client.SetNX(ctx, lockKeyPrefix+normalizedURL, 1, c.cfg.HarvestLockTTL).Result()
}

func (c *Cache) ReleaseLock(ctx context.Context, normalizedURL string) {
	if err := c.client.Del(ctx, lockKeyPrefix+normalizedURL).Err(); err != nil {
		slog.Warn("Failed to release harvest lock", "url", normalizedURL, "error", err)
	}
}
