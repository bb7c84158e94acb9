package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/weiawesome/emergency-chat-relay/internal/config"
	"github.com/weiawesome/emergency-chat-relay/internal/domain"
)

type RedisHistoryCache struct {
	client *redis.Client
	prefix string
}

func NewRedisHistoryCache(cfg config.CacheConfig) (*RedisHistoryCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisHistoryCache(client, cfg.Prefix), nil
}

func newRedisHistoryCache(client *redis.Client, prefix string) *RedisHistoryCache {
	return &RedisHistoryCache{client: client, prefix: prefix}
}

func (c *RedisHistoryCache) versionKey(emergencyID string) string {
	return fmt.Sprintf("%s:ver:%s", c.prefix, emergencyID)
}

func (c *RedisHistoryCache) dataKey(emergencyID string, version int64) string {
	return fmt.Sprintf("%s:%s:v%d", c.prefix, emergencyID, version)
}

func (c *RedisHistoryCache) Version(ctx context.Context, emergencyID string) (int64, error) {
	v, err := c.client.Get(ctx, c.versionKey(emergencyID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get version from redis: %w", err)
	}
	return v, nil
}

func (c *RedisHistoryCache) Get(ctx context.Context, emergencyID string, version int64) ([]domain.HistoryMessage, error) {
	data, err := c.client.Get(ctx, c.dataKey(emergencyID, version)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var messages []domain.HistoryMessage
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	return messages, nil
}

func (c *RedisHistoryCache) Set(ctx context.Context, emergencyID string, version int64, messages []domain.HistoryMessage, ttl time.Duration) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	if err := c.client.Set(ctx, c.dataKey(emergencyID, version), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

// Invalidate bumps the version. The version key has no TTL so a counter
// never falls back to a value whose data may still be cached.
func (c *RedisHistoryCache) Invalidate(ctx context.Context, emergencyID string) error {
	if err := c.client.Incr(ctx, c.versionKey(emergencyID)).Err(); err != nil {
		return fmt.Errorf("failed to bump version in redis: %w", err)
	}
	return nil
}

func (c *RedisHistoryCache) Close() error {
	return c.client.Close()
}

// New returns the cache named by cfg.Driver.
func New(cfg config.CacheConfig) (HistoryCache, error) {
	switch cfg.Driver {
	case "", "none":
		return NopCache{}, nil
	case "redis":
		return NewRedisHistoryCache(cfg)
	default:
		return nil, fmt.Errorf("unsupported cache driver: %s", cfg.Driver)
	}
}
