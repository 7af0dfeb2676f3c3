package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/helixml/codeframe/domain/embedding"
)

// DefaultRedisTTL is how long a vector lives in Redis when no TTL is configured.
const DefaultRedisTTL = 7 * 24 * time.Hour

const keyPrefix = "codeframe:embedding:"

// Redis is an embedding tier shared between processes.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedis creates a Redis tier from a redis:// URL and checks the connection.
func NewRedis(ctx context.Context, url string, ttl time.Duration, logger *slog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisWithClient(client, ttl, logger), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, ttl: ttl, logger: logger}
}

// Name implements embedding.Tier.
func (c *Redis) Name() string { return "redis" }

// GetMany implements embedding.Tier.
func (c *Redis) GetMany(ctx context.Context, keys []embedding.Key) (map[embedding.Key][]float64, error) {
	out := make(map[embedding.Key][]float64, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = keyPrefix + k.String()
	}
	values, err := c.client.MGet(ctx, names...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var vector []float64
		if err := json.Unmarshal([]byte(s), &vector); err != nil {
			c.logger.Warn("discarding corrupt cached vector", slog.String("key", names[i]), slog.Any("error", err))
			continue
		}
		out[keys[i]] = vector
	}
	return out, nil
}

// SetMany implements embedding.Tier.
func (c *Redis) SetMany(ctx context.Context, entries []embedding.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for _, e := range entries {
		data, err := json.Marshal(e.Vector())
		if err != nil {
			return fmt.Errorf("encode vector: %w", err)
		}
		pipe.Set(ctx, keyPrefix+e.Key().String(), data, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

// Close closes the client.
func (c *Redis) Close() error {
	return c.client.Close()
}
