// Package cache provides a Redis-backed response cache for read-heavy
// endpoints whose answers change only when a sync cycle writes.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis caches JSON-serializable values under a common key prefix with a
// fixed TTL. Misses and unmarshal failures are reported as absent, never
// as errors the caller must branch on separately.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(redisURL string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisWithClient(client, ttl), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Redis{
		client: client,
		prefix: "searchlight:",
		ttl:    ttl,
	}
}

func (c *Redis) key(name string) string {
	return c.prefix + name
}

// Get loads the cached value under name into target. Returns false on a
// miss or an undecodable entry.
func (c *Redis) Get(ctx context.Context, name string, target any) (bool, error) {
	payload, err := c.client.Get(ctx, c.key(name)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(payload), target); err != nil {
		return false, nil
	}
	return true, nil
}

// Set stores value under name with the configured TTL.
func (c *Redis) Set(ctx context.Context, name string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal %s: %w", name, err)
	}
	if err := c.client.Set(ctx, c.key(name), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", name, err)
	}
	return nil
}

// Ping reports connectivity for the readiness check.
func (c *Redis) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (c *Redis) Close() error {
	return c.client.Close()
}
