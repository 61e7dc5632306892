// Package cache memoizes evaluation results in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection settings
type Config struct {
	Addrs     []string
	Password  string
	DB        int
	Namespace string
	TTL       time.Duration
}

// DefaultConfig returns default development configuration
func DefaultConfig() *Config {
	return &Config{
		Addrs:     []string{"localhost:6379"},
		Namespace: "template-rules",
		TTL:       10 * time.Minute,
	}
}

// Cache stores JSON values under a namespace with a fixed TTL
type Cache struct {
	client    redis.UniversalClient
	namespace string
	ttl       time.Duration
}

// NewCache connects to a single node, or a cluster when several addresses are given
func NewCache(cfg *Config) *Cache {
	var client redis.UniversalClient
	if len(cfg.Addrs) > 1 {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    cfg.Addrs,
			Password: cfg.Password,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Addrs[0],
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}
	return NewCacheWithClient(client, cfg.Namespace, cfg.TTL)
}

// NewCacheWithClient wraps an existing client
func NewCacheWithClient(client redis.UniversalClient, namespace string, ttl time.Duration) *Cache {
	return &Cache{client: client, namespace: namespace, ttl: ttl}
}

func (c *Cache) key(key string) string {
	if c.namespace == "" {
		return key
	}
	return c.namespace + ":" + key
}

// GetJSON decodes the cached value into dest. A miss returns false with no error.
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to decode cached value: %w", err)
	}
	return true, nil
}

// SetJSON stores value under key for the configured TTL
func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}
	if err := c.client.Set(ctx, c.key(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}

// Delete removes a key
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

// Ping checks connectivity
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client
func (c *Cache) Close() error {
	return c.client.Close()
}
