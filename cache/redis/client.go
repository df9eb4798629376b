// Package redis implements cache.Cache on top of go-redis.
package redis

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gaborage/go-relay/cache"
	"github.com/gaborage/go-relay/cache/internal/tracking"
)

const (
	connectTimeout = 5 * time.Second
	statsTimeout   = 3 * time.Second
)

// Client implements the cache.Cache interface using Redis as the backend.
type Client struct {
	client    *redis.Client
	config    *Config
	namespace string
	closed    atomic.Bool

	hits   atomic.Int64
	misses atomic.Int64
}

var _ cache.Cache = (*Client)(nil)

// NewClient creates a new Redis cache client.
// Validates configuration and establishes connection.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, cache.NewConfigError("redis", "configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:            cfg.Address(),
		Password:        cfg.Password,
		DB:              cfg.Database,
		PoolSize:        cfg.PoolSize,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: cfg.MinRetryBackoff,
		MaxRetryBackoff: cfg.MaxRetryBackoff,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, cache.NewBackendError(cache.OpPing, cfg.Address(), err)
	}

	return &Client{
		client:    client,
		config:    cfg,
		namespace: strconv.Itoa(cfg.Database),
	}, nil
}

// Get retrieves a value from the cache.
// Returns cache.ErrNotFound if the key doesn't exist.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	if c.closed.Load() {
		return nil, cache.ErrClosed
	}

	start := time.Now()
	result, err := c.client.Get(ctx, key).Bytes()
	duration := time.Since(start)

	if errors.Is(err, redis.Nil) {
		c.misses.Add(1)
		tracking.RecordCacheOperation(ctx, tracking.OpGet, duration, false, nil, c.namespace)
		return nil, cache.ErrNotFound
	}
	tracking.RecordCacheOperation(ctx, tracking.OpGet, duration, err == nil, err, c.namespace)

	if err != nil {
		return nil, cache.NewBackendError(cache.OpGet, key, err)
	}
	c.hits.Add(1)
	return result, nil
}

// Set stores a value in the cache with the specified TTL.
// TTL of 0 means no expiration. Returns cache.ErrInvalidTTL if TTL is negative.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.closed.Load() {
		return cache.ErrClosed
	}
	if ttl < 0 {
		return cache.ErrInvalidTTL
	}

	start := time.Now()
	err := c.client.Set(ctx, key, value, ttl).Err()
	tracking.RecordCacheOperation(ctx, tracking.OpSet, time.Since(start), false, err, c.namespace)

	if err != nil {
		return cache.NewBackendError(cache.OpSet, key, err)
	}
	return nil
}

// Delete removes a key from the cache.
// Does not return error if key doesn't exist.
func (c *Client) Delete(ctx context.Context, key string) error {
	if c.closed.Load() {
		return cache.ErrClosed
	}

	start := time.Now()
	err := c.client.Del(ctx, key).Err()
	tracking.RecordCacheOperation(ctx, tracking.OpDelete, time.Since(start), false, err, c.namespace)

	if err != nil {
		return cache.NewBackendError(cache.OpDelete, key, err)
	}
	return nil
}

// Health checks if the Redis connection is healthy.
func (c *Client) Health(ctx context.Context) error {
	if c.closed.Load() {
		return cache.ErrClosed
	}

	start := time.Now()
	err := c.client.Ping(ctx).Err()
	tracking.RecordCacheOperation(ctx, tracking.OpHealth, time.Since(start), false, err, c.namespace)

	if err != nil {
		return cache.NewBackendError(cache.OpPing, c.config.Address(), err)
	}
	return nil
}

// Stats returns lookup counters, the key count of the selected database and
// connection pool statistics.
func (c *Client) Stats() (map[string]any, error) {
	if c.closed.Load() {
		return nil, cache.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
	defer cancel()

	keys, err := c.client.DBSize(ctx).Result()
	if err != nil {
		return nil, cache.NewBackendError(cache.OpStats, "DBSIZE", err)
	}

	poolStats := c.client.PoolStats()

	return map[string]any{
		"hits":             c.hits.Load(),
		"misses":           c.misses.Load(),
		"keys":             keys,
		"pool_hits":        poolStats.Hits,
		"pool_misses":      poolStats.Misses,
		"pool_timeouts":    poolStats.Timeouts,
		"pool_total_conns": poolStats.TotalConns,
		"pool_idle_conns":  poolStats.IdleConns,
	}, nil
}

// Close closes the Redis client and releases resources.
// Calling it again returns cache.ErrClosed.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return cache.ErrClosed
	}
	return c.client.Close()
}
