package redis

import (
	"fmt"
	"time"

	"github.com/gaborage/go-relay/cache"
	"github.com/gaborage/go-relay/config"
)

// Config holds Redis-specific configuration options.
type Config struct {
	Host string
	// Port defaults to 6379
	Port int
	// Password for Redis authentication (optional).
	// Should be provided via environment variable: RELAY_CACHE_REDIS_PASSWORD
	Password string //nolint:gosec // G117 - config field, loaded from env
	// Database number, 0-15
	Database int
	// PoolSize is the maximum number of socket connections
	PoolSize int

	DialTimeout time.Duration
	// ReadTimeout and WriteTimeout accept -1 to disable the timeout
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// MaxRetries of -1 disables retries
	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
}

// DefaultConfig returns a configuration for a local Redis with go-redis defaults
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            6379,
		PoolSize:        10,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	}
}

// FromConfig builds a client configuration from the cache.redis section,
// keeping defaults for settings the section does not carry.
func FromConfig(rc config.RedisConfig) *Config {
	cfg := DefaultConfig()
	cfg.Host = rc.Host
	if rc.Port != 0 {
		cfg.Port = rc.Port
	}
	cfg.Password = rc.Password
	cfg.Database = rc.Database
	if rc.PoolSize != 0 {
		cfg.PoolSize = rc.PoolSize
	}
	return cfg
}

// Validate performs fail-fast validation of Redis configuration.
func (c *Config) Validate() error {
	if c.Host == "" {
		return cache.NewConfigError("redis.host", "host is required")
	}

	if c.Port <= 0 || c.Port > 65535 {
		return cache.NewConfigError("redis.port", fmt.Sprintf("invalid port: %d", c.Port))
	}

	if c.Database < 0 || c.Database > 15 {
		return cache.NewConfigError("redis.database", fmt.Sprintf("invalid database number: %d (must be 0-15)", c.Database))
	}

	if c.PoolSize <= 0 {
		return cache.NewConfigError("redis.poolsize", fmt.Sprintf("invalid pool size: %d (must be > 0)", c.PoolSize))
	}

	if c.DialTimeout < 0 {
		return cache.NewConfigError("redis.dialtimeout", "dial timeout cannot be negative")
	}

	if c.ReadTimeout < -1 || c.WriteTimeout < -1 {
		return cache.NewConfigError("redis.timeout", "read and write timeouts cannot be less than -1")
	}

	return nil
}

// Address returns the Redis server address in "host:port" format.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
