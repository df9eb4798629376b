// Package config loads the relay configuration from defaults, an optional
// YAML file and RELAY_ prefixed environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is stripped from environment variables before mapping them to
	// keys: RELAY_CLIENT_TIMEOUT becomes client.timeout
	EnvPrefix = "RELAY_"

	// DefaultFile is the YAML file read by Load when present
	DefaultFile = "relay.yaml"
)

// Load reads DefaultFile (if it exists) and the environment
func Load() (*Config, error) {
	return LoadFile(DefaultFile)
}

// LoadFile reads defaults, the YAML file at path (skipped when missing) and
// the environment
func LoadFile(path string) (*Config, error) {
	return load(func(k *koanf.Koanf) error {
		if path == "" {
			return nil
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
		return nil
	})
}

// LoadBytes reads defaults, the YAML document in data and the environment
func LoadBytes(data []byte) (*Config, error) {
	return load(func(k *koanf.Koanf) error {
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return fmt.Errorf("failed to parse yaml: %w", err)
		}
		return nil
	})
}

func load(source func(*koanf.Koanf) error) (*Config, error) {
	k := koanf.New(".")

	// Load default configuration first
	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := source(k); err != nil {
		return nil, err
	}

	// Load environment variables (highest priority)
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			// Convert RELAY_UPPER_CASE to upper.case for koanf
			key = strings.TrimPrefix(key, EnvPrefix)
			return strings.ReplaceAll(strings.ToLower(key), "_", "."), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Store the Koanf instance for flexible access
	cfg.k = k

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"client.timeout":            "30s",
		"client.maxattempts":        3,
		"client.retryonstatus":      false,
		"client.retryonclienterror": false,
		"client.keepalive":          false,
		"client.responsetype":       "json",
		"client.backoff.status":     "500ms",
		"client.backoff.transport":  "1s",

		"log.level":  "info",
		"log.pretty": false,

		"cache.enabled":        false,
		"cache.ttl":            "5m",
		"cache.prefix":         "relay:",
		"cache.redis.host":     "localhost",
		"cache.redis.port":     6379,
		"cache.redis.database": 0,
		"cache.redis.poolsize": 10,

		"ratelimit.enabled": false,
		"ratelimit.rps":     10.0,
		"ratelimit.burst":   10,

		"observability.enabled":        false,
		"observability.servicename":    "relay-client",
		"observability.serviceversion": "unknown",
		"observability.environment":    "development",
		"observability.exporter":       "stdout",
		"observability.samplerate":     1.0,
		"observability.interval":       "10s",

		"metrics.enabled":   false,
		"metrics.namespace": "relay",
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}

// GetString retrieves a string value from the configuration or the provided default.
func (c *Config) GetString(key string, defaultVal ...string) string {
	if !c.Exists(key) {
		return optionalDefault("", defaultVal...)
	}
	return c.k.String(key)
}

// GetInt retrieves an int value from the configuration or the provided default.
func (c *Config) GetInt(key string, defaultVal ...int) int {
	if !c.Exists(key) {
		return optionalDefault(0, defaultVal...)
	}
	return c.k.Int(key)
}

// GetBool retrieves a bool value from the configuration or the provided default.
func (c *Config) GetBool(key string, defaultVal ...bool) bool {
	if !c.Exists(key) {
		return optionalDefault(false, defaultVal...)
	}
	return c.k.Bool(key)
}

// GetDuration retrieves a duration value from the configuration or the provided default.
func (c *Config) GetDuration(key string, defaultVal ...time.Duration) time.Duration {
	if !c.Exists(key) {
		return optionalDefault(time.Duration(0), defaultVal...)
	}
	return c.k.Duration(key)
}

// GetRequiredString retrieves a required non-empty string value from the configuration.
func (c *Config) GetRequiredString(key string) (string, error) {
	if !c.Exists(key) {
		return "", fmt.Errorf("required configuration key '%s' is missing", key)
	}
	val := strings.TrimSpace(c.k.String(key))
	if val == "" {
		return "", fmt.Errorf("required configuration key '%s' is empty", key)
	}
	return val, nil
}

// Unmarshal unmarshals a configuration section into the provided struct.
func (c *Config) Unmarshal(key string, out any) error {
	if c == nil || c.k == nil {
		return fmt.Errorf("configuration not initialized")
	}
	return c.k.Unmarshal(key, out)
}

// Exists checks if a configuration key exists.
func (c *Config) Exists(key string) bool {
	if c == nil || c.k == nil {
		return false
	}
	return c.k.Exists(key)
}

func optionalDefault[T any](zero T, overrides ...T) T {
	if len(overrides) > 0 {
		return overrides[0]
	}
	return zero
}
