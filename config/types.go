package config

import (
	"time"

	"github.com/knadh/koanf/v2"
)

// Config is the root application configuration
type Config struct {
	Client        ClientConfig        `koanf:"client"`
	Log           LogConfig           `koanf:"log"`
	Cache         CacheConfig         `koanf:"cache"`
	RateLimit     RateLimitConfig     `koanf:"ratelimit"`
	Observability ObservabilityConfig `koanf:"observability"`
	Metrics       MetricsConfig       `koanf:"metrics"`

	// k retains every loaded key for the typed accessors
	k *koanf.Koanf
}

// ClientConfig holds the defaults merged into every request
type ClientConfig struct {
	Timeout            time.Duration     `koanf:"timeout" validate:"gte=0"`
	MaxAttempts        int               `koanf:"maxattempts" validate:"gte=0"`
	RetryOnStatusCode  bool              `koanf:"retryonstatus"`
	RetryOnClientError bool              `koanf:"retryonclienterror"`
	KeepAlive          bool              `koanf:"keepalive"`
	BaseURL            string            `koanf:"baseurl" validate:"omitempty,url"`
	ResponseType       string            `koanf:"responsetype" validate:"omitempty,oneof=json text blob bytes form stream"`
	Headers            map[string]string `koanf:"headers"`
	Backoff            BackoffConfig     `koanf:"backoff"`
}

// BackoffConfig holds the linear retry delays
type BackoffConfig struct {
	Status    time.Duration `koanf:"status" validate:"gte=0"`
	Transport time.Duration `koanf:"transport" validate:"gte=0"`
}

// LogConfig configures the zerolog logger
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Pretty bool   `koanf:"pretty"`
}

// CacheConfig configures the response cache listener
type CacheConfig struct {
	Enabled bool          `koanf:"enabled"`
	TTL     time.Duration `koanf:"ttl" validate:"gte=0"`
	Prefix  string        `koanf:"prefix"`
	Redis   RedisConfig   `koanf:"redis"`
}

// RedisConfig holds the connection settings of the cache backend
type RedisConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port" validate:"gte=0,lte=65535"`
	Password string `koanf:"password"`
	Database int    `koanf:"database" validate:"gte=0"`
	PoolSize int    `koanf:"poolsize" validate:"gte=0"`
}

// RateLimitConfig configures the client-side rate limiter
type RateLimitConfig struct {
	Enabled bool    `koanf:"enabled"`
	RPS     float64 `koanf:"rps" validate:"gte=0"`
	Burst   int     `koanf:"burst" validate:"gte=0"`
}

// ObservabilityConfig configures OpenTelemetry export
type ObservabilityConfig struct {
	Enabled        bool              `koanf:"enabled"`
	ServiceName    string            `koanf:"servicename"`
	ServiceVersion string            `koanf:"serviceversion"`
	Environment    string            `koanf:"environment"`
	Exporter       string            `koanf:"exporter" validate:"oneof=stdout otlp-http otlp-grpc"`
	Endpoint       string            `koanf:"endpoint"`
	Insecure       bool              `koanf:"insecure"`
	Headers        map[string]string `koanf:"headers"`
	SampleRate     float64           `koanf:"samplerate" validate:"gte=0,lte=1"`
	Interval       time.Duration     `koanf:"interval" validate:"gte=0"`
}

// MetricsConfig configures the Prometheus listener
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Namespace string `koanf:"namespace"`
}
