package observability

import (
	"fmt"
	"io"
	"maps"
	"strings"
	"time"

	"github.com/gaborage/go-relay/config"
)

const (
	// ExporterStdout writes spans and metrics to stdout (for local development).
	ExporterStdout = "stdout"

	// ExporterOTLPHTTP exports over OTLP HTTP/protobuf.
	ExporterOTLPHTTP = "otlp-http"

	// ExporterOTLPGRPC exports over OTLP gRPC.
	ExporterOTLPGRPC = "otlp-grpc"

	// EnvironmentDevelopment is the default environment name.
	EnvironmentDevelopment = "development"

	// DefaultMetricInterval is how often metrics are pushed.
	DefaultMetricInterval = 10 * time.Second

	// DefaultBatchTimeout bounds how long spans wait in the batch processor.
	DefaultBatchTimeout = 5 * time.Second
)

// Float64Ptr returns a pointer to the provided float64 value.
func Float64Ptr(v float64) *float64 {
	return &v
}

// Config defines the configuration for the telemetry provider.
type Config struct {
	// Enabled controls whether observability is active.
	// When false, NewProvider returns no-op providers.
	Enabled bool

	Service ServiceConfig

	// Environment indicates the deployment environment (e.g., production, staging, development).
	Environment string

	// Exporter selects where telemetry goes: stdout, otlp-http or otlp-grpc.
	Exporter string

	// Endpoint is the OTLP collector address in "host:port" form.
	Endpoint string

	// Insecure disables TLS for OTLP exporters.
	Insecure bool

	// Headers are sent with every OTLP export (e.g., API keys).
	Headers map[string]string

	// SampleRate is the fraction of traces kept; nil means 1.0.
	SampleRate *float64

	// MetricInterval is the push interval of the periodic metric reader.
	MetricInterval time.Duration

	// BatchTimeout is the span batch processor timeout.
	BatchTimeout time.Duration

	// Writer redirects the stdout exporters; os.Stdout when nil.
	Writer io.Writer
}

// ServiceConfig contains service identification metadata.
type ServiceConfig struct {
	// Name identifies the service in traces and metrics.
	// This is required when observability is enabled.
	Name    string
	Version string
}

// FromConfig maps the observability section of the application configuration.
func FromConfig(cfg *config.ObservabilityConfig) *Config {
	var headers map[string]string
	if cfg.Headers != nil {
		headers = maps.Clone(cfg.Headers)
	}
	return &Config{
		Enabled: cfg.Enabled,
		Service: ServiceConfig{
			Name:    cfg.ServiceName,
			Version: cfg.ServiceVersion,
		},
		Environment:    cfg.Environment,
		Exporter:       cfg.Exporter,
		Endpoint:       cfg.Endpoint,
		Insecure:       cfg.Insecure,
		Headers:        headers,
		SampleRate:     Float64Ptr(cfg.SampleRate),
		MetricInterval: cfg.Interval,
	}
}

// ApplyDefaults sets default values for any config fields that are not specified.
func (c *Config) ApplyDefaults() {
	if c.Service.Version == "" {
		c.Service.Version = "unknown"
	}
	if c.Environment == "" {
		c.Environment = EnvironmentDevelopment
	}
	if c.Exporter == "" {
		c.Exporter = ExporterStdout
	}
	if c.SampleRate == nil {
		c.SampleRate = Float64Ptr(1.0)
	}
	if c.MetricInterval <= 0 {
		c.MetricInterval = DefaultMetricInterval
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = DefaultBatchTimeout
	}
}

// Validate checks the configuration. A disabled config is always valid.
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if !c.Enabled {
		return nil
	}
	if c.Service.Name == "" {
		return ErrMissingServiceName
	}
	if c.SampleRate != nil && (*c.SampleRate < 0 || *c.SampleRate > 1) {
		return fmt.Errorf("%w: got %v", ErrInvalidSampleRate, *c.SampleRate)
	}

	switch c.Exporter {
	case "", ExporterStdout:
		return nil
	case ExporterOTLPHTTP, ExporterOTLPGRPC:
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidExporter, c.Exporter)
	}

	if c.Endpoint == "" {
		return ErrMissingEndpoint
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("%w: %s endpoint %q must be host:port", ErrInvalidEndpointFormat, c.Exporter, c.Endpoint)
	}
	return nil
}
