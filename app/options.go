package app

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gaborage/go-relay/cache"
	"github.com/gaborage/go-relay/config"
	"github.com/gaborage/go-relay/http"
	"github.com/gaborage/go-relay/interceptors"
	"github.com/gaborage/go-relay/logger"
	"github.com/gaborage/go-relay/observability"
)

// Options contains optional dependencies for creating an App instance
type Options struct {
	Logger logger.Logger

	// Cache replaces the Redis backend built from the cache config section.
	Cache cache.Cache

	// CacheConnector opens the cache backend; defaults to Redis.
	CacheConnector func(*config.CacheConfig) (cache.Cache, error)

	// Registry receives the Prometheus collectors; the default registerer when nil.
	Registry prometheus.Registerer

	Transport http.Transport

	// ProviderFactory builds the telemetry provider; defaults to observability.NewProvider.
	ProviderFactory func(*observability.Config, logger.Logger) (observability.Provider, error)

	// Interceptors are registered after the configured ones, e.g. authentication.
	Interceptors []interceptors.Interceptor
}

// Option mutates Options
type Option func(*Options)

// WithLogger sets the application logger instead of one built from the log section
func WithLogger(log logger.Logger) Option {
	return func(o *Options) { o.Logger = log }
}

// WithCache uses c as the response cache store
func WithCache(c cache.Cache) Option {
	return func(o *Options) { o.Cache = c }
}

// WithRegistry sets the Prometheus registerer
func WithRegistry(r prometheus.Registerer) Option {
	return func(o *Options) { o.Registry = r }
}

// WithTransport sends requests through t
func WithTransport(t http.Transport) Option {
	return func(o *Options) { o.Transport = t }
}

// WithProviderFactory overrides how the telemetry provider is created
func WithProviderFactory(f func(*observability.Config, logger.Logger) (observability.Provider, error)) Option {
	return func(o *Options) { o.ProviderFactory = f }
}

// WithInterceptors appends interceptors to the client bus
func WithInterceptors(list ...interceptors.Interceptor) Option {
	return func(o *Options) { o.Interceptors = append(o.Interceptors, list...) }
}

func resolveOptions(opts []Option) *Options {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.CacheConnector == nil {
		o.CacheConnector = connectRedis
	}
	if o.ProviderFactory == nil {
		o.ProviderFactory = observability.NewProvider
	}
	return o
}

// WithCacheConnector overrides how the cache backend is opened
func WithCacheConnector(f func(*config.CacheConfig) (cache.Cache, error)) Option {
	return func(o *Options) { o.CacheConnector = f }
}
