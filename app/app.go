// Package app wires a relay client from configuration: logger, telemetry
// provider, cache backend, interceptors and the HTTP client itself.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/gaborage/go-relay/cache"
	"github.com/gaborage/go-relay/cache/redis"
	"github.com/gaborage/go-relay/config"
	"github.com/gaborage/go-relay/events"
	"github.com/gaborage/go-relay/http"
	"github.com/gaborage/go-relay/interceptors"
	"github.com/gaborage/go-relay/logger"
	"github.com/gaborage/go-relay/observability"
)

// App owns the client and everything registered on its bus.
type App struct {
	cfg       *config.Config
	logger    logger.Logger
	client    http.Client
	bus       *events.Bus
	provider  observability.Provider
	cache     cache.Cache
	ownsCache bool
	remove    func()
}

// NewFromEnv loads the configuration from defaults, config.yaml and the
// environment, then calls New.
func NewFromEnv(opts ...Option) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return New(cfg, opts...)
}

// New creates the application from cfg. Interceptors are registered in
// priority order regardless of the order they are created here.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: configuration is required")
	}
	o := resolveOptions(opts)

	log := o.Logger
	if log == nil {
		log = logger.New(cfg.Log.Level, cfg.Log.Pretty)
	}

	a := &App{cfg: cfg, logger: log, bus: events.NewBus()}

	provider, err := o.ProviderFactory(observability.FromConfig(&cfg.Observability), log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}
	a.provider = provider

	list, err := a.buildInterceptors(o)
	if err != nil {
		_ = a.closeResources(context.Background())
		return nil, err
	}
	a.remove = interceptors.RegisterAll(a.bus, list...)

	builder := http.NewBuilder(log).WithConfig(&cfg.Client).WithBus(a.bus)
	if o.Transport != nil {
		builder = builder.WithTransport(o.Transport)
	}
	a.client = builder.Build()

	log.Info().
		Str("base_url", cfg.Client.BaseURL).
		Bool("cache", a.cache != nil).
		Bool("rate_limit", cfg.RateLimit.Enabled).
		Bool("metrics", cfg.Metrics.Enabled).
		Bool("tracing", cfg.Observability.Enabled).
		Msg("relay client initialized")
	return a, nil
}

func (a *App) buildInterceptors(o *Options) ([]interceptors.Interceptor, error) {
	cfg := a.cfg
	list := []interceptors.Interceptor{
		interceptors.NewTraceID(interceptors.TraceIDOptions{W3C: true}),
		interceptors.NewLogging(a.logger, interceptors.LoggingOptions{}),
	}

	if cfg.Observability.Enabled {
		otelInterceptor, err := interceptors.NewOTel(interceptors.OTelOptions{
			TracerProvider: a.provider.TracerProvider(),
			MeterProvider:  a.provider.MeterProvider(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create tracing interceptor: %w", err)
		}
		list = append(list, otelInterceptor)
	}

	if metrics := interceptors.NewPrometheusFromConfig(&cfg.Metrics, o.Registry); metrics != nil {
		list = append(list, metrics)
	}
	if limiter := interceptors.NewRateLimitFromConfig(&cfg.RateLimit); limiter != nil {
		list = append(list, limiter)
	}

	if o.Cache != nil || cfg.Cache.Enabled {
		store := o.Cache
		if store == nil {
			var err error
			if store, err = o.CacheConnector(&cfg.Cache); err != nil {
				return nil, fmt.Errorf("failed to connect cache: %w", err)
			}
			a.ownsCache = true
		}
		a.cache = store
		list = append(list, interceptors.NewCache(store, interceptors.CacheOptionsFromConfig(&cfg.Cache, a.logger)))
	}

	return append(list, o.Interceptors...), nil
}

func connectRedis(cfg *config.CacheConfig) (cache.Cache, error) {
	client, err := redis.NewClient(redis.FromConfig(cfg.Redis))
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Client returns the configured HTTP client.
func (a *App) Client() http.Client { return a.client }

// Bus returns the dispatcher shared by the client and the interceptors.
func (a *App) Bus() events.Dispatcher { return a.bus }

// Config returns the application configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Logger returns the application logger.
func (a *App) Logger() logger.Logger { return a.logger }

// Cache returns the response cache store, nil when caching is disabled.
func (a *App) Cache() cache.Cache { return a.cache }

// Shutdown unregisters the interceptors, flushes telemetry and closes the
// cache connection the app opened. Errors are joined.
func (a *App) Shutdown(ctx context.Context) error {
	if a.remove != nil {
		a.remove()
		a.remove = nil
	}
	err := a.closeResources(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("relay client shutdown finished with errors")
		return err
	}
	a.logger.Info().Msg("relay client stopped")
	return nil
}

func (a *App) closeResources(ctx context.Context) error {
	var errs []error
	if a.provider != nil {
		if err := a.provider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("observability: %w", err))
		}
		a.provider = nil
	}
	if a.cache != nil && a.ownsCache {
		if err := a.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cache: %w", err))
		}
	}
	a.cache = nil
	return errors.Join(errs...)
}
