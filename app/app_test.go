package app

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/gaborage/go-relay/cache"
	cachetest "github.com/gaborage/go-relay/cache/testing"
	"github.com/gaborage/go-relay/config"
	"github.com/gaborage/go-relay/http"
	"github.com/gaborage/go-relay/interceptors"
	"github.com/gaborage/go-relay/logger"
	"github.com/gaborage/go-relay/observability"
	obstest "github.com/gaborage/go-relay/observability/testing"
)

type countingServer struct {
	*httptest.Server
	calls atomic.Int32
}

func newCountingServer(t *testing.T) *countingServer {
	t.Helper()
	cs := &countingServer{}
	cs.Server = httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		cs.calls.Add(1)
		// the bearer token is shared by every caller, so the response may be too
		w.Header().Set("Cache-Control", "public, max-age=60")
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"path":%q,"auth":%q}`, r.URL.Path, r.Header.Get("Authorization"))
	}))
	t.Cleanup(cs.Close)
	return cs
}

func loadConfig(t *testing.T, baseURL, extra string) *config.Config {
	t.Helper()
	cfg, err := config.LoadBytes(fmt.Appendf(nil, "client:\n  baseurl: %s\n%s", baseURL, extra))
	require.NoError(t, err)
	return cfg
}

// telemetryProvider adapts the in-memory providers to observability.Provider.
type telemetryProvider struct {
	tel *obstest.Telemetry
}

func (p telemetryProvider) TracerProvider() trace.TracerProvider { return p.tel.Traces }

func (p telemetryProvider) MeterProvider() metric.MeterProvider { return p.tel.Metrics }

func (p telemetryProvider) Shutdown(context.Context) error { return nil }

func (p telemetryProvider) ForceFlush(ctx context.Context) error {
	return p.tel.Traces.ForceFlush(ctx)
}

func TestNewWiresConfiguredInterceptors(t *testing.T) {
	server := newCountingServer(t)
	cfg := loadConfig(t, server.URL, `
cache:
  enabled: true
metrics:
  enabled: true
  namespace: apptest
ratelimit:
  enabled: true
  rps: 1000
`)
	store := cachetest.NewMockCache()
	registry := prometheus.NewRegistry()

	a, err := New(cfg,
		WithLogger(logger.NewNop()),
		WithCache(store),
		WithRegistry(registry),
		WithInterceptors(interceptors.NewBearerAuth("app-token")),
	)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := a.Client().Get(ctx, http.NewRequest("/users"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"path": "/users", "auth": "Bearer app-token"}, first.Data)

	second, err := a.Client().Get(ctx, http.NewRequest("/users"))
	require.NoError(t, err)
	assert.Equal(t, "HIT", second.Headers.Get(interceptors.HeaderCache))
	assert.True(t, second.Stats.ShortCircuited)
	assert.Equal(t, int32(1), server.calls.Load())
	assert.Same(t, cache.Cache(store), a.Cache())

	count, err := testutil.GatherAndCount(registry, "apptest_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, a.Shutdown(ctx))
	assert.False(t, store.IsClosed(), "caller-provided cache stays open")
	assert.False(t, a.Bus().HasListeners(http.PhaseRequest))
}

func TestNewMinimalConfig(t *testing.T) {
	server := newCountingServer(t)
	a, err := New(loadConfig(t, server.URL, ""), WithLogger(logger.NewNop()))
	require.NoError(t, err)

	assert.Nil(t, a.Cache())
	assert.Equal(t, server.URL, a.Config().Client.BaseURL)
	assert.NotNil(t, a.Logger())

	resp, err := a.Client().Get(context.Background(), http.NewRequest("/ping"))
	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)

	results, err := a.Health(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, disabledStatus, results[0].Status)

	require.NoError(t, a.Shutdown(context.Background()))
}

func TestNewConnectsRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	server := newCountingServer(t)
	cfg := loadConfig(t, server.URL, "cache:\n  enabled: true\n")
	cfg.Cache.Redis.Host = mr.Host()
	cfg.Cache.Redis.Port = mr.Server().Addr().Port

	a, err := New(cfg, WithLogger(logger.NewNop()))
	require.NoError(t, err)
	ctx := context.Background()

	for range 2 {
		_, err = a.Client().Get(ctx, http.NewRequest("/cached"))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), server.calls.Load())
	assert.True(t, mr.Exists("relay:GET:"+server.URL+"/cached"))

	results, err := a.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, statusHealthy, results[0].Status)

	require.NoError(t, a.Shutdown(ctx))
}

func TestNewFailures(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	boom := errors.New("unreachable")
	cfg := loadConfig(t, "http://localhost", "cache:\n  enabled: true\n")

	_, err = New(cfg,
		WithLogger(logger.NewNop()),
		WithCacheConnector(func(*config.CacheConfig) (cache.Cache, error) { return nil, boom }),
	)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failed to connect cache")

	_, err = New(cfg,
		WithLogger(logger.NewNop()),
		WithProviderFactory(func(*observability.Config, logger.Logger) (observability.Provider, error) {
			return nil, boom
		}),
	)
	assert.ErrorIs(t, err, boom)
}

func TestNewWithTracing(t *testing.T) {
	server := newCountingServer(t)
	cfg := loadConfig(t, server.URL, "observability:\n  enabled: true\n")
	tel := obstest.NewTelemetry(t)

	var got *observability.Config
	a, err := New(cfg,
		WithLogger(logger.NewNop()),
		WithProviderFactory(func(c *observability.Config, _ logger.Logger) (observability.Provider, error) {
			got = c
			return telemetryProvider{tel: tel}, nil
		}),
	)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "relay-client", got.Service.Name)

	_, err = a.Client().Get(context.Background(), http.NewRequest("/traced"))
	require.NoError(t, err)

	span := tel.Spans().WithName("HTTP GET").AssertCount(1).First()
	obstest.AssertSpanAttribute(t, &span, "url.full", server.URL+"/traced")
	obstest.AssertSumValue(t, tel.Collect(), "http.client.request.count", 1)

	require.NoError(t, a.Shutdown(context.Background()))
}

func TestHealthReportsCacheFailure(t *testing.T) {
	cfg := loadConfig(t, "http://localhost", "")
	store := cachetest.NewMockCache().WithHealthFailure(cache.ErrClosed)

	a, err := New(cfg, WithLogger(logger.NewNop()), WithCache(store))
	require.NoError(t, err)

	results, err := a.Health(context.Background())
	require.NoError(t, err, "cache failures are not critical")
	require.Len(t, results, 1)
	assert.Equal(t, statusUnhealthy, results[0].Status)
	assert.ErrorIs(t, results[0].Err, cache.ErrClosed)
	assert.False(t, results[0].Critical)
}
