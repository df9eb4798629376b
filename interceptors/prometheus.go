package interceptors

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gaborage/go-relay/config"
	"github.com/gaborage/go-relay/events"
	"github.com/gaborage/go-relay/http"
)

// DefaultMetricsNamespace prefixes every Prometheus metric name
const DefaultMetricsNamespace = "relay"

// Request outcomes used as the "outcome" label
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// Prometheus collects request counts, durations, in-flight requests,
// short-circuited responses and errors. It is safe for concurrent use.
type Prometheus struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec
	shortCircuited   *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec

	// handler ID -> start time
	starts sync.Map
}

var _ Interceptor = (*Prometheus)(nil)

// NewPrometheus registers the collectors on registry, the default registerer when nil
func NewPrometheus(registry prometheus.Registerer, namespace string) *Prometheus {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = DefaultMetricsNamespace
	}
	factory := promauto.With(registry)

	return &Prometheus{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of HTTP requests handled",
			},
			[]string{"method", "status_code", "outcome"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests from REQUEST to TERMINATE in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "outcome"},
		),
		requestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently in flight",
			},
			[]string{"method"},
		),
		shortCircuited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "short_circuited_total",
				Help:      "Total number of requests answered by a listener without a network call",
			},
			[]string{"method"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of requests that ended with an error",
			},
			[]string{"type", "method"},
		),
	}
}

// NewPrometheusFromConfig builds the collector from the metrics section; nil when disabled
func NewPrometheusFromConfig(cfg *config.MetricsConfig, registry prometheus.Registerer) *Prometheus {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	return NewPrometheus(registry, cfg.Namespace)
}

// Register adds the REQUEST and TERMINATE listeners. A nil collector registers nothing.
func (p *Prometheus) Register(bus events.Dispatcher) func() {
	if p == nil {
		return func() {}
	}
	return combine(
		bus.AddListener(http.PhaseRequest, on(p.start), PriorityMetrics),
		bus.AddListener(http.PhaseTerminate, on(p.finish), PriorityMetrics),
	)
}

func (p *Prometheus) start(_ context.Context, e *http.RequestEvent) error {
	p.requestsInFlight.WithLabelValues(methodOf(e.Request())).Inc()
	p.starts.Store(e.HandlerID(), time.Now())
	return nil
}

func (p *Prometheus) finish(_ context.Context, e *http.TerminateEvent) error {
	method := methodOf(e.Request())

	v, started := p.starts.LoadAndDelete(e.HandlerID())
	if started {
		p.requestsInFlight.WithLabelValues(method).Dec()
	}

	statusCode, outcome := "0", OutcomeError
	if resp := e.Response(); resp != nil {
		statusCode = strconv.Itoa(resp.StatusCode)
		outcome = OutcomeSuccess
		if resp.Failed() {
			outcome = OutcomeFailure
		}
		if resp.Stats.ShortCircuited {
			p.shortCircuited.WithLabelValues(method).Inc()
		}
	}
	if err := e.Err(); err != nil {
		p.errorsTotal.WithLabelValues(errorType(err), method).Inc()
	}

	p.requestsTotal.WithLabelValues(method, statusCode, outcome).Inc()
	if started {
		p.requestDuration.WithLabelValues(method, outcome).Observe(time.Since(v.(time.Time)).Seconds())
	}
	return nil
}
