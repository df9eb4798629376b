package interceptors

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.32.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/gaborage/go-relay/events"
	"github.com/gaborage/go-relay/http"
)

const (
	otelInstrumentationName = "go-relay/http"

	metricClientDuration = "http.client.request.duration"
	metricClientRequests = "http.client.request.count"

	attrShortCircuited = "relay.short_circuited"
	attrAttempts       = "relay.attempts"

	errorTypeOther = "_OTHER"
)

// OTelOptions selects the providers; the globals are used when unset
type OTelOptions struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Propagator     propagation.TextMapPropagator
}

// OTel traces each handler run as a client span from REQUEST to TERMINATE,
// injects trace context headers during BEFORE_SEND and records the request
// duration and count.
type OTel struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	duration   metric.Float64Histogram
	requests   metric.Int64Counter

	// handler ID -> *otelSpan
	spans sync.Map
}

type otelSpan struct {
	ctx   context.Context
	span  trace.Span
	start time.Time
	attrs []attribute.KeyValue
}

var _ Interceptor = (*OTel)(nil)

// NewOTel creates the OpenTelemetry interceptor
func NewOTel(opts OTelOptions) (*OTel, error) {
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	mp := opts.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	prop := opts.Propagator
	if prop == nil {
		prop = otel.GetTextMapPropagator()
	}

	meter := mp.Meter(otelInstrumentationName)
	duration, err := meter.Float64Histogram(metricClientDuration,
		metric.WithDescription("Duration of HTTP client requests"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	requests, err := meter.Int64Counter(metricClientRequests,
		metric.WithDescription("Number of HTTP client requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &OTel{
		tracer:     tp.Tracer(otelInstrumentationName),
		propagator: prop,
		duration:   duration,
		requests:   requests,
	}, nil
}

// Register adds the REQUEST, BEFORE_SEND and TERMINATE listeners
func (o *OTel) Register(bus events.Dispatcher) func() {
	return combine(
		bus.AddListener(http.PhaseRequest, on(o.start), PriorityOTel),
		bus.AddListener(http.PhaseBeforeSend, on(o.inject), PriorityOTel),
		bus.AddListener(http.PhaseTerminate, on(o.end), PriorityOTel),
	)
}

func (o *OTel) start(ctx context.Context, e *http.RequestEvent) error {
	req := e.Request()
	method := methodOf(req)

	attrs := []attribute.KeyValue{semconv.HTTPRequestMethodKey.String(method)}
	if u, err := url.Parse(req.URL); err == nil && u.Hostname() != "" {
		attrs = append(attrs, semconv.ServerAddress(u.Hostname()))
	}

	start := time.Now()
	spanCtx, span := o.tracer.Start(ctx, "HTTP "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithTimestamp(start),
	)
	span.SetAttributes(attrs...)
	span.SetAttributes(semconv.URLFull(req.URL))

	o.spans.Store(e.HandlerID(), &otelSpan{ctx: spanCtx, span: span, start: start, attrs: attrs})
	return nil
}

func (o *OTel) inject(_ context.Context, e *http.BeforeSendEvent) error {
	s, ok := o.load(e.HandlerID())
	if !ok {
		return nil
	}
	carrier := propagation.MapCarrier{}
	o.propagator.Inject(s.ctx, carrier)
	for _, key := range carrier.Keys() {
		if e.Header(key) == "" {
			e.SetHeader(key, carrier.Get(key))
		}
	}
	return nil
}

func (o *OTel) end(ctx context.Context, e *http.TerminateEvent) error {
	v, ok := o.spans.LoadAndDelete(e.HandlerID())
	if !ok {
		return nil
	}
	s := v.(*otelSpan)
	attrs := s.attrs

	resp, err := e.Response(), e.Err()
	switch {
	case err != nil:
		attrs = append(attrs, semconv.ErrorTypeKey.String(errorType(err)))
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	case resp != nil:
		attrs = append(attrs, semconv.HTTPResponseStatusCode(resp.StatusCode))
		if resp.Failed() {
			attrs = append(attrs, semconv.ErrorTypeKey.String(strconv.Itoa(resp.StatusCode)))
			s.span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(resp.StatusCode))
		}
		s.span.SetAttributes(
			attribute.Bool(attrShortCircuited, resp.Stats.ShortCircuited),
			attribute.Int(attrAttempts, resp.Stats.Attempts),
		)
	}
	s.span.SetAttributes(attrs...)
	s.span.End()

	set := metric.WithAttributes(attrs...)
	o.duration.Record(ctx, time.Since(s.start).Seconds(), set)
	o.requests.Add(ctx, 1, set)
	return nil
}

func (o *OTel) load(id string) (*otelSpan, bool) {
	v, ok := o.spans.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*otelSpan), true
}

// errorType maps a lifecycle error onto the error.type attribute value
func errorType(err error) string {
	var clientErr http.ClientError
	if errors.As(err, &clientErr) {
		return string(clientErr.Type())
	}
	return errorTypeOther
}
