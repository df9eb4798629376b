package interceptors

import (
	"context"
	"errors"
	nethttp "net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/gaborage/go-relay/events"
	"github.com/gaborage/go-relay/http"
	"github.com/gaborage/go-relay/internal/testutil"
	"github.com/gaborage/go-relay/logger"
	obstest "github.com/gaborage/go-relay/observability/testing"
)

func newOTelFixture(t *testing.T) (*OTel, *obstest.Telemetry) {
	t.Helper()

	tel := obstest.NewTelemetry(t)
	interceptor, err := NewOTel(OTelOptions{
		TracerProvider: tel.Traces,
		MeterProvider:  tel.Metrics,
		Propagator:     propagation.TraceContext{},
	})
	require.NoError(t, err)
	return interceptor, tel
}

func TestOTelSuccessfulRequest(t *testing.T) {
	interceptor, tel := newOTelFixture(t)
	server := newRecordingServer(t, jsonHandler(nethttp.StatusOK, map[string]int{"id": 1}))
	c, _ := newTestClient(server, interceptor)

	_, err := c.Get(context.Background(), http.NewRequest("/users"))
	require.NoError(t, err)

	span := tel.Spans().AssertCount(1).First()
	assert.Equal(t, "HTTP GET", span.Name)
	assert.Equal(t, trace.SpanKindClient, span.SpanKind)
	obstest.AssertSpanStatus(t, &span, codes.Unset)
	obstest.AssertSpanAttribute(t, &span, "http.response.status_code", 200)
	obstest.AssertSpanAttribute(t, &span, "url.full", server.URL+"/users")
	obstest.AssertSpanAttribute(t, &span, attrAttempts, 1)

	// the propagated traceparent belongs to the client span
	tp := server.lastHeaders().Get("traceparent")
	require.NotEmpty(t, tp)
	assert.Equal(t, span.SpanContext.TraceID().String(), strings.Split(tp, "-")[1])
	assert.Equal(t, span.SpanContext.SpanID().String(), strings.Split(tp, "-")[2])

	rm := tel.Collect()
	obstest.AssertSumValue(t, rm, metricClientRequests, 1)
	count, err := obstest.HistogramCount(rm, metricClientDuration)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestOTelFailedStatus(t *testing.T) {
	interceptor, tel := newOTelFixture(t)
	server := newRecordingServer(t, jsonHandler(nethttp.StatusBadGateway, nil))
	c, _ := newTestClient(server, interceptor)

	resp, err := c.Get(context.Background(), http.NewRequest("/"))
	require.NoError(t, err)
	assert.True(t, resp.Failed())

	span := tel.Spans().AssertCount(1).First()
	obstest.AssertSpanStatus(t, &span, codes.Error)
	obstest.AssertSpanAttribute(t, &span, "error.type", "502")
}

func TestOTelTransportError(t *testing.T) {
	interceptor, tel := newOTelFixture(t)
	closed := testutil.ClosedServerURL(t)

	bus := events.NewBus()
	interceptor.Register(bus)
	c := http.NewBuilder(logger.NewNop()).
		WithBus(bus).
		WithBackoff(time.Millisecond, time.Millisecond).
		Build()

	_, err := c.Get(context.Background(), http.NewRequest(closed))
	require.Error(t, err)

	span := tel.Spans().AssertCount(1).First()
	obstest.AssertSpanStatus(t, &span, codes.Error)
	obstest.AssertSpanAttribute(t, &span, "error.type", string(http.NetworkError))
	require.NotEmpty(t, span.Events)
	assert.Equal(t, "exception", span.Events[0].Name)

	obstest.AssertSumValue(t, tel.Collect(), metricClientRequests, 1)
}

func TestOTelShortCircuit(t *testing.T) {
	interceptor, tel := newOTelFixture(t)
	server := newRecordingServer(t, jsonHandler(nethttp.StatusOK, nil))
	c, bus := newTestClient(server, interceptor)
	bus.AddListener(http.PhaseRequest, on(func(_ context.Context, e *http.RequestEvent) error {
		e.Respond(http.NewResponse(nethttp.StatusOK, nil, []byte("fixture")))
		return nil
	}), 0)

	_, err := c.Get(context.Background(), http.NewRequest("/"))
	require.NoError(t, err)
	assert.Zero(t, server.calls.Load())

	assert.Equal(t, 1, tel.Spans().WithAttribute(attrShortCircuited, true).Len())
}

func TestErrorType(t *testing.T) {
	assert.Equal(t, "timeout", errorType(http.NewTimeoutError("u", 0, time.Second)))
	assert.Equal(t, "interceptor", errorType(http.NewInterceptorError(http.PhaseRequest, errors.New("x"))))
	assert.Equal(t, errorTypeOther, errorType(errors.New("plain")))
}
