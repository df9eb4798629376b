// Package testing provides in-memory OpenTelemetry providers and assertions
// for tests of relay instrumentation.
//
// Usage:
//
//	tel := NewTelemetry(t)
//	interceptor, _ := interceptors.NewOTel(interceptors.OTelOptions{
//		TracerProvider: tel.Traces,
//		MeterProvider:  tel.Metrics,
//	})
//	// ... run requests ...
//	span := tel.Spans().WithName("HTTP GET").AssertCount(1).First()
//	AssertSpanAttribute(t, &span, "http.response.status_code", 200)
package testing

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const metricNotFoundErrMsg = "metric %s not found"

// TestTraceProvider wraps the SDK TracerProvider and in-memory exporter for testing.
type TestTraceProvider struct {
	*sdktrace.TracerProvider
	Exporter *tracetest.InMemoryExporter
}

// NewTestTraceProvider creates a TracerProvider that exports synchronously
// into memory, so spans are visible as soon as they end.
func NewTestTraceProvider() *TestTraceProvider {
	exporter := tracetest.NewInMemoryExporter()
	return &TestTraceProvider{
		TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter)),
		Exporter:       exporter,
	}
}

// TestMeterProvider wraps the SDK MeterProvider and manual reader for testing.
type TestMeterProvider struct {
	*sdkmetric.MeterProvider
	Reader *sdkmetric.ManualReader
}

// NewTestMeterProvider creates a MeterProvider whose metrics are read on demand.
func NewTestMeterProvider() *TestMeterProvider {
	reader := sdkmetric.NewManualReader()
	return &TestMeterProvider{
		MeterProvider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		Reader:        reader,
	}
}

// Collect reads all metrics from the provider.
func (tmp *TestMeterProvider) Collect(t *testing.T) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, tmp.Reader.Collect(context.Background(), &rm), "failed to collect metrics")
	return rm
}

// Telemetry pairs a test trace provider with a test meter provider and shuts
// both down when the test ends.
type Telemetry struct {
	t       *testing.T
	Traces  *TestTraceProvider
	Metrics *TestMeterProvider
}

// NewTelemetry creates both providers and registers their cleanup on t.
func NewTelemetry(t *testing.T) *Telemetry {
	t.Helper()
	tel := &Telemetry{t: t, Traces: NewTestTraceProvider(), Metrics: NewTestMeterProvider()}
	t.Cleanup(func() {
		_ = tel.Traces.Shutdown(context.Background())
		_ = tel.Metrics.Shutdown(context.Background())
	})
	return tel
}

// Spans returns a collector over the spans ended so far.
func (tel *Telemetry) Spans() *SpanCollector {
	return NewSpanCollector(tel.t, tel.Traces.Exporter)
}

// Collect reads the current metrics.
func (tel *Telemetry) Collect() metricdata.ResourceMetrics {
	tel.t.Helper()
	return tel.Metrics.Collect(tel.t)
}

// SpanCollector filters captured spans.
type SpanCollector struct {
	t     *testing.T
	spans tracetest.SpanStubs
}

// NewSpanCollector creates a span collector from an in-memory exporter.
func NewSpanCollector(t *testing.T, exporter *tracetest.InMemoryExporter) *SpanCollector {
	return &SpanCollector{t: t, spans: exporter.GetSpans()}
}

// Len returns the number of spans in the collector.
func (sc *SpanCollector) Len() int {
	return len(sc.spans)
}

// WithName keeps the spans with the given name.
func (sc *SpanCollector) WithName(name string) *SpanCollector {
	var out tracetest.SpanStubs
	for _, s := range sc.spans {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return &SpanCollector{t: sc.t, spans: out}
}

// WithAttribute keeps the spans carrying key with the expected value.
func (sc *SpanCollector) WithAttribute(key string, value any) *SpanCollector {
	var out tracetest.SpanStubs
	for _, s := range sc.spans {
		if v, ok := Attribute(&s, key); ok && matchesValue(v, value) {
			out = append(out, s)
		}
	}
	return &SpanCollector{t: sc.t, spans: out}
}

// AssertCount fails the test unless exactly expected spans remain.
func (sc *SpanCollector) AssertCount(expected int) *SpanCollector {
	sc.t.Helper()
	require.Len(sc.t, sc.spans, expected, "unexpected number of spans")
	return sc
}

// First returns the first span, failing the test when there is none.
func (sc *SpanCollector) First() tracetest.SpanStub {
	sc.t.Helper()
	require.NotEmpty(sc.t, sc.spans, "no spans collected")
	return sc.spans[0]
}

func matchesValue(attrValue attribute.Value, expected any) bool {
	switch v := expected.(type) {
	case string:
		return attrValue.AsString() == v
	case int:
		return attrValue.AsInt64() == int64(v)
	case int64:
		return attrValue.AsInt64() == v
	case float64:
		return attrValue.AsFloat64() == v
	case bool:
		return attrValue.AsBool() == v
	default:
		return false
	}
}

// Attribute looks up a span attribute by key.
func Attribute(span *tracetest.SpanStub, key string) (attribute.Value, bool) {
	for _, attr := range span.Attributes {
		if string(attr.Key) == key {
			return attr.Value, true
		}
	}
	return attribute.Value{}, false
}

// AssertSpanAttribute asserts that a span has key set to expected.
func AssertSpanAttribute(t *testing.T, span *tracetest.SpanStub, key string, expected any) {
	t.Helper()
	v, ok := Attribute(span, key)
	if !ok {
		t.Errorf("attribute %s not found in span", key)
		return
	}
	assert.True(t, matchesValue(v, expected), "attribute %s: got %v, want %v", key, v.Emit(), expected)
}

// AssertSpanStatus asserts the status code of a span.
func AssertSpanStatus(t *testing.T, span *tracetest.SpanStub, expectedCode codes.Code) {
	t.Helper()
	assert.Equal(t, expectedCode, span.Status.Code, "span status code mismatch")
}

// FindMetric finds a metric by name. Returns nil if not found.
func FindMetric(rm metricdata.ResourceMetrics, metricName string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == metricName {
				return &m
			}
		}
	}
	return nil
}

// SumValue totals every data point of an int64 counter across attribute sets.
func SumValue(rm metricdata.ResourceMetrics, metricName string) (int64, error) {
	m := FindMetric(rm, metricName)
	if m == nil {
		return 0, fmt.Errorf(metricNotFoundErrMsg, metricName)
	}
	data, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		return 0, fmt.Errorf("metric %s is not an int64 sum", metricName)
	}
	var total int64
	for _, dp := range data.DataPoints {
		total += dp.Value
	}
	return total, nil
}

// HistogramCount totals the observation count of a float64 histogram.
func HistogramCount(rm metricdata.ResourceMetrics, metricName string) (uint64, error) {
	m := FindMetric(rm, metricName)
	if m == nil {
		return 0, fmt.Errorf(metricNotFoundErrMsg, metricName)
	}
	data, ok := m.Data.(metricdata.Histogram[float64])
	if !ok {
		return 0, fmt.Errorf("metric %s is not a float64 histogram", metricName)
	}
	var total uint64
	for _, dp := range data.DataPoints {
		total += dp.Count
	}
	return total, nil
}

// AssertSumValue asserts the total of an int64 counter.
func AssertSumValue(t *testing.T, rm metricdata.ResourceMetrics, metricName string, expected int64) {
	t.Helper()
	got, err := SumValue(rm, metricName)
	require.NoError(t, err)
	assert.Equal(t, expected, got, "metric %s value mismatch", metricName)
}
