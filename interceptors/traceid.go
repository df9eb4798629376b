package interceptors

import (
	"context"

	"github.com/gaborage/go-relay/events"
	"github.com/gaborage/go-relay/http"
	"github.com/gaborage/go-relay/trace"
)

// TraceIDOptions configures trace header propagation
type TraceIDOptions struct {
	// Header carries the trace ID (default: X-Request-ID)
	Header string
	// NewTraceID generates a trace ID when none is present (default: uuid)
	NewTraceID func() string
	// Extractor allows advanced extraction of a trace ID from context; return ok=false to fall back
	Extractor func(ctx context.Context) (traceID string, ok bool)
	// W3C enables traceparent/tracestate propagation and generation
	W3C bool
}

// TraceID stamps outgoing requests with a trace ID header and, optionally,
// W3C trace context headers. Headers already set on the request are kept.
type TraceID struct {
	opts TraceIDOptions
}

var _ Interceptor = (*TraceID)(nil)

// NewTraceID creates a trace header interceptor
func NewTraceID(opts TraceIDOptions) *TraceID {
	if opts.Header == "" {
		opts.Header = trace.HeaderXRequestID
	}
	return &TraceID{opts: opts}
}

// Register adds the BEFORE_SEND listener
func (t *TraceID) Register(bus events.Dispatcher) func() {
	return bus.AddListener(http.PhaseBeforeSend, on(t.stamp), PriorityTraceID)
}

func (t *TraceID) stamp(ctx context.Context, e *http.BeforeSendEvent) error {
	if e.Header(t.opts.Header) == "" {
		e.SetHeader(t.opts.Header, t.traceID(ctx))
	}
	if !t.opts.W3C || e.Header(trace.HeaderTraceParent) != "" {
		return nil
	}

	if parent, ok := trace.ParentFromContext(ctx); ok && trace.IsValidTraceParent(parent) {
		e.SetHeader(trace.HeaderTraceParent, trace.ChildTraceParent(parent))
		if state, ok := trace.StateFromContext(ctx); ok {
			e.SetHeader(trace.HeaderTraceState, state)
		}
		return nil
	}
	e.SetHeader(trace.HeaderTraceParent, trace.GenerateTraceParent())
	return nil
}

func (t *TraceID) traceID(ctx context.Context) string {
	if t.opts.Extractor != nil {
		if id, ok := t.opts.Extractor(ctx); ok && id != "" {
			return id
		}
	}
	if id, ok := trace.IDFromContext(ctx); ok {
		return id
	}
	if t.opts.NewTraceID != nil {
		return t.opts.NewTraceID()
	}
	return trace.EnsureTraceID(ctx)
}
