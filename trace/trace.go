// Package trace carries request correlation identifiers through a context and
// derives the W3C Trace Context values sent on outbound requests.
package trace

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const (
	traceIDKey     contextKey = "trace_id"
	traceParentKey contextKey = "traceparent"
	traceStateKey  contextKey = "tracestate"

	// HeaderXRequestID is the correlation header set on outbound requests
	HeaderXRequestID = "X-Request-ID"
	// HeaderTraceParent is the W3C trace context header name
	HeaderTraceParent = "traceparent"
	// HeaderTraceState is the W3C tracestate header name
	HeaderTraceState = "tracestate"
)

// WithTraceID stores a trace ID in ctx
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// IDFromContext returns the trace ID stored in ctx
func IDFromContext(ctx context.Context) (string, bool) {
	if traceID, ok := ctx.Value(traceIDKey).(string); ok && traceID != "" {
		return traceID, true
	}
	return "", false
}

// EnsureTraceID returns the trace ID from ctx or a new UUID
func EnsureTraceID(ctx context.Context) string {
	if traceID, ok := IDFromContext(ctx); ok {
		return traceID
	}
	return uuid.NewString()
}

// WithTraceParent stores a traceparent value in ctx
func WithTraceParent(ctx context.Context, traceParent string) context.Context {
	return context.WithValue(ctx, traceParentKey, traceParent)
}

// ParentFromContext returns the traceparent stored in ctx
func ParentFromContext(ctx context.Context) (string, bool) {
	if tp, ok := ctx.Value(traceParentKey).(string); ok && tp != "" {
		return tp, true
	}
	return "", false
}

// WithTraceState stores a tracestate value in ctx
func WithTraceState(ctx context.Context, traceState string) context.Context {
	return context.WithValue(ctx, traceStateKey, traceState)
}

// StateFromContext returns the tracestate stored in ctx
func StateFromContext(ctx context.Context) (string, bool) {
	if ts, ok := ctx.Value(traceStateKey).(string); ok && ts != "" {
		return ts, true
	}
	return "", false
}

// GenerateTraceParent creates a sampled traceparent with random IDs.
// Format: version(2)-trace-id(32)-span-id(16)-flags(2).
func GenerateTraceParent() string {
	return "00-" + randomHex(16) + "-" + randomHex(8) + "-01"
}

// ChildTraceParent keeps the trace ID and flags of parent and assigns a new
// span ID, so each outbound request is a distinct child span. Invalid parents
// yield a freshly generated value.
func ChildTraceParent(parent string) string {
	if !IsValidTraceParent(parent) {
		return GenerateTraceParent()
	}
	parts := strings.Split(parent, "-")
	return parts[0] + "-" + parts[1] + "-" + randomHex(8) + "-" + parts[3]
}

// IsValidTraceParent checks the version-00 traceparent layout
func IsValidTraceParent(tp string) bool {
	parts := strings.Split(tp, "-")
	if len(parts) != 4 {
		return false
	}
	if len(parts[0]) != 2 || len(parts[1]) != 32 || len(parts[2]) != 16 || len(parts[3]) != 2 {
		return false
	}
	for _, p := range parts {
		if !isLowerHex(p) {
			return false
		}
	}
	// all-zero trace and span IDs are forbidden
	return strings.Trim(parts[1], "0") != "" && strings.Trim(parts[2], "0") != ""
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := crand.Read(b); err != nil || allZero(b) {
		b[n-1] = 0x01
	}
	return hex.EncodeToString(b)
}

func isLowerHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
