// Package interceptors provides ready-made lifecycle listeners for the relay
// HTTP client: response caching, trace header propagation, authentication,
// client-side rate limiting, OpenTelemetry, Prometheus metrics and logging.
//
// Each interceptor registers its listeners on an events.Dispatcher and
// returns a function that removes them again:
//
//	bus := events.NewBus()
//	remove := interceptors.RegisterAll(bus,
//		interceptors.NewTraceID(interceptors.TraceIDOptions{W3C: true}),
//		interceptors.NewBearerAuth(token),
//	)
//	defer remove()
package interceptors

import (
	"context"
	nethttp "net/http"

	"github.com/gaborage/go-relay/events"
	"github.com/gaborage/go-relay/http"
)

// Listener priorities. Higher runs first within a phase.
const (
	PriorityOTel      = 200
	PriorityTraceID   = 100
	PriorityAuth      = 90
	PriorityCache     = 50
	PriorityRateLimit = -50
	PriorityMetrics   = -200
	PriorityLogging   = -300
)

// Interceptor attaches its listeners to a dispatcher
type Interceptor interface {
	Register(bus events.Dispatcher) (remove func())
}

// RegisterAll registers every interceptor on bus. The returned function
// removes all of them.
func RegisterAll(bus events.Dispatcher, list ...Interceptor) (remove func()) {
	removers := make([]func(), 0, len(list))
	for _, i := range list {
		if i == nil {
			continue
		}
		removers = append(removers, i.Register(bus))
	}
	return combine(removers...)
}

func combine(removers ...func()) func() {
	return func() {
		for _, r := range removers {
			r()
		}
	}
}

// on adapts a typed handler to an events.Listener. Events of other types are ignored.
func on[E events.Event](fn func(ctx context.Context, e E) error) events.Listener {
	return func(ctx context.Context, e events.Event) error {
		if typed, ok := e.(E); ok {
			return fn(ctx, typed)
		}
		return nil
	}
}

// methodOf returns the request method, GET when unset
func methodOf(req *http.Request) string {
	if req.Method == "" {
		return nethttp.MethodGet
	}
	return req.Method
}
