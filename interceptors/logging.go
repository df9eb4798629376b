package interceptors

import (
	"context"
	nethttp "net/http"
	"sync"
	"time"

	"github.com/gaborage/go-relay/events"
	"github.com/gaborage/go-relay/http"
	"github.com/gaborage/go-relay/logger"
)

// DefaultSlowRequestThreshold marks completed requests as slow
const DefaultSlowRequestThreshold = time.Second

// LoggingOptions configures the lifecycle logging interceptor
type LoggingOptions struct {
	// LogPayloads adds request headers and body excerpts to debug logs
	LogPayloads bool
	// MaxPayloadLogBytes caps the logged body excerpt (default 1024)
	MaxPayloadLogBytes int
	// SlowRequestThreshold escalates successful requests to WARN when exceeded
	SlowRequestThreshold time.Duration
}

// Logging writes one summary line per request at TERMINATE: INFO for
// successes, WARN for failed statuses and slow requests, ERROR for errors.
// Phase transitions are logged at DEBUG.
type Logging struct {
	logger logger.Logger
	opts   LoggingOptions

	// handler ID -> start time
	starts sync.Map
}

var _ Interceptor = (*Logging)(nil)

// NewLogging creates the logging interceptor
func NewLogging(log logger.Logger, opts LoggingOptions) *Logging {
	if log == nil {
		log = logger.NewNop()
	}
	if opts.MaxPayloadLogBytes <= 0 {
		opts.MaxPayloadLogBytes = 1024
	}
	if opts.SlowRequestThreshold <= 0 {
		opts.SlowRequestThreshold = DefaultSlowRequestThreshold
	}
	return &Logging{
		logger: log.WithFields(map[string]any{"component": "http-lifecycle"}),
		opts:   opts,
	}
}

// Register adds listeners on every phase
func (l *Logging) Register(bus events.Dispatcher) func() {
	return combine(
		bus.AddListener(http.PhaseRequest, on(l.request), PriorityLogging),
		bus.AddListener(http.PhaseBeforeSend, on(l.beforeSend), PriorityLogging),
		bus.AddListener(http.PhaseError, on(l.failure), PriorityLogging),
		bus.AddListener(http.PhaseTerminate, on(l.terminate), PriorityLogging),
	)
}

func (l *Logging) request(_ context.Context, e *http.RequestEvent) error {
	l.starts.Store(e.HandlerID(), time.Now())
	req := e.Request()
	l.logger.Debug().
		Str("handler_id", e.HandlerID()).
		Str("method", methodOf(req)).
		Str("url", req.URL).
		Msg("request phase")
	return nil
}

func (l *Logging) beforeSend(_ context.Context, e *http.BeforeSendEvent) error {
	req := e.Request()
	ev := l.logger.Debug().
		Str("handler_id", e.HandlerID()).
		Str("method", methodOf(req)).
		Str("url", req.URL)
	if l.opts.LogPayloads {
		ev = ev.Interface("headers", redactHeaders(req.Headers)).
			Int("body_size", len(req.Body)).
			Str("body", truncate(req.Body, l.opts.MaxPayloadLogBytes))
	}
	ev.Msg("sending request")
	return nil
}

func (l *Logging) failure(_ context.Context, e *http.ErrorEvent) error {
	l.logger.Debug().
		Str("handler_id", e.HandlerID()).
		Err(e.Err()).
		Msg("error phase")
	return nil
}

func (l *Logging) terminate(_ context.Context, e *http.TerminateEvent) error {
	req := e.Request()
	var elapsed time.Duration
	if v, ok := l.starts.LoadAndDelete(e.HandlerID()); ok {
		elapsed = time.Since(v.(time.Time))
	}

	resp, err := e.Response(), e.Err()
	var ev logger.LogEvent
	switch {
	case err != nil:
		ev = l.logger.Error().Err(err)
	case resp != nil && (resp.Failed() || elapsed > l.opts.SlowRequestThreshold):
		ev = l.logger.Warn()
	default:
		ev = l.logger.Info()
	}

	ev = ev.Str("handler_id", e.HandlerID()).
		Str("method", methodOf(req)).
		Str("url", req.URL).
		Dur("elapsed", elapsed)
	if resp != nil {
		ev = ev.Int("status", resp.StatusCode).
			Int("attempts", resp.Stats.Attempts).
			Bool("short_circuited", resp.Stats.ShortCircuited)
		if l.opts.LogPayloads {
			ev = ev.Str("response_body", truncate(resp.Body, l.opts.MaxPayloadLogBytes))
		}
	}
	ev.Msg("request completed")
	return nil
}

var sensitiveHeaders = map[string]bool{
	"Authorization":       true,
	"Proxy-Authorization": true,
	"Cookie":              true,
	"X-Api-Key":           true,
}

func redactHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if sensitiveHeaders[nethttp.CanonicalHeaderKey(k)] {
			v = "[REDACTED]"
		}
		out[k] = v
	}
	return out
}

func truncate(b []byte, limit int) string {
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit]) + "...(truncated)"
}
