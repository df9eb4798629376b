package interceptors

import (
	"context"
	"math"

	"golang.org/x/time/rate"

	"github.com/gaborage/go-relay/config"
	"github.com/gaborage/go-relay/events"
	"github.com/gaborage/go-relay/http"
)

// BurstMultiplier derives the burst from the rate when none is configured
const BurstMultiplier = 2

// RateLimit delays BEFORE_SEND until the token bucket admits the request.
// Cancelling the request while it waits aborts it with a cancellation error.
type RateLimit struct {
	limiter *rate.Limiter
}

var _ Interceptor = (*RateLimit)(nil)

// NewRateLimit allows rps requests per second with the given burst.
// A non-positive rps disables limiting; a non-positive burst becomes
// rps * BurstMultiplier (at least 1).
func NewRateLimit(rps float64, burst int) *RateLimit {
	if rps <= 0 {
		return &RateLimit{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst <= 0 {
		burst = max(1, int(math.Ceil(rps*BurstMultiplier)))
	}
	return &RateLimit{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// NewRateLimitFromConfig builds a limiter from the rate limit section; nil when disabled
func NewRateLimitFromConfig(cfg *config.RateLimitConfig) *RateLimit {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	return NewRateLimit(cfg.RPS, cfg.Burst)
}

// Limiter exposes the underlying token bucket
func (r *RateLimit) Limiter() *rate.Limiter {
	return r.limiter
}

// Register adds the BEFORE_SEND listener. A nil limiter registers nothing.
func (r *RateLimit) Register(bus events.Dispatcher) func() {
	if r == nil {
		return func() {}
	}
	return bus.AddListener(http.PhaseBeforeSend, on(r.wait), PriorityRateLimit)
}

func (r *RateLimit) wait(ctx context.Context, _ *http.BeforeSendEvent) error {
	return r.limiter.Wait(ctx)
}
