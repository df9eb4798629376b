package app

import (
	"context"
	"errors"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	disabledStatus  = "disabled"
)

// HealthStatus captures the outcome of a readiness probe.
type HealthStatus struct {
	Name     string
	Status   string
	Details  map[string]any
	Err      error
	Critical bool
}

// HealthProbe exposes a uniform interface for readiness probes.
type HealthProbe interface {
	Run(ctx context.Context) HealthStatus
}

type healthProbeFunc struct {
	name     string
	critical bool
	fn       func(ctx context.Context) (string, map[string]any, error)
}

func (h healthProbeFunc) Run(ctx context.Context) HealthStatus {
	status, details, err := h.fn(ctx)
	if details == nil {
		details = map[string]any{}
	}
	return HealthStatus{
		Name:     h.name,
		Status:   status,
		Details:  details,
		Err:      err,
		Critical: h.critical,
	}
}

// cacheHealthProbe pings the cache backend. A failing cache degrades the
// client but is not critical: requests fall through to the network.
func (a *App) cacheHealthProbe() HealthProbe {
	store := a.cache
	if store == nil {
		return healthProbeFunc{
			name: "cache",
			fn: func(context.Context) (string, map[string]any, error) {
				return disabledStatus, nil, nil
			},
		}
	}
	return healthProbeFunc{
		name: "cache",
		fn: func(ctx context.Context) (string, map[string]any, error) {
			if err := store.Health(ctx); err != nil {
				return statusUnhealthy, nil, err
			}
			stats, err := store.Stats()
			if err != nil {
				return statusHealthy, nil, nil
			}
			return statusHealthy, stats, nil
		},
	}
}

// Health runs every probe and returns their results together with an error
// joining the failures of critical probes.
func (a *App) Health(ctx context.Context) ([]HealthStatus, error) {
	probes := []HealthProbe{a.cacheHealthProbe()}

	results := make([]HealthStatus, 0, len(probes))
	var errs []error
	for _, p := range probes {
		res := p.Run(ctx)
		results = append(results, res)
		if res.Err != nil {
			a.logger.Warn().Err(res.Err).Str("probe", res.Name).Msg("health probe failed")
			if res.Critical {
				errs = append(errs, res.Err)
			}
		}
	}
	return results, errors.Join(errs...)
}
