package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate checks cfg against its struct tags and the cross-field rules, and
// returns a *ConfigError for the first violation.
func Validate(cfg *Config) error {
	if cfg == nil {
		return NewValidationError("config", "configuration is nil")
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("koanf"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.Struct(cfg); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			return fieldError(validationErrors[0])
		}
		return err
	}

	if cfg.Cache.Enabled && cfg.Cache.Redis.Host == "" {
		return NewMissingFieldError("cache.redis.host", EnvPrefix+"CACHE_REDIS_HOST", "cache.redis.host")
	}
	if cfg.RateLimit.Enabled && cfg.RateLimit.RPS <= 0 {
		return NewInvalidFieldError("ratelimit.rps", "must be positive when rate limiting is enabled", nil)
	}
	if cfg.Observability.Enabled && cfg.Observability.ServiceName == "" {
		return NewMissingFieldError("observability.servicename",
			EnvPrefix+"OBSERVABILITY_SERVICENAME", "observability.servicename")
	}
	if cfg.Observability.Enabled && cfg.Observability.Exporter != "stdout" && cfg.Observability.Endpoint == "" {
		return NewMissingFieldError("observability.endpoint",
			EnvPrefix+"OBSERVABILITY_ENDPOINT", "observability.endpoint")
	}
	return nil
}

// fieldError converts a validator failure into a ConfigError keyed by the
// koanf path of the field
func fieldError(fe validator.FieldError) *ConfigError {
	// Namespace is Config.client.timeout; drop the root type name
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "oneof":
		return NewInvalidFieldError(field, fmt.Sprintf("invalid value %v", fe.Value()), strings.Fields(fe.Param()))
	case "gte":
		return NewInvalidFieldError(field, fmt.Sprintf("must be at least %s", fe.Param()), nil)
	case "lte":
		return NewInvalidFieldError(field, fmt.Sprintf("must be at most %s", fe.Param()), nil)
	case "url":
		return NewInvalidFieldError(field, "must be a valid URL", nil)
	default:
		return NewValidationError(field, fmt.Sprintf("failed %s validation", fe.Tag()))
	}
}
