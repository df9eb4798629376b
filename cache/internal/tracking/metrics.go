// Package tracking records OpenTelemetry metrics for cache backend operations.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	cacheMeterName = "go-relay/cache"

	metricCacheOperationDuration = "db.client.operation.duration" // Histogram in seconds

	metricCacheHit  = "cache.hit"
	metricCacheMiss = "cache.miss"

	attrDBSystem       = "db.system.name"
	attrDBOperation    = "db.operation.name"
	attrDBNamespace    = "db.namespace"
	attrErrorType      = "error.type"
	attrCacheHitStatus = "cache.hit"
)

// Operation names used as db.operation.name
const (
	OpGet    = "get"
	OpSet    = "set"
	OpDelete = "delete"
	OpHealth = "ping"
)

var (
	meterInitMu sync.Mutex
	meterOnce   sync.Once
	cacheMeter  metric.Meter

	cacheOperationDuration metric.Float64Histogram
	cacheHitCounter        metric.Int64Counter
	cacheMissCounter       metric.Int64Counter
)

func logMetricError(metricName string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: Failed to initialize cache metric %s: %v\n", metricName, err)
	}
}

func initCacheMeter() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	cacheMeter = otel.Meter(cacheMeterName)

	var err error
	cacheOperationDuration, err = cacheMeter.Float64Histogram(
		metricCacheOperationDuration,
		metric.WithDescription("Duration of cache/Redis operations"),
		metric.WithUnit("s"),
	)
	logMetricError(metricCacheOperationDuration, err)

	cacheHitCounter, err = cacheMeter.Int64Counter(
		metricCacheHit,
		metric.WithDescription("Number of cache hits"),
		metric.WithUnit("{hit}"),
	)
	logMetricError(metricCacheHit, err)

	cacheMissCounter, err = cacheMeter.Int64Counter(
		metricCacheMiss,
		metric.WithDescription("Number of cache misses"),
		metric.WithUnit("{miss}"),
	)
	logMetricError(metricCacheMiss, err)
}

// RecordCacheOperation records the duration of one backend operation and,
// for lookups, whether it hit. namespace is the logical database.
func RecordCacheOperation(ctx context.Context, operation string, duration time.Duration, hit bool, err error, namespace string) {
	meterOnce.Do(initCacheMeter)

	attrs := []attribute.KeyValue{
		attribute.String(attrDBSystem, "redis"),
		attribute.String(attrDBOperation, operation),
	}
	if namespace != "" {
		attrs = append(attrs, attribute.String(attrDBNamespace, namespace))
	}
	if operation == OpGet {
		attrs = append(attrs, attribute.Bool(attrCacheHitStatus, hit))
	}
	if err != nil {
		attrs = append(attrs, attribute.String(attrErrorType, classifyError(err)))
	}

	if cacheOperationDuration != nil {
		cacheOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}

	if operation != OpGet || err != nil {
		return
	}
	if hit {
		if cacheHitCounter != nil {
			cacheHitCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
		}
	} else if cacheMissCounter != nil {
		cacheMissCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func classifyError(err error) string {
	msg := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded), strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "connection"):
		return "connection_error"
	case strings.Contains(msg, "closed"):
		return "closed"
	default:
		return "error"
	}
}

// ResetForTesting resets the metric state so the next recording binds to the
// current global meter provider.
func ResetForTesting() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	cacheMeter = nil
	cacheOperationDuration = nil
	cacheHitCounter = nil
	cacheMissCounter = nil
	meterOnce = sync.Once{}
}
