// Package telemetry provides OpenTelemetry instrumentation for repository list
// acquisition: cache outcomes, generation runs and review service sessions.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// CacheMetricsMeterName is the name used for the cache metrics meter
	CacheMetricsMeterName = "github.com/stacklok/repocache/cache"

	// RemoteMetricsMeterName is the name used for the review service metrics meter
	RemoteMetricsMeterName = "github.com/stacklok/repocache/remote"
)

// Cache lookup outcomes
const (
	LookupFresh      = "fresh"
	LookupStale      = "stale"
	LookupCold       = "cold"
	LookupContention = "contention"
	LookupFallback   = "fallback"
)

// CacheMetrics holds the OpenTelemetry instruments for the cache coordinator
type CacheMetrics struct {
	lookups            metric.Int64Counter
	generationDuration metric.Float64Histogram
	repositories       metric.Int64Gauge
}

// NewCacheMetrics creates a new CacheMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewCacheMetrics(provider metric.MeterProvider) (*CacheMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(CacheMetricsMeterName)

	lookups, err := meter.Int64Counter(
		"repocache_cache_lookups",
		metric.WithDescription("Repository list cache lookups by outcome"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	generationDuration, err := meter.Float64Histogram(
		"repocache_cache_generation_duration",
		metric.WithDescription("Duration of cache generation runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300),
	)
	if err != nil {
		return nil, err
	}

	repositories, err := meter.Int64Gauge(
		"repocache_cache_repositories",
		metric.WithDescription("Number of repositories in the last published cache file"),
		metric.WithUnit("{repository}"),
	)
	if err != nil {
		return nil, err
	}

	return &CacheMetrics{
		lookups:            lookups,
		generationDuration: generationDuration,
		repositories:       repositories,
	}, nil
}

// RecordLookup counts one cache lookup for a scan root
func (m *CacheMetrics) RecordLookup(ctx context.Context, outcome string) {
	if m == nil || m.lookups == nil {
		return
	}
	m.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordGeneration records one generation run and, on success, the number
// of repositories it published
func (m *CacheMetrics) RecordGeneration(ctx context.Context, key string, duration time.Duration, repos int, success bool) {
	if m == nil || m.generationDuration == nil {
		return
	}

	m.generationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.Bool("success", success),
	))
	if success {
		m.repositories.Record(ctx, int64(repos), metric.WithAttributes(attribute.String("key", key)))
	}
}

// RemoteMetrics holds the OpenTelemetry instruments for review service sessions
type RemoteMetrics struct {
	sessions metric.Int64Counter
}

// NewRemoteMetrics creates a new RemoteMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewRemoteMetrics(provider metric.MeterProvider) (*RemoteMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	sessions, err := provider.Meter(RemoteMetricsMeterName).Int64Counter(
		"repocache_remote_sessions",
		metric.WithDescription("Review service session attempts by outcome"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, err
	}

	return &RemoteMetrics{sessions: sessions}, nil
}

// RecordOutcome counts one session attempt
func (m *RemoteMetrics) RecordOutcome(ctx context.Context, outcome string) {
	if m == nil || m.sessions == nil {
		return
	}
	m.sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
