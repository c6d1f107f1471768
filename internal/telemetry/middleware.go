package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// HTTPMetricsMeterName is the name used for the HTTP metrics meter
	HTTPMetricsMeterName = "github.com/stacklok/repocache/http"
)

// HTTPMetrics holds the OpenTelemetry instruments for HTTP metrics
type HTTPMetrics struct {
	requestDuration metric.Float64Histogram
	requestsTotal   metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter

	// identityHeaders name the headers carrying the caller identity. Requests
	// are labelled by whether one of them was set, since remote discovery
	// only runs for identified callers.
	identityHeaders []string
}

// HTTPMetricsOption configures HTTPMetrics
type HTTPMetricsOption func(*HTTPMetrics)

// WithIdentityHeaders labels requests with identity="present" when any of
// the headers is set, identity="absent" otherwise
func WithIdentityHeaders(headers ...string) HTTPMetricsOption {
	return func(m *HTTPMetrics) {
		m.identityHeaders = headers
	}
}

// NewHTTPMetrics creates a new HTTPMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewHTTPMetrics(provider metric.MeterProvider, opts ...HTTPMetricsOption) (*HTTPMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(HTTPMetricsMeterName)

	requestDuration, err := meter.Float64Histogram(
		"repocache_http_request_duration",
		metric.WithDescription("Duration of HTTP requests in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	requestsTotal, err := meter.Int64Counter(
		"repocache_http_requests",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"repocache_http_active_requests",
		metric.WithDescription("Number of currently in-flight HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m := &HTTPMetrics{
		requestDuration: requestDuration,
		requestsTotal:   requestsTotal,
		activeRequests:  activeRequests,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Middleware returns an HTTP middleware that records metrics for each request.
// If HTTPMetrics is nil, it returns a pass-through middleware.
func (m *HTTPMetrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The request context may be cancelled once ServeHTTP returns
		ctx := r.Context()
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		m.activeRequests.Add(ctx, 1)
		next.ServeHTTP(ww, r)
		m.activeRequests.Add(ctx, -1)

		kvs := []attribute.KeyValue{
			attribute.String("method", r.Method),
			attribute.String("route", routePattern(r)),
			attribute.String("status_code", strconv.Itoa(ww.Status())),
		}
		if len(m.identityHeaders) > 0 {
			kvs = append(kvs, attribute.String("identity", m.identity(r)))
		}
		attrs := metric.WithAttributes(kvs...)
		m.requestDuration.Record(ctx, time.Since(start).Seconds(), attrs)
		m.requestsTotal.Add(ctx, 1, attrs)
	})
}

func (m *HTTPMetrics) identity(r *http.Request) string {
	for _, h := range m.identityHeaders {
		if r.Header.Get(h) != "" {
			return "present"
		}
	}
	return "absent"
}

// routePattern returns the matched chi pattern, such as "/repos", or
// "unknown_route" so unmatched paths do not create new series
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return "unknown_route"
}

// MetricsMiddleware creates middleware from a MeterProvider
func MetricsMiddleware(provider metric.MeterProvider, opts ...HTTPMetricsOption) (func(http.Handler) http.Handler, error) {
	metrics, err := NewHTTPMetrics(provider, opts...)
	if err != nil {
		return nil, err
	}
	return metrics.Middleware, nil
}
