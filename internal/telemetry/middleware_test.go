package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewHTTPMetrics(t *testing.T) {
	t.Parallel()

	metrics, err := NewHTTPMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, metrics)

	mp := sdkmetric.NewMeterProvider()
	defer func() { _ = mp.Shutdown(context.Background()) }()

	metrics, err = NewHTTPMetrics(mp)
	require.NoError(t, err)
	require.NotNil(t, metrics)
	assert.NotNil(t, metrics.requestDuration)
	assert.NotNil(t, metrics.requestsTotal)
	assert.NotNil(t, metrics.activeRequests)
}

func TestHTTPMetrics_Middleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		route        string
		path         string
		status       int
		expectRoute  string
		expectStatus string
	}{
		{
			name:         "route pattern is recorded",
			route:        "/repos/{name}",
			path:         "/repos/tools",
			status:       http.StatusOK,
			expectRoute:  "/repos/{name}",
			expectStatus: "200",
		},
		{
			name:         "error status",
			route:        "/repos",
			path:         "/repos",
			status:       http.StatusInternalServerError,
			expectRoute:  "/repos",
			expectStatus: "500",
		},
		{
			name:         "redirect status",
			route:        "/repos",
			path:         "/repos",
			status:       http.StatusFound,
			expectRoute:  "/repos",
			expectStatus: "302",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reader := sdkmetric.NewManualReader()
			mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
			defer func() { _ = mp.Shutdown(context.Background()) }()

			metrics, err := NewHTTPMetrics(mp)
			require.NoError(t, err)

			r := chi.NewRouter()
			r.Use(metrics.Middleware)
			r.Get(tt.route, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			})

			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, rr.Code)

			var rm metricdata.ResourceMetrics
			require.NoError(t, reader.Collect(context.Background(), &rm))

			m := findMetric(t, rm, HTTPMetricsMeterName, "repocache_http_requests")
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			require.Len(t, sum.DataPoints, 1)

			dp := sum.DataPoints[0]
			assert.Equal(t, int64(1), dp.Value)
			route, _ := dp.Attributes.Value(attribute.Key("route"))
			assert.Equal(t, tt.expectRoute, route.AsString())
			status, _ := dp.Attributes.Value(attribute.Key("status_code"))
			assert.Equal(t, tt.expectStatus, status.AsString())
		})
	}
}

func TestHTTPMetrics_IdentityLabel(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	metrics, err := NewHTTPMetrics(mp, WithIdentityHeaders("Remote-User", "X-Forwarded-User"))
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Get("/repos", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, header := range []string{"", "Remote-User", "X-Forwarded-User"} {
		req := httptest.NewRequest(http.MethodGet, "/repos", nil)
		if header != "" {
			req.Header.Set(header, "jdoe")
		}
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	sum, ok := findMetric(t, rm, HTTPMetricsMeterName, "repocache_http_requests").Data.(metricdata.Sum[int64])
	require.True(t, ok)

	counts := map[string]int64{}
	for _, dp := range sum.DataPoints {
		identity, found := dp.Attributes.Value(attribute.Key("identity"))
		require.True(t, found)
		counts[identity.AsString()] += dp.Value
	}
	assert.Equal(t, map[string]int64{"absent": 1, "present": 2}, counts)
}

func TestMetricsMiddleware(t *testing.T) {
	t.Parallel()

	sdk := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = sdk.Shutdown(context.Background()) })

	tests := []struct {
		name     string
		provider metric.MeterProvider
	}{
		{name: "nil provider passes through"},
		{name: "noop provider", provider: noop.NewMeterProvider()},
		{name: "sdk provider", provider: sdk},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mw, err := MetricsMiddleware(tt.provider)
			require.NoError(t, err)
			require.NotNil(t, mw)

			wrapped := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusCreated)
			}))
			rr := httptest.NewRecorder()
			wrapped.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/test", nil))
			assert.Equal(t, http.StatusCreated, rr.Code)
		})
	}
}

func TestRoutePattern(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "unknown_route", routePattern(httptest.NewRequest(http.MethodGet, "/test/path", nil)))

	var seen string
	r := chi.NewRouter()
	r.Get("/users/{id}", func(_ http.ResponseWriter, req *http.Request) {
		seen = routePattern(req)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/123", nil))
	assert.Equal(t, "/users/{id}", seen)
}

// findMetric returns the named metric of the named scope
func findMetric(t *testing.T, rm metricdata.ResourceMetrics, scope, name string) metricdata.Metrics {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		if sm.Scope.Name != scope {
			continue
		}
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m
			}
		}
	}
	require.Failf(t, "metric not found", "%s/%s", scope, name)
	return metricdata.Metrics{}
}
