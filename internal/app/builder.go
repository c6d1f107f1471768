package app

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel/metric"

	"github.com/stacklok/repocache/internal/api"
	"github.com/stacklok/repocache/internal/cache"
	"github.com/stacklok/repocache/internal/config"
	"github.com/stacklok/repocache/internal/httpclient"
	"github.com/stacklok/repocache/internal/request"
	"github.com/stacklok/repocache/internal/sources"
	"github.com/stacklok/repocache/internal/telemetry"
)

const (
	// Cold cache misses scan the whole tree inside the request
	defaultRequestTimeout = 60 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 65 * time.Second
	defaultIdleTimeout    = 60 * time.Second
)

// Option configures the application builder
type Option func(*appConfig) error

type appConfig struct {
	settings config.Settings

	// Optional component overrides (primarily for testing)
	sourceFactory sources.SourceFactory
	spawner       cache.Spawner
	identities    api.IdentityFunc

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	// Telemetry components
	meterProvider  metric.MeterProvider
	metricsHandler http.Handler
}

func baseConfig(opts ...Option) (*appConfig, error) {
	cfg := &appConfig{
		settings: config.Settings{
			ConfigPath:  config.DefaultConfigPath,
			HTTPTimeout: config.DefaultHTTPTimeout,
			HTTPRetries: config.DefaultHTTPRetries,
		},
		address:        config.DefaultAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// WithSettings sets the process settings. The address is validated
// separately through WithAddress.
func WithSettings(s config.Settings) Option {
	return func(cfg *appConfig) error {
		if s.ConfigPath == "" {
			return fmt.Errorf("config path cannot be empty")
		}
		cfg.settings = s
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) Option {
	return func(cfg *appConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}
		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares replaces the default HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *appConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithSpawner sets how stale cache files are regenerated
func WithSpawner(s cache.Spawner) Option {
	return func(cfg *appConfig) error {
		cfg.spawner = s
		return nil
	}
}

// WithSourceFactory allows injecting a custom source factory (for testing)
func WithSourceFactory(f sources.SourceFactory) Option {
	return func(cfg *appConfig) error {
		cfg.sourceFactory = f
		return nil
	}
}

// WithIdentities sets where caller identities are looked up
func WithIdentities(f api.IdentityFunc) Option {
	return func(cfg *appConfig) error {
		cfg.identities = f
		return nil
	}
}

// WithMeterProvider records metrics through mp and serves them at /metrics
func WithMeterProvider(mp *telemetry.MeterProvider) Option {
	return func(cfg *appConfig) error {
		if mp == nil {
			return nil
		}
		cfg.meterProvider = mp
		cfg.metricsHandler = mp.Handler
		return nil
	}
}

// NewComponents builds the discovery stack without an HTTP server
func NewComponents(ctx context.Context, opts ...Option) (*Components, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}
	return buildComponents(ctx, cfg)
}

// buildComponents wires sources, cache coordinator and request handling
func buildComponents(ctx context.Context, b *appConfig) (*Components, error) {
	logger := logr.FromContextOrDiscard(ctx)

	if b.sourceFactory == nil {
		remoteMetrics, err := telemetry.NewRemoteMetrics(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create remote metrics: %w", err)
		}
		client := httpclient.NewDefaultClient(
			httpclient.WithTimeout(b.settings.HTTPTimeout),
			httpclient.WithMaxTries(b.settings.HTTPRetries),
		)
		b.sourceFactory = sources.NewSourceFactory(
			sources.WithHTTPClient(client),
			sources.WithRemoteMetrics(remoteMetrics),
		)
	}

	cacheMetrics, err := telemetry.NewCacheMetrics(b.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache metrics: %w", err)
	}

	coordOpts := []cache.Option{cache.WithMetrics(cacheMetrics)}
	if b.spawner != nil {
		coordOpts = append(coordOpts, cache.WithSpawner(b.spawner))
	}
	coord := cache.New(b.sourceFactory, coordOpts...)
	discoverer := request.NewDiscoverer(b.sourceFactory, coord)

	var handlerOpts []api.HandlerOption
	if b.identities != nil {
		handlerOpts = append(handlerOpts, api.WithIdentities(b.identities))
	}

	logger.V(1).Info("Components initialized", "config", b.settings.ConfigPath)
	return &Components{
		Sources:     b.sourceFactory,
		Coordinator: coord,
		Discoverer:  discoverer,
		Handler:     api.NewHandler(discoverer, b.settings.ConfigPath, handlerOpts...),
	}, nil
}

// buildHTTPServer builds the HTTP server with router and middleware
func buildHTTPServer(ctx context.Context, b *appConfig, components *Components) (*http.Server, error) {
	logger := logr.FromContextOrDiscard(ctx)

	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			api.WithLogger(logger),
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	// Prepend metrics middleware to capture every request
	metricsMiddleware, err := telemetry.MetricsMiddleware(b.meterProvider,
		telemetry.WithIdentityHeaders(api.RemoteUserHeader, api.ForwardedUserHeader))
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
	}
	if b.meterProvider != nil {
		b.middlewares = append([]func(http.Handler) http.Handler{metricsMiddleware}, b.middlewares...)
		logger.Info("HTTP metrics middleware enabled")
	}

	serverOpts := []api.ServerOption{api.WithMiddlewares(b.middlewares...)}
	if b.metricsHandler != nil {
		serverOpts = append(serverOpts, api.WithMetricsHandler(b.metricsHandler))
	}
	router := api.NewServer(components.Handler, serverOpts...)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	logger.Info("HTTP server configured", "address", b.address)
	return server, nil
}
