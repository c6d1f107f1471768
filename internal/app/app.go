// Package app wires the repocache components and manages the lifecycle of
// the long running server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"
)

// ServerApp is the repository list server of serve mode
type ServerApp struct {
	components *Components
	httpServer *http.Server
	logger     logr.Logger
}

// NewServerApp builds the components and the HTTP server serving them
func NewServerApp(ctx context.Context, opts ...Option) (*ServerApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	components, err := buildComponents(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build components: %w", err)
	}

	httpServer, err := buildHTTPServer(ctx, cfg, components)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	return &ServerApp{
		components: components,
		httpServer: httpServer,
		logger:     logr.FromContextOrDiscard(ctx),
	}, nil
}

// Start serves HTTP until the server is stopped
func (app *ServerApp) Start() error {
	app.logger.Info("Server listening", "address", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Stop gracefully shuts the HTTP server down. Regenerations already running
// in the background are not waited for; their lock files expire.
func (app *ServerApp) Stop(timeout time.Duration) error {
	app.logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	app.logger.Info("Server shutdown complete")
	return nil
}

// GetComponents returns the discovery stack
func (app *ServerApp) GetComponents() *Components {
	return app.components
}

// GetHTTPServer returns the HTTP server (useful for testing)
func (app *ServerApp) GetHTTPServer() *http.Server {
	return app.httpServer
}
