package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	rcapp "github.com/stacklok/repocache/internal/app"
	"github.com/stacklok/repocache/internal/cache"
	"github.com/stacklok/repocache/internal/config"
	"github.com/stacklok/repocache/internal/telemetry"
	"github.com/stacklok/repocache/internal/versions"
)

const defaultGracefulTimeout = 30 * time.Second

func newServeCmd(v *viper.Viper) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve repository lists over HTTP",
		Long: `Start a long running HTTP server. Every request to /repos reads the configuration
again and answers with the repositories its scan-path directives yield. Stale cache files are
regenerated in the background of the server process.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), config.LoadSettings(v))
		},
	}

	serveCmd.Flags().String("address", config.DefaultAddress, "Address to listen on")
	serveCmd.Flags().Bool("metrics", true, "Expose Prometheus metrics at /metrics")
	bindFlags(v, serveCmd.Flags(), "address", "metrics")

	return serveCmd
}

func runServe(ctx context.Context, settings config.Settings) error {
	logger := logr.FromContextOrDiscard(ctx)
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	meterProvider, err := telemetry.NewPrometheusMeterProvider(ctx,
		telemetry.WithMetricsEnabled(settings.Metrics),
		telemetry.WithMeterServiceVersion(versions.GetVersionInfo().Version),
	)
	if err != nil {
		return fmt.Errorf("failed to create meter provider: %w", err)
	}
	defer func() {
		if err := meterProvider.Shutdown(context.Background()); err != nil {
			logger.Error(err, "Failed to shut down meter provider")
		}
	}()

	server, err := rcapp.NewServerApp(ctx,
		rcapp.WithSettings(settings),
		rcapp.WithAddress(settings.Address),
		rcapp.WithMeterProvider(meterProvider),
		rcapp.WithSpawner(cache.GoroutineSpawner{}),
	)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("Starting repocache server", "address", settings.Address, "config", settings.ConfigPath)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	return server.Stop(defaultGracefulTimeout)
}
