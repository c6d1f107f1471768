package app

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	rcapp "github.com/stacklok/repocache/internal/app"
	"github.com/stacklok/repocache/internal/cache"
	"github.com/stacklok/repocache/internal/config"
)

func newRegenerateCmd(v *viper.Viper) *cobra.Command {
	regenerateCmd := &cobra.Command{
		Use:    "regenerate",
		Short:  "Regenerate the cache file of one scan root",
		Hidden: true,
		Long: `Read the configuration up to the scan-path directive naming --scan-path and rebuild
its cache file with the options in effect there. Started detached by the cgi command when a
cache file is stale. Exits successfully when another process holds the lock.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := cmd.Flags().GetString("scan-path")
			if err != nil {
				return err
			}
			settings := config.LoadSettings(v)
			components, err := rcapp.NewComponents(cmd.Context(), rcapp.WithSettings(settings))
			if err != nil {
				return fmt.Errorf("failed to build components: %w", err)
			}
			return runRegenerate(cmd.Context(), components.Coordinator, settings.ConfigPath, root)
		},
	}
	regenerateCmd.Flags().String("scan-path", "", "Scan root to regenerate")
	cobra.CheckErr(regenerateCmd.MarkFlagRequired("scan-path"))
	return regenerateCmd
}

func runRegenerate(ctx context.Context, coord cache.Coordinator, configPath, target string) error {
	logger := logr.FromContextOrDiscard(ctx).WithValues("root", target)
	found := false

	_, err := config.LoadConfig(ctx,
		config.WithConfigPath(configPath),
		config.WithScanHandler(func(ctx context.Context, cfg *config.Config, root string) error {
			if found || root != target {
				return nil
			}
			found = true
			if !cfg.CacheEnabled() {
				logger.Info("Cache is disabled for scan root, nothing to regenerate")
				return nil
			}
			return coord.Regenerate(ctx, &cache.Request{Root: root, Config: cfg.Clone()})
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to regenerate: %w", err)
	}
	if !found {
		return fmt.Errorf("scan-path %s is not declared in %s", target, configPath)
	}

	logger.V(1).Info("Regeneration finished")
	return nil
}
