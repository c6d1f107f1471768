package app

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/stacklok/repocache/internal/config"
	"github.com/stacklok/repocache/internal/repo"
	"github.com/stacklok/repocache/internal/sources"
)

func newScanCmd() *cobra.Command {
	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Print the repositories found below scan paths",
		Long: `Walk every --scan-path and print the repositories found, sorted by url, in the
format of cache files. The configuration file is not read: every snapshot format is allowed so
per-repository snapshot settings are kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			roots, err := cmd.Flags().GetStringSlice("scan-path")
			if err != nil {
				return err
			}
			return runScan(cmd, sources.NewSourceFactory(), roots)
		},
	}
	scanCmd.Flags().StringSlice("scan-path", nil, "Directory to scan, may be repeated")
	cobra.CheckErr(scanCmd.MarkFlagRequired("scan-path"))
	return scanCmd
}

func runScan(cmd *cobra.Command, factory sources.SourceFactory, roots []string) error {
	ctx := cmd.Context()

	cfg := config.New()
	cfg.Snapshots = repo.SnapshotsAll

	src, err := factory.CreateSource(config.SourceTypeTree)
	if err != nil {
		return err
	}

	list := repo.NewList()
	registrar := repo.NewRegistrar(list, cfg.RepoDefaults, repo.WithLogger(logr.FromContextOrDiscard(ctx)))
	for _, root := range roots {
		req := &sources.DiscoverRequest{Root: root, Config: cfg, Sink: registrar}
		if err := src.Discover(ctx, req); err != nil {
			return fmt.Errorf("failed to scan %s: %w", root, err)
		}
	}

	encoder := repo.Encoder{Defaults: cfg.RepoDefaults()}
	return encoder.EncodeAll(cmd.OutOrStdout(), list.Sorted())
}
