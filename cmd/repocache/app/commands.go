// Package app provides the command line interface of repocache.
package app

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/stacklok/repocache/internal/config"
	"github.com/stacklok/repocache/internal/versions"
)

// NewRootCmd creates the root command with every subcommand attached
func NewRootCmd() *cobra.Command {
	return newRootCmd(config.NewViper(), zapcore.Lock(os.Stderr))
}

func newRootCmd(v *viper.Viper, logOutput zapcore.WriteSyncer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "repocache",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "Repository discovery and caching for cgit-style frontends",
		Long: `repocache reads a cgitrc configuration, discovers the repositories named by its
scan-path directives and keeps the result in per-root cache files. Repository lists can come
from a directory tree, a project-list file or a Gerrit review service.`,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			settings := config.LoadSettings(v)
			logger := newLogger(logLevel(cmd, settings), logOutput)
			cmd.SetContext(logr.NewContext(cmd.Context(), logger))
		},
		Run: func(cmd *cobra.Command, _ []string) {
			// If no subcommand is provided, print help
			_ = cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", v.GetString("config"), "Path to the cgitrc configuration file")
	flags.String("log-level", v.GetString("log-level"), "Log level (debug, info, warn, error)")
	flags.Duration("http-timeout", config.DefaultHTTPTimeout, "Timeout of each request to the review service")
	flags.Uint("http-retries", config.DefaultHTTPRetries, "Attempts per request to the review service")
	bindFlags(v, flags, "config", "log-level", "http-timeout", "http-retries")

	rootCmd.AddCommand(newServeCmd(v))
	rootCmd.AddCommand(newCGICmd(v))
	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newRegenerateCmd(v))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// logLevel falls back to LOG_LEVEL when neither the flag nor the prefixed
// variable is set
func logLevel(cmd *cobra.Command, settings config.Settings) string {
	if cmd.Flags().Changed("log-level") || os.Getenv(config.EnvPrefix+"_LOG_LEVEL") != "" {
		return settings.LogLevel
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		return level
	}
	return settings.LogLevel
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet, names ...string) {
	for _, name := range names {
		cobra.CheckErr(v.BindPFlag(name, flags.Lookup(name)))
	}
}

func newVersionCmd() *cobra.Command {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versions.GetVersionInfo()
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return fmt.Errorf("error retrieving format flag: %w", err)
			}

			if format == "json" {
				output, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return fmt.Errorf("error formatting version info as JSON: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(output))
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), info.String())
			return err
		},
	}
	versionCmd.Flags().String("format", "", "Output format (json)")
	return versionCmd
}
