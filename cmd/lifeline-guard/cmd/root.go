package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/lifeline-core/internal/config"
	"github.com/oshokin/lifeline-core/internal/service/guard"
	"github.com/oshokin/lifeline-core/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// databaseFile path where call records and configurations are persisted.
	databaseFile string

	// rootCmd represents the base command for running the guard daemon.
	rootCmd = &cobra.Command{
		Use:   "lifeline-guard",
		Short: "Run the emergency trigger-to-action daemon.",
		Long: `Starts the guard daemon that watches the device trigger sources and
performs the enabled action configuration when one fires.

Trigger sources (button, voice keyword, motion, health thresholds) are
registered according to the enabled configuration. Resolved actions send
templated messages, place distress calls through the configured channels
or query the assistant. Finished calls are persisted to the records
database for later review.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &guard.Options{
				ConfigPath:   configPath,
				DatabaseFile: databaseFile,
			}

			// Platform capability hooks are attached by the device build;
			// a bare daemon runs with every source silent.
			return guard.Run(ctx, options, guard.Platform{})
		},
	}
)

// Execute runs the lifeline-guard CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().
		StringVarP(&databaseFile, "database", "d", config.DefaultDatabaseFilename, "path to the records database")
}
