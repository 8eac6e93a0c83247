// Package cmd builds the birdlens command line.
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/birdlens/birdlens/cmd/collection"
	"github.com/birdlens/birdlens/cmd/identify"
	"github.com/birdlens/birdlens/cmd/registry"
	"github.com/birdlens/birdlens/cmd/serve"
	"github.com/birdlens/birdlens/cmd/version"
	"github.com/birdlens/birdlens/internal/buildinfo"
	"github.com/birdlens/birdlens/internal/conf"
	"github.com/birdlens/birdlens/internal/logger"
	"github.com/birdlens/birdlens/internal/telemetry"
)

// sentryFlushTimeout bounds the wait for queued error reports at exit.
const sentryFlushTimeout = 2 * time.Second

// RootCommand creates and returns the root command. settings is filled in from the
// config file, the environment and flags before any subcommand runs.
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var configFile string
	var central *logger.CentralLogger

	rootCmd := &cobra.Command{
		Use:           "birdlens",
		Short:         "Identify birds in photos and keep a verified collection",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config.yaml (default: search standard locations)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	versionCmd := version.Command(build)

	rootCmd.AddCommand(
		serve.Command(settings, build),
		identify.Command(settings, build),
		registry.Command(settings, build),
		collection.Command(settings),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Version output needs no configuration
		if cmd.Name() == versionCmd.Name() {
			return nil
		}

		loaded, err := conf.LoadFile(configFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		*settings = *loaded

		central, err = initLogging(settings)
		if err != nil {
			return err
		}

		if err := telemetry.InitSentry(&settings.Sentry, build); err != nil {
			logger.Global().Module("main").Warn("error telemetry disabled", logger.Error(err))
		}
		return nil
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		telemetry.Shutdown(sentryFlushTimeout)
		if central != nil {
			_ = central.Close()
		}
	}

	return rootCmd
}

// initLogging installs the central logger configured by settings.
func initLogging(settings *conf.Settings) (*logger.CentralLogger, error) {
	cfg := settings.Logging
	if settings.Debug {
		cfg.DefaultLevel = string(logger.LogLevelDebug)
	}
	central, err := logger.NewCentralLogger(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)
	return central, nil
}
