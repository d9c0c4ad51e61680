// Package cmd assembles the docquality command line.
package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tphakala/docquality/cmd/benchmark"
	"github.com/tphakala/docquality/cmd/file"
	"github.com/tphakala/docquality/cmd/serve"
	"github.com/tphakala/docquality/cmd/synthesize"
	"github.com/tphakala/docquality/internal/buildinfo"
	"github.com/tphakala/docquality/internal/conf"
	"github.com/tphakala/docquality/internal/logger"
	"github.com/tphakala/docquality/internal/telemetry"
)

// telemetryFlushTimeout bounds the wait for queued Sentry events on exit.
const telemetryFlushTimeout = 2 * time.Second

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings, info *buildinfo.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "docquality",
		Short:         "Document image quality assessment and classification",
		Version:       info.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	setupFlags(rootCmd, settings)

	rootCmd.AddCommand(
		serve.Command(settings),
		synthesize.Command(settings),
		file.Command(settings),
		benchmark.Command(settings),
	)

	var central *logger.CentralLogger
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		var err error
		central, err = initialize(settings)
		return err
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		telemetry.Flush(telemetryFlushTimeout)
		if central != nil {
			return central.Close()
		}
		return nil
	}

	rootCmd.SetGlobalNormalizationFunc(normalizeFlagName)

	return rootCmd
}

// normalizeFlagName accepts --max_workers as well as --max-workers.
func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// initialize sets up logging and telemetry once flags are parsed.
func initialize(settings *conf.Settings) (*logger.CentralLogger, error) {
	if settings.Debug {
		settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)

	if err := telemetry.InitSentry(settings); err != nil {
		// telemetry problems never stop the service
		central.Module("main").Warn("telemetry disabled", logger.Error(err))
	}
	return central, nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", settings.Debug, "Enable debug output")
	rootCmd.PersistentFlags().BoolVar(&settings.Telemetry.Enabled, "telemetry", settings.Telemetry.Enabled, "Report errors to Sentry (requires telemetry.dsn)")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		logger.Global().Module("main").Warn("error binding flags", logger.Error(err))
	}
}
