// Package synthesize implements the command that builds the synthetic
// training dataset.
package synthesize

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/docquality/internal/conf"
	"github.com/tphakala/docquality/internal/logger"
	"github.com/tphakala/docquality/internal/observability"
	"github.com/tphakala/docquality/internal/synth"
)

// metricsFile is written in the node exporter textfile format when set.
var metricsFile string

// Command creates the synthesize command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "synthesize [source-dir]",
		Short: "Generate a degraded document dataset",
		Long: `Copy every source document into train, val and test splits and add
randomly degraded variants labelled with quality scores and issue flags.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				settings.Synthesis.SourceDir = args[0]
			}
			return run(cmd, &settings.Synthesis)
		},
	}

	setupFlags(cmd, &settings.Synthesis)
	return cmd
}

func setupFlags(cmd *cobra.Command, s *conf.SynthesisSettings) {
	cmd.Flags().StringVarP(&s.SourceDir, "source", "s", s.SourceDir, "Directory with clean source documents")
	cmd.Flags().StringVarP(&s.OutputDir, "output", "o", s.OutputDir, "Dataset output directory")
	cmd.Flags().IntVar(&s.MinVariants, "min-variants", s.MinVariants, "Minimum degraded variants per document")
	cmd.Flags().IntVar(&s.MaxVariants, "max-variants", s.MaxVariants, "Maximum degraded variants per document")
	cmd.Flags().Float64Var(&s.TrainRatio, "train-ratio", s.TrainRatio, "Share of documents in the train split")
	cmd.Flags().Float64Var(&s.ValRatio, "val-ratio", s.ValRatio, "Share of documents in the val split")
	cmd.Flags().Float64Var(&s.TestRatio, "test-ratio", s.TestRatio, "Share of documents in the test split")
	cmd.Flags().IntVar(&s.MaxDocs, "max-docs", s.MaxDocs, "Process at most this many documents (0 = all)")
	cmd.Flags().IntVarP(&s.MaxWorkers, "max-workers", "w", s.MaxWorkers, "Worker limit (0 = share of available CPUs)")
	cmd.Flags().Int64Var(&s.Seed, "seed", s.Seed, "Random seed (0 = seed from the clock)")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write run metrics to this file in Prometheus text format")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		logger.Global().Module("synthesize").Warn("error binding flags", logger.Error(err))
	}
}

func run(cmd *cobra.Command, s *conf.SynthesisSettings) error {
	if s.SourceDir == "" {
		return fmt.Errorf("source directory is required, pass it as an argument or with --source")
	}
	if err := conf.ValidateSynthesisSettings(s); err != nil {
		return err
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	creator, err := synth.NewCreator(synth.ConfigFromSettings(s), synth.WithRecorder(metrics.Synthesis))
	if err != nil {
		return err
	}

	result, err := creator.Run(cmd.Context())
	if err != nil {
		return err
	}

	if _, err := result.Summary.WriteTo(os.Stdout); err != nil {
		return err
	}
	fmt.Printf("\nWorkers: %d, seed: %d\n", result.Workers, result.Seed)
	if len(result.Skipped) > 0 {
		fmt.Printf("⚠️  %d source documents could not be processed:\n", len(result.Skipped))
		for _, path := range result.Skipped {
			fmt.Printf("  - %s\n", path)
		}
	}

	if metricsFile != "" {
		if err := prometheus.WriteToTextfile(metricsFile, metrics.Registry()); err != nil {
			return fmt.Errorf("failed to write metrics file: %w", err)
		}
	}
	return nil
}
