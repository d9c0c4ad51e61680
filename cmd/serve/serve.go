// Package serve implements the serve command that runs the HTTP service.
package serve

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/docquality/internal/api"
	"github.com/tphakala/docquality/internal/classify"
	"github.com/tphakala/docquality/internal/conf"
	"github.com/tphakala/docquality/internal/logger"
	"github.com/tphakala/docquality/internal/observability"
	"github.com/tphakala/docquality/internal/quality"
	"github.com/tphakala/docquality/internal/telemetry"
)

// Command creates the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the document quality HTTP service",
		Long: `Load the quality model and the document classifier and serve the
analysis, classification and template endpoints over HTTP.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, settings)
		},
	}

	setupFlags(cmd, settings)
	return cmd
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	cmd.Flags().StringVar(&settings.WebServer.Host, "host", settings.WebServer.Host, "Listen address")
	cmd.Flags().IntVarP(&settings.WebServer.Port, "port", "p", settings.WebServer.Port, "Listen port")
	cmd.Flags().StringVar(&settings.Quality.ModelPath, "model", settings.Quality.ModelPath, "Quality model checkpoint")
	cmd.Flags().StringVar(&settings.Classifier.ModelPath, "classifier-model", settings.Classifier.ModelPath, "Document classifier checkpoint")
	cmd.Flags().StringVar(&settings.Classifier.Templates.Path, "templates", settings.Classifier.Templates.Path, "Customer template database (sqlite)")
	cmd.Flags().BoolVar(&settings.Classifier.Enabled, "classifier", settings.Classifier.Enabled, "Enable document classification")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		logger.Global().Module("serve").Warn("error binding flags", logger.Error(err))
	}
}

func run(cmd *cobra.Command, settings *conf.Settings) error {
	if err := conf.ValidateSettings(settings); err != nil {
		return err
	}
	log := logger.Global().Module("serve")

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	// A model that fails to load leaves the service running; the endpoints
	// that need it answer 503 until it is fixed and the service restarted.
	predictor, err := quality.Load(&settings.Quality, metrics.Quality, quality.WithRecorder(metrics.Quality))
	if err != nil {
		log.Error("quality model not loaded, analysis endpoints disabled",
			logger.String("path", settings.Quality.ModelPath),
			logger.Error(err))
		telemetry.CaptureError(err, "serve")
	} else {
		defer closeWithLog(log, "quality predictor", predictor.Close)
	}

	var classifier *classify.Service
	if settings.Classifier.Enabled {
		classifier, err = classify.Load(cmd.Context(), &settings.Classifier, classify.WithRecorder(metrics.Classifier))
		if err != nil {
			log.Warn("document classifier not loaded, classification endpoints disabled",
				logger.String("path", settings.Classifier.ModelPath),
				logger.Error(err))
		} else {
			defer closeWithLog(log, "document classifier", classifier.Close)
		}
	}

	server, err := api.New(settings,
		api.WithPredictor(predictor),
		api.WithClassifier(classifier),
		api.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}

	return server.Run(cmd.Context())
}

func closeWithLog(log logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		log.Warn("error closing "+what, logger.Error(err))
	}
}
