// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/docquality/internal/logger"
)

// setDefaultConfig registers default values for every configuration key.
func setDefaultConfig() {
	viper.SetDefault("debug", false)
	viper.SetDefault("main.name", "docquality")

	viper.SetDefault("logging.default_level", logger.DefaultLogLevel)
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	viper.SetDefault("logging.console.level", logger.DefaultLogLevel)
	viper.SetDefault("logging.file_output.enabled", logger.DefaultFileEnabled)
	viper.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	viper.SetDefault("logging.file_output.level", logger.DefaultLogLevel)

	viper.SetDefault("quality.modelpath", "models/best_model.zip")
	viper.SetDefault("quality.threshold", 0.5)
	viper.SetDefault("quality.includeissues", true)
	viper.SetDefault("quality.monitoring", true)
	viper.SetDefault("quality.threads", 0)

	viper.SetDefault("classifier.enabled", true)
	viper.SetDefault("classifier.modelpath", "models/document_classifier.zip")
	viper.SetDefault("classifier.topk", 3)
	viper.SetDefault("classifier.confidencethreshold", 0.6)
	viper.SetDefault("classifier.threads", 0)
	viper.SetDefault("classifier.templates.driver", "sqlite")
	viper.SetDefault("classifier.templates.path", "models/customer_templates.db")
	viper.SetDefault("classifier.templates.dsn", "")

	viper.SetDefault("webserver.host", "0.0.0.0")
	viper.SetDefault("webserver.port", 8000)
	viper.SetDefault("webserver.corsorigins", []string{"*"})
	viper.SetDefault("webserver.bodylimit", "200M")
	viper.SetDefault("webserver.readtimeout", 60*time.Second)
	viper.SetDefault("webserver.writetimeout", 120*time.Second)
	viper.SetDefault("webserver.ratelimit.enabled", true)
	viper.SetDefault("webserver.ratelimit.rps", 20.0)
	viper.SetDefault("webserver.ratelimit.burst", 40)
	viper.SetDefault("webserver.resultcache.ttl", 10*time.Minute)

	viper.SetDefault("synthesis.sourcedir", "")
	viper.SetDefault("synthesis.outputdir", "dataset")
	viper.SetDefault("synthesis.minvariants", 10)
	viper.SetDefault("synthesis.maxvariants", 20)
	viper.SetDefault("synthesis.trainratio", 0.7)
	viper.SetDefault("synthesis.valratio", 0.2)
	viper.SetDefault("synthesis.testratio", 0.1)
	viper.SetDefault("synthesis.workerfraction", 0.75)
	viper.SetDefault("synthesis.maxworkers", 0)
	viper.SetDefault("synthesis.maxdocs", 0)
	viper.SetDefault("synthesis.seed", 0)

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.dsn", "")
}
