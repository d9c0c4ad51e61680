// Package conf provides configuration management for docquality.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/docquality/internal/errors"
	"github.com/tphakala/docquality/internal/logger"
)

// ServiceVersion is reported by the health endpoint and the root endpoint.
const ServiceVersion = "2.0.0"

// Settings contains all configuration options for the service and the CLI.
type Settings struct {
	Debug bool `yaml:"debug"`

	Main struct {
		Name string `yaml:"name"`
	} `yaml:"main"`

	Logging logger.LoggingConfig `yaml:"logging"`

	Quality    QualitySettings    `yaml:"quality"`
	Classifier ClassifierSettings `yaml:"classifier"`
	WebServer  WebServerSettings  `yaml:"webserver"`
	Synthesis  SynthesisSettings  `yaml:"synthesis"`
	Telemetry  TelemetrySettings  `yaml:"telemetry"`
}

// QualitySettings configures the quality predictor.
type QualitySettings struct {
	ModelPath     string  `yaml:"modelpath"`     // checkpoint archive (.zip) or bare .tflite file
	Threshold     float64 `yaml:"threshold"`     // default acceptance threshold
	IncludeIssues bool    `yaml:"includeissues"` // default for include_issues
	Monitoring    bool    `yaml:"monitoring"`    // record rolling performance metrics
	Threads       int     `yaml:"threads"`       // interpreter threads, 0 = optimal for this CPU
}

// ClassifierSettings configures document classification and template learning.
type ClassifierSettings struct {
	Enabled             bool                  `yaml:"enabled"`
	ModelPath           string                `yaml:"modelpath"`
	TopK                int                   `yaml:"topk"`
	ConfidenceThreshold float64               `yaml:"confidencethreshold"` // minimum cosine similarity for a template match
	Threads             int                   `yaml:"threads"`
	Templates           TemplateStoreSettings `yaml:"templates"`
}

// TemplateStoreSettings selects where learned customer templates persist.
type TemplateStoreSettings struct {
	Driver string `yaml:"driver"` // sqlite or mysql
	Path   string `yaml:"path"`   // sqlite database file
	DSN    string `yaml:"dsn"`    // mysql data source name
}

// WebServerSettings configures the HTTP facade.
type WebServerSettings struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	CORSOrigins  []string      `yaml:"corsorigins"`
	BodyLimit    string        `yaml:"bodylimit"`
	ReadTimeout  time.Duration `yaml:"readtimeout"`
	WriteTimeout time.Duration `yaml:"writetimeout"`
	RateLimit    struct {
		Enabled bool    `yaml:"enabled"`
		RPS     float64 `yaml:"rps"`
		Burst   int     `yaml:"burst"`
	} `yaml:"ratelimit"`
	ResultCache struct {
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"resultcache"`
}

// SynthesisSettings configures dataset generation.
type SynthesisSettings struct {
	SourceDir      string  `yaml:"sourcedir"`
	OutputDir      string  `yaml:"outputdir"`
	MinVariants    int     `yaml:"minvariants"`
	MaxVariants    int     `yaml:"maxvariants"`
	TrainRatio     float64 `yaml:"trainratio"`
	ValRatio       float64 `yaml:"valratio"`
	TestRatio      float64 `yaml:"testratio"`
	WorkerFraction float64 `yaml:"workerfraction"` // share of CPUs used when MaxWorkers is 0
	MaxWorkers     int     `yaml:"maxworkers"`
	MaxDocs        int     `yaml:"maxdocs"` // 0 = all documents
	Seed           int64   `yaml:"seed"`    // 0 = seed from the clock
}

// TelemetrySettings controls Sentry error reporting.
type TelemetrySettings struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// Address returns host:port for the HTTP listener.
func (w *WebServerSettings) Address() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

// Load reads defaults, the config file and the environment into a validated Settings.
func Load() (*Settings, error) {
	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Category(errors.CategoryConfiguration).
			Build()
	}

	if settings.Debug && settings.Logging.DefaultLevel == "" {
		settings.Logging.DefaultLevel = "debug"
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

// initViper registers defaults, config paths and environment bindings, then
// reads the config file if one exists.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	for _, path := range GetDefaultConfigPaths() {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	viper.SetEnvPrefix("DOCQ")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := bindEnvVars(); err != nil {
		// invalid environment values are reported but do not stop startup
		GetLogger().Warn("environment configuration issues", logger.Error(err))
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			GetLogger().Debug("no config file found, using defaults")
			return nil
		}
		return errors.New(fmt.Errorf("fatal error reading config file: %w", err)).
			Category(errors.CategoryConfiguration).
			Build()
	}

	GetLogger().Info("loaded config file", logger.String("path", viper.ConfigFileUsed()))
	return nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml, in order.
func GetDefaultConfigPaths() []string {
	paths := []string{"."}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "docquality"))
	}
	return append(paths, "/etc/docquality")
}

// FindConfigFile returns the first config.yaml found in the default paths.
func FindConfigFile() (string, error) {
	for _, path := range GetDefaultConfigPaths() {
		configFilePath := filepath.Join(path, "config.yaml")
		if _, err := os.Stat(configFilePath); err == nil {
			return configFilePath, nil
		}
	}
	return "", errors.Newf("config file not found").
		Category(errors.CategoryNotFound).
		Context("operation", "find-config-file").
		Build()
}

// SaveYAMLConfig writes settings to configPath through a temporary file and
// a rename. Comments in an existing file are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName) //nolint:errcheck // already renamed on success

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}
