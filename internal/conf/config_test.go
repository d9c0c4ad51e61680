package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/docquality/internal/errors"
)

// Load uses the global viper instance, so these tests do not run in parallel.

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Chdir(t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	resetViper(t)

	settings, err := Load()
	require.NoError(t, err)

	assert.InDelta(t, 0.5, settings.Quality.Threshold, 1e-9)
	assert.True(t, settings.Quality.IncludeIssues)
	assert.True(t, settings.Quality.Monitoring)
	assert.Equal(t, 3, settings.Classifier.TopK)
	assert.InDelta(t, 0.6, settings.Classifier.ConfidenceThreshold, 1e-9)
	assert.Equal(t, "sqlite", settings.Classifier.Templates.Driver)
	assert.Equal(t, 8000, settings.WebServer.Port)
	assert.Equal(t, []string{"*"}, settings.WebServer.CORSOrigins)
	assert.Equal(t, 10*time.Minute, settings.WebServer.ResultCache.TTL)
	assert.Equal(t, 10, settings.Synthesis.MinVariants)
	assert.Equal(t, 20, settings.Synthesis.MaxVariants)
	assert.InDelta(t, 0.75, settings.Synthesis.WorkerFraction, 1e-9)
	assert.Equal(t, "0.0.0.0:8000", settings.WebServer.Address())
	require.NotNil(t, settings.Logging.Console)
	assert.True(t, settings.Logging.Console.Enabled)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	resetViper(t)

	config := []byte(`
quality:
  threshold: 0.7
  modelpath: /models/quality.zip
synthesis:
  minvariants: 2
  maxvariants: 4
webserver:
  port: 9000
`)
	require.NoError(t, os.WriteFile("config.yaml", config, 0o600))

	t.Setenv("PORT", "9100")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("DOCQ_CLASSIFIER_TOPK", "5")

	settings, err := Load()
	require.NoError(t, err)

	assert.InDelta(t, 0.7, settings.Quality.Threshold, 1e-9)
	assert.Equal(t, "/models/quality.zip", settings.Quality.ModelPath)
	assert.Equal(t, 2, settings.Synthesis.MinVariants)
	assert.Equal(t, 9100, settings.WebServer.Port, "environment overrides the config file")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, settings.WebServer.CORSOrigins)
	assert.Equal(t, 5, settings.Classifier.TopK)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	resetViper(t)

	require.NoError(t, os.WriteFile("config.yaml", []byte("quality:\n  threshold: 1.5\n"), 0o600))

	_, err := Load()
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 1)
	assert.Contains(t, ve.Errors[0], "quality threshold")
}

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	resetViper(t)

	settings, err := Load()
	require.NoError(t, err)
	settings.Quality.Threshold = 0.42

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, SaveYAMLConfig(path, settings))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "threshold: 0.42")
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	valid := func() *Settings {
		s := &Settings{}
		s.Quality.Threshold = 0.5
		s.Classifier = ClassifierSettings{
			Enabled: true, TopK: 3, ConfidenceThreshold: 0.6,
			Templates: TemplateStoreSettings{Driver: "sqlite", Path: "t.db"},
		}
		s.WebServer.Port = 8000
		s.Synthesis = SynthesisSettings{
			MinVariants: 10, MaxVariants: 20,
			TrainRatio: 0.7, ValRatio: 0.2, TestRatio: 0.1,
			WorkerFraction: 0.75,
		}
		return s
	}

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"valid", func(*Settings) {}, ""},
		{"ratios do not sum to one", func(s *Settings) { s.Synthesis.TestRatio = 0.2 }, "split ratios must sum to 1"},
		{"min above max", func(s *Settings) { s.Synthesis.MinVariants = 30 }, "variants range"},
		{"zero worker fraction", func(s *Settings) { s.Synthesis.WorkerFraction = 0 }, "worker fraction"},
		{"bad driver", func(s *Settings) { s.Classifier.Templates.Driver = "postgres" }, "unsupported template store driver"},
		{"mysql without dsn", func(s *Settings) { s.Classifier.Templates.Driver = "mysql" }, "dsn is required"},
		{"disabled classifier skips checks", func(s *Settings) {
			s.Classifier.Enabled = false
			s.Classifier.TopK = 0
		}, ""},
		{"bad port", func(s *Settings) { s.WebServer.Port = 0 }, "webserver port"},
		{"telemetry without dsn", func(s *Settings) { s.Telemetry.Enabled = true }, "no dsn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := valid()
			tt.mutate(s)
			err := ValidateSettings(s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidationErrorCategory(t *testing.T) {
	t.Parallel()

	err := ValidationError{Errors: []string{"x"}}
	assert.Equal(t, errors.CategoryValidation, detectValidationCategory(err))
}

func detectValidationCategory(err error) errors.ErrorCategory {
	var categorized errors.CategorizedError
	if errors.As(err, &categorized) {
		return categorized.ErrorCategory()
	}
	return errors.CategoryGeneric
}

func TestEnvValidators(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validateEnvPort("8080"))
	assert.Error(t, validateEnvPort("70000"))
	assert.Error(t, validateEnvPort("http"))
	assert.NoError(t, validateEnvUnitInterval("0.3"))
	assert.Error(t, validateEnvUnitInterval("1.3"))
	assert.NoError(t, validateEnvBool("true"))
	assert.Error(t, validateEnvBool("maybe"))
	assert.Error(t, validateEnvPath("   "))
	assert.Error(t, validateEnvNonNegativeInt("-1"))
}
