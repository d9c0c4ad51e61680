// env.go - environment variable bindings and validation
package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns the unprefixed variables understood for container
// deployments. Every other key is also reachable as DOCQ_<SECTION>_<KEY>.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"quality.modelpath", "MODEL_PATH", validateEnvPath},
		{"quality.threshold", "QUALITY_THRESHOLD", validateEnvUnitInterval},
		{"quality.threads", "QUALITY_THREADS", validateEnvNonNegativeInt},

		{"classifier.modelpath", "CLASSIFIER_MODEL_PATH", validateEnvPath},
		{"classifier.templates.path", "TEMPLATE_BANK_PATH", validateEnvPath},
		{"classifier.templates.dsn", "TEMPLATE_DB_DSN", nil},

		{"webserver.host", "HOST", nil},
		{"webserver.port", "PORT", validateEnvPort},
		{"webserver.corsorigins", "CORS_ORIGINS", nil},

		{"telemetry.dsn", "SENTRY_DSN", nil},
		{"debug", "DEBUG", validateEnvBool},
	}
}

// bindEnvVars binds every variable and collects validation problems.
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f", value)
	}
	return nil
}

func validateEnvPath(value string) error {
	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("path contains a NUL byte")
	}
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("path must not be blank")
	}
	return nil
}

func validateEnvUnitInterval(value string) error {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid number: %w", err)
	}
	if v < 0 || v > 1 {
		return fmt.Errorf("must be between 0 and 1, got %g", v)
	}
	return nil
}

func validateEnvNonNegativeInt(value string) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer: %w", err)
	}
	if v < 0 {
		return fmt.Errorf("must not be negative, got %d", v)
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid port: %w", err)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}
