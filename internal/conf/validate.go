// conf/validate.go

package conf

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/tphakala/docquality/internal/errors"
)

// ratioTolerance is the allowed drift of train+val+test from 1.0
const ratioTolerance = 1e-6

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ErrorCategory marks configuration validation failures for the errors package.
func (ve ValidationError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryValidation
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	for _, check := range []func(*Settings) error{
		func(s *Settings) error { return validateQualitySettings(&s.Quality) },
		func(s *Settings) error { return validateClassifierSettings(&s.Classifier) },
		func(s *Settings) error { return validateWebServerSettings(&s.WebServer) },
		func(s *Settings) error { return ValidateSynthesisSettings(&s.Synthesis) },
		func(s *Settings) error { return validateTelemetrySettings(&s.Telemetry) },
	} {
		if err := check(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateQualitySettings(s *QualitySettings) error {
	var problems []string
	if s.Threshold < 0 || s.Threshold > 1 || math.IsNaN(s.Threshold) {
		problems = append(problems, fmt.Sprintf("quality threshold must be between 0 and 1, got %g", s.Threshold))
	}
	if s.Threads < 0 {
		problems = append(problems, fmt.Sprintf("quality threads must not be negative, got %d", s.Threads))
	}
	return joinProblems(problems)
}

func validateClassifierSettings(s *ClassifierSettings) error {
	if !s.Enabled {
		return nil
	}
	var problems []string
	if s.TopK < 1 {
		problems = append(problems, fmt.Sprintf("classifier topk must be at least 1, got %d", s.TopK))
	}
	if s.ConfidenceThreshold < 0 || s.ConfidenceThreshold > 1 {
		problems = append(problems, fmt.Sprintf("classifier confidence threshold must be between 0 and 1, got %g", s.ConfidenceThreshold))
	}
	switch s.Templates.Driver {
	case "sqlite":
		if s.Templates.Path == "" {
			problems = append(problems, "template store path is required for the sqlite driver")
		}
	case "mysql":
		if s.Templates.DSN == "" {
			problems = append(problems, "template store dsn is required for the mysql driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("unsupported template store driver %q (use sqlite or mysql)", s.Templates.Driver))
	}
	return joinProblems(problems)
}

func validateWebServerSettings(s *WebServerSettings) error {
	var problems []string
	if s.Port < 1 || s.Port > 65535 {
		problems = append(problems, fmt.Sprintf("webserver port must be between 1 and 65535, got %d", s.Port))
	}
	if s.RateLimit.Enabled && (s.RateLimit.RPS <= 0 || s.RateLimit.Burst < 1) {
		problems = append(problems, "rate limit requires a positive rps and a burst of at least 1")
	}
	if slices.Contains(s.CORSOrigins, "") {
		problems = append(problems, "cors origins must not contain empty entries")
	}
	return joinProblems(problems)
}

// ValidateSynthesisSettings checks the dataset generation parameters. The CLI
// calls it again after applying command line overrides.
func ValidateSynthesisSettings(s *SynthesisSettings) error {
	var problems []string
	if s.MinVariants < 1 || s.MaxVariants < s.MinVariants {
		problems = append(problems, fmt.Sprintf("variants range must satisfy 1 <= min <= max, got %d..%d", s.MinVariants, s.MaxVariants))
	}
	for name, r := range map[string]float64{"train": s.TrainRatio, "val": s.ValRatio, "test": s.TestRatio} {
		if r < 0 || r > 1 {
			problems = append(problems, fmt.Sprintf("%s ratio must be between 0 and 1, got %g", name, r))
		}
	}
	if sum := s.TrainRatio + s.ValRatio + s.TestRatio; math.Abs(sum-1) > ratioTolerance {
		problems = append(problems, fmt.Sprintf("split ratios must sum to 1, got %g", sum))
	}
	if s.WorkerFraction <= 0 || s.WorkerFraction > 1 {
		problems = append(problems, fmt.Sprintf("worker fraction must be in (0, 1], got %g", s.WorkerFraction))
	}
	if s.MaxWorkers < 0 || s.MaxDocs < 0 {
		problems = append(problems, "max workers and max docs must not be negative")
	}
	slices.Sort(problems)
	return joinProblems(problems)
}

func validateTelemetrySettings(s *TelemetrySettings) error {
	if s.Enabled && s.DSN == "" {
		return fmt.Errorf("telemetry is enabled but no dsn is configured")
	}
	return nil
}

func joinProblems(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%s", strings.Join(problems, "; "))
}
