package logger

import (
	"regexp"
)

// sensitiveDataPatterns match credentials that must never reach a log line.
var sensitiveDataPatterns = []*regexp.Regexp{
	// user:password@ in MySQL DSNs and URLs
	regexp.MustCompile(`([A-Za-z0-9_.\-]+:)([^@/\s]+)(@)`),
	// Sentry style https://key@host
	regexp.MustCompile(`(https?://)([A-Za-z0-9]{16,})(@)`),
	// key=value secrets
	regexp.MustCompile(`(?i)((?:api[_-]?key|token|secret|passw(?:or)?d)[\s:=]+)([^;,\s&]{3,})()`),
}

// RedactSensitiveData replaces credentials embedded in input with "[REDACTED]".
func RedactSensitiveData(input string) string {
	if input == "" {
		return input
	}
	for _, pattern := range sensitiveDataPatterns {
		input = pattern.ReplaceAllString(input, "${1}[REDACTED]${3}")
	}
	return input
}
