// Package telemetry provides opt-in, privacy-filtered error reporting to Sentry.
package telemetry

import (
	"fmt"
	"regexp"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/docquality/internal/conf"
	"github.com/tphakala/docquality/internal/errors"
	"github.com/tphakala/docquality/internal/logger"
)

// enabled is set once Sentry has been initialised.
var enabled atomic.Bool

// allowedExtra are the only extra fields kept on outgoing events.
var allowedExtra = map[string]bool{"error_type": true, "component": true}

// InitSentry initialises Sentry when telemetry is enabled and a DSN is
// configured, and routes EnhancedError reports to it. Disabled telemetry is
// not an error.
func InitSentry(settings *conf.Settings) error {
	return initSentry(settings, nil)
}

// initSentry accepts a transport override for tests.
func initSentry(settings *conf.Settings, transport sentry.Transport) error {
	if !settings.Telemetry.Enabled {
		GetLogger().Debug("sentry telemetry is disabled (opt-in required)")
		return nil
	}
	if settings.Telemetry.DSN == "" {
		return errors.Newf("telemetry is enabled but no dsn is configured").
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Telemetry.DSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "", // never leak the hostname
		Release:          fmt.Sprintf("docquality@%s", conf.ServiceVersion),
		Transport:        transport,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	if err != nil {
		return errors.New(fmt.Errorf("sentry initialization failed: %w", err)).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("service", settings.Main.Name)
		scope.SetContext("platform", map[string]any{
			"os":         runtime.GOOS,
			"arch":       runtime.GOARCH,
			"num_cpu":    runtime.NumCPU(),
			"go_version": runtime.Version(),
		})
	})

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	errors.SetPrivacyScrubber(ScrubMessage)
	enabled.Store(true)

	GetLogger().Info("sentry telemetry initialized",
		logger.String("release", conf.ServiceVersion))
	return nil
}

// Enabled reports whether events are being sent.
func Enabled() bool {
	return enabled.Load()
}

// applyPrivacyFilters strips user, host and runtime details from an event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}
	for k := range event.Extra {
		if !allowedExtra[k] {
			delete(event.Extra, k)
		}
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	event.Message = ScrubMessage(event.Message)
	return event
}

// CaptureError sends err when telemetry is enabled. EnhancedErrors go through
// the errors package reporter so they are reported once.
func CaptureError(err error, component string) {
	if err == nil || !Enabled() {
		return
	}

	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		if reporter := errors.GetTelemetryReporter(); reporter != nil {
			reporter.ReportError(ee)
		}
		return
	}

	scrubbed := ScrubMessage(err.Error())
	sentry.WithScope(func(scope *sentry.Scope) {
		title := fmt.Sprintf("%s Error", titleCase(component))
		scope.SetTag("component", component)
		scope.SetTag("error_title", title)
		scope.SetFingerprint([]string{title, component})

		event := sentry.NewEvent()
		event.Level = sentry.LevelError
		event.Message = scrubbed
		event.Exception = []sentry.Exception{{Type: title, Value: scrubbed}}
		sentry.CaptureEvent(event)
	})
}

// Flush waits up to timeout for queued events.
func Flush(timeout time.Duration) {
	if !Enabled() {
		return
	}
	if !sentry.Flush(timeout) {
		GetLogger().Warn("sentry flush timed out", logger.Duration("timeout", timeout))
	}
}

var (
	absPathRegex = regexp.MustCompile(`(?:/[^/\s:]+)+/([^/\s:]+)`)
	uuidRegex    = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	emailRegex   = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	queryRegex   = regexp.MustCompile(`(https?://[^?\s]+)\?\S*`)
)

// ScrubMessage removes credentials, e-mail addresses, identifiers, URL
// queries and directory names from message. File base names are kept.
func ScrubMessage(message string) string {
	scrubbed := logger.RedactSensitiveData(message)
	scrubbed = queryRegex.ReplaceAllString(scrubbed, "$1?[REDACTED]")
	scrubbed = emailRegex.ReplaceAllString(scrubbed, "[EMAIL]")
	scrubbed = uuidRegex.ReplaceAllString(scrubbed, "[UUID]")
	if !strings.Contains(scrubbed, "://") {
		scrubbed = absPathRegex.ReplaceAllString(scrubbed, ".../$1")
	}
	return scrubbed
}

func titleCase(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '-' || r == '.' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
