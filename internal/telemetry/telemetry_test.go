package telemetry

import (
	"fmt"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/docquality/internal/conf"
	"github.com/tphakala/docquality/internal/errors"
)

// Sentry and the errors reporter are process globals, so these tests do not
// run in parallel.

func resetTelemetry(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		enabled.Store(false)
		errors.SetTelemetryReporter(nil)
		errors.SetPrivacyScrubber(nil)
		_ = sentry.Init(sentry.ClientOptions{})
	})
}

func telemetrySettings(enabled bool, dsn string) *conf.Settings {
	s := &conf.Settings{}
	s.Main.Name = "docquality"
	s.Telemetry = conf.TelemetrySettings{Enabled: enabled, DSN: dsn}
	return s
}

func TestInitSentryDisabled(t *testing.T) {
	resetTelemetry(t)

	require.NoError(t, InitSentry(telemetrySettings(false, "")))
	assert.False(t, Enabled())
	assert.Nil(t, errors.GetTelemetryReporter())

	// no-ops while disabled
	CaptureError(fmt.Errorf("ignored"), "api")
	Flush(time.Millisecond)
}

func TestInitSentryRequiresDSN(t *testing.T) {
	resetTelemetry(t)

	err := InitSentry(telemetrySettings(true, ""))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	assert.False(t, Enabled())
}

func TestCaptureErrors(t *testing.T) {
	resetTelemetry(t)

	transport := &mockTransport{}
	require.NoError(t, initSentry(telemetrySettings(true, "https://public@example.com/1"), transport))
	require.True(t, Enabled())

	// building an EnhancedError reports it once
	ee := errors.New(fmt.Errorf("forward pass failed")).
		Component("quality").
		Category(errors.CategoryInference).
		Build()
	require.Len(t, transport.Events(), 1)
	CaptureError(ee, "quality")
	require.Len(t, transport.Events(), 1)

	// validation errors are caller mistakes and never reported
	_ = errors.ValidationError("threshold out of range")
	require.Len(t, transport.Events(), 1)

	CaptureError(fmt.Errorf("cannot open /home/alice/scans/invoice.png"), "api_server")
	events := transport.Events()
	require.Len(t, events, 2)

	last := events[1]
	assert.Equal(t, "cannot open .../invoice.png", last.Message)
	assert.Equal(t, "api_server", last.Tags["component"])
	assert.Equal(t, "Api Server Error", last.Tags["error_title"])
	assert.Empty(t, last.ServerName)
}

func TestApplyPrivacyFilters(t *testing.T) {
	event := sentry.NewEvent()
	event.ServerName = "build-host"
	event.User = sentry.User{ID: "42", Email: "a@b.example"}
	event.Contexts = map[string]sentry.Context{"os": {"name": "linux"}, "platform": {"arch": "amd64"}}
	event.Extra = map[string]any{"component": "quality", "path": "/secret"}
	event.Tags = map[string]string{"hostname": "build-host", "component": "quality"}
	event.Message = "token=abcdef123 failed for ops@example.com"

	filtered := applyPrivacyFilters(event)
	assert.Empty(t, filtered.ServerName)
	assert.True(t, filtered.User.IsEmpty())
	assert.NotContains(t, filtered.Contexts, "os")
	assert.Contains(t, filtered.Contexts, "platform")
	assert.Equal(t, map[string]any{"component": "quality"}, filtered.Extra)
	assert.Equal(t, map[string]string{"component": "quality"}, filtered.Tags)
	assert.NotContains(t, filtered.Message, "abcdef123")
	assert.NotContains(t, filtered.Message, "ops@example.com")
}

func TestScrubMessage(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", "model not loaded", "model not loaded"},
		{"path", "open /data/customers/acme/bol.jpg: no such file", "open .../bol.jpg: no such file"},
		{"url query", "GET https://api.example.com/v1?key=1 failed", "GET https://api.example.com/v1?[REDACTED] failed"},
		{"uuid", "request 123e4567-e89b-12d3-a456-426614174000 failed", "request [UUID] failed"},
		{"email", "notify ops@example.com", "notify [EMAIL]"},
		{"mysql dsn", "dial user:hunter2@tcp(db:3306)", "dial user:[REDACTED]@tcp(db:3306)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScrubMessage(tt.in))
		})
	}
}
