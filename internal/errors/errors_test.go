package errors

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReporter struct {
	mu       sync.Mutex
	reported []*EnhancedError
}

func (r *recordingReporter) ReportError(err *EnhancedError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reported = append(r.reported, err)
}

func (r *recordingReporter) IsEnabled() bool { return true }

func TestFastPathNoTelemetry(t *testing.T) {
	t.Parallel()

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.False(t, ee.GetTimestamp().IsZero())
}

func TestBuilderContext(t *testing.T) {
	t.Parallel()

	ee := Newf("decode %s", "scan.png").
		Component("preprocess").
		Category(CategoryImageDecode).
		Priority("bogus").
		FileContext("/uploads/scan.png", 2048).
		Timing("decode_image", 15*time.Millisecond).
		Build()

	assert.Equal(t, "preprocess", ee.GetComponent())
	assert.Equal(t, PriorityMedium, ee.GetPriority())

	ctx := ee.GetContext()
	assert.Equal(t, "absolute-path", ctx["file_type"])
	assert.Equal(t, "png", ctx["file_extension"])
	assert.Equal(t, "small", ctx["file_size_category"])
	assert.Equal(t, "decode_image", ctx["operation"])
	assert.Equal(t, int64(15), ctx["duration_ms"])

	// returned map is a copy
	ctx["operation"] = "changed"
	assert.Equal(t, "decode_image", ee.GetContext()["operation"])
}

func TestCategoryHelpers(t *testing.T) {
	t.Parallel()

	validation := ValidationError("threshold must be between 0 and 1")
	unavailable := UnavailableError("quality", "quality predictor not initialized")
	notFound := New(NewStd("missing")).Category(CategoryNotFound).Build()
	wrapped := fmt.Errorf("analyze: %w", unavailable)

	assert.True(t, IsValidation(validation))
	assert.True(t, IsUnavailable(unavailable))
	assert.True(t, IsUnavailable(wrapped))
	assert.True(t, IsNotFound(notFound))
	assert.False(t, IsUnavailable(validation))
	assert.False(t, IsCategory(NewStd("plain"), CategoryValidation))

	assert.True(t, Is(wrapped, &EnhancedError{Category: CategoryUnavailable}))
}

func TestEnhancedErrorUnwrap(t *testing.T) {
	t.Parallel()

	base := NewStd("root cause")
	ee := New(base).Category(CategoryInference).Build()

	assert.ErrorIs(t, ee, base)
	assert.Equal(t, base, Unwrap(ee))
	assert.Equal(t, "root cause", ee.GetMessage())
}

// Not parallel: swaps the global reporter.
func TestBuildReportsWhenTelemetryActive(t *testing.T) {
	reporter := &recordingReporter{}
	SetTelemetryReporter(reporter)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	ee := New(NewStd("invalid tensor shape")).Build()

	require.Len(t, reporter.reported, 1)
	assert.Same(t, ee, reporter.reported[0])
	assert.Equal(t, CategoryValidation, ee.Category)
	assert.NotEmpty(t, ee.GetComponent())
}

func TestDetectCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		msg  string
		want ErrorCategory
	}{
		{"failed to load model file", CategoryModelLoad},
		{"image: unknown format", CategoryImageDecode},
		{"open templates.db: permission denied", CategoryFileIO},
		{"shape mismatch", CategoryValidation},
		{"something odd", CategoryGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, detectCategory(NewStd(tt.msg)))
		})
	}
}

func TestGenerateErrorTitle(t *testing.T) {
	t.Parallel()

	ee := New(NewStd("boom")).
		Component("quality").
		Category(CategoryInference).
		Timing("predict_batch", time.Millisecond).
		Build()

	assert.Equal(t, "Quality Inference Error Predict Batch", generateErrorTitle(ee))
}

func TestBasicURLScrub(t *testing.T) {
	t.Parallel()

	scrubbed := basicURLScrub("Error at https://api.example.com?api_key=secret123&token=abc")
	assert.Equal(t, "Error at https://api.example.com?[REDACTED]", scrubbed)

	scrubbed = basicURLScrub("Config error: api_key=secret123 is invalid")
	assert.Contains(t, scrubbed, "[API_KEY_REDACTED]")

	scrubbed = basicURLScrub("template rejected for customer_id=acme-42")
	assert.False(t, strings.Contains(scrubbed, "acme-42"))
}
