package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsConcurrency(t *testing.T) {
	t.Parallel()

	const goroutines = 20
	var wg sync.WaitGroup
	errs := make(chan error, goroutines)
	for range goroutines {
		wg.Go(func() {
			m, err := NewMetrics()
			if err != nil {
				errs <- err
				return
			}
			if m.Quality == nil || m.Classifier == nil || m.Synthesis == nil || m.HTTP == nil {
				errs <- assert.AnError
			}
		})
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	m.Quality.RecordPrediction("best_model", 0.01, nil)
	m.HTTP.RecordRequest(http.MethodGet, "/health", http.StatusOK, 0.001, 64)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics/prometheus", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, `docquality_predictions_total{model="best_model",status="success"} 1`)
	assert.Contains(t, text, `http_requests_total{method="GET",path="/health",status_code="200"} 1`)
	assert.Contains(t, text, "go_goroutines")
	assert.NotNil(t, m.Registry())
}
