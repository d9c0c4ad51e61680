package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/docquality/internal/logger"
	"github.com/tphakala/docquality/internal/observability/metrics"
)

func serve(e *echo.Echo, method, target string, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func okHandler(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func TestRateLimiter(t *testing.T) {
	t.Parallel()

	var denied []string
	e := echo.New()
	e.Use(NewRateLimiter(0.01, 2, func(c echo.Context) bool {
		return c.Path() == "/health"
	}, func(_ echo.Context, identifier string) {
		denied = append(denied, identifier)
	}))
	e.GET("/analyze", okHandler)
	e.GET("/health", okHandler)

	headers := map[string]string{echo.HeaderXRealIP: "203.0.113.7"}
	for range 2 {
		assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/analyze", "", headers).Code)
	}
	rec := serve(e, http.MethodGet, "/analyze", "", headers)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Rate limit exceeded")
	assert.Equal(t, []string{"203.0.113.7"}, denied)

	// other clients and skipped routes are unaffected
	other := map[string]string{echo.HeaderXRealIP: "203.0.113.8"}
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/analyze", "", other).Code)
	for range 5 {
		assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/health", "", headers).Code)
	}
}

func TestCORS(t *testing.T) {
	t.Parallel()

	e := echo.New()
	e.Use(NewCORS(SecurityConfig{AllowedOrigins: []string{"https://app.example.com"}, AllowCredentials: true}))
	e.POST("/analyze", okHandler)

	tests := []struct {
		name        string
		method      string
		origin      string
		wantStatus  int
		wantOrigin  string
		wantMethods string
	}{
		{"allowed origin", http.MethodPost, "https://app.example.com", http.StatusOK, "https://app.example.com", ""},
		{"foreign origin", http.MethodPost, "https://evil.example.com", http.StatusOK, "", ""},
		{"preflight", http.MethodOptions, "https://app.example.com", http.StatusNoContent, "https://app.example.com", "GET,HEAD,POST,OPTIONS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := serve(e, tt.method, "/analyze", "", map[string]string{
				echo.HeaderOrigin:                     tt.origin,
				echo.HeaderAccessControlRequestMethod: http.MethodPost,
			})
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
			assert.Equal(t, tt.wantMethods, rec.Header().Get(echo.HeaderAccessControlAllowMethods))
			if tt.wantOrigin != "" {
				assert.Equal(t, "true", rec.Header().Get(echo.HeaderAccessControlAllowCredentials))
			}
		})
	}
}

func TestDefaultSecurityConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultSecurityConfig()
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.True(t, cfg.AllowCredentials)
}

func TestSecureHeadersAndBodyLimit(t *testing.T) {
	t.Parallel()

	e := echo.New()
	e.Use(NewSecureHeaders(), NewBodyLimit("16B"))
	e.POST("/upload", okHandler)

	rec := serve(e, http.MethodPost, "/upload", "small", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get(echo.HeaderXContentTypeOptions))
	assert.Equal(t, "DENY", rec.Header().Get(echo.HeaderXFrameOptions))
	assert.Equal(t, "1; mode=block", rec.Header().Get(echo.HeaderXXSSProtection))

	rec = serve(e, http.MethodPost, "/upload", strings.Repeat("x", 64), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestMetricsMiddleware(t *testing.T) {
	t.Parallel()

	m, err := metrics.NewHTTPMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	e := echo.New()
	e.Use(NewMetrics(m))
	e.GET("/analyze/:request_id", okHandler)
	e.GET("/teapot", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, "short and stout")
	})

	serve(e, http.MethodGet, "/analyze/req_1", "", nil)
	serve(e, http.MethodGet, "/analyze/req_2", "", nil)
	rec := serve(e, http.MethodGet, "/teapot", "", nil)
	assert.Equal(t, http.StatusTeapot, rec.Code)

	expected := `
# HELP http_requests_total Total number of HTTP requests
# TYPE http_requests_total counter
http_requests_total{method="GET",path="/analyze/:request_id",status_code="200"} 2
http_requests_total{method="GET",path="/teapot",status_code="418"} 1
`
	require.NoError(t, testutil.CollectAndCompare(m, strings.NewReader(expected), "http_requests_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(m, "http_request_errors_total"))
	assert.InDelta(t, 0, m.InFlightRequests(), 0)
}

func TestMetricsMiddlewareNilCollectors(t *testing.T) {
	t.Parallel()

	e := echo.New()
	e.Use(NewMetrics(nil))
	e.GET("/", okHandler)

	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/", "", nil).Code)
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	e := echo.New()
	e.Use(NewRequestLoggerWithSkipper(logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC), func(c echo.Context) bool {
		return c.Path() == "/health"
	}))
	e.GET("/analyze", okHandler)
	e.GET("/health", okHandler)
	e.GET("/down", func(c echo.Context) error { return c.NoContent(http.StatusServiceUnavailable) })

	serve(e, http.MethodGet, "/analyze?x=1", "", nil)
	serve(e, http.MethodGet, "/health", "", nil)
	serve(e, http.MethodGet, "/down", "", nil)

	var lines []map[string]any
	for line := range strings.SplitSeq(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		lines = append(lines, entry)
	}
	require.Len(t, lines, 2)

	assert.Equal(t, "request", lines[0]["msg"])
	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "GET", lines[0]["method"])
	assert.Equal(t, "/analyze?x=1", lines[0]["uri"])
	assert.InDelta(t, 200, lines[0]["status"], 0)

	assert.Equal(t, "WARN", lines[1]["level"])
	assert.InDelta(t, 503, lines[1]["status"], 0)
}

func TestRequestLoggerNilLogger(t *testing.T) {
	t.Parallel()

	e := echo.New()
	e.Use(NewRequestLogger(nil))
	e.GET("/", okHandler)

	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/", "", nil).Code)
}
