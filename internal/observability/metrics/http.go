// Package metrics provides HTTP handler metrics for observability
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/tphakala/docquality/internal/logger"
)

// HTTPMetrics contains Prometheus metrics for the API server.
type HTTPMetrics struct {
	registry *prometheus.Registry

	// HTTP request metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestErrors   *prometheus.CounterVec
	httpResponseSize    *prometheus.HistogramVec
	httpInFlight        prometheus.Gauge

	// Facade metrics
	rateLimited  *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
	uploadImages *prometheus.CounterVec
}

// NewHTTPMetrics creates and registers new HTTP handler metrics
func NewHTTPMetrics(registry *prometheus.Registry) (*HTTPMetrics, error) {
	m := &HTTPMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *HTTPMetrics) initMetrics() {
	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"}, // path is the route pattern, e.g. /analyze/:request_id
	)

	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Time taken for HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	m.httpRequestErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_errors_total",
			Help: "Total number of HTTP request errors",
		},
		[]string{"method", "path", "error_type"},
	)

	m.httpResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Size of HTTP responses in bytes",
			Buckets: prometheus.ExponentialBuckets(BucketStart100B, BucketFactor10, BucketCount6), // 100B to ~10MB
		},
		[]string{"method", "path"},
	)

	m.httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of requests being served",
		},
	)

	m.rateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter",
		},
		[]string{"path"},
	)

	m.cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_result_cache_lookups_total",
			Help: "Lookups of recently analysed results",
		},
		[]string{"result"}, // hit, miss
	)

	m.uploadImages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_uploaded_images_total",
			Help: "Uploaded files by outcome",
		},
		[]string{"outcome"}, // accepted, skipped
	)
}

// RecordRequest records a completed HTTP request.
func (m *HTTPMetrics) RecordRequest(method, path string, status int, durationSeconds float64, sizeBytes int64) {
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(durationSeconds)
	if sizeBytes > 0 {
		m.httpResponseSize.WithLabelValues(method, path).Observe(float64(sizeBytes))
	}
}

// RecordError records a failed request by error category.
func (m *HTTPMetrics) RecordError(method, path string, err error) {
	m.httpRequestErrors.WithLabelValues(method, path, categorizeError(err)).Inc()
}

// RequestStarted increments the in-flight gauge.
func (m *HTTPMetrics) RequestStarted() { m.httpInFlight.Inc() }

// RequestFinished decrements the in-flight gauge.
func (m *HTTPMetrics) RequestFinished() { m.httpInFlight.Dec() }

// RecordRateLimited counts a rejected request.
func (m *HTTPMetrics) RecordRateLimited(path string) {
	m.rateLimited.WithLabelValues(path).Inc()
}

// RecordCacheLookup counts a result cache lookup.
func (m *HTTPMetrics) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// RecordUploads counts accepted and skipped upload parts.
func (m *HTTPMetrics) RecordUploads(accepted, skipped int) {
	m.uploadImages.WithLabelValues("accepted").Add(float64(accepted))
	m.uploadImages.WithLabelValues("skipped").Add(float64(skipped))
}

// InFlightRequests returns the current number of in-flight requests.
func (m *HTTPMetrics) InFlightRequests() float64 {
	metric := &dto.Metric{}
	if err := m.httpInFlight.Write(metric); err != nil {
		log.Warn("Failed to write in-flight requests metric", logger.Error(err))
		return 0
	}
	if metric.Gauge != nil && metric.Gauge.Value != nil {
		return *metric.Gauge.Value
	}
	return 0
}

// Describe implements the prometheus.Collector interface.
func (m *HTTPMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.httpRequestsTotal.Describe(ch)
	m.httpRequestDuration.Describe(ch)
	m.httpRequestErrors.Describe(ch)
	m.httpResponseSize.Describe(ch)
	ch <- m.httpInFlight.Desc()
	m.rateLimited.Describe(ch)
	m.cacheLookups.Describe(ch)
	m.uploadImages.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *HTTPMetrics) Collect(ch chan<- prometheus.Metric) {
	m.httpRequestsTotal.Collect(ch)
	m.httpRequestDuration.Collect(ch)
	m.httpRequestErrors.Collect(ch)
	m.httpResponseSize.Collect(ch)
	ch <- m.httpInFlight
	m.rateLimited.Collect(ch)
	m.cacheLookups.Collect(ch)
	m.uploadImages.Collect(ch)
}
