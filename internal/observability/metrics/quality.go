package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// QualityMetrics contains the Prometheus metrics of the quality predictor.
type QualityMetrics struct {
	// Performance metrics
	PredictionDuration *prometheus.HistogramVec
	BatchSize          *prometheus.HistogramVec

	// Operation counters
	PredictionTotal  *prometheus.CounterVec
	PredictionErrors *prometheus.CounterVec
	ModelLoadTotal   *prometheus.CounterVec
	AssessmentTotal  *prometheus.CounterVec

	// Current state gauges
	ModelLoadedGauge prometheus.Gauge

	registry *prometheus.Registry
}

// NewQualityMetrics creates and registers the quality metrics.
func NewQualityMetrics(registry *prometheus.Registry) (*QualityMetrics, error) {
	m := &QualityMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register quality metrics: %w", err)
	}
	return m, nil
}

func (m *QualityMetrics) initMetrics() {
	m.PredictionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docquality_prediction_duration_seconds",
			Help:    "Time taken by a quality prediction call, single or batch",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12), // 1ms to ~4s
		},
		[]string{"model"},
	)

	m.BatchSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docquality_prediction_batch_size",
			Help:    "Number of images per batch prediction",
			Buckets: prometheus.ExponentialBuckets(1, BucketFactor2, BucketCount8), // 1 to 128
		},
		[]string{"model"},
	)

	m.PredictionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docquality_predictions_total",
			Help: "Total number of quality prediction calls",
		},
		[]string{"model", "status"},
	)

	m.PredictionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docquality_prediction_errors_total",
			Help: "Total number of failed quality predictions by error category",
		},
		[]string{"model", "error_type"},
	)

	m.ModelLoadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docquality_model_load_total",
			Help: "Total number of model load attempts",
		},
		[]string{"model", "status"},
	)

	m.AssessmentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docquality_assessments_total",
			Help: "Assessed documents by quality class and acceptance",
		},
		[]string{"quality_class", "acceptable"},
	)

	m.ModelLoadedGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "docquality_model_loaded",
			Help: "Whether the quality model is currently loaded (1) or not (0)",
		},
	)
}

// RecordPrediction records one predictor call.
func (m *QualityMetrics) RecordPrediction(model string, durationSeconds float64, err error) {
	if err != nil {
		m.PredictionTotal.WithLabelValues(model, StatusError).Inc()
		m.PredictionErrors.WithLabelValues(model, categorizeError(err)).Inc()
		return
	}
	m.PredictionTotal.WithLabelValues(model, StatusSuccess).Inc()
	m.PredictionDuration.WithLabelValues(model).Observe(durationSeconds)
}

// RecordBatch records the size of a successful batch call.
func (m *QualityMetrics) RecordBatch(model string, size int, _ float64) {
	m.BatchSize.WithLabelValues(model).Observe(float64(size))
}

// RecordAssessment counts one returned result.
func (m *QualityMetrics) RecordAssessment(qualityClass string, acceptable bool) {
	m.AssessmentTotal.WithLabelValues(qualityClass, strconv.FormatBool(acceptable)).Inc()
}

// RecordModelLoad records a model load attempt.
func (m *QualityMetrics) RecordModelLoad(model string, err error) {
	if err != nil {
		m.ModelLoadTotal.WithLabelValues(model, StatusError).Inc()
		m.ModelLoadedGauge.Set(0)
		return
	}
	m.ModelLoadTotal.WithLabelValues(model, StatusSuccess).Inc()
	m.ModelLoadedGauge.Set(1)
}

// Describe implements the prometheus.Collector interface.
func (m *QualityMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.PredictionDuration.Describe(ch)
	m.BatchSize.Describe(ch)
	m.PredictionTotal.Describe(ch)
	m.PredictionErrors.Describe(ch)
	m.ModelLoadTotal.Describe(ch)
	m.AssessmentTotal.Describe(ch)
	ch <- m.ModelLoadedGauge.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *QualityMetrics) Collect(ch chan<- prometheus.Metric) {
	m.PredictionDuration.Collect(ch)
	m.BatchSize.Collect(ch)
	m.PredictionTotal.Collect(ch)
	m.PredictionErrors.Collect(ch)
	m.ModelLoadTotal.Collect(ch)
	m.AssessmentTotal.Collect(ch)
	ch <- m.ModelLoadedGauge
}
