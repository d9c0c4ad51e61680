package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// ClassifierMetrics contains the document classification metrics.
type ClassifierMetrics struct {
	ClassificationTotal    *prometheus.CounterVec
	ClassificationErrors   *prometheus.CounterVec
	ClassificationDuration prometheus.Histogram
	TemplatesLearned       *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewClassifierMetrics creates and registers the classification metrics.
func NewClassifierMetrics(registry *prometheus.Registry) (*ClassifierMetrics, error) {
	m := &ClassifierMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register classifier metrics: %w", err)
	}
	return m, nil
}

func (m *ClassifierMetrics) initMetrics() {
	m.ClassificationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docquality_classifications_total",
			Help: "Classified documents, partitioned by whether a customer template matched",
		},
		[]string{"customer_match"},
	)
	m.ClassificationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docquality_classification_errors_total",
			Help: "Failed classifications by error category",
		},
		[]string{"error_type"},
	)
	m.ClassificationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docquality_classification_duration_seconds",
			Help:    "Inference time per classified document",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
		},
	)
	m.TemplatesLearned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docquality_templates_learned_total",
			Help: "Customer templates learned by document type",
		},
		[]string{"document_type"},
	)
}

// RecordClassification records one classification.
func (m *ClassifierMetrics) RecordClassification(customerMatch bool, durationSeconds float64, err error) {
	if err != nil {
		m.ClassificationErrors.WithLabelValues(categorizeError(err)).Inc()
		return
	}
	m.ClassificationTotal.WithLabelValues(strconv.FormatBool(customerMatch)).Inc()
	m.ClassificationDuration.Observe(durationSeconds)
}

// RecordTemplateLearned counts a stored template.
func (m *ClassifierMetrics) RecordTemplateLearned(documentType string) {
	m.TemplatesLearned.WithLabelValues(documentType).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *ClassifierMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.ClassificationTotal.Describe(ch)
	m.ClassificationErrors.Describe(ch)
	ch <- m.ClassificationDuration.Desc()
	m.TemplatesLearned.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *ClassifierMetrics) Collect(ch chan<- prometheus.Metric) {
	m.ClassificationTotal.Collect(ch)
	m.ClassificationErrors.Collect(ch)
	ch <- m.ClassificationDuration
	m.TemplatesLearned.Collect(ch)
}
