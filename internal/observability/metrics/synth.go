package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SynthesisMetrics tracks dataset generation.
type SynthesisMetrics struct {
	DocumentsTotal   *prometheus.CounterVec
	DocumentErrors   *prometheus.CounterVec
	ImagesTotal      *prometheus.CounterVec
	DocumentDuration prometheus.Histogram

	registry *prometheus.Registry
}

// NewSynthesisMetrics creates and registers the synthesis metrics.
func NewSynthesisMetrics(registry *prometheus.Registry) (*SynthesisMetrics, error) {
	m := &SynthesisMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register synthesis metrics: %w", err)
	}
	return m, nil
}

func (m *SynthesisMetrics) initMetrics() {
	m.DocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docquality_synthesis_documents_total",
			Help: "Source documents processed by split and status",
		},
		[]string{"split", "status"},
	)
	m.DocumentErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docquality_synthesis_document_errors_total",
			Help: "Skipped source documents by error category",
		},
		[]string{"error_type"},
	)
	m.ImagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docquality_synthesis_images_total",
			Help: "Images written by split",
		},
		[]string{"split"},
	)
	m.DocumentDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docquality_synthesis_document_duration_seconds",
			Help:    "Time taken to write all images of one source document",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount15), // 10ms to ~160s
		},
	)
}

// RecordDocument records one processed source document.
func (m *SynthesisMetrics) RecordDocument(split string, images int, duration time.Duration, err error) {
	if err != nil {
		m.DocumentsTotal.WithLabelValues(split, StatusError).Inc()
		m.DocumentErrors.WithLabelValues(categorizeError(err)).Inc()
		return
	}
	m.DocumentsTotal.WithLabelValues(split, StatusSuccess).Inc()
	m.ImagesTotal.WithLabelValues(split).Add(float64(images))
	m.DocumentDuration.Observe(duration.Seconds())
}

// Describe implements the prometheus.Collector interface.
func (m *SynthesisMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.DocumentsTotal.Describe(ch)
	m.DocumentErrors.Describe(ch)
	m.ImagesTotal.Describe(ch)
	ch <- m.DocumentDuration.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *SynthesisMetrics) Collect(ch chan<- prometheus.Metric) {
	m.DocumentsTotal.Collect(ch)
	m.DocumentErrors.Collect(ch)
	m.ImagesTotal.Collect(ch)
	ch <- m.DocumentDuration
}
