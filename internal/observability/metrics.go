// Package observability wires the Prometheus collectors of the docquality
// service into one private registry. Sentry error telemetry lives in the
// telemetry package.
package observability

import (
	"fmt"
	stdlog "log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/docquality/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry   *prometheus.Registry
	Quality    *metrics.QualityMetrics
	Classifier *metrics.ClassifierMetrics
	Synthesis  *metrics.SynthesisMetrics
	HTTP       *metrics.HTTPMetrics
}

// NewMetrics creates a registry with every collector registered. Each call
// returns an independent registry.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register Go runtime metrics: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("failed to register process metrics: %w", err)
	}

	qualityMetrics, err := metrics.NewQualityMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create quality metrics: %w", err)
	}

	classifierMetrics, err := metrics.NewClassifierMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier metrics: %w", err)
	}

	synthesisMetrics, err := metrics.NewSynthesisMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesis metrics: %w", err)
	}

	httpMetrics, err := metrics.NewHTTPMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}

	GetLogger().Debug("prometheus registry initialised")
	return &Metrics{
		registry:   registry,
		Quality:    qualityMetrics,
		Classifier: classifierMetrics,
		Synthesis:  synthesisMetrics,
		HTTP:       httpMetrics,
	}, nil
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      stdlog.New(os.Stderr, "metrics handler: ", stdlog.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
		Registry:      m.registry,
	})
}
