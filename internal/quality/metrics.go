package quality

import (
	"math"
	"slices"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// MetricsWindow is the number of most recent requests the rolling
// statistics cover.
const MetricsWindow = 10000

// window is a fixed capacity FIFO; pushing into a full window evicts the
// oldest value.
type window[T any] struct {
	buf  []T
	head int // index of the oldest value once full
}

func (w *window[T]) push(v T) {
	if len(w.buf) < MetricsWindow {
		w.buf = append(w.buf, v)
		return
	}
	w.buf[w.head] = v
	w.head = (w.head + 1) % MetricsWindow
}

func (w *window[T]) len() int { return len(w.buf) }

// values returns a copy in insertion order.
func (w *window[T]) values() []T {
	out := make([]T, 0, len(w.buf))
	out = append(out, w.buf[w.head:]...)
	return append(out, w.buf[:w.head]...)
}

func (w *window[T]) reset() {
	w.buf = nil
	w.head = 0
}

// MetricsSnapshot is the point-in-time view reported by the metrics endpoint.
type MetricsSnapshot struct {
	TotalRequests           int64   `json:"total_requests"`
	AverageProcessingTimeMS float64 `json:"average_processing_time_ms"`
	P50ProcessingTimeMS     float64 `json:"p50_processing_time_ms"`
	P95ProcessingTimeMS     float64 `json:"p95_processing_time_ms"`
	P99ProcessingTimeMS     float64 `json:"p99_processing_time_ms"`
	AcceptanceRate          float64 `json:"acceptance_rate"`
	RejectionRate           float64 `json:"rejection_rate"`
	AverageQualityScore     float64 `json:"average_quality_score"`
	Errors                  int64   `json:"errors"`
}

// Metrics keeps rolling performance statistics of a predictor. It is safe
// for concurrent use.
type Metrics struct {
	mu       sync.Mutex
	times    window[float64]
	scores   window[float64]
	accepted window[bool]
	requests int64
	errors   int64
}

// Record adds one completed assessment.
func (m *Metrics) Record(processingMS, score float64, acceptable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++
	m.times.push(processingMS)
	m.scores.push(score)
	m.accepted.push(acceptable)
}

// RecordError counts one failed request.
func (m *Metrics) RecordError() {
	m.mu.Lock()
	m.errors++
	m.mu.Unlock()
}

// Requests returns the number of recorded assessments since the last reset.
func (m *Metrics) Requests() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}

// Snapshot computes the current statistics. With no history every value
// except the error count is zero.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.times.len() == 0 {
		return MetricsSnapshot{Errors: m.errors}
	}

	times := m.times.values()
	acceptance := make([]float64, 0, m.accepted.len())
	for _, ok := range m.accepted.values() {
		if ok {
			acceptance = append(acceptance, 1)
		} else {
			acceptance = append(acceptance, 0)
		}
	}
	acceptRate := stat.Mean(acceptance, nil)

	slices.Sort(times)
	return MetricsSnapshot{
		TotalRequests:           m.requests,
		AverageProcessingTimeMS: stat.Mean(times, nil),
		P50ProcessingTimeMS:     percentile(times, 50),
		P95ProcessingTimeMS:     percentile(times, 95),
		P99ProcessingTimeMS:     percentile(times, 99),
		AcceptanceRate:          acceptRate,
		RejectionRate:           1 - acceptRate,
		AverageQualityScore:     stat.Mean(m.scores.values(), nil),
		Errors:                  m.errors,
	}
}

// Reset clears the windows and both counters.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.times.reset()
	m.scores.reset()
	m.accepted.reset()
	m.requests = 0
	m.errors = 0
}

// percentile returns the p-th percentile of sorted values, interpolating
// linearly between the two closest ranks.
func percentile(sorted []float64, p float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}
	h := float64(len(sorted)-1) * p / 100
	lo := int(math.Floor(h))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}
