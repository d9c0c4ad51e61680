// Package quality scores document images with the trained quality model and
// keeps rolling performance statistics for the service.
package quality

import (
	"context"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/tphakala/docquality/internal/degrade"
	"github.com/tphakala/docquality/internal/errors"
	"github.com/tphakala/docquality/internal/logger"
	"github.com/tphakala/docquality/internal/model"
	"github.com/tphakala/docquality/internal/preprocess"
)

// Device names the compute device reported by the health endpoint.
const Device = "cpu"

// Options tune a single assessment.
type Options struct {
	Threshold     float64 // minimum score for acceptance
	IncludeIssues bool    // add issues and recommendations
}

// DefaultOptions returns threshold 0.5 with issues enabled.
func DefaultOptions() Options {
	return Options{Threshold: 0.5, IncludeIssues: true}
}

func (o Options) validate() error {
	if math.IsNaN(o.Threshold) || o.Threshold < 0 || o.Threshold > 1 {
		return errors.Newf("threshold must be between 0 and 1, got %g", o.Threshold).
			Component("quality").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// Result is the assessment of one document image.
type Result struct {
	QualityScore       float64            `json:"quality_score"`
	QualityClass       string             `json:"quality_class"`
	QualityClassIndex  int                `json:"quality_class_index"`
	IsAcceptable       bool               `json:"is_acceptable"`
	Confidence         float64            `json:"confidence"`
	ClassProbabilities map[string]float64 `json:"class_probabilities"`
	Issues             []Issue            `json:"issues,omitempty"`
	Recommendations    []string           `json:"recommendations,omitempty"`
	ProcessingTimeMS   float64            `json:"processing_time_ms"`
}

// Recorder receives inference telemetry, typically the Prometheus collectors.
type Recorder interface {
	RecordPrediction(model string, durationSeconds float64, err error)
	RecordAssessment(qualityClass string, acceptable bool)
	RecordBatch(model string, size int, durationSeconds float64)
}

// Option configures a Predictor.
type Option func(*Predictor)

// WithMonitoring enables or disables the rolling metrics. Enabled by default.
func WithMonitoring(enabled bool) Option {
	return func(p *Predictor) { p.monitoring = enabled }
}

// WithRecorder forwards inference telemetry to r.
func WithRecorder(r Recorder) Option {
	return func(p *Predictor) { p.recorder = r }
}

// Predictor wraps a loaded quality model. The model is loaded once by the
// caller and shared; Predict and PredictBatch are safe for concurrent use.
type Predictor struct {
	model      model.QualityModel
	metrics    *Metrics
	monitoring bool
	recorder   Recorder
	started    time.Time
	log        logger.Logger
}

// NewPredictor wraps m.
func NewPredictor(m model.QualityModel, opts ...Option) (*Predictor, error) {
	if m == nil {
		return nil, errors.UnavailableError("quality", "quality model is not loaded")
	}
	p := &Predictor{
		model:      m,
		metrics:    &Metrics{},
		monitoring: true,
		started:    time.Now(),
		log:        GetLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log.Info("quality predictor ready",
		logger.String("model", m.Name()),
		logger.Bool("monitoring", p.monitoring))
	return p, nil
}

// Predict assesses one image.
func (p *Predictor) Predict(ctx context.Context, img image.Image, opts Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	result, err := p.predict(ctx, img, opts)
	elapsed := time.Since(start)
	p.report(1, elapsed, err)
	if err != nil {
		return nil, p.fail(err, "predict", elapsed)
	}

	result.ProcessingTimeMS = durationMS(elapsed)
	if p.monitoring {
		p.metrics.Record(result.ProcessingTimeMS, result.QualityScore, result.IsAcceptable)
	}
	return result, nil
}

// PredictEncoded decodes an uploaded image and assesses it. Decode failures
// count as errors and keep their image-decode category. Invalid options are
// rejected before anything is counted.
func (p *Predictor) PredictEncoded(ctx context.Context, data []byte, opts Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	img, err := preprocess.DecodeBytes(data)
	if err != nil {
		p.report(1, 0, err)
		return nil, p.fail(err, "decode", 0)
	}
	return p.Predict(ctx, img, opts)
}

func (p *Predictor) predict(ctx context.Context, img image.Image, opts Options) (*Result, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, errors.ValidationError("image has no pixels")
	}
	outputs, err := p.model.Forward(ctx, preprocess.ToTensor(img))
	if err != nil {
		return nil, err
	}
	if len(outputs) != 1 {
		return nil, fmt.Errorf("model returned %d outputs for a single image", len(outputs))
	}
	return decode(outputs[0], opts)
}

// PredictBatch assesses all images with one forward pass. It fails as a
// whole; the per-item processing time is 0 and each item adds an equal share
// of the batch time to the metrics.
func (p *Predictor) PredictBatch(ctx context.Context, imgs []image.Image, opts Options) ([]*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	results, err := p.predictBatch(ctx, imgs, opts)
	elapsed := time.Since(start)
	p.report(len(imgs), elapsed, err)
	if err != nil {
		return nil, p.fail(err, "predict-batch", elapsed)
	}

	if p.monitoring {
		share := durationMS(elapsed) / float64(len(results))
		for _, r := range results {
			p.metrics.Record(share, r.QualityScore, r.IsAcceptable)
		}
	}
	return results, nil
}

func (p *Predictor) predictBatch(ctx context.Context, imgs []image.Image, opts Options) ([]*Result, error) {
	batch, err := preprocess.Batch(imgs)
	if err != nil {
		return nil, err
	}
	outputs, err := p.model.Forward(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(outputs) != len(imgs) {
		return nil, fmt.Errorf("model returned %d outputs for %d images", len(outputs), len(imgs))
	}

	results := make([]*Result, len(outputs))
	for i, out := range outputs {
		if results[i], err = decode(out, opts); err != nil {
			return nil, fmt.Errorf("batch item %d: %w", i, err)
		}
	}
	return results, nil
}

// decode converts the raw heads into an assessment.
func decode(out model.QualityOutput, opts Options) (*Result, error) {
	if len(out.ClassLogits) != degrade.NumTiers || len(out.IssueLogits) != degrade.NumIssues {
		return nil, fmt.Errorf("unexpected output shape: %d class logits, %d issue logits",
			len(out.ClassLogits), len(out.IssueLogits))
	}

	score := float64(out.QualityScore)
	classProbs := Softmax(out.ClassLogits)
	best := argmax(classProbs)
	names := degrade.TierNames()

	r := &Result{
		QualityScore:       score,
		QualityClass:       names[best],
		QualityClassIndex:  best,
		IsAcceptable:       score >= opts.Threshold,
		Confidence:         classProbs[best],
		ClassProbabilities: make(map[string]float64, len(names)),
	}
	for i, name := range names {
		r.ClassProbabilities[name] = classProbs[i]
	}

	if opts.IncludeIssues {
		issueProbs := make([]float64, len(out.IssueLogits))
		for i, l := range out.IssueLogits {
			issueProbs[i] = Sigmoid(float64(l))
		}
		r.Issues = ExtractIssues(issueProbs)
		r.Recommendations = Recommendations(score, r.IsAcceptable, issueProbs, opts.Threshold)
	}
	return r, nil
}

func (p *Predictor) report(items int, elapsed time.Duration, err error) {
	if p.recorder == nil {
		return
	}
	p.recorder.RecordPrediction(p.model.Name(), elapsed.Seconds(), err)
	if err == nil && items > 1 {
		p.recorder.RecordBatch(p.model.Name(), items, elapsed.Seconds())
	}
}

// fail counts the error and wraps it for the caller. Validation, decode and
// cancellation errors keep their category.
func (p *Predictor) fail(err error, op string, elapsed time.Duration) error {
	if p.monitoring {
		p.metrics.RecordError()
	}
	p.log.Error("prediction failed", logger.String("operation", op), logger.Error(err))

	category := errors.CategoryInference
	switch {
	case errors.IsValidation(err):
		category = errors.CategoryValidation
	case errors.IsCategory(err, errors.CategoryImageDecode):
		category = errors.CategoryImageDecode
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		category = errors.CategoryCancellation
	}
	return errors.New(err).
		Component("quality").
		Category(category).
		ModelContext(p.model.Name(), "quality").
		Timing(op, elapsed).
		Build()
}

// Observe forwards the class and decision of a finished assessment to the
// recorder. The facade calls it once per returned result.
func (p *Predictor) Observe(results ...*Result) {
	if p.recorder == nil {
		return
	}
	for _, r := range results {
		p.recorder.RecordAssessment(r.QualityClass, r.IsAcceptable)
	}
}

// Metrics returns the rolling statistics.
func (p *Predictor) Metrics() MetricsSnapshot {
	return p.metrics.Snapshot()
}

// ResetMetrics clears the rolling statistics and counters.
func (p *Predictor) ResetMetrics() {
	p.metrics.Reset()
	p.log.Info("metrics reset")
}

// RequestCount returns the number of recorded assessments.
func (p *Predictor) RequestCount() int64 {
	return p.metrics.Requests()
}

// Uptime returns the time since the predictor was created.
func (p *Predictor) Uptime() time.Duration {
	return time.Since(p.started)
}

// ModelName identifies the loaded model.
func (p *Predictor) ModelName() string {
	return p.model.Name()
}

// Close releases the model.
func (p *Predictor) Close() error {
	return p.model.Close()
}

// Softmax returns the normalised exponentials of logits.
func Softmax(logits []float32) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	maxLogit := math.Inf(-1)
	for _, l := range logits {
		maxLogit = math.Max(maxLogit, float64(l))
	}
	var sum float64
	for i, l := range logits {
		out[i] = math.Exp(float64(l) - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Sigmoid is the logistic function.
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// argmax returns the first index of the largest value.
func argmax(v []float64) int {
	best := 0
	for i := range v {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

func durationMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
