// Package classify identifies the document type of an image and lets
// customers register their own document layouts as templates that take
// precedence over the generic prediction.
package classify

import (
	"cmp"
	"context"
	"fmt"
	"image"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/tphakala/docquality/internal/errors"
	"github.com/tphakala/docquality/internal/logger"
	"github.com/tphakala/docquality/internal/model"
	"github.com/tphakala/docquality/internal/preprocess"
	"github.com/tphakala/docquality/internal/quality"
)

// Prediction sources.
const (
	SourceCustomerTemplate = "customer_template"
	SourceBaseModel        = "base_model"
)

// Options tune a classification.
type Options struct {
	CustomerID          string
	TopK                int
	ConfidenceThreshold float64 // minimum template similarity
	IncludeFeatures     bool
}

// DefaultOptions returns top 3 with a 0.6 template threshold.
func DefaultOptions() Options {
	return Options{TopK: 3, ConfidenceThreshold: 0.6}
}

func (o Options) validate() error {
	if o.TopK < 1 {
		return errors.Newf("top_k must be at least 1, got %d", o.TopK).
			Component("classify").
			Category(errors.CategoryValidation).
			Build()
	}
	if o.ConfidenceThreshold < 0 || o.ConfidenceThreshold > 1 {
		return errors.Newf("confidence_threshold must be between 0 and 1, got %g", o.ConfidenceThreshold).
			Component("classify").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// Prediction is one candidate document type.
type Prediction struct {
	DocumentType string  `json:"document_type"`
	Description  string  `json:"description"`
	FullType     string  `json:"full_type"`
	Confidence   float64 `json:"confidence"`
	Source       string  `json:"source"`
	CustomerID   string  `json:"customer_id,omitempty"`
	TemplateID   string  `json:"template_id,omitempty"`
}

// Result is the classification of one image.
type Result struct {
	Predictions      []Prediction `json:"predictions"`
	BestPrediction   *Prediction  `json:"best_prediction"`
	HasCustomerMatch bool         `json:"has_customer_match"`
	CustomerID       string       `json:"customer_id"`
	InferenceTime    float64      `json:"inference_time"` // seconds
	NumPredictions   int          `json:"num_predictions"`
	Features         []float32    `json:"features,omitempty"`
}

// LearnResult reports a stored template.
type LearnResult struct {
	Success        bool   `json:"success"`
	CustomerID     string `json:"customer_id"`
	DocumentType   string `json:"document_type"`
	TemplateID     string `json:"template_id"`
	TotalTemplates int    `json:"total_templates"`
}

// CustomerInfo summarises a customer's templates.
type CustomerInfo struct {
	CustomerID     string         `json:"customer_id"`
	TotalTemplates int            `json:"total_templates"`
	HasTemplates   bool           `json:"has_templates"`
	DocumentTypes  map[string]int `json:"document_types"`
}

// Metrics are the service counters since start.
type Metrics struct {
	TotalClassifications    int64            `json:"total_classifications"`
	TemplateLearnings       int64            `json:"template_learnings"`
	TotalInferenceTime      float64          `json:"total_inference_time"`
	AverageInferenceTime    float64          `json:"average_inference_time"`
	CustomerClassifications map[string]int64 `json:"customer_classifications"`
	TotalCustomers          int              `json:"total_customers"`
	TotalTemplates          int              `json:"total_templates"`
}

// Recorder receives classification telemetry, typically the Prometheus
// collectors.
type Recorder interface {
	RecordClassification(customerMatch bool, durationSeconds float64, err error)
	RecordTemplateLearned(documentType string)
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder forwards telemetry to r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// Service classifies documents with a loaded classifier and a template bank.
type Service struct {
	model    model.ClassifierModel
	bank     *TemplateBank
	recorder Recorder
	log      logger.Logger

	mu              sync.Mutex
	classifications int64
	learnings       int64
	inferenceTime   time.Duration
	perCustomer     map[string]int64
}

// NewService wraps m and bank.
func NewService(m model.ClassifierModel, bank *TemplateBank, opts ...Option) (*Service, error) {
	if m == nil {
		return nil, errors.UnavailableError("classify", "document classifier is not loaded")
	}
	if bank == nil {
		bank = NewTemplateBank(0, nil)
	}
	s := &Service{model: m, bank: bank, log: GetLogger(), perCustomer: make(map[string]int64)}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Bank returns the template bank.
func (s *Service) Bank() *TemplateBank { return s.bank }

// ClassifyDocument classifies one image.
func (s *Service) ClassifyDocument(ctx context.Context, img image.Image, opts Options) (*Result, error) {
	results, err := s.classify(ctx, []image.Image{img}, []string{opts.CustomerID}, opts)
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// ClassifyBatch classifies images with one forward pass. customerIDs is
// either empty or holds one id per image; empty ids skip template matching.
func (s *Service) ClassifyBatch(ctx context.Context, imgs []image.Image, customerIDs []string, opts Options) ([]*Result, error) {
	if len(customerIDs) == 0 {
		customerIDs = make([]string, len(imgs))
	}
	if len(customerIDs) != len(imgs) {
		return nil, errors.Newf("number of customer_ids (%d) must match number of images (%d)", len(customerIDs), len(imgs)).
			Component("classify").
			Category(errors.CategoryValidation).
			Build()
	}
	return s.classify(ctx, imgs, customerIDs, opts)
}

func (s *Service) classify(ctx context.Context, imgs []image.Image, customerIDs []string, opts Options) ([]*Result, error) {
	start := time.Now()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	outputs, err := s.forward(ctx, imgs)
	elapsed := time.Since(start)
	if err != nil {
		if s.recorder != nil {
			s.recorder.RecordClassification(false, elapsed.Seconds(), err)
		}
		return nil, err
	}

	share := elapsed / time.Duration(len(imgs))
	results := make([]*Result, len(outputs))
	for i, out := range outputs {
		r, err := s.rank(out, customerIDs[i], opts)
		if err != nil {
			return nil, err
		}
		r.InferenceTime = share.Seconds()
		results[i] = r
		s.count(customerIDs[i], share)
		if s.recorder != nil {
			s.recorder.RecordClassification(r.HasCustomerMatch, share.Seconds(), nil)
		}
	}
	return results, nil
}

// forward runs the classifier and checks the head sizes.
func (s *Service) forward(ctx context.Context, imgs []image.Image) ([]model.ClassifierOutput, error) {
	batch, err := preprocess.Batch(imgs)
	if err != nil {
		return nil, err
	}
	outputs, err := s.model.Forward(ctx, batch)
	if err != nil {
		return nil, errors.New(err).
			Component("classify").
			Category(errors.CategoryInference).
			ModelContext(s.model.Name(), "classifier").
			Build()
	}
	if len(outputs) != len(imgs) {
		return nil, s.shapeError(fmt.Errorf("classifier returned %d outputs for %d images", len(outputs), len(imgs)))
	}
	for _, out := range outputs {
		if len(out.Logits) != NumStandardTypes {
			return nil, s.shapeError(fmt.Errorf("classifier returned %d logits, expected %d", len(out.Logits), NumStandardTypes))
		}
	}
	return outputs, nil
}

func (s *Service) shapeError(err error) error {
	return errors.New(err).
		Component("classify").
		Category(errors.CategoryInference).
		ModelContext(s.model.Name(), "classifier").
		Build()
}

// rank merges template matches and base predictions. Template matches come
// first on equal confidence.
func (s *Service) rank(out model.ClassifierOutput, customerID string, opts Options) (*Result, error) {
	features, ok := normalize(out.Features)
	if !ok {
		return nil, s.shapeError(fmt.Errorf("classifier returned an empty feature vector"))
	}

	descriptions := StandardDocumentTypes()
	var preds []Prediction

	var matches []Match
	if customerID != "" {
		matches = s.bank.Match(customerID, features, opts.ConfidenceThreshold)
	}
	for _, m := range matches {
		dt := DocumentType{BaseType: m.DocumentType, CustomerID: customerID, TemplateID: m.TemplateID}
		preds = append(preds, Prediction{
			DocumentType: m.DocumentType,
			Description:  descriptions[m.DocumentType],
			FullType:     dt.FullType(),
			Confidence:   m.Similarity,
			Source:       SourceCustomerTemplate,
			CustomerID:   customerID,
			TemplateID:   m.TemplateID,
		})
	}

	probs := quality.Softmax(out.Logits)
	codes := StandardTypeCodes()
	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int { return cmp.Compare(probs[b], probs[a]) })
	for _, i := range order[:min(opts.TopK, len(order))] {
		preds = append(preds, Prediction{
			DocumentType: codes[i],
			Description:  descriptions[codes[i]],
			FullType:     DocumentType{BaseType: codes[i]}.FullType(),
			Confidence:   probs[i],
			Source:       SourceBaseModel,
		})
	}

	slices.SortStableFunc(preds, func(a, b Prediction) int { return cmp.Compare(b.Confidence, a.Confidence) })
	preds = preds[:min(opts.TopK, len(preds))]

	r := &Result{
		Predictions:      preds,
		HasCustomerMatch: len(matches) > 0,
		CustomerID:       customerID,
		NumPredictions:   len(preds),
	}
	if len(preds) > 0 {
		best := preds[0]
		r.BestPrediction = &best
	}
	if opts.IncludeFeatures {
		r.Features = features
	}
	return r, nil
}

func (s *Service) count(customerID string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classifications++
	s.inferenceTime += d
	if customerID != "" {
		s.perCustomer[customerID]++
	}
}

// LearnCustomerTemplate stores the image's embedding as a new template of
// documentType for the customer. Existing templates are never replaced.
func (s *Service) LearnCustomerTemplate(ctx context.Context, img image.Image, customerID, documentType, templateID string, metadata map[string]string) (*LearnResult, error) {
	if customerID == "" {
		return nil, errors.ValidationError("customer_id is required")
	}
	if !IsStandardType(documentType) {
		return nil, errors.Newf("invalid document type %q, must be one of %v", documentType, StandardTypeCodes()).
			Component("classify").
			Category(errors.CategoryValidation).
			Build()
	}

	outputs, err := s.forward(ctx, []image.Image{img})
	if err != nil {
		return nil, err
	}
	t, total, err := s.bank.Add(ctx, customerID, documentType, outputs[0].Features, templateID, metadata)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.learnings++
	s.mu.Unlock()
	if s.recorder != nil {
		s.recorder.RecordTemplateLearned(documentType)
	}

	s.log.Info("learned customer template",
		logger.String("customer_id", customerID),
		logger.String("document_type", documentType),
		logger.String("template_id", t.TemplateID),
		logger.Int("total_templates", total))

	return &LearnResult{
		Success:        true,
		CustomerID:     customerID,
		DocumentType:   documentType,
		TemplateID:     t.TemplateID,
		TotalTemplates: total,
	}, nil
}

// CustomerInfo describes one customer's templates. Unknown customers report
// zero templates.
func (s *Service) CustomerInfo(customerID string) CustomerInfo {
	stats := s.bank.CustomerStats(customerID)
	total := 0
	for _, n := range stats {
		total += n
	}
	return CustomerInfo{
		CustomerID:     customerID,
		TotalTemplates: total,
		HasTemplates:   total > 0,
		DocumentTypes:  stats,
	}
}

// AllCustomers describes every customer with templates, sorted by id.
func (s *Service) AllCustomers() []CustomerInfo {
	ids := s.bank.Customers()
	out := make([]CustomerInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.CustomerInfo(id))
	}
	return out
}

// SupportedDocumentTypes maps the standard type codes to descriptions.
func (s *Service) SupportedDocumentTypes() map[string]string {
	return StandardDocumentTypes()
}

// Metrics returns a snapshot of the counters.
func (s *Service) Metrics() Metrics {
	s.mu.Lock()
	m := Metrics{
		TotalClassifications:    s.classifications,
		TemplateLearnings:       s.learnings,
		TotalInferenceTime:      s.inferenceTime.Seconds(),
		CustomerClassifications: maps.Clone(s.perCustomer),
	}
	s.mu.Unlock()

	if m.TotalClassifications > 0 {
		m.AverageInferenceTime = m.TotalInferenceTime / float64(m.TotalClassifications)
	}
	m.TotalCustomers = len(s.bank.Customers())
	m.TotalTemplates = s.bank.TotalTemplates()
	return m
}

// Close releases the model and the template store.
func (s *Service) Close() error {
	return errors.Join(s.model.Close(), s.bank.Close())
}
