package classify

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/tphakala/docquality/internal/errors"
)

// Template is one learned example of a customer's document type.
type Template struct {
	TemplateID   string            `json:"template_id"`
	DocumentType string            `json:"document_type"`
	Features     []float32         `json:"-"` // unit length
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// TemplateStore persists templates. The bank calls Save while holding the
// customer's lock, so saves for one customer arrive in append order.
type TemplateStore interface {
	Save(ctx context.Context, customerID string, t Template) error
	LoadAll(ctx context.Context) (map[string][]Template, error)
	Close() error
}

// customerTemplates holds one customer's templates by document type.
type customerTemplates struct {
	mu     sync.RWMutex
	byType map[string][]Template
}

// TemplateBank maps customer → document type → templates. Templates are only
// ever appended.
type TemplateBank struct {
	featureDim int
	store      TemplateStore

	mu        sync.RWMutex
	customers map[string]*customerTemplates
}

// NewTemplateBank creates an empty bank. featureDim 0 accepts any length;
// store may be nil for an in-memory bank.
func NewTemplateBank(featureDim int, store TemplateStore) *TemplateBank {
	return &TemplateBank{
		featureDim: featureDim,
		store:      store,
		customers:  make(map[string]*customerTemplates),
	}
}

// Load reads every persisted template into the bank.
func (b *TemplateBank) Load(ctx context.Context) (int, error) {
	if b.store == nil {
		return 0, nil
	}
	all, err := b.store.LoadAll(ctx)
	if err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	loaded := 0
	for customerID, templates := range all {
		ct := b.customerLocked(customerID)
		for _, t := range templates {
			if b.featureDim > 0 && len(t.Features) != b.featureDim {
				GetLogger().Warn("ignoring stored template with wrong feature size")
				continue
			}
			ct.byType[t.DocumentType] = append(ct.byType[t.DocumentType], t)
			loaded++
		}
	}
	return loaded, nil
}

// customerLocked returns the customer's entry, creating it. b.mu must be
// held for writing.
func (b *TemplateBank) customerLocked(customerID string) *customerTemplates {
	ct, ok := b.customers[customerID]
	if !ok {
		ct = &customerTemplates{byType: make(map[string][]Template)}
		b.customers[customerID] = ct
	}
	return ct
}

func (b *TemplateBank) customer(customerID string) *customerTemplates {
	b.mu.RLock()
	ct := b.customers[customerID]
	b.mu.RUnlock()
	return ct
}

// Add appends a template and returns it together with the customer's new
// template total. An empty templateID becomes template_<n>, n counting the
// customer's templates of that type.
func (b *TemplateBank) Add(ctx context.Context, customerID, docType string, features []float32, templateID string, metadata map[string]string) (Template, int, error) {
	if customerID == "" {
		return Template{}, 0, errors.ValidationError("customer_id is required")
	}
	if b.featureDim > 0 && len(features) != b.featureDim {
		return Template{}, 0, errors.Newf("feature vector has %d values, expected %d", len(features), b.featureDim).
			Component("classify").
			Category(errors.CategoryValidation).
			Build()
	}
	unit, ok := normalize(features)
	if !ok {
		return Template{}, 0, errors.ValidationError("feature vector has zero length")
	}

	b.mu.Lock()
	ct := b.customerLocked(customerID)
	b.mu.Unlock()

	ct.mu.Lock()
	defer ct.mu.Unlock()

	if templateID == "" {
		templateID = fmt.Sprintf("template_%d", len(ct.byType[docType])+1)
	}
	t := Template{
		TemplateID:   templateID,
		DocumentType: docType,
		Features:     unit,
		Metadata:     maps.Clone(metadata),
		CreatedAt:    time.Now().UTC(),
	}
	if b.store != nil {
		if err := b.store.Save(ctx, customerID, t); err != nil {
			return Template{}, 0, err
		}
	}
	ct.byType[docType] = append(ct.byType[docType], t)
	return t, ct.countLocked(), nil
}

func (ct *customerTemplates) countLocked() int {
	n := 0
	for _, ts := range ct.byType {
		n += len(ts)
	}
	return n
}

// Match is the best matching template of one document type.
type Match struct {
	DocumentType string
	TemplateID   string
	Similarity   float64
}

// Match compares unit-length features against every template of the
// customer and returns, per document type, the best template whose cosine
// similarity exceeds threshold. Results are ordered by similarity.
func (b *TemplateBank) Match(customerID string, features []float32, threshold float64) []Match {
	ct := b.customer(customerID)
	if ct == nil {
		return nil
	}

	ct.mu.RLock()
	defer ct.mu.RUnlock()

	var matches []Match
	for docType, templates := range ct.byType {
		best := Match{Similarity: math.Inf(-1)}
		for _, t := range templates {
			if len(t.Features) != len(features) {
				continue
			}
			if sim := dot(t.Features, features); sim > best.Similarity {
				best = Match{DocumentType: docType, TemplateID: t.TemplateID, Similarity: sim}
			}
		}
		if best.Similarity > threshold {
			matches = append(matches, best)
		}
	}
	slices.SortFunc(matches, func(a, b Match) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.DocumentType, b.DocumentType)
	})
	return matches
}

// HasTemplates reports whether the customer has learned anything.
func (b *TemplateBank) HasTemplates(customerID string) bool {
	return b.Count(customerID) > 0
}

// Count returns the customer's template total.
func (b *TemplateBank) Count(customerID string) int {
	ct := b.customer(customerID)
	if ct == nil {
		return 0
	}
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.countLocked()
}

// CustomerStats returns the template count per document type.
func (b *TemplateBank) CustomerStats(customerID string) map[string]int {
	stats := map[string]int{}
	ct := b.customer(customerID)
	if ct == nil {
		return stats
	}
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	for docType, ts := range ct.byType {
		stats[docType] = len(ts)
	}
	return stats
}

// Templates returns a copy of the customer's templates of docType.
func (b *TemplateBank) Templates(customerID, docType string) []Template {
	ct := b.customer(customerID)
	if ct == nil {
		return nil
	}
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return slices.Clone(ct.byType[docType])
}

// Customers returns the known customer ids, sorted.
func (b *TemplateBank) Customers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Sorted(maps.Keys(b.customers))
}

// TotalTemplates counts templates across all customers.
func (b *TemplateBank) TotalTemplates() int {
	total := 0
	for _, id := range b.Customers() {
		total += b.Count(id)
	}
	return total
}

// Close closes the store.
func (b *TemplateBank) Close() error {
	if b.store == nil {
		return nil
	}
	return b.store.Close()
}

// normalize returns a unit-length copy of v.
func normalize(v []float32) ([]float32, bool) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, false
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, true
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
