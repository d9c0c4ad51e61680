// Package model defines the inference backends used by the quality
// predictor and the document classifier, and loads trained checkpoints.
package model

import "context"

// QualityOutput holds the raw heads of the quality model for one image.
type QualityOutput struct {
	QualityScore float32   // already in [0, 1]
	ClassLogits  []float32 // one per quality class
	IssueLogits  []float32 // one per issue, independent
}

// ClassifierOutput holds the raw heads of the document classifier for one image.
type ClassifierOutput struct {
	Features []float32 // embedding compared against customer templates
	Logits   []float32 // one per standard document type
}

// QualityModel runs the quality network on a preprocessed NCHW batch.
type QualityModel interface {
	Forward(ctx context.Context, batch *Tensor) ([]QualityOutput, error)
	Name() string
	Close() error
}

// ClassifierModel runs the document classifier on a preprocessed NCHW batch.
type ClassifierModel interface {
	Forward(ctx context.Context, batch *Tensor) ([]ClassifierOutput, error)
	Name() string
	Close() error
}
