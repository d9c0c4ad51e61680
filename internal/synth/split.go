package synth

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/tphakala/docquality/internal/errors"
)

// Split names, in output order.
const (
	SplitTrain = "train"
	SplitVal   = "val"
	SplitTest  = "test"
)

const ratioTolerance = 1e-6

// Ratios are the share of documents assigned to each split.
type Ratios struct {
	Train, Val, Test float64
}

// DefaultRatios is 70/20/10.
func DefaultRatios() Ratios {
	return Ratios{Train: 0.7, Val: 0.2, Test: 0.1}
}

// Validate requires non-negative ratios summing to 1.
func (r Ratios) Validate() error {
	for _, v := range []float64{r.Train, r.Val, r.Test} {
		if v < 0 || math.IsNaN(v) {
			return errors.Newf("split ratios must not be negative, got %+v", r).
				Component("synth").
				Category(errors.CategoryValidation).
				Build()
		}
	}
	if sum := r.Train + r.Val + r.Test; math.Abs(sum-1) > ratioTolerance {
		return errors.New(fmt.Errorf("split ratios must sum to 1, got %g", sum)).
			Component("synth").
			Category(errors.CategoryValidation).
			Context("train", r.Train).
			Context("val", r.Val).
			Context("test", r.Test).
			Build()
	}
	return nil
}

// Assignment is the documents of one split.
type Assignment struct {
	Split string
	Docs  []string
}

// SplitDocuments shuffles docs and partitions them by document so no source
// appears in two splits. Train gets int(n*train), val int(n*val) and test
// the rest.
func SplitDocuments(docs []string, r Ratios, rng *rand.Rand) ([]Assignment, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	shuffled := slices.Clone(docs)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	n := len(shuffled)
	trainEnd := int(float64(n) * r.Train)
	valEnd := min(n, trainEnd+int(float64(n)*r.Val))

	return []Assignment{
		{Split: SplitTrain, Docs: shuffled[:trainEnd]},
		{Split: SplitVal, Docs: shuffled[trainEnd:valEnd]},
		{Split: SplitTest, Docs: shuffled[valEnd:]},
	}, nil
}
