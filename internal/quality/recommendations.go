package quality

import (
	"fmt"

	"github.com/tphakala/docquality/internal/degrade"
)

// actionableProbability is the issue probability above which a specific
// capture hint is given.
const actionableProbability = 0.5

// hints are checked in this order; the order decides the bullet order.
var hints = []struct {
	issue string
	text  string
}{
	{"blur", "• Image appears blurry - ensure camera is focused before capture"},
	{"partial_capture", "• Document appears partially cut off - capture the entire document"},
	{"lighting", "• Lighting issues detected - ensure even, adequate lighting"},
	{"shadow", "• Shadows detected - avoid shadows on the document"},
	{"glare", "• Glare detected - avoid reflections and direct light sources"},
	{"skew", "• Document appears skewed - hold device parallel to document"},
	{"noise", "• Image noise detected - improve lighting conditions"},
	{"physical_damage", "• Physical damage detected - use undamaged original if possible"},
}

const retakeHint = "• Please retake the photo following capture guidelines"

// Recommendations builds the operator guidance for one assessment. probs are
// the issue probabilities in model order.
func Recommendations(score float64, acceptable bool, probs []float64, threshold float64) []string {
	if acceptable {
		return []string{
			fmt.Sprintf("✓ Document quality is acceptable (score: %.3f)", score),
			"Document is suitable for processing",
		}
	}

	recs := []string{fmt.Sprintf("⚠ Document quality score (%.3f) is below threshold (%g)", score, threshold)}

	index := make(map[string]int, degrade.NumIssues)
	for i, name := range degrade.IssueNames() {
		index[name] = i
	}
	for _, h := range hints {
		if i := index[h.issue]; i < len(probs) && probs[i] > actionableProbability {
			recs = append(recs, h.text)
		}
	}

	if len(recs) == 1 {
		recs = append(recs, retakeHint)
	}
	return recs
}
