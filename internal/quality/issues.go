package quality

import (
	"cmp"
	"slices"

	"github.com/tphakala/docquality/internal/degrade"
)

// MinIssueProbability is the lowest issue probability that is reported.
const MinIssueProbability = 0.3

// Severity thresholds on the issue probability.
const (
	criticalProbability = 0.7
	moderateProbability = 0.5
)

// Severity grades a detected issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityModerate Severity = "moderate"
	SeverityMinor    Severity = "minor"
)

// Issue is one detected quality problem.
type Issue struct {
	IssueType   string   `json:"issue_type"`
	Probability float64  `json:"probability"`
	Severity    Severity `json:"severity"`
}

// SeverityFor grades an issue probability.
func SeverityFor(probability float64) Severity {
	switch {
	case probability >= criticalProbability:
		return SeverityCritical
	case probability >= moderateProbability:
		return SeverityModerate
	default:
		return SeverityMinor
	}
}

// ExtractIssues turns per-issue probabilities, in model order, into the
// issues at or above MinIssueProbability, most likely first.
func ExtractIssues(probs []float64) []Issue {
	names := degrade.IssueNames()
	issues := make([]Issue, 0, len(probs))
	for i, p := range probs {
		if i >= len(names) || p < MinIssueProbability {
			continue
		}
		issues = append(issues, Issue{IssueType: names[i], Probability: p, Severity: SeverityFor(p)})
	}
	slices.SortStableFunc(issues, func(a, b Issue) int {
		return cmp.Compare(b.Probability, a.Probability)
	})
	return issues
}
