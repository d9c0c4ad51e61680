package synth

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tphakala/docquality/internal/degrade"
)

// SummaryTitle heads the dataset summary report.
const SummaryTitle = "Enhanced Document Quality Dataset Summary"

// Summary aggregates a generated dataset.
type Summary struct {
	Mode            string
	TotalImages     int
	SourceDocuments int
	SplitCounts     []SplitCount
	ScoreBuckets    [degrade.NumTiers]int // by TierForScore of the score
	ClassCounts     [degrade.NumTiers]int // by persisted quality_class
	IssueCounts     [degrade.NumIssues]int
}

// SplitCount is the number of images in one split.
type SplitCount struct {
	Split  string
	Images int
}

// Summarize counts rows per split, score range, class and issue. splits
// fixes the order of the split lines.
func Summarize(rows []SampleMetadata, sourceDocs int, splits []string) Summary {
	s := Summary{Mode: "synthetic", TotalImages: len(rows), SourceDocuments: sourceDocs}

	perSplit := make(map[string]int, len(splits))
	for _, r := range rows {
		perSplit[r.Split]++
		s.ScoreBuckets[degrade.TierForScore(r.QualityScore)]++
		s.ClassCounts[r.QualityClass]++
		for i, v := range r.Issues.Values() {
			if v {
				s.IssueCounts[i]++
			}
		}
	}
	for _, name := range splits {
		s.SplitCounts = append(s.SplitCounts, SplitCount{Split: name, Images: perSplit[name]})
	}
	return s
}

// WriteTo renders the plain text report.
func (s Summary) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder

	b.WriteString(SummaryTitle + "\n")
	b.WriteString(strings.Repeat("=", 50) + "\n\n")
	fmt.Fprintf(&b, "Dataset Mode: %s\n", s.Mode)
	fmt.Fprintf(&b, "Total images: %d\n", s.TotalImages)
	fmt.Fprintf(&b, "Source documents: %d\n\n", s.SourceDocuments)

	b.WriteString("Dataset Splits:\n")
	for _, sc := range s.SplitCounts {
		fmt.Fprintf(&b, "  %s: %d images\n", sc.Split, sc.Images)
	}
	b.WriteString("\n")

	b.WriteString("Quality Score Distribution:\n")
	for _, tier := range degrade.AllTiers() {
		count := s.ScoreBuckets[tier]
		fmt.Fprintf(&b, "  %s Quality: %d images (%.1f%%)\n", tier, count, s.percent(count))
	}

	b.WriteString("\nQuality Class Distribution:\n")
	for _, tier := range degrade.AllTiers() {
		if count := s.ClassCounts[tier]; count > 0 {
			fmt.Fprintf(&b, "  %s: %d images (%.1f%%)\n", tier, count, s.percent(count))
		}
	}

	b.WriteString("\nIssue Type Distribution:\n")
	for i, col := range degrade.IssueColumns() {
		count := s.IssueCounts[i]
		fmt.Fprintf(&b, "  %s: %d images (%.1f%%)\n", issueDisplayName(col), count, s.percent(count))
	}

	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

func (s Summary) percent(count int) float64 {
	if s.TotalImages == 0 {
		return 0
	}
	return float64(count) / float64(s.TotalImages) * 100
}

// issueDisplayName turns "issue_physical_damage" into "Physical Damage".
func issueDisplayName(column string) string {
	name := strings.ReplaceAll(strings.TrimPrefix(column, "issue_"), "_", " ")
	return cases.Title(language.English).String(name)
}
