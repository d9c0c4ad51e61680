// Package file implements the file command that assesses one image.
package file

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tphakala/docquality/internal/classify"
	"github.com/tphakala/docquality/internal/conf"
	"github.com/tphakala/docquality/internal/preprocess"
	"github.com/tphakala/docquality/internal/quality"
)

// fileOptions holds the flags of the file command.
type fileOptions struct {
	threshold  float64
	noIssues   bool
	format     string
	classify   bool
	customerID string
}

// report is the JSON output of the file command.
type report struct {
	File           string           `json:"file"`
	Quality        *quality.Result  `json:"quality"`
	Classification *classify.Result `json:"classification,omitempty"`
}

// Command creates the file command.
func Command(settings *conf.Settings) *cobra.Command {
	opts := &fileOptions{format: "text"}

	cmd := &cobra.Command{
		Use:   "file [image]",
		Short: "Assess the quality of a document image",
		Long:  `Score a single document image and list detected issues and recommendations.`,
		Args:  cobra.ExactArgs(1), // the command expects exactly one argument
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("threshold") {
				opts.threshold = settings.Quality.Threshold
			}
			return run(cmd, settings, args[0], opts)
		},
	}

	cmd.Flags().Float64VarP(&opts.threshold, "threshold", "t", 0.5, "Acceptance threshold (0-1)")
	cmd.Flags().BoolVar(&opts.noIssues, "no-issues", false, "Skip issue detection and recommendations")
	cmd.Flags().StringVarP(&opts.format, "format", "f", opts.format, "Output format: text, json")
	cmd.Flags().BoolVar(&opts.classify, "classify", false, "Also classify the document type")
	cmd.Flags().StringVar(&opts.customerID, "customer", "", "Match against this customer's templates (implies --classify)")

	return cmd
}

func run(cmd *cobra.Command, settings *conf.Settings, path string, opts *fileOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("unsupported format %q, use text or json", opts.format)
	}

	img, err := preprocess.DecodeFile(path)
	if err != nil {
		return err
	}

	predictor, err := quality.Load(&settings.Quality, nil, quality.WithMonitoring(false))
	if err != nil {
		return err
	}
	defer predictor.Close() //nolint:errcheck // process exits next

	out := report{File: path}
	out.Quality, err = predictor.Predict(cmd.Context(), img, quality.Options{
		Threshold:     opts.threshold,
		IncludeIssues: !opts.noIssues,
	})
	if err != nil {
		return err
	}

	if opts.classify || opts.customerID != "" {
		svc, err := classify.Load(cmd.Context(), &settings.Classifier)
		if err != nil {
			return err
		}
		defer svc.Close() //nolint:errcheck // process exits next

		out.Classification, err = svc.ClassifyDocument(cmd.Context(), img, classify.Options{
			CustomerID:          opts.customerID,
			TopK:                settings.Classifier.TopK,
			ConfidenceThreshold: settings.Classifier.ConfidenceThreshold,
		})
		if err != nil {
			return err
		}
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	return writeText(cmd.OutOrStdout(), &out)
}

func writeText(w io.Writer, r *report) error {
	var b strings.Builder
	q := r.Quality

	verdict := "✅ acceptable"
	if !q.IsAcceptable {
		verdict = "❌ not acceptable"
	}
	fmt.Fprintf(&b, "📄 %s\n", r.File)
	fmt.Fprintf(&b, "Quality:    %.3f (%s, confidence %.2f) %s\n", q.QualityScore, q.QualityClass, q.Confidence, verdict)
	fmt.Fprintf(&b, "Time:       %.1f ms\n", q.ProcessingTimeMS)

	if len(q.Issues) > 0 {
		b.WriteString("\nIssues:\n")
		for _, issue := range q.Issues {
			fmt.Fprintf(&b, "  %-20s %5.1f%%  %s\n", issue.IssueType, issue.Probability*100, issue.Severity)
		}
	}
	if len(q.Recommendations) > 0 {
		b.WriteString("\nRecommendations:\n")
		for _, rec := range q.Recommendations {
			fmt.Fprintf(&b, "  - %s\n", rec)
		}
	}

	if c := r.Classification; c != nil && c.BestPrediction != nil {
		best := c.BestPrediction
		fmt.Fprintf(&b, "\nDocument:   %s (%s) %.1f%% via %s\n", best.DocumentType, best.Description, best.Confidence*100, best.Source)
		for _, p := range c.Predictions {
			fmt.Fprintf(&b, "  %-8s %5.1f%%  %s\n", p.DocumentType, p.Confidence*100, p.Source)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
