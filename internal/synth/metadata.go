package synth

import (
	"cmp"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/tphakala/docquality/internal/degrade"
	"github.com/tphakala/docquality/internal/errors"
)

// Degradation types recorded per sample.
const (
	DegradationOriginal  = "original"
	DegradationSynthetic = "synthetic"
)

// SampleMetadata describes one generated image.
type SampleMetadata struct {
	FilePath        string // relative to the dataset root, forward slashes
	QualityScore    float64
	QualityClass    degrade.Tier
	DegradationType string
	Split           string
	SourceDocument  string
	Issues          degrade.Labels
	Params          *degrade.Params // nil for originals
}

// metadataColumns returns the CSV header.
func metadataColumns() []string {
	cols := []string{"filepath", "quality_score", "quality_class", "degradation_type", "split", "source_document"}
	cols = append(cols, degrade.IssueColumns()...)
	return append(cols, "degradation_params")
}

// record renders the row in column order. Booleans use True/False.
func (m SampleMetadata) record() []string {
	row := []string{
		m.FilePath,
		strconv.FormatFloat(m.QualityScore, 'f', -1, 64),
		strconv.Itoa(int(m.QualityClass)),
		m.DegradationType,
		m.Split,
		m.SourceDocument,
	}
	for _, v := range m.Issues.Values() {
		if v {
			row = append(row, "True")
		} else {
			row = append(row, "False")
		}
	}
	params := ""
	if m.Params != nil {
		params = m.Params.JSON()
	}
	return append(row, params)
}

// sortRows orders rows by source document, keeping the rows of one document
// in generation order.
func sortRows(rows []SampleMetadata) {
	slices.SortStableFunc(rows, func(a, b SampleMetadata) int {
		return cmp.Compare(a.SourceDocument, b.SourceDocument)
	})
}

// WriteMetadataCSV writes rows with a header to path, creating parent
// directories.
func WriteMetadataCSV(path string, rows []SampleMetadata) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return metadataError(err, path)
	}
	f, err := os.Create(path)
	if err != nil {
		return metadataError(err, path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = metadataError(cerr, path)
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(metadataColumns()); err != nil {
		return metadataError(err, path)
	}
	for _, row := range rows {
		if err := w.Write(row.record()); err != nil {
			return metadataError(err, path)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return metadataError(err, path)
	}
	return nil
}

func metadataError(err error, path string) error {
	return errors.New(fmt.Errorf("write metadata: %w", err)).
		Component("synth").
		Category(errors.CategoryFileIO).
		FileContext(path, 0).
		Build()
}
