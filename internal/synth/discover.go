package synth

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/tphakala/docquality/internal/errors"
	"github.com/tphakala/docquality/internal/preprocess"
)

// Discover lists the source document images directly inside dir, sorted by
// name. maxDocs > 0 keeps only the first maxDocs.
func Discover(dir string, maxDocs int) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		category := errors.CategoryFileIO
		if os.IsNotExist(err) {
			category = errors.CategoryNotFound
		}
		return nil, errors.New(fmt.Errorf("read source directory: %w", err)).
			Component("synth").
			Category(category).
			Context("operation", "discover").
			Build()
	}

	var docs []string
	for _, e := range entries {
		if e.Type().IsRegular() && preprocess.IsSourceImage(e.Name()) {
			docs = append(docs, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(docs)

	if maxDocs > 0 && len(docs) > maxDocs {
		docs = docs[:maxDocs]
	}
	return docs, nil
}
