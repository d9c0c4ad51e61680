package synth

import (
	"context"
	"encoding/csv"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/docquality/internal/degrade"
	"github.com/tphakala/docquality/internal/errors"
)

func writePNG(t *testing.T, path string, shade uint8) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 48, 36))
	for y := range 36 {
		for x := range 48 {
			v := shade
			if y%6 == 0 {
				v = 20 // text lines
			}
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

// sourceDir holds three valid documents, one corrupt image and a text file.
func sourceDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "invoice.png"), 240)
	writePNG(t, filepath.Join(dir, "bol.PNG"), 230)
	writePNG(t, filepath.Join(dir, "receipt.png"), 250)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.jpg"), []byte("not a jpeg"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o600))
	return dir
}

func testConfig(src, out string) Config {
	return Config{
		SourceDir:      src,
		OutputDir:      out,
		MinVariants:    2,
		MaxVariants:    3,
		Ratios:         DefaultRatios(),
		WorkerFraction: 0.75,
		MaxWorkers:     2,
		Seed:           42,
	}
}

type docRecorder struct {
	mu     sync.Mutex
	docs   int
	failed int
}

func (r *docRecorder) RecordDocument(_ string, _ int, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs++
	if err != nil {
		r.failed++
	}
}

func TestCreatorRun(t *testing.T) {
	t.Parallel()

	src := sourceDir(t)
	out := t.TempDir()
	rec := &docRecorder{}

	c, err := NewCreator(testConfig(src, out), WithCPUs(4), WithRecorder(rec))
	require.NoError(t, err)
	res, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Workers)
	assert.Equal(t, []string{"broken.jpg"}, res.Skipped)
	assert.Equal(t, 4, rec.docs)
	assert.Equal(t, 1, rec.failed)

	// one original plus 2..3 variants per valid document
	assert.GreaterOrEqual(t, len(res.Rows), 9)
	assert.LessOrEqual(t, len(res.Rows), 12)
	assert.Equal(t, len(res.Rows), res.Summary.TotalImages)
	assert.Equal(t, 4, res.Summary.SourceDocuments)

	originals := 0
	splitOf := map[string]string{}
	for _, row := range res.Rows {
		_, err := os.Stat(filepath.Join(out, filepath.FromSlash(row.FilePath)))
		require.NoError(t, err, row.FilePath)
		assert.True(t, strings.HasPrefix(row.FilePath, row.Split+"/"))

		if prev, ok := splitOf[row.SourceDocument]; ok {
			assert.Equal(t, prev, row.Split, "a document stays in one split")
		}
		splitOf[row.SourceDocument] = row.Split

		switch row.DegradationType {
		case DegradationOriginal:
			originals++
			assert.InDelta(t, 1.0, row.QualityScore, 0)
			assert.Zero(t, row.Issues.Count())
			assert.Nil(t, row.Params)
		case DegradationSynthetic:
			require.NotNil(t, row.Params)
			assert.Contains(t, row.FilePath, "_variant_")
			assert.GreaterOrEqual(t, row.QualityScore, 0.05)
			assert.LessOrEqual(t, row.QualityScore, 1.0)
		default:
			t.Fatalf("unexpected degradation type %q", row.DegradationType)
		}
	}
	assert.Equal(t, 3, originals)

	full, err := os.Open(filepath.Join(out, FullMetadataFile))
	require.NoError(t, err)
	defer full.Close()
	records, err := csv.NewReader(full).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, len(res.Rows)+1)

	for _, split := range []string{SplitTrain, SplitVal, SplitTest} {
		_, err := os.Stat(filepath.Join(out, split, split+"_metadata.csv"))
		assert.NoError(t, err, split)
	}

	summary, err := os.ReadFile(filepath.Join(out, SummaryFile))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(summary), SummaryTitle+"\n"))
}

func TestCreatorDeterministicForSeed(t *testing.T) {
	t.Parallel()

	src := sourceDir(t)
	run := func(workers int) []SampleMetadata {
		cfg := testConfig(src, t.TempDir())
		cfg.MaxWorkers = workers
		c, err := NewCreator(cfg, WithCPUs(4))
		require.NoError(t, err)
		res, err := c.Run(context.Background())
		require.NoError(t, err)
		return res.Rows
	}

	assert.Equal(t, run(1), run(3), "worker count does not change the dataset")
}

func TestCreatorFailures(t *testing.T) {
	t.Parallel()

	t.Run("no documents", func(t *testing.T) {
		t.Parallel()
		c, err := NewCreator(testConfig(t.TempDir(), t.TempDir()))
		require.NoError(t, err)
		_, err = c.Run(context.Background())
		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))
	})

	t.Run("missing source directory", func(t *testing.T) {
		t.Parallel()
		c, err := NewCreator(testConfig(filepath.Join(t.TempDir(), "absent"), t.TempDir()))
		require.NoError(t, err)
		_, err = c.Run(context.Background())
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("every document fails", func(t *testing.T) {
		t.Parallel()
		src := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(src, "a.png"), []byte("nope"), 0o600))
		c, err := NewCreator(testConfig(src, t.TempDir()))
		require.NoError(t, err)
		_, err = c.Run(context.Background())
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryProcessing))
	})

	t.Run("cancelled", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		c, err := NewCreator(testConfig(sourceDir(t), t.TempDir()))
		require.NoError(t, err)
		_, err = c.Run(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("invalid config", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig("src", "out")
		cfg.MinVariants = 5
		cfg.MaxVariants = 1
		_, err := NewCreator(cfg)
		assert.True(t, errors.IsValidation(err))
	})
}

type panicDist struct{}

func (panicDist) Sample(*rand.Rand) float64 { panic("bad distribution") }

func TestProcessDocumentRecoversPanic(t *testing.T) {
	t.Parallel()

	var weights [degrade.NumTiers]float64
	weights[degrade.TierHigh] = 1
	sampler, err := NewSampler(weights, map[degrade.Tier][]Rule{
		degrade.TierHigh: {{Field: "blur_radius", Dist: panicDist{}, Probability: Always}},
	})
	require.NoError(t, err)

	src, out := t.TempDir(), t.TempDir()
	doc := filepath.Join(src, "invoice.png")
	writePNG(t, doc, 240)
	require.NoError(t, os.MkdirAll(filepath.Join(out, "train"), 0o755))

	c, err := NewCreator(testConfig(src, out), WithSampler(sampler))
	require.NoError(t, err)

	rows, err := c.processDocument(t.Context(), task{index: 0, split: "train", path: doc}, 42)
	require.Error(t, err)
	assert.Nil(t, rows)
	assert.True(t, errors.IsCategory(err, errors.CategoryWorker))
	assert.Contains(t, err.Error(), "invoice.png")

	// the original written before the panic is removed
	entries, err := os.ReadDir(filepath.Join(out, "train"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProcessDocumentMissingSource(t *testing.T) {
	t.Parallel()

	c, err := NewCreator(testConfig(t.TempDir(), t.TempDir()))
	require.NoError(t, err)

	rows, err := c.processDocument(t.Context(), task{split: "train", path: filepath.Join(t.TempDir(), "gone.png")}, 1)
	require.Error(t, err)
	assert.Nil(t, rows)
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	src := sourceDir(t)
	docs, err := Discover(src, 0)
	require.NoError(t, err)

	var names []string
	for _, d := range docs {
		names = append(names, filepath.Base(d))
	}
	assert.Equal(t, []string{"bol.PNG", "broken.jpg", "invoice.png", "receipt.png"}, names)

	docs, err = Discover(src, 2)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestDropDuplicateStems(t *testing.T) {
	t.Parallel()

	c := &Creator{log: GetLogger()}
	got := c.dropDuplicateStems([]string{"/a/scan.jpg", "/a/scan.png", "/a/other.png"})
	assert.Equal(t, []string{"/a/scan.jpg", "/a/other.png"}, got)
}
