// Package synth builds the synthetic training dataset: every source document
// is saved once as is and then as a set of randomly degraded variants, with
// quality scores and issue labels derived from the degradation parameters.
package synth

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/docquality/internal/conf"
	"github.com/tphakala/docquality/internal/cpuspec"
	"github.com/tphakala/docquality/internal/degrade"
	"github.com/tphakala/docquality/internal/errors"
	"github.com/tphakala/docquality/internal/logger"
	"github.com/tphakala/docquality/internal/preprocess"
)

// JPEG qualities of the written images.
const (
	OriginalJPEGQuality = 100
	VariantJPEGQuality  = 75
)

// Output file names below the dataset root.
const (
	FullMetadataFile = "full_dataset_metadata.csv"
	SummaryFile      = "dataset_summary.txt"
)

// Config controls one dataset run.
type Config struct {
	SourceDir      string
	OutputDir      string
	MinVariants    int
	MaxVariants    int
	Ratios         Ratios
	WorkerFraction float64
	MaxWorkers     int
	MaxDocs        int
	Seed           int64 // 0 seeds from the clock
}

// ConfigFromSettings copies the synthesis settings.
func ConfigFromSettings(s *conf.SynthesisSettings) Config {
	return Config{
		SourceDir:      s.SourceDir,
		OutputDir:      s.OutputDir,
		MinVariants:    s.MinVariants,
		MaxVariants:    s.MaxVariants,
		Ratios:         Ratios{Train: s.TrainRatio, Val: s.ValRatio, Test: s.TestRatio},
		WorkerFraction: s.WorkerFraction,
		MaxWorkers:     s.MaxWorkers,
		MaxDocs:        s.MaxDocs,
		Seed:           s.Seed,
	}
}

func (c Config) validate() error {
	var problems []string
	if c.SourceDir == "" || c.OutputDir == "" {
		problems = append(problems, "source and output directories are required")
	}
	if c.MinVariants < 1 || c.MaxVariants < c.MinVariants {
		problems = append(problems, fmt.Sprintf("variants range must satisfy 1 <= min <= max, got %d..%d", c.MinVariants, c.MaxVariants))
	}
	if c.WorkerFraction <= 0 || c.WorkerFraction > 1 {
		problems = append(problems, fmt.Sprintf("worker fraction must be in (0, 1], got %g", c.WorkerFraction))
	}
	if len(problems) > 0 {
		return errors.Newf("invalid synthesis config: %s", strings.Join(problems, "; ")).
			Component("synth").
			Category(errors.CategoryValidation).
			Build()
	}
	return c.Ratios.Validate()
}

// Recorder receives per-document progress, typically the Prometheus collectors.
type Recorder interface {
	RecordDocument(split string, images int, duration time.Duration, err error)
}

// Option configures a Creator.
type Option func(*Creator)

// WithSampler replaces the default tier table.
func WithSampler(s *Sampler) Option {
	return func(c *Creator) { c.sampler = s }
}

// WithRecorder forwards per-document progress to r.
func WithRecorder(r Recorder) Option {
	return func(c *Creator) { c.recorder = r }
}

// WithCPUs overrides the detected CPU count used for the worker policy.
func WithCPUs(n int) Option {
	return func(c *Creator) { c.cpus = n }
}

// Creator generates a dataset.
type Creator struct {
	cfg      Config
	sampler  *Sampler
	recorder Recorder
	cpus     int
	log      logger.Logger
}

// NewCreator validates cfg.
func NewCreator(cfg Config, opts ...Option) (*Creator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	c := &Creator{cfg: cfg, log: GetLogger()}
	for _, opt := range opts {
		opt(c)
	}
	if c.sampler == nil {
		c.sampler = DefaultSampler()
	}
	if c.cpus <= 0 {
		c.cpus = cpuspec.AvailableCPUs()
	}
	return c, nil
}

// Result describes a finished run.
type Result struct {
	Rows    []SampleMetadata // train, val, test; sorted by source document within a split
	Summary Summary
	Workers int
	Seed    int64
	Skipped []string // source documents that failed
}

// task is one document; all its rows are produced by one worker.
type task struct {
	index int
	split string
	path  string
}

// Run generates the dataset. Documents that cannot be read or written are
// logged and skipped. A cancelled context stops scheduling new documents
// and returns the context error.
func (c *Creator) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	docs, err := Discover(c.cfg.SourceDir, c.cfg.MaxDocs)
	if err != nil {
		return nil, err
	}
	docs = c.dropDuplicateStems(docs)
	if len(docs) == 0 {
		return nil, errors.Newf("no source documents found in %s", c.cfg.SourceDir).
			Component("synth").
			Category(errors.CategoryValidation).
			Build()
	}

	seed := c.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	assignments, err := SplitDocuments(docs, c.cfg.Ratios, rand.New(rand.NewPCG(uint64(seed), 0)))
	if err != nil {
		return nil, err
	}

	var tasks []task
	for _, a := range assignments {
		if err := os.MkdirAll(filepath.Join(c.cfg.OutputDir, a.Split), 0o755); err != nil {
			return nil, errors.New(fmt.Errorf("create split directory: %w", err)).
				Component("synth").
				Category(errors.CategoryFileIO).
				Build()
		}
		for _, doc := range a.Docs {
			tasks = append(tasks, task{index: len(tasks), split: a.Split, path: doc})
		}
	}

	workers := cpuspec.WorkerCount(c.cpus, c.cfg.WorkerFraction, c.cfg.MaxWorkers)
	c.log.Info("generating dataset",
		logger.Int("documents", len(tasks)),
		logger.Int("workers", workers),
		logger.Int64("seed", seed),
		logger.String("output_dir", c.cfg.OutputDir))

	perTask, skipped, err := c.runTasks(ctx, tasks, workers, seed)
	if err != nil {
		return nil, err
	}

	bySplit := make(map[string][]SampleMetadata, len(assignments))
	for i, t := range tasks {
		bySplit[t.split] = append(bySplit[t.split], perTask[i]...)
	}

	result := &Result{Workers: workers, Seed: seed, Skipped: skipped}
	splitNames := make([]string, 0, len(assignments))
	for _, a := range assignments {
		rows := bySplit[a.Split]
		sortRows(rows)
		splitNames = append(splitNames, a.Split)
		path := filepath.Join(c.cfg.OutputDir, a.Split, a.Split+"_metadata.csv")
		if err := WriteMetadataCSV(path, rows); err != nil {
			return nil, err
		}
		result.Rows = append(result.Rows, rows...)
	}

	if len(result.Rows) == 0 {
		return nil, errors.Newf("no images were generated from %d documents", len(tasks)).
			Component("synth").
			Category(errors.CategoryProcessing).
			Context("skipped", len(skipped)).
			Build()
	}

	if err := WriteMetadataCSV(filepath.Join(c.cfg.OutputDir, FullMetadataFile), result.Rows); err != nil {
		return nil, err
	}

	result.Summary = Summarize(result.Rows, len(docs), splitNames)
	if err := writeSummary(filepath.Join(c.cfg.OutputDir, SummaryFile), result.Summary); err != nil {
		return nil, err
	}

	c.log.Info("dataset complete",
		logger.Int("images", len(result.Rows)),
		logger.Int("skipped_documents", len(skipped)),
		logger.Duration("elapsed", time.Since(start)))
	return result, nil
}

// runTasks processes documents on a bounded pool. The returned slice is
// indexed like tasks.
func (c *Creator) runTasks(ctx context.Context, tasks []task, workers int, seed int64) ([][]SampleMetadata, []string, error) {
	perTask := make([][]SampleMetadata, len(tasks))
	var (
		mu      sync.Mutex
		skipped []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, t := range tasks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			docStart := time.Now()
			rows, err := c.processDocument(gctx, t, seed)
			if c.recorder != nil {
				c.recorder.RecordDocument(t.split, len(rows), time.Since(docStart), err)
			}
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				c.log.Warn("skipping document",
					logger.String("document", filepath.Base(t.path)),
					logger.String("split", t.split),
					logger.Error(err))
				mu.Lock()
				skipped = append(skipped, filepath.Base(t.path))
				mu.Unlock()
				return nil
			}
			perTask[t.index] = rows
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, nil, errors.New(fmt.Errorf("dataset generation interrupted: %w", err)).
			Component("synth").
			Category(errors.CategoryCancellation).
			Build()
	}
	return perTask, skipped, nil
}

// processDocument writes the original and its variants and returns their
// rows. On failure the files written so far are removed.
func (c *Creator) processDocument(ctx context.Context, t task, seed int64) (rows []SampleMetadata, err error) {
	var written []string
	defer func() {
		if r := recover(); r != nil {
			rows = nil
			err = errors.Newf("processing %s panicked: %v", filepath.Base(t.path), r).
				Component("synth").
				Category(errors.CategoryWorker).
				Build()
		}
		if err != nil {
			for _, p := range written {
				_ = os.Remove(p)
			}
		}
	}()

	rng := rand.New(rand.NewPCG(uint64(seed), uint64(t.index)+1))

	src, err := preprocess.DecodeFile(t.path)
	if err != nil {
		return nil, err
	}
	doc := preprocess.ToRGB(src)

	name := filepath.Base(t.path)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	splitDir := filepath.Join(c.cfg.OutputDir, t.split)

	save := func(file string, img image.Image, quality int) (string, error) {
		path := filepath.Join(splitDir, file)
		if err := saveJPEG(path, img, quality); err != nil {
			return "", err
		}
		written = append(written, path)
		return filepath.ToSlash(filepath.Join(t.split, file)), nil
	}

	rel, err := save(stem+"_original.jpg", doc, OriginalJPEGQuality)
	if err != nil {
		return nil, err
	}
	rows = append(rows, SampleMetadata{
		FilePath:        rel,
		QualityScore:    1.0,
		QualityClass:    degrade.TierHigh,
		DegradationType: DegradationOriginal,
		Split:           t.split,
		SourceDocument:  name,
	})

	variants := c.cfg.MinVariants + rng.IntN(c.cfg.MaxVariants-c.cfg.MinVariants+1)
	for i := range variants {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p := c.sampler.Params(c.sampler.Tier(rng), rng)
		variant, err := degrade.Apply(doc, p, rng)
		if err != nil {
			return nil, err
		}
		rel, err := save(fmt.Sprintf("%s_variant_%03d_%06d.jpg", stem, i, rng.IntN(1000000)), variant, VariantJPEGQuality)
		if err != nil {
			return nil, err
		}

		score := degrade.QualityScore(p)
		rows = append(rows, SampleMetadata{
			FilePath:        rel,
			QualityScore:    score,
			QualityClass:    degrade.TierForScore(score),
			DegradationType: DegradationSynthetic,
			Split:           t.split,
			SourceDocument:  name,
			Issues:          degrade.IssueLabels(p),
			Params:          &p,
		})
	}
	return rows, nil
}

// dropDuplicateStems keeps the first document of each file stem so output
// names cannot collide, e.g. scan.png next to scan.jpg.
func (c *Creator) dropDuplicateStems(docs []string) []string {
	seen := make(map[string]bool, len(docs))
	kept := docs[:0:0]
	for _, d := range docs {
		base := filepath.Base(d)
		stem := strings.TrimSuffix(base, filepath.Ext(base))
		if seen[stem] {
			c.log.Warn("skipping document with duplicate name", logger.String("document", base))
			continue
		}
		seen[stem] = true
		kept = append(kept, d)
	}
	return kept
}

func saveJPEG(path string, img image.Image, quality int) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fileError(err, path, "create")
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fileError(cerr, path, "close")
		}
	}()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: quality}); err != nil {
		return fileError(err, path, "encode")
	}
	return nil
}

func writeSummary(path string, s Summary) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fileError(err, path, "create")
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fileError(cerr, path, "close")
		}
	}()
	if _, err := s.WriteTo(f); err != nil {
		return fileError(err, path, "write")
	}
	return nil
}

func fileError(err error, path, op string) error {
	return errors.New(fmt.Errorf("%s %s: %w", op, filepath.Base(path), err)).
		Component("synth").
		Category(errors.CategoryFileIO).
		FileContext(path, 0).
		Build()
}
