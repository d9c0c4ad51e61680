// Package benchmark implements the command that measures quality model
// inference speed on this machine.
package benchmark

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/docquality/internal/conf"
	"github.com/tphakala/docquality/internal/cpuspec"
	"github.com/tphakala/docquality/internal/preprocess"
	"github.com/tphakala/docquality/internal/quality"
)

// maxBatch matches the per-request limit of the batch endpoint.
const maxBatch = 100

var (
	batchSize  int
	iterations int
	imagePath  string
)

// Command creates the benchmark command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Run quality model inference benchmark",
		Long:  `Compare N sequential single-image predictions with one batch of N.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if batchSize < 1 || batchSize > maxBatch {
				return fmt.Errorf("batch size must be between 1 and %d, got %d", maxBatch, batchSize)
			}
			if iterations < 1 {
				return fmt.Errorf("iterations must be at least 1, got %d", iterations)
			}
			return runComparison(cmd, settings)
		},
	}

	cmd.Flags().IntVarP(&batchSize, "batch", "b", 8, fmt.Sprintf("batch size for inference (1-%d)", maxBatch))
	cmd.Flags().IntVarP(&iterations, "iterations", "n", 5, "number of timed iterations")
	cmd.Flags().StringVarP(&imagePath, "image", "i", "", "document image to use (default: synthetic page)")

	return cmd
}

type timing struct {
	total time.Duration
	runs  int
}

func (t timing) perRun() time.Duration {
	if t.runs == 0 {
		return 0
	}
	return t.total / time.Duration(t.runs)
}

func runComparison(cmd *cobra.Command, settings *conf.Settings) error {
	ctx := cmd.Context()

	img, err := benchmarkImage()
	if err != nil {
		return err
	}

	predictor, err := quality.Load(&settings.Quality, nil, quality.WithMonitoring(false))
	if err != nil {
		return fmt.Errorf("❌ failed to load quality model: %w", err)
	}
	defer predictor.Close() //nolint:errcheck // process exits next

	spec := cpuspec.GetCPUSpec()
	fmt.Printf("🖥️  CPU: %s (%d interpreter threads)\n", spec.BrandName, cpuspec.InterpreterThreads(settings.Quality.Threads))
	fmt.Printf("🔬 Batch Efficiency Comparison (N=%d)\n", batchSize)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	imgs := make([]image.Image, batchSize)
	for i := range imgs {
		imgs[i] = img
	}
	opts := quality.Options{Threshold: settings.Quality.Threshold, IncludeIssues: true}

	fmt.Println("⏳ Warming up...")
	if _, err := predictor.Predict(ctx, img, opts); err != nil {
		return fmt.Errorf("❌ warmup inference failed: %w", err)
	}

	fmt.Printf("\n📊 Test 1: %d sequential single inferences (%d iterations)\n", batchSize, iterations)
	var sequential timing
	for range iterations {
		start := time.Now()
		for _, one := range imgs {
			if _, err := predictor.Predict(ctx, one, opts); err != nil {
				return fmt.Errorf("❌ sequential inference failed: %w", err)
			}
		}
		sequential.total += time.Since(start)
		sequential.runs++
	}

	fmt.Printf("📊 Test 2: 1 batch of %d (%d iterations)\n", batchSize, iterations)
	var batched timing
	for range iterations {
		start := time.Now()
		if _, err := predictor.PredictBatch(ctx, imgs, opts); err != nil {
			return fmt.Errorf("❌ batch inference failed: %w", err)
		}
		batched.total += time.Since(start)
		batched.runs++
	}

	printResults(sequential, batched)
	return nil
}

func printResults(sequential, batched timing) {
	fmt.Printf("\nResults:\n")
	fmt.Printf("Method         Total Time    Per-Image     Throughput\n")
	fmt.Printf("─────────────  ────────────  ────────────  ──────────────────────\n")
	printRow("Sequential", sequential.perRun())
	printRow("Batch", batched.perRun())
	fmt.Printf("─────────────  ────────────  ────────────  ──────────────────────\n")

	if s, b := sequential.perRun(), batched.perRun(); s > 0 && b > 0 {
		fmt.Printf("\n🚀 Batch speedup: %.2fx\n", float64(s)/float64(b))
	}
}

func printRow(method string, perRun time.Duration) {
	ms := float64(perRun.Microseconds()) / 1000
	perImage := ms / float64(batchSize)
	throughput := 0.0
	if perImage > 0 {
		throughput = 1000 / perImage
	}
	fmt.Printf("%-13s  %7.1f ms    %7.2f ms    %7.2f images/sec\n", method, ms, perImage, throughput)
}

// benchmarkImage loads --image or draws a plain page with text-like bars.
func benchmarkImage() (image.Image, error) {
	if imagePath != "" {
		return preprocess.DecodeFile(imagePath)
	}

	page := image.NewRGBA(image.Rect(0, 0, 850, 1100))
	draw.Draw(page, page.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	ink := image.NewUniform(color.Gray{Y: 40})
	for y := 100; y < 1000; y += 30 {
		draw.Draw(page, image.Rect(80, y, 770-(y%7)*40, y+12), ink, image.Point{}, draw.Src)
	}
	return page, nil
}
