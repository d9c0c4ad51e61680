package model

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/tphakala/go-tflite"

	"github.com/tphakala/docquality/internal/cpuspec"
	"github.com/tphakala/docquality/internal/errors"
	"github.com/tphakala/docquality/internal/logger"
)

// interpreter wraps one TFLite interpreter. TFLite interpreters are not
// re-entrant, so every invocation holds mu.
type interpreter struct {
	mu      sync.Mutex
	model   *tflite.Model
	interp  *tflite.Interpreter
	path    string
	threads int
	nhwc    bool // input is (1, H, W, 3) rather than (1, 3, H, W)
}

func newInterpreter(cp *Checkpoint, configuredThreads int) (*interpreter, error) {
	start := time.Now()

	model := tflite.NewModel(cp.Weights)
	if model == nil {
		return nil, errors.New(fmt.Errorf("cannot load TensorFlow Lite model")).
			Component("model").
			Category(errors.CategoryModelInit).
			ModelContext(cp.Path, cp.Config.Backbone).
			Context("model_size_mb", len(cp.Weights)/1024/1024).
			Timing("model-init", time.Since(start)).
			Build()
	}

	threads := cpuspec.InterpreterThreads(configuredThreads)
	options := tflite.NewInterpreterOptions()
	options.SetNumThread(threads)
	options.SetErrorReporter(func(msg string, _ any) {
		GetLogger().Error("TFLite error", logger.String("message", msg))
	}, nil)

	interp := tflite.NewInterpreter(model, options)
	if interp == nil {
		model.Delete()
		return nil, errors.New(fmt.Errorf("cannot create interpreter")).
			Component("model").
			Category(errors.CategoryModelInit).
			ModelContext(cp.Path, cp.Config.Backbone).
			Build()
	}
	if status := interp.AllocateTensors(); status != tflite.OK {
		interp.Delete()
		model.Delete()
		return nil, errors.New(fmt.Errorf("tensor allocation failed")).
			Component("model").
			Category(errors.CategoryModelInit).
			ModelContext(cp.Path, cp.Config.Backbone).
			Build()
	}

	input := interp.GetInputTensor(0)
	if input == nil || input.NumDims() != 4 {
		interp.Delete()
		model.Delete()
		return nil, errors.Newf("model input must be a rank 4 image tensor").
			Component("model").
			Category(errors.CategoryValidation).
			ModelContext(cp.Path, cp.Config.Backbone).
			Build()
	}

	// TFLite keeps its own copy of the weights
	cp.Weights = nil
	runtime.GC()

	return &interpreter{
		model:   model,
		interp:  interp,
		path:    cp.Path,
		threads: threads,
		nhwc:    input.Dim(3) == 3,
	}, nil
}

// run feeds one CHW image and returns copies of every output tensor.
func (in *interpreter) run(chw []float32, height, width int) ([][]float32, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	input := in.interp.GetInputTensor(0)
	dst := input.Float32s()
	if len(dst) != len(chw) {
		return nil, fmt.Errorf("model expects %d input values, got %d", len(dst), len(chw))
	}
	if in.nhwc {
		plane := height * width
		for i := range plane {
			dst[i*3] = chw[i]
			dst[i*3+1] = chw[plane+i]
			dst[i*3+2] = chw[2*plane+i]
		}
	} else {
		copy(dst, chw)
	}

	if status := in.interp.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("tensor invoke failed: %v", status)
	}

	outputs := make([][]float32, in.interp.GetOutputTensorCount())
	for i := range outputs {
		t := in.interp.GetOutputTensor(i)
		outputs[i] = append([]float32(nil), t.Float32s()...)
	}
	return outputs, nil
}

func (in *interpreter) close() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.interp != nil {
		in.interp.Delete()
		in.interp = nil
	}
	if in.model != nil {
		in.model.Delete()
		in.model = nil
	}
}

// forEach runs every batch item through the interpreter in order.
func (in *interpreter) forEach(ctx context.Context, batch *Tensor, fn func(i int, outputs [][]float32) error) error {
	if err := batch.Validate(); err != nil {
		return err
	}
	if len(batch.Shape) != 4 || batch.Shape[1] != 3 {
		return fmt.Errorf("expected an NCHW batch with 3 channels, got shape %v", batch.Shape)
	}
	for i := range batch.BatchSize() {
		if err := ctx.Err(); err != nil {
			return err
		}
		outputs, err := in.run(batch.Item(i), batch.Shape[2], batch.Shape[3])
		if err != nil {
			return err
		}
		if err := fn(i, outputs); err != nil {
			return err
		}
	}
	return nil
}

// pickOutputs maps each wanted size to the output tensor of that size.
func pickOutputs(outputs [][]float32, sizes ...int) ([][]float32, error) {
	picked := make([][]float32, len(sizes))
	for i, size := range sizes {
		found := -1
		for j, out := range outputs {
			if len(out) == size {
				if found >= 0 {
					return nil, fmt.Errorf("two model outputs have %d values", size)
				}
				found = j
			}
		}
		if found < 0 {
			return nil, fmt.Errorf("no model output with %d values", size)
		}
		picked[i] = outputs[found]
	}
	return picked, nil
}

// TFLiteQualityModel serves the quality network from a TFLite checkpoint.
type TFLiteQualityModel struct {
	in  *interpreter
	cfg Config
}

// NewTFLiteQualityModel creates the interpreter for a loaded checkpoint.
func NewTFLiteQualityModel(cp *Checkpoint, threads int) (*TFLiteQualityModel, error) {
	in, err := newInterpreter(cp, threads)
	if err != nil {
		return nil, err
	}
	GetLogger().Info("quality model initialized",
		logger.String("path", cp.Path),
		logger.String("backbone", cp.Config.Backbone),
		logger.Int("threads", in.threads),
		logger.Int("total_cpus", cpuspec.AvailableCPUs()))
	return &TFLiteQualityModel{in: in, cfg: cp.Config}, nil
}

// Forward implements QualityModel.
func (m *TFLiteQualityModel) Forward(ctx context.Context, batch *Tensor) ([]QualityOutput, error) {
	results := make([]QualityOutput, batch.BatchSize())
	err := m.in.forEach(ctx, batch, func(i int, outputs [][]float32) error {
		heads, err := pickOutputs(outputs, 1, m.cfg.NumQualityClasses, m.cfg.NumIssueClasses)
		if err != nil {
			return err
		}
		results[i] = QualityOutput{
			QualityScore: heads[0][0],
			ClassLogits:  heads[1],
			IssueLogits:  heads[2],
		}
		return nil
	})
	if err != nil {
		return nil, inferenceError(err, m.in.path)
	}
	return results, nil
}

// Name returns the checkpoint path.
func (m *TFLiteQualityModel) Name() string { return m.in.path }

// Close releases the interpreter.
func (m *TFLiteQualityModel) Close() error {
	m.in.close()
	return nil
}

// TFLiteClassifierModel serves the document classifier from a TFLite checkpoint.
type TFLiteClassifierModel struct {
	in  *interpreter
	cfg Config
}

// NewTFLiteClassifierModel creates the interpreter for a loaded checkpoint.
func NewTFLiteClassifierModel(cp *Checkpoint, threads int) (*TFLiteClassifierModel, error) {
	in, err := newInterpreter(cp, threads)
	if err != nil {
		return nil, err
	}
	GetLogger().Info("classifier model initialized",
		logger.String("path", cp.Path),
		logger.Int("feature_dim", cp.Config.FeatureDim),
		logger.Int("document_types", cp.Config.NumDocumentTypes),
		logger.Int("threads", in.threads))
	return &TFLiteClassifierModel{in: in, cfg: cp.Config}, nil
}

// Forward implements ClassifierModel.
func (m *TFLiteClassifierModel) Forward(ctx context.Context, batch *Tensor) ([]ClassifierOutput, error) {
	results := make([]ClassifierOutput, batch.BatchSize())
	err := m.in.forEach(ctx, batch, func(i int, outputs [][]float32) error {
		heads, err := pickOutputs(outputs, m.cfg.FeatureDim, m.cfg.NumDocumentTypes)
		if err != nil {
			return err
		}
		results[i] = ClassifierOutput{Features: heads[0], Logits: heads[1]}
		return nil
	})
	if err != nil {
		return nil, inferenceError(err, m.in.path)
	}
	return results, nil
}

// Name returns the checkpoint path.
func (m *TFLiteClassifierModel) Name() string { return m.in.path }

// Close releases the interpreter.
func (m *TFLiteClassifierModel) Close() error {
	m.in.close()
	return nil
}

func inferenceError(err error, path string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.New(err).
			Component("model").
			Category(errors.CategoryCancellation).
			Build()
	}
	return errors.New(err).
		Component("model").
		Category(errors.CategoryInference).
		Context("model", path).
		Build()
}
