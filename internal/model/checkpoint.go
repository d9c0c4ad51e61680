package model

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/antonholmquist/jason"

	"github.com/tphakala/docquality/internal/errors"
	"github.com/tphakala/docquality/internal/logger"
)

// Files inside a checkpoint archive.
const (
	ManifestFile = "checkpoint.json"
	WeightsFile  = "model.tflite"
)

// maxWeightsSize guards against archives that inflate without bound.
const maxWeightsSize = 1 << 30

// stateDictKeys are probed in order; training runs used different names.
var stateDictKeys = []string{"model_state_dict", "state_dict"}

// Config describes the network a checkpoint was trained with. Missing
// values fall back to the defaults of the production model.
type Config struct {
	Backbone          string
	NumQualityClasses int
	NumIssueClasses   int
	HiddenDim         int
	FeatureDim        int
	NumDocumentTypes  int
}

// DefaultConfig returns the configuration assumed when a checkpoint has none.
func DefaultConfig() Config {
	return Config{
		Backbone:          "efficientnet_b0",
		NumQualityClasses: 5,
		NumIssueClasses:   10,
		HiddenDim:         256,
		FeatureDim:        512,
		NumDocumentTypes:  10,
	}
}

// Checkpoint is a loaded model archive.
type Checkpoint struct {
	Path      string
	Weights   []byte         // serialized TFLite model
	StateDict map[string]any // parameter shapes, logged only; weights come from model.tflite
	StateKey  string         // key the state dict was found under, "" for the raw mapping
	Config    Config
	Epoch     int64
}

// ExtractStateDict returns the parameter mapping of a checkpoint manifest.
// It probes model_state_dict, then state_dict, and otherwise treats the
// mapping itself as the state dict. The second result names the key used.
func ExtractStateDict(checkpoint map[string]any) (map[string]any, string) {
	for _, key := range stateDictKeys {
		if sd, ok := checkpoint[key].(map[string]any); ok {
			return sd, key
		}
	}
	return checkpoint, ""
}

// ParameterCount sums the element counts of a state dict whose entries are
// shapes, either as a list of dimensions or as an object with a shape field.
func ParameterCount(stateDict map[string]any) int64 {
	var total int64
	for _, v := range stateDict {
		var dims []any
		switch entry := v.(type) {
		case []any:
			dims = entry
		case map[string]any:
			dims, _ = entry["shape"].([]any)
		}
		if len(dims) == 0 {
			continue
		}
		n := int64(1)
		for _, d := range dims {
			f, ok := d.(float64)
			if !ok {
				n = 0
				break
			}
			n *= int64(f)
		}
		total += n
	}
	return total
}

// LoadCheckpoint reads a checkpoint archive (.zip with checkpoint.json and
// model.tflite) or a bare .tflite file.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	start := time.Now()

	if strings.EqualFold(filepath.Ext(path), ".tflite") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, loadError(err, path, start)
		}
		return &Checkpoint{Path: path, Weights: data, Config: DefaultConfig()}, nil
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, loadError(err, path, start)
	}
	defer func() {
		if err := zr.Close(); err != nil {
			GetLogger().Warn("failed to close checkpoint archive", logger.String("path", path), logger.Error(err))
		}
	}()

	var manifest, weights []byte
	for _, f := range zr.File {
		switch filepath.Base(f.Name) {
		case ManifestFile:
			manifest, err = readZipFile(f)
		case WeightsFile:
			weights, err = readZipFile(f)
		}
		if err != nil {
			return nil, loadError(err, path, start)
		}
	}
	if weights == nil {
		return nil, loadError(fmt.Errorf("archive has no %s", WeightsFile), path, start)
	}

	cp := &Checkpoint{Path: path, Weights: weights, Config: DefaultConfig()}
	if manifest != nil {
		if err := cp.parseManifest(manifest); err != nil {
			return nil, loadError(err, path, start)
		}
	}

	GetLogger().Info("checkpoint loaded",
		logger.String("path", path),
		logger.String("backbone", cp.Config.Backbone),
		logger.String("state_dict_key", cp.StateKey),
		logger.Int64("parameters", ParameterCount(cp.StateDict)),
		logger.Int("weights_bytes", len(cp.Weights)),
		logger.Duration("elapsed", time.Since(start)))
	return cp, nil
}

func (cp *Checkpoint) parseManifest(data []byte) error {
	obj, err := jason.NewObjectFromBytes(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", ManifestFile, err)
	}

	raw := make(map[string]any, len(obj.Map()))
	for k, v := range obj.Map() {
		raw[k] = plainValue(v)
	}
	cp.StateDict, cp.StateKey = ExtractStateDict(raw)

	if epoch, err := obj.GetInt64("epoch"); err == nil {
		cp.Epoch = epoch
	}

	modelCfg, err := obj.GetObject("config", "model")
	if err != nil {
		return nil
	}
	if s, err := modelCfg.GetString("backbone"); err == nil {
		cp.Config.Backbone = s
	}
	setInt := func(key string, dst *int) {
		if v, err := modelCfg.GetInt64(key); err == nil && v > 0 {
			*dst = int(v)
		}
	}
	setInt("num_quality_classes", &cp.Config.NumQualityClasses)
	setInt("num_issue_classes", &cp.Config.NumIssueClasses)
	setInt("hidden_dim", &cp.Config.HiddenDim)
	setInt("feature_dim", &cp.Config.FeatureDim)
	setInt("num_document_types", &cp.Config.NumDocumentTypes)
	return nil
}

// plainValue converts a parsed manifest value into the map, slice, float64,
// string and bool shapes used by encoding/json.
func plainValue(v *jason.Value) any {
	if obj, err := v.Object(); err == nil {
		m := make(map[string]any, len(obj.Map()))
		for k, child := range obj.Map() {
			m[k] = plainValue(child)
		}
		return m
	}
	if arr, err := v.Array(); err == nil {
		out := make([]any, len(arr))
		for i, child := range arr {
			out[i] = plainValue(child)
		}
		return out
	}
	if f, err := v.Float64(); err == nil {
		return f
	}
	if s, err := v.String(); err == nil {
		return s
	}
	if b, err := v.Boolean(); err == nil {
		return b
	}
	return nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	if f.UncompressedSize64 > maxWeightsSize {
		return nil, fmt.Errorf("%s is too large (%d bytes)", f.Name, f.UncompressedSize64)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck // read-only
	return io.ReadAll(io.LimitReader(rc, maxWeightsSize))
}

func loadError(err error, path string, start time.Time) error {
	return errors.New(err).
		Component("model").
		Category(errors.CategoryModelLoad).
		ModelContext(path, filepath.Base(path)).
		Timing("checkpoint-load", time.Since(start)).
		Build()
}
