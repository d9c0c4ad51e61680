package model

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/antonholmquist/jason"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/docquality/internal/errors"
)

func TestExtractStateDict(t *testing.T) {
	t.Parallel()

	modelSD := map[string]any{"backbone.conv.weight": []any{float64(8), float64(3)}}
	plainSD := map[string]any{"head.bias": []any{float64(5)}}

	tests := []struct {
		name    string
		input   map[string]any
		wantKey string
		want    map[string]any
	}{
		{"model_state_dict wins", map[string]any{"model_state_dict": modelSD, "state_dict": plainSD}, "model_state_dict", modelSD},
		{"state_dict", map[string]any{"state_dict": plainSD, "epoch": float64(3)}, "state_dict", plainSD},
		{"raw mapping", plainSD, "", plainSD},
		{"non-object value is skipped", map[string]any{"model_state_dict": "oops", "state_dict": plainSD}, "state_dict", plainSD},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sd, key := ExtractStateDict(tt.input)
			assert.Equal(t, tt.wantKey, key)
			assert.Equal(t, tt.want, sd)
		})
	}
}

func TestParameterCount(t *testing.T) {
	t.Parallel()

	sd := map[string]any{
		"a": []any{float64(2), float64(3)},
		"b": map[string]any{"shape": []any{float64(4)}, "dtype": "float32"},
		"c": "not a shape",
	}
	assert.Equal(t, int64(10), ParameterCount(sd))
	assert.Zero(t, ParameterCount(nil))
}

func TestPlainValue(t *testing.T) {
	t.Parallel()

	obj, err := jason.NewObjectFromBytes([]byte(`{
		"state_dict": {"fc.weight": [10, 256], "fc.bias": {"shape": [10], "dtype": "float32"}},
		"frozen": true,
		"note": null
	}`))
	require.NoError(t, err)

	got := make(map[string]any)
	for k, v := range obj.Map() {
		got[k] = plainValue(v)
	}

	want := map[string]any{
		"state_dict": map[string]any{
			"fc.weight": []any{float64(10), float64(256)},
			"fc.bias":   map[string]any{"shape": []any{float64(10)}, "dtype": "float32"},
		},
		"frozen": true,
		"note":   nil,
	}
	assert.Equal(t, want, got)
}

func writeArchive(t *testing.T, files map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "best_model.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestLoadCheckpointArchive(t *testing.T) {
	t.Parallel()

	path := writeArchive(t, map[string]string{
		ManifestFile: `{
			"epoch": 42,
			"config": {"model": {"backbone": "efficientnet_b3", "num_issue_classes": 10, "feature_dim": 256}},
			"state_dict": {"fc.weight": [10, 256], "fc.bias": {"shape": [10]}}
		}`,
		WeightsFile: "TFL3-weights",
	})

	cp, err := LoadCheckpoint(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("TFL3-weights"), cp.Weights)
	assert.Equal(t, "state_dict", cp.StateKey)
	assert.Equal(t, int64(2570), ParameterCount(cp.StateDict))
	assert.Equal(t, int64(42), cp.Epoch)
	assert.Equal(t, "efficientnet_b3", cp.Config.Backbone)
	assert.Equal(t, 256, cp.Config.FeatureDim)
	assert.Equal(t, 5, cp.Config.NumQualityClasses, "missing values keep defaults")
}

func TestLoadCheckpointRawManifest(t *testing.T) {
	t.Parallel()

	path := writeArchive(t, map[string]string{
		ManifestFile: `{"fc.weight": [2, 2]}`,
		WeightsFile:  "x",
	})
	cp, err := LoadCheckpoint(path)
	require.NoError(t, err)
	assert.Empty(t, cp.StateKey)
	assert.Equal(t, int64(4), ParameterCount(cp.StateDict))
	assert.Equal(t, DefaultConfig(), cp.Config)
}

func TestLoadCheckpointErrors(t *testing.T) {
	t.Parallel()

	noWeights := writeArchive(t, map[string]string{ManifestFile: `{}`})
	_, err := LoadCheckpoint(noWeights)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryModelLoad))

	badManifest := writeArchive(t, map[string]string{ManifestFile: `{`, WeightsFile: "x"})
	_, err = LoadCheckpoint(badManifest)
	require.Error(t, err)

	_, err = LoadCheckpoint(filepath.Join(t.TempDir(), "missing.zip"))
	require.Error(t, err)
}

func TestLoadCheckpointBareModel(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "quality.tflite")
	require.NoError(t, os.WriteFile(path, []byte("TFL3"), 0o600))

	cp, err := LoadCheckpoint(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("TFL3"), cp.Weights)
	assert.Nil(t, cp.StateDict)
	assert.Equal(t, DefaultConfig(), cp.Config)
}

func TestTensor(t *testing.T) {
	t.Parallel()

	tensor := NewTensor(2, 3, 2, 2)
	require.NoError(t, tensor.Validate())
	assert.Equal(t, 2, tensor.BatchSize())
	assert.Len(t, tensor.Item(1), 12)

	tensor.Item(1)[0] = 7
	assert.InDelta(t, float32(7), tensor.Data[12], 0)

	assert.Error(t, (&Tensor{Shape: []int{2, 2}, Data: make([]float32, 3)}).Validate())
	assert.Error(t, (&Tensor{}).Validate())
	assert.Error(t, NewTensor(0, 3).Validate())
}

func TestPickOutputs(t *testing.T) {
	t.Parallel()

	outputs := [][]float32{make([]float32, 10), {0.7}, make([]float32, 5)}
	heads, err := pickOutputs(outputs, 1, 5, 10)
	require.NoError(t, err)
	assert.InDelta(t, float32(0.7), heads[0][0], 1e-6)
	assert.Len(t, heads[1], 5)
	assert.Len(t, heads[2], 10)

	_, err = pickOutputs(outputs, 3)
	assert.Error(t, err)
	_, err = pickOutputs([][]float32{{1}, {2}}, 1)
	assert.Error(t, err)
}
