package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/docquality/internal/classify"
	"github.com/tphakala/docquality/internal/conf"
	"github.com/tphakala/docquality/internal/model"
	"github.com/tphakala/docquality/internal/observability"
	"github.com/tphakala/docquality/internal/quality"
)

// stubQuality scores every image the same.
type stubQuality struct {
	score float32
	err   error
}

func (s *stubQuality) Forward(_ context.Context, batch *model.Tensor) ([]model.QualityOutput, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]model.QualityOutput, batch.BatchSize())
	for i := range out {
		out[i] = model.QualityOutput{
			QualityScore: s.score,
			ClassLogits:  []float32{0, 4, 0, 0, 0},
			IssueLogits:  []float32{2, -5, -5, -5, -5, -5, -5, -5, -5, -5},
		}
	}
	return out, nil
}

func (s *stubQuality) Name() string { return "stub-quality.tflite" }
func (s *stubQuality) Close() error { return nil }

// stubClassifier returns fixed features and logits favouring POD.
type stubClassifier struct{}

func (stubClassifier) Forward(_ context.Context, batch *model.Tensor) ([]model.ClassifierOutput, error) {
	logits := make([]float32, classify.NumStandardTypes)
	logits[1] = 5
	out := make([]model.ClassifierOutput, batch.BatchSize())
	for i := range out {
		out[i] = model.ClassifierOutput{Features: []float32{1, 0, 0, 0}, Logits: logits}
	}
	return out, nil
}

func (stubClassifier) Name() string { return "stub-classifier.tflite" }
func (stubClassifier) Close() error { return nil }

func testSettings() *conf.Settings {
	s := &conf.Settings{}
	s.Quality.Threshold = 0.5
	s.Quality.IncludeIssues = true
	s.Classifier.TopK = 3
	s.Classifier.ConfidenceThreshold = 0.6
	return s
}

type testEnv struct {
	echo       *echo.Echo
	controller *Controller
	metrics    *observability.Metrics
}

type envOptions struct {
	quality    *stubQuality
	noQuality  bool
	noClassify bool
}

func newTestEnv(t *testing.T, o envOptions) *testEnv {
	t.Helper()

	m, err := observability.NewMetrics()
	require.NoError(t, err)

	var predictor *quality.Predictor
	if !o.noQuality {
		qm := o.quality
		if qm == nil {
			qm = &stubQuality{score: 0.9}
		}
		predictor, err = quality.NewPredictor(qm, quality.WithRecorder(m.Quality))
		require.NoError(t, err)
	}

	var classifier *classify.Service
	if !o.noClassify {
		classifier, err = classify.NewService(stubClassifier{}, nil, classify.WithRecorder(m.Classifier))
		require.NoError(t, err)
	}

	e := echo.New()
	c := New(e, testSettings(), predictor, classifier, m)
	e.HTTPErrorHandler = c.HTTPErrorHandler
	t.Cleanup(c.Shutdown)
	return &testEnv{echo: e, controller: c, metrics: m}
}

func (env *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	return env.do(t, httptest.NewRequest(http.MethodGet, path, http.NoBody))
}

// filePart is one uploaded file of a multipart request.
type filePart struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

func pngPart(t *testing.T, field, filename string) filePart {
	t.Helper()
	return filePart{field: field, filename: filename, contentType: "image/png", data: pngBytes(t)}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := range 30 {
		for x := range 40 {
			img.Set(x, y, color.RGBA{220, 220, 220, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// multipartRequest builds a POST with form fields and file parts.
func multipartRequest(t *testing.T, path string, fields map[string]string, parts ...filePart) *http.Request {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.field, p.filename))
		h.Set("Content-Type", p.contentType)
		pw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = pw.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
