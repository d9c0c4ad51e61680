package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/docquality/internal/errors"
)

func TestAnalyzeDocument(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, envOptions{})
	rec := env.do(t, multipartRequest(t, "/analyze", nil, pngPart(t, "file", "scan.png")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeJSON[DocumentAnalysisResponse](t, rec)
	assert.True(t, strings.HasPrefix(resp.RequestID, "req_"))
	assert.Len(t, resp.RequestID, len("req_")+12)
	assert.InDelta(t, 0.9, resp.Quality.Score, 1e-6)
	assert.Equal(t, "Good", resp.Quality.QualityClass)
	assert.Equal(t, 1, resp.Quality.QualityClassIndex)
	assert.True(t, resp.Quality.IsAcceptable)
	require.NotEmpty(t, resp.Issues)
	assert.Positive(t, resp.ProcessingTimeMS)

	cached := env.get(t, "/analyze/"+resp.RequestID)
	require.Equal(t, http.StatusOK, cached.Code)
	assert.Equal(t, resp.RequestID, decodeJSON[DocumentAnalysisResponse](t, cached).RequestID)

	assert.Equal(t, int64(1), env.controller.Predictor.RequestCount())
}

func TestAnalyzeDocumentOptions(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, envOptions{})
	req := multipartRequest(t, "/analyze?threshold=0.95&include_issues=false", nil, pngPart(t, "file", "scan.png"))
	rec := env.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeJSON[DocumentAnalysisResponse](t, rec)
	assert.False(t, resp.Quality.IsAcceptable, "0.9 is below the 0.95 threshold")
	assert.Empty(t, resp.Issues)
	assert.NotNil(t, resp.Issues, "issues serialise as an empty list")
	assert.Contains(t, rec.Body.String(), `"recommendations":[]`)
}

func TestAnalyzeDocumentErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		part       func(t *testing.T) filePart
		model      *stubQuality
		wantStatus int
		wantError  string
	}{
		{
			name:       "non-image content type",
			path:       "/analyze",
			part:       func(*testing.T) filePart { return filePart{"file", "notes.txt", "text/plain", []byte("hello")} },
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid file type",
		},
		{
			name:       "undecodable image",
			path:       "/analyze",
			part:       func(*testing.T) filePart { return filePart{"file", "broken.png", "image/png", []byte("not a png")} },
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid image file",
		},
		{
			name:       "threshold not a number",
			path:       "/analyze?threshold=high",
			part:       func(t *testing.T) filePart { return pngPart(t, "file", "scan.png") },
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid threshold",
		},
		{
			name:       "threshold out of range",
			path:       "/analyze?threshold=1.5",
			part:       func(t *testing.T) filePart { return pngPart(t, "file", "scan.png") },
			wantStatus: http.StatusBadRequest,
			wantError:  "HTTPError",
		},
		{
			name:       "inference failure",
			path:       "/analyze",
			part:       func(t *testing.T) filePart { return pngPart(t, "file", "scan.png") },
			model:      &stubQuality{err: errors.NewStd("interpreter failed")},
			wantStatus: http.StatusInternalServerError,
			wantError:  "Error processing document",
		},
		{
			name:       "wrong field name",
			path:       "/analyze",
			part:       func(t *testing.T) filePart { return pngPart(t, "document", "scan.png") },
			wantStatus: http.StatusBadRequest,
			wantError:  "HTTPError",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t, envOptions{quality: tt.model})
			rec := env.do(t, multipartRequest(t, tt.path, nil, tt.part(t)))
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			body := decodeJSON[ErrorResponse](t, rec)
			assert.Equal(t, tt.wantError, body.Error)
			assert.NotEmpty(t, body.Message)
			require.NotNil(t, body.RequestID, "analysis errors carry the request id")
			assert.True(t, strings.HasPrefix(*body.RequestID, "req_"))
		})
	}
}

func TestAnalyzeBatch(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, envOptions{})
	req := multipartRequest(t, "/analyze/batch", nil,
		pngPart(t, "files", "a.png"),
		filePart{"files", "readme.txt", "text/plain", []byte("skip me")},
		pngPart(t, "files", "b.png"),
	)
	rec := env.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeJSON[BatchAnalysisResponse](t, rec)
	assert.True(t, strings.HasPrefix(resp.RequestID, "batch_"))
	assert.Equal(t, 2, resp.TotalDocuments)
	require.Len(t, resp.Results, 2)
	for i, r := range resp.Results {
		assert.Equal(t, resp.RequestID+"_"+string(rune('0'+i)), r.RequestID)
		assert.Zero(t, r.ProcessingTimeMS)
	}

	assert.Equal(t, 2, resp.Summary.Acceptable)
	assert.Equal(t, 0, resp.Summary.Rejected)
	assert.InDelta(t, 0.9, resp.Summary.AverageQualityScore, 1e-9)
	assert.Len(t, resp.Summary.QualityDistribution, 5)
	assert.Equal(t, 2, resp.Summary.QualityDistribution["Good"])
	assert.Equal(t, 0, resp.Summary.QualityDistribution["Very Poor"])

	assert.Equal(t, http.StatusOK, env.get(t, "/analyze/"+resp.RequestID).Code)
	assert.Equal(t, http.StatusOK, env.get(t, "/analyze/"+resp.Results[1].RequestID).Code)
}

func TestAnalyzeBatchErrors(t *testing.T) {
	t.Parallel()

	tooMany := make([]filePart, maxBatchFiles+1)
	for i := range tooMany {
		tooMany[i] = filePart{"files", "x.png", "image/png", []byte{0}}
	}

	tests := []struct {
		name      string
		parts     func(t *testing.T) []filePart
		wantError string
	}{
		{"no files", func(*testing.T) []filePart { return nil }, "HTTPError"},
		{"too many files", func(*testing.T) []filePart { return tooMany }, "HTTPError"},
		{"no images", func(*testing.T) []filePart {
			return []filePart{{"files", "a.txt", "text/plain", []byte("a")}}
		}, "HTTPError"},
		{"undecodable image", func(t *testing.T) []filePart {
			return []filePart{pngPart(t, "files", "ok.png"), {"files", "bad.png", "image/png", []byte("junk")}}
		}, "Invalid image file bad.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t, envOptions{})
			req := multipartRequest(t, "/analyze/batch", map[string]string{"threshold": "0.5"}, tt.parts(t)...)
			rec := env.do(t, req)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantError, decodeJSON[ErrorResponse](t, rec).Error)
		})
	}
}

func TestGetAnalysisNotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, envOptions{})
	rec := env.get(t, "/analyze/req_000000000000")
	require.Equal(t, http.StatusNotFound, rec.Code)

	body := decodeJSON[ErrorResponse](t, rec)
	assert.Equal(t, "Result not found", body.Error)
	assert.Nil(t, body.RequestID)
}

func TestSummarizeEmpty(t *testing.T) {
	t.Parallel()

	s := summarize(nil)
	assert.Zero(t, s.Acceptable)
	assert.Zero(t, s.AverageQualityScore)
	assert.Len(t, s.QualityDistribution, 5)
}
