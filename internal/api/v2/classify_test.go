package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/docquality/internal/classify"
)

func TestClassifyDocument(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, envOptions{})
	req := multipartRequest(t, "/classify", map[string]string{"top_k": "2"}, pngPart(t, "file", "pod.png"))
	rec := env.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decodeJSON[classify.Result](t, rec)
	require.Len(t, res.Predictions, 2)
	require.NotNil(t, res.BestPrediction)
	assert.Equal(t, classify.TypePOD, res.BestPrediction.DocumentType)
	assert.Equal(t, classify.SourceBaseModel, res.BestPrediction.Source)
	assert.False(t, res.HasCustomerMatch)
	assert.Nil(t, res.Features)
}

func TestLearnTemplateThenClassify(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, envOptions{})

	learn := multipartRequest(t, "/templates/learn",
		map[string]string{"customer_id": "acme", "document_type": "invoice"},
		pngPart(t, "file", "acme-invoice.png"))
	rec := env.do(t, learn)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	learned := decodeJSON[classify.LearnResult](t, rec)
	assert.True(t, learned.Success)
	assert.Equal(t, classify.TypeInvoice, learned.DocumentType, "document type is upper-cased")
	assert.Equal(t, 1, learned.TotalTemplates)
	assert.NotEmpty(t, learned.TemplateID)

	info := decodeJSON[classify.CustomerInfo](t, env.get(t, "/templates/customer/acme"))
	assert.True(t, info.HasTemplates)
	assert.Equal(t, map[string]int{classify.TypeInvoice: 1}, info.DocumentTypes)

	customers := decodeJSON[CustomersResponse](t, env.get(t, "/templates/customers"))
	assert.Equal(t, 1, customers.TotalCustomers)

	req := multipartRequest(t, "/classify", map[string]string{"customer_id": "acme"}, pngPart(t, "file", "next.png"))
	rec = env.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decodeJSON[classify.Result](t, rec)
	assert.True(t, res.HasCustomerMatch)
	require.NotNil(t, res.BestPrediction)
	assert.Equal(t, classify.SourceCustomerTemplate, res.BestPrediction.Source)
	assert.Equal(t, classify.TypeInvoice, res.BestPrediction.DocumentType)
	assert.Equal(t, "acme", res.CustomerID)

	metrics := decodeJSON[classify.Metrics](t, env.get(t, "/classify/metrics"))
	assert.Equal(t, int64(1), metrics.TotalClassifications)
	assert.Equal(t, int64(1), metrics.TemplateLearnings)
	assert.Equal(t, int64(1), metrics.CustomerClassifications["acme"])
}

func TestLearnTemplateValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		fields map[string]string
		parts  func(t *testing.T) []filePart
	}{
		{"missing customer", map[string]string{"document_type": "BOL"}, func(t *testing.T) []filePart {
			return []filePart{pngPart(t, "file", "a.png")}
		}},
		{"missing document type", map[string]string{"customer_id": "acme"}, func(t *testing.T) []filePart {
			return []filePart{pngPart(t, "file", "a.png")}
		}},
		{"unknown document type", map[string]string{"customer_id": "acme", "document_type": "memo"}, func(t *testing.T) []filePart {
			return []filePart{pngPart(t, "file", "a.png")}
		}},
		{"missing file", map[string]string{"customer_id": "acme", "document_type": "BOL"}, func(*testing.T) []filePart {
			return nil
		}},
		{"undecodable file", map[string]string{"customer_id": "acme", "document_type": "BOL"}, func(*testing.T) []filePart {
			return []filePart{{"file", "a.png", "image/png", []byte("junk")}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t, envOptions{})
			rec := env.do(t, multipartRequest(t, "/templates/learn", tt.fields, tt.parts(t)...))
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Zero(t, env.controller.Classifier.Bank().TotalTemplates())
		})
	}
}

func TestClassifyBatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		customerIDs string
		wantStatus  int
	}{
		{"without customers", "", http.StatusOK},
		{"one id per file", "acme, globex", http.StatusOK},
		{"id count mismatch", "acme", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t, envOptions{})
			fields := map[string]string{}
			if tt.customerIDs != "" {
				fields["customer_ids"] = tt.customerIDs
			}
			req := multipartRequest(t, "/classify/batch", fields,
				pngPart(t, "files", "a.png"), pngPart(t, "files", "b.png"))
			rec := env.do(t, req)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}

			resp := decodeJSON[BatchClassificationResponse](t, rec)
			assert.Equal(t, 2, resp.TotalProcessed)
			require.Len(t, resp.Results, 2)
			if tt.customerIDs != "" {
				assert.Equal(t, "globex", resp.Results[1].CustomerID)
			}
		})
	}
}

func TestClassifyRejectsBadParameters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		fields map[string]string
	}{
		{"top_k not an integer", map[string]string{"top_k": "many"}},
		{"top_k zero", map[string]string{"top_k": "0"}},
		{"threshold out of range", map[string]string{"confidence_threshold": "2"}},
		{"include_features not a bool", map[string]string{"include_features": "perhaps"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t, envOptions{})
			rec := env.do(t, multipartRequest(t, "/classify", tt.fields, pngPart(t, "file", "a.png")))
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestGetDocumentTypes(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, envOptions{})
	rec := env.get(t, "/classify/document-types")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeJSON[DocumentTypesResponse](t, rec)
	assert.Equal(t, classify.NumStandardTypes, resp.TotalTypes)
	assert.Equal(t, "Bill of Lading", resp.DocumentTypes[classify.TypeBOL])
}
