package api

import (
	"fmt"
	"image"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/docquality/internal/classify"
	"github.com/tphakala/docquality/internal/logger"
	"github.com/tphakala/docquality/internal/preprocess"
)

// BatchClassificationResponse is returned by POST /classify/batch.
type BatchClassificationResponse struct {
	Results        []*classify.Result `json:"results"`
	TotalProcessed int                `json:"total_processed"`
}

// CustomersResponse is returned by GET /templates/customers.
type CustomersResponse struct {
	Customers      []classify.CustomerInfo `json:"customers"`
	TotalCustomers int                     `json:"total_customers"`
}

// DocumentTypesResponse is returned by GET /classify/document-types.
type DocumentTypesResponse struct {
	DocumentTypes map[string]string `json:"document_types"`
	TotalTypes    int               `json:"total_types"`
}

// classifyOptions reads top_k and confidence_threshold, defaulting to the
// configured values.
func (c *Controller) classifyOptions(ctx echo.Context) (classify.Options, error) {
	opts := classify.DefaultOptions()
	if c.Settings.Classifier.TopK > 0 {
		opts.TopK = c.Settings.Classifier.TopK
	}
	opts.ConfidenceThreshold = c.Settings.Classifier.ConfidenceThreshold

	var err error
	if opts.TopK, err = intParam(ctx, "top_k", opts.TopK); err != nil {
		return opts, err
	}
	if opts.ConfidenceThreshold, err = floatParam(ctx, "confidence_threshold", opts.ConfidenceThreshold); err != nil {
		return opts, err
	}
	if opts.IncludeFeatures, err = boolParam(ctx, "include_features", false); err != nil {
		return opts, err
	}
	opts.CustomerID = strings.TrimSpace(ctx.FormValue("customer_id"))
	return opts, nil
}

// decodeUpload decodes an uploaded image, answering 400 on failure.
func decodeUpload(file upload) (image.Image, error) {
	img, err := preprocess.DecodeBytes(file.Data)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid image file: "+err.Error()).SetInternal(err)
	}
	return img, nil
}

// ClassifyDocument handles POST /classify.
func (c *Controller) ClassifyDocument(ctx echo.Context) error {
	if err := c.requireClassifier(); err != nil {
		return err
	}
	opts, err := c.classifyOptions(ctx)
	if err != nil {
		return err
	}
	file, err := formFile(ctx, "file")
	if err != nil {
		return err
	}
	img, err := decodeUpload(file)
	if err != nil {
		return err
	}

	result, err := c.Classifier.ClassifyDocument(ctx.Request().Context(), img, opts)
	if err != nil {
		return serviceError(err, "Classification failed")
	}
	return ctx.JSON(http.StatusOK, result)
}

// ClassifyBatch handles POST /classify/batch. customer_ids is an optional
// comma separated list with one id per file.
func (c *Controller) ClassifyBatch(ctx echo.Context) error {
	if err := c.requireClassifier(); err != nil {
		return err
	}
	opts, err := c.classifyOptions(ctx)
	if err != nil {
		return err
	}
	headers, err := formFiles(ctx, "files")
	if err != nil {
		return err
	}
	if len(headers) > maxBatchFiles {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("Maximum %d files per batch request", maxBatchFiles))
	}

	var customerIDs []string
	if raw := ctx.FormValue("customer_ids"); raw != "" {
		for id := range strings.SplitSeq(raw, ",") {
			customerIDs = append(customerIDs, strings.TrimSpace(id))
		}
	}

	images := make([]image.Image, 0, len(headers))
	for _, fh := range headers {
		file, err := readUpload(fh)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid upload: "+err.Error())
		}
		img, err := preprocess.DecodeBytes(file.Data)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest,
				fmt.Sprintf("Invalid image file %s: %v", file.Name, err)).SetInternal(err)
		}
		images = append(images, img)
	}
	c.recordUploads(len(images), 0)

	results, err := c.Classifier.ClassifyBatch(ctx.Request().Context(), images, customerIDs, opts)
	if err != nil {
		return serviceError(err, "Batch classification failed")
	}
	return ctx.JSON(http.StatusOK, BatchClassificationResponse{
		Results:        results,
		TotalProcessed: len(results),
	})
}

// LearnTemplate handles POST /templates/learn.
func (c *Controller) LearnTemplate(ctx echo.Context) error {
	if err := c.requireClassifier(); err != nil {
		return err
	}

	customerID := strings.TrimSpace(ctx.FormValue("customer_id"))
	if customerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "customer_id is required")
	}
	documentType := strings.ToUpper(strings.TrimSpace(ctx.FormValue("document_type")))
	if documentType == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "document_type is required")
	}
	templateID := strings.TrimSpace(ctx.FormValue("template_id"))

	file, err := formFile(ctx, "file")
	if err != nil {
		return err
	}
	img, err := decodeUpload(file)
	if err != nil {
		return err
	}

	metadata := map[string]string{
		"filename":   file.Name,
		"learned_at": time.Now().UTC().Format(time.RFC3339),
	}
	result, err := c.Classifier.LearnCustomerTemplate(ctx.Request().Context(), img, customerID, documentType, templateID, metadata)
	if err != nil {
		return serviceError(err, "Template learning failed")
	}

	c.logger.Info("template learned via api",
		logger.String("customer_id", customerID),
		logger.String("document_type", documentType),
		logger.String("template_id", result.TemplateID))
	return ctx.JSON(http.StatusOK, result)
}

// GetCustomerTemplates handles GET /templates/customer/:customer_id.
func (c *Controller) GetCustomerTemplates(ctx echo.Context) error {
	if err := c.requireClassifier(); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c.Classifier.CustomerInfo(ctx.Param("customer_id")))
}

// GetCustomers handles GET /templates/customers.
func (c *Controller) GetCustomers(ctx echo.Context) error {
	if err := c.requireClassifier(); err != nil {
		return err
	}
	customers := c.Classifier.AllCustomers()
	return ctx.JSON(http.StatusOK, CustomersResponse{
		Customers:      customers,
		TotalCustomers: len(customers),
	})
}

// GetDocumentTypes handles GET /classify/document-types.
func (c *Controller) GetDocumentTypes(ctx echo.Context) error {
	if err := c.requireClassifier(); err != nil {
		return err
	}
	types := c.Classifier.SupportedDocumentTypes()
	return ctx.JSON(http.StatusOK, DocumentTypesResponse{
		DocumentTypes: types,
		TotalTypes:    len(types),
	})
}

// GetClassificationMetrics handles GET /classify/metrics.
func (c *Controller) GetClassificationMetrics(ctx echo.Context) error {
	if err := c.requireClassifier(); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c.Classifier.Metrics())
}
