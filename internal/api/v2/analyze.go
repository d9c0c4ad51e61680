package api

import (
	"fmt"
	"image"
	"math"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/tphakala/docquality/internal/degrade"
	"github.com/tphakala/docquality/internal/logger"
	"github.com/tphakala/docquality/internal/preprocess"
	"github.com/tphakala/docquality/internal/quality"
)

// QualityAssessment is the headline verdict for one document.
type QualityAssessment struct {
	Score             float64 `json:"score"`
	QualityClass      string  `json:"quality_class"`
	QualityClassIndex int     `json:"quality_class_index"`
	IsAcceptable      bool    `json:"is_acceptable"`
	Confidence        float64 `json:"confidence"`
}

// DocumentAnalysisResponse is returned for every analysed document.
type DocumentAnalysisResponse struct {
	RequestID        string            `json:"request_id"`
	Timestamp        time.Time         `json:"timestamp"`
	Quality          QualityAssessment `json:"quality"`
	Issues           []quality.Issue   `json:"issues"`
	Recommendations  []string          `json:"recommendations"`
	ProcessingTimeMS float64           `json:"processing_time_ms"`
}

// BatchSummary aggregates the results of a batch.
type BatchSummary struct {
	Acceptable          int            `json:"acceptable"`
	Rejected            int            `json:"rejected"`
	AverageQualityScore float64        `json:"average_quality_score"`
	QualityDistribution map[string]int `json:"quality_distribution"`
}

// BatchAnalysisResponse is returned by the batch endpoint.
type BatchAnalysisResponse struct {
	RequestID             string                     `json:"request_id"`
	Timestamp             time.Time                  `json:"timestamp"`
	TotalDocuments        int                        `json:"total_documents"`
	Results               []DocumentAnalysisResponse `json:"results"`
	Summary               BatchSummary               `json:"summary"`
	TotalProcessingTimeMS float64                    `json:"total_processing_time_ms"`
}

func newAnalysisResponse(requestID string, ts time.Time, r *quality.Result) DocumentAnalysisResponse {
	resp := DocumentAnalysisResponse{
		RequestID: requestID,
		Timestamp: ts,
		Quality: QualityAssessment{
			Score:             r.QualityScore,
			QualityClass:      r.QualityClass,
			QualityClassIndex: r.QualityClassIndex,
			IsAcceptable:      r.IsAcceptable,
			Confidence:        r.Confidence,
		},
		Issues:           r.Issues,
		Recommendations:  r.Recommendations,
		ProcessingTimeMS: r.ProcessingTimeMS,
	}
	if resp.Issues == nil {
		resp.Issues = []quality.Issue{}
	}
	if resp.Recommendations == nil {
		resp.Recommendations = []string{}
	}
	return resp
}

// summarize counts acceptance and the class distribution over all tiers.
func summarize(results []DocumentAnalysisResponse) BatchSummary {
	s := BatchSummary{QualityDistribution: make(map[string]int, degrade.NumTiers)}
	for _, name := range degrade.TierNames() {
		s.QualityDistribution[name] = 0
	}
	if len(results) == 0 {
		return s
	}

	var total float64
	for i := range results {
		q := results[i].Quality
		if q.IsAcceptable {
			s.Acceptable++
		}
		total += q.Score
		s.QualityDistribution[q.QualityClass]++
	}
	s.Rejected = len(results) - s.Acceptable
	avg := total / float64(len(results))
	s.AverageQualityScore = math.Round(avg*averageScorePrecision) / averageScorePrecision
	return s
}

// analysisOptions reads threshold and include_issues, defaulting to the
// configured values.
func (c *Controller) analysisOptions(ctx echo.Context) (quality.Options, error) {
	threshold, err := floatParam(ctx, "threshold", c.Settings.Quality.Threshold)
	if err != nil {
		return quality.Options{}, err
	}
	includeIssues, err := boolParam(ctx, "include_issues", c.Settings.Quality.IncludeIssues)
	if err != nil {
		return quality.Options{}, err
	}
	return quality.Options{Threshold: threshold, IncludeIssues: includeIssues}, nil
}

// AnalyzeDocument handles POST /analyze.
func (c *Controller) AnalyzeDocument(ctx echo.Context) error {
	if err := c.requireQuality(); err != nil {
		return err
	}

	requestID := assignRequestID(ctx, "req")
	timestamp := time.Now().UTC()

	opts, err := c.analysisOptions(ctx)
	if err != nil {
		return err
	}
	file, err := formFile(ctx, "file")
	if err != nil {
		return err
	}
	if !file.isImage() {
		c.recordUploads(0, 1)
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("Invalid file type: %s. Expected image file.", file.ContentType))
	}
	c.recordUploads(1, 0)

	result, err := c.Predictor.PredictEncoded(ctx.Request().Context(), file.Data, opts)
	if err != nil {
		return serviceError(err, "Error processing document")
	}
	c.Predictor.Observe(result)

	resp := newAnalysisResponse(requestID, timestamp, result)
	c.results.Set(requestID, resp, cache.DefaultExpiration)

	c.logger.Info("document analyzed",
		logger.String("request_id", requestID),
		logger.String("quality_class", result.QualityClass),
		logger.Float64("quality_score", result.QualityScore),
		logger.Bool("acceptable", result.IsAcceptable))
	return ctx.JSON(http.StatusOK, resp)
}

// AnalyzeBatch handles POST /analyze/batch. Parts without an image content
// type are skipped; the remaining images run as one all-or-nothing batch.
func (c *Controller) AnalyzeBatch(ctx echo.Context) error {
	if err := c.requireQuality(); err != nil {
		return err
	}

	batchID := assignRequestID(ctx, "batch")
	timestamp := time.Now().UTC()
	start := time.Now()

	opts, err := c.analysisOptions(ctx)
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

	images := make([]image.Image, 0, len(headers))
	skipped := 0
	for _, fh := range headers {
		file, err := readUpload(fh)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid upload: "+err.Error())
		}
		if !file.isImage() {
			skipped++
			c.logger.Warn("skipping non-image file",
				logger.String("request_id", batchID),
				logger.String("filename", file.Name),
				logger.String("content_type", file.ContentType))
			continue
		}
		img, err := preprocess.DecodeBytes(file.Data)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest,
				fmt.Sprintf("Invalid image file %s: %v", file.Name, err)).SetInternal(err)
		}
		images = append(images, img)
	}
	c.recordUploads(len(images), skipped)
	if len(images) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "No valid image files found")
	}

	predictions, err := c.Predictor.PredictBatch(ctx.Request().Context(), images, opts)
	if err != nil {
		return serviceError(err, "Error processing batch")
	}
	c.Predictor.Observe(predictions...)

	results := make([]DocumentAnalysisResponse, len(predictions))
	for i, p := range predictions {
		itemID := fmt.Sprintf("%s_%d", batchID, i)
		results[i] = newAnalysisResponse(itemID, timestamp, p)
		// individual times are not tracked in a batch
		results[i].ProcessingTimeMS = 0
		c.results.Set(itemID, results[i], cache.DefaultExpiration)
	}

	resp := BatchAnalysisResponse{
		RequestID:             batchID,
		Timestamp:             timestamp,
		TotalDocuments:        len(results),
		Results:               results,
		Summary:               summarize(results),
		TotalProcessingTimeMS: float64(time.Since(start).Microseconds()) / 1000,
	}
	c.results.Set(batchID, resp, cache.DefaultExpiration)

	c.logger.Info("batch analyzed",
		logger.String("request_id", batchID),
		logger.Int("documents", len(results)),
		logger.Int("skipped", skipped),
		logger.Int("acceptable", resp.Summary.Acceptable))
	return ctx.JSON(http.StatusOK, resp)
}

// GetAnalysis handles GET /analyze/:request_id. Results stay available for
// the configured result cache TTL.
func (c *Controller) GetAnalysis(ctx echo.Context) error {
	id := ctx.Param("request_id")
	result, found := c.results.Get(id)
	if c.metrics != nil {
		c.metrics.HTTP.RecordCacheLookup(found)
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "Result not found: "+id)
	}
	return ctx.JSON(http.StatusOK, result)
}

func (c *Controller) recordUploads(accepted, skipped int) {
	if c.metrics != nil {
		c.metrics.HTTP.RecordUploads(accepted, skipped)
	}
}
