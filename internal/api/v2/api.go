// Package api implements the JSON endpoints of the docquality service:
// quality analysis, document classification and customer templates.
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/tphakala/docquality/internal/classify"
	"github.com/tphakala/docquality/internal/conf"
	"github.com/tphakala/docquality/internal/logger"
	"github.com/tphakala/docquality/internal/observability"
	"github.com/tphakala/docquality/internal/quality"
)

// Limits and cache settings.
const (
	defaultResultTTL      = 10 * time.Minute
	resultCleanupPeriod   = time.Minute
	maxBatchFiles         = 100
	requestIDHexLength    = 12
	averageScorePrecision = 1000
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the v2 API logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("api.v2")
	})
	return serviceLogger
}

// Controller holds the services the handlers need. The predictor and the
// classifier may be nil when their model failed to load; the affected
// endpoints then answer 503.
type Controller struct {
	Echo       *echo.Echo
	Settings   *conf.Settings
	Predictor  *quality.Predictor
	Classifier *classify.Service
	metrics    *observability.Metrics
	results    *cache.Cache
	logger     logger.Logger
	startTime  time.Time
}

// New creates the controller and registers its routes on e.
func New(e *echo.Echo, settings *conf.Settings, predictor *quality.Predictor,
	classifier *classify.Service, metrics *observability.Metrics) *Controller {
	ttl := settings.WebServer.ResultCache.TTL
	if ttl <= 0 {
		ttl = defaultResultTTL
	}

	c := &Controller{
		Echo:       e,
		Settings:   settings,
		Predictor:  predictor,
		Classifier: classifier,
		metrics:    metrics,
		results:    cache.New(ttl, resultCleanupPeriod),
		logger:     GetLogger(),
		startTime:  time.Now(),
	}
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	e := c.Echo

	e.GET("/", c.Root)
	e.GET("/health", c.HealthCheck)
	e.GET("/metrics", c.GetMetrics)
	e.POST("/metrics/reset", c.ResetMetrics)
	if c.metrics != nil {
		e.GET("/metrics/prometheus", echo.WrapHandler(c.metrics.Handler()))
	}

	e.POST("/analyze", c.AnalyzeDocument)
	e.POST("/analyze/batch", c.AnalyzeBatch)
	e.GET("/analyze/:request_id", c.GetAnalysis)

	e.POST("/classify", c.ClassifyDocument)
	e.POST("/classify/batch", c.ClassifyBatch)
	e.GET("/classify/document-types", c.GetDocumentTypes)
	e.GET("/classify/metrics", c.GetClassificationMetrics)

	e.POST("/templates/learn", c.LearnTemplate)
	e.GET("/templates/customer/:customer_id", c.GetCustomerTemplates)
	e.GET("/templates/customers", c.GetCustomers)
}

// Shutdown drops cached results.
func (c *Controller) Shutdown() {
	c.results.Flush()
	c.logger.Debug("result cache flushed")
}

// requireQuality answers 503 when no quality model is loaded.
func (c *Controller) requireQuality() error {
	if c.Predictor == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Predictor not initialized")
	}
	return nil
}

// requireClassifier answers 503 when no classifier is loaded.
func (c *Controller) requireClassifier() error {
	if c.Classifier == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Classification service not initialized")
	}
	return nil
}
