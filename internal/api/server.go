package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/tphakala/docquality/internal/api/middleware"
	v2 "github.com/tphakala/docquality/internal/api/v2"
	"github.com/tphakala/docquality/internal/classify"
	"github.com/tphakala/docquality/internal/conf"
	"github.com/tphakala/docquality/internal/logger"
	"github.com/tphakala/docquality/internal/observability"
	"github.com/tphakala/docquality/internal/quality"
)

// Server is the HTTP server of the docquality service. It owns the Echo
// instance, the middleware stack and the API controller.
type Server struct {
	echo     *echo.Echo
	config   *Config
	settings *conf.Settings
	log      logger.Logger

	// Dependencies
	predictor  *quality.Predictor
	classifier *classify.Service
	metrics    *observability.Metrics

	apiController *v2.Controller
	startTime     time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithPredictor sets the quality predictor.
func WithPredictor(p *quality.Predictor) ServerOption {
	return func(s *Server) { s.predictor = p }
}

// WithClassifier sets the classification service.
func WithClassifier(svc *classify.Service) ServerOption {
	return func(s *Server) { s.classifier = svc }
}

// WithMetrics sets the Prometheus metrics.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// New creates a new HTTP server with the given settings and options.
func New(settings *conf.Settings, opts ...ServerOption) (*Server, error) {
	config := ConfigFromSettings(settings)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	s := &Server{
		config:    config,
		settings:  settings,
		log:       GetLogger(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Debug = config.Debug

	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	s.log.Info("HTTP server initialized",
		logger.String("address", config.Address()),
		logger.Bool("quality_model", s.predictor != nil),
		logger.Bool("classifier", s.classifier != nil),
		logger.Bool("rate_limit", config.RateLimit),
		logger.Bool("debug", config.Debug))

	return s, nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	// Recovery middleware - should be first
	s.echo.Use(echomw.Recover())

	s.echo.Use(mw.NewRequestLoggerWithSkipper(s.log, skipProbes))

	if s.metrics != nil {
		s.echo.Use(mw.NewMetrics(s.metrics.HTTP))
	}

	securityConfig := mw.DefaultSecurityConfig()
	securityConfig.AllowedOrigins = s.config.AllowedOrigins
	s.echo.Use(mw.NewCORS(securityConfig))
	s.echo.Use(mw.NewSecureHeaders())

	if s.config.RateLimit {
		s.echo.Use(mw.NewRateLimiter(s.config.RateLimitRPS, s.config.RateLimitBurst, skipProbes,
			func(c echo.Context, identifier string) {
				if s.metrics != nil {
					s.metrics.HTTP.RecordRateLimited(c.Path())
				}
				s.log.Debug("rate limit exceeded",
					logger.String("client", identifier),
					logger.String("path", c.Path()))
			}))
	}

	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
}

// skipProbes excludes health checks and scrapes from logging and limiting.
func skipProbes(c echo.Context) bool {
	switch c.Path() {
	case "/health", "/metrics/prometheus":
		return true
	}
	return false
}

// setupRoutes registers the API controller and its error handler.
func (s *Server) setupRoutes() {
	s.apiController = v2.New(s.echo, s.settings, s.predictor, s.classifier, s.metrics)
	s.echo.HTTPErrorHandler = s.apiController.HTTPErrorHandler
}

// Run serves HTTP until ctx is cancelled or the listener fails, then shuts
// the server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting HTTP server", logger.String("address", s.config.Address()))
		if err := s.echo.Start(s.config.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info("shutdown signal received, initiating graceful shutdown")
	}
	return s.Shutdown()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if s.apiController != nil {
		s.apiController.Shutdown()
	}

	if err := s.echo.Shutdown(ctx); err != nil {
		s.log.Error("error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}

	s.log.Info("server shutdown complete",
		logger.Duration("uptime", time.Since(s.startTime)))
	return nil
}

// APIController returns the API controller.
func (s *Server) APIController() *v2.Controller {
	return s.apiController
}

// Echo returns the underlying Echo instance.
// This is useful for testing or advanced configuration.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
