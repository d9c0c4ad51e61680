package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/docquality/internal/observability/metrics"
)

// NewMetrics records every request in the HTTP collectors. Paths are route
// patterns so ids do not explode label cardinality.
func NewMetrics(m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			m.RequestStarted()
			defer m.RequestFinished()

			start := time.Now()
			err := next(c)

			req := c.Request()
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
				m.RecordError(req.Method, path, err)
			}
			m.RecordRequest(req.Method, path, status, time.Since(start).Seconds(), c.Response().Size)
			return err
		}
	}
}
