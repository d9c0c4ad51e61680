package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// limiterExpiry drops idle client limiters.
const limiterExpiry = 3 * time.Minute

// DenyFunc is called for every rejected request, e.g. to count it.
type DenyFunc func(c echo.Context, identifier string)

// NewRateLimiter limits each client IP to rps sustained requests with the
// given burst. Requests matched by skipper are never limited.
func NewRateLimiter(rps float64, burst int, skipper middleware.Skipper, onDeny DenyFunc) echo.MiddlewareFunc {
	if skipper == nil {
		skipper = middleware.DefaultSkipper
	}
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: skipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(rps),
				Burst:     burst,
				ExpiresIn: limiterExpiry,
			},
		),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "Unable to identify client")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			if onDeny != nil {
				onDeny(c, identifier)
			}
			return echo.NewHTTPError(http.StatusTooManyRequests, "Rate limit exceeded: too many requests, please slow down")
		},
	})
}
