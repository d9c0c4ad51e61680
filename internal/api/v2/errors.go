package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tphakala/docquality/internal/errors"
	"github.com/tphakala/docquality/internal/logger"
)

// requestIDKey is the echo context key of the current request id.
const requestIDKey = "request_id"

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	RequestID *string   `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewErrorResponse builds an error body. The error name is the message text
// before the first colon, or HTTPError when there is none.
func NewErrorResponse(message, requestID string) ErrorResponse {
	name := "HTTPError"
	if before, _, found := strings.Cut(message, ":"); found {
		name = before
	}
	resp := ErrorResponse{
		Error:     name,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	if requestID != "" {
		resp.RequestID = &requestID
	}
	return resp
}

// newRequestID returns prefix_ followed by 12 random hex digits.
func newRequestID(prefix string) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "_" + hex[:requestIDHexLength]
}

// assignRequestID creates a request id, stores it for the error handler and
// attaches it to the request context as the log trace id.
func assignRequestID(ctx echo.Context, prefix string) string {
	id := newRequestID(prefix)
	ctx.Set(requestIDKey, id)
	req := ctx.Request()
	ctx.SetRequest(req.WithContext(logger.WithTraceID(req.Context(), id)))
	return id
}

// HTTPErrorHandler renders errors returned by handlers and middleware.
func (c *Controller) HTTPErrorHandler(err error, ctx echo.Context) {
	if ctx.Response().Committed {
		return
	}

	requestID, _ := ctx.Get(requestIDKey).(string)

	var (
		status int
		body   ErrorResponse
	)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		body = NewErrorResponse(fmt.Sprint(he.Message), requestID)
		if he.Internal != nil {
			err = he.Internal
		}
	} else {
		status = statusForError(err)
		body = NewErrorResponse(err.Error(), requestID)
		if status == http.StatusInternalServerError {
			body.Error = "InternalServerError"
		}
	}

	log := c.logger.With(
		logger.String("method", ctx.Request().Method),
		logger.String("path", ctx.Path()),
		logger.Int("status", status))
	if status >= http.StatusInternalServerError {
		log.Error("request failed", logger.Error(err))
	} else {
		log.Debug("request rejected", logger.String("message", body.Message))
	}

	if ctx.Request().Method == http.MethodHead {
		err = ctx.NoContent(status)
	} else {
		err = ctx.JSON(status, body)
	}
	if err != nil {
		c.logger.Warn("failed to write error response", logger.Error(err))
	}
}

// statusForError maps an error category to an HTTP status.
func statusForError(err error) int {
	switch {
	case errors.IsValidation(err), errors.IsCategory(err, errors.CategoryImageDecode):
		return http.StatusBadRequest
	case errors.IsUnavailable(err):
		return http.StatusServiceUnavailable
	case errors.IsNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// serviceError turns a service failure into an HTTP error. Client mistakes
// keep their own message; everything else is prefixed with operation.
func serviceError(err error, operation string) *echo.HTTPError {
	status := statusForError(err)
	var message string
	switch {
	case errors.IsCategory(err, errors.CategoryImageDecode):
		message = "Invalid image file: " + err.Error()
	case status == http.StatusInternalServerError:
		message = operation + ": " + err.Error()
	default:
		message = err.Error()
	}
	return echo.NewHTTPError(status, message).SetInternal(err)
}
