// Package apierror defines the JSON error envelope returned by every route.
package apierror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Error codes.
const (
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeRateLimited      = "RATE_LIMITED"
	CodeBadRequest       = "BAD_REQUEST"
	CodeValidation       = "VALIDATION_ERROR"
	CodeUnavailable      = "MODEL_UNAVAILABLE"
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeTooLarge         = "PAYLOAD_TOO_LARGE"
	CodeInternal         = "INTERNAL_ERROR"
)

const internalMessage = "An internal error occurred. Please try again later."

// Response is the body written for every error.
type Response struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// Error is an error that knows how it should be rendered.
type Error struct {
	Status  int
	Code    string
	Message string
	Details any
	Err     error
}

// New creates an Error.
func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetails attaches structured details to a copy of e.
func (e *Error) WithDetails(details any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// Wrap records the underlying cause on a copy of e. The cause is logged but
// never sent to the client.
func (e *Error) Wrap(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return CodeBadRequest
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusMethodNotAllowed:
		return CodeMethodNotAllowed
	case http.StatusRequestEntityTooLarge:
		return CodeTooLarge
	case http.StatusTooManyRequests:
		return CodeRateLimited
	case http.StatusServiceUnavailable:
		return CodeUnavailable
	}
	return CodeInternal
}

// resolve maps any error to its rendered status and body.
func resolve(err error) (int, Response, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status, Response{Error: apiErr.Message, Code: apiErr.Code, Details: apiErr.Details}, apiErr.Status >= 500
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		msg := http.StatusText(httpErr.Code)
		if s, ok := httpErr.Message.(string); ok && s != "" {
			msg = s
		}
		if httpErr.Code >= 500 {
			msg = internalMessage
		}
		return httpErr.Code, Response{Error: msg, Code: codeForStatus(httpErr.Code)}, httpErr.Code >= 500
	}

	return http.StatusInternalServerError, Response{Error: internalMessage, Code: CodeInternal}, true
}

// Handler returns an echo error handler that renders the envelope and logs
// server-side failures.
func Handler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body, serverSide := resolve(err)
		if serverSide {
			logger.Error("Request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.Int("status", status),
				zap.Error(err))
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, body)
		}
		if writeErr != nil {
			logger.Warn("Failed to write error response", zap.Error(writeErr))
		}
	}
}
