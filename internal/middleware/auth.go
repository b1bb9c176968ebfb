// Package middleware holds the echo middleware in front of the prediction
// routes.
package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Brownie44l1/agri-ml/internal/apierror"
)

// InternalKeyHeader carries the shared secret.
const InternalKeyHeader = "X-Internal-Key"

var errUnauthorized = apierror.New(http.StatusUnauthorized, apierror.CodeUnauthorized, "Invalid or missing internal API key")

// InternalKey rejects requests whose X-Internal-Key header does not equal
// key. Missing and wrong keys get the same response.
func InternalKey(key string, logger *zap.Logger) echo.MiddlewareFunc {
	want := sha256.Sum256([]byte(key))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			provided := c.Request().Header.Get(InternalKeyHeader)
			got := sha256.Sum256([]byte(provided))

			if key == "" || provided == "" || subtle.ConstantTimeCompare(want[:], got[:]) != 1 {
				logger.Warn("Rejected request with invalid internal key",
					zap.String("path", c.Request().URL.Path),
					zap.String("ip", c.RealIP()))
				return errUnauthorized
			}
			return next(c)
		}
	}
}
