package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/Brownie44l1/agri-ml/internal/apierror"
)

const limiterIdleExpiry = 3 * time.Minute

// RateLimit allows perMinute requests per client IP with the given burst.
// Each call builds its own store, so every route using a separate instance is
// limited independently.
func RateLimit(perMinute float64, burst int) echo.MiddlewareFunc {
	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Skipper: echomw.DefaultSkipper,
		Store: echomw.NewRateLimiterMemoryStoreWithConfig(
			echomw.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(perMinute / 60),
				Burst:     burst,
				ExpiresIn: limiterIdleExpiry,
			},
		),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return apierror.New(http.StatusForbidden, apierror.CodeBadRequest, "Unable to identify client").Wrap(err)
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return apierror.New(http.StatusTooManyRequests, apierror.CodeRateLimited, "Rate limit exceeded, please retry later")
		},
	})
}
