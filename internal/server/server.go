// Package server assembles the echo instance and runs it until shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/Brownie44l1/agri-ml/internal/apierror"
	"github.com/Brownie44l1/agri-ml/internal/config"
	"github.com/Brownie44l1/agri-ml/internal/handlers"
	"github.com/Brownie44l1/agri-ml/internal/metrics"
	"github.com/Brownie44l1/agri-ml/internal/middleware"
)

// Server is the HTTP front of the service.
type Server struct {
	echo   *echo.Echo
	config *config.Config
	logger *zap.Logger
}

// New builds the echo instance with the global middleware chain and mounts
// the handler's routes.
func New(cfg *config.Config, h *handlers.Handler, m *metrics.Metrics, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apierror.Handler(logger)

	// Rate limits key on RealIP, so forwarding headers are only honoured
	// when the service is configured to sit behind a proxy.
	if cfg.Server.TrustProxy {
		e.IPExtractor = echo.ExtractIPFromXFFHeader()
	} else {
		e.IPExtractor = echo.ExtractIPDirect()
	}

	e.Use(echomw.RecoverWithConfig(echomw.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error("Recovered from panic",
				zap.String("path", c.Request().URL.Path),
				zap.Error(err),
				zap.ByteString("stack", stack))
			return err
		},
	}))
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLogger(logger, m))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.Server.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderContentType, middleware.InternalKeyHeader},
	}))
	if cfg.Server.BodyLimit != "" {
		e.Use(echomw.BodyLimit(cfg.Server.BodyLimit))
	}

	h.RegisterRoutes(e,
		middleware.InternalKey(cfg.Auth.InternalKey, logger),
		func() echo.MiddlewareFunc {
			return middleware.RateLimit(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)
		})

	return &Server{echo: e, config: cfg, logger: logger}
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Run serves until ctx is cancelled, then drains in-flight requests within
// the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	addr := s.config.Address()
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("Starting HTTP server", zap.String("address", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutdown signal received, draining requests")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	if err := <-errCh; err != nil {
		return err
	}

	s.logger.Info("Server shutdown complete")
	return nil
}
