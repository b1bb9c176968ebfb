package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/Brownie44l1/agri-ml/internal/apierror"
	"github.com/Brownie44l1/agri-ml/internal/config"
	"github.com/Brownie44l1/agri-ml/internal/disease"
	"github.com/Brownie44l1/agri-ml/internal/handlers"
	"github.com/Brownie44l1/agri-ml/internal/metrics"
	"github.com/Brownie44l1/agri-ml/internal/middleware"
	"github.com/Brownie44l1/agri-ml/internal/soil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:            0,
			BodyLimit:       "1K",
			AllowedOrigins:  []string{"http://localhost:3000"},
			ShutdownTimeout: 2 * time.Second,
			MaxImagePixels:  1_000_000,
		},
		Auth:      config.AuthConfig{InternalKey: "k"},
		RateLimit: config.RateLimitConfig{PerMinute: 60, Burst: 2},
		Soil:      config.SoilConfig{SuitabilityThreshold: 0.6},
	}
}

func newServer(t *testing.T, cfg *config.Config) (*Server, *metrics.Metrics) {
	t.Helper()
	table, err := disease.DefaultTable()
	require.NoError(t, err)
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	h := handlers.NewHandler(handlers.Options{
		Treatments: table,
		Engine:     soil.NewEngine(cfg.Soil.SuitabilityThreshold),
		Metrics:    m,
		Logger:     zap.NewNop(),
	})
	return New(cfg, h, m, zap.NewNop()), m
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestRequestIDAndMetrics(t *testing.T) {
	s, m := newServer(t, testConfig())

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestTotal.WithLabelValues("/health", http.MethodGet, "200")))

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/nowhere", http.NoBody))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body apierror.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, apierror.CodeNotFound, body.Code)
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newServer(t, testConfig())

	req := httptest.NewRequest(http.MethodOptions, "/predict/soil", http.NoBody)
	req.Header.Set(echo.HeaderOrigin, "http://localhost:3000")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	rec := serve(s, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Contains(t, rec.Header().Get(echo.HeaderAccessControlAllowHeaders), middleware.InternalKeyHeader)
}

func TestBodyLimit(t *testing.T) {
	s, _ := newServer(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/predict/soil", strings.NewReader(strings.Repeat("x", 4096)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(middleware.InternalKeyHeader, "k")
	rec := serve(s, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), apierror.CodeTooLarge)
}

func TestRateLimitPerRoute(t *testing.T) {
	s, _ := newServer(t, testConfig())

	post := func(path string) int {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader("{}"))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set(middleware.InternalKeyHeader, "k")
		req.RemoteAddr = "203.0.113.7:5000"
		return serve(s, req).Code
	}

	// Burst of two; no models are loaded so admitted requests get 503.
	assert.Equal(t, http.StatusServiceUnavailable, post("/predict/soil"))
	assert.Equal(t, http.StatusServiceUnavailable, post("/predict/soil"))
	assert.Equal(t, http.StatusTooManyRequests, post("/predict/soil"))

	// The pest route has its own budget.
	assert.Equal(t, http.StatusServiceUnavailable, post("/predict/pest"))
}

func TestRateLimitIgnoresForwardedHeaders(t *testing.T) {
	s, _ := newServer(t, testConfig())

	codes := map[int]int{}
	for i := range 10 {
		req := httptest.NewRequest(http.MethodPost, "/predict/soil", strings.NewReader("{}"))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set(middleware.InternalKeyHeader, "k")
		req.Header.Set(echo.HeaderXForwardedFor, fmt.Sprintf("198.51.100.%d", i))
		req.Header.Set(echo.HeaderXRealIP, fmt.Sprintf("198.51.100.%d", i))
		req.RemoteAddr = "203.0.113.7:5000"
		codes[serve(s, req).Code]++
	}

	assert.Equal(t, 2, codes[http.StatusServiceUnavailable])
	assert.Equal(t, 8, codes[http.StatusTooManyRequests])
}

func TestRateLimitTrustsProxyWhenConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.Server.TrustProxy = true
	s, _ := newServer(t, cfg)

	for i := range 4 {
		req := httptest.NewRequest(http.MethodPost, "/predict/soil", strings.NewReader("{}"))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set(middleware.InternalKeyHeader, "k")
		req.Header.Set(echo.HeaderXForwardedFor, fmt.Sprintf("198.51.100.%d", i))
		req.RemoteAddr = "127.0.0.1:5000"
		assert.Equal(t, http.StatusServiceUnavailable, serve(s, req).Code)
	}
}

func TestRejectedKeysDoNotSpendBudget(t *testing.T) {
	s, _ := newServer(t, testConfig())

	post := func(key string) int {
		req := httptest.NewRequest(http.MethodPost, "/predict/soil", strings.NewReader("{}"))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set(middleware.InternalKeyHeader, key)
		req.RemoteAddr = "203.0.113.9:5000"
		return serve(s, req).Code
	}

	for range 5 {
		assert.Equal(t, http.StatusUnauthorized, post("wrong"))
	}
	assert.Equal(t, http.StatusServiceUnavailable, post("k"))
	assert.Equal(t, http.StatusServiceUnavailable, post("k"))
	assert.Equal(t, http.StatusTooManyRequests, post("k"))
}

func TestRunShutsDownOnCancel(t *testing.T) {
	s, _ := newServer(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Echo().ListenerAddr() != nil },
		2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + s.Echo().ListenerAddr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	http.DefaultClient.CloseIdleConnections()
}
