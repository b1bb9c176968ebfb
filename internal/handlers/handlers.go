package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Brownie44l1/agri-ml/internal/apierror"
	"github.com/Brownie44l1/agri-ml/internal/disease"
	"github.com/Brownie44l1/agri-ml/internal/mathutil"
	"github.com/Brownie44l1/agri-ml/internal/metrics"
	"github.com/Brownie44l1/agri-ml/internal/model"
	"github.com/Brownie44l1/agri-ml/internal/soil"
	"github.com/Brownie44l1/agri-ml/internal/validation"
)

const (
	serviceName = "Agri Sathi ML Service"
	// Version is reported by / and /health.
	Version = "1.0.0"

	pestModelName = "pest"
	soilModelName = "soil"
)

// Options wires a Handler. Pest and Soil may be nil when a model failed to
// load; their routes then answer 503.
type Options struct {
	Pest       model.Classifier
	Soil       model.Classifier
	Treatments *disease.Table
	Engine     soil.Engine
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
	// MaxImagePixels caps decoded uploads; zero uses imaging.DefaultMaxPixels.
	MaxImagePixels int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Handler serves the prediction API.
type Handler struct {
	pest       model.Classifier
	soil       model.Classifier
	treatments *disease.Table
	engine     soil.Engine
	metrics    *metrics.Metrics
	logger     *zap.Logger
	validate   *validation.Validator
	now        func() time.Time
	started    time.Time

	maxImagePixels int
}

func NewHandler(opts Options) *Handler {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		pest:       opts.Pest,
		soil:       opts.Soil,
		treatments: opts.Treatments,
		engine:     opts.Engine,
		metrics:    opts.Metrics,
		logger:     logger,
		validate:   validation.New(),
		now:        now,
		started:    now(),

		maxImagePixels: opts.MaxImagePixels,
	}
}

// RegisterRoutes mounts the API on e. protected runs in front of the
// prediction routes; each prediction route then gets its own limiter from
// newLimiter, so rejected keys never spend a client's budget.
func (h *Handler) RegisterRoutes(e *echo.Echo, protected echo.MiddlewareFunc, newLimiter func() echo.MiddlewareFunc) {
	if e.Validator == nil {
		e.Validator = h.validate
	}

	e.GET("/", h.Root)
	e.GET("/health", h.Health)

	e.POST("/predict/pest", h.PredictPest, protected, newLimiter())
	e.GET("/predict/pest", h.PestUsage)

	e.POST("/predict/soil", h.PredictSoil, protected, newLimiter())
	e.GET("/predict/soil", h.SoilUsage)

	if h.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.metrics.Handler()), protected)
	}
}

type endpointInfo struct {
	Method         string `json:"method"`
	Path           string `json:"path"`
	Description    string `json:"description"`
	Authentication string `json:"authentication"`
	RequestBody    string `json:"request_body,omitempty"`
}

// APIInfoResponse describes the service at /.
type APIInfoResponse struct {
	Message     string                  `json:"message"`
	Version     string                  `json:"version"`
	Description string                  `json:"description"`
	Endpoints   map[string]endpointInfo `json:"endpoints"`
}

// Root returns API documentation.
func (h *Handler) Root(c echo.Context) error {
	return c.JSON(http.StatusOK, APIInfoResponse{
		Message:     serviceName + " - Agricultural Intelligence API",
		Version:     Version,
		Description: "Machine learning microservice for pest detection and crop recommendations",
		Endpoints: map[string]endpointInfo{
			"health": {
				Method:         http.MethodGet,
				Path:           "/health",
				Description:    "Health check endpoint returning service and model status",
				Authentication: "None",
			},
			"pest_detection": {
				Method:         http.MethodPost,
				Path:           "/predict/pest",
				Description:    "Run pest/disease detection on uploaded image",
				Authentication: "X-Internal-Key header required",
				RequestBody:    "multipart/form-data with image file",
			},
			"soil_recommendation": {
				Method:         http.MethodPost,
				Path:           "/predict/soil",
				Description:    "Get crop recommendations based on soil and weather data",
				Authentication: "X-Internal-Key header required",
				RequestBody:    "JSON with soil parameters (nitrogen, phosphorus, potassium, temperature, humidity, ph, rainfall, selected_crop)",
			},
		},
	})
}

// HealthResponse reports service and model status.
type HealthResponse struct {
	Status        string              `json:"status"`
	PestModel     model.StatsSnapshot `json:"pest_model"`
	SoilModel     model.StatsSnapshot `json:"soil_model"`
	UptimeSeconds float64             `json:"uptime_seconds"`
	Version       string              `json:"version"`
}

func snapshot(c model.Classifier) model.StatsSnapshot {
	if c == nil {
		return model.StatsSnapshot{IsLoaded: false}
	}
	return c.Stats()
}

// Health reports "healthy" when both models are loaded and "degraded"
// otherwise.
func (h *Handler) Health(c echo.Context) error {
	pest, crop := snapshot(h.pest), snapshot(h.soil)

	status := "healthy"
	if !pest.IsLoaded || !crop.IsLoaded {
		status = "degraded"
	}

	return c.JSON(http.StatusOK, HealthResponse{
		Status:        status,
		PestModel:     pest,
		SoilModel:     crop,
		UptimeSeconds: mathutil.Round(h.now().Sub(h.started).Seconds(), 2),
		Version:       Version,
	})
}

func (h *Handler) elapsedMS(start time.Time) float64 {
	return mathutil.Round(float64(h.now().Sub(start).Microseconds())/1000, 2)
}

func unavailable(name string) error {
	return apierror.New(http.StatusServiceUnavailable, apierror.CodeUnavailable, name+" model not available")
}
