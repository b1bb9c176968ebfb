package handlers

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Brownie44l1/agri-ml/internal/apierror"
	"github.com/Brownie44l1/agri-ml/internal/metrics"
	"github.com/Brownie44l1/agri-ml/internal/soil"
)

// SoilRequest is the body of POST /predict/soil. Pointers tell missing
// fields apart from zeros.
type SoilRequest struct {
	Nitrogen     *float64 `json:"nitrogen" validate:"required,gte=0,lte=200"`
	Phosphorus   *float64 `json:"phosphorus" validate:"required,gte=0,lte=200"`
	Potassium    *float64 `json:"potassium" validate:"required,gte=0,lte=200"`
	Temperature  *float64 `json:"temperature" validate:"required,gte=-10,lte=60"`
	Humidity     *float64 `json:"humidity" validate:"required,gte=0,lte=100"`
	PH           *float64 `json:"ph" validate:"required,gte=0,lte=14"`
	Rainfall     *float64 `json:"rainfall" validate:"required,gte=0,lte=1000"`
	SelectedCrop *string  `json:"selected_crop"`
}

// SoilResponse is a recommendation plus timing.
type SoilResponse struct {
	soil.Recommendation
	InferenceMS float64 `json:"inference_ms"`
}

var (
	errBadJSON = apierror.New(http.StatusBadRequest, apierror.CodeBadRequest,
		"Invalid JSON body")
	errInvalid = apierror.New(http.StatusUnprocessableEntity, apierror.CodeValidation,
		"Invalid soil parameters")
	errSoilFailed = apierror.New(http.StatusInternalServerError, apierror.CodeInternal,
		"Failed to process soil data")
)

// Metrics converts a validated request. It must only be called after the
// request passed validation.
func (r SoilRequest) Metrics() soil.Metrics {
	return soil.Metrics{
		Nitrogen:    *r.Nitrogen,
		Phosphorus:  *r.Phosphorus,
		Potassium:   *r.Potassium,
		Temperature: *r.Temperature,
		Humidity:    *r.Humidity,
		PH:          *r.PH,
		Rainfall:    *r.Rainfall,
	}
}

// fieldErrors maps validator failures onto the response detail shape.
func fieldErrors(verrs validator.ValidationErrors) []soil.FieldError {
	out := make([]soil.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fieldErr := soil.FieldError{Field: fe.Field()}
		if v, ok := fe.Value().(float64); ok {
			fieldErr.Value = v
		}

		switch b, ok := soil.BoundFor(fe.Field()); {
		case fe.Tag() == "required":
			fieldErr.Message = fe.Field() + " is required"
		case ok:
			fieldErr.Message = b.Describe()
		default:
			fieldErr.Message = fe.Error()
		}
		out = append(out, fieldErr)
	}
	return out
}

// PredictSoil recommends crops for a soil and weather reading.
func (h *Handler) PredictSoil(c echo.Context) error {
	if h.soil == nil {
		return unavailable("Soil recommendation")
	}

	var req SoilRequest
	if err := c.Bind(&req); err != nil {
		h.metrics.ObservePrediction(soilModelName, metrics.OutcomeRejected, 0)
		return errBadJSON.Wrap(err)
	}

	if err := c.Validate(&req); err != nil {
		h.metrics.ObservePrediction(soilModelName, metrics.OutcomeRejected, 0)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return errInvalid.WithDetails(fieldErrors(verrs)).Wrap(err)
		}
		return errSoilFailed.Wrap(err)
	}

	m := req.Metrics()
	if err := m.Validate(); err != nil {
		h.metrics.ObservePrediction(soilModelName, metrics.OutcomeRejected, 0)
		var verr *soil.ValidationError
		if errors.As(err, &verr) {
			return errInvalid.WithDetails(verr.Fields).Wrap(err)
		}
		return errInvalid.Wrap(err)
	}

	selected := ""
	if req.SelectedCrop != nil {
		selected = *req.SelectedCrop
	}

	start := h.now()
	probs, err := h.soil.Predict(c.Request().Context(), m.Features())
	if err != nil {
		h.metrics.ObservePrediction(soilModelName, metrics.OutcomeError, 0)
		return errSoilFailed.Wrap(err)
	}

	rec, err := h.engine.Recommend(probs, h.soil.Meta().Classes, m, selected)
	if err != nil {
		h.metrics.ObservePrediction(soilModelName, metrics.OutcomeError, 0)
		return errSoilFailed.Wrap(err)
	}

	elapsed := h.now().Sub(start)
	h.metrics.ObservePrediction(soilModelName, metrics.OutcomeSuccess, elapsed)

	fields := []zap.Field{
		zap.String("soil_health", string(rec.CurrentSoilHealth)),
		zap.String("weather_risk", string(rec.WeatherRisk)),
		zap.Duration("elapsed", elapsed),
	}
	if len(rec.RecommendedCrops) > 0 {
		fields = append(fields, zap.String("top_crop", rec.RecommendedCrops[0].Crop))
	}
	h.logger.Info("Soil prediction", fields...)

	return c.JSON(http.StatusOK, SoilResponse{
		Recommendation: rec,
		InferenceMS:    h.elapsedMS(start),
	})
}

// SoilUsage answers GET /predict/soil with usage instructions.
func (h *Handler) SoilUsage(c echo.Context) error {
	required := make(map[string]string, len(soil.Bounds))
	for _, b := range soil.Bounds {
		desc := b.Field
		if b.Unit != "" {
			desc += " (" + b.Unit + ")"
		}
		required[b.Field] = desc
	}

	return c.JSON(http.StatusMethodNotAllowed, map[string]any{
		"error":           "Method Not Allowed",
		"message":         "This endpoint only accepts POST requests.",
		"usage":           "Send a POST request with JSON data containing soil parameters.",
		"required_fields": required,
		"optional_fields": map[string]string{
			"selected_crop": "Specific crop name to analyze",
		},
		"authentication": "X-Internal-Key header required",
		"example":        "POST /predict/soil with JSON body containing soil parameters",
	})
}
