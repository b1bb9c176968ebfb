package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Brownie44l1/agri-ml/internal/apierror"
	"github.com/Brownie44l1/agri-ml/internal/disease"
	"github.com/Brownie44l1/agri-ml/internal/imaging"
	"github.com/Brownie44l1/agri-ml/internal/metrics"
)

const imageField = "image"

// PestResponse is a diagnosis plus timing.
type PestResponse struct {
	disease.Diagnosis
	InferenceMS float64 `json:"inference_ms"`
}

var (
	errNoImage = apierror.New(http.StatusBadRequest, apierror.CodeBadRequest,
		"No image file provided. Use 'image' as the form field name")
	errNotImage = apierror.New(http.StatusBadRequest, apierror.CodeBadRequest,
		"Invalid file type. Please upload an image file.")
	errBadImage = apierror.New(http.StatusBadRequest, apierror.CodeBadRequest,
		"Invalid image format. Supported: JPEG, PNG")
	errImageTooLarge = apierror.New(http.StatusBadRequest, apierror.CodeBadRequest,
		"Image dimensions are too large")
	errPestFailed = apierror.New(http.StatusInternalServerError, apierror.CodeInternal,
		"Failed to process image")
)

// PredictPest runs the disease classifier on a multipart "image" upload.
func (h *Handler) PredictPest(c echo.Context) error {
	if h.pest == nil {
		return unavailable("Pest detection")
	}

	header, err := c.FormFile(imageField)
	if err != nil {
		h.metrics.ObservePrediction(pestModelName, metrics.OutcomeRejected, 0)
		return errNoImage.Wrap(err)
	}

	if !strings.HasPrefix(header.Header.Get(echo.HeaderContentType), "image/") {
		h.metrics.ObservePrediction(pestModelName, metrics.OutcomeRejected, 0)
		return errNotImage
	}

	file, err := header.Open()
	if err != nil {
		return errPestFailed.Wrap(err)
	}
	defer file.Close()

	h.logger.Debug("Received image",
		zap.String("filename", header.Filename),
		zap.Int64("size", header.Size))

	img, format, err := imaging.Decode(file, h.maxImagePixels)
	if err != nil {
		h.metrics.ObservePrediction(pestModelName, metrics.OutcomeRejected, 0)
		if errors.Is(err, imaging.ErrTooLarge) {
			return errImageTooLarge.Wrap(err)
		}
		return errBadImage.Wrap(err)
	}

	start := h.now()
	meta := h.pest.Meta()

	input, err := imaging.FromMetadata(img, meta)
	if err != nil {
		h.metrics.ObservePrediction(pestModelName, metrics.OutcomeError, 0)
		return errPestFailed.Wrap(err)
	}

	probs, err := h.pest.Predict(c.Request().Context(), input)
	if err != nil {
		h.metrics.ObservePrediction(pestModelName, metrics.OutcomeError, 0)
		return errPestFailed.Wrap(err)
	}

	diagnosis, err := disease.Diagnose(h.treatments, probs, meta.Classes)
	if err != nil {
		h.metrics.ObservePrediction(pestModelName, metrics.OutcomeError, 0)
		return errPestFailed.Wrap(err)
	}

	elapsed := h.now().Sub(start)
	h.metrics.ObservePrediction(pestModelName, metrics.OutcomeSuccess, elapsed)

	h.logger.Info("Pest prediction",
		zap.String("format", format),
		zap.String("class", diagnosis.RawClass),
		zap.Float64("confidence", diagnosis.Confidence),
		zap.String("severity", string(diagnosis.Severity)),
		zap.Duration("elapsed", elapsed))

	return c.JSON(http.StatusOK, PestResponse{
		Diagnosis:   diagnosis,
		InferenceMS: h.elapsedMS(start),
	})
}

// PestUsage answers GET /predict/pest with usage instructions.
func (h *Handler) PestUsage(c echo.Context) error {
	return c.JSON(http.StatusMethodNotAllowed, map[string]any{
		"error":   "Method Not Allowed",
		"message": "This endpoint only accepts POST requests.",
		"usage":   "Send a POST request with multipart form data containing an image file.",
		"required_fields": map[string]string{
			imageField: "Image file (JPEG, PNG)",
		},
		"authentication": "X-Internal-Key header required",
		"example":        "POST /predict/pest with form-data: image=@path/to/image.jpg",
	})
}
