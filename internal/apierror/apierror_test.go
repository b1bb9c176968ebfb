package apierror

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func render(t *testing.T, err error) (*httptest.ResponseRecorder, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/predict/soil", http.NoBody), rec)

	Handler(zap.New(core))(err, c)
	return rec, logs
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandlerAPIError(t *testing.T) {
	err := New(http.StatusUnprocessableEntity, CodeValidation, "invalid soil metrics").
		WithDetails([]string{"ph"})

	rec, logs := render(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, CodeValidation, body.Code)
	assert.Equal(t, "invalid soil metrics", body.Error)
	assert.Equal(t, []any{"ph"}, body.Details)
	assert.Zero(t, logs.Len())
}

func TestHandlerHidesCause(t *testing.T) {
	cause := errors.New("onnx exploded")
	err := New(http.StatusInternalServerError, CodeInternal, "Failed to process image").Wrap(cause)
	assert.ErrorIs(t, err, cause)

	rec, logs := render(t, err)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "onnx exploded")
	assert.Equal(t, 1, logs.Len())
}

func TestHandlerEchoError(t *testing.T) {
	rec, _ := render(t, echo.ErrTooManyRequests)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, CodeRateLimited, decode(t, rec).Code)

	rec, _ = render(t, echo.NewHTTPError(http.StatusRequestEntityTooLarge))
	assert.Equal(t, CodeTooLarge, decode(t, rec).Code)
}

func TestHandlerUnknownError(t *testing.T) {
	rec, logs := render(t, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, CodeInternal, body.Code)
	assert.NotContains(t, body.Error, "boom")
	assert.Equal(t, 1, logs.Len())
}
