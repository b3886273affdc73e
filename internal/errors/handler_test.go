package errors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossmarket/internal/eventstudy"
	"crossmarket/internal/infrastructure"
	"crossmarket/internal/marketdata"
)

func newTestLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestErrorHandler_ErrorToProblem(t *testing.T) {
	type request struct {
		Target string `validate:"required"`
	}
	fieldErr := validator.New().Struct(request{})
	require.Error(t, fieldErr)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"deadline exceeded", context.DeadlineExceeded, http.StatusGatewayTimeout, TypeTimeout},
		{"wrapped cancellation", fmt.Errorf("run: %w", context.Canceled), http.StatusGatewayTimeout, TypeTimeout},
		{"body too large", &http.MaxBytesError{Limit: 1024}, http.StatusRequestEntityTooLarge, TypePayloadTooLarge},
		{"api error", ErrInvalidRequest, http.StatusBadRequest, TypeValidation},
		{"validator errors", fieldErr, http.StatusBadRequest, TypeValidation},
		{"domain validation", &eventstudy.ValidationError{Field: "event", Message: "start must precede end"}, http.StatusBadRequest, TypeValidation},
		{"no market data", fmt.Errorf("fetch: %w", &marketdata.NoDataError{Asset: "XLE"}), http.StatusNotFound, TypeDataNotFound},
		{"insufficient data", &eventstudy.InsufficientDataError{Subject: "XLE", Have: 3, Need: 30}, http.StatusUnprocessableEntity, "/errors/analysis/insufficient-data"},
		{"degenerate baseline", fmt.Errorf("primary: %w", &eventstudy.DegenerateBaselineError{Target: "XLE", Reference: "CL"}), http.StatusUnprocessableEntity, "/errors/analysis/degenerate-baseline"},
		{"all variants failed", &eventstudy.AllVariantsFailedError{Variants: 3}, http.StatusUnprocessableEntity, "/errors/analysis/all-variants-failed"},
		{"app not found", NewNotFoundError("basket defense"), http.StatusNotFound, TypeNotFound},
		{"app parsing", NewParsingError("bad price file", errors.New("line 3")), http.StatusUnprocessableEntity, TypeDataInvalid},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, TypeInternal},
	}

	logger, _ := newTestLogger()
	h := NewErrorHandler(logger, false)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", nil)
			p := h.ErrorToProblem(tt.err, r)
			assert.Equal(t, tt.wantStatus, p.Status)
			assert.Equal(t, tt.wantType, p.Type)
			assert.Equal(t, "/api/v1/analyses", p.Instance)
		})
	}
}

func TestErrorHandler_HandleError(t *testing.T) {
	logger, logs := newTestLogger()
	h := NewErrorHandler(logger, false)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", nil)
	r = r.WithContext(infrastructure.WithTraceID(r.Context(), "trace-123"))
	rec := httptest.NewRecorder()

	h.HandleError(rec, r, &eventstudy.InsufficientDataError{Subject: "XLE", Have: 1, Need: 2})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeProblem(t, rec)
	assert.Equal(t, "/errors/analysis/insufficient-data", body["type"])
	assert.Equal(t, "insufficient_data", body["kind"])
	assert.Equal(t, "trace-123", body["trace_id"])
	assert.Contains(t, logs.String(), "request failed")

	t.Run("nil error writes nothing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.HandleError(rec, r, nil)
		assert.Zero(t, rec.Body.Len())
	})
}

func TestErrorHandler_HandlePanic(t *testing.T) {
	logger, logs := newTestLogger()
	h := NewErrorHandler(logger, true)

	rec := httptest.NewRecorder()
	h.HandlePanic(rec, httptest.NewRequest(http.MethodGet, "/", nil), "index out of range")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeProblem(t, rec)
	assert.Equal(t, TypeInternal, body["type"])
	assert.Equal(t, "index out of range", body["panic"])
	assert.Contains(t, logs.String(), "panic recovered")
}

func TestErrorHandler_NotFoundAndMethodNotAllowed(t *testing.T) {
	h := NewErrorHandler(nil, false)

	rec := httptest.NewRecorder()
	h.NotFound(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.MethodNotAllowed(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/analyses", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, decodeProblem(t, rec)["detail"], "DELETE")
}

func TestProblemDetails_MarshalJSON(t *testing.T) {
	p := NewProblemDetails(http.StatusBadRequest, TypeValidation, "Validation Failed", "", "/x").
		WithExtension("errors", []ValidationError{{Field: "target", Message: "is required"}}).
		WithExtension("status", 999)

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, float64(http.StatusBadRequest), body["status"], "standard fields win over extensions")
	assert.NotContains(t, body, "detail")
	assert.Len(t, body["errors"], 1)
}

func TestAPIError(t *testing.T) {
	err := ErrValidation("event.start", "is required")
	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
	assert.Equal(t, CodeValidationFailed, err.ErrorCode)
	assert.Equal(t, "Request validation failed", err.Error())
	assert.Equal(t, ValidationError{Field: "event.start", Message: "is required"}, err.Details)

	h := NewErrorHandler(nil, false)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", nil)
	problem := h.ErrorToProblem(ErrMissingContentType, r)
	assert.Equal(t, http.StatusBadRequest, problem.Status)
	assert.Equal(t, TypeValidation, problem.Type)
	assert.Equal(t, CodeMissingContentType, problem.Extensions["error_code"])
}

func TestFieldErrors(t *testing.T) {
	type body struct {
		Mode string `validate:"oneof=log simple"`
		Days int    `validate:"min=1"`
	}
	err := validator.New().Struct(body{Mode: "compound"})
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)

	fields := FieldErrors(verrs)
	require.Len(t, fields, 2)
	assert.Equal(t, "body.Mode", fields[0].Field)
	assert.Equal(t, "must be one of [log simple]", fields[0].Message)
}
