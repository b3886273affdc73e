package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"crossmarket/internal/eventstudy"
	"crossmarket/internal/infrastructure"
	"crossmarket/internal/marketdata"
)

// Common error types following RFC 7807
const (
	TypeValidation      = "/errors/validation"
	TypeNotFound        = "/errors/not-found"
	TypeRateLimit       = "/errors/rate-limit"
	TypeInternal        = "/errors/internal"
	TypeServiceDown     = "/errors/service-unavailable"
	TypeTimeout         = "/errors/timeout"
	TypeConflict        = "/errors/conflict"
	TypePayloadTooLarge = "/errors/payload-too-large"
	TypeUnsupportedType = "/errors/unsupported-media-type"
)

// Domain-specific error types
const (
	TypeDataNotFound  = "/errors/data/not-found"
	TypeDataInvalid   = "/errors/data/invalid"
	TypeAnalysisError = "/errors/analysis"
)

// ErrorHandler provides centralized error handling
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *slog.Logger, includeStack bool) *ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
	}
}

// HandleError converts any error to RFC 7807 format and responds
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	traceID := infrastructure.GetTraceID(r.Context())
	problem := h.ErrorToProblem(err, r)
	problem.WithExtension("trace_id", traceID)

	level := slog.LevelWarn
	if problem.Status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "request failed",
		slog.String("error", err.Error()),
		slog.Int("status", problem.Status),
		slog.String("type", problem.Type),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	if h.includeStack && problem.Status >= http.StatusInternalServerError {
		problem.WithExtension("stack", getStackTrace())
	}

	render.Render(w, r, problem)
}

// ErrorToProblem converts an error to RFC 7807 Problem Details
func (h *ErrorHandler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewProblemDetails(
			http.StatusGatewayTimeout,
			TypeTimeout,
			"Request Timeout",
			"The request took too long to process and was cancelled",
			r.URL.Path,
		)
	}

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return NewProblemDetails(
			http.StatusRequestEntityTooLarge,
			TypePayloadTooLarge,
			"Payload Too Large",
			fmt.Sprintf("The request body exceeds the maximum allowed size of %d bytes", maxBytes.Limit),
			r.URL.Path,
		)
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return h.apiErrorToProblem(apiErr, r)
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		return NewProblemDetails(
			http.StatusBadRequest,
			TypeValidation,
			"Validation Failed",
			"One or more fields are invalid",
			r.URL.Path,
		).WithExtension("errors", FieldErrors(fieldErrs))
	}

	var domainValidation *eventstudy.ValidationError
	if errors.As(err, &domainValidation) {
		return NewProblemDetails(
			http.StatusBadRequest,
			TypeValidation,
			"Validation Failed",
			domainValidation.Error(),
			r.URL.Path,
		).WithExtension("errors", []ValidationError{{Field: domainValidation.Field, Message: domainValidation.Message}})
	}

	if errors.Is(err, marketdata.ErrNoData) {
		return NewProblemDetails(
			http.StatusNotFound,
			TypeDataNotFound,
			"Market Data Not Found",
			err.Error(),
			r.URL.Path,
		)
	}

	if kind := eventstudy.FailureKind(err); kind != eventstudy.KindUnknown {
		return NewProblemDetails(
			http.StatusUnprocessableEntity,
			AnalysisProblemType(kind),
			"Analysis Failed",
			err.Error(),
			r.URL.Path,
		).WithExtension("kind", kind)
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return h.appErrorToProblem(appErr, r)
	}

	return NewProblemDetails(
		http.StatusInternalServerError,
		TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred while processing your request",
		r.URL.Path,
	)
}

// AnalysisProblemType maps a failure kind to its problem type,
// e.g. insufficient_data -> /errors/analysis/insufficient-data
func AnalysisProblemType(kind string) string {
	return TypeAnalysisError + "/" + strings.ReplaceAll(kind, "_", "-")
}

// FieldErrors flattens validator errors into field/message pairs
func FieldErrors(errs validator.ValidationErrors) []ValidationError {
	out := make([]ValidationError, 0, len(errs))
	for _, fe := range errs {
		out = append(out, ValidationError{
			Field:   fe.Namespace(),
			Message: fieldMessage(fe),
		})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s elements or be at least %s", fe.Param(), fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "gt", "gte", "lt", "lte":
		return fmt.Sprintf("must be %s %s", fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// apiErrorToProblem converts APIError to ProblemDetails
func (h *ErrorHandler) apiErrorToProblem(apiErr *APIError, r *http.Request) *ProblemDetails {
	problemType := TypeInternal
	switch apiErr.ErrorCode {
	case CodeValidationFailed, CodeInvalidRequest, CodeMissingContentType:
		problemType = TypeValidation
	case CodeNotFound:
		problemType = TypeNotFound
	case CodeDataNotFound:
		problemType = TypeDataNotFound
	case CodePayloadTooLarge:
		problemType = TypePayloadTooLarge
	case CodeUnsupportedMediaType:
		problemType = TypeUnsupportedType
	case CodeAnalysisFailed:
		problemType = TypeAnalysisError
	case CodeConflict:
		problemType = TypeConflict
	case CodeRateLimitExceeded:
		problemType = TypeRateLimit
	case CodeServiceUnavailable:
		problemType = TypeServiceDown
	}

	problem := NewProblemDetails(
		apiErr.StatusCode,
		problemType,
		http.StatusText(apiErr.StatusCode),
		apiErr.Message,
		r.URL.Path,
	).WithExtension("error_code", apiErr.ErrorCode)

	if apiErr.Details != nil {
		problem.WithExtension("details", apiErr.Details)
	}

	return problem
}

func (h *ErrorHandler) appErrorToProblem(appErr *AppError, r *http.Request) *ProblemDetails {
	var problem *ProblemDetails
	switch appErr.Type {
	case ErrTypeValidation:
		problem = NewProblemDetails(http.StatusBadRequest, TypeValidation, "Validation Failed", appErr.Message, r.URL.Path)
	case ErrTypeNotFound:
		problem = NewProblemDetails(http.StatusNotFound, TypeNotFound, "Resource Not Found", appErr.Message, r.URL.Path)
	case ErrTypeParsing:
		problem = NewProblemDetails(http.StatusUnprocessableEntity, TypeDataInvalid, "Invalid Market Data", appErr.Error(), r.URL.Path)
	case ErrTypeData:
		problem = NewProblemDetails(http.StatusServiceUnavailable, TypeServiceDown, "Market Data Unavailable", appErr.Message, r.URL.Path)
	default:
		problem = NewProblemDetails(http.StatusInternalServerError, TypeInternal, "Internal Server Error", appErr.Message, r.URL.Path)
	}
	if len(appErr.Context) > 0 {
		problem.WithExtension("context", appErr.Context)
	}
	return problem
}

// HandlePanic recovers from panics and returns RFC 7807 error
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	traceID := infrastructure.GetTraceID(r.Context())

	h.logger.ErrorContext(r.Context(), "panic recovered",
		slog.Any("panic", recovered),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("stack", string(debug.Stack())),
	)

	problem := NewProblemDetails(
		http.StatusInternalServerError,
		TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred",
		r.URL.Path,
	).WithExtension("trace_id", traceID)

	if h.includeStack {
		problem.WithExtension("panic", fmt.Sprintf("%v", recovered))
		problem.WithExtension("stack", getStackTrace())
	}

	render.Render(w, r, problem)
}

// NotFound returns a standard 404 error
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(
		http.StatusNotFound,
		TypeNotFound,
		"Not Found",
		"The requested resource was not found",
		r.URL.Path,
	).WithExtension("trace_id", infrastructure.GetTraceID(r.Context()))

	render.Render(w, r, problem)
}

// MethodNotAllowed returns a standard 405 error
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(
		http.StatusMethodNotAllowed,
		TypeInternal,
		"Method Not Allowed",
		fmt.Sprintf("Method %s is not allowed for this endpoint", r.Method),
		r.URL.Path,
	).WithExtension("trace_id", infrastructure.GetTraceID(r.Context()))

	render.Render(w, r, problem)
}

func getStackTrace() string {
	buf := make([]byte, 1024*8)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// JSON helper for consistent JSON responses
func (h *ErrorHandler) JSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	render.Status(r, status)
	render.JSON(w, r, v)
}
