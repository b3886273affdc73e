package errors

import (
	"net/http"

	"github.com/go-chi/render"
)

// Error codes carried by APIError and echoed as the error_code problem extension
const (
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeValidationFailed     = "VALIDATION_FAILED"
	CodeMissingContentType   = "MISSING_CONTENT_TYPE"
	CodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	CodeNotFound             = "NOT_FOUND"
	CodeDataNotFound         = "DATA_NOT_FOUND"
	CodePayloadTooLarge      = "PAYLOAD_TOO_LARGE"
	CodeAnalysisFailed       = "ANALYSIS_FAILED"
	CodeConflict             = "CONFLICT"
	CodeRateLimitExceeded    = "RATE_LIMIT_EXCEEDED"
	CodeServiceUnavailable   = "SERVICE_UNAVAILABLE"
)

// APIError is an error raised by the HTTP layer itself, before a request
// reaches a service
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// Render implements the render.Renderer interface for chi/render
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// ValidationError represents one invalid request field
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// New creates a new APIError
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
	}
}

// NewWithDetails creates a new APIError with additional details
func NewWithDetails(statusCode int, errorCode, message string, details interface{}) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
		Details:    details,
	}
}

// Request errors raised by middleware
var (
	ErrInvalidRequest     = New(http.StatusBadRequest, CodeInvalidRequest, "Invalid request format")
	ErrBodyRequired       = New(http.StatusBadRequest, CodeInvalidRequest, "Request body is required")
	ErrMissingContentType = New(http.StatusBadRequest, CodeMissingContentType, "Content-Type header is required")
)

// InvalidRequestWithError wraps a decode failure
func InvalidRequestWithError(err error) *APIError {
	return NewWithDetails(http.StatusBadRequest, CodeInvalidRequest, "Invalid request format", err.Error())
}

// ErrValidation creates a validation error for one field
func ErrValidation(field, message string) *APIError {
	return NewWithDetails(http.StatusBadRequest, CodeValidationFailed, "Request validation failed", ValidationError{
		Field:   field,
		Message: message,
	})
}
