package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	apierrors "crossmarket/internal/errors"
	"crossmarket/internal/eventstudy"
)

// DefaultMaxBodySize caps request bodies when no limit is configured
const DefaultMaxBodySize int64 = 1 << 20

// identPattern accepts asset symbols such as CL=F, ^VIX or BRK.B and basket
// names such as defense or us-shipping
var identPattern = regexp.MustCompile(`^[A-Za-z0-9^][A-Za-z0-9._=^/-]{0,31}$`)

// NewValidator returns a validator that reports JSON field names and knows
// the "ident" tag plus the event window and volume check rules.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// registration only fails for an empty tag or nil func
	_ = v.RegisterValidation("ident", isIdent)

	v.RegisterStructValidation(eventWindowValidation, eventstudy.EventWindow{})
	v.RegisterStructValidation(volumeCheckValidation, eventstudy.VolumeCheck{})
	return v
}

func isIdent(fl validator.FieldLevel) bool {
	return identPattern.MatchString(fl.Field().String())
}

func eventWindowValidation(sl validator.StructLevel) {
	w := sl.Current().Interface().(eventstudy.EventWindow)
	if w.Start.IsZero() {
		sl.ReportError(w.Start, "start", "Start", "required", "")
	}
	if !w.End.After(w.Start) {
		sl.ReportError(w.End, "end", "End", "gtfield", "start")
	}
}

func volumeCheckValidation(sl validator.StructLevel) {
	c := sl.Current().Interface().(eventstudy.VolumeCheck)
	if c.Clock == "" {
		return
	}
	if _, err := eventstudy.ParseClock(c.Clock); err != nil {
		sl.ReportError(c.Clock, "clock", "Clock", "clock", "")
	}
}

// ValidationMiddleware bounds request bodies and decodes and validates JSON
// payloads for handlers
type ValidationMiddleware struct {
	validator    *validator.Validate
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
	maxBodySize  int64
}

// NewValidationMiddleware creates a new validation middleware
func NewValidationMiddleware(logger *slog.Logger, errorHandler *apierrors.ErrorHandler, maxBodySize int64) *ValidationMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	if errorHandler == nil {
		errorHandler = apierrors.NewErrorHandler(logger, false)
	}
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}
	return &ValidationMiddleware{
		validator:    NewValidator(),
		logger:       logger.With(slog.String("component", "validation_middleware")),
		errorHandler: errorHandler,
		maxBodySize:  maxBodySize,
	}
}

// LimitBody rejects declared oversize bodies up front and caps the rest
// with http.MaxBytesReader
func (m *ValidationMiddleware) LimitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > m.maxBodySize {
			m.errorHandler.HandleError(w, r, &http.MaxBytesError{Limit: m.maxBodySize})
			return
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, m.maxBodySize)
		}
		next.ServeHTTP(w, r)
	})
}

// DecodeJSON decodes the request body into v and validates it. On failure
// it writes the problem response and returns false.
func (m *ValidationMiddleware) DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil {
		m.errorHandler.HandleError(w, r, apierrors.ErrBodyRequired)
		return false
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			m.errorHandler.HandleError(w, r, fmt.Errorf("decode request: %w", err))
			return false
		}
		m.logger.DebugContext(r.Context(), "malformed request body", slog.String("error", err.Error()))
		m.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return false
	}

	if err := m.ValidateStruct(v); err != nil {
		m.errorHandler.HandleError(w, r, err)
		return false
	}
	return true
}

// ValidateStruct runs the struct tag and struct level rules
func (m *ValidationMiddleware) ValidateStruct(v interface{}) error {
	return m.validator.Struct(v)
}

// ContentTypeValidator ensures requests with a body have an allowed content type
func ContentTypeValidator(errorHandler *apierrors.ErrorHandler, contentTypes ...string) func(next http.Handler) http.Handler {
	if errorHandler == nil {
		errorHandler = apierrors.NewErrorHandler(nil, false)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodDelete || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			contentType := r.Header.Get("Content-Type")
			if contentType == "" {
				errorHandler.HandleError(w, r, apierrors.ErrMissingContentType)
				return
			}

			for _, allowed := range contentTypes {
				if strings.HasPrefix(strings.ToLower(contentType), allowed) {
					next.ServeHTTP(w, r)
					return
				}
			}

			errorHandler.HandleError(w, r, apierrors.NewWithDetails(
				http.StatusUnsupportedMediaType,
				apierrors.CodeUnsupportedMediaType,
				"Unsupported content type",
				map[string]interface{}{
					"content_type": contentType,
					"allowed":      contentTypes,
				},
			))
		})
	}
}

// QueryParamValidator validates query parameters
type QueryParamValidator struct {
	errorHandler *apierrors.ErrorHandler
}

// NewQueryParamValidator creates a new query parameter validator
func NewQueryParamValidator(errorHandler *apierrors.ErrorHandler) *QueryParamValidator {
	if errorHandler == nil {
		errorHandler = apierrors.NewErrorHandler(nil, false)
	}
	return &QueryParamValidator{errorHandler: errorHandler}
}

// ValidateEnum validates an enum query parameter
func (v *QueryParamValidator) ValidateEnum(w http.ResponseWriter, r *http.Request, param string, allowed []string, defaultValue string) (string, bool) {
	value := strings.ToLower(r.URL.Query().Get(param))
	if value == "" {
		return defaultValue, true
	}

	for _, a := range allowed {
		if value == a {
			return value, true
		}
	}

	v.errorHandler.HandleError(w, r, apierrors.ErrValidation(param, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", "))))
	return "", false
}
