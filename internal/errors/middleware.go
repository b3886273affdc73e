package errors

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"crossmarket/internal/infrastructure"
)

// maxLoggedBody caps the request body excerpt attached to failure logs
const maxLoggedBody = 500

// ErrorMiddleware logs failed requests together with an excerpt of the
// request body, so a rejected analysis request can be reproduced from logs.
type ErrorMiddleware struct {
	handler *ErrorHandler
	logger  *slog.Logger
}

// NewErrorMiddleware creates a new error handling middleware
func NewErrorMiddleware(handler *ErrorHandler, logger *slog.Logger) *ErrorMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorMiddleware{
		handler: handler,
		logger:  logger.With(slog.String("component", "error_middleware")),
	}
}

// Handler returns the middleware handler function
func (m *ErrorMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		var requestBody []byte
		if r.Body != nil && r.ContentLength > 0 && r.ContentLength < 1024*1024 {
			requestBody, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewReader(requestBody))
		}

		start := time.Now()

		defer func() {
			if err := recover(); err != nil {
				m.handler.HandlePanic(ww, r, err)
			}
		}()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status < http.StatusBadRequest {
			return
		}

		logLevel := slog.LevelWarn
		if status >= http.StatusInternalServerError {
			logLevel = slog.LevelError
		}

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
			slog.String("trace_id", infrastructure.GetTraceID(r.Context())),
		}
		if r.URL.RawQuery != "" {
			attrs = append(attrs, slog.String("query", r.URL.RawQuery))
		}
		if len(requestBody) > 0 {
			attrs = append(attrs, slog.String("request_body", bodyExcerpt(requestBody)))
		}

		m.logger.LogAttrs(r.Context(), logLevel, "http request failed", attrs...)
	})
}

// bodyExcerpt compacts JSON bodies and truncates long ones
func bodyExcerpt(body []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err == nil {
		body = buf.Bytes()
	}
	s := string(body)
	if len(s) > maxLoggedBody {
		s = s[:maxLoggedBody] + "..."
	}
	return s
}

// RecoveryMiddleware provides panic recovery with proper error responses
func RecoveryMiddleware(handler *ErrorHandler) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					handler.HandlePanic(w, r, err)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
