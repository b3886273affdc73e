package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"go.opentelemetry.io/otel/trace"

	apierrors "crossmarket/internal/errors"
	"crossmarket/internal/infrastructure"
)

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestID middleware assigns every request an id, reusing the caller's
// X-Request-ID when present. The id doubles as trace_id for logging unless
// an active span supplies one. This should be the FIRST middleware in the
// chain.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		ctx = infrastructure.WithTraceID(ctx, requestID)
		if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
			ctx = infrastructure.WithTraceID(ctx, span.SpanContext().TraceID().String())
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from context, falling back to the
// trace ID
func GetRequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return infrastructure.GetTraceID(ctx)
}

// StructuredLogger logs one line per completed request. Server errors log
// at error level, client errors at warn.
// This should come AFTER RequestID and RealIP middlewares.
func StructuredLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			switch {
			case status >= http.StatusInternalServerError:
				level = slog.LevelError
			case status >= http.StatusBadRequest:
				level = slog.LevelWarn
			}

			logger.Log(r.Context(), level, "request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("request_id", GetRequestID(r.Context())),
			)
		})
	}
}

// RateLimiter provides rate limiting functionality with logging
type RateLimiter struct {
	limiter      *rate.Limiter
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewRateLimiter creates a new rate limiter with logging
func NewRateLimiter(rps float64, burst int, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	if errorHandler == nil {
		errorHandler = apierrors.NewErrorHandler(logger, false)
	}
	return &RateLimiter{
		limiter:      rate.NewLimiter(rate.Limit(rps), burst),
		logger:       logger,
		errorHandler: errorHandler,
	}
}

// Handler implements rate limiting middleware
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.limiter.Allow() {
			rl.logger.WarnContext(r.Context(), "rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			retryAfter := rl.retryAfter()
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			rl.errorHandler.HandleError(w, r, apierrors.NewWithDetails(
				http.StatusTooManyRequests,
				apierrors.CodeRateLimitExceeded,
				"Rate limit exceeded",
				map[string]interface{}{"retry_after_seconds": retryAfter},
			))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// retryAfter is the whole number of seconds until the next token
func (rl *RateLimiter) retryAfter() int {
	limit := float64(rl.limiter.Limit())
	if limit <= 0 {
		return 60
	}
	seconds := int(1/limit + 0.999)
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

// Timeout bounds the request context. Handlers observe the deadline through
// the context and report it as 504 via the error handler.
func Timeout(timeout time.Duration, logger *slog.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))

			if ctx.Err() == context.DeadlineExceeded {
				logger.WarnContext(r.Context(), "request deadline exceeded",
					"method", r.Method,
					"path", r.URL.Path,
					"timeout", timeout.String(),
				)
			}
		})
	}
}

// SecurityHeaders adds security-related headers for a JSON API
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Cache-Control", "no-store")

		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// RealIP extracts the real client IP using Chi's implementation
func RealIP(next http.Handler) http.Handler {
	return middleware.RealIP(next)
}
