package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"

	"crossmarket/internal/infrastructure"
)

// OTelMiddleware provides OpenTelemetry instrumentation for HTTP requests
type OTelMiddleware struct {
	tracer  trace.Tracer
	metrics *infrastructure.AnalysisMetrics
	logger  *slog.Logger
}

// NewOTelMiddleware creates a new OpenTelemetry middleware recording into
// the shared analysis metrics
func NewOTelMiddleware(tracer trace.Tracer, metrics *infrastructure.AnalysisMetrics, logger *slog.Logger) *OTelMiddleware {
	if tracer == nil {
		tracer = otel.Tracer(infrastructure.InstrumentationName)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OTelMiddleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// Handler returns the middleware handler function
func (m *OTelMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		spanName := fmt.Sprintf("%s %s", r.Method, r.URL.Path)
		ctx, span := m.tracer.Start(ctx, spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.URLPath(r.URL.Path),
				semconv.ServerAddressKey.String(r.Host),
				semconv.UserAgentOriginalKey.String(r.UserAgent()),
				semconv.HTTPRequestBodySizeKey.Int64(r.ContentLength),
				semconv.ClientAddressKey.String(r.RemoteAddr),
			),
		)
		defer span.End()

		if span.SpanContext().IsValid() {
			ctx = infrastructure.WithTraceID(ctx, span.SpanContext().TraceID().String())
		}
		r = r.WithContext(ctx)

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		if m.metrics != nil {
			m.metrics.HTTPActiveRequests.Add(ctx, 1)
			defer m.metrics.HTTPActiveRequests.Add(ctx, -1)
		}

		start := time.Now()
		next.ServeHTTP(ww, r)
		duration := time.Since(start)

		// chi fills the route pattern while routing, so read it afterwards
		route := getRoutePattern(r)
		span.SetName(fmt.Sprintf("%s %s", r.Method, route))
		span.SetAttributes(
			semconv.HTTPRouteKey.String(route),
			semconv.HTTPResponseStatusCodeKey.Int(ww.statusCode),
			semconv.HTTPResponseBodySizeKey.Int64(ww.bytesWritten),
		)
		if ww.statusCode >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(ww.statusCode))
		}

		if m.metrics != nil {
			attrs := metric.WithAttributes(
				attribute.String("method", r.Method),
				attribute.String("route", route),
				attribute.Int("status_code", ww.statusCode),
			)
			m.metrics.HTTPRequestsTotal.Add(ctx, 1, attrs)
			m.metrics.HTTPRequestDuration.Record(ctx, duration.Seconds(), attrs)
		}

		m.logger.DebugContext(ctx, "HTTP request traced",
			slog.String("route", route),
			slog.Int("status_code", ww.statusCode),
			slog.Duration("duration", duration),
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture response details
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// Flush lets streamed exports pass through the wrapper
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// getRoutePattern extracts the route pattern from request context
func getRoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return r.URL.Path
}
