package http

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"crossmarket/internal/config"
	apierrors "crossmarket/internal/errors"
	"crossmarket/internal/exporter"
	"crossmarket/internal/infrastructure"
	"crossmarket/internal/middleware"
	"crossmarket/internal/services"
)

// RunIDHeader carries the run id of an analysis response
const RunIDHeader = "X-Run-ID"

// AnalysisHandler handles analysis and basket requests with RFC 7807 errors
type AnalysisHandler struct {
	service      AnalysisServiceInterface
	validation   *middleware.ValidationMiddleware
	query        *middleware.QueryParamValidator
	errorHandler *apierrors.ErrorHandler
	exporter     *exporter.Exporter
	logger       *slog.Logger
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(service AnalysisServiceInterface, validation *middleware.ValidationMiddleware, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *AnalysisHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if errorHandler == nil {
		errorHandler = apierrors.NewErrorHandler(logger, false)
	}
	if validation == nil {
		validation = middleware.NewValidationMiddleware(logger, errorHandler, middleware.DefaultMaxBodySize)
	}
	return &AnalysisHandler{
		service:      service,
		validation:   validation,
		query:        middleware.NewQueryParamValidator(errorHandler),
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("component", "analysis_handler")),
	}
}

// WithExporter archives every successful run under the output directory
// as JSON and XLSX
func (h *AnalysisHandler) WithExporter(e *exporter.Exporter) *AnalysisHandler {
	h.exporter = e
	return h
}

// Routes returns the analysis routes, mounted under /api/v1
func (h *AnalysisHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(
		h.validation.LimitBody,
		middleware.ContentTypeValidator(h.errorHandler, "application/json"),
	).Post("/analyses", h.RunAnalysis)
	r.Get("/baskets", h.ListBaskets)

	return r
}

// RunAnalysis handles POST /api/v1/analyses?format=json|xlsx|csv
func (h *AnalysisHandler) RunAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	format, ok := h.query.ValidateEnum(w, r, "format", exporter.Formats, exporter.FormatJSON)
	if !ok {
		return
	}

	var req services.AnalysisRequest
	if !h.validation.DecodeJSON(w, r, &req) {
		return
	}

	h.logger.InfoContext(ctx, "running analysis",
		slog.String("request_id", middleware.GetRequestID(ctx)),
		slog.String("label", req.Label),
		slog.String("target", req.Target),
		slog.Int("variants", len(req.Variants)),
		slog.String("format", format))

	report, err := h.service.Run(ctx, req)
	if err != nil {
		h.logger.WarnContext(ctx, "analysis failed",
			slog.String("request_id", middleware.GetRequestID(ctx)),
			slog.String("error", err.Error()))

		problem := h.errorHandler.ErrorToProblem(err, r).
			WithExtension("trace_id", infrastructure.GetTraceID(ctx))
		if report != nil {
			w.Header().Set(RunIDHeader, report.RunID)
			problem.WithExtension("run_id", report.RunID)
			if report.Result != nil {
				problem.WithExtension("result", report.Result)
			}
		}
		render.Render(w, r, problem)
		return
	}

	w.Header().Set(RunIDHeader, report.RunID)
	if h.exporter != nil {
		if _, err := h.exporter.Export(report, exporter.FormatJSON, exporter.FormatXLSX); err != nil {
			h.logger.ErrorContext(ctx, "failed to archive run",
				slog.String("run_id", report.RunID),
				slog.String("error", err.Error()))
		}
	}
	if format == exporter.FormatJSON {
		render.JSON(w, r, report)
		return
	}

	var buf bytes.Buffer
	if err := exporter.Write(&buf, report, format); err != nil {
		h.errorHandler.HandleError(w, r, fmt.Errorf("render %s report: %w", format, err))
		return
	}

	filename := config.PathsConfig{}.RunOutputPath(report.Result.Label, report.RunID, format)
	w.Header().Set("Content-Type", exporter.ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.ErrorContext(ctx, "failed to write report",
			slog.String("run_id", report.RunID),
			slog.String("error", err.Error()))
	}
}

// ListBaskets handles GET /api/v1/baskets
func (h *AnalysisHandler) ListBaskets(w http.ResponseWriter, r *http.Request) {
	baskets, err := h.service.ListBaskets(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"baskets": baskets,
		"count":   len(baskets),
	})
}
