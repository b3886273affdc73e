package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "crossmarket/internal/errors"
	"crossmarket/internal/eventstudy"
	"crossmarket/internal/infrastructure"
	"crossmarket/internal/marketdata"
)

// AnalysisRequest is an engine request that may also name predefined
// baskets from the basket provider
type AnalysisRequest struct {
	eventstudy.Request `yaml:",inline"`

	BasketNames []string `json:"basket_names,omitempty" yaml:"basket_names" validate:"dive,required,ident"`
}

// RunReport wraps an engine result with run metadata
type RunReport struct {
	RunID         string             `json:"run_id"`
	GeneratedAt   time.Time          `json:"generated_at"`
	DurationMS    int64              `json:"duration_ms"`
	From          time.Time          `json:"data_from"`
	To            time.Time          `json:"data_to"`
	MissingAssets []string           `json:"missing_assets,omitempty"`
	Result        *eventstudy.Result `json:"result"`
}

// AnalysisOption configures an AnalysisService
type AnalysisOption func(*AnalysisService)

// WithTracer sets the tracer for run and fetch spans
func WithTracer(tracer trace.Tracer) AnalysisOption {
	return func(s *AnalysisService) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithMetrics records run outcomes into m
func WithMetrics(m *infrastructure.AnalysisMetrics) AnalysisOption {
	return func(s *AnalysisService) { s.metrics = m }
}

// WithRunTimeout bounds each run, fetch included. Zero disables the bound.
func WithRunTimeout(d time.Duration) AnalysisOption {
	return func(s *AnalysisService) { s.runTimeout = d }
}

// WithFetchConcurrency limits parallel price loads
func WithFetchConcurrency(n int) AnalysisOption {
	return func(s *AnalysisService) {
		if n > 0 {
			s.fetchConcurrency = n
		}
	}
}

// WithClock overrides the time source for run stamps
func WithClock(now func() time.Time) AnalysisOption {
	return func(s *AnalysisService) {
		if now != nil {
			s.now = now
		}
	}
}

// AnalysisService loads market data for a request, runs the engine and
// stamps the outcome
type AnalysisService struct {
	engine           *eventstudy.Engine
	prices           marketdata.PriceProvider
	baskets          marketdata.BasketProvider
	tracer           trace.Tracer
	metrics          *infrastructure.AnalysisMetrics
	runTimeout       time.Duration
	fetchConcurrency int
	now              func() time.Time
	logger           *slog.Logger
}

// NewAnalysisService creates a new analysis service
func NewAnalysisService(engine *eventstudy.Engine, prices marketdata.PriceProvider, baskets marketdata.BasketProvider, logger *slog.Logger, opts ...AnalysisOption) *AnalysisService {
	if logger == nil {
		logger = slog.Default()
	}
	if baskets == nil {
		baskets = marketdata.StaticBasketProvider(nil)
	}
	s := &AnalysisService{
		engine:           engine,
		prices:           prices,
		baskets:          baskets,
		tracer:           otel.Tracer(infrastructure.InstrumentationName),
		fetchConcurrency: engine.Config().Concurrency,
		now:              time.Now,
		logger:           infrastructure.WithComponent(logger, "analysis_service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListBaskets returns the predefined baskets sorted by name
func (s *AnalysisService) ListBaskets(ctx context.Context) ([]eventstudy.Basket, error) {
	baskets, err := s.baskets.Baskets(ctx)
	if err != nil {
		return nil, apperrors.NewConfigError("failed to load basket definitions", err)
	}
	sort.Slice(baskets, func(i, j int) bool { return baskets[i].Name < baskets[j].Name })
	return baskets, nil
}

// Run executes one analysis. A non-nil report may accompany an error when
// the engine produced a partial result.
func (s *AnalysisService) Run(ctx context.Context, req AnalysisRequest) (*RunReport, error) {
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	engineReq, err := s.resolveBaskets(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := engineReq.Validate(); err != nil {
		return nil, err
	}

	start := s.now()
	report := &RunReport{RunID: uuid.New().String()}
	logger := s.logger.With(slog.String("run_id", report.RunID), slog.String("label", engineReq.Label))

	done := s.metrics.RunStarted(ctx)
	defer done()

	cfg := s.engine.Config()
	report.From, report.To = engineReq.Span(cfg.BaselineDays)

	logger.InfoContext(ctx, "Analysis started",
		"target", engineReq.Target,
		"assets", len(engineReq.Assets()),
		"variants", len(engineReq.Variants),
		"from", report.From,
		"to", report.To)

	fetched, err := s.fetch(ctx, engineReq, report.From, report.To, cfg.Interval)
	if err != nil {
		s.metrics.RecordRun(ctx, nil, s.now().Sub(start), err)
		logger.ErrorContext(ctx, "Price fetch failed", "error", err)
		return nil, err
	}
	report.MissingAssets = fetched.Missing

	res, err := s.run(ctx, fetched.Prices, engineReq)
	report.Result = res
	report.GeneratedAt = s.now().UTC()
	elapsed := report.GeneratedAt.Sub(start)
	report.DurationMS = elapsed.Milliseconds()
	s.metrics.RecordRun(ctx, res, elapsed, err)

	if err != nil {
		logger.ErrorContext(ctx, "Analysis failed",
			"error", err,
			"kind", eventstudy.FailureKind(err),
			"duration", elapsed)
		if res == nil {
			return nil, err
		}
		return report, err
	}

	logger.InfoContext(ctx, "Analysis completed",
		"status", infrastructure.RunStatus(res, nil),
		"failures", len(res.Failures),
		"variants_failed", res.Robustness.Failed,
		"missing_assets", len(report.MissingAssets),
		"duration", elapsed)
	return report, nil
}

// resolveBaskets appends the named predefined baskets to the request's
// inline ones
func (s *AnalysisService) resolveBaskets(ctx context.Context, req AnalysisRequest) (eventstudy.Request, error) {
	out := req.Request
	if len(req.BasketNames) == 0 {
		return out, nil
	}

	known, err := s.ListBaskets(ctx)
	if err != nil {
		return out, err
	}
	byName := make(map[string]eventstudy.Basket, len(known))
	for _, b := range known {
		byName[b.Name] = b
	}

	out.Baskets = append([]eventstudy.Basket(nil), req.Baskets...)
	for _, name := range req.BasketNames {
		b, ok := byName[name]
		if !ok {
			return out, apperrors.NewAppError(apperrors.ErrTypeNotFound, fmt.Sprintf("basket %q not found", name), ErrUnknownBasket).
				WithContext("basket", name)
		}
		b.Constituents = append([]eventstudy.Constituent(nil), b.Constituents...)
		out.Baskets = append(out.Baskets, b)
	}
	return out, nil
}

func (s *AnalysisService) fetch(ctx context.Context, req eventstudy.Request, from, to time.Time, interval time.Duration) (marketdata.FetchResult, error) {
	assets := req.Assets()
	ctx, span := s.tracer.Start(ctx, "analysis.fetch", trace.WithAttributes(
		attribute.Int("assets", len(assets)),
		attribute.String("from", from.Format(time.RFC3339)),
		attribute.String("to", to.Format(time.RFC3339)),
	))
	defer span.End()

	res, err := marketdata.FetchAll(ctx, s.prices, assets, from, to, interval, s.fetchConcurrency, s.logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return res, err
		}
		return res, apperrors.NewDataError("failed to load market data", err)
	}

	points := 0
	for _, pts := range res.Prices {
		points += len(pts)
	}
	span.SetAttributes(
		attribute.Int("points", points),
		attribute.StringSlice("missing", res.Missing),
	)
	s.metrics.RecordFetch(ctx, points)
	return res, nil
}

func (s *AnalysisService) run(ctx context.Context, prices eventstudy.PriceSet, req eventstudy.Request) (*eventstudy.Result, error) {
	ctx, span := s.tracer.Start(ctx, "analysis.run", trace.WithAttributes(
		attribute.String("label", req.Label),
		attribute.String("target", req.Target),
		attribute.Int("variants", len(req.Variants)),
	))
	defer span.End()

	res, err := s.engine.Run(ctx, prices, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, eventstudy.FailureKind(err))
		return res, err
	}

	span.SetAttributes(
		attribute.String("status", infrastructure.RunStatus(res, nil)),
		attribute.Int("failures", len(res.Failures)),
	)
	if res.Decoupling != nil && res.Decoupling.Detected() {
		span.AddEvent("decoupling", trace.WithAttributes(
			attribute.String("at", res.Decoupling.At.Format(time.RFC3339)),
			attribute.Int("run_length", res.Decoupling.RunLength),
		))
	}
	return res, nil
}
