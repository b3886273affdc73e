package infrastructure

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"crossmarket/internal/eventstudy"
)

// Run outcomes recorded on analysis_runs_total
const (
	RunStatusOK      = "ok"
	RunStatusPartial = "partial"
	RunStatusFailed  = "failed"
)

// AnalysisMetrics holds the application-specific instruments
type AnalysisMetrics struct {
	// HTTP metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	HTTPActiveRequests  metric.Int64UpDownCounter

	// Analysis metrics
	RunsTotal        metric.Int64Counter
	RunDuration      metric.Float64Histogram
	ActiveRuns       metric.Int64UpDownCounter
	VariantFailures  metric.Int64Counter
	Failures         metric.Int64Counter
	PricesFetched    metric.Int64Counter
	DecouplingsFound metric.Int64Counter
}

// CreateAnalysisMetrics creates every instrument on meter
func CreateAnalysisMetrics(meter metric.Meter) (*AnalysisMetrics, error) {
	var (
		m   AnalysisMetrics
		err error
	)

	if m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	); err != nil {
		return nil, err
	}
	if m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.HTTPActiveRequests, err = meter.Int64UpDownCounter(
		"http_active_requests",
		metric.WithDescription("Number of active HTTP requests"),
	); err != nil {
		return nil, err
	}

	if m.RunsTotal, err = meter.Int64Counter(
		"analysis_runs_total",
		metric.WithDescription("Total number of analysis runs by outcome"),
	); err != nil {
		return nil, err
	}
	if m.RunDuration, err = meter.Float64Histogram(
		"analysis_run_duration_seconds",
		metric.WithDescription("Analysis run duration in seconds, fetch included"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.ActiveRuns, err = meter.Int64UpDownCounter(
		"analysis_active_runs",
		metric.WithDescription("Number of analysis runs in progress"),
	); err != nil {
		return nil, err
	}
	if m.VariantFailures, err = meter.Int64Counter(
		"analysis_variant_failures_total",
		metric.WithDescription("Robustness variants that failed, by failure kind"),
	); err != nil {
		return nil, err
	}
	if m.Failures, err = meter.Int64Counter(
		"analysis_failures_total",
		metric.WithDescription("Failed sub-computations, by scope and failure kind"),
	); err != nil {
		return nil, err
	}
	if m.PricesFetched, err = meter.Int64Counter(
		"analysis_price_points_fetched_total",
		metric.WithDescription("Price observations loaded from providers"),
	); err != nil {
		return nil, err
	}
	if m.DecouplingsFound, err = meter.Int64Counter(
		"analysis_decouplings_total",
		metric.WithDescription("Runs whose primary asset decoupled from its reference"),
	); err != nil {
		return nil, err
	}

	return &m, nil
}

// RunStatus classifies a finished run
func RunStatus(res *eventstudy.Result, err error) string {
	switch {
	case err != nil || res == nil:
		return RunStatusFailed
	case len(res.Failures) > 0 || res.Robustness.Failed > 0:
		return RunStatusPartial
	default:
		return RunStatusOK
	}
}

// RecordRun records the outcome of one analysis run. It is safe on a nil
// receiver.
func (m *AnalysisMetrics) RecordRun(ctx context.Context, res *eventstudy.Result, duration time.Duration, err error) {
	if m == nil {
		return
	}

	status := attribute.String("status", RunStatus(res, err))
	m.RunsTotal.Add(ctx, 1, metric.WithAttributes(status))
	m.RunDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(status))

	if res == nil {
		return
	}
	for _, row := range res.Robustness.Rows {
		if row.Status == eventstudy.StatusFailed {
			m.VariantFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", row.ErrorKind)))
		}
	}
	for _, f := range res.Failures {
		m.Failures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("scope", f.Scope),
			attribute.String("kind", f.Kind),
		))
	}
	if res.Decoupling != nil && res.Decoupling.Detected() {
		m.DecouplingsFound.Add(ctx, 1)
	}
}

// RecordFetch counts loaded price observations
func (m *AnalysisMetrics) RecordFetch(ctx context.Context, points int) {
	if m == nil {
		return
	}
	m.PricesFetched.Add(ctx, int64(points))
}

// RunStarted tracks an in-flight run; call the returned func when it ends
func (m *AnalysisMetrics) RunStarted(ctx context.Context) func() {
	if m == nil {
		return func() {}
	}
	m.ActiveRuns.Add(ctx, 1)
	return func() { m.ActiveRuns.Add(ctx, -1) }
}
