package eventstudy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// Variant is one alternate configuration of the primary analysis. Zero
// fields fall back to the request and engine defaults.
type Variant struct {
	Label        string       `json:"label" yaml:"label" validate:"required"`
	BaselineDays int          `json:"baseline_days,omitempty" yaml:"baseline_days" validate:"gte=0"`
	References   []string     `json:"references,omitempty" yaml:"references"`
	Event        *EventWindow `json:"event,omitempty" yaml:"event"`
}

// VariantOutcome is what a variant run reports back to the harness
type VariantOutcome struct {
	CARFraction float64
	ZScoreSD    float64
	Degenerate  bool
	Decoupling  DecouplingStatus
	DecoupledAt *time.Time
}

// VariantRow is one row of the robustness table
type VariantRow struct {
	Label       string           `json:"label"`
	Status      string           `json:"status"`
	CARFraction float64          `json:"car_fraction"`
	ZScoreSD    float64          `json:"z_score_sd"`
	Degenerate  bool             `json:"degenerate,omitempty"`
	Decoupling  DecouplingStatus `json:"decoupling,omitempty"`
	DecoupledAt *time.Time       `json:"decoupled_at,omitempty"`
	ErrorKind   string           `json:"error_kind,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// RobustnessTable has exactly one row per variant, sorted by label
type RobustnessTable struct {
	Rows   []VariantRow `json:"rows"`
	Failed int          `json:"failed"`
}

// VariantFunc runs the analysis chain for one variant
type VariantFunc func(ctx context.Context, v Variant) (VariantOutcome, error)

// Harness re-runs the analysis under each variant
type Harness struct {
	concurrency int
	logger      *slog.Logger
}

// NewHarness creates a harness from the run configuration
func NewHarness(cfg Config, logger *slog.Logger) Harness {
	if logger == nil {
		logger = slog.Default()
	}
	n := cfg.Concurrency
	if n <= 0 {
		n = 1
	}
	return Harness{concurrency: n, logger: logger}
}

// Run evaluates every variant. A failing variant becomes a failed row.
// When every variant fails the table is returned with AllVariantsFailedError.
func (h Harness) Run(ctx context.Context, variants []Variant, fn VariantFunc) (RobustnessTable, error) {
	seen := make(map[string]bool, len(variants))
	for _, v := range variants {
		if v.Label == "" {
			return RobustnessTable{}, &ValidationError{Field: "variants.label", Message: "is required"}
		}
		if seen[v.Label] {
			return RobustnessTable{}, &ValidationError{Field: "variants.label", Message: "must be unique", Value: v.Label}
		}
		seen[v.Label] = true
	}

	rows := make([]VariantRow, len(variants))
	var g errgroup.Group
	g.SetLimit(h.concurrency)
	for i, v := range variants {
		g.Go(func() error {
			rows[i] = h.runOne(ctx, v, fn)
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(rows, func(a, b int) bool { return rows[a].Label < rows[b].Label })

	table := RobustnessTable{Rows: rows}
	for _, r := range rows {
		if r.Status == StatusFailed {
			table.Failed++
		}
	}

	h.logger.InfoContext(ctx, "robustness variants completed",
		"variants", len(rows),
		"failed", table.Failed,
	)

	if len(rows) > 0 && table.Failed == len(rows) {
		return table, &AllVariantsFailedError{Variants: len(rows)}
	}
	return table, nil
}

func (h Harness) runOne(ctx context.Context, v Variant, fn VariantFunc) (row VariantRow) {
	row = VariantRow{Label: v.Label}
	if err := ctx.Err(); err != nil {
		row.Status = StatusFailed
		row.ErrorKind = KindCancelled
		row.Error = fmt.Errorf("%w: %w", errCancelled, err).Error()
		return row
	}

	defer func() {
		if r := recover(); r != nil {
			row = VariantRow{
				Label:     v.Label,
				Status:    StatusFailed,
				ErrorKind: KindUnknown,
				Error:     fmt.Sprintf("variant panicked: %v", r),
			}
		}
	}()

	out, err := fn(ctx, v)
	if err != nil {
		h.logger.WarnContext(ctx, "robustness variant failed",
			"variant", v.Label,
			"kind", FailureKind(err),
			"error", err,
		)
		row.Status = StatusFailed
		row.ErrorKind = FailureKind(err)
		row.Error = err.Error()
		return row
	}

	row.Status = StatusOK
	row.CARFraction = out.CARFraction
	row.ZScoreSD = out.ZScoreSD
	row.Degenerate = out.Degenerate
	row.Decoupling = out.Decoupling
	row.DecoupledAt = out.DecoupledAt
	return row
}
