package exporter

import (
	"sort"
	"strings"

	"crossmarket/internal/eventstudy"
	"crossmarket/internal/services"
)

// Table is one section of a run report laid out as rows
type Table struct {
	Name    string
	Headers []string
	Rows    [][]interface{}
}

// Records renders the rows as CSV strings
func (t Table) Records() [][]string {
	out := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		rec := make([]string, len(row))
		for j, v := range row {
			rec[j] = cellString(v)
		}
		out[i] = rec
	}
	return out
}

// Sections lays a report out as the tables of the workbook, in sheet order
func Sections(report *services.RunReport) []Table {
	res := report.Result
	if res == nil {
		res = &eventstudy.Result{}
	}
	tables := []Table{
		summaryTable(report, res),
		assetTable(res),
		basketTable(res),
		spreadTable(res),
		significanceTable(res),
		RobustnessTable(res),
		failureTable(res),
		pathTable(res),
	}
	if res.Spread != nil {
		tables = append(tables, intradayTable(res.Spread))
	}
	return tables
}

func summaryTable(report *services.RunReport, res *eventstudy.Result) Table {
	t := Table{Name: "Summary", Headers: []string{"Field", "Value"}}
	add := func(k string, v interface{}) { t.Rows = append(t.Rows, []interface{}{k, v}) }

	add("Run ID", report.RunID)
	add("Generated At", report.GeneratedAt)
	add("Label", res.Label)
	add("Event Start", res.Event.Start)
	add("Event End", res.Event.End)
	add("Target", res.Target)
	add("References", res.References)
	add("Return Mode", string(res.ReturnMode))
	add("Baseline Days", res.BaselineDays)
	add("Primary Status", res.Primary.Status)
	if res.Primary.CAR != nil {
		add("CAR (%)", pct(res.Primary.CAR.Fraction))
		add("CAR z (SD)", zValue(res.Primary.CAR.ZScoreSD, res.Primary.CAR.Degenerate))
		add("CAR Significant", res.Primary.CAR.Significant)
		add("CAR Degenerate", res.Primary.CAR.Degenerate)
	}
	if res.Decoupling != nil {
		add("Decoupling", string(res.Decoupling.Status))
		add("Decoupled At", formatTimePtr(res.Decoupling.At))
		add("Peak Residual (SD)", res.Decoupling.PeakResidualSD)
	}
	if res.Baseline != nil {
		add("Beta", res.Baseline.Beta)
		add("Correlation", res.Baseline.Correlation)
		add("Residual Std (%)", pct(res.Baseline.ResidualStd))
		add("Baseline Observations", res.Baseline.Observations)
	}
	add("Missing Assets", report.MissingAssets)
	add("Failures", len(res.Failures))
	add("Variants Failed", res.Robustness.Failed)
	add("Duration (ms)", report.DurationMS)
	return t
}

func assetTable(res *eventstudy.Result) Table {
	t := Table{Name: "Assets", Headers: []string{
		"Role", "Asset", "References", "Status", "Beta", "R2", "Residual Std (%)",
		"CAR (%)", "Std Err (%)", "CAR z (SD)", "Significant", "Pre-Decoupling CAR (%)",
		"Post-Decoupling CAR (%)", "Decoupling", "Decoupled At", "Placebo Windows", "Error",
	}}
	add := func(role string, a eventstudy.AssetResult) {
		row := []interface{}{role, a.Asset, a.References, a.Status}
		if a.Baseline != nil {
			row = append(row, a.Baseline.Beta, a.Baseline.RSquared, pct(a.Baseline.ResidualStd))
		} else {
			row = append(row, nil, nil, nil)
		}
		if a.CAR != nil {
			row = append(row, pct(a.CAR.Fraction), pct(a.CAR.StdErrFraction), zValue(a.CAR.ZScoreSD, a.CAR.Degenerate), a.CAR.Significant)
		} else {
			row = append(row, nil, nil, nil, nil)
		}
		row = append(row, carPct(a.PreDecoupling), carPct(a.PostDecoupling))
		if a.Decoupling != nil {
			row = append(row, string(a.Decoupling.Status), formatTimePtr(a.Decoupling.At))
		} else {
			row = append(row, nil, nil)
		}
		row = append(row, a.PlaceboWindows, a.Error)
		t.Rows = append(t.Rows, row)
	}

	add("primary", res.Primary)
	for _, s := range res.Subjects {
		add("subject", s)
	}
	for _, c := range res.Constituents {
		add("constituent", c)
	}
	return t
}

// zValue leaves the z cell empty when no finite z-score exists
func zValue(z float64, degenerate bool) interface{} {
	if degenerate {
		return nil
	}
	return z
}

// optional renders a score field that may be unset
func optional(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func carPct(c *eventstudy.CumulativeAbnormalReturn) interface{} {
	if c == nil {
		return nil
	}
	return pct(c.Fraction)
}

func basketTable(res *eventstudy.Result) Table {
	t := Table{Name: "Baskets", Headers: []string{
		"Basket", "Status", "CAR (%)", "Rank", "Complete", "Available", "Missing", "Weights", "Error",
	}}
	for _, b := range res.Baskets {
		missing := make([]string, len(b.Missing))
		for i, m := range b.Missing {
			missing[i] = m.Asset
		}
		t.Rows = append(t.Rows, []interface{}{
			b.Name, b.Status, pct(b.Fraction), b.Rank, b.Complete, b.Available, missing, weights(b.Weights), b.Error,
		})
	}
	return t
}

func weights(w map[string]float64) string {
	keys := make([]string, 0, len(w))
	for k := range w {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + formatFloat(w[k], 4)
	}
	return strings.Join(parts, ";")
}

func spreadTable(res *eventstudy.Result) Table {
	t := Table{Name: "Spreads", Headers: []string{
		"Basket A", "Basket B", "Status", "Spread (pp)", "Rank", "Complete", "Character", "Error",
	}}
	for _, s := range res.Spreads {
		t.Rows = append(t.Rows, []interface{}{
			s.BasketA, s.BasketB, s.Status, s.ValuePP, s.Rank, s.Complete, s.Character, s.Error,
		})
	}
	return t
}

func significanceTable(res *eventstudy.Result) Table {
	t := Table{Name: "Significance", Headers: []string{
		"Metric", "Unit", "Observed", "Baseline Mean", "Baseline Std", "z (SD)",
		"Percentile", "Method", "Samples", "Status", "Significant", "Reason",
	}}
	for _, s := range res.Significance {
		t.Rows = append(t.Rows, []interface{}{
			s.Metric, string(s.Unit), s.Observed, s.BaselineMean, s.BaselineStd, optional(s.ZScoreSD),
			optional(s.PercentilePctl), string(s.Method), s.SampleCount, string(s.Status), s.Significant, s.Reason,
		})
	}
	return t
}

// RobustnessTable has one row per variant in label order, failed variants
// included
func RobustnessTable(res *eventstudy.Result) Table {
	t := Table{Name: "Robustness", Headers: []string{
		"Variant", "Status", "CAR (%)", "CAR z (SD)", "Decoupling", "Decoupled At", "Error Kind", "Error",
	}}
	for _, row := range res.Robustness.Rows {
		t.Rows = append(t.Rows, []interface{}{
			row.Label, row.Status, pct(row.CARFraction), zValue(row.ZScoreSD, row.Degenerate), string(row.Decoupling),
			formatTimePtr(row.DecoupledAt), row.ErrorKind, row.Error,
		})
	}
	return t
}

func failureTable(res *eventstudy.Result) Table {
	t := Table{Name: "Failures", Headers: []string{"Scope", "Subject", "Kind", "Reason"}}
	for _, f := range res.Failures {
		t.Rows = append(t.Rows, []interface{}{f.Scope, f.Subject, f.Kind, f.Reason})
	}
	return t
}

func pathTable(res *eventstudy.Result) Table {
	t := Table{Name: "CAR Path", Headers: []string{"Timestamp", "CAR (%)"}}
	for _, p := range res.Primary.Path {
		t.Rows = append(t.Rows, []interface{}{p.Timestamp, pct(p.CumulativeFraction)})
	}
	return t
}

func intradayTable(s *eventstudy.IntradaySpread) Table {
	t := Table{Name: "Intraday Spread", Headers: []string{
		"Timestamp", s.Target + " (%)", s.Reference + " (%)", "Spread (%)",
	}}
	for _, p := range s.Points {
		t.Rows = append(t.Rows, []interface{}{
			p.Timestamp, pct(p.TargetFraction), pct(p.ReferenceFraction), pct(p.SpreadFraction),
		})
	}
	return t
}
