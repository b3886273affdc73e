package eventstudy

import (
	"math"
	"sort"
	"time"
)

// DecouplingStatus is the outcome of a decoupling scan
type DecouplingStatus string

const (
	DecouplingDetected DecouplingStatus = "detected"
	DecouplingNone     DecouplingStatus = "none"
)

// DecouplingResult reports the first sustained departure from the baseline.
// At is nil when Status is DecouplingNone.
type DecouplingResult struct {
	Asset          string           `json:"asset"`
	Status         DecouplingStatus `json:"status"`
	At             *time.Time       `json:"at,omitempty"`
	RunLength      int              `json:"run_length,omitempty"`
	PeakResidualSD float64          `json:"peak_residual_sd,omitempty"`
	ThresholdSD    float64          `json:"threshold_sd"`
	MinSustained   int              `json:"min_sustained"`
	Bars           int              `json:"bars"`
}

// Detected reports whether a departure was found
func (r DecouplingResult) Detected() bool {
	return r.Status == DecouplingDetected && r.At != nil
}

// DecouplingDetector scans residuals against the baseline for sustained breaches
type DecouplingDetector struct {
	threshold    float64
	minSustained int
}

// NewDecouplingDetector creates a detector from the run configuration
func NewDecouplingDetector(cfg Config) DecouplingDetector {
	return DecouplingDetector{threshold: cfg.ThresholdSD, minSustained: cfg.MinSustained}
}

// ResidualMultiples returns |residual| / residual std for each panel row.
// With a zero baseline std any non-zero residual is an infinite multiple.
func (d DecouplingDetector) ResidualMultiples(panel Panel, baseline BaselineRelationship) []float64 {
	out := make([]float64, panel.Len())
	for i := range out {
		r := math.Abs(panel.Returns[i] - baseline.Expected(panel.Row(i)))
		switch {
		case baseline.ResidualStd > 0:
			out[i] = r / baseline.ResidualStd
		case r > 0:
			out[i] = math.Inf(1)
		}
	}
	return out
}

// Detect returns the timestamp of the first run of at least minSustained
// consecutive rows beyond the threshold, or the explicit none status.
// A dropped gap between two rows ends the current run.
func (d DecouplingDetector) Detect(panel Panel, baseline BaselineRelationship) DecouplingResult {
	res := DecouplingResult{
		Asset:        panel.Target,
		Status:       DecouplingNone,
		ThresholdSD:  d.threshold,
		MinSustained: d.minSustained,
		Bars:         panel.Len(),
	}

	start, run, peak := -1, 0, 0.0
	for i, m := range d.ResidualMultiples(panel, baseline) {
		if run > 0 && panel.BreakBefore(i) {
			if run >= d.minSustained {
				break
			}
			run = 0
		}
		if m > d.threshold {
			if run == 0 {
				start, peak = i, 0
			}
			run++
			peak = math.Max(peak, m)
			continue
		}
		if run >= d.minSustained {
			break
		}
		run = 0
	}

	if run >= d.minSustained && start >= 0 {
		at := panel.Timestamps[start]
		res.Status = DecouplingDetected
		res.At = &at
		res.RunLength = run
		if math.IsInf(peak, 1) {
			peak = math.MaxFloat64
		}
		res.PeakResidualSD = peak
	}
	return res
}

// BasketDecoupling is the earliest decoupling across several assets
type BasketDecoupling struct {
	Status DecouplingStatus `json:"status"`
	At     *time.Time       `json:"at,omitempty"`
	Assets []string         `json:"assets,omitempty"`
}

// DetectBasket reports every asset whose decoupling occurs at the earliest
// detected timestamp. Ties are all reported, sorted by asset.
func DetectBasket(results []DecouplingResult) BasketDecoupling {
	out := BasketDecoupling{Status: DecouplingNone}
	for _, r := range results {
		if !r.Detected() {
			continue
		}
		switch {
		case out.At == nil || r.At.Before(*out.At):
			at := *r.At
			out.At = &at
			out.Assets = []string{r.Asset}
		case r.At.Equal(*out.At):
			out.Assets = append(out.Assets, r.Asset)
		}
	}
	if out.At != nil {
		out.Status = DecouplingDetected
		sort.Strings(out.Assets)
	}
	return out
}
