package eventstudy

import (
	"time"
)

// ReturnMode selects how consecutive prices are turned into returns
type ReturnMode string

const (
	// ReturnModeLog computes ln(p_t / p_{t-1})
	ReturnModeLog ReturnMode = "log"
	// ReturnModeSimple computes p_t / p_{t-1} - 1, for parity with published figures
	ReturnModeSimple ReturnMode = "simple"
)

// IsValid reports whether the mode is known
func (m ReturnMode) IsValid() bool {
	return m == ReturnModeLog || m == ReturnModeSimple
}

// GapPolicy decides what alignment does with returns that span missing bars
type GapPolicy string

const (
	// GapPolicySkip drops gap rows and counts them on the panel
	GapPolicySkip GapPolicy = "skip"
	// GapPolicyInclude keeps gap rows as observed
	GapPolicyInclude GapPolicy = "include"
	// GapPolicyFail aborts alignment with a DataGapError
	GapPolicyFail GapPolicy = "fail"
)

// IsValid reports whether the policy is known
func (p GapPolicy) IsValid() bool {
	return p == GapPolicySkip || p == GapPolicyInclude || p == GapPolicyFail
}

// Unit names the scale of a reported number
type Unit string

const (
	UnitFraction          Unit = "fraction"
	UnitPercentagePoints  Unit = "percentage_points"
	UnitStandardDeviation Unit = "standard_deviations"
	UnitPercentile        Unit = "percentile"
	UnitShares            Unit = "shares"
)

// PricePoint is a single observation of an asset's price
type PricePoint struct {
	Asset     string    `json:"asset"`
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume,omitempty"`
}

// PriceSet maps an asset identifier to its ordered price observations.
// The engine only reads from it.
type PriceSet map[string][]PricePoint

// ReturnPoint is one return observation. Gap marks a return that spans
// MissingBars absent bars; it is never interpolated.
type ReturnPoint struct {
	Timestamp   time.Time `json:"timestamp"`
	Return      float64   `json:"return_fraction"`
	Gap         bool      `json:"gap,omitempty"`
	MissingBars int       `json:"missing_bars,omitempty"`
}

// ReturnSeries is an ordered sequence of returns for one asset
type ReturnSeries struct {
	Asset    string        `json:"asset"`
	Interval time.Duration `json:"interval"`
	Mode     ReturnMode    `json:"mode"`
	Points   []ReturnPoint `json:"points"`
}

// Len returns the number of returns
func (rs ReturnSeries) Len() int {
	return len(rs.Points)
}

// Values returns the return values in order
func (rs ReturnSeries) Values() []float64 {
	out := make([]float64, len(rs.Points))
	for i, p := range rs.Points {
		out[i] = p.Return
	}
	return out
}

// Gaps counts gap-marked returns
func (rs ReturnSeries) Gaps() int {
	n := 0
	for _, p := range rs.Points {
		if p.Gap {
			n++
		}
	}
	return n
}

// EventWindow is the half-open interval [Start, End) scanned for decoupling
// and over which abnormal returns are accumulated
type EventWindow struct {
	Label string    `json:"label" yaml:"label"`
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
}

// Contains reports whether t falls inside the window
func (w EventWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// IsValid checks that the window is non-empty
func (w EventWindow) IsValid() bool {
	return !w.Start.IsZero() && w.End.After(w.Start)
}

// Sub returns the part of the window in [start, end), clipped to the window
func (w EventWindow) Sub(label string, start, end time.Time) EventWindow {
	if start.Before(w.Start) {
		start = w.Start
	}
	if end.After(w.End) {
		end = w.End
	}
	return EventWindow{Label: label, Start: start, End: end}
}

// ShiftDays moves the window by n calendar days in loc, keeping wall-clock times
func (w EventWindow) ShiftDays(n int, loc *time.Location) EventWindow {
	if loc == nil {
		loc = time.UTC
	}
	return EventWindow{
		Label: w.Label,
		Start: w.Start.In(loc).AddDate(0, 0, n),
		End:   w.End.In(loc).AddDate(0, 0, n),
	}
}
