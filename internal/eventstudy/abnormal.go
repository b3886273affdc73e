package eventstudy

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

// AbnormalReturn is the part of an observed return the baseline does not explain
type AbnormalReturn struct {
	Asset     string    `json:"asset"`
	Timestamp time.Time `json:"timestamp"`
	Observed  float64   `json:"observed_fraction"`
	Expected  float64   `json:"expected_fraction"`
	Abnormal  float64   `json:"abnormal_fraction"`
}

// CumulativeAbnormalReturn is the running sum of abnormal returns over a window
type CumulativeAbnormalReturn struct {
	Asset          string      `json:"asset"`
	Window         EventWindow `json:"window"`
	Fraction       float64     `json:"car_fraction"`
	Bars           int         `json:"bars"`
	StdErrFraction float64     `json:"std_err_fraction"`
	ZScoreSD       float64     `json:"z_score_sd"`
	Significant    bool        `json:"significant"`
	Degenerate     bool        `json:"degenerate,omitempty"`
}

// CARPoint is the cumulative abnormal return up to and including Timestamp
type CARPoint struct {
	Timestamp          time.Time `json:"timestamp"`
	CumulativeFraction float64   `json:"car_fraction"`
}

// CARCalculator computes abnormal returns and their cumulative sums
type CARCalculator struct {
	significanceSD float64
}

// NewCARCalculator creates a calculator from the run configuration
func NewCARCalculator(cfg Config) CARCalculator {
	return CARCalculator{significanceSD: cfg.SignificanceLevelSD}
}

// AbnormalReturns evaluates observed minus expected return for every panel
// row inside the window
func (c CARCalculator) AbnormalReturns(panel Panel, baseline BaselineRelationship, window EventWindow) ([]AbnormalReturn, error) {
	if len(panel.Factors) != len(baseline.Loadings) {
		return nil, &ValidationError{
			Field:   "references",
			Message: "panel references do not match baseline loadings",
			Value:   panel.References,
		}
	}
	sub := panel.Window(window)
	if sub.Len() == 0 {
		return nil, &InsufficientDataError{Subject: panel.Target, Have: 0, Need: 1, Reason: "bars in window " + window.Label}
	}

	out := make([]AbnormalReturn, sub.Len())
	for i := range out {
		exp := baseline.Expected(sub.Row(i))
		out[i] = AbnormalReturn{
			Asset:     panel.Target,
			Timestamp: sub.Timestamps[i],
			Observed:  sub.Returns[i],
			Expected:  exp,
			Abnormal:  sub.Returns[i] - exp,
		}
	}
	return out, nil
}

// Cumulate sums the abnormal returns that fall inside window. The standard
// error assumes independent residuals with the baseline residual std.
// A non-zero CAR against a zero residual std has no finite z-score: it is
// marked Degenerate and Significant, with StdErrFraction and ZScoreSD unset.
func (c CARCalculator) Cumulate(asset string, ars []AbnormalReturn, window EventWindow, residualStd float64) CumulativeAbnormalReturn {
	vals := make([]float64, 0, len(ars))
	for _, ar := range ars {
		if window.Contains(ar.Timestamp) {
			vals = append(vals, ar.Abnormal)
		}
	}
	car := CumulativeAbnormalReturn{
		Asset:    asset,
		Window:   window,
		Fraction: floats.Sum(vals),
		Bars:     len(vals),
	}
	if car.Bars == 0 {
		return car
	}
	switch {
	case residualStd > 0:
		car.StdErrFraction = math.Sqrt(float64(car.Bars)) * residualStd
		car.ZScoreSD = car.Fraction / car.StdErrFraction
		car.Significant = math.Abs(car.ZScoreSD) > c.significanceSD
	case car.Fraction != 0:
		car.Degenerate = true
		car.Significant = true
	}
	return car
}

// Split partitions the window at t into the CAR before t and the CAR from t on.
// The two parts always sum to the full-window CAR.
func (c CARCalculator) Split(asset string, ars []AbnormalReturn, window EventWindow, at time.Time, residualStd float64) (pre, post CumulativeAbnormalReturn) {
	pre = c.Cumulate(asset, ars, window.Sub(window.Label+"/pre-decoupling", window.Start, at), residualStd)
	post = c.Cumulate(asset, ars, window.Sub(window.Label+"/post-decoupling", at, window.End), residualStd)
	return pre, post
}

// Path returns the running CAR at every abnormal return timestamp
func Path(ars []AbnormalReturn) []CARPoint {
	out := make([]CARPoint, len(ars))
	var sum float64
	for i, ar := range ars {
		sum += ar.Abnormal
		out[i] = CARPoint{Timestamp: ar.Timestamp, CumulativeFraction: sum}
	}
	return out
}
