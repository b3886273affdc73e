package eventstudy

import (
	"math"
	"time"
)

// SpreadPoint is the normalised price gap between two assets at one bar
type SpreadPoint struct {
	Timestamp         time.Time `json:"timestamp"`
	TargetFraction    float64   `json:"target_fraction"`
	ReferenceFraction float64   `json:"reference_fraction"`
	SpreadFraction    float64   `json:"spread_fraction"`
}

// IntradaySpread tracks target/open minus reference/open through a window.
// Both series are normalised to the first bar they share. PeakFraction is
// the signed maximum spread, the metric scored against baseline days;
// PeakAbsFraction is the spread furthest from zero in either direction.
type IntradaySpread struct {
	Target          string        `json:"target"`
	Reference       string        `json:"reference"`
	Window          EventWindow   `json:"window"`
	Points          []SpreadPoint `json:"points"`
	PeakFraction    float64       `json:"peak_fraction"`
	PeakAt          *time.Time    `json:"peak_at,omitempty"`
	PeakAbsFraction float64       `json:"peak_abs_fraction"`
	PeakAbsAt       *time.Time    `json:"peak_abs_at,omitempty"`
}

// Bars returns the number of shared bars behind the spread
func (s IntradaySpread) Bars() int {
	return len(s.Points)
}

// ComputeIntradaySpread builds the normalised spread path over the bars both
// assets share inside window.
func ComputeIntradaySpread(target, reference []PricePoint, window EventWindow, session *Session) (IntradaySpread, error) {
	out := IntradaySpread{Window: window}
	if len(target) > 0 {
		out.Target = target[0].Asset
	}
	if len(reference) > 0 {
		out.Reference = reference[0].Asset
	}

	refAt := make(map[int64]float64, len(reference))
	for _, p := range reference {
		if window.Contains(p.Timestamp) {
			refAt[p.Timestamp.UnixNano()] = p.Price
		}
	}

	var baseT, baseR float64
	for _, p := range target {
		if !window.Contains(p.Timestamp) {
			continue
		}
		if session != nil && !session.Contains(p.Timestamp) {
			continue
		}
		rp, ok := refAt[p.Timestamp.UnixNano()]
		if !ok || p.Price <= 0 || rp <= 0 {
			continue
		}
		if baseT == 0 {
			baseT, baseR = p.Price, rp
		}
		tf := p.Price/baseT - 1
		rf := rp/baseR - 1
		out.Points = append(out.Points, SpreadPoint{
			Timestamp:         p.Timestamp,
			TargetFraction:    tf,
			ReferenceFraction: rf,
			SpreadFraction:    tf - rf,
		})
	}

	if len(out.Points) < 2 {
		return out, &InsufficientDataError{
			Subject: out.Target + "-" + out.Reference,
			Have:    len(out.Points),
			Need:    2,
			Reason:  "shared bars in window " + window.Label,
		}
	}

	for i := range out.Points {
		sp := out.Points[i]
		if out.PeakAt == nil || sp.SpreadFraction > out.PeakFraction {
			at := sp.Timestamp
			out.PeakAt = &at
			out.PeakFraction = sp.SpreadFraction
		}
		if out.PeakAbsAt == nil || math.Abs(sp.SpreadFraction) > math.Abs(out.PeakAbsFraction) {
			at := sp.Timestamp
			out.PeakAbsAt = &at
			out.PeakAbsFraction = sp.SpreadFraction
		}
	}
	return out, nil
}
