package eventstudy

import (
	"fmt"
	"math"
	"time"
)

// ReturnBuilder converts ordered prices into returns
type ReturnBuilder struct {
	mode     ReturnMode
	interval time.Duration
	session  *Session
}

// NewReturnBuilder creates a builder from the run configuration
func NewReturnBuilder(cfg Config) ReturnBuilder {
	mode := cfg.ReturnMode
	if mode == "" {
		mode = ReturnModeLog
	}
	return ReturnBuilder{mode: mode, interval: cfg.Interval, session: cfg.Session}
}

// Build produces one return per consecutive pair of prices in [start, end).
// Prices outside the configured session are ignored. A pair separated by more
// than the sampling interval inside one session is marked as a gap.
func (b ReturnBuilder) Build(points []PricePoint, start, end time.Time) (ReturnSeries, error) {
	asset := ""
	if len(points) > 0 {
		asset = points[0].Asset
	}

	window := make([]PricePoint, 0, len(points))
	for i, p := range points {
		if i > 0 && !p.Timestamp.After(points[i-1].Timestamp) {
			return ReturnSeries{}, &ValidationError{
				Field:   "timestamp",
				Message: fmt.Sprintf("%s timestamps must be strictly increasing", asset),
				Value:   p.Timestamp,
			}
		}
		if math.IsNaN(p.Price) || math.IsInf(p.Price, 0) || p.Price <= 0 {
			return ReturnSeries{}, &ValidationError{
				Field:   "price",
				Message: fmt.Sprintf("%s price must be positive and finite", asset),
				Value:   p.Price,
			}
		}
		if p.Timestamp.Before(start) || !p.Timestamp.Before(end) {
			continue
		}
		if b.session != nil && !b.session.Contains(p.Timestamp) {
			continue
		}
		window = append(window, p)
	}

	if len(window) < 2 {
		return ReturnSeries{}, &InsufficientDataError{
			Subject: asset,
			Have:    len(window),
			Need:    2,
			Reason:  "prices in window",
		}
	}

	series := ReturnSeries{
		Asset:    asset,
		Interval: b.interval,
		Mode:     b.mode,
		Points:   make([]ReturnPoint, 0, len(window)-1),
	}
	for i := 1; i < len(window); i++ {
		prev, cur := window[i-1], window[i]
		missing := b.missingBars(prev.Timestamp, cur.Timestamp)
		series.Points = append(series.Points, ReturnPoint{
			Timestamp:   cur.Timestamp,
			Return:      b.ret(prev.Price, cur.Price),
			Gap:         missing > 0,
			MissingBars: missing,
		})
	}
	return series, nil
}

func (b ReturnBuilder) ret(prev, cur float64) float64 {
	if b.mode == ReturnModeSimple {
		return cur/prev - 1
	}
	return math.Log(cur / prev)
}

// missingBars counts absent bars between two consecutive observations
func (b ReturnBuilder) missingBars(prev, cur time.Time) int {
	if b.interval <= 0 {
		return 0
	}
	if b.session != nil && !b.session.SameDay(prev, cur) {
		return 0
	}
	delta := cur.Sub(prev)
	if delta <= b.interval {
		return 0
	}
	n := int(delta / b.interval)
	if delta%b.interval != 0 {
		n++
	}
	return n - 1
}
