package eventstudy

import (
	"fmt"
	"time"
)

// Panel holds time-aligned returns of a target and its references.
// Factors[j][i] is the return of References[j] at Timestamps[i].
// Breaks[i] is set when a skipped gap row lies between rows i-1 and i.
// Panels share backing arrays when sliced and must be treated as read-only.
type Panel struct {
	Target      string
	References  []string
	Timestamps  []time.Time
	Returns     []float64
	Factors     [][]float64
	Breaks      []bool
	DroppedGaps int
}

// NewPanel builds a panel from already aligned columns
func NewPanel(target string, references []string, ts []time.Time, returns []float64, factors ...[]float64) (Panel, error) {
	if len(references) == 0 || len(references) != len(factors) {
		return Panel{}, &ValidationError{Field: "references", Message: "one factor column per reference is required", Value: len(factors)}
	}
	if len(ts) != len(returns) {
		return Panel{}, &ValidationError{Field: "returns", Message: "length must match timestamps", Value: len(returns)}
	}
	for j, f := range factors {
		if len(f) != len(ts) {
			return Panel{}, &ValidationError{Field: "factors", Message: fmt.Sprintf("column %s length must match timestamps", references[j]), Value: len(f)}
		}
	}
	for i := 1; i < len(ts); i++ {
		if !ts[i].After(ts[i-1]) {
			return Panel{}, &ValidationError{Field: "timestamps", Message: "must be strictly increasing", Value: ts[i]}
		}
	}
	return Panel{Target: target, References: references, Timestamps: ts, Returns: returns, Factors: factors}, nil
}

// Len returns the number of aligned rows
func (p Panel) Len() int {
	return len(p.Timestamps)
}

// BreakBefore reports whether a dropped gap separates row i from row i-1
func (p Panel) BreakBefore(i int) bool {
	return i > 0 && i < len(p.Breaks) && p.Breaks[i]
}

// Row returns the reference returns at row i
func (p Panel) Row(i int) []float64 {
	row := make([]float64, len(p.Factors))
	for j := range p.Factors {
		row[j] = p.Factors[j][i]
	}
	return row
}

// Slice returns the rows with timestamps in [start, end)
func (p Panel) Slice(start, end time.Time) Panel {
	lo, hi := len(p.Timestamps), len(p.Timestamps)
	for i, t := range p.Timestamps {
		if !t.Before(start) {
			lo = i
			break
		}
	}
	for i := lo; i < len(p.Timestamps); i++ {
		if !p.Timestamps[i].Before(end) {
			hi = i
			break
		}
	}
	out := Panel{
		Target:      p.Target,
		References:  p.References,
		Timestamps:  p.Timestamps[lo:hi],
		Returns:     p.Returns[lo:hi],
		Factors:     make([][]float64, len(p.Factors)),
		DroppedGaps: p.DroppedGaps,
	}
	for j := range p.Factors {
		out.Factors[j] = p.Factors[j][lo:hi]
	}
	if len(p.Breaks) == len(p.Timestamps) {
		out.Breaks = p.Breaks[lo:hi]
	}
	return out
}

// Window returns the rows inside an event window
func (p Panel) Window(w EventWindow) Panel {
	return p.Slice(w.Start, w.End)
}

// Align intersects the timestamps of target and references. Rows where any
// series carries a gap marker are handled according to policy.
func Align(policy GapPolicy, target ReturnSeries, refs ...ReturnSeries) (Panel, error) {
	if len(refs) == 0 {
		return Panel{}, &ValidationError{Field: "references", Message: "at least one reference series is required"}
	}
	if policy == "" {
		policy = GapPolicySkip
	}

	index := make([]map[int64]ReturnPoint, len(refs))
	names := make([]string, len(refs))
	for j, r := range refs {
		names[j] = r.Asset
		index[j] = make(map[int64]ReturnPoint, len(r.Points))
		for _, p := range r.Points {
			index[j][p.Timestamp.UnixNano()] = p
		}
	}

	panel := Panel{
		Target:     target.Asset,
		References: names,
		Factors:    make([][]float64, len(refs)),
	}

	broken := false
rows:
	for _, tp := range target.Points {
		key := tp.Timestamp.UnixNano()
		row := make([]ReturnPoint, len(refs))
		for j := range refs {
			rp, ok := index[j][key]
			if !ok {
				continue rows
			}
			row[j] = rp
		}

		gapAsset, gapBars := "", 0
		if tp.Gap {
			gapAsset, gapBars = target.Asset, tp.MissingBars
		}
		for j, rp := range row {
			if gapAsset == "" && rp.Gap {
				gapAsset, gapBars = names[j], rp.MissingBars
			}
		}
		if gapAsset != "" {
			switch policy {
			case GapPolicyFail:
				return Panel{}, &DataGapError{Asset: gapAsset, Timestamp: tp.Timestamp, MissingBars: gapBars}
			case GapPolicySkip:
				panel.DroppedGaps++
				broken = len(panel.Timestamps) > 0
				continue rows
			}
		}

		panel.Timestamps = append(panel.Timestamps, tp.Timestamp)
		panel.Returns = append(panel.Returns, tp.Return)
		panel.Breaks = append(panel.Breaks, broken)
		broken = false
		for j, rp := range row {
			panel.Factors[j] = append(panel.Factors[j], rp.Return)
		}
	}
	return panel, nil
}
