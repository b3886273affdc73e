package eventstudy

import (
	"time"
)

// BaselineDays picks the last n trading days strictly before the event date
// from the observed timestamps. It returns fewer days when fewer exist.
func BaselineDays(ts []time.Time, event EventWindow, n int, loc *time.Location) []time.Time {
	eventDay := Day(event.Start, loc)
	var prior []time.Time
	for _, d := range TradingDays(ts, loc) {
		if d.Before(eventDay) {
			prior = append(prior, d)
		}
	}
	if len(prior) > n {
		prior = prior[len(prior)-n:]
	}
	return prior
}

// PlaceboWindows shifts the event window onto each of days, keeping the
// wall-clock bounds. Windows that would reach into the event are dropped.
// Each placebo window is labelled with its date.
func PlaceboWindows(event EventWindow, days []time.Time, loc *time.Location) []EventWindow {
	eventDay := Day(event.Start, loc)
	out := make([]EventWindow, 0, len(days))
	for _, d := range days {
		shift := calendarDaysBetween(eventDay, Day(d, loc))
		if shift >= 0 {
			continue
		}
		w := event.ShiftDays(shift, loc)
		if w.End.After(event.Start) {
			continue
		}
		w.Label = Day(d, loc).Format("2006-01-02")
		out = append(out, w)
	}
	return out
}

// ClockVolume returns the volume of the bar stamped at clock on day
func ClockVolume(points []PricePoint, day time.Time, clock time.Duration, loc *time.Location) (float64, bool) {
	d := Day(day, loc)
	for _, p := range points {
		if Day(p.Timestamp, loc).Equal(d) && ClockOf(p.Timestamp, loc) == clock {
			return p.Volume, true
		}
	}
	return 0, false
}

// ClockVolumes collects the volume of the bar at clock on each day that has one
func ClockVolumes(points []PricePoint, days []time.Time, clock time.Duration, loc *time.Location) []float64 {
	want := make(map[time.Time]bool, len(days))
	for _, d := range days {
		want[Day(d, loc)] = true
	}
	var out []float64
	for _, p := range points {
		if want[Day(p.Timestamp, loc)] && ClockOf(p.Timestamp, loc) == clock {
			out = append(out, p.Volume)
		}
	}
	return out
}
