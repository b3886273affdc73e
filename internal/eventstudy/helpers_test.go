package eventstudy

import (
	"math"
	"math/rand"
	"time"
)

var newYork = mustLocation("America/New_York")

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// minutes returns n timestamps spaced by step from start
func minutes(start time.Time, n int, step time.Duration) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * step)
	}
	return out
}

// sessionBars returns the 5-minute bars 09:30-16:00 of n consecutive weekdays
func sessionBars(first time.Time, n int) (days []time.Time, ts []time.Time) {
	d := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, newYork)
	for len(days) < n {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			days = append(days, d)
			open := time.Date(d.Year(), d.Month(), d.Day(), 9, 30, 0, 0, newYork)
			ts = append(ts, minutes(open, 79, 5*time.Minute)...)
		}
		d = d.AddDate(0, 0, 1)
	}
	return days, ts
}

// pricePath compounds log returns from 100; the first return is ignored
func pricePath(asset string, ts []time.Time, rets []float64) []PricePoint {
	out := make([]PricePoint, len(ts))
	p := 100.0
	for i, t := range ts {
		if i > 0 {
			p *= math.Exp(rets[i])
		}
		out[i] = PricePoint{Asset: asset, Timestamp: t, Price: p, Volume: 1000 + float64((i*37)%101)}
	}
	return out
}

// normalReturns draws n returns with the given standard deviation
func normalReturns(r *rand.Rand, n int, sd float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = r.NormFloat64() * sd
	}
	return out
}

// followReturns returns beta*ref plus uniform noise bounded by amp. The noise
// never exceeds sqrt(3) of its own standard deviation.
func followReturns(r *rand.Rand, ref []float64, beta, amp float64) []float64 {
	out := make([]float64, len(ref))
	for i, x := range ref {
		out[i] = beta*x + (r.Float64()*2-1)*amp
	}
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Concurrency = 2
	return cfg
}
