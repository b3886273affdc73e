// Package testutil builds deterministic market data fixtures shared by the
// service, transport and exporter tests.
package testutil

import (
	"math"
	"math/rand"
	"time"
	_ "time/tzdata"

	"crossmarket/internal/eventstudy"
)

// NewYork is the session location of every fixture
var NewYork = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// Scenario is a generated price set with a known divergence
type Scenario struct {
	Prices eventstudy.PriceSet
	Days   []time.Time
	Event  eventstudy.EventWindow
	Shock  time.Time
}

// SessionBars returns n weekdays starting at first and the 5-minute bar
// timestamps from 09:30 to 16:00 on each of them
func SessionBars(first time.Time, n int) (days []time.Time, ts []time.Time) {
	d := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, NewYork)
	for len(days) < n {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			days = append(days, d)
			open := time.Date(d.Year(), d.Month(), d.Day(), 9, 30, 0, 0, NewYork)
			for i := 0; i < 79; i++ {
				ts = append(ts, open.Add(time.Duration(i)*5*time.Minute))
			}
		}
		d = d.AddDate(0, 0, 1)
	}
	return days, ts
}

// PricePath compounds log returns from 100; the first return is ignored
func PricePath(asset string, ts []time.Time, rets []float64) []eventstudy.PricePoint {
	out := make([]eventstudy.PricePoint, len(ts))
	p := 100.0
	for i, t := range ts {
		if i > 0 {
			p *= math.Exp(rets[i])
		}
		out[i] = eventstudy.PricePoint{Asset: asset, Timestamp: t, Price: p, Volume: 1000 + float64((i*37)%101)}
	}
	return out
}

func normal(r *rand.Rand, n int, sd float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = r.NormFloat64() * sd
	}
	return out
}

func follow(r *rand.Rand, ref []float64, beta, amp float64) []float64 {
	out := make([]float64, len(ref))
	for i, x := range ref {
		out[i] = beta*x + (r.Float64()*2-1)*amp
	}
	return out
}

// StrikeScenario builds 25 sessions starting 2025-06-02. XLE tracks CL
// until it gains 1% per bar for three bars from 13:00 on the last day.
// ITA follows SPY; FRO and NAT follow SPY more loosely.
func StrikeScenario() Scenario {
	days, ts := SessionBars(time.Date(2025, 6, 2, 0, 0, 0, 0, NewYork), 25)
	r := rand.New(rand.NewSource(2024))
	n := len(ts)

	cl := normal(r, n, 0.001)
	spy := normal(r, n, 0.0008)
	xle := follow(r, cl, 1.0, 0.0005)
	ita := follow(r, spy, 0.9, 0.0005)
	fro := follow(r, spy, 0.5, 0.0006)
	nat := follow(r, spy, 0.6, 0.0006)

	eventDay := days[len(days)-1]
	shock := eventDay.Add(13 * time.Hour)
	for i, at := range ts {
		if !at.Before(shock) && at.Before(shock.Add(15*time.Minute)) {
			xle[i] += 0.01
		}
	}

	return Scenario{
		Prices: eventstudy.PriceSet{
			"CL":  PricePath("CL", ts, cl),
			"SPY": PricePath("SPY", ts, spy),
			"XLE": PricePath("XLE", ts, xle),
			"ITA": PricePath("ITA", ts, ita),
			"FRO": PricePath("FRO", ts, fro),
			"NAT": PricePath("NAT", ts, nat),
		},
		Days:  days,
		Shock: shock,
		Event: eventstudy.EventWindow{
			Label: "strike",
			Start: eventDay.Add(12 * time.Hour),
			End:   eventDay.Add(16*time.Hour + 5*time.Minute),
		},
	}
}

// Request is a run over the scenario with the defense basket and one
// factor-model variant
func (s Scenario) Request() eventstudy.Request {
	return eventstudy.Request{
		Label:           "strike",
		Event:           s.Event,
		Target:          "XLE",
		References:      []string{"CL"},
		BasketReference: "SPY",
		Baskets:         []eventstudy.Basket{Defense()},
		Variants:        []eventstudy.Variant{{Label: "factor", References: []string{"CL", "SPY"}}},
	}
}

// Defense is a one-asset basket present in the scenario
func Defense() eventstudy.Basket {
	return eventstudy.Basket{Name: "defense", Constituents: []eventstudy.Constituent{{Asset: "ITA"}}}
}

// Shipping is a basket with one constituent missing from the scenario
func Shipping() eventstudy.Basket {
	return eventstudy.Basket{Name: "shipping", Constituents: []eventstudy.Constituent{
		{Asset: "FRO"}, {Asset: "NAT"}, {Asset: "STNG"},
	}}
}
