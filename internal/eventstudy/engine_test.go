package eventstudy

import (
	"context"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scenario struct {
	prices PriceSet
	days   []time.Time
	event  EventWindow
	shock  time.Time
}

// strikeScenario builds 25 sessions of 5-minute bars. XLE tracks CL with
// bounded noise until it jumps 1% per bar for three bars at 13:00 on the last
// day; the 15:55 XLE bar of that day carries an outsized volume.
func strikeScenario(t *testing.T) scenario {
	t.Helper()
	days, ts := sessionBars(time.Date(2025, 6, 2, 0, 0, 0, 0, newYork), 25)
	r := rand.New(rand.NewSource(2024))
	n := len(ts)

	cl := normalReturns(r, n, 0.001)
	spy := normalReturns(r, n, 0.0008)
	xle := followReturns(r, cl, 1.0, 0.0005)
	oxy := followReturns(r, cl, 0.8, 0.0005)
	ita := followReturns(r, spy, 0.9, 0.0005)
	fro := followReturns(r, spy, 0.5, 0.0006)
	nat := followReturns(r, spy, 0.6, 0.0006)

	eventDay := days[24]
	shock := eventDay.Add(13 * time.Hour)
	for i, at := range ts {
		if !at.Before(shock) && at.Before(shock.Add(15*time.Minute)) {
			xle[i] += 0.01
		}
	}

	prices := PriceSet{
		"CL":  pricePath("CL", ts, cl),
		"SPY": pricePath("SPY", ts, spy),
		"XLE": pricePath("XLE", ts, xle),
		"OXY": pricePath("OXY", ts, oxy),
		"ITA": pricePath("ITA", ts, ita),
		"FRO": pricePath("FRO", ts, fro),
		"NAT": pricePath("NAT", ts, nat),
	}
	moc := eventDay.Add(15*time.Hour + 55*time.Minute)
	for i, p := range prices["XLE"] {
		if p.Timestamp.Equal(moc) {
			prices["XLE"][i].Volume = 50000
		}
	}

	return scenario{
		prices: prices,
		days:   days,
		shock:  shock,
		event: EventWindow{
			Label: "strike",
			Start: eventDay.Add(12 * time.Hour),
			End:   eventDay.Add(16*time.Hour + 5*time.Minute),
		},
	}
}

func strikeRequest(sc scenario) Request {
	return Request{
		Label:      "strike",
		Event:      sc.event,
		Target:     "XLE",
		References: []string{"CL"},
		Subjects: []Subject{
			{Asset: "OXY", References: []string{"CL"}},
			{Asset: "HAL", References: []string{"XLE"}},
		},
		Baskets: []Basket{
			{Name: "defense", Constituents: []Constituent{{Asset: "ITA"}}},
			{Name: "shipping", Constituents: []Constituent{{Asset: "FRO"}, {Asset: "NAT"}, {Asset: "STNG"}}},
		},
		BasketReference: "SPY",
		SpreadPairs:     []SpreadPair{{A: "defense", B: "shipping", Classify: true}},
		VolumeChecks:    []VolumeCheck{{Asset: "XLE", Clock: "15:55"}},
		Variants: []Variant{
			{Label: "c-missing-reference", References: []string{"NOPE"}},
			{Label: "a-10-day-baseline", BaselineDays: 10},
			{Label: "b-factor-model", References: []string{"CL", "SPY"}},
		},
	}
}

func scoreFor(t *testing.T, res *Result, metric string) SignificanceScore {
	t.Helper()
	for _, s := range res.Significance {
		if s.Metric == metric {
			return s
		}
	}
	t.Fatalf("no significance score for %s", metric)
	return SignificanceScore{}
}

func hasFailure(res *Result, scope, subject, kind string) bool {
	for _, f := range res.Failures {
		if f.Scope == scope && f.Subject == subject && f.Kind == kind {
			return true
		}
	}
	return false
}

func TestEngine_Run(t *testing.T) {
	sc := strikeScenario(t)
	engine, err := NewEngine(testConfig(), slog.Default())
	require.NoError(t, err)

	res, err := engine.Run(context.Background(), sc.prices, strikeRequest(sc))
	require.NoError(t, err)
	require.NotNil(t, res)

	t.Run("primary decoupling and CAR", func(t *testing.T) {
		require.NotNil(t, res.Decoupling)
		require.True(t, res.Decoupling.Detected())
		assert.True(t, res.Decoupling.At.Equal(sc.shock), "decoupled at %s", res.Decoupling.At)
		assert.GreaterOrEqual(t, res.Decoupling.RunLength, 3)

		require.NotNil(t, res.Baseline)
		assert.InDelta(t, 1.0, res.Baseline.Beta, 0.05)
		assert.Equal(t, 20*79+30-1, res.Baseline.Observations)

		car := res.Primary.CAR
		require.NotNil(t, car)
		assert.InDelta(t, 0.03, car.Fraction, 0.01)
		assert.Equal(t, 49, car.Bars)
		assert.True(t, car.Significant)

		require.NotNil(t, res.Primary.PreDecoupling)
		require.NotNil(t, res.Primary.PostDecoupling)
		assert.InDelta(t, car.Fraction, res.Primary.PreDecoupling.Fraction+res.Primary.PostDecoupling.Fraction, 1e-12)
		assert.Less(t, res.Primary.PreDecoupling.Fraction, 0.01)
		assert.Len(t, res.Primary.Path, 49)
		assert.Equal(t, 20, res.Primary.PlaceboWindows)
	})

	t.Run("significance against placebo windows", func(t *testing.T) {
		s := scoreFor(t, res, "car:XLE")
		assert.Equal(t, ScoreSufficient, s.Status)
		assert.Equal(t, 20, s.SampleCount)
		require.NotNil(t, s.ZScoreSD)
		assert.Greater(t, *s.ZScoreSD, 3.0)

		v := scoreFor(t, res, "volume:XLE@15:55")
		assert.Equal(t, ScoreSufficient, v.Status)
		assert.Equal(t, UnitShares, v.Unit)
		require.NotNil(t, v.ZScoreSD)
		assert.Greater(t, *v.ZScoreSD, 10.0)

		require.NotNil(t, res.Spread)
		assert.Greater(t, res.Spread.PeakFraction, 0.02)
		sp := scoreFor(t, res, "peak-spread:XLE-CL")
		assert.Equal(t, res.Spread.PeakFraction, sp.Observed)
		assert.Equal(t, 20, sp.SampleCount)
	})

	t.Run("subjects keep failures", func(t *testing.T) {
		require.Len(t, res.Subjects, 2)
		assert.Equal(t, StatusOK, res.Subjects[0].Status)
		assert.InDelta(t, 0.8, res.Subjects[0].Baseline.Beta, 0.05)
		assert.Equal(t, StatusFailed, res.Subjects[1].Status)
		assert.Equal(t, KindInsufficientData, res.Subjects[1].ErrorKind)
		assert.True(t, hasFailure(res, "subject", "HAL", KindInsufficientData))
	})

	t.Run("baskets and spreads", func(t *testing.T) {
		require.Len(t, res.Baskets, 2)
		defense, shipping := res.Baskets[0], res.Baskets[1]
		assert.True(t, defense.OK())
		assert.True(t, defense.Complete)
		assert.True(t, shipping.OK())
		assert.False(t, shipping.Complete)
		assert.Equal(t, []string{"FRO", "NAT"}, shipping.Available)
		require.Len(t, shipping.Missing, 1)
		assert.Equal(t, "STNG", shipping.Missing[0].Asset)
		assert.True(t, hasFailure(res, "constituent", "shipping/STNG", KindInsufficientData))

		require.Len(t, res.Spreads, 1)
		sp := res.Spreads[0]
		assert.Equal(t, StatusOK, sp.Status)
		assert.InDelta(t, (defense.Fraction-shipping.Fraction)*100, sp.ValuePP, 1e-9)
		assert.NotEmpty(t, sp.Character)
		assert.Equal(t, 1, sp.Rank)
		scoreFor(t, res, "spread:defense-shipping")
	})

	t.Run("robustness table", func(t *testing.T) {
		rows := res.Robustness.Rows
		require.Len(t, rows, 3)
		assert.Equal(t, "a-10-day-baseline", rows[0].Label)
		assert.Equal(t, StatusOK, rows[0].Status)
		assert.Equal(t, DecouplingDetected, rows[0].Decoupling)
		assert.Equal(t, "b-factor-model", rows[1].Label)
		assert.Equal(t, StatusOK, rows[1].Status)
		assert.InDelta(t, 0.03, rows[1].CARFraction, 0.01)
		assert.Equal(t, "c-missing-reference", rows[2].Label)
		assert.Equal(t, StatusFailed, rows[2].Status)
		assert.Equal(t, KindInsufficientData, rows[2].ErrorKind)
		assert.Equal(t, 1, res.Robustness.Failed)
	})
}

func TestEngine_SpreadBaselineSkipsShortDays(t *testing.T) {
	sc := strikeScenario(t)
	cfg := testConfig()
	cfg.MinSpreadBars = 1000
	engine, err := NewEngine(cfg, slog.Default())
	require.NoError(t, err)

	res, err := engine.Run(context.Background(), sc.prices, strikeRequest(sc))
	require.NoError(t, err)

	require.NotNil(t, res.Spread)
	sp := scoreFor(t, res, "peak-spread:XLE-CL")
	assert.Zero(t, sp.SampleCount)
	assert.Equal(t, ScoreInsufficient, sp.Status)
	assert.Nil(t, sp.ZScoreSD)
}

func TestEngine_RunIsDeterministic(t *testing.T) {
	sc := strikeScenario(t)
	engine, err := NewEngine(testConfig(), slog.Default())
	require.NoError(t, err)

	first, err := engine.Run(context.Background(), sc.prices, strikeRequest(sc))
	require.NoError(t, err)
	second, err := engine.Run(context.Background(), sc.prices, strikeRequest(sc))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEngine_RunFailures(t *testing.T) {
	sc := strikeScenario(t)
	engine, err := NewEngine(testConfig(), nil)
	require.NoError(t, err)

	t.Run("primary failure without variants aborts", func(t *testing.T) {
		req := Request{Label: "x", Event: sc.event, Target: "MISSING", References: []string{"CL"}}
		res, err := engine.Run(context.Background(), sc.prices, req)
		require.Error(t, err)
		require.NotNil(t, res)
		assert.Equal(t, StatusFailed, res.Primary.Status)
		assert.Nil(t, res.Decoupling)
		assert.True(t, hasFailure(res, "primary", "MISSING", KindInsufficientData))
	})

	t.Run("primary failure with a surviving variant continues", func(t *testing.T) {
		req := Request{
			Label:      "x",
			Event:      sc.event,
			Target:     "XLE",
			References: []string{"NOPE"},
			Variants:   []Variant{{Label: "cl", References: []string{"CL"}}},
		}
		res, err := engine.Run(context.Background(), sc.prices, req)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, res.Primary.Status)
		assert.Equal(t, StatusOK, res.Robustness.Rows[0].Status)
	})

	t.Run("invalid request", func(t *testing.T) {
		res, err := engine.Run(context.Background(), sc.prices, Request{Label: "x", Target: "XLE"})
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Nil(t, res)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := engine.Run(ctx, sc.prices, strikeRequest(sc))
		require.Error(t, err)
		assert.True(t, IsCancelled(err))
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("invalid configuration", func(t *testing.T) {
		cfg := testConfig()
		cfg.ThresholdSD = 0
		_, err := NewEngine(cfg, nil)
		var ve *ValidationError
		assert.ErrorAs(t, err, &ve)
	})
}

func TestRequest_AssetsAndSpan(t *testing.T) {
	sc := strikeScenario(t)
	req := strikeRequest(sc)
	assert.Equal(t, []string{"CL", "FRO", "HAL", "ITA", "NAT", "NOPE", "OXY", "SPY", "STNG", "XLE"}, req.Assets())

	from, to := req.Span(20)
	assert.True(t, to.Equal(sc.event.End))
	assert.True(t, from.Before(sc.days[4]))
}
