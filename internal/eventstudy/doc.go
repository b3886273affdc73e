// Package eventstudy detects and quantifies anomalous cross-market divergence
// around a known event time.
//
// The package answers two questions for an event window: did an asset
// decouple from a historically correlated reference before the event, and did
// a set of related baskets move in a pattern that anticipates the event's
// character.
//
// # Components
//
//   - returns.go: ReturnBuilder turns ordered prices into log or simple returns,
//     marking gaps instead of interpolating. Align intersects several series
//     into a Panel.
//   - baseline.go: BaselineEstimator fits target = alpha + beta*reference by OLS
//     over trailing trading days strictly before the event. Several references
//     are solved as a factor model.
//   - decoupling.go: DecouplingDetector reports the first run of residuals
//     beyond ThresholdSD sustained for MinSustained bars.
//   - abnormal.go: abnormal returns, cumulative abnormal returns (CAR) and the
//     pre/post decoupling split. spread.go adds the normalised intraday spread.
//   - basket.go: weighted basket CARs with explicit missing constituents, and
//     basket spreads in percentage points.
//   - significance.go: z-scores and percentiles against placebo distributions
//     built by placebo.go.
//   - robustness.go: Harness re-runs the chain under alternate inputs.
//   - engine.go: Engine wires the above into a single Run.
//
// # Units
//
// Returns and CARs are fractions (0.0194 is 1.94%). Spreads between baskets
// are percentage points. Z-scores are standard deviations and percentiles are
// 0-100. Output field names carry the unit as a suffix.
//
// # Usage
//
//	engine, err := eventstudy.NewEngine(eventstudy.DefaultConfig(), slog.Default())
//	if err != nil {
//	    return err
//	}
//	result, err := engine.Run(ctx, prices, eventstudy.Request{
//	    Label:      "strike",
//	    Event:      eventstudy.EventWindow{Label: "strike", Start: start, End: end},
//	    Target:     "XLE",
//	    References: []string{"CL=F"},
//	})
//
// The engine is deterministic for a given price set and configuration.
// Failures of individual assets, baskets or scores never abort a run; they
// are reported in Result.Failures with a kind from the Kind* constants.
package eventstudy
