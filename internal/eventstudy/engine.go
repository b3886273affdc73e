package eventstudy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// AssetResult is the analysis of one asset against its references.
// Failed analyses keep Status failed and the failure kind.
type AssetResult struct {
	Asset          string                    `json:"asset"`
	References     []string                  `json:"references"`
	Status         string                    `json:"status"`
	Baseline       *BaselineRelationship     `json:"baseline,omitempty"`
	Decoupling     *DecouplingResult         `json:"decoupling,omitempty"`
	CAR            *CumulativeAbnormalReturn `json:"car,omitempty"`
	PreDecoupling  *CumulativeAbnormalReturn `json:"pre_decoupling,omitempty"`
	PostDecoupling *CumulativeAbnormalReturn `json:"post_decoupling,omitempty"`
	Path           []CARPoint                `json:"path,omitempty"`
	PlaceboWindows int                       `json:"placebo_windows"`
	ErrorKind      string                    `json:"error_kind,omitempty"`
	Error          string                    `json:"error,omitempty"`
}

// Failure is one entry of the audit trail of sub-computation failures
type Failure struct {
	Scope   string `json:"scope"`
	Subject string `json:"subject"`
	Kind    string `json:"kind"`
	Reason  string `json:"reason"`
}

// Result is the complete output of one analysis run
type Result struct {
	Label        string                `json:"label"`
	Event        EventWindow           `json:"event"`
	Target       string                `json:"target"`
	References   []string              `json:"references"`
	ReturnMode   ReturnMode            `json:"return_mode"`
	BaselineDays int                   `json:"baseline_days"`
	Primary      AssetResult           `json:"primary"`
	Decoupling   *DecouplingResult     `json:"decoupling,omitempty"`
	Baseline     *BaselineRelationship `json:"baseline,omitempty"`
	Spread       *IntradaySpread       `json:"spread,omitempty"`
	Subjects     []AssetResult         `json:"subjects,omitempty"`
	Constituents []AssetResult         `json:"constituents,omitempty"`
	Baskets      []BasketResult        `json:"baskets,omitempty"`
	Spreads      []SpreadMetric        `json:"spreads,omitempty"`
	Significance []SignificanceScore   `json:"significance,omitempty"`
	Robustness   RobustnessTable       `json:"robustness"`
	Failures     []Failure             `json:"failures,omitempty"`
}

func (r *Result) addFailure(scope, subject string, err error) {
	r.Failures = append(r.Failures, Failure{
		Scope:   scope,
		Subject: subject,
		Kind:    FailureKind(err),
		Reason:  err.Error(),
	})
}

// Engine runs the full event-study chain over a fixed set of prices.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	cfg       Config
	builder   ReturnBuilder
	estimator BaselineEstimator
	detector  DecouplingDetector
	car       CARCalculator
	scorer    SignificanceScorer
	harness   Harness
	logger    *slog.Logger
}

// NewEngine creates an engine after validating the configuration
func NewEngine(cfg Config, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid event study configuration: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:       cfg,
		builder:   NewReturnBuilder(cfg),
		estimator: NewBaselineEstimator(cfg),
		detector:  NewDecouplingDetector(cfg),
		car:       NewCARCalculator(cfg),
		scorer:    NewSignificanceScorer(cfg),
		harness:   NewHarness(cfg, logger),
		logger:    logger,
	}, nil
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// analysis is the internal state of one asset analysis
type analysis struct {
	result  AssetResult
	ars     []AbnormalReturn
	days    []time.Time
	placebo map[string]float64
}

// placeboValues returns placebo CARs in date order
func (a *analysis) placeboValues() []float64 {
	labels := make([]string, 0, len(a.placebo))
	for l := range a.placebo {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	out := make([]float64, len(labels))
	for i, l := range labels {
		out[i] = a.placebo[l]
	}
	return out
}

// Run executes one analysis. Sub-computation failures are recorded in the
// result; an error is returned only for an invalid request, a cancelled
// context, or when the primary analysis and every variant failed. In the
// last case the partial result is returned alongside the error.
func (e *Engine) Run(ctx context.Context, prices PriceSet, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analysis request: %w", err)
	}

	start := time.Now()
	e.logger.InfoContext(ctx, "starting event study",
		"label", req.Label,
		"target", req.Target,
		"references", req.References,
		"event_start", req.Event.Start,
		"event_end", req.Event.End,
	)

	res := &Result{
		Label:        req.Label,
		Event:        req.Event,
		Target:       req.Target,
		References:   req.References,
		ReturnMode:   e.cfg.ReturnMode,
		BaselineDays: e.cfg.BaselineDays,
	}

	primary, primaryErr := e.analyzeAsset(prices, req.Target, req.References, req.Event, e.cfg.BaselineDays)
	if primaryErr != nil {
		res.Primary = failedAsset(req.Target, req.References, primaryErr)
		res.addFailure("primary", req.Target, primaryErr)
		e.logger.WarnContext(ctx, "primary analysis failed",
			"target", req.Target,
			"kind", FailureKind(primaryErr),
			"error", primaryErr,
		)
	} else {
		res.Primary = primary.result
		res.Primary.Path = Path(primary.ars)
		res.Decoupling = primary.result.Decoupling
		res.Baseline = primary.result.Baseline
		e.score(res, "car:"+req.Target, primary.result.CAR.Fraction, UnitFraction, primary.placeboValues())
		e.intradaySpread(prices, req, primary, res)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", errCancelled, err)
	}

	for _, s := range req.Subjects {
		a, err := e.analyzeAsset(prices, s.Asset, s.References, req.Event, e.cfg.BaselineDays)
		if err != nil {
			res.Subjects = append(res.Subjects, failedAsset(s.Asset, s.References, err))
			res.addFailure("subject", s.Asset, err)
			continue
		}
		res.Subjects = append(res.Subjects, a.result)
		e.score(res, "car:"+s.Asset, a.result.CAR.Fraction, UnitFraction, a.placeboValues())
	}

	if len(req.Baskets) > 0 {
		e.crossSection(prices, req, res)
	}

	for _, vc := range req.VolumeChecks {
		e.volumeCheck(prices, req, vc, res)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", errCancelled, err)
	}

	table, variantsErr := e.harness.Run(ctx, req.Variants, e.variantFunc(prices, req))
	res.Robustness = table
	if variantsErr != nil {
		res.addFailure("robustness", req.Label, variantsErr)
	}

	e.logger.InfoContext(ctx, "event study completed",
		"label", req.Label,
		"decoupled", res.Decoupling != nil && res.Decoupling.Detected(),
		"failures", len(res.Failures),
		"variants", len(table.Rows),
		"duration", time.Since(start),
	)

	if primaryErr != nil && (len(req.Variants) == 0 || variantsErr != nil) {
		return res, fmt.Errorf("event study %s failed: %w", req.Label, primaryErr)
	}
	return res, nil
}

// analyzeAsset runs builder, estimator, detector and calculator for one
// asset against its references
func (e *Engine) analyzeAsset(prices PriceSet, asset string, refs []string, event EventWindow, baselineDays int) (*analysis, error) {
	pts := prices[asset]
	if len(pts) == 0 {
		return nil, &InsufficientDataError{Subject: asset, Have: 0, Need: 2, Reason: "no price data"}
	}

	loc := e.cfg.location()
	days := BaselineDays(timestamps(pts), event, baselineDays, loc)
	if len(days) == 0 {
		return nil, &InsufficientDataError{Subject: asset, Have: 0, Need: baselineDays, Reason: "trading days before the event"}
	}
	start := days[0]

	target, err := e.builder.Build(pts, start, event.End)
	if err != nil {
		return nil, fmt.Errorf("returns for %s: %w", asset, err)
	}
	refSeries := make([]ReturnSeries, 0, len(refs))
	for _, ref := range refs {
		rp := prices[ref]
		if len(rp) == 0 {
			return nil, &InsufficientDataError{Subject: ref, Have: 0, Need: 2, Reason: "no price data for reference"}
		}
		rs, err := e.builder.Build(rp, start, event.End)
		if err != nil {
			return nil, fmt.Errorf("returns for reference %s: %w", ref, err)
		}
		refSeries = append(refSeries, rs)
	}

	panel, err := Align(e.cfg.GapPolicy, target, refSeries...)
	if err != nil {
		return nil, fmt.Errorf("aligning %s: %w", asset, err)
	}

	base := panel.Slice(start, event.Start)
	rel, err := e.estimator.EstimateBefore(base, event)
	if err != nil {
		return nil, fmt.Errorf("baseline for %s: %w", asset, err)
	}

	ars, err := e.car.AbnormalReturns(panel, rel, event)
	if err != nil {
		return nil, fmt.Errorf("abnormal returns for %s: %w", asset, err)
	}
	car := e.car.Cumulate(asset, ars, event, rel.ResidualStd)
	dec := e.detector.Detect(panel.Window(event), rel)

	a := &analysis{
		result: AssetResult{
			Asset:      asset,
			References: refs,
			Status:     StatusOK,
			Baseline:   &rel,
			Decoupling: &dec,
			CAR:        &car,
		},
		ars:     ars,
		days:    days,
		placebo: make(map[string]float64),
	}
	if dec.Detected() {
		pre, post := e.car.Split(asset, ars, event, *dec.At, rel.ResidualStd)
		a.result.PreDecoupling = &pre
		a.result.PostDecoupling = &post
	}

	for _, w := range PlaceboWindows(event, days, loc) {
		pars, err := e.car.AbnormalReturns(base, rel, w)
		if err != nil {
			continue
		}
		a.placebo[w.Label] = e.car.Cumulate(asset, pars, w, rel.ResidualStd).Fraction
	}
	a.result.PlaceboWindows = len(a.placebo)
	return a, nil
}

// intradaySpread computes the normalised spread of the target against its
// first reference and scores its signed peak against the same peak on
// baseline days. Baseline days with fewer than MinSpreadBars shared bars
// are left out of the distribution.
func (e *Engine) intradaySpread(prices PriceSet, req Request, primary *analysis, res *Result) {
	ref := req.References[0]
	name := req.Target + "-" + ref
	sp, err := ComputeIntradaySpread(prices[req.Target], prices[ref], req.Event, e.cfg.Session)
	if err != nil {
		res.addFailure("spread", name, err)
		return
	}
	res.Spread = &sp

	var peaks []float64
	for _, w := range PlaceboWindows(req.Event, primary.days, e.cfg.location()) {
		ps, err := ComputeIntradaySpread(prices[req.Target], prices[ref], w, e.cfg.Session)
		if err != nil || ps.Bars() < e.cfg.MinSpreadBars {
			continue
		}
		peaks = append(peaks, ps.PeakFraction)
	}
	e.score(res, "peak-spread:"+name, sp.PeakFraction, UnitFraction, peaks)
}

// crossSection analyses every basket constituent, aggregates baskets and
// scores each spread against the same spread over placebo windows
func (e *Engine) crossSection(prices PriceSet, req Request, res *Result) {
	type key struct{ asset, ref string }
	done := make(map[key]*analysis)
	failed := make(map[key]error)
	placebo := make(map[string]map[string]float64)

	results := make([]BasketResult, 0, len(req.Baskets))
	for _, b := range req.Baskets {
		ref := b.Reference
		if ref == "" {
			ref = req.BasketReference
		}

		cars := make(map[string]float64)
		failures := make(map[string]error)
		perAsset := make(map[string]map[string]float64)
		var decs []DecouplingResult
		for _, c := range b.Constituents {
			k := key{c.Asset, ref}
			a, ok := done[k]
			err := failed[k]
			if !ok && err == nil {
				a, err = e.analyzeAsset(prices, c.Asset, []string{ref}, req.Event, e.cfg.BaselineDays)
				if err != nil {
					failed[k] = err
					res.Constituents = append(res.Constituents, failedAsset(c.Asset, []string{ref}, err))
					res.addFailure("constituent", b.Name+"/"+c.Asset, err)
				} else {
					done[k] = a
					res.Constituents = append(res.Constituents, a.result)
				}
			}
			if err != nil {
				failures[c.Asset] = err
				continue
			}
			cars[c.Asset] = a.result.CAR.Fraction
			decs = append(decs, *a.result.Decoupling)
			perAsset[c.Asset] = a.placebo
		}

		br := CrossSection(b, req.Event, cars, failures)
		if br.OK() {
			bd := DetectBasket(decs)
			br.Decoupling = &bd
		} else {
			res.Failures = append(res.Failures, Failure{Scope: "basket", Subject: b.Name, Kind: br.ErrorKind, Reason: br.Error})
		}
		results = append(results, br)
		placebo[b.Name] = basketPlacebo(b, perAsset)
	}

	RankBaskets(results)
	res.Baskets = results

	pairs := req.SpreadPairs
	if len(pairs) == 0 {
		pairs = DefaultPairs(req.Baskets)
	}
	res.Spreads = Spreads(results, pairs)
	for i, m := range res.Spreads {
		name := pairs[i].Name()
		if m.Status != StatusOK {
			res.Failures = append(res.Failures, Failure{Scope: "spread", Subject: name, Kind: m.ErrorKind, Reason: m.Error})
			continue
		}
		e.score(res, "spread:"+name, m.ValuePP, UnitPercentagePoints, placeboSpreads(placebo[m.BasketA], placebo[m.BasketB]))
	}
}

// basketPlacebo aggregates constituent placebo CARs per placebo window
func basketPlacebo(b Basket, perAsset map[string]map[string]float64) map[string]float64 {
	labels := make(map[string]bool)
	for _, m := range perAsset {
		for l := range m {
			labels[l] = true
		}
	}
	out := make(map[string]float64, len(labels))
	for l := range labels {
		cars := make(map[string]float64, len(perAsset))
		for asset, m := range perAsset {
			if v, ok := m[l]; ok {
				cars[asset] = v
			}
		}
		if r := CrossSection(b, EventWindow{Label: l}, cars, nil); r.OK() {
			out[l] = r.Fraction
		}
	}
	return out
}

// placeboSpreads returns (a - b) in percentage points for every placebo
// window both baskets share, in date order
func placeboSpreads(a, b map[string]float64) []float64 {
	labels := make([]string, 0, len(a))
	for l := range a {
		if _, ok := b[l]; ok {
			labels = append(labels, l)
		}
	}
	sort.Strings(labels)
	out := make([]float64, len(labels))
	for i, l := range labels {
		out[i] = (a[l] - b[l]) * 100
	}
	return out
}

// volumeCheck scores the event-day volume at a clock time against baseline days
func (e *Engine) volumeCheck(prices PriceSet, req Request, vc VolumeCheck, res *Result) {
	metric := fmt.Sprintf("volume:%s@%s", vc.Asset, vc.Clock)
	clock, err := ParseClock(vc.Clock)
	if err != nil {
		res.addFailure("volume", metric, &ValidationError{Field: "clock", Message: err.Error(), Value: vc.Clock})
		return
	}
	loc := e.cfg.location()
	pts := prices[vc.Asset]
	observed, ok := ClockVolume(pts, req.Event.Start, clock, loc)
	if !ok {
		res.addFailure("volume", metric, &InsufficientDataError{Subject: metric, Have: 0, Need: 1, Reason: "no bar at clock on the event day"})
		return
	}
	days := BaselineDays(timestamps(pts), req.Event, e.cfg.BaselineDays, loc)
	e.score(res, metric, observed, UnitShares, ClockVolumes(pts, days, clock, loc))
}

// variantFunc re-runs the primary analysis with the variant's overrides
func (e *Engine) variantFunc(prices PriceSet, req Request) VariantFunc {
	return func(ctx context.Context, v Variant) (VariantOutcome, error) {
		event := req.Event
		if v.Event != nil {
			event = *v.Event
		}
		refs := req.References
		if len(v.References) > 0 {
			refs = v.References
		}
		days := e.cfg.BaselineDays
		if v.BaselineDays > 0 {
			days = v.BaselineDays
		}

		a, err := e.analyzeAsset(prices, req.Target, refs, event, days)
		if err != nil {
			return VariantOutcome{}, err
		}
		return VariantOutcome{
			CARFraction: a.result.CAR.Fraction,
			ZScoreSD:    a.result.CAR.ZScoreSD,
			Degenerate:  a.result.CAR.Degenerate,
			Decoupling:  a.result.Decoupling.Status,
			DecoupledAt: a.result.Decoupling.At,
		}, nil
	}
}

// score appends a significance score; insufficient scores are also audited
func (e *Engine) score(res *Result, metric string, observed float64, unit Unit, baseline []float64) {
	s, err := e.scorer.Score(metric, observed, unit, baseline)
	res.Significance = append(res.Significance, s)
	if err != nil {
		res.addFailure("significance", metric, err)
	}
}

func failedAsset(asset string, refs []string, err error) AssetResult {
	return AssetResult{
		Asset:      asset,
		References: refs,
		Status:     StatusFailed,
		ErrorKind:  FailureKind(err),
		Error:      err.Error(),
	}
}

func timestamps(pts []PricePoint) []time.Time {
	out := make([]time.Time, len(pts))
	for i, p := range pts {
		out[i] = p.Timestamp
	}
	return out
}

// IsCancelled reports whether err stems from a cancelled run
func IsCancelled(err error) bool {
	return errors.Is(err, errCancelled)
}
