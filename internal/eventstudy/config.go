package eventstudy

import (
	"time"
)

// PercentileMethod selects how a z-score is turned into a percentile
type PercentileMethod string

const (
	// PercentileNormal maps z through the standard normal CDF
	PercentileNormal PercentileMethod = "normal"
	// PercentileEmpirical uses the share of baseline values below the observation
	PercentileEmpirical PercentileMethod = "empirical"
)

// IsValid reports whether the method is known
func (m PercentileMethod) IsValid() bool {
	return m == PercentileNormal || m == PercentileEmpirical
}

// Default values for Config.
// Each placebo window yields at most one baseline sample, so
// DefaultMinBaselineSamples must stay below DefaultBaselineDays: a holiday
// or a window without data costs one sample, not the whole score.
const (
	DefaultBaselineDays         = 20
	DefaultMinObservations      = 30
	DefaultMinReferenceVariance = 1e-14
	DefaultThresholdSD          = 2.0
	DefaultMinSustained         = 3
	DefaultMinBaselineSamples   = 15
	DefaultSignificanceLevelSD  = 1.96
	DefaultMinSpreadBars        = 30
	DefaultConcurrency          = 4
	DefaultInterval             = 5 * time.Minute
)

// Config holds every tunable of an analysis run. It is passed explicitly;
// there is no package-level configuration.
type Config struct {
	// Return construction
	ReturnMode ReturnMode
	Interval   time.Duration
	Session    *Session
	GapPolicy  GapPolicy

	// Baseline estimation
	BaselineDays         int
	MinObservations      int
	MinReferenceVariance float64
	FitIntercept         bool

	// Decoupling detection
	ThresholdSD  float64
	MinSustained int

	// Significance scoring. MinBaselineSamples is compared with the number
	// of placebo windows that produced a value, at most BaselineDays.
	MinBaselineSamples  int
	PercentileMethod    PercentileMethod
	SignificanceLevelSD float64

	// Intraday spread baseline
	MinSpreadBars int

	// Robustness harness
	Concurrency int
}

// DefaultConfig returns the documented defaults with the US equity session
func DefaultConfig() Config {
	return Config{
		ReturnMode:           ReturnModeLog,
		Interval:             DefaultInterval,
		Session:              DefaultSession(),
		GapPolicy:            GapPolicySkip,
		BaselineDays:         DefaultBaselineDays,
		MinObservations:      DefaultMinObservations,
		MinReferenceVariance: DefaultMinReferenceVariance,
		FitIntercept:         true,
		ThresholdSD:          DefaultThresholdSD,
		MinSustained:         DefaultMinSustained,
		MinBaselineSamples:   DefaultMinBaselineSamples,
		PercentileMethod:     PercentileNormal,
		SignificanceLevelSD:  DefaultSignificanceLevelSD,
		MinSpreadBars:        DefaultMinSpreadBars,
		Concurrency:          DefaultConcurrency,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if !c.ReturnMode.IsValid() {
		return &ValidationError{Field: "return_mode", Message: "must be log or simple", Value: c.ReturnMode}
	}
	if c.Interval < 0 {
		return &ValidationError{Field: "interval", Message: "must not be negative", Value: c.Interval}
	}
	if !c.GapPolicy.IsValid() {
		return &ValidationError{Field: "gap_policy", Message: "must be skip, include or fail", Value: c.GapPolicy}
	}
	if c.BaselineDays <= 0 {
		return &ValidationError{Field: "baseline_days", Message: "must be positive", Value: c.BaselineDays}
	}
	if c.MinObservations < 3 {
		return &ValidationError{Field: "min_observations", Message: "must be at least 3", Value: c.MinObservations}
	}
	if c.MinReferenceVariance < 0 {
		return &ValidationError{Field: "min_reference_variance", Message: "must not be negative", Value: c.MinReferenceVariance}
	}
	if c.ThresholdSD <= 0 {
		return &ValidationError{Field: "threshold_sd", Message: "must be positive", Value: c.ThresholdSD}
	}
	if c.MinSustained <= 0 {
		return &ValidationError{Field: "min_sustained", Message: "must be positive", Value: c.MinSustained}
	}
	if c.MinBaselineSamples < 2 {
		return &ValidationError{Field: "min_baseline_samples", Message: "must be at least 2", Value: c.MinBaselineSamples}
	}
	if !c.PercentileMethod.IsValid() {
		return &ValidationError{Field: "percentile_method", Message: "must be normal or empirical", Value: c.PercentileMethod}
	}
	if c.SignificanceLevelSD <= 0 {
		return &ValidationError{Field: "significance_level_sd", Message: "must be positive", Value: c.SignificanceLevelSD}
	}
	if c.MinSpreadBars < 2 {
		return &ValidationError{Field: "min_spread_bars", Message: "must be at least 2", Value: c.MinSpreadBars}
	}
	if c.Concurrency <= 0 {
		return &ValidationError{Field: "concurrency", Message: "must be positive", Value: c.Concurrency}
	}
	if c.Session != nil {
		if err := c.Session.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// location returns the session location, or UTC when no session is set
func (c Config) location() *time.Location {
	if c.Session != nil && c.Session.Location != nil {
		return c.Session.Location
	}
	return time.UTC
}
