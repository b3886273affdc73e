package eventstudy

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ScoreStatus tells whether a score had enough baseline behind it
type ScoreStatus string

const (
	ScoreSufficient   ScoreStatus = "sufficient"
	ScoreInsufficient ScoreStatus = "insufficient"
)

// SignificanceScore compares one observed value with a baseline distribution
// of the same metric. ZScoreSD and PercentilePctl are set only on sufficient
// scores, so a zero z-score or percentile is still reported.
type SignificanceScore struct {
	Metric         string           `json:"metric"`
	Unit           Unit             `json:"unit"`
	Observed       float64          `json:"observed"`
	BaselineMean   float64          `json:"baseline_mean"`
	BaselineStd    float64          `json:"baseline_std"`
	ZScoreSD       *float64         `json:"z_score_sd,omitempty"`
	PercentilePctl *float64         `json:"percentile_pctl,omitempty"`
	Method         PercentileMethod `json:"method"`
	SampleCount    int              `json:"sample_count"`
	Status         ScoreStatus      `json:"status"`
	Significant    bool             `json:"significant"`
	Reason         string           `json:"reason,omitempty"`
}

// SignificanceScorer turns observations into z-scores and percentiles
type SignificanceScorer struct {
	minSamples int
	method     PercentileMethod
	levelSD    float64
}

// NewSignificanceScorer creates a scorer from the run configuration
func NewSignificanceScorer(cfg Config) SignificanceScorer {
	method := cfg.PercentileMethod
	if method == "" {
		method = PercentileNormal
	}
	return SignificanceScorer{minSamples: cfg.MinBaselineSamples, method: method, levelSD: cfg.SignificanceLevelSD}
}

// Score computes z = (observed - mean) / std against baseline. Non-finite
// baseline values are ignored. The returned score is always usable for
// reporting; the error explains an insufficient status.
func (s SignificanceScorer) Score(metric string, observed float64, unit Unit, baseline []float64) (SignificanceScore, error) {
	vals := make([]float64, 0, len(baseline))
	for _, v := range baseline {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			vals = append(vals, v)
		}
	}

	score := SignificanceScore{
		Metric:      metric,
		Unit:        unit,
		Observed:    observed,
		Method:      s.method,
		SampleCount: len(vals),
		Status:      ScoreInsufficient,
	}

	if len(vals) < s.minSamples {
		err := &InsufficientBaselineError{Metric: metric, Samples: len(vals), Minimum: s.minSamples}
		score.Reason = err.Error()
		return score, err
	}

	score.BaselineMean, score.BaselineStd = stat.MeanStdDev(vals, nil)
	if !(score.BaselineStd > 0) {
		err := &DegenerateBaselineError{Target: metric, Reference: "baseline distribution", Variance: 0, Reason: "zero dispersion"}
		score.Reason = err.Error()
		return score, err
	}

	z := (observed - score.BaselineMean) / score.BaselineStd
	var pctl float64
	switch s.method {
	case PercentileEmpirical:
		below := 0
		for _, v := range vals {
			if v < observed {
				below++
			}
		}
		pctl = float64(below) / float64(len(vals)) * 100
	default:
		pctl = distuv.UnitNormal.CDF(z) * 100
	}
	score.Status = ScoreSufficient
	score.ZScoreSD = &z
	score.PercentilePctl = &pctl
	score.Significant = math.Abs(z) > s.levelSD
	return score, nil
}
