package eventstudy

import (
	"fmt"
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const collinearityTolerance = 1e-10

// FactorLoading is the sensitivity of the target to one reference
type FactorLoading struct {
	Reference string  `json:"reference"`
	Beta      float64 `json:"beta"`
}

// BaselineRelationship is the pre-event relationship between a target and
// its references. It is immutable once estimated.
type BaselineRelationship struct {
	Target       string          `json:"target"`
	Reference    string          `json:"reference"`
	References   []string        `json:"references"`
	WindowStart  time.Time       `json:"window_start"`
	WindowEnd    time.Time       `json:"window_end"`
	Alpha        float64         `json:"alpha_fraction"`
	Beta         float64         `json:"beta"`
	Loadings     []FactorLoading `json:"loadings"`
	Correlation  float64         `json:"correlation"`
	RSquared     float64         `json:"r_squared"`
	ResidualStd  float64         `json:"residual_std_fraction"`
	Observations int             `json:"observations"`
}

// Expected returns the return implied by the relationship for one row of
// reference returns
func (b BaselineRelationship) Expected(refs []float64) float64 {
	e := b.Alpha
	for j, l := range b.Loadings {
		if j < len(refs) {
			e += l.Beta * refs[j]
		}
	}
	return e
}

// BaselineEstimator fits the pre-event relationship by ordinary least squares
type BaselineEstimator struct {
	minObservations int
	minVariance     float64
	fitIntercept    bool
}

// NewBaselineEstimator creates an estimator from the run configuration
func NewBaselineEstimator(cfg Config) BaselineEstimator {
	return BaselineEstimator{
		minObservations: cfg.MinObservations,
		minVariance:     cfg.MinReferenceVariance,
		fitIntercept:    cfg.FitIntercept,
	}
}

// EstimateBefore fits the relationship after checking that every row of the
// panel precedes the event window
func (e BaselineEstimator) EstimateBefore(panel Panel, event EventWindow) (BaselineRelationship, error) {
	if n := panel.Len(); n > 0 && !panel.Timestamps[n-1].Before(event.Start) {
		return BaselineRelationship{}, &ValidationError{
			Field:   "baseline_window",
			Message: "must end strictly before the event window",
			Value:   panel.Timestamps[n-1],
		}
	}
	return e.Estimate(panel)
}

// Estimate fits target = alpha + sum(beta_j * ref_j) + e over the panel
func (e BaselineEstimator) Estimate(panel Panel) (BaselineRelationship, error) {
	n := panel.Len()
	if n < e.minObservations {
		return BaselineRelationship{}, &InsufficientDataError{
			Subject: panel.Target,
			Have:    n,
			Need:    e.minObservations,
			Reason:  "aligned baseline observations",
		}
	}
	if len(panel.Factors) == 0 {
		return BaselineRelationship{}, &ValidationError{Field: "references", Message: "at least one reference is required"}
	}

	for j, x := range panel.Factors {
		if v := stat.Variance(x, nil); !(v >= e.minVariance) || v == 0 {
			return BaselineRelationship{}, &DegenerateBaselineError{
				Target:    panel.Target,
				Reference: panel.References[j],
				Variance:  v,
				Reason:    "reference variance below minimum",
			}
		}
	}

	var alpha float64
	betas := make([]float64, len(panel.Factors))
	if len(panel.Factors) == 1 {
		alpha, betas[0] = stat.LinearRegression(panel.Factors[0], panel.Returns, nil, !e.fitIntercept)
	} else {
		var err error
		alpha, betas, err = e.solve(panel)
		if err != nil {
			return BaselineRelationship{}, err
		}
	}

	rel := BaselineRelationship{
		Target:       panel.Target,
		Reference:    panel.References[0],
		References:   append([]string(nil), panel.References...),
		WindowStart:  panel.Timestamps[0],
		WindowEnd:    panel.Timestamps[n-1],
		Alpha:        alpha,
		Beta:         betas[0],
		Loadings:     make([]FactorLoading, len(betas)),
		Observations: n,
	}
	for j, b := range betas {
		rel.Loadings[j] = FactorLoading{Reference: panel.References[j], Beta: b}
	}

	resid := make([]float64, n)
	var ssRes float64
	for i := 0; i < n; i++ {
		resid[i] = panel.Returns[i] - rel.Expected(panel.Row(i))
		ssRes += resid[i] * resid[i]
	}
	rel.ResidualStd = stat.StdDev(resid, nil)

	if yv := stat.Variance(panel.Returns, nil); yv > 0 {
		rel.Correlation = stat.Correlation(panel.Factors[0], panel.Returns, nil)
		ssTot := yv * float64(n-1)
		rel.RSquared = 1 - ssRes/ssTot
	}
	if math.IsNaN(rel.Correlation) {
		rel.Correlation = 0
	}
	return rel, nil
}

// solve handles the multi-factor case with a dense least squares solve
func (e BaselineEstimator) solve(panel Panel) (float64, []float64, error) {
	n, k := panel.Len(), len(panel.Factors)
	for a := 0; a < k; a++ {
		for b := a + 1; b < k; b++ {
			if math.Abs(stat.Correlation(panel.Factors[a], panel.Factors[b], nil)) > 1-collinearityTolerance {
				return 0, nil, &DegenerateBaselineError{
					Target:    panel.Target,
					Reference: panel.References[a] + "+" + panel.References[b],
					Reason:    "collinear factors",
				}
			}
		}
	}

	cols := k
	if e.fitIntercept {
		cols++
	}

	data := make([]float64, 0, n*cols)
	for i := 0; i < n; i++ {
		if e.fitIntercept {
			data = append(data, 1)
		}
		for j := 0; j < k; j++ {
			data = append(data, panel.Factors[j][i])
		}
	}
	design := mat.NewDense(n, cols, data)
	y := mat.NewVecDense(n, append([]float64(nil), panel.Returns...))

	var coef mat.VecDense
	if err := coef.SolveVec(design, y); err != nil {
		return 0, nil, &DegenerateBaselineError{
			Target:    panel.Target,
			Reference: strings.Join(panel.References, "+"),
			Reason:    fmt.Sprintf("factor design is collinear: %v", err),
		}
	}

	var alpha float64
	offset := 0
	if e.fitIntercept {
		alpha = coef.AtVec(0)
		offset = 1
	}
	betas := make([]float64, k)
	for j := 0; j < k; j++ {
		betas[j] = coef.AtVec(offset + j)
		if math.IsNaN(betas[j]) || math.IsInf(betas[j], 0) {
			return 0, nil, &DegenerateBaselineError{
				Target:    panel.Target,
				Reference: panel.References[j],
				Reason:    "non-finite loading",
			}
		}
	}
	return alpha, betas, nil
}
