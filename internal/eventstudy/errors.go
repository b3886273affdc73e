package eventstudy

import (
	"errors"
	"fmt"
	"time"
)

// Failure kinds reported in aggregate outputs
const (
	KindInsufficientData     = "insufficient_data"
	KindDegenerateBaseline   = "degenerate_baseline"
	KindInsufficientBaseline = "insufficient_baseline"
	KindMissingConstituent   = "missing_constituent"
	KindDataGap              = "data_gap"
	KindValidation           = "validation"
	KindAllVariantsFailed    = "all_variants_failed"
	KindCancelled            = "cancelled"
	KindUnknown              = "unknown"
)

// kinded is implemented by every error in the taxonomy
type kinded interface {
	Kind() string
}

// FailureKind classifies an error into one of the Kind* constants
func FailureKind(err error) string {
	if err == nil {
		return ""
	}
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	if errors.Is(err, errCancelled) {
		return KindCancelled
	}
	return KindUnknown
}

var errCancelled = errors.New("analysis cancelled")

// InsufficientDataError is returned when a window holds too few samples
type InsufficientDataError struct {
	Subject string
	Have    int
	Need    int
	Reason  string
}

func (e *InsufficientDataError) Error() string {
	msg := fmt.Sprintf("insufficient data for %s: have %d, need %d", e.Subject, e.Have, e.Need)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

// Kind implements kinded
func (e *InsufficientDataError) Kind() string { return KindInsufficientData }

// DegenerateBaselineError is returned when a regressor (or a baseline
// distribution) has no usable dispersion
type DegenerateBaselineError struct {
	Target    string
	Reference string
	Variance  float64
	Reason    string
}

func (e *DegenerateBaselineError) Error() string {
	return fmt.Sprintf("degenerate baseline for %s on %s: %s (variance %.3g)", e.Target, e.Reference, e.Reason, e.Variance)
}

// Kind implements kinded
func (e *DegenerateBaselineError) Kind() string { return KindDegenerateBaseline }

// InsufficientBaselineError is returned when a significance score is requested
// against too few historical comparables
type InsufficientBaselineError struct {
	Metric  string
	Samples int
	Minimum int
}

func (e *InsufficientBaselineError) Error() string {
	return fmt.Sprintf("insufficient baseline for %s: %d samples, minimum %d", e.Metric, e.Samples, e.Minimum)
}

// Kind implements kinded
func (e *InsufficientBaselineError) Kind() string { return KindInsufficientBaseline }

// MissingConstituentError marks a basket member without a result in the window.
// It is never fatal; it is carried in the basket's missing list.
type MissingConstituentError struct {
	Basket string
	Asset  string
	Cause  error
}

func (e *MissingConstituentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("basket %s: constituent %s missing: %v", e.Basket, e.Asset, e.Cause)
	}
	return fmt.Sprintf("basket %s: constituent %s missing", e.Basket, e.Asset)
}

// Unwrap exposes the underlying cause
func (e *MissingConstituentError) Unwrap() error { return e.Cause }

// Kind implements kinded
func (e *MissingConstituentError) Kind() string { return KindMissingConstituent }

// DataGapError is returned under GapPolicyFail when an aligned row spans missing bars
type DataGapError struct {
	Asset       string
	Timestamp   time.Time
	MissingBars int
}

func (e *DataGapError) Error() string {
	return fmt.Sprintf("gap of %d missing bars in %s before %s", e.MissingBars, e.Asset, e.Timestamp.Format(time.RFC3339))
}

// Kind implements kinded
func (e *DataGapError) Kind() string { return KindDataGap }

// ValidationError represents invalid inputs or configuration
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface
func (ve *ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return ve.Field + ": " + ve.Message
}

// Kind implements kinded
func (ve *ValidationError) Kind() string { return KindValidation }

// AllVariantsFailedError is returned by the robustness harness when no variant succeeded
type AllVariantsFailedError struct {
	Variants int
}

func (e *AllVariantsFailedError) Error() string {
	return fmt.Sprintf("all %d robustness variants failed", e.Variants)
}

// Kind implements kinded
func (e *AllVariantsFailedError) Kind() string { return KindAllVariantsFailed }
