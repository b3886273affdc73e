package eventstudy

import (
	"fmt"
	"math"
	"sort"
)

// Constituent is one weighted member of a basket. A zero weight on every
// member means equal weighting.
type Constituent struct {
	Asset  string  `json:"asset" yaml:"asset" validate:"required"`
	Weight float64 `json:"weight,omitempty" yaml:"weight" validate:"gte=0"`
}

// Basket is a named group of assets measured against a reference
type Basket struct {
	Name         string        `json:"name" yaml:"name" validate:"required"`
	Reference    string        `json:"reference,omitempty" yaml:"reference"`
	Constituents []Constituent `json:"constituents" yaml:"constituents" validate:"required,min=1,dive"`
}

// Validate checks the basket definition
func (b Basket) Validate() error {
	if b.Name == "" {
		return &ValidationError{Field: "basket.name", Message: "is required"}
	}
	if len(b.Constituents) == 0 {
		return &ValidationError{Field: "basket.constituents", Message: "at least one constituent is required", Value: b.Name}
	}
	seen := make(map[string]bool, len(b.Constituents))
	for _, c := range b.Constituents {
		if c.Asset == "" {
			return &ValidationError{Field: "basket.constituents.asset", Message: "is required", Value: b.Name}
		}
		if seen[c.Asset] {
			return &ValidationError{Field: "basket.constituents", Message: fmt.Sprintf("duplicate asset %s", c.Asset), Value: b.Name}
		}
		seen[c.Asset] = true
		if c.Weight < 0 || math.IsNaN(c.Weight) {
			return &ValidationError{Field: "basket.constituents.weight", Message: "must not be negative", Value: c.Weight}
		}
	}
	return nil
}

// Assets lists the constituent assets in definition order
func (b Basket) Assets() []string {
	out := make([]string, len(b.Constituents))
	for i, c := range b.Constituents {
		out[i] = c.Asset
	}
	return out
}

func (b Basket) equalWeighted() bool {
	for _, c := range b.Constituents {
		if c.Weight != 0 {
			return false
		}
	}
	return true
}

// Result status values shared by basket, spread and asset outputs
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// MissingConstituent records why a constituent did not contribute
type MissingConstituent struct {
	Asset  string `json:"asset"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// BasketResult is the weighted CAR of a basket over one window
type BasketResult struct {
	Name       string               `json:"name"`
	Window     EventWindow          `json:"window"`
	Status     string               `json:"status"`
	Fraction   float64              `json:"car_fraction"`
	Rank       int                  `json:"rank,omitempty"`
	Weights    map[string]float64   `json:"weights,omitempty"`
	Available  []string             `json:"available"`
	Missing    []MissingConstituent `json:"missing,omitempty"`
	Complete   bool                 `json:"complete"`
	Decoupling *BasketDecoupling    `json:"decoupling,omitempty"`
	ErrorKind  string               `json:"error_kind,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// OK reports whether the basket CAR was computed
func (r BasketResult) OK() bool {
	return r.Status == StatusOK
}

// CrossSection computes the weighted CAR of one basket. Weights are
// renormalised over the constituents present in cars; absent constituents are
// listed as missing with the cause from failures when known.
func CrossSection(basket Basket, window EventWindow, cars map[string]float64, failures map[string]error) BasketResult {
	res := BasketResult{
		Name:      basket.Name,
		Window:    window,
		Available: []string{},
	}

	equal := basket.equalWeighted()
	var total float64
	type member struct {
		asset  string
		weight float64
		car    float64
	}
	var members []member
	for _, c := range basket.Constituents {
		car, ok := cars[c.Asset]
		if !ok || math.IsNaN(car) {
			cause := failures[c.Asset]
			missing := &MissingConstituentError{Basket: basket.Name, Asset: c.Asset, Cause: cause}
			mc := MissingConstituent{Asset: c.Asset, Kind: KindMissingConstituent, Reason: missing.Error()}
			if cause != nil {
				mc.Kind = FailureKind(cause)
			}
			res.Missing = append(res.Missing, mc)
			continue
		}
		w := c.Weight
		if equal {
			w = 1
		}
		total += w
		members = append(members, member{asset: c.Asset, weight: w, car: car})
		res.Available = append(res.Available, c.Asset)
	}

	if len(members) == 0 || total <= 0 {
		err := &InsufficientDataError{
			Subject: basket.Name,
			Have:    len(members),
			Need:    1,
			Reason:  "constituents with a weighted CAR",
		}
		res.Status = StatusFailed
		res.ErrorKind = err.Kind()
		res.Error = err.Error()
		return res
	}

	res.Status = StatusOK
	res.Weights = make(map[string]float64, len(members))
	for _, m := range members {
		w := m.weight / total
		res.Weights[m.asset] = w
		res.Fraction += w * m.car
	}
	res.Complete = len(res.Missing) == 0
	return res
}

// RankBaskets assigns 1-based ranks by descending CAR to computed baskets.
// Failed baskets keep rank 0. Order of the slice is unchanged.
func RankBaskets(results []BasketResult) {
	idx := make([]int, 0, len(results))
	for i := range results {
		results[i].Rank = 0
		if results[i].OK() {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return results[idx[a]].Fraction > results[idx[b]].Fraction
	})
	for r, i := range idx {
		results[i].Rank = r + 1
	}
}

// SpreadPair names two baskets whose CAR difference is reported.
// Classify enables the defense/shipping character label with A as the
// defense-style basket and B as the shipping-style basket.
type SpreadPair struct {
	A        string `json:"a" yaml:"a" validate:"required"`
	B        string `json:"b" yaml:"b" validate:"required"`
	Classify bool   `json:"classify,omitempty" yaml:"classify"`
}

// Name returns the metric label of the pair
func (p SpreadPair) Name() string {
	return p.A + "-" + p.B
}

// DefaultPairs returns every unordered pair of baskets in definition order
func DefaultPairs(baskets []Basket) []SpreadPair {
	var out []SpreadPair
	for i := 0; i < len(baskets); i++ {
		for j := i + 1; j < len(baskets); j++ {
			out = append(out, SpreadPair{A: baskets[i].Name, B: baskets[j].Name})
		}
	}
	return out
}

// SpreadMetric is the difference between two basket CARs in percentage points
type SpreadMetric struct {
	BasketA   string      `json:"basket_a"`
	BasketB   string      `json:"basket_b"`
	Window    EventWindow `json:"window"`
	Status    string      `json:"status"`
	ValuePP   float64     `json:"value_pp"`
	Rank      int         `json:"rank,omitempty"`
	Complete  bool        `json:"complete"`
	Character string      `json:"character,omitempty"`
	ErrorKind string      `json:"error_kind,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// Spreads computes the configured basket pairs and ranks them by absolute
// value. A pair with a failed or unknown basket is returned as a failed entry.
func Spreads(results []BasketResult, pairs []SpreadPair) []SpreadMetric {
	byName := make(map[string]BasketResult, len(results))
	for _, r := range results {
		byName[r.Name] = r
	}

	out := make([]SpreadMetric, 0, len(pairs))
	for _, p := range pairs {
		m := SpreadMetric{BasketA: p.A, BasketB: p.B}
		a, okA := byName[p.A]
		b, okB := byName[p.B]
		switch {
		case !okA || !okB:
			m.Status = StatusFailed
			m.ErrorKind = KindValidation
			m.Error = fmt.Sprintf("spread %s references an unknown basket", p.Name())
		case !a.OK() || !b.OK():
			m.Status = StatusFailed
			m.ErrorKind = KindInsufficientData
			m.Error = fmt.Sprintf("spread %s has a failed basket", p.Name())
			m.Window = a.Window
		default:
			m.Status = StatusOK
			m.Window = a.Window
			m.ValuePP = (a.Fraction - b.Fraction) * 100
			m.Complete = a.Complete && b.Complete
			if p.Classify {
				m.Character = ClassifyCharacter(a.Fraction*100, b.Fraction*100)
			}
		}
		out = append(out, m)
	}

	idx := make([]int, 0, len(out))
	for i := range out {
		if out[i].Status == StatusOK {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(x, y int) bool {
		return math.Abs(out[idx[x]].ValuePP) > math.Abs(out[idx[y]].ValuePP)
	})
	for r, i := range idx {
		out[i].Rank = r + 1
	}
	return out
}

// Character labels for a defense/shipping basket pair
const (
	CharacterWarRisk       = "war-risk"
	CharacterStabilization = "stabilization"
	CharacterDeEscalation  = "de-escalation"
	CharacterShippingShock = "pure-shipping-shock"
	CharacterMixed         = "mixed"
)

// ClassifyCharacter labels the pattern of a defense-style CAR and a
// shipping-style CAR, both in percentage points
func ClassifyCharacter(defensePP, shippingPP float64) string {
	switch {
	case defensePP > 0.5 && shippingPP > 0.5:
		return CharacterWarRisk
	case defensePP > 0.5 && shippingPP < -0.5:
		return CharacterStabilization
	case defensePP < -0.5 && shippingPP > 0.5:
		return CharacterDeEscalation
	case math.Abs(defensePP) < 0.5 && math.Abs(shippingPP) > 1.0:
		return CharacterShippingShock
	default:
		return CharacterMixed
	}
}
