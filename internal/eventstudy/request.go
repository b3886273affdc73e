package eventstudy

import (
	"fmt"
	"sort"
	"time"
)

// Subject is an additional asset measured against its own references,
// e.g. an oilfield contractor against the sector fund
type Subject struct {
	Asset      string   `json:"asset" yaml:"asset" validate:"required"`
	References []string `json:"references" yaml:"references" validate:"required,min=1,dive,required"`
}

// VolumeCheck scores the volume of the bar at Clock (HH:MM, session
// location) on the event day against the same bar on baseline days
type VolumeCheck struct {
	Asset string `json:"asset" yaml:"asset" validate:"required"`
	Clock string `json:"clock" yaml:"clock" validate:"required"`
}

// Request describes one analysis run
type Request struct {
	Label           string        `json:"label" yaml:"label" validate:"required"`
	Event           EventWindow   `json:"event" yaml:"event"`
	Target          string        `json:"target" yaml:"target" validate:"required"`
	References      []string      `json:"references" yaml:"references" validate:"required,min=1,dive,required"`
	Subjects        []Subject     `json:"subjects,omitempty" yaml:"subjects" validate:"dive"`
	Baskets         []Basket      `json:"baskets,omitempty" yaml:"baskets" validate:"dive"`
	BasketReference string        `json:"basket_reference,omitempty" yaml:"basket_reference"`
	SpreadPairs     []SpreadPair  `json:"spread_pairs,omitempty" yaml:"spread_pairs" validate:"dive"`
	Variants        []Variant     `json:"variants,omitempty" yaml:"variants" validate:"dive"`
	VolumeChecks    []VolumeCheck `json:"volume_checks,omitempty" yaml:"volume_checks" validate:"dive"`
}

// Validate checks the request for structural errors
func (r Request) Validate() error {
	if r.Label == "" {
		return &ValidationError{Field: "label", Message: "is required"}
	}
	if !r.Event.IsValid() {
		return &ValidationError{Field: "event", Message: "end must be after start", Value: r.Event}
	}
	if r.Target == "" {
		return &ValidationError{Field: "target", Message: "is required"}
	}
	if err := validateReferences("references", r.Target, r.References); err != nil {
		return err
	}
	for _, s := range r.Subjects {
		if s.Asset == "" {
			return &ValidationError{Field: "subjects.asset", Message: "is required"}
		}
		if err := validateReferences("subjects.references", s.Asset, s.References); err != nil {
			return err
		}
	}

	names := make(map[string]bool, len(r.Baskets))
	for _, b := range r.Baskets {
		if err := b.Validate(); err != nil {
			return err
		}
		if names[b.Name] {
			return &ValidationError{Field: "baskets.name", Message: "must be unique", Value: b.Name}
		}
		names[b.Name] = true
		if b.Reference == "" && r.BasketReference == "" {
			return &ValidationError{Field: "basket_reference", Message: fmt.Sprintf("basket %s has no reference", b.Name)}
		}
	}
	for _, p := range r.SpreadPairs {
		if !names[p.A] || !names[p.B] {
			return &ValidationError{Field: "spread_pairs", Message: "must name configured baskets", Value: p.Name()}
		}
		if p.A == p.B {
			return &ValidationError{Field: "spread_pairs", Message: "must name two different baskets", Value: p.Name()}
		}
	}

	labels := make(map[string]bool, len(r.Variants))
	for _, v := range r.Variants {
		if v.Label == "" {
			return &ValidationError{Field: "variants.label", Message: "is required"}
		}
		if labels[v.Label] {
			return &ValidationError{Field: "variants.label", Message: "must be unique", Value: v.Label}
		}
		labels[v.Label] = true
		if v.BaselineDays < 0 {
			return &ValidationError{Field: "variants.baseline_days", Message: "must not be negative", Value: v.BaselineDays}
		}
		if v.Event != nil && !v.Event.IsValid() {
			return &ValidationError{Field: "variants.event", Message: "end must be after start", Value: v.Label}
		}
		if len(v.References) > 0 {
			if err := validateReferences("variants.references", r.Target, v.References); err != nil {
				return err
			}
		}
	}

	for _, vc := range r.VolumeChecks {
		if vc.Asset == "" {
			return &ValidationError{Field: "volume_checks.asset", Message: "is required"}
		}
		if _, err := ParseClock(vc.Clock); err != nil {
			return &ValidationError{Field: "volume_checks.clock", Message: err.Error(), Value: vc.Clock}
		}
	}
	return nil
}

func validateReferences(field, target string, refs []string) error {
	if len(refs) == 0 {
		return &ValidationError{Field: field, Message: "at least one reference is required"}
	}
	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		switch {
		case ref == "":
			return &ValidationError{Field: field, Message: "must not be empty"}
		case ref == target:
			return &ValidationError{Field: field, Message: "must differ from the target", Value: ref}
		case seen[ref]:
			return &ValidationError{Field: field, Message: "must be unique", Value: ref}
		}
		seen[ref] = true
	}
	return nil
}

// Assets returns every asset the request needs prices for, sorted
func (r Request) Assets() []string {
	set := map[string]bool{r.Target: true}
	add := func(assets ...string) {
		for _, a := range assets {
			if a != "" {
				set[a] = true
			}
		}
	}
	add(r.References...)
	for _, s := range r.Subjects {
		add(s.Asset)
		add(s.References...)
	}
	add(r.BasketReference)
	for _, b := range r.Baskets {
		add(b.Reference)
		add(b.Assets()...)
	}
	for _, v := range r.Variants {
		add(v.References...)
	}
	for _, vc := range r.VolumeChecks {
		add(vc.Asset)
	}

	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Span returns the price range that covers every event window of the request
// plus enough calendar days before it to hold baselineDays trading days
func (r Request) Span(baselineDays int) (from, to time.Time) {
	from, to = r.Event.Start, r.Event.End
	days := baselineDays
	for _, v := range r.Variants {
		if v.BaselineDays > days {
			days = v.BaselineDays
		}
		if v.Event == nil {
			continue
		}
		if v.Event.Start.Before(from) {
			from = v.Event.Start
		}
		if v.Event.End.After(to) {
			to = v.Event.End
		}
	}
	// covers weekends and holidays
	lookback := days*2 + 7
	return Day(from, from.Location()).AddDate(0, 0, -lookback), to
}
