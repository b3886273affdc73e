package marketdata

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"crossmarket/internal/eventstudy"
)

// basketFile is the on-disk layout of basket definitions:
//
//	baskets:
//	  - name: shipping
//	    reference: SPY
//	    constituents:
//	      - asset: FRO
//	      - asset: NAT
type basketFile struct {
	Baskets []eventstudy.Basket `yaml:"baskets"`
}

// YAMLBasketProvider reads basket definitions from a YAML file on every call
type YAMLBasketProvider struct {
	path string
}

// NewYAMLBasketProvider creates a provider for the file at path
func NewYAMLBasketProvider(path string) *YAMLBasketProvider {
	return &YAMLBasketProvider{path: path}
}

// Baskets implements BasketProvider
func (p *YAMLBasketProvider) Baskets(ctx context.Context) ([]eventstudy.Basket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read baskets file: %w", err)
	}
	return ParseBaskets(data)
}

// ParseBaskets decodes and validates basket definitions
func ParseBaskets(data []byte) ([]eventstudy.Basket, error) {
	var f basketFile
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse baskets: %w", err)
	}
	seen := make(map[string]bool, len(f.Baskets))
	for _, b := range f.Baskets {
		if err := b.Validate(); err != nil {
			return nil, err
		}
		if seen[b.Name] {
			return nil, &eventstudy.ValidationError{Field: "basket.name", Message: "duplicate basket", Value: b.Name}
		}
		seen[b.Name] = true
	}
	return f.Baskets, nil
}

// StaticBasketProvider serves a fixed list of baskets
type StaticBasketProvider []eventstudy.Basket

// Baskets implements BasketProvider
func (s StaticBasketProvider) Baskets(context.Context) ([]eventstudy.Basket, error) {
	out := make([]eventstudy.Basket, len(s))
	copy(out, s)
	return out, nil
}
