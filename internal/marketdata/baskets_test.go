package marketdata

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossmarket/internal/eventstudy"
)

func TestYAMLBasketProvider(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "baskets.yaml", `
baskets:
  - name: defense
    reference: SPY
    constituents:
      - asset: ITA
  - name: shipping
    reference: SPY
    constituents:
      - asset: FRO
        weight: 2
      - asset: NAT
        weight: 1
`)

	baskets, err := NewYAMLBasketProvider(filepath.Join(dir, "baskets.yaml")).Baskets(context.Background())
	require.NoError(t, err)
	require.Len(t, baskets, 2)
	assert.Equal(t, "shipping", baskets[1].Name)
	assert.Equal(t, []string{"FRO", "NAT"}, baskets[1].Assets())
	assert.Equal(t, 2.0, baskets[1].Constituents[0].Weight)

	_, err = NewYAMLBasketProvider(filepath.Join(dir, "missing.yaml")).Baskets(context.Background())
	assert.Error(t, err)
}

func TestParseBaskets(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"duplicate basket", "baskets:\n  - name: a\n    constituents: [{asset: X}]\n  - name: a\n    constituents: [{asset: Y}]\n"},
		{"empty basket", "baskets:\n  - name: a\n"},
		{"negative weight", "baskets:\n  - name: a\n    constituents: [{asset: X, weight: -1}]\n"},
		{"unknown key", "baskets:\n  - name: a\n    members: [X]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBaskets([]byte(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestStaticBasketProvider(t *testing.T) {
	s := StaticBasketProvider{{Name: "defense", Constituents: []eventstudy.Constituent{{Asset: "ITA"}}}}
	got, err := s.Baskets(context.Background())
	require.NoError(t, err)
	got[0].Name = "changed"
	assert.Equal(t, "defense", s[0].Name)
}
