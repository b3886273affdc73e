package marketdata

import (
	"context"
	"sort"
	"sync"
	"time"

	"crossmarket/internal/eventstudy"
)

// MemoryProvider serves prices held in memory. It is safe for concurrent use.
type MemoryProvider struct {
	mu     sync.RWMutex
	prices map[string][]eventstudy.PricePoint
}

// NewMemoryProvider creates a provider seeded with a copy of prices
func NewMemoryProvider(prices eventstudy.PriceSet) *MemoryProvider {
	m := &MemoryProvider{prices: make(map[string][]eventstudy.PricePoint, len(prices))}
	for asset, pts := range prices {
		m.Add(asset, pts)
	}
	return m
}

// Add stores points for asset, replacing earlier ones
func (m *MemoryProvider) Add(asset string, points []eventstudy.PricePoint) {
	cp := make([]eventstudy.PricePoint, len(points))
	copy(cp, points)
	sort.SliceStable(cp, func(i, j int) bool {
		return cp[i].Timestamp.Before(cp[j].Timestamp)
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[asset] = cp
}

// Prices implements PriceProvider
func (m *MemoryProvider) Prices(ctx context.Context, asset string, from, to time.Time, interval time.Duration) ([]eventstudy.PricePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	pts, ok := m.prices[asset]
	m.mu.RUnlock()
	if !ok {
		return nil, &NoDataError{Asset: asset, Source: "memory"}
	}
	return window(Resample(pts, interval, time.UTC), from, to), nil
}
