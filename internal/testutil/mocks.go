package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"crossmarket/internal/eventstudy"
)

// MockPriceProvider is a mock for marketdata.PriceProvider
type MockPriceProvider struct {
	mock.Mock
}

// Prices implements marketdata.PriceProvider
func (m *MockPriceProvider) Prices(ctx context.Context, asset string, from, to time.Time, interval time.Duration) ([]eventstudy.PricePoint, error) {
	args := m.Called(ctx, asset, from, to, interval)
	pts, _ := args.Get(0).([]eventstudy.PricePoint)
	return pts, args.Error(1)
}

// MockBasketProvider is a mock for marketdata.BasketProvider
type MockBasketProvider struct {
	mock.Mock
}

// Baskets implements marketdata.BasketProvider
func (m *MockBasketProvider) Baskets(ctx context.Context) ([]eventstudy.Basket, error) {
	args := m.Called(ctx)
	baskets, _ := args.Get(0).([]eventstudy.Basket)
	return baskets, args.Error(1)
}
