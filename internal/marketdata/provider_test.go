package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossmarket/internal/eventstudy"
)

func bars(asset string, start time.Time, step time.Duration, prices ...float64) []eventstudy.PricePoint {
	out := make([]eventstudy.PricePoint, len(prices))
	for i, p := range prices {
		out[i] = eventstudy.PricePoint{Asset: asset, Timestamp: start.Add(time.Duration(i) * step), Price: p, Volume: 10}
	}
	return out
}

func TestResample(t *testing.T) {
	start := time.Date(2025, 6, 2, 9, 30, 0, 0, newYork)
	pts := bars("XLE", start, time.Minute, 1, 2, 3, 4, 5, 6, 7)

	out := Resample(pts, 5*time.Minute, newYork)
	require.Len(t, out, 2)
	assert.True(t, out[0].Timestamp.Equal(start))
	assert.Equal(t, 5.0, out[0].Price, "bucket keeps its last price")
	assert.Equal(t, 50.0, out[0].Volume)
	assert.True(t, out[1].Timestamp.Equal(start.Add(5*time.Minute)))
	assert.Equal(t, 7.0, out[1].Price)
	assert.Equal(t, 20.0, out[1].Volume)

	assert.Equal(t, pts, Resample(pts, 0, newYork))
}

func TestMemoryProvider(t *testing.T) {
	start := time.Date(2025, 6, 2, 9, 30, 0, 0, newYork)
	pts := bars("XLE", start, 5*time.Minute, 90, 91, 92)
	m := NewMemoryProvider(eventstudy.PriceSet{"XLE": {pts[2], pts[0], pts[1]}})

	got, err := m.Prices(context.Background(), "XLE", start.Add(5*time.Minute), time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 91.0, got[0].Price)

	_, err = m.Prices(context.Background(), "CL", time.Time{}, time.Time{}, 0)
	assert.ErrorIs(t, err, ErrNoData)
}

type failingProvider struct{}

func (failingProvider) Prices(context.Context, string, time.Time, time.Time, time.Duration) ([]eventstudy.PricePoint, error) {
	return nil, errors.New("disk on fire")
}

func TestFetchAll(t *testing.T) {
	start := time.Date(2025, 6, 2, 9, 30, 0, 0, newYork)
	m := NewMemoryProvider(eventstudy.PriceSet{
		"XLE": bars("XLE", start, 5*time.Minute, 90, 91),
		"CL":  bars("CL", start, 5*time.Minute, 60, 61),
	})

	res, err := FetchAll(context.Background(), m, []string{"XLE", "STNG", "CL", "FRO"}, time.Time{}, time.Time{}, 0, 2, nil)
	require.NoError(t, err)
	assert.Len(t, res.Prices, 2)
	assert.Equal(t, []string{"FRO", "STNG"}, res.Missing)

	_, err = FetchAll(context.Background(), failingProvider{}, []string{"XLE"}, time.Time{}, time.Time{}, 0, 0, nil)
	assert.ErrorContains(t, err, "fetch XLE")
}
