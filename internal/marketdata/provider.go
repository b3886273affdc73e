package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"crossmarket/internal/eventstudy"
)

// ErrNoData is matched by every NoDataError
var ErrNoData = errors.New("no data available")

// NoDataError reports that a provider holds nothing for an asset. An asset
// that exists but has no bars in the requested range is not an error.
type NoDataError struct {
	Asset  string
	Source string
}

func (e *NoDataError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("no data available for %s in %s", e.Asset, e.Source)
	}
	return fmt.Sprintf("no data available for %s", e.Asset)
}

// Is makes errors.Is(err, ErrNoData) hold
func (e *NoDataError) Is(target error) bool {
	return target == ErrNoData
}

// PriceProvider returns ordered price observations for one asset in
// [from, to). A non-zero interval asks for bars of that width.
type PriceProvider interface {
	Prices(ctx context.Context, asset string, from, to time.Time, interval time.Duration) ([]eventstudy.PricePoint, error)
}

// BasketProvider lists predefined basket definitions
type BasketProvider interface {
	Baskets(ctx context.Context) ([]eventstudy.Basket, error)
}

// FetchResult is the outcome of fetching several assets at once
type FetchResult struct {
	Prices eventstudy.PriceSet
	// Missing lists assets the provider has no data for, sorted.
	Missing []string
}

// FetchAll fetches every asset concurrently. Assets without data are listed
// in Missing and left out of Prices so the engine reports them as
// insufficient data; any other provider error aborts the fetch.
func FetchAll(ctx context.Context, p PriceProvider, assets []string, from, to time.Time, interval time.Duration, concurrency int, logger *slog.Logger) (FetchResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	var (
		mu  sync.Mutex
		res = FetchResult{Prices: make(eventstudy.PriceSet, len(assets))}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, asset := range assets {
		g.Go(func() error {
			pts, err := p.Prices(gctx, asset, from, to, interval)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrNoData):
				logger.WarnContext(gctx, "No price data for asset", "asset", asset)
				res.Missing = append(res.Missing, asset)
				return nil
			case err != nil:
				return fmt.Errorf("fetch %s: %w", asset, err)
			}
			res.Prices[asset] = pts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return FetchResult{}, err
	}

	sort.Strings(res.Missing)
	logger.DebugContext(ctx, "Fetched prices",
		"assets", len(assets),
		"missing", len(res.Missing),
		"from", from,
		"to", to)
	return res, nil
}

// window returns the points in [from, to); a zero bound is open.
func window(points []eventstudy.PricePoint, from, to time.Time) []eventstudy.PricePoint {
	lo := sort.Search(len(points), func(i int) bool {
		return from.IsZero() || !points[i].Timestamp.Before(from)
	})
	hi := sort.Search(len(points), func(i int) bool {
		return !to.IsZero() && !points[i].Timestamp.Before(to)
	})
	if hi < lo {
		hi = lo
	}
	out := make([]eventstudy.PricePoint, hi-lo)
	copy(out, points[lo:hi])
	return out
}

// Resample folds bars into interval-wide buckets aligned to the zone's
// clock. Each bucket keeps the last price and the summed volume and is
// stamped with the bucket start. Points must be sorted.
func Resample(points []eventstudy.PricePoint, interval time.Duration, loc *time.Location) []eventstudy.PricePoint {
	if interval <= 0 || len(points) == 0 {
		return points
	}
	if loc == nil {
		loc = time.UTC
	}

	var out []eventstudy.PricePoint
	for _, p := range points {
		start := bucketStart(p.Timestamp, interval, loc)
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(start) {
			out[n-1].Price = p.Price
			out[n-1].Volume += p.Volume
			continue
		}
		p.Timestamp = start
		out = append(out, p)
	}
	return out
}

func bucketStart(t time.Time, interval time.Duration, loc *time.Location) time.Time {
	local := t.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	offset := local.Sub(midnight)
	return midnight.Add(offset - offset%interval)
}
