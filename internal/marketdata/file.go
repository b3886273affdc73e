package marketdata

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"crossmarket/internal/eventstudy"
)

// Supported price file extensions, in lookup order
var fileExtensions = []string{".csv", ".xlsx"}

// FileProvider serves prices from one file per asset in a directory:
// <dir>/<asset>.csv or <dir>/<asset>.xlsx. Rows hold timestamp, price and
// an optional volume; timestamps are RFC 3339 or the configured layout in
// the configured location.
type FileProvider struct {
	dir      string
	location *time.Location
	layout   string
	logger   *slog.Logger
}

// NewFileProvider creates a provider rooted at dir
func NewFileProvider(dir string, location *time.Location, layout string, logger *slog.Logger) *FileProvider {
	if location == nil {
		location = time.UTC
	}
	if layout == "" {
		layout = time.DateTime
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileProvider{dir: dir, location: location, layout: layout, logger: logger}
}

// Prices implements PriceProvider
func (p *FileProvider) Prices(ctx context.Context, asset string, from, to time.Time, interval time.Duration) ([]eventstudy.PricePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, ok := p.locate(asset)
	if !ok {
		return nil, &NoDataError{Asset: asset, Source: p.dir}
	}

	var (
		points []eventstudy.PricePoint
		err    error
	)
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		points, err = p.readXLSX(asset, path)
	} else {
		points, err = p.readCSV(asset, path)
	}
	if err != nil {
		return nil, err
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
	points = Resample(points, interval, p.location)

	p.logger.DebugContext(ctx, "Loaded price file",
		"asset", asset,
		"file", path,
		"rows", len(points))

	return window(points, from, to), nil
}

// FileName maps an asset identifier to its file stem; path separators and
// spaces become underscores.
func FileName(asset string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', ':':
			return '_'
		}
		return r
	}, asset)
}

func (p *FileProvider) locate(asset string) (string, bool) {
	stem := FileName(asset)
	for _, ext := range fileExtensions {
		path := filepath.Join(p.dir, stem+ext)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

func (p *FileProvider) readCSV(asset, path string) ([]eventstudy.PricePoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open price file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var (
		points []eventstudy.PricePoint
		cols   = columnMap{timestamp: 0, price: 1, volume: 2}
		line   int
	)
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		line++
		if line == 1 {
			if m, ok := detectHeader(record); ok {
				cols = m
				continue
			}
		}
		if blank(record) {
			continue
		}
		pt, err := p.parseRow(asset, record, cols)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		points = append(points, pt)
	}
	return points, nil
}

// columnMap locates fields within a row; volume is -1 when absent
type columnMap struct {
	timestamp, price, volume int
}

// detectHeader recognises a header row by its column names
func detectHeader(row []string) (columnMap, bool) {
	m := columnMap{timestamp: -1, price: -1, volume: -1}
	for i, cell := range row {
		switch h := strings.ToLower(strings.TrimSpace(cell)); {
		case h == "timestamp" || h == "time" || h == "datetime" || h == "date":
			m.timestamp = i
		case h == "price" || h == "close" || h == "adj close" || h == "last":
			m.price = i
		case h == "volume" || h == "vol":
			m.volume = i
		}
	}
	return m, m.timestamp >= 0 && m.price >= 0
}

func (p *FileProvider) parseRow(asset string, row []string, cols columnMap) (eventstudy.PricePoint, error) {
	if cols.timestamp >= len(row) || cols.price >= len(row) {
		return eventstudy.PricePoint{}, fmt.Errorf("expected at least %d fields, got %d", max(cols.timestamp, cols.price)+1, len(row))
	}
	ts, err := p.parseTime(row[cols.timestamp])
	if err != nil {
		return eventstudy.PricePoint{}, err
	}
	price, err := parseNumber(row[cols.price])
	if err != nil {
		return eventstudy.PricePoint{}, fmt.Errorf("price: %w", err)
	}
	pt := eventstudy.PricePoint{Asset: asset, Timestamp: ts, Price: price}
	if cols.volume >= 0 && cols.volume < len(row) && strings.TrimSpace(row[cols.volume]) != "" {
		if pt.Volume, err = parseNumber(row[cols.volume]); err != nil {
			return eventstudy.PricePoint{}, fmt.Errorf("volume: %w", err)
		}
	}
	return pt, nil
}

func (p *FileProvider) parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(p.layout, s, p.location)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return t, nil
}

func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", ""), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
