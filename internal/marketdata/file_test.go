package marketdata

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var newYork = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic(err)
	}
	return loc
}()

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
}

func TestFileProvider_CSV(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "XLE.csv", `timestamp,price,volume
2025-06-02 09:35:00,90.10,1200
2025-06-02 09:30:00,90.00,1000

2025-06-02 09:40:00,"1,090.20",
`)
	writeFile(t, dir, "CL=F.csv", `2025-06-02T13:30:00Z,61.5
2025-06-02T13:35:00Z,61.7
`)
	writeFile(t, dir, "BAD.csv", "timestamp,price\n2025-06-02 09:30:00,abc\n")
	writeFile(t, dir, "BADTS.csv", "02/06/2025 09:30,90\n")

	p := NewFileProvider(dir, newYork, "", nil)
	ctx := context.Background()

	t.Run("header with volume and naive timestamps", func(t *testing.T) {
		pts, err := p.Prices(ctx, "XLE", time.Time{}, time.Time{}, 0)
		require.NoError(t, err)
		require.Len(t, pts, 3)
		assert.True(t, pts[0].Timestamp.Equal(time.Date(2025, 6, 2, 9, 30, 0, 0, newYork)), "rows are sorted")
		assert.Equal(t, 1000.0, pts[0].Volume)
		assert.Equal(t, 1090.20, pts[2].Price)
		assert.Zero(t, pts[2].Volume)
		assert.Equal(t, "XLE", pts[0].Asset)
	})

	t.Run("headerless RFC 3339", func(t *testing.T) {
		pts, err := p.Prices(ctx, "CL=F", time.Time{}, time.Time{}, 0)
		require.NoError(t, err)
		require.Len(t, pts, 2)
		assert.True(t, pts[0].Timestamp.Equal(time.Date(2025, 6, 2, 9, 30, 0, 0, newYork)))
	})

	t.Run("range is half-open", func(t *testing.T) {
		from := time.Date(2025, 6, 2, 9, 30, 0, 0, newYork)
		to := time.Date(2025, 6, 2, 9, 40, 0, 0, newYork)
		pts, err := p.Prices(ctx, "XLE", from, to, 0)
		require.NoError(t, err)
		assert.Len(t, pts, 2)
	})

	t.Run("empty range is not an error", func(t *testing.T) {
		holiday := time.Date(2025, 6, 19, 0, 0, 0, 0, newYork)
		pts, err := p.Prices(ctx, "XLE", holiday, holiday.AddDate(0, 0, 1), 0)
		require.NoError(t, err)
		assert.Empty(t, pts)
	})

	t.Run("unknown asset", func(t *testing.T) {
		_, err := p.Prices(ctx, "STNG", time.Time{}, time.Time{}, 0)
		assert.ErrorIs(t, err, ErrNoData)
		var nde *NoDataError
		require.ErrorAs(t, err, &nde)
		assert.Equal(t, "STNG", nde.Asset)
	})

	t.Run("malformed rows", func(t *testing.T) {
		_, err := p.Prices(ctx, "BAD", time.Time{}, time.Time{}, 0)
		assert.ErrorContains(t, err, "line 2")
		_, err = p.Prices(ctx, "BADTS", time.Time{}, time.Time{}, 0)
		assert.ErrorContains(t, err, "invalid timestamp")
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := p.Prices(cctx, "XLE", time.Time{}, time.Time{}, 0)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestFileProvider_XLSX(t *testing.T) {
	dir := t.TempDir()

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"ITA intraday export"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"Date", "Close", "Volume"}))
	require.NoError(t, f.SetSheetRow(sheet, "A4", &[]any{"2025-06-02 09:30:00", "150.5", "300"}))
	require.NoError(t, f.SetSheetRow(sheet, "A5", &[]any{"2025-06-02 09:35:00", "150.9", "320"}))
	require.NoError(t, f.SaveAs(filepath.Join(dir, "ITA.xlsx")))
	require.NoError(t, f.Close())

	p := NewFileProvider(dir, newYork, time.DateTime, nil)
	pts, err := p.Prices(context.Background(), "ITA", time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, pts, 2)
	assert.Equal(t, 150.9, pts[1].Price)
	assert.Equal(t, 320.0, pts[1].Volume)
	assert.True(t, pts[0].Timestamp.Equal(time.Date(2025, 6, 2, 9, 30, 0, 0, newYork)))
}

func TestFileProvider_PrefersCSV(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "SPY.csv", "2025-06-02 09:30:00,590\n")
	writeFile(t, dir, "SPY.xlsx", "not a workbook")

	pts, err := NewFileProvider(dir, newYork, "", nil).Prices(context.Background(), "SPY", time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, pts, 1)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "CL=F", FileName("CL=F"))
	assert.Equal(t, "BRK_B", FileName("BRK/B"))
	assert.Equal(t, "^VIX", FileName("^VIX"))
}
