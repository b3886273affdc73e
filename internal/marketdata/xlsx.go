package marketdata

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"crossmarket/internal/eventstudy"
)

// readXLSX reads the first sheet that carries a timestamp/price header. Rows
// above the header are ignored, as are blank rows below it.
func (p *FileProvider) readXLSX(asset, path string) ([]eventstudy.PricePoint, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("%s sheet %s: %w", path, sheet, err)
		}

		headerRow := -1
		var cols columnMap
		for i, row := range rows {
			if m, ok := detectHeader(row); ok {
				headerRow, cols = i, m
				break
			}
		}
		if headerRow < 0 {
			continue
		}

		p.logger.Debug("Found price data in sheet", "sheet_name", sheet, "header_row", headerRow, "total_rows", len(rows))

		points := make([]eventstudy.PricePoint, 0, len(rows)-headerRow-1)
		for i := headerRow + 1; i < len(rows); i++ {
			if blank(rows[i]) {
				continue
			}
			pt, err := p.parseRow(asset, rows[i], cols)
			if err != nil {
				return nil, fmt.Errorf("%s sheet %s row %d: %w", path, sheet, i+1, err)
			}
			points = append(points, pt)
		}
		return points, nil
	}

	return nil, fmt.Errorf("could not find price data sheet in %s", path)
}
