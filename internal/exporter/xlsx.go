package exporter

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// maxColWidth caps auto-sized columns
const maxColWidth = 48

// Workbook builds a spreadsheet with one sheet per table. The caller closes
// the returned file.
func Workbook(tables []Table) (*excelize.File, error) {
	f := excelize.NewFile()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"D9E1F2"}, Pattern: 1},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for i, t := range tables {
		if err := writeSheet(f, i, t, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("sheet %s: %w", t.Name, err)
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

func writeSheet(f *excelize.File, index int, t Table, headerStyle int) error {
	if index == 0 {
		// a new file starts with Sheet1
		if err := f.SetSheetName(f.GetSheetName(0), t.Name); err != nil {
			return err
		}
	} else if _, err := f.NewSheet(t.Name); err != nil {
		return err
	}

	widths := make([]int, len(t.Headers))
	headers := make([]interface{}, len(t.Headers))
	for i, h := range t.Headers {
		headers[i] = h
		widths[i] = len(h)
	}
	if err := f.SetSheetRow(t.Name, "A1", &headers); err != nil {
		return err
	}
	if len(t.Headers) > 0 {
		last, err := excelize.CoordinatesToCellName(len(t.Headers), 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(t.Name, "A1", last, headerStyle); err != nil {
			return err
		}
	}

	for r, row := range t.Rows {
		cells := make([]interface{}, len(row))
		for c, v := range row {
			cells[c] = cellValue(v)
			if c < len(widths) {
				if n := len(cellString(v)); n > widths[c] {
					widths[c] = n
				}
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(t.Name, cell, &cells); err != nil {
			return err
		}
	}

	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if w > maxColWidth {
			w = maxColWidth
		}
		if err := f.SetColWidth(t.Name, col, col, float64(w+2)); err != nil {
			return err
		}
	}
	if len(t.Rows) > 0 {
		return f.SetPanes(t.Name, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		})
	}
	return nil
}

// WriteWorkbook writes the tables as an XLSX document to out
func WriteWorkbook(out io.Writer, tables []Table) error {
	f, err := Workbook(tables)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(out); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
