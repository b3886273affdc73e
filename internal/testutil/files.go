package testutil

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"crossmarket/internal/eventstudy"
)

// WritePriceFiles writes one CSV per asset into dir in the layout the file
// provider reads: a header row then timestamp,price,volume
func WritePriceFiles(dir string, prices eventstudy.PriceSet) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for asset, points := range prices {
		if err := writePriceFile(filepath.Join(dir, asset+".csv"), points); err != nil {
			return err
		}
	}
	return nil
}

func writePriceFile(path string, points []eventstudy.PricePoint) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	_ = w.Write([]string{"timestamp", "price", "volume"})
	for _, p := range points {
		_ = w.Write([]string{
			p.Timestamp.Format(time.RFC3339),
			strconv.FormatFloat(p.Price, 'g', -1, 64),
			strconv.FormatFloat(p.Volume, 'f', -1, 64),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
