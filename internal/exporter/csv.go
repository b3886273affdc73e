package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// utf8BOM helps Excel recognize UTF-8
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVWriter provides CSV export functionality
type CSVWriter struct {
	outputDir string
	logger    *slog.Logger
}

// NewCSVWriter creates a new CSV writer resolving relative paths against
// outputDir
func NewCSVWriter(outputDir string, logger *slog.Logger) *CSVWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVWriter{outputDir: outputDir, logger: logger}
}

// WriteOptions configures CSV writing behavior
type WriteOptions struct {
	Headers   []string
	Records   [][]string
	Append    bool
	BOMPrefix bool // Add UTF-8 BOM for Excel compatibility
}

// WriteCSV writes data to a CSV file with the given options
func (w *CSVWriter) WriteCSV(filePath string, options WriteOptions) error {
	fullPath := w.resolvePath(filePath)

	w.logger.Debug("Writing CSV file",
		slog.String("full_path", fullPath),
		slog.Int("record_count", len(options.Records)))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if options.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(fullPath, flags, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	if options.Append {
		options.Headers = nil
		options.BOMPrefix = false
	}
	return writeCSV(file, options)
}

// WriteTable streams one table as CSV to out
func WriteTable(out io.Writer, t Table, bom bool) error {
	return writeCSV(out, WriteOptions{Headers: t.Headers, Records: t.Records(), BOMPrefix: bom})
}

func writeCSV(out io.Writer, options WriteOptions) error {
	if options.BOMPrefix {
		if _, err := out.Write(utf8BOM); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(out)
	if len(options.Headers) > 0 {
		if err := writer.Write(options.Headers); err != nil {
			return fmt.Errorf("failed to write headers: %w", err)
		}
	}
	for i, record := range options.Records {
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// resolvePath places relative paths under the output directory
func (w *CSVWriter) resolvePath(filePath string) string {
	if filepath.IsAbs(filePath) || w.outputDir == "" {
		return filePath
	}
	return filepath.Join(w.outputDir, filePath)
}
