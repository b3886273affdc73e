package exporter

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"crossmarket/internal/config"
	"crossmarket/internal/services"
)

// Export formats
const (
	FormatJSON = "json"
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

// Formats lists every supported export format
var Formats = []string{FormatJSON, FormatXLSX, FormatCSV}

// ContentType returns the MIME type of a format
func ContentType(format string) string {
	switch format {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	default:
		return "application/json"
	}
}

// ParseFormats splits a comma separated format list and rejects unknown
// entries
func ParseFormats(s string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		f := strings.ToLower(strings.TrimSpace(part))
		if f == "" || seen[f] {
			continue
		}
		if ContentType(f) == ContentType(FormatJSON) && f != FormatJSON {
			return nil, fmt.Errorf("unknown export format %q", f)
		}
		seen[f] = true
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no export format given")
	}
	return out, nil
}

// Write renders a report in one format. CSV carries the robustness table.
func Write(out io.Writer, report *services.RunReport, format string) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case FormatXLSX:
		return WriteWorkbook(out, Sections(report))
	case FormatCSV:
		return WriteTable(out, RobustnessTable(report.Result), true)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// Exporter writes run reports to the output directory
type Exporter struct {
	paths  config.PathsConfig
	csv    *CSVWriter
	logger *slog.Logger
}

// NewExporter creates an exporter writing under paths.OutputDir
func NewExporter(paths config.PathsConfig, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "exporter"))
	return &Exporter{
		paths:  paths,
		csv:    NewCSVWriter(paths.OutputDir, logger),
		logger: logger,
	}
}

// Export writes the report once per format and returns the file paths
func (e *Exporter) Export(report *services.RunReport, formats ...string) ([]string, error) {
	if report == nil || report.Result == nil {
		return nil, fmt.Errorf("nothing to export")
	}
	label := report.Result.Label

	var written []string
	for _, format := range formats {
		path := e.paths.RunOutputPath(label, report.RunID, format)
		var err error
		if format == FormatCSV {
			t := RobustnessTable(report.Result)
			err = e.csv.WriteCSV(path, WriteOptions{Headers: t.Headers, Records: t.Records(), BOMPrefix: true})
		} else {
			err = e.writeFile(path, report, format)
		}
		if err != nil {
			return written, fmt.Errorf("export %s: %w", format, err)
		}
		e.logger.Info("Exported run report",
			slog.String("run_id", report.RunID),
			slog.String("format", format),
			slog.String("path", path))
		written = append(written, path)
	}
	return written, nil
}

func (e *Exporter) writeFile(path string, report *services.RunReport, format string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := Write(file, report, format); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
