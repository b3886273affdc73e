// Package exporter renders analysis run reports as JSON, XLSX workbooks and
// CSV files.
//
// A report is first laid out as a list of Tables (Sections), one per sheet:
// summary, per-asset results, baskets, spreads, significance scores, the
// robustness table, failures and the CAR path. The XLSX writer keeps numeric
// cells numeric; the CSV writer prefixes a UTF-8 BOM so spreadsheets detect
// the encoding.
//
// Example usage:
//
//	exp := exporter.NewExporter(cfg.Paths, logger)
//	files, err := exp.Export(report, exporter.FormatJSON, exporter.FormatXLSX)
//
// For HTTP responses, Write streams a single format to any io.Writer.
package exporter
