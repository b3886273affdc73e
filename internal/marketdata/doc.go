// Package marketdata supplies prices and basket definitions to the
// event-study engine. Providers read per-asset CSV or XLSX files, in-memory
// sets or YAML basket files; FetchAll gathers every asset a request needs.
package marketdata
