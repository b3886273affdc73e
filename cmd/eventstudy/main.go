package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v2"

	"crossmarket/internal/app"
	"crossmarket/internal/config"
	"crossmarket/internal/eventstudy"
	"crossmarket/internal/exporter"
	"crossmarket/internal/infrastructure"
	"crossmarket/internal/middleware"
	"crossmarket/internal/services"
)

// Exit codes
const (
	exitOK       = 0
	exitFailure  = 1
	exitUsage    = 2
	exitNoResult = 3
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("eventstudy", flag.ContinueOnError)
	fs.SetOutput(stderr)
	requestFile := fs.String("request", "", "analysis request file (.yaml, .yml or .json)")
	formats := fs.String("format", "json,xlsx", "comma separated export formats: json, xlsx, csv")
	outputDir := fs.String("out", "", "output directory (defaults to paths.output_dir)")
	timeout := fs.Duration("timeout", 0, "overall run timeout (defaults to server.run_timeout)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *requestFile == "" {
		fmt.Fprintln(stderr, "eventstudy: -request is required")
		fs.Usage()
		return exitUsage
	}
	exportFormats, err := exporter.ParseFormats(*formats)
	if err != nil {
		fmt.Fprintf(stderr, "eventstudy: %v\n", err)
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "eventstudy: %v\n", err)
		return exitFailure
	}
	if *outputDir != "" {
		cfg.Paths.OutputDir = *outputDir
	}
	if *timeout > 0 {
		cfg.Server.RunTimeout = *timeout
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(stderr, "eventstudy: %v\n", err)
		return exitFailure
	}
	defer infrastructure.CloseLogFile()

	req, err := loadRequest(*requestFile)
	if err != nil {
		logger.Error("Failed to load request", slog.String("path", *requestFile), slog.String("error", err.Error()))
		return exitUsage
	}
	if err := middleware.NewValidator().Struct(req); err != nil {
		logger.Error("Invalid request", slog.String("path", *requestFile), slog.String("error", err.Error()))
		return exitUsage
	}

	container, err := app.NewServiceContainer(cfg, logger, services.WithRunTimeout(cfg.Server.RunTimeout))
	if err != nil {
		infrastructure.WithError(logger, err).Error("Failed to initialize services")
		return exitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, runErr := container.Analysis.Run(ctx, req)
	if report == nil {
		infrastructure.WithError(logger, runErr).Error("Analysis failed")
		return exitNoResult
	}

	files, err := container.Exporter.Export(report, exportFormats...)
	if err != nil {
		infrastructure.WithError(logger, err).Error("Export failed")
		return exitFailure
	}

	printSummary(stdout, report, files)

	if runErr != nil {
		infrastructure.WithError(logger, runErr).Error("Analysis finished with errors",
			slog.String("kind", eventstudy.FailureKind(runErr)))
		return exitFailure
	}
	return exitOK
}

// loadRequest reads a request file, choosing the decoder by extension
func loadRequest(path string) (services.AnalysisRequest, error) {
	var req services.AnalysisRequest
	data, err := os.ReadFile(path)
	if err != nil {
		return req, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		dec := json.NewDecoder(strings.NewReader(string(data)))
		dec.DisallowUnknownFields()
		err = dec.Decode(&req)
	case ".yaml", ".yml":
		err = yaml.UnmarshalStrict(data, &req)
	default:
		err = errors.New("unsupported request file extension, want .yaml, .yml or .json")
	}
	if err != nil {
		return req, fmt.Errorf("parse %s: %w", path, err)
	}
	return req, nil
}

func printSummary(w io.Writer, report *services.RunReport, files []string) {
	res := report.Result
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "Run\t%s\n", report.RunID)
	fmt.Fprintf(tw, "Label\t%s\n", res.Label)
	fmt.Fprintf(tw, "Target\t%s vs %s\n", res.Target, strings.Join(res.References, ", "))
	fmt.Fprintf(tw, "Data\t%s to %s\n", report.From.Format(time.DateOnly), report.To.Format(time.DateOnly))
	switch car := res.Primary.CAR; {
	case car == nil:
		fmt.Fprintf(tw, "CAR\tfailed: %s\n", res.Primary.Error)
	case car.Degenerate:
		fmt.Fprintf(tw, "CAR\t%.3f%% (degenerate, zero residual std)\n", car.Fraction*100)
	default:
		fmt.Fprintf(tw, "CAR\t%.3f%% (z %.2f SD)\n", car.Fraction*100, car.ZScoreSD)
	}
	if d := res.Decoupling; d != nil {
		if d.At != nil {
			fmt.Fprintf(tw, "Decoupling\t%s at %s\n", d.Status, d.At.Format(time.RFC3339))
		} else {
			fmt.Fprintf(tw, "Decoupling\t%s\n", d.Status)
		}
	}
	for _, b := range res.Baskets {
		if b.Status == eventstudy.StatusOK {
			fmt.Fprintf(tw, "Basket %s\t%.3f%% (rank %d)\n", b.Name, b.Fraction*100, b.Rank)
		}
	}
	fmt.Fprintf(tw, "Variants\t%d (%d failed)\n", len(res.Robustness.Rows), res.Robustness.Failed)
	if len(report.MissingAssets) > 0 {
		fmt.Fprintf(tw, "Missing\t%s\n", strings.Join(report.MissingAssets, ", "))
	}
	for _, f := range files {
		fmt.Fprintf(tw, "Wrote\t%s\n", f)
	}
}
