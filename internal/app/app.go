package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"crossmarket/internal/config"
	"crossmarket/internal/errors"
	"crossmarket/internal/eventstudy"
	"crossmarket/internal/exporter"
	"crossmarket/internal/infrastructure"
	"crossmarket/internal/marketdata"
	customMiddleware "crossmarket/internal/middleware"
	"crossmarket/internal/services"
	handlers "crossmarket/internal/transport/http"
)

// BuildTime is set at compile time with -ldflags "-X crossmarket/internal/app.BuildTime=..."
var BuildTime = ""

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.AnalysisMetrics
	Services      *ServiceContainer
	ErrorHandler  *errors.ErrorHandler
}

// ServiceContainer holds all application services
type ServiceContainer struct {
	Prices   marketdata.PriceProvider
	Baskets  marketdata.BasketProvider
	Engine   *eventstudy.Engine
	Analysis *services.AnalysisService
	Health   *services.HealthService
	Exporter *exporter.Exporter
}

// NewApplication loads configuration and logging, then builds the
// application
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return New(cfg, logger)
}

// New creates an application from an already loaded configuration
func New(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("Application starting",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion))

	if err := cfg.Paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}
	cfg.Paths.LogPathResolution(logger)

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	metrics, err := infrastructure.CreateAnalysisMetrics(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis metrics: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
		Metrics:       metrics,
		ErrorHandler:  errors.NewErrorHandler(logger, false),
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices initializes all application services
func (a *Application) initializeServices() error {
	container, err := NewServiceContainer(a.Config, a.Logger,
		services.WithTracer(a.OTelProviders.Tracer),
		services.WithMetrics(a.Metrics),
		services.WithRunTimeout(a.Config.Server.RunTimeout),
	)
	if err != nil {
		return err
	}
	a.Services = container
	return nil
}

// NewServiceContainer builds the engine, providers and services from
// configuration. The CLI uses it without the HTTP layer.
func NewServiceContainer(cfg *config.Config, logger *slog.Logger, opts ...services.AnalysisOption) (*ServiceContainer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	engineCfg, err := cfg.Analysis.ToEngineConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid analysis configuration: %w", err)
	}
	engine, err := eventstudy.NewEngine(engineCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	prices := marketdata.NewFileProvider(cfg.Paths.DataDir, cfg.DataLocation(), cfg.Data.TimeLayout, logger)

	var baskets marketdata.BasketProvider = marketdata.StaticBasketProvider(nil)
	if file := cfg.Paths.BasketsFile; file != "" {
		if !config.FileExists(file) {
			logger.Warn("Baskets file not found, continuing without predefined baskets",
				slog.String("path", file))
		} else {
			baskets = marketdata.NewYAMLBasketProvider(file)
		}
	}

	return &ServiceContainer{
		Prices:   prices,
		Baskets:  baskets,
		Engine:   engine,
		Analysis: services.NewAnalysisService(engine, prices, baskets, logger, opts...),
		Health:   services.NewHealthService(config.AppVersion, BuildTime, cfg.Paths, baskets, logger),
		Exporter: exporter.NewExporter(cfg.Paths, logger),
	}, nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// Order: RequestID, RealIP, OTel, Logger, Recoverer, Timeout
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(errors.RecoveryMiddleware(a.ErrorHandler))

	r.Group(func(r chi.Router) {
		r.Use(customMiddleware.NewOTelMiddleware(a.OTelProviders.Tracer, a.Metrics, a.Logger).Handler)
		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(errors.NewErrorMiddleware(a.ErrorHandler, a.Logger).Handler)
		r.Use(customMiddleware.Timeout(a.Config.Server.WriteTimeout, a.Logger))
		r.Use(customMiddleware.SecurityHeaders)

		if rl := a.Config.Security.RateLimit; rl.Enabled {
			r.Use(customMiddleware.NewRateLimiter(rl.RPS, rl.Burst, a.Logger, a.ErrorHandler).Handler)
		}

		a.setupAPIRoutes(r)
	})

	// Prometheus scraping stays outside rate limiting and request metrics
	r.Handle(config.MetricsEndpoint, handlers.NewMetricsHandler(a.OTelProviders.PrometheusHTTP))

	r.NotFound(a.ErrorHandler.NotFound)
	r.MethodNotAllowed(a.ErrorHandler.MethodNotAllowed)

	a.Router = r
}

// setupAPIRoutes configures API endpoints
func (a *Application) setupAPIRoutes(r chi.Router) {
	validation := customMiddleware.NewValidationMiddleware(a.Logger, a.ErrorHandler, a.Config.Security.MaxBodyBytes)

	health := handlers.NewHealthHandler(a.Services.Health, a.Logger)
	r.Mount(config.HealthEndpoint, health.Routes())
	r.Get(config.VersionEndpoint, health.Version)

	analysis := handlers.NewAnalysisHandler(a.Services.Analysis, validation, a.Logger, a.ErrorHandler).
		WithExporter(a.Services.Exporter)
	r.Mount(config.APIBasePath, analysis.Routes())
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start begins serving on ln, or on the configured port when ln is nil
func (a *Application) Start(ctx context.Context, ln net.Listener, cancel context.CancelFunc) error {
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.Server.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", a.Server.Addr, err)
		}
	}

	a.Logger.InfoContext(ctx, "Starting server",
		slog.String("address", ln.Addr().String()),
		slog.String("level", a.Config.Logging.Level))

	go func() {
		if err := a.Server.Serve(ln); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			if cancel != nil {
				cancel()
			}
		}
	}()

	status := a.Services.Health.ReadinessCheck(ctx)
	if status.Status != services.StatusReady {
		a.Logger.WarnContext(ctx, "Startup readiness check failed", slog.Any("services", status.Services))
	}
	return nil
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return nil
}

// Run runs the application until interrupted or the server fails
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := a.Start(ctx, nil, cancel); err != nil {
		return err
	}

	select {
	case sig := <-sigChan:
		a.Logger.InfoContext(ctx, "Received signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		a.Logger.WarnContext(ctx, "Server stopped unexpectedly")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout+5*time.Second)
	defer stopCancel()
	return a.Stop(stopCtx)
}
