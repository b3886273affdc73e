package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"crossmarket/internal/config"
	"crossmarket/internal/infrastructure"
	"crossmarket/internal/marketdata"
)

// Health states
const (
	StatusOK       = "ok"
	StatusReady    = "ready"
	StatusNotReady = "not_ready"
	StatusAlive    = "alive"
)

// HealthService provides health check functionality
type HealthService struct {
	version   string
	buildTime string
	paths     config.PathsConfig
	baskets   marketdata.BasketProvider
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Runtime   map[string]interface{}   `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

// ServiceHealth represents individual dependency health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewHealthService creates a new health service
func NewHealthService(version, buildTime string, paths config.PathsConfig, baskets marketdata.BasketProvider, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		version:   version,
		buildTime: buildTime,
		paths:     paths,
		baskets:   baskets,
		startTime: time.Now(),
		logger:    infrastructure.WithComponent(logger, "health_service"),
	}
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    StatusOK,
		Timestamp: time.Now(),
		Version:   hs.version,
	}
}

// ReadinessCheck reports whether price data and basket definitions are
// reachable and the output directory is writable
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    StatusReady,
		Timestamp: time.Now(),
		Version:   hs.version,
		Services: map[string]ServiceHealth{
			"data":    hs.checkDataHealth(),
			"output":  hs.checkOutputHealth(),
			"baskets": hs.checkBasketHealth(ctx),
		},
	}

	for name, sh := range status.Services {
		if sh.Status != StatusReady {
			status.Status = StatusNotReady
			hs.logger.WarnContext(ctx, "Dependency not ready",
				slog.String("dependency", name),
				slog.String("message", sh.Message))
		}
	}
	return status
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    StatusAlive,
		Timestamp: time.Now(),
		Version:   hs.version,
		Runtime: map[string]interface{}{
			"uptime":     time.Since(hs.startTime).Seconds(),
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

// Version returns version information
func (hs *HealthService) Version() map[string]interface{} {
	result := map[string]interface{}{
		"name":         config.AppName,
		"version":      hs.version,
		"go_version":   runtime.Version(),
		"os":           runtime.GOOS,
		"arch":         runtime.GOARCH,
		"uptime":       time.Since(hs.startTime).Seconds(),
		"start_time":   hs.startTime.Format(time.RFC3339),
		"current_time": time.Now().Format(time.RFC3339),
	}
	if hs.buildTime != "" {
		result["build_time"] = hs.buildTime
	}
	return result
}

func (hs *HealthService) checkDataHealth() ServiceHealth {
	info, err := os.Stat(hs.paths.DataDir)
	if err != nil {
		return ServiceHealth{
			Status:  StatusNotReady,
			Message: fmt.Sprintf("Data directory not accessible: %v", err),
		}
	}
	if !info.IsDir() {
		return ServiceHealth{
			Status:  StatusNotReady,
			Message: fmt.Sprintf("Data path is not a directory: %s", hs.paths.DataDir),
		}
	}
	return ServiceHealth{Status: StatusReady}
}

func (hs *HealthService) checkOutputHealth() ServiceHealth {
	if err := os.MkdirAll(hs.paths.OutputDir, 0755); err != nil {
		return ServiceHealth{
			Status:  StatusNotReady,
			Message: fmt.Sprintf("Cannot create output directory: %v", err),
		}
	}
	return ServiceHealth{Status: StatusReady}
}

func (hs *HealthService) checkBasketHealth(ctx context.Context) ServiceHealth {
	if hs.baskets == nil {
		return ServiceHealth{Status: StatusReady, Message: "no predefined baskets"}
	}
	baskets, err := hs.baskets.Baskets(ctx)
	if err != nil {
		return ServiceHealth{
			Status:  StatusNotReady,
			Message: fmt.Sprintf("Basket definitions invalid: %v", err),
		}
	}
	return ServiceHealth{Status: StatusReady, Message: fmt.Sprintf("%d baskets", len(baskets))}
}
