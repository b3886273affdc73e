package http

import (
	"context"

	"crossmarket/internal/eventstudy"
	"crossmarket/internal/services"
)

// AnalysisServiceInterface defines the interface for analysis operations
type AnalysisServiceInterface interface {
	Run(ctx context.Context, req services.AnalysisRequest) (*services.RunReport, error)
	ListBaskets(ctx context.Context) ([]eventstudy.Basket, error)
}
