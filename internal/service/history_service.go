package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/polyfolio/syncd/internal/domain"
	"github.com/polyfolio/syncd/internal/normalize"
	"github.com/polyfolio/syncd/internal/provider"
)

// HistoryService resolves equity price history through the provider fallback
// chain, normalizes it, and persists the resulting bars.
type HistoryService struct {
	resolver *provider.Resolver
	bars     domain.BarStore
	logger   *slog.Logger
}

// NewHistoryService creates a HistoryService with all required dependencies.
func NewHistoryService(resolver *provider.Resolver, bars domain.BarStore, logger *slog.Logger) *HistoryService {
	return &HistoryService{
		resolver: resolver,
		bars:     bars,
		logger:   logger,
	}
}

// FetchAndStore resolves the requested window, normalizes the series (sorted,
// deduplicated, clamped), writes it to the bar store, and returns the stored
// result tagged with the providing source.
func (s *HistoryService) FetchAndStore(ctx context.Context, req domain.HistoryRequest) (domain.HistoryResult, error) {
	result, err := s.resolver.FetchHistory(ctx, req)
	if err != nil {
		return domain.HistoryResult{}, err
	}

	result.Bars = normalize.Bars(result.Bars)

	if err := s.bars.UpsertBatch(ctx, result.Bars); err != nil {
		return domain.HistoryResult{}, fmt.Errorf("history_service: store %s: %w", req.Symbol, err)
	}

	s.logger.InfoContext(ctx, "history stored",
		slog.String("symbol", req.Symbol),
		slog.String("resolution", string(req.Resolution)),
		slog.String("provider", result.Provider),
		slog.Int("bars", len(result.Bars)),
	)

	return result, nil
}

// ListRange reads stored bars for a (symbol, resolution) window without
// touching any provider.
func (s *HistoryService) ListRange(ctx context.Context, symbol string, res domain.Resolution, from, to time.Time) ([]domain.Bar, error) {
	bars, err := s.bars.ListRange(ctx, symbol, res, from, to)
	if err != nil {
		return nil, fmt.Errorf("history_service: list %s: %w", symbol, err)
	}
	return bars, nil
}
