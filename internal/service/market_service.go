// Package service contains application services sitting between the HTTP
// surface and the stores.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/polyfolio/syncd/internal/domain"
)

// MarketService handles market metadata reads and writes with a cache in
// front of the persistent store.
type MarketService struct {
	markets domain.MarketStore
	holders domain.HolderStore
	cache   domain.MarketCache
	logger  *slog.Logger
}

// NewMarketService creates a MarketService with all required dependencies.
func NewMarketService(
	markets domain.MarketStore,
	holders domain.HolderStore,
	cache domain.MarketCache,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets: markets,
		holders: holders,
		cache:   cache,
		logger:  logger,
	}
}

// UpsertMarkets writes a batch of markets and invalidates cached entries so
// subsequent reads pick up fresh data. It returns per-record outcomes; one
// record's failure does not abort the rest.
func (s *MarketService) UpsertMarkets(ctx context.Context, markets []domain.Market) []domain.UpsertOutcome {
	if len(markets) == 0 {
		return nil
	}

	outcomes := s.markets.UpsertBatch(ctx, markets)

	for _, out := range outcomes {
		if out.Err != nil {
			continue
		}
		if err := s.cache.Invalidate(ctx, out.ID); err != nil {
			s.logger.WarnContext(ctx, "market_service: cache invalidate failed",
				slog.String("market_id", out.ID),
				slog.String("error", err.Error()),
			)
			// Non-fatal: the cache entry expires on its own.
		}
	}

	return outcomes
}

// GetMarket retrieves a market by ID, checking the cache first and falling
// back to the persistent store on a cache miss.
func (s *MarketService) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	m, err := s.cache.Get(ctx, id)
	if err == nil {
		return m, nil
	}

	// Cache miss or error -- fall through to store.
	m, err = s.markets.GetByID(ctx, id)
	if err != nil {
		if err == domain.ErrNotFound {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("market_service: get by id %q: %w", id, err)
	}

	// Back-fill cache; log but do not fail on cache write errors.
	if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
		s.logger.WarnContext(ctx, "market_service: cache set failed",
			slog.String("market_id", id),
			slog.String("error", cacheErr.Error()),
		)
	}

	return m, nil
}

// ListMarkets returns markets ordered by 24-hour volume from the persistent
// store.
func (s *MarketService) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list: %w", err)
	}
	return markets, nil
}

// ListHolders returns the ranked holder snapshot for a market. It verifies
// the market exists so callers get ErrNotFound rather than an empty list for
// unknown ids.
func (s *MarketService) ListHolders(ctx context.Context, marketID string) ([]domain.Holder, error) {
	if _, err := s.GetMarket(ctx, marketID); err != nil {
		return nil, err
	}

	holders, err := s.holders.ListByMarket(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("market_service: list holders %q: %w", marketID, err)
	}
	return holders, nil
}

// Count returns the total number of markets in the persistent store.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	count, err := s.markets.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("market_service: count: %w", err)
	}
	return count, nil
}
