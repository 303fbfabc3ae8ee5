package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/polyfolio/syncd/internal/domain"
)

// ErrNoDataFromAnyProvider means the whole fallback chain was exhausted
// without a non-empty result. The resolver wraps the last concrete error seen
// so callers can distinguish "nothing exists" from "every provider broke".
var ErrNoDataFromAnyProvider = errors.New("no data from any provider")

// Resolver tries an ordered list of provider clients and returns the first
// non-empty result, tagged with the provider that produced it. Providers
// disagree on coverage for small-cap symbols, old dates, and odd resolutions;
// the iteration is strictly sequential and short-circuiting so quota is not
// wasted on providers that never get a chance to answer.
type Resolver struct {
	clients []Client
	logger  *slog.Logger
}

// NewResolver creates a Resolver over the given clients in priority order.
func NewResolver(clients []Client, logger *slog.Logger) *Resolver {
	return &Resolver{
		clients: clients,
		logger:  logger.With(slog.String("component", "resolver")),
	}
}

// Providers returns the names of the configured chain in priority order.
func (r *Resolver) Providers() []string {
	names := make([]string, 0, len(r.clients))
	for _, c := range r.clients {
		names = append(names, c.Name())
	}
	return names
}

// FetchHistory iterates the chain. An explicit no-data failure and an empty
// result set both mean "try the next provider"; any other failure is also a
// reason to continue, but is remembered so exhaustion can report it.
func (r *Resolver) FetchHistory(ctx context.Context, req domain.HistoryRequest) (domain.HistoryResult, error) {
	if len(r.clients) == 0 {
		return domain.HistoryResult{}, fmt.Errorf("provider: %w: no clients configured", ErrNoDataFromAnyProvider)
	}

	var lastErr error
	for _, c := range r.clients {
		bars, err := c.FetchHistory(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return domain.HistoryResult{}, fmt.Errorf("provider: fetch %s: %w", req.Symbol, ctx.Err())
			}
			if IsNoData(err) {
				r.logger.DebugContext(ctx, "provider has no data",
					slog.String("provider", c.Name()),
					slog.String("symbol", req.Symbol),
				)
			} else {
				r.logger.WarnContext(ctx, "provider failed, trying next",
					slog.String("provider", c.Name()),
					slog.String("symbol", req.Symbol),
					slog.String("kind", KindOf(err).String()),
					slog.String("error", err.Error()),
				)
				lastErr = err
			}
			continue
		}
		if len(bars) == 0 {
			r.logger.DebugContext(ctx, "provider returned empty result",
				slog.String("provider", c.Name()),
				slog.String("symbol", req.Symbol),
			)
			continue
		}

		r.logger.InfoContext(ctx, "history resolved",
			slog.String("provider", c.Name()),
			slog.String("symbol", req.Symbol),
			slog.Int("bars", len(bars)),
		)
		return domain.HistoryResult{Bars: bars, Provider: c.Name()}, nil
	}

	if lastErr != nil {
		return domain.HistoryResult{}, fmt.Errorf("provider: %s: %w: last error: %w", req.Symbol, ErrNoDataFromAnyProvider, lastErr)
	}
	return domain.HistoryResult{}, fmt.Errorf("provider: %s: %w", req.Symbol, ErrNoDataFromAnyProvider)
}
