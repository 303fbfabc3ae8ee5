package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/polyfolio/syncd/internal/domain"
	"github.com/polyfolio/syncd/internal/provider"
)

// HistoryService resolves and stores equity price history.
type HistoryService interface {
	FetchAndStore(ctx context.Context, req domain.HistoryRequest) (domain.HistoryResult, error)
}

// HistoryHandler serves the on-demand price history endpoint.
type HistoryHandler struct {
	history HistoryService
	logger  *slog.Logger
}

// NewHistoryHandler creates a HistoryHandler with the given service and logger.
func NewHistoryHandler(history HistoryService, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{
		history: history,
		logger:  logger,
	}
}

// historyResponse tags the returned series with the provider that produced it.
type historyResponse struct {
	Symbol     string       `json:"symbol"`
	Resolution string       `json:"resolution"`
	Provider   string       `json:"provider"`
	Bars       []domain.Bar `json:"bars"`
}

// GetHistory resolves a (symbol, resolution, window) request through the
// provider fallback chain, stores the bars, and returns them.
// GET /api/history?symbol=AAPL&resolution=1d&from=2025-01-01&to=2025-06-01
func (h *HistoryHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	symbol := q.Get("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "missing symbol")
		return
	}

	resolution := domain.Resolution(q.Get("resolution"))
	if resolution == "" {
		resolution = domain.ResolutionDay
	}
	switch resolution {
	case domain.ResolutionMinute, domain.ResolutionHour, domain.ResolutionDay:
	default:
		writeError(w, http.StatusBadRequest, "invalid resolution")
		return
	}

	to, err := parseTimeParam(q.Get("to"), time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to date")
		return
	}
	from, err := parseTimeParam(q.Get("from"), to.AddDate(0, -1, 0))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date")
		return
	}
	if !from.Before(to) {
		writeError(w, http.StatusBadRequest, "from must precede to")
		return
	}

	result, err := h.history.FetchAndStore(r.Context(), domain.HistoryRequest{
		Symbol:     symbol,
		Resolution: resolution,
		From:       from,
		To:         to,
	})
	if err != nil {
		if errors.Is(err, provider.ErrNoDataFromAnyProvider) {
			writeError(w, http.StatusNotFound, "no provider has data for this request")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: history fetch failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "history fetch failed")
		return
	}

	writeJSON(w, http.StatusOK, historyResponse{
		Symbol:     symbol,
		Resolution: string(resolution),
		Provider:   result.Provider,
		Bars:       result.Bars,
	})
}

// parseTimeParam accepts RFC3339 or plain dates, falling back to def when the
// value is empty.
func parseTimeParam(v string, def time.Time) (time.Time, error) {
	if v == "" {
		return def, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}
