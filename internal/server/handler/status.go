package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/polyfolio/syncd/internal/domain"
)

// SyncLedger is the read side of the sync-status ledger.
type SyncLedger interface {
	Get(ctx context.Context, entityID string) (domain.SyncStatus, error)
	EntitiesNeedingSync(ctx context.Context, limit int) ([]string, error)
}

// StatusHandler serves sync-ledger queries for the dashboard.
type StatusHandler struct {
	ledger SyncLedger
	logger *slog.Logger
}

// NewStatusHandler creates a StatusHandler over the given ledger.
func NewStatusHandler(ledger SyncLedger, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		ledger: ledger,
		logger: logger,
	}
}

// statusResponse lists entities still needing sync, each with its current
// ledger row when one exists.
type statusResponse struct {
	NeedingSync []domain.SyncStatus `json:"needing_sync"`
	Count       int                 `json:"count"`
}

// GetStatus returns ledger rows for entities whose last pass is pending or
// failed.
// GET /api/sync/status?limit=50
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultListLimit)
	if limit == 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	ids, err := h.ledger.EntitiesNeedingSync(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: sync status query failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to query sync status")
		return
	}

	rows := make([]domain.SyncStatus, 0, len(ids))
	for _, id := range ids {
		row, err := h.ledger.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			h.logger.ErrorContext(r.Context(), "handler: sync status read failed",
				slog.String("entity_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to read sync status")
			return
		}
		rows = append(rows, row)
	}

	writeJSON(w, http.StatusOK, statusResponse{
		NeedingSync: rows,
		Count:       len(rows),
	})
}
