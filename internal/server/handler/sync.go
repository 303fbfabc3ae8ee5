package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/polyfolio/syncd/internal/domain"
	syncer "github.com/polyfolio/syncd/internal/sync"
)

// SyncRunner triggers sync passes. Implemented by the orchestrator.
type SyncRunner interface {
	RunPassLocked(ctx context.Context, p syncer.Params) (domain.SyncReport, error)
}

// CatchupRunner triggers ledger-driven catch-up runs.
type CatchupRunner interface {
	Run(ctx context.Context, limit int) (domain.SyncReport, error)
}

// SyncHandler serves the sync trigger endpoints.
type SyncHandler struct {
	runner  SyncRunner
	catchup CatchupRunner
	logger  *slog.Logger
}

// NewSyncHandler creates a SyncHandler with the given runners and logger.
func NewSyncHandler(runner SyncRunner, catchup CatchupRunner, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{
		runner:  runner,
		catchup: catchup,
		logger:  logger,
	}
}

// TriggerSync runs a full sync pass synchronously and returns the report.
// Responds 409 when another pass already holds the lock.
// POST /api/sync/markets
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	var params syncer.Params
	// An empty body means "use the defaults".
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if params.MaxEntities <= 0 {
		params.MaxEntities = 100
	}

	report, err := h.runner.RunPassLocked(r.Context(), params)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			writeError(w, http.StatusConflict, "a sync pass is already running")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: sync pass failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "sync pass failed")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// catchupRequest is the body of the catch-up trigger.
type catchupRequest struct {
	Limit int `json:"limit"`
}

// TriggerCatchup runs a ledger-driven catch-up for stale entities.
// POST /api/sync/catchup
func (h *SyncHandler) TriggerCatchup(w http.ResponseWriter, r *http.Request) {
	var req catchupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Limit <= 0 {
		req.Limit = 50
	}

	report, err := h.catchup.Run(r.Context(), req.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: catchup failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "catchup failed")
		return
	}

	writeJSON(w, http.StatusOK, report)
}
