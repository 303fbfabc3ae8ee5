package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// healthCheckTimeout bounds the backing-store pings so a wedged dependency
// cannot hang the probe itself.
const healthCheckTimeout = 2 * time.Second

// HealthHandler serves the health endpoint, reporting the daemon plus each
// wired backing store (postgres, redis).
type HealthHandler struct {
	checks map[string]func(context.Context) error
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler over the given named connectivity
// checks.
func NewHealthHandler(logger *slog.Logger, checks map[string]func(context.Context) error) *HealthHandler {
	return &HealthHandler{checks: checks, logger: logger}
}

// HealthCheck pings every wired dependency and reports per-dependency status.
// Any failing check degrades the overall status to 503 so load balancers can
// pull the instance.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	overall := "ok"
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.WarnContext(ctx, "health check failed",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			deps[name] = err.Error()
			overall = "degraded"
		} else {
			deps[name] = "ok"
		}
	}

	status := http.StatusOK
	if overall != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"service":      "syncd",
		"status":       overall,
		"dependencies": deps,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}
