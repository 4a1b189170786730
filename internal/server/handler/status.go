package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/brianmcmichael/ajna-core/internal/service"
)

// StatsService reports ledger counters for the status surface.
type StatsService interface {
	GetStats(ctx context.Context) (service.Stats, error)
}

// StatusHandler serves the deployment status endpoint.
type StatusHandler struct {
	mode        string
	poolBackend string
	startedAt   time.Time
	service     StatsService
	logger      *slog.Logger
}

// NewStatusHandler creates a StatusHandler for the given deployment mode and
// pool backend.
func NewStatusHandler(mode, poolBackend string, startedAt time.Time, service StatsService, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		mode:        mode,
		poolBackend: poolBackend,
		startedAt:   startedAt,
		service:     service,
		logger:      logger,
	}
}

// GetStatus reports the deployment mode, pool backend, uptime, and ledger
// counters.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStats(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, "get status", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"pool_backend":   h.poolBackend,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"positions":      stats.Positions,
		"next_token_id":  stats.NextTokenID,
		"events":         stats.Events,
	})
}
