package http

import (
	"errors"
	"net/http"

	"github.com/alem-hub/learnsync/internal/application/command"
	"github.com/alem-hub/learnsync/internal/application/query"
	"github.com/alem-hub/learnsync/internal/domain/shared"
	"github.com/alem-hub/learnsync/pkg/circuitbreaker"
	"github.com/alem-hub/learnsync/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

// handleLive handles the liveness probe.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// handleReady runs the registered checks.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
		return
	}

	status := s.deps.Health.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// SYNC
// ══════════════════════════════════════════════════════════════════════════════

// handleSyncStatus handles GET /v1/sync.
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.deps.Sync.Status())
}

// handleSyncTrigger handles POST /v1/sync.
func (s *Server) handleSyncTrigger(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Sync.Trigger(r.Context())
	switch {
	case err == nil:
		writeJSON(w, r, http.StatusOK, s.deps.Sync.Status())
	case errors.Is(err, command.ErrSyncInProgress):
		writeJSONError(w, http.StatusConflict, "sync_in_progress", "a sync is already running")
	case circuitbreaker.IsRejected(err):
		writeJSONError(w, http.StatusServiceUnavailable, "remote_unavailable", "remote store is temporarily disabled")
	default:
		s.logger.Warn("manual sync failed", logger.Err(err))
		writeJSONError(w, http.StatusBadGateway, "sync_failed", err.Error())
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// handleProgress handles GET /v1/progress?today=YYYY-MM-DD&lessons=true.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.Overview.Handle(r.Context(), query.GetProgressOverviewQuery{
		Today:            r.URL.Query().Get("today"),
		IncludeLessonIDs: r.URL.Query().Get("lessons") == "true",
	})
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// handleHabit handles GET /v1/habit?today=YYYY-MM-DD.
func (s *Server) handleHabit(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.Habit.Handle(r.Context(), query.GetHabitSummaryQuery{Today: r.URL.Query().Get("today")})
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

func writeQueryError(w http.ResponseWriter, err error) {
	if shared.IsValidation(err) {
		writeJSONError(w, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}
	writeJSONError(w, http.StatusInternalServerError, "internal_error", err.Error())
}
