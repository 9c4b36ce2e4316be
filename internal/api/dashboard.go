package api

import (
	"net/http"

	"github.com/nyashahama/sentinel-alpha-backend/internal/signals"
)

// ─── GET /api/dashboard ───────────────────────────────────────────────────────

// handleDashboard returns the signal snapshot rendered by the dashboard.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, signals.Snapshot())
}
