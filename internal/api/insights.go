package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/nyashahama/sentinel-alpha-backend/internal/insight"
	"github.com/nyashahama/sentinel-alpha-backend/internal/signals"
)

// ─── POST /api/insights ───────────────────────────────────────────────────────

type insightsRequest struct {
	// Context is optional; empty uses the dashboard's market context.
	Context string `json:"context"`
}

type insightsResponse struct {
	Insights []insight.Insight `json:"insights"`
	Error    string            `json:"error,omitempty"`
}

// Error kinds reported to the client. The dashboard renders an empty
// briefing for all of them and a configuration hint for credential_missing.
const (
	kindCredentialMissing = "credential_missing"
	kindMalformedResponse = "malformed_response"
	kindTransportFailure  = "transport_failure"
	kindCancelled         = "cancelled"
)

// handleInsights runs one insights request. It always answers 200: a failed
// request yields an empty list plus an error kind, never an HTTP error, so
// the briefing section degrades to empty.
func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	var req insightsRequest
	if !decode(w, r, &req, true) {
		return
	}

	marketContext := strings.TrimSpace(req.Context)
	if marketContext == "" {
		marketContext = signals.MarketContext(signals.Snapshot(), s.cfg.MarketContext)
	}

	batch, err := s.insights.RequestInsights(r.Context(), marketContext)
	kind := errorKind(err)
	if err != nil {
		s.logger.Warn("insights request failed", "error", err, "kind", kind, logField(r))
		batch = []insight.Insight{}
	}

	if s.archive != nil {
		s.archive.RecordInsights(marketContext, batch, kind)
	}

	respond(w, http.StatusOK, insightsResponse{Insights: batch, Error: kind})
}

// errorKind maps a domain error onto the kind string exposed over HTTP.
// nil maps to "".
func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return kindCancelled
	case errors.Is(err, insight.ErrCredentialMissing):
		return kindCredentialMissing
	case errors.Is(err, insight.ErrMalformedResponse):
		return kindMalformedResponse
	}
	return kindTransportFailure
}
