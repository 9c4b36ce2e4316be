// Package api implements the HTTP layer for Sentinel Alpha: the dashboard
// signal snapshot, the insights briefing and the Solberg Interface chat.
// Handlers are methods on *Server. Each handler file is responsible for one
// resource group and only imports the dependencies it actually uses.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nyashahama/sentinel-alpha-backend/internal/ai"
	"github.com/nyashahama/sentinel-alpha-backend/internal/chat"
	"github.com/nyashahama/sentinel-alpha-backend/internal/insight"
)

// Config holds values read from environment variables at startup.
type Config struct {
	// Env is "production", "staging", or "development".
	Env string

	// MarketContext overrides the dashboard's market note in the insights
	// briefing. Empty uses the note as is.
	MarketContext string

	// ChatTemperature is passed to every chat session. Zero uses the chat
	// package default.
	ChatTemperature float64

	// SessionTTL is how long an idle chat session is kept. Default: 30m.
	SessionTTL time.Duration

	// MaxSessions caps the number of live chat sessions. Default: 1000.
	MaxSessions int
}

// Archiver receives settled turns and insight batches. nil disables
// archiving. The concrete implementation is *archive.Runner.
type Archiver interface {
	Recorder(mode chat.Mode) chat.Recorder
	RecordInsights(marketContext string, batch []insight.Insight, errKind string)
}

// Server holds all shared dependencies. Each handler file attaches methods to
// this type and uses only the fields it needs.
type Server struct {
	// insights runs the one-shot briefing request.
	insights *insight.Requester

	// streamer opens chat replies. nil means no provider credential.
	streamer ai.Streamer

	// archive is optional.
	archive Archiver

	sessions *registry

	cfg    Config
	logger *slog.Logger
}

// NewServer constructs the Server and wires the chi router. gen and streamer
// may be nil when no provider credential is configured; the affected
// endpoints then report the credential as missing. The returned http.Handler
// is ready to pass to http.Server.
func NewServer(
	gen ai.Generator,
	streamer ai.Streamer,
	archiver Archiver,
	cfg Config,
	logger *slog.Logger,
) http.Handler {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1000
	}

	s := &Server{
		insights: insight.NewRequester(gen),
		streamer: streamer,
		archive:  archiver,
		sessions: newRegistry(cfg.SessionTTL, cfg.MaxSessions),
		cfg:      cfg,
		logger:   logger,
	}

	return s.routes()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	// ── Global middleware ─────────────────────────────────────────────────────
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggerMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	// ── Health ────────────────────────────────────────────────────────────────
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(r chi.Router) {
		// Request/response routes. The streaming route below is bounded by
		// the provider client timeout instead.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(2 * time.Minute))

			r.Get("/dashboard", s.handleDashboard)
			r.Post("/insights", s.handleInsights)
			r.Post("/chat", s.handleCreateChat)
		})

		// Session-scoped routes require the X-Session-Token issued at creation.
		r.Route("/chat/{sessionID}", func(r chi.Router) {
			r.Use(s.requireSessionToken)
			r.Get("/", s.handleGetChat)
			r.Post("/messages", s.handleSendMessage)
		})
	})

	return r
}
