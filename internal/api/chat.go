package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nyashahama/sentinel-alpha-backend/internal/chat"
)

// ─── POST /api/chat ───────────────────────────────────────────────────────────

type createChatRequest struct {
	// Mode is optional; accepts the canonical names and the product labels.
	Mode string `json:"mode"`

	// ContextTag selects the greeting and probes: "dashboard" or "about".
	ContextTag string `json:"context_tag"`
}

type chatResponse struct {
	SessionID         string      `json:"session_id"`
	Token             string      `json:"token,omitempty"`
	Mode              chat.Mode   `json:"mode"`
	Busy              bool        `json:"busy"`
	Transcript        []chat.Turn `json:"transcript"`
	Probes            []string    `json:"probes"`
	CredentialMissing bool        `json:"credential_missing"`
}

// handleCreateChat opens a chat session and primes its greeting. Called when
// the chat view opens.
//
// The token is returned once and must be sent as X-Session-Token on every
// session-scoped request. Without a provider credential the session is still
// created; its transcript then holds the credential-required turn and
// credential_missing is true.
func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req createChatRequest
	if !decode(w, r, &req, true) {
		return
	}

	mode, err := chat.ParseMode(req.Mode)
	if err != nil {
		respondErr(w, http.StatusBadRequest, err.Error())
		return
	}
	tag := req.ContextTag
	if tag == "" {
		tag = chat.TagAbout
	}

	cfg := chat.Config{
		Streamer:    s.streamer,
		Mode:        mode,
		Temperature: s.cfg.ChatTemperature,
		Logger:      s.logger,
	}
	if s.archive != nil {
		cfg.Recorder = s.archive.Recorder(mode)
	}

	session, err := chat.New(cfg)
	credentialMissing := errors.Is(err, chat.ErrCredentialMissing)
	if err != nil && !credentialMissing {
		s.respondInternalErr(w, r, fmt.Errorf("create chat session: %w", err))
		return
	}

	if _, err := session.PrimeGreeting(tag); err != nil && !errors.Is(err, chat.ErrCredentialMissing) {
		s.respondInternalErr(w, r, fmt.Errorf("prime greeting: %w", err))
		return
	}

	token, err := newSessionToken()
	if err != nil {
		s.respondInternalErr(w, r, err)
		return
	}
	if err := s.sessions.add(session, token, time.Now()); err != nil {
		s.logger.Warn("chat session rejected", "error", err, logField(r))
		respondErr(w, http.StatusServiceUnavailable, "too many active chat sessions")
		return
	}

	s.logger.Info("chat session created",
		"chat_session", session.ID(),
		"mode", mode,
		"credential_missing", credentialMissing,
		logField(r),
	)

	resp := chatView(session, tag)
	resp.Token = token
	respond(w, http.StatusCreated, resp)
}

// ─── GET /api/chat/{sessionID} ────────────────────────────────────────────────

// handleGetChat returns the current transcript. Probes are offered again only
// while the transcript holds nothing but the greeting.
func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	respond(w, http.StatusOK, chatView(session, r.URL.Query().Get("context_tag")))
}

func chatView(session *chat.Session, tag string) chatResponse {
	transcript := session.Transcript()
	probes := []string{}
	if session.Configured() && len(transcript) <= 1 {
		probes = chat.Probes(tag)
	}
	return chatResponse{
		SessionID:         session.ID().String(),
		Mode:              session.Mode(),
		Busy:              session.Busy(),
		Transcript:        transcript,
		Probes:            probes,
		CredentialMissing: !session.Configured(),
	}
}

// ─── POST /api/chat/{sessionID}/messages ──────────────────────────────────────

type sendMessageRequest struct {
	Text string `json:"text"`
}

// streamEvent is the payload of one server-sent event. "fragment" events
// carry the growing assistant turn; the single "final" event carries the
// settled turn and, when the reply did not complete, the error kind.
type streamEvent struct {
	Index    int       `json:"index"`
	Fragment string    `json:"fragment,omitempty"`
	Turn     chat.Turn `json:"turn"`
	Error    string    `json:"error,omitempty"`
}

// handleSendMessage submits a user message and streams the reply as
// text/event-stream. Validation failures are ordinary JSON errors: 400 for a
// blank message, 409 while a previous reply is still streaming. Once the
// stream has started, failures arrive in the final event instead.
//
// The reply is tied to the request: a client that disconnects cancels it, and
// the assistant turn settles with whatever text had arrived.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)

	var req sendMessageRequest
	if !decode(w, r, &req, false) {
		return
	}

	st, err := session.Send(r.Context(), req.Text)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		respondErr(w, http.StatusBadRequest, "message text must not be empty")
		return
	case errors.Is(err, chat.ErrSessionBusy):
		respondErr(w, http.StatusConflict, "a reply is still streaming")
		return
	case err != nil:
		s.respondInternalErr(w, r, fmt.Errorf("send message: %w", err))
		return
	}
	defer st.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	for u := range st.Updates() {
		name, ev := "fragment", streamEvent{Index: u.Index, Fragment: u.Fragment, Turn: u.Turn()}
		if u.Final {
			name = "final"
			ev.Error = errorKind(st.Err())
		}
		if err := writeEvent(w, name, ev); err != nil {
			s.logger.Debug("chat stream client gone", "chat_session", session.ID(), "error", err, logField(r))
			return
		}
		_ = rc.Flush()
	}
}

// writeEvent writes one SSE event with a JSON data line.
func writeEvent(w http.ResponseWriter, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
