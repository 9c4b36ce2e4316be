// Package chat implements the conversational session: an append-only
// transcript of turns, fed by one streaming remote exchange at a time.
//
// A Session is owned by its caller (one per open chat view). It accepts a
// new Send only when no assistant turn is in progress, so fragments from two
// exchanges can never interleave. Transport failures are absorbed into the
// transcript as a finalized fallback turn; they are never returned from Send.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/nyashahama/sentinel-alpha-backend/internal/ai"
)

// ─── ERRORS ──────────────────────────────────────────────────────────────────

var (
	// ErrCredentialMissing means the session has no remote capability.
	ErrCredentialMissing = ai.ErrCredentialMissing

	// ErrSessionBusy is returned by Send while a reply is still streaming.
	ErrSessionBusy = errors.New("chat: session busy")

	// ErrEmptyMessage is returned by Send for blank input.
	ErrEmptyMessage = errors.New("chat: message must not be empty")

	// ErrAlreadyPrimed is returned by PrimeGreeting once the transcript holds
	// any turn.
	ErrAlreadyPrimed = errors.New("chat: greeting already primed")
)

// ─── RECORDER ────────────────────────────────────────────────────────────────

// Recorder observes every Turn as it reaches a terminal state. seq is the
// Turn's position in the transcript. Implementations must not block.
type Recorder interface {
	RecordTurn(sessionID uuid.UUID, seq int, turn Turn)
}

// ─── SESSION ─────────────────────────────────────────────────────────────────

// Config is fixed at session creation.
type Config struct {
	// Streamer opens remote exchanges. nil means no credential is configured.
	Streamer ai.Streamer

	Mode Mode

	// SystemInstruction defaults to the Solberg persona.
	SystemInstruction string

	// Temperature defaults to DefaultTemperature.
	Temperature float64

	// Recorder is optional.
	Recorder Recorder

	Logger *slog.Logger
}

// Session holds one transcript. All methods are safe for concurrent use.
type Session struct {
	id  uuid.UUID
	cfg Config
	log *slog.Logger

	mu      sync.Mutex
	turns   []Turn
	history []ai.Message
	busy    bool
}

// New creates a session. When cfg.Streamer is nil it still returns a usable
// session, together with ErrCredentialMissing: the caller can render the
// configuration-needed state, and every Send on that session yields only the
// credential-required turn.
func New(cfg Config) (*Session, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeDefault
	}
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("chat: unknown mode %q", cfg.Mode)
	}
	if cfg.SystemInstruction == "" {
		cfg.SystemInstruction = SystemInstruction
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Session{id: uuid.New(), cfg: cfg}
	s.log = cfg.Logger.With("chat_session", s.id)

	if cfg.Streamer == nil {
		return s, ErrCredentialMissing
	}
	return s, nil
}

// ID returns the session's identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// Mode returns the behavioural mode fixed at creation.
func (s *Session) Mode() Mode { return s.cfg.Mode }

// Configured reports whether the session has a remote capability.
func (s *Session) Configured() bool { return s.cfg.Streamer != nil }

// Busy reports whether an assistant turn is pending or in progress.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Transcript returns a snapshot of all turns in conversation order.
func (s *Session) Transcript() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// PrimeGreeting appends the pre-finalized greeting for tag. It is allowed
// only on an empty transcript; afterwards it returns ErrAlreadyPrimed and
// leaves the transcript untouched. On an unconfigured session the
// credential-required turn is appended instead and ErrCredentialMissing is
// returned alongside it.
func (s *Session) PrimeGreeting(tag string) (Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.turns) > 0 {
		return Turn{}, ErrAlreadyPrimed
	}

	if !s.Configured() {
		t := s.appendLocked(newTurn(SpeakerAssistant, CredentialRequiredText, StateFinalized))
		return t, ErrCredentialMissing
	}
	return s.appendLocked(newTurn(SpeakerAssistant, Greeting(tag), StateFinalized)), nil
}

// Send submits one user message and returns the stream of transcript updates
// for the reply.
//
// Blank input returns ErrEmptyMessage and a reply still in flight returns
// ErrSessionBusy; neither mutates the transcript. Every other outcome,
// including transport failure and a missing credential, is reported through
// the returned Stream and the transcript itself.
//
// The caller must either drain Updates or call Close (or cancel ctx);
// otherwise the reply never settles.
func (s *Session) Send(ctx context.Context, text string) (*Stream, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, ErrSessionBusy
	}

	if !s.Configured() {
		t := s.appendLocked(newTurn(SpeakerAssistant, CredentialRequiredText, StateFinalized))
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.log.Debug("chat: send without credential", "turn_id", t.ID)
		return settledStream(snap, len(snap)-1, ErrCredentialMissing), nil
	}

	s.appendLocked(newTurn(SpeakerUser, text, StateFinalized))
	req := ai.ChatRequest{
		System:      s.cfg.SystemInstruction,
		History:     append([]ai.Message(nil), s.history...),
		Message:     s.cfg.Mode.Prefix() + text,
		Temperature: s.cfg.Temperature,
	}
	index := len(s.turns)
	s.turns = append(s.turns, newTurn(SpeakerAssistant, "", StatePending))
	s.busy = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)

	frags, err := s.cfg.Streamer.OpenStream(ctx, req)
	if err != nil {
		cancel()
		snap := s.settle(index, 0, req, err)
		s.log.Warn("chat: could not open stream", "error", err)
		return settledStream(snap, index, outcomeErr(err)), nil
	}

	s.mu.Lock()
	s.turns[index].State = StateInProgress
	s.mu.Unlock()

	st := newStream(index, cancel)
	go s.consume(ctx, st, frags, req)
	return st, nil
}

// consume pulls fragments one at a time and applies them in arrival order.
// The deferred settle is the single place the assistant turn leaves
// in_progress, whether the sequence ended, failed, or was cancelled.
func (s *Session) consume(ctx context.Context, st *Stream, frags ai.FragmentStream, req ai.ChatRequest) {
	defer close(st.done)
	defer close(st.updates)

	// Unblock a pending Next as soon as the caller cancels.
	stop := context.AfterFunc(ctx, func() { _ = frags.Close() })

	received := 0
	outcome := context.Canceled
	defer func() {
		stop()
		_ = frags.Close()
		snap := s.settle(st.index, received, req, outcome)
		st.setErr(outcomeErr(outcome))
		select {
		case st.updates <- Update{Transcript: snap, Index: st.index, Final: true}:
		case <-ctx.Done():
		}
		st.cancel()
	}()

	for {
		frag, err := frags.Next()
		if ctx.Err() != nil {
			outcome = ctx.Err()
			return
		}
		if errors.Is(err, io.EOF) {
			outcome = nil
			return
		}
		if err != nil {
			outcome = err
			return
		}

		snap := s.applyFragment(st.index, frag)
		received++

		select {
		case st.updates <- Update{Transcript: snap, Index: st.index, Fragment: frag}:
		case <-ctx.Done():
			outcome = ctx.Err()
			return
		}
	}
}

// applyFragment appends frag verbatim to the in-progress turn.
func (s *Session) applyFragment(index int, frag string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[index].Text += frag
	return s.snapshotLocked()
}

// settle moves the assistant turn at index to its terminal state and frees
// the session for the next Send.
//
//   - completed: finalized with the assembled text; the exchange joins history
//   - cancelled: finalized with the partial text, or failed if nothing arrived
//   - credential missing: finalized with the credential-required text
//   - transport failure: fallback text; finalized, or failed if nothing arrived
func (s *Session) settle(index, received int, req ai.ChatRequest, outcome error) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &s.turns[index]
	switch {
	case outcome == nil:
		t.State = StateFinalized
		s.history = append(s.history,
			ai.Message{Role: ai.RoleUser, Text: req.Message},
			ai.Message{Role: ai.RoleAssistant, Text: t.Text},
		)
	case errors.Is(outcome, context.Canceled), errors.Is(outcome, context.DeadlineExceeded):
		t.State = StateFinalized
		if received == 0 {
			t.State = StateFailed
		}
	case errors.Is(outcome, ai.ErrCredentialMissing):
		t.Text = CredentialRequiredText
		t.State = StateFinalized
	default:
		t.Text = FallbackText
		t.State = StateFinalized
		if received == 0 {
			t.State = StateFailed
		}
		s.log.Warn("chat: stream failed", "error", outcome, "fragments", received)
	}

	s.busy = false
	s.recordLocked(index)
	return s.snapshotLocked()
}

func (s *Session) appendLocked(t Turn) Turn {
	s.turns = append(s.turns, t)
	s.recordLocked(len(s.turns) - 1)
	return t
}

func (s *Session) recordLocked(index int) {
	if s.cfg.Recorder != nil {
		s.cfg.Recorder.RecordTurn(s.id, index, s.turns[index])
	}
}

func (s *Session) snapshotLocked() []Turn {
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// outcomeErr maps a raw stream outcome onto the error kind exposed by
// Stream.Err.
func outcomeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ai.ErrCredentialMissing),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ai.ErrTransport):
		return err
	default:
		return fmt.Errorf("%w: %v", ai.ErrTransport, err)
	}
}
