package chat_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nyashahama/sentinel-alpha-backend/internal/ai"
	"github.com/nyashahama/sentinel-alpha-backend/internal/chat"
)

// ─── STUBS ────────────────────────────────────────────────────────────────────

var errClosed = errors.New("fake stream closed")

// chanStream yields fragments from ch. When ch is closed it returns err, or
// io.EOF if err is nil. Close unblocks a pending Next.
type chanStream struct {
	ch     chan string
	err    error
	closed chan struct{}
	once   sync.Once
}

func newChanStream(buffer int) *chanStream {
	return &chanStream{ch: make(chan string, buffer), closed: make(chan struct{})}
}

func scripted(frags []string, err error) *chanStream {
	s := newChanStream(len(frags))
	for _, f := range frags {
		s.ch <- f
	}
	s.err = err
	close(s.ch)
	return s
}

func (s *chanStream) Next() (string, error) {
	select {
	case <-s.closed:
		return "", errClosed
	default:
	}
	select {
	case f, ok := <-s.ch:
		if !ok {
			if s.err != nil {
				return "", s.err
			}
			return "", io.EOF
		}
		return f, nil
	case <-s.closed:
		return "", errClosed
	}
}

func (s *chanStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// fakeStreamer hands out the queued streams in order.
type fakeStreamer struct {
	mu       sync.Mutex
	streams  []*chanStream
	openErr  error
	requests []ai.ChatRequest
}

func (f *fakeStreamer) OpenStream(_ context.Context, req ai.ChatRequest) (ai.FragmentStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.openErr != nil {
		return nil, f.openErr
	}
	s := f.streams[0]
	f.streams = f.streams[1:]
	return s, nil
}

func (f *fakeStreamer) opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type recorded struct {
	seq  int
	turn chat.Turn
}

type stubRecorder struct {
	mu    sync.Mutex
	turns []recorded
}

func (r *stubRecorder) RecordTurn(_ uuid.UUID, seq int, t chat.Turn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, recorded{seq: seq, turn: t})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSession(t *testing.T, streamer ai.Streamer, mode chat.Mode) *chat.Session {
	t.Helper()
	s, err := chat.New(chat.Config{Streamer: streamer, Mode: mode, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("chat.New: %v", err)
	}
	return s
}

// collect drains a stream and returns all updates. Fails the test if the
// stream does not settle in time.
func collect(t *testing.T, st *chat.Stream) []chat.Update {
	t.Helper()
	var out []chat.Update
	timeout := time.After(2 * time.Second)
	for {
		select {
		case u, ok := <-st.Updates():
			if !ok {
				return out
			}
			out = append(out, u)
		case <-timeout:
			t.Fatal("stream did not settle")
			return nil
		}
	}
}

func countInProgress(turns []chat.Turn) int {
	n := 0
	for _, tr := range turns {
		if tr.State == chat.StateInProgress {
			n++
		}
	}
	return n
}

// ─── STREAMING ───────────────────────────────────────────────────────────────

func TestSend_AnalyticalScenario(t *testing.T) {
	frags := []string{"The ", "drift is ", "driven by ", "repo stress."}
	streamer := &fakeStreamer{streams: []*chanStream{scripted(frags, nil)}}
	s := newSession(t, streamer, chat.ModeAnalytical)

	st, err := s.Send(context.Background(), "Explain the drift")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	updates := collect(t, st)

	intermediate := 0
	for _, u := range updates {
		if !u.Final {
			intermediate++
			if u.Turn().State != chat.StateInProgress {
				t.Errorf("intermediate update state = %s, want in_progress", u.Turn().State)
			}
		}
	}
	if intermediate != 4 {
		t.Errorf("expected 4 intermediate updates, got %d", intermediate)
	}
	if updates[1].Turn().Text != "The drift is " {
		t.Errorf("second update text = %q", updates[1].Turn().Text)
	}

	last := updates[len(updates)-1]
	if !last.Final {
		t.Fatal("last update should be final")
	}
	if got := last.Turn(); got.Text != "The drift is driven by repo stress." || got.State != chat.StateFinalized {
		t.Errorf("final turn = %+v", got)
	}
	if st.Err() != nil {
		t.Errorf("Err() = %v, want nil", st.Err())
	}

	req := streamer.requests[0]
	if req.Message != chat.ModeAnalytical.Prefix()+"Explain the drift" {
		t.Errorf("outgoing message = %q", req.Message)
	}
	if req.System != chat.SystemInstruction {
		t.Error("expected persona system instruction")
	}

	transcript := s.Transcript()
	if len(transcript) != 2 || transcript[0].Speaker != chat.SpeakerUser || transcript[0].Text != "Explain the drift" {
		t.Errorf("unexpected transcript: %+v", transcript)
	}
}

func TestSend_SequentialTurnsAlternateAndCarryHistory(t *testing.T) {
	streamer := &fakeStreamer{streams: []*chanStream{
		scripted([]string{"one"}, nil),
		scripted([]string{"two"}, nil),
		scripted([]string{"three"}, nil),
	}}
	s := newSession(t, streamer, chat.ModeDefault)

	for _, msg := range []string{"a", "b", "c"} {
		st, err := s.Send(context.Background(), msg)
		if err != nil {
			t.Fatalf("Send(%q): %v", msg, err)
		}
		collect(t, st)
	}

	transcript := s.Transcript()
	if len(transcript) != 6 {
		t.Fatalf("expected 6 turns, got %d", len(transcript))
	}
	for i, tr := range transcript {
		want := chat.SpeakerUser
		if i%2 == 1 {
			want = chat.SpeakerAssistant
		}
		if tr.Speaker != want {
			t.Errorf("turn %d speaker = %s, want %s", i, tr.Speaker, want)
		}
		if tr.State != chat.StateFinalized {
			t.Errorf("turn %d state = %s", i, tr.State)
		}
	}

	if n := len(streamer.requests[2].History); n != 4 {
		t.Errorf("third request history length = %d, want 4", n)
	}
	if streamer.requests[2].History[1].Text != "one" {
		t.Errorf("history[1] = %+v", streamer.requests[2].History[1])
	}
}

func TestSend_AtMostOneInProgress(t *testing.T) {
	streamer := &fakeStreamer{streams: []*chanStream{scripted([]string{"x", "y", "z"}, nil)}}
	s := newSession(t, streamer, chat.ModeDefault)
	if _, err := s.PrimeGreeting(chat.TagDashboard); err != nil {
		t.Fatalf("PrimeGreeting: %v", err)
	}

	st, _ := s.Send(context.Background(), "hello")
	for _, u := range collect(t, st) {
		if n := countInProgress(u.Transcript); n > 1 {
			t.Fatalf("%d turns in progress", n)
		}
	}
	if n := countInProgress(s.Transcript()); n != 0 {
		t.Errorf("expected no turn in progress after settle, got %d", n)
	}
}

func TestSend_BusyRejectedWithoutMutation(t *testing.T) {
	gate := newChanStream(0)
	streamer := &fakeStreamer{streams: []*chanStream{gate, scripted([]string{"next"}, nil)}}
	s := newSession(t, streamer, chat.ModeDefault)

	st, err := s.Send(context.Background(), "first")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	before := s.Transcript()

	if _, err := s.Send(context.Background(), "second"); !errors.Is(err, chat.ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy, got %v", err)
	}
	if after := s.Transcript(); len(after) != len(before) {
		t.Errorf("transcript changed: %d → %d turns", len(before), len(after))
	}
	if streamer.opens() != 1 {
		t.Errorf("busy send must not open a stream, opens=%d", streamer.opens())
	}

	go func() {
		gate.ch <- "done"
		close(gate.ch)
	}()
	collect(t, st)

	st2, err := s.Send(context.Background(), "second")
	if err != nil {
		t.Fatalf("Send after settle: %v", err)
	}
	collect(t, st2)
}

// ─── FAILURE ─────────────────────────────────────────────────────────────────

func TestSend_MidStreamFailure_UsesFallback(t *testing.T) {
	streamer := &fakeStreamer{streams: []*chanStream{
		scripted([]string{"Marke", "t stress ri"}, ai.ErrTransport),
		scripted([]string{"recovered"}, nil),
	}}
	s := newSession(t, streamer, chat.ModeDefault)

	st, _ := s.Send(context.Background(), "What breaks next?")
	updates := collect(t, st)

	final := updates[len(updates)-1].Turn()
	if final.Text != chat.FallbackText {
		t.Errorf("final text = %q, want fallback", final.Text)
	}
	if final.State != chat.StateFinalized {
		t.Errorf("final state = %s, want finalized", final.State)
	}
	if !errors.Is(st.Err(), ai.ErrTransport) {
		t.Errorf("Err() = %v, want ErrTransport", st.Err())
	}

	st2, err := s.Send(context.Background(), "again")
	if err != nil {
		t.Fatalf("session should remain usable: %v", err)
	}
	collect(t, st2)
	if len(streamer.requests[1].History) != 0 {
		t.Error("failed exchange must not enter history")
	}
}

func TestSend_OpenFailure_TurnFailed(t *testing.T) {
	streamer := &fakeStreamer{openErr: errors.New("dial tcp: refused")}
	s := newSession(t, streamer, chat.ModeDefault)

	st, err := s.Send(context.Background(), "hello")
	if err != nil {
		t.Fatalf("transport errors must not be returned from Send: %v", err)
	}
	updates := collect(t, st)
	if len(updates) != 1 || !updates[0].Final {
		t.Fatalf("expected only a final update, got %d", len(updates))
	}
	got := updates[0].Turn()
	if got.State != chat.StateFailed || got.Text != chat.FallbackText {
		t.Errorf("turn = %+v", got)
	}
	if !errors.Is(st.Err(), ai.ErrTransport) {
		t.Errorf("Err() = %v", st.Err())
	}
	if s.Busy() {
		t.Error("session should not be busy")
	}
}

// ─── CANCELLATION ────────────────────────────────────────────────────────────

func TestStream_CloseKeepsPartialText(t *testing.T) {
	gate := newChanStream(0)
	streamer := &fakeStreamer{streams: []*chanStream{gate}}
	s := newSession(t, streamer, chat.ModeDefault)

	st, _ := s.Send(context.Background(), "hello")

	gate.ch <- "Marke"
	u := <-st.Updates()
	if u.Turn().Text != "Marke" {
		t.Fatalf("update text = %q", u.Turn().Text)
	}

	st.Close()

	transcript := s.Transcript()
	last := transcript[len(transcript)-1]
	if last.State != chat.StateFinalized || last.Text != "Marke" {
		t.Errorf("settled turn = %+v", last)
	}
	if !errors.Is(st.Err(), context.Canceled) {
		t.Errorf("Err() = %v, want context.Canceled", st.Err())
	}
	if s.Busy() {
		t.Error("session should be free after Close")
	}

	// Fragments arriving after cancellation are never applied.
	select {
	case gate.ch <- "t stress":
	default:
	}
	if got := s.Transcript()[len(transcript)-1].Text; got != "Marke" {
		t.Errorf("text changed after cancellation: %q", got)
	}
}

func TestStream_ContextCancelBeforeFragment_TurnFailed(t *testing.T) {
	gate := newChanStream(0)
	streamer := &fakeStreamer{streams: []*chanStream{gate}}
	s := newSession(t, streamer, chat.ModeDefault)

	ctx, cancel := context.WithCancel(context.Background())
	st, _ := s.Send(ctx, "hello")
	cancel()

	select {
	case <-st.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not settle after cancellation")
	}

	last := s.Transcript()[1]
	if last.State != chat.StateFailed || last.Text != "" {
		t.Errorf("turn = %+v", last)
	}
}

// ─── CREDENTIAL ──────────────────────────────────────────────────────────────

func TestNew_NoStreamer_CredentialMissing(t *testing.T) {
	s, err := chat.New(chat.Config{Logger: discardLogger()})
	if !errors.Is(err, chat.ErrCredentialMissing) {
		t.Fatalf("expected ErrCredentialMissing, got %v", err)
	}
	if s == nil {
		t.Fatal("expected a degraded session")
	}
	if len(s.Transcript()) != 0 {
		t.Error("no turn may exist after create")
	}

	turn, err := s.PrimeGreeting(chat.TagDashboard)
	if !errors.Is(err, chat.ErrCredentialMissing) || turn.Text != chat.CredentialRequiredText {
		t.Errorf("PrimeGreeting = %+v, %v", turn, err)
	}

	st, err := s.Send(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	updates := collect(t, st)
	if len(updates) != 1 || updates[0].Turn().Text != chat.CredentialRequiredText {
		t.Errorf("unexpected updates: %+v", updates)
	}
	if !errors.Is(st.Err(), chat.ErrCredentialMissing) {
		t.Errorf("Err() = %v", st.Err())
	}

	for _, tr := range s.Transcript() {
		if tr.Speaker != chat.SpeakerAssistant || tr.Text != chat.CredentialRequiredText {
			t.Errorf("unexpected turn %+v", tr)
		}
	}
}

func TestSend_ProviderCredentialMissing(t *testing.T) {
	streamer := &fakeStreamer{openErr: ai.ErrCredentialMissing}
	s := newSession(t, streamer, chat.ModeDefault)

	st, _ := s.Send(context.Background(), "hello")
	collect(t, st)

	last := s.Transcript()[1]
	if last.Text != chat.CredentialRequiredText || last.State != chat.StateFinalized {
		t.Errorf("turn = %+v", last)
	}
	if !errors.Is(st.Err(), chat.ErrCredentialMissing) {
		t.Errorf("Err() = %v", st.Err())
	}
}

// ─── GREETING & INPUT ────────────────────────────────────────────────────────

func TestPrimeGreeting_OnlyOnEmptyTranscript(t *testing.T) {
	streamer := &fakeStreamer{streams: []*chanStream{scripted([]string{"ok"}, nil)}}
	s := newSession(t, streamer, chat.ModeDefault)

	turn, err := s.PrimeGreeting(chat.TagDashboard)
	if err != nil {
		t.Fatalf("PrimeGreeting: %v", err)
	}
	if turn.Text != chat.Greeting(chat.TagDashboard) || turn.State != chat.StateFinalized {
		t.Errorf("greeting = %+v", turn)
	}

	if _, err := s.PrimeGreeting(chat.TagAbout); !errors.Is(err, chat.ErrAlreadyPrimed) {
		t.Errorf("expected ErrAlreadyPrimed, got %v", err)
	}
	if n := len(s.Transcript()); n != 1 {
		t.Errorf("expected 1 turn, got %d", n)
	}

	st, _ := s.Send(context.Background(), "hi")
	collect(t, st)
	if len(streamer.requests[0].History) != 0 {
		t.Error("greeting must not be sent as history")
	}
}

func TestGreeting_DeterministicByTag(t *testing.T) {
	if chat.Greeting(chat.TagDashboard) == chat.Greeting(chat.TagAbout) {
		t.Error("dashboard and about greetings should differ")
	}
	if chat.Greeting("landing") != chat.Greeting(chat.TagAbout) {
		t.Error("unknown tags should fall back to the archive greeting")
	}
	if len(chat.Probes(chat.TagDashboard)) != 3 {
		t.Error("expected three dashboard probes")
	}
}

func TestSend_EmptyMessageRejected(t *testing.T) {
	streamer := &fakeStreamer{}
	s := newSession(t, streamer, chat.ModeDefault)

	if _, err := s.Send(context.Background(), "  \n "); !errors.Is(err, chat.ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
	if len(s.Transcript()) != 0 || streamer.opens() != 0 {
		t.Error("empty message must not mutate or call out")
	}
}

func TestTranscript_SnapshotIsIsolated(t *testing.T) {
	s := newSession(t, &fakeStreamer{}, chat.ModeDefault)
	_, _ = s.PrimeGreeting(chat.TagAbout)

	snap := s.Transcript()
	snap[0].Text = "tampered"

	if s.Transcript()[0].Text == "tampered" {
		t.Error("snapshot aliases live transcript")
	}
}

func TestRecorder_ReceivesSettledTurns(t *testing.T) {
	rec := &stubRecorder{}
	streamer := &fakeStreamer{streams: []*chanStream{scripted([]string{"a", "b"}, nil)}}
	s, err := chat.New(chat.Config{Streamer: streamer, Recorder: rec, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("chat.New: %v", err)
	}

	_, _ = s.PrimeGreeting(chat.TagAbout)
	st, _ := s.Send(context.Background(), "q")
	collect(t, st)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.turns) != 3 {
		t.Fatalf("expected 3 recorded turns, got %d", len(rec.turns))
	}
	for i, r := range rec.turns {
		if r.seq != i {
			t.Errorf("record %d seq = %d", i, r.seq)
		}
		if !r.turn.State.Terminal() {
			t.Errorf("record %d not terminal: %s", i, r.turn.State)
		}
	}
	if rec.turns[2].turn.Text != "ab" {
		t.Errorf("assistant record text = %q", rec.turns[2].turn.Text)
	}
}

func TestParseMode(t *testing.T) {
	cases := map[string]chat.Mode{
		"":             chat.ModeDefault,
		"INTELLIGENCE": chat.ModeDefault,
		"strategy":     chat.ModeAnalytical,
		"Analytical":   chat.ModeAnalytical,
		"founder":      chat.ModeNarrative,
		"narrative":    chat.ModeNarrative,
	}
	for in, want := range cases {
		got, err := chat.ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := chat.ParseMode("sarcastic"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
