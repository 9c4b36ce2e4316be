package archive_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nyashahama/sentinel-alpha-backend/internal/archive"
	"github.com/nyashahama/sentinel-alpha-backend/internal/chat"
	"github.com/nyashahama/sentinel-alpha-backend/internal/db"
	"github.com/nyashahama/sentinel-alpha-backend/internal/insight"
	"github.com/nyashahama/sentinel-alpha-backend/internal/store"
)

// ─── STUBS ────────────────────────────────────────────────────────────────────

// stubWriter fails the first failFirst calls, then succeeds.
type stubWriter struct {
	mu        sync.Mutex
	failFirst int
	calls     int
	turns     []store.TurnRecord
	batches   []store.InsightBatchParams
	written   chan struct{}
}

func newStubWriter(failFirst int) *stubWriter {
	return &stubWriter{failFirst: failFirst, written: make(chan struct{}, 16)}
}

func (w *stubWriter) attempt() error {
	w.calls++
	if w.calls <= w.failFirst {
		return errors.New("could not serialize access")
	}
	return nil
}

func (w *stubWriter) RecordTurn(_ context.Context, r store.TurnRecord) (db.ChatTurn, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.attempt(); err != nil {
		return db.ChatTurn{}, err
	}
	w.turns = append(w.turns, r)
	w.written <- struct{}{}
	return db.ChatTurn{ID: r.TurnID}, nil
}

func (w *stubWriter) RecordInsightBatch(_ context.Context, p store.InsightBatchParams) (db.InsightBatch, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.attempt(); err != nil {
		return db.InsightBatch{}, err
	}
	w.batches = append(w.batches, p)
	w.written <- struct{}{}
	return db.InsightBatch{ID: uuid.New()}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastConfig() archive.RunnerConfig {
	return archive.RunnerConfig{Workers: 1, QueueSize: 4, MaxRetries: 3, Backoff: time.Millisecond}
}

func waitWritten(t *testing.T, w *stubWriter) {
	t.Helper()
	select {
	case <-w.written:
	case <-time.After(2 * time.Second):
		t.Fatal("record was not written")
	}
}

func startRunner(t *testing.T, r *archive.Runner) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// ─── TESTS ────────────────────────────────────────────────────────────────────

func TestRecorder_ArchivesSettledTurn(t *testing.T) {
	w := newStubWriter(0)
	r := archive.NewRunner(w, fastConfig(), discardLogger())
	startRunner(t, r)

	sessionID := uuid.New()
	turn := chat.Turn{ID: uuid.New(), Speaker: chat.SpeakerAssistant, Text: "hello", State: chat.StateFinalized}
	r.Recorder(chat.ModeNarrative).RecordTurn(sessionID, 2, turn)
	waitWritten(t, w)

	w.mu.Lock()
	defer w.mu.Unlock()
	got := w.turns[0]
	if got.SessionID != sessionID || got.Seq != 2 || got.Mode != "narrative" {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.Speaker != "assistant" || got.State != "finalized" || got.TurnID != turn.ID {
		t.Errorf("turn fields not carried: %+v", got)
	}
}

func TestRunner_RetriesThenSucceeds(t *testing.T) {
	w := newStubWriter(2)
	r := archive.NewRunner(w, fastConfig(), discardLogger())
	startRunner(t, r)

	r.RecordInsights("ctx", []insight.Insight{{Title: "A", Content: "x", Confidence: 0.5}}, "")
	waitWritten(t, w)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", w.calls)
	}
	b := w.batches[0]
	if len(b.Insights) != 1 || b.Insights[0].Title != "A" || len(b.Raw) == 0 {
		t.Errorf("unexpected batch: %+v", b)
	}
}

func TestRunner_DropsAfterMaxRetries(t *testing.T) {
	w := newStubWriter(100)
	r := archive.NewRunner(w, fastConfig(), discardLogger())
	startRunner(t, r)

	r.RecordInsights("ctx", nil, "transport_failure")

	deadline := time.After(2 * time.Second)
	for {
		w.mu.Lock()
		calls := w.calls
		w.mu.Unlock()
		if calls >= 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected 3 attempts, got %d", calls)
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Give a fourth attempt the chance to happen if the runner were wrong.
	time.Sleep(20 * time.Millisecond)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", w.calls)
	}
	if len(w.batches) != 0 {
		t.Error("no batch should have been written")
	}
}

func TestRunner_FailedBatchCarriesNoRows(t *testing.T) {
	w := newStubWriter(0)
	r := archive.NewRunner(w, fastConfig(), discardLogger())
	startRunner(t, r)

	r.RecordInsights("ctx", nil, "malformed_response")
	waitWritten(t, w)

	w.mu.Lock()
	defer w.mu.Unlock()
	b := w.batches[0]
	if b.ErrorKind != "malformed_response" || len(b.Insights) != 0 || b.Raw != nil {
		t.Errorf("unexpected batch: %+v", b)
	}
}

func TestEnqueue_FullQueueFailsFast(t *testing.T) {
	w := newStubWriter(0)
	r := archive.NewRunner(w, archive.RunnerConfig{QueueSize: 1}, discardLogger())

	if err := r.Enqueue(archive.Record{}); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	if err := r.Enqueue(archive.Record{}); !errors.Is(err, archive.ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
}

func TestStart_DrainsQueueOnShutdown(t *testing.T) {
	w := newStubWriter(0)
	r := archive.NewRunner(w, fastConfig(), discardLogger())

	turn := chat.Turn{ID: uuid.New(), Speaker: chat.SpeakerUser, Text: "q", State: chat.StateFinalized}
	r.Recorder(chat.ModeDefault).RecordTurn(uuid.New(), 0, turn)

	// Already cancelled: the workers exit at once and the drain writes the record.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Start(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.turns) != 1 {
		t.Errorf("expected queued turn to be drained, got %d", len(w.turns))
	}
}
