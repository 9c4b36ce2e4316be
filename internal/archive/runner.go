// Package archive persists settled chat turns and insight batches in the
// background. It is decoupled from the request path: chat sessions hold a
// chat.Recorder and the api package holds an Archiver; neither blocks on the
// database.
package archive

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nyashahama/sentinel-alpha-backend/internal/db"
	"github.com/nyashahama/sentinel-alpha-backend/internal/store"
)

// ─── WRITER INTERFACE ─────────────────────────────────────────────────────────

// Writer is the slice of *store.Store the runner needs. Tests substitute a
// stub.
type Writer interface {
	RecordTurn(ctx context.Context, r store.TurnRecord) (db.ChatTurn, error)
	RecordInsightBatch(ctx context.Context, p store.InsightBatchParams) (db.InsightBatch, error)
}

// ErrQueueFull is returned by Enqueue when every buffer slot is taken.
var ErrQueueFull = errors.New("archive: queue is full")

// Record is one unit of archive work. Exactly one field is set.
type Record struct {
	Turn  *store.TurnRecord
	Batch *store.InsightBatchParams
}

func (r Record) write(ctx context.Context, w Writer) error {
	switch {
	case r.Turn != nil:
		_, err := w.RecordTurn(ctx, *r.Turn)
		return err
	case r.Batch != nil:
		_, err := w.RecordInsightBatch(ctx, *r.Batch)
		return err
	}
	return nil
}

func (r Record) logAttrs() []any {
	switch {
	case r.Turn != nil:
		return []any{"kind", "turn", "chat_session", r.Turn.SessionID, "seq", r.Turn.Seq}
	case r.Batch != nil:
		return []any{"kind", "insight_batch", "insights", len(r.Batch.Insights)}
	}
	return []any{"kind", "empty"}
}

// ─── RUNNER ───────────────────────────────────────────────────────────────────

// RunnerConfig holds tuning parameters for the Runner. Zero fields take the
// values from DefaultRunnerConfig.
type RunnerConfig struct {
	// Workers is the number of concurrent writer goroutines.
	Workers int

	// QueueSize is the in-process buffer. Enqueue fails fast once it is full.
	QueueSize int

	// WriteTimeout bounds a single write attempt.
	WriteTimeout time.Duration

	// MaxRetries is the number of attempts before a record is dropped.
	MaxRetries int

	// Backoff is the delay after the first failed attempt; it doubles on
	// each further attempt.
	Backoff time.Duration

	// DrainTimeout bounds the flush of queued records after shutdown.
	DrainTimeout time.Duration
}

// DefaultRunnerConfig returns production defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Workers:      2,
		QueueSize:    256,
		WriteTimeout: 5 * time.Second,
		MaxRetries:   3,
		Backoff:      time.Second,
		DrainTimeout: 5 * time.Second,
	}
}

// Runner manages a pool of writer goroutines fed by an in-process channel.
type Runner struct {
	w      Writer
	cfg    RunnerConfig
	logger *slog.Logger

	queue chan Record
	wg    sync.WaitGroup
}

// NewRunner constructs a Runner. Call Start to begin processing; Enqueue is
// safe to call before that.
func NewRunner(w Writer, cfg RunnerConfig, logger *slog.Logger) *Runner {
	def := DefaultRunnerConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = def.Backoff
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = def.DrainTimeout
	}

	return &Runner{
		w:      w,
		cfg:    cfg,
		logger: logger,
		queue:  make(chan Record, cfg.QueueSize),
	}
}

// Enqueue hands a record to the pool without blocking.
func (r *Runner) Enqueue(rec Record) error {
	select {
	case r.queue <- rec:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start launches the writer pool and blocks until ctx is cancelled. Records
// still queued at that point get one more attempt each, bounded by
// DrainTimeout. Call it in a goroutine from main.
func (r *Runner) Start(ctx context.Context) {
	r.logger.Info("archive: starting", "workers", r.cfg.Workers)

	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.work(ctx, i)
	}
	r.wg.Wait()

	r.drain()
	r.logger.Info("archive: stopped")
}

func (r *Runner) work(ctx context.Context, id int) {
	defer r.wg.Done()
	log := r.logger.With("archive_worker", id)

	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-r.queue:
			r.writeWithRetry(ctx, rec, log)
		}
	}
}

// drain flushes what is left in the queue after shutdown, single attempt per
// record.
func (r *Runner) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.DrainTimeout)
	defer cancel()

	flushed := 0
	for {
		select {
		case rec := <-r.queue:
			if err := r.writeOnce(ctx, rec); err != nil {
				r.logger.Warn("archive: drain write failed", append(rec.logAttrs(), "error", err)...)
				continue
			}
			flushed++
		default:
			if flushed > 0 {
				r.logger.Info("archive: drained queue", "records", flushed)
			}
			return
		}
	}
}

func (r *Runner) writeOnce(ctx context.Context, rec Record) error {
	wctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()
	return rec.write(wctx, r.w)
}

// writeWithRetry attempts a record up to MaxRetries times with exponential
// back-off. A record that still fails is logged and dropped.
func (r *Runner) writeWithRetry(ctx context.Context, rec Record, log *slog.Logger) {
	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxRetries; attempt++ {
		lastErr = r.writeOnce(ctx, rec)
		if lastErr == nil {
			log.Debug("archive: record written", append(rec.logAttrs(), "attempt", attempt)...)
			return
		}

		log.Warn("archive: write attempt failed",
			append(rec.logAttrs(), "attempt", attempt, "max", r.cfg.MaxRetries, "error", lastErr)...)

		if attempt < r.cfg.MaxRetries {
			backoff := r.cfg.Backoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
		}
	}

	log.Error("archive: record dropped", append(rec.logAttrs(), "error", lastErr)...)
}
