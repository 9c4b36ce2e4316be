package archive

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/nyashahama/sentinel-alpha-backend/internal/chat"
	"github.com/nyashahama/sentinel-alpha-backend/internal/insight"
	"github.com/nyashahama/sentinel-alpha-backend/internal/store"
)

// Recorder returns a chat.Recorder that archives the turns of a session
// created in mode.
func (r *Runner) Recorder(mode chat.Mode) chat.Recorder {
	return sessionRecorder{r: r, mode: mode}
}

type sessionRecorder struct {
	r    *Runner
	mode chat.Mode
}

// RecordTurn is called with the session lock held, so it only enqueues.
func (s sessionRecorder) RecordTurn(sessionID uuid.UUID, seq int, t chat.Turn) {
	rec := Record{Turn: &store.TurnRecord{
		SessionID: sessionID,
		Mode:      string(s.mode),
		Seq:       seq,
		TurnID:    t.ID,
		Speaker:   string(t.Speaker),
		Text:      t.Text,
		State:     string(t.State),
		CreatedAt: t.CreatedAt,
	}}
	if err := s.r.Enqueue(rec); err != nil {
		s.r.logger.Warn("archive: turn not queued", "chat_session", sessionID, "seq", seq, "error", err)
	}
}

// RecordInsights archives one insights request. errKind is empty on success.
func (r *Runner) RecordInsights(marketContext string, batch []insight.Insight, errKind string) {
	p := &store.InsightBatchParams{Context: marketContext, ErrorKind: errKind}
	if errKind == "" {
		if raw, err := json.Marshal(batch); err == nil {
			p.Raw = raw
		}
		p.Insights = make([]store.InsightRow, len(batch))
		for i, in := range batch {
			p.Insights[i] = store.InsightRow{Title: in.Title, Content: in.Content, Confidence: in.Confidence}
		}
	}
	if err := r.Enqueue(Record{Batch: p}); err != nil {
		r.logger.Warn("archive: insight batch not queued", "error", err)
	}
}
