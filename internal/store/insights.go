package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/nyashahama/sentinel-alpha-backend/internal/db"
	"github.com/sqlc-dev/pqtype"
)

// ─── INPUT TYPES ─────────────────────────────────────────────────────────────

// InsightRow is one parsed insight of a batch.
type InsightRow struct {
	Title      string
	Content    string
	Confidence float64
}

// InsightBatchParams describes one insights request and its outcome.
// Raw is the provider's body when it was valid JSON; ErrorKind is empty on
// success.
type InsightBatchParams struct {
	Context   string
	Raw       json.RawMessage
	ErrorKind string
	Insights  []InsightRow
}

// ─── METHODS ─────────────────────────────────────────────────────────────────

// RecordInsightBatch atomically inserts the batch row and one insights row per
// parsed insight, in response order. Nothing is written if any insert fails.
func (s *Store) RecordInsightBatch(ctx context.Context, p InsightBatchParams) (db.InsightBatch, error) {
	raw := pqtype.NullRawMessage{}
	if len(p.Raw) > 0 && json.Valid(p.Raw) {
		raw = pqtype.NullRawMessage{RawMessage: p.Raw, Valid: true}
	}

	var batch db.InsightBatch
	err := s.withTx(ctx, func(ctx context.Context, q db.Querier) error {
		created, err := q.InsertInsightBatch(ctx, db.InsertInsightBatchParams{
			Context:   p.Context,
			Raw:       raw,
			ErrorKind: sql.NullString{String: p.ErrorKind, Valid: p.ErrorKind != ""},
		})
		if err != nil {
			return fmt.Errorf("RecordInsightBatch: insert batch: %w", err)
		}

		for i, in := range p.Insights {
			if err := q.InsertInsight(ctx, db.InsertInsightParams{
				BatchID:    created.ID,
				Position:   int32(i),
				Title:      in.Title,
				Content:    in.Content,
				Confidence: in.Confidence,
			}); err != nil {
				return fmt.Errorf("RecordInsightBatch: insert insight %d: %w", i, err)
			}
		}

		batch = created
		return nil
	})
	if err != nil {
		return db.InsightBatch{}, err
	}
	return batch, nil
}
