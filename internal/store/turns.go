package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nyashahama/sentinel-alpha-backend/internal/db"
)

// ─── INPUT TYPES ─────────────────────────────────────────────────────────────

// TurnRecord is one settled transcript turn as handed over by the archive.
type TurnRecord struct {
	SessionID uuid.UUID
	Mode      string
	Seq       int
	TurnID    uuid.UUID
	Speaker   string
	Text      string
	State     string
	CreatedAt time.Time
}

// ─── ERRORS ──────────────────────────────────────────────────────────────────

// ErrInvalidTurn is returned for a record that cannot be archived: a nil
// session, a negative sequence number, or a non-terminal state.
var ErrInvalidTurn = errors.New("store: invalid turn record")

// ─── METHODS ─────────────────────────────────────────────────────────────────

// RecordTurn atomically:
//
//  1. Creates the chat_sessions row on first sight of the session.
//  2. Writes the turn into its (session_id, seq) slot.
//
// Re-recording the same slot overwrites text and state, so a retried write
// after a partial failure converges on the latest settled turn.
func (s *Store) RecordTurn(ctx context.Context, r TurnRecord) (db.ChatTurn, error) {
	if r.SessionID == uuid.Nil || r.Seq < 0 || (r.State != "finalized" && r.State != "failed") {
		return db.ChatTurn{}, fmt.Errorf("%w: session=%s seq=%d state=%q", ErrInvalidTurn, r.SessionID, r.Seq, r.State)
	}

	var turn db.ChatTurn
	err := s.withTx(ctx, func(ctx context.Context, q db.Querier) error {
		if err := q.UpsertChatSession(ctx, db.UpsertChatSessionParams{
			ID:   r.SessionID,
			Mode: r.Mode,
		}); err != nil {
			return fmt.Errorf("RecordTurn: upsert session: %w", err)
		}

		written, err := q.UpsertChatTurn(ctx, db.UpsertChatTurnParams{
			ID:        r.TurnID,
			SessionID: r.SessionID,
			Seq:       int32(r.Seq),
			Speaker:   r.Speaker,
			Text:      r.Text,
			State:     r.State,
			CreatedAt: r.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("RecordTurn: upsert turn: %w", err)
		}
		turn = written
		return nil
	})
	if err != nil {
		return db.ChatTurn{}, err
	}
	return turn, nil
}
