// Package store wraps db.Querier with transaction support and groups the
// multi-step archive writes that must execute atomically.
//
// Single-query reads (ListChatTurns, ListInsightsByBatch) are called directly
// on db.Querier via Q().
//
// Dependency rule: store imports db only. It never imports api, archive,
// chat or insight.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nyashahama/sentinel-alpha-backend/internal/db"
)

// Store pairs the connection pool, used to open transactions, with the
// Querier used outside them. turns.go and insights.go attach the write
// operations.
type Store struct {
	pool *sql.DB
	q    *db.Queries
}

// New creates a Store from an open, pinged connection pool.
func New(pool *sql.DB) *Store {
	return &Store{pool: pool, q: db.New(pool)}
}

// Q exposes the Querier for single-query reads.
//
//	turns, err := s.Q().ListChatTurns(ctx, sessionID)
func (s *Store) Q() db.Querier {
	return s.q
}

// txFunc receives a Querier scoped to the open transaction. A non-nil return
// rolls the transaction back.
type txFunc func(ctx context.Context, q db.Querier) error

// withTx runs fn in a serializable transaction, committing on success and
// rolling back on error or panic. Two writers racing on the same
// (session_id, seq) slot cannot both commit; the loser gets an ordinary error
// and is retried by the archive runner.
func (s *Store) withTx(ctx context.Context, fn txFunc) error {
	tx, err := s.pool.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, s.q.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("store: %w; rollback: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit transaction: %w", err)
	}
	return nil
}
