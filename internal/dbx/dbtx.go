// Package dbx holds the SQL plumbing under the key-value stores: DBTX,
// which lets a kv.SQLRepository run on a *sql.DB or inside a *sql.Tx,
// and WithTx, which backs Storage.Atomically so that clearing a user
// removes records and key material together or not at all.
package dbx

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX is what a SQL key-value store needs from database/sql.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn in a transaction on db. An error from fn, or a panic,
// rolls back; a panic is re-raised after the rollback. fn's error is
// returned unwrapped so callers can match their own sentinels.
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		_ = tx.Rollback()
		if p := recover(); p != nil {
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}
