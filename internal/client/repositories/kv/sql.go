package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/dmitrijs2005/casekeeper/internal/dbx"
)

// Tables created by the client migrations.
const (
	TableMetadata = "metadata"
	TableRecords  = "records"
)

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// SQLRepository stores key/value pairs in a two-column table
// (key TEXT PRIMARY KEY, value BLOB/BYTEA).
type SQLRepository struct {
	db      dbx.DBTX
	dialect dbx.Dialect
	table   string
}

func NewSQLRepository(db dbx.DBTX, dialect dbx.Dialect, table string) (*SQLRepository, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &SQLRepository{db: db, dialect: dialect, table: table}, nil
}

func (r *SQLRepository) q(query string) string {
	return r.dialect.Rebind(fmt.Sprintf(query, r.table))
}

func (r *SQLRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, r.q(`SELECT value FROM %s WHERE key = ?`), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s[%s]: %w", r.table, key, err)
	}
	return value, nil
}

func (r *SQLRepository) Set(ctx context.Context, key string, value []byte) error {
	_, err := r.db.ExecContext(ctx, r.q(`
		INSERT INTO %s (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`), key, value)
	if err != nil {
		return fmt.Errorf("failed to set %s[%s]: %w", r.table, key, err)
	}
	return nil
}

func (r *SQLRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, r.q(`DELETE FROM %s WHERE key = ?`), key)
	if err != nil {
		return fmt.Errorf("failed to delete %s[%s]: %w", r.table, key, err)
	}
	return nil
}

func (r *SQLRepository) CompareAndSwap(ctx context.Context, key string, old, next []byte) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if old == nil {
		res, err = r.db.ExecContext(ctx, r.q(`
			INSERT INTO %s (key, value) VALUES (?, ?)
			ON CONFLICT (key) DO NOTHING
		`), key, next)
	} else {
		res, err = r.db.ExecContext(ctx, r.q(`UPDATE %s SET value = ? WHERE key = ? AND value = ?`), next, key, old)
	}
	if err != nil {
		return false, fmt.Errorf("failed to swap %s[%s]: %w", r.table, key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to swap %s[%s]: %w", r.table, key, err)
	}
	return n == 1, nil
}

// DeletePrefix compares a key prefix with substr rather than LIKE: LIKE is
// case-insensitive in SQLite and would need wildcard escaping.
func (r *SQLRepository) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.q(`DELETE FROM %s WHERE substr(key, 1, ?) = ?`),
		utf8.RuneCountInString(prefix), prefix)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s[%s*]: %w", r.table, prefix, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s[%s*]: %w", r.table, prefix, err)
	}
	return n, nil
}

var (
	_ Repository    = (*SQLRepository)(nil)
	_ Swapper       = (*SQLRepository)(nil)
	_ PrefixDeleter = (*SQLRepository)(nil)
)
