package kv

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/casekeeper/internal/dbx"
	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE records (
  key   TEXT PRIMARY KEY,
  value BLOB NOT NULL
);`)
	require.NoError(t, err)
	return db
}

func newSQLite(t *testing.T, db *sql.DB) *SQLRepository {
	t.Helper()
	r, err := NewSQLRepository(db, dbx.DialectSQLite, TableRecords)
	require.NoError(t, err)
	return r
}

func TestSQLRepository_SQLiteContract(t *testing.T) {
	exerciseRepository(t, newSQLite(t, setupDB(t)))
}

func TestNewSQLRepository_RejectsBadTable(t *testing.T) {
	_, err := NewSQLRepository(nil, dbx.DialectSQLite, "records; DROP TABLE x")
	require.Error(t, err)
}

func TestSQLRepository_ErrorsWrapped(t *testing.T) {
	db := setupDB(t)
	r := newSQLite(t, db)
	ctx := context.Background()

	require.NoError(t, db.Close())

	_, err := r.Get(ctx, "k")
	require.ErrorContains(t, err, "failed to get records[k]")

	err = r.Set(ctx, "k", []byte("v"))
	require.ErrorContains(t, err, "failed to set records[k]")

	err = r.Delete(ctx, "k")
	require.ErrorContains(t, err, "failed to delete records[k]")

	_, err = r.CompareAndSwap(ctx, "k", nil, []byte("v"))
	require.ErrorContains(t, err, "failed to swap records[k]")

	_, err = r.DeletePrefix(ctx, "alice-")
	require.ErrorContains(t, err, "failed to delete records[alice-*]")
}

func newPostgresMock(t *testing.T) (*SQLRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	r, err := NewSQLRepository(db, dbx.DialectPostgres, TableMetadata)
	require.NoError(t, err)
	return r, mock
}

func TestSQLRepository_Postgres_Get(t *testing.T) {
	r, mock := newPostgresMock(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM metadata WHERE key = $1`)).
		WithArgs("salt:alice").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte("s")))

	v, err := r.Get(ctx, "salt:alice")
	require.NoError(t, err)
	assert.Equal(t, []byte("s"), v)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM metadata WHERE key = $1`)).
		WithArgs("salt:bob").
		WillReturnError(sql.ErrNoRows)

	v, err = r.Get(ctx, "salt:bob")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepository_Postgres_CompareAndSwap(t *testing.T) {
	r, mock := newPostgresMock(t)
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO metadata \(key, value\) VALUES \(\$1, \$2\)\s+ON CONFLICT \(key\) DO NOTHING`).
		WithArgs("k", []byte("new")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := r.CompareAndSwap(ctx, "k", nil, []byte("new"))
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE metadata SET value = $1 WHERE key = $2 AND value = $3`)).
		WithArgs([]byte("new"), "k", []byte("old")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err = r.CompareAndSwap(ctx, "k", []byte("old"), []byte("new"))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepository_Postgres_SetAndDeletePrefix(t *testing.T) {
	r, mock := newPostgresMock(t)
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO metadata \(key, value\) VALUES \(\$1, \$2\)\s+ON CONFLICT \(key\) DO UPDATE SET value = excluded.value`).
		WithArgs("verify:alice", []byte("m")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, r.Set(ctx, "verify:alice", []byte("m")))

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM metadata WHERE substr(key, 1, $1) = $2`)).
		WithArgs(6, "alice-").
		WillReturnResult(sqlmock.NewResult(0, 3))
	n, err := r.DeletePrefix(ctx, "alice-")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM metadata WHERE key = $1`)).
		WithArgs("x").
		WillReturnError(errors.New("conn reset"))
	require.ErrorContains(t, r.Delete(ctx, "x"), "failed to delete metadata[x]: conn reset")

	require.NoError(t, mock.ExpectationsWereMet())
}
