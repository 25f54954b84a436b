package client

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/casekeeper/internal/client/migrations"
	"github.com/dmitrijs2005/casekeeper/internal/dbx"
	"github.com/dmitrijs2005/casekeeper/internal/filex"
)

func gooseDialect(d dbx.Dialect) string {
	if d == dbx.DialectPostgres {
		return "postgres"
	}
	return "sqlite3"
}

// RunMigrations applies the embedded migrations for dialect. It is
// idempotent.
func RunMigrations(ctx context.Context, db *sql.DB, dialect dbx.Dialect) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(gooseDialect(dialect)); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, string(dialect))
}

// OpenDatabase opens dsn with the driver for dialect and migrates it.
// A SQLite file path gets its directory created first.
func OpenDatabase(ctx context.Context, dialect dbx.Dialect, dsn string) (*sql.DB, error) {
	if dialect == dbx.DialectSQLite && filex.IsPlainPath(dsn) {
		if _, err := filex.EnsureParentDir(dsn); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}
