package client

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/casekeeper/internal/client/config"
	"github.com/dmitrijs2005/casekeeper/internal/client/repositories/kv"
	"github.com/dmitrijs2005/casekeeper/internal/dbx"
)

// Storage bundles the two raw stores the client needs: Metadata for salts
// and verification markers, Records for encrypted records.
type Storage struct {
	Metadata kv.Repository
	Records  kv.Repository

	db      *sql.DB
	dialect dbx.Dialect
}

// OpenStorage builds the raw stores for cfg.StoreDriver.
func OpenStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return NewMemoryStorage(), nil

	case config.DriverSQLite, config.DriverPostgres:
		dialect, err := dbx.ParseDialect(cfg.StoreDriver)
		if err != nil {
			return nil, err
		}
		db, err := OpenDatabase(ctx, dialect, cfg.StoreDSN)
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", dialect, err)
		}
		s, err := newSQLStorage(db, dialect)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		s.db = db
		return s, nil

	case config.DriverS3:
		cli, err := kv.NewS3Client(ctx, kv.S3Config{
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		meta, err := kv.NewS3Repository(cli, cfg.S3Bucket, cfg.S3Prefix, kv.TableMetadata)
		if err != nil {
			return nil, err
		}
		records, err := kv.NewS3Repository(cli, cfg.S3Bucket, cfg.S3Prefix, kv.TableRecords)
		if err != nil {
			return nil, err
		}
		return &Storage{Metadata: meta, Records: records}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func NewMemoryStorage() *Storage {
	return &Storage{
		Metadata: kv.NewMemoryRepository(),
		Records:  kv.NewMemoryRepository(),
	}
}

func newSQLStorage(db dbx.DBTX, dialect dbx.Dialect) (*Storage, error) {
	meta, err := kv.NewSQLRepository(db, dialect, kv.TableMetadata)
	if err != nil {
		return nil, err
	}
	records, err := kv.NewSQLRepository(db, dialect, kv.TableRecords)
	if err != nil {
		return nil, err
	}
	return &Storage{Metadata: meta, Records: records, dialect: dialect}, nil
}

// Atomically runs fn against the stores. SQL backends run it inside one
// transaction; other backends apply each write as it happens.
func (s *Storage) Atomically(ctx context.Context, fn func(ctx context.Context, metadata, records kv.Repository) error) error {
	if s.db == nil {
		return fn(ctx, s.Metadata, s.Records)
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		txs, err := newSQLStorage(tx, s.dialect)
		if err != nil {
			return err
		}
		return fn(ctx, txs.Metadata, txs.Records)
	})
}

func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
