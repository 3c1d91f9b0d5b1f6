// Package archive mirrors stored events into an append-only audit table.
//
// The archive is write-behind and never read back into the ledger: a restart
// still begins with an empty in-memory history.
package archive

import (
	"context"
	"fmt"
	"time"

	"example.com/signinledger/internal/domain"
	spg "example.com/signinledger/internal/storage/postgres"
	"example.com/signinledger/internal/storage/sqlite"
)

const (
	DriverNone     = ""
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Store is implemented by every archive backend.
type Store interface {
	InsertBatch(ctx context.Context, items []domain.Event) (int64, error)
	QueryTotals(ctx context.Context, from, to time.Time) (domain.Totals, error)
	Ready(ctx context.Context) error
	Close() error
}

type Config struct {
	Driver string
	DSN    string
	// Tolerance keys archive rows by the same window the ledger dedups with.
	Tolerance time.Duration
}

// Open connects the configured backend. It returns a nil Store when the
// archive is disabled.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverNone:
		return nil, nil
	case DriverPostgres:
		db, err := spg.Connect(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("postgres archive: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("postgres archive: %w", err)
		}
		return &postgresStore{DB: db, Writer: spg.NewWriter(db, cfg.Tolerance)}, nil
	case DriverSQLite:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("sqlite archive: dsn (file path) is required")
		}
		db, err := sqlite.Open(ctx, cfg.DSN, cfg.Tolerance)
		if err != nil {
			return nil, fmt.Errorf("sqlite archive: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown archive driver: %s", cfg.Driver)
	}
}

type postgresStore struct {
	*spg.DB
	*spg.Writer
}
