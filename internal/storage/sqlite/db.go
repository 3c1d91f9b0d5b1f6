package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // CGO-free SQLite

	"example.com/signinledger/internal/domain"
	"example.com/signinledger/internal/idempotency"
)

// DB archives events into a local SQLite file.
type DB struct {
	db        *sql.DB
	tolerance time.Duration
}

func Open(ctx context.Context, path string, tolerance time.Duration) (*DB, error) {
	// WAL + busy timeout to avoid "database is locked"
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; the ingestor is the only caller that writes.
	db.SetMaxOpenConns(1)

	if err := createTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db: db, tolerance: tolerance}, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS attendance_events(
	  identity_key   TEXT    PRIMARY KEY,
	  event_id       TEXT    NOT NULL,
	  person_name    TEXT    NOT NULL,
	  action         TEXT    NOT NULL CHECK (action IN ('in','out')),
	  occurred_at_ms INTEGER NOT NULL,
	  received_at_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_attendance_occurred ON attendance_events(occurred_at_ms);
	CREATE INDEX IF NOT EXISTS idx_attendance_person   ON attendance_events(person_name);
	`)
	if err != nil {
		return fmt.Errorf("failed to create database tables: %w", err)
	}
	return nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Ready(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// InsertBatch writes events in one transaction. Rows whose identity is already
// archived are ignored and not counted.
func (d *DB) InsertBatch(ctx context.Context, events []domain.Event) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}
	transaction, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	statement, err := transaction.PrepareContext(ctx, `INSERT OR IGNORE INTO attendance_events(identity_key, event_id, person_name, action, occurred_at_ms, received_at_ms) VALUES(?,?,?,?,?,?)`)
	if err != nil {
		_ = transaction.Rollback()
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer statement.Close()

	var inserted int64
	for _, event := range events {
		key := idempotency.DeriveKey(event, d.tolerance)
		res, err := statement.ExecContext(ctx, key, event.ID, event.PersonName, event.Action.String(), event.OccurredAt.UnixMilli(), event.ReceivedAt.UnixMilli())
		if err != nil {
			_ = transaction.Rollback()
			return 0, fmt.Errorf("failed to execute statement: %w", err)
		}
		n, err := res.RowsAffected()
		if err == nil {
			inserted += n
		}
	}
	if err := transaction.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, nil
}

// QueryTotals aggregates archived events with from <= occurred_at <= to.
func (d *DB) QueryTotals(ctx context.Context, from, to time.Time) (domain.Totals, error) {
	res := domain.Totals{From: from, To: to}
	row := d.db.QueryRowContext(ctx, `
	SELECT
	  COUNT(*),
	  COALESCE(SUM(CASE WHEN action = 'in'  THEN 1 ELSE 0 END), 0),
	  COALESCE(SUM(CASE WHEN action = 'out' THEN 1 ELSE 0 END), 0),
	  COUNT(DISTINCT person_name)
	FROM attendance_events
	WHERE occurred_at_ms >= ? AND occurred_at_ms <= ?`, from.UnixMilli(), to.UnixMilli())
	if err := row.Scan(&res.Count, &res.SignIns, &res.SignOuts, &res.UniquePeople); err != nil {
		return res, fmt.Errorf("scan totals: %w", err)
	}
	return res, nil
}
