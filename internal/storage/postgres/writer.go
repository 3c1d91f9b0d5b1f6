package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"example.com/signinledger/internal/domain"
	"example.com/signinledger/internal/idempotency"
)

type Writer struct {
	db        *DB
	tolerance time.Duration
}

// NewWriter archives events keyed by their identity within tolerance.
func NewWriter(db *DB, tolerance time.Duration) *Writer {
	return &Writer{db: db, tolerance: tolerance}
}

var insertCols = []string{"identity_key", "event_id", "person_name", "action", "occurred_at", "received_at"}

// InsertBatch inserts events with ON CONFLICT DO NOTHING so a retried batch
// archives each scan once.
func (w *Writer) InsertBatch(ctx context.Context, items []domain.Event) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	sql, args := buildInsert(items, w.tolerance)
	ct, err := w.db.Pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("insert batch: %w", err)
	}
	return ct.RowsAffected(), nil
}

func buildInsert(items []domain.Event, tolerance time.Duration) (string, []any) {
	placeholders := make([]string, 0, len(items))
	args := make([]any, 0, len(items)*len(insertCols))

	argi := 1
	for _, ev := range items {
		key := idempotency.DeriveKey(ev, tolerance)
		args = append(args, key, ev.ID, ev.PersonName, ev.Action.String(), ev.OccurredAt.UTC(), ev.ReceivedAt.UTC())

		ph := make([]string, 0, len(insertCols))
		for range insertCols {
			ph = append(ph, fmt.Sprintf("$%d", argi))
			argi++
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")
	}

	sql := "INSERT INTO attendance_events (" + strings.Join(insertCols, ",") + ") VALUES " +
		strings.Join(placeholders, ",") +
		" ON CONFLICT DO NOTHING"
	return sql, args
}
