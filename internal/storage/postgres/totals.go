package postgres

import (
	"context"
	"fmt"
	"time"

	"example.com/signinledger/internal/domain"
)

const totalsSQL = `
SELECT
  COUNT(*)::bigint,
  COUNT(*) FILTER (WHERE action = 'in')::bigint,
  COUNT(*) FILTER (WHERE action = 'out')::bigint,
  COUNT(DISTINCT person_name)::bigint
FROM attendance_events
WHERE occurred_at >= $1 AND occurred_at <= $2`

// QueryTotals aggregates archived events with from <= occurred_at <= to.
func (db *DB) QueryTotals(ctx context.Context, from, to time.Time) (domain.Totals, error) {
	res := domain.Totals{From: from, To: to}
	row := db.Pool.QueryRow(ctx, totalsSQL, from.UTC(), to.UTC())
	if err := row.Scan(&res.Count, &res.SignIns, &res.SignOuts, &res.UniquePeople); err != nil {
		return res, fmt.Errorf("scan totals: %w", err)
	}
	return res, nil
}
