package ledger

import (
	"time"

	"example.com/signinledger/internal/domain"
)

// Stats is derived from the retained history only. Evicted events no longer
// count, so TotalEntries is bounded by the ledger capacity.
type Stats struct {
	AsOf           time.Time `json:"asOf"`
	TotalEntries   int       `json:"totalEntries"`
	SignInsToday   int       `json:"signInsToday"`
	SignOutsToday  int       `json:"signOutsToday"`
	EntriesLast24h int       `json:"entriesLast24h"`
	ActiveSessions int       `json:"activeSessions"`
}

// Statistics computes aggregates as of asOf. A zero asOf means now. "Today"
// is the calendar day of asOf in the ledger's location.
func (l *Ledger) Statistics(asOf time.Time) Stats {
	if asOf.IsZero() {
		asOf = l.now()
	}
	asOf = asOf.In(l.loc)
	dayStart, dayEnd := dayBounds(asOf)
	windowStart := asOf.Add(-24 * time.Hour)

	l.mu.RLock()
	defer l.mu.RUnlock()

	st := Stats{
		AsOf:           asOf,
		TotalEntries:   len(l.history),
		ActiveSessions: len(l.sessions),
	}
	for _, ev := range l.history {
		at := ev.OccurredAt
		if !at.Before(dayStart) && at.Before(dayEnd) {
			switch ev.Action {
			case domain.SignedIn:
				st.SignInsToday++
			case domain.SignedOut:
				st.SignOutsToday++
			}
		}
		if at.After(windowStart) && !at.After(asOf) {
			st.EntriesLast24h++
		}
	}
	return st
}

// dayBounds returns local midnight of t's day and the following midnight.
// AddDate keeps DST days at their real length.
func dayBounds(t time.Time) (time.Time, time.Time) {
	y, m, d := t.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}
