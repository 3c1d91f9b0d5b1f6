package ledger

import (
	"testing"
	"time"

	"example.com/signinledger/internal/domain"
)

func at(loc *time.Location, y int, m time.Month, d, hh, mm, ss int) domain.Timestamp {
	return domain.Millis(time.Date(y, m, d, hh, mm, ss, 0, loc).UnixMilli())
}

func TestStatisticsDayBoundary(t *testing.T) {
	loc := time.FixedZone("CET", 60*60)
	l := New(Options{Capacity: 10, Location: loc})

	mustIngest(t, l, domain.RawEvent{Name: "Alice", Action: "in", Timestamp: at(loc, 2026, 3, 9, 23, 59, 59)})
	mustIngest(t, l, domain.RawEvent{Name: "Bob", Action: "in", Timestamp: at(loc, 2026, 3, 10, 0, 0, 1)})

	day1 := l.Statistics(time.Date(2026, 3, 9, 23, 59, 59, 500_000_000, loc))
	if day1.SignInsToday != 1 {
		t.Errorf("day 1 SignInsToday = %d, want 1", day1.SignInsToday)
	}
	day2 := l.Statistics(time.Date(2026, 3, 10, 12, 0, 0, 0, loc))
	if day2.SignInsToday != 1 {
		t.Errorf("day 2 SignInsToday = %d, want 1", day2.SignInsToday)
	}

	// Midnight in UTC differs from midnight in the ledger's zone.
	lateUTC := l.Statistics(time.Date(2026, 3, 9, 23, 30, 0, 0, time.UTC))
	if lateUTC.SignInsToday != 1 || lateUTC.AsOf.Location() != loc {
		t.Errorf("asOf should be evaluated in the ledger location: %+v", lateUTC)
	}
}

func TestStatisticsCounts(t *testing.T) {
	loc := time.UTC
	asOf := time.Date(2026, 3, 10, 15, 0, 0, 0, loc)
	l := New(Options{Capacity: 20, Location: loc, Now: func() time.Time { return asOf }})

	events := []domain.RawEvent{
		{Name: "Alice", Action: "in", Timestamp: at(loc, 2026, 3, 10, 8, 0, 0)},
		{Name: "Bob", Action: "in", Timestamp: at(loc, 2026, 3, 10, 8, 30, 0)},
		{Name: "Alice", Action: "out", Timestamp: at(loc, 2026, 3, 10, 12, 0, 0)},
		{Name: "Carol", Action: "in", Timestamp: at(loc, 2026, 3, 9, 16, 0, 0)},  // yesterday, inside 24h
		{Name: "Carol", Action: "out", Timestamp: at(loc, 2026, 3, 9, 14, 0, 0)}, // yesterday, outside 24h
		{Name: "Dave", Action: "in", Timestamp: at(loc, 2026, 3, 1, 9, 0, 0)},
		{Name: "Erin", Action: "in", Timestamp: at(loc, 2026, 3, 10, 18, 0, 0)}, // later today
	}
	for _, raw := range events {
		mustIngest(t, l, raw)
	}

	st := l.Statistics(time.Time{})
	if !st.AsOf.Equal(asOf) {
		t.Errorf("AsOf = %v, want %v", st.AsOf, asOf)
	}
	if st.TotalEntries != len(events) {
		t.Errorf("TotalEntries = %d, want %d", st.TotalEntries, len(events))
	}
	if st.SignInsToday != 3 {
		t.Errorf("SignInsToday = %d, want 3", st.SignInsToday)
	}
	if st.SignOutsToday != 1 {
		t.Errorf("SignOutsToday = %d, want 1", st.SignOutsToday)
	}
	// Alice in/out, Bob in, Carol in at 16:00 yesterday.
	if st.EntriesLast24h != 4 {
		t.Errorf("EntriesLast24h = %d, want 4", st.EntriesLast24h)
	}
	// Bob, Dave, Erin still in. Carol's out was ingested after her in.
	if st.ActiveSessions != 3 {
		t.Errorf("ActiveSessions = %d, want 3", st.ActiveSessions)
	}
}

func TestStatisticsWindowEdges(t *testing.T) {
	loc := time.UTC
	asOf := time.Date(2026, 3, 10, 15, 0, 0, 0, loc)
	l := New(Options{Capacity: 10, Location: loc})

	mustIngest(t, l, domain.RawEvent{Name: "edge-start", Action: "in", Timestamp: domain.Millis(asOf.Add(-24 * time.Hour).UnixMilli())})
	mustIngest(t, l, domain.RawEvent{Name: "inside", Action: "in", Timestamp: domain.Millis(asOf.Add(-24*time.Hour + time.Millisecond).UnixMilli())})
	mustIngest(t, l, domain.RawEvent{Name: "edge-end", Action: "in", Timestamp: domain.Millis(asOf.UnixMilli())})

	if got := l.Statistics(asOf).EntriesLast24h; got != 2 {
		t.Errorf("EntriesLast24h = %d, want 2", got)
	}
}

func TestStatisticsOnlyCountRetainedEvents(t *testing.T) {
	loc := time.UTC
	asOf := time.Date(2026, 3, 10, 15, 0, 0, 0, loc)
	l := New(Options{Capacity: 3, Location: loc})

	for i := 0; i < 5; i++ {
		mustIngest(t, l, domain.RawEvent{
			Name:      string(rune('A' + i)),
			Action:    "in",
			Timestamp: at(loc, 2026, 3, 10, 9, i, 0),
		})
	}
	st := l.Statistics(asOf)
	if st.TotalEntries != 3 {
		t.Errorf("TotalEntries = %d, want 3 (bounded)", st.TotalEntries)
	}
	if st.SignInsToday != 3 {
		t.Errorf("SignInsToday = %d, want 3 (evicted events excluded)", st.SignInsToday)
	}
	// Sessions are not trimmed with history.
	if st.ActiveSessions != 5 {
		t.Errorf("ActiveSessions = %d, want 5", st.ActiveSessions)
	}
}

func TestStatisticsEmpty(t *testing.T) {
	l := New(Options{Location: time.UTC})
	st := l.Statistics(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	if st.TotalEntries != 0 || st.SignInsToday != 0 || st.SignOutsToday != 0 || st.EntriesLast24h != 0 {
		t.Errorf("unexpected non-zero stats: %+v", st)
	}
}

func TestDayBoundsDST(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tz database unavailable: %v", err)
	}
	start, end := dayBounds(time.Date(2026, 3, 29, 12, 0, 0, 0, loc))
	if got := end.Sub(start); got != 23*time.Hour {
		t.Errorf("spring-forward day length = %v, want 23h", got)
	}
}
