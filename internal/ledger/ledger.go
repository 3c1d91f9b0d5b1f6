// Package ledger holds the in-memory record of recent sign-in/sign-out events
// and the set of people currently signed in.
//
// The ledger is volatile: nothing is written to disk and a new process starts
// with an empty history and no active sessions.
package ledger

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/signinledger/internal/domain"
)

const (
	DefaultCapacity  = 100
	DefaultTolerance = time.Second
)

type Options struct {
	// Capacity bounds the retained history; the oldest events are evicted first.
	Capacity int
	// Tolerance is the window under which two events with the same name and
	// action are considered the same scan.
	Tolerance time.Duration
	// Now supplies ingestion and statistics time. Defaults to time.Now.
	Now func() time.Time
	// Location defines calendar days for statistics and zone-less timestamps.
	Location *time.Location
	// NewID generates event IDs. Defaults to uuid.NewString.
	NewID func() string
	// Observer, if set, is told about every mutation.
	Observer Observer
}

// Observer receives ledger mutations in the order they are applied. Calls
// are made while the ledger's write lock is held, so implementations must
// not block or call back into the Ledger.
type Observer interface {
	Stored(ev domain.Event, history, sessions int)
	Cleared(removed int)
}

// Session is an open sign-in with no matching sign-out yet.
type Session struct {
	PersonName string    `json:"name"`
	Since      time.Time `json:"since"`
}

// Result describes the outcome of Ingest. For duplicates Event is the
// already-retained event that matched.
type Result struct {
	Event     domain.Event
	Duplicate bool
	// Fallback reports that the timestamp was absent or unparseable.
	Fallback bool
	// Evicted counts events trimmed from the tail by this ingestion.
	Evicted int
}

// Ledger is safe for concurrent use. One lock guards history and sessions so
// readers never observe one updated without the other.
type Ledger struct {
	mu       sync.RWMutex
	history  []domain.Event // newest first
	sessions map[string]time.Time

	capacity  int
	tolerance time.Duration
	now       func() time.Time
	loc       *time.Location
	newID     func() string
	observer  Observer
}

func New(opts Options) *Ledger {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Ledger{
		history:   make([]domain.Event, 0, opts.Capacity),
		sessions:  make(map[string]time.Time),
		capacity:  opts.Capacity,
		tolerance: opts.Tolerance,
		now:       opts.Now,
		loc:       opts.Location,
		newID:     opts.NewID,
		observer:  opts.Observer,
	}
}

func (l *Ledger) Location() *time.Location { return l.loc }

// Ingest validates, normalizes and records one event. A duplicate within the
// tolerance window is accepted without changing any state.
func (l *Ledger) Ingest(raw domain.RawEvent) (Result, error) {
	action, err := domain.ValidateRaw(raw)
	if err != nil {
		return Result{}, err
	}

	received := l.now()
	norm := domain.Normalize(raw.Timestamp, received, l.loc)
	ev := domain.Event{
		PersonName: strings.TrimSpace(raw.Name),
		Action:     action,
		OccurredAt: norm.Time,
		ReceivedAt: time.UnixMilli(received.UnixMilli()).In(l.loc),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if dup, ok := l.findDuplicateLocked(ev); ok {
		return Result{Event: dup, Duplicate: true, Fallback: norm.Fallback}, nil
	}

	ev.ID = l.newID()
	l.history = append(l.history, domain.Event{})
	copy(l.history[1:], l.history)
	l.history[0] = ev

	switch ev.Action {
	case domain.SignedIn:
		l.sessions[ev.PersonName] = ev.OccurredAt
	case domain.SignedOut:
		delete(l.sessions, ev.PersonName)
	}

	evicted := 0
	if len(l.history) > l.capacity {
		evicted = len(l.history) - l.capacity
		clear(l.history[l.capacity:])
		l.history = l.history[:l.capacity]
	}
	if l.observer != nil {
		l.observer.Stored(ev, len(l.history), len(l.sessions))
	}
	return Result{Event: ev, Fallback: norm.Fallback, Evicted: evicted}, nil
}

func (l *Ledger) findDuplicateLocked(candidate domain.Event) (domain.Event, bool) {
	for _, ev := range l.history {
		if ev.PersonName != candidate.PersonName || ev.Action != candidate.Action {
			continue
		}
		d := ev.OccurredAt.Sub(candidate.OccurredAt)
		if d < 0 {
			d = -d
		}
		if d < l.tolerance {
			return ev, true
		}
	}
	return domain.Event{}, false
}

// ListRecent returns a copy of the retained history, newest first.
func (l *Ledger) ListRecent() []domain.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Event, len(l.history))
	copy(out, l.history)
	return out
}

// Latest returns the most recently ingested event.
func (l *Ledger) Latest() (domain.Event, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.history) == 0 {
		return domain.Event{}, false
	}
	return l.history[0], true
}

// ActiveSessions returns a snapshot ordered by start time, then name.
func (l *Ledger) ActiveSessions() []Session {
	l.mu.RLock()
	out := make([]Session, 0, len(l.sessions))
	for name, since := range l.sessions {
		out = append(out, Session{PersonName: name, Since: since})
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Since.Equal(out[j].Since) {
			return out[i].Since.Before(out[j].Since)
		}
		return out[i].PersonName < out[j].PersonName
	})
	return out
}

// Len is the number of retained events.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.history)
}

// Clear drops all history and sessions and returns how many events were
// removed. It cannot be undone.
func (l *Ledger) Clear() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.history)
	l.history = make([]domain.Event, 0, l.capacity)
	l.sessions = make(map[string]time.Time)
	if l.observer != nil {
		l.observer.Cleared(n)
	}
	return n
}
