package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Action is what the scanner reports a person did.
type Action int

const (
	SignedIn Action = iota + 1
	SignedOut
)

// ParseAction maps a wire literal ("in"/"out", any case) to an Action.
func ParseAction(s string) (Action, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "in":
		return SignedIn, true
	case "out":
		return SignedOut, true
	}
	return 0, false
}

// String returns the wire literal.
func (a Action) String() string {
	switch a {
	case SignedIn:
		return "in"
	case SignedOut:
		return "out"
	}
	return "unknown"
}

func (a Action) MarshalJSON() ([]byte, error) {
	if a != SignedIn && a != SignedOut {
		return nil, fmt.Errorf("invalid action %d", int(a))
	}
	return json.Marshal(a.String())
}

// Event is a normalized sign-in/sign-out record. It is never mutated after
// the ledger stores it.
type Event struct {
	ID         string    `json:"id"`
	PersonName string    `json:"name"`
	Action     Action    `json:"action"`
	OccurredAt time.Time `json:"timestamp"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// Identity is the dedup key: name, action and occurredAt rounded down to the
// tolerance window.
func (e Event) Identity(tolerance time.Duration) string {
	ms := e.OccurredAt.UnixMilli()
	if w := tolerance.Milliseconds(); w > 0 {
		ms = floorDiv(ms, w) * w
	}
	return fmt.Sprintf("%s|%s|%d", e.PersonName, e.Action, ms)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// RawEvent is an ingestion request as the device sends it.
type RawEvent struct {
	Name      string    `json:"name"`
	Action    string    `json:"action"`
	Timestamp Timestamp `json:"timestamp"`
}

// Validation constraints
const (
	MaxPersonNameLen = 128
)
