package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// SecondsThreshold separates epoch seconds from epoch milliseconds: integers
// strictly below it are seconds (anything up to year ~2286), the rest are
// milliseconds. Devices send either unit without saying which.
const SecondsThreshold int64 = 10_000_000_000

// Instants outside these years are treated as unparseable.
const (
	MinYear = 0
	MaxYear = 9999
)

// TimestampKind tags the variant held by a Timestamp.
type TimestampKind int

const (
	KindAbsent TimestampKind = iota
	KindSeconds
	KindMillis
	KindDateString
)

func (k TimestampKind) String() string {
	switch k {
	case KindSeconds:
		return "seconds"
	case KindMillis:
		return "millis"
	case KindDateString:
		return "date"
	}
	return "absent"
}

// Timestamp is the device-supplied event time in whichever form it arrived.
// The zero value is Absent.
type Timestamp struct {
	kind   TimestampKind
	millis int64
	text   string
}

func Absent() Timestamp { return Timestamp{} }

// Seconds returns Absent when n*1000 does not fit in an int64.
func Seconds(n int64) Timestamp {
	if n > math.MaxInt64/1000 || n < math.MinInt64/1000 {
		return Absent()
	}
	return Timestamp{kind: KindSeconds, millis: n * 1000}
}

func Millis(n int64) Timestamp { return Timestamp{kind: KindMillis, millis: n} }

func DateString(s string) Timestamp { return Timestamp{kind: KindDateString, text: s} }

// Epoch picks seconds or milliseconds for n using SecondsThreshold.
func Epoch(n int64) Timestamp {
	if n < SecondsThreshold {
		return Seconds(n)
	}
	return Millis(n)
}

// epochFloat applies the same threshold to a fractional number, keeping
// millisecond precision.
func epochFloat(f float64) Timestamp {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Absent()
	}
	kind, ms := KindMillis, f
	if f < float64(SecondsThreshold) {
		kind, ms = KindSeconds, f*1000
	}
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	if ms >= float64(math.MaxInt64) || ms < float64(math.MinInt64) {
		return Absent()
	}
	return Timestamp{kind: kind, millis: int64(ms)}
}

func (t Timestamp) Kind() TimestampKind { return t.kind }

func (t Timestamp) IsAbsent() bool { return t.kind == KindAbsent }

// UnmarshalJSON never fails: anything it cannot classify becomes Absent and
// later falls back to the ingestion time.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*t = Absent()
	if len(b) == 0 {
		return nil
	}
	switch c := b[0]; {
	case c == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		*t = ParseTimestamp(s)
	case c == '-' || (c >= '0' && c <= '9'):
		if n, err := strconv.ParseInt(string(b), 10, 64); err == nil {
			*t = Epoch(n)
			return nil
		}
		if f, err := strconv.ParseFloat(string(b), 64); err == nil {
			*t = epochFloat(f)
		}
	}
	return nil
}

// ParseTimestamp classifies a textual timestamp: all digits is an epoch
// integer, empty is Absent, anything else is a date string.
func ParseTimestamp(s string) Timestamp {
	s = strings.TrimSpace(s)
	if s == "" {
		return Absent()
	}
	if isDigits(s) {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Epoch(n)
		}
	}
	return DateString(s)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

// Normalized is the outcome of Normalize. Fallback reports that the input was
// absent or unparseable and Time is the supplied now.
type Normalized struct {
	Time     time.Time
	Fallback bool
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.ANSIC,
	time.UnixDate,
}

// Normalize resolves ts to an instant with millisecond resolution. Zone-less
// date strings are read in loc. It never fails.
func Normalize(ts Timestamp, now time.Time, loc *time.Location) Normalized {
	if loc == nil {
		loc = time.Local
	}
	switch ts.kind {
	case KindSeconds, KindMillis:
		if t := time.UnixMilli(ts.millis).In(loc); inRange(t) {
			return Normalized{Time: t}
		}
	case KindDateString:
		s := strings.TrimSpace(ts.text)
		for _, layout := range dateLayouts {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil && inRange(t) {
				return Normalized{Time: truncateMillis(t)}
			}
		}
	}
	return Normalized{Time: truncateMillis(now), Fallback: true}
}

// inRange reports whether t has a four-digit year both in its own zone and
// in UTC, the range RFC 3339 and time.Time.MarshalJSON can represent.
func inRange(t time.Time) bool {
	for _, y := range []int{t.Year(), t.UTC().Year()} {
		if y < MinYear || y > MaxYear {
			return false
		}
	}
	return true
}

func truncateMillis(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli()).In(t.Location())
}
