package domain

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

func TestEpochUnitDisambiguation(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		in       Timestamp
		wantMs   int64
		wantKind TimestampKind
	}{
		{"ten digit seconds", Epoch(1710000000), 1710000000 * 1000, KindSeconds},
		{"thirteen digit millis", Epoch(1710000000123), 1710000000123, KindMillis},
		{"just below threshold", Epoch(SecondsThreshold - 1), (SecondsThreshold - 1) * 1000, KindSeconds},
		{"at threshold", Epoch(SecondsThreshold), SecondsThreshold, KindMillis},
		{"zero is seconds", Epoch(0), 0, KindSeconds},
		{"small value", Epoch(123), 123000, KindSeconds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.in.Kind() != tt.wantKind {
				t.Fatalf("kind = %v, want %v", tt.in.Kind(), tt.wantKind)
			}
			got := Normalize(tt.in, now, time.UTC)
			if got.Fallback {
				t.Fatal("unexpected fallback")
			}
			if got.Time.UnixMilli() != tt.wantMs {
				t.Errorf("UnixMilli = %d, want %d", got.Time.UnixMilli(), tt.wantMs)
			}
		})
	}
}

func TestNormalizeDateStrings(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	loc := time.FixedZone("UTC+2", 2*60*60)

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-03-09T16:00:00Z", time.Date(2024, 3, 9, 16, 0, 0, 0, time.UTC)},
		{"2024-03-09T16:00:00.123456Z", time.Date(2024, 3, 9, 16, 0, 0, 123_000_000, time.UTC)},
		{"2024-03-09T16:00:00+01:00", time.Date(2024, 3, 9, 15, 0, 0, 0, time.UTC)},
		{"2024-03-09 16:00:00", time.Date(2024, 3, 9, 16, 0, 0, 0, loc)},
		{"2024-03-09T16:00", time.Date(2024, 3, 9, 16, 0, 0, 0, loc)},
		{"2024-03-09", time.Date(2024, 3, 9, 0, 0, 0, 0, loc)},
		{"Sat, 09 Mar 2024 16:00:00 +0000", time.Date(2024, 3, 9, 16, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Normalize(DateString(tt.in), now, loc)
			if got.Fallback {
				t.Fatalf("unexpected fallback for %q", tt.in)
			}
			if !got.Time.Equal(tt.want) {
				t.Errorf("got %v, want %v", got.Time, tt.want)
			}
		})
	}
}

func TestNormalizeFallsBackToNow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 987_654_321, time.UTC)
	for _, ts := range []Timestamp{Absent(), DateString("not a date"), DateString("31/31/2024")} {
		got := Normalize(ts, now, time.UTC)
		if !got.Fallback {
			t.Errorf("%v: expected fallback", ts.Kind())
		}
		if got.Time.UnixMilli() != now.UnixMilli() {
			t.Errorf("%v: got %v, want %v", ts.Kind(), got.Time, now)
		}
		if got.Time.Nanosecond()%int(time.Millisecond) != 0 {
			t.Errorf("%v: not truncated to milliseconds: %v", ts.Kind(), got.Time)
		}
	}
}

func TestTimestampUnmarshalJSON(t *testing.T) {
	tests := []struct {
		body     string
		wantKind TimestampKind
		wantMs   int64
	}{
		{`{"timestamp":1710000000}`, KindSeconds, 1710000000000},
		{`{"timestamp":1710000000123}`, KindMillis, 1710000000123},
		{`{"timestamp":1710000000.5}`, KindSeconds, 1710000000500},
		{`{"timestamp":"1710000000"}`, KindSeconds, 1710000000000},
		{`{"timestamp":"2024-03-09T16:00:00Z"}`, KindDateString, 1710000000000},
		{`{"timestamp":null}`, KindAbsent, -1},
		{`{"timestamp":""}`, KindAbsent, -1},
		{`{"timestamp":true}`, KindAbsent, -1},
		{`{"timestamp":{"x":1}}`, KindAbsent, -1},
		{`{}`, KindAbsent, -1},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			var raw RawEvent
			if err := json.Unmarshal([]byte(tt.body), &raw); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if raw.Timestamp.Kind() != tt.wantKind {
				t.Fatalf("kind = %v, want %v", raw.Timestamp.Kind(), tt.wantKind)
			}
			if tt.wantMs < 0 {
				return
			}
			got := Normalize(raw.Timestamp, time.Now(), time.UTC)
			if got.Time.UnixMilli() != tt.wantMs {
				t.Errorf("UnixMilli = %d, want %d", got.Time.UnixMilli(), tt.wantMs)
			}
		})
	}
}

func TestNormalizeRejectsUnrepresentableInstants(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   Timestamp
	}{
		{"max int64 millis", Epoch(math.MaxInt64)},
		{"year 10000 millis", Millis(time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli())},
		{"negative year seconds", Seconds(time.Date(-1, 12, 31, 0, 0, 0, 0, time.UTC).Unix())},
		{"min int64 seconds", Epoch(math.MinInt64)},
		{"huge float", epochFloat(1e300)},
		{"huge negative float", epochFloat(-1e300)},
		{"float at int64 limit", epochFloat(float64(math.MaxInt64))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in, now, time.UTC)
			if !got.Fallback {
				t.Fatalf("expected fallback, got %v", got.Time)
			}
			if !got.Time.Equal(now) {
				t.Errorf("got %v, want %v", got.Time, now)
			}
			if _, err := json.Marshal(got.Time); err != nil {
				t.Errorf("normalized time must encode: %v", err)
			}
		})
	}
}

func TestNormalizeYearBounds(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	last := time.Date(MaxYear, 12, 31, 23, 59, 59, 0, time.UTC)
	got := Normalize(Millis(last.UnixMilli()), now, time.UTC)
	if got.Fallback || !got.Time.Equal(last) {
		t.Errorf("last representable instant: got %v (fallback %v)", got.Time, got.Fallback)
	}
}

func TestSecondsOverflowIsAbsent(t *testing.T) {
	if !Seconds(math.MaxInt64).IsAbsent() || !Seconds(math.MinInt64/999).IsAbsent() {
		t.Error("seconds that overflow milliseconds should be absent")
	}
	if Seconds(math.MaxInt64/1000).IsAbsent() {
		t.Error("largest representable seconds value should not be absent")
	}
}
