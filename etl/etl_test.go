package etl

import (
	"math"
	"testing"
	"time"
)

func TestParseTimestampNaiveIsMadridLocal(t *testing.T) {
	got, ok := parseTimestamp("2026-01-15 13:00:00")
	if !ok {
		t.Fatalf("Expected parse to succeed")
	}
	want := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	// A bare date is Madrid midnight.
	got, ok = parseTimestamp("2026-03-10")
	if !ok {
		t.Fatalf("Expected date-only parse to succeed")
	}
	want = time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestParseTimestampNaiveSummerOffset(t *testing.T) {
	got, ok := parseTimestamp("2026-07-15T14:00:00")
	if !ok {
		t.Fatalf("Expected parse to succeed")
	}
	want := time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestParseTimestampZonedStaysAbsolute(t *testing.T) {
	cases := map[string]time.Time{
		"2026-03-10T07:45:00Z":      time.Date(2026, 3, 10, 7, 45, 0, 0, time.UTC),
		"2026-03-10 08:45:00+01:00": time.Date(2026, 3, 10, 7, 45, 0, 0, time.UTC),
	}
	for raw, want := range cases {
		got, ok := parseTimestamp(raw)
		if !ok {
			t.Fatalf("Expected %q to parse", raw)
		}
		if !got.Equal(want) {
			t.Errorf("Expected %q to give %v, got %v", raw, want, got)
		}
	}
}

func TestParseTimestampRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "  ", "not a date", "15/2026"} {
		if _, ok := parseTimestamp(raw); ok {
			t.Errorf("Expected %q to be rejected", raw)
		}
	}
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"3,5", 3.5, true},
		{"12.25", 12.25, true},
		{" 42 ", 42, true},
		{"Ip", 0, true},
		{"varias", 0, true},
		{"-", 0, false},
		{"", 0, false},
		{"NaN", 0, false},
		{"n/a", 0, false},
	}
	for _, c := range cases {
		got, ok := parseNumber(c.raw)
		if ok != c.ok {
			t.Errorf("Expected ok=%v for %q, got %v", c.ok, c.raw, ok)
			continue
		}
		if ok && got != c.want {
			t.Errorf("Expected %v for %q, got %v", c.want, c.raw, got)
		}
	}
}

func TestFormatFloat(t *testing.T) {
	if got := formatFloat(3.5); got != "3.5" {
		t.Errorf("Expected 3.5, got %q", got)
	}
	if got := formatFloat(math.NaN()); got != "" {
		t.Errorf("Expected empty cell for NaN, got %q", got)
	}
}
