package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	got := ParseTimeDefault("", def)
	if !got.Equal(def) {
		t.Fatalf("expected default")
	}
}

func TestParseDateLayouts(t *testing.T) {
	want := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{
		"2024-02-15",
		" 2024-02-15 ",
		"2024-02-15 09:15:00",
		"2024/02/15",
		"02/15/2024",
		"15-02-2024",
		"15-Feb-2024",
		"20240215",
	} {
		got, ok := ParseDate(s)
		if !ok {
			t.Fatalf("%q: expected ok", s)
		}
		if !got.Equal(want) {
			t.Fatalf("%q: got %v", s, got)
		}
	}

	for _, s := range []string{"", "yesterday", "2024-13-45"} {
		if _, ok := ParseDate(s); ok {
			t.Fatalf("%q: expected failure", s)
		}
	}
}

func TestParseTimeOfDay(t *testing.T) {
	cases := map[string]int{
		"09:15:00":        9*3600 + 15*60,
		"09:15":           9*3600 + 15*60,
		"9:05":            9*3600 + 5*60,
		"15:29:59":        15*3600 + 29*60 + 59,
		"00:00:00":        0,
		"10:00:00.500000": 10 * 3600,
	}
	for s, want := range cases {
		got, ok := ParseTimeOfDay(s)
		if !ok {
			t.Fatalf("%q: expected ok", s)
		}
		if got != want {
			t.Fatalf("%q: got %d want %d", s, got, want)
		}
	}

	for _, s := range []string{"", "24:00", "12:60", "noon", "1:2:3:4", "123:00"} {
		if _, ok := ParseTimeOfDay(s); ok {
			t.Fatalf("%q: expected failure", s)
		}
	}
}
