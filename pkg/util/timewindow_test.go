package util

import (
	"testing"
	"time"
)

func TestParseWindow(t *testing.T) {
	w, err := ParseWindow("09:30-11:30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Start != 9*60+30 || w.End != 11*60+30 {
		t.Fatalf("unexpected window %+v", w)
	}
}

func TestParseWindowRejectsInverted(t *testing.T) {
	if _, err := ParseWindow("14:00-09:00"); err == nil {
		t.Fatalf("expected error for inverted window")
	}
}

func TestParseWindowsRejectsOverlap(t *testing.T) {
	if _, err := ParseWindows([]string{"09:00-12:00", "11:00-13:00"}); err == nil {
		t.Fatalf("expected overlap error")
	}
}

func TestInAnyWindow(t *testing.T) {
	windows, err := ParseWindows([]string{"09:00-12:00", "13:30-15:00"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	at := func(h, m int) time.Time {
		return time.Date(2026, 3, 2, h, m, 0, 0, time.Local)
	}

	if !InAnyWindow(at(9, 0), windows) {
		t.Fatalf("expected 09:00 in window")
	}
	if InAnyWindow(at(12, 0), windows) {
		t.Fatalf("expected 12:00 out of window (end exclusive)")
	}
	if !InAnyWindow(at(14, 59), windows) {
		t.Fatalf("expected 14:59 in window")
	}
	if InAnyWindow(at(20, 0), windows) {
		t.Fatalf("expected 20:00 out of window")
	}
}

func TestInAnyWindowEmptyMeansAlways(t *testing.T) {
	if !InAnyWindow(time.Now(), nil) {
		t.Fatalf("empty window list must always match")
	}
}

func TestHourKey(t *testing.T) {
	ts := time.Date(2026, 3, 2, 14, 59, 59, 0, time.UTC)
	if got := HourKey(ts); got != "2026-03-02T14" {
		t.Fatalf("unexpected hour key %q", got)
	}
}
