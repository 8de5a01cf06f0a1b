package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Window is a time-of-day interval in minutes since midnight, end exclusive.
type Window struct {
	Start int
	End   int
}

// ParseWindow parses "HH:MM-HH:MM" into a Window.
func ParseWindow(s string) (Window, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return Window{}, fmt.Errorf("window %q: want HH:MM-HH:MM", s)
	}
	start, err := parseMinute(strings.TrimSpace(parts[0]))
	if err != nil {
		return Window{}, fmt.Errorf("window %q: %w", s, err)
	}
	end, err := parseMinute(strings.TrimSpace(parts[1]))
	if err != nil {
		return Window{}, fmt.Errorf("window %q: %w", s, err)
	}
	if end <= start {
		return Window{}, fmt.Errorf("window %q: end must be after start", s)
	}
	return Window{Start: start, End: end}, nil
}

// ParseWindows parses a list of "HH:MM-HH:MM" strings and rejects overlaps.
func ParseWindows(specs []string) ([]Window, error) {
	out := make([]Window, 0, len(specs))
	for _, s := range specs {
		w, err := ParseWindow(s)
		if err != nil {
			return nil, err
		}
		for _, prev := range out {
			if w.Start < prev.End && prev.Start < w.End {
				return nil, fmt.Errorf("window %q overlaps %s", s, prev)
			}
		}
		out = append(out, w)
	}
	return out, nil
}

// Contains reports whether the local time of t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	return m >= w.Start && m < w.End
}

func (w Window) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.Start/60, w.Start%60, w.End/60, w.End%60)
}

// InAnyWindow reports whether t falls inside any of the windows.
// An empty window list means always in-window.
func InAnyWindow(t time.Time, windows []Window) bool {
	if len(windows) == 0 {
		return true
	}
	for _, w := range windows {
		if w.Contains(t) {
			return true
		}
	}
	return false
}

func parseMinute(s string) (int, error) {
	hm := strings.Split(s, ":")
	if len(hm) != 2 {
		return 0, fmt.Errorf("time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hm[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("time %q: bad hour", s)
	}
	m, err := strconv.Atoi(hm[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("time %q: bad minute", s)
	}
	return h*60 + m, nil
}
