// Package quiethours decides whether notification delivery should be held
// back because the recipient is inside a daily quiet window.
package quiethours

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const minutesPerDay = 24 * 60

// Window is a daily time-of-day range in UTC at minute resolution. Start is
// inclusive and End exclusive. Start > End wraps past midnight and
// Start == End is empty.
type Window struct {
	StartMinute int
	EndMinute   int
}

// ParseWindow builds a Window from two "HH:MM" strings.
func ParseWindow(start, end string) (Window, error) {
	s, err := parseClock(start)
	if err != nil {
		return Window{}, fmt.Errorf("start: %w", err)
	}
	e, err := parseClock(end)
	if err != nil {
		return Window{}, fmt.Errorf("end: %w", err)
	}
	return Window{StartMinute: s, EndMinute: e}, nil
}

func parseClock(value string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", value)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", value)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", value)
	}
	return h*60 + m, nil
}

func formatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

func (w Window) Start() string { return formatClock(w.StartMinute) }
func (w Window) End() string   { return formatClock(w.EndMinute) }

func (w Window) Empty() bool {
	return w.StartMinute == w.EndMinute
}

func (w Window) contains(minute int) bool {
	switch {
	case w.Empty():
		return false
	case w.StartMinute < w.EndMinute:
		return minute >= w.StartMinute && minute < w.EndMinute
	default:
		return minute >= w.StartMinute || minute < w.EndMinute
	}
}

// IsQuietNow reports whether now (converted to UTC) falls inside w.
func IsQuietNow(now time.Time, w Window) bool {
	utc := now.UTC()
	return w.contains(utc.Hour()*60 + utc.Minute())
}

// NextEnd returns the first instant at or after now when w closes.
func NextEnd(now time.Time, w Window) time.Time {
	utc := now.UTC()
	midnight := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
	end := midnight.Add(time.Duration(w.EndMinute) * time.Minute)
	if !end.After(utc) {
		end = end.Add(minutesPerDay * time.Minute)
	}
	return end
}
