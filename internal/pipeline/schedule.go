package pipeline

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// field matches one cron position. A nil set matches anything.
type field []int

func (f field) match(v int) bool {
	return f == nil || slices.Contains(f, v)
}

// Schedule is a parsed five-field cron expression:
// minute hour day-of-month month day-of-week. Fields accept "*", a number,
// or a comma list of numbers.
type Schedule struct {
	minute, hour, dom, month, dow field
}

var fieldBounds = [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}

// ParseSchedule parses expr.
func ParseSchedule(expr string) (Schedule, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return Schedule{}, fmt.Errorf("pipeline: cron %q: want 5 fields, got %d", expr, len(parts))
	}
	var parsed [5]field
	for i, p := range parts {
		f, err := parseField(p, fieldBounds[i][0], fieldBounds[i][1])
		if err != nil {
			return Schedule{}, fmt.Errorf("pipeline: cron %q field %d: %w", expr, i+1, err)
		}
		parsed[i] = f
	}
	return Schedule{minute: parsed[0], hour: parsed[1], dom: parsed[2], month: parsed[3], dow: parsed[4]}, nil
}

func parseField(s string, lo, hi int) (field, error) {
	if s == "*" {
		return nil, nil
	}
	var out field
	for _, p := range strings.Split(s, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid value %q", p)
		}
		if v < lo || v > hi {
			return nil, fmt.Errorf("value %d outside %d-%d", v, lo, hi)
		}
		out = append(out, v)
	}
	return out, nil
}

func (s Schedule) matches(t time.Time) bool {
	return s.minute.match(t.Minute()) &&
		s.hour.match(t.Hour()) &&
		s.dom.match(t.Day()) &&
		s.month.match(int(t.Month())) &&
		s.dow.match(int(t.Weekday()))
}

// Next returns the first matching minute strictly after t, searching at most
// one year ahead.
func (s Schedule) Next(t time.Time) (time.Time, error) {
	candidate := t.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(1, 0, 1)
	for ; candidate.Before(limit); candidate = candidate.Add(time.Minute) {
		if s.matches(candidate) {
			return candidate, nil
		}
	}
	return time.Time{}, fmt.Errorf("pipeline: no cron match within a year after %s", t.Format(time.RFC3339))
}
