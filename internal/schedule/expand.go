package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var ErrInvalidWeekday = errors.New("invalid weekday name")

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ExpandMonthly returns the concrete dates a monthly recurrence implies.
// Without repeat the start instant is returned as-is, never recomputed;
// callers rely on round-trip identity. With repeat it returns the start plus
// the same calendar day of the 11 following months, clamped to the last day
// of shorter months (Jan 31 + 1 month is the last day of February).
func ExpandMonthly(start time.Time, repeat bool) []time.Time {
	if !repeat {
		return []time.Time{start}
	}
	dates := make([]time.Time, 0, 12)
	for i := 0; i < 12; i++ {
		dates = append(dates, addMonths(start, i))
	}
	return dates
}

// addMonths advances t by n calendar months. time.AddDate normalizes, so
// Jan 31 + 1 month would roll into March; clinics expect end-of-month
// clamping instead.
func addMonths(t time.Time, n int) time.Time {
	if n == 0 {
		return t
	}
	year, month, day := t.Date()
	first := time.Date(year, month+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	// Day zero of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ExpandWeekly resolves each named weekday to its nearest occurrence at or
// after now's calendar date (today counts when today is that weekday),
// normalized to midnight UTC. Without repeat it emits one date per distinct
// input name, preserving first-occurrence order. With repeat it emits the
// nearest occurrence plus every 7-day increment for a full year, 52 per
// distinct name, merged chronologically across the requested weekdays.
func ExpandWeekly(days []string, repeat bool, now time.Time) ([]time.Time, error) {
	today := midnightUTC(now)

	var dates []time.Time
	seen := make(map[time.Weekday]bool, len(days))
	for _, name := range days {
		wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidWeekday, name)
		}
		if seen[wd] {
			continue
		}
		seen[wd] = true
		next := today.AddDate(0, 0, (int(wd)-int(today.Weekday())+7)%7)
		if !repeat {
			dates = append(dates, next)
			continue
		}
		for week := 0; week < 52; week++ {
			dates = append(dates, next.AddDate(0, 0, 7*week))
		}
	}
	if repeat {
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	}
	return dates, nil
}

func midnightUTC(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
