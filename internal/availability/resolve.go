package availability

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/docbookhq/docbook/internal/model"
)

var (
	dateShape  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	clockShape = regexp.MustCompile(`^\d{1,2}:\d{2}$`)
)

// parseDate accepts only a strict 4-digit-year YYYY-MM-DD string naming a
// real calendar date, returned at midnight UTC.
func parseDate(raw string) (time.Time, bool) {
	if !dateShape.MatchString(raw) {
		return time.Time{}, false
	}
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// parseClock accepts a 24-hour H:mm or HH:mm time of day. The hour need not
// be zero-padded.
func parseClock(raw string) (hour, minute int, ok bool) {
	raw = strings.TrimSpace(raw)
	if !clockShape.MatchString(raw) {
		return 0, 0, false
	}
	sep := strings.IndexByte(raw, ':')
	hour, _ = strconv.Atoi(raw[:sep])
	minute, _ = strconv.Atoi(raw[sep+1:])
	if hour > 23 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}

// FormatTimeOfDay renders a 24-hour clock string on a 12-hour clock with an
// AM/PM suffix: "14:30" becomes "02:30 PM". Anything that does not parse,
// including the empty string, degrades to "" so templates can render nothing
// instead of garbage. It never fails.
func FormatTimeOfDay(raw string) string {
	hour, minute, ok := parseClock(raw)
	if !ok {
		return ""
	}
	return time.Date(0, time.January, 1, hour, minute, 0, 0, time.UTC).Format("03:04 PM")
}

type resolvedSlot struct {
	slot        model.ScheduleSlot
	date        time.Time
	startHour   int
	startMinute int
}

// ResolveUpcoming narrows a doctor's persisted slots down to the ones on the
// single nearest day that still has a valid, unexpired slot, sorted by start
// time. Rows with an unparseable date or time are dropped silently: dirty
// legacy data must never break the availability page. A slot dated today
// whose end time has already passed is excluded even though its date is
// current.
//
// The function only reads its input and is safe for concurrent use.
func ResolveUpcoming(slots []model.ScheduleSlot, now time.Time) []model.ScheduleSlot {
	now = now.UTC()
	year, month, day := now.Date()
	today := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)

	var valid []resolvedSlot
	for _, s := range slots {
		date, ok := parseDate(strings.TrimSpace(s.Date))
		if !ok {
			continue
		}
		startHour, startMinute, ok := parseClock(s.StartTime)
		if !ok {
			continue
		}
		endHour, endMinute, ok := parseClock(s.EndTime)
		if !ok {
			continue
		}
		if date.Before(today) {
			continue
		}
		// Recombine the slot's own date and end time before comparing with
		// now; comparing the zeroed date directly would keep today's
		// already-finished slots alive.
		end := date.Add(time.Duration(endHour)*time.Hour + time.Duration(endMinute)*time.Minute)
		if !end.After(now) {
			continue
		}
		valid = append(valid, resolvedSlot{
			slot:        s,
			date:        date,
			startHour:   startHour,
			startMinute: startMinute,
		})
	}
	if len(valid) == 0 {
		return nil
	}

	sort.SliceStable(valid, func(i, j int) bool {
		a, b := valid[i], valid[j]
		if !a.date.Equal(b.date) {
			return a.date.Before(b.date)
		}
		if a.startHour != b.startHour {
			return a.startHour < b.startHour
		}
		return a.startMinute < b.startMinute
	})

	nearest := valid[0].date
	out := make([]model.ScheduleSlot, 0, len(valid))
	for _, v := range valid {
		if !v.date.Equal(nearest) {
			break
		}
		out = append(out, v.slot)
	}
	return out
}
