package schedule

import (
	"errors"
	"testing"
	"time"
)

// Fixed clock for weekly tests: Wednesday.
var wednesday = time.Date(2024, 9, 4, 0, 0, 0, 0, time.UTC)

func TestExpandMonthly_NoRepeat(t *testing.T) {
	start := time.Date(2024, 9, 15, 10, 30, 0, 0, time.UTC)
	dates := ExpandMonthly(start, false)
	if len(dates) != 1 {
		t.Fatalf("expected 1 date, got %d", len(dates))
	}
	if !dates[0].Equal(start) {
		t.Fatalf("expected %s unmodified, got %s", start, dates[0])
	}
}

func TestExpandMonthly_Repeat(t *testing.T) {
	start := time.Date(2024, 9, 15, 0, 0, 0, 0, time.UTC)
	dates := ExpandMonthly(start, true)
	if len(dates) != 12 {
		t.Fatalf("expected 12 dates, got %d", len(dates))
	}
	for i, d := range dates {
		want := start.AddDate(0, i, 0)
		if !d.Equal(want) {
			t.Fatalf("date[%d]: expected %s, got %s", i, want.Format(time.RFC3339), d.Format(time.RFC3339))
		}
	}
}

func TestExpandMonthly_ClampsEndOfMonth(t *testing.T) {
	start := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	dates := ExpandMonthly(start, true)

	// Jan 31 + 1 month must land on Feb 28, not roll into March.
	feb := dates[1]
	if feb.Month() != time.February || feb.Day() != 28 {
		t.Fatalf("expected 2025-02-28, got %s", feb.Format("2006-01-02"))
	}
	apr := dates[3]
	if apr.Month() != time.April || apr.Day() != 30 {
		t.Fatalf("expected 2025-04-30, got %s", apr.Format("2006-01-02"))
	}
	may := dates[4]
	if may.Month() != time.May || may.Day() != 31 {
		t.Fatalf("expected 2025-05-31, got %s", may.Format("2006-01-02"))
	}
}

func TestExpandWeekly_SingleDay(t *testing.T) {
	dates, err := ExpandWeekly([]string{"sunday"}, false, wednesday)
	if err != nil {
		t.Fatalf("ExpandWeekly failed: %v", err)
	}
	if len(dates) != 1 {
		t.Fatalf("expected 1 date, got %d", len(dates))
	}
	want := time.Date(2024, 9, 8, 0, 0, 0, 0, time.UTC)
	if !dates[0].Equal(want) {
		t.Fatalf("expected %s, got %s", want, dates[0])
	}
}

func TestExpandWeekly_PreservesCallerOrder(t *testing.T) {
	dates, err := ExpandWeekly([]string{"sunday", "wednesday", "friday"}, false, wednesday)
	if err != nil {
		t.Fatalf("ExpandWeekly failed: %v", err)
	}
	want := []time.Time{
		time.Date(2024, 9, 8, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 9, 4, 0, 0, 0, 0, time.UTC), // today is Wednesday, same-day counts
		time.Date(2024, 9, 6, 0, 0, 0, 0, time.UTC),
	}
	if len(dates) != len(want) {
		t.Fatalf("expected %d dates, got %d", len(want), len(dates))
	}
	for i := range want {
		if !dates[i].Equal(want[i]) {
			t.Fatalf("date[%d]: expected %s, got %s", i, want[i], dates[i])
		}
	}
}

func TestExpandWeekly_IgnoresDuplicateDays(t *testing.T) {
	dates, err := ExpandWeekly([]string{"friday", "Friday", "sunday", " friday "}, false, wednesday)
	if err != nil {
		t.Fatalf("ExpandWeekly failed: %v", err)
	}
	want := []time.Time{
		time.Date(2024, 9, 6, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 9, 8, 0, 0, 0, 0, time.UTC),
	}
	if len(dates) != len(want) {
		t.Fatalf("expected %d dates, got %d", len(want), len(dates))
	}
	for i := range want {
		if !dates[i].Equal(want[i]) {
			t.Fatalf("date[%d]: expected %s, got %s", i, want[i], dates[i])
		}
	}
}

func TestExpandWeekly_RepeatDuplicateDaysSingleSeries(t *testing.T) {
	dates, err := ExpandWeekly([]string{"monday", "monday"}, true, wednesday)
	if err != nil {
		t.Fatalf("ExpandWeekly failed: %v", err)
	}
	if len(dates) != 52 {
		t.Fatalf("expected 52 dates, got %d", len(dates))
	}
	for i := 1; i < len(dates); i++ {
		if !dates[i-1].Before(dates[i]) {
			t.Fatalf("date[%d] %s not strictly after date[%d] %s", i, dates[i], i-1, dates[i-1])
		}
	}
}

func TestExpandWeekly_RepeatFullYear(t *testing.T) {
	dates, err := ExpandWeekly([]string{"monday"}, true, wednesday)
	if err != nil {
		t.Fatalf("ExpandWeekly failed: %v", err)
	}
	if len(dates) != 52 {
		t.Fatalf("expected 52 dates, got %d", len(dates))
	}
	first := time.Date(2024, 9, 9, 0, 0, 0, 0, time.UTC)
	last := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	if !dates[0].Equal(first) {
		t.Fatalf("expected first %s, got %s", first, dates[0])
	}
	if !dates[51].Equal(last) {
		t.Fatalf("expected last %s, got %s", last, dates[51])
	}
}

func TestExpandWeekly_RepeatMergesChronologically(t *testing.T) {
	dates, err := ExpandWeekly([]string{"monday", "friday"}, true, wednesday)
	if err != nil {
		t.Fatalf("ExpandWeekly failed: %v", err)
	}
	if len(dates) != 104 {
		t.Fatalf("expected 104 dates, got %d", len(dates))
	}

	// Friday leads even though Monday was requested first: from Wednesday
	// the nearest Friday precedes the nearest Monday.
	if !dates[0].Equal(time.Date(2024, 9, 6, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected first date 2024-09-06, got %s", dates[0])
	}
	if !dates[1].Equal(time.Date(2024, 9, 9, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected second date 2024-09-09, got %s", dates[1])
	}
	if !dates[103].Equal(time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected last date 2025-09-01, got %s", dates[103])
	}
	for i := 1; i < len(dates); i++ {
		if dates[i].Before(dates[i-1]) {
			t.Fatalf("dates out of order at %d: %s before %s", i, dates[i], dates[i-1])
		}
	}
}

func TestExpandWeekly_CaseInsensitive(t *testing.T) {
	dates, err := ExpandWeekly([]string{" Friday "}, false, wednesday)
	if err != nil {
		t.Fatalf("ExpandWeekly failed: %v", err)
	}
	if !dates[0].Equal(time.Date(2024, 9, 6, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected 2024-09-06, got %s", dates[0])
	}
}

func TestExpandWeekly_UnknownDay(t *testing.T) {
	_, err := ExpandWeekly([]string{"monday", "someday"}, false, wednesday)
	if !errors.Is(err, ErrInvalidWeekday) {
		t.Fatalf("expected ErrInvalidWeekday, got %v", err)
	}
}

func TestExpandWeekly_NormalizesMidDayClock(t *testing.T) {
	// A mid-afternoon clock on Wednesday still resolves Wednesday to today
	// at midnight UTC.
	now := time.Date(2024, 9, 4, 15, 42, 11, 0, time.UTC)
	dates, err := ExpandWeekly([]string{"wednesday"}, false, now)
	if err != nil {
		t.Fatalf("ExpandWeekly failed: %v", err)
	}
	if !dates[0].Equal(time.Date(2024, 9, 4, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected midnight of today, got %s", dates[0])
	}
}
