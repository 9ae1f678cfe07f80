package availability

import (
	"testing"
	"time"

	"github.com/docbookhq/docbook/internal/model"
)

func TestFormatTimeOfDay(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"14:30", "02:30 PM"},
		{"9:05", "09:05 AM"},
		{"0:00", "12:00 AM"},
		{"12:00", "12:00 PM"},
		{"23:59", "11:59 PM"},
		{" 14:30 ", "02:30 PM"},
		{"", ""},
		{"invalid-time", ""},
		{"25:00", ""},
		{"14:71", ""},
		{"14:3", ""},
		{"2 pm", ""},
	}
	for _, tc := range cases {
		if got := FormatTimeOfDay(tc.in); got != tc.want {
			t.Fatalf("FormatTimeOfDay(%q): expected %q, got %q", tc.in, tc.want, got)
		}
	}
}

func slot(id, date, start, end string) model.ScheduleSlot {
	return model.ScheduleSlot{ID: id, Date: date, StartTime: start, EndTime: end}
}

func TestResolveUpcoming_AllPast(t *testing.T) {
	now := time.Date(2024, 9, 4, 12, 0, 0, 0, time.UTC)
	slots := []model.ScheduleSlot{
		slot("a", "2024-09-01", "9:00", "12:00"),
		slot("b", "2024-08-20", "10:00", "13:00"),
	}
	if got := ResolveUpcoming(slots, now); len(got) != 0 {
		t.Fatalf("expected no slots, got %d", len(got))
	}
}

func TestResolveUpcoming_MalformedRowsDropped(t *testing.T) {
	now := time.Date(2024, 9, 4, 12, 0, 0, 0, time.UTC)
	slots := []model.ScheduleSlot{
		slot("a", "2024-09-01", "9:00", "12:00"),   // past
		slot("b", "not-a-date", "9:00", "12:00"),   // bad date
		slot("c", "2024-09-10", "soonish", "noon"), // bad times
		slot("d", "24-09-10", "9:00", "12:00"),     // two-digit year
	}
	if got := ResolveUpcoming(slots, now); len(got) != 0 {
		t.Fatalf("expected no slots, got %d", len(got))
	}
}

func TestResolveUpcoming_TodayExpiredSlotsExcluded(t *testing.T) {
	// 12:00 today; today's slots ended minutes ago, so the later date wins.
	now := time.Date(2024, 9, 4, 12, 0, 0, 0, time.UTC)
	slots := []model.ScheduleSlot{
		slot("ended1", "2024-09-04", "9:00", "11:45"),
		slot("ended2", "2024-09-04", "10:00", "11:55"),
		slot("next1", "2024-09-07", "10:00", "13:00"),
		slot("next2", "2024-09-07", "8:00", "9:30"),
	}
	got := ResolveUpcoming(slots, now)
	if len(got) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(got))
	}
	if got[0].ID != "next2" || got[1].ID != "next1" {
		t.Fatalf("expected [next2 next1] sorted by start time, got [%s %s]", got[0].ID, got[1].ID)
	}
}

func TestResolveUpcoming_TodayStillRunningSlotKept(t *testing.T) {
	// A slot whose window is still open at 12:00 stays bookable today.
	now := time.Date(2024, 9, 4, 12, 0, 0, 0, time.UTC)
	slots := []model.ScheduleSlot{
		slot("open", "2024-09-04", "10:00", "14:00"),
		slot("later", "2024-09-06", "10:00", "14:00"),
	}
	got := ResolveUpcoming(slots, now)
	if len(got) != 1 || got[0].ID != "open" {
		t.Fatalf("expected only today's open slot, got %v", got)
	}
}

func TestResolveUpcoming_CollapsesToNearestDay(t *testing.T) {
	now := time.Date(2024, 9, 4, 8, 0, 0, 0, time.UTC)
	slots := []model.ScheduleSlot{
		slot("far1", "2024-09-20", "9:00", "12:00"),
		slot("near2", "2024-09-10", "15:00", "18:00"),
		slot("near1", "2024-09-10", "9:00", "12:00"),
		slot("far2", "2024-09-20", "15:00", "18:00"),
	}
	got := ResolveUpcoming(slots, now)
	if len(got) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(got))
	}
	if got[0].ID != "near1" || got[1].ID != "near2" {
		t.Fatalf("expected nearest day ascending by start time, got [%s %s]", got[0].ID, got[1].ID)
	}
}

func TestResolveUpcoming_MixedValidityNonePromoted(t *testing.T) {
	// Past valid rows plus unparseable rows: neither kind may surface.
	now := time.Date(2024, 9, 4, 8, 0, 0, 0, time.UTC)
	slots := []model.ScheduleSlot{
		slot("past", "2024-09-01", "9:00", "12:00"),
		slot("junk", "someday", "9:00", "12:00"),
	}
	if got := ResolveUpcoming(slots, now); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestResolveUpcoming_EmptyInput(t *testing.T) {
	now := time.Date(2024, 9, 4, 8, 0, 0, 0, time.UTC)
	if got := ResolveUpcoming(nil, now); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}
