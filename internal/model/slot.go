package model

import "time"

// Location is a chamber (practice address) a doctor sees patients at.
// State and zip are optional.
type Location struct {
	ID       string
	DoctorID string
	Name     string
	Address  string
	City     string
	State    string
	Zip      string
}

// ScheduleSlot is a single bookable date + time range + chamber offered by a
// doctor. Date and the two clock times are stored as text so that stale or
// hand-edited rows can survive in the database; the availability resolver
// filters anything that does not parse instead of failing the page.
//
// Date is expected to look like "2024-09-08", StartTime/EndTime like "9:00"
// or "14:30". Fees are in taka and display-only; nil means the doctor has
// not published that fee.
type ScheduleSlot struct {
	ID          string
	DoctorID    string
	LocationID  string
	Date        string
	StartTime   string
	EndTime     string
	SerialFee   *int
	VisitFee    *int
	DiscountFee *int
	Location    Location
	CreatedAt   time.Time
}
