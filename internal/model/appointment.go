package model

import "time"

// Appointment is a patient's claim on a schedule slot. Serial is the
// patient's queue number within the slot, assigned in booking order.
type Appointment struct {
	ID            string
	SlotID        string
	DoctorID      string
	PatientName   string
	PatientEmail  string
	PatientPhone  string
	Serial        int
	Status        string
	DepositStatus string
	CancelledAt   *time.Time
	CancelReason  string
	CreatedAt     time.Time
}
