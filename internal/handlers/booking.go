package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/docbookhq/docbook/internal/availability"
	"github.com/docbookhq/docbook/internal/model"
	"github.com/docbookhq/docbook/internal/outbox"
	"github.com/docbookhq/docbook/internal/storage"
)

const idempotencyKeyHeader = "Idempotency-Key"

type BookingHandler struct {
	bookings  *storage.BookingRepository
	schedules *storage.ScheduleRepository
	doctors   *storage.DoctorRepository
	outbox    *outbox.Repository
	now       func() time.Time
}

func NewBookingHandler(bookings *storage.BookingRepository, schedules *storage.ScheduleRepository, doctors *storage.DoctorRepository, ob *outbox.Repository) *BookingHandler {
	return &BookingHandler{
		bookings:  bookings,
		schedules: schedules,
		doctors:   doctors,
		outbox:    ob,
		now:       time.Now,
	}
}

// slotView is the public shape of a bookable slot. Raw clock strings are
// kept alongside the display form so clients can sort without reparsing.
type slotView struct {
	ID           string       `json:"id"`
	Date         string       `json:"date"`
	StartTime    string       `json:"start_time"`
	EndTime      string       `json:"end_time"`
	StartDisplay string       `json:"start_display"`
	EndDisplay   string       `json:"end_display"`
	SerialFee    *int         `json:"serial_fee,omitempty"`
	VisitFee     *int         `json:"visit_fee,omitempty"`
	DiscountFee  *int         `json:"discount_fee,omitempty"`
	Location     locationView `json:"location"`
}

func toSlotView(s model.ScheduleSlot) slotView {
	return slotView{
		ID:           s.ID,
		Date:         s.Date,
		StartTime:    s.StartTime,
		EndTime:      s.EndTime,
		StartDisplay: availability.FormatTimeOfDay(s.StartTime),
		EndDisplay:   availability.FormatTimeOfDay(s.EndTime),
		SerialFee:    s.SerialFee,
		VisitFee:     s.VisitFee,
		DiscountFee:  s.DiscountFee,
		Location:     toLocationView(s.Location),
	}
}

// Availability serves GET /api/v1/public/doctors/availability?doctor_id=...
// It returns only the nearest upcoming day's slots.
func (h *BookingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	doctorID := strings.TrimSpace(r.URL.Query().Get("doctor_id"))
	if doctorID == "" {
		http.Error(w, "doctor_id required", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	doctor, err := h.doctors.GetByID(ctx, doctorID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "doctor not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load doctor", http.StatusInternalServerError)
		return
	}

	slots, err := h.schedules.ListByDoctor(ctx, doctorID)
	if err != nil {
		http.Error(w, "failed to load schedule", http.StatusInternalServerError)
		return
	}

	upcoming := availability.ResolveUpcoming(slots, h.now())
	views := make([]slotView, 0, len(upcoming))
	for _, s := range upcoming {
		views = append(views, toSlotView(s))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"doctor": toDoctorView(doctor),
		"slots":  views,
	})
}

type bookRequest struct {
	SlotID       string `json:"slot_id"`
	PatientName  string `json:"patient_name"`
	PatientEmail string `json:"patient_email"`
	PatientPhone string `json:"patient_phone"`
}

type bookResponse struct {
	AppointmentID string `json:"appointment_id"`
	Serial        int    `json:"serial"`
	Date          string `json:"date"`
	StartDisplay  string `json:"start_display"`
}

// Book serves POST /api/v1/public/book. An Idempotency-Key header makes
// retries return the original result instead of issuing a new serial.
func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.SlotID = strings.TrimSpace(req.SlotID)
	req.PatientName = strings.TrimSpace(req.PatientName)
	req.PatientEmail = strings.TrimSpace(req.PatientEmail)
	req.PatientPhone = strings.TrimSpace(req.PatientPhone)
	if req.SlotID == "" || req.PatientName == "" || req.PatientPhone == "" {
		http.Error(w, "slot_id, patient_name and patient_phone required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	slot, err := h.schedules.GetSlot(ctx, req.SlotID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "slot not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load slot", http.StatusInternalServerError)
		return
	}

	// A slot the resolver would not surface cannot be booked either.
	if len(availability.ResolveUpcoming([]model.ScheduleSlot{slot}, h.now())) == 0 {
		http.Error(w, "slot is no longer bookable", http.StatusConflict)
		return
	}

	tx, err := h.bookings.Begin(ctx)
	if err != nil {
		http.Error(w, "failed to start transaction", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	idemKey := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
	if idemKey != "" {
		rec, existed, err := h.bookings.LockIdempotencyKey(ctx, tx, slot.DoctorID, idemKey)
		if err != nil {
			http.Error(w, "failed to check idempotency key", http.StatusInternalServerError)
			return
		}
		if existed {
			_ = tx.Rollback(ctx)
			writeStoredBooking(w, rec)
			return
		}
	}

	serial, err := h.bookings.LockSlotSerial(ctx, tx, slot.ID)
	if err != nil {
		http.Error(w, "failed to assign serial", http.StatusInternalServerError)
		return
	}

	appt := model.Appointment{
		SlotID:        slot.ID,
		DoctorID:      slot.DoctorID,
		PatientName:   req.PatientName,
		PatientEmail:  req.PatientEmail,
		PatientPhone:  req.PatientPhone,
		Serial:        serial,
		Status:        "booked",
		DepositStatus: "none",
	}
	apptID, err := h.bookings.Create(ctx, tx, &appt)
	if err != nil {
		http.Error(w, "failed to create appointment", http.StatusInternalServerError)
		return
	}
	appt.ID = apptID

	payload, _ := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"slot_id":        slot.ID,
		"doctor_id":      slot.DoctorID,
		"patient_name":   appt.PatientName,
		"patient_email":  appt.PatientEmail,
		"serial":         serial,
		"date":           slot.Date,
		"start_time":     slot.StartTime,
	})
	if err := h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.EventAppointmentBooked,
		Payload:       payload,
	}); err != nil {
		http.Error(w, "failed to record event", http.StatusInternalServerError)
		return
	}

	resp := bookResponse{
		AppointmentID: appt.ID,
		Serial:        serial,
		Date:          slot.Date,
		StartDisplay:  availability.FormatTimeOfDay(slot.StartTime),
	}
	body, _ := json.Marshal(resp)

	if idemKey != "" {
		if err := h.bookings.FinalizeIdempotency(ctx, tx, slot.DoctorID, idemKey, appt.ID, http.StatusCreated, string(body)); err != nil {
			http.Error(w, "failed to persist idempotency record", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit transaction", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body)
}

// writeStoredBooking replays the response recorded for a previously seen
// idempotency key. A record with status code zero was claimed but never
// finalized, so the original request is still running or died mid-flight.
func writeStoredBooking(w http.ResponseWriter, rec storage.IdempotencyRecord) {
	if rec.StatusCode == 0 {
		http.Error(w, "request with this idempotency key is in flight", http.StatusConflict)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rec.StatusCode)
	_, _ = w.Write([]byte(rec.ResponsePayload))
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type appointmentView struct {
	ID            string `json:"id"`
	SlotID        string `json:"slot_id"`
	PatientName   string `json:"patient_name"`
	PatientEmail  string `json:"patient_email,omitempty"`
	PatientPhone  string `json:"patient_phone"`
	Serial        int    `json:"serial"`
	Status        string `json:"status"`
	DepositStatus string `json:"deposit_status"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
	CancelReason  string `json:"cancellation_reason,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func toAppointmentView(a model.Appointment) appointmentView {
	v := appointmentView{
		ID:            a.ID,
		SlotID:        a.SlotID,
		PatientName:   a.PatientName,
		PatientEmail:  a.PatientEmail,
		PatientPhone:  a.PatientPhone,
		Serial:        a.Serial,
		Status:        a.Status,
		DepositStatus: a.DepositStatus,
		CancelReason:  a.CancelReason,
		CreatedAt:     a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if a.CancelledAt != nil {
		v.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
	}
	return v
}

// Appointments serves GET /api/v1/appointments for the authenticated doctor.
func (h *BookingHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	appts, err := h.bookings.ListByDoctor(r.Context(), claims.DoctorID, limit)
	if err != nil {
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}
	views := make([]appointmentView, 0, len(appts))
	for _, a := range appts {
		views = append(views, toAppointmentView(a))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"appointments": views})
}

// Cancel serves POST /api/v1/appointments/{id}/cancel for the owning doctor.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/appointments/")
	apptID, ok := strings.CutSuffix(rest, "/cancel")
	if !ok || apptID == "" || strings.Contains(apptID, "/") {
		http.Error(w, "appointment id required", http.StatusBadRequest)
		return
	}

	var req cancelRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	ctx := r.Context()
	tx, err := h.bookings.Begin(ctx)
	if err != nil {
		http.Error(w, "failed to start transaction", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := h.bookings.GetForUpdate(ctx, tx, claims.DoctorID, apptID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}
	if appt.Status == "cancelled" {
		http.Error(w, "appointment already cancelled", http.StatusConflict)
		return
	}

	cancelledAt, err := h.bookings.Cancel(ctx, tx, claims.DoctorID, apptID, strings.TrimSpace(req.Reason))
	if err != nil {
		http.Error(w, "failed to cancel appointment", http.StatusInternalServerError)
		return
	}

	payload, _ := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"slot_id":        appt.SlotID,
		"doctor_id":      appt.DoctorID,
		"patient_name":   appt.PatientName,
		"patient_email":  appt.PatientEmail,
		"serial":         appt.Serial,
		"reason":         strings.TrimSpace(req.Reason),
		"cancelled_at":   cancelledAt.UTC().Format(time.RFC3339),
	})
	if err := h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.EventAppointmentCancelled,
		Payload:       payload,
	}); err != nil {
		http.Error(w, "failed to record event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit transaction", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"appointment_id": appt.ID,
		"status":         "cancelled",
		"cancelled_at":   cancelledAt.UTC().Format(time.RFC3339),
	})
}
