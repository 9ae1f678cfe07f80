package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/docbookhq/docbook/internal/outbox"
	"github.com/docbookhq/docbook/internal/schedule"
	"github.com/docbookhq/docbook/internal/storage"
)

type ScheduleHandler struct {
	schedules *storage.ScheduleRepository
	doctors   *storage.DoctorRepository
	outbox    *outbox.Repository
}

func NewScheduleHandler(schedules *storage.ScheduleRepository, doctors *storage.DoctorRepository, ob *outbox.Repository) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules, doctors: doctors, outbox: ob}
}

// recurrenceSpec is the tagged union on the create request. Monthly uses
// StartDate; weekly uses Days. Repeat applies to both.
type recurrenceSpec struct {
	Type      string   `json:"type"`
	StartDate string   `json:"start_date,omitempty"`
	Days      []string `json:"days,omitempty"`
	Repeat    bool     `json:"repeat"`
}

type createScheduleRequest struct {
	LocationID  string         `json:"location_id"`
	Recurrence  recurrenceSpec `json:"recurrence"`
	StartTime   string         `json:"start_time"`
	EndTime     string         `json:"end_time"`
	SerialFee   *int           `json:"serial_fee,omitempty"`
	VisitFee    *int           `json:"visit_fee,omitempty"`
	DiscountFee *int           `json:"discount_fee,omitempty"`
}

type createScheduleResponse struct {
	SlotIDs []string `json:"slot_ids"`
	Dates   []string `json:"dates"`
}

func (h *ScheduleHandler) Schedules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ScheduleHandler) create(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.LocationID = strings.TrimSpace(req.LocationID)
	req.StartTime = strings.TrimSpace(req.StartTime)
	req.EndTime = strings.TrimSpace(req.EndTime)
	if req.LocationID == "" || req.StartTime == "" || req.EndTime == "" {
		http.Error(w, "location_id, start_time and end_time required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	// The chamber must belong to the authenticated doctor.
	if _, err := h.doctors.GetLocation(ctx, claims.DoctorID, req.LocationID); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "location not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load location", http.StatusInternalServerError)
		return
	}

	dates, err := expandRecurrence(req.Recurrence, time.Now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tx, err := h.schedules.Begin(ctx)
	if err != nil {
		http.Error(w, "failed to start transaction", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids, err := h.schedules.CreateBatchTx(ctx, tx, storage.NewSlots{
		DoctorID:    claims.DoctorID,
		LocationID:  req.LocationID,
		Dates:       dates,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		SerialFee:   req.SerialFee,
		VisitFee:    req.VisitFee,
		DiscountFee: req.DiscountFee,
	})
	if err != nil {
		http.Error(w, "failed to create slots", http.StatusInternalServerError)
		return
	}

	payload, _ := json.Marshal(map[string]any{
		"doctor_id":   claims.DoctorID,
		"location_id": req.LocationID,
		"slot_ids":    ids,
		"count":       len(ids),
	})
	if err := h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "schedule",
		AggregateID:   claims.DoctorID,
		EventType:     outbox.EventSlotsCreated,
		Payload:       payload,
	}); err != nil {
		http.Error(w, "failed to record event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit transaction", http.StatusInternalServerError)
		return
	}

	resp := createScheduleResponse{SlotIDs: ids, Dates: make([]string, 0, len(dates))}
	for _, d := range dates {
		resp.Dates = append(resp.Dates, d.UTC().Format("2006-01-02"))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(resp)
}

// expandRecurrence applies the recurrence rules for a create request. The
// returned dates carry only the calendar day; clock times live on the slot
// as text.
func expandRecurrence(spec recurrenceSpec, now time.Time) ([]time.Time, error) {
	switch strings.ToLower(strings.TrimSpace(spec.Type)) {
	case "monthly":
		start, err := time.Parse(time.RFC3339, spec.StartDate)
		if err != nil {
			return nil, errors.New("start_date must be RFC 3339")
		}
		return schedule.ExpandMonthly(start, spec.Repeat), nil
	case "weekly":
		if len(spec.Days) == 0 {
			return nil, errors.New("days required for weekly recurrence")
		}
		return schedule.ExpandWeekly(spec.Days, spec.Repeat, now)
	default:
		return nil, errors.New("recurrence type must be monthly or weekly")
	}
}

func (h *ScheduleHandler) list(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	slots, err := h.schedules.ListByDoctor(r.Context(), claims.DoctorID)
	if err != nil {
		http.Error(w, "failed to list slots", http.StatusInternalServerError)
		return
	}
	views := make([]slotView, 0, len(slots))
	for _, s := range slots {
		views = append(views, toSlotView(s))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"slots": views})
}

// DeleteSlot handles DELETE /api/v1/schedules/{id}.
func (h *ScheduleHandler) DeleteSlot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	slotID := strings.TrimPrefix(r.URL.Path, "/api/v1/schedules/")
	if slotID == "" || strings.Contains(slotID, "/") {
		http.Error(w, "slot id required", http.StatusBadRequest)
		return
	}
	if err := h.schedules.DeleteSlot(r.Context(), claims.DoctorID, slotID); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "slot not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to delete slot", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
