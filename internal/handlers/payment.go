package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/docbookhq/docbook/internal/inbox"
	"github.com/docbookhq/docbook/internal/outbox"
	"github.com/docbookhq/docbook/internal/storage"
	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
)

type PaymentHandler struct {
	bookings  *storage.BookingRepository
	schedules *storage.ScheduleRepository
	outbox    *outbox.Repository
	inbox     *inbox.Repository
	logger    *slog.Logger
	cfg       PaymentConfig
}

type PaymentConfig struct {
	StripeSecretKey    string
	DepositCurrency    string
	CheckoutSuccessURL string
	CheckoutCancelURL  string
}

func NewPaymentHandler(bookings *storage.BookingRepository, schedules *storage.ScheduleRepository, ob *outbox.Repository, ib *inbox.Repository, logger *slog.Logger, cfg PaymentConfig) *PaymentHandler {
	cfg.StripeSecretKey = strings.TrimSpace(cfg.StripeSecretKey)
	cfg.DepositCurrency = strings.ToLower(strings.TrimSpace(cfg.DepositCurrency))
	if cfg.DepositCurrency == "" {
		cfg.DepositCurrency = "bdt"
	}
	return &PaymentHandler{
		bookings:  bookings,
		schedules: schedules,
		outbox:    ob,
		inbox:     ib,
		logger:    logger,
		cfg:       cfg,
	}
}

type depositCheckoutRequest struct {
	AppointmentID string `json:"appointment_id"`
	SuccessURL    string `json:"success_url,omitempty"`
	CancelURL     string `json:"cancel_url,omitempty"`
}

// DepositCheckout serves POST /api/v1/public/deposit/checkout. It creates a
// Stripe Checkout session for the serial fee of a booked appointment.
func (h *PaymentHandler) DepositCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.cfg.StripeSecretKey == "" {
		http.Error(w, "deposit payments not configured (STRIPE_SECRET_KEY missing)", http.StatusNotImplemented)
		return
	}

	var req depositCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}

	successURL := strings.TrimSpace(req.SuccessURL)
	if successURL == "" {
		successURL = h.cfg.CheckoutSuccessURL
	}
	cancelURL := strings.TrimSpace(req.CancelURL)
	if cancelURL == "" {
		cancelURL = h.cfg.CheckoutCancelURL
	}
	if successURL == "" || cancelURL == "" {
		http.Error(w, "success_url and cancel_url are required (or configure default URLs)", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	appt, err := h.bookings.Get(ctx, req.AppointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}
	if appt.Status != "booked" {
		http.Error(w, "appointment is not booked", http.StatusConflict)
		return
	}
	if appt.DepositStatus == "paid" {
		http.Error(w, "deposit already paid", http.StatusConflict)
		return
	}

	slot, err := h.schedules.GetSlot(ctx, appt.SlotID)
	if err != nil {
		http.Error(w, "failed to load slot", http.StatusInternalServerError)
		return
	}
	if slot.SerialFee == nil || *slot.SerialFee <= 0 {
		http.Error(w, "slot has no serial fee to collect", http.StatusConflict)
		return
	}

	// Stripe uses a global API key. Keep usage limited to this handler call.
	stripe.Key = h.cfg.StripeSecretKey

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(appt.ID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(h.cfg.DepositCurrency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Appointment serial deposit"),
					},
					// Fees are stored in whole taka; Stripe wants the minor unit.
					UnitAmount: stripe.Int64(int64(*slot.SerialFee) * 100),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			"appointment_id": appt.ID,
			"doctor_id":      appt.DoctorID,
		},
	}
	params.AddExpand("url")
	if idemKey := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader)); idemKey != "" {
		params.IdempotencyKey = stripe.String(idemKey)
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		h.logger.Error("stripe checkout session create failed", "err", err, "appointment_id", appt.ID)
		http.Error(w, "failed to create checkout session", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"checkout_session_id": sess.ID,
		"checkout_url":        sess.URL,
	})
}

type depositWebhookRequest struct {
	EventID       string `json:"event_id"`
	Type          string `json:"type"` // deposit.paid
	AppointmentID string `json:"appointment_id"`
	OccurredAt    string `json:"occurred_at"`
}

// DepositWebhook serves POST /api/v1/public/deposit/webhook. It marks the
// deposit paid once per event id; replays are acknowledged and ignored.
func (h *PaymentHandler) DepositWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req depositWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.EventID = strings.TrimSpace(req.EventID)
	req.Type = strings.TrimSpace(req.Type)
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.OccurredAt = strings.TrimSpace(req.OccurredAt)
	if req.EventID == "" || req.AppointmentID == "" {
		http.Error(w, "event_id and appointment_id required", http.StatusBadRequest)
		return
	}
	if req.Type != "deposit.paid" {
		http.Error(w, "unsupported type", http.StatusBadRequest)
		return
	}
	occurredAt := time.Now().UTC()
	if req.OccurredAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.OccurredAt)
		if err != nil {
			http.Error(w, "invalid occurred_at", http.StatusBadRequest)
			return
		}
		occurredAt = parsed.UTC()
	}

	ctx := r.Context()
	first, err := h.inbox.Record(ctx, req.EventID, req.Type)
	if err != nil {
		http.Error(w, "failed to record event", http.StatusInternalServerError)
		return
	}
	if !first {
		h.logger.Info("deposit webhook duplicate ignored", "event_id", req.EventID)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "duplicate"})
		return
	}

	tx, err := h.bookings.Begin(ctx)
	if err != nil {
		http.Error(w, "failed to start transaction", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.bookings.MarkDepositPaid(ctx, tx, req.AppointmentID); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found or not booked", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to mark deposit paid", http.StatusInternalServerError)
		return
	}

	payload, _ := json.Marshal(map[string]any{
		"appointment_id": req.AppointmentID,
		"event_id":       req.EventID,
		"occurred_at":    occurredAt.Format(time.RFC3339),
	})
	if err := h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   req.AppointmentID,
		EventType:     outbox.EventDepositPaid,
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
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
}
