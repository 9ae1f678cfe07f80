package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/docbookhq/docbook/internal/schedule"
	"github.com/docbookhq/docbook/internal/storage"
	"github.com/docbookhq/docbook/libs/auth"
)

func testToken(t *testing.T, secret, role, doctorID string) string {
	t.Helper()
	token, err := auth.SignHS256(auth.Claims{
		Sub:      "user-1",
		DoctorID: doctorID,
		Role:     role,
		Iat:      time.Now().Unix(),
		Exp:      time.Now().Add(time.Hour).Unix(),
	}, secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	return token
}

func TestRequireAuth(t *testing.T) {
	secret := "test-secret"
	h := RequireAuth(secret, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil || claims.Sub != "user-1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set("Authorization", "Bearer "+testToken(t, secret, "patient", ""))
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}

	reqMissing := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	rwMissing := httptest.NewRecorder()
	h.ServeHTTP(rwMissing, reqMissing)
	if rwMissing.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without header, got %d", rwMissing.Code)
	}

	reqBad := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	reqBad.Header.Set("Authorization", "Bearer garbage")
	rwBad := httptest.NewRecorder()
	h.ServeHTTP(rwBad, reqBad)
	if rwBad.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rwBad.Code)
	}

	reqWrong := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	reqWrong.Header.Set("Authorization", "Bearer "+testToken(t, "other-secret", "patient", ""))
	rwWrong := httptest.NewRecorder()
	h.ServeHTTP(rwWrong, reqWrong)
	if rwWrong.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong secret, got %d", rwWrong.Code)
	}
}

func TestRequireDoctor(t *testing.T) {
	secret := "test-secret"
	h := RequireDoctor(secret, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set("Authorization", "Bearer "+testToken(t, secret, "doctor", "doc-1"))
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200 for doctor, got %d", rw.Code)
	}

	reqPatient := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	reqPatient.Header.Set("Authorization", "Bearer "+testToken(t, secret, "patient", ""))
	rwPatient := httptest.NewRecorder()
	h.ServeHTTP(rwPatient, reqPatient)
	if rwPatient.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for patient, got %d", rwPatient.Code)
	}

	// A doctor token without a profile id cannot manage schedules.
	reqNoID := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	reqNoID.Header.Set("Authorization", "Bearer "+testToken(t, secret, "doctor", ""))
	rwNoID := httptest.NewRecorder()
	h.ServeHTTP(rwNoID, reqNoID)
	if rwNoID.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without doctor id, got %d", rwNoID.Code)
	}
}

func TestExpandRecurrenceMonthly(t *testing.T) {
	now := time.Date(2024, 9, 4, 0, 0, 0, 0, time.UTC)

	dates, err := expandRecurrence(recurrenceSpec{
		Type:      "monthly",
		StartDate: "2024-10-15T00:00:00Z",
	}, now)
	if err != nil {
		t.Fatalf("expandRecurrence failed: %v", err)
	}
	if len(dates) != 1 {
		t.Fatalf("expected 1 date without repeat, got %d", len(dates))
	}

	repeated, err := expandRecurrence(recurrenceSpec{
		Type:      "monthly",
		StartDate: "2024-10-15T00:00:00Z",
		Repeat:    true,
	}, now)
	if err != nil {
		t.Fatalf("expandRecurrence failed: %v", err)
	}
	if len(repeated) != 12 {
		t.Fatalf("expected 12 dates with repeat, got %d", len(repeated))
	}

	if _, err := expandRecurrence(recurrenceSpec{Type: "monthly", StartDate: "2024-10-15"}, now); err == nil {
		t.Fatal("expected error for non RFC 3339 start_date")
	}
}

func TestExpandRecurrenceWeekly(t *testing.T) {
	now := time.Date(2024, 9, 4, 0, 0, 0, 0, time.UTC)

	dates, err := expandRecurrence(recurrenceSpec{
		Type: "weekly",
		Days: []string{"friday"},
	}, now)
	if err != nil {
		t.Fatalf("expandRecurrence failed: %v", err)
	}
	if len(dates) != 1 || !dates[0].Equal(time.Date(2024, 9, 6, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected dates: %v", dates)
	}

	if _, err := expandRecurrence(recurrenceSpec{Type: "weekly", Days: []string{"someday"}}, now); !errors.Is(err, schedule.ErrInvalidWeekday) {
		t.Fatalf("expected ErrInvalidWeekday, got %v", err)
	}
	if _, err := expandRecurrence(recurrenceSpec{Type: "weekly"}, now); err == nil {
		t.Fatal("expected error for weekly recurrence without days")
	}
	if _, err := expandRecurrence(recurrenceSpec{Type: "daily"}, now); err == nil {
		t.Fatal("expected error for unsupported recurrence type")
	}
}

func TestWriteStoredBooking_ReplaysVerbatim(t *testing.T) {
	rec := storage.IdempotencyRecord{
		DoctorID:        "doc-1",
		IdempotencyKey:  "key-1",
		AppointmentID:   "appt-7",
		StatusCode:      http.StatusCreated,
		ResponsePayload: `{"appointment_id":"appt-7","serial":2,"date":"2024-09-06","start_display":"5:00 PM"}`,
	}

	rr := httptest.NewRecorder()
	writeStoredBooking(rr, rec)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	if got := rr.Body.String(); got != rec.ResponsePayload {
		t.Fatalf("replayed body differs from stored response:\nwant %s\ngot  %s", rec.ResponsePayload, got)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json, got %q", ct)
	}
}

func TestWriteStoredBooking_UnfinalizedKeyConflicts(t *testing.T) {
	rr := httptest.NewRecorder()
	writeStoredBooking(rr, storage.IdempotencyRecord{DoctorID: "doc-1", IdempotencyKey: "key-1"})

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for unfinalized key, got %d", rr.Code)
	}
}

func TestMe_RequiresClaims(t *testing.T) {
	h := NewAuthHandler(nil, nil, nil, "test-secret", time.Hour)

	rr := httptest.NewRecorder()
	h.Me(rr, httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without claims, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.Me(rr, httptest.NewRequest(http.MethodPost, "/api/v1/auth/me", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for POST, got %d", rr.Code)
	}
}
