package storage

import (
	"context"
	"time"

	"github.com/docbookhq/docbook/internal/model"
	"github.com/docbookhq/docbook/libs/db"
	"github.com/jackc/pgx/v5"
)

type BookingRepository struct {
	pool *db.Pool
}

type IdempotencyRecord struct {
	DoctorID        string
	IdempotencyKey  string
	AppointmentID   string
	StatusCode      int
	ResponsePayload string
}

func NewBookingRepository(pool *db.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// LockIdempotencyKey claims the key for this request, or returns the stored
// response of a previous attempt. The second return is true when the key
// already existed.
func (r *BookingRepository) LockIdempotencyKey(ctx context.Context, tx pgx.Tx, doctorID, key string) (IdempotencyRecord, bool, error) {
	rec, err := r.selectIdempotencyForUpdate(ctx, tx, doctorID, key)
	if err == nil {
		return rec, true, nil
	}
	if !IsNotFound(err) {
		return IdempotencyRecord{}, false, err
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (doctor_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (doctor_id, idempotency_key) DO NOTHING
	`, doctorID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	// A no-op insert means a concurrent request claimed the key between
	// our select and the insert; report it as existing.
	existed := tag.RowsAffected() == 0

	rec, err = r.selectIdempotencyForUpdate(ctx, tx, doctorID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, existed, nil
}

func (r *BookingRepository) FinalizeIdempotency(ctx context.Context, tx pgx.Tx, doctorID, key, appointmentID string, statusCode int, response string) error {
	_, err := tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET appointment_id = $3,
			status_code = $4,
			response_payload = $5,
			updated_at = now()
		WHERE doctor_id = $1 AND idempotency_key = $2
	`, doctorID, key, appointmentID, statusCode, response)
	return err
}

// LockSlotSerial locks the slot row and returns the next serial number.
// Booking order decides the patient's queue position at the chamber.
func (r *BookingRepository) LockSlotSerial(ctx context.Context, tx pgx.Tx, slotID string) (int, error) {
	var exists bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM schedule_slots WHERE id = $1 FOR UPDATE)
	`, slotID).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, pgx.ErrNoRows
	}

	var count int
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM appointments
		WHERE slot_id = $1 AND status = 'booked'
	`, slotID).Scan(&count); err != nil {
		return 0, err
	}
	return count + 1, nil
}

func (r *BookingRepository) Create(ctx context.Context, tx pgx.Tx, appt *model.Appointment) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO appointments
			(slot_id, doctor_id, patient_name, patient_email, patient_phone, serial, status, deposit_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id::text
	`, appt.SlotID, appt.DoctorID, appt.PatientName, appt.PatientEmail, appt.PatientPhone,
		appt.Serial, appt.Status, appt.DepositStatus).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

const appointmentColumns = `
	id::text, slot_id::text, doctor_id::text, patient_name, patient_email, patient_phone,
	serial, status, deposit_status, cancelled_at, COALESCE(cancellation_reason, ''), created_at`

func (r *BookingRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, doctorID, appointmentID string) (model.Appointment, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND doctor_id = $2
		FOR UPDATE
	`, appointmentID, doctorID)
	return scanAppointment(row)
}

func (r *BookingRepository) Get(ctx context.Context, appointmentID string) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, appointmentID)
	return scanAppointment(row)
}

func (r *BookingRepository) Cancel(ctx context.Context, tx pgx.Tx, doctorID, appointmentID, reason string) (time.Time, error) {
	var cancelledAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = $3
		WHERE id = $1 AND doctor_id = $2
		RETURNING cancelled_at
	`, appointmentID, doctorID, reason).Scan(&cancelledAt)
	return cancelledAt, err
}

func (r *BookingRepository) MarkDepositPaid(ctx context.Context, tx pgx.Tx, appointmentID string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET deposit_status = 'paid'
		WHERE id = $1 AND status = 'booked'
	`, appointmentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *BookingRepository) ListByDoctor(ctx context.Context, doctorID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, doctorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanAppointment(row rowScanner) (model.Appointment, error) {
	var appt model.Appointment
	var cancelledAt *time.Time
	err := row.Scan(
		&appt.ID,
		&appt.SlotID,
		&appt.DoctorID,
		&appt.PatientName,
		&appt.PatientEmail,
		&appt.PatientPhone,
		&appt.Serial,
		&appt.Status,
		&appt.DepositStatus,
		&cancelledAt,
		&appt.CancelReason,
		&appt.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.CancelledAt = cancelledAt
	return appt, nil
}

func (r *BookingRepository) selectIdempotencyForUpdate(ctx context.Context, tx pgx.Tx, doctorID, key string) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	err := tx.QueryRow(ctx, `
		SELECT doctor_id::text,
			idempotency_key,
			COALESCE(appointment_id::text, ''),
			COALESCE(status_code, 0),
			COALESCE(response_payload, '')
		FROM booking_idempotency_keys
		WHERE doctor_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, doctorID, key).Scan(
		&rec.DoctorID,
		&rec.IdempotencyKey,
		&rec.AppointmentID,
		&rec.StatusCode,
		&rec.ResponsePayload,
	)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	return rec, nil
}
