package storage

import (
	"context"
	"time"

	"github.com/docbookhq/docbook/internal/model"
	"github.com/docbookhq/docbook/libs/db"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type ScheduleRepository struct {
	pool *db.Pool
}

func NewScheduleRepository(pool *db.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

// NewSlots describes a batch of slot rows sharing everything but the date:
// one recurrence expansion becomes one NewSlots value.
type NewSlots struct {
	DoctorID    string
	LocationID  string
	Dates       []time.Time
	StartTime   string
	EndTime     string
	SerialFee   *int
	VisitFee    *int
	DiscountFee *int
}

// Begin starts a transaction so callers can persist slots and an outbox
// event atomically.
func (r *ScheduleRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// CreateBatchTx persists one row per expanded date inside the caller's
// transaction, so a recurrence either materializes fully or not at all.
// Dates are stored as YYYY-MM-DD text.
func (r *ScheduleRepository) CreateBatchTx(ctx context.Context, tx pgx.Tx, batch NewSlots) ([]string, error) {
	ids := make([]string, 0, len(batch.Dates))
	for _, date := range batch.Dates {
		id := uuid.NewString()
		_, err := tx.Exec(ctx, `
			INSERT INTO schedule_slots
				(id, doctor_id, location_id, slot_date, start_time, end_time, serial_fee, visit_fee, discount_fee)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, id, batch.DoctorID, batch.LocationID, date.UTC().Format("2006-01-02"),
			batch.StartTime, batch.EndTime, batch.SerialFee, batch.VisitFee, batch.DiscountFee)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

const slotColumns = `
	s.id::text, s.doctor_id::text, s.location_id::text, s.slot_date, s.start_time, s.end_time,
	s.serial_fee, s.visit_fee, s.discount_fee, s.created_at,
	l.id::text, l.doctor_id::text, l.name, l.address, l.city, COALESCE(l.state, ''), COALESCE(l.zip, '')`

// ListByDoctor returns every persisted slot for a doctor joined with its
// chamber, oldest date first. Rows are returned as stored; the availability
// resolver decides what is actually usable.
func (r *ScheduleRepository) ListByDoctor(ctx context.Context, doctorID string) ([]model.ScheduleSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM schedule_slots s
		JOIN locations l ON l.id = s.location_id
		WHERE s.doctor_id = $1
		ORDER BY s.slot_date ASC, s.start_time ASC
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ScheduleSlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *ScheduleRepository) GetSlot(ctx context.Context, slotID string) (model.ScheduleSlot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM schedule_slots s
		JOIN locations l ON l.id = s.location_id
		WHERE s.id = $1
	`, slotID)
	return scanSlot(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSlot(row rowScanner) (model.ScheduleSlot, error) {
	var s model.ScheduleSlot
	err := row.Scan(
		&s.ID, &s.DoctorID, &s.LocationID, &s.Date, &s.StartTime, &s.EndTime,
		&s.SerialFee, &s.VisitFee, &s.DiscountFee, &s.CreatedAt,
		&s.Location.ID, &s.Location.DoctorID, &s.Location.Name, &s.Location.Address,
		&s.Location.City, &s.Location.State, &s.Location.Zip,
	)
	if err != nil {
		return model.ScheduleSlot{}, err
	}
	return s, nil
}

// DeleteSlot removes a slot the doctor owns; appointments cascade in the
// schema.
func (r *ScheduleRepository) DeleteSlot(ctx context.Context, doctorID, slotID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM schedule_slots
		WHERE id = $1 AND doctor_id = $2
	`, slotID, doctorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
