package storage

import (
	"context"

	"github.com/docbookhq/docbook/internal/model"
	"github.com/docbookhq/docbook/libs/db"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type DoctorRepository struct {
	pool *db.Pool
}

func NewDoctorRepository(pool *db.Pool) *DoctorRepository {
	return &DoctorRepository{pool: pool}
}

func (r *DoctorRepository) CreateTx(ctx context.Context, tx pgx.Tx, d model.Doctor) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO doctors (id, user_id, name, specialty, degrees, bio)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, d.ID, d.UserID, d.Name, d.Specialty, d.Degrees, d.Bio)
	return err
}

func (r *DoctorRepository) UpdateProfile(ctx context.Context, doctorID, name, specialty, degrees, bio string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE doctors
		SET name = $2, specialty = $3, degrees = $4, bio = $5
		WHERE id = $1
	`, doctorID, name, specialty, degrees, bio)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *DoctorRepository) GetByID(ctx context.Context, doctorID string) (model.Doctor, error) {
	var d model.Doctor
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, user_id::text, name, specialty, degrees, bio, created_at
		FROM doctors
		WHERE id = $1
	`, doctorID).Scan(&d.ID, &d.UserID, &d.Name, &d.Specialty, &d.Degrees, &d.Bio, &d.CreatedAt)
	return d, err
}

func (r *DoctorRepository) GetByUserID(ctx context.Context, userID string) (model.Doctor, error) {
	var d model.Doctor
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, user_id::text, name, specialty, degrees, bio, created_at
		FROM doctors
		WHERE user_id = $1
	`, userID).Scan(&d.ID, &d.UserID, &d.Name, &d.Specialty, &d.Degrees, &d.Bio, &d.CreatedAt)
	return d, err
}

// Search finds doctors by free-text name match, specialty, or chamber city.
// Empty filters match everything; results are capped.
func (r *DoctorRepository) Search(ctx context.Context, query, specialty, city string, limit int) ([]model.Doctor, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT d.id::text, d.user_id::text, d.name, d.specialty, d.degrees, d.bio, d.created_at
		FROM doctors d
		LEFT JOIN locations l ON l.doctor_id = d.id
		WHERE ($1 = '' OR d.name ILIKE '%' || $1 || '%')
			AND ($2 = '' OR d.specialty ILIKE $2)
			AND ($3 = '' OR l.city ILIKE $3)
		ORDER BY d.name ASC
		LIMIT $4
	`, query, specialty, city, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Doctor
	for rows.Next() {
		var d model.Doctor
		if err := rows.Scan(&d.ID, &d.UserID, &d.Name, &d.Specialty, &d.Degrees, &d.Bio, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *DoctorRepository) CreateLocation(ctx context.Context, loc model.Location) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO locations (id, doctor_id, name, address, city, state, zip)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, loc.DoctorID, loc.Name, loc.Address, loc.City, loc.State, loc.Zip)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetLocation enforces ownership: a doctor can only read their own chambers.
func (r *DoctorRepository) GetLocation(ctx context.Context, doctorID, locationID string) (model.Location, error) {
	var loc model.Location
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, doctor_id::text, name, address, city, COALESCE(state, ''), COALESCE(zip, '')
		FROM locations
		WHERE id = $1 AND doctor_id = $2
	`, locationID, doctorID).Scan(&loc.ID, &loc.DoctorID, &loc.Name, &loc.Address, &loc.City, &loc.State, &loc.Zip)
	return loc, err
}

func (r *DoctorRepository) ListLocations(ctx context.Context, doctorID string) ([]model.Location, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, doctor_id::text, name, address, city, COALESCE(state, ''), COALESCE(zip, '')
		FROM locations
		WHERE doctor_id = $1
		ORDER BY name ASC
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Location
	for rows.Next() {
		var loc model.Location
		if err := rows.Scan(&loc.ID, &loc.DoctorID, &loc.Name, &loc.Address, &loc.City, &loc.State, &loc.Zip); err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
