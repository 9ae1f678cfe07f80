package inbox

import (
	"context"

	"github.com/docbookhq/docbook/internal/storage"
	"github.com/docbookhq/docbook/libs/db"
)

// Repository records consumed event IDs so redelivered Kafka messages are
// handled exactly once.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record returns false when the event was already seen.
func (r *Repository) Record(ctx context.Context, eventID string, eventType string) (bool, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}
	if storage.IsDuplicate(err) {
		return false, nil
	}
	return false, err
}
