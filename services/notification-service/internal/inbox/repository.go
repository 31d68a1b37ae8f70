package inbox

import (
	"context"

	"github.com/tabletopreserve/tabletop/libs/db"
)

// Repository remembers processed event ids.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Seen(ctx context.Context, eventID string) (bool, error) {
	var seen bool
	err := r.pool.Q(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM inbox_events WHERE event_id = $1)
	`, eventID).Scan(&seen)
	return seen, err
}

// Record marks eventID as handled. Recording it twice is not an error.
func (r *Repository) Record(ctx context.Context, eventID, eventType string) error {
	_, err := r.pool.Q(ctx).Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	return err
}
