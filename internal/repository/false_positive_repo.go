package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// FalsePositiveRepository persists message ids known not to be application emails.
type FalsePositiveRepository struct {
	db *pgxpool.Pool
}

func NewFalsePositiveRepository(db *pgxpool.Pool) *FalsePositiveRepository {
	return &FalsePositiveRepository{db: db}
}

func (r *FalsePositiveRepository) Contains(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM false_positives WHERE message_id = $1)`, messageID,
	).Scan(&exists)
	return exists, err
}

// Add is idempotent.
func (r *FalsePositiveRepository) Add(ctx context.Context, messageID string) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO false_positives (message_id) VALUES ($1)
        ON CONFLICT (message_id) DO NOTHING
    `, messageID)
	return err
}

func (r *FalsePositiveRepository) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM false_positives WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
