package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"jobtracker/internal/model"
)

type EmailRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewEmailRepository(db *pgxpool.Pool, logger *zap.Logger) *EmailRepository {
	return &EmailRepository{db: db, logger: logger}
}

// InsertBatch writes all records in one batch. Records already stored for
// the same (user_id, message_id) are skipped. Returns the number inserted.
func (r *EmailRepository) InsertBatch(ctx context.Context, records []model.EmailRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	query := `
        INSERT INTO email_records (
            user_id, message_id, thread_id, company_name, application_status,
            received_at, subject, job_title, sender, posting_url, posting_summary
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (user_id, message_id) DO NOTHING
    `
	batch := &pgx.Batch{}
	for _, e := range records {
		batch.Queue(query,
			e.UserID,
			e.MessageID,
			e.ThreadID,
			e.CompanyName,
			e.ApplicationStatus,
			e.ReceivedAt,
			e.Subject,
			e.JobTitle,
			e.Sender,
			e.PostingURL,
			e.PostingSummary,
		)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	br := tx.SendBatch(ctx, batch)
	inserted := 0
	for i := range records {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return 0, fmt.Errorf("insert email record %s: %w", records[i].MessageID, err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	r.logger.Info("Email records stored",
		zap.Int("submitted", len(records)),
		zap.Int("inserted", inserted),
	)
	return inserted, nil
}

// ListByUser returns the user's records, newest first.
func (r *EmailRepository) ListByUser(ctx context.Context, userID, limit, offset int) ([]model.EmailRecord, error) {
	query := `
        SELECT id, user_id, message_id, thread_id, company_name, application_status,
               received_at, subject, job_title, sender, posting_url, posting_summary, created_at
        FROM email_records
        WHERE user_id = $1
        ORDER BY received_at DESC
        LIMIT $2 OFFSET $3
    `
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []model.EmailRecord{}
	for rows.Next() {
		var e model.EmailRecord
		if err := rows.Scan(
			&e.ID,
			&e.UserID,
			&e.MessageID,
			&e.ThreadID,
			&e.CompanyName,
			&e.ApplicationStatus,
			&e.ReceivedAt,
			&e.Subject,
			&e.JobTitle,
			&e.Sender,
			&e.PostingURL,
			&e.PostingSummary,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, e)
	}
	return records, rows.Err()
}
