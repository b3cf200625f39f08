package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"jobtracker/pkg/metrics"
)

const taskColumns = `id, user_id, task_type, status, total_count, processed_count, result, COALESCE(error, ''), created_at, updated_at`

type Repository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewRepository(db *pgxpool.Pool, logger *zap.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	var result []byte
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Type,
		&t.Status,
		&t.TotalCount,
		&t.ProcessedCount,
		&result,
		&t.Error,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(result) > 0 {
		t.Result = result
	}
	return &t, nil
}

func (r *Repository) Create(ctx context.Context, userID int, typ Type) (*Task, error) {
	return r.create(ctx, r.db, userID, typ)
}

// CreateTx creates the task inside tx so the dispatch event commits with it.
func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, userID int, typ Type) (*Task, error) {
	return r.create(ctx, tx, userID, typ)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *Repository) create(ctx context.Context, q querier, userID int, typ Type) (*Task, error) {
	query := `
        INSERT INTO processing_tasks (id, user_id, task_type, status)
        VALUES ($1, $2, $3, $4)
        RETURNING ` + taskColumns

	t, err := scanTask(q.QueryRow(ctx, query, uuid.NewString(), userID, typ, StatusPending))
	if err != nil {
		r.logger.Error("Failed to create task",
			zap.Int("user_id", userID),
			zap.String("task_type", string(typ)),
			zap.Error(err),
		)
		return nil, err
	}
	metrics.IncrementTaskTransition(string(typ), string(StatusPending))
	return t, nil
}

// Update locks the row, checks the transition and writes status, result and error together.
func (r *Repository) Update(ctx context.Context, id string, status Status, result any, errMsg string) (*Task, error) {
	payload, err := marshalResult(result)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var current Status
	err = tx.QueryRow(ctx, `SELECT status FROM processing_tasks WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := checkTransition(current, status); err != nil {
		return nil, err
	}

	var errCol *string
	if status == StatusFailed {
		errCol = &errMsg
	}

	query := `
        UPDATE processing_tasks
        SET status = $2, result = $3, error = $4, updated_at = NOW()
        WHERE id = $1
        RETURNING ` + taskColumns
	t, err := scanTask(tx.QueryRow(ctx, query, id, status, payload, errCol))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	metrics.IncrementTaskTransition(string(t.Type), string(status))
	r.logger.Info("Task status updated",
		zap.String("task_id", id),
		zap.String("from", string(current)),
		zap.String("to", string(status)),
	)
	return t, nil
}

// Get 只返回属于 userID 且类型匹配的任务
func (r *Repository) Get(ctx context.Context, id string, userID int, typ Type) (*Task, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	query := `SELECT ` + taskColumns + ` FROM processing_tasks WHERE id = $1 AND user_id = $2 AND task_type = $3`
	return scanTask(r.db.QueryRow(ctx, query, id, userID, typ))
}

func (r *Repository) SetTotal(ctx context.Context, id string, total int) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE processing_tasks
        SET total_count = $2, processed_count = 0, updated_at = NOW()
        WHERE id = $1 AND status = 'started'
    `, id, total)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementProcessed is a single-row atomic update, safe under concurrent workers.
func (r *Repository) IncrementProcessed(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `
        UPDATE processing_tasks
        SET processed_count = processed_count + 1, updated_at = NOW()
        WHERE id = $1 AND status = 'started' AND processed_count < total_count
    `, id)
	return err
}

// LastFinished returns when the user's newest finished task of typ was created, or nil.
func (r *Repository) LastFinished(ctx context.Context, userID int, typ Type) (*time.Time, error) {
	var at time.Time
	err := r.db.QueryRow(ctx, `
        SELECT created_at FROM processing_tasks
        WHERE user_id = $1 AND task_type = $2 AND status = 'finished'
        ORDER BY created_at DESC
        LIMIT 1
    `, userID, typ).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &at, nil
}

// FailStale fails started tasks whose last progress is older than olderThan.
func (r *Repository) FailStale(ctx context.Context, olderThan time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx, `
        UPDATE processing_tasks
        SET status = 'failed',
            error = 'task abandoned: no progress since ' || to_char(updated_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS"Z"'),
            updated_at = NOW()
        WHERE status = 'started' AND updated_at < $1
        RETURNING id, task_type
    `, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		var typ Type
		if err := rows.Scan(&id, &typ); err != nil {
			return nil, err
		}
		metrics.IncrementTaskTransition(string(typ), string(StatusFailed))
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
