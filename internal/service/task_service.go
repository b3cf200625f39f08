package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	mqcontracts "jobtracker/contracts/mq"
	"jobtracker/internal/task"
	"jobtracker/pkg/outbox"
	"jobtracker/pkg/trace"
)

const aggregateTask = "task"

// TaskService creates tasks and their dispatch events in one transaction.
// The outbox dispatcher publishes the events.
type TaskService struct {
	db     *pgxpool.Pool
	tasks  *task.Repository
	outbox *outbox.Repository
	logger *zap.Logger
}

func NewTaskService(db *pgxpool.Pool, tasks *task.Repository, ob *outbox.Repository, logger *zap.Logger) *TaskService {
	return &TaskService{db: db, tasks: tasks, outbox: ob, logger: logger}
}

func (s *TaskService) RequestScan(ctx context.Context, userID int, startDate *time.Time) (*task.Task, error) {
	return s.request(ctx, userID, task.TypeScan, mqcontracts.RoutingKeyScanRequested, func(id string) any {
		return mqcontracts.ScanRequestedPayload{
			TaskID:    id,
			UserID:    userID,
			StartDate: startDate,
			TraceID:   trace.FromContext(ctx),
		}
	})
}

func (s *TaskService) RequestScrape(ctx context.Context, userID int, url string) (*task.Task, error) {
	return s.request(ctx, userID, task.TypeScrape, mqcontracts.RoutingKeyScrapeRequested, func(id string) any {
		return mqcontracts.ScrapeRequestedPayload{
			TaskID:  id,
			UserID:  userID,
			URL:     url,
			TraceID: trace.FromContext(ctx),
		}
	})
}

func (s *TaskService) Get(ctx context.Context, id string, userID int, typ task.Type) (*task.Task, error) {
	return s.tasks.Get(ctx, id, userID, typ)
}

func (s *TaskService) request(ctx context.Context, userID int, typ task.Type, routingKey string, payload func(id string) any) (*task.Task, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	t, err := s.tasks.CreateTx(ctx, tx, userID, typ)
	if err != nil {
		return nil, err
	}
	if err := outbox.InsertEventInTx(ctx, tx, s.outbox, aggregateTask, t.ID, routingKey, payload(t.ID)); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	s.logger.Info("Task requested",
		zap.String("task_id", t.ID),
		zap.String("task_type", string(typ)),
		zap.Int("user_id", userID),
		zap.String("trace_id", trace.FromContext(ctx)),
	)
	return t, nil
}
