package task

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pruner drops expired false-positive entries.
type Pruner interface {
	Prune(ctx context.Context) (int64, error)
}

// Reaper fails abandoned started tasks and prunes the false-positive set.
type Reaper struct {
	store      Store
	pruner     Pruner
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

func NewReaper(store Store, pruner Pruner, interval, staleAfter time.Duration, logger *zap.Logger) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	return &Reaper{
		store:      store,
		pruner:     pruner,
		interval:   interval,
		staleAfter: staleAfter,
		now:        time.Now,
		logger:     logger,
	}
}

// Run 阻塞直到 ctx 结束
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("Task reaper started",
		zap.Duration("interval", r.interval),
		zap.Duration("stale_after", r.staleAfter),
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Task reaper stopped")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

func (r *Reaper) RunOnce(ctx context.Context) {
	ids, err := r.store.FailStale(ctx, r.now().Add(-r.staleAfter))
	if err != nil {
		r.logger.Error("Failed to reap stale tasks", zap.Error(err))
	} else if len(ids) > 0 {
		r.logger.Warn("Reaped abandoned tasks", zap.Strings("task_ids", ids))
	}

	if r.pruner == nil {
		return
	}
	n, err := r.pruner.Prune(ctx)
	if err != nil {
		r.logger.Error("Failed to prune false positives", zap.Error(err))
		return
	}
	if n > 0 {
		r.logger.Info("Pruned false positives", zap.Int64("count", n))
	}
}
