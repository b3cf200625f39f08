package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"jobtracker/internal/enrich"
	"jobtracker/internal/task"
	"jobtracker/pkg/logger"
)

type PostingScraper interface {
	ScrapeAndSummarize(ctx context.Context, url string) (enrich.Posting, error)
}

// Scraper runs single-url scrape tasks.
type Scraper struct {
	tasks   task.Store
	scraper PostingScraper
	logger  *zap.Logger
}

func NewScraper(tasks task.Store, scraper PostingScraper, logger *zap.Logger) *Scraper {
	return &Scraper{tasks: tasks, scraper: scraper, logger: logger}
}

// Run finishes the task with {raw_description, summary, url} or fails it.
func (s *Scraper) Run(ctx context.Context, taskID, url string) error {
	log := logger.WithTrace(ctx, s.logger).With(zap.String("task_id", taskID), zap.String("url", url))

	if _, err := task.Start(ctx, s.tasks, taskID); err != nil {
		return fmt.Errorf("start task: %w", err)
	}

	posting, err := s.scraper.ScrapeAndSummarize(ctx, url)
	if err != nil {
		log.Error("Scrape failed", zap.Error(err))
		if _, ferr := task.Fail(ctx, s.tasks, taskID, err); ferr != nil {
			return errors.Join(err, ferr)
		}
		return nil
	}

	if _, err := task.Finish(ctx, s.tasks, taskID, posting); err != nil {
		return fmt.Errorf("finish task: %w", err)
	}
	log.Info("Scrape finished", zap.Int("description_length", len(posting.RawDescription)))
	return nil
}
