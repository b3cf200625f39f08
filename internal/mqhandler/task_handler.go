package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	mqcontracts "jobtracker/contracts/mq"
	"jobtracker/internal/mailbox"
	"jobtracker/internal/mailbox/imapbox"
	"jobtracker/internal/task"
	"jobtracker/pkg/mq"
	"jobtracker/pkg/trace"
	"jobtracker/pkg/util"
)

type Deduper interface {
	AcquireOnce(ctx context.Context, handler, id string) bool
	Release(ctx context.Context, handler, id string)
}

type RetryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type ScanRunner interface {
	Run(ctx context.Context, taskID string, userID int, startDate *time.Time) error
}

type ScrapeRunner interface {
	Run(ctx context.Context, taskID, url string) error
}

type ForwardedIngester interface {
	Ingest(ctx context.Context, userID int, msg *mailbox.Message) error
}

// guard 每个 handler 共用的去重和重试计数
type guard struct {
	name       string
	deduper    Deduper
	retries    RetryCounter
	maxRetries int64
	logger     *zap.Logger
}

// settle maps a runner error onto the consumer's ack/nack/DLQ contract.
func (g *guard) settle(ctx context.Context, taskID string, err error) error {
	key := util.FormatRetryKey(g.name, taskID)
	if err == nil {
		_ = g.retries.Reset(ctx, key)
		return nil
	}

	// 任务已离开 pending：重复投递，直接 ack
	if errors.Is(err, task.ErrInvalidTransition) || errors.Is(err, task.ErrNotFound) {
		g.logger.Warn("Task no longer runnable, dropping message",
			zap.String("handler", g.name),
			zap.String("task_id", taskID),
			zap.Error(err),
		)
		return nil
	}

	retryable, errType := util.IsRetryableError(err)
	count, cerr := g.retries.IncrementAndGet(ctx, key)
	if cerr != nil {
		g.logger.Warn("Retry counter unavailable", zap.Error(cerr))
	}
	g.logger.Error("Task handler failed",
		zap.String("handler", g.name),
		zap.String("task_id", taskID),
		zap.String("error_type", errType),
		zap.Bool("retryable", retryable),
		zap.Int64("retry_count", count),
		zap.Error(err),
	)

	if !util.ShouldRetry(count, g.maxRetries, retryable) {
		return fmt.Errorf("%w: %s: %v", mq.ErrPermanent, errType, err)
	}
	g.deduper.Release(ctx, g.name, taskID)
	return err
}

type ScanRequestedHandler struct {
	guard
	runner ScanRunner
}

func NewScanRequestedHandler(runner ScanRunner, deduper Deduper, retries RetryCounter, maxRetries int, logger *zap.Logger) *ScanRequestedHandler {
	return &ScanRequestedHandler{
		guard: guard{
			name:       "scan",
			deduper:    deduper,
			retries:    retries,
			maxRetries: int64(maxRetries),
			logger:     logger,
		},
		runner: runner,
	}
}

// Handle 处理 task.scan.requested
func (h *ScanRequestedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.ScanRequestedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("%w: json_unmarshal_error: %v", mq.ErrPermanent, err)
	}
	if p.TaskID == "" || p.UserID == 0 {
		return fmt.Errorf("%w: scan payload missing task_id or user_id", mq.ErrPermanent)
	}
	if p.TraceID != "" && trace.FromContext(ctx) == "" {
		ctx = trace.WithContext(ctx, p.TraceID)
	}

	if !h.deduper.AcquireOnce(ctx, h.name, p.TaskID) {
		return nil
	}

	h.logger.Info("Processing scan request",
		zap.String("task_id", p.TaskID),
		zap.Int("user_id", p.UserID),
		zap.String("trace_id", p.TraceID),
	)
	return h.settle(ctx, p.TaskID, h.runner.Run(ctx, p.TaskID, p.UserID, p.StartDate))
}

type ScrapeRequestedHandler struct {
	guard
	runner ScrapeRunner
}

func NewScrapeRequestedHandler(runner ScrapeRunner, deduper Deduper, retries RetryCounter, maxRetries int, logger *zap.Logger) *ScrapeRequestedHandler {
	return &ScrapeRequestedHandler{
		guard: guard{
			name:       "scrape",
			deduper:    deduper,
			retries:    retries,
			maxRetries: int64(maxRetries),
			logger:     logger,
		},
		runner: runner,
	}
}

// Handle 处理 task.scrape.requested
func (h *ScrapeRequestedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.ScrapeRequestedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("%w: json_unmarshal_error: %v", mq.ErrPermanent, err)
	}
	if p.TaskID == "" || p.URL == "" {
		return fmt.Errorf("%w: scrape payload missing task_id or url", mq.ErrPermanent)
	}
	if p.TraceID != "" && trace.FromContext(ctx) == "" {
		ctx = trace.WithContext(ctx, p.TraceID)
	}

	if !h.deduper.AcquireOnce(ctx, h.name, p.TaskID) {
		return nil
	}

	h.logger.Info("Processing scrape request",
		zap.String("task_id", p.TaskID),
		zap.String("url", p.URL),
	)
	return h.settle(ctx, p.TaskID, h.runner.Run(ctx, p.TaskID, p.URL))
}

type EmailForwardedHandler struct {
	guard
	ingester ForwardedIngester
}

func NewEmailForwardedHandler(ingester ForwardedIngester, deduper Deduper, retries RetryCounter, maxRetries int, logger *zap.Logger) *EmailForwardedHandler {
	return &EmailForwardedHandler{
		guard: guard{
			name:       "forwarded",
			deduper:    deduper,
			retries:    retries,
			maxRetries: int64(maxRetries),
			logger:     logger,
		},
		ingester: ingester,
	}
}

// Handle 处理 email.forwarded
func (h *EmailForwardedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.EmailForwardedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("%w: json_unmarshal_error: %v", mq.ErrPermanent, err)
	}
	if p.UserID == 0 || p.MessageID == "" || len(p.Raw) == 0 {
		return fmt.Errorf("%w: forwarded payload missing user_id, message_id or raw", mq.ErrPermanent)
	}
	if p.TraceID != "" && trace.FromContext(ctx) == "" {
		ctx = trace.WithContext(ctx, p.TraceID)
	}

	msg, err := imapbox.ParseRaw(p.Raw)
	if err != nil {
		return fmt.Errorf("%w: parse forwarded email: %v", mq.ErrPermanent, err)
	}
	msg.ID = p.MessageID
	mailbox.Normalize(msg, p.ReceivedAt)

	key := fmt.Sprintf("%d:%s", p.UserID, p.MessageID)
	if !h.deduper.AcquireOnce(ctx, h.name, key) {
		return nil
	}

	h.logger.Info("Processing forwarded email",
		zap.Int("user_id", p.UserID),
		zap.String("message_id", p.MessageID),
		zap.String("trace_id", p.TraceID),
	)
	return h.settle(ctx, key, h.ingester.Ingest(ctx, p.UserID, msg))
}
