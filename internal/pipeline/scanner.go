// Package pipeline runs scan and scrape tasks end to end.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jobtracker/internal/classifier"
	"jobtracker/internal/enrich"
	"jobtracker/internal/filter"
	"jobtracker/internal/mailbox"
	"jobtracker/internal/model"
	"jobtracker/internal/task"
	"jobtracker/pkg/logger"
	"jobtracker/pkg/metrics"
)

// MailboxOpener returns the mailbox of a user.
type MailboxOpener interface {
	Open(ctx context.Context, userID int) (mailbox.Provider, error)
}

type Classifier interface {
	Classify(ctx context.Context, text, messageID string) classifier.Result
}

type Enricher interface {
	ExtractCompanyAndTitle(ctx context.Context, text string) (company, title string)
	Enrich(ctx context.Context, company, title string) enrich.Posting
}

type EmailStore interface {
	InsertBatch(ctx context.Context, records []model.EmailRecord) (int, error)
}

type CompanyStore interface {
	Upsert(ctx context.Context, name, domain string) error
}

type ScannerConfig struct {
	Concurrency int
	Enrich      bool
}

type outcome int

const (
	outcomeStored outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (o outcome) String() string {
	switch o {
	case outcomeStored:
		return "success"
	case outcomeSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

type Scanner struct {
	tasks      task.Store
	mailboxes  MailboxOpener
	rules      *filter.Set
	classifier Classifier
	enricher   Enricher
	emails     EmailStore
	companies  CompanyStore
	cfg        ScannerConfig
	logger     *zap.Logger
}

// NewScanner wires a scanner. companies may be nil.
func NewScanner(
	tasks task.Store,
	mailboxes MailboxOpener,
	rules *filter.Set,
	cls Classifier,
	enricher Enricher,
	emails EmailStore,
	companies CompanyStore,
	cfg ScannerConfig,
	logger *zap.Logger,
) *Scanner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Scanner{
		tasks:      tasks,
		mailboxes:  mailboxes,
		rules:      rules,
		classifier: cls,
		enricher:   enricher,
		emails:     emails,
		companies:  companies,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run executes one scan task. Per-message failures are counted and skipped;
// a listing or persistence failure fails the whole task. The returned error
// is non-nil only when the ledger itself could not be updated.
func (s *Scanner) Run(ctx context.Context, taskID string, userID int, startDate *time.Time) error {
	log := logger.WithTrace(ctx, s.logger).With(zap.String("task_id", taskID), zap.Int("user_id", userID))

	if _, err := task.Start(ctx, s.tasks, taskID); err != nil {
		return fmt.Errorf("start task: %w", err)
	}

	result, err := s.scan(ctx, log, taskID, userID, startDate)
	if err != nil {
		log.Error("Scan failed", zap.Error(err))
		if _, ferr := task.Fail(ctx, s.tasks, taskID, err); ferr != nil {
			return errors.Join(err, ferr)
		}
		return nil
	}

	if _, err := task.Finish(ctx, s.tasks, taskID, result); err != nil {
		return fmt.Errorf("finish task: %w", err)
	}
	log.Info("Scan finished",
		zap.Int("total", result.Total),
		zap.Int("inserted", result.Inserted),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return nil
}

func (s *Scanner) scan(ctx context.Context, log *zap.Logger, taskID string, userID int, startDate *time.Time) (*task.ScanResult, error) {
	after := startDate
	if after == nil {
		last, err := s.tasks.LastFinished(ctx, userID, task.TypeScan)
		if err != nil {
			return nil, fmt.Errorf("look up last scan: %w", err)
		}
		after = last
	}

	provider, err := s.mailboxes.Open(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("open mailbox: %w", err)
	}
	fetcher := mailbox.NewFetcher(provider, s.logger)

	ids, err := fetcher.ListCandidateIDs(ctx, s.rules.Query(), after)
	if err != nil {
		return nil, err
	}
	if err := s.tasks.SetTotal(ctx, taskID, len(ids)); err != nil {
		return nil, fmt.Errorf("set total: %w", err)
	}
	log.Info("Scan candidates listed", zap.Int("count", len(ids)))

	records := make([]*model.EmailRecord, len(ids))
	outcomes := make([]outcome, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			rec, out := s.processMessage(gctx, fetcher, userID, id)
			records[i], outcomes[i] = rec, out
			metrics.IncrementEmailProcessed(out.String())
			if err := s.tasks.IncrementProcessed(gctx, taskID); err != nil {
				log.Warn("Failed to update progress", zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &task.ScanResult{Total: len(ids), Processed: len(ids)}
	batch := make([]model.EmailRecord, 0, len(ids))
	for i, rec := range records {
		switch outcomes[i] {
		case outcomeSkipped:
			res.Skipped++
		case outcomeFailed:
			res.Failed++
		}
		if rec != nil {
			batch = append(batch, *rec)
		}
	}

	inserted, err := s.emails.InsertBatch(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("store email records: %w", err)
	}
	res.Inserted = inserted

	s.upsertCompanies(ctx, log, batch)
	return res, nil
}

// Ingest classifies one message delivered outside a scan and stores it.
// Local rules are not applied: the user chose to forward it.
func (s *Scanner) Ingest(ctx context.Context, userID int, msg *mailbox.Message) error {
	log := logger.WithTrace(ctx, s.logger).With(zap.Int("user_id", userID), zap.String("message_id", msg.ID))

	rec, out := s.buildRecord(ctx, log, userID, msg)
	metrics.IncrementEmailProcessed(out.String())
	if rec == nil {
		log.Info("Forwarded email skipped")
		return nil
	}
	inserted, err := s.emails.InsertBatch(ctx, []model.EmailRecord{*rec})
	if err != nil {
		return fmt.Errorf("store email record: %w", err)
	}
	if inserted > 0 {
		s.upsertCompanies(ctx, log, []model.EmailRecord{*rec})
	}
	log.Info("Forwarded email stored",
		zap.Int("inserted", inserted),
		zap.String("status", rec.ApplicationStatus),
		zap.String("company", rec.CompanyName),
	)
	return nil
}

func (s *Scanner) upsertCompanies(ctx context.Context, log *zap.Logger, records []model.EmailRecord) {
	if s.companies == nil {
		return
	}
	for _, rec := range records {
		if rec.CompanyName == "" || rec.CompanyName == enrich.Unknown {
			continue
		}
		domain := mailbox.EmailDomain(mailbox.FromAddress(rec.Sender))
		if err := s.companies.Upsert(ctx, rec.CompanyName, domain); err != nil {
			log.Warn("Failed to upsert company", zap.String("company", rec.CompanyName), zap.Error(err))
		}
	}
}

func (s *Scanner) processMessage(ctx context.Context, fetcher *mailbox.Fetcher, userID int, id string) (*model.EmailRecord, outcome) {
	log := logger.WithTrace(ctx, s.logger).With(zap.String("message_id", id))

	msg, err := fetcher.FetchMessage(ctx, id)
	if err != nil {
		log.Warn("Failed to fetch message", zap.Error(err))
		return nil, outcomeFailed
	}
	if !s.rules.Match(msg.Subject, msg.From) {
		log.Debug("Message rejected by local rules", zap.String("subject", msg.Subject))
		return nil, outcomeSkipped
	}
	return s.buildRecord(ctx, log, userID, msg)
}

// buildRecord classifies msg and fills company, title and posting. A nil
// record means the message is not an application email.
func (s *Scanner) buildRecord(ctx context.Context, log *zap.Logger, userID int, msg *mailbox.Message) (*model.EmailRecord, outcome) {
	content := msg.Content()
	result := s.classifier.Classify(ctx, content, msg.ID)
	label := result.LabelOrUnknown()
	if !result.IsOk() {
		log.Warn("Classification failed, storing as unknown", zap.String("reason", result.Reason()))
	}
	if label == classifier.LabelFalsePositive {
		return nil, outcomeSkipped
	}

	rec := &model.EmailRecord{
		UserID:            userID,
		MessageID:         msg.ID,
		ThreadID:          msg.ThreadID,
		CompanyName:       enrich.Unknown,
		ApplicationStatus: string(label),
		ReceivedAt:        msg.Date,
		Subject:           msg.Subject,
		JobTitle:          enrich.Unknown,
		Sender:            msg.From,
	}

	if s.enricher != nil {
		rec.CompanyName, rec.JobTitle = s.enricher.ExtractCompanyAndTitle(ctx, content)
		// 自动发件的邮件公司名常常只出现在标题里
		if rec.CompanyName == enrich.Unknown && mailbox.IsAutomatedSender(mailbox.FromAddress(msg.From)) && msg.Subject != "" {
			company, title := s.enricher.ExtractCompanyAndTitle(ctx, msg.Subject)
			if company != enrich.Unknown {
				rec.CompanyName = company
				if rec.JobTitle == enrich.Unknown {
					rec.JobTitle = title
				}
			}
		}
	}
	if rec.CompanyName == enrich.Unknown {
		if guess := mailbox.CompanyFromSender(msg.From); guess != "" {
			rec.CompanyName = guess
		}
	}

	if s.cfg.Enrich && s.enricher != nil && label.IsApplication() {
		posting := s.enricher.Enrich(ctx, rec.CompanyName, rec.JobTitle)
		rec.PostingURL = posting.URL
		rec.PostingSummary = posting.Summary
	}
	return rec, outcomeStored
}
