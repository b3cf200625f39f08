// Package ingest accepts mail forwarded by SES through an SNS HTTP subscription
// and queues it for classification.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	mqcontracts "jobtracker/contracts/mq"
	"jobtracker/internal/mailbox"
	"jobtracker/internal/mailbox/imapbox"
	"jobtracker/internal/model"
	"jobtracker/internal/repository"
	"jobtracker/pkg/logger"
	"jobtracker/pkg/outbox"
	"jobtracker/pkg/trace"
)

var (
	ErrMalformed           = errors.New("ingest: malformed delivery")
	ErrUnsupportedType     = errors.New("ingest: unsupported message type")
	ErrInvalidSubscribeURL = errors.New("ingest: subscribe url not allowed")
)

// Outcome is reported back to the webhook caller.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeQueued    Outcome = "success"
	OutcomeSkipped   Outcome = "skipped"
)

const aggregateEmail = "email"

type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

// EventWriter durably queues one event for the worker.
type EventWriter interface {
	Enqueue(ctx context.Context, aggregateID, routingKey string, payload any) error
}

type Service struct {
	users   UserFinder
	events  EventWriter
	confirm func(ctx context.Context, subscribeURL string) error
	now     func() time.Time
	logger  *zap.Logger
}

func NewService(users UserFinder, events EventWriter, logger *zap.Logger) *Service {
	client := &http.Client{
		Timeout: 10 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &Service{
		users:   users,
		events:  events,
		confirm: func(ctx context.Context, u string) error { return confirmSubscription(ctx, client, u) },
		now:     time.Now,
		logger:  logger,
	}
}

// Handle processes one SNS delivery body.
func (s *Service) Handle(ctx context.Context, body []byte) (Outcome, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("%w: envelope: %v", ErrMalformed, err)
	}
	log := logger.WithTrace(ctx, s.logger).With(zap.String("sns_message_id", env.MessageID))

	switch env.Type {
	case TypeSubscriptionConfirmation:
		if err := ValidateSubscribeURL(env.SubscribeURL); err != nil {
			return "", err
		}
		if err := s.confirm(ctx, env.SubscribeURL); err != nil {
			return "", fmt.Errorf("confirm subscription: %w", err)
		}
		log.Info("SNS subscription confirmed", zap.String("topic_arn", env.TopicArn))
		return OutcomeConfirmed, nil
	case TypeNotification:
		return s.notification(ctx, log, env.Message)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, env.Type)
	}
}

func (s *Service) notification(ctx context.Context, log *zap.Logger, message string) (Outcome, error) {
	n, err := decodeNotification(message)
	if err != nil {
		return "", err
	}
	if n.Mail.MessageID == "" {
		return "", fmt.Errorf("%w: mail.messageId is empty", ErrMalformed)
	}
	raw, err := n.RawContent()
	if err != nil {
		return "", err
	}
	if _, err := imapbox.ParseRaw(raw); err != nil {
		return "", fmt.Errorf("%w: content: %v", ErrMalformed, err)
	}

	recipient := strings.ToLower(mailbox.FromAddress(n.Recipient()))
	if recipient == "" {
		return "", fmt.Errorf("%w: no destination", ErrMalformed)
	}
	log = log.With(zap.String("message_id", n.Mail.MessageID))

	u, err := s.users.FindByEmail(ctx, recipient)
	if errors.Is(err, repository.ErrUserNotFound) {
		log.Warn("Forwarded email for unknown recipient", zap.String("recipient", recipient))
		return OutcomeSkipped, nil
	}
	if err != nil {
		return "", fmt.Errorf("find recipient: %w", err)
	}

	payload := mqcontracts.EmailForwardedPayload{
		UserID:     u.ID,
		MessageID:  n.Mail.MessageID,
		ReceivedAt: n.ReceivedAt(s.now()),
		Raw:        raw,
		TraceID:    trace.FromContext(ctx),
	}
	if err := s.events.Enqueue(ctx, n.Mail.MessageID, mqcontracts.RoutingKeyEmailForwarded, payload); err != nil {
		return "", fmt.Errorf("enqueue forwarded email: %w", err)
	}
	log.Info("Forwarded email queued", zap.Int("user_id", u.ID), zap.String("source", n.Mail.Source))
	return OutcomeQueued, nil
}

func confirmSubscription(ctx context.Context, client *http.Client, subscribeURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, subscribeURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("subscribe url returned %d", resp.StatusCode)
	}
	return nil
}

// OutboxWriter writes each event in its own transaction; the outbox
// dispatcher publishes it.
type OutboxWriter struct {
	db     *pgxpool.Pool
	outbox *outbox.Repository
}

func NewOutboxWriter(db *pgxpool.Pool, ob *outbox.Repository) *OutboxWriter {
	return &OutboxWriter{db: db, outbox: ob}
}

func (w *OutboxWriter) Enqueue(ctx context.Context, aggregateID, routingKey string, payload any) error {
	tx, err := w.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := outbox.InsertEventInTx(ctx, tx, w.outbox, aggregateEmail, aggregateID, routingKey, payload); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
