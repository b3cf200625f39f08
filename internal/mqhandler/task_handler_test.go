package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	mqcontracts "jobtracker/contracts/mq"
	"jobtracker/internal/mailbox"
	"jobtracker/internal/task"
	"jobtracker/pkg/mq"
	"jobtracker/pkg/trace"
)

type memDeduper struct {
	held     map[string]bool
	released int
}

func (d *memDeduper) AcquireOnce(_ context.Context, h, id string) bool {
	k := h + ":" + id
	if d.held[k] {
		return false
	}
	d.held[k] = true
	return true
}

func (d *memDeduper) Release(_ context.Context, h, id string) {
	delete(d.held, h+":"+id)
	d.released++
}

type memRetries map[string]int64

func (r memRetries) IncrementAndGet(_ context.Context, key string) (int64, error) {
	r[key]++
	return r[key], nil
}

func (r memRetries) Reset(_ context.Context, key string) error {
	delete(r, key)
	return nil
}

type scriptedScan struct {
	errs    []error
	calls   int
	traceID string
}

func (s *scriptedScan) Run(ctx context.Context, _ string, _ int, _ *time.Time) error {
	s.traceID = trace.FromContext(ctx)
	s.calls++
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func payload(t *testing.T) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(map[string]any{"task_id": "t-1", "user_id": 9, "trace_id": "abc"})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestScanHandlerDeduplicatesDeliveries(t *testing.T) {
	runner := &scriptedScan{}
	h := NewScanRequestedHandler(runner, &memDeduper{held: map[string]bool{}}, memRetries{}, 3, zap.NewNop())

	for i := 0; i < 2; i++ {
		if err := h.Handle(context.Background(), payload(t)); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if runner.calls != 1 {
		t.Errorf("runner calls = %d, want 1", runner.calls)
	}
	if runner.traceID != "abc" {
		t.Errorf("trace id = %q, want abc", runner.traceID)
	}
}

func TestScanHandlerRetriesTransientErrors(t *testing.T) {
	transient := fmt.Errorf("start task: %w", context.DeadlineExceeded)
	runner := &scriptedScan{errs: []error{transient, transient, transient}}
	dedup := &memDeduper{held: map[string]bool{}}
	h := NewScanRequestedHandler(runner, dedup, memRetries{}, 2, zap.NewNop())

	for i := 0; i < 2; i++ {
		if err := h.Handle(context.Background(), payload(t)); err == nil || errors.Is(err, mq.ErrPermanent) {
			t.Fatalf("attempt %d: err = %v, want requeue", i, err)
		}
	}
	if err := h.Handle(context.Background(), payload(t)); !errors.Is(err, mq.ErrPermanent) {
		t.Fatalf("third attempt: err = %v, want ErrPermanent", err)
	}
	if dedup.released != 2 {
		t.Errorf("released = %d, want 2", dedup.released)
	}
}

func TestScanHandlerDropsRedeliveredTask(t *testing.T) {
	runner := &scriptedScan{errs: []error{fmt.Errorf("start task: %w", task.ErrInvalidTransition)}}
	h := NewScanRequestedHandler(runner, &memDeduper{held: map[string]bool{}}, memRetries{}, 3, zap.NewNop())
	if err := h.Handle(context.Background(), payload(t)); err != nil {
		t.Errorf("err = %v, want nil (ack)", err)
	}
}

func TestHandlersRejectBadPayloads(t *testing.T) {
	scan := NewScanRequestedHandler(&scriptedScan{}, &memDeduper{held: map[string]bool{}}, memRetries{}, 3, zap.NewNop())
	scrape := NewScrapeRequestedHandler(nil, &memDeduper{held: map[string]bool{}}, memRetries{}, 3, zap.NewNop())
	forwarded := NewEmailForwardedHandler(&recordingIngester{}, &memDeduper{held: map[string]bool{}}, memRetries{}, 3, zap.NewNop())

	tests := []struct {
		name string
		fn   func(context.Context, json.RawMessage) error
		raw  string
	}{
		{"scan not json", scan.Handle, "{"},
		{"scan missing task", scan.Handle, `{"user_id": 1}`},
		{"scrape missing url", scrape.Handle, `{"task_id": "t"}`},
		{"forwarded missing raw", forwarded.Handle, `{"user_id": 1, "message_id": "m"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(context.Background(), json.RawMessage(tt.raw)); !errors.Is(err, mq.ErrPermanent) {
				t.Errorf("err = %v, want ErrPermanent", err)
			}
		})
	}
}

type recordingIngester struct {
	users []int
	msgs  []*mailbox.Message
	err   error
}

func (r *recordingIngester) Ingest(_ context.Context, userID int, msg *mailbox.Message) error {
	r.users = append(r.users, userID)
	r.msgs = append(r.msgs, msg)
	return r.err
}

func TestEmailForwardedHandlerParsesRawMessage(t *testing.T) {
	received := time.Date(2026, 3, 1, 9, 0, 1, 0, time.UTC)
	raw, err := json.Marshal(mqcontracts.EmailForwardedPayload{
		UserID:     7,
		MessageID:  "ses-123",
		ReceivedAt: received,
		Raw: []byte("From: Acme Talent <no-reply@acme.com>\r\n" +
			"To: ada@example.com\r\n" +
			"Subject: Thank you for applying\r\n" +
			"Content-Type: text/plain; charset=utf-8\r\n" +
			"\r\n" +
			"We received your application.\r\n"),
	})
	if err != nil {
		t.Fatal(err)
	}

	ing := &recordingIngester{}
	h := NewEmailForwardedHandler(ing, &memDeduper{held: map[string]bool{}}, memRetries{}, 3, zap.NewNop())
	for i := 0; i < 2; i++ {
		if err := h.Handle(context.Background(), raw); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if len(ing.msgs) != 1 {
		t.Fatalf("ingest calls = %d, want 1", len(ing.msgs))
	}

	type view struct {
		User                    int
		ID, From, Subject, Body string
		Date                    time.Time
	}
	m := ing.msgs[0]
	got := view{ing.users[0], m.ID, m.From, m.Subject, m.Body, m.Date}
	want := view{7, "ses-123", "Acme Talent <no-reply@acme.com>", "Thank you for applying", "We received your application.", received}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("message mismatch (-want +got):\n%s", diff)
	}
}
