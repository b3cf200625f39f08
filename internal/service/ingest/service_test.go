package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	mqcontracts "jobtracker/contracts/mq"
	"jobtracker/internal/model"
	"jobtracker/internal/repository"
)

const rawEmail = "From: Acme Talent <no-reply@acme.com>\r\n" +
	"To: ada@example.com\r\n" +
	"Subject: Thank you for applying to Acme\r\n" +
	"Message-Id: <abc@acme.com>\r\n" +
	"Date: Sun, 01 Mar 2026 09:00:00 +0000\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"We received your application for Backend Engineer.\r\n"

type memUsers map[string]*model.User

func (m memUsers) FindByEmail(_ context.Context, email string) (*model.User, error) {
	if u, ok := m[email]; ok {
		return u, nil
	}
	return nil, repository.ErrUserNotFound
}

type queued struct {
	aggregateID string
	routingKey  string
	payload     mqcontracts.EmailForwardedPayload
}

type memEvents struct {
	events []queued
}

func (m *memEvents) Enqueue(_ context.Context, aggregateID, routingKey string, payload any) error {
	m.events = append(m.events, queued{aggregateID, routingKey, payload.(mqcontracts.EmailForwardedPayload)})
	return nil
}

func newTestService() (*Service, *memEvents, *[]string) {
	events := &memEvents{}
	s := NewService(memUsers{"ada@example.com": {ID: 7, Email: "ada@example.com"}}, events, zap.NewNop())
	confirmed := &[]string{}
	s.confirm = func(_ context.Context, u string) error {
		*confirmed = append(*confirmed, u)
		return nil
	}
	s.now = func() time.Time { return time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) }
	return s, events, confirmed
}

func envelope(t *testing.T, typ, subscribeURL string, n *Notification) []byte {
	t.Helper()
	env := Envelope{Type: typ, MessageID: "sns-1", SubscribeURL: subscribeURL}
	if n != nil {
		b, err := json.Marshal(n)
		if err != nil {
			t.Fatal(err)
		}
		env.Message = string(b)
	}
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func notification(to, content, encoding string) *Notification {
	n := &Notification{
		Mail: Mail{
			Timestamp:   "2026-03-01T09:00:01.000Z",
			Source:      "no-reply@acme.com",
			MessageID:   "ses-123",
			Destination: []string{to},
		},
		Content: content,
	}
	n.Receipt.Action.Type = "SNS"
	n.Receipt.Action.Encoding = encoding
	return n
}

func TestHandleSubscriptionConfirmation(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr error
	}{
		{"aws endpoint", "https://sns.us-east-1.amazonaws.com/?Action=ConfirmSubscription&Token=x", nil},
		{"china partition", "https://sns.cn-north-1.amazonaws.com.cn/?Action=ConfirmSubscription", nil},
		{"plain http", "http://sns.us-east-1.amazonaws.com/?Action=ConfirmSubscription", ErrInvalidSubscribeURL},
		{"foreign host", "https://sns.us-east-1.amazonaws.com.evil.test/", ErrInvalidSubscribeURL},
		{"internal host", "https://169.254.169.254/latest/meta-data", ErrInvalidSubscribeURL},
		{"explicit port", "https://sns.us-east-1.amazonaws.com:8443/", ErrInvalidSubscribeURL},
		{"empty", "", ErrInvalidSubscribeURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, confirmed := newTestService()
			got, err := s.Handle(context.Background(), envelope(t, TypeSubscriptionConfirmation, tt.url, nil))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Handle() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				if len(*confirmed) != 0 {
					t.Errorf("confirmed %v, want nothing", *confirmed)
				}
				return
			}
			if got != OutcomeConfirmed {
				t.Errorf("outcome = %q, want confirmed", got)
			}
			if diff := cmp.Diff([]string{tt.url}, *confirmed); diff != "" {
				t.Errorf("confirmed mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHandleNotificationQueuesKnownRecipient(t *testing.T) {
	tests := []struct {
		name string
		n    *Notification
	}{
		{"raw content", notification("ada@example.com", rawEmail, "")},
		{"base64 content", notification("Ada <ADA@example.com>", base64.StdEncoding.EncodeToString([]byte(rawEmail)), "BASE64")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, events, _ := newTestService()
			got, err := s.Handle(context.Background(), envelope(t, TypeNotification, "", tt.n))
			if err != nil {
				t.Fatalf("Handle() error = %v", err)
			}
			if got != OutcomeQueued {
				t.Errorf("outcome = %q, want success", got)
			}
			want := []queued{{
				aggregateID: "ses-123",
				routingKey:  mqcontracts.RoutingKeyEmailForwarded,
				payload: mqcontracts.EmailForwardedPayload{
					UserID:     7,
					MessageID:  "ses-123",
					ReceivedAt: time.Date(2026, 3, 1, 9, 0, 1, 0, time.UTC),
					Raw:        []byte(rawEmail),
				},
			}}
			if diff := cmp.Diff(want, events.events, cmp.AllowUnexported(queued{})); diff != "" {
				t.Errorf("queued mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHandleNotificationRejections(t *testing.T) {
	noID := notification("ada@example.com", rawEmail, "")
	noID.Mail.MessageID = ""

	tests := []struct {
		name    string
		body    func(t *testing.T) []byte
		want    Outcome
		wantErr error
	}{
		{"unknown recipient", func(t *testing.T) []byte {
			return envelope(t, TypeNotification, "", notification("bob@example.com", rawEmail, ""))
		}, OutcomeSkipped, nil},
		{"no content", func(t *testing.T) []byte {
			return envelope(t, TypeNotification, "", notification("ada@example.com", "", ""))
		}, "", ErrMalformed},
		{"bad base64", func(t *testing.T) []byte {
			return envelope(t, TypeNotification, "", notification("ada@example.com", "%%%", "BASE64"))
		}, "", ErrMalformed},
		{"no destination", func(t *testing.T) []byte {
			return envelope(t, TypeNotification, "", notification("", rawEmail, ""))
		}, "", ErrMalformed},
		{"no message id", func(t *testing.T) []byte {
			return envelope(t, TypeNotification, "", noID)
		}, "", ErrMalformed},
		{"message not json", func(t *testing.T) []byte {
			b, _ := json.Marshal(Envelope{Type: TypeNotification, Message: "not json"})
			return b
		}, "", ErrMalformed},
		{"envelope not json", func(*testing.T) []byte { return []byte("{") }, "", ErrMalformed},
		{"unsubscribe", func(t *testing.T) []byte {
			return envelope(t, "UnsubscribeConfirmation", "", nil)
		}, "", ErrUnsupportedType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, events, _ := newTestService()
			got, err := s.Handle(context.Background(), tt.body(t))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Handle() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("outcome = %q, want %q", got, tt.want)
			}
			if len(events.events) != 0 {
				t.Errorf("queued %d events, want none", len(events.events))
			}
		})
	}
}
