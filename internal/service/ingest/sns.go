package ingest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// SNS message types.
const (
	TypeSubscriptionConfirmation = "SubscriptionConfirmation"
	TypeNotification             = "Notification"
)

// Envelope is the outer SNS HTTP delivery.
type Envelope struct {
	Type         string `json:"Type"`
	MessageID    string `json:"MessageId"`
	TopicArn     string `json:"TopicArn"`
	Message      string `json:"Message"`
	SubscribeURL string `json:"SubscribeURL"`
}

// Notification is the SES receipt carried in Envelope.Message.
type Notification struct {
	Mail    Mail    `json:"mail"`
	Receipt Receipt `json:"receipt"`
	Content string  `json:"content"`
}

type Mail struct {
	Timestamp   string   `json:"timestamp"`
	Source      string   `json:"source"`
	MessageID   string   `json:"messageId"`
	Destination []string `json:"destination"`
}

type Receipt struct {
	Action struct {
		Type     string `json:"type"`
		Encoding string `json:"encoding"`
	} `json:"action"`
}

// subscribeHost 只允许 AWS SNS 的确认地址
var subscribeHost = regexp.MustCompile(`^sns\.[a-z0-9-]+\.amazonaws\.com(\.cn)?$`)

// ValidateSubscribeURL rejects confirmation links that do not point at SNS.
func ValidateSubscribeURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSubscribeURL, err)
	}
	if u.Scheme != "https" || u.User != nil || u.Port() != "" || !subscribeHost.MatchString(u.Hostname()) {
		return fmt.Errorf("%w: %s", ErrInvalidSubscribeURL, u.Redacted())
	}
	return nil
}

func decodeNotification(message string) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal([]byte(message), &n); err != nil {
		return nil, fmt.Errorf("%w: notification: %v", ErrMalformed, err)
	}
	return &n, nil
}

// RawContent returns the RFC 822 bytes, decoding them when the SNS action
// was configured with BASE64 encoding.
func (n *Notification) RawContent() ([]byte, error) {
	if strings.TrimSpace(n.Content) == "" {
		return nil, fmt.Errorf("%w: notification has no content", ErrMalformed)
	}
	if strings.EqualFold(n.Receipt.Action.Encoding, "BASE64") {
		raw, err := base64.StdEncoding.DecodeString(n.Content)
		if err != nil {
			return nil, fmt.Errorf("%w: content: %v", ErrMalformed, err)
		}
		return raw, nil
	}
	return []byte(n.Content), nil
}

// Recipient is the first destination address.
func (n *Notification) Recipient() string {
	for _, d := range n.Mail.Destination {
		if d = strings.TrimSpace(d); d != "" {
			return d
		}
	}
	return ""
}

// ReceivedAt parses the SES timestamp, falling back to now.
func (n *Notification) ReceivedAt(now time.Time) time.Time {
	if t, err := time.Parse(time.RFC3339, n.Mail.Timestamp); err == nil {
		return t.UTC()
	}
	return now.UTC()
}
