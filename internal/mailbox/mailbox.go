// Package mailbox lists, deduplicates and normalizes messages from a mail provider.
package mailbox

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by providers for an unknown message id.
var ErrNotFound = errors.New("mailbox: message not found")

type Format string

const (
	// FormatMetadata returns headers, thread id and internal date only.
	FormatMetadata Format = "metadata"
	FormatFull     Format = "full"
)

// Page is one page of a message listing.
type Page struct {
	IDs           []string
	NextPageToken string
}

// Part is a decoded MIME part.
type Part struct {
	MimeType   string
	Filename   string
	Attachment bool
	Body       []byte
	Parts      []*Part
}

// Message is a read-only snapshot of one mailbox message.
type Message struct {
	ID       string
	ThreadID string
	From     string
	To       string
	Subject  string
	Date     time.Time
	// InternalDate is the provider receive time in epoch milliseconds.
	InternalDate int64
	Body         string
	HTML         string
	Payload      *Part
}

// Content is the text handed to classification: subject first, then body.
func (m *Message) Content() string {
	if m.Body == "" {
		return m.Subject
	}
	return m.Subject + "\n" + m.Body
}

// Provider is the mail-access capability.
type Provider interface {
	ListMessageIDs(ctx context.Context, query, pageToken string) (Page, error)
	GetMessage(ctx context.Context, id string, format Format) (*Message, error)
}
