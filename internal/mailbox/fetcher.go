package mailbox

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Meta is the per-message information needed for thread dedup.
type Meta struct {
	ID           string
	ThreadID     string
	InternalDate int64
}

type Fetcher struct {
	provider Provider
	logger   *zap.Logger
	now      func() time.Time
}

func NewFetcher(provider Provider, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		provider: provider,
		logger:   logger,
		now:      time.Now,
	}
}

// WithAfter narrows query to messages received after t.
func WithAfter(query string, t *time.Time) string {
	if t == nil || t.IsZero() {
		return query
	}
	after := "after:" + strconv.FormatInt(t.Unix(), 10)
	if strings.TrimSpace(query) == "" {
		return after
	}
	return query + " " + after
}

// ListCandidateIDs follows every continuation token, then keeps only the
// newest message of each thread. Messages whose metadata cannot be read are skipped.
func (f *Fetcher) ListCandidateIDs(ctx context.Context, query string, after *time.Time) ([]string, error) {
	q := WithAfter(query, after)

	var ids []string
	token := ""
	seen := make(map[string]bool)
	for {
		page, err := f.provider.ListMessageIDs(ctx, q, token)
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		ids = append(ids, page.IDs...)
		if page.NextPageToken == "" {
			break
		}
		if seen[page.NextPageToken] {
			return nil, fmt.Errorf("list messages: page token %q repeated", page.NextPageToken)
		}
		seen[page.NextPageToken] = true
		token = page.NextPageToken
	}

	f.logger.Info("Listed candidate messages",
		zap.Int("count", len(ids)),
		zap.Bool("incremental", after != nil),
	)

	metas := make([]Meta, 0, len(ids))
	for _, id := range ids {
		m, err := f.provider.GetMessage(ctx, id, FormatMetadata)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			f.logger.Warn("Failed to read message metadata, skipping",
				zap.String("message_id", id),
				zap.Error(err),
			)
			continue
		}
		metas = append(metas, Meta{ID: id, ThreadID: m.ThreadID, InternalDate: m.InternalDate})
	}

	deduped := DedupThreads(metas)
	out := make([]string, len(deduped))
	for i, m := range deduped {
		out[i] = m.ID
	}
	return out, nil
}

// DedupThreads keeps the message with the greatest InternalDate per thread.
// Threads keep the order in which they were first seen; ties keep the earlier message.
// A message without a thread id is its own thread.
func DedupThreads(metas []Meta) []Meta {
	latest := make(map[string]int, len(metas))
	out := make([]Meta, 0, len(metas))
	for _, m := range metas {
		key := m.ThreadID
		if key == "" {
			key = "\x00" + m.ID
		}
		i, ok := latest[key]
		if !ok {
			latest[key] = len(out)
			out = append(out, m)
			continue
		}
		if m.InternalDate > out[i].InternalDate {
			out[i] = m
		}
	}
	return out
}

// FetchMessage pulls one full message and normalizes its headers, body and date.
func (f *Fetcher) FetchMessage(ctx context.Context, id string) (*Message, error) {
	m, err := f.provider.GetMessage(ctx, id, FormatFull)
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}

	Normalize(m, f.now())
	return m, nil
}

// Normalize strips folding from headers, fills the body from the MIME tree
// and defaults the date to the internal date, then to now.
func Normalize(m *Message, now time.Time) {
	m.From = cleanHeader(m.From)
	m.To = cleanHeader(m.To)
	m.Subject = cleanHeader(m.Subject)
	if m.Body == "" {
		m.Body = ExtractBody(m.Payload)
	}
	if m.Date.IsZero() {
		if m.InternalDate > 0 {
			m.Date = time.UnixMilli(m.InternalDate).UTC()
		} else {
			m.Date = now.UTC()
		}
	}
}

func cleanHeader(s string) string {
	return strings.NewReplacer("\n", "", "\r", "", "\t", "").Replace(s)
}
