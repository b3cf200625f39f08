// Package imapbox implements mailbox.Provider over IMAP.
//
// IMAP search cannot express the provider query grammar, so only the
// after:<epoch> bound is applied server-side; callers re-check every
// message with the local filter predicate.
package imapbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/jhillyerd/enmime"
	"go.uber.org/zap"

	"jobtracker/internal/mailbox"
	"jobtracker/pkg/config"
)

const pageSize = 100

var afterPattern = regexp.MustCompile(`after:(\d+)`)

type Provider struct {
	cfg    config.MailboxConfig
	logger *zap.Logger

	mu     sync.Mutex
	client *imapclient.Client
	// listing holds the UIDs of the last search, newest first.
	listing []imap.UID
}

func NewProvider(cfg config.MailboxConfig, logger *zap.Logger) *Provider {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	return &Provider{cfg: cfg, logger: logger}
}

// connect dials and selects the mailbox read-only. Caller holds mu.
func (p *Provider) connect() error {
	if p.client != nil {
		return nil
	}
	if p.cfg.IMAPAddr == "" {
		return errors.New("imap addr is required")
	}
	if p.cfg.Username == "" || p.cfg.Password == "" {
		return errors.New("imap username/password is required")
	}

	host, _, _ := strings.Cut(p.cfg.IMAPAddr, ":")
	c, err := imapclient.DialTLS(p.cfg.IMAPAddr, &imapclient.Options{
		TLSConfig: &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host},
	})
	if err != nil {
		return fmt.Errorf("imap dial tls: %w", err)
	}
	if err := c.Login(p.cfg.Username, p.cfg.Password).Wait(); err != nil {
		_ = c.Close()
		return fmt.Errorf("imap login: %w", err)
	}
	if _, err := c.Select(p.cfg.Mailbox, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		_ = c.Close()
		return fmt.Errorf("imap select %s: %w", p.cfg.Mailbox, err)
	}

	p.logger.Info("Connected to IMAP server",
		zap.String("addr", p.cfg.IMAPAddr),
		zap.String("mailbox", p.cfg.Mailbox),
	)
	p.client = c
	return nil
}

func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	_ = p.client.Logout().Wait()
	err := p.client.Close()
	p.client = nil
	return err
}

// ListMessageIDs searches on the first page and serves later pages from
// the cached result. The page token is the offset into that result.
func (p *Provider) ListMessageIDs(ctx context.Context, query, pageToken string) (mailbox.Page, error) {
	if err := ctx.Err(); err != nil {
		return mailbox.Page{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if pageToken == "" {
		if err := p.connect(); err != nil {
			return mailbox.Page{}, err
		}
		criteria := &imap.SearchCriteria{}
		if after, ok := ParseAfter(query); ok {
			criteria.Since = after
		}
		data, err := p.client.UIDSearch(criteria, nil).Wait()
		if err != nil {
			return mailbox.Page{}, fmt.Errorf("imap uid search: %w", err)
		}
		uids := data.AllUIDs()
		sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })
		p.listing = uids
	}

	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil || n < 0 || n > len(p.listing) {
			return mailbox.Page{}, fmt.Errorf("imap: invalid page token %q", pageToken)
		}
		offset = n
	}
	return paginate(p.listing, offset, pageSize), nil
}

func paginate(uids []imap.UID, offset, size int) mailbox.Page {
	end := offset + size
	if end > len(uids) {
		end = len(uids)
	}
	page := mailbox.Page{IDs: make([]string, 0, end-offset)}
	for _, uid := range uids[offset:end] {
		page.IDs = append(page.IDs, strconv.FormatUint(uint64(uid), 10))
	}
	if end < len(uids) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page
}

func (p *Provider) GetMessage(ctx context.Context, id string, format mailbox.Format) (*mailbox.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", mailbox.ErrNotFound, id)
	}

	section := &imap.FetchItemBodySection{Peek: true}
	if format == mailbox.FormatMetadata {
		section.Specifier = imap.PartSpecifierHeader
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connect(); err != nil {
		return nil, err
	}

	bufs, err := p.client.Fetch(imap.UIDSetNum(imap.UID(n)), &imap.FetchOptions{
		UID:          true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{section},
	}).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap fetch %s: %w", id, err)
	}
	if len(bufs) == 0 {
		return nil, fmt.Errorf("%w: %s", mailbox.ErrNotFound, id)
	}

	buf := bufs[0]
	msg, err := ParseRaw(buf.FindBodySection(section))
	if err != nil {
		return nil, fmt.Errorf("imap parse %s: %w", id, err)
	}
	msg.ID = id
	if !buf.InternalDate.IsZero() {
		msg.InternalDate = buf.InternalDate.UnixMilli()
	}
	if format == mailbox.FormatMetadata {
		msg.Payload = nil
	}
	return msg, nil
}

// ParseAfter extracts the after:<epoch> bound from a query.
func ParseAfter(query string) (time.Time, bool) {
	m := afterPattern.FindStringSubmatch(query)
	if m == nil {
		return time.Time{}, false
	}
	secs, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(secs, 0).UTC(), true
}

// ParseRaw turns RFC 822 bytes into a message snapshot.
func ParseRaw(raw []byte) (*mailbox.Message, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	msg := &mailbox.Message{
		From:    env.GetHeader("From"),
		To:      env.GetHeader("To"),
		Subject: env.GetHeader("Subject"),
		Date:    mailbox.ParseDate(env.GetHeader("Date")),
		ThreadID: ThreadKey(
			env.GetHeader("References"),
			env.GetHeader("In-Reply-To"),
			env.GetHeader("Message-Id"),
			env.GetHeader("Subject"),
		),
		HTML: env.HTML,
	}
	if env.Root != nil {
		msg.Payload = convertPart(env.Root)
	}
	return msg, nil
}

var replyPrefix = regexp.MustCompile(`(?i)^\s*((re|fw|fwd)\s*:\s*)+`)

// ThreadKey is the root message id of the reply chain, or the normalized
// subject when the message carries no ids at all.
func ThreadKey(references, inReplyTo, messageID, subject string) string {
	if f := strings.Fields(references); len(f) > 0 {
		return f[0]
	}
	if f := strings.Fields(inReplyTo); len(f) > 0 {
		return f[0]
	}
	if id := strings.TrimSpace(messageID); id != "" {
		return id
	}
	return strings.ToLower(strings.TrimSpace(replyPrefix.ReplaceAllString(subject, "")))
}

func convertPart(ep *enmime.Part) *mailbox.Part {
	part := &mailbox.Part{
		MimeType:   ep.ContentType,
		Filename:   ep.FileName,
		Attachment: strings.EqualFold(ep.Disposition, "attachment"),
		Body:       ep.Content,
	}
	for child := ep.FirstChild; child != nil; child = child.NextSibling {
		part.Parts = append(part.Parts, convertPart(child))
	}
	return part
}
