// Package render loads job-posting pages and extracts their visible text.
package render

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

var (
	ErrSessionClosed = errors.New("render: session closed")
	ErrNoPage        = errors.New("render: no page open")
	// ErrBlockedAddress is returned when a page resolves to a non-public address.
	ErrBlockedAddress = errors.New("render: address not allowed")
)

// DefaultSelectors are tried in order before falling back to the whole page.
var DefaultSelectors = []string{
	"[data-automation-id='jobPostingDescription']",
	"#job-description",
	".job-description",
	".job__description",
	"#content .job-post",
	"div[data-qa='job-description']",
	".section-wrapper.page-full-width",
	".posting-page",
	"[class*='descriptionText']",
	"article",
	"main",
}

// Renderer hands out page sessions. Every acquired session must be closed.
type Renderer interface {
	Acquire(ctx context.Context) (Session, error)
}

// Session is a single-owner page handle.
type Session interface {
	Open(ctx context.Context, url string) error
	Text() string
	Query(selector string) string
	Close() error
}

type Options struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	UserAgent         string
	// AllowPrivateNetworks disables the public-address check. Tests only.
	AllowPrivateNetworks bool
}

const maxRedirects = 5

// 100.64.0.0/10 (carrier-grade NAT) is not covered by netip.Addr.IsPrivate.
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// blockedIP reports whether addr is loopback, private, link-local, multicast or unspecified.
func blockedIP(addr netip.Addr) bool {
	addr = addr.Unmap()
	return !addr.IsValid() ||
		addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() ||
		addr.IsMulticast() ||
		addr.IsUnspecified() ||
		sharedAddressSpace.Contains(addr)
}

// dialControl runs after DNS resolution, so it sees the address actually dialed.
func dialControl(_, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, address)
	}
	if blockedIP(ap.Addr()) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, ap.Addr())
	}
	return nil
}

func newHTTPClient(opts Options) *http.Client {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	if !opts.AllowPrivateNetworks {
		dialer.Control = dialControl
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	// 代理会绕过拨号检查
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext

	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("render: stopped after %d redirects", maxRedirects)
			}
			if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
				return fmt.Errorf("%w: redirect to scheme %q", ErrBlockedAddress, req.URL.Scheme)
			}
			return nil
		},
	}
}

// HTTPRenderer fetches server-rendered HTML and queries it with goquery.
type HTTPRenderer struct {
	client    *http.Client
	limiter   *HostLimiter
	userAgent string
	logger    *zap.Logger
	open      atomic.Int64
}

func NewHTTPRenderer(opts Options, logger *zap.Logger) *HTTPRenderer {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0 (compatible; jobtracker/1.0)"
	}
	return &HTTPRenderer{
		client:    newHTTPClient(opts),
		limiter:   NewHostLimiter(opts.RequestsPerSecond, 1),
		userAgent: opts.UserAgent,
		logger:    logger,
	}
}

func (r *HTTPRenderer) Acquire(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.open.Add(1)
	return &httpSession{r: r}, nil
}

// OpenSessions is the number of acquired, not yet closed sessions.
func (r *HTTPRenderer) OpenSessions() int64 {
	return r.open.Load()
}

type httpSession struct {
	r      *HTTPRenderer
	mu     sync.Mutex
	doc    *goquery.Document
	closed bool
}

func (s *httpSession) Open(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	if err := s.r.limiter.WaitURL(ctx, url); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("render: build request: %w", err)
	}
	req.Header.Set("User-Agent", s.r.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	res, err := s.r.client.Do(req)
	if err != nil {
		return fmt.Errorf("render: get %s: %w", url, err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return fmt.Errorf("render: %s returned status %d", url, res.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return fmt.Errorf("render: parse html: %w", err)
	}
	doc.Find("script, style, noscript, template").Remove()
	s.doc = doc

	s.r.logger.Debug("Page loaded", zap.String("url", url))
	return nil
}

func (s *httpSession) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.doc == nil {
		return ""
	}
	body := s.doc.Find("body")
	if body.Length() == 0 {
		return cleanText(s.doc.Text())
	}
	return cleanText(body.Text())
}

func (s *httpSession) Query(selector string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.doc == nil {
		return ""
	}
	return cleanText(s.doc.Find(selector).First().Text())
}

// Close is idempotent.
func (s *httpSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.doc = nil
	s.r.open.Add(-1)
	return nil
}

// WithSession acquires a session, runs fn and always closes the session.
func WithSession(ctx context.Context, r Renderer, fn func(Session) error) (err error) {
	s, err := r.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("render: acquire session: %w", err)
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(s)
}

// ExtractDescription returns the text of the first selector whose text is
// longer than minLen, else the whole page text.
func ExtractDescription(s Session, selectors []string, minLen int) string {
	for _, sel := range selectors {
		if text := s.Query(sel); len(text) > minLen {
			return text
		}
	}
	return s.Text()
}

// cleanText collapses whitespace runs while keeping line structure.
func cleanText(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
