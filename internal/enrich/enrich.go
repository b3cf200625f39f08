// Package enrich locates and summarizes the job posting behind an application email.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"jobtracker/internal/classifier"
	"jobtracker/internal/llm"
	"jobtracker/internal/render"
	"jobtracker/pkg/logger"
)

// Unknown is returned for company or title when extraction fails.
const Unknown = "unknown"

var (
	ErrNoResults = errors.New("enrich: no search results")
	ErrNoURL     = errors.New("enrich: model returned no usable url")
)

// Posting is the enrichment attached to a record. Empty fields mean a step failed.
type Posting struct {
	URL            string `json:"url"`
	RawDescription string `json:"raw_description"`
	Summary        string `json:"summary"`
}

type Enricher struct {
	model     llm.Completer
	retrier   *classifier.Retrier
	search    Searcher
	renderer  render.Renderer
	selectors []string
	minLen    int
	logger    *zap.Logger
}

type Option func(*Enricher)

func WithSelectors(selectors []string) Option {
	return func(e *Enricher) { e.selectors = selectors }
}

func WithMinTextLength(n int) Option {
	return func(e *Enricher) { e.minLen = n }
}

func NewEnricher(model llm.Completer, retrier *classifier.Retrier, search Searcher, renderer render.Renderer, logger *zap.Logger, opts ...Option) *Enricher {
	e := &Enricher{
		model:     model,
		retrier:   retrier,
		search:    search,
		renderer:  renderer,
		selectors: render.DefaultSelectors,
		minLen:    200,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractCompanyAndTitle never fails; it returns Unknown for whatever it
// could not determine.
func (e *Enricher) ExtractCompanyAndTitle(ctx context.Context, text string) (company, title string) {
	company, title = Unknown, Unknown
	err := e.retrier.Do(ctx, "extract", func(ctx context.Context) error {
		raw, err := e.model.Complete(ctx, llm.Request{
			Purpose: "extract",
			Prompt:  extractPrompt(text),
		})
		if err != nil {
			return err
		}
		c, t, ok := ParseCompanyTitle(raw)
		if !ok {
			return classifier.Permanent(fmt.Errorf("unexpected extraction format: %q", raw))
		}
		company, title = c, t
		return nil
	})
	if err != nil {
		logger.WithTrace(ctx, e.logger).Warn("Company/title extraction failed", zap.Error(err))
	}
	return company, title
}

// ParseCompanyTitle reads a COMPANY|TITLE answer.
func ParseCompanyTitle(raw string) (company, title string, ok bool) {
	var line string
	for _, l := range strings.Split(strings.ReplaceAll(raw, "```", ""), "\n") {
		l = strings.TrimSpace(l)
		if l != "" && !strings.EqualFold(l, "json") {
			line = l
			break
		}
	}
	company, title, found := strings.Cut(line, "|")
	if !found {
		return "", "", false
	}
	company, title = strings.TrimSpace(company), strings.TrimSpace(title)
	if company == "" {
		company = Unknown
	}
	if title == "" {
		title = Unknown
	}
	return company, title, true
}

func (e *Enricher) SearchPostings(ctx context.Context, company, title string) ([]SearchResult, error) {
	if e.search == nil {
		return nil, ErrNoResults
	}
	results, err := e.search.Search(ctx, fmt.Sprintf("%s %s job posting", company, title))
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ErrNoResults
	}
	return results, nil
}

func (e *Enricher) SelectBestURL(ctx context.Context, results []SearchResult, company, title string) (string, error) {
	if len(results) == 0 {
		return "", ErrNoResults
	}
	raw, err := e.model.Complete(ctx, llm.Request{
		Purpose:     "select_url",
		System:      selectSystem,
		Prompt:      selectPrompt(results, company, title),
		Temperature: 0.1,
	})
	if err != nil {
		return "", err
	}
	u := strings.Trim(strings.TrimSpace(classifier.StripFences(raw)), "<>\"'")
	if parsed, err := url.Parse(u); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", ErrNoURL
	}
	return u, nil
}

// Scrape loads url in a fresh render session and returns its description text.
func (e *Enricher) Scrape(ctx context.Context, pageURL string) (string, error) {
	if e.renderer == nil {
		return "", errors.New("enrich: no renderer configured")
	}
	var text string
	err := render.WithSession(ctx, e.renderer, func(s render.Session) error {
		if err := s.Open(ctx, pageURL); err != nil {
			return err
		}
		text = render.ExtractDescription(s, e.selectors, e.minLen)
		return nil
	})
	return text, err
}

func (e *Enricher) Summarize(ctx context.Context, raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", errors.New("enrich: nothing to summarize")
	}
	return e.model.Complete(ctx, llm.Request{
		Purpose:     "summarize",
		System:      summarizeSystem,
		Prompt:      summarizePrompt(raw),
		Temperature: 0.3,
	})
}

// Enrich runs search, select, scrape and summarize. Failures leave the
// remaining fields empty.
func (e *Enricher) Enrich(ctx context.Context, company, title string) Posting {
	log := logger.WithTrace(ctx, e.logger).With(zap.String("company", company), zap.String("title", title))
	var p Posting

	if company == Unknown || company == "" {
		return p
	}
	results, err := e.SearchPostings(ctx, company, title)
	if err != nil {
		log.Info("Posting search found nothing", zap.Error(err))
		return p
	}
	u, err := e.SelectBestURL(ctx, results, company, title)
	if err != nil {
		log.Info("No posting url selected", zap.Error(err))
		return p
	}
	p.URL = u

	p.RawDescription, err = e.Scrape(ctx, u)
	if err != nil {
		log.Warn("Scrape failed", zap.String("url", u), zap.Error(err))
		p.RawDescription = ""
		return p
	}
	p.Summary, err = e.Summarize(ctx, p.RawDescription)
	if err != nil {
		log.Warn("Summarize failed", zap.Error(err))
		p.Summary = ""
	}
	return p
}

// ScrapeAndSummarize backs the single-url scrape task. Unlike Enrich it
// reports a scrape failure to the caller.
func (e *Enricher) ScrapeAndSummarize(ctx context.Context, pageURL string) (Posting, error) {
	p := Posting{URL: pageURL}
	raw, err := e.Scrape(ctx, pageURL)
	if err != nil {
		return p, err
	}
	p.RawDescription = raw
	summary, err := e.Summarize(ctx, raw)
	if err != nil {
		logger.WithTrace(ctx, e.logger).Warn("Summarize failed", zap.String("url", pageURL), zap.Error(err))
		return p, nil
	}
	p.Summary = summary
	return p, nil
}
