package enrich

import (
	"context"
	"fmt"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"

	"jobtracker/pkg/config"
)

// SearchResult is one ranked web-search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Searcher is the web-search capability.
type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// CustomSearch queries a Programmable Search Engine.
type CustomSearch struct {
	svc      *customsearch.Service
	engineID string
}

func NewCustomSearch(ctx context.Context, cfg config.SearchConfig, opts ...option.ClientOption) (*CustomSearch, error) {
	if cfg.APIKey != "" {
		opts = append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	}
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create search service: %w", err)
	}
	return &CustomSearch{svc: svc, engineID: cfg.EngineID}, nil
}

func (s *CustomSearch) Search(ctx context.Context, query string) ([]SearchResult, error) {
	res, err := s.svc.Cse.List().Q(query).Cx(s.engineID).Num(10).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("custom search: %w", err)
	}
	out := make([]SearchResult, 0, len(res.Items))
	for _, item := range res.Items {
		out = append(out, SearchResult{Title: item.Title, URL: item.Link, Snippet: item.Snippet})
	}
	return out, nil
}
