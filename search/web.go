// Package search provides web search collaborators for pipelines.
package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/draftforge/taskgraph/pipeline"
)

// WebSearcher queries a self-hosted metasearch instance (SearxNG result
// markup) and scrapes the ranked results off its HTML response. It
// implements pipeline.Searcher.
type WebSearcher struct {
	BaseURL string
	Client  *http.Client
	Lang    string
}

type WebOption func(*WebSearcher)

// WithClient sets the HTTP client used for requests.
func WithClient(client *http.Client) WebOption {
	return func(w *WebSearcher) {
		w.Client = client
	}
}

// WithLang sets the language code sent with each query (e.g. "en").
func WithLang(lang string) WebOption {
	return func(w *WebSearcher) {
		w.Lang = lang
	}
}

// NewWebSearcher creates a WebSearcher against baseURL, which must be
// the search endpoint itself (e.g. "https://searx.example.com/search").
func NewWebSearcher(baseURL string, opts ...WebOption) (*WebSearcher, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("search endpoint is required")
	}

	w := &WebSearcher{
		BaseURL: baseURL,
		Client:  &http.Client{},
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Search runs the query and returns up to limit results in page order.
func (w *WebSearcher) Search(ctx context.Context, query string, limit int) ([]pipeline.SearchResult, error) {
	if limit < 1 {
		limit = 10
	}

	params := url.Values{}
	params.Set("q", query)
	if w.Lang != "" {
		params.Set("language", w.Lang)
	}

	reqURL := fmt.Sprintf("%s?%s", w.BaseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := w.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search endpoint returned status: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	var results []pipeline.SearchResult
	doc.Find("article.result, .result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		link := s.Find("h3 a").First()
		href, ok := link.Attr("href")
		if !ok {
			return true
		}

		results = append(results, pipeline.SearchResult{
			Title:   strings.TrimSpace(link.Text()),
			URL:     href,
			Snippet: strings.TrimSpace(s.Find("p.content").First().Text()),
		})
		return len(results) < limit
	})

	return results, nil
}

var _ pipeline.Searcher = (*WebSearcher)(nil)
