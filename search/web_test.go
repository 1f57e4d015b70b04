package search

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

const resultsPage = `<!DOCTYPE html>
<html><body>
<article class="result">
  <h3><a href="https://example.com/one">First result</a></h3>
  <p class="content">Snippet for the first result.</p>
</article>
<article class="result">
  <h3><a href="https://example.com/two">Second result</a></h3>
  <p class="content">  Snippet for the second result.  </p>
</article>
<article class="result">
  <h3><a href="https://example.com/three">Third result</a></h3>
  <p class="content">Snippet for the third result.</p>
</article>
</body></html>`

func newSearchServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "" {
			http.Error(w, "missing query", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, resultsPage)
	}))
}

func TestWebSearcher(t *testing.T) {
	server := newSearchServer(t)
	defer server.Close()

	searcher, err := NewWebSearcher(server.URL + "/search")
	if err != nil {
		t.Fatalf("NewWebSearcher failed: %v", err)
	}

	results, err := searcher.Search(context.Background(), "go scheduling", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Title != "First result" {
		t.Errorf("unexpected title: %q", results[0].Title)
	}
	if results[0].URL != "https://example.com/one" {
		t.Errorf("unexpected URL: %q", results[0].URL)
	}
	if results[1].Snippet != "Snippet for the second result." {
		t.Errorf("snippet not trimmed: %q", results[1].Snippet)
	}
}

func TestWebSearcherLimit(t *testing.T) {
	server := newSearchServer(t)
	defer server.Close()

	searcher, err := NewWebSearcher(server.URL + "/search")
	if err != nil {
		t.Fatalf("NewWebSearcher failed: %v", err)
	}

	results, err := searcher.Search(context.Background(), "go scheduling", 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}

func TestWebSearcherServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	searcher, err := NewWebSearcher(server.URL + "/search")
	if err != nil {
		t.Fatalf("NewWebSearcher failed: %v", err)
	}

	if _, err := searcher.Search(context.Background(), "anything", 5); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestWebSearcherRequiresEndpoint(t *testing.T) {
	if _, err := NewWebSearcher(""); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
}
