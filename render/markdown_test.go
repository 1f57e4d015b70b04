package render

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (s *memStore) Put(_ context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[name] = append([]byte(nil), data...)
	return nil
}

func (s *memStore) Get(_ context.Context, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[name]
	if !ok {
		return nil, fmt.Errorf("artifact %s not found", name)
	}
	return data, nil
}

func TestHTML(t *testing.T) {
	out := string(HTML([]byte("# Title\n\nSome *emphasis*.")))

	if !strings.Contains(out, "<h1") || !strings.Contains(out, "Title") {
		t.Errorf("heading not rendered: %q", out)
	}
	if !strings.Contains(out, "<em>emphasis</em>") {
		t.Errorf("emphasis not rendered: %q", out)
	}
}

func TestHTMLSanitizesScripts(t *testing.T) {
	out := string(HTML([]byte("hello\n\n<script>alert(1)</script>")))

	if strings.Contains(out, "<script") {
		t.Errorf("script tag survived sanitization: %q", out)
	}
	if !strings.Contains(out, "hello") {
		t.Errorf("content lost: %q", out)
	}
}

func TestHTMLStoreRendersMarkdownArtifacts(t *testing.T) {
	inner := newMemStore()
	store := NewHTMLStore(inner)
	ctx := context.Background()

	if err := store.Put(ctx, "report.md", []byte("## Findings\n\ndetails")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	raw, err := store.Get(ctx, "report.md")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !strings.Contains(string(raw), "## Findings") {
		t.Errorf("original markdown not stored: %q", raw)
	}

	rendered, err := store.Get(ctx, "report.html")
	if err != nil {
		t.Fatalf("rendered sibling missing: %v", err)
	}
	if !strings.Contains(string(rendered), "<h2") {
		t.Errorf("sibling not rendered as HTML: %q", rendered)
	}
}

func TestHTMLStoreSkipsNonMarkdown(t *testing.T) {
	inner := newMemStore()
	store := NewHTMLStore(inner)
	ctx := context.Background()

	if err := store.Put(ctx, "trace.json", []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := store.Get(ctx, "trace.html"); err == nil {
		t.Error("unexpected rendered sibling for non-markdown artifact")
	}
}
