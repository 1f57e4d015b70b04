// Package render converts pipeline markdown artifacts to sanitized HTML.
package render

import (
	"context"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"

	"github.com/draftforge/taskgraph/pipeline"
)

// HTML renders markdown source to sanitized HTML. The output is safe
// to embed in a page unescaped.
func HTML(source []byte) []byte {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse(source)

	htmlFlags := html.CommonFlags | html.HrefTargetBlank
	renderer := html.NewRenderer(html.RendererOptions{Flags: htmlFlags})
	out := markdown.Render(doc, renderer)

	return bluemonday.UGCPolicy().SanitizeBytes(out)
}

// HTMLStore wraps an artifact store so every stored ".md" artifact also
// gets a rendered ".html" sibling.
type HTMLStore struct {
	inner pipeline.ArtifactStore
}

// NewHTMLStore wraps inner.
func NewHTMLStore(inner pipeline.ArtifactStore) *HTMLStore {
	return &HTMLStore{inner: inner}
}

// Put stores the artifact and, for markdown names, its HTML rendering.
func (s *HTMLStore) Put(ctx context.Context, name string, data []byte) error {
	if err := s.inner.Put(ctx, name, data); err != nil {
		return err
	}
	if base, ok := strings.CutSuffix(name, ".md"); ok {
		return s.inner.Put(ctx, base+".html", HTML(data))
	}
	return nil
}

// Get reads an artifact from the wrapped store.
func (s *HTMLStore) Get(ctx context.Context, name string) ([]byte, error) {
	return s.inner.Get(ctx, name)
}

var _ pipeline.ArtifactStore = (*HTMLStore)(nil)
