// Package pipeline provides prebuilt document-generation graph topologies
// on top of the engine: per-topic research with a fan-out/aggregate join,
// a bounded write/review/revise loop, and a plan/approve/execute workflow
// with a human approval gate.
package pipeline

import "context"

// SearchResult is one ranked hit from a Searcher.
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
}

// Generator produces text from a prompt. LLM-backed in production;
// pipelines treat it as a black box.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Searcher retrieves ranked results for a query.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// Sandbox executes a command or snippet and returns its output.
type Sandbox interface {
	Exec(ctx context.Context, command string) (string, error)
}

// ArtifactStore persists named artifacts produced by a pipeline.
type ArtifactStore interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
}

// Collaborators bundles the external services a pipeline may call.
// Generator is required by every pipeline; the rest are optional and the
// steps that would use a missing collaborator degrade or skip.
type Collaborators struct {
	Generator Generator
	Searcher  Searcher
	Sandbox   Sandbox
	Artifacts ArtifactStore
}
