// Package adapter bridges external LLM frameworks to the pipeline
// collaborator contracts.
package adapter

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/draftforge/taskgraph/pipeline"
)

// LangChainGenerator wraps a langchaingo model as a pipeline Generator,
// so any provider langchaingo supports can drive a pipeline without a
// dedicated adapter.
type LangChainGenerator struct {
	llm llms.Model
}

// NewLangChainGenerator wraps model. Call options such as temperature
// or max tokens are configured on the model itself.
func NewLangChainGenerator(model llms.Model) *LangChainGenerator {
	return &LangChainGenerator{llm: model}
}

// Generate sends the prompt as a single-turn completion.
func (g *LangChainGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.llm == nil {
		return "", fmt.Errorf("langchain generator has no model")
	}
	out, err := llms.GenerateFromSinglePrompt(ctx, g.llm, prompt)
	if err != nil {
		return "", fmt.Errorf("langchain generate: %w", err)
	}
	return out, nil
}

var _ pipeline.Generator = (*LangChainGenerator)(nil)
