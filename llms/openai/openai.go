// Package openai adapts the OpenAI chat completion API to the pipeline
// Generator contract.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/draftforge/taskgraph/graph"
	"github.com/draftforge/taskgraph/pipeline"
)

// Options configures the OpenAI generator.
type Options struct {
	// APIKey authenticates against the API.
	APIKey string
	// Model defaults to gpt-4o-mini.
	Model string
	// BaseURL overrides the API endpoint, e.g. for proxies or tests.
	BaseURL string
	// Temperature is passed through to the completion request.
	Temperature float32
	// ResponseSchema, when set, constrains completions to the given JSON
	// schema via structured output. SchemaName names it; defaults to
	// "response".
	ResponseSchema json.RawMessage
	SchemaName     string
}

// Generator implements pipeline.Generator on OpenAI chat completions.
// Transient API failures (throttling, server errors) surface as
// retryable StepErrors so the engine's retry policy applies.
type Generator struct {
	client      *goopenai.Client
	model       string
	temperature float32
	format      *goopenai.ChatCompletionResponseFormat
}

// New creates a Generator.
func New(opts Options) (*Generator, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	model := opts.Model
	if model == "" {
		model = goopenai.GPT4oMini
	}

	config := goopenai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		config.BaseURL = opts.BaseURL
	}

	g := &Generator{
		client:      goopenai.NewClientWithConfig(config),
		model:       model,
		temperature: opts.Temperature,
	}
	if len(opts.ResponseSchema) > 0 {
		name := opts.SchemaName
		if name == "" {
			name = "response"
		}
		g.format = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &goopenai.ChatCompletionResponseFormatJSONSchema{
				Name:   name,
				Schema: opts.ResponseSchema,
				Strict: true,
			},
		}
	}
	return g, nil
}

// Generate sends the prompt as a single user message and returns the
// first choice's content.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:          g.model,
		Temperature:    g.temperature,
		ResponseFormat: g.format,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", graph.NewStepError("empty_response", true, fmt.Errorf("no choices returned"))
	}
	return resp.Choices[0].Message.Content, nil
}

// classify maps API failures onto the engine's error taxonomy: rate
// limits and server errors are retryable, everything else is not.
func classify(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return graph.NewStepError("rate_limited", true, err)
		case apiErr.HTTPStatusCode >= 500:
			return graph.NewStepError("provider_error", true, err)
		default:
			return graph.NewStepError("request_rejected", false, err)
		}
	}
	return graph.NewStepError("transport", true, err)
}

var _ pipeline.Generator = (*Generator)(nil)
