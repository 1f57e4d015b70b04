package adapter

import (
	"context"
	"errors"
	"testing"

	"github.com/tmc/langchaingo/llms"
)

// mockLLM is a mock implementation of llms.Model for testing
type mockLLM struct {
	response string
	err      error
	prompts  []string
}

func (m *mockLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m.prompts = append(m.prompts, messages[0].Parts[0].(llms.TextContent).Text)

	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{Content: m.response},
		},
	}, nil
}

func (m *mockLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func TestLangChainGenerator(t *testing.T) {
	llm := &mockLLM{response: "a draft paragraph"}
	gen := NewLangChainGenerator(llm)

	out, err := gen.Generate(context.Background(), "write a paragraph")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if out != "a draft paragraph" {
		t.Errorf("expected %q, got %q", "a draft paragraph", out)
	}
	if len(llm.prompts) != 1 || llm.prompts[0] != "write a paragraph" {
		t.Errorf("unexpected prompts: %v", llm.prompts)
	}
}

func TestLangChainGeneratorError(t *testing.T) {
	wantErr := errors.New("provider down")
	gen := NewLangChainGenerator(&mockLLM{err: wantErr})

	_, err := gen.Generate(context.Background(), "write a paragraph")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, wantErr) {
		t.Errorf("expected wrapped provider error, got %v", err)
	}
}

func TestLangChainGeneratorNilModel(t *testing.T) {
	gen := NewLangChainGenerator(nil)

	if _, err := gen.Generate(context.Background(), "anything"); err == nil {
		t.Fatal("expected error for nil model")
	}
}

func TestLangChainGeneratorCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := NewLangChainGenerator(&mockLLM{response: "unused"})
	if _, err := gen.Generate(ctx, "anything"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
