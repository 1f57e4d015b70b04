package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/draftforge/taskgraph/graph"
)

// ResearchPipeline builds a graph that researches every topic in
// parallel and integrates the findings into one report.
//
// Topology: plan fans one research instance out per topic; the cohort
// joins at aggregate, which counts successes; integrate asks the
// generator for a combined report and stores it as an artifact when an
// ArtifactStore is configured.
//
// State fields: topics ([]string, in), findings (map keyed by topic),
// sources (accumulated URLs), success_count, report.
func ResearchPipeline(collabs Collaborators) (*graph.Runnable, error) {
	if collabs.Generator == nil {
		return nil, fmt.Errorf("research pipeline requires a Generator")
	}

	schema, err := graph.NewSchema(
		graph.FieldSpec{Name: "topics", Merge: graph.MergeOverwrite},
		graph.FieldSpec{Name: "findings", Merge: graph.MergeUnion},
		graph.FieldSpec{Name: "sources", Merge: graph.MergeAppend},
		graph.FieldSpec{Name: "success_count", Merge: graph.MergeOverwrite},
		graph.FieldSpec{Name: "report", Merge: graph.MergeOverwrite},
	)
	if err != nil {
		return nil, err
	}

	g := graph.New(schema)

	g.AddStep(graph.Step{
		Name:        "plan",
		Description: "fan research out over the requested topics",
		Reads:       []string{"topics"},
		Func: func(ctx context.Context, view graph.StateView) (graph.StepResult, error) {
			topics, err := stringSlice(view, "topics")
			if err != nil {
				return nil, err
			}
			if len(topics) == 0 {
				return nil, fmt.Errorf("no topics to research")
			}
			inputs := make([]map[string]any, 0, len(topics))
			for _, topic := range topics {
				inputs = append(inputs, map[string]any{"topic": topic})
			}
			return graph.FanOut{Target: "research", Inputs: inputs}, nil
		},
	})

	g.AddStep(graph.Step{
		Name:        "research",
		Description: "search and summarize one topic",
		Writes:      []string{"findings", "sources"},
		Func: func(ctx context.Context, view graph.StateView) (graph.StepResult, error) {
			topic := view.String("topic")

			var snippets []string
			var urls []string
			if collabs.Searcher != nil {
				results, err := collabs.Searcher.Search(ctx, topic, 3)
				if err != nil {
					return nil, fmt.Errorf("search for %q: %w", topic, err)
				}
				for _, r := range results {
					snippets = append(snippets, r.Snippet)
					urls = append(urls, r.URL)
				}
			}

			prompt := fmt.Sprintf("Summarize the topic %q for a report.", topic)
			if len(snippets) > 0 {
				prompt += "\nSource material:\n" + strings.Join(snippets, "\n")
			}
			summary, err := collabs.Generator.Generate(ctx, prompt)
			if err != nil {
				return nil, fmt.Errorf("summarize %q: %w", topic, err)
			}

			return graph.Update{
				"findings": map[string]any{topic: summary},
				"sources":  urls,
			}, nil
		},
	})

	g.AddStep(graph.Step{
		Name:        "aggregate",
		Description: "count completed topics after the join",
		Reads:       []string{"findings"},
		Writes:      []string{"success_count"},
		Func: func(ctx context.Context, view graph.StateView) (graph.StepResult, error) {
			findings, _ := view.Get("findings")
			m, _ := findings.(map[string]any)
			return graph.Update{"success_count": len(m)}, nil
		},
	})

	g.AddStep(graph.Step{
		Name:        "integrate",
		Description: "combine findings into the final report",
		Reads:       []string{"topics", "findings"},
		Writes:      []string{"report"},
		Func: func(ctx context.Context, view graph.StateView) (graph.StepResult, error) {
			topics, err := stringSlice(view, "topics")
			if err != nil {
				return nil, err
			}
			findings, _ := view.Get("findings")
			m, _ := findings.(map[string]any)

			var b strings.Builder
			b.WriteString("Combine these findings into one coherent report:\n")
			for _, topic := range topics {
				if summary, ok := m[topic]; ok {
					fmt.Fprintf(&b, "## %s\n%v\n", topic, summary)
				}
			}
			report, err := collabs.Generator.Generate(ctx, b.String())
			if err != nil {
				return nil, fmt.Errorf("integrate report: %w", err)
			}
			if collabs.Artifacts != nil {
				if err := collabs.Artifacts.Put(ctx, "report.md", []byte(report)); err != nil {
					return nil, fmt.Errorf("store report: %w", err)
				}
			}
			return graph.Update{"report": report}, nil
		},
	})

	g.SetEntryPoint("plan")
	g.AddFanOutEdge("plan", "aggregate")
	g.AddEdge("aggregate", "integrate")
	g.AddEdge("integrate", graph.END)

	return g.Compile()
}

// stringSlice reads a field as []string, accepting []any from states that
// round-tripped through JSON.
func stringSlice(view graph.StateView, key string) ([]string, error) {
	val, ok := view.Get(key)
	if !ok {
		return nil, nil
	}
	switch v := val.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("field %s: expected strings, got %T", key, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("field %s: expected a string slice, got %T", key, val)
	}
}
