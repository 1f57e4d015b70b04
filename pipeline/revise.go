package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/draftforge/taskgraph/graph"
)

// RevisePipeline builds a write -> review -> revise loop. The reviewer
// routes each pass to "revise" or "approve"; the cycle guard forces
// approval after bound revise passes so an unsatisfiable reviewer can
// never loop forever.
//
// State fields: topic (in), draft, verdict, feedback (accumulated).
func RevisePipeline(collabs Collaborators, bound int) (*graph.Runnable, error) {
	if collabs.Generator == nil {
		return nil, fmt.Errorf("revise pipeline requires a Generator")
	}
	if bound < 1 {
		bound = 2
	}

	schema, err := graph.NewSchema(
		graph.FieldSpec{Name: "topic", Merge: graph.MergeOverwrite},
		graph.FieldSpec{Name: "draft", Merge: graph.MergeOverwrite},
		graph.FieldSpec{Name: "verdict", Merge: graph.MergeOverwrite},
		graph.FieldSpec{Name: "feedback", Merge: graph.MergeAppend},
	)
	if err != nil {
		return nil, err
	}

	g := graph.New(schema)

	g.AddStep(graph.Step{
		Name:   "write",
		Reads:  []string{"topic"},
		Writes: []string{"draft"},
		Func: func(ctx context.Context, view graph.StateView) (graph.StepResult, error) {
			draft, err := collabs.Generator.Generate(ctx,
				fmt.Sprintf("Write a document about %q.", view.String("topic")))
			if err != nil {
				return nil, fmt.Errorf("write draft: %w", err)
			}
			return graph.Update{"draft": draft}, nil
		},
	})

	g.AddStep(graph.Step{
		Name:        "review",
		Description: "judge the draft; a broken reviewer must not wedge the loop",
		Reads:       []string{"draft"},
		Writes:      []string{"verdict", "feedback"},
		Func: func(ctx context.Context, view graph.StateView) (graph.StepResult, error) {
			resp, err := collabs.Generator.Generate(ctx,
				"Review this draft. Answer APPROVE, or give revision feedback:\n"+view.String("draft"))
			if err != nil {
				// Substitute a default verdict rather than failing the run.
				return graph.Update{
					"verdict":  "approve",
					"feedback": []string{fmt.Sprintf("review unavailable: %v", err)},
				}, nil
			}
			if strings.Contains(strings.ToUpper(resp), "APPROVE") {
				return graph.Update{"verdict": "approve"}, nil
			}
			return graph.Update{
				"verdict":  "revise",
				"feedback": []string{resp},
			}, nil
		},
	})

	g.AddStep(graph.Step{
		Name:   "revise",
		Reads:  []string{"draft", "feedback"},
		Writes: []string{"draft"},
		Func: func(ctx context.Context, view graph.StateView) (graph.StepResult, error) {
			feedback, _ := view.Get("feedback")
			draft, err := collabs.Generator.Generate(ctx, fmt.Sprintf(
				"Revise this draft.\nDraft:\n%s\nFeedback:\n%v", view.String("draft"), feedback))
			if err != nil {
				return nil, fmt.Errorf("revise draft: %w", err)
			}
			return graph.Update{"draft": draft}, nil
		},
	})

	g.AddStep(graph.Step{
		Name:   "finalize",
		Reads:  []string{"draft"},
		Writes: []string{"verdict"},
		Func: func(ctx context.Context, view graph.StateView) (graph.StepResult, error) {
			if collabs.Artifacts != nil {
				if err := collabs.Artifacts.Put(ctx, "document.md", []byte(view.String("draft"))); err != nil {
					return nil, fmt.Errorf("store document: %w", err)
				}
			}
			return graph.Update{"verdict": "published"}, nil
		},
	})

	g.SetEntryPoint("write")
	g.AddEdge("write", "review")
	g.AddConditionalEdge("review", graph.Router{
		Labels: []string{"revise", "approve"},
		Route: func(ctx context.Context, view graph.StateView) string {
			if view.String("verdict") == "revise" {
				return "revise"
			}
			return "approve"
		},
	}, map[string]string{"revise": "revise", "approve": "finalize"})
	g.AddEdge("revise", "review")
	g.AddEdge("finalize", graph.END)
	g.AddCycle("review", bound, "approve")

	return g.Compile()
}
