package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/draftforge/taskgraph/graph"
)

// PlanOptions tunes the plan/approve/execute workflow.
type PlanOptions struct {
	// MaxItems bounds the execute loop. Defaults to 16.
	MaxItems int
}

// PlanPipeline builds a plan -> approval gate -> execute loop.
//
// plan drafts a list of work items, then the run suspends with the plan
// as payload. Resuming with "yes" executes the items one per pass; any
// other value abandons the run at the gate. Items prefixed "run:" go to
// the Sandbox; everything else goes to the Generator.
//
// State fields: goal (in), plan, approval, cursor, results (accumulated),
// summary.
func PlanPipeline(collabs Collaborators, opts PlanOptions) (*graph.Runnable, error) {
	if collabs.Generator == nil {
		return nil, fmt.Errorf("plan pipeline requires a Generator")
	}
	maxItems := opts.MaxItems
	if maxItems < 1 {
		maxItems = 16
	}

	schema, err := graph.NewSchema(
		graph.FieldSpec{Name: "goal", Merge: graph.MergeOverwrite},
		graph.FieldSpec{Name: "plan", Merge: graph.MergeOverwrite},
		graph.FieldSpec{Name: "approval", Merge: graph.MergeOverwrite},
		graph.FieldSpec{Name: "cursor", Merge: graph.MergeOverwrite},
		graph.FieldSpec{Name: "results", Merge: graph.MergeAppend},
		graph.FieldSpec{Name: "summary", Merge: graph.MergeOverwrite},
	)
	if err != nil {
		return nil, err
	}

	g := graph.New(schema)

	g.AddStep(graph.Step{
		Name:   "plan",
		Reads:  []string{"goal"},
		Writes: []string{"plan", "cursor"},
		Func: func(ctx context.Context, view graph.StateView) (graph.StepResult, error) {
			resp, err := collabs.Generator.Generate(ctx,
				fmt.Sprintf("Plan the steps to accomplish: %s\nOne item per line.", view.String("goal")))
			if err != nil {
				return nil, fmt.Errorf("draft plan: %w", err)
			}
			var items []string
			for _, line := range strings.Split(resp, "\n") {
				if line = strings.TrimSpace(line); line != "" {
					items = append(items, line)
				}
			}
			if len(items) == 0 {
				return nil, fmt.Errorf("planner produced no items")
			}
			return graph.Update{"plan": items, "cursor": 0}, nil
		},
	})

	g.AddStep(graph.Step{
		Name:        "approve",
		Description: "hold the run until a human signs the plan off",
		Reads:       []string{"plan"},
		Writes:      []string{"approval"},
		Func: func(ctx context.Context, view graph.StateView) (graph.StepResult, error) {
			plan, _ := view.Get("plan")
			return graph.Suspend{Payload: plan}, nil
		},
	})

	g.AddStep(graph.Step{
		Name:   "execute",
		Reads:  []string{"plan", "cursor"},
		Writes: []string{"cursor", "results"},
		Func: func(ctx context.Context, view graph.StateView) (graph.StepResult, error) {
			items, err := stringSlice(view, "plan")
			if err != nil {
				return nil, err
			}
			cursor := view.Int("cursor")
			if cursor >= len(items) {
				return graph.Update{}, nil
			}
			item := items[cursor]

			var output string
			if cmd, ok := strings.CutPrefix(item, "run:"); ok && collabs.Sandbox != nil {
				output, err = collabs.Sandbox.Exec(ctx, strings.TrimSpace(cmd))
			} else {
				output, err = collabs.Generator.Generate(ctx, "Carry out this step: "+item)
			}
			if err != nil {
				return nil, fmt.Errorf("execute %q: %w", item, err)
			}

			return graph.Update{
				"cursor":  cursor + 1,
				"results": []string{output},
			}, nil
		},
	})

	g.AddStep(graph.Step{
		Name:   "summarize",
		Reads:  []string{"goal", "results"},
		Writes: []string{"summary"},
		Func: func(ctx context.Context, view graph.StateView) (graph.StepResult, error) {
			results, _ := view.Get("results")
			summary, err := collabs.Generator.Generate(ctx,
				fmt.Sprintf("Summarize the outcome of %q given:\n%v", view.String("goal"), results))
			if err != nil {
				return nil, fmt.Errorf("summarize: %w", err)
			}
			return graph.Update{"summary": summary}, nil
		},
	})

	g.SetEntryPoint("plan")
	g.AddEdge("plan", "approve")
	g.AddConditionalEdge("approve", graph.Router{
		Labels: []string{"proceed", "abort"},
		Route: func(ctx context.Context, view graph.StateView) string {
			if strings.EqualFold(view.String("approval"), "yes") {
				return "proceed"
			}
			return "abort"
		},
	}, map[string]string{"proceed": "execute", "abort": graph.END})
	g.AddConditionalEdge("execute", graph.Router{
		Labels: []string{"continue", "done"},
		Route: func(ctx context.Context, view graph.StateView) string {
			items, err := stringSlice(view, "plan")
			if err != nil || view.Int("cursor") >= len(items) {
				return "done"
			}
			return "continue"
		},
	}, map[string]string{"continue": "execute", "done": "summarize"})
	g.AddCycle("execute", maxItems, "done")
	g.AddEdge("summarize", graph.END)

	return g.Compile()
}
