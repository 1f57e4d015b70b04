package graph

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftforge/taskgraph/store/memory"
)

func researchSchema(t *testing.T) *Schema {
	t.Helper()
	schema, err := NewSchema(
		FieldSpec{Name: "topics", Merge: MergeOverwrite},
		FieldSpec{Name: "findings", Merge: MergeUnion},
		FieldSpec{Name: "log", Merge: MergeAppend},
		FieldSpec{Name: "success_count", Merge: MergeOverwrite},
	)
	require.NoError(t, err)
	return schema
}

// buildResearchGraph fans research out over the configured topics and joins
// at an aggregate step. delay staggers instance completion so slower
// earlier instances expose any completion-order dependence in the merge.
func buildResearchGraph(t *testing.T, delay func(topic string) time.Duration, fail map[string]bool) *Runnable {
	t.Helper()
	schema := researchSchema(t)
	g := New(schema)

	g.AddStep(Step{
		Name:   "plan",
		Reads:  []string{"topics"},
		Writes: []string{"log"},
		Func: func(ctx context.Context, view StateView) (StepResult, error) {
			topics, _ := view.Get("topics")
			var inputs []map[string]any
			for _, topic := range topics.([]string) {
				inputs = append(inputs, map[string]any{"topic": topic})
			}
			return FanOut{Target: "research", Inputs: inputs}, nil
		},
	})
	g.AddStep(Step{
		Name:   "research",
		Writes: []string{"findings", "log"},
		Func: func(ctx context.Context, view StateView) (StepResult, error) {
			topic := view.String("topic")
			if fail[topic] {
				return nil, fmt.Errorf("source unavailable for %s", topic)
			}
			if delay != nil {
				select {
				case <-time.After(delay(topic)):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			return Update{
				"findings": map[string]any{topic: "summary of " + topic},
				"log":      []string{"researched " + topic},
			}, nil
		},
	})
	g.AddStep(Step{
		Name:   "aggregate",
		Reads:  []string{"findings"},
		Writes: []string{"success_count"},
		Func: func(ctx context.Context, view StateView) (StepResult, error) {
			findings, _ := view.Get("findings")
			return Update{"success_count": len(findings.(map[string]any))}, nil
		},
	})

	g.SetEntryPoint("plan")
	g.AddFanOutEdge("plan", "aggregate")
	g.AddEdge("aggregate", END)

	runnable, err := g.Compile()
	require.NoError(t, err)
	return runnable
}

func TestFanOutDeterministicMerge(t *testing.T) {
	// C finishes first, A last; the merged log must still follow input
	// order A, B, C.
	delays := map[string]time.Duration{
		"A": 60 * time.Millisecond,
		"B": 30 * time.Millisecond,
		"C": 5 * time.Millisecond,
	}
	runnable := buildResearchGraph(t, func(topic string) time.Duration { return delays[topic] }, nil)

	exec := NewExecutor(runnable, Options{})
	outcome, err := exec.Run(context.Background(), "run-fanout", State{"topics": []string{"A", "B", "C"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"researched A", "researched B", "researched C"}, outcome.Final["log"])
	assert.Equal(t, map[string]any{
		"A": "summary of A",
		"B": "summary of B",
		"C": "summary of C",
	}, outcome.Final["findings"])
	assert.Equal(t, 3, outcome.Final["success_count"])
}

func TestFanOutFailureMergesNothing(t *testing.T) {
	st := memory.NewMemoryCheckpointStore()
	runnable := buildResearchGraph(t, nil, map[string]bool{"B": true})

	exec := NewExecutor(runnable, Options{Store: st})
	_, err := exec.Run(context.Background(), "run-fanout-fail", State{"topics": []string{"A", "B", "C"}})
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)

	// No sibling's update may have been merged or checkpointed.
	cps, err := st.List(context.Background(), "run-fanout-fail")
	require.NoError(t, err)
	assert.Empty(t, cps)
}

func TestFanOutWithoutDeclaredEdge(t *testing.T) {
	schema := researchSchema(t)
	g := New(schema)

	g.AddStep(Step{
		Name: "rogue",
		Func: func(ctx context.Context, view StateView) (StepResult, error) {
			return FanOut{Target: "rogue", Inputs: []map[string]any{{}}}, nil
		},
	})
	g.SetEntryPoint("rogue")
	g.AddEdge("rogue", END)

	runnable, err := g.Compile()
	require.NoError(t, err)

	_, err = NewExecutor(runnable, Options{}).Run(context.Background(), "run-rogue", nil)
	requireGraphError(t, err, "NO_FAN_OUT_EDGE")
}

func TestOverwriteConflictInCohort(t *testing.T) {
	schema := researchSchema(t)
	g := New(schema)

	g.AddStep(Step{
		Name: "split",
		Func: func(ctx context.Context, view StateView) (StepResult, error) {
			return FanOut{Target: "claim", Inputs: []map[string]any{
				{"n": 1}, {"n": 2},
			}}, nil
		},
	})
	g.AddStep(Step{
		Name:   "claim",
		Writes: []string{"success_count"},
		Func: func(ctx context.Context, view StateView) (StepResult, error) {
			return Update{"success_count": view.Int("n")}, nil
		},
	})
	g.AddStep(noopResearchStep("join"))
	g.SetEntryPoint("split")
	g.AddFanOutEdge("split", "join")
	g.AddEdge("join", END)

	runnable, err := g.Compile()
	require.NoError(t, err)

	_, err = NewExecutor(runnable, Options{}).Run(context.Background(), "run-conflict", nil)
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Contains(t, runErr.Message, "overwrite conflict")
	assert.Contains(t, runErr.Message, "success_count")
}

func noopResearchStep(name string) Step {
	return Step{
		Name: name,
		Func: func(ctx context.Context, view StateView) (StepResult, error) {
			return Update{}, nil
		},
	}
}

func TestStaticParallelBranches(t *testing.T) {
	schema := researchSchema(t)
	g := New(schema)

	g.AddStep(noopResearchStep("fork"))
	g.AddStep(Step{
		Name:   "left",
		Writes: []string{"log"},
		Func: func(ctx context.Context, view StateView) (StepResult, error) {
			time.Sleep(20 * time.Millisecond)
			return Update{"log": []string{"left"}}, nil
		},
	})
	g.AddStep(Step{
		Name:   "right",
		Writes: []string{"log"},
		Func: func(ctx context.Context, view StateView) (StepResult, error) {
			return Update{"log": []string{"right"}}, nil
		},
	})
	g.AddStep(noopResearchStep("join"))
	g.SetEntryPoint("fork")
	g.AddEdge("fork", "left")
	g.AddEdge("fork", "right")
	g.AddEdge("left", "join")
	g.AddEdge("right", "join")
	g.AddEdge("join", END)

	runnable, err := g.Compile()
	require.NoError(t, err)

	// Branches join: "join" runs once, and updates merge in frontier
	// order (left before right) even though right finishes first.
	outcome, err := NewExecutor(runnable, Options{}).Run(context.Background(), "run-branches", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"left", "right"}, outcome.Final["log"])
}

func TestSuspendInsideCohortFails(t *testing.T) {
	schema := researchSchema(t)
	g := New(schema)

	g.AddStep(Step{
		Name: "split",
		Func: func(ctx context.Context, view StateView) (StepResult, error) {
			return FanOut{Target: "ask", Inputs: []map[string]any{{}, {}}}, nil
		},
	})
	g.AddStep(Step{
		Name: "ask",
		Func: func(ctx context.Context, view StateView) (StepResult, error) {
			return Suspend{Payload: "proceed?"}, nil
		},
	})
	g.AddStep(noopResearchStep("join"))
	g.SetEntryPoint("split")
	g.AddFanOutEdge("split", "join")
	g.AddEdge("join", END)

	runnable, err := g.Compile()
	require.NoError(t, err)

	_, err = NewExecutor(runnable, Options{}).Run(context.Background(), "run-cohort-suspend", nil)
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Contains(t, runErr.Message, "cannot suspend")
}
