package graph

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBoundedReviewCycle runs a write -> review -> revise loop whose
// reviewer never approves. The cycle guard must force the approve exit
// after the declared bound, yielding exactly bound revise passes.
func TestBoundedReviewCycle(t *testing.T) {
	schema, err := NewSchema(
		FieldSpec{Name: "draft", Merge: MergeOverwrite},
		FieldSpec{Name: "verdict", Merge: MergeOverwrite},
		FieldSpec{Name: "revisions", Merge: MergeAppend},
	)
	require.NoError(t, err)

	var writes, reviews, revises, finalizes atomic.Int32

	g := New(schema)
	g.AddStep(Step{
		Name:   "write",
		Reads:  []string{"revisions"},
		Writes: []string{"draft", "revisions"},
		Func: func(ctx context.Context, view StateView) (StepResult, error) {
			n := writes.Add(1)
			return Update{
				"draft":     fmt.Sprintf("draft v%d", n),
				"revisions": []string{fmt.Sprintf("pass %d", n)},
			}, nil
		},
	})
	g.AddStep(Step{
		Name:   "review",
		Reads:  []string{"draft"},
		Writes: []string{"verdict"},
		Func: func(ctx context.Context, view StateView) (StepResult, error) {
			reviews.Add(1)
			// Never satisfied; only the guard ends the loop.
			return Update{"verdict": "needs work"}, nil
		},
	})
	g.AddStep(Step{
		Name:   "revise",
		Reads:  []string{"draft"},
		Writes: []string{},
		Func: func(ctx context.Context, view StateView) (StepResult, error) {
			revises.Add(1)
			return Update{}, nil
		},
	})
	g.AddStep(Step{
		Name:   "finalize",
		Reads:  []string{"draft"},
		Writes: []string{"verdict"},
		Func: func(ctx context.Context, view StateView) (StepResult, error) {
			finalizes.Add(1)
			return Update{"verdict": "published"}, nil
		},
	})

	g.SetEntryPoint("write")
	g.AddEdge("write", "review")
	g.AddConditionalEdge("review", Router{
		Labels: []string{"revise", "approve"},
		Route: func(ctx context.Context, view StateView) string {
			return "revise"
		},
	}, map[string]string{"revise": "revise", "approve": "finalize"})
	g.AddEdge("revise", "write")
	g.AddEdge("finalize", END)
	g.AddCycle("review", 2, "approve")

	runnable, err := g.Compile()
	require.NoError(t, err)

	outcome, err := NewExecutor(runnable, Options{}).Run(context.Background(), "run-review", nil)
	require.NoError(t, err)

	assert.Equal(t, int32(2), revises.Load(), "guard allows exactly two revise passes")
	assert.Equal(t, int32(3), reviews.Load(), "review runs once per pass plus the forced exit")
	assert.Equal(t, int32(1), finalizes.Load())
	assert.Equal(t, "published", outcome.Final["verdict"])
	assert.Equal(t, []string{"pass 1", "pass 2", "pass 3"}, outcome.Final["revisions"])
}

// A self-looping step with bound k re-enters k times: the guard forces
// the exit on execution k+1.
func TestCycleGuardOnSelfLoop(t *testing.T) {
	schema, err := NewSchema(FieldSpec{Name: "n", Merge: MergeOverwrite})
	require.NoError(t, err)

	var runs atomic.Int32
	g := New(schema)
	g.AddStep(Step{
		Name:   "loop",
		Reads:  []string{"n"},
		Writes: []string{"n"},
		Func: func(ctx context.Context, view StateView) (StepResult, error) {
			return Update{"n": int(runs.Add(1))}, nil
		},
	})
	g.SetEntryPoint("loop")
	g.AddConditionalEdge("loop", Router{
		Labels: []string{"again", "done"},
		Route:  func(ctx context.Context, view StateView) string { return "again" },
	}, map[string]string{"again": "loop", "done": END})
	g.AddCycle("loop", 3, "done")

	runnable, err := g.Compile()
	require.NoError(t, err)

	outcome, err := NewExecutor(runnable, Options{}).Run(context.Background(), "run-loop", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(4), runs.Load())
	assert.Equal(t, 4, outcome.Final["n"])
}
