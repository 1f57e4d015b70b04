// Package graph implements a bounded task-graph execution engine for
// long-running document pipelines.
//
// A pipeline is declared as steps over a typed state schema, connected by
// fixed edges, label-routed conditional edges, fan-out edges, and bounded
// cycles. Compile validates the definition; an Executor then drives runs
// concurrently, merging parallel updates deterministically per the
// schema's field policies, checkpointing after every merge, and
// suspending or resuming runs at steps that wait on external input.
//
// Basic usage:
//
//	schema, _ := graph.NewSchema(
//		graph.FieldSpec{Name: "topic", Merge: graph.MergeOverwrite},
//		graph.FieldSpec{Name: "notes", Merge: graph.MergeAppend},
//	)
//	g := graph.New(schema)
//	g.AddStep(graph.Step{
//		Name:   "outline",
//		Reads:  []string{"topic"},
//		Writes: []string{"notes"},
//		Func: func(ctx context.Context, view graph.StateView) (graph.StepResult, error) {
//			return graph.Update{"notes": []any{"intro"}}, nil
//		},
//	})
//	g.SetEntryPoint("outline")
//	g.AddEdge("outline", graph.END)
//	runnable, _ := g.Compile()
//
//	exec := graph.NewExecutor(runnable, graph.Options{})
//	outcome, _ := exec.Run(ctx, "run-1", graph.State{"topic": "storage engines"})
package graph
