// TaskGraph - Durable Task-Graph Execution for Document Pipelines in Go
//
// TaskGraph is a graph-based execution engine for long-running,
// LLM-driven document workflows. A workflow is declared as a schema of
// merge-policied state fields plus named steps wired by fixed,
// conditional, and fan-out edges; the engine runs it with deterministic
// parallel merges, bounded cycles, per-step retries, durable
// checkpoints, and first-class suspend/resume for human approval gates.
//
// # Quick Start
//
// Install the package:
//
//	go get github.com/draftforge/taskgraph
//
// Basic example:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//
//		"github.com/draftforge/taskgraph/graph"
//	)
//
//	func main() {
//		schema, _ := graph.NewSchema(
//			graph.FieldSpec{Name: "topic", Merge: graph.MergeOverwrite},
//			graph.FieldSpec{Name: "draft", Merge: graph.MergeOverwrite},
//		)
//
//		g := graph.New(schema)
//		g.AddStep(graph.Step{
//			Name:   "write",
//			Reads:  []string{"topic"},
//			Writes: []string{"draft"},
//			Func: func(ctx context.Context, view graph.StateView) (graph.StepResult, error) {
//				return graph.Update{"draft": "about " + view.String("topic")}, nil
//			},
//		})
//		g.SetEntryPoint("write")
//		g.AddEdge("write", graph.END)
//
//		runnable, _ := g.Compile()
//		exec := graph.NewExecutor(runnable, graph.Options{})
//
//		outcome, _ := exec.Run(context.Background(), "run-1", graph.State{"topic": "merge policies"})
//		fmt.Println(outcome.Final["draft"])
//	}
//
// # Key Features
//
//   - Declared State: Schema-checked fields with overwrite, append, and
//     union merge policies
//   - Fan-Out Cohorts: Dynamic parallelism with deterministic,
//     declaration-order merges at a join barrier
//   - Bounded Cycles: Revision loops that are forced to their exit label
//     after a declared number of passes
//   - Checkpointing: Every merge persisted; runs recover or resume from
//     the latest checkpoint
//   - Suspend/Resume: Steps can halt a run indefinitely and continue
//     when a caller supplies a value
//   - Retries and Timeouts: Classified step errors with capped
//     exponential backoff
//   - Tracing and Visualization: Span hooks, Mermaid and DOT export
//
// # Package Structure
//
// graph/
// The schema, graph builder, compiler, and executor.
//
// store/
// Checkpoint persistence: memory, file, sqlite, postgres, and redis
// backends behind one CheckpointStore interface.
//
// pipeline/
// Prebuilt document pipelines (parallel research, bounded revise loop,
// plan/approve/execute) and the collaborator contracts they call.
//
// llms/openai/, adapter/
// Generator implementations: the OpenAI chat API directly, or any
// model langchaingo supports.
//
// search/, render/
// A web search collaborator built on scraped metasearch results, and
// markdown-to-sanitized-HTML artifact rendering.
//
// See the examples/ directory for runnable demos of suspend/resume,
// parallel research, and the bounded revision loop.
package taskgraph
