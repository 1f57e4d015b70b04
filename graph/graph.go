package graph

import "context"

// END is the terminal sentinel. Edges and router path maps may target it to
// finish the run.
const END = "END"

// Edge represents a fixed transition between two steps.
type Edge struct {
	// From is the name of the step from which the edge originates.
	From string

	// To is the name of the step to which the edge points, or END.
	To string
}

// Router decides the next transition for a conditional edge. Route must
// return one of the declared Labels; anything else is a RouterError at
// runtime and a validation failure if the path map disagrees.
type Router struct {
	// Labels is the closed set of labels Route may return.
	Labels []string

	// Route maps the merged state to one of Labels.
	Route func(ctx context.Context, view StateView) string
}

type conditionalEdge struct {
	router  Router
	pathMap map[string]string
}

type cycleSpec struct {
	bound     int
	exitLabel string
}

// Graph is a mutable definition of a task graph: steps, transitions, and
// cycle bounds over a state Schema. Build it once, Compile it, and share
// the compiled form across concurrent runs.
type Graph struct {
	schema *Schema

	steps map[string]Step
	order []string

	edges            []Edge
	conditionalEdges map[string]conditionalEdge
	fanOutEdges      map[string]string
	cycles           map[string]cycleSpec

	entryPoint string
	duplicates []string
}

// New creates a graph definition over the given state schema.
func New(schema *Schema) *Graph {
	return &Graph{
		schema:           schema,
		steps:            make(map[string]Step),
		conditionalEdges: make(map[string]conditionalEdge),
		fanOutEdges:      make(map[string]string),
		cycles:           make(map[string]cycleSpec),
	}
}

// Schema returns the graph's state schema.
func (g *Graph) Schema() *Schema {
	return g.schema
}

// AddStep registers a step. Re-registering a name is recorded and rejected
// at Compile time.
func (g *Graph) AddStep(step Step) {
	if _, exists := g.steps[step.Name]; exists {
		g.duplicates = append(g.duplicates, step.Name)
		return
	}
	g.steps[step.Name] = step
	g.order = append(g.order, step.Name)
}

// AddEdge adds a fixed transition from one step to another (or END).
// Multiple fixed edges from the same step form a static parallel branch
// group whose results merge at the next join.
func (g *Graph) AddEdge(from, to string) {
	g.edges = append(g.edges, Edge{From: from, To: to})
}

// AddConditionalEdge attaches a router to a step. pathMap maps each of the
// router's labels to the next step name (or END). Validation fails unless
// the label sets match exactly.
func (g *Graph) AddConditionalEdge(from string, router Router, pathMap map[string]string) {
	g.conditionalEdges[from] = conditionalEdge{router: router, pathMap: pathMap}
}

// AddFanOutEdge declares that from may emit a FanOut directive, and that
// control moves to collector once the cohort has merged. The collector
// transition is taken even when the step returns a plain Update.
func (g *Graph) AddFanOutEdge(from, collector string) {
	g.fanOutEdges[from] = collector
}

// AddCycle registers a bounded cycle. head is the step control re-enters;
// after bound re-entries the guard overrides the head's router with
// exitLabel, forcing the declared exit transition.
func (g *Graph) AddCycle(head string, bound int, exitLabel string) {
	g.cycles[head] = cycleSpec{bound: bound, exitLabel: exitLabel}
}

// fixedTargets returns the targets of every fixed edge leaving from, in
// declaration order.
func (g *Graph) fixedTargets(from string) []string {
	var targets []string
	for _, e := range g.edges {
		if e.From == from {
			targets = append(targets, e.To)
		}
	}
	return targets
}

// SetEntryPoint sets the step a run starts at.
func (g *Graph) SetEntryPoint(name string) {
	g.entryPoint = name
}

// Runnable is a compiled, immutable graph definition. It holds no run
// state and may be shared across concurrent runs.
type Runnable struct {
	graph *Graph
}

// Graph returns the underlying definition. Mutating it after Compile is a
// programming error.
func (r *Runnable) Graph() *Graph {
	return r.graph
}
