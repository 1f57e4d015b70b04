package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Compile validates the graph definition and returns an immutable Runnable.
// Validation fails with a GraphError if:
//   - any edge references an unregistered step
//   - a step carries more than one kind of outgoing rule
//   - a conditional router's declared labels do not exactly match its path map
//   - any declared read/write names a field outside the schema
//   - any cycle lacks a registered bound with a valid forced-exit label
//   - there is no path from the entry point to END
func (g *Graph) Compile() (*Runnable, error) {
	if err := g.validate(); err != nil {
		return nil, err
	}
	return &Runnable{graph: g}, nil
}

func (g *Graph) validate() error {
	if len(g.duplicates) > 0 {
		return &GraphError{Code: "DUPLICATE_STEP", Message: "step registered twice: " + strings.Join(g.duplicates, ", ")}
	}
	if g.entryPoint == "" {
		return &GraphError{Code: "NO_ENTRY_POINT", Message: ErrEntryPointNotSet.Error()}
	}
	if _, ok := g.steps[g.entryPoint]; !ok {
		return &GraphError{Code: "STEP_NOT_FOUND", Message: "entry point not registered: " + g.entryPoint}
	}

	for name, step := range g.steps {
		if name == "" || name == END {
			return &GraphError{Code: "BAD_STEP_NAME", Message: fmt.Sprintf("invalid step name %q", name)}
		}
		if step.Func == nil {
			return &GraphError{Code: "NIL_STEP_FUNC", Message: "step has no body: " + name}
		}
		if g.schema != nil {
			for _, field := range step.Reads {
				if _, ok := g.schema.Field(field); !ok {
					return &GraphError{Code: "UNDECLARED_FIELD", Message: fmt.Sprintf("step %s reads unknown field %s", name, field)}
				}
			}
			for _, field := range step.Writes {
				if _, ok := g.schema.Field(field); !ok {
					return &GraphError{Code: "UNDECLARED_FIELD", Message: fmt.Sprintf("step %s writes unknown field %s", name, field)}
				}
			}
		}
	}

	if err := g.validateEdges(); err != nil {
		return err
	}
	if err := g.validateCycles(); err != nil {
		return err
	}
	return g.validateReachability()
}

func (g *Graph) validateEdges() error {
	fixedFrom := make(map[string]bool)
	for _, edge := range g.edges {
		if _, ok := g.steps[edge.From]; !ok {
			return &GraphError{Code: "STEP_NOT_FOUND", Message: "edge from unregistered step: " + edge.From}
		}
		if edge.To != END {
			if _, ok := g.steps[edge.To]; !ok {
				return &GraphError{Code: "STEP_NOT_FOUND", Message: "edge to unregistered step: " + edge.To}
			}
		}
		fixedFrom[edge.From] = true
	}

	for from, ce := range g.conditionalEdges {
		if _, ok := g.steps[from]; !ok {
			return &GraphError{Code: "STEP_NOT_FOUND", Message: "conditional edge from unregistered step: " + from}
		}
		if fixedFrom[from] {
			return &GraphError{Code: "CONFLICTING_EDGES", Message: "step has both fixed and conditional edges: " + from}
		}
		if _, ok := g.fanOutEdges[from]; ok {
			return &GraphError{Code: "CONFLICTING_EDGES", Message: "step has both fan-out and conditional edges: " + from}
		}
		if ce.router.Route == nil {
			return &GraphError{Code: "NIL_ROUTER", Message: "conditional edge has no router: " + from}
		}

		declared := make(map[string]bool, len(ce.router.Labels))
		for _, label := range ce.router.Labels {
			declared[label] = true
		}
		if len(declared) != len(ce.router.Labels) {
			return &GraphError{Code: "ROUTER_LABELS", Message: "router declares duplicate labels: " + from}
		}
		for label, to := range ce.pathMap {
			if !declared[label] {
				return &GraphError{Code: "ROUTER_LABELS", Message: fmt.Sprintf("path map label %q not declared by router of %s", label, from)}
			}
			if to != END {
				if _, ok := g.steps[to]; !ok {
					return &GraphError{Code: "STEP_NOT_FOUND", Message: fmt.Sprintf("conditional edge %s[%s] targets unregistered step %s", from, label, to)}
				}
			}
		}
		if len(ce.pathMap) != len(declared) {
			missing := make([]string, 0)
			for label := range declared {
				if _, ok := ce.pathMap[label]; !ok {
					missing = append(missing, label)
				}
			}
			sort.Strings(missing)
			return &GraphError{Code: "ROUTER_LABELS", Message: fmt.Sprintf("router labels of %s unmapped in path map: %s", from, strings.Join(missing, ", "))}
		}
	}

	for from, collector := range g.fanOutEdges {
		if _, ok := g.steps[from]; !ok {
			return &GraphError{Code: "STEP_NOT_FOUND", Message: "fan-out edge from unregistered step: " + from}
		}
		if fixedFrom[from] {
			return &GraphError{Code: "CONFLICTING_EDGES", Message: "step has both fixed and fan-out edges: " + from}
		}
		if collector != END {
			if _, ok := g.steps[collector]; !ok {
				return &GraphError{Code: "STEP_NOT_FOUND", Message: "fan-out collector not registered: " + collector}
			}
		}
	}

	for head, spec := range g.cycles {
		if _, ok := g.steps[head]; !ok {
			return &GraphError{Code: "STEP_NOT_FOUND", Message: "cycle head not registered: " + head}
		}
		if spec.bound < 1 {
			return &GraphError{Code: "BAD_CYCLE_BOUND", Message: fmt.Sprintf("cycle bound for %s must be >= 1, got %d", head, spec.bound)}
		}
		ce, ok := g.conditionalEdges[head]
		if !ok {
			return &GraphError{Code: "CYCLE_EXIT", Message: "cycle head has no conditional edge to force: " + head}
		}
		if _, ok := ce.pathMap[spec.exitLabel]; !ok {
			return &GraphError{Code: "CYCLE_EXIT", Message: fmt.Sprintf("forced exit label %q of cycle head %s not in its path map", spec.exitLabel, head)}
		}
	}

	return nil
}

// successors returns every step name (or END) control can move to from the
// given step, across all edge kinds.
func (g *Graph) successors(from string) []string {
	var out []string
	for _, edge := range g.edges {
		if edge.From == from {
			out = append(out, edge.To)
		}
	}
	if ce, ok := g.conditionalEdges[from]; ok {
		labels := make([]string, 0, len(ce.pathMap))
		for label := range ce.pathMap {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			out = append(out, ce.pathMap[label])
		}
	}
	if collector, ok := g.fanOutEdges[from]; ok {
		out = append(out, collector)
	}
	return out
}

// validateCycles finds strongly connected components of the transition
// graph and requires each cyclic component to contain a registered cycle
// head, so every loop provably terminates.
func (g *Graph) validateCycles() error {
	index := 0
	indices := make(map[string]int)
	lowlink := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string

	var components [][]string
	var strongconnect func(v string)
	strongconnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.successors(v) {
			if w == END {
				continue
			}
			if _, seen := indices[w]; !seen {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if indices[w] < lowlink[v] {
					lowlink[v] = indices[w]
				}
			}
		}

		if lowlink[v] == indices[v] {
			var comp []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			components = append(components, comp)
		}
	}

	for _, name := range g.order {
		if _, seen := indices[name]; !seen {
			strongconnect(name)
		}
	}

	for _, comp := range components {
		cyclic := len(comp) > 1
		if !cyclic {
			// Single node: cyclic only with a self edge
			for _, s := range g.successors(comp[0]) {
				if s == comp[0] {
					cyclic = true
					break
				}
			}
		}
		if !cyclic {
			continue
		}
		bounded := false
		for _, name := range comp {
			if _, ok := g.cycles[name]; ok {
				bounded = true
				break
			}
		}
		if !bounded {
			sort.Strings(comp)
			return &GraphError{Code: "UNBOUNDED_CYCLE", Message: "cycle lacks a declared bound: " + strings.Join(comp, " -> ")}
		}
	}

	return nil
}

// validateReachability requires END to be reachable from the entry point.
func (g *Graph) validateReachability() error {
	visited := make(map[string]bool)
	queue := []string{g.entryPoint}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		if cur == END {
			return nil
		}
		queue = append(queue, g.successors(cur)...)
	}
	return &GraphError{Code: "NO_TERMINAL_PATH", Message: "no path from entry point " + g.entryPoint + " to END"}
}
