package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Exporter renders a graph definition for inspection.
type Exporter struct {
	graph *Graph
}

// NewExporter creates an exporter for the given graph.
func NewExporter(g *Graph) *Exporter {
	return &Exporter{graph: g}
}

// MermaidOptions defines configuration for Mermaid diagram generation.
type MermaidOptions struct {
	// Direction of the flowchart (e.g., "TD", "LR")
	Direction string
}

// DrawMermaid generates a Mermaid flowchart of the graph.
func (ge *Exporter) DrawMermaid() string {
	return ge.DrawMermaidWithOptions(MermaidOptions{Direction: "TD"})
}

// DrawMermaidWithOptions generates a Mermaid flowchart with custom options.
func (ge *Exporter) DrawMermaidWithOptions(opts MermaidOptions) string {
	var sb strings.Builder

	direction := opts.Direction
	if direction == "" {
		direction = "TD"
	}
	sb.WriteString(fmt.Sprintf("flowchart %s\n", direction))

	if ge.graph.entryPoint != "" {
		sb.WriteString("    START([\"START\"])\n")
		sb.WriteString(fmt.Sprintf("    START --> %s\n", ge.graph.entryPoint))
		sb.WriteString("    style START fill:#90EE90\n")
	}

	names := make([]string, 0, len(ge.graph.steps))
	for name := range ge.graph.steps {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, cyclic := ge.graph.cycles[name]; cyclic {
			sb.WriteString(fmt.Sprintf("    %s[\"%s (bounded)\"]\n", name, name))
		} else {
			sb.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", name, name))
		}
	}

	if ge.referencesEnd() {
		sb.WriteString("    END([\"END\"])\n")
		sb.WriteString("    style END fill:#FFB6C1\n")
	}

	for _, edge := range ge.graph.edges {
		sb.WriteString(fmt.Sprintf("    %s --> %s\n", edge.From, edge.To))
	}

	froms := make([]string, 0, len(ge.graph.conditionalEdges))
	for from := range ge.graph.conditionalEdges {
		froms = append(froms, from)
	}
	sort.Strings(froms)
	for _, from := range froms {
		ce := ge.graph.conditionalEdges[from]
		labels := make([]string, 0, len(ce.pathMap))
		for label := range ce.pathMap {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			sb.WriteString(fmt.Sprintf("    %s -.->|%s| %s\n", from, label, ce.pathMap[label]))
		}
	}

	fanFroms := make([]string, 0, len(ge.graph.fanOutEdges))
	for from := range ge.graph.fanOutEdges {
		fanFroms = append(fanFroms, from)
	}
	sort.Strings(fanFroms)
	for _, from := range fanFroms {
		sb.WriteString(fmt.Sprintf("    %s ==> %s\n", from, ge.graph.fanOutEdges[from]))
	}

	if ge.graph.entryPoint != "" {
		sb.WriteString(fmt.Sprintf("    style %s fill:#87CEEB\n", ge.graph.entryPoint))
	}

	return sb.String()
}

// DrawDOT generates a DOT (Graphviz) representation of the graph.
func (ge *Exporter) DrawDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph G {\n")
	sb.WriteString("    rankdir=TD;\n")
	sb.WriteString("    node [shape=box];\n")

	if ge.graph.entryPoint != "" {
		sb.WriteString("    START [label=\"START\", shape=ellipse, style=filled, fillcolor=lightgreen];\n")
		sb.WriteString(fmt.Sprintf("    START -> %s;\n", ge.graph.entryPoint))
		sb.WriteString(fmt.Sprintf("    %s [style=filled, fillcolor=lightblue];\n", ge.graph.entryPoint))
	}

	if ge.referencesEnd() {
		sb.WriteString("    END [label=\"END\", shape=ellipse, style=filled, fillcolor=lightpink];\n")
	}

	for _, edge := range ge.graph.edges {
		sb.WriteString(fmt.Sprintf("    %s -> %s;\n", edge.From, edge.To))
	}

	froms := make([]string, 0, len(ge.graph.conditionalEdges))
	for from := range ge.graph.conditionalEdges {
		froms = append(froms, from)
	}
	sort.Strings(froms)
	for _, from := range froms {
		ce := ge.graph.conditionalEdges[from]
		labels := make([]string, 0, len(ce.pathMap))
		for label := range ce.pathMap {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			sb.WriteString(fmt.Sprintf("    %s -> %s [style=dashed, label=\"%s\"];\n", from, ce.pathMap[label], label))
		}
	}

	fanFroms := make([]string, 0, len(ge.graph.fanOutEdges))
	for from := range ge.graph.fanOutEdges {
		fanFroms = append(fanFroms, from)
	}
	sort.Strings(fanFroms)
	for _, from := range fanFroms {
		sb.WriteString(fmt.Sprintf("    %s -> %s [style=bold, label=\"fan-out\"];\n", from, ge.graph.fanOutEdges[from]))
	}

	sb.WriteString("}\n")
	return sb.String()
}

func (ge *Exporter) referencesEnd() bool {
	for _, edge := range ge.graph.edges {
		if edge.To == END {
			return true
		}
	}
	for _, ce := range ge.graph.conditionalEdges {
		for _, to := range ce.pathMap {
			if to == END {
				return true
			}
		}
	}
	for _, collector := range ge.graph.fanOutEdges {
		if collector == END {
			return true
		}
	}
	return false
}
