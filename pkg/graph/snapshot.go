package graph

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNilWriter indicates that a nil writer was provided to an exporter.
var ErrNilWriter = errors.New("graph: nil writer")

// NodeData is the serializable form of one graph node.
type NodeData struct {
	Name            string   `json:"name"`
	Type            string   `json:"type"`
	Outputs         []string `json:"outputs"`
	Deps            []string `json:"deps"`
	RequiredOutputs []string `json:"requiredOutputs"`
	Contexts        []string `json:"contexts"`
	CrossContext    bool     `json:"crossContext,omitempty"`
}

// GraphData is a serializable introspection snapshot of a built graph,
// suitable for diagnostics and editor tooling. Nodes appear in execution
// order.
type GraphData struct {
	Nodes     []NodeData `json:"nodes"`
	ExecOrder []string   `json:"execOrder"`
}

// Snapshot captures the graph's analysis results.
func (g *Graph) Snapshot() GraphData {
	data := GraphData{ExecOrder: g.ExecOrder()}
	for _, name := range g.order {
		n := g.nodes[name]
		data.Nodes = append(data.Nodes, NodeData{
			Name:            n.Name,
			Type:            n.Kind.String(),
			Outputs:         append([]string(nil), n.Outputs...),
			Deps:            append([]string(nil), n.Deps...),
			RequiredOutputs: n.RequiredSorted(),
			Contexts:        n.Contexts.Sorted(),
			CrossContext:    n.CrossContext,
		})
	}
	return data
}

// ExportDOT renders the dependency graph in Graphviz DOT format, one node
// per instance with edges pointing from dependency to dependent.
func (g *Graph) ExportDOT(w io.Writer) error {
	if w == nil {
		return ErrNilWriter
	}

	var sb strings.Builder
	sb.WriteString("digraph weft {\n")
	sb.WriteString("  rankdir=LR;\n")

	for _, name := range g.order {
		n := g.nodes[name]
		label := fmt.Sprintf("%s\\n<%s>", n.Name, strings.Join(n.Outputs, ", "))
		if len(n.Contexts) > 0 {
			label += "\\n[" + strings.Join(n.Contexts.Sorted(), ", ") + "]"
		}
		fmt.Fprintf(&sb, "  %q [label=%q];\n", n.Name, label)
	}
	for _, name := range g.order {
		for _, dep := range g.nodes[name].Deps {
			if _, ok := g.nodes[dep]; ok {
				fmt.Fprintf(&sb, "  %q -> %q;\n", dep, name)
			}
		}
	}
	sb.WriteString("}\n")

	_, err := io.WriteString(w, sb.String())
	return err
}
