// Package visualization renders computed network states in various output
// formats. Renderers only read the state they are given.
package visualization

import (
	"fmt"
	"math"
	"strings"

	"github.com/nvandessel/baynet/internal/network"
)

// Format specifies the output format for graph rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
)

// kindColors maps node kinds to DOT fill colors, used when a node's column
// declares none.
var kindColors = map[network.Kind]string{
	network.KindRoot:         "lightsteelblue",
	network.KindIntermediate: "khaki",
	network.KindOutcome:      "palegreen",
}

// kindShapes maps node kinds to DOT shapes.
var kindShapes = map[network.Kind]string{
	network.KindRoot:         "box",
	network.KindIntermediate: "ellipse",
	network.KindOutcome:      "doubleoctagon",
}

// RenderDOT produces a Graphviz DOT representation of a computed state.
// Nodes are grouped into their layout columns, labelled with their
// probability; locked nodes get a bold double border. Positive arcs are
// solid, negative arcs dashed red, and pen width follows |weight|.
func RenderDOT(s *network.State, lang string) string {
	colors := columnColors(s)

	var b strings.Builder
	b.WriteString("digraph baynet {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [style=filled, fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n\n")

	grouped := make(map[string][]*network.Node)
	var ungrouped []*network.Node
	for i := range s.Nodes {
		n := &s.Nodes[i]
		if _, ok := colors[n.Group]; ok && n.Group != "" {
			grouped[n.Group] = append(grouped[n.Group], n)
		} else {
			ungrouped = append(ungrouped, n)
		}
	}

	for _, col := range s.Columns {
		nodes := grouped[col.ID]
		if len(nodes) == 0 {
			continue
		}
		fmt.Fprintf(&b, "  subgraph %q {\n", "cluster_"+col.ID)
		if title := col.Title.Resolve(lang); title != "" {
			fmt.Fprintf(&b, "    label=%q;\n", title)
		}
		b.WriteString("    color=gray80;\n")
		for _, n := range nodes {
			b.WriteString("  ")
			writeNode(&b, n, colors[col.ID], lang)
		}
		b.WriteString("  }\n")
	}
	for _, n := range ungrouped {
		writeNode(&b, n, "", lang)
	}
	b.WriteString("\n")

	for _, a := range s.Arcs {
		style, color := "solid", "gray30"
		if a.Weight < 0 {
			style, color = "dashed", "firebrick"
		}
		width := 0.5 + 3*math.Min(math.Abs(a.Weight), 1)
		fmt.Fprintf(&b, "  %q -> %q [label=\"%+.2f\", style=%s, color=%q, penwidth=%.2f];\n",
			a.Source, a.Target, a.Weight, style, color, width)
	}

	b.WriteString("}\n")
	return b.String()
}

func writeNode(b *strings.Builder, n *network.Node, color, lang string) {
	if color == "" {
		color = kindColors[n.Kind]
	}
	if color == "" {
		color = "lightgray"
	}
	shape := kindShapes[n.Kind]
	if shape == "" {
		shape = "box"
	}

	label := fmt.Sprintf("%s\n%.1f%%", truncate(n.DisplayName(lang), 32), n.Probability*100)
	extra := ""
	if n.IsLocked() {
		label += " [" + n.Locked.String() + "]"
		extra = ", peripheries=2, penwidth=2"
	}
	fmt.Fprintf(b, "  %q [label=%q, shape=%s, fillcolor=%q, tooltip=%q%s];\n",
		n.ID, label, shape, color, tooltip(n), extra)
}

func tooltip(n *network.Node) string {
	if n.IsRoot() {
		return fmt.Sprintf("%s value=%g p=%.3f", n.Variable, n.Value, n.Probability)
	}
	return fmt.Sprintf("base=%.3f p=%.3f", n.Base, n.Probability)
}

// columnColors maps column ids to their declared colors.
func columnColors(s *network.State) map[string]string {
	out := make(map[string]string, len(s.Columns))
	for _, c := range s.Columns {
		out[c.ID] = c.Color
	}
	return out
}

// Graph is the JSON rendering of a state.
type Graph struct {
	Columns   []GraphColumn `json:"columns,omitempty"`
	Nodes     []GraphNode   `json:"nodes"`
	Arcs      []GraphArc    `json:"arcs"`
	NodeCount int           `json:"node_count"`
	ArcCount  int           `json:"arc_count"`
}

// GraphColumn is a layout band.
type GraphColumn struct {
	ID    string  `json:"id"`
	Title string  `json:"title,omitempty"`
	X     float64 `json:"x,omitempty"`
	Width float64 `json:"width,omitempty"`
	Color string  `json:"color,omitempty"`
}

// GraphNode is one node with its computed probability and layout.
type GraphNode struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Kind        string  `json:"kind"`
	Probability float64 `json:"probability"`
	Locked      string  `json:"locked,omitempty"`
	Value       float64 `json:"value,omitempty"`
	Base        float64 `json:"base,omitempty"`
	Group       string  `json:"group,omitempty"`
	X           float64 `json:"x,omitempty"`
	Y           float64 `json:"y,omitempty"`
}

// GraphArc is one weighted arc.
type GraphArc struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Weight float64 `json:"weight"`
	Sign   string  `json:"sign"`
}

// RenderJSON produces a JSON-ready graph of nodes, arcs and probabilities.
func RenderJSON(s *network.State, lang string) Graph {
	g := Graph{
		Nodes: make([]GraphNode, 0, len(s.Nodes)),
		Arcs:  make([]GraphArc, 0, len(s.Arcs)),
	}
	for _, c := range s.Columns {
		g.Columns = append(g.Columns, GraphColumn{
			ID: c.ID, Title: c.Title.Resolve(lang), X: c.X, Width: c.Width, Color: c.Color,
		})
	}
	for i := range s.Nodes {
		n := &s.Nodes[i]
		gn := GraphNode{
			ID:          n.ID,
			Name:        n.DisplayName(lang),
			Kind:        string(n.Kind),
			Probability: n.Probability,
			Group:       n.Group,
			X:           n.X,
			Y:           n.Y,
		}
		if n.IsRoot() {
			gn.Value = n.Value
		} else {
			gn.Base = n.Base
		}
		if n.IsLocked() {
			gn.Locked = n.Locked.String()
		}
		g.Nodes = append(g.Nodes, gn)
	}
	for _, a := range s.Arcs {
		sign := "positive"
		if a.Weight < 0 {
			sign = "negative"
		}
		g.Arcs = append(g.Arcs, GraphArc{Source: a.Source, Target: a.Target, Weight: a.Weight, Sign: sign})
	}
	g.NodeCount = len(g.Nodes)
	g.ArcCount = len(g.Arcs)
	return g
}

// truncate shortens a string to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
