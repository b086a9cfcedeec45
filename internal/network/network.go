// Package network defines the graph model shared by the propagation engine,
// the evidence controller and every renderer: nodes, arcs, and the mutable
// NetworkState that one simulation session owns.
package network

import (
	"errors"
	"fmt"
)

// Kind describes the role a node plays in the network.
type Kind string

const (
	KindRoot         Kind = "root"         // evidence-settable input
	KindIntermediate Kind = "intermediate" // computed, hidden detail
	KindOutcome      Kind = "outcome"      // computed, headline result
)

// VariableKind determines how a root node's value maps to a probability.
type VariableKind string

const (
	VariableContinuous  VariableKind = "continuous"
	VariableCategorical VariableKind = "categorical"
	VariableProbability VariableKind = "probability"
)

// LockState is the evidence pin on a non-root node.
type LockState int

const (
	Unlocked    LockState = 0
	ForcedHigh  LockState = 1
	ForcedLow   LockState = 2
	lockStates            = 3
)

// Next returns the state that follows s in the 0 -> 1 -> 2 -> 0 cycle.
func (s LockState) Next() LockState {
	return (s + 1) % lockStates
}

func (s LockState) String() string {
	switch s {
	case Unlocked:
		return "unlocked"
	case ForcedHigh:
		return "forced-high"
	case ForcedLow:
		return "forced-low"
	default:
		return fmt.Sprintf("lock(%d)", int(s))
	}
}

var (
	// ErrUnknownNode is returned when a node id does not exist in the state.
	ErrUnknownNode = errors.New("unknown node")

	// ErrCategoryOutOfRange is returned when a categorical value does not
	// index into the node's category list.
	ErrCategoryOutOfRange = errors.New("category index out of range")
)

// Category is one labelled level of a categorical root node.
type Category struct {
	Label Text    `json:"label" yaml:"label"`
	Value float64 `json:"value" yaml:"value" validate:"gte=0,lte=1"`
}

// Node represents one random variable in the network.
type Node struct {
	ID   string `json:"id" yaml:"id" validate:"required"`
	Name Text   `json:"name,omitempty" yaml:"name,omitempty"`
	Kind Kind   `json:"kind" yaml:"kind" validate:"required,oneof=root intermediate outcome"`

	// Root-only fields.
	Variable   VariableKind `json:"variable,omitempty" yaml:"variable,omitempty" validate:"omitempty,oneof=continuous categorical probability"`
	Value      float64      `json:"value,omitempty" yaml:"value,omitempty"`
	Categories []Category   `json:"categories,omitempty" yaml:"categories,omitempty" validate:"omitempty,dive"`
	Min        float64      `json:"min,omitempty" yaml:"min,omitempty"`
	Max        float64      `json:"max,omitempty" yaml:"max,omitempty"`
	Unit       Text         `json:"unit,omitempty" yaml:"unit,omitempty"`

	// Non-root fields.
	Base   float64   `json:"base,omitempty" yaml:"base,omitempty" validate:"gte=0,lte=1"`
	Locked LockState `json:"locked,omitempty" yaml:"locked,omitempty" validate:"gte=0,lte=2"`

	Probability float64 `json:"probability" yaml:"probability" validate:"gte=0,lte=1"`

	// Layout metadata passed through to renderers.
	Group string  `json:"group,omitempty" yaml:"group,omitempty"`
	X     float64 `json:"x,omitempty" yaml:"x,omitempty"`
	Y     float64 `json:"y,omitempty" yaml:"y,omitempty"`
}

// IsRoot reports whether the node takes evidence directly.
func (n *Node) IsRoot() bool {
	return n.Kind == KindRoot
}

// IsLocked reports whether the node's probability is pinned.
func (n *Node) IsLocked() bool {
	return n.Locked != Unlocked
}

// DisplayName resolves the node name for lang, falling back to the id.
func (n *Node) DisplayName(lang string) string {
	if s := n.Name.Resolve(lang); s != "" {
		return s
	}
	return n.ID
}

// CategoryAt returns the category a categorical value indexes.
func (n *Node) CategoryAt(value float64) (Category, error) {
	i := int(value)
	if float64(i) != value || i < 0 || i >= len(n.Categories) {
		return Category{}, fmt.Errorf("node %s: value %v with %d categories: %w",
			n.ID, value, len(n.Categories), ErrCategoryOutOfRange)
	}
	return n.Categories[i], nil
}

// Arc is a directed, weighted influence edge.
type Arc struct {
	Source string  `json:"source" yaml:"source" validate:"required"`
	Target string  `json:"target" yaml:"target" validate:"required"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// Column is a layout band consumed only by renderers.
type Column struct {
	ID    string  `json:"id" yaml:"id"`
	Title Text    `json:"title,omitempty" yaml:"title,omitempty"`
	X     float64 `json:"x,omitempty" yaml:"x,omitempty"`
	Width float64 `json:"width,omitempty" yaml:"width,omitempty"`
	Color string  `json:"color,omitempty" yaml:"color,omitempty"`
}

// Network is the node and arc collection of a model, plus opaque layout.
// The same type serves as the immutable template and as the live state; a
// live state is always obtained through Clone.
type Network struct {
	Columns []Column `json:"columns,omitempty" yaml:"columns,omitempty"`
	Nodes   []Node   `json:"nodes" yaml:"nodes" validate:"required,min=1,dive"`
	Arcs    []Arc    `json:"arcs" yaml:"arcs" validate:"dive"`
}

// State is the mutable network owned by one session.
type State = Network

// Clone returns a deep copy of n that shares no mutable substructure with it.
func (n *Network) Clone() *Network {
	if n == nil {
		return nil
	}
	out := &Network{
		Columns: make([]Column, len(n.Columns)),
		Nodes:   make([]Node, len(n.Nodes)),
		Arcs:    make([]Arc, len(n.Arcs)),
	}
	for i, c := range n.Columns {
		c.Title = c.Title.Clone()
		out.Columns[i] = c
	}
	for i, node := range n.Nodes {
		node.Name = node.Name.Clone()
		node.Unit = node.Unit.Clone()
		if node.Categories != nil {
			cats := make([]Category, len(node.Categories))
			for j, c := range node.Categories {
				c.Label = c.Label.Clone()
				cats[j] = c
			}
			node.Categories = cats
		}
		out.Nodes[i] = node
	}
	copy(out.Arcs, n.Arcs)
	return out
}

// Node returns a pointer to the node with the given id.
func (n *Network) Node(id string) (*Node, error) {
	for i := range n.Nodes {
		if n.Nodes[i].ID == id {
			return &n.Nodes[i], nil
		}
	}
	return nil, fmt.Errorf("node %q: %w", id, ErrUnknownNode)
}

// Probabilities returns the node-probability mapping consumed by renderers.
func (n *Network) Probabilities() map[string]float64 {
	out := make(map[string]float64, len(n.Nodes))
	for _, node := range n.Nodes {
		out[node.ID] = node.Probability
	}
	return out
}

// RootNodes returns pointers to every root node in declaration order.
func (n *Network) RootNodes() []*Node {
	var roots []*Node
	for i := range n.Nodes {
		if n.Nodes[i].IsRoot() {
			roots = append(roots, &n.Nodes[i])
		}
	}
	return roots
}
