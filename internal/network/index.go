package network

import "fmt"

// Index gives O(1) access to nodes and their incoming arcs for one
// computation pass. Node pointers alias the indexed state, so writes through
// the index mutate the state. Node identities never change after Clone, so
// an Index stays valid for the lifetime of the state it was built from.
type Index struct {
	nodes    map[string]*Node
	incoming map[string][]*Arc
	outgoing map[string][]*Arc
}

// NewIndex builds an index over s. It fails if an arc references a node that
// does not exist.
func NewIndex(s *State) (*Index, error) {
	idx := &Index{
		nodes:    make(map[string]*Node, len(s.Nodes)),
		incoming: make(map[string][]*Arc),
		outgoing: make(map[string][]*Arc),
	}
	for i := range s.Nodes {
		idx.nodes[s.Nodes[i].ID] = &s.Nodes[i]
	}
	for i := range s.Arcs {
		arc := &s.Arcs[i]
		if _, ok := idx.nodes[arc.Source]; !ok {
			return nil, fmt.Errorf("arc %d source %q: %w", i, arc.Source, ErrUnknownNode)
		}
		if _, ok := idx.nodes[arc.Target]; !ok {
			return nil, fmt.Errorf("arc %d target %q: %w", i, arc.Target, ErrUnknownNode)
		}
		idx.incoming[arc.Target] = append(idx.incoming[arc.Target], arc)
		idx.outgoing[arc.Source] = append(idx.outgoing[arc.Source], arc)
	}
	return idx, nil
}

// Node returns the node with the given id, or nil.
func (idx *Index) Node(id string) *Node {
	return idx.nodes[id]
}

// Lookup is Node with an error for unknown ids.
func (idx *Index) Lookup(id string) (*Node, error) {
	n, ok := idx.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %q: %w", id, ErrUnknownNode)
	}
	return n, nil
}

// Incoming returns the arcs whose target is id, in declaration order.
func (idx *Index) Incoming(id string) []*Arc {
	return idx.incoming[id]
}

// Outgoing returns the arcs whose source is id, in declaration order.
func (idx *Index) Outgoing(id string) []*Arc {
	return idx.outgoing[id]
}

// Probability returns the current probability of id, or 0 for unknown ids.
func (idx *Index) Probability(id string) float64 {
	if n := idx.nodes[id]; n != nil {
		return n.Probability
	}
	return 0
}
