package session

import (
	"github.com/nvandessel/baynet/internal/engine"
	"github.com/nvandessel/baynet/internal/network"
	"github.com/nvandessel/baynet/internal/prognosis"
)

// NodeResult is one node's computed belief.
type NodeResult struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Kind        string  `json:"kind"`
	Probability float64 `json:"probability"`
	Locked      string  `json:"locked,omitempty"`
}

// CategoryOption is one selectable level of a categorical root.
type CategoryOption struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// RootConfig describes an evidence input.
type RootConfig struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Variable   string           `json:"variable"`
	Value      float64          `json:"value"`
	Min        float64          `json:"min,omitempty"`
	Max        float64          `json:"max,omitempty"`
	Unit       string           `json:"unit,omitempty"`
	Categories []CategoryOption `json:"categories,omitempty"`
}

// Results returns every node's probability in declaration order.
func (s *Session) Results(lang string) []NodeResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]NodeResult, 0, len(s.state.Nodes))
	for i := range s.state.Nodes {
		n := &s.state.Nodes[i]
		r := NodeResult{
			ID:          n.ID,
			Name:        n.DisplayName(lang),
			Kind:        string(n.Kind),
			Probability: n.Probability,
		}
		if n.IsLocked() {
			r.Locked = n.Locked.String()
		}
		out = append(out, r)
	}
	return out
}

// Roots describes every root node and its current value.
func (s *Session) Roots(lang string) []RootConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roots := s.state.RootNodes()
	out := make([]RootConfig, 0, len(roots))
	for _, n := range roots {
		rc := RootConfig{
			ID:       n.ID,
			Name:     n.DisplayName(lang),
			Variable: string(n.Variable),
			Value:    n.Value,
		}
		if n.Variable == network.VariableContinuous {
			rc.Min, rc.Max = n.Min, n.Max
			rc.Unit = n.Unit.Resolve(lang)
		}
		for i, c := range n.Categories {
			rc.Categories = append(rc.Categories, CategoryOption{Label: c.Label.Resolve(lang), Value: i})
		}
		out = append(out, rc)
	}
	return out
}

// Summary returns the prognosis of the live state.
func (s *Session) Summary(lang string) prognosis.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return prognosis.Summarize(s.model.Prognosis, s.state, lang)
}

// Analyze compares the model's strategies on clones of the live state.
func (s *Session) Analyze(lang string) (*prognosis.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return prognosis.Analyze(s.engine, s.state, s.model.Strategies, s.model.Objective, lang)
}

// Explain breaks down the probability of one node of the live state.
func (s *Session) Explain(nodeID string) (*engine.Explanation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.engine.Explain(s.state, nodeID)
}
