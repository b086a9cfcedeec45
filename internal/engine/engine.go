// Package engine implements the belief propagation engine. Root evidence is
// mapped to probabilities, a bounded number of in-place relaxation passes
// push influence through the weighted arcs, and the model's rule hooks run
// once at the end.
package engine

import (
	"fmt"
	"math"

	"github.com/nvandessel/baynet/internal/constants"
	"github.com/nvandessel/baynet/internal/network"
	"github.com/nvandessel/baynet/internal/rules"
)

// Config holds tunable parameters for the propagation engine.
type Config struct {
	// Passes is the number of relaxation sweeps. Default: 5.
	// The engine never checks for convergence.
	Passes int
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Passes: constants.RelaxationPasses,
	}
}

// Engine computes node probabilities for a network state. The engine is
// stateless: everything it reads and writes lives in the state passed to
// Calculate, and the rule list it was built with is never modified.
type Engine struct {
	config Config
	rules  []rules.Rule
}

// New creates an engine that applies rs after relaxation.
func New(config Config, rs []rules.Rule) *Engine {
	if config.Passes <= 0 {
		config.Passes = constants.RelaxationPasses
	}
	return &Engine{
		config: config,
		rules:  rs,
	}
}

// Rules returns the rule list the engine applies.
func (e *Engine) Rules() []rules.Rule {
	return e.rules
}

// Report is the outcome of one recomputation.
type Report struct {
	State *network.State
	Rules []rules.Result
}

// Calculate recomputes every probability in s in place and returns s.
func (e *Engine) Calculate(s *network.State) (*network.State, error) {
	rep, err := e.Run(s)
	if err != nil {
		return nil, err
	}
	return rep.State, nil
}

// Run is Calculate with a record of which rules fired.
func (e *Engine) Run(s *network.State) (Report, error) {
	idx, err := network.NewIndex(s)
	if err != nil {
		return Report{}, fmt.Errorf("calculate: %w", err)
	}

	// Step 1: Root evaluation.
	for i := range s.Nodes {
		node := &s.Nodes[i]
		if !node.IsRoot() {
			continue
		}
		p, err := RootProbability(node)
		if err != nil {
			return Report{}, fmt.Errorf("calculate: %w", err)
		}
		node.Probability = p
	}

	// Step 2: Relaxation. Nodes are updated in place and in declaration
	// order, so later nodes in a pass already see the values written
	// earlier in the same pass.
	for pass := 0; pass < e.config.Passes; pass++ {
		for i := range s.Nodes {
			node := &s.Nodes[i]
			if node.IsRoot() || node.IsLocked() {
				continue
			}
			node.Probability = rules.Clamp(e.Combine(node.Base, e.Influence(idx, node.ID)))
		}
	}

	// Step 3: Rule hooks.
	fired, err := rules.Apply(e.rules, idx, e)
	if err != nil {
		return Report{State: s, Rules: fired}, fmt.Errorf("calculate: %w", err)
	}

	return Report{State: s, Rules: fired}, nil
}

// Influence sums parent probability times arc weight over the arcs into
// nodeID, reading whatever value each parent currently holds.
func (e *Engine) Influence(idx *network.Index, nodeID string) float64 {
	total := 0.0
	for _, arc := range idx.Incoming(nodeID) {
		total += idx.Probability(arc.Source) * arc.Weight
	}
	return total
}

// Combine merges a baseline with the total parental influence. A baseline
// above the threshold is amplified multiplicatively; a rarer baseline is
// interpolated linearly towards certainty. The result is not clamped.
func (e *Engine) Combine(base, influence float64) float64 {
	if base > constants.MultiplicativeBaseThreshold {
		return base * (1 + influence)
	}
	return base + (1-base)*influence
}

// RootProbability maps a root node's value to its probability.
//
// Continuous values are measured from a fixed pivot of 50 regardless of the
// node's min, as the bundled models expect; max == 50 is rejected by
// network.Validate and yields a non-finite value here.
func RootProbability(node *network.Node) (float64, error) {
	switch node.Variable {
	case network.VariableContinuous:
		p := (node.Value - network.ContinuousPivot) / (node.Max - network.ContinuousPivot)
		return math.Min(1, math.Max(0, p)), nil
	case network.VariableCategorical:
		c, err := node.CategoryAt(node.Value)
		if err != nil {
			return 0, err
		}
		return rules.Clamp(c.Value), nil
	case network.VariableProbability:
		return rules.Clamp(node.Value), nil
	default:
		return 0, fmt.Errorf("node %s: unknown variable kind %q", node.ID, node.Variable)
	}
}
