package engine

import (
	"fmt"
	"strings"

	"github.com/nvandessel/baynet/internal/constants"
	"github.com/nvandessel/baynet/internal/network"
	"github.com/nvandessel/baynet/internal/rules"
)

// Term is one contribution to a node's influence sum.
type Term struct {
	Source       string  `json:"source"`
	Probability  float64 `json:"probability"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
	Interaction  bool    `json:"interaction,omitempty"`
}

// Override is a fired override assignment that targets the explained node.
type Override struct {
	Rule        int     `json:"rule"`
	Description string  `json:"description,omitempty"`
	Probability float64 `json:"probability"`
}

// Explanation breaks a computed probability down into the terms that
// produced it. It is built from an already computed state and changes
// nothing.
type Explanation struct {
	NodeID      string  `json:"node_id"`
	Kind        string  `json:"kind"`
	Variable    string  `json:"variable,omitempty"`
	Value       float64 `json:"value,omitempty"`
	Base        float64 `json:"base,omitempty"`
	Locked      string  `json:"locked,omitempty"`
	Mode        string  `json:"mode,omitempty"`
	Terms       []Term  `json:"terms,omitempty"`
	Influence   float64    `json:"influence"`
	Raw         float64    `json:"raw"`
	RawApplied  bool       `json:"raw_applied"`
	Overrides   []Override `json:"overrides,omitempty"`
	Probability float64    `json:"probability"`
}

// Mode names the branch of the combination formula.
const (
	ModeMultiplicative = "multiplicative"
	ModeAdditive       = "additive"
)

// Explain reports how the probability of nodeID in s comes about. Arc terms
// use the parents' current probabilities; interaction rules targeting the
// node whose conditions hold contribute one term each. Raw is the
// relaxation value; it is not applied to a locked node, and a fired override
// assignment replaces it (the last one listed wins).
func (e *Engine) Explain(s *network.State, nodeID string) (*Explanation, error) {
	idx, err := network.NewIndex(s)
	if err != nil {
		return nil, err
	}
	node, err := idx.Lookup(nodeID)
	if err != nil {
		return nil, err
	}

	ex := &Explanation{
		NodeID:      node.ID,
		Kind:        string(node.Kind),
		Probability: node.Probability,
	}

	if node.IsRoot() {
		ex.Variable = string(node.Variable)
		ex.Value = node.Value
		p, err := RootProbability(node)
		if err != nil {
			return nil, err
		}
		ex.Raw = p
		ex.RawApplied = true
		return ex, nil
	}

	ex.Base = node.Base
	if node.IsLocked() {
		ex.Locked = node.Locked.String()
	}
	ex.Mode = ModeAdditive
	if node.Base > constants.MultiplicativeBaseThreshold {
		ex.Mode = ModeMultiplicative
	}

	for _, arc := range idx.Incoming(nodeID) {
		p := idx.Probability(arc.Source)
		ex.Terms = append(ex.Terms, Term{
			Source:       arc.Source,
			Probability:  p,
			Weight:       arc.Weight,
			Contribution: p * arc.Weight,
		})
	}
	ex.Influence = e.Influence(idx, nodeID)
	ex.Raw = e.Combine(node.Base, ex.Influence)
	ex.RawApplied = !node.IsLocked()

	for i, r := range e.rules {
		if r.Kind == rules.KindOverride && !node.IsLocked() {
			if ok, err := rules.All(r.When, idx); err != nil || !ok {
				continue
			}
			for _, a := range r.Set {
				if a.Node == nodeID {
					ex.Overrides = append(ex.Overrides, Override{
						Rule:        i,
						Description: r.Description,
						Probability: rules.Clamp(a.Probability),
					})
				}
			}
			continue
		}
		if r.Kind != rules.KindInteraction || r.Target != nodeID {
			continue
		}
		ok, err := rules.All(r.When, idx)
		if err != nil || !ok {
			continue
		}
		term, err := rules.InteractionInfluence(r, idx)
		if err != nil {
			continue
		}
		ex.Terms = append(ex.Terms, Term{
			Source:       strings.Join(r.Factors, "*"),
			Weight:       r.Coefficient,
			Contribution: term,
			Interaction:  true,
		})
	}

	return ex, nil
}

// String renders the explanation as indented text.
func (ex *Explanation) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", ex.NodeID, ex.Kind)
	if ex.Variable != "" {
		fmt.Fprintf(&b, "  %s value %g -> p = %.4f\n", ex.Variable, ex.Value, ex.Raw)
		fmt.Fprintf(&b, "  probability: %.4f\n", ex.Probability)
		return b.String()
	}
	fmt.Fprintf(&b, "  base: %.4f (%s)\n", ex.Base, ex.Mode)
	if ex.Locked != "" {
		fmt.Fprintf(&b, "  locked: %s\n", ex.Locked)
	}
	for _, t := range ex.Terms {
		if t.Interaction {
			fmt.Fprintf(&b, "  + interaction %s x %.2f = %+.4f\n", t.Source, t.Weight, t.Contribution)
			continue
		}
		fmt.Fprintf(&b, "  + %s: %.4f x %+.2f = %+.4f\n", t.Source, t.Probability, t.Weight, t.Contribution)
	}
	fmt.Fprintf(&b, "  influence: %+.4f\n", ex.Influence)
	if ex.RawApplied {
		fmt.Fprintf(&b, "  combined: %.4f\n", ex.Raw)
	} else {
		fmt.Fprintf(&b, "  combined: %.4f (not applied, locked)\n", ex.Raw)
	}
	for _, o := range ex.Overrides {
		label := o.Description
		if label == "" {
			label = fmt.Sprintf("rule %d", o.Rule)
		}
		fmt.Fprintf(&b, "  override %s: %.4f\n", label, o.Probability)
	}
	fmt.Fprintf(&b, "  probability: %.4f\n", ex.Probability)
	return b.String()
}
