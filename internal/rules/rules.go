// Package rules implements the post-relaxation rule hooks that let a model
// apply corrections the generic propagation formula cannot express.
//
// A rule is data: a kind tag plus the parameters of that kind. Rules are
// applied once per recomputation, strictly in declaration order, and each
// rule sees the state as left by the rules before it. There is no priority
// and no re-triggering: if rule A changes a value that would flip rule B's
// condition, B observes the change only when it is declared after A. Model
// authors must order rules accordingly.
package rules

import (
	"fmt"
	"math"

	"github.com/nvandessel/baynet/internal/constants"
	"github.com/nvandessel/baynet/internal/network"
)

// Kind tags the rule variant.
type Kind string

const (
	// KindOverride assigns fixed probabilities to nodes, e.g. a categorical
	// choice that makes an outcome practically impossible.
	KindOverride Kind = "override"

	// KindInteraction layers a cross-term between parent nodes onto a target
	// node's already computed probability.
	KindInteraction Kind = "interaction"

	// KindScript runs a Lua predicate and action.
	KindScript Kind = "script"
)

// Assignment sets one node's probability.
type Assignment struct {
	Node        string  `json:"node" yaml:"node" validate:"required"`
	Probability float64 `json:"probability" yaml:"probability" validate:"gte=0,lte=1"`
}

// Script holds the Lua source of a script rule. When is a Lua expression;
// an empty When always holds. Do is a Lua chunk.
type Script struct {
	When string `json:"when,omitempty" yaml:"when,omitempty"`
	Do   string `json:"do" yaml:"do" validate:"required"`
}

// Rule is a (condition, action) pair. When lists conditions that must all
// hold for the action to run; the variant-specific fields describe the action.
type Rule struct {
	Kind        Kind        `json:"kind" yaml:"kind" validate:"required,oneof=override interaction script"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	When        []Condition `json:"when,omitempty" yaml:"when,omitempty" validate:"dive"`

	// override
	Set []Assignment `json:"set,omitempty" yaml:"set,omitempty" validate:"dive"`

	// interaction
	Target      string   `json:"target,omitempty" yaml:"target,omitempty"`
	Factors     []string `json:"factors,omitempty" yaml:"factors,omitempty"`
	Coefficient float64  `json:"coefficient,omitempty" yaml:"coefficient,omitempty"`

	// script
	Script *Script `json:"script,omitempty" yaml:"script,omitempty"`
}

// Engine is the part of the propagation engine a rule action may call to
// re-derive values with the same formulas the relaxation uses.
type Engine interface {
	Combine(base, influence float64) float64
	Influence(idx *network.Index, nodeID string) float64
}

// Result records what one rule did during an Apply call.
type Result struct {
	Index       int    `json:"index"`
	Kind        Kind   `json:"kind"`
	Description string `json:"description,omitempty"`
	Fired       bool   `json:"fired"`
}

// Check verifies that every node a rule references exists and that each
// variant carries its parameters.
func Check(rs []Rule, idx *network.Index) error {
	for i, r := range rs {
		refs := make([]string, 0, len(r.When)+len(r.Set)+len(r.Factors)+1)
		for _, c := range r.When {
			refs = append(refs, c.Node)
		}
		switch r.Kind {
		case KindOverride:
			if len(r.Set) == 0 {
				return fmt.Errorf("rule %d: override rule has no assignments", i)
			}
			for _, a := range r.Set {
				refs = append(refs, a.Node)
			}
		case KindInteraction:
			if r.Target == "" || len(r.Factors) == 0 {
				return fmt.Errorf("rule %d: interaction rule needs a target and factors", i)
			}
			refs = append(refs, r.Target)
			refs = append(refs, r.Factors...)
		case KindScript:
			if r.Script == nil || r.Script.Do == "" {
				return fmt.Errorf("rule %d: script rule has no action", i)
			}
		default:
			return fmt.Errorf("rule %d: unknown kind %q", i, r.Kind)
		}
		for _, id := range refs {
			if _, err := idx.Lookup(id); err != nil {
				return fmt.Errorf("rule %d (%s): %w", i, r.Kind, err)
			}
		}
	}
	return nil
}

// Apply runs every rule once, in order. A failing rule aborts the pass and
// leaves the mutations of the rules before it in place.
func Apply(rs []Rule, idx *network.Index, eng Engine) ([]Result, error) {
	results := make([]Result, 0, len(rs))
	var vm *luaVM
	defer func() {
		if vm != nil {
			vm.close()
		}
	}()

	for i, r := range rs {
		res := Result{Index: i, Kind: r.Kind, Description: r.Description}

		ok, err := All(r.When, idx)
		if err != nil {
			return results, fmt.Errorf("rule %d: %w", i, err)
		}
		if !ok {
			results = append(results, res)
			continue
		}

		switch r.Kind {
		case KindOverride:
			res.Fired = true
			for _, a := range r.Set {
				node, err := idx.Lookup(a.Node)
				if err != nil {
					return results, fmt.Errorf("rule %d: %w", i, err)
				}
				if node.IsLocked() {
					continue
				}
				node.Probability = Clamp(a.Probability)
			}
		case KindInteraction:
			res.Fired = true
			if err := applyInteraction(r, idx); err != nil {
				return results, fmt.Errorf("rule %d: %w", i, err)
			}
		case KindScript:
			if vm == nil {
				vm = newLuaVM(idx, eng)
			}
			fired, err := vm.run(r.Script)
			if err != nil {
				return results, fmt.Errorf("rule %d: %w", i, err)
			}
			res.Fired = fired
		default:
			return results, fmt.Errorf("rule %d: unknown kind %q", i, r.Kind)
		}
		results = append(results, res)
	}
	return results, nil
}

// InteractionInfluence returns the cross-term r contributes: the product of
// the factor probabilities scaled by the coefficient.
func InteractionInfluence(r Rule, idx *network.Index) (float64, error) {
	term := r.Coefficient
	for _, id := range r.Factors {
		node, err := idx.Lookup(id)
		if err != nil {
			return 0, err
		}
		term *= node.Probability
	}
	return term, nil
}

func applyInteraction(r Rule, idx *network.Index) error {
	target, err := idx.Lookup(r.Target)
	if err != nil {
		return err
	}
	if target.IsLocked() {
		return nil
	}
	influence, err := InteractionInfluence(r, idx)
	if err != nil {
		return err
	}
	target.Probability = Clamp(Layer(target.Probability, target.Base, influence))
	return nil
}

// Layer adds an influence term to an existing probability using the branch
// of the combination formula selected by base.
func Layer(p, base, influence float64) float64 {
	if base > constants.MultiplicativeBaseThreshold {
		return p * (1 + influence)
	}
	return p + (1-base)*influence
}

// Clamp limits p to [0, 1].
func Clamp(p float64) float64 {
	return math.Max(0, math.Min(1, p))
}
