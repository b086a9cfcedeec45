package prognosis

import (
	"errors"
	"fmt"
	"sort"

	"github.com/nvandessel/baynet/internal/network"
)

// ErrNoStrategies is returned by Analyze when there is nothing to compare.
var ErrNoStrategies = errors.New("no strategies to analyze")

// Strategy is a named set of root value changes.
type Strategy struct {
	ID      string             `json:"id" yaml:"id" validate:"required"`
	Name    network.Text       `json:"name" yaml:"name"`
	Changes map[string]float64 `json:"changes" yaml:"changes" validate:"required,min=1"`
}

// Calculator recomputes a state. *engine.Engine satisfies it.
type Calculator interface {
	Calculate(s *network.State) (*network.State, error)
}

// Outcome is the result of one strategy.
type Outcome struct {
	StrategyID    string             `json:"strategy_id"`
	Name          string             `json:"name"`
	Score         float64            `json:"score"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// Analysis compares every strategy against the current state.
type Analysis struct {
	Baseline Outcome   `json:"baseline"`
	Results  []Outcome `json:"results"`
	Best     Outcome   `json:"best"`
}

// ApplyChanges writes each change to the value of its root node.
func ApplyChanges(s *network.State, changes map[string]float64) error {
	ids := make([]string, 0, len(changes))
	for id := range changes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		node, err := s.Node(id)
		if err != nil {
			return err
		}
		if !node.IsRoot() {
			return fmt.Errorf("node %s is not a root node", id)
		}
		node.Value = changes[id]
	}
	return nil
}

// Analyze applies every strategy to its own clone of live, recomputes it
// and scores it with objective. The first strategy with the highest score
// is best. live is not modified.
func Analyze(calc Calculator, live *network.State, strategies []Strategy, objective []Term, lang string) (*Analysis, error) {
	if len(strategies) == 0 {
		return nil, ErrNoStrategies
	}

	a := &Analysis{
		Baseline: outcome("", "current", live, objective),
		Results:  make([]Outcome, 0, len(strategies)),
	}

	bestIdx := -1
	for _, st := range strategies {
		trial := live.Clone()
		if err := ApplyChanges(trial, st.Changes); err != nil {
			return nil, fmt.Errorf("strategy %s: %w", st.ID, err)
		}
		trial, err := calc.Calculate(trial)
		if err != nil {
			return nil, fmt.Errorf("strategy %s: %w", st.ID, err)
		}
		out := outcome(st.ID, st.Name.Resolve(lang), trial, objective)
		a.Results = append(a.Results, out)
		if bestIdx < 0 || out.Score > a.Results[bestIdx].Score {
			bestIdx = len(a.Results) - 1
		}
	}
	a.Best = a.Results[bestIdx]
	return a, nil
}

func outcome(id, name string, s *network.State, objective []Term) Outcome {
	probs := s.Probabilities()
	picked := make(map[string]float64, len(objective))
	for _, t := range objective {
		picked[t.Node] = probs[t.Node]
	}
	if name == "" {
		name = id
	}
	return Outcome{
		StrategyID:    id,
		Name:          name,
		Score:         Score(objective, s),
		Probabilities: picked,
	}
}
