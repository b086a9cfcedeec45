// Package guideline checks a computed network state against a model's
// ordered list of clinical guideline checks.
package guideline

import (
	"fmt"

	"github.com/nvandessel/baynet/internal/network"
	"github.com/nvandessel/baynet/internal/rules"
)

// Check is one guideline. It matches when every condition in When holds.
type Check struct {
	ID      string            `json:"id" yaml:"id" validate:"required"`
	Message network.Text      `json:"message" yaml:"message" validate:"required"`
	Warning bool              `json:"warning" yaml:"warning"`
	When    []rules.Condition `json:"when" yaml:"when" validate:"required,min=1,dive"`
}

// Set is the ordered check list of a model plus the message reported when
// no check matches.
type Set struct {
	Checks []Check      `json:"checks,omitempty" yaml:"checks,omitempty" validate:"dive"`
	OK     network.Text `json:"ok,omitempty" yaml:"ok,omitempty"`
}

// Verdict is the outcome of evaluating a Set.
type Verdict struct {
	CheckID string `json:"check_id,omitempty"`
	Message string `json:"message"`
	Warning bool   `json:"warning"`
}

// Evaluate returns the verdict of the first matching check, or the OK
// message if none matches. It never modifies s.
func (gs Set) Evaluate(s *network.State, lang string) (Verdict, error) {
	idx, err := network.NewIndex(s)
	if err != nil {
		return Verdict{}, err
	}
	for _, c := range gs.Checks {
		ok, err := rules.All(c.When, idx)
		if err != nil {
			return Verdict{}, fmt.Errorf("guideline %s: %w", c.ID, err)
		}
		if ok {
			return Verdict{CheckID: c.ID, Message: c.Message.Resolve(lang), Warning: c.Warning}, nil
		}
	}
	return Verdict{Message: gs.OK.Resolve(lang)}, nil
}

// Verify checks that every node a guideline reads exists.
func (gs Set) Verify(idx *network.Index) error {
	for _, c := range gs.Checks {
		for _, cond := range c.When {
			if _, err := idx.Lookup(cond.Node); err != nil {
				return fmt.Errorf("guideline %s: %w", c.ID, err)
			}
		}
	}
	return nil
}
