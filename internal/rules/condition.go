package rules

import (
	"fmt"

	"github.com/nvandessel/baynet/internal/network"
)

// Field selects which node attribute a condition reads.
type Field string

const (
	FieldProbability Field = "probability"
	FieldValue       Field = "value"
	FieldBase        Field = "base"
)

// Op is a comparison operator.
type Op string

const (
	OpGT  Op = "gt"
	OpGTE Op = "gte"
	OpLT  Op = "lt"
	OpLTE Op = "lte"
	OpEQ  Op = "eq"
	OpNE  Op = "ne"
)

// Condition compares one node attribute against a threshold. Conditions
// never mutate the network.
type Condition struct {
	Node      string  `json:"node" yaml:"node" validate:"required"`
	Field     Field   `json:"field,omitempty" yaml:"field,omitempty" validate:"omitempty,oneof=probability value base"`
	Op        Op      `json:"op" yaml:"op" validate:"required,oneof=gt gte lt lte eq ne"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

// String renders the condition as "NODE.field op threshold".
func (c Condition) String() string {
	return fmt.Sprintf("%s.%s %s %g", c.Node, c.field(), c.Op, c.Threshold)
}

func (c Condition) field() Field {
	if c.Field == "" {
		return FieldProbability
	}
	return c.Field
}

// Eval evaluates the condition against the indexed network.
func (c Condition) Eval(idx *network.Index) (bool, error) {
	node, err := idx.Lookup(c.Node)
	if err != nil {
		return false, fmt.Errorf("condition %s: %w", c, err)
	}

	var v float64
	switch c.field() {
	case FieldProbability:
		v = node.Probability
	case FieldValue:
		v = node.Value
	case FieldBase:
		v = node.Base
	default:
		return false, fmt.Errorf("condition %s: unknown field %q", c, c.Field)
	}

	switch c.Op {
	case OpGT:
		return v > c.Threshold, nil
	case OpGTE:
		return v >= c.Threshold, nil
	case OpLT:
		return v < c.Threshold, nil
	case OpLTE:
		return v <= c.Threshold, nil
	case OpEQ:
		return v == c.Threshold, nil
	case OpNE:
		return v != c.Threshold, nil
	default:
		return false, fmt.Errorf("condition %s: unknown operator %q", c, c.Op)
	}
}

// All reports whether every condition holds. An empty list always holds.
func All(conds []Condition, idx *network.Index) (bool, error) {
	for _, c := range conds {
		ok, err := c.Eval(idx)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
