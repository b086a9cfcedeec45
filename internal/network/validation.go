package network

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ContinuousPivot is the reference point of the continuous-to-probability
// mapping (value - ContinuousPivot) / (max - ContinuousPivot).
const ContinuousPivot = 50.0

// validate is a singleton validator instance.
var validate = validator.New()

// Issue kinds reported by Validate.
const (
	IssueInvalidField     = "invalid-field"
	IssueDuplicate        = "duplicate"
	IssueDangling         = "dangling"
	IssueSelfReference    = "self-reference"
	IssueMissingVariable  = "missing-variable"
	IssueDegenerateRange  = "degenerate-range"
	IssueMissingCategory  = "missing-categories"
	IssueValueOutOfBounds = "value-out-of-bounds"
)

// ValidationError describes one structural problem in a network.
type ValidationError struct {
	NodeID string `json:"node_id,omitempty"`
	Field  string `json:"field"`
	Ref    string `json:"ref,omitempty"`
	Issue  string `json:"issue"`
}

// String returns a human-readable description of the validation error.
func (e ValidationError) String() string {
	var b strings.Builder
	b.WriteString(e.Issue)
	if e.NodeID != "" {
		b.WriteString(": ")
		b.WriteString(e.NodeID)
	}
	b.WriteString(" in ")
	b.WriteString(e.Field)
	if e.Ref != "" {
		b.WriteString(" references ")
		b.WriteString(e.Ref)
	}
	return b.String()
}

// ValidationErrors is the error returned by Validate.
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	parts := make([]string, len(ve))
	for i, e := range ve {
		parts[i] = e.String()
	}
	return "invalid network: " + strings.Join(parts, "; ")
}

// Validate checks a network for everything the engine assumes: well-formed
// fields, unique node ids, arcs that reference existing nodes, and root
// nodes whose value can be mapped to a probability. A network that fails
// validation must not be computed.
func Validate(n *Network) error {
	var errs ValidationErrors

	if err := validate.Struct(n); err != nil {
		errs = append(errs, fieldErrors(err)...)
	}

	ids := make(map[string]bool, len(n.Nodes))
	for i := range n.Nodes {
		node := &n.Nodes[i]
		if ids[node.ID] {
			errs = append(errs, ValidationError{NodeID: node.ID, Field: "id", Issue: IssueDuplicate})
		}
		ids[node.ID] = true
		if node.IsRoot() {
			errs = append(errs, validateRoot(node)...)
		}
	}

	for i, arc := range n.Arcs {
		field := fmt.Sprintf("arcs[%d]", i)
		if !ids[arc.Source] {
			errs = append(errs, ValidationError{NodeID: arc.Target, Field: field + ".source", Ref: arc.Source, Issue: IssueDangling})
		}
		if !ids[arc.Target] {
			errs = append(errs, ValidationError{NodeID: arc.Source, Field: field + ".target", Ref: arc.Target, Issue: IssueDangling})
		}
		if arc.Source == arc.Target {
			errs = append(errs, ValidationError{NodeID: arc.Source, Field: field, Ref: arc.Target, Issue: IssueSelfReference})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// CheckRootValue reports whether a root node's value can be mapped to a
// probability.
func CheckRootValue(node *Node) error {
	if errs := validateRoot(node); len(errs) > 0 {
		return ValidationErrors(errs)
	}
	return nil
}

func validateRoot(node *Node) []ValidationError {
	bounds := func() []ValidationError {
		return []ValidationError{{NodeID: node.ID, Field: "value", Ref: fmt.Sprint(node.Value), Issue: IssueValueOutOfBounds}}
	}

	switch node.Variable {
	case VariableContinuous:
		var errs []ValidationError
		if node.Max == ContinuousPivot || node.Max <= node.Min {
			errs = append(errs, ValidationError{NodeID: node.ID, Field: "max", Ref: fmt.Sprint(node.Max), Issue: IssueDegenerateRange})
		}
		if node.Value < node.Min || node.Value > node.Max || node.Value != math.Trunc(node.Value) {
			errs = append(errs, bounds()...)
		}
		return errs
	case VariableCategorical:
		if len(node.Categories) == 0 {
			return []ValidationError{{NodeID: node.ID, Field: "categories", Issue: IssueMissingCategory}}
		}
		if _, err := node.CategoryAt(node.Value); err != nil {
			return bounds()
		}
	case VariableProbability:
		if node.Value < 0 || node.Value > 1 || math.IsNaN(node.Value) {
			return bounds()
		}
	default:
		return []ValidationError{{NodeID: node.ID, Field: "variable", Issue: IssueMissingVariable}}
	}
	return nil
}

// fieldErrors converts validator errors to ValidationError records.
func fieldErrors(err error) []ValidationError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []ValidationError{{Field: "network", Ref: err.Error(), Issue: IssueInvalidField}}
	}
	out := make([]ValidationError, 0, len(verrs))
	for _, e := range verrs {
		ref := e.Tag()
		if e.Param() != "" {
			ref += "=" + e.Param()
		}
		out = append(out, ValidationError{
			Field: e.Namespace(),
			Ref:   ref,
			Issue: IssueInvalidField,
		})
	}
	return out
}
