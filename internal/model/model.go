// Package model loads the immutable template a simulation session is built
// from: the network, its rule hooks and the presets, goals, guideline checks
// and prognosis settings that accompany it.
package model

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/baynet/internal/guideline"
	"github.com/nvandessel/baynet/internal/network"
	"github.com/nvandessel/baynet/internal/prognosis"
	"github.com/nvandessel/baynet/internal/rules"
)

//go:embed models/*.yaml
var builtin embed.FS

// DefaultName is the embedded model used when no model path is configured.
const DefaultName = "cistonet"

// ErrUnknownScenario is returned for a scenario id the model does not define.
var ErrUnknownScenario = errors.New("unknown scenario")

var validate = validator.New()

// Scenario is a named preset of root values.
type Scenario struct {
	ID     string             `json:"id" yaml:"id" validate:"required"`
	Name   network.Text       `json:"name" yaml:"name"`
	Values map[string]float64 `json:"values" yaml:"values" validate:"required,min=1"`
}

// Goal is a target outcome for the automatic simulator.
type Goal struct {
	Node      string  `json:"node" yaml:"node" validate:"required"`
	Threshold float64 `json:"threshold" yaml:"threshold" validate:"gte=0,lte=1"`
}

// Model is a complete, validated model template. Nothing in a Model is
// mutated after Load; sessions work on clones of Network.
type Model struct {
	Name        string       `json:"name" yaml:"name" validate:"required"`
	Version     string       `json:"version,omitempty" yaml:"version,omitempty"`
	Description network.Text `json:"description,omitempty" yaml:"description,omitempty"`

	Network    network.Network      `json:"network" yaml:"network" validate:"-"`
	Rules      []rules.Rule         `json:"rules,omitempty" yaml:"rules,omitempty" validate:"dive"`
	Scenarios  []Scenario           `json:"scenarios,omitempty" yaml:"scenarios,omitempty" validate:"dive"`
	Goals      []Goal               `json:"goals,omitempty" yaml:"goals,omitempty" validate:"dive"`
	Guidelines guideline.Set        `json:"guidelines,omitempty" yaml:"guidelines,omitempty"`
	Prognosis  prognosis.Config     `json:"prognosis,omitempty" yaml:"prognosis,omitempty"`
	Objective  []prognosis.Term     `json:"objective,omitempty" yaml:"objective,omitempty" validate:"dive"`
	Strategies []prognosis.Strategy `json:"strategies,omitempty" yaml:"strategies,omitempty" validate:"dive"`
}

// Parse decodes and validates a YAML model document.
func Parse(data []byte) (*Model, error) {
	var m Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing model: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Load reads a model from a YAML file.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model file: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Builtin loads an embedded model by name.
func Builtin(name string) (*Model, error) {
	data, err := builtin.ReadFile("models/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("builtin model %q: %w", name, err)
	}
	return Parse(data)
}

// Default loads the embedded CistoNet model.
func Default() (*Model, error) {
	return Builtin(DefaultName)
}

// Resolve loads the model at path, or the default model when path is empty.
// A bare name without directory or extension selects an embedded model.
func Resolve(path string) (*Model, error) {
	if path == "" {
		return Default()
	}
	if !strings.ContainsAny(path, `/\`) && filepath.Ext(path) == "" {
		return Builtin(path)
	}
	return Load(path)
}

// NewState returns a fresh deep copy of the template network.
func (m *Model) NewState() *network.State {
	return m.Network.Clone()
}

// Scenario returns the scenario with the given id.
func (m *Model) Scenario(id string) (*Scenario, error) {
	for i := range m.Scenarios {
		if m.Scenarios[i].ID == id {
			return &m.Scenarios[i], nil
		}
	}
	return nil, fmt.Errorf("scenario %q: %w", id, ErrUnknownScenario)
}

// Goal returns the goal for node, if one is defined.
func (m *Model) Goal(node string) (Goal, bool) {
	for _, g := range m.Goals {
		if g.Node == node {
			return g, true
		}
	}
	return Goal{}, false
}

// Validate checks struct tags, network structure and every cross reference.
func (m *Model) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("invalid model: %s", formatValidationError(err))
	}
	if err := network.Validate(&m.Network); err != nil {
		return err
	}

	idx, err := network.NewIndex(&m.Network)
	if err != nil {
		return err
	}
	if err := rules.Check(m.Rules, idx); err != nil {
		return fmt.Errorf("invalid model: %w", err)
	}
	if err := m.Guidelines.Verify(idx); err != nil {
		return fmt.Errorf("invalid model: %w", err)
	}

	seen := make(map[string]bool, len(m.Scenarios))
	for _, sc := range m.Scenarios {
		if seen[sc.ID] {
			return fmt.Errorf("invalid model: duplicate scenario %q", sc.ID)
		}
		seen[sc.ID] = true
		if err := checkRootValues(idx, sc.Values); err != nil {
			return fmt.Errorf("invalid model: scenario %s: %w", sc.ID, err)
		}
	}
	for _, st := range m.Strategies {
		if err := checkRootValues(idx, st.Changes); err != nil {
			return fmt.Errorf("invalid model: strategy %s: %w", st.ID, err)
		}
	}
	for _, g := range m.Goals {
		node, err := idx.Lookup(g.Node)
		if err != nil {
			return fmt.Errorf("invalid model: goal: %w", err)
		}
		if node.IsRoot() {
			return fmt.Errorf("invalid model: goal %s is a root node", g.Node)
		}
	}
	for _, terms := range [][]prognosis.Term{m.Prognosis.Score, m.Objective} {
		for _, t := range terms {
			if _, err := idx.Lookup(t.Node); err != nil {
				return fmt.Errorf("invalid model: score term: %w", err)
			}
		}
	}
	return nil
}

// checkRootValues verifies that each value targets a root node and is valid
// for its variable kind.
func checkRootValues(idx *network.Index, values map[string]float64) error {
	ids := make([]string, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		node, err := idx.Lookup(id)
		if err != nil {
			return err
		}
		if !node.IsRoot() {
			return fmt.Errorf("node %s is not a root node", id)
		}
		candidate := *node
		candidate.Value = values[id]
		if err := network.CheckRootValue(&candidate); err != nil {
			return err
		}
	}
	return nil
}

// formatValidationError converts validator errors into a readable message.
func formatValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msg := ""
	for i, e := range verrs {
		if i > 0 {
			msg += "; "
		}
		switch e.Tag() {
		case "required":
			msg += fmt.Sprintf("%s is required", e.Namespace())
		case "min":
			msg += fmt.Sprintf("%s must have at least %s entries", e.Namespace(), e.Param())
		case "oneof":
			msg += fmt.Sprintf("%s must be one of [%s]", e.Namespace(), e.Param())
		case "gte", "lte":
			msg += fmt.Sprintf("%s must be %s %s", e.Namespace(), e.Tag(), e.Param())
		default:
			msg += fmt.Sprintf("%s failed %s", e.Namespace(), e.Tag())
		}
	}
	return msg
}
