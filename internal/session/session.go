// Package session owns the live network state of one simulation and is the
// only validated entry point for evidence: root value writes, lock toggles,
// calibration, scenario presets and resets all go through a Session, which
// recomputes the state after every effective change.
//
// All public methods are safe for concurrent use. They are serialized by a
// single mutex, so the engine itself never runs concurrently on one state.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nvandessel/baynet/internal/constants"
	"github.com/nvandessel/baynet/internal/engine"
	"github.com/nvandessel/baynet/internal/guideline"
	"github.com/nvandessel/baynet/internal/model"
	"github.com/nvandessel/baynet/internal/network"
	"github.com/nvandessel/baynet/internal/prognosis"
	"github.com/nvandessel/baynet/internal/rules"
)

var (
	// ErrInvalidEvidence is returned when a value cannot be parsed or is
	// outside the node's domain. The node keeps its previous value.
	ErrInvalidEvidence = errors.New("invalid evidence")

	// ErrNotRoot is returned when evidence targets a computed node.
	ErrNotRoot = errors.New("not a root node")

	// ErrNotLockable is returned when a lock or calibration targets a root node.
	ErrNotLockable = errors.New("root nodes cannot be locked or calibrated")

	// ErrSimulationRunning is returned by operations that are rejected while
	// the automatic simulator is active.
	ErrSimulationRunning = errors.New("automatic simulation is running")

	// ErrSimulationStopped is returned by Tick when the simulator was stopped.
	ErrSimulationStopped = errors.New("automatic simulation is not running")
)

// Config holds session configuration.
type Config struct {
	// Language selects localized names in guideline verdicts. Default: "en".
	Language string
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{Language: network.DefaultLanguage}
}

// Session is one simulation: a model template, the live state cloned from
// it and the engine that recomputes it.
type Session struct {
	mu      sync.RWMutex
	id      string
	config  Config
	model   *model.Model
	engine  *engine.Engine
	state   *network.State
	fired   []rules.Result
	verdict guideline.Verdict
	running bool
	logger  *slog.Logger
}

// New starts a session on a fresh clone of m and computes it once.
func New(m *model.Model, eng *engine.Engine, config Config, logger *slog.Logger) (*Session, error) {
	if config.Language == "" {
		config.Language = network.DefaultLanguage
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Session{
		id:     uuid.NewString(),
		config: config,
		model:  m,
		engine: eng,
		state:  m.NewState(),
	}
	s.logger = logger.With("session", s.id)
	if err := s.recompute(); err != nil {
		return nil, err
	}
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Language returns the default display language.
func (s *Session) Language() string {
	return s.config.Language
}

// Model returns the template the session was started from.
func (s *Session) Model() *model.Model {
	return s.model
}

// Engine returns the session's propagation engine.
func (s *Session) Engine() *engine.Engine {
	return s.engine
}

// Snapshot returns a deep copy of the live state.
func (s *Session) Snapshot() *network.State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state.Clone()
}

// FiredRules returns what each rule did during the last recomputation.
func (s *Session) FiredRules() []rules.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]rules.Result, len(s.fired))
	copy(out, s.fired)
	return out
}

// Guideline returns the guideline verdict of the last recomputation.
func (s *Session) Guideline() guideline.Verdict {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.verdict
}

// SetRootValue parses raw according to the node's variable kind and writes
// it. A value equal to the current one is a no-op and reports false.
func (s *Session) SetRootValue(nodeID, raw string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, v, err := s.parse(nodeID, raw)
	if err != nil {
		return false, err
	}
	if v == node.Value {
		return false, nil
	}
	node.Value = v
	s.logger.Debug("evidence set", "node", nodeID, "value", v)
	return true, s.recompute()
}

// ApplyEvidence writes a batch of raw root values with a single
// recomputation. The batch is validated as a whole first; if any entry is
// invalid nothing is written.
func (s *Session) ApplyEvidence(values map[string]string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := sortedKeys(values)
	nodes := make([]*network.Node, len(ids))
	parsed := make([]float64, len(ids))
	for i, id := range ids {
		node, v, err := s.parse(id, values[id])
		if err != nil {
			return false, err
		}
		nodes[i], parsed[i] = node, v
	}

	changed := false
	for i, node := range nodes {
		if v := parsed[i]; node.Value != v {
			node.Value = v
			changed = true
		}
	}
	if !changed {
		return false, nil
	}
	s.logger.Debug("evidence batch applied", "count", len(values))
	return true, s.recompute()
}

// ToggleLock cycles a non-root node through unlocked, forced-high and
// forced-low. Entering a forced state pins the probability immediately;
// unlocking leaves it for the recomputation to overwrite.
func (s *Session) ToggleLock(nodeID string) (network.LockState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return network.Unlocked, ErrSimulationRunning
	}
	node, err := s.state.Node(nodeID)
	if err != nil {
		return network.Unlocked, err
	}
	if node.IsRoot() {
		return network.Unlocked, fmt.Errorf("%s: %w", nodeID, ErrNotLockable)
	}

	node.Locked = node.Locked.Next()
	switch node.Locked {
	case network.ForcedHigh:
		node.Probability = constants.ForcedHighProbability
	case network.ForcedLow:
		node.Probability = constants.ForcedLowProbability
	}
	s.logger.Debug("lock toggled", "node", nodeID, "lock", node.Locked.String())
	return node.Locked, s.recompute()
}

// SetBase changes the baseline probability of a non-root node.
func (s *Session) SetBase(nodeID string, base float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSimulationRunning
	}
	node, err := s.state.Node(nodeID)
	if err != nil {
		return err
	}
	if node.IsRoot() {
		return fmt.Errorf("%s: %w", nodeID, ErrNotLockable)
	}
	if base < 0 || base > 1 || math.IsNaN(base) {
		return fmt.Errorf("%w: base %v for %s is outside [0, 1]", ErrInvalidEvidence, base, nodeID)
	}
	node.Base = base
	s.logger.Debug("base calibrated", "node", nodeID, "base", base)
	return s.recompute()
}

// SetArcWeight changes the weight of the arc at index.
func (s *Session) SetArcWeight(index int, weight float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSimulationRunning
	}
	if index < 0 || index >= len(s.state.Arcs) {
		return fmt.Errorf("arc index %d out of range [0, %d)", index, len(s.state.Arcs))
	}
	if weight < -1 || weight > 1 || math.IsNaN(weight) {
		return fmt.Errorf("%w: weight %v is outside [-1, 1]", ErrInvalidEvidence, weight)
	}
	s.state.Arcs[index].Weight = weight
	arc := s.state.Arcs[index]
	s.logger.Debug("arc calibrated", "source", arc.Source, "target", arc.Target, "weight", weight)
	return s.recompute()
}

// LoadScenario replaces the live state with a fresh clone of the template,
// applies the scenario's root values and stops the simulator.
func (s *Session) LoadScenario(id string) error {
	sc, err := s.model.Scenario(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.model.NewState()
	if err := writeValues(next, sc.Values); err != nil {
		return fmt.Errorf("scenario %s: %w", id, err)
	}
	s.state = next
	s.running = false
	s.logger.Debug("scenario loaded", "scenario", id)
	return s.recompute()
}

// ApplyStrategy writes a strategy's root changes onto the live state.
func (s *Session) ApplyStrategy(st prognosis.Strategy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeValues(s.state, st.Changes); err != nil {
		return fmt.Errorf("strategy %s: %w", st.ID, err)
	}
	s.logger.Debug("strategy applied", "strategy", st.ID)
	return s.recompute()
}

// Reset discards the live state and every lock or calibration on it, and
// stops the simulator.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = s.model.NewState()
	s.running = false
	s.logger.Debug("session reset")
	return s.recompute()
}

// Recompute runs the engine over the live state.
func (s *Session) Recompute() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.recompute()
}

// recompute must be called with mu held.
func (s *Session) recompute() error {
	rep, err := s.engine.Run(s.state)
	if err != nil {
		recomputations.WithLabelValues("error").Inc()
		return err
	}
	s.fired = rep.Rules
	verdict, err := s.model.Guidelines.Evaluate(s.state, s.config.Language)
	if err != nil {
		recomputations.WithLabelValues("error").Inc()
		return err
	}
	s.verdict = verdict
	recomputations.WithLabelValues("ok").Inc()
	return nil
}

// parse resolves nodeID to a root node of the live state and validates raw
// against it. Must be called with mu held.
func (s *Session) parse(nodeID, raw string) (*network.Node, float64, error) {
	node, err := s.state.Node(nodeID)
	if err != nil {
		return nil, 0, err
	}
	if !node.IsRoot() {
		return nil, 0, fmt.Errorf("%s: %w", nodeID, ErrNotRoot)
	}
	v, err := ParseValue(node, raw)
	if err != nil {
		rejectedEvidence.Inc()
		return nil, 0, err
	}
	return node, v, nil
}

// ParseValue parses raw for a root node: a float for probability nodes and
// an integer for continuous and categorical ones. The parsed value must be
// inside the node's domain.
func ParseValue(node *network.Node, raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	var v float64
	switch node.Variable {
	case network.VariableProbability:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("%w: %s expects a number, got %q", ErrInvalidEvidence, node.ID, raw)
		}
		v = f
	case network.VariableContinuous, network.VariableCategorical:
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s expects an integer, got %q", ErrInvalidEvidence, node.ID, raw)
		}
		v = float64(i)
	default:
		return 0, fmt.Errorf("%w: %s has no variable kind", ErrInvalidEvidence, node.ID)
	}
	if err := checkValue(node, v); err != nil {
		return 0, err
	}
	return v, nil
}

func checkValue(node *network.Node, v float64) error {
	candidate := *node
	candidate.Value = v
	if err := network.CheckRootValue(&candidate); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvidence, err)
	}
	return nil
}

// writeValues validates every value against its root node before writing
// any of them.
func writeValues(st *network.State, values map[string]float64) error {
	ids := sortedKeys(values)
	for _, id := range ids {
		node, err := st.Node(id)
		if err != nil {
			return err
		}
		if !node.IsRoot() {
			return fmt.Errorf("%s: %w", id, ErrNotRoot)
		}
		if err := checkValue(node, values[id]); err != nil {
			return err
		}
	}
	for _, id := range ids {
		node, _ := st.Node(id)
		node.Value = values[id]
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
