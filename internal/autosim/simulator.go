// Package autosim implements the automatic time-step simulator: a randomized
// hill-climb over root evidence that tries to lift goal outcomes above their
// thresholds.
//
// Each tick clones the live state, mutates one random root on the clone,
// recomputes it with the engine and keeps the clone only if a goal that is
// below its threshold strictly improves. Rejected clones are discarded, so the
// live state is never touched by a failed trial.
package autosim

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/nvandessel/baynet/internal/constants"
	"github.com/nvandessel/baynet/internal/engine"
	"github.com/nvandessel/baynet/internal/logging"
	"github.com/nvandessel/baynet/internal/model"
	"github.com/nvandessel/baynet/internal/network"
	"github.com/nvandessel/baynet/internal/rules"
)

// Config controls the simulator.
type Config struct {
	// MaxTrials is the number of mutations a tick may try.
	MaxTrials int

	// Interval is the delay between ticks when driven by a Runner.
	Interval time.Duration

	// Seed fixes the random source. Zero draws a seed from crypto/rand.
	Seed int64
}

// DefaultConfig returns the reference cadence: 10 trials every 1.5s.
func DefaultConfig() Config {
	return Config{
		MaxTrials: constants.MaxTrialsPerTick,
		Interval:  constants.DefaultTickIntervalMillis * time.Millisecond,
	}
}

// Simulator proposes goal-improving successors of a state. It never modifies
// the state it is given.
type Simulator struct {
	engine    *engine.Engine
	goals     []model.Goal
	config    Config
	decisions *logging.DecisionLogger
	logger    *slog.Logger

	mu    sync.Mutex
	rng   *rand.Rand
	ticks int
}

// New creates a simulator for goals. decisions may be nil.
func New(eng *engine.Engine, goals []model.Goal, config Config, decisions *logging.DecisionLogger, logger *slog.Logger) (*Simulator, error) {
	if config.MaxTrials <= 0 {
		config.MaxTrials = constants.MaxTrialsPerTick
	}
	if config.Interval <= 0 {
		config.Interval = constants.DefaultTickIntervalMillis * time.Millisecond
	}
	seed := config.Seed
	if seed == 0 {
		var err error
		seed, err = NewSeed()
		if err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Simulator{
		engine:    eng,
		goals:     goals,
		config:    config,
		decisions: decisions,
		logger:    logger,
		rng:       rand.New(rand.NewSource(seed)),
	}, nil
}

// Config returns the effective configuration.
func (sim *Simulator) Config() Config {
	return sim.config
}

// Goals returns the goals the simulator climbs towards.
func (sim *Simulator) Goals() []model.Goal {
	return sim.goals
}

// Check reports an error when a goal names a node s does not have.
func (sim *Simulator) Check(s *network.State) error {
	_, err := sim.goalValues(s)
	return err
}

// WithThresholds returns a copy of goals with thresholds replaced from
// overrides. Overrides for nodes that are not goals yet add new goals, in id
// order.
func WithThresholds(goals []model.Goal, overrides map[string]float64) []model.Goal {
	out := make([]model.Goal, 0, len(goals)+len(overrides))
	seen := make(map[string]bool, len(goals))
	for _, g := range goals {
		if t, ok := overrides[g.Node]; ok {
			g.Threshold = t
		}
		seen[g.Node] = true
		out = append(out, g)
	}
	for _, id := range slices.Sorted(maps.Keys(overrides)) {
		if !seen[id] {
			out = append(out, model.Goal{Node: id, Threshold: overrides[id]})
		}
	}
	return out
}

// Tick runs one hill-climb step against live. It returns the report of the
// first accepted trial, or nil when every goal is already met or no trial
// improved a failing goal. live is read but never modified.
func (sim *Simulator) Tick(live *network.State) (*engine.Report, error) {
	sim.mu.Lock()
	defer sim.mu.Unlock()

	sim.ticks++
	ticks.Inc()

	before, err := sim.goalValues(live)
	if err != nil {
		return nil, err
	}
	failing := sim.failing(before)
	if len(failing) == 0 {
		return nil, nil
	}
	if len(live.RootNodes()) == 0 {
		return nil, nil
	}

	for trial := 0; trial < sim.config.MaxTrials; trial++ {
		candidate := live.Clone()
		roots := candidate.RootNodes()
		root := roots[sim.rng.Intn(len(roots))]
		old := root.Value
		Mutate(root, sim.rng.Float64())

		rep, err := sim.engine.Run(candidate)
		if err != nil {
			return nil, fmt.Errorf("trial %d on %s: %w", trial, root.ID, err)
		}
		after, err := sim.goalValues(rep.State)
		if err != nil {
			return nil, err
		}

		accepted := improves(failing, before, after)
		trials.WithLabelValues(outcome(accepted)).Inc()
		sim.decisions.LogTrial(logging.Trial{
			Tick:     sim.ticks,
			Trial:    trial,
			Node:     root.ID,
			OldValue: old,
			NewValue: root.Value,
			Before:   before,
			After:    after,
			Accepted: accepted,
		})
		sim.logger.Log(context.Background(), logging.LevelTrace, "sim trial",
			"tick", sim.ticks, "trial", trial, "node", root.ID,
			"old", old, "new", root.Value, "accepted", accepted)

		if accepted {
			sim.logger.Debug("sim step accepted", "tick", sim.ticks, "node", root.ID, "trials", trial+1)
			return &rep, nil
		}
	}
	return nil, nil
}

// Mutate perturbs a root node's value using r, a uniform draw in [0,1).
// Continuous values take an integer step within [min,max], probability
// values a step within [0,1], and categorical values jump to a uniformly
// chosen category.
func Mutate(node *network.Node, r float64) {
	switch node.Variable {
	case network.VariableContinuous:
		v := node.Value + (r-0.5)*constants.ContinuousStepRange
		node.Value = math.Round(math.Max(node.Min, math.Min(node.Max, v)))
	case network.VariableProbability:
		node.Value = rules.Clamp(node.Value + (r-0.5)*constants.ProbabilityStepRange)
	case network.VariableCategorical:
		if n := len(node.Categories); n > 0 {
			node.Value = math.Min(math.Floor(r*float64(n)), float64(n-1))
		}
	}
}

func (sim *Simulator) goalValues(s *network.State) (map[string]float64, error) {
	out := make(map[string]float64, len(sim.goals))
	for _, g := range sim.goals {
		n, err := s.Node(g.Node)
		if err != nil {
			return nil, fmt.Errorf("goal: %w", err)
		}
		out[g.Node] = n.Probability
	}
	return out, nil
}

func (sim *Simulator) failing(values map[string]float64) []model.Goal {
	var out []model.Goal
	for _, g := range sim.goals {
		if values[g.Node] < g.Threshold {
			out = append(out, g)
		}
	}
	return out
}

// improves reports whether any failing goal is strictly higher after the
// trial than at the start of the tick.
func improves(failing []model.Goal, before, after map[string]float64) bool {
	for _, g := range failing {
		if after[g.Node] > before[g.Node] {
			return true
		}
	}
	return false
}

func outcome(accepted bool) string {
	if accepted {
		return "accepted"
	}
	return "rejected"
}
