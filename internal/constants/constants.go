// Package constants provides named constants used throughout the baynet codebase.
// This centralizes magic numbers for better maintainability and documentation.
package constants

// Propagation constants.
const (
	// RelaxationPasses is the number of sweeps the engine makes over the
	// unlocked non-root nodes. The bound is what guarantees termination; the
	// engine performs no convergence check.
	RelaxationPasses = 5

	// MultiplicativeBaseThreshold switches the combination formula. Nodes whose
	// base is strictly above it use base * (1 + influence); the rest use
	// base + (1 - base) * influence.
	MultiplicativeBaseThreshold = 0.5
)

// Lock constants. The probability is written once, when the lock is toggled.
const (
	// ForcedHighProbability is assigned when a node enters the forced-high state.
	ForcedHighProbability = 0.9

	// ForcedLowProbability is assigned when a node enters the forced-low state.
	ForcedLowProbability = 0.1
)

// Automatic simulator constants.
const (
	// MaxTrialsPerTick is how many randomized mutations a tick may try before
	// leaving the live state unchanged.
	MaxTrialsPerTick = 10

	// DefaultTickIntervalMillis is the default cadence between ticks.
	DefaultTickIntervalMillis = 1500

	// ContinuousStepRange is the width of the uniform step applied to a
	// continuous root value, centred on zero.
	ContinuousStepRange = 20.0

	// ProbabilityStepRange is the width of the uniform step applied to a
	// probability root value, centred on zero.
	ProbabilityStepRange = 0.5

	// DefaultGoalThreshold is the goal threshold used when a model does not
	// declare one.
	DefaultGoalThreshold = 0.5
)

// Prognosis constants.
const (
	// FavorableScoreThreshold is the score above which a prognosis is favorable.
	FavorableScoreThreshold = 0.7

	// HighRiskScoreThreshold is the score below which a prognosis is high risk.
	HighRiskScoreThreshold = 0.45

	// DriverImpactThreshold is the absolute impact a root node needs to be
	// reported as a driver.
	DriverImpactThreshold = 0.05

	// MaxRiskDrivers and MaxProtectiveDrivers cap the driver lists.
	MaxRiskDrivers       = 3
	MaxProtectiveDrivers = 2
)
