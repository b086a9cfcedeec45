package main

import (
	"fmt"
	"maps"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nvandessel/baynet/internal/autosim"
	"github.com/nvandessel/baynet/internal/config"
	"github.com/nvandessel/baynet/internal/logging"
	"github.com/nvandessel/baynet/internal/model"
	"github.com/nvandessel/baynet/internal/network"
	"github.com/nvandessel/baynet/internal/session"
)

// tickRecord is one line of simulate output.
type tickRecord struct {
	Tick     int                `json:"tick"`
	Accepted bool               `json:"accepted"`
	Goals    map[string]float64 `json:"goals"`
}

type simulateOutput struct {
	Model    string               `json:"model"`
	Seed     int64                `json:"seed,omitempty"`
	Ticks    []tickRecord         `json:"ticks"`
	Accepted int                  `json:"accepted"`
	GoalsMet bool                 `json:"goals_met"`
	Roots    []session.RootConfig `json:"roots"`
	Results  []session.NodeResult `json:"results"`
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the automatic simulator for a number of ticks",
		Long: `Hill-climb the root evidence towards the model's outcome goals.

Each tick tries up to --trials random single-root mutations on a copy of
the state and keeps the first one that lifts a failing goal. The run ends
after --ticks ticks or as soon as every goal is met.

Examples:
  baynet simulate --scenario hr-aggressive --ticks 50
  baynet simulate --goal QOL=0.6 --seed 42
  baynet simulate --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			ticks, _ := cmd.Flags().GetInt("ticks")
			trials, _ := cmd.Flags().GetInt("trials")
			seed, _ := cmd.Flags().GetInt64("seed")
			goalFlags, _ := cmd.Flags().GetStringArray("goal")

			if ticks < 1 {
				return fmt.Errorf("--ticks must be at least 1, got %d", ticks)
			}
			goalOverrides, err := parseGoals(goalFlags)
			if err != nil {
				return err
			}

			env, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			sess, err := env.newSession()
			if err != nil {
				return err
			}
			if err := applyEvidence(cmd, sess); err != nil {
				return err
			}

			simCfg := autosim.Config{
				MaxTrials: env.cfg.Simulation.MaxTrials,
				Interval:  env.cfg.Simulation.Interval,
				Seed:      env.cfg.Simulation.Seed,
			}
			if cmd.Flags().Changed("trials") {
				simCfg.MaxTrials = trials
			}
			if cmd.Flags().Changed("seed") {
				simCfg.Seed = seed
			}

			overrides := maps.Clone(env.cfg.Simulation.Goals)
			if overrides == nil {
				overrides = make(map[string]float64)
			}
			maps.Copy(overrides, goalOverrides)
			goals := autosim.WithThresholds(env.model.Goals, overrides)
			if len(goals) == 0 {
				return fmt.Errorf("model %s defines no goals; pass --goal NODE=THRESHOLD", env.model.Name)
			}

			var decisions *logging.DecisionLogger
			if dir, err := config.Dir(); err == nil {
				decisions = logging.NewDecisionLogger(dir, env.cfg.Logging.Level)
			}
			defer decisions.Close()

			sim, err := autosim.New(sess.Engine(), goals, simCfg, decisions, env.logger)
			if err != nil {
				return fmt.Errorf("failed to create simulator: %w", err)
			}
			if err := sim.Check(sess.Snapshot()); err != nil {
				return err
			}
			runner := autosim.NewRunner(sess, sim, env.logger)

			out := simulateOutput{Model: env.model.Name, Seed: simCfg.Seed}
			w := cmd.OutOrStdout()
			for i := 1; i <= ticks; i++ {
				if goalsMet(sess.Snapshot(), goals) {
					break
				}
				accepted, err := runner.Step()
				if err != nil {
					return fmt.Errorf("tick %d: %w", i, err)
				}
				rec := tickRecord{Tick: i, Accepted: accepted, Goals: goalValues(sess.Snapshot(), goals)}
				out.Ticks = append(out.Ticks, rec)
				if accepted {
					out.Accepted++
				}
				if !jsonOut {
					fmt.Fprintf(w, "tick %3d  %-8s %s\n", rec.Tick, acceptLabel(accepted), formatGoals(goals, rec.Goals))
				}
			}

			snap := sess.Snapshot()
			out.GoalsMet = goalsMet(snap, goals)
			out.Roots = sess.Roots(env.lang)
			out.Results = sess.Results(env.lang)

			if jsonOut {
				return writeJSON(w, out)
			}

			fmt.Fprintf(w, "\n%d of %d ticks accepted; goals met: %v\n\n", out.Accepted, len(out.Ticks), out.GoalsMet)
			fmt.Fprintln(w, "Evidence:")
			for _, r := range out.Roots {
				fmt.Fprintf(w, "  %-32s %g\n", truncate(r.Name, 32), r.Value)
			}
			fmt.Fprintln(w)
			printResults(w, out.Results, false)
			return nil
		},
	}

	addEvidenceFlags(cmd)
	cmd.Flags().Int("ticks", 20, "Maximum number of ticks to run")
	cmd.Flags().Int("trials", 0, "Mutations tried per tick (default: config simulation.max_trials)")
	cmd.Flags().Int64("seed", 0, "Random seed for a reproducible run (default: config or random)")
	cmd.Flags().StringArray("goal", nil, "Goal threshold override as NODE=THRESHOLD (repeatable)")

	return cmd
}

func goalValues(s *network.State, goals []model.Goal) map[string]float64 {
	out := make(map[string]float64, len(goals))
	for _, g := range goals {
		if n, err := s.Node(g.Node); err == nil {
			out[g.Node] = n.Probability
		}
	}
	return out
}

func goalsMet(s *network.State, goals []model.Goal) bool {
	values := goalValues(s, goals)
	for _, g := range goals {
		if values[g.Node] < g.Threshold {
			return false
		}
	}
	return true
}

func formatGoals(goals []model.Goal, values map[string]float64) string {
	parts := make([]string, 0, len(goals))
	for _, g := range goals {
		parts = append(parts, fmt.Sprintf("%s=%s/%.0f%%", g.Node, strings.TrimSpace(percent(values[g.Node])), g.Threshold*100))
	}
	return strings.Join(parts, "  ")
}

func acceptLabel(accepted bool) string {
	if accepted {
		return "accepted"
	}
	return "-"
}
