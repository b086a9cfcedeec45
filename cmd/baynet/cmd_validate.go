package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/baynet/internal/autosim"
	"github.com/nvandessel/baynet/internal/config"
	"github.com/nvandessel/baynet/internal/model"
	"github.com/nvandessel/baynet/internal/network"
)

type validateOutput struct {
	Valid      bool   `json:"valid"`
	Model      string `json:"model,omitempty"`
	Version    string `json:"version,omitempty"`
	Nodes      int    `json:"nodes"`
	Roots      int    `json:"roots"`
	Arcs       int    `json:"arcs"`
	Rules      int    `json:"rules"`
	Scenarios  int    `json:"scenarios"`
	Strategies int    `json:"strategies"`
	Goals      int    `json:"goals"`
	Error      string `json:"error,omitempty"`
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [model.yaml]",
		Short: "Validate a model document and the configuration",
		Long: `Load a model document and check it for consistency issues.

This command checks for:
  - Duplicate node ids and arcs that reference unknown nodes
  - Self-referencing arcs and degenerate continuous ranges
  - Root values outside their range or category list
  - Rules, scenarios, goals and strategies that name unknown nodes
  - Configured goal overrides that name unknown nodes

Examples:
  baynet validate                    # Configured or embedded model
  baynet validate ./my-model.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			path := cfg.Model.Path
			if p, _ := cmd.Flags().GetString("model"); p != "" {
				path = p
			}
			if len(args) == 1 {
				path = args[0]
			}

			out, verr := validateModel(path, cfg.Simulation.Goals)
			if jsonOut {
				if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
					return err
				}
				return verr
			}
			if verr != nil {
				return verr
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Model %s is valid.\n", out.Model)
			fmt.Fprintf(w, "  nodes:      %d (%d roots)\n", out.Nodes, out.Roots)
			fmt.Fprintf(w, "  arcs:       %d\n", out.Arcs)
			fmt.Fprintf(w, "  rules:      %d\n", out.Rules)
			fmt.Fprintf(w, "  scenarios:  %d\n", out.Scenarios)
			fmt.Fprintf(w, "  strategies: %d\n", out.Strategies)
			fmt.Fprintf(w, "  goals:      %d\n", out.Goals)
			return nil
		},
	}
}

// validateModel loads the model at path and checks the goal overrides
// against it.
func validateModel(path string, goalOverrides map[string]float64) (validateOutput, error) {
	m, err := model.Resolve(path)
	if err != nil {
		return validateOutput{Error: err.Error()}, err
	}

	out := validateOutput{
		Model:      m.Name,
		Version:    m.Version,
		Nodes:      len(m.Network.Nodes),
		Roots:      len(m.Network.RootNodes()),
		Arcs:       len(m.Network.Arcs),
		Rules:      len(m.Rules),
		Scenarios:  len(m.Scenarios),
		Strategies: len(m.Strategies),
		Goals:      len(m.Goals),
	}

	for node := range goalOverrides {
		if _, err := m.Network.Node(node); err != nil {
			err = fmt.Errorf("config goal override: %w", err)
			out.Error = err.Error()
			return out, err
		}
	}
	goals := autosim.WithThresholds(m.Goals, goalOverrides)
	for _, g := range goals {
		n, err := m.Network.Node(g.Node)
		if err != nil {
			err = fmt.Errorf("goal: %w", err)
			out.Error = err.Error()
			return out, err
		}
		if n.Kind == network.KindRoot {
			err = fmt.Errorf("goal %s targets a root node", g.Node)
			out.Error = err.Error()
			return out, err
		}
	}

	out.Valid = true
	return out, nil
}
