package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nvandessel/baynet/internal/guideline"
	"github.com/nvandessel/baynet/internal/network"
	"github.com/nvandessel/baynet/internal/prognosis"
	"github.com/nvandessel/baynet/internal/rules"
	"github.com/nvandessel/baynet/internal/session"
)

// runOutput is the --json document of the run command.
type runOutput struct {
	Model     string               `json:"model"`
	Session   string               `json:"session"`
	Results   []session.NodeResult `json:"results"`
	Rules     []rules.Result       `json:"rules,omitempty"`
	Guideline guideline.Verdict    `json:"guideline"`
	Prognosis prognosis.Summary    `json:"prognosis"`
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Propagate evidence and print every node's probability",
		Long: `Compute the network once and print the probability of every node,
the guideline verdict and the prognosis.

Examples:
  baynet run                                     # Model defaults
  baynet run --scenario hr-advanced              # Preset scenario
  baynet run --set ETA_PAZIENTE=80 --set FUMO=0.9
  baynet run --lock RECID                        # Pin recurrence high
  baynet run --json                              # Machine-readable output`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			showRoots, _ := cmd.Flags().GetBool("roots")

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

			out := runOutput{
				Model:     env.model.Name,
				Session:   sess.ID(),
				Results:   sess.Results(env.lang),
				Rules:     sess.FiredRules(),
				Guideline: sess.Guideline(),
				Prognosis: sess.Summary(env.lang),
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s (session %s)\n\n", out.Model, out.Session)
			printResults(w, out.Results, showRoots)
			printRules(w, out.Rules)
			printVerdict(w, out.Guideline, out.Prognosis)
			return nil
		},
	}

	addEvidenceFlags(cmd)
	cmd.Flags().Bool("roots", false, "Include root nodes in the table")

	return cmd
}

// printResults writes the node table. Root nodes are skipped unless
// withRoots is set.
func printResults(w io.Writer, results []session.NodeResult, withRoots bool) {
	fmt.Fprintf(w, "%-32s %-13s %8s  %s\n", "NODE", "KIND", "P", "LOCK")
	for _, r := range results {
		if r.Kind == string(network.KindRoot) && !withRoots {
			continue
		}
		lock := ""
		if r.Locked != "" && r.Locked != network.Unlocked.String() {
			lock = r.Locked
		}
		fmt.Fprintf(w, "%-32s %-13s %8s  %s\n", truncate(r.Name, 32), r.Kind, percent(r.Probability), lock)
	}
}

func printRules(w io.Writer, rs []rules.Result) {
	for _, r := range rs {
		if !r.Fired {
			continue
		}
		desc := r.Description
		if desc == "" {
			desc = string(r.Kind)
		}
		fmt.Fprintf(w, "\nRule fired: %s", desc)
	}
	fmt.Fprintln(w)
}

func printVerdict(w io.Writer, v guideline.Verdict, p prognosis.Summary) {
	if v.Message != "" {
		label := "Guideline"
		if v.Warning {
			label = "Guideline WARNING"
		}
		fmt.Fprintf(w, "%s: %s\n", label, v.Message)
	}
	fmt.Fprintf(w, "Prognosis: %s (score %.2f)\n", p.Verdict, p.Score)
	for _, d := range p.Risk {
		fmt.Fprintf(w, "  risk:       %s (%+.2f)\n", d.Name, d.Impact)
	}
	for _, d := range p.Protective {
		fmt.Fprintf(w, "  protective: %s (%+.2f)\n", d.Name, d.Impact)
	}
}

// truncate shortens s to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
