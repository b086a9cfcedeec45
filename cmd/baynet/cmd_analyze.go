package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/baynet/internal/prognosis"
	"github.com/nvandessel/baynet/internal/session"
)

type analyzeOutput struct {
	Analysis *prognosis.Analysis  `json:"analysis"`
	Applied  string               `json:"applied,omitempty"`
	Results  []session.NodeResult `json:"results,omitempty"`
}

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Compare the model's treatment strategies",
		Long: `Apply each treatment strategy to its own copy of the current state,
recompute it and score it with the model's objective. The current state is
not modified unless --apply is given.

Examples:
  baynet analyze --scenario hr-advanced
  baynet analyze --scenario lr-elderly --apply best`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			apply, _ := cmd.Flags().GetString("apply")

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

			analysis, err := sess.Analyze(env.lang)
			if err != nil {
				return err
			}
			out := analyzeOutput{Analysis: analysis}

			if apply != "" {
				id := apply
				if id == "best" {
					id = analysis.Best.StrategyID
				}
				st, ok := findStrategy(env.model.Strategies, id)
				if !ok {
					return fmt.Errorf("unknown strategy %q", id)
				}
				if err := sess.ApplyStrategy(st); err != nil {
					return err
				}
				out.Applied = st.ID
				out.Results = sess.Results(env.lang)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-52s %6s\n", "STRATEGY", "SCORE")
			fmt.Fprintf(w, "%-52s %6.3f\n", "(current)", analysis.Baseline.Score)
			for _, o := range analysis.Results {
				marker := ""
				if o.StrategyID == analysis.Best.StrategyID {
					marker = "  <- best"
				}
				fmt.Fprintf(w, "%-52s %6.3f%s\n", truncate(o.Name, 52), o.Score, marker)
			}

			if out.Applied != "" {
				fmt.Fprintf(w, "\nApplied %s:\n\n", out.Applied)
				printResults(w, out.Results, false)
			}
			return nil
		},
	}

	addEvidenceFlags(cmd)
	cmd.Flags().String("apply", "", "Apply a strategy id (or 'best') after the comparison")

	return cmd
}

func findStrategy(strategies []prognosis.Strategy, id string) (prognosis.Strategy, bool) {
	for _, st := range strategies {
		if st.ID == id {
			return st, true
		}
	}
	return prognosis.Strategy{}, false
}
