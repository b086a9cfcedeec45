package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newExplainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain <node>",
		Short: "Show how a node's probability is computed",
		Long: `Break a node's probability down into its base, the combination mode,
each incoming arc's contribution and any interaction terms.

Examples:
  baynet explain SURVIVAL
  baynet explain RECID --scenario hr-aggressive`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

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

			ex, err := sess.Explain(args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), ex)
			}
			fmt.Fprint(cmd.OutOrStdout(), ex.String())
			return nil
		},
	}

	addEvidenceFlags(cmd)

	return cmd
}
