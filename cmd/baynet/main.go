package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "baynet",
		Short: "BAYNET - belief propagation what-if simulator",
		Long: `baynet propagates evidence through a small causal network and reports
the resulting probabilities of intermediate and outcome nodes.

Set evidence on root variables, pin intermediate nodes, compare treatment
strategies, or let the automatic simulator hill-climb towards outcome goals.`,
		SilenceUsage: true,
	}

	// Global flags
	addGlobalFlags(rootCmd)

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newExplainCmd(),
		newScenariosCmd(),
		newSimulateCmd(),
		newAnalyzeCmd(),
		newGraphCmd(),
		newValidateCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)

	return rootCmd
}

func addGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	cmd.PersistentFlags().String("model", "", "Model YAML file or embedded model name (default: config or cistonet)")
	cmd.PersistentFlags().String("lang", "", "Display language for names (default: config or en)")
}
