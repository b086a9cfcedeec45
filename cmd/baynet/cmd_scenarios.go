package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

type scenarioInfo struct {
	ID     string             `json:"id"`
	Name   string             `json:"name"`
	Values map[string]float64 `json:"values"`
}

func newScenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List the model's preset scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			env, err := loadEnv(cmd)
			if err != nil {
				return err
			}

			list := make([]scenarioInfo, 0, len(env.model.Scenarios))
			for _, sc := range env.model.Scenarios {
				list = append(list, scenarioInfo{ID: sc.ID, Name: sc.Name.Resolve(env.lang), Values: sc.Values})
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"model":     env.model.Name,
					"scenarios": list,
					"count":     len(list),
				})
			}

			w := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintf(w, "%s defines no scenarios.\n", env.model.Name)
				return nil
			}
			fmt.Fprintf(w, "Scenarios of %s:\n\n", env.model.Name)
			for _, sc := range list {
				fmt.Fprintf(w, "  %-16s %s\n", sc.ID, sc.Name)
				var parts []string
				for _, id := range slices.Sorted(maps.Keys(sc.Values)) {
					parts = append(parts, fmt.Sprintf("%s=%g", id, sc.Values[id]))
				}
				fmt.Fprintf(w, "  %-16s %s\n\n", "", strings.Join(parts, " "))
			}
			return nil
		},
	}
}
