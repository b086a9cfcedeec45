package main

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/baynet/internal/config"
	"github.com/nvandessel/baynet/internal/logging"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage baynet configuration",
		Long: `View and modify baynet configuration settings.

Configuration is stored in ~/.baynet/config.yaml. BAYNET_* environment
variables override the file.

Examples:
  baynet config list                           # Show all settings
  baynet config get simulation.max_trials      # Get a specific setting
  baynet config set simulation.interval 500ms  # Set a setting
  baynet config set simulation.goals.QOL 0.6   # Override a goal threshold`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)

	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			w := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(w).Encode(cfg)
			}

			fmt.Fprintln(w, "Configuration (~/.baynet/config.yaml):")
			fmt.Fprintln(w)
			fmt.Fprintf(w, "  model.path:             %s\n", valueOrDefault(cfg.Model.Path, "(embedded cistonet)"))
			fmt.Fprintf(w, "  language:               %s\n", cfg.Language)
			fmt.Fprintf(w, "  logging.level:          %s\n", valueOrDefault(cfg.Logging.Level, "info"))
			fmt.Fprintln(w)
			fmt.Fprintln(w, "Simulation Settings:")
			fmt.Fprintf(w, "  simulation.interval:    %v\n", cfg.Simulation.Interval)
			fmt.Fprintf(w, "  simulation.max_trials:  %d\n", cfg.Simulation.MaxTrials)
			if cfg.Simulation.Seed != 0 {
				fmt.Fprintf(w, "  simulation.seed:        %d\n", cfg.Simulation.Seed)
			} else {
				fmt.Fprintln(w, "  simulation.seed:        (random)")
			}
			for _, node := range slices.Sorted(maps.Keys(cfg.Simulation.Goals)) {
				fmt.Fprintf(w, "  simulation.goals.%s: %.2f\n", node, cfg.Simulation.Goals[node])
			}
			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]
			w := cmd.OutOrStdout()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			value, found := getConfigValue(cfg, key)
			if !found {
				if jsonOut {
					json.NewEncoder(w).Encode(map[string]interface{}{
						"error": "key not found",
						"key":   key,
					})
				} else {
					fmt.Fprintf(w, "Unknown configuration key: %s\n", key)
				}
				return nil
			}

			if jsonOut {
				json.NewEncoder(w).Encode(map[string]interface{}{
					"key":   key,
					"value": value,
				})
			} else {
				fmt.Fprintf(w, "%s = %v\n", key, value)
			}

			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]
			value := args[1]
			w := cmd.OutOrStdout()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if err := setConfigValue(cfg, key, value); err != nil {
				if jsonOut {
					json.NewEncoder(w).Encode(map[string]interface{}{
						"error": err.Error(),
						"key":   key,
					})
				} else {
					fmt.Fprintf(w, "Error: %v\n", err)
				}
				return nil
			}

			// Save the config
			if err := saveConfig(cfg); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			if jsonOut {
				json.NewEncoder(w).Encode(map[string]interface{}{
					"status": "updated",
					"key":    key,
					"value":  value,
				})
			} else {
				fmt.Fprintf(w, "Set %s = %s\n", key, value)
			}

			return nil
		},
	}
}

// goalPrefix addresses one entry of simulation.goals.
const goalPrefix = "simulation.goals."

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.BaynetConfig, key string) (interface{}, bool) {
	if node, ok := strings.CutPrefix(key, goalPrefix); ok {
		v, found := cfg.Simulation.Goals[node]
		return v, found
	}

	switch key {
	case "model.path":
		return cfg.Model.Path, true
	case "language":
		return cfg.Language, true
	case "logging.level":
		return cfg.Logging.Level, true
	case "simulation.interval":
		return cfg.Simulation.Interval.String(), true
	case "simulation.max_trials":
		return cfg.Simulation.MaxTrials, true
	case "simulation.seed":
		return cfg.Simulation.Seed, true
	default:
		return nil, false
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.BaynetConfig, key, value string) error {
	if node, ok := strings.CutPrefix(key, goalPrefix); ok && node != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 || f > 1 {
			return fmt.Errorf("invalid goal threshold: %s (must be a number between 0 and 1)", value)
		}
		if cfg.Simulation.Goals == nil {
			cfg.Simulation.Goals = make(map[string]float64)
		}
		cfg.Simulation.Goals[node] = f
		return nil
	}

	switch key {
	case "model.path":
		cfg.Model.Path = value
	case "language":
		cfg.Language = value
	case "logging.level":
		if !logging.ValidLevel(value) {
			return fmt.Errorf("invalid log level: %s (valid: info, debug, trace)", value)
		}
		cfg.Logging.Level = value
	case "simulation.interval":
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid duration: %s", value)
		}
		cfg.Simulation.Interval = d
	case "simulation.max_trials":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid max_trials: %s (must be a positive integer)", value)
		}
		cfg.Simulation.MaxTrials = n
	case "simulation.seed":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid seed: %s", value)
		}
		cfg.Simulation.Seed = n
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

// saveConfig writes the configuration to ~/.baynet/config.yaml.
func saveConfig(cfg *config.BaynetConfig) error {
	dir, err := config.Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", config.DirName, err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func valueOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
