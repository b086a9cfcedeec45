// Package config provides unified configuration loading for baynet.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/baynet/internal/constants"
	"github.com/nvandessel/baynet/internal/logging"
)

// DirName is the per-user data directory under $HOME.
const DirName = ".baynet"

// BaynetConfig contains all baynet configuration settings.
type BaynetConfig struct {
	// Model selects the model template.
	Model ModelConfig `json:"model" yaml:"model"`

	// Simulation contains settings for the automatic time-step simulator.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Logging contains settings for operational and decision logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Language is the display language for node names and messages.
	Language string `json:"language" yaml:"language" env:"BAYNET_LANG"`
}

// ModelConfig points at a model document.
type ModelConfig struct {
	// Path is a YAML model file. Empty selects the embedded CistoNet model;
	// a bare name selects another embedded model.
	Path string `json:"path,omitempty" yaml:"path,omitempty" env:"BAYNET_MODEL"`
}

// SimulationConfig configures the automatic simulator.
type SimulationConfig struct {
	// Interval is the delay between ticks.
	Interval time.Duration `json:"interval" yaml:"interval" env:"BAYNET_SIM_INTERVAL"`

	// MaxTrials is the number of mutations tried per tick.
	MaxTrials int `json:"max_trials" yaml:"max_trials" env:"BAYNET_SIM_MAX_TRIALS"`

	// Seed fixes the random source for reproducible runs. 0 = random.
	Seed int64 `json:"seed,omitempty" yaml:"seed,omitempty" env:"BAYNET_SIM_SEED"`

	// Goals overrides model goal thresholds by node id, e.g. QOL: 0.6.
	// From the environment: BAYNET_SIM_GOALS="QOL:0.6,SURVIVAL:0.7".
	Goals map[string]float64 `json:"goals,omitempty" yaml:"goals,omitempty" env:"BAYNET_SIM_GOALS"`
}

// LoggingConfig configures baynet's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables decision logging of accepted simulator trials to
	// ~/.baynet/decisions.jsonl; "trace" records rejected trials too.
	Level string `json:"level" yaml:"level" env:"BAYNET_LOG_LEVEL"`
}

// Default returns a BaynetConfig with sensible defaults.
func Default() *BaynetConfig {
	return &BaynetConfig{
		Simulation: SimulationConfig{
			Interval:  constants.DefaultTickIntervalMillis * time.Millisecond,
			MaxTrials: constants.MaxTrialsPerTick,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Language: "en",
	}
}

// Dir returns ~/.baynet.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(homeDir, DirName), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.baynet/config.yaml -> environment variables
func Load() (*BaynetConfig, error) {
	config := Default()

	// Try to load from default config file
	if dir, err := Dir(); err == nil {
		configPath := filepath.Join(dir, "config.yaml")
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	// Apply environment variable overrides
	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*BaynetConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Expand environment variables and ~ in the model path
	config.Model.Path = expandPath(config.Model.Path)

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *BaynetConfig) Validate() error {
	if c.Simulation.Interval <= 0 {
		return fmt.Errorf("simulation interval must be positive, got %v", c.Simulation.Interval)
	}

	if c.Simulation.MaxTrials < 1 {
		return fmt.Errorf("max_trials must be at least 1, got %d", c.Simulation.MaxTrials)
	}

	for node, threshold := range c.Simulation.Goals {
		if threshold < 0 || threshold > 1 {
			return fmt.Errorf("goal %s threshold must be between 0 and 1, got %f", node, threshold)
		}
	}

	if c.Logging.Level != "" && !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// applyEnvOverrides applies BAYNET_* environment variable overrides to the config.
// Unset variables leave the loaded value alone.
func applyEnvOverrides(config *BaynetConfig) error {
	if err := env.Parse(config); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	config.Model.Path = expandPath(config.Model.Path)
	return nil
}

// expandPath expands ${VAR} patterns and a leading ~/ in a path.
func expandPath(s string) string {
	if strings.Contains(s, "${") {
		s = os.Expand(s, os.Getenv)
	}
	if rest, ok := strings.CutPrefix(s, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			s = filepath.Join(home, rest)
		}
	}
	return s
}
