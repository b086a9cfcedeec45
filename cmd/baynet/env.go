package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nvandessel/baynet/internal/config"
	"github.com/nvandessel/baynet/internal/engine"
	"github.com/nvandessel/baynet/internal/logging"
	"github.com/nvandessel/baynet/internal/model"
	"github.com/nvandessel/baynet/internal/session"
)

// cliEnv is what every command resolves before it runs: the effective
// configuration, the model template, the display language and the logger.
type cliEnv struct {
	cfg    *config.BaynetConfig
	model  *model.Model
	lang   string
	logger *slog.Logger
}

// loadEnv loads ~/.baynet/config.yaml and BAYNET_* overrides, applies the
// global --model and --lang flags and resolves the model.
func loadEnv(cmd *cobra.Command) (*cliEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if path, _ := cmd.Flags().GetString("model"); path != "" {
		cfg.Model.Path = path
	}
	if lang, _ := cmd.Flags().GetString("lang"); lang != "" {
		cfg.Language = lang
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	m, err := model.Resolve(cfg.Model.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	return &cliEnv{
		cfg:    cfg,
		model:  m,
		lang:   cfg.Language,
		logger: logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr()),
	}, nil
}

// newSession starts a session on a fresh copy of the model.
func (e *cliEnv) newSession() (*session.Session, error) {
	eng := engine.New(engine.DefaultConfig(), e.model.Rules)
	sess, err := session.New(e.model, eng, session.Config{Language: e.lang}, e.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	return sess, nil
}

// addEvidenceFlags registers the flags that shape the state a command
// reports on.
func addEvidenceFlags(cmd *cobra.Command) {
	cmd.Flags().String("scenario", "", "Load a preset scenario before applying --set")
	cmd.Flags().StringArray("set", nil, "Root evidence as NODE=VALUE (repeatable)")
	cmd.Flags().StringArray("lock", nil, "Toggle the lock of a computed node (repeatable; twice pins it low)")
}

// applyEvidence loads --scenario, then applies every --set as one batch,
// then toggles each --lock in order.
func applyEvidence(cmd *cobra.Command, sess *session.Session) error {
	if scenario, _ := cmd.Flags().GetString("scenario"); scenario != "" {
		if err := sess.LoadScenario(scenario); err != nil {
			return err
		}
	}

	sets, _ := cmd.Flags().GetStringArray("set")
	values, err := parseAssignments(sets)
	if err != nil {
		return err
	}
	if len(values) > 0 {
		if _, err := sess.ApplyEvidence(values); err != nil {
			return err
		}
	}

	locks, _ := cmd.Flags().GetStringArray("lock")
	for _, id := range locks {
		if _, err := sess.ToggleLock(strings.TrimSpace(id)); err != nil {
			return err
		}
	}
	return nil
}

// parseAssignments splits NODE=VALUE items. Later items win.
func parseAssignments(items []string) (map[string]string, error) {
	out := make(map[string]string, len(items))
	for _, item := range items {
		id, value, ok := strings.Cut(item, "=")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid assignment %q (want NODE=VALUE)", item)
		}
		out[id] = strings.TrimSpace(value)
	}
	return out, nil
}

// parseGoals parses NODE=THRESHOLD items with thresholds in [0,1].
func parseGoals(items []string) (map[string]float64, error) {
	raw, err := parseAssignments(items)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(raw))
	for id, s := range raw {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v < 0 || v > 1 {
			return nil, fmt.Errorf("invalid goal threshold %q for %s (must be between 0 and 1)", s, id)
		}
		out[id] = v
	}
	return out, nil
}

// writeJSON encodes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	return nil
}

// percent formats a probability for terminal output.
func percent(p float64) string {
	return fmt.Sprintf("%5.1f%%", p*100)
}
