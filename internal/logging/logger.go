// Package logging provides leveled logging and the simulator decision trace
// for baynet. It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - A DecisionLogger for structured JSONL trial records (~/.baynet/decisions.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace is a custom slog level below Debug. At this level every
// simulator trial is logged, not only accepted ones.
const LevelTrace = slog.LevelDebug - 4

// DecisionFile is the name of the decision trace inside the data directory.
const DecisionFile = "decisions.jsonl"

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// ValidLevel reports whether s names a supported level.
func ValidLevel(s string) bool {
	switch strings.ToLower(s) {
	case "info", "debug", "trace":
		return true
	}
	return false
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Trial is one speculative mutation tried by the automatic simulator.
type Trial struct {
	Session  string             `json:"session,omitempty"`
	Tick     int                `json:"tick"`
	Trial    int                `json:"trial"`
	Node     string             `json:"node"`
	OldValue float64            `json:"old_value"`
	NewValue float64            `json:"new_value"`
	Before   map[string]float64 `json:"before"`
	After    map[string]float64 `json:"after"`
	Accepted bool               `json:"accepted"`
}

// DecisionLogger writes structured decision events as JSONL.
// It is safe for concurrent use. A nil DecisionLogger is safe to use;
// all methods are no-ops on nil receiver.
type DecisionLogger struct {
	mu    sync.Mutex
	w     io.WriteCloser
	trace bool
}

// NewDecisionLogger creates a decision logger writing to dir/decisions.jsonl.
// At "info" level (the default), returns nil and no file is created.
// At "debug" only accepted trials are recorded; at "trace" every trial is.
// Returns nil if the file cannot be opened. All methods are nil-safe.
func NewDecisionLogger(dir string, level string) *DecisionLogger {
	lvl := ParseLevel(level)
	if lvl == slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	path := filepath.Join(dir, DecisionFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &DecisionLogger{w: f, trace: lvl <= LevelTrace}
}

// Log writes a decision event as a single JSONL line.
// A "time" field is added automatically. The caller's map is not mutated.
// Safe to call on nil receiver.
func (dl *DecisionLogger) Log(event map[string]any) {
	if dl == nil {
		return
	}

	entry := make(map[string]any, len(event)+1)
	for k, v := range event {
		entry[k] = v
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)
	dl.write(entry)
}

// LogTrial records a simulator trial. Rejected trials are only written at
// trace level. Safe to call on nil receiver.
func (dl *DecisionLogger) LogTrial(t Trial) {
	if dl == nil || (!t.Accepted && !dl.trace) {
		return
	}
	dl.write(struct {
		Event string `json:"event"`
		Time  string `json:"time"`
		Trial
	}{
		Event: "sim_trial",
		Time:  time.Now().UTC().Format(time.RFC3339Nano),
		Trial: t,
	})
}

func (dl *DecisionLogger) write(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	data = append(data, '\n')

	dl.mu.Lock()
	defer dl.mu.Unlock()

	if dl.w == nil {
		return
	}
	_, _ = dl.w.Write(data)
}

// Close closes the underlying file. Safe to call on nil receiver.
func (dl *DecisionLogger) Close() {
	if dl == nil {
		return
	}

	dl.mu.Lock()
	defer dl.mu.Unlock()

	if dl.w != nil {
		dl.w.Close()
		dl.w = nil
	}
}
