package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/baynet/internal/autosim"
	"github.com/nvandessel/baynet/internal/engine"
	"github.com/nvandessel/baynet/internal/logging"
	"github.com/nvandessel/baynet/internal/model"
	"github.com/nvandessel/baynet/internal/ratelimit"
	"github.com/nvandessel/baynet/internal/session"
)

// Server wraps the MCP SDK server around one simulation session.
type Server struct {
	server       *sdk.Server
	sess         *session.Session
	sim          *autosim.Simulator
	runner       *autosim.Runner
	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
	decisions    *logging.DecisionLogger
	logger       *slog.Logger
	language     string

	// ctx outlives individual tool calls; the simulator loop runs on it.
	ctx    context.Context
	cancel context.CancelFunc
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "baynet")
	Version string // Server version

	// Model is the template the session runs. Nil selects the embedded default.
	Model *model.Model

	// Language is the default display language.
	Language string

	// Simulation configures the automatic simulator; Goals overrides the
	// model's goal thresholds by node id.
	Simulation autosim.Config
	Goals      map[string]float64

	// Limits overrides the per-tool rate limits. Nil uses the defaults.
	Limits map[string]ratelimit.Limit

	// DataDir receives audit.jsonl and decisions.jsonl. Empty disables both.
	DataDir  string
	LogLevel string

	Logger *slog.Logger
}

// NewServer creates a new MCP server with baynet tools.
func NewServer(cfg *Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	m := cfg.Model
	if m == nil {
		var err error
		m, err = model.Default()
		if err != nil {
			return nil, fmt.Errorf("failed to load model: %w", err)
		}
	}

	eng := engine.New(engine.DefaultConfig(), m.Rules)
	sess, err := session.New(m, eng, session.Config{Language: cfg.Language}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	var decisions *logging.DecisionLogger
	var audit *AuditLogger
	if cfg.DataDir != "" {
		decisions = logging.NewDecisionLogger(cfg.DataDir, cfg.LogLevel)
		audit = NewAuditLogger(cfg.DataDir, logger)
	}

	goals := autosim.WithThresholds(m.Goals, cfg.Goals)
	sim, err := autosim.New(eng, goals, cfg.Simulation, decisions, logger)
	if err != nil {
		decisions.Close()
		audit.Close()
		return nil, fmt.Errorf("failed to create simulator: %w", err)
	}
	if err := sim.Check(sess.Snapshot()); err != nil {
		decisions.Close()
		audit.Close()
		return nil, fmt.Errorf("invalid simulator goals: %w", err)
	}

	// Create MCP server
	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		server:       mcpServer,
		sess:         sess,
		sim:          sim,
		runner:       autosim.NewRunner(sess, sim, logger),
		toolLimiters: ratelimit.NewToolLimiters(cfg.Limits),
		auditLogger:  audit,
		decisions:    decisions,
		logger:       logger,
		language:     sess.Language(),
		ctx:          ctx,
		cancel:       cancel,
	}

	s.registerTools()
	s.registerResources()

	logger.Debug("mcp server ready", "model", m.Name, "session", sess.ID())
	return s, nil
}

// Session returns the live session the tools operate on.
func (s *Server) Session() *session.Session {
	return s.sess
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.server.Run(ctx, &sdk.StdioTransport{})

	s.Close()

	return err
}

// Close stops the simulator and releases the log files.
func (s *Server) Close() error {
	s.runner.Stop()
	s.cancel()
	s.decisions.Close()
	return s.auditLogger.Close()
}
