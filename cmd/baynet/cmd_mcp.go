package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/baynet/internal/autosim"
	"github.com/nvandessel/baynet/internal/config"
	"github.com/nvandessel/baynet/internal/mcp"
	"github.com/nvandessel/baynet/internal/visualization"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Run the MCP server over stdio",
		Long: `Run a Model Context Protocol server over stdio that exposes one live
simulation session as tools: set evidence, load scenarios, toggle locks,
explain nodes, drive the automatic simulator and compare strategies.

Tool calls are audited to ~/.baynet/audit.jsonl. At debug or trace log
level, simulator trials are recorded to ~/.baynet/decisions.jsonl.

Examples:
  baynet mcp-server
  baynet mcp-server --http localhost:9090   # Also serve graph and /metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			httpAddr, _ := cmd.Flags().GetString("http")
			dataDir, _ := cmd.Flags().GetString("data-dir")

			env, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			if dataDir == "" {
				if dataDir, err = config.Dir(); err != nil {
					return err
				}
			}

			srv, err := mcp.NewServer(&mcp.Config{
				Name:     "baynet",
				Version:  version,
				Model:    env.model,
				Language: env.lang,
				Simulation: autosim.Config{
					MaxTrials: env.cfg.Simulation.MaxTrials,
					Interval:  env.cfg.Simulation.Interval,
					Seed:      env.cfg.Simulation.Seed,
				},
				Goals:    env.cfg.Simulation.Goals,
				DataDir:  dataDir,
				LogLevel: env.cfg.Logging.Level,
				Logger:   env.logger,
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if httpAddr != "" {
				viz := visualization.NewServer(srv.Session(), env.lang)
				go func() {
					if err := viz.ListenAndServe(ctx, httpAddr); err != nil {
						env.logger.Warn("graph server stopped", "addr", httpAddr, "error", err)
					}
				}()
				env.logger.Info("graph server listening", "addr", httpAddr)
			}

			env.logger.Info("mcp server starting", "model", env.model.Name, "session", srv.Session().ID())
			return srv.Run(ctx)
		},
	}

	cmd.Flags().String("http", "", "Also serve the live graph, results and /metrics on this address")
	cmd.Flags().String("data-dir", "", "Directory for audit and decision logs (default: ~/.baynet)")

	return cmd
}
