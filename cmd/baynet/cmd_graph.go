package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/baynet/internal/session"
	"github.com/nvandessel/baynet/internal/visualization"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the network with its probabilities",
		Long: `Output the computed network in DOT (Graphviz) or JSON format, or serve
it over HTTP together with the results and Prometheus metrics.

Examples:
  baynet graph | dot -Tsvg > cistonet.svg
  baynet graph --format json --scenario hr-advanced
  baynet graph --serve localhost:8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			serve, _ := cmd.Flags().GetString("serve")

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

			if cmd.Flags().Changed("serve") {
				ctx, cancel := context.WithCancel(cmd.Context())
				defer cancel()

				sigCh := make(chan os.Signal, 1)
				notifySignals(sigCh)
				go func() {
					select {
					case <-sigCh:
						cancel()
					case <-ctx.Done():
					}
				}()
				return runGraphServer(ctx, cmd, sess, env.lang, serve)
			}

			snap := sess.Snapshot()
			switch visualization.Format(format) {
			case visualization.FormatDOT:
				fmt.Fprint(cmd.OutOrStdout(), visualization.RenderDOT(snap, env.lang))
			case visualization.FormatJSON:
				return writeJSON(cmd.OutOrStdout(), visualization.RenderJSON(snap, env.lang))
			default:
				return fmt.Errorf("unsupported format %q (use 'dot' or 'json')", format)
			}
			return nil
		},
	}

	addEvidenceFlags(cmd)
	cmd.Flags().String("format", "dot", "Output format: dot or json")
	cmd.Flags().String("serve", "", "Serve the graph over HTTP on this address (empty picks a free localhost port)")
	cmd.Flags().Lookup("serve").NoOptDefVal = "localhost:0"

	return cmd
}

// runGraphServer serves sess over HTTP and blocks until ctx is cancelled.
func runGraphServer(ctx context.Context, cmd *cobra.Command, sess *session.Session, lang, addr string) error {
	srv := visualization.NewServer(sess, lang)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx, addr) }()

	// Wait for server to start
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if srv.Addr() != "" {
			break
		}
		select {
		case err := <-errCh:
			return fmt.Errorf("graph server: %w", err)
		case <-time.After(10 * time.Millisecond):
		}
	}
	if srv.Addr() == "" {
		return fmt.Errorf("graph server did not start within 3s")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Graph server running at http://%s/ (metrics at /metrics)\n", srv.Addr())
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	if err := <-errCh; err != nil {
		return fmt.Errorf("graph server: %w", err)
	}
	return nil
}
