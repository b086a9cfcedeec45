package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/baynet/internal/network"
	"github.com/nvandessel/baynet/internal/prognosis"
	"github.com/nvandessel/baynet/internal/visualization"
)

// maxSteps caps a single baynet_auto_sim step request.
const maxSteps = 100

// ResultsURI is the resource that renders the live results as markdown.
const ResultsURI = "baynet://results"

// registerTools registers all baynet MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "baynet_get_nodes",
		Description: "List the evidence inputs (root nodes) with their current values, ranges and categories",
	}, s.handleGetNodes)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "baynet_get_results",
		Description: "Get the computed probability of every node, the guideline verdict and the prognosis",
	}, s.handleGetResults)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "baynet_set_node_value",
		Description: "Set the evidence value of one root node and recompute the network",
	}, s.handleSetNodeValue)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "baynet_set_scenario",
		Description: "Set several root values at once; the whole set is rejected if any value is invalid",
	}, s.handleSetScenario)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "baynet_load_scenario",
		Description: "Load a preset scenario onto a fresh copy of the model, or list the presets",
	}, s.handleLoadScenario)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "baynet_toggle_lock",
		Description: "Cycle the evidence pin of a computed node: unlocked, forced high (0.9), forced low (0.1)",
	}, s.handleToggleLock)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "baynet_calibrate",
		Description: "Expert mode: change a computed node's baseline probability or an arc's weight",
	}, s.handleCalibrate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "baynet_explain",
		Description: "Break down how a node's probability is computed from its base and incoming arcs",
	}, s.handleExplain)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "baynet_auto_sim",
		Description: "Control the automatic simulator that hill-climbs root evidence towards the outcome goals",
	}, s.handleAutoSim)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "baynet_reset",
		Description: "Discard all evidence, locks and calibration and return to the model's initial state",
	}, s.handleReset)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "baynet_analyze",
		Description: "Compare the model's treatment strategies on copies of the current state",
	}, s.handleAnalyze)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "baynet_graph",
		Description: "Render the network with its current probabilities as DOT (Graphviz) or JSON",
	}, s.handleGraph)
}

// registerResources registers MCP resources for auto-loading into context.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         ResultsURI,
		Name:        "baynet-results",
		Description: "Current outcome probabilities, guideline verdict and prognosis of the simulation session.",
		MIMEType:    "text/markdown",
	}, s.handleResultsResource)
}

// lang returns the requested language or the server default.
func (s *Server) lang(in LanguageInput) string {
	if in.Language != "" {
		return in.Language
	}
	return s.language
}

// results collects the state of the session after a call.
func (s *Server) results(lang string, changed bool, message string) ResultsOutput {
	return ResultsOutput{
		Results:   s.sess.Results(lang),
		Rules:     s.sess.FiredRules(),
		Guideline: s.sess.Guideline(),
		Prognosis: s.sess.Summary(lang),
		Running:   s.sess.Running(),
		Changed:   changed,
		Message:   message,
	}
}

// handleResultsResource renders the live results as markdown.
func (s *Server) handleResultsResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	lang := s.language
	summary := s.sess.Summary(lang)
	verdict := s.sess.Guideline()

	var sb strings.Builder
	sb.WriteString("# Simulation Results\n\n")
	fmt.Fprintf(&sb, "Model: %s\n\n", s.sess.Model().Name)

	sb.WriteString("| Node | Kind | Probability | Lock |\n")
	sb.WriteString("|---|---|---|---|\n")
	for _, r := range s.sess.Results(lang) {
		if r.Kind == string(network.KindRoot) {
			continue
		}
		fmt.Fprintf(&sb, "| %s | %s | %.1f%% | %s |\n", r.Name, r.Kind, r.Probability*100, r.Locked)
	}

	fmt.Fprintf(&sb, "\n**Prognosis:** %s (score %.2f)\n", summary.Verdict, summary.Score)
	for _, d := range summary.Risk {
		fmt.Fprintf(&sb, "- risk: %s (%+.2f)\n", d.Name, d.Impact)
	}
	for _, d := range summary.Protective {
		fmt.Fprintf(&sb, "- protective: %s (%+.2f)\n", d.Name, d.Impact)
	}

	label := "Guideline"
	if verdict.Warning {
		label = "Guideline warning"
	}
	if verdict.Message != "" {
		fmt.Fprintf(&sb, "\n**%s:** %s\n", label, verdict.Message)
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      ResultsURI,
				MIMEType: "text/markdown",
				Text:     sb.String(),
			},
		},
	}, nil
}

// handleGetNodes implements the baynet_get_nodes tool.
func (s *Server) handleGetNodes(ctx context.Context, req *sdk.CallToolRequest, args GetNodesInput) (_ *sdk.CallToolResult, _ GetNodesOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("baynet_get_nodes", start, retErr, sanitizeToolParams(map[string]any{
			"language": args.Language,
		}))
	}()

	roots := s.sess.Roots(s.lang(args.LanguageInput))
	return nil, GetNodesOutput{Roots: roots, Count: len(roots)}, nil
}

// handleGetResults implements the baynet_get_results tool.
func (s *Server) handleGetResults(ctx context.Context, req *sdk.CallToolRequest, args GetResultsInput) (_ *sdk.CallToolResult, _ ResultsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("baynet_get_results", start, retErr, sanitizeToolParams(map[string]any{
			"language": args.Language,
		}))
	}()

	return nil, s.results(s.lang(args.LanguageInput), false, ""), nil
}

// handleSetNodeValue implements the baynet_set_node_value tool.
func (s *Server) handleSetNodeValue(ctx context.Context, req *sdk.CallToolRequest, args SetNodeValueInput) (_ *sdk.CallToolResult, _ ResultsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("baynet_set_node_value", start, retErr, sanitizeToolParams(map[string]any{
			"node_id": args.NodeID,
			"value":   args.Value,
		}))
	}()

	if err := s.toolLimiters.Check("baynet_set_node_value"); err != nil {
		return nil, ResultsOutput{}, err
	}
	if args.NodeID == "" {
		return nil, ResultsOutput{}, fmt.Errorf("'node_id' parameter is required")
	}

	changed, err := s.sess.SetRootValue(args.NodeID, args.Value)
	if err != nil {
		return nil, ResultsOutput{}, err
	}

	msg := fmt.Sprintf("%s set to %s", args.NodeID, strings.TrimSpace(args.Value))
	if !changed {
		msg = fmt.Sprintf("%s already has value %s", args.NodeID, strings.TrimSpace(args.Value))
	}
	return nil, s.results(s.lang(args.LanguageInput), changed, msg), nil
}

// handleSetScenario implements the baynet_set_scenario tool.
func (s *Server) handleSetScenario(ctx context.Context, req *sdk.CallToolRequest, args SetScenarioInput) (_ *sdk.CallToolResult, _ ResultsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("baynet_set_scenario", start, retErr, sanitizeToolParams(map[string]any{
			"values": len(args.Values),
		}))
	}()

	if err := s.toolLimiters.Check("baynet_set_scenario"); err != nil {
		return nil, ResultsOutput{}, err
	}
	if len(args.Values) == 0 {
		return nil, ResultsOutput{}, fmt.Errorf("'values' parameter is required")
	}

	changed, err := s.sess.ApplyEvidence(args.Values)
	if err != nil {
		return nil, ResultsOutput{}, err
	}
	return nil, s.results(s.lang(args.LanguageInput), changed, fmt.Sprintf("applied %d values", len(args.Values))), nil
}

// handleLoadScenario implements the baynet_load_scenario tool.
func (s *Server) handleLoadScenario(ctx context.Context, req *sdk.CallToolRequest, args LoadScenarioInput) (_ *sdk.CallToolResult, _ LoadScenarioOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("baynet_load_scenario", start, retErr, sanitizeToolParams(map[string]any{
			"scenario": args.Scenario,
		}))
	}()

	lang := s.lang(args.LanguageInput)
	if args.Scenario == "" {
		scenarios := s.sess.Model().Scenarios
		out := LoadScenarioOutput{
			ResultsOutput: s.results(lang, false, fmt.Sprintf("%d scenarios available", len(scenarios))),
		}
		for _, sc := range scenarios {
			out.Scenarios = append(out.Scenarios, ScenarioSummary{ID: sc.ID, Name: sc.Name.Resolve(lang), Values: sc.Values})
		}
		return nil, out, nil
	}

	if err := s.toolLimiters.Check("baynet_load_scenario"); err != nil {
		return nil, LoadScenarioOutput{}, err
	}

	// Loading a scenario stops the simulator; the loop notices on its next tick.
	if err := s.sess.LoadScenario(args.Scenario); err != nil {
		return nil, LoadScenarioOutput{}, err
	}
	return nil, LoadScenarioOutput{
		ResultsOutput: s.results(lang, true, fmt.Sprintf("scenario %s loaded", args.Scenario)),
	}, nil
}

// handleToggleLock implements the baynet_toggle_lock tool.
func (s *Server) handleToggleLock(ctx context.Context, req *sdk.CallToolRequest, args ToggleLockInput) (_ *sdk.CallToolResult, _ ToggleLockOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("baynet_toggle_lock", start, retErr, sanitizeToolParams(map[string]any{
			"node_id": args.NodeID,
		}))
	}()

	if err := s.toolLimiters.Check("baynet_toggle_lock"); err != nil {
		return nil, ToggleLockOutput{}, err
	}
	if args.NodeID == "" {
		return nil, ToggleLockOutput{}, fmt.Errorf("'node_id' parameter is required")
	}

	lock, err := s.sess.ToggleLock(args.NodeID)
	if err != nil {
		return nil, ToggleLockOutput{}, err
	}
	return nil, ToggleLockOutput{
		ResultsOutput: s.results(s.lang(args.LanguageInput), true, fmt.Sprintf("%s is now %s", args.NodeID, lock)),
		Lock:          lock.String(),
	}, nil
}

// handleCalibrate implements the baynet_calibrate tool. Exactly one of
// node_id+base or arc+weight must be given.
func (s *Server) handleCalibrate(ctx context.Context, req *sdk.CallToolRequest, args CalibrateInput) (_ *sdk.CallToolResult, _ ResultsOutput, retErr error) {
	start := time.Now()
	defer func() {
		params := map[string]any{}
		if args.NodeID != "" {
			params["node_id"] = args.NodeID
		}
		if args.Base != nil {
			params["base"] = *args.Base
		}
		if args.Arc != nil {
			params["arc"] = *args.Arc
		}
		if args.Weight != nil {
			params["weight"] = *args.Weight
		}
		s.auditTool("baynet_calibrate", start, retErr, sanitizeToolParams(params))
	}()

	if err := s.toolLimiters.Check("baynet_calibrate"); err != nil {
		return nil, ResultsOutput{}, err
	}

	nodeMode := args.NodeID != "" || args.Base != nil
	arcMode := args.Arc != nil || args.Weight != nil
	var msg string
	switch {
	case nodeMode && arcMode:
		return nil, ResultsOutput{}, fmt.Errorf("give either 'node_id' with 'base' or 'arc' with 'weight', not both")
	case nodeMode:
		if args.NodeID == "" || args.Base == nil {
			return nil, ResultsOutput{}, fmt.Errorf("'node_id' and 'base' parameters are both required")
		}
		if err := s.sess.SetBase(args.NodeID, *args.Base); err != nil {
			return nil, ResultsOutput{}, err
		}
		msg = fmt.Sprintf("%s base set to %.2f", args.NodeID, *args.Base)
	case arcMode:
		if args.Arc == nil || args.Weight == nil {
			return nil, ResultsOutput{}, fmt.Errorf("'arc' and 'weight' parameters are both required")
		}
		if err := s.sess.SetArcWeight(*args.Arc, *args.Weight); err != nil {
			return nil, ResultsOutput{}, err
		}
		msg = fmt.Sprintf("arc %d weight set to %.2f", *args.Arc, *args.Weight)
	default:
		return nil, ResultsOutput{}, fmt.Errorf("nothing to calibrate: give 'node_id' with 'base' or 'arc' with 'weight'")
	}

	return nil, s.results(s.lang(args.LanguageInput), true, msg), nil
}

// handleExplain implements the baynet_explain tool.
func (s *Server) handleExplain(ctx context.Context, req *sdk.CallToolRequest, args ExplainInput) (_ *sdk.CallToolResult, _ ExplainOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("baynet_explain", start, retErr, sanitizeToolParams(map[string]any{
			"node_id": args.NodeID,
		}))
	}()

	if err := s.toolLimiters.Check("baynet_explain"); err != nil {
		return nil, ExplainOutput{}, err
	}
	if args.NodeID == "" {
		return nil, ExplainOutput{}, fmt.Errorf("'node_id' parameter is required")
	}

	ex, err := s.sess.Explain(args.NodeID)
	if err != nil {
		return nil, ExplainOutput{}, err
	}
	return nil, ExplainOutput{Explanation: ex, Text: ex.String()}, nil
}

// handleAutoSim implements the baynet_auto_sim tool.
func (s *Server) handleAutoSim(ctx context.Context, req *sdk.CallToolRequest, args AutoSimInput) (_ *sdk.CallToolResult, _ AutoSimOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("baynet_auto_sim", start, retErr, sanitizeToolParams(map[string]any{
			"action": args.Action,
			"steps":  args.Steps,
		}))
	}()

	if err := s.toolLimiters.Check("baynet_auto_sim"); err != nil {
		return nil, AutoSimOutput{}, err
	}

	lang := s.lang(args.LanguageInput)
	var msg string
	accepted := 0
	changed := false

	switch args.Action {
	case "start":
		if s.runner.Start(s.ctx) {
			msg = fmt.Sprintf("simulator started, ticking every %s", s.sim.Config().Interval)
		} else {
			msg = "simulator already running"
		}
	case "stop":
		if s.runner.Stop() {
			msg = "simulator stopped"
		} else {
			msg = "simulator was not running"
		}
		if err := s.runner.Err(); err != nil {
			msg += fmt.Sprintf(" (last error: %v)", err)
		}
	case "step":
		steps := args.Steps
		if steps <= 0 {
			steps = 1
		}
		if steps > maxSteps {
			return nil, AutoSimOutput{}, fmt.Errorf("steps must be at most %d, got %d", maxSteps, steps)
		}
		for i := 0; i < steps; i++ {
			ok, err := s.runner.Step()
			if err != nil {
				return nil, AutoSimOutput{}, fmt.Errorf("step %d: %w", i+1, err)
			}
			if ok {
				accepted++
			}
		}
		changed = accepted > 0
		msg = fmt.Sprintf("%d of %d steps improved a goal", accepted, steps)
	case "status", "":
		msg = "simulator stopped"
		if s.runner.Running() {
			msg = "simulator running"
		}
	default:
		return nil, AutoSimOutput{}, fmt.Errorf("unknown action %q (use 'start', 'stop', 'step' or 'status')", args.Action)
	}

	return nil, AutoSimOutput{
		ResultsOutput: s.results(lang, changed, msg),
		Goals:         s.goalStatus(),
		Accepted:      accepted,
	}, nil
}

func (s *Server) goalStatus() []GoalStatus {
	snap := s.sess.Snapshot()
	goals := s.sim.Goals()
	out := make([]GoalStatus, 0, len(goals))
	for _, g := range goals {
		gs := GoalStatus{Node: g.Node, Threshold: g.Threshold}
		if n, err := snap.Node(g.Node); err == nil {
			gs.Probability = n.Probability
			gs.Met = n.Probability >= g.Threshold
		}
		out = append(out, gs)
	}
	return out
}

// handleReset implements the baynet_reset tool.
func (s *Server) handleReset(ctx context.Context, req *sdk.CallToolRequest, args ResetInput) (_ *sdk.CallToolResult, _ ResultsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("baynet_reset", start, retErr, sanitizeToolParams(map[string]any{}))
	}()

	if err := s.toolLimiters.Check("baynet_reset"); err != nil {
		return nil, ResultsOutput{}, err
	}

	if err := s.sess.Reset(); err != nil {
		return nil, ResultsOutput{}, err
	}
	return nil, s.results(s.lang(args.LanguageInput), true, "session reset"), nil
}

// handleAnalyze implements the baynet_analyze tool.
func (s *Server) handleAnalyze(ctx context.Context, req *sdk.CallToolRequest, args AnalyzeInput) (_ *sdk.CallToolResult, _ AnalyzeOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("baynet_analyze", start, retErr, sanitizeToolParams(map[string]any{
			"apply": args.Apply,
		}))
	}()

	if err := s.toolLimiters.Check("baynet_analyze"); err != nil {
		return nil, AnalyzeOutput{}, err
	}

	lang := s.lang(args.LanguageInput)
	analysis, err := s.sess.Analyze(lang)
	if err != nil {
		return nil, AnalyzeOutput{}, err
	}
	out := AnalyzeOutput{Analysis: analysis}
	if args.Apply == "" {
		return nil, out, nil
	}

	id := args.Apply
	if id == "best" {
		id = analysis.Best.StrategyID
	}
	st, err := findStrategy(s.sess.Model().Strategies, id)
	if err != nil {
		return nil, AnalyzeOutput{}, err
	}
	if err := s.sess.ApplyStrategy(st); err != nil {
		return nil, AnalyzeOutput{}, err
	}
	res := s.results(lang, true, fmt.Sprintf("strategy %s applied", st.ID))
	out.Applied = st.ID
	out.Results = &res
	return nil, out, nil
}

func findStrategy(strategies []prognosis.Strategy, id string) (prognosis.Strategy, error) {
	for _, st := range strategies {
		if st.ID == id {
			return st, nil
		}
	}
	return prognosis.Strategy{}, fmt.Errorf("unknown strategy %q", id)
}

// handleGraph implements the baynet_graph tool.
func (s *Server) handleGraph(ctx context.Context, req *sdk.CallToolRequest, args GraphInput) (_ *sdk.CallToolResult, _ GraphOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("baynet_graph", start, retErr, sanitizeToolParams(map[string]any{
			"format": args.Format,
		}))
	}()

	if err := s.toolLimiters.Check("baynet_graph"); err != nil {
		return nil, GraphOutput{}, err
	}

	format := args.Format
	if format == "" {
		format = string(visualization.FormatJSON)
	}

	snap := s.sess.Snapshot()
	lang := s.lang(args.LanguageInput)
	out := GraphOutput{Format: format, NodeCount: len(snap.Nodes), ArcCount: len(snap.Arcs)}

	switch visualization.Format(format) {
	case visualization.FormatDOT:
		out.DOT = visualization.RenderDOT(snap, lang)
	case visualization.FormatJSON:
		g := visualization.RenderJSON(snap, lang)
		out.Graph = &g
	default:
		return nil, GraphOutput{}, fmt.Errorf("unsupported format %q (use 'dot' or 'json')", format)
	}
	return nil, out, nil
}
