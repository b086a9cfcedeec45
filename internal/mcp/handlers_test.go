package mcp

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/baynet/internal/network"
	"github.com/nvandessel/baynet/internal/ratelimit"
	"github.com/nvandessel/baynet/internal/session"
)

func setupTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	dataDir := filepath.Join(tmpDir, "data")
	server, err := NewServer(testConfig(dataDir))
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(func() { server.Close() })

	return server, dataDir
}

func findResult(results []session.NodeResult, id string) (session.NodeResult, bool) {
	for _, r := range results {
		if r.ID == id {
			return r, true
		}
	}
	return session.NodeResult{}, false
}

func TestHandleGetNodes(t *testing.T) {
	server, _ := setupTestServer(t)

	_, out, err := server.handleGetNodes(context.Background(), &sdk.CallToolRequest{}, GetNodesInput{})
	if err != nil {
		t.Fatalf("handleGetNodes failed: %v", err)
	}
	if out.Count != 14 || len(out.Roots) != 14 {
		t.Errorf("expected 14 roots, got count=%d len=%d", out.Count, len(out.Roots))
	}
	for _, r := range out.Roots {
		if r.ID == "ETA_PAZIENTE" {
			if r.Min != 40 || r.Max != 90 {
				t.Errorf("ETA_PAZIENTE range = [%v,%v], want [40,90]", r.Min, r.Max)
			}
		}
		if r.ID == "COMORBIDITIES" && len(r.Categories) != 3 {
			t.Errorf("COMORBIDITIES categories = %d, want 3", len(r.Categories))
		}
	}
}

func TestHandleGetNodes_Language(t *testing.T) {
	server, _ := setupTestServer(t)

	_, out, err := server.handleGetNodes(context.Background(), &sdk.CallToolRequest{},
		GetNodesInput{LanguageInput: LanguageInput{Language: "it"}})
	if err != nil {
		t.Fatalf("handleGetNodes failed: %v", err)
	}
	for _, r := range out.Roots {
		if r.ID == "FUMO" && r.Name != "Fumo" {
			t.Errorf("FUMO name in it = %q, want Fumo", r.Name)
		}
	}
}

func TestHandleGetResults(t *testing.T) {
	server, _ := setupTestServer(t)

	_, out, err := server.handleGetResults(context.Background(), &sdk.CallToolRequest{}, GetResultsInput{})
	if err != nil {
		t.Fatalf("handleGetResults failed: %v", err)
	}
	if len(out.Results) != 22 {
		t.Errorf("expected 22 results, got %d", len(out.Results))
	}
	for _, r := range out.Results {
		if r.Probability < 0 || r.Probability > 1 {
			t.Errorf("%s probability %v out of [0,1]", r.ID, r.Probability)
		}
	}
	if out.Changed {
		t.Error("get_results should not report a change")
	}
	if out.Running {
		t.Error("simulator should not be running")
	}
	if out.Prognosis.Verdict == "" {
		t.Error("expected a prognosis verdict")
	}
}

func TestHandleSetNodeValue(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	_, out, err := server.handleSetNodeValue(ctx, &sdk.CallToolRequest{},
		SetNodeValueInput{NodeID: "ETA_PAZIENTE", Value: "80"})
	if err != nil {
		t.Fatalf("handleSetNodeValue failed: %v", err)
	}
	if !out.Changed {
		t.Error("expected Changed for a new value")
	}
	n, err := server.Session().Snapshot().Node("ETA_PAZIENTE")
	if err != nil {
		t.Fatal(err)
	}
	if n.Value != 80 {
		t.Errorf("ETA_PAZIENTE value = %v, want 80", n.Value)
	}

	_, out, err = server.handleSetNodeValue(ctx, &sdk.CallToolRequest{},
		SetNodeValueInput{NodeID: "ETA_PAZIENTE", Value: " 80 "})
	if err != nil {
		t.Fatalf("handleSetNodeValue failed: %v", err)
	}
	if out.Changed {
		t.Error("expected no change for the same value")
	}
	if !strings.Contains(out.Message, "already") {
		t.Errorf("unexpected message %q", out.Message)
	}
}

func TestHandleSetNodeValue_Errors(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		input  SetNodeValueInput
		target error
	}{
		{"missing id", SetNodeValueInput{Value: "1"}, nil},
		{"out of range", SetNodeValueInput{NodeID: "ETA_PAZIENTE", Value: "95"}, session.ErrInvalidEvidence},
		{"not an integer", SetNodeValueInput{NodeID: "ETA_PAZIENTE", Value: "65.5"}, session.ErrInvalidEvidence},
		{"probability above one", SetNodeValueInput{NodeID: "FUMO", Value: "1.2"}, session.ErrInvalidEvidence},
		{"category out of range", SetNodeValueInput{NodeID: "COMORBIDITIES", Value: "3"}, session.ErrInvalidEvidence},
		{"computed node", SetNodeValueInput{NodeID: "SURVIVAL", Value: "0.5"}, session.ErrNotRoot},
		{"unknown node", SetNodeValueInput{NodeID: "NOPE", Value: "0.5"}, network.ErrUnknownNode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := server.handleSetNodeValue(ctx, &sdk.CallToolRequest{}, tt.input)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("error = %v, want %v", err, tt.target)
			}
		})
	}

	n, _ := server.Session().Snapshot().Node("ETA_PAZIENTE")
	if n.Value != 65 {
		t.Errorf("rejected evidence changed ETA_PAZIENTE to %v", n.Value)
	}
}

func TestHandleSetScenario_Atomic(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	_, _, err := server.handleSetScenario(ctx, &sdk.CallToolRequest{}, SetScenarioInput{
		Values: map[string]string{"FUMO": "0.9", "ETA_PAZIENTE": "200"},
	})
	if !errors.Is(err, session.ErrInvalidEvidence) {
		t.Fatalf("expected ErrInvalidEvidence, got %v", err)
	}
	n, _ := server.Session().Snapshot().Node("FUMO")
	if n.Value != 0.5 {
		t.Errorf("FUMO = %v after rejected batch, want 0.5", n.Value)
	}

	_, out, err := server.handleSetScenario(ctx, &sdk.CallToolRequest{}, SetScenarioInput{
		Values: map[string]string{"FUMO": "0.9", "ETA_PAZIENTE": "70"},
	})
	if err != nil {
		t.Fatalf("handleSetScenario failed: %v", err)
	}
	if !out.Changed {
		t.Error("expected Changed")
	}
	n, _ = server.Session().Snapshot().Node("FUMO")
	if n.Value != 0.9 {
		t.Errorf("FUMO = %v, want 0.9", n.Value)
	}
}

func TestHandleSetScenario_Empty(t *testing.T) {
	server, _ := setupTestServer(t)

	_, _, err := server.handleSetScenario(context.Background(), &sdk.CallToolRequest{}, SetScenarioInput{})
	if err == nil {
		t.Error("expected error for empty values")
	}
}

func TestHandleLoadScenario(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	_, list, err := server.handleLoadScenario(ctx, &sdk.CallToolRequest{}, LoadScenarioInput{})
	if err != nil {
		t.Fatalf("list scenarios failed: %v", err)
	}
	if len(list.Scenarios) != 4 {
		t.Fatalf("expected 4 scenarios, got %d", len(list.Scenarios))
	}
	if list.Changed {
		t.Error("listing should not change the state")
	}

	_, out, err := server.handleLoadScenario(ctx, &sdk.CallToolRequest{}, LoadScenarioInput{Scenario: "hr-advanced"})
	if err != nil {
		t.Fatalf("load scenario failed: %v", err)
	}
	if !out.Changed {
		t.Error("expected Changed")
	}
	n, _ := server.Session().Snapshot().Node("ETA_PAZIENTE")
	if n.Value != 72 {
		t.Errorf("ETA_PAZIENTE = %v, want 72", n.Value)
	}

	if _, _, err := server.handleLoadScenario(ctx, &sdk.CallToolRequest{}, LoadScenarioInput{Scenario: "nope"}); err == nil {
		t.Error("expected error for unknown scenario")
	}
}

func TestHandleLoadScenario_ClearsLocks(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	if _, _, err := server.handleToggleLock(ctx, &sdk.CallToolRequest{}, ToggleLockInput{NodeID: "RECID"}); err != nil {
		t.Fatalf("toggle lock failed: %v", err)
	}
	if _, _, err := server.handleLoadScenario(ctx, &sdk.CallToolRequest{}, LoadScenarioInput{Scenario: "lr-typical"}); err != nil {
		t.Fatalf("load scenario failed: %v", err)
	}
	n, _ := server.Session().Snapshot().Node("RECID")
	if n.IsLocked() {
		t.Error("expected scenario load to start from an unlocked template")
	}
}

func TestHandleToggleLock(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	want := []string{"forced-high", "forced-low", "unlocked"}
	for i, w := range want {
		_, out, err := server.handleToggleLock(ctx, &sdk.CallToolRequest{}, ToggleLockInput{NodeID: "RECID"})
		if err != nil {
			t.Fatalf("toggle %d failed: %v", i, err)
		}
		if out.Lock != w {
			t.Errorf("toggle %d: lock = %q, want %q", i, out.Lock, w)
		}
		r, ok := findResult(out.Results, "RECID")
		if !ok {
			t.Fatal("RECID missing from results")
		}
		switch w {
		case "forced-high":
			if r.Probability != 0.9 {
				t.Errorf("forced-high probability = %v, want 0.9", r.Probability)
			}
		case "forced-low":
			if r.Probability != 0.1 {
				t.Errorf("forced-low probability = %v, want 0.1", r.Probability)
			}
		}
	}
}

func TestHandleToggleLock_Root(t *testing.T) {
	server, _ := setupTestServer(t)

	_, _, err := server.handleToggleLock(context.Background(), &sdk.CallToolRequest{}, ToggleLockInput{NodeID: "FUMO"})
	if !errors.Is(err, session.ErrNotLockable) {
		t.Errorf("expected ErrNotLockable, got %v", err)
	}
}

func TestHandleCalibrate(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()
	base, arc, weight := 0.5, 0, -0.4

	_, out, err := server.handleCalibrate(ctx, &sdk.CallToolRequest{}, CalibrateInput{NodeID: "RECID", Base: &base})
	if err != nil {
		t.Fatalf("handleCalibrate(base) failed: %v", err)
	}
	if !out.Changed || !strings.Contains(out.Message, "RECID base") {
		t.Errorf("unexpected output: changed=%v message=%q", out.Changed, out.Message)
	}
	_, ex, err := server.handleExplain(ctx, &sdk.CallToolRequest{}, ExplainInput{NodeID: "RECID"})
	if err != nil {
		t.Fatalf("handleExplain failed: %v", err)
	}
	if ex.Explanation.Base != 0.5 {
		t.Errorf("RECID base = %v, want 0.5", ex.Explanation.Base)
	}

	if _, _, err := server.handleCalibrate(ctx, &sdk.CallToolRequest{}, CalibrateInput{Arc: &arc, Weight: &weight}); err != nil {
		t.Fatalf("handleCalibrate(weight) failed: %v", err)
	}
	if w := server.Session().Snapshot().Arcs[0].Weight; w != -0.4 {
		t.Errorf("arc 0 weight = %v, want -0.4", w)
	}
}

func TestHandleCalibrate_Errors(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()
	base, badBase, arc, weight := 0.5, 1.5, 0, 0.2

	tests := []struct {
		name    string
		input   CalibrateInput
		wantErr error
	}{
		{"nothing", CalibrateInput{}, nil},
		{"both modes", CalibrateInput{NodeID: "RECID", Base: &base, Arc: &arc, Weight: &weight}, nil},
		{"base without node", CalibrateInput{Base: &base}, nil},
		{"weight without arc", CalibrateInput{Weight: &weight}, nil},
		{"base out of range", CalibrateInput{NodeID: "RECID", Base: &badBase}, session.ErrInvalidEvidence},
		{"root node", CalibrateInput{NodeID: "FUMO", Base: &base}, session.ErrNotLockable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := server.handleCalibrate(ctx, &sdk.CallToolRequest{}, tt.input)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestHandleExplain(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	_, out, err := server.handleExplain(ctx, &sdk.CallToolRequest{}, ExplainInput{NodeID: "SURVIVAL"})
	if err != nil {
		t.Fatalf("handleExplain failed: %v", err)
	}
	if out.Explanation == nil {
		t.Fatal("expected explanation")
	}
	if out.Text == "" {
		t.Error("expected text rendering")
	}

	if _, _, err := server.handleExplain(ctx, &sdk.CallToolRequest{}, ExplainInput{}); err == nil {
		t.Error("expected error for missing node_id")
	}
	if _, _, err := server.handleExplain(ctx, &sdk.CallToolRequest{}, ExplainInput{NodeID: "NOPE"}); err == nil {
		t.Error("expected error for unknown node")
	}
}

func TestHandleAutoSim_StartStop(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	_, out, err := server.handleAutoSim(ctx, &sdk.CallToolRequest{}, AutoSimInput{Action: "start"})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !out.Running {
		t.Error("expected running after start")
	}
	if len(out.Goals) != 2 {
		t.Errorf("expected 2 goals, got %d", len(out.Goals))
	}

	_, out, err = server.handleAutoSim(ctx, &sdk.CallToolRequest{}, AutoSimInput{Action: "start"})
	if err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if !strings.Contains(out.Message, "already") {
		t.Errorf("unexpected message %q", out.Message)
	}

	// Manual edits stay allowed while the simulator runs.
	if _, _, err := server.handleSetNodeValue(ctx, &sdk.CallToolRequest{},
		SetNodeValueInput{NodeID: "FUMO", Value: "0.2"}); err != nil {
		t.Errorf("set value while running failed: %v", err)
	}

	if _, _, err := server.handleToggleLock(ctx, &sdk.CallToolRequest{}, ToggleLockInput{NodeID: "RECID"}); !errors.Is(err, session.ErrSimulationRunning) {
		t.Errorf("expected ErrSimulationRunning for lock, got %v", err)
	}

	_, out, err = server.handleAutoSim(ctx, &sdk.CallToolRequest{}, AutoSimInput{Action: "stop"})
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if out.Running {
		t.Error("expected stopped")
	}

	_, out, err = server.handleAutoSim(ctx, &sdk.CallToolRequest{}, AutoSimInput{Action: "status"})
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if out.Running || out.Message != "simulator stopped" {
		t.Errorf("status = %v %q", out.Running, out.Message)
	}
}

func TestHandleAutoSim_ResetStops(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	if _, _, err := server.handleAutoSim(ctx, &sdk.CallToolRequest{}, AutoSimInput{Action: "start"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	_, out, err := server.handleReset(ctx, &sdk.CallToolRequest{}, ResetInput{})
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if out.Running {
		t.Error("expected reset to stop the simulator")
	}

	deadline := time.Now().Add(2 * time.Second)
	for server.runner.Running() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if server.runner.Running() {
		t.Error("runner still active after reset")
	}
}

func TestHandleAutoSim_Step(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	if _, _, err := server.handleLoadScenario(ctx, &sdk.CallToolRequest{}, LoadScenarioInput{Scenario: "hr-aggressive"}); err != nil {
		t.Fatalf("load scenario failed: %v", err)
	}

	before := map[string]float64{}
	for _, r := range server.Session().Results("en") {
		before[r.ID] = r.Probability
	}

	_, out, err := server.handleAutoSim(ctx, &sdk.CallToolRequest{}, AutoSimInput{Action: "step", Steps: 5})
	if err != nil {
		t.Fatalf("step failed: %v", err)
	}
	if out.Running {
		t.Error("step must not start the loop")
	}
	if out.Accepted < 0 || out.Accepted > 5 {
		t.Errorf("accepted = %d, want within [0,5]", out.Accepted)
	}
	if out.Changed != (out.Accepted > 0) {
		t.Errorf("Changed = %v with %d accepted", out.Changed, out.Accepted)
	}

	// Accepted ticks never lower a goal that was failing.
	for _, g := range out.Goals {
		if b := before[g.Node]; b < g.Threshold && g.Probability < b-1e-12 {
			t.Errorf("goal %s fell from %v to %v", g.Node, b, g.Probability)
		}
	}
}

func TestHandleAutoSim_InvalidInput(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	if _, _, err := server.handleAutoSim(ctx, &sdk.CallToolRequest{}, AutoSimInput{Action: "jump"}); err == nil {
		t.Error("expected error for unknown action")
	}
	if _, _, err := server.handleAutoSim(ctx, &sdk.CallToolRequest{}, AutoSimInput{Action: "step", Steps: maxSteps + 1}); err == nil {
		t.Error("expected error for too many steps")
	}
}

func TestHandleReset(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	if _, _, err := server.handleSetNodeValue(ctx, &sdk.CallToolRequest{},
		SetNodeValueInput{NodeID: "FUMO", Value: "0.95"}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := server.handleToggleLock(ctx, &sdk.CallToolRequest{}, ToggleLockInput{NodeID: "QOL"}); err != nil {
		t.Fatal(err)
	}

	_, out, err := server.handleReset(ctx, &sdk.CallToolRequest{}, ResetInput{})
	if err != nil {
		t.Fatalf("handleReset failed: %v", err)
	}
	if !out.Changed {
		t.Error("expected Changed")
	}
	snap := server.Session().Snapshot()
	fumo, _ := snap.Node("FUMO")
	if fumo.Value != 0.5 {
		t.Errorf("FUMO = %v after reset, want 0.5", fumo.Value)
	}
	qol, _ := snap.Node("QOL")
	if qol.IsLocked() {
		t.Error("expected QOL unlocked after reset")
	}
}

func TestHandleAnalyze(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	before, _ := server.Session().Snapshot().Node("TREATMENT_TYPE")
	_, out, err := server.handleAnalyze(ctx, &sdk.CallToolRequest{}, AnalyzeInput{})
	if err != nil {
		t.Fatalf("handleAnalyze failed: %v", err)
	}
	if out.Analysis == nil || len(out.Analysis.Results) != 4 {
		t.Fatalf("expected 4 strategy outcomes, got %+v", out.Analysis)
	}
	if out.Applied != "" || out.Results != nil {
		t.Error("analysis without apply must not change the state")
	}
	after, _ := server.Session().Snapshot().Node("TREATMENT_TYPE")
	if before.Value != after.Value {
		t.Error("analysis modified the live state")
	}
}

func TestHandleAnalyze_ApplyBest(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	_, out, err := server.handleAnalyze(ctx, &sdk.CallToolRequest{}, AnalyzeInput{Apply: "best"})
	if err != nil {
		t.Fatalf("handleAnalyze failed: %v", err)
	}
	if out.Applied != out.Analysis.Best.StrategyID {
		t.Errorf("applied %q, best %q", out.Applied, out.Analysis.Best.StrategyID)
	}
	if out.Results == nil || !out.Results.Changed {
		t.Error("expected post-apply results")
	}

	if _, _, err := server.handleAnalyze(ctx, &sdk.CallToolRequest{}, AnalyzeInput{Apply: "nope"}); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestHandleGraph(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	_, out, err := server.handleGraph(ctx, &sdk.CallToolRequest{}, GraphInput{})
	if err != nil {
		t.Fatalf("handleGraph json failed: %v", err)
	}
	if out.Format != "json" || out.Graph == nil {
		t.Fatalf("expected json graph, got format %q", out.Format)
	}
	if out.NodeCount != 22 || out.Graph.NodeCount != 22 {
		t.Errorf("node count = %d/%d, want 22", out.NodeCount, out.Graph.NodeCount)
	}

	_, out, err = server.handleGraph(ctx, &sdk.CallToolRequest{}, GraphInput{Format: "dot"})
	if err != nil {
		t.Fatalf("handleGraph dot failed: %v", err)
	}
	if !strings.HasPrefix(out.DOT, "digraph baynet {") {
		t.Errorf("unexpected DOT output: %.40s", out.DOT)
	}

	if _, _, err := server.handleGraph(ctx, &sdk.CallToolRequest{}, GraphInput{Format: "svg"}); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestHandleResultsResource(t *testing.T) {
	server, _ := setupTestServer(t)

	res, err := server.handleResultsResource(context.Background(), &sdk.ReadResourceRequest{})
	if err != nil {
		t.Fatalf("handleResultsResource failed: %v", err)
	}
	if len(res.Contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(res.Contents))
	}
	text := res.Contents[0].Text
	for _, want := range []string{"# Simulation Results", "Survival", "**Prognosis:**"} {
		if !strings.Contains(text, want) {
			t.Errorf("resource missing %q", want)
		}
	}
	if strings.Contains(text, "| Smoking |") {
		t.Error("root nodes should not be listed in the results table")
	}
}

func TestRateLimited(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	cfg := testConfig("")
	cfg.Limits = map[string]ratelimit.Limit{"baynet_reset": ratelimit.PerMinute(1, 1)}
	server, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	defer server.Close()

	ctx := context.Background()
	if _, _, err := server.handleReset(ctx, &sdk.CallToolRequest{}, ResetInput{}); err != nil {
		t.Fatalf("first reset failed: %v", err)
	}
	_, _, err = server.handleReset(ctx, &sdk.CallToolRequest{}, ResetInput{})
	if !errors.Is(err, ratelimit.ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}

	// Tools without a configured limit are never throttled.
	for i := 0; i < 5; i++ {
		if _, _, err := server.handleGraph(ctx, &sdk.CallToolRequest{}, GraphInput{}); err != nil {
			t.Fatalf("graph call %d failed: %v", i, err)
		}
	}
}
