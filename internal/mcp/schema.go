// Package mcp provides an MCP (Model Context Protocol) server for baynet.
package mcp

import (
	"github.com/nvandessel/baynet/internal/engine"
	"github.com/nvandessel/baynet/internal/guideline"
	"github.com/nvandessel/baynet/internal/prognosis"
	"github.com/nvandessel/baynet/internal/rules"
	"github.com/nvandessel/baynet/internal/session"
	"github.com/nvandessel/baynet/internal/visualization"
)

// LanguageInput selects the display language of a response.
type LanguageInput struct {
	Language string `json:"language,omitempty" jsonschema:"Display language for names and messages (e.g. 'en', 'it'); defaults to the server language"`
}

// GetNodesInput defines the input for baynet_get_nodes tool.
type GetNodesInput struct {
	LanguageInput
}

// GetNodesOutput defines the output for baynet_get_nodes tool.
type GetNodesOutput struct {
	Roots []session.RootConfig `json:"roots" jsonschema:"Evidence inputs with their current values and allowed ranges or categories"`
	Count int                  `json:"count" jsonschema:"Number of root nodes"`
}

// GetResultsInput defines the input for baynet_get_results tool.
type GetResultsInput struct {
	LanguageInput
}

// ResultsOutput is the recomputed state returned by every tool that changes it.
type ResultsOutput struct {
	Results   []session.NodeResult `json:"results" jsonschema:"Probability of every node in declaration order"`
	Rules     []rules.Result       `json:"rules,omitempty" jsonschema:"What each special rule did during the last recomputation"`
	Guideline guideline.Verdict    `json:"guideline" jsonschema:"Guideline check verdict for the current state"`
	Prognosis prognosis.Summary    `json:"prognosis" jsonschema:"Prognosis score, verdict and drivers"`
	Running   bool                 `json:"running" jsonschema:"Whether the automatic simulator is active"`
	Changed   bool                 `json:"changed" jsonschema:"Whether the call modified the state"`
	Message   string               `json:"message,omitempty" jsonschema:"Human-readable result message"`
}

// SetNodeValueInput defines the input for baynet_set_node_value tool.
type SetNodeValueInput struct {
	NodeID string `json:"node_id" jsonschema:"Root node id"`
	Value  string `json:"value" jsonschema:"New value: a probability in [0,1], an integer within the node range, or a category index"`
	LanguageInput
}

// SetScenarioInput defines the input for baynet_set_scenario tool.
type SetScenarioInput struct {
	Values map[string]string `json:"values" jsonschema:"Root node id to value; applied atomically, all or nothing"`
	LanguageInput
}

// LoadScenarioInput defines the input for baynet_load_scenario tool.
type LoadScenarioInput struct {
	Scenario string `json:"scenario,omitempty" jsonschema:"Preset scenario id; empty lists the available scenarios"`
	LanguageInput
}

// ScenarioSummary describes one preset scenario.
type ScenarioSummary struct {
	ID     string             `json:"id"`
	Name   string             `json:"name"`
	Values map[string]float64 `json:"values"`
}

// LoadScenarioOutput defines the output for baynet_load_scenario tool.
type LoadScenarioOutput struct {
	ResultsOutput
	Scenarios []ScenarioSummary `json:"scenarios,omitempty" jsonschema:"Available scenarios, when none was requested"`
}

// ToggleLockInput defines the input for baynet_toggle_lock tool.
type ToggleLockInput struct {
	NodeID string `json:"node_id" jsonschema:"Intermediate or outcome node id to pin; cycles unlocked, forced-high, forced-low"`
	LanguageInput
}

// ToggleLockOutput defines the output for baynet_toggle_lock tool.
type ToggleLockOutput struct {
	ResultsOutput
	Lock string `json:"lock" jsonschema:"The node's new lock state"`
}

// CalibrateInput defines the input for baynet_calibrate tool.
type CalibrateInput struct {
	NodeID string   `json:"node_id,omitempty" jsonschema:"Intermediate or outcome node whose baseline to change; used with 'base'"`
	Base   *float64 `json:"base,omitempty" jsonschema:"New baseline probability in [0,1]"`
	Arc    *int     `json:"arc,omitempty" jsonschema:"Index of the arc to reweight, as listed by baynet_graph; used with 'weight'"`
	Weight *float64 `json:"weight,omitempty" jsonschema:"New arc weight in [-1,1]"`
	LanguageInput
}

// ExplainInput defines the input for baynet_explain tool.
type ExplainInput struct {
	NodeID string `json:"node_id" jsonschema:"Node id to explain"`
}

// ExplainOutput defines the output for baynet_explain tool.
type ExplainOutput struct {
	Explanation *engine.Explanation `json:"explanation" jsonschema:"Base, combination mode, per-arc contributions and result"`
	Text        string              `json:"text" jsonschema:"Human-readable breakdown"`
}

// AutoSimInput defines the input for baynet_auto_sim tool.
type AutoSimInput struct {
	Action string `json:"action" jsonschema:"One of 'start', 'stop', 'step' or 'status'"`
	Steps  int    `json:"steps,omitempty" jsonschema:"Number of ticks for 'step' (default: 1)"`
	LanguageInput
}

// GoalStatus reports one simulator goal.
type GoalStatus struct {
	Node        string  `json:"node"`
	Threshold   float64 `json:"threshold"`
	Probability float64 `json:"probability"`
	Met         bool    `json:"met"`
}

// AutoSimOutput defines the output for baynet_auto_sim tool.
type AutoSimOutput struct {
	ResultsOutput
	Goals    []GoalStatus `json:"goals" jsonschema:"Goal thresholds and current values"`
	Accepted int          `json:"accepted,omitempty" jsonschema:"Ticks that changed the state, for 'step'"`
}

// ResetInput defines the input for baynet_reset tool.
type ResetInput struct {
	LanguageInput
}

// AnalyzeInput defines the input for baynet_analyze tool.
type AnalyzeInput struct {
	Apply string `json:"apply,omitempty" jsonschema:"Strategy id to apply to the live state after the comparison; 'best' applies the winner"`
	LanguageInput
}

// AnalyzeOutput defines the output for baynet_analyze tool.
type AnalyzeOutput struct {
	Analysis *prognosis.Analysis `json:"analysis" jsonschema:"Baseline score and each strategy's projected outcome"`
	Applied  string              `json:"applied,omitempty" jsonschema:"Strategy applied to the live state, if any"`
	Results  *ResultsOutput      `json:"results,omitempty" jsonschema:"State after applying a strategy"`
}

// GraphInput defines the input for baynet_graph tool.
type GraphInput struct {
	Format string `json:"format,omitempty" jsonschema:"Output format: 'dot' or 'json' (default: json)"`
	LanguageInput
}

// GraphOutput defines the output for baynet_graph tool.
type GraphOutput struct {
	Format    string               `json:"format" jsonschema:"Format of the rendering"`
	DOT       string               `json:"dot,omitempty" jsonschema:"Graphviz DOT source"`
	Graph     *visualization.Graph `json:"graph,omitempty" jsonschema:"Nodes, arcs and probabilities"`
	NodeCount int                  `json:"node_count" jsonschema:"Number of nodes"`
	ArcCount  int                  `json:"arc_count" jsonschema:"Number of arcs"`
}
