package network

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func sampleNetwork() *Network {
	return &Network{
		Columns: []Column{{ID: "patient", Title: Text{"en": "Patient", "it": "Paziente"}, Width: 0.2}},
		Nodes: []Node{
			{
				ID: "AGE", Name: Text{"en": "Age", "it": "Età"}, Kind: KindRoot,
				Variable: VariableContinuous, Value: 65, Min: 40, Max: 90,
			},
			{
				ID: "STAGE", Kind: KindRoot, Variable: VariableCategorical, Value: 1,
				Categories: []Category{{Label: Text{"en": "Ta"}, Value: 0.1}, {Label: Text{"en": "T1"}, Value: 0.25}},
			},
			{ID: "SMOKE", Kind: KindRoot, Variable: VariableProbability, Value: 0.5},
			{ID: "RECUR", Kind: KindIntermediate, Base: 0.05, Probability: 0.3},
			{ID: "SURV", Kind: KindOutcome, Base: 0.95, Probability: 0.8},
		},
		Arcs: []Arc{
			{Source: "AGE", Target: "SURV", Weight: -0.2},
			{Source: "STAGE", Target: "RECUR", Weight: 0.5},
			{Source: "SMOKE", Target: "RECUR", Weight: 0.2},
			{Source: "RECUR", Target: "SURV", Weight: -0.3},
		},
	}
}

func TestLockState_Next(t *testing.T) {
	s := Unlocked
	want := []LockState{ForcedHigh, ForcedLow, Unlocked, ForcedHigh}
	for i, w := range want {
		s = s.Next()
		if s != w {
			t.Fatalf("step %d: Next() = %v, want %v", i, s, w)
		}
	}
}

func TestNetwork_Node(t *testing.T) {
	n := sampleNetwork()
	node, err := n.Node("RECUR")
	if err != nil {
		t.Fatalf("Node(RECUR) error = %v", err)
	}
	node.Probability = 0.9
	if n.Nodes[3].Probability != 0.9 {
		t.Error("Node() did not return a pointer into the network")
	}
	if _, err := n.Node("GHOST"); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("Node(GHOST) error = %v, want ErrUnknownNode", err)
	}
}

func TestNetwork_RootNodes(t *testing.T) {
	roots := sampleNetwork().RootNodes()
	if len(roots) != 3 {
		t.Fatalf("RootNodes() = %d, want 3", len(roots))
	}
	if roots[0].ID != "AGE" || roots[2].ID != "SMOKE" {
		t.Errorf("RootNodes() order = %s..%s, want AGE..SMOKE", roots[0].ID, roots[2].ID)
	}
}

func TestNetwork_CloneIsolation(t *testing.T) {
	orig := sampleNetwork()
	c := orig.Clone()

	c.Nodes[0].Value = 80
	c.Nodes[0].Name["en"] = "changed"
	c.Nodes[1].Categories[0].Value = 0.9
	c.Nodes[1].Categories[0].Label["en"] = "changed"
	c.Nodes[3].Locked = ForcedHigh
	c.Arcs[0].Weight = 1
	c.Columns[0].Title["en"] = "changed"

	if orig.Nodes[0].Value != 65 || orig.Nodes[0].Name["en"] != "Age" {
		t.Error("clone shares node fields with original")
	}
	if orig.Nodes[1].Categories[0].Value != 0.1 || orig.Nodes[1].Categories[0].Label["en"] != "Ta" {
		t.Error("clone shares categories with original")
	}
	if orig.Nodes[3].Locked != Unlocked {
		t.Error("clone shares lock state with original")
	}
	if orig.Arcs[0].Weight != -0.2 {
		t.Error("clone shares arcs with original")
	}
	if orig.Columns[0].Title["en"] != "Patient" {
		t.Error("clone shares column titles with original")
	}

	var nilNet *Network
	if nilNet.Clone() != nil {
		t.Error("Clone() of nil network is not nil")
	}
}

func TestNetwork_CloneIsolationProperty(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("mutating a clone never changes the original", prop.ForAll(
		func(value, prob, weight float64) bool {
			orig := sampleNetwork()
			before := orig.Probabilities()
			c := orig.Clone()
			c.Nodes[2].Value = value
			c.Nodes[4].Probability = prob
			c.Arcs[3].Weight = weight
			after := orig.Probabilities()
			for id, p := range before {
				if after[id] != p {
					return false
				}
			}
			return orig.Nodes[2].Value == 0.5 && orig.Arcs[3].Weight == -0.3
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.Float64Range(-1, 1),
	))

	properties.TestingRun(t)
}

func TestNode_CategoryAt(t *testing.T) {
	n := sampleNetwork().Nodes[1]
	if c, err := n.CategoryAt(1); err != nil || c.Value != 0.25 {
		t.Errorf("CategoryAt(1) = %v, %v; want 0.25, nil", c.Value, err)
	}
	for _, v := range []float64{-1, 2, 0.5} {
		if _, err := n.CategoryAt(v); !errors.Is(err, ErrCategoryOutOfRange) {
			t.Errorf("CategoryAt(%v) error = %v, want ErrCategoryOutOfRange", v, err)
		}
	}
}

func TestText_Resolve(t *testing.T) {
	txt := Text{"en": "Age", "it": "Età"}
	tests := []struct {
		lang string
		want string
	}{
		{"en", "Age"},
		{"it", "Età"},
		{"it-IT", "Età"},
		{"fr", "Age"},
		{"not a tag", "Age"},
	}
	for _, tt := range tests {
		if got := txt.Resolve(tt.lang); got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.lang, got, tt.want)
		}
	}
	if got := (Text{"de": "Alter"}).Resolve("en"); got != "Alter" {
		t.Errorf("Resolve without default = %q, want Alter", got)
	}
	if got := (Text{}).Resolve("en"); got != "" {
		t.Errorf("empty Resolve = %q, want empty", got)
	}
}

func TestNode_DisplayName(t *testing.T) {
	n := sampleNetwork()
	if got := n.Nodes[0].DisplayName("it"); got != "Età" {
		t.Errorf("DisplayName(it) = %q", got)
	}
	if got := n.Nodes[2].DisplayName("it"); got != "SMOKE" {
		t.Errorf("DisplayName without name = %q, want id", got)
	}
}

func TestIndex(t *testing.T) {
	n := sampleNetwork()
	idx, err := NewIndex(n)
	if err != nil {
		t.Fatalf("NewIndex() error = %v", err)
	}
	if got := len(idx.Incoming("RECUR")); got != 2 {
		t.Errorf("Incoming(RECUR) = %d, want 2", got)
	}
	if got := len(idx.Outgoing("RECUR")); got != 1 {
		t.Errorf("Outgoing(RECUR) = %d, want 1", got)
	}
	if got := idx.Probability("SURV"); got != 0.8 {
		t.Errorf("Probability(SURV) = %v, want 0.8", got)
	}
	if got := idx.Probability("GHOST"); got != 0 {
		t.Errorf("Probability(GHOST) = %v, want 0", got)
	}

	idx.Node("SURV").Probability = 0.1
	if n.Nodes[4].Probability != 0.1 {
		t.Error("index does not alias the state")
	}

	n.Arcs = append(n.Arcs, Arc{Source: "RECUR", Target: "GHOST"})
	if _, err := NewIndex(n); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("NewIndex() with dangling arc error = %v, want ErrUnknownNode", err)
	}
}
