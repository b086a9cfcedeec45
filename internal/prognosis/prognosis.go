// Package prognosis condenses a computed network state into a headline
// score, a verdict and the root factors driving it, and compares treatment
// strategies by recomputing them on clones of the live state.
package prognosis

import (
	"math"
	"sort"

	"github.com/nvandessel/baynet/internal/constants"
	"github.com/nvandessel/baynet/internal/network"
)

// Term is one weighted node probability in a score. An inverted term reads
// 1 - p, for outcomes where a higher probability is worse.
type Term struct {
	Node   string  `json:"node" yaml:"node" validate:"required"`
	Weight float64 `json:"weight" yaml:"weight"`
	Invert bool    `json:"invert,omitempty" yaml:"invert,omitempty"`
}

// Config parameterizes the summary.
type Config struct {
	Score     []Term  `json:"score" yaml:"score" validate:"dive"`
	Favorable float64 `json:"favorable" yaml:"favorable" validate:"gte=0,lte=1"`
	HighRisk  float64 `json:"high_risk" yaml:"high_risk" validate:"gte=0,lte=1"`
}

// WithDefaults fills unset thresholds.
func (c Config) WithDefaults() Config {
	if c.Favorable == 0 {
		c.Favorable = constants.FavorableScoreThreshold
	}
	if c.HighRisk == 0 {
		c.HighRisk = constants.HighRiskScoreThreshold
	}
	return c
}

// Verdict classifies a score.
type Verdict string

const (
	VerdictFavorable    Verdict = "favorable"
	VerdictIntermediate Verdict = "intermediate"
	VerdictHighRisk     Verdict = "high-risk"
)

// Driver is a root node and its summed influence on its children.
type Driver struct {
	NodeID string  `json:"node_id"`
	Name   string  `json:"name"`
	Impact float64 `json:"impact"`
}

// Summary is the prognosis of one state.
type Summary struct {
	Score      float64  `json:"score"`
	Verdict    Verdict  `json:"verdict"`
	Risk       []Driver `json:"risk_drivers"`
	Protective []Driver `json:"protective_drivers"`
}

// Score evaluates terms against s. Terms naming a missing node read 0.
func Score(terms []Term, s *network.State) float64 {
	probs := s.Probabilities()
	total := 0.0
	for _, t := range terms {
		p := probs[t.Node]
		if t.Invert {
			p = 1 - p
		}
		total += p * t.Weight
	}
	return total
}

// Summarize scores s and ranks its root drivers.
func Summarize(cfg Config, s *network.State, lang string) Summary {
	cfg = cfg.WithDefaults()
	score := Score(cfg.Score, s)

	verdict := VerdictIntermediate
	switch {
	case score > cfg.Favorable:
		verdict = VerdictFavorable
	case score < cfg.HighRisk:
		verdict = VerdictHighRisk
	}

	risk, protective := Drivers(s, lang)
	return Summary{
		Score:      score,
		Verdict:    verdict,
		Risk:       risk,
		Protective: protective,
	}
}

// Drivers returns the root nodes whose total outgoing impact
// (sum of p_root * weight) exceeds the driver threshold, strongest first:
// at most three risk drivers and two protective ones.
func Drivers(s *network.State, lang string) (risk, protective []Driver) {
	byID := make(map[string]*network.Node, len(s.Nodes))
	for i := range s.Nodes {
		byID[s.Nodes[i].ID] = &s.Nodes[i]
	}

	var order []string
	impacts := make(map[string]float64)
	for _, arc := range s.Arcs {
		src := byID[arc.Source]
		if src == nil || !src.IsRoot() {
			continue
		}
		if _, seen := impacts[src.ID]; !seen {
			order = append(order, src.ID)
		}
		impacts[src.ID] += src.Probability * arc.Weight
	}

	all := make([]Driver, 0, len(order))
	for _, id := range order {
		all = append(all, Driver{NodeID: id, Name: byID[id].DisplayName(lang), Impact: impacts[id]})
	}
	sort.SliceStable(all, func(i, j int) bool {
		return math.Abs(all[i].Impact) > math.Abs(all[j].Impact)
	})

	for _, d := range all {
		switch {
		case d.Impact > constants.DriverImpactThreshold && len(risk) < constants.MaxRiskDrivers:
			risk = append(risk, d)
		case d.Impact < -constants.DriverImpactThreshold && len(protective) < constants.MaxProtectiveDrivers:
			protective = append(protective, d)
		}
	}
	return risk, protective
}
