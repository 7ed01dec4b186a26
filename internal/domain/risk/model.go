// Package risk stratifies suicide, self-harm, violence and substance-use risk
// from symptom text.
package risk

import (
	"fmt"
	"strings"
)

// Level is an ordered risk level: low < moderate < high < imminent.
type Level int

const (
	LevelLow Level = iota
	LevelModerate
	LevelHigh
	LevelImminent
)

var levelNames = [...]string{"low", "moderate", "high", "imminent"}

func (l Level) String() string {
	if l < LevelLow || l > LevelImminent {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

func (l Level) MarshalText() ([]byte, error) {
	if l < LevelLow || l > LevelImminent {
		return nil, fmt.Errorf("invalid risk level %d", int(l))
	}
	return []byte(levelNames[l]), nil
}

func (l *Level) UnmarshalText(b []byte) error {
	v, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// ParseLevel parses a level name.
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range levelNames {
		if n == s {
			return Level(i), nil
		}
	}
	return LevelLow, fmt.Errorf("unknown risk level %q", s)
}

// MaxLevel returns the highest of levels, or low when none are given.
func MaxLevel(levels ...Level) Level {
	m := LevelLow
	for _, l := range levels {
		if l > m {
			m = l
		}
	}
	return m
}

// Dimension names a risk dimension.
type Dimension string

const (
	DimensionSuicide      Dimension = "suicide"
	DimensionSelfHarm     Dimension = "self_harm"
	DimensionViolence     Dimension = "violence"
	DimensionSubstanceUse Dimension = "substance_use"
)

// Dimensions lists every dimension in reporting order.
var Dimensions = []Dimension{DimensionSuicide, DimensionSelfHarm, DimensionViolence, DimensionSubstanceUse}

// Markers used in place of empty factor lists.
const (
	NoSignificantFindings         = "no significant findings"
	NoProtectiveFactorsIdentified = "no protective factors identified"
)

// Assessment is the output of the engine. Factor lists are never empty.
type Assessment struct {
	Suicide                       Level                  `json:"suicide"`
	SelfHarm                      Level                  `json:"self_harm"`
	Violence                      Level                  `json:"violence"`
	SubstanceUse                  Level                  `json:"substance_use"`
	Aggregate                     Level                  `json:"aggregate"`
	RiskFactors                   []string               `json:"risk_factors"`
	ProtectiveFactors             []string               `json:"protective_factors"`
	NoSignificantFindings         bool                   `json:"no_significant_findings"`
	ImmediateInterventionRequired bool                   `json:"immediate_intervention_required"`
	HasConcretePlan               bool                   `json:"has_concrete_plan"`
	Signals                       map[Dimension][]string `json:"signals,omitempty"`
}

// Level returns the level for d.
func (a *Assessment) Level(d Dimension) Level {
	switch d {
	case DimensionSuicide:
		return a.Suicide
	case DimensionSelfHarm:
		return a.SelfHarm
	case DimensionViolence:
		return a.Violence
	case DimensionSubstanceUse:
		return a.SubstanceUse
	}
	return LevelLow
}

func (a *Assessment) setLevel(d Dimension, l Level) {
	switch d {
	case DimensionSuicide:
		a.Suicide = l
	case DimensionSelfHarm:
		a.SelfHarm = l
	case DimensionViolence:
		a.Violence = l
	case DimensionSubstanceUse:
		a.SubstanceUse = l
	}
}

// AnyAtLeast reports whether any dimension is at or above l.
func (a *Assessment) AnyAtLeast(l Level) bool {
	for _, d := range Dimensions {
		if a.Level(d) >= l {
			return true
		}
	}
	return false
}

// Policy holds the tunable decisions of the engine.
type Policy struct {
	// InterveneOnHighWithPlan requires immediate intervention when the
	// aggregate is high and a concrete plan was detected. Imminent risk
	// always requires it.
	InterveneOnHighWithPlan bool
	// MaxProtectiveReduction caps how many score points protective factors
	// may remove from a dimension.
	MaxProtectiveReduction int
}

func DefaultPolicy() Policy {
	return Policy{InterveneOnHighWithPlan: true, MaxProtectiveReduction: 2}
}
