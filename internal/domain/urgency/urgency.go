// Package urgency resolves the response-time tier of an assessment from the
// top diagnosis severity and the aggregate risk.
package urgency

import (
	"fmt"
	"strings"

	"github.com/ehr/assessment/internal/domain/dsm"
	"github.com/ehr/assessment/internal/domain/risk"
)

// Level is an ordered urgency tier.
type Level int

const (
	Routine Level = iota
	Expedited
	Urgent
	Emergent
)

var levelNames = [...]string{"routine", "expedited", "urgent", "emergent"}

func (l Level) String() string {
	if l < Routine || l > Emergent {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

func (l Level) MarshalText() ([]byte, error) {
	if l < Routine || l > Emergent {
		return nil, fmt.Errorf("invalid urgency level %d", int(l))
	}
	return []byte(levelNames[l]), nil
}

func (l *Level) UnmarshalText(b []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(b)))
	for i, n := range levelNames {
		if n == s {
			*l = Level(i)
			return nil
		}
	}
	return fmt.Errorf("unknown urgency level %q", s)
}

// table is indexed by severity, then by risk level.
var table = map[dsm.Severity][4]Level{
	// low, moderate, high, imminent
	dsm.SeverityMild:        {Routine, Routine, Expedited, Emergent},
	dsm.SeverityModerate:    {Routine, Expedited, Urgent, Emergent},
	dsm.SeveritySevere:      {Expedited, Urgent, Urgent, Emergent},
	dsm.SeverityUnspecified: {Routine, Expedited, Urgent, Emergent},
}

// severityOnly applies when no risk assessment was performed.
var severityOnly = map[dsm.Severity]Level{
	dsm.SeverityMild:        Routine,
	dsm.SeverityModerate:    Expedited,
	dsm.SeveritySevere:      Urgent,
	dsm.SeverityUnspecified: Routine,
}

// Resolve maps severity and aggregate risk to an urgency tier. Imminent risk
// yields Emergent for every severity, including values outside the table.
func Resolve(severity dsm.Severity, aggregate risk.Level) Level {
	if aggregate >= risk.LevelImminent {
		return Emergent
	}
	row, ok := table[severity]
	if !ok {
		row = table[dsm.SeverityUnspecified]
	}
	if aggregate < risk.LevelLow {
		aggregate = risk.LevelLow
	}
	return row[aggregate]
}

// FromSeverity maps severity alone when risk was not assessed.
func FromSeverity(severity dsm.Severity) Level {
	if l, ok := severityOnly[severity]; ok {
		return l
	}
	return Routine
}

// ForAssessment resolves urgency from an optional risk assessment.
func ForAssessment(severity dsm.Severity, a *risk.Assessment) Level {
	if a == nil {
		return FromSeverity(severity)
	}
	return Resolve(severity, a.Aggregate)
}

// CrisisProtocolRequired reports whether the crisis protocol must fire.
func CrisisProtocolRequired(level Level, a *risk.Assessment) bool {
	if a == nil {
		return false
	}
	return a.ImmediateInterventionRequired || (level == Emergent && a.Aggregate == risk.LevelImminent)
}

