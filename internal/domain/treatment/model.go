// Package treatment generates prioritized, culturally adapted treatment
// recommendations for a diagnosis.
package treatment

import (
	"fmt"
	"strings"

	"github.com/ehr/assessment/internal/domain/dsm"
	"github.com/ehr/assessment/internal/domain/urgency"
)

// Type is the kind of intervention.
type Type string

const (
	TypePsychotherapy      Type = "psychotherapy"
	TypeMedication         Type = "medication"
	TypePsychosocial       Type = "psychosocial"
	TypeCrisisIntervention Type = "crisis_intervention"
	TypeReferral           Type = "referral"
	TypeMonitoring         Type = "monitoring"
	TypeEducation          Type = "education"
)

// Priority orders recommendations: low < medium < high < urgent.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityUrgent
)

var priorityNames = [...]string{"low", "medium", "high", "urgent"}

func (p Priority) String() string {
	if p < PriorityLow || p > PriorityUrgent {
		return fmt.Sprintf("Priority(%d)", int(p))
	}
	return priorityNames[p]
}

func (p Priority) MarshalText() ([]byte, error) {
	if p < PriorityLow || p > PriorityUrgent {
		return nil, fmt.Errorf("invalid priority %d", int(p))
	}
	return []byte(priorityNames[p]), nil
}

func (p *Priority) UnmarshalText(b []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(b)))
	for i, n := range priorityNames {
		if n == s {
			*p = Priority(i)
			return nil
		}
	}
	return fmt.Errorf("unknown priority %q", s)
}

// Recommendation is one intervention.
type Recommendation struct {
	Type                   Type          `json:"type"`
	Intervention           string        `json:"intervention"`
	Priority               Priority      `json:"priority"`
	Urgency                urgency.Level `json:"urgency"`
	CulturalAdaptations    []string      `json:"cultural_adaptations,omitempty"`
	LanguageConsiderations []string      `json:"language_considerations,omitempty"`
	Rationale              string        `json:"rationale,omitempty"`
}

// Diagnosis is the generator's view of the top diagnosis.
type Diagnosis struct {
	Code        string
	Name        string
	Category    dsm.Category
	Medications []string
}
