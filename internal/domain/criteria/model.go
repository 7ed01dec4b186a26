// Package criteria scores diagnosis candidates against their diagnostic
// criteria sets.
package criteria

import (
	"regexp"

	"github.com/ehr/assessment/internal/domain/dsm"
	"github.com/ehr/assessment/internal/domain/lexicon"
)

// Criterion is a single diagnostic requirement.
type Criterion struct {
	ID          string        `json:"id"`
	Description string        `json:"description"`
	Required    bool          `json:"required"`
	Terms       lexicon.Terms `json:"-"`
	// Pattern optionally matches evidence the phrase list cannot express,
	// such as symptom duration.
	Pattern *regexp.Regexp `json:"-"`
}

// Set is the criteria set registered for a diagnosis code.
type Set struct {
	Code     string       `json:"code"`
	Name     string       `json:"name"`
	Category dsm.Category `json:"category"`
	Criteria []Criterion  `json:"criteria"`
}

// RequiredCount returns the number of required criteria in the set.
func (s *Set) RequiredCount() int {
	n := 0
	for _, c := range s.Criteria {
		if c.Required {
			n++
		}
	}
	return n
}

// Evidence maps a criterion id to the supporting phrases found for it.
type Evidence map[string][]string

// Match is the outcome for one criterion.
type Match struct {
	CriterionID string   `json:"criterion_id"`
	Required    bool     `json:"required"`
	Matched     bool     `json:"matched"`
	Confidence  float64  `json:"confidence"`
	Evidence    []string `json:"evidence"`
}

// Result tallies the matches for a diagnosis.
type Result struct {
	TotalMet        int      `json:"total_met"`
	RequiredMet     int      `json:"required_met"`
	RequiredTotal   int      `json:"required_total"`
	Matches         []Match  `json:"matches"`
	MissingRequired []string `json:"missing_required"`
	OverallMatch    bool     `json:"overall_match"`
}
