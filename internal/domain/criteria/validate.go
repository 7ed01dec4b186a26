package criteria

import (
	"github.com/ehr/assessment/internal/domain/dsm"
	"github.com/ehr/assessment/internal/domain/lexicon"
)

// Validate matches evidence against criteria. It performs no I/O and the
// result depends only on its inputs.
//
// OverallMatch is true iff every required criterion matched; an empty
// criteria list therefore matches vacuously. MissingRequired lists unmet
// required criterion ids in criteria order.
func Validate(evidence Evidence, criteria []Criterion) Result {
	res := Result{
		Matches:         make([]Match, 0, len(criteria)),
		MissingRequired: []string{},
	}
	for _, c := range criteria {
		ev := append([]string{}, evidence[c.ID]...)
		m := Match{
			CriterionID: c.ID,
			Required:    c.Required,
			Matched:     len(ev) > 0,
			Evidence:    ev,
		}
		if m.Matched {
			m.Confidence = matchConfidence(len(ev))
			res.TotalMet++
		}
		if c.Required {
			res.RequiredTotal++
			if m.Matched {
				res.RequiredMet++
			} else {
				res.MissingRequired = append(res.MissingRequired, c.ID)
			}
		}
		res.Matches = append(res.Matches, m)
	}
	res.OverallMatch = res.RequiredMet == res.RequiredTotal
	return res
}

// matchConfidence grows with the number of independent supporting phrases.
func matchConfidence(n int) float64 {
	switch {
	case n <= 0:
		return 0
	case n == 1:
		return 0.6
	case n == 2:
		return 0.8
	default:
		return 0.95
	}
}

// ExtractEvidence finds supporting phrases in text for each criterion.
// Criteria with no support are absent from the returned map.
func ExtractEvidence(text string, lang dsm.Language, criteria []Criterion) Evidence {
	ev := make(Evidence)
	normalized := lexicon.Normalize(text)
	for _, c := range criteria {
		found := lexicon.Find(text, lang, c.Terms.For(lang))
		if c.Pattern != nil {
			for _, m := range c.Pattern.FindAllString(normalized, -1) {
				if !containsString(found, m) {
					found = append(found, m)
				}
			}
		}
		if len(found) > 0 {
			ev[c.ID] = found
		}
	}
	return ev
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
