package risk

import (
	"strings"

	"github.com/ehr/assessment/internal/domain/dsm"
	"github.com/ehr/assessment/internal/domain/lexicon"
)

// Engine scores risk from symptom text, demographics and current medications.
// An Engine is immutable and safe for concurrent use.
type Engine struct {
	policy     Policy
	signals    []signal
	protective []protectiveSignal
}

func NewEngine(policy Policy) *Engine {
	if policy.MaxProtectiveReduction < 0 {
		policy.MaxProtectiveReduction = 0
	}
	return &Engine{policy: policy, signals: defaultSignals, protective: defaultProtective}
}

// Policy returns the engine's policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

type tally struct {
	score    map[Dimension]int
	primary  map[Dimension][]string
	plan     map[Dimension]bool
	evidence map[Dimension][]string
	factors  []string
}

func (t *tally) add(d Dimension, weight int, factor string, evidence ...string) {
	t.score[d] += weight
	t.evidence[d] = append(t.evidence[d], evidence...)
	for _, f := range t.factors {
		if f == factor {
			return
		}
	}
	t.factors = append(t.factors, factor)
}

// AssessRisk produces independent dimension levels and their aggregate.
func (e *Engine) AssessRisk(text string, lang dsm.Language, demo *dsm.Demographics, medications []string) *Assessment {
	t := &tally{
		score:    make(map[Dimension]int),
		primary:  make(map[Dimension][]string),
		plan:     make(map[Dimension]bool),
		evidence: make(map[Dimension][]string),
	}

	for _, s := range e.signals {
		if s.contextual {
			continue
		}
		if found := lexicon.Find(text, lang, s.terms.For(lang)); len(found) > 0 {
			t.primary[s.dimension] = append(t.primary[s.dimension], found...)
			t.add(s.dimension, s.weight, s.factor, found...)
		}
	}
	for _, s := range e.signals {
		anchors := t.primary[s.dimension]
		if !s.contextual || len(anchors) == 0 {
			continue
		}
		var found []string
		if s.sameClause {
			found = lexicon.FindNear(text, lang, s.terms.For(lang), anchors)
		} else {
			found = lexicon.Find(text, lang, s.terms.For(lang))
		}
		if len(found) > 0 {
			if s.plan {
				t.plan[s.dimension] = true
			}
			t.add(s.dimension, s.weight, s.factor, found...)
		}
	}

	e.scoreMedications(t, medications)
	protective := e.scoreDemographics(t, demo)

	for _, p := range e.protective {
		if lexicon.Contains(text, lang, p.terms.For(lang)) {
			protective = appendUnique(protective, p.factor)
		}
	}

	a := &Assessment{Signals: make(map[Dimension][]string)}
	detected := false
	reduction := len(protective)
	if reduction > e.policy.MaxProtectiveReduction {
		reduction = e.policy.MaxProtectiveReduction
	}
	for _, d := range Dimensions {
		score := t.score[d]
		if score == 0 {
			continue
		}
		detected = true
		// protective factors soften but never erase a detected signal
		score -= reduction
		if score < 1 {
			score = 1
		}
		level := levelForScore(score)
		if t.plan[d] && level < LevelHigh {
			level = LevelHigh
		}
		a.setLevel(d, level)
		a.Signals[d] = t.evidence[d]
		if t.plan[d] {
			a.HasConcretePlan = true
		}
	}
	a.Aggregate = MaxLevel(a.Suicide, a.SelfHarm, a.Violence, a.SubstanceUse)

	switch {
	case a.Aggregate == LevelImminent:
		a.ImmediateInterventionRequired = true
	case a.Aggregate == LevelHigh && a.HasConcretePlan && e.policy.InterveneOnHighWithPlan:
		a.ImmediateInterventionRequired = true
	}

	if detected {
		a.RiskFactors = t.factors
		a.ProtectiveFactors = protective
		if len(a.ProtectiveFactors) == 0 {
			a.ProtectiveFactors = []string{NoProtectiveFactorsIdentified}
		}
	} else {
		a.NoSignificantFindings = true
		a.RiskFactors = []string{NoSignificantFindings}
		a.ProtectiveFactors = protective
		if len(a.ProtectiveFactors) == 0 {
			a.ProtectiveFactors = []string{NoSignificantFindings}
		}
		a.Signals = nil
	}
	return a
}

// scoreMedications adds at most two points of substance-use risk for
// medications with misuse potential.
func (e *Engine) scoreMedications(t *tally, medications []string) {
	added := 0
	for _, med := range medications {
		name := strings.ToLower(strings.TrimSpace(med))
		for _, m := range misuseMedications {
			if added >= 2 {
				return
			}
			if strings.Contains(name, m) {
				t.add(DimensionSubstanceUse, 1, "current medication with misuse potential: "+m, med)
				added++
				break
			}
		}
	}
}

// scoreDemographics applies age and living-situation modifiers to an already
// detected suicide signal and returns demographic protective factors.
func (e *Engine) scoreDemographics(t *tally, demo *dsm.Demographics) []string {
	if demo == nil {
		return nil
	}
	var protective []string
	living := strings.ToLower(demo.LivingSituation)
	if t.score[DimensionSuicide] > 0 {
		if demo.Age != nil && (*demo.Age >= 65 || (*demo.Age >= 15 && *demo.Age <= 24)) {
			t.add(DimensionSuicide, 1, "age group with elevated suicide risk")
		}
		if strings.Contains(living, "alone") {
			t.add(DimensionSuicide, 1, "social isolation: lives alone")
		}
	}
	for _, kw := range []string{"family", "partner", "spouse", "parents", "familia", "famille"} {
		if strings.Contains(living, kw) {
			protective = append(protective, "lives with family or partner")
			break
		}
	}
	return protective
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
