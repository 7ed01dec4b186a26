package treatment

import (
	"sort"
	"strings"

	"github.com/ehr/assessment/internal/domain/cultural"
	"github.com/ehr/assessment/internal/domain/dsm"
	"github.com/ehr/assessment/internal/domain/risk"
	"github.com/ehr/assessment/internal/domain/urgency"
)

// Generator composes recommendations from the category catalog. Output is a
// pure function of its inputs.
type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Recommend returns the recommendations for dx at severity, ordered by
// descending priority. A non-nil cc adds cultural adaptations and, when the
// preferred language is not the default, language considerations.
func (g *Generator) Recommend(dx Diagnosis, severity dsm.Severity, cc *cultural.Context) []Recommendation {
	p := planFor(dx.Category)
	var recs []Recommendation

	switch severity {
	case dsm.SeverityMild:
		recs = append(recs,
			rec(TypePsychotherapy, p.psychotherapy, PriorityMedium, urgency.Routine),
			rec(TypeEducation, p.education, PriorityLow, urgency.Routine),
			rec(TypeMonitoring, "Watchful waiting with symptom re-assessment in 4 weeks", PriorityLow, urgency.Routine),
		)
	case dsm.SeverityModerate:
		recs = append(recs, rec(TypePsychotherapy, p.psychotherapy, PriorityHigh, urgency.Expedited))
		if p.medication != "" {
			recs = append(recs, rec(TypeMedication, p.medication, PriorityMedium, urgency.Expedited))
		}
		recs = append(recs,
			rec(TypePsychosocial, p.psychosocial, PriorityMedium, urgency.Routine),
			rec(TypeEducation, p.education, PriorityLow, urgency.Routine),
		)
	case dsm.SeveritySevere:
		recs = append(recs, rec(TypeReferral, "Referral to specialist psychiatric care", PriorityUrgent, urgency.Urgent))
		if p.medication != "" {
			recs = append(recs, rec(TypeMedication, p.medication, PriorityHigh, urgency.Urgent))
		}
		recs = append(recs,
			rec(TypePsychotherapy, p.psychotherapy, PriorityHigh, urgency.Expedited),
			rec(TypeMonitoring, "Weekly clinical monitoring until symptoms improve", PriorityHigh, urgency.Urgent),
			rec(TypePsychosocial, p.psychosocial, PriorityMedium, urgency.Expedited),
		)
	default:
		recs = append(recs,
			rec(TypeReferral, "Referral for comprehensive diagnostic assessment", PriorityMedium, urgency.Expedited),
			rec(TypePsychotherapy, p.psychotherapy, PriorityMedium, urgency.Routine),
			rec(TypeEducation, p.education, PriorityLow, urgency.Routine),
		)
	}

	for i := range recs {
		recs[i].Rationale = rationale(recs[i].Type, dx, severity)
	}
	if cc != nil {
		adapt(recs, cc)
	}
	SortByPriority(recs)
	return recs
}

func rec(t Type, intervention string, p Priority, u urgency.Level) Recommendation {
	return Recommendation{Type: t, Intervention: intervention, Priority: p, Urgency: u}
}

func rationale(t Type, dx Diagnosis, severity dsm.Severity) string {
	name := dx.Name
	if name == "" {
		name = dx.Code
	}
	s := string(t) + " for " + string(severity) + " " + name
	if t == TypeMedication && len(dx.Medications) > 0 {
		s += "; review interactions with current medications: " + strings.Join(dx.Medications, ", ")
	}
	return s
}

var flagAdaptations = []struct {
	on   func(cultural.Flags) bool
	text string
}{
	{func(f cultural.Flags) bool { return f.SomaticEmphasis }, "Address somatic complaints explicitly and link them to emotional distress"},
	{func(f cultural.Flags) bool { return f.FamilyInvolvement }, "Involve family members in treatment planning with the subject's consent"},
	{func(f cultural.Flags) bool { return f.SpiritualContext }, "Integrate spiritual and religious coping; consider collaboration with faith leaders"},
	{func(f cultural.Flags) bool { return f.CommunityFocus }, "Engage community resources and peer support groups"},
	{func(f cultural.Flags) bool { return f.TraditionalHealing }, "Ask about traditional healing practices and coordinate care with them"},
	{func(f cultural.Flags) bool { return f.CollectiveIdentity }, "Frame treatment goals in terms of family and community roles"},
	{func(f cultural.Flags) bool { return f.IndividualFocus }, "Emphasize individual goals and autonomy"},
	{func(f cultural.Flags) bool { return f.MedicalModel }, "Provide biomedical psychoeducation on diagnosis and treatment options"},
	{func(f cultural.Flags) bool { return f.PrivacyEmphasis }, "Discuss confidentiality explicitly before involving others"},
}

const explanatoryModel = "Explore the subject's explanatory model of distress using the Cultural Formulation Interview"

// adapt attaches cultural adaptations to talk-based and psychosocial
// recommendations, and language considerations to every recommendation
// the subject takes part in directly.
func adapt(recs []Recommendation, cc *cultural.Context) {
	adaptations := []string{explanatoryModel}
	for _, fa := range flagAdaptations {
		if fa.on(cc.Flags) {
			adaptations = append(adaptations, fa.text)
		}
	}
	var language []string
	if cc.PreferredLanguage != "" && cc.PreferredLanguage != dsm.DefaultLanguage {
		name := languageName(cc.PreferredLanguage)
		language = []string{
			"Deliver in " + name + " with a native-speaking clinician or trained medical interpreter",
			"Use validated " + name + " versions of screening instruments and written materials",
		}
	}
	adapted := false
	for i := range recs {
		switch recs[i].Type {
		case TypePsychotherapy, TypePsychosocial, TypeEducation, TypeCrisisIntervention:
			recs[i].CulturalAdaptations = append([]string(nil), adaptations...)
			adapted = true
		}
		if language != nil && recs[i].Type != TypeMonitoring {
			recs[i].LanguageConsiderations = append([]string(nil), language...)
		}
	}
	if !adapted && len(recs) > 0 {
		recs[0].CulturalAdaptations = append([]string(nil), adaptations...)
	}
}

func languageName(l dsm.Language) string {
	switch l {
	case dsm.LanguageSwahili:
		return "Swahili"
	case dsm.LanguageFrench:
		return "French"
	case dsm.LanguageEnglish:
		return "English"
	}
	return string(l)
}

// CrisisInterventions returns the crisis recommendations warranted by a,
// or nil when risk is below high.
func CrisisInterventions(a *risk.Assessment) []Recommendation {
	if a == nil || a.Aggregate < risk.LevelHigh {
		return nil
	}
	var recs []Recommendation
	if a.ImmediateInterventionRequired {
		recs = append(recs,
			Recommendation{
				Type:         TypeCrisisIntervention,
				Intervention: "Activate crisis protocol: immediate clinician safety assessment, do not leave the subject alone, restrict access to lethal means",
				Priority:     PriorityUrgent,
				Urgency:      urgency.Emergent,
				Rationale:    "immediate intervention required at " + a.Aggregate.String() + " risk",
			},
			Recommendation{
				Type:         TypeReferral,
				Intervention: "Same-day emergency psychiatric evaluation",
				Priority:     PriorityUrgent,
				Urgency:      urgency.Emergent,
				Rationale:    "immediate intervention required",
			},
		)
	} else {
		recs = append(recs, Recommendation{
			Type:         TypeCrisisIntervention,
			Intervention: "Collaborative safety plan within 24 hours with crisis line contacts",
			Priority:     PriorityHigh,
			Urgency:      urgency.Urgent,
			Rationale:    "high " + highestDimension(a) + " risk",
		})
	}
	if a.Violence >= risk.LevelHigh {
		recs = append(recs, Recommendation{
			Type:         TypeCrisisIntervention,
			Intervention: "Assess risk to identifiable others and duty-to-protect obligations",
			Priority:     PriorityUrgent,
			Urgency:      urgency.Urgent,
			Rationale:    "violence risk " + a.Violence.String(),
		})
	}
	recs = append(recs, Recommendation{
		Type:         TypeMonitoring,
		Intervention: "Follow-up contact within 72 hours",
		Priority:     PriorityHigh,
		Urgency:      urgency.Urgent,
		Rationale:    "post-crisis follow-up",
	})
	return recs
}

func highestDimension(a *risk.Assessment) string {
	best := risk.Dimensions[0]
	for _, d := range risk.Dimensions[1:] {
		if a.Level(d) > a.Level(best) {
			best = d
		}
	}
	return strings.ReplaceAll(string(best), "_", "-")
}

// SortByPriority stable-sorts recs by priority, then urgency, both
// descending.
func SortByPriority(recs []Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Priority != recs[j].Priority {
			return recs[i].Priority > recs[j].Priority
		}
		return recs[i].Urgency > recs[j].Urgency
	})
}
