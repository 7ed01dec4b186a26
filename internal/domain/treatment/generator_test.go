package treatment

import (
	"reflect"
	"testing"

	"github.com/ehr/assessment/internal/domain/cultural"
	"github.com/ehr/assessment/internal/domain/dsm"
	"github.com/ehr/assessment/internal/domain/risk"
	"github.com/ehr/assessment/internal/domain/urgency"
)

type shape struct {
	Type     Type
	Priority Priority
	Urgency  urgency.Level
}

func shapes(recs []Recommendation) []shape {
	out := make([]shape, len(recs))
	for i, r := range recs {
		out[i] = shape{r.Type, r.Priority, r.Urgency}
	}
	return out
}

var depression = Diagnosis{Code: "F32.1", Name: "Major depressive disorder", Category: dsm.CategoryDepressive}

func TestRecommend_Golden(t *testing.T) {
	g := NewGenerator()
	tests := []struct {
		severity dsm.Severity
		want     []shape
	}{
		{dsm.SeverityMild, []shape{
			{TypePsychotherapy, PriorityMedium, urgency.Routine},
			{TypeEducation, PriorityLow, urgency.Routine},
			{TypeMonitoring, PriorityLow, urgency.Routine},
		}},
		{dsm.SeverityModerate, []shape{
			{TypePsychotherapy, PriorityHigh, urgency.Expedited},
			{TypeMedication, PriorityMedium, urgency.Expedited},
			{TypePsychosocial, PriorityMedium, urgency.Routine},
			{TypeEducation, PriorityLow, urgency.Routine},
		}},
		{dsm.SeveritySevere, []shape{
			{TypeReferral, PriorityUrgent, urgency.Urgent},
			{TypeMedication, PriorityHigh, urgency.Urgent},
			{TypeMonitoring, PriorityHigh, urgency.Urgent},
			{TypePsychotherapy, PriorityHigh, urgency.Expedited},
			{TypePsychosocial, PriorityMedium, urgency.Expedited},
		}},
		{dsm.SeverityUnspecified, []shape{
			{TypeReferral, PriorityMedium, urgency.Expedited},
			{TypePsychotherapy, PriorityMedium, urgency.Routine},
			{TypeEducation, PriorityLow, urgency.Routine},
		}},
	}
	for _, tt := range tests {
		got := shapes(g.Recommend(depression, tt.severity, nil))
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s: got %v, want %v", tt.severity, got, tt.want)
		}
	}
}

func TestRecommend_Deterministic(t *testing.T) {
	g := NewGenerator()
	cc := &cultural.Context{Grouping: "east_african", Flags: cultural.Flags{SomaticEmphasis: true}, PreferredLanguage: dsm.LanguageSwahili}
	for _, cat := range dsm.Categories() {
		for _, sev := range []dsm.Severity{dsm.SeverityMild, dsm.SeverityModerate, dsm.SeveritySevere, dsm.SeverityUnspecified} {
			dx := Diagnosis{Code: "X", Category: cat}
			a := g.Recommend(dx, sev, cc)
			b := g.Recommend(dx, sev, cc)
			if !reflect.DeepEqual(a, b) {
				t.Fatalf("%s/%s: recommendations differ between calls", cat, sev)
			}
		}
	}
}

func TestRecommend_SevereYieldsUrgent(t *testing.T) {
	g := NewGenerator()
	for _, cat := range dsm.Categories() {
		recs := g.Recommend(Diagnosis{Category: cat}, dsm.SeveritySevere, nil)
		found := false
		for _, r := range recs {
			if r.Urgency >= urgency.Urgent {
				found = true
			}
		}
		if !found {
			t.Errorf("%s: severe diagnosis without urgent recommendation", cat)
		}
	}
}

func TestRecommend_OrderedByPriority(t *testing.T) {
	g := NewGenerator()
	for _, sev := range []dsm.Severity{dsm.SeverityMild, dsm.SeverityModerate, dsm.SeveritySevere, dsm.SeverityUnspecified} {
		recs := g.Recommend(depression, sev, nil)
		for i := 1; i < len(recs); i++ {
			if recs[i].Priority > recs[i-1].Priority {
				t.Errorf("%s: recommendations not ordered by priority: %v", sev, shapes(recs))
			}
		}
	}
}

func TestRecommend_CulturalAdaptations(t *testing.T) {
	g := NewGenerator()
	cc := &cultural.Context{Grouping: "west_african", Flags: cultural.Flags{CommunityFocus: true, TraditionalHealing: true}, PreferredLanguage: dsm.LanguageFrench}
	recs := g.Recommend(depression, dsm.SeverityModerate, cc)

	var adapted, language int
	for _, r := range recs {
		if len(r.CulturalAdaptations) > 0 {
			adapted++
		}
		if len(r.LanguageConsiderations) > 0 {
			language++
		}
	}
	if adapted == 0 {
		t.Error("expected at least one culturally adapted recommendation")
	}
	if language == 0 {
		t.Error("expected language considerations for a non-default language")
	}
	if len(recs[0].CulturalAdaptations) != 3 {
		t.Errorf("expected explanatory model plus two flag adaptations, got %v", recs[0].CulturalAdaptations)
	}

	english := g.Recommend(depression, dsm.SeverityModerate, &cultural.Context{PreferredLanguage: dsm.LanguageEnglish})
	for _, r := range english {
		if len(r.LanguageConsiderations) > 0 {
			t.Errorf("default language should not add language considerations: %v", r.LanguageConsiderations)
		}
	}
	if len(english[0].CulturalAdaptations) == 0 {
		t.Error("a cultural context without flags still gets the explanatory model adaptation")
	}

	plain := g.Recommend(depression, dsm.SeverityModerate, nil)
	for _, r := range plain {
		if len(r.CulturalAdaptations) > 0 || len(r.LanguageConsiderations) > 0 {
			t.Error("no cultural context should mean no adaptations")
		}
	}
}

func TestRecommend_MedicationRationale(t *testing.T) {
	dx := depression
	dx.Medications = []string{"sertraline", "ibuprofen"}
	recs := NewGenerator().Recommend(dx, dsm.SeverityModerate, nil)
	for _, r := range recs {
		if r.Type == TypeMedication {
			want := "medication for moderate Major depressive disorder; review interactions with current medications: sertraline, ibuprofen"
			if r.Rationale != want {
				t.Errorf("unexpected rationale %q", r.Rationale)
			}
			return
		}
	}
	t.Fatal("expected a medication recommendation")
}

func TestCrisisInterventions(t *testing.T) {
	if CrisisInterventions(nil) != nil {
		t.Error("nil risk should produce no crisis recommendations")
	}
	if CrisisInterventions(&risk.Assessment{Aggregate: risk.LevelModerate}) != nil {
		t.Error("moderate risk should produce no crisis recommendations")
	}

	imminent := CrisisInterventions(&risk.Assessment{Suicide: risk.LevelImminent, Aggregate: risk.LevelImminent, ImmediateInterventionRequired: true})
	found := false
	for _, r := range imminent {
		if r.Type == TypeCrisisIntervention && r.Urgency == urgency.Emergent {
			found = true
		}
	}
	if !found {
		t.Errorf("expected emergent crisis intervention, got %v", shapes(imminent))
	}

	high := CrisisInterventions(&risk.Assessment{Violence: risk.LevelHigh, Aggregate: risk.LevelHigh})
	if len(high) != 3 {
		t.Fatalf("expected safety plan, duty-to-protect and follow-up, got %v", shapes(high))
	}
	if high[0].Rationale != "high violence risk" {
		t.Errorf("unexpected rationale %q", high[0].Rationale)
	}
	for _, r := range high {
		if r.Urgency == urgency.Emergent {
			t.Error("high risk without intervention flag should not be emergent")
		}
	}
}

func TestSortByPriority_Stable(t *testing.T) {
	recs := []Recommendation{
		{Intervention: "a", Priority: PriorityLow, Urgency: urgency.Routine},
		{Intervention: "b", Priority: PriorityHigh, Urgency: urgency.Routine},
		{Intervention: "c", Priority: PriorityHigh, Urgency: urgency.Routine},
		{Intervention: "d", Priority: PriorityHigh, Urgency: urgency.Urgent},
	}
	SortByPriority(recs)
	var got []string
	for _, r := range recs {
		got = append(got, r.Intervention)
	}
	if !reflect.DeepEqual(got, []string{"d", "b", "c", "a"}) {
		t.Errorf("unexpected order %v", got)
	}
}
