package cultural

import (
	"strings"
	"testing"

	"github.com/ehr/assessment/internal/domain/dsm"
)

func newTestComposer(t *testing.T) *Composer {
	t.Helper()
	return NewComposer(DefaultKnowledgeBase())
}

func TestCompose_NoBackground(t *testing.T) {
	c := newTestComposer(t)
	if f := c.Compose("  ", dsm.LanguageEnglish); f != nil {
		t.Errorf("expected nil formulation, got %+v", f)
	}
}

func TestCompose_LookupOrder(t *testing.T) {
	c := newTestComposer(t)
	tests := []struct {
		name     string
		label    string
		lang     dsm.Language
		match    MatchKind
		grouping string
	}{
		{"exact background", "Kikuyu", dsm.LanguageEnglish, MatchExact, "east_african"},
		{"exact is case-insensitive", "  yoruba ", dsm.LanguageEnglish, MatchExact, "west_african"},
		{"exact grouping name", "West African", dsm.LanguageEnglish, MatchExact, "west_african"},
		{"alias", "Gikuyu", dsm.LanguageEnglish, MatchAlias, "east_african"},
		{"region token", "Kenyan coastal", dsm.LanguageEnglish, MatchRegion, "east_african"},
		{"multi-word token", "rural Sierra Leone", dsm.LanguageEnglish, MatchRegion, "west_african"},
		{"language fallback", "Chaga highlands", dsm.LanguageSwahili, MatchLanguage, "east_african"},
		{"french fallback", "Breton", dsm.LanguageFrench, MatchLanguage, "european"},
		{"no match", "Martian", dsm.LanguageEnglish, MatchNone, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := c.Compose(tt.label, tt.lang)
			if f == nil {
				t.Fatal("expected formulation")
			}
			if f.Source.Match != tt.match {
				t.Errorf("match = %s, want %s", f.Source.Match, tt.match)
			}
			if f.Source.Grouping != tt.grouping {
				t.Errorf("grouping = %q, want %q", f.Source.Grouping, tt.grouping)
			}
			if f.KnowledgeVersion == "" {
				t.Error("knowledge version should be recorded")
			}
		})
	}
}

func TestCompose_UnmatchedIsEmpty(t *testing.T) {
	f := newTestComposer(t).Compose("Martian", dsm.LanguageEnglish)
	if !f.Empty() {
		t.Error("expected empty formulation")
	}
	if f.DistressConceptualization != "" || len(f.Stressors) != 0 || len(f.ResilienceFeatures) != 0 || len(f.VulnerabilityFeatures) != 0 {
		t.Errorf("unmatched background must not carry content: %+v", f)
	}
	if f.Flags != (Flags{}) {
		t.Errorf("unmatched background must not carry flags: %+v", f.Flags)
	}
}

func TestCompose_BackgroundOverridesGrouping(t *testing.T) {
	f := newTestComposer(t).Compose("Maasai", dsm.LanguageEnglish)
	if !strings.Contains(f.Stressors[0], "pastoralist") {
		t.Errorf("expected background-specific stressors, got %v", f.Stressors)
	}
	if !f.Flags.TraditionalHealing || !f.Flags.SomaticEmphasis {
		t.Errorf("expected merged flags, got %+v", f.Flags)
	}
	if len(f.ResilienceFeatures) == 0 {
		t.Error("expected inherited resilience features")
	}
	if f.Identity != "Maasai (East African)" {
		t.Errorf("unexpected identity %q", f.Identity)
	}
}

func TestCompose_DoesNotShareKnowledgeBaseSlices(t *testing.T) {
	c := newTestComposer(t)
	f := c.Compose("Kikuyu", dsm.LanguageEnglish)
	f.Stressors[0] = "mutated"
	g := c.Compose("Kikuyu", dsm.LanguageEnglish)
	if g.Stressors[0] == "mutated" {
		t.Error("formulations must not alias knowledge base data")
	}
}

func TestParseKnowledgeBase_Validation(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing version", "groupings: []"},
		{"unknown grouping", "version: '1'\nbackgrounds:\n  - label: X\n    grouping: nowhere\n"},
		{"duplicate grouping", "version: '1'\ngroupings:\n  - id: a\n  - id: a\n"},
		{"bad language", "version: '1'\ngroupings:\n  - id: a\n    languages: [de]\n"},
		{"malformed", "version: [\n"},
	}
	for _, tt := range tests {
		if _, err := ParseKnowledgeBase([]byte(tt.doc)); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestParseKnowledgeBase_Custom(t *testing.T) {
	doc := `
version: "test-1"
groupings:
  - id: nordic
    name: Nordic
    tokens: [norwegian, swedish]
    resilience: [strong family ties]
    flags:
      privacy_emphasis: true
backgrounds:
  - label: Sami
    grouping: nordic
`
	kb, err := ParseKnowledgeBase([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	c := NewComposer(kb)
	f := c.Compose("Sami", dsm.LanguageEnglish)
	if f.Source.Match != MatchExact || !f.Flags.PrivacyEmphasis {
		t.Errorf("unexpected formulation %+v", f)
	}
	if c.KnowledgeVersion() != "test-1" {
		t.Errorf("unexpected version %s", c.KnowledgeVersion())
	}
}

func TestReconcile(t *testing.T) {
	f := &Formulation{ResilienceFeatures: []string{"strong extended family support", "religious faith and congregational belonging", "access to services"}}

	out := Reconcile(f, []string{"suicidal ideation", "social isolation: lives alone"}, []string{"no protective factors identified"})
	if len(out.ResilienceFeatures) != 1 || out.ResilienceFeatures[0] != "access to services" {
		t.Errorf("expected contradicted features removed, got %v", out.ResilienceFeatures)
	}
	if len(out.WithheldResilience) != 2 {
		t.Errorf("expected two withheld features, got %v", out.WithheldResilience)
	}
	if len(f.ResilienceFeatures) != 3 {
		t.Error("reconcile must not mutate its input")
	}

	kept := Reconcile(f, []string{"social isolation: lives alone"}, []string{"social support"})
	if len(kept.ResilienceFeatures) != 3 {
		t.Errorf("independently evidenced features should be kept, got %v", kept.ResilienceFeatures)
	}

	none := Reconcile(f, []string{"hopelessness"}, nil)
	if len(none.ResilienceFeatures) != 3 || len(none.WithheldResilience) != 0 {
		t.Errorf("no contradiction expected, got %+v", none)
	}

	if Reconcile(nil, nil, nil) != nil {
		t.Error("nil formulation should stay nil")
	}
}

func TestFormulation_Context(t *testing.T) {
	var f *Formulation
	ctx := f.Context(dsm.LanguageSwahili)
	if ctx == nil || ctx.PreferredLanguage != dsm.LanguageSwahili {
		t.Fatalf("unexpected context %+v", ctx)
	}
	g := newTestComposer(t).Compose("Igbo", dsm.LanguageEnglish)
	if c := g.Context(dsm.LanguageEnglish); c.Grouping != "west_african" || !c.Flags.CollectiveIdentity {
		t.Errorf("unexpected context %+v", c)
	}
}
