// Package cultural composes cultural formulations from a versioned knowledge
// base of cultural backgrounds and regional groupings.
package cultural

import "github.com/ehr/assessment/internal/domain/dsm"

// Flags are the care adaptations associated with a grouping.
type Flags struct {
	SomaticEmphasis    bool `yaml:"somatic_emphasis" json:"somatic_emphasis,omitempty"`
	FamilyInvolvement  bool `yaml:"family_involvement" json:"family_involvement,omitempty"`
	SpiritualContext   bool `yaml:"spiritual_context" json:"spiritual_context,omitempty"`
	CommunityFocus     bool `yaml:"community_focus" json:"community_focus,omitempty"`
	TraditionalHealing bool `yaml:"traditional_healing" json:"traditional_healing,omitempty"`
	CollectiveIdentity bool `yaml:"collective_identity" json:"collective_identity,omitempty"`
	IndividualFocus    bool `yaml:"individual_focus" json:"individual_focus,omitempty"`
	MedicalModel       bool `yaml:"medical_model" json:"medical_model,omitempty"`
	PrivacyEmphasis    bool `yaml:"privacy_emphasis" json:"privacy_emphasis,omitempty"`
}

func (f Flags) merge(o Flags) Flags {
	return Flags{
		SomaticEmphasis:    f.SomaticEmphasis || o.SomaticEmphasis,
		FamilyInvolvement:  f.FamilyInvolvement || o.FamilyInvolvement,
		SpiritualContext:   f.SpiritualContext || o.SpiritualContext,
		CommunityFocus:     f.CommunityFocus || o.CommunityFocus,
		TraditionalHealing: f.TraditionalHealing || o.TraditionalHealing,
		CollectiveIdentity: f.CollectiveIdentity || o.CollectiveIdentity,
		IndividualFocus:    f.IndividualFocus || o.IndividualFocus,
		MedicalModel:       f.MedicalModel || o.MedicalModel,
		PrivacyEmphasis:    f.PrivacyEmphasis || o.PrivacyEmphasis,
	}
}

// MatchKind records how a background was resolved in the knowledge base.
type MatchKind string

const (
	MatchExact    MatchKind = "exact"
	MatchAlias    MatchKind = "alias"
	MatchRegion   MatchKind = "region"
	MatchLanguage MatchKind = "language"
	MatchNone     MatchKind = "none"
)

// Source identifies the knowledge base entry behind a formulation.
type Source struct {
	Match    MatchKind `json:"match"`
	Key      string    `json:"key,omitempty"`
	Grouping string    `json:"grouping,omitempty"`
}

// Formulation is the structured cultural narrative for a subject.
type Formulation struct {
	Identity                  string   `json:"identity"`
	DistressConceptualization string   `json:"distress_conceptualization"`
	Stressors                 []string `json:"stressors"`
	VulnerabilityFeatures     []string `json:"vulnerability_features"`
	ResilienceFeatures        []string `json:"resilience_features"`
	// WithheldResilience lists resilience features dropped because risk
	// findings contradicted them.
	WithheldResilience []string `json:"withheld_resilience,omitempty"`
	Flags              Flags    `json:"adaptation_flags"`
	Source             Source   `json:"source"`
	KnowledgeVersion   string   `json:"knowledge_version"`
}

// Empty reports whether no knowledge base entry matched.
func (f *Formulation) Empty() bool {
	return f == nil || f.Source.Match == MatchNone
}

// Context is what the treatment generator needs from a cultural formulation.
type Context struct {
	Grouping          string
	Flags             Flags
	PreferredLanguage dsm.Language
}

// Context derives the treatment context from f. A nil or empty formulation
// still yields a context so generic adaptations apply.
func (f *Formulation) Context(preferred dsm.Language) *Context {
	c := &Context{PreferredLanguage: preferred}
	if f != nil {
		c.Grouping = f.Source.Grouping
		c.Flags = f.Flags
	}
	return c
}
