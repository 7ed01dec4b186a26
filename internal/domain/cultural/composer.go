package cultural

import (
	"strings"

	"github.com/ehr/assessment/internal/domain/dsm"
)

// Composer builds formulations from a knowledge base. It holds no mutable
// state and is safe for concurrent use.
type Composer struct {
	kb *KnowledgeBase
}

func NewComposer(kb *KnowledgeBase) *Composer {
	if kb == nil {
		kb = DefaultKnowledgeBase()
	}
	return &Composer{kb: kb}
}

// KnowledgeVersion returns the version of the underlying knowledge base.
func (c *Composer) KnowledgeVersion() string {
	return c.kb.Version
}

// Compose returns the formulation for background, or nil when no background
// was supplied. An unmatched background yields an empty formulation with
// Source.Match set to MatchNone; no content is invented for it.
func (c *Composer) Compose(background string, lang dsm.Language) *Formulation {
	label := strings.TrimSpace(background)
	if label == "" {
		return nil
	}
	m := c.kb.lookup(label, lang)
	f := &Formulation{
		Stressors:             []string{},
		VulnerabilityFeatures: []string{},
		ResilienceFeatures:    []string{},
		Source:                Source{Match: m.kind, Key: m.key},
		KnowledgeVersion:      c.kb.Version,
	}
	if m.kind == MatchNone {
		f.Identity = label
		return f
	}

	g := m.grouping
	f.Source.Grouping = g.ID
	f.DistressConceptualization = g.DistressConceptualization
	f.Stressors = append(f.Stressors, g.Stressors...)
	f.VulnerabilityFeatures = append(f.VulnerabilityFeatures, g.Vulnerabilities...)
	f.ResilienceFeatures = append(f.ResilienceFeatures, g.Resilience...)
	f.Flags = g.Flags

	switch m.kind {
	case MatchExact, MatchAlias:
		if b := m.background; b != nil {
			f.Identity = b.Label + " (" + g.Name + ")"
			if b.DistressConceptualization != "" {
				f.DistressConceptualization = b.DistressConceptualization
			}
			if len(b.Stressors) > 0 {
				f.Stressors = append([]string{}, b.Stressors...)
			}
			if len(b.Vulnerabilities) > 0 {
				f.VulnerabilityFeatures = append([]string{}, b.Vulnerabilities...)
			}
			if len(b.Resilience) > 0 {
				f.ResilienceFeatures = append([]string{}, b.Resilience...)
			}
			f.Flags = f.Flags.merge(b.Flags)
		} else {
			f.Identity = g.Name
		}
	case MatchRegion:
		f.Identity = label + " (" + g.Name + " grouping)"
	case MatchLanguage:
		f.Identity = label + " (" + g.Name + " linguistic grouping)"
	}
	return f
}
