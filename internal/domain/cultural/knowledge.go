package cultural

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ehr/assessment/internal/domain/dsm"
)

//go:embed default_kb.yaml
var defaultKB []byte

// Grouping is a regional or linguistic cultural grouping.
type Grouping struct {
	ID                        string         `yaml:"id"`
	Name                      string         `yaml:"name"`
	Tokens                    []string       `yaml:"tokens"`
	Languages                 []dsm.Language `yaml:"languages"`
	DistressConceptualization string         `yaml:"distress_conceptualization"`
	Stressors                 []string       `yaml:"stressors"`
	Vulnerabilities           []string       `yaml:"vulnerabilities"`
	Resilience                []string       `yaml:"resilience"`
	Flags                     Flags          `yaml:"flags"`
}

// Background is a specific cultural-background label. Empty fields inherit
// from its grouping.
type Background struct {
	Label                     string   `yaml:"label"`
	Aliases                   []string `yaml:"aliases"`
	Grouping                  string   `yaml:"grouping"`
	DistressConceptualization string   `yaml:"distress_conceptualization"`
	Stressors                 []string `yaml:"stressors"`
	Vulnerabilities           []string `yaml:"vulnerabilities"`
	Resilience                []string `yaml:"resilience"`
	Flags                     Flags    `yaml:"flags"`
}

// KnowledgeBase is the versioned lookup table behind the composer.
type KnowledgeBase struct {
	Version     string       `yaml:"version"`
	Groupings   []Grouping   `yaml:"groupings"`
	Backgrounds []Background `yaml:"backgrounds"`

	groupings map[string]*Grouping
	labels    map[string]*Background
	aliases   map[string]*Background
}

// ParseKnowledgeBase decodes and indexes a YAML knowledge base.
func ParseKnowledgeBase(data []byte) (*KnowledgeBase, error) {
	var kb KnowledgeBase
	if err := yaml.Unmarshal(data, &kb); err != nil {
		return nil, fmt.Errorf("decode cultural knowledge base: %w", err)
	}
	if err := kb.index(); err != nil {
		return nil, err
	}
	return &kb, nil
}

// LoadKnowledgeBase reads a knowledge base from path.
func LoadKnowledgeBase(path string) (*KnowledgeBase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cultural knowledge base: %w", err)
	}
	return ParseKnowledgeBase(data)
}

// DefaultKnowledgeBase returns the built-in knowledge base.
func DefaultKnowledgeBase() *KnowledgeBase {
	kb, err := ParseKnowledgeBase(defaultKB)
	if err != nil {
		panic(fmt.Sprintf("built-in cultural knowledge base: %v", err))
	}
	return kb
}

func (kb *KnowledgeBase) index() error {
	if strings.TrimSpace(kb.Version) == "" {
		return fmt.Errorf("cultural knowledge base version is required")
	}
	kb.groupings = make(map[string]*Grouping, len(kb.Groupings))
	kb.labels = make(map[string]*Background, len(kb.Backgrounds))
	kb.aliases = make(map[string]*Background)
	for i := range kb.Groupings {
		g := &kb.Groupings[i]
		if g.ID == "" {
			return fmt.Errorf("grouping %d: id is required", i)
		}
		if _, dup := kb.groupings[g.ID]; dup {
			return fmt.Errorf("grouping %s: duplicate id", g.ID)
		}
		for _, l := range g.Languages {
			if !dsm.IsSupported(l) {
				return fmt.Errorf("grouping %s: unsupported language %q", g.ID, l)
			}
		}
		kb.groupings[g.ID] = g
	}
	for i := range kb.Backgrounds {
		b := &kb.Backgrounds[i]
		key := normalize(b.Label)
		if key == "" {
			return fmt.Errorf("background %d: label is required", i)
		}
		if _, ok := kb.groupings[b.Grouping]; !ok {
			return fmt.Errorf("background %s: unknown grouping %q", b.Label, b.Grouping)
		}
		if _, dup := kb.labels[key]; dup {
			return fmt.Errorf("background %s: duplicate label", b.Label)
		}
		kb.labels[key] = b
		for _, a := range b.Aliases {
			kb.aliases[normalize(a)] = b
		}
	}
	return nil
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Grouping returns the grouping with id.
func (kb *KnowledgeBase) Grouping(id string) (*Grouping, bool) {
	g, ok := kb.groupings[id]
	return g, ok
}

type match struct {
	kind       MatchKind
	key        string
	background *Background
	grouping   *Grouping
}

// lookup resolves a label: exact label, alias, grouping by token, grouping
// by language. Groupings are tried in document order.
func (kb *KnowledgeBase) lookup(label string, lang dsm.Language) match {
	key := normalize(label)
	if b, ok := kb.labels[key]; ok {
		return match{kind: MatchExact, key: b.Label, background: b, grouping: kb.groupings[b.Grouping]}
	}
	for i := range kb.Groupings {
		g := &kb.Groupings[i]
		if normalize(g.Name) == key || g.ID == key {
			return match{kind: MatchExact, key: g.Name, grouping: g}
		}
	}
	if b, ok := kb.aliases[key]; ok {
		return match{kind: MatchAlias, key: b.Label, background: b, grouping: kb.groupings[b.Grouping]}
	}
	words := strings.FieldsFunc(key, func(r rune) bool { return r == ' ' || r == '-' || r == '/' || r == ',' })
	for i := range kb.Groupings {
		g := &kb.Groupings[i]
		for _, tok := range g.Tokens {
			if tokenMatches(key, words, normalize(tok)) {
				return match{kind: MatchRegion, key: g.Name, grouping: g}
			}
		}
	}
	for i := range kb.Groupings {
		g := &kb.Groupings[i]
		for _, l := range g.Languages {
			if l == lang {
				return match{kind: MatchLanguage, key: g.Name, grouping: g}
			}
		}
	}
	return match{kind: MatchNone}
}

// tokenMatches matches single-word tokens against whole words and
// multi-word tokens against the full label.
func tokenMatches(label string, words []string, tok string) bool {
	if tok == "" {
		return false
	}
	if strings.Contains(tok, " ") {
		return strings.Contains(" "+label+" ", " "+tok+" ")
	}
	for _, w := range words {
		if w == tok {
			return true
		}
	}
	return false
}
