// Package lexicon finds clinical phrases in free-text symptom descriptions.
//
// Matching is case-insensitive and anchored at the start of a word, so the
// phrase "hopeless" also matches "hopelessness". A phrase preceded by a
// negation in the same clause ("denies suicidal thoughts", "hakuna",
// "pas de") is not reported. A negator reaches back no further than the
// nearest comma or coordinating conjunction, so in "no energy, want to die"
// the second phrase stands.
package lexicon

import (
	"strings"
	"unicode"

	"github.com/ehr/assessment/internal/domain/dsm"
)

// Terms holds phrases per language.
type Terms map[dsm.Language][]string

// For returns the phrases for lang followed by the English phrases, since
// symptom text frequently mixes languages.
func (t Terms) For(lang dsm.Language) []string {
	out := append([]string(nil), t[lang]...)
	if lang != dsm.LanguageEnglish {
		out = append(out, t[dsm.LanguageEnglish]...)
	}
	return out
}

var negators = map[dsm.Language][]string{
	dsm.LanguageEnglish: {"no", "not", "never", "denies", "denied", "without", "none", "don't", "doesn't", "didn't"},
	dsm.LanguageSwahili: {"hakuna", "hana", "sina", "si", "bila", "hajawahi", "sijawahi"},
	dsm.LanguageFrench:  {"pas", "jamais", "sans", "aucun", "aucune", "nie", "ni"},
}

// negationWindow is how many words before a phrase are checked for a negator.
const negationWindow = 3

// coordinators end the scope of a preceding negator.
var coordinators = map[dsm.Language][]string{
	dsm.LanguageEnglish: {"and", "or", "then"},
	dsm.LanguageSwahili: {"na", "au", "kisha"},
	dsm.LanguageFrench:  {"et", "ou", "puis"},
}

// Normalize lowercases text and collapses runs of whitespace.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Clauses splits normalized text on sentence punctuation and contrastive
// conjunctions. Negation never crosses a clause boundary.
func Clauses(text string) []string {
	text = Normalize(text)
	for _, sep := range []string{" but ", " mais ", " lakini "} {
		text = strings.ReplaceAll(text, sep, ". ")
	}
	parts := strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case '.', ';', '!', '?', '\n':
			return true
		}
		return false
	})
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Find returns the phrases from terms that occur un-negated in text, in the
// order they are listed. Each phrase is reported at most once.
func Find(text string, lang dsm.Language, terms []string) []string {
	clauses := Clauses(text)
	var found []string
	seen := make(map[string]bool, len(terms))
	for _, term := range terms {
		term = Normalize(term)
		if term == "" || seen[term] {
			continue
		}
		for _, cl := range clauses {
			if containsAffirmed(cl, term, lang) {
				found = append(found, term)
				seen[term] = true
				break
			}
		}
	}
	return found
}

// FindNear is Find restricted to clauses that also contain one of anchors
// un-negated.
func FindNear(text string, lang dsm.Language, terms, anchors []string) []string {
	var near []string
	for _, cl := range Clauses(text) {
		for _, a := range anchors {
			if a = Normalize(a); a != "" && containsAffirmed(cl, a, lang) {
				near = append(near, cl)
				break
			}
		}
	}
	if len(near) == 0 {
		return nil
	}
	return Find(strings.Join(near, ". "), lang, terms)
}

// Contains reports whether any phrase occurs un-negated in text.
func Contains(text string, lang dsm.Language, terms []string) bool {
	return len(Find(text, lang, terms)) > 0
}

func containsAffirmed(clause, term string, lang dsm.Language) bool {
	from := 0
	for {
		i := strings.Index(clause[from:], term)
		if i < 0 {
			return false
		}
		i += from
		if atWordStart(clause, i) && !negated(clause[:i], lang) {
			return true
		}
		from = i + len(term)
	}
}

func atWordStart(s string, i int) bool {
	if i == 0 {
		return true
	}
	r := []rune(s[:i])
	prev := r[len(r)-1]
	return !unicode.IsLetter(prev) && !unicode.IsDigit(prev)
}

func negated(before string, lang dsm.Language) bool {
	if i := strings.LastIndexAny(before, ",:"); i >= 0 {
		before = before[i+1:]
	}
	words := strings.FieldsFunc(before, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	stops := withEnglish(coordinators, lang)
	for i := len(words) - 1; i >= 0; i-- {
		if inList(words[i], stops) {
			words = words[i+1:]
			break
		}
	}
	if len(words) > negationWindow {
		words = words[len(words)-negationWindow:]
	}
	check := withEnglish(negators, lang)
	for _, w := range words {
		if inList(w, check) {
			return true
		}
	}
	return false
}

func withEnglish(m map[dsm.Language][]string, lang dsm.Language) []string {
	if lang == dsm.LanguageEnglish {
		return m[lang]
	}
	return append(append([]string(nil), m[lang]...), m[dsm.LanguageEnglish]...)
}

func inList(w string, list []string) bool {
	for _, v := range list {
		if w == v {
			return true
		}
	}
	return false
}
