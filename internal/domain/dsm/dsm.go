// Package dsm holds the closed clinical vocabularies shared across the
// assessment pipeline: diagnostic categories, severities and supported
// request languages.
package dsm

import (
	"strconv"
	"strings"
)

// Category is one of the closed set of DSM-5-TR diagnostic chapters.
type Category string

const (
	CategoryNeurodevelopmental  Category = "neurodevelopmental"
	CategoryPsychotic           Category = "schizophrenia_spectrum"
	CategoryBipolar             Category = "bipolar"
	CategoryDepressive          Category = "depressive"
	CategoryAnxiety             Category = "anxiety"
	CategoryObsessiveCompulsive Category = "obsessive_compulsive"
	CategoryTraumaStressor      Category = "trauma_stressor"
	CategoryDissociative        Category = "dissociative"
	CategorySomaticSymptom      Category = "somatic_symptom"
	CategoryFeedingEating       Category = "feeding_eating"
	CategoryElimination         Category = "elimination"
	CategorySleepWake           Category = "sleep_wake"
	CategorySexualDysfunction   Category = "sexual_dysfunction"
	CategoryGenderDysphoria     Category = "gender_dysphoria"
	CategoryDisruptiveImpulse   Category = "disruptive_impulse_conduct"
	CategorySubstanceRelated    Category = "substance_related"
	CategoryNeurocognitive      Category = "neurocognitive"
	CategoryPersonality         Category = "personality"
	CategoryParaphilic          Category = "paraphilic"
	CategoryOther               Category = "other"
)

var categories = []Category{
	CategoryNeurodevelopmental, CategoryPsychotic, CategoryBipolar, CategoryDepressive,
	CategoryAnxiety, CategoryObsessiveCompulsive, CategoryTraumaStressor, CategoryDissociative,
	CategorySomaticSymptom, CategoryFeedingEating, CategoryElimination, CategorySleepWake,
	CategorySexualDysfunction, CategoryGenderDysphoria, CategoryDisruptiveImpulse,
	CategorySubstanceRelated, CategoryNeurocognitive, CategoryPersonality, CategoryParaphilic,
	CategoryOther,
}

// Categories returns the closed category set in chapter order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// ValidCategory reports whether c belongs to the closed set.
func ValidCategory(c Category) bool {
	for _, k := range categories {
		if k == c {
			return true
		}
	}
	return false
}

// Severity of a diagnosis candidate.
type Severity string

const (
	SeverityMild        Severity = "mild"
	SeverityModerate    Severity = "moderate"
	SeveritySevere      Severity = "severe"
	SeverityUnspecified Severity = "unspecified"
)

// ParseSeverity normalises s; anything unrecognised is unspecified.
func ParseSeverity(s string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityMild:
		return SeverityMild
	case SeverityModerate:
		return SeverityModerate
	case SeveritySevere:
		return SeveritySevere
	default:
		return SeverityUnspecified
	}
}

// Language is a supported request language.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageSwahili Language = "sw"
	LanguageFrench  Language = "fr"

	DefaultLanguage = LanguageEnglish
)

var languages = []Language{LanguageEnglish, LanguageSwahili, LanguageFrench}

// SupportedLanguages returns the fixed language set, default first.
func SupportedLanguages() []Language {
	out := make([]Language, len(languages))
	copy(out, languages)
	return out
}

// IsSupported reports whether l is in the supported set. No normalisation is
// applied: "EN" and "en-US" are not supported values.
func IsSupported(l Language) bool {
	for _, k := range languages {
		if k == l {
			return true
		}
	}
	return false
}

// Demographics are optional subject attributes. Age is nil when not supplied.
type Demographics struct {
	Age             *int   `json:"age,omitempty"`
	Gender          string `json:"gender,omitempty"`
	Ethnicity       string `json:"ethnicity,omitempty"`
	Religion        string `json:"religion,omitempty"`
	Region          string `json:"region,omitempty"`
	LivingSituation string `json:"living_situation,omitempty"`
}

// Attribute returns the named demographic attribute as a string, and whether
// it was supplied.
func (d *Demographics) Attribute(name string) (string, bool) {
	if d == nil {
		return "", false
	}
	var v string
	switch strings.ToLower(name) {
	case "age":
		if d.Age == nil {
			return "", false
		}
		return strconv.Itoa(*d.Age), true
	case "gender":
		v = d.Gender
	case "ethnicity":
		v = d.Ethnicity
	case "religion":
		v = d.Religion
	case "region":
		v = d.Region
	case "living_situation":
		v = d.LivingSituation
	}
	return v, v != ""
}
