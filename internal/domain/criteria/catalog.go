package criteria

import (
	"regexp"
	"sort"
	"strings"

	"github.com/ehr/assessment/internal/domain/dsm"
	"github.com/ehr/assessment/internal/domain/lexicon"
)

const (
	en = dsm.LanguageEnglish
	sw = dsm.LanguageSwahili
	fr = dsm.LanguageFrench
)

// Catalog indexes criteria sets by diagnosis code.
type Catalog struct {
	sets map[string]*Set
}

// NewCatalog builds a catalog from sets. A later set replaces an earlier one
// with the same code.
func NewCatalog(sets ...*Set) *Catalog {
	c := &Catalog{sets: make(map[string]*Set, len(sets))}
	for _, s := range sets {
		c.sets[normalizeCode(s.Code)] = s
	}
	return c
}

// DefaultCatalog returns the built-in criteria sets.
func DefaultCatalog() *Catalog {
	return NewCatalog(builtinSets()...)
}

// Lookup finds the set for code. Subcodes fall back to their parent, so
// "F32.1" resolves to "F32" when no more specific set is registered.
func (c *Catalog) Lookup(code string) (*Set, bool) {
	key := normalizeCode(code)
	for len(key) >= 3 {
		if s, ok := c.sets[key]; ok {
			return s, true
		}
		key = strings.TrimSuffix(key[:len(key)-1], ".")
	}
	return nil, false
}

// Criteria returns the criteria for code, or nil for an unknown code.
func (c *Catalog) Criteria(code string) []Criterion {
	if s, ok := c.Lookup(code); ok {
		return s.Criteria
	}
	return nil
}

// Codes returns the registered codes in sorted order.
func (c *Catalog) Codes() []string {
	codes := make([]string, 0, len(c.sets))
	for k := range c.sets {
		codes = append(codes, k)
	}
	sort.Strings(codes)
	return codes
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

var (
	durationTwoWeeks = regexp.MustCompile(`\b(?:[2-9]|[1-9][0-9]+|two|three|four|five|six|several|many|few)\s+weeks?\b` +
		`|\b(?:[0-9]+|a|one|two|three|several|many|few)\s+(?:months?|years?)\b` +
		`|\b(?:[2-9]|[1-9][0-9]+|deux|trois|quatre|plusieurs)\s+semaines\b` +
		`|\b(?:[0-9]+|un|deux|trois|plusieurs)\s+(?:mois|ans)\b` +
		`|\bwiki\s+(?:[2-9]|mbili|tatu|nne|kadhaa)\b|\b(?:miezi|mwaka|miaka)\b`)

	durationOneMonth = regexp.MustCompile(`\b(?:[0-9]+|a|one|two|three|several|many|few)\s+(?:months?|years?)\b` +
		`|\b(?:[0-9]+|un|deux|trois|plusieurs)\s+(?:mois|ans)\b` +
		`|\b(?:miezi|mwaka|miaka)\b`)

	durationSixMonths = regexp.MustCompile(`\b(?:[6-9]|[1-9][0-9]+|six|seven|eight|nine|ten|eleven|twelve|several|many)\s+months?\b` +
		`|\b(?:[0-9]+|a|one|two|three|several|many)\s+years?\b` +
		`|\b(?:[6-9]|[1-9][0-9]+|six|plusieurs)\s+mois\b|\b(?:[0-9]+|un|deux|trois|plusieurs)\s+ans\b` +
		`|\bmiezi\s+(?:[6-9]|sita|saba|nane|tisa|kumi)\b|\b(?:mwaka|miaka)\b`)
)

var (
	sleepTerms = lexicon.Terms{
		en: {"insomnia", "can't sleep", "cannot sleep", "trouble sleeping", "poor sleep", "waking early", "sleeping too much", "oversleep"},
		sw: {"kukosa usingizi", "sipati usingizi", "silali"},
		fr: {"insomnie", "dors mal", "troubles du sommeil", "réveil précoce"},
	}
	fatigueTerms = lexicon.Terms{
		en: {"fatigue", "tired", "exhausted", "no energy", "low energy", "drained"},
		sw: {"uchovu", "nimechoka", "sina nguvu"},
		fr: {"fatigue", "épuisé", "sans énergie"},
	}
	concentrationTerms = lexicon.Terms{
		en: {"concentrat", "can't focus", "trouble focusing", "indecisive", "can't think"},
		sw: {"kuzingatia", "siwezi kufikiri"},
		fr: {"concentr", "indécis"},
	}
)

func builtinSets() []*Set {
	depression := []Criterion{
		{ID: "depressed_mood", Description: "Depressed mood most of the day", Required: true, Terms: lexicon.Terms{
			en: {"low mood", "depressed", "sad", "feeling down", "empty", "tearful", "crying"},
			sw: {"huzuni", "sina furaha", "moyo mzito", "nimeshuka moyo"},
			fr: {"triste", "tristesse", "déprimé", "humeur basse", "cafard", "moral bas"},
		}},
		{ID: "anhedonia", Description: "Markedly diminished interest or pleasure", Required: true, Terms: lexicon.Terms{
			en: {"loss of interest", "lost interest", "no interest", "no longer enjoy", "anhedonia", "nothing is fun"},
			sw: {"kupoteza hamu", "sina hamu", "sipendi tena"},
			fr: {"perte d'intérêt", "plus envie", "plus de plaisir", "anhédonie"},
		}},
		{ID: "duration_two_weeks", Description: "Symptoms present for at least two weeks", Required: true, Pattern: durationTwoWeeks, Terms: lexicon.Terms{
			en: {"for weeks", "for months", "weeks now"},
			sw: {"kwa wiki", "kwa miezi"},
			fr: {"depuis des semaines", "depuis des mois"},
		}},
		{ID: "fatigue", Description: "Fatigue or loss of energy", Terms: fatigueTerms},
		{ID: "sleep_disturbance", Description: "Insomnia or hypersomnia", Terms: sleepTerms},
		{ID: "appetite_change", Description: "Significant weight or appetite change", Terms: lexicon.Terms{
			en: {"appetite", "weight loss", "weight gain", "not eating", "eating more"},
			sw: {"hamu ya kula", "kupungua uzito"},
			fr: {"appétit", "perte de poids", "prise de poids"},
		}},
		{ID: "worthlessness", Description: "Feelings of worthlessness or excessive guilt", Terms: lexicon.Terms{
			en: {"worthless", "guilt", "guilty", "useless", "a failure"},
			sw: {"sina thamani", "hatia"},
			fr: {"inutile", "culpabilité", "sans valeur"},
		}},
		{ID: "concentration", Description: "Diminished ability to think or concentrate", Terms: concentrationTerms},
		{ID: "psychomotor", Description: "Psychomotor agitation or retardation", Terms: lexicon.Terms{
			en: {"slowed down", "restless", "agitated", "sluggish"},
			sw: {"kutotulia"},
			fr: {"ralenti", "agité"},
		}},
		{ID: "thoughts_of_death", Description: "Recurrent thoughts of death or suicidal ideation", Terms: lexicon.Terms{
			en: {"suicid", "want to die", "better off dead", "thoughts of death"},
			sw: {"kujiua", "nataka kufa"},
			fr: {"suicid", "envie de mourir", "penser à la mort"},
		}},
	}
	return []*Set{
		{Code: "F32", Name: "Major depressive disorder, single episode", Category: dsm.CategoryDepressive, Criteria: depression},
		{Code: "F33", Name: "Major depressive disorder, recurrent", Category: dsm.CategoryDepressive, Criteria: depression},
		{
			Code: "F41.1", Name: "Generalized anxiety disorder", Category: dsm.CategoryAnxiety,
			Criteria: []Criterion{
				{ID: "excessive_worry", Description: "Excessive anxiety and worry", Required: true, Terms: lexicon.Terms{
					en: {"worry", "worried", "anxious", "anxiety", "nervous", "on edge"},
					sw: {"wasiwasi", "hofu"},
					fr: {"inquiet", "inquiétude", "anxi", "nerveux"},
				}},
				{ID: "duration_six_months", Description: "Present more days than not for at least six months", Required: true, Pattern: durationSixMonths, Terms: lexicon.Terms{
					en: {"for a long time", "as long as i can remember"},
					sw: {"kwa muda mrefu"},
					fr: {"depuis longtemps"},
				}},
				{ID: "difficulty_controlling", Description: "Difficulty controlling the worry", Terms: lexicon.Terms{
					en: {"can't stop worrying", "can't control", "uncontrollable"},
					sw: {"siwezi kuacha"},
					fr: {"incontrôlable", "impossible d'arrêter"},
				}},
				{ID: "restlessness", Description: "Restlessness or feeling keyed up", Terms: lexicon.Terms{
					en: {"restless", "keyed up", "can't sit still"},
					sw: {"kutotulia"},
					fr: {"agité", "tendu"},
				}},
				{ID: "fatigue", Description: "Being easily fatigued", Terms: fatigueTerms},
				{ID: "concentration", Description: "Difficulty concentrating", Terms: concentrationTerms},
				{ID: "irritability", Description: "Irritability", Terms: lexicon.Terms{
					en: {"irritable", "short-tempered", "snapping"},
					sw: {"hasira"},
					fr: {"irritable", "irritabilité"},
				}},
				{ID: "muscle_tension", Description: "Muscle tension", Terms: lexicon.Terms{
					en: {"muscle tension", "tense", "tight shoulders"},
					sw: {"misuli"},
					fr: {"tension musculaire", "crispé"},
				}},
				{ID: "sleep_disturbance", Description: "Sleep disturbance", Terms: sleepTerms},
			},
		},
		{
			Code: "F43.1", Name: "Posttraumatic stress disorder", Category: dsm.CategoryTraumaStressor,
			Criteria: []Criterion{
				{ID: "trauma_exposure", Description: "Exposure to actual or threatened death, injury or violence", Required: true, Terms: lexicon.Terms{
					en: {"trauma", "assault", "attacked", "accident", "war", "abuse", "violence", "raped"},
					sw: {"kiwewe", "shambulio", "vita", "ajali", "unyanyasaji"},
					fr: {"traumatisme", "agression", "accident", "guerre", "violence"},
				}},
				{ID: "intrusion", Description: "Intrusive memories, nightmares or flashbacks", Required: true, Terms: lexicon.Terms{
					en: {"flashback", "nightmare", "intrusive memor", "reliving"},
					sw: {"ndoto mbaya", "kumbukumbu"},
					fr: {"cauchemar", "flashback", "souvenirs"},
				}},
				{ID: "avoidance", Description: "Avoidance of trauma reminders", Required: true, Terms: lexicon.Terms{
					en: {"avoid", "stay away from"},
					sw: {"kuepuka"},
					fr: {"évite", "éviter"},
				}},
				{ID: "negative_cognition", Description: "Negative alterations in cognition and mood", Terms: lexicon.Terms{
					en: {"numb", "detached", "shame", "guilt"},
					sw: {"aibu"},
					fr: {"honte", "détaché"},
				}},
				{ID: "arousal", Description: "Marked alterations in arousal and reactivity", Terms: lexicon.Terms{
					en: {"startle", "hypervigilan", "jumpy", "on edge"},
					sw: {"kushtuka"},
					fr: {"sursaut", "hypervigilan"},
				}},
				{ID: "duration_one_month", Description: "Duration more than one month", Required: true, Pattern: durationOneMonth},
			},
		},
		{
			Code: "F31", Name: "Bipolar disorder", Category: dsm.CategoryBipolar,
			Criteria: []Criterion{
				{ID: "elevated_mood", Description: "Abnormally elevated, expansive or irritable mood", Required: true, Terms: lexicon.Terms{
					en: {"euphori", "elevated mood", "manic", "mania", "on top of the world", "grandios"},
					sw: {"furaha kupita kiasi"},
					fr: {"euphori", "maniaque", "exalt"},
				}},
				{ID: "decreased_sleep", Description: "Decreased need for sleep", Terms: lexicon.Terms{
					en: {"don't need sleep", "little sleep", "up all night"},
					sw: {"bila kulala"},
					fr: {"pas besoin de dormir"},
				}},
				{ID: "racing_thoughts", Description: "Flight of ideas or racing thoughts", Terms: lexicon.Terms{
					en: {"racing thoughts", "thoughts racing", "talking fast", "pressured speech"},
					sw: {"mawazo mengi"},
					fr: {"pensées qui défilent", "parle vite"},
				}},
				{ID: "risky_behavior", Description: "Excessive involvement in risky activities", Terms: lexicon.Terms{
					en: {"spending spree", "reckless", "impulsive"},
					sw: {"matumizi makubwa"},
					fr: {"dépenses", "imprudent"},
				}},
			},
		},
		{
			Code: "F20", Name: "Schizophrenia", Category: dsm.CategoryPsychotic,
			Criteria: []Criterion{
				{ID: "psychotic_symptom", Description: "Delusions or hallucinations", Required: true, Terms: lexicon.Terms{
					en: {"hearing voices", "hear voices", "seeing things", "hallucinat", "paranoi", "being watched", "delusion"},
					sw: {"kusikia sauti", "kuona vitu", "kufuatiliwa"},
					fr: {"entend des voix", "hallucinat", "paranoï", "surveillé", "délire"},
				}},
				{ID: "disorganization", Description: "Disorganized speech or behavior", Terms: lexicon.Terms{
					en: {"disorganized", "incoherent", "confused speech"},
					sw: {"kuchanganyikiwa"},
					fr: {"désorganisé", "incohérent"},
				}},
				{ID: "negative_symptoms", Description: "Diminished emotional expression or avolition", Terms: lexicon.Terms{
					en: {"withdrawn", "flat affect", "no motivation", "isolat"},
					sw: {"kujitenga"},
					fr: {"retrait", "apathie"},
				}},
				{ID: "duration_six_months", Description: "Continuous signs for at least six months", Pattern: durationSixMonths},
			},
		},
		{
			Code: "F10", Name: "Alcohol use disorder", Category: dsm.CategorySubstanceRelated,
			Criteria: []Criterion{
				{ID: "alcohol_use", Description: "Problematic pattern of alcohol use", Required: true, Terms: lexicon.Terms{
					en: {"drinking", "alcohol", "beer", "wine", "drunk"},
					sw: {"pombe", "kunywa", "mlevi"},
					fr: {"alcool", "boire", "bois", "ivre"},
				}},
				{ID: "loss_of_control", Description: "Larger amounts or longer than intended", Terms: lexicon.Terms{
					en: {"can't stop", "more than intended", "binge"},
					sw: {"siwezi kuacha"},
					fr: {"perte de contrôle", "impossible d'arrêter"},
				}},
				{ID: "craving", Description: "Craving or strong urge to use", Terms: lexicon.Terms{
					en: {"craving", "urge to drink"},
					sw: {"hamu ya pombe"},
					fr: {"envie de boire"},
				}},
				{ID: "withdrawal", Description: "Withdrawal symptoms", Terms: lexicon.Terms{
					en: {"shakes", "tremor", "withdrawal", "sweats"},
					sw: {"kutetemeka"},
					fr: {"sevrage", "tremblement"},
				}},
				{ID: "consequences", Description: "Continued use despite social or occupational problems", Terms: lexicon.Terms{
					en: {"lost my job", "missed work", "fights", "arrested"},
					sw: {"nimepoteza kazi"},
					fr: {"perdu mon travail", "disputes"},
				}},
			},
		},
		{
			Code: "F51.0", Name: "Insomnia disorder", Category: dsm.CategorySleepWake,
			Criteria: []Criterion{
				{ID: "sleep_difficulty", Description: "Difficulty initiating or maintaining sleep", Required: true, Terms: sleepTerms},
				{ID: "frequency", Description: "At least three nights per week", Terms: lexicon.Terms{
					en: {"every night", "most nights", "nights a week"},
					sw: {"kila usiku"},
					fr: {"chaque nuit", "toutes les nuits"},
				}},
				{ID: "daytime_impairment", Description: "Daytime distress or impairment", Terms: fatigueTerms},
				{ID: "duration_three_months", Description: "Present for at least three months", Pattern: durationOneMonth},
			},
		},
		{
			Code: "F42", Name: "Obsessive-compulsive disorder", Category: dsm.CategoryObsessiveCompulsive,
			Criteria: []Criterion{
				{ID: "obsessions", Description: "Recurrent intrusive thoughts, urges or images", Required: true, Terms: lexicon.Terms{
					en: {"obsess", "intrusive thoughts", "contamination", "germs", "unwanted thoughts"},
					sw: {"mawazo yasiyotakiwa", "vijidudu"},
					fr: {"obsession", "pensées intrusives", "microbes"},
				}},
				{ID: "compulsions", Description: "Repetitive behaviors or mental acts", Required: true, Terms: lexicon.Terms{
					en: {"checking", "washing", "counting", "ritual", "repeat"},
					sw: {"kuosha", "kuhesabu", "kuangalia"},
					fr: {"vérifie", "lave", "rituel", "compter"},
				}},
				{ID: "time_consuming", Description: "Time-consuming or clinically distressing", Terms: lexicon.Terms{
					en: {"hours a day", "hour a day", "all day"},
					sw: {"masaa"},
					fr: {"des heures"},
				}},
			},
		},
	}
}
