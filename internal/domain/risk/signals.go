package risk

import (
	"github.com/ehr/assessment/internal/domain/dsm"
	"github.com/ehr/assessment/internal/domain/lexicon"
)

const (
	en = dsm.LanguageEnglish
	sw = dsm.LanguageSwahili
	fr = dsm.LanguageFrench
)

// signal is one weighted evidence pattern for a dimension.
type signal struct {
	dimension Dimension
	factor    string
	weight    int
	// plan marks a concrete plan; the dimension never drops below high.
	plan bool
	// contextual signals count only when a primary signal for the same
	// dimension was found, so "plan to travel" alone raises nothing.
	contextual bool
	// sameClause contextual signals must share a sentence with the primary
	// evidence.
	sameClause bool
	terms      lexicon.Terms
}

// Score thresholds: 0 low, 1-2 moderate, 3-4 high, 5+ imminent.
func levelForScore(score int) Level {
	switch {
	case score >= 5:
		return LevelImminent
	case score >= 3:
		return LevelHigh
	case score >= 1:
		return LevelModerate
	default:
		return LevelLow
	}
}

var defaultSignals = []signal{
	{dimension: DimensionSuicide, factor: "suicidal ideation", weight: 2, terms: lexicon.Terms{
		en: {"suicid", "kill myself", "end my life", "want to die", "better off dead", "take my own life", "no reason to live"},
		sw: {"kujiua", "nataka kufa", "kujitoa uhai"},
		fr: {"suicid", "me tuer", "mettre fin à mes jours", "envie de mourir"},
	}},
	{dimension: DimensionSuicide, factor: "prior suicide attempt", weight: 2, terms: lexicon.Terms{
		en: {"tried to kill myself", "previous attempt", "attempted suicide", "suicide attempt"},
		sw: {"nilijaribu kujiua"},
		fr: {"tentative de suicide", "tenté de me suicider"},
	}},
	{dimension: DimensionSuicide, factor: "hopelessness", weight: 1, contextual: true, terms: lexicon.Terms{
		en: {"hopeless", "no future", "no way out", "pointless"},
		sw: {"kukata tamaa", "sina matumaini"},
		fr: {"désespoir", "désespéré", "sans espoir"},
	}},
	{dimension: DimensionSuicide, factor: "access to lethal means", weight: 2, contextual: true, terms: lexicon.Terms{
		en: {"gun", "firearm", "rope", "stockpil", "saved up pills", "bought pills"},
		sw: {"bunduki", "kamba", "vidonge"},
		fr: {"arme", "corde", "médicaments de côté"},
	}},
	{dimension: DimensionSuicide, factor: "specific suicide plan", weight: 4, plan: true, contextual: true, sameClause: true, terms: lexicon.Terms{
		en: {"a plan", "specific plan", "plan to kill", "plan to end", "planned how", "decided how", "wrote a note", "suicide note", "set a date", "going to jump", "going to hang", "going to overdose"},
		sw: {"mpango", "nimepanga"},
		fr: {"un plan", "prévu de", "lettre d'adieu"},
	}},
	{dimension: DimensionSuicide, factor: "stated intent to act", weight: 3, contextual: true, sameClause: true, terms: lexicon.Terms{
		en: {"going to kill myself", "will kill myself", "intend to kill", "intend to end", "tonight", "ready to die"},
		sw: {"nitajiua", "leo usiku"},
		fr: {"vais me tuer", "ce soir"},
	}},
	{dimension: DimensionSelfHarm, factor: "self-harm behavior", weight: 3, terms: lexicon.Terms{
		en: {"cut myself", "cutting myself", "burn myself", "self-harm", "self harm", "hurt myself"},
		sw: {"kujikata", "kujiumiza"},
		fr: {"me couper", "automutilation", "me faire du mal"},
	}},
	{dimension: DimensionSelfHarm, factor: "urge to self-harm", weight: 2, terms: lexicon.Terms{
		en: {"urge to cut", "urge to hurt myself", "want to hurt myself"},
		sw: {"hamu ya kujiumiza"},
		fr: {"envie de me couper", "envie de me faire du mal"},
	}},
	{dimension: DimensionViolence, factor: "thoughts of harming others", weight: 3, terms: lexicon.Terms{
		en: {"homicidal", "hurt someone", "harm others", "kill him", "kill her", "kill them"},
		sw: {"kumuua", "kuwadhuru wengine"},
		fr: {"homicid", "faire du mal aux autres", "le tuer", "la tuer"},
	}},
	{dimension: DimensionViolence, factor: "aggression or rage", weight: 1, terms: lexicon.Terms{
		en: {"violent", "rage", "lash out", "fights"},
		sw: {"hasira kali", "ugomvi"},
		fr: {"violent", "rage", "bagarre"},
	}},
	{dimension: DimensionViolence, factor: "plan to harm others", weight: 4, plan: true, contextual: true, sameClause: true, terms: lexicon.Terms{
		en: {"a plan", "plan to hurt", "plan to kill", "weapon", "going to hurt"},
		sw: {"mpango", "silaha"},
		fr: {"un plan", "arme"},
	}},
	{dimension: DimensionSubstanceUse, factor: "substance use", weight: 1, terms: lexicon.Terms{
		en: {"drinking", "alcohol", "drunk", "cocaine", "heroin", "opioid", "meth", "cannabis", "weed"},
		sw: {"pombe", "bangi", "dawa za kulevya", "mlevi"},
		fr: {"alcool", "ivre", "cocaïne", "héroïne", "cannabis", "drogue"},
	}},
	{dimension: DimensionSubstanceUse, factor: "daily or escalating use", weight: 2, contextual: true, terms: lexicon.Terms{
		en: {"every day", "daily", "more and more", "can't stop"},
		sw: {"kila siku", "siwezi kuacha"},
		fr: {"tous les jours", "chaque jour", "de plus en plus"},
	}},
	{dimension: DimensionSubstanceUse, factor: "withdrawal or overdose history", weight: 2, terms: lexicon.Terms{
		en: {"overdose", "withdrawal", "blackout"},
		sw: {"kuzidisha dozi"},
		fr: {"overdose", "sevrage"},
	}},
}

type protectiveSignal struct {
	factor string
	terms  lexicon.Terms
}

var defaultProtective = []protectiveSignal{
	{factor: "social support", terms: lexicon.Terms{
		en: {"supportive family", "family support", "my family", "my partner", "my friends", "close friend"},
		sw: {"familia yangu", "marafiki zangu", "mke wangu", "mume wangu"},
		fr: {"ma famille", "mes amis", "mon conjoint", "soutien familial"},
	}},
	{factor: "religious or community affiliation", terms: lexicon.Terms{
		en: {"church", "mosque", "temple", "my faith", "pray", "community group"},
		sw: {"kanisa", "msikiti", "imani yangu", "nasali", "jamii"},
		fr: {"église", "mosquée", "ma foi", "prier", "communauté"},
	}},
	{factor: "engagement with treatment", terms: lexicon.Terms{
		en: {"my therapist", "counsel", "seeing a doctor", "in treatment", "medication helps"},
		sw: {"daktari wangu", "ushauri", "matibabu"},
		fr: {"mon thérapeute", "mon médecin", "en traitement", "suivi"},
	}},
	{factor: "responsibility to children", terms: lexicon.Terms{
		en: {"my children", "my kids", "my son", "my daughter"},
		sw: {"watoto wangu", "mwanangu"},
		fr: {"mes enfants", "mon fils", "ma fille"},
	}},
}

// misuseMedications are drug names whose presence in the medication list
// raises substance-use risk.
var misuseMedications = []string{
	"alprazolam", "clonazepam", "diazepam", "lorazepam", "benzodiazepine",
	"oxycodone", "hydrocodone", "morphine", "fentanyl", "tramadol", "codeine", "methadone",
	"zolpidem",
}
