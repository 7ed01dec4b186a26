package treatment

import "github.com/ehr/assessment/internal/domain/dsm"

// plan is the evidence-based intervention text for a category. An empty
// medication means pharmacotherapy is not a first-line option.
type plan struct {
	psychotherapy string
	medication    string
	psychosocial  string
	education     string
}

var plans = map[dsm.Category]plan{
	dsm.CategoryNeurodevelopmental: {
		psychotherapy: "Behavioral parent training or skills-based behavioral therapy",
		medication:    "Evaluate for stimulant or non-stimulant pharmacotherapy",
		psychosocial:  "School or workplace accommodations",
		education:     "Psychoeducation on neurodevelopmental condition for subject and family",
	},
	dsm.CategoryPsychotic: {
		psychotherapy: "Cognitive behavioral therapy for psychosis",
		medication:    "Initiate or optimize antipsychotic medication",
		psychosocial:  "Coordinated specialty care and supported employment",
		education:     "Family psychoeducation on early warning signs of relapse",
	},
	dsm.CategoryBipolar: {
		psychotherapy: "Interpersonal and social rhythm therapy",
		medication:    "Mood stabilizer evaluation (lithium or anticonvulsant)",
		psychosocial:  "Regular sleep-wake routine and relapse prevention plan",
		education:     "Psychoeducation on mood episode recognition",
	},
	dsm.CategoryDepressive: {
		psychotherapy: "Cognitive behavioral therapy or behavioral activation",
		medication:    "Consider SSRI antidepressant therapy",
		psychosocial:  "Structured activity scheduling and social reconnection",
		education:     "Psychoeducation on depression and self-care",
	},
	dsm.CategoryAnxiety: {
		psychotherapy: "Cognitive behavioral therapy with exposure components",
		medication:    "Consider SSRI or SNRI therapy",
		psychosocial:  "Relaxation training and stress management",
		education:     "Psychoeducation on the anxiety cycle",
	},
	dsm.CategoryObsessiveCompulsive: {
		psychotherapy: "Exposure and response prevention therapy",
		medication:    "Consider high-dose SSRI therapy",
		psychosocial:  "Family guidance on reducing accommodation of rituals",
		education:     "Psychoeducation on obsessions and compulsions",
	},
	dsm.CategoryTraumaStressor: {
		psychotherapy: "Trauma-focused CBT, cognitive processing therapy or EMDR",
		medication:    "Consider SSRI therapy for persistent symptoms",
		psychosocial:  "Safety, stabilization and social support planning",
		education:     "Psychoeducation on trauma responses",
	},
	dsm.CategoryDissociative: {
		psychotherapy: "Phase-oriented trauma-informed psychotherapy",
		psychosocial:  "Grounding skills and stabilization",
		education:     "Psychoeducation on dissociation",
	},
	dsm.CategorySomaticSymptom: {
		psychotherapy: "CBT for somatic symptoms",
		psychosocial:  "Coordinated care with a single primary clinician",
		education:     "Explanation of mind-body symptom links",
	},
	dsm.CategoryFeedingEating: {
		psychotherapy: "Enhanced CBT or family-based treatment for eating disorders",
		psychosocial:  "Nutritional rehabilitation with a dietitian",
		education:     "Psychoeducation on eating disorder health risks",
	},
	dsm.CategoryElimination: {
		psychotherapy: "Behavioral intervention for elimination",
		psychosocial:  "Caregiver support and routine planning",
		education:     "Psychoeducation for subject and caregivers",
	},
	dsm.CategorySleepWake: {
		psychotherapy: "Cognitive behavioral therapy for insomnia",
		medication:    "Short-term hypnotic only if CBT-I is insufficient",
		psychosocial:  "Sleep hygiene and consistent schedule",
		education:     "Psychoeducation on sleep regulation",
	},
	dsm.CategorySexualDysfunction: {
		psychotherapy: "Sex therapy or couples therapy",
		medication:    "Medical evaluation for pharmacological options",
		psychosocial:  "Partner communication support",
		education:     "Psychoeducation on sexual response",
	},
	dsm.CategoryGenderDysphoria: {
		psychotherapy: "Affirming supportive psychotherapy",
		psychosocial:  "Connection with affirming peer and community support",
		education:     "Information on gender-affirming care pathways",
	},
	dsm.CategoryDisruptiveImpulse: {
		psychotherapy: "Parent management training or anger management CBT",
		psychosocial:  "School and family behavioral support",
		education:     "Psychoeducation on behavior regulation",
	},
	dsm.CategorySubstanceRelated: {
		psychotherapy: "Motivational interviewing and CBT for substance use",
		medication:    "Evaluate for medication-assisted treatment",
		psychosocial:  "Mutual-help group participation and recovery support",
		education:     "Psychoeducation on substance use risks and harm reduction",
	},
	dsm.CategoryNeurocognitive: {
		psychotherapy: "Cognitive stimulation therapy",
		medication:    "Evaluate for cognitive-enhancing medication",
		psychosocial:  "Caregiver support and home safety planning",
		education:     "Psychoeducation on neurocognitive decline for caregivers",
	},
	dsm.CategoryPersonality: {
		psychotherapy: "Dialectical behavior therapy or mentalization-based therapy",
		psychosocial:  "Structured daily routine and crisis plan",
		education:     "Psychoeducation on emotion regulation",
	},
	dsm.CategoryParaphilic: {
		psychotherapy: "Specialist CBT-based psychotherapy",
		psychosocial:  "Relapse prevention planning",
		education:     "Psychoeducation on risk management",
	},
	dsm.CategoryOther: {
		psychotherapy: "Supportive psychotherapy",
		psychosocial:  "Psychosocial needs assessment",
		education:     "General mental health psychoeducation",
	},
}

func planFor(c dsm.Category) plan {
	if p, ok := plans[c]; ok {
		return p
	}
	return plans[dsm.CategoryOther]
}
