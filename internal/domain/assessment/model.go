// Package assessment orchestrates the governed clinical assessment of a
// free-text symptom description.
package assessment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/assessment/internal/domain/criteria"
	"github.com/ehr/assessment/internal/domain/cultural"
	"github.com/ehr/assessment/internal/domain/dsm"
	"github.com/ehr/assessment/internal/domain/governance"
	"github.com/ehr/assessment/internal/domain/risk"
	"github.com/ehr/assessment/internal/domain/treatment"
	"github.com/ehr/assessment/internal/domain/urgency"
	"github.com/ehr/assessment/internal/platform/inference"
)

// ModuleID identifies this pipeline to governance scopes and the audit trail.
const ModuleID = "assessment"

// Data classifications accepted on a request.
const (
	ClassificationPHI          = "phi"
	ClassificationDeidentified = "deidentified"
	ClassificationSynthetic    = "synthetic"
)

var ErrAssessmentNotFound = errors.New("assessment not found")

// Request is a symptom description submitted for assessment.
type Request struct {
	SubjectID                    string            `json:"subject_id,omitempty"`
	SymptomText                  string            `json:"symptom_text"`
	Language                     dsm.Language      `json:"language,omitempty"`
	PreferredLanguage            dsm.Language      `json:"preferred_language,omitempty"`
	CulturalBackground           string            `json:"cultural_background,omitempty"`
	Demographics                 *dsm.Demographics `json:"demographics,omitempty"`
	PriorDiagnoses               []string          `json:"prior_diagnoses,omitempty"`
	CurrentMedications           []string          `json:"current_medications,omitempty"`
	DataClassification           string            `json:"data_classification,omitempty"`
	WantExplanation              bool              `json:"want_explanation"`
	WantRiskAssessment           bool              `json:"want_risk_assessment"`
	WantTreatmentRecommendations bool              `json:"want_treatment_recommendations"`
}

// DiagnosisCandidate is a ranked classification hypothesis.
type DiagnosisCandidate = inference.Candidate

// DiagnosisResult is one retained candidate with its criteria evaluation.
type DiagnosisResult struct {
	Diagnosis   DiagnosisCandidate     `json:"diagnosis"`
	Confidence  float64                `json:"confidence"`
	Criteria    criteria.Result        `json:"criteria"`
	Severity    dsm.Severity           `json:"severity"`
	Explanation *inference.Explanation `json:"explanation,omitempty"`
}

// Response is an assembled assessment. It is not modified after Assess
// returns it.
type Response struct {
	ID                      uuid.UUID                  `json:"id"`
	SubjectID               string                     `json:"subject_id,omitempty"`
	Timestamp               time.Time                  `json:"timestamp"`
	Language                dsm.Language               `json:"language"`
	ModelID                 string                     `json:"model_id"`
	Diagnoses               []DiagnosisResult          `json:"diagnoses"`
	Risk                    *risk.Assessment           `json:"risk_assessment,omitempty"`
	Treatment               []treatment.Recommendation `json:"treatment_recommendations,omitempty"`
	Cultural                *cultural.Formulation      `json:"cultural_formulation,omitempty"`
	AggregateConfidence     float64                    `json:"aggregate_confidence"`
	FollowUpRecommended     bool                       `json:"follow_up_recommended"`
	Urgency                 urgency.Level              `json:"urgency"`
	CrisisProtocolActivated bool                       `json:"crisis_protocol_activated"`
	Governance              []governance.Result        `json:"governance_results"`
}

// Provider is the external diagnostic classifier.
type Provider interface {
	ModelID() string
	Classify(ctx context.Context, text string, lang dsm.Language, cc inference.Context) (*inference.Classification, error)
	Explain(ctx context.Context, in inference.ExplainInput) (*inference.Explanation, error)
}

// Repository persists assembled responses.
type Repository interface {
	SaveAssessment(ctx context.Context, resp *Response, actorID string) error
	GetAssessment(ctx context.Context, id uuid.UUID) (*Response, error)
}
