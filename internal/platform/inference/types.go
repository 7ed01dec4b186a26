// Package inference is the client for the external diagnostic classifier. It
// speaks the OpenAI chat-completions protocol in JSON mode, so any compatible
// endpoint can serve it.
package inference

import (
	"errors"

	"github.com/ehr/assessment/internal/domain/dsm"
)

var (
	// ErrMalformedResponse is returned when the model's output is not the
	// expected JSON document.
	ErrMalformedResponse = errors.New("inference: malformed response")
	// ErrEmptyResponse is returned when the completion has no choices.
	ErrEmptyResponse = errors.New("inference: empty response")
)

// Candidate is one diagnosis proposed by the classifier.
type Candidate struct {
	Code       string       `json:"code"`
	Category   dsm.Category `json:"category"`
	Name       string       `json:"name"`
	Criteria   string       `json:"criteria"`
	Severity   dsm.Severity `json:"severity"`
	Confidence float64      `json:"confidence"`
}

// Context is what the classifier may use beyond the symptom text.
type Context struct {
	PriorDiagnoses     []string
	Medications        []string
	CulturalBackground string
	Age                *int
}

// Classification is the classifier output.
type Classification struct {
	ModelID    string
	Candidates []Candidate
}

// ExplainInput asks for the attribution of one diagnosis.
type ExplainInput struct {
	Text      string
	Language  dsm.Language
	Diagnosis Candidate
	// Attributes are subject attributes the model may have relied on, by name.
	Attributes map[string]string
}

// Attribution is one feature's signed contribution to a diagnosis.
type Attribution struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// Explanation is a feature attribution plus a short narrative.
type Explanation struct {
	Method   string        `json:"method"`
	Summary  string        `json:"summary"`
	Features []Attribution `json:"features"`
}
