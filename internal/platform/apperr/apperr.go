// Package apperr defines the error taxonomy shared by the assessment pipeline.
// Every user-visible failure carries a stable machine code and a human-readable
// message; the HTTP layer maps the Kind to a status code.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindServiceUnavailable  Kind = "service_unavailable"
	KindBiasViolation       Kind = "governance_bias_violation"
	KindComplianceViolation Kind = "governance_compliance_violation"
	KindExplanationRequired Kind = "governance_explanation_required"
	KindNotFound            Kind = "not_found"
	KindInternal            Kind = "internal"
)

// Stable error codes.
const (
	CodeEmptySymptomText     = "empty_symptom_text"
	CodeUnsupportedLanguage  = "unsupported_language"
	CodeNegativeAge          = "negative_age"
	CodeInvalidField         = "invalid_field"
	CodeInferenceUnavailable = "inference_unavailable"
	CodeInferenceTimeout     = "inference_timeout"
	CodeInferenceMalformed   = "inference_malformed_response"
	CodeBiasThreshold        = "bias_threshold_not_met"
	CodeComplianceDenied     = "compliance_denied"
	CodeExplanationRequired  = "explanation_required"
	CodeNotFound             = "not_found"
	CodeAuditUnavailable     = "audit_unavailable"
	CodeInternal             = "internal_error"
)

// Error is the pipeline's typed error.
type Error struct {
	Kind    Kind           `json:"kind"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// WithDetail returns e after setting a detail key.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func newError(kind Kind, code, msg string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, cause: cause}
}

func Validation(code, msg string) *Error {
	return newError(KindValidation, code, msg, nil)
}

func Unavailable(code, msg string, cause error) *Error {
	return newError(KindServiceUnavailable, code, msg, cause)
}

func BiasViolation(msg string) *Error {
	return newError(KindBiasViolation, CodeBiasThreshold, msg, nil)
}

func ComplianceViolation(msg string) *Error {
	return newError(KindComplianceViolation, CodeComplianceDenied, msg, nil)
}

func ExplanationRequired(msg string) *Error {
	return newError(KindExplanationRequired, CodeExplanationRequired, msg, nil)
}

func NotFound(msg string) *Error {
	return newError(KindNotFound, CodeNotFound, msg, nil)
}

func Internal(msg string, cause error) *Error {
	return newError(KindInternal, CodeInternal, msg, cause)
}

// AuditUnavailable is returned when a synchronous audit write fails.
func AuditUnavailable(cause error) *Error {
	return newError(KindInternal, CodeAuditUnavailable, "audit trail unavailable", cause)
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// IsGovernanceBlock reports whether err is one of the three governance violations.
func IsGovernanceBlock(err error) bool {
	e, ok := As(err)
	if !ok {
		return false
	}
	switch e.Kind {
	case KindBiasViolation, KindComplianceViolation, KindExplanationRequired:
		return true
	}
	return false
}

// HTTPStatus maps a Kind onto an HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case KindBiasViolation, KindComplianceViolation, KindExplanationRequired:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Body is the JSON envelope returned to callers.
type Body struct {
	Error *Error `json:"error"`
}

// Public converts any error into a caller-safe *Error. Untyped errors become a
// generic internal error so raw messages never leak.
func Public(err error) *Error {
	if e, ok := As(err); ok {
		if e.Kind == KindInternal {
			return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message}
		}
		return e
	}
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: "internal error"}
}
