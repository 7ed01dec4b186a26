// Package governance evaluates configurable bias, compliance, explainability
// and audit rules around governed calls.
package governance

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/assessment/internal/domain/dsm"
)

// RuleType selects the evaluator for a rule.
type RuleType string

const (
	RuleTypeBias           RuleType = "bias_detection"
	RuleTypeCompliance     RuleType = "compliance"
	RuleTypeExplainability RuleType = "explainability"
	RuleTypeAudit          RuleType = "audit"
)

// Status of a rule evaluation.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusWarning Status = "warning"
)

// Impact of a rule outcome.
type Impact string

const (
	ImpactLow      Impact = "low"
	ImpactMedium   Impact = "medium"
	ImpactHigh     Impact = "high"
	ImpactCritical Impact = "critical"
)

func validImpact(i Impact) bool {
	switch i {
	case ImpactLow, ImpactMedium, ImpactHigh, ImpactCritical:
		return true
	}
	return false
}

var ErrRuleNotFound = errors.New("governance rule not found")

// Rule is a governance policy stored as data. Config is interpreted by the
// evaluator registered for Type.
type Rule struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Type        RuleType        `json:"type"`
	Config      json.RawMessage `json:"config"`
	Active      bool            `json:"active"`
	Scope       []string        `json:"scope"`
	Version     int             `json:"version"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// AppliesTo reports whether the rule is in scope for module. An empty scope
// is global.
func (r *Rule) AppliesTo(module string) bool {
	if len(r.Scope) == 0 {
		return true
	}
	for _, s := range r.Scope {
		if s == module {
			return true
		}
	}
	return false
}

// Result is the outcome of evaluating one rule for one request.
type Result struct {
	RuleID    uuid.UUID `json:"rule_id"`
	RuleName  string    `json:"rule_name"`
	RuleType  RuleType  `json:"rule_type"`
	Status    Status    `json:"status"`
	Details   string    `json:"details"`
	Impact    Impact    `json:"impact"`
	Score     *float64  `json:"score,omitempty"`
	Threshold *float64  `json:"threshold,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Input is the request/response view the evaluators see.
type Input struct {
	Module             string
	ModelID            string
	Language           dsm.Language
	CulturalBackground string
	DataClassification string
	CallerRegion       string
	Demographics       *dsm.Demographics
	WantExplanation    bool
	// Explanation is set for post-call evaluation when one was produced.
	Explanation *Explanation
}

// Explanation is the feature attribution of a model output.
type Explanation struct {
	Method   string
	Features []Attribution
}

// Attribution is one feature's contribution to an output.
type Attribution struct {
	Feature    string
	Importance float64
}

// Attribute returns a protected attribute's value from the input.
func (in *Input) Attribute(name string) (string, bool) {
	switch strings.ToLower(name) {
	case "language":
		return string(in.Language), in.Language != ""
	case "cultural_background":
		return in.CulturalBackground, in.CulturalBackground != ""
	}
	return in.Demographics.Attribute(name)
}

// celVars exposes the input to rule predicates as the "request" variable.
func (in *Input) celVars() map[string]any {
	demo := map[string]any{}
	if d := in.Demographics; d != nil {
		if d.Age != nil {
			demo["age"] = int64(*d.Age)
		}
		for k, v := range map[string]string{
			"gender": d.Gender, "ethnicity": d.Ethnicity, "religion": d.Religion,
			"region": d.Region, "living_situation": d.LivingSituation,
		} {
			if v != "" {
				demo[k] = v
			}
		}
	}
	return map[string]any{
		"module":              in.Module,
		"model_id":            in.ModelID,
		"language":            string(in.Language),
		"cultural_background": in.CulturalBackground,
		"data_classification": in.DataClassification,
		"caller_region":       in.CallerRegion,
		"want_explanation":    in.WantExplanation,
		"demographics":        demo,
	}
}

// header holds the config fields shared by every rule type.
type header struct {
	When           string `json:"when"`
	Impact         Impact `json:"impact"`
	BlockOnFailure bool   `json:"block_on_failure"`
}

// BiasConfig configures a bias_detection rule. The bias score is one minus
// the share of attribution carried by features naming the protected
// attribute or its value; scores below Threshold fail.
type BiasConfig struct {
	header
	ProtectedAttribute string  `json:"protected_attribute"`
	Threshold          float64 `json:"threshold"`
}

// ComplianceConfig configures a compliance rule. An empty allow-list admits
// any value.
type ComplianceConfig struct {
	header
	AllowedClassifications []string `json:"allowed_classifications"`
	AllowedRegions         []string `json:"allowed_regions"`
}

// ExplainabilityConfig configures an explainability rule. Required defaults
// to true.
type ExplainabilityConfig struct {
	header
	Required *bool `json:"required"`
}

func (c ExplainabilityConfig) IsRequired() bool {
	return c.Required == nil || *c.Required
}

// AuditConfig configures an audit rule.
type AuditConfig struct {
	header
	RedactFields []string `json:"redact_fields"`
}

func decodeConfig(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// decodeLenient decodes config fields into v ignoring unknown fields.
func decodeLenient(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
