package governance

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"
)

// Phase says when a rule type is evaluated relative to the inference call.
type Phase int

const (
	PhasePreCall Phase = iota
	PhasePostCall
)

// Outcome is an evaluator's verdict on one rule. A nil *Outcome means the
// rule does not apply to the input and produces no result.
type Outcome struct {
	Status    Status
	Details   string
	Impact    Impact
	Block     bool
	Score     *float64
	Threshold *float64
}

// Evaluator interprets the config of one rule type.
type Evaluator interface {
	Type() RuleType
	Phase() Phase
	Validate(rule *Rule) error
	Evaluate(ctx context.Context, rule *Rule, in *Input) (*Outcome, error)
}

func impactOr(i, def Impact) Impact {
	if i == "" {
		return def
	}
	return i
}

func checkHeader(h header) error {
	if h.Impact != "" && !validImpact(h.Impact) {
		return fmt.Errorf("invalid impact %q", h.Impact)
	}
	if h.When != "" {
		if err := CompilePredicate(h.When); err != nil {
			return fmt.Errorf("invalid when predicate: %w", err)
		}
	}
	return nil
}

// -- Bias --

type biasEvaluator struct{}

func (biasEvaluator) Type() RuleType { return RuleTypeBias }
func (biasEvaluator) Phase() Phase   { return PhasePostCall }

func (biasEvaluator) Validate(rule *Rule) error {
	var cfg BiasConfig
	if err := decodeConfig(rule.Config, &cfg); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.ProtectedAttribute) == "" {
		return fmt.Errorf("protected_attribute is required")
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1")
	}
	return checkHeader(cfg.header)
}

func (biasEvaluator) Evaluate(_ context.Context, rule *Rule, in *Input) (*Outcome, error) {
	var cfg BiasConfig
	if err := decodeConfig(rule.Config, &cfg); err != nil {
		return nil, err
	}
	value, present := in.Attribute(cfg.ProtectedAttribute)
	if !present {
		return nil, nil
	}
	threshold := cfg.Threshold
	out := &Outcome{Impact: impactOr(cfg.Impact, ImpactHigh), Threshold: &threshold}

	score, ok := biasScore(in.Explanation, cfg.ProtectedAttribute, value)
	if !ok {
		out.Status = StatusWarning
		out.Details = fmt.Sprintf("no feature attribution available; bias for %q was not measured", cfg.ProtectedAttribute)
		return out, nil
	}
	out.Score = &score
	if score < threshold {
		out.Status = StatusFailed
		out.Block = cfg.BlockOnFailure
		out.Details = fmt.Sprintf("bias score %.3f for %q is below threshold %.3f", score, cfg.ProtectedAttribute, threshold)
		return out, nil
	}
	out.Status = StatusPassed
	out.Details = fmt.Sprintf("bias score %.3f for %q meets threshold %.3f", score, cfg.ProtectedAttribute, threshold)
	return out, nil
}

// biasScore is 1 minus the share of absolute attribution carried by features
// whose name contains the attribute or its value as whole tokens. ok is false
// when no attribution is available.
func biasScore(exp *Explanation, attribute, value string) (float64, bool) {
	if exp == nil || len(exp.Features) == 0 {
		return 0, false
	}
	attr := featureTokens(attribute)
	val := featureTokens(value)
	if len(val) == 1 && len(val[0]) < 2 {
		val = nil
	}
	var total, protected float64
	for _, f := range exp.Features {
		w := math.Abs(f.Importance)
		total += w
		name := featureTokens(f.Feature)
		if hasTokenRun(name, attr) || hasTokenRun(name, val) {
			protected += w
		}
	}
	if total == 0 {
		return 0, false
	}
	return 1 - protected/total, true
}

// featureTokens splits a feature name such as "age_group=18-24" into
// lowercase letter and digit runs.
func featureTokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// hasTokenRun reports whether want occurs as consecutive whole tokens in have.
func hasTokenRun(have, want []string) bool {
	if len(want) == 0 || len(want) > len(have) {
		return false
	}
	for i := 0; i+len(want) <= len(have); i++ {
		match := true
		for j, w := range want {
			if have[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// -- Compliance --

type complianceEvaluator struct{}

func (complianceEvaluator) Type() RuleType { return RuleTypeCompliance }
func (complianceEvaluator) Phase() Phase   { return PhasePreCall }

func (complianceEvaluator) Validate(rule *Rule) error {
	var cfg ComplianceConfig
	if err := decodeConfig(rule.Config, &cfg); err != nil {
		return err
	}
	if len(cfg.AllowedClassifications) == 0 && len(cfg.AllowedRegions) == 0 {
		return fmt.Errorf("at least one of allowed_classifications or allowed_regions is required")
	}
	return checkHeader(cfg.header)
}

func (complianceEvaluator) Evaluate(_ context.Context, rule *Rule, in *Input) (*Outcome, error) {
	var cfg ComplianceConfig
	if err := decodeConfig(rule.Config, &cfg); err != nil {
		return nil, err
	}
	out := &Outcome{Impact: impactOr(cfg.Impact, ImpactCritical)}
	var problems []string
	if len(cfg.AllowedClassifications) > 0 && !containsFold(cfg.AllowedClassifications, in.DataClassification) {
		problems = append(problems, fmt.Sprintf("data classification %q is not allowed", in.DataClassification))
	}
	if len(cfg.AllowedRegions) > 0 {
		switch {
		case in.CallerRegion == "":
			problems = append(problems, "caller region is unknown")
		case !containsFold(cfg.AllowedRegions, in.CallerRegion):
			problems = append(problems, fmt.Sprintf("caller region %q is not allowed", in.CallerRegion))
		}
	}
	if len(problems) > 0 {
		out.Status = StatusFailed
		out.Block = cfg.BlockOnFailure
		out.Details = strings.Join(problems, "; ")
		return out, nil
	}
	out.Status = StatusPassed
	out.Details = "data classification and caller region allowed"
	return out, nil
}

func containsFold(list []string, s string) bool {
	s = strings.TrimSpace(s)
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), s) {
			return true
		}
	}
	return false
}

// -- Explainability --

type explainabilityEvaluator struct{}

func (explainabilityEvaluator) Type() RuleType { return RuleTypeExplainability }
func (explainabilityEvaluator) Phase() Phase   { return PhasePreCall }

func (explainabilityEvaluator) Validate(rule *Rule) error {
	var cfg ExplainabilityConfig
	if err := decodeConfig(rule.Config, &cfg); err != nil {
		return err
	}
	return checkHeader(cfg.header)
}

// Evaluate blocks whenever an explanation is required but was not
// requested, regardless of block_on_failure.
func (explainabilityEvaluator) Evaluate(_ context.Context, rule *Rule, in *Input) (*Outcome, error) {
	var cfg ExplainabilityConfig
	if err := decodeConfig(rule.Config, &cfg); err != nil {
		return nil, err
	}
	out := &Outcome{Impact: impactOr(cfg.Impact, ImpactMedium)}
	switch {
	case !cfg.IsRequired():
		out.Status = StatusPassed
		out.Details = "explanation optional"
	case in.WantExplanation:
		out.Status = StatusPassed
		out.Details = "explanation requested as required"
	default:
		out.Status = StatusFailed
		out.Block = true
		out.Details = "an explanation is required for this call but was not requested"
	}
	return out, nil
}

// -- Audit --

type auditEvaluator struct{}

func (auditEvaluator) Type() RuleType { return RuleTypeAudit }
func (auditEvaluator) Phase() Phase   { return PhasePreCall }

func (auditEvaluator) Validate(rule *Rule) error {
	var cfg AuditConfig
	if err := decodeConfig(rule.Config, &cfg); err != nil {
		return err
	}
	return checkHeader(cfg.header)
}

func (auditEvaluator) Evaluate(_ context.Context, rule *Rule, _ *Input) (*Outcome, error) {
	var cfg AuditConfig
	if err := decodeConfig(rule.Config, &cfg); err != nil {
		return nil, err
	}
	details := "call recorded in audit trail"
	if len(cfg.RedactFields) > 0 {
		details += "; redacting " + strings.Join(cfg.RedactFields, ", ")
	}
	return &Outcome{Status: StatusPassed, Details: details, Impact: impactOr(cfg.Impact, ImpactLow)}, nil
}

// RedactFields collects the redact_fields of the active audit rules in rules.
func RedactFields(rules []*Rule) []string {
	var fields []string
	seen := map[string]bool{}
	for _, r := range rules {
		if r.Type != RuleTypeAudit || !r.Active {
			continue
		}
		var cfg AuditConfig
		if err := decodeConfig(r.Config, &cfg); err != nil {
			continue
		}
		for _, f := range cfg.RedactFields {
			if !seen[f] {
				seen[f] = true
				fields = append(fields, f)
			}
		}
	}
	return fields
}
