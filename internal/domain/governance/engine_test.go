package governance

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/assessment/internal/domain/dsm"
	"github.com/ehr/assessment/internal/platform/apperr"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func newRule(typ RuleType, config string, scope ...string) *Rule {
	return &Rule{
		ID:     uuid.New(),
		Name:   string(typ) + " rule",
		Type:   typ,
		Config: json.RawMessage(config),
		Active: true,
		Scope:  scope,
	}
}

func baseInput() *Input {
	age := 34
	return &Input{
		Module:             "assessment",
		ModelID:            "test-model",
		Language:           dsm.LanguageSwahili,
		CulturalBackground: "Kikuyu",
		DataClassification: "phi",
		CallerRegion:       "KE",
		Demographics:       &dsm.Demographics{Age: &age, Gender: "female"},
	}
}

func biasedExplanation() *Explanation {
	return &Explanation{Method: "shap", Features: []Attribution{
		{Feature: "language_sw", Importance: 0.6},
		{Feature: "symptom:sleep", Importance: -0.4},
	}}
}

func TestCheckCompliance_BlocksDisallowedClassification(t *testing.T) {
	e := newTestEngine(t)
	r := newRule(RuleTypeCompliance, `{"allowed_classifications":["deidentified","synthetic"],"block_on_failure":true}`)

	d := e.CheckCompliance(context.Background(), []*Rule{r}, baseInput())
	if !d.Blocked {
		t.Fatal("expected compliance block")
	}
	if len(d.Results) != 1 || d.Results[0].Status != StatusFailed {
		t.Fatalf("expected one failed result, got %+v", d.Results)
	}
	if d.Results[0].Impact != ImpactCritical {
		t.Errorf("expected default impact critical, got %s", d.Results[0].Impact)
	}
	err := d.Err()
	if !apperr.IsKind(err, apperr.KindComplianceViolation) {
		t.Fatalf("expected compliance violation, got %v", err)
	}
	ae, _ := apperr.As(err)
	if ae.Details["rule_id"] != r.ID.String() {
		t.Errorf("expected rule_id detail %s, got %v", r.ID, ae.Details["rule_id"])
	}
}

func TestCheckCompliance_UnknownRegionFails(t *testing.T) {
	e := newTestEngine(t)
	r := newRule(RuleTypeCompliance, `{"allowed_regions":["KE","TZ"]}`)
	in := baseInput()
	in.CallerRegion = ""

	d := e.CheckCompliance(context.Background(), []*Rule{r}, in)
	if d.Blocked {
		t.Error("non-blocking rule must not block")
	}
	if len(d.Results) != 1 || d.Results[0].Status != StatusFailed {
		t.Fatalf("expected failed result, got %+v", d.Results)
	}
}

func TestCheckCompliance_Passes(t *testing.T) {
	e := newTestEngine(t)
	r := newRule(RuleTypeCompliance, `{"allowed_classifications":["PHI"],"allowed_regions":["ke"],"block_on_failure":true}`)
	d := e.CheckCompliance(context.Background(), []*Rule{r}, baseInput())
	if d.Blocked || d.Err() != nil {
		t.Fatalf("expected pass, got %+v", d)
	}
	if d.Results[0].Status != StatusPassed {
		t.Errorf("expected passed, got %s", d.Results[0].Status)
	}
}

func TestCheckExplainability(t *testing.T) {
	e := newTestEngine(t)
	tests := []struct {
		name    string
		config  string
		want    bool
		status  Status
		blocked bool
	}{
		{"required not requested", `{}`, false, StatusFailed, true},
		{"required requested", `{"required":true}`, true, StatusPassed, false},
		{"optional", `{"required":false}`, false, StatusPassed, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInput()
			in.WantExplanation = tt.want
			d := e.CheckExplainability(context.Background(), []*Rule{newRule(RuleTypeExplainability, tt.config)}, in)
			if d.Blocked != tt.blocked {
				t.Errorf("blocked = %v, want %v", d.Blocked, tt.blocked)
			}
			if d.Results[0].Status != tt.status {
				t.Errorf("status = %s, want %s", d.Results[0].Status, tt.status)
			}
			if tt.blocked && !apperr.IsKind(d.Err(), apperr.KindExplanationRequired) {
				t.Errorf("expected explanation-required error, got %v", d.Err())
			}
		})
	}
}

func TestCheckBias_BlockingFailure(t *testing.T) {
	e := newTestEngine(t)
	r := newRule(RuleTypeBias, `{"protected_attribute":"language","threshold":0.8,"block_on_failure":true}`)
	in := baseInput()
	in.Explanation = biasedExplanation()

	d := e.CheckBias(context.Background(), []*Rule{r}, in)
	if !d.Blocked {
		t.Fatal("expected bias block")
	}
	res := d.Results[0]
	if res.Status != StatusFailed {
		t.Errorf("expected failed, got %s", res.Status)
	}
	if res.Score == nil || *res.Score < 0.39 || *res.Score > 0.41 {
		t.Errorf("expected score 0.4, got %v", res.Score)
	}
	err := d.Err()
	if !apperr.IsKind(err, apperr.KindBiasViolation) {
		t.Fatalf("expected bias violation, got %v", err)
	}
	ae, _ := apperr.As(err)
	if ae.Details["threshold"] != 0.8 {
		t.Errorf("expected threshold detail 0.8, got %v", ae.Details["threshold"])
	}
	if _, ok := ae.Details["score"]; !ok {
		t.Error("expected score detail")
	}
}

func TestCheckBias_NonBlockingFailureIsRecorded(t *testing.T) {
	e := newTestEngine(t)
	r := newRule(RuleTypeBias, `{"protected_attribute":"language","threshold":0.8,"block_on_failure":false}`)
	in := baseInput()
	in.Explanation = biasedExplanation()

	d := e.CheckBias(context.Background(), []*Rule{r}, in)
	if d.Blocked || d.Err() != nil {
		t.Fatal("non-blocking bias failure must not block")
	}
	if len(d.Results) != 1 || d.Results[0].Status != StatusFailed {
		t.Fatalf("expected failed result to be recorded, got %+v", d.Results)
	}
}

func TestCheckBias_NoAttributionWarns(t *testing.T) {
	e := newTestEngine(t)
	r := newRule(RuleTypeBias, `{"protected_attribute":"language","threshold":0.8,"block_on_failure":true}`)
	d := e.CheckBias(context.Background(), []*Rule{r}, baseInput())
	if d.Blocked {
		t.Error("missing attribution must not block")
	}
	if d.Results[0].Status != StatusWarning {
		t.Errorf("expected warning, got %s", d.Results[0].Status)
	}
}

func TestCheckBias_AbsentAttributeNotApplicable(t *testing.T) {
	e := newTestEngine(t)
	r := newRule(RuleTypeBias, `{"protected_attribute":"religion","threshold":0.8}`)
	in := baseInput()
	in.Explanation = biasedExplanation()
	d := e.CheckBias(context.Background(), []*Rule{r}, in)
	if len(d.Results) != 0 {
		t.Errorf("expected no result for absent attribute, got %+v", d.Results)
	}
}

func TestCheckBias_PassesAboveThreshold(t *testing.T) {
	e := newTestEngine(t)
	r := newRule(RuleTypeBias, `{"protected_attribute":"gender","threshold":0.5,"block_on_failure":true}`)
	in := baseInput()
	in.Explanation = biasedExplanation()
	d := e.CheckBias(context.Background(), []*Rule{r}, in)
	if d.Blocked {
		t.Fatal("unexpected block")
	}
	if d.Results[0].Status != StatusPassed || *d.Results[0].Score != 1 {
		t.Errorf("expected passed with score 1, got %+v", d.Results[0])
	}
}

func TestEngine_WhenPredicate(t *testing.T) {
	e := newTestEngine(t)
	r := newRule(RuleTypeExplainability, `{"when":"request.language == 'fr'"}`)

	d := e.PreCall(context.Background(), []*Rule{r}, baseInput())
	if len(d.Results) != 0 || d.Blocked {
		t.Errorf("rule with false predicate must be skipped, got %+v", d)
	}

	in := baseInput()
	in.Language = dsm.LanguageFrench
	d = e.PreCall(context.Background(), []*Rule{r}, in)
	if !d.Blocked {
		t.Error("rule with true predicate must apply")
	}
}

func TestEngine_PredicateErrorEnforcesRule(t *testing.T) {
	e := newTestEngine(t)
	r := newRule(RuleTypeExplainability, `{"when":"request.demographics.religion == 'x'"}`)
	d := e.PreCall(context.Background(), []*Rule{r}, baseInput())
	if !d.Blocked {
		t.Error("a predicate that cannot be evaluated must not exempt the rule")
	}
}

func TestEngine_ScopeAndActive(t *testing.T) {
	e := newTestEngine(t)
	other := newRule(RuleTypeExplainability, `{}`, "triage")
	inactive := newRule(RuleTypeExplainability, `{}`)
	inactive.Active = false
	scoped := newRule(RuleTypeAudit, `{"redact_fields":["symptom_text"]}`, "assessment")

	d := e.PreCall(context.Background(), []*Rule{other, inactive, scoped}, baseInput())
	if d.Blocked {
		t.Error("out-of-scope and inactive rules must not block")
	}
	if len(d.Results) != 1 || d.Results[0].RuleType != RuleTypeAudit || d.Results[0].Status != StatusPassed {
		t.Errorf("expected only the audit result, got %+v", d.Results)
	}
}

func TestEngine_Phases(t *testing.T) {
	e := newTestEngine(t)
	bias := newRule(RuleTypeBias, `{"protected_attribute":"language","threshold":0.8,"block_on_failure":true}`)
	comp := newRule(RuleTypeCompliance, `{"allowed_classifications":["phi"]}`)
	in := baseInput()
	in.Explanation = biasedExplanation()

	pre := e.PreCall(context.Background(), []*Rule{bias, comp}, in)
	if len(pre.Results) != 1 || pre.Results[0].RuleType != RuleTypeCompliance {
		t.Errorf("pre-call should evaluate compliance only, got %+v", pre.Results)
	}
	post := e.PostCall(context.Background(), []*Rule{bias, comp}, in)
	if len(post.Results) != 1 || post.Results[0].RuleType != RuleTypeBias || !post.Blocked {
		t.Errorf("post-call should evaluate and block on bias, got %+v", post)
	}
}

func TestEngine_FirstBlockingRuleReported(t *testing.T) {
	e := newTestEngine(t)
	first := newRule(RuleTypeCompliance, `{"allowed_regions":["US"],"block_on_failure":true}`)
	second := newRule(RuleTypeExplainability, `{}`)
	d := e.PreCall(context.Background(), []*Rule{second, first}, baseInput())
	if !d.Blocked || d.Block.RuleID != first.ID {
		t.Fatalf("expected compliance rule to be reported first, got %+v", d.Block)
	}
	if len(d.Results) != 2 {
		t.Errorf("expected both rules evaluated, got %d results", len(d.Results))
	}
}

func TestEngine_NeedsAttribution(t *testing.T) {
	e := newTestEngine(t)
	r := newRule(RuleTypeBias, `{"protected_attribute":"language","threshold":0.8}`)
	if !e.NeedsAttribution([]*Rule{r}, baseInput()) {
		t.Error("expected attribution to be needed")
	}
	absent := newRule(RuleTypeBias, `{"protected_attribute":"religion","threshold":0.8}`)
	if e.NeedsAttribution([]*Rule{absent}, baseInput()) {
		t.Error("absent attribute should not need attribution")
	}
}

func TestEvaluator_Validate(t *testing.T) {
	e := newTestEngine(t)
	tests := []struct {
		typ    RuleType
		config string
		ok     bool
	}{
		{RuleTypeBias, `{"protected_attribute":"language","threshold":0.8}`, true},
		{RuleTypeBias, `{"threshold":0.8}`, false},
		{RuleTypeBias, `{"protected_attribute":"language","threshold":1.5}`, false},
		{RuleTypeBias, `{"protected_attribute":"language","treshold":0.8}`, false},
		{RuleTypeCompliance, `{"allowed_regions":["KE"]}`, true},
		{RuleTypeCompliance, `{}`, false},
		{RuleTypeExplainability, `{"impact":"severe"}`, false},
		{RuleTypeExplainability, `{"when":"request.language =="}`, false},
		{RuleTypeExplainability, `{"when":"request.language"}`, true},
		{RuleTypeExplainability, `{"when":"1 + 1"}`, false},
		{RuleTypeAudit, `{"redact_fields":["symptom_text"]}`, true},
	}
	for _, tt := range tests {
		ev, ok := e.Evaluator(tt.typ)
		if !ok {
			t.Fatalf("no evaluator for %s", tt.typ)
		}
		err := ev.Validate(newRule(tt.typ, tt.config))
		if (err == nil) != tt.ok {
			t.Errorf("%s %s: err = %v, want ok=%v", tt.typ, tt.config, err, tt.ok)
		}
	}
}

func TestRedactFields(t *testing.T) {
	a := newRule(RuleTypeAudit, `{"redact_fields":["symptom_text","demographics"]}`)
	b := newRule(RuleTypeAudit, `{"redact_fields":["symptom_text"]}`)
	c := newRule(RuleTypeAudit, `{"redact_fields":["subject_id"]}`)
	c.Active = false
	got := RedactFields([]*Rule{a, b, c})
	if len(got) != 2 || got[0] != "symptom_text" || got[1] != "demographics" {
		t.Errorf("unexpected redact fields %v", got)
	}
}

func TestBiasScore_MatchesWholeTokens(t *testing.T) {
	tests := []struct {
		name      string
		features  []Attribution
		attribute string
		value     string
		want      float64
	}{
		{
			name:      "language is not age",
			features:  []Attribution{{Feature: "low mood", Importance: 0.4}, {Feature: "language", Importance: 0.6}},
			attribute: "age",
			value:     "34",
			want:      1,
		},
		{
			name:      "female is not male",
			features:  []Attribution{{Feature: "female_reproductive_history", Importance: 0.5}, {Feature: "fatigue", Importance: 0.5}},
			attribute: "gender",
			value:     "male",
			want:      1,
		},
		{
			name:      "attribute prefix",
			features:  []Attribution{{Feature: "age=34", Importance: 0.5}, {Feature: "fatigue", Importance: 0.5}},
			attribute: "age",
			value:     "34",
			want:      0.5,
		},
		{
			name:      "value token",
			features:  []Attribution{{Feature: "sex:male", Importance: 0.25}, {Feature: "fatigue", Importance: 0.75}},
			attribute: "gender",
			value:     "male",
			want:      0.75,
		},
		{
			name:      "multi word value",
			features:  []Attribution{{Feature: "background_east_african", Importance: 0.2}, {Feature: "east", Importance: 0.8}},
			attribute: "cultural_background",
			value:     "East African",
			want:      0.8,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, ok := biasScore(&Explanation{Method: "shap", Features: tt.features}, tt.attribute, tt.value)
			if !ok {
				t.Fatal("expected attribution to be available")
			}
			if diff := score - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("biasScore = %.3f, want %.3f", score, tt.want)
			}
		})
	}
}
