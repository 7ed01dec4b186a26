package assessment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/assessment/internal/domain/auditevent"
	"github.com/ehr/assessment/internal/domain/criteria"
	"github.com/ehr/assessment/internal/domain/cultural"
	"github.com/ehr/assessment/internal/domain/dsm"
	"github.com/ehr/assessment/internal/domain/governance"
	"github.com/ehr/assessment/internal/domain/risk"
	"github.com/ehr/assessment/internal/domain/treatment"
	"github.com/ehr/assessment/internal/domain/urgency"
	"github.com/ehr/assessment/internal/platform/apperr"
	"github.com/ehr/assessment/internal/platform/auth"
	"github.com/ehr/assessment/internal/platform/inference"
	"github.com/ehr/assessment/internal/platform/notification"
	"github.com/ehr/assessment/internal/platform/telemetry"
)

// Governance supplies the active rules and the engine that evaluates them.
type Governance interface {
	ActiveRules(ctx context.Context, module string) ([]*governance.Rule, error)
	Engine() *governance.Engine
}

// AuditRecorder appends to the audit trail.
type AuditRecorder interface {
	Record(ctx context.Context, rec auditevent.Record) (*auditevent.Entry, error)
}

// Pager pages on-call staff when the crisis protocol fires.
type Pager interface {
	Page(alert notification.CrisisAlert) (int, error)
}

type Config struct {
	// MinConfidence discards candidates scored below it.
	MinConfidence float64
	// MaxDiagnoses caps the number of retained candidates.
	MaxDiagnoses     int
	InferenceTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MinConfidence:    0.30,
		MaxDiagnoses:     5,
		InferenceTimeout: 15 * time.Second,
	}
}

type Service struct {
	repo      Repository
	provider  Provider
	gov       Governance
	audit     AuditRecorder
	cfg       Config
	logger    zerolog.Logger
	metrics   telemetry.Recorder
	pager     Pager
	catalog   *criteria.Catalog
	risk      *risk.Engine
	treatment *treatment.Generator
	composer  *cultural.Composer
	now       func() time.Time
}

func NewService(repo Repository, provider Provider, gov Governance, audit AuditRecorder, cfg Config, logger zerolog.Logger) *Service {
	def := DefaultConfig()
	if cfg.MinConfidence < 0 || cfg.MinConfidence > 1 {
		cfg.MinConfidence = def.MinConfidence
	}
	if cfg.MaxDiagnoses <= 0 {
		cfg.MaxDiagnoses = def.MaxDiagnoses
	}
	if cfg.InferenceTimeout <= 0 {
		cfg.InferenceTimeout = def.InferenceTimeout
	}
	return &Service{
		repo:      repo,
		provider:  provider,
		gov:       gov,
		audit:     audit,
		cfg:       cfg,
		logger:    logger.With().Str("component", "assessment").Logger(),
		metrics:   telemetry.Nop{},
		catalog:   criteria.DefaultCatalog(),
		risk:      risk.NewEngine(risk.DefaultPolicy()),
		treatment: treatment.NewGenerator(),
		composer:  cultural.NewComposer(nil),
		now:       time.Now,
	}
}

func (s *Service) SetMetrics(m telemetry.Recorder) {
	if m != nil {
		s.metrics = m
	}
}

func (s *Service) SetPager(p Pager) {
	s.pager = p
}

// SetComposer replaces the cultural composer, e.g. to load a knowledge base
// from disk.
func (s *Service) SetComposer(c *cultural.Composer) {
	if c != nil {
		s.composer = c
	}
}

func (s *Service) SetRiskEngine(e *risk.Engine) {
	if e != nil {
		s.risk = e
	}
}

// run carries the state of one Assess call.
type run struct {
	actor   auth.Actor
	req     Request
	rules   []*governance.Rule
	input   governance.Input
	results []governance.Result
	modelID string
}

// Assess validates req, gates it through governance, classifies it and
// assembles the response. Every call that passes validation produces exactly
// one audit entry.
func (s *Service) Assess(ctx context.Context, actor auth.Actor, req Request) (*Response, error) {
	r := &run{actor: actor, req: normalize(req)}
	if err := validate(&r.req); err != nil {
		s.metrics.Inc(telemetry.AssessmentsTotal, "outcome", "rejected")
		return nil, err
	}

	rules, err := s.gov.ActiveRules(ctx, ModuleID)
	if err != nil {
		return nil, s.fail(ctx, r, apperr.Internal("load governance rules", err))
	}
	r.rules = rules
	r.modelID = s.provider.ModelID()
	r.input = governance.Input{
		Module:             ModuleID,
		ModelID:            r.modelID,
		Language:           r.req.Language,
		CulturalBackground: r.req.CulturalBackground,
		DataClassification: r.req.DataClassification,
		CallerRegion:       actor.Region,
		Demographics:       r.req.Demographics,
		WantExplanation:    r.req.WantExplanation,
	}

	engine := s.gov.Engine()
	pre := engine.PreCall(ctx, rules, &r.input)
	r.results = append(r.results, pre.Results...)
	if pre.Blocked {
		return nil, s.block(ctx, r, pre)
	}

	cls, err := s.classify(ctx, r)
	if err != nil {
		return nil, s.fail(ctx, r, err)
	}
	if cls.ModelID != "" {
		r.modelID = cls.ModelID
	}
	candidates, err := s.selectCandidates(cls.Candidates)
	if err != nil {
		return nil, s.fail(ctx, r, err)
	}

	resp := &Response{
		ID:        uuid.New(),
		SubjectID: r.req.SubjectID,
		Timestamp: s.now().UTC(),
		Language:  r.req.Language,
		ModelID:   r.modelID,
		Diagnoses: make([]DiagnosisResult, 0, len(candidates)),
	}
	for _, c := range candidates {
		set := s.catalog.Criteria(c.Code)
		resp.Diagnoses = append(resp.Diagnoses, DiagnosisResult{
			Diagnosis:  c,
			Confidence: c.Confidence,
			Criteria:   criteria.Validate(criteria.ExtractEvidence(r.req.SymptomText, r.req.Language, set), set),
			Severity:   c.Severity,
		})
	}

	severity := dsm.SeverityUnspecified
	if len(resp.Diagnoses) > 0 {
		severity = resp.Diagnoses[0].Severity
		resp.AggregateConfidence = resp.Diagnoses[0].Confidence
	}

	if r.req.WantRiskAssessment {
		resp.Risk = s.risk.AssessRisk(r.req.SymptomText, r.req.Language, r.req.Demographics, r.req.CurrentMedications)
	}

	resp.Urgency = urgency.ForAssessment(severity, resp.Risk)
	resp.CrisisProtocolActivated = urgency.CrisisProtocolRequired(resp.Urgency, resp.Risk)
	resp.FollowUpRecommended = resp.Urgency >= urgency.Expedited ||
		(resp.Risk != nil && resp.Risk.AnyAtLeast(risk.LevelModerate))

	if r.req.CulturalBackground != "" {
		resp.Cultural = s.composer.Compose(r.req.CulturalBackground, r.req.Language)
		if resp.Risk != nil {
			resp.Cultural = cultural.Reconcile(resp.Cultural, resp.Risk.RiskFactors, resp.Risk.ProtectiveFactors)
		}
	}

	resp.Treatment = s.recommend(r, resp, severity)

	if len(resp.Diagnoses) > 0 && (r.req.WantExplanation || engine.NeedsAttribution(rules, &r.input)) {
		exp, err := s.explain(ctx, r, resp.Diagnoses[0].Diagnosis)
		if err != nil {
			return nil, s.fail(ctx, r, err)
		}
		resp.Diagnoses[0].Explanation = exp
		r.input.Explanation = governanceExplanation(exp)
	}

	post := engine.PostCall(ctx, rules, &r.input)
	r.results = append(r.results, post.Results...)
	if post.Blocked {
		return nil, s.block(ctx, r, post)
	}
	resp.Governance = r.results
	if resp.Governance == nil {
		resp.Governance = []governance.Result{}
	}

	if err := s.repo.SaveAssessment(ctx, resp, actor.ID); err != nil {
		return nil, s.fail(ctx, r, apperr.Internal("save assessment", err))
	}
	if _, err := s.record(ctx, r, auditevent.OutcomeSuccess, "", resp); err != nil {
		return nil, err
	}
	s.countResults(r.results)
	s.metrics.Inc(telemetry.AssessmentsTotal, "outcome", string(auditevent.OutcomeSuccess))

	if resp.CrisisProtocolActivated {
		s.activateCrisisProtocol(ctx, r, resp)
	}
	s.logger.Info().
		Str("assessment_id", resp.ID.String()).
		Str("actor_id", actor.ID).
		Str("urgency", resp.Urgency.String()).
		Int("diagnoses", len(resp.Diagnoses)).
		Msg("assessment completed")
	return resp, nil
}

// GetAssessment returns a stored response.
func (s *Service) GetAssessment(ctx context.Context, id uuid.UUID) (*Response, error) {
	resp, err := s.repo.GetAssessment(ctx, id)
	if errors.Is(err, ErrAssessmentNotFound) {
		return nil, apperr.NotFound("assessment not found")
	}
	if err != nil {
		return nil, apperr.Internal("get assessment", err)
	}
	return resp, nil
}

func normalize(req Request) Request {
	req.SymptomText = strings.TrimSpace(req.SymptomText)
	req.CulturalBackground = strings.TrimSpace(req.CulturalBackground)
	if req.Language == "" {
		req.Language = dsm.DefaultLanguage
	}
	if req.PreferredLanguage == "" {
		req.PreferredLanguage = req.Language
	}
	if req.DataClassification == "" {
		req.DataClassification = ClassificationPHI
	}
	req.DataClassification = strings.ToLower(req.DataClassification)
	req.PriorDiagnoses = append([]string(nil), req.PriorDiagnoses...)
	req.CurrentMedications = append([]string(nil), req.CurrentMedications...)
	if req.Demographics != nil {
		d := *req.Demographics
		if d.Age != nil {
			age := *d.Age
			d.Age = &age
		}
		req.Demographics = &d
	}
	return req
}

func validate(req *Request) error {
	if req.SymptomText == "" {
		return apperr.Validation(apperr.CodeEmptySymptomText, "symptom text is required").
			WithDetail("field", "symptom_text")
	}
	if !dsm.IsSupported(req.Language) {
		return apperr.Validation(apperr.CodeUnsupportedLanguage, fmt.Sprintf("language %q is not supported", req.Language)).
			WithDetail("field", "language").
			WithDetail("supported", dsm.SupportedLanguages())
	}
	if !dsm.IsSupported(req.PreferredLanguage) {
		return apperr.Validation(apperr.CodeUnsupportedLanguage, fmt.Sprintf("preferred language %q is not supported", req.PreferredLanguage)).
			WithDetail("field", "preferred_language").
			WithDetail("supported", dsm.SupportedLanguages())
	}
	if req.Demographics != nil && req.Demographics.Age != nil && *req.Demographics.Age < 0 {
		return apperr.Validation(apperr.CodeNegativeAge, "age must not be negative").
			WithDetail("field", "demographics.age")
	}
	switch req.DataClassification {
	case ClassificationPHI, ClassificationDeidentified, ClassificationSynthetic:
	default:
		return apperr.Validation(apperr.CodeInvalidField, fmt.Sprintf("unknown data classification %q", req.DataClassification)).
			WithDetail("field", "data_classification")
	}
	return nil
}

func (s *Service) classify(ctx context.Context, r *run) (*inference.Classification, error) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.InferenceTimeout)
	defer cancel()

	cc := inference.Context{
		PriorDiagnoses:     r.req.PriorDiagnoses,
		Medications:        r.req.CurrentMedications,
		CulturalBackground: r.req.CulturalBackground,
	}
	if r.req.Demographics != nil {
		cc.Age = r.req.Demographics.Age
	}

	start := time.Now()
	cls, err := s.provider.Classify(cctx, r.req.SymptomText, r.req.Language, cc)
	s.metrics.Observe(telemetry.InferenceDuration, time.Since(start).Seconds(), "call", "classify")
	if err != nil {
		return nil, providerError(cctx, "classification", err)
	}
	if cls == nil {
		return nil, apperr.Unavailable(apperr.CodeInferenceMalformed, "inference provider returned no classification", inference.ErrEmptyResponse)
	}
	return cls, nil
}

func (s *Service) explain(ctx context.Context, r *run, dx DiagnosisCandidate) (*inference.Explanation, error) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.InferenceTimeout)
	defer cancel()

	attrs := map[string]string{"language": string(r.req.Language)}
	if r.req.CulturalBackground != "" {
		attrs["cultural_background"] = r.req.CulturalBackground
	}
	for _, name := range []string{"age", "gender", "ethnicity", "religion", "region", "living_situation"} {
		if v, ok := r.req.Demographics.Attribute(name); ok && v != "" {
			attrs[name] = v
		}
	}

	start := time.Now()
	exp, err := s.provider.Explain(cctx, inference.ExplainInput{
		Text:       r.req.SymptomText,
		Language:   r.req.Language,
		Diagnosis:  dx,
		Attributes: attrs,
	})
	s.metrics.Observe(telemetry.InferenceDuration, time.Since(start).Seconds(), "call", "explain")
	if err != nil {
		return nil, providerError(cctx, "explanation", err)
	}
	if exp == nil {
		return nil, apperr.Unavailable(apperr.CodeInferenceMalformed, "inference provider returned no explanation", inference.ErrEmptyResponse)
	}
	if exp.Method == "" {
		exp.Method = "shap"
	}
	return exp, nil
}

// providerError maps a provider failure onto ServiceUnavailable. No partial
// result is ever built from a failed call.
func providerError(ctx context.Context, call string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return apperr.Unavailable(apperr.CodeInferenceTimeout, "inference provider timed out during "+call, err)
	case errors.Is(err, inference.ErrMalformedResponse) || errors.Is(err, inference.ErrEmptyResponse):
		return apperr.Unavailable(apperr.CodeInferenceMalformed, "inference provider returned a malformed "+call, err)
	default:
		return apperr.Unavailable(apperr.CodeInferenceUnavailable, "inference provider unavailable during "+call, err)
	}
}

// selectCandidates checks the provider output, drops candidates below the
// confidence floor and orders the rest by confidence then code.
func (s *Service) selectCandidates(in []inference.Candidate) ([]DiagnosisCandidate, error) {
	out := make([]DiagnosisCandidate, 0, len(in))
	for _, c := range in {
		if strings.TrimSpace(c.Code) == "" || math.IsNaN(c.Confidence) || c.Confidence < 0 || c.Confidence > 1 {
			return nil, apperr.Unavailable(apperr.CodeInferenceMalformed, "inference provider returned an invalid candidate", inference.ErrMalformedResponse)
		}
		if c.Confidence < s.cfg.MinConfidence {
			continue
		}
		if !dsm.ValidCategory(c.Category) {
			c.Category = dsm.CategoryOther
		}
		c.Severity = dsm.ParseSeverity(string(c.Severity))
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Code < out[j].Code
	})
	if len(out) > s.cfg.MaxDiagnoses {
		out = out[:s.cfg.MaxDiagnoses]
	}
	return out, nil
}

func (s *Service) recommend(r *run, resp *Response, severity dsm.Severity) []treatment.Recommendation {
	var recs []treatment.Recommendation
	if r.req.WantTreatmentRecommendations && len(resp.Diagnoses) > 0 {
		top := resp.Diagnoses[0].Diagnosis
		recs = s.treatment.Recommend(treatment.Diagnosis{
			Code:        top.Code,
			Name:        top.Name,
			Category:    top.Category,
			Medications: r.req.CurrentMedications,
		}, severity, resp.Cultural.Context(r.req.PreferredLanguage))
	}
	if r.req.WantTreatmentRecommendations || resp.CrisisProtocolActivated {
		recs = append(recs, treatment.CrisisInterventions(resp.Risk)...)
	}
	treatment.SortByPriority(recs)
	return recs
}

func governanceExplanation(exp *inference.Explanation) *governance.Explanation {
	out := &governance.Explanation{Method: exp.Method}
	for _, f := range exp.Features {
		out.Features = append(out.Features, governance.Attribution{Feature: f.Feature, Importance: f.Importance})
	}
	return out
}

func (s *Service) block(ctx context.Context, r *run, d governance.Decision) error {
	err := d.Err()
	code := ""
	if e, ok := apperr.As(err); ok {
		code = e.Code
	}
	var ruleID, ruleType string
	if d.Block != nil {
		ruleID, ruleType = d.Block.RuleID.String(), string(d.Block.RuleType)
	}
	s.metrics.Inc(telemetry.GovernanceBlocksTotal, "rule_type", ruleType)
	s.countResults(r.results)
	s.logger.Warn().
		Str("actor_id", r.actor.ID).
		Str("rule_id", ruleID).
		Str("rule_type", ruleType).
		Msg("assessment blocked by governance")
	if _, aerr := s.record(ctx, r, auditevent.OutcomeBlocked, code, nil); aerr != nil {
		err = s.auditFailed(r, err, aerr)
	}
	s.metrics.Inc(telemetry.AssessmentsTotal, "outcome", string(auditevent.OutcomeBlocked))
	return err
}

func (s *Service) fail(ctx context.Context, r *run, err error) error {
	code := apperr.CodeInternal
	if e, ok := apperr.As(err); ok {
		code = e.Code
	}
	ev := s.logger.Error()
	if apperr.IsKind(err, apperr.KindServiceUnavailable) {
		ev = s.logger.Warn()
	}
	ev.Err(err).Str("actor_id", r.actor.ID).Str("code", code).Msg("assessment failed")
	if _, aerr := s.record(ctx, r, auditevent.OutcomeFailed, code, nil); aerr != nil {
		err = s.auditFailed(r, err, aerr)
	}
	s.metrics.Inc(telemetry.AssessmentsTotal, "outcome", string(auditevent.OutcomeFailed))
	return err
}

// auditFailed logs a failed audit write for a request that is already being
// rejected. The rejection stays the returned error and carries the audit
// failure code as a detail.
func (s *Service) auditFailed(r *run, err, aerr error) error {
	s.logger.Error().Err(aerr).Str("actor_id", r.actor.ID).Msg("audit write failed for rejected assessment")
	if e, ok := apperr.As(err); ok {
		code := apperr.CodeAuditUnavailable
		if ae, ok := apperr.As(aerr); ok {
			code = ae.Code
		}
		e.WithDetail("audit_error", code)
	}
	return err
}

func (s *Service) record(ctx context.Context, r *run, outcome auditevent.Outcome, code string, resp *Response) (*auditevent.Entry, error) {
	details := map[string]any{
		"request":            r.req,
		"governance_results": r.results,
		"outcome":            outcome,
	}
	if code != "" {
		details["error_code"] = code
	}
	if resp != nil {
		details["response"] = resp
	}
	return s.audit.Record(ctx, auditevent.Record{
		Action:         auditevent.ActionAssessmentCreate,
		ActorID:        r.actor.ID,
		ModuleID:       ModuleID,
		ModelID:        r.modelID,
		Outcome:        outcome,
		Details:        details,
		Redact:         governance.RedactFields(r.rules),
		NetworkAddress: r.actor.NetworkAddress,
		UserAgent:      r.actor.UserAgent,
		RequestID:      requestIDFrom(ctx),
	})
}

func (s *Service) countResults(results []governance.Result) {
	for _, res := range results {
		s.metrics.Inc(telemetry.GovernanceResultsTotal, "rule_type", string(res.RuleType), "status", string(res.Status))
	}
}

func (s *Service) activateCrisisProtocol(ctx context.Context, r *run, resp *Response) {
	s.metrics.Inc(telemetry.CrisisActivationsTotal)
	aggregate := ""
	if resp.Risk != nil {
		aggregate = resp.Risk.Aggregate.String()
	}
	s.logger.Warn().
		Str("assessment_id", resp.ID.String()).
		Str("actor_id", r.actor.ID).
		Str("urgency", resp.Urgency.String()).
		Str("risk", aggregate).
		Msg("crisis protocol activated")
	if s.pager == nil {
		return
	}
	n, err := s.pager.Page(notification.CrisisAlert{
		AssessmentID:  resp.ID.String(),
		Urgency:       resp.Urgency.String(),
		AggregateRisk: aggregate,
		ActorID:       r.actor.ID,
		RequestID:     requestIDFrom(ctx),
		At:            resp.Timestamp,
	})
	switch {
	case err != nil:
		s.logger.Error().Err(err).Str("assessment_id", resp.ID.String()).Msg("crisis page not dispatched")
	case n == 0:
		s.logger.Warn().Str("assessment_id", resp.ID.String()).Msg("no crisis page accepted")
	}
}

type requestIDKey struct{}

// WithRequestID returns ctx carrying the request id recorded on audit
// entries.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
