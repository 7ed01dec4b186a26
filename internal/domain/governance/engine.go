package governance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/assessment/internal/platform/apperr"
)

// Decision is the aggregate result of one evaluation pass.
type Decision struct {
	Results []Result
	Blocked bool
	Block   *BlockDetails
}

// BlockDetails identifies the rule that blocked a call.
type BlockDetails struct {
	RuleID    uuid.UUID `json:"rule_id"`
	RuleName  string    `json:"rule_name"`
	RuleType  RuleType  `json:"rule_type"`
	Reason    string    `json:"reason"`
	Score     *float64  `json:"score,omitempty"`
	Threshold *float64  `json:"threshold,omitempty"`
}

// Err converts a blocked decision into the matching governance error, or
// returns nil.
func (d Decision) Err() error {
	if !d.Blocked || d.Block == nil {
		return nil
	}
	b := d.Block
	var e *apperr.Error
	switch b.RuleType {
	case RuleTypeBias:
		e = apperr.BiasViolation(b.Reason)
	case RuleTypeCompliance:
		e = apperr.ComplianceViolation(b.Reason)
	case RuleTypeExplainability:
		e = apperr.ExplanationRequired(b.Reason)
	default:
		e = apperr.ComplianceViolation(b.Reason)
	}
	e.WithDetail("rule_id", b.RuleID.String()).WithDetail("rule_name", b.RuleName)
	if b.Threshold != nil {
		e.WithDetail("threshold", *b.Threshold)
	}
	if b.Score != nil {
		e.WithDetail("score", *b.Score)
	}
	return e
}

// Engine runs registered evaluators over active rules. Rule types are looked
// up in a registry, so adding a type needs only a new Evaluator.
type Engine struct {
	logger     zerolog.Logger
	evaluators map[RuleType]Evaluator
	order      []RuleType
	predicates *predicates
	now        func() time.Time
}

// NewEngine returns an engine with the built-in evaluators registered.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	p, err := newPredicates()
	if err != nil {
		return nil, err
	}
	e := &Engine{
		logger:     logger,
		evaluators: make(map[RuleType]Evaluator),
		predicates: p,
		now:        time.Now,
	}
	e.Register(complianceEvaluator{})
	e.Register(explainabilityEvaluator{})
	e.Register(auditEvaluator{})
	e.Register(biasEvaluator{})
	return e, nil
}

// Register adds or replaces the evaluator for its rule type.
func (e *Engine) Register(ev Evaluator) {
	if _, ok := e.evaluators[ev.Type()]; !ok {
		e.order = append(e.order, ev.Type())
	}
	e.evaluators[ev.Type()] = ev
}

// Evaluator returns the evaluator registered for t.
func (e *Engine) Evaluator(t RuleType) (Evaluator, bool) {
	ev, ok := e.evaluators[t]
	return ev, ok
}

// CheckExplainability evaluates the explainability rules in rules.
func (e *Engine) CheckExplainability(ctx context.Context, rules []*Rule, in *Input) Decision {
	return e.check(ctx, rules, in, func(t RuleType) bool { return t == RuleTypeExplainability })
}

// CheckCompliance evaluates the compliance rules in rules.
func (e *Engine) CheckCompliance(ctx context.Context, rules []*Rule, in *Input) Decision {
	return e.check(ctx, rules, in, func(t RuleType) bool { return t == RuleTypeCompliance })
}

// CheckBias evaluates the bias rules in rules.
func (e *Engine) CheckBias(ctx context.Context, rules []*Rule, in *Input) Decision {
	return e.check(ctx, rules, in, func(t RuleType) bool { return t == RuleTypeBias })
}

// PreCall evaluates every rule type registered for the pre-call phase.
func (e *Engine) PreCall(ctx context.Context, rules []*Rule, in *Input) Decision {
	return e.check(ctx, rules, in, e.inPhase(PhasePreCall))
}

// PostCall evaluates every rule type registered for the post-call phase.
func (e *Engine) PostCall(ctx context.Context, rules []*Rule, in *Input) Decision {
	return e.check(ctx, rules, in, e.inPhase(PhasePostCall))
}

func (e *Engine) inPhase(p Phase) func(RuleType) bool {
	return func(t RuleType) bool {
		ev, ok := e.evaluators[t]
		return ok && ev.Phase() == p
	}
}

// NeedsAttribution reports whether a bias rule in rules will measure
// attribution for in, so the caller must fetch an explanation.
func (e *Engine) NeedsAttribution(rules []*Rule, in *Input) bool {
	for _, r := range rules {
		if !r.Active || r.Type != RuleTypeBias {
			continue
		}
		var cfg BiasConfig
		if err := decodeConfig(r.Config, &cfg); err != nil {
			continue
		}
		if _, ok := in.Attribute(cfg.ProtectedAttribute); !ok {
			continue
		}
		if e.applies(r, cfg.When, in) {
			return true
		}
	}
	return false
}

// check evaluates rules whose type passes want, in registry order and then
// in the given rule order. The first blocking rule is reported.
func (e *Engine) check(ctx context.Context, rules []*Rule, in *Input, want func(RuleType) bool) Decision {
	var d Decision
	for _, t := range e.order {
		if !want(t) {
			continue
		}
		ev := e.evaluators[t]
		for _, r := range rules {
			if r.Type != t || !r.Active || !r.AppliesTo(in.Module) {
				continue
			}
			res, block := e.evaluate(ctx, ev, r, in)
			if res == nil {
				continue
			}
			d.Results = append(d.Results, *res)
			if block && !d.Blocked {
				d.Blocked = true
				d.Block = &BlockDetails{
					RuleID:    r.ID,
					RuleName:  r.Name,
					RuleType:  r.Type,
					Reason:    res.Details,
					Score:     res.Score,
					Threshold: res.Threshold,
				}
			}
		}
	}
	return d
}

func (e *Engine) evaluate(ctx context.Context, ev Evaluator, r *Rule, in *Input) (*Result, bool) {
	var h header
	_ = decodeLenient(r.Config, &h)
	if !e.applies(r, h.When, in) {
		return nil, false
	}
	out, err := ev.Evaluate(ctx, r, in)
	if err != nil {
		e.logger.Error().Err(err).Str("rule_id", r.ID.String()).Msg("governance rule evaluation failed")
		return &Result{
			RuleID:    r.ID,
			RuleName:  r.Name,
			RuleType:  r.Type,
			Status:    StatusWarning,
			Details:   fmt.Sprintf("rule could not be evaluated: %v", err),
			Impact:    ImpactMedium,
			Timestamp: e.now().UTC(),
		}, false
	}
	if out == nil {
		return nil, false
	}
	return &Result{
		RuleID:    r.ID,
		RuleName:  r.Name,
		RuleType:  r.Type,
		Status:    out.Status,
		Details:   out.Details,
		Impact:    out.Impact,
		Score:     out.Score,
		Threshold: out.Threshold,
		Timestamp: e.now().UTC(),
	}, out.Block
}

// applies evaluates a rule's when predicate. A predicate that fails to
// evaluate counts as true so the rule is still enforced.
func (e *Engine) applies(r *Rule, when string, in *Input) bool {
	if when == "" {
		return true
	}
	ok, err := e.predicates.eval(when, in.celVars())
	if err != nil {
		e.logger.Warn().Err(err).Str("rule_id", r.ID.String()).Msg("rule predicate failed; enforcing rule")
		return true
	}
	return ok
}
