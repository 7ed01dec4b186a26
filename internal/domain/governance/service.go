package governance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/assessment/internal/platform/apperr"
)

// ChangeNotifier is told about every rule write so peers can drop their
// caches.
type ChangeNotifier interface {
	RuleChanged(ctx context.Context, ruleID uuid.UUID) error
}

// Service administers governance rules and serves the active rule set.
type Service struct {
	repo     Repository
	engine   *Engine
	cache    *RuleCache
	notifier ChangeNotifier
	logger   zerolog.Logger
	locks    ruleLocks
	now      func() time.Time
}

func NewService(repo Repository, engine *Engine, cache *RuleCache, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		engine: engine,
		cache:  cache,
		logger: logger,
		locks:  ruleLocks{m: make(map[uuid.UUID]*ruleLock)},
		now:    time.Now,
	}
}

// SetNotifier attaches an optional change notifier.
func (s *Service) SetNotifier(n ChangeNotifier) {
	s.notifier = n
}

// Engine returns the rule engine used for validation.
func (s *Service) Engine() *Engine {
	return s.engine
}

// ActiveRules returns the cached active rules in scope for module.
func (s *Service) ActiveRules(ctx context.Context, module string) ([]*Rule, error) {
	return s.cache.Rules(ctx, module)
}

// ValidateRule checks the rule's shape and its type-specific config.
func (s *Service) ValidateRule(r *Rule) error {
	if strings.TrimSpace(r.Name) == "" {
		return apperr.Validation(apperr.CodeInvalidField, "name is required").WithDetail("field", "name")
	}
	ev, ok := s.engine.Evaluator(r.Type)
	if !ok {
		return apperr.Validation(apperr.CodeInvalidField, fmt.Sprintf("unknown rule type %q", r.Type)).
			WithDetail("field", "type")
	}
	for _, m := range r.Scope {
		if strings.TrimSpace(m) == "" {
			return apperr.Validation(apperr.CodeInvalidField, "scope entries must not be empty").
				WithDetail("field", "scope")
		}
	}
	if err := ev.Validate(r); err != nil {
		return apperr.Validation(apperr.CodeInvalidField, err.Error()).WithDetail("field", "config")
	}
	return nil
}

func (s *Service) CreateRule(ctx context.Context, r *Rule) error {
	if err := s.ValidateRule(r); err != nil {
		return err
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if len(r.Config) == 0 {
		r.Config = []byte("{}")
	}
	now := s.now().UTC()
	r.Version = 1
	r.CreatedAt = now
	r.UpdatedAt = now

	unlock := s.locks.lock(r.ID)
	defer unlock()
	if err := s.repo.SaveRule(ctx, r); err != nil {
		return fmt.Errorf("save governance rule: %w", err)
	}
	s.changed(ctx, r)
	return nil
}

// UpdateRule replaces the rule's definition and bumps its version. Writes
// to the same rule are serialized.
func (s *Service) UpdateRule(ctx context.Context, r *Rule) error {
	if err := s.ValidateRule(r); err != nil {
		return err
	}
	unlock := s.locks.lock(r.ID)
	defer unlock()

	existing, err := s.GetRule(ctx, r.ID)
	if err != nil {
		return err
	}
	if len(r.Config) == 0 {
		r.Config = []byte("{}")
	}
	r.Version = existing.Version + 1
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = s.now().UTC()
	if err := s.repo.SaveRule(ctx, r); err != nil {
		return fmt.Errorf("save governance rule: %w", err)
	}
	s.changed(ctx, r)
	return nil
}

func (s *Service) GetRule(ctx context.Context, id uuid.UUID) (*Rule, error) {
	r, err := s.repo.GetRule(ctx, id)
	if errors.Is(err, ErrRuleNotFound) {
		return nil, apperr.NotFound("governance rule not found").WithDetail("rule_id", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("get governance rule: %w", err)
	}
	return r, nil
}

func (s *Service) ListRules(ctx context.Context, limit, offset int) ([]*Rule, int, error) {
	return s.repo.ListRules(ctx, limit, offset)
}

func (s *Service) changed(ctx context.Context, r *Rule) {
	s.cache.Invalidate()
	s.logger.Info().Str("rule_id", r.ID.String()).Str("rule_type", string(r.Type)).
		Int("version", r.Version).Bool("active", r.Active).Msg("governance rule saved")
	if s.notifier == nil {
		return
	}
	if err := s.notifier.RuleChanged(ctx, r.ID); err != nil {
		s.logger.Warn().Err(err).Str("rule_id", r.ID.String()).Msg("rule change broadcast failed")
	}
}

// ruleLocks hands out one mutex per rule id, freed when unused.
type ruleLocks struct {
	mu sync.Mutex
	m  map[uuid.UUID]*ruleLock
}

type ruleLock struct {
	mu   sync.Mutex
	refs int
}

func (l *ruleLocks) lock(id uuid.UUID) func() {
	l.mu.Lock()
	rl, ok := l.m[id]
	if !ok {
		rl = &ruleLock{}
		l.m[id] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.m, id)
		}
		l.mu.Unlock()
	}
}
