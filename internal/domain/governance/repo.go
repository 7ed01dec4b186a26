package governance

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	RuleSource
	ListRules(ctx context.Context, limit, offset int) ([]*Rule, int, error)
	GetRule(ctx context.Context, id uuid.UUID) (*Rule, error)
	SaveRule(ctx context.Context, r *Rule) error
}
