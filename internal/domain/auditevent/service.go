package auditevent

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ehr/assessment/internal/platform/apperr"
)

// Service is the read side of the audit trail.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetAuditEntry(ctx context.Context, id uuid.UUID) (*Entry, error) {
	e, err := s.repo.GetAuditEntry(ctx, id)
	if errors.Is(err, ErrEntryNotFound) {
		return nil, apperr.NotFound("audit entry not found")
	}
	if err != nil {
		return nil, apperr.Internal("get audit entry", err)
	}
	return e, nil
}

func (s *Service) ListAuditEntries(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	items, total, err := s.repo.ListAuditEntries(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, apperr.Internal("list audit entries", err)
	}
	return items, total, nil
}
