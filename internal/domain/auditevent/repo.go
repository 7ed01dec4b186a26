package auditevent

import (
	"context"

	"github.com/google/uuid"
)

// Repository is append-only: there is no update or delete.
type Repository interface {
	SaveAuditEntry(ctx context.Context, e *Entry) error
	GetAuditEntry(ctx context.Context, id uuid.UUID) (*Entry, error)
	ListAuditEntries(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error)
}
