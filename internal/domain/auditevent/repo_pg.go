package auditevent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/assessment/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type AuditEntryRepoPG struct {
	pool *pgxpool.Pool
}

func NewAuditEntryRepoPG(pool *pgxpool.Pool) *AuditEntryRepoPG {
	return &AuditEntryRepoPG{pool: pool}
}

func (r *AuditEntryRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const auditCols = `id, action, actor_id, module_id, model_id, outcome, details,
	network_address, user_agent, request_id, recorded_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var details []byte
	err := row.Scan(&e.ID, &e.Action, &e.ActorID, &e.ModuleID, &e.ModelID, &e.Outcome, &details,
		&e.NetworkAddress, &e.UserAgent, &e.RequestID, &e.RecordedAt)
	if err != nil {
		return nil, err
	}
	e.Details = details
	return &e, nil
}

func (r *AuditEntryRepoPG) SaveAuditEntry(ctx context.Context, e *Entry) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO audit_entry (`+auditCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.Action, e.ActorID, e.ModuleID, e.ModelID, string(e.Outcome), []byte(e.Details),
		e.NetworkAddress, e.UserAgent, e.RequestID, e.RecordedAt)
	return err
}

func (r *AuditEntryRepoPG) GetAuditEntry(ctx context.Context, id uuid.UUID) (*Entry, error) {
	q := fmt.Sprintf("SELECT %s FROM audit_entry WHERE id = $1", auditCols)
	e, err := scanEntry(r.conn(ctx).QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	return e, err
}

func (r *AuditEntryRepoPG) ListAuditEntries(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	where := []string{}
	args := []interface{}{}
	idx := 1

	for _, cond := range []struct{ col, val string }{
		{"action", f.Action},
		{"module_id", f.ModuleID},
		{"actor_id", f.ActorID},
		{"outcome", f.Outcome},
	} {
		if cond.val == "" {
			continue
		}
		where = append(where, fmt.Sprintf("%s = $%d", cond.col, idx))
		args = append(args, cond.val)
		idx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQ := fmt.Sprintf("SELECT COUNT(*) FROM audit_entry %s", whereClause)
	if err := r.conn(ctx).QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("SELECT %s FROM audit_entry %s ORDER BY recorded_at DESC, id LIMIT $%d OFFSET $%d",
		auditCols, whereClause, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}
