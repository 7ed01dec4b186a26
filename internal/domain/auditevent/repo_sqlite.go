package auditevent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/assessment/internal/platform/db"
)

type AuditEntryRepoSQLite struct {
	db *sql.DB
}

func NewAuditEntryRepoSQLite(sqlDB *sql.DB) *AuditEntryRepoSQLite {
	return &AuditEntryRepoSQLite{db: sqlDB}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntrySQLite(row rowScanner) (*Entry, error) {
	var (
		e                 Entry
		id, details, when string
		actor             sql.NullString
	)
	if err := row.Scan(&id, &e.Action, &actor, &e.ModuleID, &e.ModelID, &e.Outcome, &details,
		&e.NetworkAddress, &e.UserAgent, &e.RequestID, &when); err != nil {
		return nil, err
	}
	var err error
	if e.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse entry id: %w", err)
	}
	if actor.Valid {
		e.ActorID = &actor.String
	}
	e.Details = []byte(details)
	if e.RecordedAt, err = time.Parse(db.SQLiteTimeFormat, when); err != nil {
		return nil, fmt.Errorf("parse recorded_at: %w", err)
	}
	return &e, nil
}

func (r *AuditEntryRepoSQLite) SaveAuditEntry(ctx context.Context, e *Entry) error {
	var actor sql.NullString
	if e.ActorID != nil {
		actor = sql.NullString{String: *e.ActorID, Valid: true}
	}
	details := string(e.Details)
	if details == "" {
		details = "{}"
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_entry (`+auditCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		e.ID.String(), e.Action, actor, e.ModuleID, e.ModelID, string(e.Outcome), details,
		e.NetworkAddress, e.UserAgent, e.RequestID, e.RecordedAt.UTC().Format(db.SQLiteTimeFormat))
	return err
}

func (r *AuditEntryRepoSQLite) GetAuditEntry(ctx context.Context, id uuid.UUID) (*Entry, error) {
	q := fmt.Sprintf("SELECT %s FROM audit_entry WHERE id = ?", auditCols)
	e, err := scanEntrySQLite(r.db.QueryRowContext(ctx, q, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	return e, err
}

func (r *AuditEntryRepoSQLite) ListAuditEntries(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	where := []string{}
	args := []interface{}{}
	for _, cond := range []struct{ col, val string }{
		{"action", f.Action},
		{"module_id", f.ModuleID},
		{"actor_id", f.ActorID},
		{"outcome", f.Outcome},
	} {
		if cond.val != "" {
			where = append(where, cond.col+" = ?")
			args = append(args, cond.val)
		}
	}
	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_entry "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("SELECT %s FROM audit_entry %s ORDER BY recorded_at DESC, id LIMIT ? OFFSET ?", auditCols, whereClause)
	rows, err := r.db.QueryContext(ctx, q, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Entry
	for rows.Next() {
		e, err := scanEntrySQLite(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}
