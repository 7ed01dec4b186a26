package governance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/assessment/internal/platform/db"
)

// RuleRepoSQLite stores rules in an embedded SQLite database. Scope is kept
// as a JSON array and filtered in Go.
type RuleRepoSQLite struct {
	db *sql.DB
}

func NewRuleRepoSQLite(sqlDB *sql.DB) *RuleRepoSQLite {
	return &RuleRepoSQLite{db: sqlDB}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRuleSQLite(row rowScanner) (*Rule, error) {
	var (
		rule              Rule
		id, config, scope string
		active            int
		created, updated  string
	)
	if err := row.Scan(&id, &rule.Name, &rule.Description, &rule.Type, &config,
		&active, &scope, &rule.Version, &created, &updated); err != nil {
		return nil, err
	}
	var err error
	if rule.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse rule id: %w", err)
	}
	rule.Config = json.RawMessage(config)
	rule.Active = active != 0
	if err := json.Unmarshal([]byte(scope), &rule.Scope); err != nil {
		return nil, fmt.Errorf("parse rule scope: %w", err)
	}
	if rule.CreatedAt, err = time.Parse(db.SQLiteTimeFormat, created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if rule.UpdatedAt, err = time.Parse(db.SQLiteTimeFormat, updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &rule, nil
}

func (r *RuleRepoSQLite) query(ctx context.Context, q string, args ...interface{}) ([]*Rule, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Rule
	for rows.Next() {
		rule, err := scanRuleSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (r *RuleRepoSQLite) ListActiveRules(ctx context.Context, module string) ([]*Rule, error) {
	q := fmt.Sprintf("SELECT %s FROM governance_rule WHERE active = 1 ORDER BY created_at, id", ruleCols)
	rules, err := r.query(ctx, q)
	if err != nil {
		return nil, err
	}
	out := rules[:0]
	for _, rule := range rules {
		if rule.AppliesTo(module) {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r *RuleRepoSQLite) ListRules(ctx context.Context, limit, offset int) ([]*Rule, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM governance_rule").Scan(&total); err != nil {
		return nil, 0, err
	}
	q := fmt.Sprintf("SELECT %s FROM governance_rule ORDER BY created_at, id LIMIT ? OFFSET ?", ruleCols)
	rules, err := r.query(ctx, q, limit, offset)
	return rules, total, err
}

func (r *RuleRepoSQLite) GetRule(ctx context.Context, id uuid.UUID) (*Rule, error) {
	q := fmt.Sprintf("SELECT %s FROM governance_rule WHERE id = ?", ruleCols)
	rule, err := scanRuleSQLite(r.db.QueryRowContext(ctx, q, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRuleNotFound
	}
	return rule, err
}

func (r *RuleRepoSQLite) SaveRule(ctx context.Context, rule *Rule) error {
	scope := rule.Scope
	if scope == nil {
		scope = []string{}
	}
	scopeJSON, err := json.Marshal(scope)
	if err != nil {
		return err
	}
	config := string(rule.Config)
	if config == "" {
		config = "{}"
	}
	active := 0
	if rule.Active {
		active = 1
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO governance_rule (id, name, description, rule_type, config, active, scope, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, description = excluded.description, rule_type = excluded.rule_type,
			config = excluded.config, active = excluded.active, scope = excluded.scope,
			version = excluded.version, updated_at = excluded.updated_at`,
		rule.ID.String(), rule.Name, rule.Description, string(rule.Type), config, active,
		string(scopeJSON), rule.Version,
		rule.CreatedAt.UTC().Format(db.SQLiteTimeFormat), rule.UpdatedAt.UTC().Format(db.SQLiteTimeFormat),
	)
	return err
}
