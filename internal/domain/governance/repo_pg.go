package governance

import (
	"context"
	"errors"
	"fmt"

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

type RuleRepoPG struct {
	pool *pgxpool.Pool
}

func NewRuleRepoPG(pool *pgxpool.Pool) *RuleRepoPG {
	return &RuleRepoPG{pool: pool}
}

func (r *RuleRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const ruleCols = `id, name, description, rule_type, config, active, scope, version, created_at, updated_at`

func scanRule(row pgx.Row) (*Rule, error) {
	var rule Rule
	var config []byte
	err := row.Scan(&rule.ID, &rule.Name, &rule.Description, &rule.Type, &config,
		&rule.Active, &rule.Scope, &rule.Version, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rule.Config = config
	return &rule, nil
}

func (r *RuleRepoPG) ListActiveRules(ctx context.Context, module string) ([]*Rule, error) {
	q := fmt.Sprintf(`SELECT %s FROM governance_rule
		WHERE active AND (cardinality(scope) = 0 OR $1 = ANY(scope))
		ORDER BY created_at, id`, ruleCols)
	rows, err := r.conn(ctx).Query(ctx, q, module)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (r *RuleRepoPG) ListRules(ctx context.Context, limit, offset int) ([]*Rule, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, "SELECT COUNT(*) FROM governance_rule").Scan(&total); err != nil {
		return nil, 0, err
	}
	q := fmt.Sprintf("SELECT %s FROM governance_rule ORDER BY created_at, id LIMIT $1 OFFSET $2", ruleCols)
	rows, err := r.conn(ctx).Query(ctx, q, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rule)
	}
	return out, total, rows.Err()
}

func (r *RuleRepoPG) GetRule(ctx context.Context, id uuid.UUID) (*Rule, error) {
	q := fmt.Sprintf("SELECT %s FROM governance_rule WHERE id = $1", ruleCols)
	rule, err := scanRule(r.conn(ctx).QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRuleNotFound
	}
	return rule, err
}

func (r *RuleRepoPG) SaveRule(ctx context.Context, rule *Rule) error {
	scope := rule.Scope
	if scope == nil {
		scope = []string{}
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO governance_rule (id, name, description, rule_type, config, active, scope, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, description = EXCLUDED.description, rule_type = EXCLUDED.rule_type,
			config = EXCLUDED.config, active = EXCLUDED.active, scope = EXCLUDED.scope,
			version = EXCLUDED.version, updated_at = EXCLUDED.updated_at`,
		rule.ID, rule.Name, rule.Description, string(rule.Type), []byte(rule.Config),
		rule.Active, scope, rule.Version, rule.CreatedAt, rule.UpdatedAt,
	)
	return err
}
