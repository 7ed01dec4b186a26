package governance

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/assessment/internal/platform/db"
	"github.com/ehr/assessment/migrations"
)

func newSQLiteRepo(t *testing.T) *RuleRepoSQLite {
	t.Helper()
	sqlDB, err := db.OpenSQLiteMemory()
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	if _, err := db.NewSQLiteMigrator(sqlDB, migrations.SQLite()).Up(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewRuleRepoSQLite(sqlDB)
}

func savedRule(t *testing.T, repo *RuleRepoSQLite, typ RuleType, active bool, created time.Time, scope ...string) *Rule {
	t.Helper()
	r := newRule(typ, `{}`, scope...)
	r.Active = active
	r.Version = 1
	r.CreatedAt = created
	r.UpdatedAt = created
	if err := repo.SaveRule(context.Background(), r); err != nil {
		t.Fatalf("SaveRule: %v", err)
	}
	return r
}

func TestRuleRepoSQLite_RoundTrip(t *testing.T) {
	repo := newSQLiteRepo(t)
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	r := savedRule(t, repo, RuleTypeAudit, true, created, "assessment")

	got, err := repo.GetRule(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("GetRule: %v", err)
	}
	if got.Name != r.Name || got.Type != RuleTypeAudit || !got.Active {
		t.Errorf("unexpected rule %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, created)
	}
	if len(got.Scope) != 1 || got.Scope[0] != "assessment" {
		t.Errorf("scope = %v", got.Scope)
	}
	if string(got.Config) != "{}" {
		t.Errorf("config = %s", got.Config)
	}
}

func TestRuleRepoSQLite_Upsert(t *testing.T) {
	repo := newSQLiteRepo(t)
	r := savedRule(t, repo, RuleTypeAudit, true, time.Now().UTC())
	r.Version = 2
	r.Active = false
	if err := repo.SaveRule(context.Background(), r); err != nil {
		t.Fatalf("SaveRule: %v", err)
	}
	got, _ := repo.GetRule(context.Background(), r.ID)
	if got.Version != 2 || got.Active {
		t.Errorf("expected updated rule, got %+v", got)
	}
	_, total, _ := repo.ListRules(context.Background(), 10, 0)
	if total != 1 {
		t.Errorf("expected 1 rule, got %d", total)
	}
}

func TestRuleRepoSQLite_ListActiveRules(t *testing.T) {
	repo := newSQLiteRepo(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	global := savedRule(t, repo, RuleTypeAudit, true, base)
	scoped := savedRule(t, repo, RuleTypeCompliance, true, base.Add(time.Second), "assessment")
	savedRule(t, repo, RuleTypeCompliance, true, base.Add(2*time.Second), "triage")
	savedRule(t, repo, RuleTypeBias, false, base.Add(3*time.Second))

	rules, err := repo.ListActiveRules(context.Background(), "assessment")
	if err != nil {
		t.Fatalf("ListActiveRules: %v", err)
	}
	if len(rules) != 2 || rules[0].ID != global.ID || rules[1].ID != scoped.ID {
		t.Errorf("unexpected active rules %+v", rules)
	}
}

func TestRuleRepoSQLite_GetRuleNotFound(t *testing.T) {
	repo := newSQLiteRepo(t)
	_, err := repo.GetRule(context.Background(), uuid.New())
	if !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("expected ErrRuleNotFound, got %v", err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		t.Error("sql.ErrNoRows must not leak")
	}
}
