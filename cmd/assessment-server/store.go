package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/assessment/internal/config"
	"github.com/ehr/assessment/internal/domain/assessment"
	"github.com/ehr/assessment/internal/domain/auditevent"
	"github.com/ehr/assessment/internal/domain/governance"
	"github.com/ehr/assessment/internal/platform/db"
	"github.com/ehr/assessment/migrations"
)

// store bundles the repositories of the configured backend.
type store struct {
	driver      string
	pool        *pgxpool.Pool
	sqlDB       *sql.DB
	rules       governance.Repository
	audit       auditevent.Repository
	assessments assessment.Repository
	checker     db.Checker
	migrator    *db.Migrator
}

func openStore(ctx context.Context, cfg *config.Config) (*store, error) {
	switch cfg.StoreDriver {
	case config.StoreSQLite:
		sqlDB, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &store{
			driver:      config.StoreSQLite,
			sqlDB:       sqlDB,
			rules:       governance.NewRuleRepoSQLite(sqlDB),
			audit:       auditevent.NewAuditEntryRepoSQLite(sqlDB),
			assessments: assessment.NewAssessmentRepoSQLite(sqlDB),
			checker:     db.SQLChecker(sqlDB),
			migrator:    db.NewSQLiteMigrator(sqlDB, migrations.SQLite()),
		}, nil
	case config.StorePostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		return &store{
			driver:      config.StorePostgres,
			pool:        pool,
			rules:       governance.NewRuleRepoPG(pool),
			audit:       auditevent.NewAuditEntryRepoPG(pool),
			assessments: assessment.NewAssessmentRepoPG(pool),
			checker:     db.PGChecker(pool),
			migrator:    db.NewMigrator(pool, migrations.Postgres()),
		}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func (s *store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.sqlDB != nil {
		s.sqlDB.Close()
	}
}
