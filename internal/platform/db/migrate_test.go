package db

import (
	"context"
	"testing"
	"testing/fstest"
)

func TestLoadMigrations_SortOrder(t *testing.T) {
	fsys := fstest.MapFS{
		"010_tables.sql": {Data: []byte("SELECT 10;")},
		"002_second.sql": {Data: []byte("SELECT 2;")},
		"001_first.sql":  {Data: []byte("SELECT 1;")},
		"005_middle.sql": {Data: []byte("SELECT 5;")},
	}

	migrations, err := NewMigrator(nil, fsys).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 4 {
		t.Fatalf("expected 4 migrations, got %d", len(migrations))
	}
	expectedVersions := []int{1, 2, 5, 10}
	for i, expected := range expectedVersions {
		if migrations[i].Version != expected {
			t.Errorf("migration[%d]: expected version %d, got %d", i, expected, migrations[i].Version)
		}
	}
	if migrations[0].Name != "001_first.sql" || migrations[0].SQL != "SELECT 1;" {
		t.Errorf("unexpected first migration %+v", migrations[0])
	}
}

func TestLoadMigrations_InvalidFilename(t *testing.T) {
	fsys := fstest.MapFS{
		"001_valid.sql":      {Data: []byte("SELECT 1;")},
		"readme.sql":         {Data: []byte("-- no version prefix")},
		"notes.txt":          {Data: []byte("not a sql file")},
		"abc_invalid.sql":    {Data: []byte("-- non-numeric prefix")},
		"002_also_valid.sql": {Data: []byte("SELECT 2;")},
	}

	migrations, err := NewMigrator(nil, fsys).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 valid migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[1].Version != 2 {
		t.Errorf("unexpected versions %d, %d", migrations[0].Version, migrations[1].Version)
	}
}

func TestLoadMigrations_Empty(t *testing.T) {
	migrations, err := NewMigrator(nil, fstest.MapFS{}).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("expected 0 migrations, got %d", len(migrations))
	}
}

func TestSQLiteMigrator_UpAndStatus(t *testing.T) {
	sqlDB, err := OpenSQLiteMemory()
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer sqlDB.Close()

	fsys := fstest.MapFS{
		"001_core.sql":  {Data: []byte("CREATE TABLE a (id TEXT PRIMARY KEY); CREATE TABLE b (id TEXT PRIMARY KEY);")},
		"002_extra.sql": {Data: []byte("ALTER TABLE a ADD COLUMN name TEXT;")},
	}
	m := NewSQLiteMigrator(sqlDB, fsys)
	ctx := context.Background()

	n, err := m.Up(ctx)
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 applied, got %d", n)
	}

	n, err = m.Up(ctx)
	if err != nil {
		t.Fatalf("second Up: %v", err)
	}
	if n != 0 {
		t.Errorf("expected second Up to apply nothing, got %d", n)
	}

	statuses, err := m.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	for _, s := range statuses {
		if !s.Applied || s.AppliedAt == nil {
			t.Errorf("expected %s to be applied", s.Name)
		}
	}
}

func TestSQLiteMigrator_FailedMigrationRollsBack(t *testing.T) {
	sqlDB, err := OpenSQLiteMemory()
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer sqlDB.Close()

	fsys := fstest.MapFS{
		"001_ok.sql":  {Data: []byte("CREATE TABLE a (id TEXT PRIMARY KEY);")},
		"002_bad.sql": {Data: []byte("CREATE TABLE broken (")},
	}
	m := NewSQLiteMigrator(sqlDB, fsys)
	n, err := m.Up(context.Background())
	if err == nil {
		t.Fatal("expected error from broken migration")
	}
	if n != 1 {
		t.Errorf("expected 1 migration applied before failure, got %d", n)
	}
	statuses, err := m.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if statuses[1].Applied {
		t.Error("failed migration must not be recorded")
	}
}
