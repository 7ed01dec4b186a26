package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteTimeFormat stores timestamps as fixed-width UTC text so they sort
// lexically.
const SQLiteTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// OpenSQLite creates or opens a SQLite database at path.
func OpenSQLite(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return sqlDB, nil
}

// OpenSQLiteMemory opens a private in-memory database. It is limited to one
// connection because every connection would otherwise see its own database.
func OpenSQLiteMemory() (*sql.DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return sqlDB, nil
}
