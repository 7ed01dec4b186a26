// Package migrations embeds the SQL schema for each supported store.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// Postgres returns the PostgreSQL migrations.
func Postgres() fs.FS {
	return sub("postgres")
}

// SQLite returns the SQLite migrations.
func SQLite() fs.FS {
	return sub("sqlite")
}

func sub(dir string) fs.FS {
	f, err := fs.Sub(files, dir)
	if err != nil {
		panic(err)
	}
	return f
}
