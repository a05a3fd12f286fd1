//go:build cgo_sqlite

package main

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// initDB opens the model store with the cgo SQLite driver. Same pragmas
// as the native build, spelled in this driver's DSN syntax.
func initDB(dataSource string) (*sql.DB, error) {
	return sql.Open("sqlite3", "file:"+dataSource+"?_journal_mode=WAL&_busy_timeout=5000")
}
