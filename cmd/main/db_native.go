//go:build !cgo_sqlite

package main

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

// initDB opens the model store with the pure Go SQLite driver. WAL plus
// a busy timeout lets the serve command train and generate concurrently
// without SQLITE_BUSY errors.
func initDB(dataSource string) (*sql.DB, error) {
	return sql.Open("sqlite", "file:"+dataSource+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
}
