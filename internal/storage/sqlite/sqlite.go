// Package sqlite registers the "sqlite" storage backend. It is file-based:
// DB_DATABASE is the database path (or ":memory:"), and the network
// connection variables are ignored.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"csvimport/internal/config"
	"csvimport/internal/storage"
)

// Dialect is the SQLite statement dialect. SQLite has no TRUNCATE; an
// unqualified DELETE is optimised to the same effect.
var Dialect = storage.Dialect{
	Name:        "sqlite",
	Placeholder: storage.QuestionMark,
	TruncateSQL: func(table string) string { return "DELETE FROM " + table },
	IsDuplicate: isDuplicate,
}

func init() {
	storage.Register("sqlite", func(ctx context.Context, conn config.Connection) (storage.Store, error) {
		return Open(ctx, conn.Database)
	})
}

// Open opens the database at path.
func Open(ctx context.Context, path string) (*storage.SQLStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite: database path must not be empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	store := storage.NewSQLStore(db, Dialect)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return store, nil
}

func isDuplicate(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
