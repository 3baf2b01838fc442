// Package storage contains the destination contract shared by every backend
// and the factory that selects one by kind.
//
// Backends (mysql, postgres, mssql, sqlite) register a Factory from their
// init functions; importing csvimport/internal/storage/all enables them all.
// The rest of the program depends only on Store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"csvimport/internal/config"
)

// Store is one session to the destination database. Every mutating call
// commits before returning, or rolls back and returns an error.
type Store interface {
	// Truncate removes every row from table.
	Truncate(ctx context.Context, table string) error

	// DeleteRange removes rows of table whose column value v satisfies
	// lower <= v < upper and returns the number of rows removed. Only the
	// bounds are bound as parameters; table and column are interpolated.
	DeleteRange(ctx context.Context, table, column string, lower, upper time.Time) (int64, error)

	// InsertBatch inserts all rows in a single transaction. Each row is
	// aligned to columns. On error nothing from the batch persists.
	InsertBatch(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)

	// InsertStatement renders the per-row insert statement, for diagnostics.
	InsertStatement(table string, columns []string) string

	// Close releases the session.
	Close() error
}

// Factory opens a Store for a connection.
type Factory func(ctx context.Context, conn config.Connection) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the factory for kind.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// Kinds lists registered backend kinds in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ErrUnsupportedKind is returned by Open for unregistered kinds.
var ErrUnsupportedKind = errors.New("unsupported storage kind")

// Open constructs the Store registered for conn.Kind.
func Open(ctx context.Context, conn config.Connection) (Store, error) {
	mu.RLock()
	f, ok := factories[conn.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (registered: %v)", ErrUnsupportedKind, conn.Kind, Kinds())
	}
	return f(ctx, conn)
}

// ErrDuplicateKey marks errors caused by a unique or primary key violation.
var ErrDuplicateKey = errors.New("duplicate key")

type duplicateKeyError struct{ err error }

func (e duplicateKeyError) Error() string   { return e.err.Error() }
func (e duplicateKeyError) Unwrap() []error { return []error{ErrDuplicateKey, e.err} }

// MarkDuplicate wraps err so that IsDuplicateKey reports true while the
// driver error stays reachable through errors.As.
func MarkDuplicate(err error) error {
	if err == nil {
		return nil
	}
	return duplicateKeyError{err: err}
}

// IsDuplicateKey reports whether err is a unique/primary key violation.
func IsDuplicateKey(err error) bool { return errors.Is(err, ErrDuplicateKey) }
