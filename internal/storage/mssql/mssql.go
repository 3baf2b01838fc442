// Package mssql registers the "mssql" storage backend. Inserts use the
// go-mssqldb bulk copy API inside a transaction.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"csvimport/internal/config"
	"csvimport/internal/storage"
)

// Unique index / primary key violation numbers.
const (
	errUniqueConstraint = 2627
	errUniqueIndex      = 2601
)

// Dialect is the SQL Server statement dialect.
var Dialect = storage.Dialect{
	Name:          "mssql",
	Placeholder:   func(n int) string { return "@p" + strconv.Itoa(n) },
	TruncateSQL:   storage.TruncateTable,
	Bulk:          bulkCopy,
	BulkStatement: bulkStatement,
	IsDuplicate:   isDuplicate,
}

func init() {
	storage.Register("mssql", Open)
}

// DSN renders a sqlserver:// URL for conn.
func DSN(conn config.Connection) string {
	q := url.Values{}
	q.Set("database", conn.Database)
	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(conn.User, conn.Password),
		Host:     net.JoinHostPort(conn.Host, strconv.Itoa(conn.Port)),
		RawQuery: q.Encode(),
	}
	return u.String()
}

// Open validates the DSN, connects and pings.
func Open(ctx context.Context, conn config.Connection) (storage.Store, error) {
	dsn := DSN(conn)
	if _, err := msdsn.Parse(dsn); err != nil {
		return nil, fmt.Errorf("mssql: dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("mssql: open: %w", err)
	}
	store := storage.NewSQLStore(db, Dialect)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mssql: ping %s: %w", conn, err)
	}
	return store, nil
}

func bulkCopy(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) (int64, error) {
	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(table, mssql.BulkOptions{}, columns...))
	if err != nil {
		return 0, fmt.Errorf("mssql: prepare bulk copy: %w", err)
	}
	for i, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = stmt.Close()
			return 0, fmt.Errorf("mssql: bulk row %d: %w", i+1, err)
		}
	}
	res, err := stmt.ExecContext(ctx) // flush
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("mssql: bulk finalize: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return int64(len(rows)), nil
	}
	return n, nil
}

func isDuplicate(err error) bool {
	var me mssql.Error
	if !errors.As(err, &me) {
		return false
	}
	return me.Number == errUniqueConstraint || me.Number == errUniqueIndex
}

// bulkStatement is how the copy is rendered in diagnostics.
func bulkStatement(table string, columns []string) string {
	return fmt.Sprintf("INSERT BULK %s (%s)", table, strings.Join(columns, ", "))
}
