// Package postgres registers the "postgres" storage backend on a single
// pgx connection. Inserts are queued into one pgx.Batch inside a
// transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"csvimport/internal/config"
	"csvimport/internal/sqlident"
	"csvimport/internal/storage"
)

// uniqueViolation is the SQLSTATE for duplicate keys.
const uniqueViolation = "23505"

// Store is a storage.Store over one *pgx.Conn.
type Store struct {
	conn *pgx.Conn
}

var _ storage.Store = (*Store)(nil)

func init() {
	storage.Register("postgres", func(ctx context.Context, conn config.Connection) (storage.Store, error) {
		return Open(ctx, conn)
	})
}

// ConnString renders a postgres:// URL for conn.
func ConnString(conn config.Connection) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(conn.User, conn.Password),
		Host:   net.JoinHostPort(conn.Host, strconv.Itoa(conn.Port)),
		Path:   "/" + conn.Database,
	}
	return u.String()
}

// Open connects and pings.
func Open(ctx context.Context, conn config.Connection) (*Store, error) {
	c, err := pgx.Connect(ctx, ConnString(conn))
	if err != nil {
		return nil, fmt.Errorf("postgres: connect %s: %w", conn, err)
	}
	if err := c.Ping(ctx); err != nil {
		_ = c.Close(ctx)
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{conn: c}, nil
}

// Close closes the connection.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.conn.Close(ctx)
}

// Truncate empties table.
func (s *Store) Truncate(ctx context.Context, table string) error {
	if !sqlident.ValidQualified(table) {
		return fmt.Errorf("postgres: truncate: unsafe table name %q", table)
	}
	if _, err := s.conn.Exec(ctx, "TRUNCATE TABLE "+table); err != nil {
		return fmt.Errorf("postgres: truncate %s: %w", table, err)
	}
	return nil
}

// DeleteRange deletes lower <= column < upper in its own transaction.
func (s *Store) DeleteRange(ctx context.Context, table, column string, lower, upper time.Time) (int64, error) {
	if !sqlident.ValidQualified(table) || !sqlident.Valid(column) {
		return 0, fmt.Errorf("postgres: delete: unsafe identifier %q.%q", table, column)
	}
	q := fmt.Sprintf("DELETE FROM %s WHERE %s >= $1 AND %s < $2", table, column, column)

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin tx: %w", err)
	}
	tag, err := tx.Exec(ctx, q, lower, upper)
	if err != nil {
		_ = tx.Rollback(ctx)
		return 0, fmt.Errorf("postgres: delete: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit: %w", err)
	}
	return tag.RowsAffected(), nil
}

// InsertStatement renders the per-row INSERT with $n placeholders.
func (s *Store) InsertStatement(table string, columns []string) string {
	ph := make([]string, len(columns))
	for i := range ph {
		ph[i] = "$" + strconv.Itoa(i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(ph, ", "))
}

// InsertBatch sends every row in one batch inside a transaction.
func (s *Store) InsertBatch(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("postgres: insert: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if !sqlident.ValidQualified(table) {
		return 0, fmt.Errorf("postgres: insert: unsafe table name %q", table)
	}
	for _, c := range columns {
		if !sqlident.Valid(c) {
			return 0, fmt.Errorf("postgres: insert: unsafe column name %q", c)
		}
	}

	stmt := s.InsertStatement(table, columns)
	b := &pgx.Batch{}
	for i, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("postgres: insert: row %d has %d values for %d columns", i, len(row), len(columns))
		}
		b.Queue(stmt, row...)
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin tx: %w", err)
	}
	br := tx.SendBatch(ctx, b)
	var inserted int64
	for i := range rows {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			_ = tx.Rollback(ctx)
			return 0, classify(fmt.Errorf("postgres: insert row %d: %w", i+1, err))
		}
		inserted += tag.RowsAffected()
	}
	if err := br.Close(); err != nil {
		_ = tx.Rollback(ctx)
		return 0, classify(fmt.Errorf("postgres: batch close: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, classify(fmt.Errorf("postgres: commit: %w", err))
	}
	return inserted, nil
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return storage.MarkDuplicate(err)
	}
	return err
}
