package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"csvimport/internal/sqlident"
)

// BulkFunc inserts rows using a backend-specific bulk primitive inside tx.
type BulkFunc func(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) (int64, error)

// Dialect captures the statement differences between database/sql backends.
type Dialect struct {
	// Name prefixes error messages, e.g. "mysql".
	Name string

	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string

	// TruncateSQL renders the statement that empties a table.
	TruncateSQL func(table string) string

	// MaxParams, when > 0, enables multi-row INSERT ... VALUES (...),(...)
	// statements holding at most MaxParams bind parameters each. When 0,
	// rows are inserted one by one through a prepared statement.
	MaxParams int

	// Bulk, when set, replaces the INSERT path entirely. BulkStatement
	// then renders what InsertStatement reports.
	Bulk          BulkFunc
	BulkStatement func(table string, columns []string) string

	// IsDuplicate classifies driver errors as key violations.
	IsDuplicate func(err error) bool
}

// QuestionMark is the "?" placeholder style (MySQL, SQLite).
func QuestionMark(int) string { return "?" }

// TruncateTable renders "TRUNCATE TABLE <table>".
func TruncateTable(table string) string { return "TRUNCATE TABLE " + table }

// SQLStore implements Store over database/sql with a single connection so
// that every statement of the run shares one session.
type SQLStore struct {
	db *sql.DB
	d  Dialect
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore wraps db. The pool is capped at one connection.
func NewSQLStore(db *sql.DB, d Dialect) *SQLStore {
	if db != nil {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	if d.Placeholder == nil {
		d.Placeholder = QuestionMark
	}
	if d.TruncateSQL == nil {
		d.TruncateSQL = TruncateTable
	}
	return &SQLStore{db: db, d: d}
}

// DB exposes the underlying handle (used by tests and DDL helpers).
func (s *SQLStore) DB() *sql.DB { return s.db }

// Close closes the connection.
func (s *SQLStore) Close() error { return s.db.Close() }

// Truncate empties table and commits.
func (s *SQLStore) Truncate(ctx context.Context, table string) error {
	if !sqlident.ValidQualified(table) {
		return fmt.Errorf("%s: truncate: unsafe table name %q", s.d.Name, table)
	}
	if _, err := s.db.ExecContext(ctx, s.d.TruncateSQL(table)); err != nil {
		return fmt.Errorf("%s: truncate %s: %w", s.d.Name, table, err)
	}
	return nil
}

// DeleteRange deletes lower <= column < upper in its own transaction.
func (s *SQLStore) DeleteRange(ctx context.Context, table, column string, lower, upper time.Time) (int64, error) {
	if !sqlident.ValidQualified(table) || !sqlident.Valid(column) {
		return 0, fmt.Errorf("%s: delete: unsafe identifier %q.%q", s.d.Name, table, column)
	}
	q := fmt.Sprintf("DELETE FROM %s WHERE %s >= %s AND %s < %s",
		table, column, s.d.Placeholder(1), column, s.d.Placeholder(2))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: begin tx: %w", s.d.Name, err)
	}
	res, err := tx.ExecContext(ctx, q, lower, upper)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("%s: delete: %w", s.d.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: commit: %w", s.d.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// InsertStatement renders the per-row INSERT.
func (s *SQLStore) InsertStatement(table string, columns []string) string {
	if s.d.Bulk != nil && s.d.BulkStatement != nil {
		return s.d.BulkStatement(table, columns)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		table, strings.Join(columns, ", "), s.valuesGroup(len(columns), 0))
}

func (s *SQLStore) valuesGroup(n, offset int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = s.d.Placeholder(offset + i + 1)
	}
	return "(" + strings.Join(ph, ", ") + ")"
}

// InsertBatch inserts every row inside one transaction; any failure rolls
// the whole batch back.
func (s *SQLStore) InsertBatch(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("%s: insert: columns must not be empty", s.d.Name)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if !sqlident.ValidQualified(table) {
		return 0, fmt.Errorf("%s: insert: unsafe table name %q", s.d.Name, table)
	}
	for _, c := range columns {
		if !sqlident.Valid(c) {
			return 0, fmt.Errorf("%s: insert: unsafe column name %q", s.d.Name, c)
		}
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("%s: insert: row %d has %d values for %d columns", s.d.Name, i, len(row), len(columns))
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: begin tx: %w", s.d.Name, err)
	}

	var n int64
	switch {
	case s.d.Bulk != nil:
		n, err = s.d.Bulk(ctx, tx, table, columns, rows)
	case s.d.MaxParams > 0:
		n, err = s.insertMultiRow(ctx, tx, table, columns, rows)
	default:
		n, err = s.insertPrepared(ctx, tx, table, columns, rows)
	}
	if err != nil {
		_ = tx.Rollback()
		return 0, s.classify(err)
	}
	if err := tx.Commit(); err != nil {
		return 0, s.classify(fmt.Errorf("%s: commit: %w", s.d.Name, err))
	}
	return n, nil
}

func (s *SQLStore) classify(err error) error {
	if s.d.IsDuplicate != nil && s.d.IsDuplicate(err) {
		return MarkDuplicate(err)
	}
	return err
}

func (s *SQLStore) insertPrepared(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) (int64, error) {
	stmt, err := tx.PrepareContext(ctx, s.InsertStatement(table, columns))
	if err != nil {
		return 0, fmt.Errorf("%s: prepare insert: %w", s.d.Name, err)
	}
	defer stmt.Close()

	var inserted int64
	for i, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return inserted, fmt.Errorf("%s: insert row %d: %w", s.d.Name, i+1, err)
		}
		inserted++
	}
	return inserted, nil
}

func (s *SQLStore) insertMultiRow(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) (int64, error) {
	per := s.d.MaxParams / len(columns)
	if per < 1 {
		per = 1
	}
	head := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", "))

	var inserted int64
	for start := 0; start < len(rows); start += per {
		end := start + per
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		var b strings.Builder
		b.WriteString(head)
		args := make([]any, 0, len(chunk)*len(columns))
		for i, row := range chunk {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(s.valuesGroup(len(columns), i*len(columns)))
			args = append(args, row...)
		}
		res, err := tx.ExecContext(ctx, b.String(), args...)
		if err != nil {
			return inserted, fmt.Errorf("%s: insert rows %d-%d: %w", s.d.Name, start+1, end, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += n
		} else {
			inserted += int64(len(chunk))
		}
	}
	return inserted, nil
}
