package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csvimport/internal/config"
	"csvimport/internal/storage"
)

func newStore(tb testing.TB) *storage.SQLStore {
	tb.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(tb, err)
	tb.Cleanup(func() { _ = s.Close() })
	return s
}

func mustExec(tb testing.TB, s *storage.SQLStore, q string, args ...any) {
	tb.Helper()
	_, err := s.DB().Exec(q, args...)
	require.NoError(tb, err, q)
}

func count(tb testing.TB, s *storage.SQLStore, table string) int {
	tb.Helper()
	var n int
	require.NoError(tb, s.DB().QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func TestInsertBatch(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()
	mustExec(t, s, `CREATE TABLE items (id INTEGER, label TEXT, price REAL, ok BOOLEAN)`)

	n, err := s.InsertBatch(ctx, "items", []string{"id", "label", "price", "ok"}, [][]any{
		{int64(1), "a", 1.5, true},
		{int64(2), nil, nil, false},
		{int64(3), "", 0.0, nil},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, 3, count(t, s, "items"))

	var nulls int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM items WHERE label IS NULL`).Scan(&nulls))
	assert.Equal(t, 1, nulls)
}

func TestInsertBatchEmptyIsNoop(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	n, err := s.InsertBatch(context.Background(), "missing_table", []string{"a"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInsertBatchRollsBackOnDuplicate(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()
	mustExec(t, s, `CREATE TABLE u (id INTEGER PRIMARY KEY, v TEXT)`)

	_, err := s.InsertBatch(ctx, "u", []string{"id", "v"}, [][]any{
		{int64(1), "a"}, {int64(2), "b"}, {int64(1), "dup"},
	})
	require.Error(t, err)
	assert.True(t, storage.IsDuplicateKey(err), "err = %v", err)
	assert.Zero(t, count(t, s, "u"), "no row of a failed batch may persist")
}

func TestInsertBatchRejectsUnsafeNames(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()
	_, err := s.InsertBatch(ctx, "t; DROP TABLE x", []string{"a"}, [][]any{{1}})
	require.Error(t, err)
	_, err = s.InsertBatch(ctx, "t", []string{"a b"}, [][]any{{1}})
	require.Error(t, err)
}

func TestInsertBatchRowWidthMismatch(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	mustExec(t, s, `CREATE TABLE w (a INTEGER, b INTEGER)`)
	_, err := s.InsertBatch(context.Background(), "w", []string{"a", "b"}, [][]any{{1, 2}, {3}})
	require.Error(t, err)
	assert.Zero(t, count(t, s, "w"))
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()
	mustExec(t, s, `CREATE TABLE tr (a INTEGER)`)
	mustExec(t, s, `INSERT INTO tr VALUES (1), (2)`)

	require.NoError(t, s.Truncate(ctx, "tr"))
	assert.Zero(t, count(t, s, "tr"))

	require.Error(t, s.Truncate(ctx, "missing"))
}

func TestDeleteRangeHalfOpen(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()
	mustExec(t, s, `CREATE TABLE sales (sale_date DATE, qty INTEGER)`)

	_, err := s.InsertBatch(ctx, "sales", []string{"sale_date", "qty"}, [][]any{
		{day(2024, 4, 30), int64(1)},
		{day(2024, 5, 1), int64(2)},
		{day(2024, 5, 31), int64(3)},
		{day(2024, 6, 1), int64(4)},
	})
	require.NoError(t, err)

	n, err := s.DeleteRange(ctx, "sales", "sale_date", day(2024, 5, 1), day(2024, 6, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var qtys []int64
	rows, err := s.DB().Query(`SELECT qty FROM sales ORDER BY qty`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var q int64
		require.NoError(t, rows.Scan(&q))
		qtys = append(qtys, q)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []int64{1, 4}, qtys)
}

func TestDeleteRangeRejectsUnsafeColumn(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	_, err := s.DeleteRange(context.Background(), "sales", "x OR 1=1", day(2024, 5, 1), day(2024, 6, 1))
	require.Error(t, err)
}

func TestRegisteredFactory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "import.db")
	st, err := storage.Open(context.Background(), config.Connection{Kind: "sqlite", Database: path})
	require.NoError(t, err)
	defer st.Close()

	assert.Equal(t, "INSERT INTO t (a) VALUES (?)", st.InsertStatement("t", []string{"a"}))
}

func TestOpenEmptyPath(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), " ")
	require.Error(t, err)
}

func TestIsDuplicateIgnoresOtherErrors(t *testing.T) {
	t.Parallel()
	assert.False(t, isDuplicate(fmt.Errorf("no such table")))
}
