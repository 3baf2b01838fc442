package importer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csvimport/internal/config"
	"csvimport/internal/diag"
	"csvimport/internal/load"
	"csvimport/internal/storage"
	"csvimport/internal/storage/sqlite"
)

const ddl = `CREATE TABLE sales (
	sale_date    DATE,
	store        TEXT,
	qty          INTEGER,
	amount       REAL,
	opened_at    TEXT,
	member       BOOLEAN,
	report_month DATE,
	UNIQUE (sale_date, store)
)`

func setup(t *testing.T, fileName, body string, action *config.PreImportAction) (config.ImportSpec, *storage.SQLStore) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, fileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	store, err := sqlite.Open(context.Background(), filepath.Join(dir, "db.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	_, err = store.DB().Exec(ddl)
	require.NoError(t, err)

	spec := config.ImportSpec{
		CSVFilePath: path,
		TableName:   "sales",
		CSVEncoding: "utf-8",
		SkipHeader:  true,
		DataColumns: []config.ColumnSpec{
			{CSVHeaderName: "Date", DBColumnName: "sale_date", DataType: config.TypeDate},
			{CSVHeaderName: "Store", DBColumnName: "store", DataType: config.TypeString},
			{CSVHeaderName: "Qty", DBColumnName: "qty", DataType: config.TypeInt, HandleDash: config.DashToZero},
			{CSVHeaderName: "Amount", DBColumnName: "amount", DataType: config.TypeFloat},
			{CSVHeaderName: "Opened", DBColumnName: "opened_at", DataType: config.TypeTime},
			{CSVHeaderName: "Member", DBColumnName: "member", DataType: config.TypeBoolean},
		},
		GeneratedColumns: []config.DerivedColumnSpec{{
			DBColumnName: "report_month",
			GenerationRule: &config.GenerationRule{
				Type: config.RuleFromFilenameMonth, FilenameMonthPartsIndex: []int{1, 2},
			},
		}},
		PreImportAction: action,
	}
	require.False(t, config.HasErrors(config.ValidateImport(spec)))
	return spec, store
}

func count(t *testing.T, s *storage.SQLStore, where string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM sales "+where, args...).Scan(&n))
	return n
}

const may = "Date,Store,Qty,Amount,Opened,Member,Note\n" +
	"2024-05-01,east,3,10.5,9:5,yes,x\n" +
	"2024/05/02,west,-,,10:00:30,0,y\n" +
	"\n" +
	"2024-05-03,north\n"

func TestRunLoadsFile(t *testing.T) {
	t.Parallel()

	spec, store := setup(t, "sales_2024_05_daily.csv", may, &config.PreImportAction{Type: config.ActionNone})
	sink := diag.Discard()

	sum, err := Run(context.Background(), spec, store, sink)
	require.NoError(t, err)
	assert.Equal(t, int64(3), sum.RowsInserted)
	assert.Equal(t, 3, sum.RowsAssembled)
	assert.Equal(t, 1, sum.RowsShort)
	assert.Equal(t, 3, count(t, store, ""))

	var (
		qty    int64
		opened string
	)
	require.NoError(t, store.DB().QueryRow(`SELECT qty, opened_at FROM sales WHERE store = 'east'`).Scan(&qty, &opened))
	assert.Equal(t, int64(3), qty)
	assert.Equal(t, "09:05:00", opened)

	require.NoError(t, store.DB().QueryRow(`SELECT qty FROM sales WHERE store = 'west'`).Scan(&qty))
	assert.Zero(t, qty)

	assert.Equal(t, 0, count(t, store, "WHERE report_month IS NULL"))
	assert.Equal(t, 1, count(t, store, "WHERE qty IS NULL"), "short line leaves missing slots null")
	assert.Equal(t, sink.Count(diag.LevelWarn), sum.Warnings)
}

func TestRunDeleteByMonthReplacesOnlyThatMonth(t *testing.T) {
	t.Parallel()

	spec, store := setup(t, "sales_2024_05_daily.csv", may, &config.PreImportAction{
		Type: config.ActionDeleteByMonth, MonthColumnInDB: "sale_date", FilenameMonthPartsIndex: []int{1, 2},
	})
	ctx := context.Background()

	apr := time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC)
	may1 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	jun := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err := store.InsertBatch(ctx, "sales", []string{"sale_date", "store"}, [][]any{
		{apr, "east"}, {may1, "east"}, {may1, "old"}, {jun, "east"},
	})
	require.NoError(t, err)

	// Loading the same file twice must not conflict.
	for i := 0; i < 2; i++ {
		sum, err := Run(ctx, spec, store, diag.Discard())
		require.NoError(t, err, "run %d", i)
		assert.Equal(t, int64(3), sum.RowsInserted)
	}
	assert.Equal(t, 5, count(t, store, ""))
	assert.Equal(t, 0, count(t, store, "WHERE store = 'old'"))
}

func TestRunTruncate(t *testing.T) {
	t.Parallel()

	spec, store := setup(t, "sales_2024_05_daily.csv", may, &config.PreImportAction{Type: config.ActionTruncate})
	_, err := store.InsertBatch(context.Background(), "sales", []string{"store"}, [][]any{{"stale"}})
	require.NoError(t, err)

	sum, err := Run(context.Background(), spec, store, diag.Discard())
	require.NoError(t, err)
	assert.True(t, sum.Truncated)
	assert.Equal(t, 3, count(t, store, ""))
}

func TestRunDuplicateKeyFailsWithoutPartialLoad(t *testing.T) {
	t.Parallel()

	body := "Date,Store,Qty\n2024-05-01,east,1\n2024-05-02,east,2\n2024-05-01,east,3\n"
	spec, store := setup(t, "sales_2024_05_daily.csv", body, nil)
	sink := diag.Discard()

	sum, err := Run(context.Background(), spec, store, sink)
	require.Error(t, err)

	var be *load.BatchError
	require.ErrorAs(t, err, &be)
	assert.True(t, storage.IsDuplicateKey(err))
	assert.Zero(t, sum.RowsInserted)
	assert.Zero(t, count(t, store, ""))
	assert.GreaterOrEqual(t, sum.Errors, 1)
}

func TestRunMissingFileTouchesNothing(t *testing.T) {
	t.Parallel()

	spec, store := setup(t, "sales_2024_05_daily.csv", may, &config.PreImportAction{Type: config.ActionTruncate})
	_, err := store.InsertBatch(context.Background(), "sales", []string{"store"}, [][]any{{"keep"}})
	require.NoError(t, err)

	spec.CSVFilePath = filepath.Join(t.TempDir(), "sales_2024_05_missing.csv")
	_, err = Run(context.Background(), spec, store, diag.Discard())
	require.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, 1, count(t, store, ""))
}

func TestRunHeaderOnlyIsNoOp(t *testing.T) {
	t.Parallel()

	spec, store := setup(t, "sales_2024_05_daily.csv", "Date,Store\n", nil)
	sum, err := Run(context.Background(), spec, store, diag.Discard())
	require.NoError(t, err)
	assert.True(t, sum.NoOp)
	assert.Zero(t, count(t, store, ""))
}
