package main

import (
	"context"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"csvimport/internal/config"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func writeConfig(t *testing.T, dir, csvPath, table string) string {
	t.Helper()
	doc := `{
  "import_settings": {
    "csv_file_path": "` + filepath.ToSlash(csvPath) + `",
    "table_name": "` + table + `",
    "data_columns": [
      {"csv_header_name": "Date", "db_column_name": "sale_date", "data_type": "date"},
      {"csv_header_name": "Qty", "db_column_name": "qty", "data_type": "int", "handle_dash": "to_zero"}
    ],
    "generated_columns": [
      {"db_column_name": "report_month",
       "generation_rule": {"type": "from_filename_month", "filename_month_parts_index": [1, 2]}}
    ],
    "pre_import_action": {"type": "delete_by_month", "month_column_in_db": "sale_date", "filename_month_parts_index": [1, 2]}
  }
}`
	p := filepath.Join(dir, "import.json")
	require.NoError(t, os.WriteFile(p, []byte(doc), 0o644))
	return p
}

func mapLookup(m map[string]string) config.LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoadSpecRejectsInvalidDocument(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, filepath.Join(dir, "a_2024_05_b.csv"), "bad table")

	_, issues, err := loadSpec(quietLogger(), p)
	require.Error(t, err)
	assert.True(t, config.HasErrors(issues))
}

func TestValidateAll(t *testing.T) {
	logger = quietLogger()
	dir := t.TempDir()
	p := writeConfig(t, dir, filepath.Join(dir, "a_2024_05_b.csv"), "sales")

	require.NoError(t, validateAll(p, mapLookup(nil), true))

	err := validateAll(p, mapLookup(map[string]string{"DB_KIND": "mysql"}), false)
	require.ErrorIs(t, err, config.ErrMissingEnv)

	require.NoError(t, validateAll(p, mapLookup(map[string]string{
		"DB_KIND": "sqlite", "DB_DATABASE": filepath.Join(dir, "x.db"),
	}), false))
}

func TestSetupMetrics(t *testing.T) {
	t.Setenv("METRICS_BACKEND", "")

	flush, err := setupMetrics(quietLogger(), metricsOptions{Backend: "none"})
	require.NoError(t, err)
	flush()

	_, err = setupMetrics(quietLogger(), metricsOptions{Backend: "graphite"})
	require.Error(t, err)
}

func TestExecuteEndToEndOnSQLite(t *testing.T) {
	logger = quietLogger()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "dw.sqlite")

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE sales (sale_date DATE, qty INTEGER, report_month DATE)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	csvPath := filepath.Join(dir, "sales_2024_05_east.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("Date,Qty\n2024-05-01,4\n2024/05/02,-\n"), 0o644))

	spec, _, err := loadSpec(logger, writeConfig(t, dir, csvPath, "sales"))
	require.NoError(t, err)

	conn, err := config.LoadConnection(mapLookup(map[string]string{"DB_KIND": "sqlite", "DB_DATABASE": dbPath}))
	require.NoError(t, err)

	require.NoError(t, execute(context.Background(), logger, spec, conn))
	require.NoError(t, execute(context.Background(), logger, spec, conn))

	db, err = sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer db.Close()
	var n, zero int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sales`).Scan(&n))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sales WHERE qty = 0`).Scan(&zero))
	assert.Equal(t, 2, n, "second run replaces the month")
	assert.Equal(t, 1, zero)
}
