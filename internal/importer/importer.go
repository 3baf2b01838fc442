// Package importer runs one configured import end to end: open the source,
// resolve the column mapping, run the pre-load action, derive generated
// values, assemble every row and load them as one batch.
package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"csvimport/internal/assemble"
	"csvimport/internal/config"
	"csvimport/internal/derive"
	"csvimport/internal/diag"
	"csvimport/internal/load"
	"csvimport/internal/mapping"
	"csvimport/internal/metrics"
	"csvimport/internal/preload"
	"csvimport/internal/source"
	"csvimport/internal/storage"
)

// Summary describes a finished (or failed) run.
type Summary struct {
	Table     string
	Action    string
	Truncated bool

	RowsRead      int
	RowsBlank     int
	RowsShort     int
	RowsAssembled int
	RowsDeleted   int64
	RowsInserted  int64
	Duplicates    int
	NoOp          bool

	Warnings int
	Errors   int
	Elapsed  time.Duration
}

// Fields renders the summary for structured logging.
func (s Summary) Fields() logrus.Fields {
	return logrus.Fields{
		"table":          s.Table,
		"action":         s.Action,
		"truncated":      s.Truncated,
		"rows_read":      s.RowsRead,
		"rows_blank":     s.RowsBlank,
		"rows_short":     s.RowsShort,
		"rows_assembled": s.RowsAssembled,
		"rows_deleted":   s.RowsDeleted,
		"rows_inserted":  s.RowsInserted,
		"duplicates":     s.Duplicates,
		"noop":           s.NoOp,
		"warnings":       s.Warnings,
		"errors":         s.Errors,
		"elapsed":        s.Elapsed.Truncate(time.Millisecond).String(),
	}
}

// Run executes spec against store. The spec is assumed valid
// (config.ValidateImport reported no errors). The store is not closed.
//
// The source is opened and its header read before the pre-load action, so
// a missing or unreadable file never deletes anything.
func Run(ctx context.Context, spec config.ImportSpec, store storage.Store, sink *diag.Sink) (sum Summary, err error) {
	start := time.Now()
	sum.Table = spec.TableName
	defer func() {
		sum.Elapsed = time.Since(start)
		sum.Warnings = sink.Count(diag.LevelWarn)
		sum.Errors = sink.Count(diag.LevelError)
		metrics.RecordRows(spec.TableName, "read", int64(sum.RowsRead))
		metrics.RecordRows(spec.TableName, "assembled", int64(sum.RowsAssembled))
		metrics.RecordRows(spec.TableName, "deleted", sum.RowsDeleted)
		metrics.RecordRows(spec.TableName, "inserted", sum.RowsInserted)
		metrics.RecordDiagnostics(spec.TableName, string(diag.LevelWarn), sum.Warnings)
		metrics.RecordDiagnostics(spec.TableName, string(diag.LevelError), sum.Errors)
		metrics.RecordStep(spec.TableName, "run", err, sum.Elapsed)
	}()

	layout := mapping.NewLayout(spec)

	t := time.Now()
	src, err := source.Open(ctx, spec.CSVFilePath, spec.CSVEncoding)
	metrics.RecordStep(spec.TableName, "open", err, time.Since(t))
	if err != nil {
		return sum, err
	}
	defer src.Close()

	bindings := mapping.Resolve(src.Header(), spec.DataColumns, layout, sink)

	t = time.Now()
	pre, err := preload.New(store, sink).Run(ctx, spec)
	metrics.RecordStep(spec.TableName, "preload", err, time.Since(t))
	sum.Action = pre.Action
	sum.Truncated = pre.Truncated
	sum.RowsDeleted = pre.Deleted
	if err != nil {
		return sum, err
	}

	derived := derive.Generate(spec.GeneratedColumns, spec.CSVFilePath, pre.Precomputed, sink)

	t = time.Now()
	asm := assemble.New(layout, bindings, derived, sink)
	rows, err := asm.All(src)
	metrics.RecordStep(spec.TableName, "assemble", err, time.Since(t))
	st := asm.Stats()
	sum.RowsRead, sum.RowsBlank, sum.RowsShort, sum.RowsAssembled = st.Read, st.Blank, st.Short, st.Assembled
	if err != nil {
		return sum, fmt.Errorf("importer: read rows: %w", err)
	}

	t = time.Now()
	res, err := load.New(store, sink).Load(ctx, spec.TableName, layout.Columns(), rows)
	metrics.RecordStep(spec.TableName, "load", err, time.Since(t))
	sum.Duplicates = res.Duplicates
	sum.NoOp = res.NoOp
	if err != nil {
		return sum, err
	}
	sum.RowsInserted = res.Inserted
	return sum, nil
}
