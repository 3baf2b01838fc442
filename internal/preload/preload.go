// Package preload runs the maintenance action that precedes loading: nothing,
// a full truncate, or deletion of the month named by the source file.
//
// Table and column names are interpolated into the maintenance statements.
// A delete_by_month column is therefore only used when it is one of the
// import's date-typed data columns; anything else skips the deletion.
package preload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"csvimport/internal/config"
	"csvimport/internal/derive"
	"csvimport/internal/diag"
)

// Maintainer is the part of the store the executor needs.
type Maintainer interface {
	Truncate(ctx context.Context, table string) error
	DeleteRange(ctx context.Context, table, column string, lower, upper time.Time) (int64, error)
}

// Result describes what the action did.
type Result struct {
	// Action is the action type that ran, or "" when none was configured.
	Action string

	// Precomputed holds values derived while running the action, keyed by
	// destination column, for reuse by the derived column generator.
	Precomputed map[string]any

	// Deleted is the number of rows removed by delete_by_month.
	Deleted int64

	// Truncated is true when the table was emptied.
	Truncated bool
}

// ErrAlreadyRun is returned by a second call to Run.
var ErrAlreadyRun = errors.New("preload: action already executed")

// Executor runs the pre-load action at most once.
type Executor struct {
	m    Maintainer
	rep  *diag.Reporter
	done bool
}

// New returns an executor over m.
func New(m Maintainer, sink *diag.Sink) *Executor {
	return &Executor{m: m, rep: sink.Component("preload")}
}

// Run executes spec.PreImportAction. Derivation and whitelist problems are
// reported and skip the action; store failures are returned.
func (e *Executor) Run(ctx context.Context, spec config.ImportSpec) (Result, error) {
	if e.done {
		return Result{}, ErrAlreadyRun
	}
	e.done = true

	res := Result{Precomputed: map[string]any{}}
	a := spec.PreImportAction
	if a == nil {
		e.rep.Warn("no pre_import_action configured; existing rows are kept and duplicate keys may conflict", diag.Fields{
			"table": spec.TableName,
		})
		return res, nil
	}
	res.Action = a.Type

	switch a.Type {
	case config.ActionNone:
		e.rep.Info("pre_import_action is none; duplicate key conflicts are the caller's responsibility", diag.Fields{
			"table": spec.TableName,
		})
		return res, nil

	case config.ActionTruncate:
		if err := e.m.Truncate(ctx, spec.TableName); err != nil {
			return res, fmt.Errorf("preload: truncate %s: %w", spec.TableName, err)
		}
		res.Truncated = true
		e.rep.Info("table truncated", diag.Fields{"table": spec.TableName})
		return res, nil

	case config.ActionDeleteByMonth:
		return e.deleteByMonth(ctx, spec, a, res)

	default:
		e.rep.Warn("unknown pre_import_action type; nothing done", diag.Fields{
			"table": spec.TableName, "type": a.Type,
		})
		return res, nil
	}
}

func (e *Executor) deleteByMonth(ctx context.Context, spec config.ImportSpec, a *config.PreImportAction, res Result) (Result, error) {
	fields := diag.Fields{
		"table":     spec.TableName,
		"db_column": a.MonthColumnInDB,
		"file":      spec.CSVFilePath,
		"positions": a.FilenameMonthPartsIndex,
	}
	if a.MonthColumnInDB == "" || len(a.FilenameMonthPartsIndex) == 0 {
		e.rep.Warn("delete_by_month needs month_column_in_db and filename_month_parts_index; delete skipped", fields)
		return res, nil
	}

	month, err := derive.MonthFromFilename(spec.CSVFilePath, a.FilenameMonthPartsIndex)
	if err != nil {
		fields["error"] = err.Error()
		e.rep.Warn("cannot derive month from file name; delete skipped", fields)
		return res, nil
	}
	res.Precomputed[a.MonthColumnInDB] = month

	if _, ok := spec.DateColumns()[a.MonthColumnInDB]; !ok {
		e.rep.Warn("month_column_in_db is not a date-typed data column; delete skipped", fields)
		return res, nil
	}

	lower, upper := derive.MonthBounds(month)
	n, err := e.m.DeleteRange(ctx, spec.TableName, a.MonthColumnInDB, lower, upper)
	if err != nil {
		return res, fmt.Errorf("preload: delete %s month %s: %w", spec.TableName, month.Format("2006-01"), err)
	}
	res.Deleted = n

	fields["lower"] = lower.Format(time.DateOnly)
	fields["upper"] = upper.Format(time.DateOnly)
	fields["deleted"] = n
	e.rep.Info("rows for month deleted", fields)
	return res, nil
}
