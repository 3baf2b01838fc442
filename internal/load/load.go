// Package load submits assembled rows to the destination as a single batch.
//
// The whole batch runs in one transaction: either every row is committed or
// none is, and a failure is returned to the caller after being diagnosed.
package load

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/zeebo/xxh3"

	"csvimport/internal/diag"
	"csvimport/internal/storage"
)

// SampleSize is how many rows a failure diagnostic includes.
const SampleSize = 5

// Inserter is the part of the store the loader needs.
type Inserter interface {
	InsertBatch(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
	InsertStatement(table string, columns []string) string
}

// Result reports a completed load.
type Result struct {
	// NoOp is true when there were no rows and no statement was issued.
	NoOp     bool
	Inserted int64
	// Duplicates counts rows identical to an earlier row of the batch.
	Duplicates int
	Elapsed    time.Duration
}

// BatchError is returned when the batch fails. Nothing from the batch was
// committed.
type BatchError struct {
	Table     string
	Statement string
	Sample    [][]any
	Duplicate bool
	Err       error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("load: batch insert into %s failed: %v", e.Table, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Loader submits batches through an Inserter.
type Loader struct {
	ins Inserter
	rep *diag.Reporter
	now func() time.Time
}

// New returns a loader.
func New(ins Inserter, sink *diag.Sink) *Loader {
	return &Loader{ins: ins, rep: sink.Component("load"), now: time.Now}
}

// Load inserts rows, aligned to columns, into table.
func (l *Loader) Load(ctx context.Context, table string, columns []string, rows [][]any) (Result, error) {
	if len(rows) == 0 {
		l.rep.Info("no rows to insert; nothing submitted", diag.Fields{"table": table})
		return Result{NoOp: true}, nil
	}

	res := Result{Duplicates: l.reportDuplicates(table, rows)}

	start := l.now()
	n, err := l.ins.InsertBatch(ctx, table, columns, rows)
	res.Elapsed = l.now().Sub(start)
	if err != nil {
		be := &BatchError{
			Table:     table,
			Statement: l.ins.InsertStatement(table, columns),
			Sample:    sample(rows),
			Duplicate: storage.IsDuplicateKey(err),
			Err:       err,
		}
		l.rep.Error("batch insert failed; rolled back", diag.Fields{
			"table":     be.Table,
			"statement": be.Statement,
			"rows":      len(rows),
			"sample":    be.Sample,
			"error":     err.Error(),
		})
		if be.Duplicate {
			l.rep.Error("duplicate key: rows with these keys already exist in the table; "+
				"consider pre_import_action truncate or delete_by_month", diag.Fields{"table": table})
		}
		return res, be
	}

	res.Inserted = n
	rps := float64(0)
	if res.Elapsed > 0 {
		rps = float64(n) / res.Elapsed.Seconds()
	}
	l.rep.Info("rows inserted", diag.Fields{
		"table":    table,
		"inserted": n,
		"elapsed":  res.Elapsed.Truncate(time.Millisecond).String(),
		"rps":      fmt.Sprintf("%.0f", rps),
	})
	return res, nil
}

// reportDuplicates warns about rows that are identical to an earlier row.
// Such rows usually violate the table's key.
func (l *Loader) reportDuplicates(table string, rows [][]any) int {
	first := make(map[uint64]int, len(rows))
	dups := 0
	for i, row := range rows {
		h := Fingerprint(row)
		if j, seen := first[h]; seen {
			dups++
			l.rep.Warn("row repeats an earlier row of the batch", diag.Fields{
				"table": table, "row": i + 1, "first_row": j + 1,
			})
			continue
		}
		first[h] = i
	}
	return dups
}

// Fingerprint hashes a row's values together with their types.
func Fingerprint(row []any) uint64 {
	h := xxh3.New()
	for _, v := range row {
		switch x := v.(type) {
		case nil:
			_, _ = io.WriteString(h, "nil")
		case time.Time:
			_, _ = io.WriteString(h, "time="+x.UTC().Format(time.RFC3339Nano))
		default:
			_, _ = fmt.Fprintf(h, "%T=%v", x, x)
		}
		_, _ = h.Write([]byte{0x1f})
	}
	return h.Sum64()
}

func sample(rows [][]any) [][]any {
	n := min(len(rows), SampleSize)
	out := make([][]any, n)
	copy(out, rows[:n])
	return out
}
