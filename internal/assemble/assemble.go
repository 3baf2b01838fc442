// Package assemble turns source records into destination rows ordered by
// the column layout. It is pure in-memory work with no store access.
package assemble

import (
	"errors"
	"io"
	"strings"

	"csvimport/internal/convert"
	"csvimport/internal/diag"
	"csvimport/internal/mapping"
	"csvimport/internal/source"
)

// RecordReader yields source records until io.EOF.
type RecordReader interface {
	Next() (source.Record, error)
}

// Stats counts what the assembler saw.
type Stats struct {
	Read      int // records read, blank ones included
	Blank     int // blank records skipped
	Assembled int // rows produced
	Short     int // rows with at least one missing field
}

type slotValue struct {
	index int
	value any
}

// Assembler builds one row per record.
type Assembler struct {
	width    int
	bindings []mapping.Binding
	derived  []slotValue
	conv     *convert.Converter
	rep      *diag.Reporter
	stats    Stats
}

// New returns an assembler for layout. derived holds values keyed by
// destination column; they are written before the record's own fields, so
// a field bound to the same slot replaces the derived value. Keys outside
// the layout are ignored.
func New(layout *mapping.Layout, bindings []mapping.Binding, derived map[string]any, sink *diag.Sink) *Assembler {
	a := &Assembler{
		width:    layout.Len(),
		bindings: bindings,
		conv:     convert.New(sink),
		rep:      sink.Component("assemble"),
	}
	for _, name := range layout.Columns() {
		v, ok := derived[name]
		if !ok {
			continue
		}
		i, _ := layout.Index(name)
		a.derived = append(a.derived, slotValue{index: i, value: v})
	}
	return a
}

// Row assembles the record found at line.
func (a *Assembler) Row(line int, fields []string) []any {
	row := make([]any, a.width)
	for _, d := range a.derived {
		row[d.index] = d.value
	}

	short := false
	for _, b := range a.bindings {
		if b.SourceIndex >= len(fields) {
			row[b.DestIndex] = nil
			short = true
			a.rep.Warn("line has too few fields; loading null", diag.Fields{
				"line": line, "db_column": b.Column.DBColumnName, "fields": len(fields),
			})
			continue
		}
		row[b.DestIndex] = a.conv.Convert(fields[b.SourceIndex], b.Column.DataType, b.Column.HandleDash, diag.Fields{
			"line": line, "db_column": b.Column.DBColumnName,
		})
	}
	if short {
		a.stats.Short++
	}
	a.stats.Assembled++
	return row
}

// All reads r to the end and assembles every non-blank record.
func (a *Assembler) All(r RecordReader) ([][]any, error) {
	var rows [][]any
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
		a.stats.Read++
		if blank(rec.Fields) {
			a.stats.Blank++
			continue
		}
		rows = append(rows, a.Row(rec.Line, rec.Fields))
	}
}

// Stats returns the counters accumulated so far.
func (a *Assembler) Stats() Stats { return a.stats }

// blank also treats a lone whitespace-only field as an empty line.
func blank(fields []string) bool {
	return len(fields) == 0 || (len(fields) == 1 && strings.TrimSpace(fields[0]) == "")
}
