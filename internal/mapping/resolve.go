package mapping

import (
	"csvimport/internal/config"
	"csvimport/internal/diag"
)

// Binding ties one source field position to one destination slot.
type Binding struct {
	SourceIndex int
	DestIndex   int
	Column      config.ColumnSpec
}

// Resolve matches header names against the data column specs. Header fields
// without a spec are ignored. A spec whose destination column is not a data
// slot of the layout is reported and skipped. When a header name repeats,
// each occurrence is bound and the rightmost field wins at assembly time.
func Resolve(header []string, cols []config.ColumnSpec, layout *Layout, sink *diag.Sink) []Binding {
	rep := sink.Component("mapping")

	byHeader := make(map[string]config.ColumnSpec, len(cols))
	for _, c := range cols {
		byHeader[c.CSVHeaderName] = c
	}

	var out []Binding
	seen := make(map[string]bool, len(cols))
	for i, h := range header {
		c, ok := byHeader[h]
		if !ok {
			continue
		}
		seen[h] = true
		dest, ok := layout.Index(c.DBColumnName)
		if !ok || dest >= layout.DataLen() {
			rep.Warn("destination column not in data column order; skipping", diag.Fields{
				"csv_header": h, "db_column": c.DBColumnName,
			})
			continue
		}
		out = append(out, Binding{SourceIndex: i, DestIndex: dest, Column: c})
	}

	for _, c := range cols {
		if !seen[c.CSVHeaderName] {
			rep.Warn("configured header not found in file; column will be null", diag.Fields{
				"csv_header": c.CSVHeaderName, "db_column": c.DBColumnName,
			})
		}
	}
	return out
}
