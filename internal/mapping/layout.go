// Package mapping owns the destination column order and the correspondence
// between source header positions and destination slots.
package mapping

import "csvimport/internal/config"

// Layout is the global destination column order: every data column in
// declaration order, then every generated column. It is built once per run
// and shared by the assembler and the loader so the record slots and the
// insert column list cannot drift apart.
type Layout struct {
	columns []string
	index   map[string]int
	nData   int
}

// NewLayout builds the layout from the spec. Names are assumed unique
// (config.ValidateImport rejects duplicates); a repeated name keeps its
// first position.
func NewLayout(s config.ImportSpec) *Layout {
	l := &Layout{
		columns: make([]string, 0, len(s.DataColumns)+len(s.GeneratedColumns)),
		index:   make(map[string]int, len(s.DataColumns)+len(s.GeneratedColumns)),
	}
	for _, c := range s.DataColumns {
		l.add(c.DBColumnName)
	}
	l.nData = len(l.columns)
	for _, g := range s.GeneratedColumns {
		l.add(g.DBColumnName)
	}
	return l
}

func (l *Layout) add(name string) {
	if _, dup := l.index[name]; dup {
		return
	}
	l.index[name] = len(l.columns)
	l.columns = append(l.columns, name)
}

// Columns returns a copy of the ordered column list.
func (l *Layout) Columns() []string {
	out := make([]string, len(l.columns))
	copy(out, l.columns)
	return out
}

// Len is the number of destination slots.
func (l *Layout) Len() int { return len(l.columns) }

// DataLen is the number of leading slots that come from the source file.
func (l *Layout) DataLen() int { return l.nData }

// Index returns the slot of column name.
func (l *Layout) Index(name string) (int, bool) {
	i, ok := l.index[name]
	return i, ok
}
