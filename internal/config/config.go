// Package config defines the import document that drives a run: which file
// to read, which table to load, how each field is typed and how placeholders
// are treated, which columns are generated from context, and which
// maintenance action runs before loading.
//
// The document is JSON (or YAML) with a single top-level key:
//
//	{
//	  "import_settings": {
//	    "csv_file_path": "data/sales_2024_05_report.csv",
//	    "table_name": "sales",
//	    "csv_encoding": "shift_jis",
//	    "skip_header": true,
//	    "data_columns": [
//	      { "csv_header_name": "Date", "db_column_name": "sale_date", "data_type": "date" },
//	      { "csv_header_name": "Qty",  "db_column_name": "qty", "data_type": "int", "handle_dash": "to_zero" }
//	    ],
//	    "generated_columns": [
//	      { "db_column_name": "report_month",
//	        "generation_rule": { "type": "from_filename_month", "filename_month_parts_index": [1, 2] } }
//	    ],
//	    "pre_import_action": { "type": "truncate" }
//	  }
//	}
//
// An ImportSpec is loaded once and treated as read-only for the whole run.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// DataType is the declared type of a source field.
type DataType string

const (
	TypeInt     DataType = "int"
	TypeFloat   DataType = "float"
	TypeString  DataType = "string"
	TypeDate    DataType = "date"
	TypeTime    DataType = "time"
	TypeBoolean DataType = "boolean"
)

// Known reports whether t is one of the supported types. Unknown types are
// loaded as trimmed strings.
func (t DataType) Known() bool {
	switch t {
	case TypeInt, TypeFloat, TypeString, TypeDate, TypeTime, TypeBoolean:
		return true
	}
	return false
}

// DashPolicy says how the "-" placeholder (and, for strings, blanks) is
// interpreted for a column.
type DashPolicy string

const (
	DashNone          DashPolicy = ""
	DashToZero        DashPolicy = "to_zero"
	DashToNull        DashPolicy = "to_null"
	DashToEmptyString DashPolicy = "to_empty_string"
)

// Known reports whether p is a supported policy.
func (p DashPolicy) Known() bool {
	switch p {
	case DashNone, DashToZero, DashToNull, DashToEmptyString:
		return true
	}
	return false
}

// Pre-import action types.
const (
	ActionNone          = "none"
	ActionTruncate      = "truncate"
	ActionDeleteByMonth = "delete_by_month"
)

// RuleFromFilenameMonth derives the first day of a year/month read from the
// source file name.
const RuleFromFilenameMonth = "from_filename_month"

// Document is the top-level shape of an import configuration file.
type Document struct {
	ImportSettings ImportSpec `json:"import_settings" yaml:"import_settings"`
}

// ImportSpec is the whole configuration of a run.
type ImportSpec struct {
	CSVFilePath string `json:"csv_file_path" yaml:"csv_file_path"`
	TableName   string `json:"table_name" yaml:"table_name"`

	// CSVEncoding names the source text encoding, e.g. "utf-8", "shift_jis".
	CSVEncoding string `json:"csv_encoding" yaml:"csv_encoding" default:"utf-8"`

	// SkipHeader declares that the first line is a header row. Headerless
	// files are not supported; validation rejects false.
	SkipHeader bool `json:"skip_header" yaml:"skip_header" default:"true"`

	// DataColumns are read from the file, in destination order.
	DataColumns []ColumnSpec `json:"data_columns" yaml:"data_columns"`

	// GeneratedColumns follow DataColumns in destination order.
	GeneratedColumns []DerivedColumnSpec `json:"generated_columns" yaml:"generated_columns"`

	PreImportAction *PreImportAction `json:"pre_import_action,omitempty" yaml:"pre_import_action,omitempty"`
}

// ColumnSpec maps one source header onto one destination column.
type ColumnSpec struct {
	CSVHeaderName string     `json:"csv_header_name" yaml:"csv_header_name"`
	DBColumnName  string     `json:"db_column_name" yaml:"db_column_name"`
	DataType      DataType   `json:"data_type" yaml:"data_type"`
	HandleDash    DashPolicy `json:"handle_dash,omitempty" yaml:"handle_dash,omitempty"`
}

// DerivedColumnSpec is a destination column whose value does not come from
// the file's fields.
type DerivedColumnSpec struct {
	DBColumnName   string          `json:"db_column_name" yaml:"db_column_name"`
	GenerationRule *GenerationRule `json:"generation_rule,omitempty" yaml:"generation_rule,omitempty"`
}

// GenerationRule selects how a derived value is computed.
type GenerationRule struct {
	Type string `json:"type" yaml:"type"`

	// FilenameMonthPartsIndex holds the [year, month] token positions in the
	// "_"-separated base name of the source file. Negative positions count
	// from the end.
	FilenameMonthPartsIndex []int `json:"filename_month_parts_index,omitempty" yaml:"filename_month_parts_index,omitempty"`
}

// PreImportAction is the maintenance step executed before loading.
type PreImportAction struct {
	Type                    string `json:"type" yaml:"type"`
	MonthColumnInDB         string `json:"month_column_in_db,omitempty" yaml:"month_column_in_db,omitempty"`
	FilenameMonthPartsIndex []int  `json:"filename_month_parts_index,omitempty" yaml:"filename_month_parts_index,omitempty"`
}

// DateColumns returns the set of data columns declared with type date. It
// is the whitelist consulted before a column name is interpolated into a
// deletion statement.
func (s ImportSpec) DateColumns() map[string]struct{} {
	out := make(map[string]struct{})
	for _, c := range s.DataColumns {
		if c.DataType == TypeDate {
			out[c.DBColumnName] = struct{}{}
		}
	}
	return out
}

// ErrNoImportSettings is returned when a document lacks import_settings.
var ErrNoImportSettings = errors.New("config: document has no import_settings")

// Load reads and decodes the import document at path. Files ending in
// .yaml or .yml are decoded as YAML, everything else as JSON. Defaults are
// applied before decoding so explicit values always win.
func Load(path string) (*ImportSpec, error) {
	b, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return DecodeYAML(b)
	default:
		return DecodeJSON(b)
	}
}

// DecodeJSON decodes a JSON import document.
func DecodeJSON(b []byte) (*ImportSpec, error) {
	doc, err := newDocument()
	if err != nil {
		return nil, err
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(b, &probe); err != nil {
		return nil, fmt.Errorf("config: decode json: %w", err)
	}
	if _, ok := probe["import_settings"]; !ok {
		return nil, ErrNoImportSettings
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(doc); err != nil {
		return nil, fmt.Errorf("config: decode json: %w", err)
	}
	return &doc.ImportSettings, nil
}

// DecodeYAML decodes a YAML import document.
func DecodeYAML(b []byte) (*ImportSpec, error) {
	doc, err := newDocument()
	if err != nil {
		return nil, err
	}
	var probe map[string]any
	if err := yaml.Unmarshal(b, &probe); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if _, ok := probe["import_settings"]; !ok {
		return nil, ErrNoImportSettings
	}
	if err := yaml.Unmarshal(b, doc); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return &doc.ImportSettings, nil
}

func newDocument() (*Document, error) {
	doc := &Document{}
	if err := defaults.Set(doc); err != nil {
		return nil, fmt.Errorf("config: apply defaults: %w", err)
	}
	return doc, nil
}
