package config

import (
	"fmt"
	"strings"

	"csvimport/internal/sqlident"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks the run.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to the operator but does not block.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single validation finding. Path is a dotted path into the
// document, e.g. "import_settings.data_columns[2].data_type".
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be returned as one.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

const root = "import_settings"

// ValidateImport performs static checks over a decoded ImportSpec. It never
// mutates the spec. Errors must be fixed before a run; warnings describe
// behaviour the operator may not expect (e.g. a delete that will be skipped).
func ValidateImport(s ImportSpec) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.CSVFilePath) == "" {
		issues = append(issues, errorAt("csv_file_path", "csv_file_path must not be empty"))
	}
	switch {
	case strings.TrimSpace(s.TableName) == "":
		issues = append(issues, errorAt("table_name", "table_name must not be empty"))
	case !sqlident.ValidQualified(s.TableName):
		issues = append(issues, errorAt("table_name",
			fmt.Sprintf("table_name %q is not a plain SQL identifier", s.TableName)))
	}
	if !s.SkipHeader {
		issues = append(issues, errorAt("skip_header",
			"headerless files are not supported; columns are matched by header name"))
	}

	issues = append(issues, validateDataColumns(s.DataColumns)...)
	issues = append(issues, validateGenerated(s.GeneratedColumns)...)
	issues = append(issues, validateUnique(s)...)
	issues = append(issues, validatePreImport(s)...)

	return issues
}

func validateDataColumns(cols []ColumnSpec) []Issue {
	var issues []Issue
	if len(cols) == 0 {
		return append(issues, errorAt("data_columns", "at least one data column is required"))
	}
	for i, c := range cols {
		p := fmt.Sprintf("data_columns[%d]", i)
		if strings.TrimSpace(c.CSVHeaderName) == "" {
			issues = append(issues, errorAt(p+".csv_header_name", "csv_header_name must not be empty"))
		}
		issues = append(issues, checkColumnName(p+".db_column_name", c.DBColumnName)...)
		if !c.DataType.Known() {
			issues = append(issues, warningAt(p+".data_type",
				fmt.Sprintf("unknown data_type %q; values will be loaded as trimmed strings", c.DataType)))
		}
		if !c.HandleDash.Known() {
			issues = append(issues, warningAt(p+".handle_dash",
				fmt.Sprintf("unknown handle_dash %q; \"-\" will load as null", c.HandleDash)))
		}
	}
	return issues
}

func validateGenerated(cols []DerivedColumnSpec) []Issue {
	var issues []Issue
	for i, g := range cols {
		p := fmt.Sprintf("generated_columns[%d]", i)
		issues = append(issues, checkColumnName(p+".db_column_name", g.DBColumnName)...)
		if g.GenerationRule == nil {
			issues = append(issues, warningAt(p+".generation_rule",
				"no generation_rule; column will be null unless set by pre_import_action"))
			continue
		}
		switch g.GenerationRule.Type {
		case RuleFromFilenameMonth:
			if len(g.GenerationRule.FilenameMonthPartsIndex) != 2 {
				issues = append(issues, warningAt(p+".generation_rule.filename_month_parts_index",
					"filename_month_parts_index must hold exactly [year, month]; column will be null"))
			}
		default:
			issues = append(issues, warningAt(p+".generation_rule.type",
				fmt.Sprintf("unknown generation rule %q; column will be null", g.GenerationRule.Type)))
		}
	}
	return issues
}

func validateUnique(s ImportSpec) []Issue {
	var issues []Issue
	seen := make(map[string]string, len(s.DataColumns)+len(s.GeneratedColumns))
	check := func(path, name string) {
		if name == "" {
			return
		}
		if prev, ok := seen[name]; ok {
			issues = append(issues, errorAt(path,
				fmt.Sprintf("db_column_name %q already declared at %s", name, prev)))
			return
		}
		seen[name] = path
	}
	for i, c := range s.DataColumns {
		check(fmt.Sprintf("data_columns[%d].db_column_name", i), c.DBColumnName)
	}
	for i, g := range s.GeneratedColumns {
		check(fmt.Sprintf("generated_columns[%d].db_column_name", i), g.DBColumnName)
	}
	return issues
}

func validatePreImport(s ImportSpec) []Issue {
	a := s.PreImportAction
	if a == nil {
		return nil
	}
	var issues []Issue
	switch a.Type {
	case ActionNone, ActionTruncate:
	case ActionDeleteByMonth:
		if a.MonthColumnInDB == "" {
			issues = append(issues, warningAt("pre_import_action.month_column_in_db",
				"delete_by_month without month_column_in_db; no rows will be deleted"))
		} else if _, ok := s.DateColumns()[a.MonthColumnInDB]; !ok {
			issues = append(issues, warningAt("pre_import_action.month_column_in_db",
				fmt.Sprintf("%q is not a date-typed data column; the delete will be skipped", a.MonthColumnInDB)))
		}
		if len(a.FilenameMonthPartsIndex) != 2 {
			issues = append(issues, warningAt("pre_import_action.filename_month_parts_index",
				"filename_month_parts_index must hold exactly [year, month]; no rows will be deleted"))
		}
	default:
		issues = append(issues, warningAt("pre_import_action.type",
			fmt.Sprintf("unknown pre_import_action type %q; nothing will be done", a.Type)))
	}
	return issues
}

func checkColumnName(path, name string) []Issue {
	switch {
	case strings.TrimSpace(name) == "":
		return []Issue{errorAt(path, "db_column_name must not be empty")}
	case !sqlident.Valid(name):
		return []Issue{errorAt(path, fmt.Sprintf("db_column_name %q is not a plain SQL identifier", name))}
	}
	return nil
}

func errorAt(path, msg string) Issue {
	return Issue{Severity: SeverityError, Path: root + "." + path, Message: msg}
}

func warningAt(path, msg string) Issue {
	return Issue{Severity: SeverityWarning, Path: root + "." + path, Message: msg}
}
