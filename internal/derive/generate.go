package derive

import (
	"errors"

	"csvimport/internal/config"
	"csvimport/internal/diag"
)

// Generate computes one value per generated column. Values already present
// in precomputed (set by the pre-load action) are carried over unchanged.
// Failures never abort: the column is reported and set to nil. The result
// also contains every precomputed entry, including ones for data columns.
func Generate(cols []config.DerivedColumnSpec, filePath string, precomputed map[string]any, sink *diag.Sink) map[string]any {
	rep := sink.Component("derive")

	out := make(map[string]any, len(cols)+len(precomputed))
	for k, v := range precomputed {
		out[k] = v
	}

	for _, c := range cols {
		if _, done := out[c.DBColumnName]; done {
			continue
		}
		rule := c.GenerationRule
		if rule == nil || rule.Type != config.RuleFromFilenameMonth {
			out[c.DBColumnName] = nil
			continue
		}

		month, err := MonthFromFilename(filePath, rule.FilenameMonthPartsIndex)
		if err != nil {
			rep.Warn(failureMessage(err), diag.Fields{
				"db_column": c.DBColumnName,
				"file":      filePath,
				"positions": rule.FilenameMonthPartsIndex,
				"error":     err.Error(),
			})
			out[c.DBColumnName] = nil
			continue
		}
		out[c.DBColumnName] = month
	}
	return out
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, ErrTokenIndex):
		return "cannot locate year/month in file name; check filename_month_parts_index; setting null"
	case errors.Is(err, ErrTokenNotNumeric):
		return "year/month in file name is not a number; setting null"
	default:
		return "cannot derive month from file name; setting null"
	}
}
