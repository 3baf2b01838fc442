// Package derive computes destination values that do not come from the
// source file's fields. The only rule today reads a year and a month out of
// the source file name, e.g. "sales_2024_05_east.csv" with positions [1, 2].
package derive

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Separator splits the base name into tokens.
const Separator = "_"

var (
	// ErrTokenIndex is returned when a declared position is outside the
	// token list, or the positions are not exactly [year, month].
	ErrTokenIndex = errors.New("filename token position out of range")
	// ErrTokenNotNumeric is returned when a year or month token is not an
	// integer.
	ErrTokenNotNumeric = errors.New("filename token is not a number")
	// ErrInvalidMonth is returned when the parsed year/month is not a
	// calendar month.
	ErrInvalidMonth = errors.New("filename year/month is not a valid month")
)

// MonthFromFilename returns the first day (UTC) of the year/month found at
// positions[0] and positions[1] of the "_"-separated base name of path.
// Negative positions count from the end.
func MonthFromFilename(path string, positions []int) (time.Time, error) {
	if len(positions) != 2 {
		return time.Time{}, fmt.Errorf("%w: want [year, month], got %v", ErrTokenIndex, positions)
	}
	base := filepath.Base(path)
	parts := strings.Split(base, Separator)

	yearTok, err := token(parts, positions[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: year: %w", base, err)
	}
	monthTok, err := token(parts, positions[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: month: %w", base, err)
	}

	year, err := strconv.Atoi(strings.TrimSpace(yearTok))
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: year %q: %w", base, yearTok, ErrTokenNotNumeric)
	}
	month, err := strconv.Atoi(strings.TrimSpace(monthTok))
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: month %q: %w", base, monthTok, ErrTokenNotNumeric)
	}
	if year < 1 || year > 9999 || month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("%s: %04d-%02d: %w", base, year, month, ErrInvalidMonth)
	}
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC), nil
}

func token(parts []string, pos int) (string, error) {
	i := pos
	if i < 0 {
		i += len(parts)
	}
	if i < 0 || i >= len(parts) {
		return "", fmt.Errorf("%w: position %d of %d tokens", ErrTokenIndex, pos, len(parts))
	}
	return parts[i], nil
}

// MonthBounds returns the half-open range [lower, upper) covering the month
// that contains t: the first day of that month and the first day of the
// following month.
func MonthBounds(t time.Time) (lower, upper time.Time) {
	lower = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	upper = lower.AddDate(0, 1, 0)
	return lower, upper
}
