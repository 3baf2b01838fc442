// Package convert turns raw field text into typed values according to the
// column's declared type and placeholder policy.
//
// Value forms handed to the store:
//
//	int     int64
//	float   float64
//	string  string
//	date    time.Time (midnight UTC)
//	time    string "HH:MM:SS"
//	boolean bool
//	null    nil
package convert

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"csvimport/internal/config"
	"csvimport/internal/diag"
)

// Placeholder is the literal that marks a deliberately empty value.
const Placeholder = "-"

// Date layouts tried in order. Month and day may have one or two digits.
var dateLayouts = []string{"2006-1-2", "2006/1/2"}

// ErrTimeFormat is returned for time values that are neither H:M nor H:M:S.
var ErrTimeFormat = errors.New("invalid time format")

type parseFunc func(s string) (any, error)

// parsers dispatches on the declared type. Types missing from the table
// are handled as strings.
var parsers = map[config.DataType]parseFunc{
	config.TypeInt:     parseInt,
	config.TypeFloat:   parseFloat,
	config.TypeString:  parseString,
	config.TypeDate:    parseDate,
	config.TypeTime:    parseTime,
	config.TypeBoolean: parseBool,
}

// zeros holds the value used for "-" under the to_zero policy.
var zeros = map[config.DataType]any{
	config.TypeInt:   int64(0),
	config.TypeFloat: float64(0),
	config.TypeTime:  "00:00:00",
}

// Converter applies Convert and reports failures to a sink.
type Converter struct {
	rep *diag.Reporter
}

// New returns a Converter reporting to sink under the "convert" component.
func New(sink *diag.Sink) *Converter {
	return &Converter{rep: sink.Component("convert")}
}

// Convert converts raw for a column of type t with policy p. It never fails:
// unparseable input yields nil and an error entry in the sink. fields is
// merged into the diagnostic to locate the value (line, column).
func (c *Converter) Convert(raw string, t config.DataType, p config.DashPolicy, fields diag.Fields) any {
	v, err := Value(raw, t, p)
	if err != nil {
		f := diag.Fields{"value": strings.TrimSpace(raw), "data_type": string(t), "error": err.Error()}
		for k, x := range fields {
			f[k] = x
		}
		c.rep.Error("value conversion failed; loading null", f)
		return nil
	}
	return v
}

// Value applies the blank and placeholder rules and then the type parser.
// A non-nil error always comes with a nil value.
func Value(raw string, t config.DataType, p config.DashPolicy) (any, error) {
	s := strings.TrimSpace(raw)

	if s == "" {
		switch t {
		case config.TypeInt:
			return int64(0), nil
		case config.TypeFloat:
			return float64(0), nil
		case config.TypeString:
			if p == config.DashToNull {
				return nil, nil
			}
			return "", nil
		}
		return nil, nil
	}

	if s == Placeholder {
		switch p {
		case config.DashToZero:
			return zeros[t], nil
		case config.DashToEmptyString:
			return "", nil
		}
		return nil, nil
	}

	return Parse(s, t)
}

// Parse runs only the type-specific parser on already trimmed text.
func Parse(s string, t config.DataType) (any, error) {
	fn, ok := parsers[t]
	if !ok {
		fn = parseString
	}
	return fn(s)
}

func parseInt(s string) (any, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse int %q: %w", s, err)
	}
	return n, nil
}

func parseFloat(s string) (any, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("parse float %q: %w", s, err)
	}
	return f, nil
}

func parseString(s string) (any, error) { return s, nil }

func parseDate(s string) (any, error) {
	var firstErr error
	for _, layout := range dateLayouts {
		d, err := time.Parse(layout, s)
		if err == nil {
			return d, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, fmt.Errorf("parse date %q: %w", s, firstErr)
}

func parseTime(s string) (any, error) {
	if !strings.Contains(s, ":") {
		return nil, fmt.Errorf("%w (no colon): %q", ErrTimeFormat, s)
	}
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 2:
		h, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("%w (hours): %q", ErrTimeFormat, s)
		}
		m, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("%w (minutes): %q", ErrTimeFormat, s)
		}
		return fmt.Sprintf("%02d:%02d:00", h, m), nil
	case 3:
		return s, nil
	}
	return nil, fmt.Errorf("%w (%d colons): %q", ErrTimeFormat, len(parts)-1, s)
}

// truthy lists the accepted true spellings, compared case-insensitively.
var truthy = map[string]struct{}{
	"true": {},
	"yes":  {},
	"1":    {},
	"はい":   {},
}

func parseBool(s string) (any, error) {
	_, ok := truthy[strings.ToLower(s)]
	return ok, nil
}
