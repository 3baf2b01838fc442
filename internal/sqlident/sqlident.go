// Package sqlident validates SQL identifiers that are interpolated into
// statements as text. Table and column names cannot be bound as parameters,
// so every name that reaches a statement must pass one of these checks first.
package sqlident

import "regexp"

var (
	// Letters and digits of any script, e.g. "売上日".
	plainRe     = regexp.MustCompile(`^[\p{L}_][\p{L}\p{N}_]*$`)
	qualifiedRe = regexp.MustCompile(`^[\p{L}_][\p{L}\p{N}_]*(\.[\p{L}_][\p{L}\p{N}_]*)?$`)
)

// maxLen is the shortest identifier limit among the supported backends
// (Postgres truncates at 63 bytes, MySQL rejects above 64).
const maxLen = 63

// Valid reports whether name is a bare identifier such as a column name.
func Valid(name string) bool {
	return len(name) <= maxLen && plainRe.MatchString(name)
}

// ValidQualified reports whether name is a bare or schema-qualified table
// name ("orders" or "sales.orders").
func ValidQualified(name string) bool {
	return len(name) <= 2*maxLen+1 && qualifiedRe.MatchString(name)
}
