// Package engine describes the SQL dialects DDL is generated for.
//
// An Engine answers the dialect questions the code generator asks: which
// features exist, how identifiers and strings are quoted, and how column
// types and defaults are spelled. Dialect packages implement it and
// engine/builtin assembles them into a Registry.
package engine

import (
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Engine encapsulates all dialect-specific spelling.
type Engine interface {
	// Name returns the engine identifier (e.g., "sqlite", "postgresql").
	Name() string

	// SupportsFeature reports whether this engine supports a specific feature.
	SupportsFeature(feature Feature) bool

	// QuoteIdent renders a possibly schema-qualified identifier.
	QuoteIdent(name string) string

	// QuoteString renders s as a string literal.
	QuoteString(s string) string

	// SetType returns the column type of a set-valued field whose element
	// type is elem.
	SetType(elem string) string

	// CallDefault renders a function-call DEFAULT expression.
	CallDefault(expr string) string
}

var plainIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reserved lists words both dialects refuse as bare identifiers.
var reserved = map[string]bool{
	"ALL": true, "ALTER": true, "AND": true, "ANY": true, "ARRAY": true, "AS": true,
	"ASC": true, "BOTH": true, "CASE": true, "CAST": true, "CHECK": true, "COLLATE": true,
	"COLUMN": true, "CONSTRAINT": true, "CREATE": true, "CURRENT_DATE": true,
	"CURRENT_TIME": true, "CURRENT_TIMESTAMP": true, "CURRENT_USER": true, "DEFAULT": true,
	"DEFERRABLE": true, "DESC": true, "DISTINCT": true, "DO": true, "DROP": true, "ELSE": true,
	"END": true, "EXCEPT": true, "FALSE": true, "FETCH": true, "FOR": true, "FOREIGN": true,
	"FROM": true, "GRANT": true, "GROUP": true, "HAVING": true, "IN": true, "INDEX": true,
	"INITIALLY": true, "INTERSECT": true, "INTO": true, "IS": true, "JOIN": true, "KEY": true,
	"LATERAL": true, "LEADING": true, "LIMIT": true, "NOT": true, "NULL": true, "OFFSET": true,
	"ON": true, "ONLY": true, "OR": true, "ORDER": true, "PRIMARY": true, "REFERENCES": true,
	"RETURNING": true, "SELECT": true, "SESSION_USER": true, "SOME": true, "TABLE": true,
	"THEN": true, "TO": true, "TRAILING": true, "TRUE": true, "UNION": true, "UNIQUE": true,
	"USER": true, "USING": true, "WHEN": true, "WHERE": true, "WINDOW": true, "WITH": true,
}

// IsPlainIdent reports whether name can be emitted without quotes.
func IsPlainIdent(name string) bool {
	return plainIdent.MatchString(name) && !reserved[strings.ToUpper(name)]
}

// QuoteIdent renders name for DDL. A "." separates schema qualification;
// each part is quoted only when it is not a plain identifier.
func QuoteIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		if !IsPlainIdent(part) {
			parts[i] = pgx.Identifier{part}.Sanitize()
		}
	}
	return strings.Join(parts, ".")
}

// QuoteIdents quotes each name and joins them with ", ".
func QuoteIdents(e Engine, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = e.QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}
