// Package sqlite provides the SQLite dialect.
package sqlite

import (
	"strings"

	"github.com/electwix/erd-catalyst/internal/engine"
)

// Engine implements the engine.Engine interface for SQLite.
type Engine struct{}

// New creates a new SQLite engine instance.
func New() engine.Engine {
	return &Engine{}
}

// Name returns the engine identifier.
func (e *Engine) Name() string {
	return "sqlite"
}

// SupportsFeature reports whether SQLite supports a specific feature. It
// supports none of the optional DDL features; the generator comments those
// statements out so the script still runs.
func (e *Engine) SupportsFeature(engine.Feature) bool {
	return false
}

// QuoteIdent quotes non-plain identifier parts with double quotes.
func (e *Engine) QuoteIdent(name string) string {
	return engine.QuoteIdent(name)
}

// QuoteString doubles embedded single quotes. SQLite has no escape strings,
// so backslashes are literal.
func (e *Engine) QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// SetType stores sets as a JSON array in a TEXT column.
func (e *Engine) SetType(string) string {
	return "TEXT"
}

// CallDefault parenthesizes expr; SQLite accepts expression defaults only
// in that form.
func (e *Engine) CallDefault(expr string) string {
	return "(" + expr + ")"
}
