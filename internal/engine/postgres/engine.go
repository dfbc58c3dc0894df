// Package postgres provides the PostgreSQL dialect.
package postgres

import (
	"strings"

	"github.com/lib/pq"

	"github.com/electwix/erd-catalyst/internal/engine"
)

// Engine implements the engine.Engine interface for PostgreSQL.
type Engine struct{}

// New creates a new PostgreSQL engine instance.
func New() engine.Engine {
	return &Engine{}
}

// Name returns the engine identifier.
func (e *Engine) Name() string {
	return "postgresql"
}

// SupportsFeature reports whether PostgreSQL supports a specific feature.
func (e *Engine) SupportsFeature(feature engine.Feature) bool {
	// PostgreSQL supports everything the generator emits
	switch feature {
	case engine.FeatureEnumTypes,
		engine.FeatureExtensions,
		engine.FeatureArrays,
		engine.FeatureAlterConstraints,
		engine.FeaturePartitioning,
		engine.FeatureRowLevelSecurity,
		engine.FeatureFullTextSearch,
		engine.FeatureTableComments,
		engine.FeatureTriggerProcedures,
		engine.FeatureMaterializedViews:
		return true
	default:
		return false
	}
}

// QuoteIdent quotes non-plain identifier parts with double quotes.
func (e *Engine) QuoteIdent(name string) string {
	return engine.QuoteIdent(name)
}

// QuoteString renders s as a standard or escape string literal.
func (e *Engine) QuoteString(s string) string {
	// QuoteLiteral prefixes escape strings with a space
	return strings.TrimPrefix(pq.QuoteLiteral(s), " ")
}

// SetType returns an array of the element type.
func (e *Engine) SetType(elem string) string {
	return elem + "[]"
}

// CallDefault returns expr unchanged.
func (e *Engine) CallDefault(expr string) string {
	return expr
}
