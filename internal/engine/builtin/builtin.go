// Package builtin assembles the built-in SQL dialects.
//
// Callers build one registry per program and look dialects up by name:
//
//	eng, err := builtin.Registry().New(cfg.Dialect)
package builtin

import (
	"github.com/electwix/erd-catalyst/internal/engine"
	"github.com/electwix/erd-catalyst/internal/engine/postgres"
	"github.com/electwix/erd-catalyst/internal/engine/sqlite"
)

// DefaultDialect is used when no dialect is configured.
const DefaultDialect = "postgresql"

// Registry returns a registry holding every built-in dialect.
func Registry() *engine.Registry {
	r := engine.NewRegistry()
	for name, factory := range map[string]engine.Factory{
		"postgresql": postgres.New,
		"postgres":   postgres.New, // Alias
		"sqlite":     sqlite.New,
		"sqlite3":    sqlite.New, // Alias
	} {
		// names are distinct, so registration cannot fail
		_ = r.Register(name, factory)
	}
	return r
}
