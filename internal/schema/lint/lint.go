// Package lint reports structural advice about a schema. Every diagnostic
// is a warning; linting never fails a run.
package lint

import (
	"slices"

	"github.com/electwix/erd-catalyst/internal/diagnostics"
	"github.com/electwix/erd-catalyst/internal/schema/model"
)

type linter struct {
	schema *model.Schema
	rels   []model.Relationship
	diags  []diagnostics.Diagnostic
}

// Lint returns advisory diagnostics for schema, grouped by rule.
func Lint(schema *model.Schema) []diagnostics.Diagnostic {
	l := &linter{schema: schema, rels: model.Relationships(schema)}
	l.redundantKeys()
	l.unindexedForeignKeys()
	l.orphans()
	l.unusedEnums()
	l.missingForeignKeys()
	return l.diags
}

func (l *linter) warn(b *diagnostics.Builder) {
	l.diags = append(l.diags, b.Build())
}

// redundantKeys flags fields marked PK that the composite key already
// covers.
func (l *linter) redundantKeys() {
	for _, e := range l.schema.Entities {
		key, ok := e.CompositeKey()
		if !ok {
			continue
		}
		for _, f := range e.Fields {
			pk, marked := f.Constraint(model.PrimaryKey)
			if !marked || !slices.Contains(key.Columns, f.Name) {
				continue
			}
			l.warn(diagnostics.Warningf("field %s.%s is marked PK and is part of the composite key", e.Name, f.Name).
				WithCode(diagnostics.CodeRedundantPK).
				AtSpan(l.schema.Path, pk.Span).
				InEntity(e.Name).
				OnField(f.Name).
				WithNote("drop the field-level PK"))
		}
	}
}

func (l *linter) unindexedForeignKeys() {
	for _, e := range l.schema.Entities {
		for _, f := range e.Fields {
			fk, ok := f.ForeignKey()
			if !ok || !f.EmitsColumn() || l.indexed(e, f) {
				continue
			}
			l.warn(diagnostics.Warningf("foreign key %s.%s has no index", e.Name, f.Name).
				WithCode(diagnostics.CodeUnindexedFK).
				AtSpan(l.schema.Path, fk.Span).
				InEntity(e.Name).
				OnField(f.Name).
				WithNote("add INDEX " + e.Name + "_" + f.Name + " ON " + e.Name + " (" + f.Name + ")"))
		}
	}
}

// indexed reports whether some index leads with f: a simple PK or UNIQUE
// on the field, the first column of the composite key or of a multi-column
// UNIQUE, or an INDEX statement whose first column is f.
func (l *linter) indexed(e *model.Entity, f *model.Field) bool {
	if f.Has(model.PrimaryKey) || f.Has(model.Unique) {
		return true
	}
	for _, c := range e.Constraints {
		if (c.Kind == model.CompositePrimaryKey || c.Kind == model.Unique) && len(c.Columns) > 0 && c.Columns[0] == f.Name {
			return true
		}
	}
	for _, ix := range l.schema.Indexes {
		if ix.Entity == e.ID && len(ix.Columns) > 0 && ix.Columns[0] == f.Name {
			return true
		}
	}
	return false
}

func (l *linter) orphans() {
	if len(l.schema.Entities) < 2 {
		return
	}
	for _, e := range l.schema.Entities {
		if model.Related(l.rels, e.ID) {
			continue
		}
		l.warn(diagnostics.Warningf("entity %s has no relationships", e.Name).
			WithCode(diagnostics.CodeOrphanEntity).
			AtSpan(l.schema.Path, e.Span).
			InEntity(e.Name))
	}
}

func (l *linter) unusedEnums() {
	used := make(map[model.EnumID]bool)
	for _, e := range l.schema.Entities {
		for _, f := range e.Fields {
			if f.Type.Kind == model.TypeEnum {
				used[f.Type.Enum] = true
			}
		}
	}
	for _, enum := range l.schema.Enums {
		if used[enum.ID] {
			continue
		}
		l.warn(diagnostics.Warningf("enum %s is never used", enum.Name).
			WithCode(diagnostics.CodeUnusedEnum).
			AtSpan(l.schema.Path, enum.Span))
	}
}

// missingForeignKeys flags scalar fields typed as an entity that carry no
// FK, so the column has no constraint behind it.
func (l *linter) missingForeignKeys() {
	for _, e := range l.schema.Entities {
		for _, f := range e.Fields {
			if f.Type.Kind != model.TypeEntity || f.Cardinality != model.Scalar || f.Has(model.ForeignKey) {
				continue
			}
			l.warn(diagnostics.Warningf("field %s.%s references entity %s without FK", e.Name, f.Name, f.Type.Name).
				WithCode(diagnostics.CodeMissingFK).
				AtSpan(l.schema.Path, f.Span).
				InEntity(e.Name).
				OnField(f.Name))
		}
	}
}
