// Package validate runs the semantic checks over a built schema.
//
// Checks run in a fixed order and never stop early: every diagnostic is
// collected so a caller sees the whole batch at once.
package validate

import (
	"slices"

	"github.com/electwix/erd-catalyst/internal/diagnostics"
	"github.com/electwix/erd-catalyst/internal/schema/model"
	"github.com/electwix/erd-catalyst/internal/schema/tokenizer"
	"github.com/electwix/erd-catalyst/internal/types"
)

type validator struct {
	schema *model.Schema
	diags  []diagnostics.Diagnostic
}

type check func(*validator)

// checks lists the battery in reporting order.
var checks = []check{
	(*validator).primaryKeys,
	(*validator).foreignKeys,
	(*validator).keyColumns,
	(*validator).typeReferences,
	(*validator).duplicateConstraints,
	(*validator).checkExpressions,
	(*validator).defaults,
	(*validator).mapFields,
}

// Validate returns the diagnostics for schema in check order.
func Validate(schema *model.Schema) []diagnostics.Diagnostic {
	v := &validator{schema: schema}
	for _, c := range checks {
		c(v)
	}
	return v.diags
}

func (v *validator) add(b *diagnostics.Builder) {
	v.diags = append(v.diags, b.Build())
}

// primaryKeys counts key constructs: every simple PK field outside the
// composite key is one, and the merged composite key is one.
func (v *validator) primaryKeys() {
	for _, e := range v.schema.Entities {
		constructs := 0
		composite, hasComposite := e.CompositeKey()
		if hasComposite {
			constructs++
		}
		for _, f := range e.Fields {
			if f.Has(model.PrimaryKey) && !(hasComposite && slices.Contains(composite.Columns, f.Name)) {
				constructs++
			}
		}
		switch {
		case constructs == 0:
			v.add(diagnostics.Warningf("entity %s has no primary key", e.Name).
				WithCode(diagnostics.CodeNoPK).
				AtSpan(v.schema.Path, e.Span).
				InEntity(e.Name))
		case constructs > 1:
			v.add(diagnostics.Errorf("entity %s declares %d primary key constructs", e.Name, constructs).
				WithCode(diagnostics.CodeMultiplePK).
				AtSpan(v.schema.Path, e.Span).
				InEntity(e.Name).
				WithNote("use one PK field or a single PK(...) line"))
		}
	}
}

func (v *validator) foreignKeys() {
	for _, ref := range v.schema.Unresolved {
		if ref.Kind != model.RefForeignKey {
			continue
		}
		v.add(diagnostics.Errorf("field %s.%s: FK target %q is not a declared entity", ref.Entity, ref.Field, ref.Name).
			WithCode(diagnostics.CodeUnresolvedFK).
			AtSpan(v.schema.Path, ref.Span).
			InEntity(ref.Entity).
			OnField(ref.Field))
	}
	for _, e := range v.schema.Entities {
		for _, f := range e.Fields {
			fk, ok := f.ForeignKey()
			if !ok || !f.EmitsColumn() {
				continue
			}
			if target := v.schema.Entity(fk.Target); len(target.PrimaryKey()) > 1 {
				v.add(diagnostics.Warningf("field %s.%s references %s, whose primary key has %d columns",
					e.Name, f.Name, target.Name, len(target.PrimaryKey())).
					WithCode(diagnostics.CodeCompositeFK).
					AtSpan(v.schema.Path, fk.Span).
					InEntity(e.Name).
					OnField(f.Name))
			}
		}
	}
}

func (v *validator) keyColumns() {
	for _, e := range v.schema.Entities {
		for _, c := range e.Constraints {
			if c.Kind != model.CompositePrimaryKey && c.Kind != model.Unique {
				continue
			}
			if len(c.Columns) == 0 {
				v.add(diagnostics.Errorf("%s key of %s lists no fields", c.Kind, e.Name).
					WithCode(diagnostics.CodeBadKeyColumns).
					AtSpan(v.schema.Path, c.Span).
					InEntity(e.Name))
				continue
			}
			for _, col := range c.Columns {
				if !hasColumn(e, col) {
					v.add(diagnostics.Errorf("%s key of %s names unknown field %q", c.Kind, e.Name, col).
						WithCode(diagnostics.CodeBadKeyColumns).
						AtSpan(v.schema.Path, c.Span).
						InEntity(e.Name).
						OnField(col))
				}
			}
		}
		v.featureColumns(e)
	}
}

type featureRef struct {
	feature string
	columns []string
	span    tokenizer.Span
}

// featureColumns checks that extended features name column-bearing fields.
func (v *validator) featureColumns(e *model.Entity) {
	var refs []featureRef
	if p := e.Partition; p != nil {
		refs = append(refs, featureRef{"PARTITION", p.Columns, p.Span})
	}
	if t := e.TTL; t != nil {
		refs = append(refs, featureRef{"TTL", []string{t.Column}, t.Span})
	}
	for _, fts := range e.FTS {
		refs = append(refs, featureRef{"FTS", fts.Columns, fts.Span})
	}
	if sd := e.SoftDelete; sd != nil {
		refs = append(refs, featureRef{"SOFT_DELETE", []string{sd.Field}, sd.Span})
	}
	for _, r := range refs {
		if len(r.columns) == 0 {
			v.add(diagnostics.Errorf("%s of %s lists no columns", r.feature, e.Name).
				WithCode(diagnostics.CodeBadFeatureColumn).
				AtSpan(v.schema.Path, r.span).
				InEntity(e.Name))
		}
		for _, col := range r.columns {
			if hasColumn(e, col) {
				continue
			}
			v.add(diagnostics.Errorf("%s of %s references %q, which is not a column", r.feature, e.Name, col).
				WithCode(diagnostics.CodeBadFeatureColumn).
				AtSpan(v.schema.Path, r.span).
				InEntity(e.Name).
				OnField(col))
		}
	}
}

func (v *validator) typeReferences() {
	for _, ref := range v.schema.Unresolved {
		if ref.Kind != model.RefType {
			continue
		}
		v.add(diagnostics.Errorf("field %s.%s: type %q is not a base type, enum or entity", ref.Entity, ref.Field, ref.Name).
			WithCode(diagnostics.CodeUnresolvedType).
			AtSpan(v.schema.Path, ref.Span).
			InEntity(ref.Entity).
			OnField(ref.Field))
	}
	for _, enum := range v.schema.Enums {
		seen := make(map[string]bool, len(enum.Variants))
		for i, label := range enum.Variants {
			if seen[label] {
				v.add(diagnostics.Errorf("enum %s repeats variant %q", enum.Name, label).
					WithCode(diagnostics.CodeDuplicateVariant).
					AtSpan(v.schema.Path, enum.VariantSpans[i]).
					InEntity(enum.Name))
			}
			seen[label] = true
		}
	}
}

var fieldConstraintKinds = []model.ConstraintKind{
	model.PrimaryKey, model.Unique, model.NotNull, model.Default, model.ForeignKey, model.Check,
}

func (v *validator) duplicateConstraints() {
	for _, e := range v.schema.Entities {
		for _, f := range e.Fields {
			for _, kind := range fieldConstraintKinds {
				if n := f.Count(kind); n > 1 {
					second := nth(f.Constraints, kind, 1)
					v.add(diagnostics.Errorf("field %s.%s repeats %s %d times", e.Name, f.Name, kind, n).
						WithCode(diagnostics.CodeDuplicateConstraint).
						AtSpan(v.schema.Path, second.Span).
						InEntity(e.Name).
						OnField(f.Name))
				}
			}
		}
	}
}

func (v *validator) checkExpressions() {
	for _, e := range v.schema.Entities {
		for _, f := range e.Fields {
			for _, c := range f.Constraints {
				if c.Kind == model.Check && !Balanced(c.Check) {
					v.add(unbalanced(v.schema.Path, c.Span, c.Check).InEntity(e.Name).OnField(f.Name))
				}
			}
		}
		for _, c := range e.Constraints {
			if c.Kind == model.Check && !Balanced(c.Check) {
				v.add(unbalanced(v.schema.Path, c.Span, c.Check).InEntity(e.Name))
			}
		}
		for _, p := range e.Policies {
			for _, expr := range []string{p.Using, p.WithCheck} {
				if !Balanced(expr) {
					v.add(unbalanced(v.schema.Path, p.Span, expr).InEntity(e.Name))
				}
			}
		}
	}
}

func unbalanced(path string, span tokenizer.Span, expr string) *diagnostics.Builder {
	return diagnostics.Errorf("CHECK expression %q has unbalanced parentheses", expr).
		WithCode(diagnostics.CodeUnbalancedCheck).
		AtSpan(path, span)
}

// Balanced reports whether the parentheses in expr pair up, ignoring any
// inside single- or double-quoted strings.
func Balanced(expr string) bool {
	depth := 0
	var quote byte
	for i := 0; i < len(expr); i++ {
		ch := expr[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '(':
			depth++
		case ch == ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0 && quote == 0
}

// mapFields flags set fields whose type asks for key/value storage.
func (v *validator) mapFields() {
	for _, e := range v.schema.Entities {
		for _, f := range e.Fields {
			if f.Cardinality != model.Set || !mapLike(f.Type) {
				continue
			}
			v.add(diagnostics.Warningf("field %s.%s: map semantics are not supported; treated as a set of %s",
				e.Name, f.Name, f.Type.Name).
				WithCode(diagnostics.CodeMapUnsupported).
				AtSpan(v.schema.Path, f.Span).
				InEntity(e.Name).
				OnField(f.Name))
		}
	}
}

func mapLike(t model.Type) bool {
	if types.IsMapLike(t.Name) {
		return true
	}
	return len(t.Args) == 2 && t.Args[0].Kind == model.ValueIdent && t.Args[1].Kind == model.ValueIdent
}

func hasColumn(e *model.Entity, name string) bool {
	f := e.Field(name)
	return f != nil && f.EmitsColumn()
}

func nth(cs []model.Constraint, kind model.ConstraintKind, n int) model.Constraint {
	for _, c := range cs {
		if c.Kind != kind {
			continue
		}
		if n == 0 {
			return c
		}
		n--
	}
	return model.Constraint{}
}
