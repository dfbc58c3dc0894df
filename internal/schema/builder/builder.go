// Package builder resolves a parsed document into a model.Schema.
//
// Building runs in two passes. The first registers every entity and enum
// name so that fields may refer to declarations further down the file; the
// second builds fields, keys and attachments and binds type and FK names.
// Names that fail to bind are recorded on the schema rather than reported,
// leaving the decision to the validator.
package builder

import (
	"strings"

	"github.com/electwix/erd-catalyst/internal/diagnostics"
	"github.com/electwix/erd-catalyst/internal/schema/ast"
	"github.com/electwix/erd-catalyst/internal/schema/model"
	"github.com/electwix/erd-catalyst/internal/schema/tokenizer"
	"github.com/electwix/erd-catalyst/internal/types"
)

type pending struct {
	node   *ast.Entity
	entity *model.Entity
}

type builder struct {
	path     string
	schema   *model.Schema
	entities []pending
	declared map[string]tokenizer.Span
	diags    []diagnostics.Diagnostic
}

// Build resolves file into a schema. The schema is always returned, even
// when diagnostics report errors; declarations that could not be built are
// left out of it.
func Build(file *ast.File) (*model.Schema, []diagnostics.Diagnostic) {
	b := &builder{
		path:     file.Path,
		schema:   model.NewSchema(file.Path),
		declared: make(map[string]tokenizer.Span),
	}
	b.declare(file.Statements)
	for _, p := range b.entities {
		b.buildEntity(p.node, p.entity)
	}
	b.buildStatements(file.Statements)
	return b.schema, b.diags
}

// declare is the first pass.
func (b *builder) declare(stmts []ast.Statement) {
	for _, stmt := range stmts {
		switch n := stmt.(type) {
		case *ast.Entity:
			ent := &model.Entity{Name: n.Name, Span: n.Span}
			if _, ok := b.schema.AddEntity(ent); !ok {
				b.duplicate("entity", n.Name, n.NameSpan)
				continue
			}
			b.declared[n.Name] = n.NameSpan
			b.entities = append(b.entities, pending{node: n, entity: ent})
		case *ast.Enum:
			enum := &model.Enum{Name: n.Name, Span: n.Span}
			for _, v := range n.Variants {
				enum.Variants = append(enum.Variants, v.Name)
				enum.VariantSpans = append(enum.VariantSpans, v.Span)
			}
			if _, ok := b.schema.AddEnum(enum); !ok {
				b.duplicate("enum", n.Name, n.Span)
				continue
			}
			b.declared[n.Name] = n.Span
		}
	}
}

func (b *builder) duplicate(kind, name string, span tokenizer.Span) {
	b.diags = append(b.diags, diagnostics.Errorf("%s %q is already declared", kind, name).
		WithCode(diagnostics.CodeDuplicateDecl).
		AtSpan(b.path, span).
		InEntity(name).
		WithRelated(diagnostics.SpanLocation(b.path, b.declared[name]), "first declared here").
		Build())
}

func (b *builder) buildEntity(node *ast.Entity, ent *model.Entity) {
	seen := make(map[string]tokenizer.Span, len(node.Fields))
	for _, f := range node.Fields {
		if first, ok := seen[f.Name]; ok {
			b.diags = append(b.diags, diagnostics.Errorf("field %q is declared more than once in %s", f.Name, ent.Name).
				WithCode(diagnostics.CodeDuplicateField).
				AtSpan(b.path, f.Span).
				InEntity(ent.Name).
				OnField(f.Name).
				WithRelated(diagnostics.SpanLocation(b.path, first), "first declared here").
				Build())
			continue
		}
		seen[f.Name] = f.Span
		ent.Fields = append(ent.Fields, b.buildField(ent, f))
	}
	b.buildKeys(node, ent)
	for _, d := range node.Directives {
		b.buildDirective(ent, d)
	}
}

func (b *builder) buildField(ent *model.Entity, node *ast.Field) *model.Field {
	field := &model.Field{
		Name:        node.Name,
		Cardinality: cardinality(node.Sigil),
		Type:        b.resolveType(node.Type),
		HasKeyword:  node.Has,
		Span:        node.Span,
	}
	fkFailed := false
	for _, c := range node.Constraints {
		mc := model.Constraint{Kind: constraintKind(c.Kind), Check: c.Check, Target: model.NoEntity, Span: c.Span}
		if c.Default != nil {
			v := value(*c.Default)
			mc.Default = &v
		}
		if c.Kind == ast.ConstraintForeignKey {
			mc.Target, mc.TargetName = b.resolveTarget(field, c.Target)
			if mc.Target == model.NoEntity && !fkFailed {
				fkFailed = true
				b.schema.Unresolved = append(b.schema.Unresolved, model.UnresolvedReference{
					Kind:   model.RefForeignKey,
					Entity: ent.Name,
					Field:  field.Name,
					Name:   mc.TargetName,
					Span:   c.Span,
				})
			}
		}
		field.Constraints = append(field.Constraints, mc)
	}
	if field.Type.Kind == model.TypeUnresolved && !field.Has(model.ForeignKey) {
		b.schema.Unresolved = append(b.schema.Unresolved, model.UnresolvedReference{
			Kind:   model.RefType,
			Entity: ent.Name,
			Field:  field.Name,
			Name:   field.Type.Name,
			Span:   field.Type.Span,
		})
	}
	return field
}

func (b *builder) resolveType(ref ast.TypeRef) model.Type {
	t := model.Type{Name: ref.Name, Enum: model.NoEnum, Entity: model.NoEntity, Span: ref.Span}
	for _, a := range ref.Args {
		t.Args = append(t.Args, value(a))
	}
	if id, ok := b.schema.LookupEntity(ref.Name); ok {
		t.Kind, t.Entity = model.TypeEntity, id
		return t
	}
	if id, ok := b.schema.LookupEnum(ref.Name); ok {
		t.Kind, t.Enum = model.TypeEnum, id
		return t
	}
	if types.IsBase(ref.Name) {
		t.Kind, t.Name = model.TypeBase, types.Canonical(ref.Name)
	}
	return t
}

// resolveTarget binds an FK. An explicit FK(Target) wins, then an entity
// type, then the field name with any _id suffix removed. The returned name
// is the one that was looked up.
func (b *builder) resolveTarget(field *model.Field, explicit string) (model.EntityID, string) {
	switch {
	case explicit != "":
		id, _ := b.schema.LookupEntity(explicit)
		return id, explicit
	case field.Type.Kind == model.TypeEntity:
		return field.Type.Entity, field.Type.Name
	case field.Type.Kind == model.TypeBase:
		return b.inferTarget(field.Name)
	default:
		return model.NoEntity, field.Type.Name
	}
}

func (b *builder) inferTarget(fieldName string) (model.EntityID, string) {
	stem := fieldName
	if len(stem) > 3 && strings.EqualFold(stem[len(stem)-3:], "_id") {
		stem = stem[:len(stem)-3]
	}
	if id, ok := b.schema.LookupEntity(stem); ok {
		return id, stem
	}
	folded := fold(stem)
	for _, e := range b.schema.Entities {
		if fold(e.Name) == folded {
			return e.ID, e.Name
		}
	}
	return model.NoEntity, stem
}

func fold(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "_", ""))
}

func (b *builder) buildKeys(node *ast.Entity, ent *model.Entity) {
	var (
		pk     *model.Constraint
		pkSeen = make(map[string]bool)
	)
	for _, k := range node.Keys {
		switch k.Kind {
		case ast.KeyPrimary:
			if pk == nil {
				pk = &model.Constraint{Kind: model.CompositePrimaryKey, Target: model.NoEntity, Span: k.Span}
			}
			for _, col := range k.Columns {
				if !pkSeen[col] {
					pkSeen[col] = true
					pk.Columns = append(pk.Columns, col)
				}
			}
		case ast.KeyUnique:
			ent.Constraints = append(ent.Constraints, model.Constraint{
				Kind: model.Unique, Columns: k.Columns, Target: model.NoEntity, Span: k.Span,
			})
		case ast.KeyCheck:
			ent.Constraints = append(ent.Constraints, model.Constraint{
				Kind: model.Check, Check: k.Check, Target: model.NoEntity, Span: k.Span,
			})
		}
	}
	if pk == nil {
		return
	}
	if len(pk.Columns) == 1 {
		if f := ent.Field(pk.Columns[0]); f != nil {
			if !f.Has(model.PrimaryKey) {
				f.Constraints = append(f.Constraints, model.Constraint{Kind: model.PrimaryKey, Target: model.NoEntity, Span: pk.Span})
			}
			return
		}
	}
	// The merged key leads the entity constraints.
	ent.Constraints = append([]model.Constraint{*pk}, ent.Constraints...)
}

func (b *builder) buildDirective(ent *model.Entity, d *ast.Directive) {
	repeated := false
	switch d.Kind {
	case ast.DirectivePartition:
		if repeated = ent.Partition != nil; !repeated {
			ent.Partition = &model.Partition{Strategy: d.Method, Columns: d.Columns, Span: d.Span}
		}
	case ast.DirectiveTTL:
		if repeated = ent.TTL != nil; !repeated {
			ent.TTL = &model.TTL{Column: first(d.Columns), Span: d.Span}
			if d.Interval != nil {
				ent.TTL.Interval = value(*d.Interval)
			}
		}
	case ast.DirectiveFTS:
		ent.FTS = append(ent.FTS, model.FTS{Columns: d.Columns, Method: d.Method, Span: d.Span})
	case ast.DirectiveRLS:
		if repeated = ent.RLS != nil; !repeated {
			ent.RLS = &model.RLS{Mode: d.Method, Span: d.Span}
		}
	case ast.DirectivePolicy:
		ent.Policies = append(ent.Policies, model.Policy{
			Name: d.Name, Command: d.Command, Role: d.Role, Using: d.Using, WithCheck: d.WithCheck, Span: d.Span,
		})
	case ast.DirectiveAuditable:
		repeated = ent.Auditable
		ent.Auditable = true
	case ast.DirectiveSoftDelete:
		if repeated = ent.SoftDelete != nil; !repeated {
			ent.SoftDelete = &model.SoftDelete{Field: first(d.Columns), Span: d.Span}
		}
	}
	if repeated {
		b.diags = append(b.diags, diagnostics.Errorf("%s is declared more than once in %s", d.Kind, ent.Name).
			WithCode(diagnostics.CodeDuplicateConstraint).
			AtSpan(b.path, d.Span).
			InEntity(ent.Name).
			Build())
	}
}

// buildStatements converts the top-level statements other than entities
// and enums, keeping declaration order within each kind.
func (b *builder) buildStatements(stmts []ast.Statement) {
	s := b.schema
	for _, stmt := range stmts {
		switch n := stmt.(type) {
		case *ast.Index:
			id, _ := s.LookupEntity(n.Table)
			s.Indexes = append(s.Indexes, &model.Index{
				Name: n.Name, Unique: n.Unique, Table: n.Table, Entity: id, Columns: n.Columns, Tail: n.Tail, Span: n.Span,
			})
		case *ast.View:
			s.Views = append(s.Views, &model.View{Name: n.Name, Body: n.Body, Span: n.Span})
		case *ast.Trigger:
			s.Triggers = append(s.Triggers, &model.Trigger{Name: n.Name, Timing: n.Timing, Procedure: n.Procedure, Span: n.Span})
		case *ast.Extension:
			s.Extensions = append(s.Extensions, &model.Extension{Name: n.Name, Span: n.Span})
		case *ast.Block:
			s.Blocks = append(s.Blocks, &model.Block{Keyword: n.Keyword, Body: n.Body, Node: n.Node, Span: n.Span})
		}
	}
}

func first(cols []string) string {
	if len(cols) == 0 {
		return ""
	}
	return cols[0]
}

func cardinality(s tokenizer.Sigil) model.Cardinality {
	switch s {
	case tokenizer.SigilList:
		return model.List
	case tokenizer.SigilSet:
		return model.Set
	default:
		return model.Scalar
	}
}

func constraintKind(k ast.ConstraintKind) model.ConstraintKind {
	switch k {
	case ast.ConstraintPrimaryKey:
		return model.PrimaryKey
	case ast.ConstraintUnique:
		return model.Unique
	case ast.ConstraintNotNull:
		return model.NotNull
	case ast.ConstraintDefault:
		return model.Default
	case ast.ConstraintForeignKey:
		return model.ForeignKey
	default:
		return model.Check
	}
}

func value(l ast.Literal) model.Value {
	v := model.Value{Text: l.Text, Span: l.Span}
	switch l.Kind {
	case ast.LiteralNumber:
		v.Kind = model.ValueNumber
	case ast.LiteralString:
		v.Kind = model.ValueString
	case ast.LiteralCall:
		v.Kind = model.ValueCall
	case ast.LiteralList:
		v.Kind = model.ValueList
	case ast.LiteralNull:
		v.Kind = model.ValueNull
	default:
		v.Kind = model.ValueIdent
	}
	return v
}
