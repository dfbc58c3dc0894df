// Package codegen lowers a schema model to ordered SQL DDL.
//
// Output order is fixed: extensions, enum types, one block per entity in
// declaration order, foreign keys, top-level indexes, views and triggers in
// declaration order, then plugin blocks. Dialect differences come from the
// engine.Engine in Options. The generator performs no I/O and is
// deterministic.
package codegen

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/electwix/erd-catalyst/internal/engine"
	"github.com/electwix/erd-catalyst/internal/engine/postgres"
	"github.com/electwix/erd-catalyst/internal/plugin"
	"github.com/electwix/erd-catalyst/internal/schema/model"
	"github.com/electwix/erd-catalyst/internal/sidecar"
)

// fallbackKeyType is the column type of a reference whose target key type
// cannot be determined.
const fallbackKeyType = "TEXT"

// Options configures generation.
type Options struct {
	// Dialect selects the SQL dialect. Nil means PostgreSQL.
	Dialect engine.Engine
	// IfNotExists guards CREATE TABLE, CREATE INDEX and CREATE VIEW statements.
	IfNotExists bool
	// Sidecar overrides inline PARTITION and RLS directives and supplies
	// post-migration SQL.
	Sidecar sidecar.Overlay
	// Plugins emits plugin blocks. It must hold every keyword the schema
	// was parsed with.
	Plugins *plugin.Registry
	// Header is written as a comment banner before the first statement.
	Header string
}

// Generator turns schemas into DDL.
type Generator struct {
	opts Options
}

// New returns a generator for opts.
func New(opts Options) *Generator {
	if opts.Dialect == nil {
		opts.Dialect = postgres.New()
	}
	return &Generator{opts: opts}
}

// foreignKey is a resolved FK column ready for emission.
type foreignKey struct {
	name    string
	column  string
	target  string
	columns []string
}

type emitter struct {
	opts   Options
	eng    engine.Engine
	schema *model.Schema
	out    *Output
	names  map[string]int
	fks    map[model.EntityID][]foreignKey
}

// Generate emits DDL for schema. It works on partially valid models: names
// that did not resolve are emitted as written and unresolved foreign keys
// are skipped. The only failures come from plugin emitters.
func (g *Generator) Generate(schema *model.Schema) (*Output, error) {
	e := &emitter{
		opts:   g.opts,
		eng:    g.opts.Dialect,
		schema: schema,
		out:    &Output{Dialect: g.opts.Dialect.Name(), Header: g.opts.Header},
		names:  make(map[string]int),
		fks:    make(map[model.EntityID][]foreignKey),
	}
	for _, ent := range schema.Entities {
		e.fks[ent.ID] = e.collectForeignKeys(ent)
	}

	e.extensions()
	e.enums()
	for _, ent := range schema.Entities {
		e.entity(ent)
	}
	e.foreignKeys()
	e.passthrough()
	if err := e.blocks(); err != nil {
		return nil, err
	}
	return e.out, nil
}

func (e *emitter) add(stmt Statement) {
	e.out.Statements = append(e.out.Statements, stmt)
}

// addFeature adds stmt, disabled when the dialect lacks feature.
func (e *emitter) addFeature(feature engine.Feature, stmt Statement) {
	stmt.Disabled = !e.eng.SupportsFeature(feature)
	e.add(stmt)
}

func (e *emitter) ident(name string) string {
	return e.eng.QuoteIdent(name)
}

func (e *emitter) idents(names []string) string {
	return engine.QuoteIdents(e.eng, names)
}

func (e *emitter) ifNotExists() string {
	if e.opts.IfNotExists {
		return "IF NOT EXISTS "
	}
	return ""
}

func (e *emitter) extensions() {
	for _, ext := range e.schema.Extensions {
		e.addFeature(engine.FeatureExtensions, Statement{
			Kind: KindExtension,
			Key:  "extension:" + ext.Name,
			SQL:  "CREATE EXTENSION IF NOT EXISTS " + e.ident(ext.Name),
		})
	}
}

func (e *emitter) enums() {
	// without native enum types the columns carry an IN check instead
	if !e.eng.SupportsFeature(engine.FeatureEnumTypes) {
		return
	}
	for _, enum := range e.schema.Enums {
		e.add(Statement{
			Kind: KindEnum,
			Key:  "type:" + enum.Name,
			SQL:  fmt.Sprintf("CREATE TYPE %s AS ENUM (%s)", e.ident(enum.Name), e.stringList(enum.Variants)),
		})
	}
}

func (e *emitter) stringList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = e.eng.QuoteString(v)
	}
	return strings.Join(quoted, ", ")
}

func (e *emitter) entity(ent *model.Entity) {
	table := e.ident(ent.Name)
	e.table(ent)
	e.distinctElements(ent, table)
	if ttl := ent.TTL; ttl != nil {
		interval := ttl.Interval.Unquoted()
		policy := fmt.Sprintf("ttl: %s + %s", ttl.Column, interval)
		e.addFeature(engine.FeatureTableComments, Statement{
			Kind:   KindTTL,
			Key:    "ttl:" + ent.Name,
			Entity: ent.Name,
			SQL: fmt.Sprintf("-- ttl: rows of %s expire %s after %s\nCOMMENT ON TABLE %s IS %s",
				ent.Name, interval, ttl.Column, table, e.eng.QuoteString(policy)),
		})
	}
	for i, fts := range ent.FTS {
		name := uniqueName(derivedName(ent.Name, "fts", strconv.Itoa(i+1)), e.names)
		e.addFeature(engine.FeatureFullTextSearch, Statement{
			Kind:   KindFullText,
			Key:    "index:" + name,
			Entity: ent.Name,
			SQL: fmt.Sprintf("CREATE INDEX %s%s ON %s USING %s (to_tsvector('simple', %s))",
				e.ifNotExists(), name, table, cmp.Or(fts.Method, "GIN"), e.searchDocument(fts.Columns)),
		})
	}
	e.rowSecurity(ent)
	for _, p := range ent.Policies {
		e.addFeature(engine.FeatureRowLevelSecurity, Statement{
			Kind:   KindPolicy,
			Key:    "policy:" + ent.Name + "." + p.Name,
			Entity: ent.Name,
			SQL:    e.policy(table, p),
		})
	}
	if ent.Auditable {
		for _, event := range []string{"created", "updated"} {
			op := "INSERT"
			if event == "updated" {
				op = "UPDATE"
			}
			name := uniqueName(derivedName(ent.Name, "set", event, "at"), e.names)
			e.addFeature(engine.FeatureTriggerProcedures, Statement{
				Kind:   KindAudit,
				Key:    "trigger:" + name,
				Entity: ent.Name,
				SQL: fmt.Sprintf("CREATE TRIGGER %s BEFORE %s ON %s FOR EACH ROW EXECUTE PROCEDURE set_%s_at()",
					name, op, table, event),
			})
		}
	}
	if sd := ent.SoftDelete; sd != nil {
		name := uniqueName(derivedName(ent.Name, "active"), e.names)
		e.add(Statement{
			Kind:   KindSoftDelete,
			Key:    "view:" + name,
			Entity: ent.Name,
			SQL:    fmt.Sprintf("CREATE VIEW %s AS SELECT * FROM %s WHERE %s IS NULL", name, table, e.ident(sd.Field)),
		})
	}
	if side, ok := e.opts.Sidecar.Entity(ent.Name); ok && strings.TrimSpace(side.Migrations.Post) != "" {
		e.add(Statement{
			Kind:   KindMigration,
			Key:    "migration:" + ent.Name,
			Entity: ent.Name,
			SQL:    strings.TrimSpace(side.Migrations.Post),
		})
	}
}

// distinctElements emits a trigger stub per UNIQUE set field. Neither dialect
// allows the subquery a CHECK over array elements would need.
func (e *emitter) distinctElements(ent *model.Entity, table string) {
	for _, f := range ent.Fields {
		if f.Cardinality != model.Set || !f.Has(model.Unique) || !f.EmitsColumn() {
			continue
		}
		name := uniqueName(derivedName(ent.Name, f.Name, "distinct"), e.names)
		e.addFeature(engine.FeatureTriggerProcedures, Statement{
			Kind:   KindDistinctElements,
			Key:    "trigger:" + name,
			Entity: ent.Name,
			SQL: fmt.Sprintf("CREATE TRIGGER %s BEFORE INSERT OR UPDATE ON %s FOR EACH ROW EXECUTE PROCEDURE check_distinct_elements(%s)",
				name, table, e.eng.QuoteString(f.Name)),
		})
	}
}

func (e *emitter) table(ent *model.Entity) {
	var defs []string
	composite, hasComposite := ent.CompositeKey()
	inlinePK := ""
	if !hasComposite {
		if pk := ent.PrimaryKey(); len(pk) == 1 {
			inlinePK = pk[0]
		}
	}
	for _, f := range ent.Fields {
		if !f.EmitsColumn() {
			continue
		}
		defs = append(defs, e.column(f, f.Name == inlinePK))
	}
	if hasComposite {
		defs = append(defs, "PRIMARY KEY ("+e.idents(composite.Columns)+")")
	}
	for _, c := range ent.Constraints {
		if c.Kind == model.Unique {
			defs = append(defs, "UNIQUE ("+e.idents(c.Columns)+")")
		}
	}
	for _, c := range ent.Constraints {
		if c.Kind == model.Check {
			defs = append(defs, "CHECK ("+c.Check+")")
		}
	}
	if !e.eng.SupportsFeature(engine.FeatureAlterConstraints) {
		for _, fk := range e.fks[ent.ID] {
			defs = append(defs, "CONSTRAINT "+e.references(fk))
		}
	}

	sql := fmt.Sprintf("CREATE TABLE %s%s (%s)", e.ifNotExists(), e.ident(ent.Name), strings.Join(defs, ", "))
	strategy, cols := e.partition(ent)
	if strategy == "" {
		e.add(Statement{Kind: KindTable, Key: "table:" + ent.Name, Entity: ent.Name, SQL: sql})
		return
	}
	clause := fmt.Sprintf("PARTITION BY %s (%s)", strategy, e.idents(cols))
	if e.eng.SupportsFeature(engine.FeaturePartitioning) {
		e.add(Statement{Kind: KindTable, Key: "table:" + ent.Name, Entity: ent.Name, SQL: sql + " " + clause})
		return
	}
	e.add(Statement{Kind: KindTable, Key: "table:" + ent.Name, Entity: ent.Name, SQL: sql})
	e.add(Statement{Kind: KindPartition, Key: "partition:" + ent.Name, Entity: ent.Name, SQL: clause, Disabled: true})
}

// partition returns the effective partitioning, preferring the sidecar.
func (e *emitter) partition(ent *model.Entity) (string, []string) {
	if side, ok := e.opts.Sidecar.Entity(ent.Name); ok && side.Partitions != nil {
		return strings.ToUpper(side.Partitions.Strategy), side.Partitions.Columns
	}
	if ent.Partition != nil {
		return ent.Partition.Strategy, ent.Partition.Columns
	}
	return "", nil
}

func (e *emitter) column(f *model.Field, primaryKey bool) string {
	parts := []string{e.ident(f.Name), e.columnType(f)}
	if primaryKey {
		parts = append(parts, "PRIMARY KEY")
	}
	// set uniqueness is per element, see distinctElements
	if f.Has(model.Unique) && f.Cardinality != model.Set {
		parts = append(parts, "UNIQUE")
	}
	if f.Has(model.NotNull) {
		parts = append(parts, "NOT NULL")
	}
	if c, ok := f.Constraint(model.Default); ok && c.Default != nil {
		parts = append(parts, "DEFAULT "+e.defaultExpr(f, *c.Default))
	}
	if c, ok := f.Constraint(model.Check); ok {
		parts = append(parts, "CHECK ("+c.Check+")")
	}
	if enum := e.enumOf(f); enum != nil && f.Cardinality == model.Scalar && !e.eng.SupportsFeature(engine.FeatureEnumTypes) {
		parts = append(parts, fmt.Sprintf("CHECK (%s IN (%s))", e.ident(f.Name), e.stringList(enum.Variants)))
	}
	return strings.Join(parts, " ")
}

func (e *emitter) enumOf(f *model.Field) *model.Enum {
	if f.Type.Kind != model.TypeEnum {
		return nil
	}
	return e.schema.Enum(f.Type.Enum)
}

func (e *emitter) columnType(f *model.Field) string {
	typ := e.scalarType(f, 0)
	if f.Cardinality == model.Set {
		return e.eng.SetType(typ)
	}
	return typ
}

func (e *emitter) scalarType(f *model.Field, depth int) string {
	switch f.Type.Kind {
	case model.TypeEnum:
		if !e.eng.SupportsFeature(engine.FeatureEnumTypes) {
			return "TEXT"
		}
		return e.ident(f.Type.Name)
	case model.TypeEntity:
		return e.keyType(f.Type.Entity, depth)
	default:
		return f.Type.String()
	}
}

// keyType returns the column type of the target's first key column,
// following entity-typed keys up to a fixed depth.
func (e *emitter) keyType(id model.EntityID, depth int) string {
	target := e.schema.Entity(id)
	if target == nil || depth > len(e.schema.Entities) {
		return fallbackKeyType
	}
	name := "id"
	if pk := target.PrimaryKey(); len(pk) > 0 {
		name = pk[0]
	}
	f := target.Field(name)
	if f == nil || f.Cardinality != model.Scalar {
		return fallbackKeyType
	}
	return e.scalarType(f, depth+1)
}

func (e *emitter) defaultExpr(f *model.Field, v model.Value) string {
	switch v.Kind {
	case model.ValueString:
		if v.DoubleQuoted() {
			return e.eng.QuoteString(v.Unquoted())
		}
		return v.Text
	case model.ValueCall:
		return e.eng.CallDefault(v.Text)
	case model.ValueIdent:
		if enum := e.enumOf(f); enum != nil && enum.HasVariant(v.Text) {
			return e.eng.QuoteString(v.Text)
		}
		return v.Text
	case model.ValueList:
		return e.listDefault(v.Text)
	case model.ValueNull:
		return "NULL"
	default:
		return v.Text
	}
}

func (e *emitter) listDefault(text string) string {
	if !e.eng.SupportsFeature(engine.FeatureArrays) {
		return e.eng.QuoteString(text)
	}
	inner := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(text, "["), "]"))
	if inner == "" {
		return "'{}'"
	}
	return "ARRAY[" + inner + "]"
}

func (e *emitter) searchDocument(columns []string) string {
	if len(columns) == 1 {
		return e.ident(columns[0])
	}
	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = "coalesce(" + e.ident(col) + ", '')"
	}
	return strings.Join(parts, " || ' ' || ")
}

// rlsMode returns the effective row-level security mode, preferring the
// sidecar. An empty mode emits nothing.
func (e *emitter) rlsMode(ent *model.Entity) string {
	if side, ok := e.opts.Sidecar.Entity(ent.Name); ok && side.RLS != nil {
		if *side.RLS {
			return "ENABLE"
		}
		return ""
	}
	if ent.RLS != nil {
		return strings.ToUpper(ent.RLS.Mode)
	}
	return ""
}

func (e *emitter) rowSecurity(ent *model.Entity) {
	mode := e.rlsMode(ent)
	if mode == "" {
		return
	}
	table := e.ident(ent.Name)
	modes := []string{mode}
	if mode == "FORCE" {
		// FORCE only applies once security is enabled
		modes = []string{"ENABLE", "FORCE"}
	}
	for _, m := range modes {
		key := "rls:" + ent.Name
		if m == "FORCE" {
			key += ":force"
		}
		e.addFeature(engine.FeatureRowLevelSecurity, Statement{
			Kind:   KindRowSecurity,
			Key:    key,
			Entity: ent.Name,
			SQL:    fmt.Sprintf("ALTER TABLE %s %s ROW LEVEL SECURITY", table, m),
		})
	}
}

func (e *emitter) policy(table string, p model.Policy) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE POLICY %s ON %s", e.ident(p.Name), table)
	if p.Command != "" {
		b.WriteString(" FOR " + p.Command)
	}
	if p.Role != "" {
		b.WriteString(" TO " + e.ident(p.Role))
	}
	if p.Using != "" {
		b.WriteString(" USING (" + p.Using + ")")
	}
	if p.WithCheck != "" {
		b.WriteString(" WITH CHECK (" + p.WithCheck + ")")
	}
	return b.String()
}

// collectForeignKeys names every resolved FK column of ent. Fields without
// a column and unresolved targets are skipped.
func (e *emitter) collectForeignKeys(ent *model.Entity) []foreignKey {
	var fks []foreignKey
	for _, f := range ent.Fields {
		c, ok := f.ForeignKey()
		if !ok || !f.EmitsColumn() {
			continue
		}
		target := e.schema.Entity(c.Target)
		if target == nil {
			continue
		}
		columns := target.PrimaryKey()
		if len(columns) == 0 {
			columns = []string{"id"}
		}
		fks = append(fks, foreignKey{
			name:    uniqueName(derivedName("fk", ent.Name, f.Name), e.names),
			column:  f.Name,
			target:  target.Name,
			columns: columns,
		})
	}
	return fks
}

func (e *emitter) references(fk foreignKey) string {
	return fmt.Sprintf("%s FOREIGN KEY (%s) REFERENCES %s (%s)",
		fk.name, e.ident(fk.column), e.ident(fk.target), e.idents(fk.columns))
}

func (e *emitter) foreignKeys() {
	if !e.eng.SupportsFeature(engine.FeatureAlterConstraints) {
		return
	}
	for _, ent := range e.schema.Entities {
		for _, fk := range e.fks[ent.ID] {
			e.add(Statement{
				Kind:   KindForeignKey,
				Key:    "constraint:" + fk.name,
				Entity: ent.Name,
				SQL:    fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s", e.ident(ent.Name), e.references(fk)),
			})
		}
	}
}

// passthrough emits top-level INDEX, MATERIALIZED VIEW and TRIGGER
// statements interleaved in source order.
func (e *emitter) passthrough() {
	type pending struct {
		line int
		stmt Statement
	}
	var stmts []pending
	for _, ix := range e.schema.Indexes {
		unique := ""
		if ix.Unique {
			unique = "UNIQUE "
		}
		sql := fmt.Sprintf("CREATE %sINDEX %s%s ON %s (%s)",
			unique, e.ifNotExists(), e.ident(ix.Name), e.ident(ix.Table), e.idents(ix.Columns))
		if tail := strings.TrimSpace(ix.Tail); tail != "" {
			sql += " " + tail
		}
		stmts = append(stmts, pending{ix.Span.StartLine, Statement{Kind: KindIndex, Key: "index:" + ix.Name, Entity: ix.Table, SQL: sql}})
	}
	for _, v := range e.schema.Views {
		kind := "VIEW"
		if e.eng.SupportsFeature(engine.FeatureMaterializedViews) {
			kind = "MATERIALIZED VIEW"
		}
		sql := fmt.Sprintf("CREATE %s %s%s AS %s", kind, e.ifNotExists(), e.ident(v.Name), strings.TrimSpace(v.Body))
		stmts = append(stmts, pending{v.Span.StartLine, Statement{Kind: KindView, Key: "view:" + v.Name, SQL: sql}})
	}
	for _, t := range e.schema.Triggers {
		sql := fmt.Sprintf("CREATE TRIGGER %s %s EXECUTE PROCEDURE %s",
			e.ident(t.Name), strings.TrimSpace(t.Timing), strings.TrimSpace(t.Procedure))
		stmts = append(stmts, pending{t.Span.StartLine, Statement{
			Kind:     KindTrigger,
			Key:      "trigger:" + t.Name,
			SQL:      sql,
			Disabled: !e.eng.SupportsFeature(engine.FeatureTriggerProcedures),
		}})
	}
	slices.SortStableFunc(stmts, func(a, b pending) int { return cmp.Compare(a.line, b.line) })
	for _, p := range stmts {
		e.add(p.stmt)
	}
}

func (e *emitter) blocks() error {
	seen := make(map[string]int)
	for _, b := range e.schema.Blocks {
		h, ok := e.opts.Plugins.Lookup(b.Keyword)
		if !ok {
			return fmt.Errorf("codegen: no plugin registered for %s block at line %d", b.Keyword, b.Span.StartLine)
		}
		sql, err := h.Emit(plugin.Block{Keyword: b.Keyword, Body: b.Body, Span: b.Span}, b.Node)
		if err != nil {
			return fmt.Errorf("codegen: %s block at line %d: %w", b.Keyword, b.Span.StartLine, err)
		}
		seen[b.Keyword]++
		if strings.TrimSpace(sql) == "" {
			continue
		}
		e.add(Statement{
			Kind: KindPlugin,
			Key:  fmt.Sprintf("block:%s:%d", b.Keyword, seen[b.Keyword]),
			SQL:  strings.TrimSpace(sql),
		})
	}
	return nil
}
