// Package model defines the resolved schema produced by the builder.
//
// A Schema is an arena: entities and enums live in slices in declaration
// order and refer to each other by index, so forward references need no
// pointers between entities.
package model

import (
	"strings"

	"github.com/electwix/erd-catalyst/internal/schema/tokenizer"
)

// EntityID indexes Schema.Entities.
type EntityID int

// NoEntity marks an unresolved entity reference.
const NoEntity EntityID = -1

// EnumID indexes Schema.Enums.
type EnumID int

// NoEnum marks a type that is not an enum.
const NoEnum EnumID = -1

// Schema is the resolved model of one document.
type Schema struct {
	Path       string
	Entities   []*Entity
	Enums      []*Enum
	Indexes    []*Index
	Views      []*View
	Triggers   []*Trigger
	Extensions []*Extension
	Blocks     []*Block
	// Unresolved lists references the builder could not bind. The validator
	// turns each into a diagnostic.
	Unresolved []UnresolvedReference

	entityByName map[string]EntityID
	enumByName   map[string]EnumID
}

// NewSchema returns an empty schema for the document at path.
func NewSchema(path string) *Schema {
	return &Schema{
		Path:         path,
		entityByName: make(map[string]EntityID),
		enumByName:   make(map[string]EnumID),
	}
}

// Declared reports whether name is taken by an entity or an enum. Entities
// and enums share one namespace.
func (s *Schema) Declared(name string) bool {
	_, isEntity := s.entityByName[name]
	_, isEnum := s.enumByName[name]
	return isEntity || isEnum
}

// AddEntity appends e and assigns its ID. It returns false, leaving the
// schema unchanged, when the name is already declared.
func (s *Schema) AddEntity(e *Entity) (EntityID, bool) {
	if s.Declared(e.Name) {
		return NoEntity, false
	}
	id := EntityID(len(s.Entities))
	e.ID = id
	s.Entities = append(s.Entities, e)
	s.entityByName[e.Name] = id
	return id, true
}

// AddEnum appends e and assigns its ID. It returns false, leaving the schema
// unchanged, when the name is already declared.
func (s *Schema) AddEnum(e *Enum) (EnumID, bool) {
	if s.Declared(e.Name) {
		return NoEnum, false
	}
	id := EnumID(len(s.Enums))
	e.ID = id
	s.Enums = append(s.Enums, e)
	s.enumByName[e.Name] = id
	return id, true
}

// LookupEntity resolves an entity name exactly.
func (s *Schema) LookupEntity(name string) (EntityID, bool) {
	id, ok := s.entityByName[name]
	if !ok {
		return NoEntity, false
	}
	return id, true
}

// LookupEnum resolves an enum name exactly.
func (s *Schema) LookupEnum(name string) (EnumID, bool) {
	id, ok := s.enumByName[name]
	if !ok {
		return NoEnum, false
	}
	return id, true
}

// Entity returns the entity for id, or nil for NoEntity.
func (s *Schema) Entity(id EntityID) *Entity {
	if id < 0 || int(id) >= len(s.Entities) {
		return nil
	}
	return s.Entities[id]
}

// Enum returns the enum for id, or nil for NoEnum.
func (s *Schema) Enum(id EnumID) *Enum {
	if id < 0 || int(id) >= len(s.Enums) {
		return nil
	}
	return s.Enums[id]
}

// EntityNamed returns the entity called name, or nil.
func (s *Schema) EntityNamed(name string) *Entity {
	id, _ := s.LookupEntity(name)
	return s.Entity(id)
}

// TypeKind says what a field's type name resolved to.
type TypeKind int

const (
	TypeUnresolved TypeKind = iota
	TypeBase
	TypeEnum
	TypeEntity
)

func (k TypeKind) String() string {
	switch k {
	case TypeBase:
		return "base"
	case TypeEnum:
		return "enum"
	case TypeEntity:
		return "entity"
	default:
		return "unresolved"
	}
}

// Type is a field's declared type after resolution.
type Type struct {
	Name   string
	Args   []Value
	Kind   TypeKind
	Enum   EnumID
	Entity EntityID
	Span   tokenizer.Span
}

// String renders the type as written, with arguments: VARCHAR(255).
func (t Type) String() string {
	if len(t.Args) == 0 {
		return t.Name
	}
	args := make([]string, len(t.Args))
	for i, a := range t.Args {
		args[i] = a.Text
	}
	return t.Name + "(" + strings.Join(args, ", ") + ")"
}

// ValueKind classifies literal values.
type ValueKind int

const (
	ValueNumber ValueKind = iota + 1
	ValueString
	ValueIdent
	ValueCall
	ValueList
	ValueNull
)

func (k ValueKind) String() string {
	switch k {
	case ValueNumber:
		return "number"
	case ValueString:
		return "string"
	case ValueIdent:
		return "identifier"
	case ValueCall:
		return "call"
	case ValueList:
		return "list"
	case ValueNull:
		return "null"
	default:
		return "unknown"
	}
}

// Value is a literal as written in the source. Text keeps quotes on strings.
type Value struct {
	Kind ValueKind
	Text string
	Span tokenizer.Span
}

// Unquoted returns the string contents of a string literal and Text otherwise.
func (v Value) Unquoted() string {
	if v.Kind == ValueString {
		return tokenizer.Unquote(v.Text)
	}
	return v.Text
}

// DoubleQuoted reports whether a string literal used double quotes.
func (v Value) DoubleQuoted() bool {
	return v.Kind == ValueString && strings.HasPrefix(v.Text, `"`)
}

// ConstraintKind identifies a constraint variant.
type ConstraintKind int

const (
	PrimaryKey ConstraintKind = iota + 1
	CompositePrimaryKey
	Unique
	NotNull
	Default
	ForeignKey
	Check
)

func (k ConstraintKind) String() string {
	switch k {
	case PrimaryKey:
		return "PK"
	case CompositePrimaryKey:
		return "PK(...)"
	case Unique:
		return "UNIQUE"
	case NotNull:
		return "NOT NULL"
	case Default:
		return "DEFAULT"
	case ForeignKey:
		return "FK"
	case Check:
		return "CHECK"
	default:
		return "UNKNOWN"
	}
}

// Constraint is a field-level or entity-level constraint. Which fields are
// populated depends on Kind.
type Constraint struct {
	Kind ConstraintKind
	// Columns lists the fields of a composite PK or a multi-column UNIQUE.
	Columns []string
	Default *Value
	Check   string
	// Target is the resolved FK target; TargetName is the name it was
	// resolved from, or the name that failed to resolve.
	Target     EntityID
	TargetName string
	Span       tokenizer.Span
}

// Cardinality is the field sigil.
type Cardinality int

const (
	Scalar Cardinality = iota
	List
	Set
)

func (c Cardinality) String() string {
	switch c {
	case List:
		return "list"
	case Set:
		return "set"
	default:
		return "scalar"
	}
}

// Sigil returns the DSL character for the cardinality.
func (c Cardinality) Sigil() string {
	switch c {
	case List:
		return "@"
	case Set:
		return "%"
	default:
		return "$"
	}
}

// Field is one field of an entity.
type Field struct {
	Name        string
	Cardinality Cardinality
	Type        Type
	HasKeyword  bool
	Constraints []Constraint
	Span        tokenizer.Span
}

// Has reports whether the field carries a constraint of kind.
func (f *Field) Has(kind ConstraintKind) bool {
	_, ok := f.Constraint(kind)
	return ok
}

// Constraint returns the first constraint of kind.
func (f *Field) Constraint(kind ConstraintKind) (Constraint, bool) {
	for _, c := range f.Constraints {
		if c.Kind == kind {
			return c, true
		}
	}
	return Constraint{}, false
}

// Count returns how many constraints of kind the field carries.
func (f *Field) Count(kind ConstraintKind) int {
	n := 0
	for _, c := range f.Constraints {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

// EmitsColumn reports whether the field becomes a table column. List fields
// document an inverse relation and have no column.
func (f *Field) EmitsColumn() bool {
	return f.Cardinality != List
}

// ForeignKey returns the field's FK constraint when its target resolved.
func (f *Field) ForeignKey() (Constraint, bool) {
	c, ok := f.Constraint(ForeignKey)
	if !ok || c.Target == NoEntity {
		return Constraint{}, false
	}
	return c, true
}

// Partition is a PARTITION BY attachment.
type Partition struct {
	Strategy string
	Columns  []string
	Span     tokenizer.Span
}

// TTL is a row expiry attachment.
type TTL struct {
	Column   string
	Interval Value
	Span     tokenizer.Span
}

// FTS is a full-text search index attachment.
type FTS struct {
	Columns []string
	Method  string
	Span    tokenizer.Span
}

// RLS is a row-level security attachment. Mode is ENABLE, DISABLE or FORCE.
type RLS struct {
	Mode string
	Span tokenizer.Span
}

// Policy is a row-level security policy.
type Policy struct {
	Name      string
	Command   string
	Role      string
	Using     string
	WithCheck string
	Span      tokenizer.Span
}

// SoftDelete names the field whose NULL value marks a live row.
type SoftDelete struct {
	Field string
	Span  tokenizer.Span
}

// Entity is a declared table.
type Entity struct {
	ID     EntityID
	Name   string
	Fields []*Field
	// Constraints holds entity-scoped constraints: at most one merged
	// CompositePrimaryKey, multi-column Unique and Check.
	Constraints []Constraint
	Partition   *Partition
	TTL         *TTL
	FTS         []FTS
	RLS         *RLS
	Policies    []Policy
	Auditable   bool
	SoftDelete  *SoftDelete
	Span        tokenizer.Span
}

// Field returns the field called name, or nil.
func (e *Entity) Field(name string) *Field {
	for _, f := range e.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// CompositeKey returns the merged composite primary key, if any.
func (e *Entity) CompositeKey() (Constraint, bool) {
	for _, c := range e.Constraints {
		if c.Kind == CompositePrimaryKey {
			return c, true
		}
	}
	return Constraint{}, false
}

// PrimaryKey returns the columns of the entity's effective primary key: the
// composite key when declared, otherwise the first simple PK field. It is
// empty when the entity has no key.
func (e *Entity) PrimaryKey() []string {
	if c, ok := e.CompositeKey(); ok {
		return c.Columns
	}
	for _, f := range e.Fields {
		if f.Has(PrimaryKey) {
			return []string{f.Name}
		}
	}
	return nil
}

// Enum is a declared enumeration.
type Enum struct {
	ID       EnumID
	Name     string
	Variants []string
	Span     tokenizer.Span
	// VariantSpans parallels Variants.
	VariantSpans []tokenizer.Span
}

// HasVariant reports whether label is one of the enum's variants.
func (e *Enum) HasVariant(label string) bool {
	for _, v := range e.Variants {
		if v == label {
			return true
		}
	}
	return false
}

// Index is a top-level INDEX statement. Entity is NoEntity when the table
// is not a declared entity.
type Index struct {
	Name    string
	Unique  bool
	Table   string
	Entity  EntityID
	Columns []string
	Tail    string
	Span    tokenizer.Span
}

// View is a MATERIALIZED VIEW statement.
type View struct {
	Name string
	Body string
	Span tokenizer.Span
}

// Trigger is a TRIGGER statement.
type Trigger struct {
	Name      string
	Timing    string
	Procedure string
	Span      tokenizer.Span
}

// Extension is an EXTENSION statement.
type Extension struct {
	Name string
	Span tokenizer.Span
}

// Block is a plugin statement.
type Block struct {
	Keyword string
	Body    string
	Node    any
	Span    tokenizer.Span
}

// ReferenceKind distinguishes unresolved FK targets from unresolved types.
type ReferenceKind int

const (
	RefForeignKey ReferenceKind = iota + 1
	RefType
)

// UnresolvedReference records a name that did not bind to a declaration.
type UnresolvedReference struct {
	Kind   ReferenceKind
	Entity string
	Field  string
	Name   string
	Span   tokenizer.Span
}
