// Package ast defines the untyped statement tree produced by the parser.
//
// Nodes record what was written and where; names are not resolved and
// duplicate constraints are preserved so later stages can report them.
package ast

import (
	"strings"

	"github.com/electwix/erd-catalyst/internal/schema/tokenizer"
)

// File is the parsed form of one source document.
type File struct {
	Path       string
	Statements []Statement
}

// Statement is a top-level node.
type Statement interface {
	Pos() tokenizer.Span
	statement()
}

// LiteralKind classifies literal values.
type LiteralKind int

const (
	LiteralNumber LiteralKind = iota + 1
	LiteralString
	LiteralIdent
	LiteralCall
	LiteralList
	LiteralNull
)

func (k LiteralKind) String() string {
	switch k {
	case LiteralNumber:
		return "number"
	case LiteralString:
		return "string"
	case LiteralIdent:
		return "identifier"
	case LiteralCall:
		return "call"
	case LiteralList:
		return "list"
	case LiteralNull:
		return "null"
	default:
		return "unknown"
	}
}

// Literal is a constant as written. Text keeps the source form, including
// quotes for strings and the argument list for calls.
type Literal struct {
	Kind LiteralKind
	Text string
	Span tokenizer.Span
}

// Value returns the literal with string quoting removed.
func (l Literal) Value() string {
	if l.Kind == LiteralString {
		return tokenizer.Unquote(l.Text)
	}
	return l.Text
}

// DoubleQuoted reports whether a string literal used double quotes.
func (l Literal) DoubleQuoted() bool {
	return l.Kind == LiteralString && strings.HasPrefix(l.Text, `"`)
}

// TypeRef is a declared field type with optional literal arguments.
type TypeRef struct {
	Name string
	Args []Literal
	Span tokenizer.Span
}

// ConstraintKind identifies a field-level constraint.
type ConstraintKind int

const (
	ConstraintPrimaryKey ConstraintKind = iota + 1
	ConstraintUnique
	ConstraintNotNull
	ConstraintDefault
	ConstraintForeignKey
	ConstraintCheck
)

func (k ConstraintKind) String() string {
	switch k {
	case ConstraintPrimaryKey:
		return "PK"
	case ConstraintUnique:
		return "UNIQUE"
	case ConstraintNotNull:
		return "NOT NULL"
	case ConstraintDefault:
		return "DEFAULT"
	case ConstraintForeignKey:
		return "FK"
	case ConstraintCheck:
		return "CHECK"
	default:
		return "UNKNOWN"
	}
}

// Constraint is one field-level constraint.
type Constraint struct {
	Kind    ConstraintKind
	Default *Literal
	Check   string
	// Target is set when the FK names its target explicitly: FK(Target).
	Target string
	Span   tokenizer.Span
}

// Field is one field line of an entity block.
type Field struct {
	Has         bool
	Type        TypeRef
	Sigil       tokenizer.Sigil
	Name        string
	Constraints []Constraint
	Span        tokenizer.Span
}

// KeyKind identifies an entity-scoped key line.
type KeyKind int

const (
	KeyPrimary KeyKind = iota + 1
	KeyUnique
	KeyCheck
)

// KeyLine is an entity-scoped PK(...), UNIQUE(...) or CHECK(...) line.
type KeyLine struct {
	Kind    KeyKind
	Columns []string
	Check   string
	Span    tokenizer.Span
}

// DirectiveKind identifies an extended-feature line.
type DirectiveKind int

const (
	DirectivePartition DirectiveKind = iota + 1
	DirectiveTTL
	DirectiveFTS
	DirectiveRLS
	DirectivePolicy
	DirectiveAuditable
	DirectiveSoftDelete
)

func (k DirectiveKind) String() string {
	switch k {
	case DirectivePartition:
		return "PARTITION"
	case DirectiveTTL:
		return "TTL"
	case DirectiveFTS:
		return "FTS"
	case DirectiveRLS:
		return "RLS"
	case DirectivePolicy:
		return "POLICY"
	case DirectiveAuditable:
		return "AUDITABLE"
	case DirectiveSoftDelete:
		return "SOFT_DELETE"
	default:
		return "UNKNOWN"
	}
}

// Directive is an extended-feature line inside an entity block. Which
// fields are populated depends on Kind.
type Directive struct {
	Kind DirectiveKind
	// Name is the policy name.
	Name string
	// Method is the partition strategy, the FTS index method or the RLS mode.
	Method   string
	Columns  []string
	Interval *Literal
	// Command and Role are the POLICY FOR and TO clauses.
	Command   string
	Role      string
	Using     string
	WithCheck string
	Span      tokenizer.Span
}

// Entity is a ":Name" block.
type Entity struct {
	Name       string
	NameSpan   tokenizer.Span
	Fields     []*Field
	Keys       []*KeyLine
	Directives []*Directive
	Span       tokenizer.Span
}

// EnumVariant is one label of an enum.
type EnumVariant struct {
	Name string
	Span tokenizer.Span
}

// Enum is an "enum Name {...}" declaration.
type Enum struct {
	Name     string
	Variants []EnumVariant
	Span     tokenizer.Span
}

// Index is a top-level INDEX statement. Tail holds any trailing text verbatim.
type Index struct {
	Name    string
	Unique  bool
	Table   string
	Columns []string
	Tail    string
	Span    tokenizer.Span
}

// View is a MATERIALIZED VIEW statement with an opaque SELECT body.
type View struct {
	Name string
	Body string
	Span tokenizer.Span
}

// Trigger is a TRIGGER statement. Timing holds the text between the name and
// EXECUTE PROCEDURE, Procedure the call that follows it.
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

// Block is a statement opened by a plugin keyword. Node is whatever the
// plugin's parse handler returned for Body.
type Block struct {
	Keyword string
	Body    string
	Node    any
	Span    tokenizer.Span
}

func (e *Entity) Pos() tokenizer.Span    { return e.Span }
func (e *Enum) Pos() tokenizer.Span      { return e.Span }
func (i *Index) Pos() tokenizer.Span     { return i.Span }
func (v *View) Pos() tokenizer.Span      { return v.Span }
func (t *Trigger) Pos() tokenizer.Span   { return t.Span }
func (e *Extension) Pos() tokenizer.Span { return e.Span }
func (b *Block) Pos() tokenizer.Span     { return b.Span }

func (*Entity) statement()    {}
func (*Enum) statement()      {}
func (*Index) statement()     {}
func (*View) statement()      {}
func (*Trigger) statement()   {}
func (*Extension) statement() {}
func (*Block) statement()     {}
