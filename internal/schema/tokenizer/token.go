package tokenizer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Kind represents the classification of a scanned token.
type Kind int

const (
	// KindInvalid represents an unrecognized or placeholder token.
	KindInvalid Kind = iota
	// KindEntity is the ":Name" marker that opens an entity block. Text holds the name.
	KindEntity
	// KindField is a sigil-prefixed field name such as "$.id". Text holds the name.
	KindField
	// KindIdentifier represents bare identifiers, including "/" and "." separated names.
	KindIdentifier
	// KindKeyword represents DSL keywords normalized to uppercase.
	KindKeyword
	// KindNumber represents integer and decimal literals.
	KindNumber
	// KindString represents single or double quoted literals, quotes included.
	KindString
	// KindList represents a bracketed list literal, brackets included.
	KindList
	// KindExpr represents the balanced parenthesis body following CHECK or USING.
	// Text holds the inner expression without the outer parentheses.
	KindExpr
	// KindSymbol represents punctuation and any other single character.
	KindSymbol
	// KindEOF marks the logical end of the input.
	KindEOF
)

// Sigil denotes the cardinality prefix of a field token.
type Sigil byte

const (
	// SigilNone is the zero value for tokens that are not fields.
	SigilNone Sigil = 0
	// SigilScalar is "$": a single value column.
	SigilScalar Sigil = '$'
	// SigilList is "@": an inverse relation with no column.
	SigilList Sigil = '@'
	// SigilSet is "%": a collection of unique scalars.
	SigilSet Sigil = '%'
)

func (s Sigil) String() string {
	switch s {
	case SigilScalar:
		return "scalar"
	case SigilList:
		return "list"
	case SigilSet:
		return "set"
	default:
		return "none"
	}
}

// Token is a unit emitted by the scanner with positional metadata.
type Token struct {
	Kind   Kind
	Text   string
	Sigil  Sigil
	File   string
	Line   int
	Column int
	// Offset and End are byte offsets of the token in the source.
	Offset int
	End    int
}

// Is reports whether the token is the given keyword.
func (t Token) Is(keyword string) bool {
	return t.Kind == KindKeyword && t.Text == keyword
}

// IsSymbol reports whether the token is the given single-character symbol.
func (t Token) IsSymbol(sym string) bool {
	return t.Kind == KindSymbol && t.Text == sym
}

// Describe renders the token for "found" positions in error messages.
func (t Token) Describe() string {
	switch t.Kind {
	case KindEOF:
		return "end of input"
	case KindEntity:
		return "entity marker :" + t.Text
	case KindField:
		return "field " + string(t.Sigil) + "." + t.Text
	case KindExpr:
		return "expression (" + t.Text + ")"
	default:
		return strconv.Quote(t.Text)
	}
}

// Span represents a best-effort start and end position within a source file.
type Span struct {
	File        string
	StartLine   int
	StartColumn int
	EndLine     int
	EndColumn   int
}

// NewSpan returns a span covering a single token.
func NewSpan(tok Token) Span {
	return Span{
		File:        tok.File,
		StartLine:   tok.Line,
		StartColumn: tok.Column,
		EndLine:     tok.Line,
		EndColumn:   spanEndColumn(tok),
	}
}

// SpanBetween returns a span that covers both the start and end tokens, inclusive.
func SpanBetween(start, end Token) Span {
	span := NewSpan(start)
	span.EndLine = end.Line
	span.EndColumn = spanEndColumn(end)
	if span.EndLine < span.StartLine || (span.EndLine == span.StartLine && span.EndColumn < span.StartColumn) {
		span.EndLine = span.StartLine
		span.EndColumn = span.StartColumn
	}
	return span
}

// Extend expands the span to include the provided token.
func (s Span) Extend(tok Token) Span {
	if s.StartLine == 0 && s.StartColumn == 0 {
		return NewSpan(tok)
	}
	endLine := tok.Line
	endColumn := spanEndColumn(tok)
	if endLine > s.EndLine || (endLine == s.EndLine && endColumn > s.EndColumn) {
		s.EndLine = endLine
		s.EndColumn = endColumn
	}
	return s
}

func spanEndColumn(tok Token) int {
	width := tok.End - tok.Offset
	if width <= 0 {
		width = utf8.RuneCountInString(tok.Text)
	}
	if width <= 0 {
		return tok.Column
	}
	return tok.Column + width
}

// Error describes a positional scanning error suitable for diagnostics.
type Error struct {
	Path    string
	Line    int
	Column  int
	Message string
}

// Error returns the printable representation of the tokenizer error.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Path != "" {
		return fmt.Sprintf("%s:%d:%d: %s", e.Path, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

// Errors collects every lexing error found in one source.
type Errors []*Error

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, err := range e {
		parts = append(parts, err.Error())
	}
	return strings.Join(parts, "\n")
}

// Unwrap exposes the individual errors to errors.As and errors.Is.
func (e Errors) Unwrap() []error {
	out := make([]error, len(e))
	for i, err := range e {
		out[i] = err
	}
	return out
}

// Err returns nil when the list is empty so callers never see a typed nil.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// IsKeyword reports whether the provided string matches a known keyword.
func IsKeyword(s string) bool {
	if s == "" {
		return false
	}
	_, ok := keywords[strings.ToUpper(s)]
	return ok
}

// Unquote strips the quotes of a string literal and collapses doubled quotes.
func Unquote(text string) string {
	if len(text) < 2 {
		return text
	}
	quote := text[0]
	if (quote != '\'' && quote != '"') || text[len(text)-1] != quote {
		return text
	}
	q := string(quote)
	return strings.ReplaceAll(text[1:len(text)-1], q+q, q)
}

var keywords = map[string]struct{}{
	"AUDITABLE":    {},
	"CHECK":        {},
	"DEFAULT":      {},
	"ENUM":         {},
	"EXECUTE":      {},
	"EXTENSION":    {},
	"FK":           {},
	"FTS":          {},
	"HAS":          {},
	"INDEX":        {},
	"MATERIALIZED": {},
	"NOT":          {},
	"NULL":         {},
	"PARTITION":    {},
	"PK":           {},
	"POLICY":       {},
	"PROCEDURE":    {},
	"RLS":          {},
	"SOFT_DELETE":  {},
	"TRIGGER":      {},
	"TTL":          {},
	"UNIQUE":       {},
	"VIEW":         {},
}

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "Invalid"
	case KindEntity:
		return "Entity"
	case KindField:
		return "Field"
	case KindIdentifier:
		return "Identifier"
	case KindKeyword:
		return "Keyword"
	case KindNumber:
		return "Number"
	case KindString:
		return "String"
	case KindList:
		return "List"
	case KindExpr:
		return "Expr"
	case KindSymbol:
		return "Symbol"
	case KindEOF:
		return "EOF"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}
