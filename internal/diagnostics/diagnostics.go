// Package diagnostics carries the messages every compiler stage reports:
// severity, code, source position and the entity or field involved.
package diagnostics

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/electwix/erd-catalyst/internal/schema/tokenizer"
)

// Severity indicates the seriousness of a diagnostic.
type Severity int

const (
	// SeverityInfo indicates an informational message.
	SeverityInfo Severity = iota
	// SeverityWarning indicates a potential issue that doesn't fail the run.
	SeverityWarning
	// SeverityError indicates an issue that fails the run.
	SeverityError
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// SeverityFromString parses a severity level from a string.
func SeverityFromString(s string) Severity {
	switch strings.ToLower(s) {
	case "info":
		return SeverityInfo
	case "warning", "warn":
		return SeverityWarning
	case "error", "err":
		return SeverityError
	default:
		return SeverityWarning
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	*s = SeverityFromString(string(text))
	return nil
}

// Location represents a position in a source file.
type Location struct {
	Path   string `json:"path,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// RelatedInfo points at a second location relevant to a diagnostic, such as
// the first declaration of a duplicated name.
type RelatedInfo struct {
	Location Location `json:"location"`
	Message  string   `json:"message"`
}

// Diagnostic is one message produced by a compiler stage.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code,omitempty"`
	Message  string   `json:"message"`

	// Entity and Field name the schema element the message is about.
	Entity string `json:"entity,omitempty"`
	Field  string `json:"field,omitempty"`

	Location Location `json:"location"`

	Notes   []string      `json:"notes,omitempty"`
	Related []RelatedInfo `json:"related,omitempty"`
}

// HasLocation returns true if the diagnostic has a valid location.
func (d Diagnostic) HasLocation() bool {
	return d.Location.Path != "" && d.Location.Line > 0
}

// IsError returns true if the diagnostic is an error.
func (d Diagnostic) IsError() bool {
	return d.Severity == SeverityError
}

// IsWarning returns true if the diagnostic is a warning.
func (d Diagnostic) IsWarning() bool {
	return d.Severity == SeverityWarning
}

// Subject renders the entity and field as "Entity.field", or whichever of
// the two is set.
func (d Diagnostic) Subject() string {
	switch {
	case d.Entity != "" && d.Field != "":
		return d.Entity + "." + d.Field
	case d.Entity != "":
		return d.Entity
	default:
		return d.Field
	}
}

// Error implements the error interface.
func (d Diagnostic) Error() string {
	var b strings.Builder
	if d.HasLocation() {
		fmt.Fprintf(&b, "%s:%d:%d: ", d.Location.Path, d.Location.Line, d.Location.Column)
	}
	b.WriteString(d.Severity.String())
	if d.Code != "" {
		fmt.Fprintf(&b, "[%s]", d.Code)
	}
	b.WriteString(": ")
	b.WriteString(d.Message)
	return b.String()
}

// String returns the diagnostic with notes and related locations.
func (d Diagnostic) String() string {
	var b strings.Builder
	b.WriteString(d.Error())
	for _, note := range d.Notes {
		fmt.Fprintf(&b, "\n  note: %s", note)
	}
	for _, rel := range d.Related {
		fmt.Fprintf(&b, "\n  related: %s:%d:%d: %s",
			rel.Location.Path, rel.Location.Line, rel.Location.Column, rel.Message)
	}
	return b.String()
}

// Builder provides a fluent API for constructing diagnostics.
type Builder struct {
	diag Diagnostic
}

// NewBuilder creates a new diagnostic builder with the given severity and message.
func NewBuilder(severity Severity, message string) *Builder {
	return &Builder{
		diag: Diagnostic{
			Severity: severity,
			Message:  message,
		},
	}
}

// Error creates a builder for an error-level diagnostic.
func Error(message string) *Builder {
	return NewBuilder(SeverityError, message)
}

// Errorf creates an error-level builder with a formatted message.
func Errorf(format string, args ...any) *Builder {
	return NewBuilder(SeverityError, fmt.Sprintf(format, args...))
}

// Warning creates a builder for a warning-level diagnostic.
func Warning(message string) *Builder {
	return NewBuilder(SeverityWarning, message)
}

// Warningf creates a warning-level builder with a formatted message.
func Warningf(format string, args ...any) *Builder {
	return NewBuilder(SeverityWarning, fmt.Sprintf(format, args...))
}

// WithCode sets the diagnostic code.
func (b *Builder) WithCode(code string) *Builder {
	b.diag.Code = code
	return b
}

// At sets the location.
func (b *Builder) At(path string, line, column int) *Builder {
	b.diag.Location = Location{
		Path:   path,
		Line:   line,
		Column: column,
	}
	return b
}

// AtLocation sets the location from a Location struct.
func (b *Builder) AtLocation(loc Location) *Builder {
	b.diag.Location = loc
	return b
}

// AtSpan sets the location to the start of span. path is used when the span
// carries no file name.
func (b *Builder) AtSpan(path string, span tokenizer.Span) *Builder {
	b.diag.Location = SpanLocation(path, span)
	return b
}

// InEntity records the entity the diagnostic concerns.
func (b *Builder) InEntity(name string) *Builder {
	b.diag.Entity = name
	return b
}

// OnField records the field the diagnostic concerns.
func (b *Builder) OnField(name string) *Builder {
	b.diag.Field = name
	return b
}

// WithNote adds a note.
func (b *Builder) WithNote(note string) *Builder {
	b.diag.Notes = append(b.diag.Notes, note)
	return b
}

// WithRelated adds related information.
func (b *Builder) WithRelated(loc Location, message string) *Builder {
	b.diag.Related = append(b.diag.Related, RelatedInfo{Location: loc, Message: message})
	return b
}

// Build returns the constructed diagnostic.
func (b *Builder) Build() Diagnostic {
	return b.diag
}

// SpanLocation converts the start of span to a Location.
func SpanLocation(path string, span tokenizer.Span) Location {
	if span.File != "" {
		path = span.File
	}
	return Location{Path: path, Line: span.StartLine, Column: span.StartColumn}
}

// Collection holds diagnostics in the order they were reported.
type Collection struct {
	diagnostics []Diagnostic
}

// NewCollection creates a new empty diagnostic collection.
func NewCollection() *Collection {
	return &Collection{}
}

// Add appends diagnostics to the collection.
func (c *Collection) Add(d ...Diagnostic) {
	c.diagnostics = append(c.diagnostics, d...)
}

// HasErrors returns true if the collection contains any errors.
func (c *Collection) HasErrors() bool {
	return HasErrors(c.diagnostics)
}

// All returns all diagnostics.
func (c *Collection) All() []Diagnostic {
	return append([]Diagnostic(nil), c.diagnostics...)
}

// SortByLocation orders diagnostics by path, line and column. Diagnostics at
// the same position keep their reporting order.
func (c *Collection) SortByLocation() {
	slices.SortStableFunc(c.diagnostics, func(a, b Diagnostic) int {
		return compareLocation(a.Location, b.Location)
	})
}

func compareLocation(a, b Location) int {
	if c := cmp.Compare(a.Path, b.Path); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Line, b.Line); c != 0 {
		return c
	}
	return cmp.Compare(a.Column, b.Column)
}

// Summary provides a quick overview of diagnostics.
type Summary struct {
	Total    int
	Errors   int
	Warnings int
	Infos    int
}

// Summarize counts diagnostics by severity.
func Summarize(diags []Diagnostic) Summary {
	s := Summary{Total: len(diags)}
	for _, d := range diags {
		switch d.Severity {
		case SeverityError:
			s.Errors++
		case SeverityWarning:
			s.Warnings++
		case SeverityInfo:
			s.Infos++
		}
	}
	return s
}

// HasErrors reports whether any diagnostic is an error.
func HasErrors(diags []Diagnostic) bool {
	return slices.ContainsFunc(diags, Diagnostic.IsError)
}
