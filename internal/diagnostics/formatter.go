package diagnostics

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	styleError    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	styleWarning  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	styleInfo     = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	styleCode     = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	styleLocation = lipgloss.NewStyle().Bold(true)
	styleNote     = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
)

// Formatter renders diagnostics as text.
type Formatter struct {
	// Colorize enables lipgloss styling.
	Colorize bool
	// ShowNotes controls whether notes and related locations are printed.
	ShowNotes bool
	// ShowCodeDescription appends the code's description after the code.
	ShowCodeDescription bool
	// Sources maps a path to its contents for snippet rendering. Paths that
	// are missing get no snippet.
	Sources map[string][]byte
	// ContextLines is the number of lines shown around a snippet's line.
	ContextLines int
}

// NewFormatter creates a new formatter with default settings.
func NewFormatter() *Formatter {
	return &Formatter{ShowNotes: true}
}

// Format formats a single diagnostic.
func (f *Formatter) Format(d Diagnostic) string {
	var b strings.Builder
	f.formatDiagnostic(&b, d)
	return b.String()
}

// WriteAll writes the diagnostics to w, one block each.
func (f *Formatter) WriteAll(w io.Writer, diags []Diagnostic) error {
	var b strings.Builder
	for _, d := range diags {
		f.formatDiagnostic(&b, d)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// PrintSummary prints a one-line count of errors and warnings.
func (f *Formatter) PrintSummary(w io.Writer, diags []Diagnostic) {
	s := Summarize(diags)
	if s.Total == 0 {
		return
	}
	parts := make([]string, 0, 2)
	if s.Errors > 0 {
		parts = append(parts, f.render(styleError, fmt.Sprintf("%d error(s)", s.Errors)))
	}
	if s.Warnings > 0 {
		parts = append(parts, f.render(styleWarning, fmt.Sprintf("%d warning(s)", s.Warnings)))
	}
	if len(parts) > 0 {
		_, _ = fmt.Fprintf(w, "%s\n", strings.Join(parts, ", "))
	}
}

func (f *Formatter) formatDiagnostic(b *strings.Builder, d Diagnostic) {
	if d.HasLocation() {
		fmt.Fprintf(b, "%s: ", f.render(styleLocation, fmt.Sprintf("%s:%d:%d", d.Location.Path, d.Location.Line, d.Location.Column)))
	}
	b.WriteString(f.render(f.severityStyle(d.Severity), d.Severity.String()))
	if d.Code != "" {
		b.WriteString(f.render(styleCode, "["+d.Code+"]"))
	}
	fmt.Fprintf(b, ": %s", d.Message)
	if f.ShowCodeDescription && d.Code != "" {
		fmt.Fprintf(b, " (%s)", CodeDescription(d.Code))
	}
	b.WriteString("\n")

	if src, ok := f.Sources[d.Location.Path]; ok && d.HasLocation() {
		if ctx, err := ExtractContext(src, d.Location.Line, d.Location.Column, f.ContextLines); err == nil {
			b.WriteString(ctx.Format())
		}
	}
	if !f.ShowNotes {
		return
	}
	for _, note := range d.Notes {
		fmt.Fprintf(b, "  %s %s\n", f.render(styleNote, "note:"), note)
	}
	for _, rel := range d.Related {
		fmt.Fprintf(b, "  %s %s:%d:%d: %s\n", f.render(styleNote, "related:"),
			rel.Location.Path, rel.Location.Line, rel.Location.Column, rel.Message)
	}
}

func (f *Formatter) severityStyle(s Severity) lipgloss.Style {
	switch s {
	case SeverityError:
		return styleError
	case SeverityWarning:
		return styleWarning
	default:
		return styleInfo
	}
}

func (f *Formatter) render(style lipgloss.Style, s string) string {
	if !f.Colorize {
		return s
	}
	return style.Render(s)
}

// JSONFormatter renders diagnostics as a JSON array.
type JSONFormatter struct {
	Indent bool
}

// WriteAll writes diags to w as one JSON document followed by a newline.
func (f *JSONFormatter) WriteAll(w io.Writer, diags []Diagnostic) error {
	if diags == nil {
		diags = []Diagnostic{}
	}
	enc := json.NewEncoder(w)
	if f.Indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(diags)
}
