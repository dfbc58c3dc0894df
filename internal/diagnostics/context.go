package diagnostics

import (
	"fmt"
	"strings"
)

// Context is a window of source lines around a diagnostic.
type Context struct {
	Lines       []string
	StartLine   int
	ErrorLine   int
	ErrorColumn int
}

// ExtractContext returns up to contextLines lines either side of line.
func ExtractContext(src []byte, line, column, contextLines int) (Context, error) {
	lines := strings.Split(strings.ReplaceAll(string(src), "\r\n", "\n"), "\n")
	if line < 1 || line > len(lines) {
		return Context{}, fmt.Errorf("line %d out of range [1, %d]", line, len(lines))
	}
	start := max(1, line-contextLines)
	end := min(len(lines), line+contextLines)
	return Context{
		Lines:       lines[start-1 : end],
		StartLine:   start,
		ErrorLine:   line,
		ErrorColumn: column,
	}, nil
}

// IsEmpty returns true if the context has no lines.
func (c Context) IsEmpty() bool {
	return len(c.Lines) == 0
}

// Format renders the context with line numbers and a caret under the column.
func (c Context) Format() string {
	if c.IsEmpty() {
		return ""
	}

	var b strings.Builder
	width := len(fmt.Sprint(c.StartLine + len(c.Lines) - 1))
	for i, line := range c.Lines {
		n := c.StartLine + i
		marker := " "
		if n == c.ErrorLine {
			marker = ">"
		}
		fmt.Fprintf(&b, "%s %*d | %s\n", marker, width, n, line)
		if n != c.ErrorLine || c.ErrorColumn < 1 {
			continue
		}
		b.WriteString(strings.Repeat(" ", width+5))
		for j := 0; j < c.ErrorColumn-1 && j < len(line); j++ {
			if line[j] == '\t' {
				b.WriteByte('\t')
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteString("^\n")
	}
	return b.String()
}
