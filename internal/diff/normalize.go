package diff

import (
	"regexp"
	"strings"
)

var dollarTag = regexp.MustCompile(`^\$(?:[A-Za-z_][A-Za-z0-9_]*)?\$`)

// Normalize splits ddl into statements with comments removed and
// whitespace collapsed to single spaces. Statements end at a top-level ";";
// quoted strings, quoted identifiers and dollar-quoted bodies are kept
// verbatim. Empty statements are dropped.
func Normalize(ddl string) []string {
	var (
		out   []string
		b     strings.Builder
		space bool
	)
	flush := func() {
		if stmt := strings.TrimSpace(b.String()); stmt != "" {
			out = append(out, stmt)
		}
		b.Reset()
		space = false
	}
	write := func(s string) {
		if space && b.Len() > 0 && !tight(b.String(), s) {
			b.WriteByte(' ')
		}
		space = false
		b.WriteString(s)
	}

	for i := 0; i < len(ddl); {
		c := ddl[i]
		switch {
		case c == ';':
			flush()
			i++
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f':
			space = true
			i++
		case c == '-' && strings.HasPrefix(ddl[i:], "--"):
			end := strings.IndexByte(ddl[i:], '\n')
			if end < 0 {
				end = len(ddl) - i
			}
			space = true
			i += end
		case c == '/' && strings.HasPrefix(ddl[i:], "/*"):
			i = skipBlockComment(ddl, i)
			space = true
		case c == '\'':
			escapes := i > 0 && (ddl[i-1] == 'E' || ddl[i-1] == 'e') && (i == 1 || !isWordByte(ddl[i-2]))
			end := quotedEnd(ddl, i, '\'', escapes)
			if escapes {
				b.WriteString(ddl[i:end])
			} else {
				write(ddl[i:end])
			}
			i = end
		case c == '"':
			end := quotedEnd(ddl, i, '"', false)
			write(ddl[i:end])
			i = end
		case c == '$':
			if tag := dollarTag.FindString(ddl[i:]); tag != "" {
				end := strings.Index(ddl[i+len(tag):], tag)
				if end < 0 {
					end = len(ddl) - i - len(tag)
				} else {
					end += len(tag)
				}
				write(ddl[i : i+len(tag)+end])
				i += len(tag) + end
				continue
			}
			write("$")
			i++
		default:
			write(string(c))
			i++
		}
	}
	flush()
	return out
}

// quotedEnd returns the index just past the quoted run starting at start.
// A doubled quote is an escaped quote; with escapes, so is a backslash pair.
func quotedEnd(s string, start int, quote byte, escapes bool) int {
	for i := start + 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if escapes {
				i++
			}
		case quote:
			if i+1 < len(s) && s[i+1] == quote {
				i++
				continue
			}
			return i + 1
		}
	}
	return len(s)
}

// skipBlockComment returns the index past the comment at start. Block
// comments nest.
func skipBlockComment(s string, start int) int {
	depth := 0
	for i := start; i < len(s)-1; i++ {
		switch {
		case s[i] == '/' && s[i+1] == '*':
			depth++
			i++
		case s[i] == '*' && s[i+1] == '/':
			depth--
			i++
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(s)
}

// tight reports whether whitespace between prev and next is insignificant:
// inside the opening of a parenthesis or before a closing one or a comma.
func tight(prev, next string) bool {
	return strings.HasSuffix(prev, "(") || next == ")" || next == ","
}

func isWordByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
