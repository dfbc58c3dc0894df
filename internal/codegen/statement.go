package codegen

import "strings"

// Kind classifies a generated statement.
type Kind int

const (
	KindExtension Kind = iota + 1
	KindEnum
	KindTable
	KindPartition
	KindTTL
	KindFullText
	KindRowSecurity
	KindPolicy
	KindAudit
	KindSoftDelete
	KindMigration
	KindForeignKey
	KindIndex
	KindView
	KindTrigger
	KindPlugin
	KindDistinctElements
)

var kindNames = map[Kind]string{
	KindExtension:        "extension",
	KindEnum:             "enum",
	KindTable:            "table",
	KindPartition:        "partition",
	KindTTL:              "ttl",
	KindFullText:         "fts",
	KindRowSecurity:      "rls",
	KindPolicy:           "policy",
	KindAudit:            "audit",
	KindSoftDelete:       "soft_delete",
	KindMigration:        "migration",
	KindForeignKey:       "foreign_key",
	KindIndex:            "index",
	KindView:             "view",
	KindTrigger:          "trigger",
	KindPlugin:           "plugin",
	KindDistinctElements: "distinct_elements",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Statement is one generated DDL statement without its terminator.
type Statement struct {
	Kind Kind
	// Key identifies the statement within one output, e.g. "table:Post".
	Key string
	// Entity names the entity the statement belongs to, if any.
	Entity string
	SQL    string
	// Disabled statements need a feature the dialect lacks and render as
	// comments.
	Disabled bool
}

// Render returns the statement terminated with a semicolon.
func (s Statement) Render() string {
	text := strings.TrimRight(strings.TrimSpace(s.SQL), "; \t\n") + ";"
	if !s.Disabled {
		return text
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if !strings.HasPrefix(line, "--") {
			lines[i] = "-- " + line
		}
	}
	return strings.Join(lines, "\n")
}

// Output is the ordered result of one generation.
type Output struct {
	Dialect    string
	Header     string
	Statements []Statement
}

// SQL renders the header banner and every statement, one per line.
func (o *Output) SQL() string {
	var b strings.Builder
	if o.Header != "" {
		for line := range strings.SplitSeq(strings.TrimRight(o.Header, "\n"), "\n") {
			b.WriteString(strings.TrimRight("-- "+line, " "))
			b.WriteByte('\n')
		}
	}
	for _, stmt := range o.Statements {
		b.WriteString(stmt.Render())
		b.WriteByte('\n')
	}
	return b.String()
}

// Statement returns the statement with key.
func (o *Output) Statement(key string) (Statement, bool) {
	for _, stmt := range o.Statements {
		if stmt.Key == key {
			return stmt, true
		}
	}
	return Statement{}, false
}

// ByKind returns the statements of kind in output order.
func (o *Output) ByKind(kind Kind) []Statement {
	var out []Statement
	for _, stmt := range o.Statements {
		if stmt.Kind == kind {
			out = append(out, stmt)
		}
	}
	return out
}
