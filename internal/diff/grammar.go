package diff

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// The grammar only recognises statement heads and table bodies. Everything
// after the parts used for keying is accepted as trailing input.

var ddlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "QuotedIdent", Pattern: `"(?:[^"]|"")*"`},
	{Name: "String", Pattern: `[Ee]?'(?:[^']|'')*'`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_$]*`},
	{Name: "Number", Pattern: `[0-9]+(?:\.[0-9]+)?`},
	{Name: "Punct", Pattern: `[(),.\[\]]`},
	{Name: "Other", Pattern: `[^\sA-Za-z0-9_"'(),.\[\]]+`},
})

var statementParser = participle.MustBuild[statement](
	participle.Lexer(ddlLexer),
	participle.Elide("Whitespace"),
	participle.CaseInsensitive("Ident"),
	participle.UseLookahead(2),
)

type statement struct {
	Create  *createStmt  `  "CREATE" @@`
	Alter   *alterStmt   `| "ALTER" "TABLE" @@`
	Comment *commentStmt `| "COMMENT" "ON" @@`
}

type createStmt struct {
	OrReplace    bool      `( "OR" @"REPLACE" )?`
	Unique       bool      `@"UNIQUE"?`
	Materialized bool      `@"MATERIALIZED"?`
	Kind         string    `@( "TABLE" | "INDEX" | "VIEW" | "TRIGGER" | "EXTENSION" | "TYPE" | "POLICY" )`
	IfNotExists  bool      `@( "IF" "NOT" "EXISTS" )?`
	Name         *name     `@@`
	On           *name     `( "ON" @@ )?`
	Elements     []element `( "(" @@ ( "," @@ )* ")" )?`
}

type alterStmt struct {
	Only       bool  `@"ONLY"?`
	IfExists   bool  `@( "IF" "EXISTS" )?`
	Table      *name `@@`
	Constraint *name `( "ADD" "CONSTRAINT" @@ )?`
}

type commentStmt struct {
	Object string `@Ident`
	Name   *name  `@@`
}

// element is one entry of a parenthesised list: a column, a table
// constraint or an index key.
type element struct {
	Constraint string  `(  @( "CONSTRAINT" | "PRIMARY" | "UNIQUE" | "CHECK" | "FOREIGN" | "EXCLUDE" )`
	Column     *name   `  | @@ )`
	Rest       []chunk `@@*`
}

type chunk struct {
	Group   *group   `  @@`
	Bracket *bracket `| @@`
	Token   string   `| @( Ident | QuotedIdent | String | Number | Other | "." )`
}

type group struct {
	Items []groupItem `"(" @@* ")"`
}

type bracket struct {
	Items []groupItem `"[" @@* "]"`
}

type groupItem struct {
	Comma bool   `  @","`
	Chunk *chunk `| @@`
}

type name struct {
	Parts []string `@( Ident | QuotedIdent ) ( "." @( Ident | QuotedIdent ) )*`
}

// String joins the parts with "." after removing identifier quotes.
func (n *name) String() string {
	if n == nil {
		return ""
	}
	parts := make([]string, len(n.Parts))
	for i, p := range n.Parts {
		parts[i] = unquoteIdent(p)
	}
	return strings.Join(parts, ".")
}

func unquoteIdent(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
	}
	return s
}

func parseStatement(stmt string) (*statement, error) {
	return statementParser.ParseString("", stmt, participle.AllowTrailing(true))
}
