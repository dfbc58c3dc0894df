package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/electwix/erd-catalyst/internal/plugin"
	"github.com/electwix/erd-catalyst/internal/schema/ast"
	"github.com/electwix/erd-catalyst/internal/schema/tokenizer"
)

var ignoreSpans = cmpopts.IgnoreTypes(tokenizer.Span{})

func parseSource(t *testing.T, src string, opts ...Option) (*ast.File, Errors) {
	t.Helper()
	tokens, err := tokenizer.Scan("test.erd", []byte(src))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	file, err := Parse("test.erd", []byte(src), tokens, opts...)
	if err == nil {
		return file, nil
	}
	var errs Errors
	if !errors.As(err, &errs) {
		t.Fatalf("Parse returned %T, want Errors", err)
	}
	return file, errs
}

func mustParse(t *testing.T, src string, opts ...Option) *ast.File {
	t.Helper()
	file, errs := parseSource(t, src, opts...)
	if len(errs) > 0 {
		t.Fatalf("unexpected parse errors:\n%v", errs)
	}
	return file
}

func TestParseEntityFields(t *testing.T) {
	t.Parallel()
	file := mustParse(t, `:Organization
  UUID $.id PK
  has VARCHAR(255) $.domain UNIQUE NOT NULL
  NUMERIC(10, 2) $.balance DEFAULT -1.5 CHECK (balance >= -100)
  TIMESTAMP $.created_at DEFAULT now()
  User @.members
  TEXT %.tags DEFAULT ['a', 'b']
  UUID $.owner_id FK(User) NOT NULL
`)
	if len(file.Statements) != 1 {
		t.Fatalf("statements = %d, want 1", len(file.Statements))
	}
	ent, ok := file.Statements[0].(*ast.Entity)
	if !ok {
		t.Fatalf("statement is %T, want *ast.Entity", file.Statements[0])
	}
	want := &ast.Entity{
		Name: "Organization",
		Fields: []*ast.Field{
			{Type: ast.TypeRef{Name: "UUID"}, Sigil: tokenizer.SigilScalar, Name: "id",
				Constraints: []ast.Constraint{{Kind: ast.ConstraintPrimaryKey}}},
			{Has: true, Type: ast.TypeRef{Name: "VARCHAR", Args: []ast.Literal{{Kind: ast.LiteralNumber, Text: "255"}}},
				Sigil: tokenizer.SigilScalar, Name: "domain",
				Constraints: []ast.Constraint{{Kind: ast.ConstraintUnique}, {Kind: ast.ConstraintNotNull}}},
			{Type: ast.TypeRef{Name: "NUMERIC", Args: []ast.Literal{{Kind: ast.LiteralNumber, Text: "10"}, {Kind: ast.LiteralNumber, Text: "2"}}},
				Sigil: tokenizer.SigilScalar, Name: "balance",
				Constraints: []ast.Constraint{
					{Kind: ast.ConstraintDefault, Default: &ast.Literal{Kind: ast.LiteralNumber, Text: "-1.5"}},
					{Kind: ast.ConstraintCheck, Check: "balance >= -100"},
				}},
			{Type: ast.TypeRef{Name: "TIMESTAMP"}, Sigil: tokenizer.SigilScalar, Name: "created_at",
				Constraints: []ast.Constraint{{Kind: ast.ConstraintDefault, Default: &ast.Literal{Kind: ast.LiteralCall, Text: "now()"}}}},
			{Type: ast.TypeRef{Name: "User"}, Sigil: tokenizer.SigilList, Name: "members"},
			{Type: ast.TypeRef{Name: "TEXT"}, Sigil: tokenizer.SigilSet, Name: "tags",
				Constraints: []ast.Constraint{{Kind: ast.ConstraintDefault, Default: &ast.Literal{Kind: ast.LiteralList, Text: "['a', 'b']"}}}},
			{Type: ast.TypeRef{Name: "UUID"}, Sigil: tokenizer.SigilScalar, Name: "owner_id",
				Constraints: []ast.Constraint{{Kind: ast.ConstraintForeignKey, Target: "User"}, {Kind: ast.ConstraintNotNull}}},
		},
	}
	if diff := cmp.Diff(want, ent, ignoreSpans); diff != "" {
		t.Fatalf("entity mismatch (-want +got):\n%s", diff)
	}
}

func TestParseEntityKeysAndDirectives(t *testing.T) {
	t.Parallel()
	file := mustParse(t, `:PostTags
  UUID $.post_id FK
  UUID $.tag_id FK
  TIMESTAMP $.created_at
  TIMESTAMP $.deleted_at
  TEXT $.body
  PK(post_id, tag_id)
  UNIQUE(tag_id, post_id)
  CHECK (post_id <> tag_id)
  PARTITION BY range(created_at)
  TTL(created_at, '30 days')
  FTS(body) USING gin
  RLS ENABLE
  POLICY tenant FOR select TO app_user USING (tenant_id = current_setting('app.tenant')::uuid) WITH CHECK (true)
  AUDITABLE
  SOFT_DELETE(deleted_at)
`)
	ent := file.Statements[0].(*ast.Entity)
	wantKeys := []*ast.KeyLine{
		{Kind: ast.KeyPrimary, Columns: []string{"post_id", "tag_id"}},
		{Kind: ast.KeyUnique, Columns: []string{"tag_id", "post_id"}},
		{Kind: ast.KeyCheck, Check: "post_id <> tag_id"},
	}
	if diff := cmp.Diff(wantKeys, ent.Keys, ignoreSpans); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
	wantDirectives := []*ast.Directive{
		{Kind: ast.DirectivePartition, Method: "RANGE", Columns: []string{"created_at"}},
		{Kind: ast.DirectiveTTL, Columns: []string{"created_at"}, Interval: &ast.Literal{Kind: ast.LiteralString, Text: "'30 days'"}},
		{Kind: ast.DirectiveFTS, Method: "GIN", Columns: []string{"body"}},
		{Kind: ast.DirectiveRLS, Method: "ENABLE"},
		{Kind: ast.DirectivePolicy, Name: "tenant", Command: "SELECT", Role: "app_user",
			Using: "tenant_id = current_setting('app.tenant')::uuid", WithCheck: "true"},
		{Kind: ast.DirectiveAuditable},
		{Kind: ast.DirectiveSoftDelete, Columns: []string{"deleted_at"}},
	}
	if diff := cmp.Diff(wantDirectives, ent.Directives, ignoreSpans); diff != "" {
		t.Fatalf("directives mismatch (-want +got):\n%s", diff)
	}
}

func TestParseTopLevelStatements(t *testing.T) {
	t.Parallel()
	file := mustParse(t, `EXTENSION pgcrypto
EXTENSION "uuid-ossp"
enum Status { active, "on hold",
  archived }
enum Level [low, 'high']
INDEX UNIQUE idx_org_domain ON Organization (domain) WHERE deleted_at IS NULL
MATERIALIZED VIEW org_stats AS
  SELECT o.id, count(*) AS members
  FROM Organization o GROUP BY o.id
TRIGGER org_touch BEFORE UPDATE ON Organization FOR EACH ROW EXECUTE PROCEDURE touch_updated_at()
`)
	want := []ast.Statement{
		&ast.Extension{Name: "pgcrypto"},
		&ast.Extension{Name: "uuid-ossp"},
		&ast.Enum{Name: "Status", Variants: []ast.EnumVariant{{Name: "active"}, {Name: "on hold"}, {Name: "archived"}}},
		&ast.Enum{Name: "Level", Variants: []ast.EnumVariant{{Name: "low"}, {Name: "high"}}},
		&ast.Index{Name: "idx_org_domain", Unique: true, Table: "Organization", Columns: []string{"domain"}, Tail: "WHERE deleted_at IS NULL"},
		&ast.View{Name: "org_stats", Body: "SELECT o.id, count(*) AS members\n  FROM Organization o GROUP BY o.id"},
		&ast.Trigger{Name: "org_touch", Timing: "BEFORE UPDATE ON Organization FOR EACH ROW", Procedure: "touch_updated_at()"},
	}
	if diff := cmp.Diff(want, file.Statements, ignoreSpans); diff != "" {
		t.Fatalf("statements mismatch (-want +got):\n%s", diff)
	}
}

// Entities may share a name with a DSL keyword and still type fields.
func TestParseKeywordNamedFieldTypes(t *testing.T) {
	t.Parallel()
	file := mustParse(t, `:Claim
  UUID $.id PK
  Policy $.policy FK
  Partition $.partition FK
  Index $.index FK NOT NULL
  Trigger @.triggers
  Extension(1) $.extension
  TEXT $.note
  POLICY owner USING (true)
`)
	if len(file.Statements) != 1 {
		t.Fatalf("statements = %d, want 1", len(file.Statements))
	}
	ent := file.Statements[0].(*ast.Entity)
	var got []string
	for _, f := range ent.Fields {
		got = append(got, f.Type.Name+" "+f.Name)
	}
	want := []string{"UUID id", "Policy policy", "Partition partition", "Index index", "Trigger triggers", "Extension extension", "TEXT note"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}
	if len(ent.Directives) != 1 || ent.Directives[0].Kind != ast.DirectivePolicy {
		t.Fatalf("directives = %+v", ent.Directives)
	}
}

func TestParseEnumClosingBraceAtColumnOne(t *testing.T) {
	t.Parallel()
	file := mustParse(t, "enum Status {\n  active,\n  inactive\n}\n:User\n  Status $.status\n")
	if len(file.Statements) != 2 {
		t.Fatalf("statements = %d, want 2", len(file.Statements))
	}
	if got := len(file.Statements[0].(*ast.Enum).Variants); got != 2 {
		t.Fatalf("variants = %d, want 2", got)
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name     string
		src      string
		expected string
		line     int
	}{
		{"sigil without dot", ":User\n  UUID $id PK\n", ".identifier after sigil $", 2},
		{"unterminated composite key", ":User\n  UUID $.a\n  UUID $.b\n  PK(a, b\n", `"," or ")" closing the field name list`, 4},
		{"missing type", ":User\n  $.id PK\n", "field line or entity constraint", 2},
		{"bare null", ":User\n  TEXT $.name NULL\n", "NOT before NULL", 2},
		{"not without null", ":User\n  TEXT $.name NOT UNIQUE\n", "NULL after NOT", 2},
		{"trigger without procedure", "TRIGGER t BEFORE INSERT ON User\n", "EXECUTE PROCEDURE", 1},
		{"stray top-level line", "UUID $.id\n", "entity or top-level statement", 1},
		{"view without body", "MATERIALIZED VIEW v AS\n", "view body after AS", 1},
		{"check without expression", ":User\n  INT $.age CHECK 1\n", "parenthesized CHECK expression", 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, errs := parseSource(t, tc.src)
			if len(errs) != 1 {
				t.Fatalf("errors = %d, want 1: %v", len(errs), errs)
			}
			if errs[0].Expected != tc.expected {
				t.Fatalf("expected = %q, want %q", errs[0].Expected, tc.expected)
			}
			if errs[0].Line != tc.line {
				t.Fatalf("line = %d, want %d", errs[0].Line, tc.line)
			}
			if errs[0].Found == "" {
				t.Fatalf("found is empty")
			}
		})
	}
}

func TestParseRecoversAtNextStatement(t *testing.T) {
	t.Parallel()
	src := `INDEX broken
junk line here
more junk
:User
  UUID $.id PK
  UUID $bad
  TEXT $.name
:Team
  UUID $.id PK
`
	file, errs := parseSource(t, src)
	if len(errs) != 2 {
		t.Fatalf("errors = %d, want 2: %v", len(errs), errs)
	}
	if len(file.Statements) != 2 {
		t.Fatalf("statements = %d, want 2", len(file.Statements))
	}
	user := file.Statements[0].(*ast.Entity)
	if len(user.Fields) != 2 || user.Fields[1].Name != "name" {
		t.Fatalf("User fields after recovery = %+v", user.Fields)
	}
	if file.Statements[1].(*ast.Entity).Name != "Team" {
		t.Fatalf("second statement = %+v", file.Statements[1])
	}
}

func TestParseDedentEndsEntity(t *testing.T) {
	t.Parallel()
	_, errs := parseSource(t, ":User\n  UUID $.id PK\nTEXT $.name\n")
	if len(errs) != 1 || errs[0].Line != 3 {
		t.Fatalf("errors = %v, want one error on line 3", errs)
	}
}

func TestParsePluginBlock(t *testing.T) {
	t.Parallel()
	reg := plugin.NewRegistry()
	err := reg.Register("seed", plugin.Funcs{
		ParseFunc: func(b plugin.Block) (plugin.Node, error) {
			if !strings.HasPrefix(b.Body, "INTO") {
				return nil, errors.New("seed body must start with INTO")
			}
			return strings.Fields(b.Body)[1], nil
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	file := mustParse(t, "SEED INTO Organization\n  VALUES (1)\n:User\n  UUID $.id PK\n", WithPlugins(reg))
	block, ok := file.Statements[0].(*ast.Block)
	if !ok {
		t.Fatalf("statement is %T, want *ast.Block", file.Statements[0])
	}
	if block.Keyword != "SEED" || block.Body != "INTO Organization\n  VALUES (1)" || block.Node != "Organization" {
		t.Fatalf("block = %+v", block)
	}

	_, errs := parseSource(t, "SEED FROM x\n", WithPlugins(reg))
	if len(errs) != 1 || errs[0].Found != "seed body must start with INTO" {
		t.Fatalf("errors = %v", errs)
	}

	_, errs = parseSource(t, "SEED INTO x\n")
	if len(errs) != 1 {
		t.Fatalf("unregistered keyword should fail, got %v", errs)
	}
}

func TestParseErrorFormatting(t *testing.T) {
	t.Parallel()
	err := &Error{Path: "a.erd", Line: 3, Column: 5, Expected: `")"`, Found: "end of line"}
	if got, want := err.Error(), `a.erd:3:5: expected ")", found end of line`; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}
