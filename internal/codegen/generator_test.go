package codegen_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/electwix/erd-catalyst/internal/codegen"
	"github.com/electwix/erd-catalyst/internal/engine/sqlite"
	"github.com/electwix/erd-catalyst/internal/plugin"
	"github.com/electwix/erd-catalyst/internal/schema/builder"
	"github.com/electwix/erd-catalyst/internal/schema/model"
	"github.com/electwix/erd-catalyst/internal/schema/parser"
	"github.com/electwix/erd-catalyst/internal/schema/tokenizer"
	"github.com/electwix/erd-catalyst/internal/sidecar"
)

const blogSchema = `EXTENSION pgcrypto
enum Status { active, archived }

:Account
  UUID $.id PK DEFAULT gen_random_uuid()
  TEXT $.email UNIQUE NOT NULL
  Status $.status NOT NULL DEFAULT active
  TEXT %.tags DEFAULT []
  INT $.age CHECK (age >= 0)
  TIMESTAMPTZ $.deleted_at
  Post @.posts
  SOFT_DELETE(deleted_at)
  AUDITABLE

:Post
  UUID $.id PK
  Account $.author FK NOT NULL
  TEXT $.title DEFAULT "it's"
  TEXT $.body
  FTS(title, body)
  RLS ENABLE
  POLICY owner FOR select TO app USING (author = current_user_id())

INDEX idx_post_author ON Post (author)
`

func buildSchema(t testing.TB, src string, opts ...parser.Option) *model.Schema {
	t.Helper()
	tokens, err := tokenizer.Scan("test.erd", []byte(src))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	file, err := parser.Parse("test.erd", []byte(src), tokens, opts...)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	schema, _ := builder.Build(file)
	return schema
}

func generate(t *testing.T, schema *model.Schema, opts codegen.Options) *codegen.Output {
	t.Helper()
	out, err := codegen.New(opts).Generate(schema)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return out
}

func rendered(out *codegen.Output) []string {
	lines := make([]string, len(out.Statements))
	for i, stmt := range out.Statements {
		lines[i] = stmt.Render()
	}
	return lines
}

func TestGeneratePostgres(t *testing.T) {
	t.Parallel()
	out := generate(t, buildSchema(t, blogSchema), codegen.Options{})

	want := []string{
		"CREATE EXTENSION IF NOT EXISTS pgcrypto;",
		"CREATE TYPE Status AS ENUM ('active', 'archived');",
		"CREATE TABLE Account (id UUID PRIMARY KEY DEFAULT gen_random_uuid(), email TEXT UNIQUE NOT NULL, " +
			"status Status NOT NULL DEFAULT 'active', tags TEXT[] DEFAULT '{}', age INT CHECK (age >= 0), deleted_at TIMESTAMPTZ);",
		"CREATE TRIGGER Account_set_created_at BEFORE INSERT ON Account FOR EACH ROW EXECUTE PROCEDURE set_created_at();",
		"CREATE TRIGGER Account_set_updated_at BEFORE UPDATE ON Account FOR EACH ROW EXECUTE PROCEDURE set_updated_at();",
		"CREATE VIEW Account_active AS SELECT * FROM Account WHERE deleted_at IS NULL;",
		"CREATE TABLE Post (id UUID PRIMARY KEY, author UUID NOT NULL, title TEXT DEFAULT 'it''s', body TEXT);",
		"CREATE INDEX Post_fts_1 ON Post USING GIN (to_tsvector('simple', coalesce(title, '') || ' ' || coalesce(body, '')));",
		"ALTER TABLE Post ENABLE ROW LEVEL SECURITY;",
		"CREATE POLICY owner ON Post FOR SELECT TO app USING (author = current_user_id());",
		"ALTER TABLE Post ADD CONSTRAINT fk_Post_author FOREIGN KEY (author) REFERENCES Account (id);",
		"CREATE INDEX idx_post_author ON Post (author);",
	}
	if diff := cmp.Diff(want, rendered(out)); diff != "" {
		t.Fatalf("statements mismatch (-want +got):\n%s", diff)
	}
	if out.Dialect != "postgresql" {
		t.Fatalf("Dialect = %q", out.Dialect)
	}
	if got := out.SQL(); got != strings.Join(want, "\n")+"\n" {
		t.Fatalf("SQL() does not join rendered statements:\n%s", got)
	}
}

func TestGenerateScenarios(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name     string
		src      string
		contains []string
		absent   []string
	}{
		{
			name:     "single primary key inline",
			src:      ":Organization\n UUID $.id PK\n VARCHAR(255) $.domain UNIQUE NOT NULL\n",
			contains: []string{"CREATE TABLE Organization (id UUID PRIMARY KEY, domain VARCHAR(255) UNIQUE NOT NULL);"},
			absent:   []string{"PRIMARY KEY ("},
		},
		{
			name: "join entity",
			src:  ":Post\n UUID $.id PK\n:Tag\n UUID $.id PK\n:PostTags\n UUID $.post_id FK\n UUID $.tag_id FK\n PK(post_id,tag_id)\n",
			contains: []string{
				"CREATE TABLE PostTags (post_id UUID, tag_id UUID, PRIMARY KEY (post_id, tag_id));",
				"ALTER TABLE PostTags ADD CONSTRAINT fk_PostTags_post_id FOREIGN KEY (post_id) REFERENCES Post (id);",
				"ALTER TABLE PostTags ADD CONSTRAINT fk_PostTags_tag_id FOREIGN KEY (tag_id) REFERENCES Tag (id);",
			},
			absent: []string{"post_id UUID PRIMARY KEY", "tag_id UUID PRIMARY KEY"},
		},
		{
			name:     "entities without keys still generate",
			src:      ":Log\n TEXT $.line\n:Audit\n TEXT $.entry\n",
			contains: []string{"CREATE TABLE Log (line TEXT);", "CREATE TABLE Audit (entry TEXT);"},
		},
		{
			name:     "list fields have no column",
			src:      ":Author\n UUID $.id PK\n Book @.books\n:Book\n UUID $.id PK\n",
			contains: []string{"CREATE TABLE Author (id UUID PRIMARY KEY);"},
			absent:   []string{"books"},
		},
		{
			name:     "unresolved foreign key emits no constraint",
			src:      ":Comment\n UUID $.id PK\n UUID $.ghost_id FK\n",
			contains: []string{"CREATE TABLE Comment (id UUID PRIMARY KEY, ghost_id UUID);"},
			absent:   []string{"FOREIGN KEY", "REFERENCES"},
		},
		{
			name:     "composite key promoted from single column",
			src:      ":Setting\n TEXT $.key_name\n TEXT $.value\n PK(key_name)\n",
			contains: []string{"CREATE TABLE Setting (key_name TEXT PRIMARY KEY, value TEXT);"},
		},
		{
			name: "reference to composite key lists every column",
			src:  ":Pair\n UUID $.a\n UUID $.b\n PK(a, b)\n:Use\n UUID $.id PK\n Pair $.pair FK\n",
			contains: []string{
				"CREATE TABLE Use (id UUID PRIMARY KEY, pair UUID);",
				"ALTER TABLE Use ADD CONSTRAINT fk_Use_pair FOREIGN KEY (pair) REFERENCES Pair (a, b);",
			},
		},
		{
			name: "entity constraints after columns",
			src:  ":Member\n UUID $.id PK\n UUID $.org\n TEXT $.email\n UNIQUE(org, email)\n CHECK (email <> '')\n",
			contains: []string{
				"CREATE TABLE Member (id UUID PRIMARY KEY, org UUID, email TEXT, UNIQUE (org, email), CHECK (email <> ''));",
			},
		},
		{
			name: "quoted identifiers and plain derived names",
			src:  ":Account\n UUID $.id PK\n:billing/Invoice\n UUID $.id PK\n INT $.order\n UUID $.account_id FK\n",
			contains: []string{
				`CREATE TABLE "billing/Invoice" (id UUID PRIMARY KEY, "order" INT, account_id UUID);`,
				`ALTER TABLE "billing/Invoice" ADD CONSTRAINT fk_billing_Invoice_account_id FOREIGN KEY (account_id) REFERENCES Account (id);`,
			},
		},
		{
			name: "partition ttl and forced security",
			src:  ":Event\n UUID $.id PK\n TIMESTAMPTZ $.at\n PARTITION BY range (at)\n TTL(at, '30 days')\n RLS FORCE\n",
			contains: []string{
				"CREATE TABLE Event (id UUID PRIMARY KEY, at TIMESTAMPTZ) PARTITION BY RANGE (at);",
				"-- ttl: rows of Event expire 30 days after at\nCOMMENT ON TABLE Event IS 'ttl: at + 30 days';",
				"ALTER TABLE Event ENABLE ROW LEVEL SECURITY;",
				"ALTER TABLE Event FORCE ROW LEVEL SECURITY;",
			},
		},
		{
			name: "passthrough statements keep source order",
			src: ":T\n UUID $.id PK\n TEXT $.v\n" +
				"TRIGGER t_touch BEFORE UPDATE ON T FOR EACH ROW EXECUTE PROCEDURE touch()\n" +
				"MATERIALIZED VIEW t_values AS SELECT v FROM T\n" +
				"INDEX UNIQUE t_v ON T (v) WHERE v IS NOT NULL\n",
			contains: []string{
				"CREATE TRIGGER t_touch BEFORE UPDATE ON T FOR EACH ROW EXECUTE PROCEDURE touch();\n" +
					"CREATE MATERIALIZED VIEW t_values AS SELECT v FROM T;\n" +
					"CREATE UNIQUE INDEX t_v ON T (v) WHERE v IS NOT NULL;",
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			sql := generate(t, buildSchema(t, tc.src), codegen.Options{}).SQL()
			for _, want := range tc.contains {
				if !strings.Contains(sql, want) {
					t.Errorf("output lacks %q:\n%s", want, sql)
				}
			}
			for _, unwanted := range tc.absent {
				if strings.Contains(sql, unwanted) {
					t.Errorf("output contains %q:\n%s", unwanted, sql)
				}
			}
		})
	}
}

func TestGenerateIsIdempotent(t *testing.T) {
	t.Parallel()
	schema := buildSchema(t, blogSchema)
	gen := codegen.New(codegen.Options{IfNotExists: true})
	first, err := gen.Generate(schema)
	if err != nil {
		t.Fatal(err)
	}
	second, err := gen.Generate(schema)
	if err != nil {
		t.Fatal(err)
	}
	if first.SQL() != second.SQL() {
		t.Fatalf("outputs differ:\n%s\n---\n%s", first.SQL(), second.SQL())
	}
	if !strings.Contains(first.SQL(), "CREATE TABLE IF NOT EXISTS Account (") {
		t.Fatalf("IfNotExists ignored:\n%s", first.SQL())
	}
}

func TestGenerateSidecar(t *testing.T) {
	t.Parallel()
	overlay, err := sidecar.Parse("meta.yaml", []byte(`entities:
  Event:
    rls: false
    partitions: {strategy: list, columns: [region]}
    migrations:
      post: |
        GRANT SELECT ON Event TO reporting;
`))
	if err != nil {
		t.Fatal(err)
	}
	src := ":Event\n UUID $.id PK\n TEXT $.region\n TIMESTAMPTZ $.at\n PARTITION BY range (at)\n RLS ENABLE\n"
	out := generate(t, buildSchema(t, src), codegen.Options{Sidecar: overlay})

	want := []string{
		"CREATE TABLE Event (id UUID PRIMARY KEY, region TEXT, at TIMESTAMPTZ) PARTITION BY LIST (region);",
		"GRANT SELECT ON Event TO reporting;",
	}
	if diff := cmp.Diff(want, rendered(out)); diff != "" {
		t.Fatalf("statements mismatch (-want +got):\n%s", diff)
	}
	if stmt, ok := out.Statement("migration:Event"); !ok || stmt.Kind != codegen.KindMigration {
		t.Fatalf("migration statement = %+v, %v", stmt, ok)
	}
}

func TestGeneratePlugins(t *testing.T) {
	t.Parallel()
	reg := plugin.NewRegistry()
	if err := reg.Register("GRANT", plugin.Funcs{
		EmitFunc: func(b plugin.Block, _ plugin.Node) (string, error) {
			return "GRANT " + b.Body, nil
		},
	}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register("BROKEN", plugin.Funcs{
		EmitFunc: func(plugin.Block, plugin.Node) (string, error) {
			return "", errors.New("cannot emit")
		},
	}); err != nil {
		t.Fatal(err)
	}

	src := ":Post\n UUID $.id PK\nGRANT SELECT ON Post TO reporting\nGRANT INSERT ON Post TO writer\n"
	out := generate(t, buildSchema(t, src, parser.WithPlugins(reg)), codegen.Options{Plugins: reg})
	blocks := out.ByKind(codegen.KindPlugin)
	want := []codegen.Statement{
		{Kind: codegen.KindPlugin, Key: "block:GRANT:1", SQL: "GRANT SELECT ON Post TO reporting"},
		{Kind: codegen.KindPlugin, Key: "block:GRANT:2", SQL: "GRANT INSERT ON Post TO writer"},
	}
	if diff := cmp.Diff(want, blocks); diff != "" {
		t.Fatalf("plugin statements mismatch (-want +got):\n%s", diff)
	}

	schema := buildSchema(t, ":Post\n UUID $.id PK\nBROKEN whatever\n", parser.WithPlugins(reg))
	if _, err := codegen.New(codegen.Options{Plugins: reg}).Generate(schema); err == nil || !strings.Contains(err.Error(), "cannot emit") {
		t.Fatalf("expected emitter error, got %v", err)
	}
	if _, err := codegen.New(codegen.Options{}).Generate(schema); err == nil || !strings.Contains(err.Error(), "no plugin registered") {
		t.Fatalf("expected missing plugin error, got %v", err)
	}
}

func TestGenerateSQLiteDialect(t *testing.T) {
	t.Parallel()
	out := generate(t, buildSchema(t, blogSchema), codegen.Options{Dialect: sqlite.New(), Header: "generated by erd-catalyst\n\ndo not edit"})

	want := []string{
		"-- CREATE EXTENSION IF NOT EXISTS pgcrypto;",
		"CREATE TABLE Account (id UUID PRIMARY KEY DEFAULT (gen_random_uuid()), email TEXT UNIQUE NOT NULL, " +
			"status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'archived')), tags TEXT DEFAULT '[]', " +
			"age INT CHECK (age >= 0), deleted_at TIMESTAMPTZ);",
		"-- CREATE TRIGGER Account_set_created_at BEFORE INSERT ON Account FOR EACH ROW EXECUTE PROCEDURE set_created_at();",
		"-- CREATE TRIGGER Account_set_updated_at BEFORE UPDATE ON Account FOR EACH ROW EXECUTE PROCEDURE set_updated_at();",
		"CREATE VIEW Account_active AS SELECT * FROM Account WHERE deleted_at IS NULL;",
		"CREATE TABLE Post (id UUID PRIMARY KEY, author UUID NOT NULL, title TEXT DEFAULT 'it''s', body TEXT, " +
			"CONSTRAINT fk_Post_author FOREIGN KEY (author) REFERENCES Account (id));",
		"-- CREATE INDEX Post_fts_1 ON Post USING GIN (to_tsvector('simple', coalesce(title, '') || ' ' || coalesce(body, '')));",
		"-- ALTER TABLE Post ENABLE ROW LEVEL SECURITY;",
		"-- CREATE POLICY owner ON Post FOR SELECT TO app USING (author = current_user_id());",
		"CREATE INDEX idx_post_author ON Post (author);",
	}
	if diff := cmp.Diff(want, rendered(out)); diff != "" {
		t.Fatalf("statements mismatch (-want +got):\n%s", diff)
	}
	if !strings.HasPrefix(out.SQL(), "-- generated by erd-catalyst\n--\n-- do not edit\n-- CREATE EXTENSION") {
		t.Fatalf("header not rendered:\n%s", out.SQL())
	}
}

func TestStatementRender(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		stmt codegen.Statement
		want string
	}{
		{codegen.Statement{SQL: "CREATE TABLE t (a INT)"}, "CREATE TABLE t (a INT);"},
		{codegen.Statement{SQL: "GRANT x;\n"}, "GRANT x;"},
		{codegen.Statement{SQL: "-- note\nCOMMENT ON TABLE t IS 'x'", Disabled: true}, "-- note\n-- COMMENT ON TABLE t IS 'x';"},
	}
	for _, tc := range testCases {
		if got := tc.stmt.Render(); got != tc.want {
			t.Errorf("Render(%q) = %q, want %q", tc.stmt.SQL, got, tc.want)
		}
	}
	if codegen.KindForeignKey.String() != "foreign_key" || codegen.Kind(0).String() != "unknown" {
		t.Error("Kind.String mismatch")
	}
}

func BenchmarkGenerate(b *testing.B) {
	schema := buildSchema(b, blogSchema)
	gen := codegen.New(codegen.Options{})
	for b.Loop() {
		if _, err := gen.Generate(schema); err != nil {
			b.Fatal(err)
		}
	}
}

func TestGenerateUniqueSetElements(t *testing.T) {
	t.Parallel()
	schema := buildSchema(t, ":Post\n  UUID $.id PK\n  TEXT %.tags UNIQUE NOT NULL\n  TEXT $.slug UNIQUE\n")

	pg := generate(t, schema, codegen.Options{})
	want := "CREATE TABLE Post (id UUID PRIMARY KEY, tags TEXT[] NOT NULL, slug TEXT UNIQUE);\n" +
		"CREATE TRIGGER Post_tags_distinct BEFORE INSERT OR UPDATE ON Post FOR EACH ROW EXECUTE PROCEDURE check_distinct_elements('tags');\n"
	if diff := cmp.Diff(want, pg.SQL()); diff != "" {
		t.Fatalf("postgres mismatch (-want +got):\n%s", diff)
	}
	stmt, ok := pg.Statement("trigger:Post_tags_distinct")
	if !ok || stmt.Kind != codegen.KindDistinctElements || stmt.Disabled {
		t.Fatalf("statement = %+v, %v", stmt, ok)
	}

	lite := generate(t, schema, codegen.Options{Dialect: sqlite.New()})
	stmt, ok = lite.Statement("trigger:Post_tags_distinct")
	if !ok || !stmt.Disabled || !strings.HasPrefix(stmt.Render(), "-- CREATE TRIGGER") {
		t.Fatalf("sqlite statement = %+v, %v", stmt, ok)
	}
}
