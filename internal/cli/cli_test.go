package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/electwix/erd-catalyst/internal/diagnostics"
)

const (
	accountSchema = ":Account\n  UUID $.id PK\n  TEXT $.email UNIQUE\n"
	accountSQL    = "CREATE TABLE Account (id UUID PRIMARY KEY, email TEXT UNIQUE);\n"
	librarySchema = ":Author\n  INTEGER $.id PK\n\n:Book\n  INTEGER $.id PK\n  Author $.author FK NOT NULL\n"
	projectConfig = "schemas = [\"schema/*.erd\"]\nout = \"gen\"\n"
)

type result struct {
	code   int
	stdout string
	stderr string
}

func run(t *testing.T, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), args, &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// project creates a project and returns its config path.
func project(t *testing.T, schema string, extraConfig string) string {
	t.Helper()
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"erd-catalyst.toml": projectConfig + extraConfig,
		"schema/main.erd":   schema,
	})
	return filepath.Join(dir, "erd-catalyst.toml")
}

func TestGenerate(t *testing.T) {
	t.Parallel()
	cfg := project(t, accountSchema, "")

	res := run(t, "--config", cfg, "generate")
	if res.code != ExitOK {
		t.Fatalf("exit = %d, stderr = %q", res.code, res.stderr)
	}
	data, err := os.ReadFile(filepath.Join(filepath.Dir(cfg), "gen", "main.sql"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != accountSQL {
		t.Fatalf("main.sql = %q", data)
	}
}

func TestGenerateDryRun(t *testing.T) {
	t.Parallel()
	cfg := project(t, accountSchema, "")

	res := run(t, "generate", "--config", cfg, "--dry-run", "--dialect", "sqlite")
	if res.code != ExitOK {
		t.Fatalf("exit = %d, stderr = %q", res.code, res.stderr)
	}
	want := "-- " + filepath.Join(filepath.Dir(cfg), "gen", "main.sql") + "\n"
	if !strings.HasPrefix(res.stdout, want) || !strings.Contains(res.stdout, "CREATE TABLE Account") {
		t.Fatalf("stdout = %q", res.stdout)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(cfg), "gen")); !os.IsNotExist(err) {
		t.Fatalf("dry run created the output directory: %v", err)
	}
}

func TestGenerateReportsDiagnostics(t *testing.T) {
	t.Parallel()
	cfg := project(t, ":Post\n  UUID $.id PK\n  Ghost $.owner FK\n", "")

	res := run(t, "--config", cfg, "--color", "never", "generate")
	if res.code != ExitFailure {
		t.Fatalf("exit = %d, want %d; stderr = %q", res.code, ExitFailure, res.stderr)
	}
	if !strings.Contains(res.stderr, "main.erd:3:") || !strings.Contains(res.stderr, "error(s)") {
		t.Fatalf("stderr = %q", res.stderr)
	}

	res = run(t, "--config", cfg, "--format", "json", "generate")
	var diags []map[string]any
	if err := json.Unmarshal([]byte(res.stderr), &diags); err != nil {
		t.Fatalf("stderr is not a JSON array: %v\n%s", err, res.stderr)
	}
	if len(diags) == 0 || diags[0]["severity"] != "error" {
		t.Fatalf("diagnostics = %v", diags)
	}
}

func TestCheck(t *testing.T) {
	t.Parallel()
	cfg := project(t, accountSchema, "")

	res := run(t, "--config", cfg, "check")
	if res.code != ExitFailure || !strings.Contains(res.stdout, "main.sql: missing") {
		t.Fatalf("before generate: exit = %d, stdout = %q", res.code, res.stdout)
	}

	if res := run(t, "--config", cfg, "generate"); res.code != ExitOK {
		t.Fatalf("generate: %q", res.stderr)
	}
	if res := run(t, "--config", cfg, "check"); res.code != ExitOK {
		t.Fatalf("after generate: exit = %d, stdout = %q, stderr = %q", res.code, res.stdout, res.stderr)
	}

	writeFiles(t, filepath.Dir(cfg), map[string]string{"schema/main.erd": accountSchema + "  TEXT $.name\n"})
	res = run(t, "--config", cfg, "check")
	if res.code != ExitFailure || !strings.Contains(res.stdout, "~ table:Account") {
		t.Fatalf("after edit: exit = %d, stdout = %q", res.code, res.stdout)
	}
}

func TestLint(t *testing.T) {
	t.Parallel()
	cfg := project(t, "enum Mood { happy, sad }\n"+accountSchema, "")

	res := run(t, "--config", cfg, "lint")
	if res.code != ExitOK {
		t.Fatalf("exit = %d, stderr = %q", res.code, res.stderr)
	}
	if !strings.Contains(res.stderr, "L204") {
		t.Fatalf("stderr = %q, want L204", res.stderr)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(cfg), "gen")); !os.IsNotExist(err) {
		t.Fatal("lint wrote output")
	}
}

func TestCompile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.erd": accountSchema, "bad.erd": ":A\n  Ghost $.x FK\n"})

	res := run(t, "compile", filepath.Join(dir, "a.erd"))
	if res.code != ExitOK || res.stdout != accountSQL {
		t.Fatalf("exit = %d, stdout = %q, stderr = %q", res.code, res.stdout, res.stderr)
	}

	res = run(t, "compile", filepath.Join(dir, "a.erd"), filepath.Join(dir, "bad.erd"))
	if res.code != ExitFailure {
		t.Fatalf("exit = %d, want %d", res.code, ExitFailure)
	}
	if !strings.Contains(res.stdout, "-- "+filepath.Join(dir, "a.erd")) {
		t.Fatalf("stdout = %q", res.stdout)
	}

	if res := run(t, "compile", "--dialect", "oracle", filepath.Join(dir, "a.erd")); res.code != ExitError {
		t.Fatalf("unknown dialect exit = %d", res.code)
	}
}

func TestDiff(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"old.sql":  "CREATE TABLE a (id INT);\nCREATE TABLE b (id INT);\n",
		"same.sql": "-- reordered\nCREATE TABLE b (id INT);\nCREATE TABLE a (\n  id INT\n);\n",
		"new.sql":  "CREATE TABLE a (id BIGINT);\nCREATE INDEX a_id ON a (id);\n",
	})
	path := func(name string) string { return filepath.Join(dir, name) }

	if res := run(t, "diff", path("old.sql"), path("same.sql")); res.code != ExitOK || res.stdout != "" {
		t.Fatalf("equivalent scripts: exit = %d, stdout = %q", res.code, res.stdout)
	}

	res := run(t, "diff", path("old.sql"), path("new.sql"))
	if res.code != ExitFailure {
		t.Fatalf("exit = %d, want %d", res.code, ExitFailure)
	}
	want := "~ table:a\n+ index:a_id\n- table:b\n"
	if diff := cmp.Diff(want, res.stdout); diff != "" {
		t.Fatalf("stdout mismatch (-want +got):\n%s", diff)
	}

	res = run(t, "--format", "json", "diff", path("old.sql"), path("new.sql"))
	var out resultJSON
	if err := json.Unmarshal([]byte(res.stdout), &out); err != nil {
		t.Fatalf("stdout is not JSON: %v", err)
	}
	if !out.Drift || len(out.Changes) != 3 || out.Changes[0].Kind != "changed" {
		t.Fatalf("json = %+v", out)
	}

	if res := run(t, "diff", path("old.sql")); res.code != ExitError {
		t.Fatalf("missing argument exit = %d", res.code)
	}
}

func TestRelations(t *testing.T) {
	t.Parallel()
	cfg := project(t, librarySchema, "")

	res := run(t, "--config", cfg, "relations")
	if res.code != ExitOK {
		t.Fatalf("exit = %d, stderr = %q", res.code, res.stderr)
	}
	if res.stdout != "Book.author -> Author (many-to-one)\n" {
		t.Fatalf("stdout = %q", res.stdout)
	}

	res = run(t, "--config", cfg, "--format", "json", "relations")
	var rows []relationRow
	if err := json.Unmarshal([]byte(res.stdout), &rows); err != nil {
		t.Fatal(err)
	}
	want := []relationRow{{
		Path: filepath.Join(filepath.Dir(cfg), "schema", "main.erd"),
		Kind: "many-to-one", From: "Book", Field: "author", To: "Author",
	}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestCache(t *testing.T) {
	t.Parallel()
	cfg := project(t, accountSchema, "cache_dir = \".cache\"\n")

	if res := run(t, "--config", cfg, "generate"); res.code != ExitOK {
		t.Fatalf("generate: %q", res.stderr)
	}
	res := run(t, "--config", cfg, "cache", "prune", "--older-than", "1h")
	if res.code != ExitOK || !strings.HasPrefix(res.stdout, "pruned 0 entries") {
		t.Fatalf("prune: exit = %d, stdout = %q", res.code, res.stdout)
	}
	res = run(t, "--config", cfg, "cache", "clear")
	if res.code != ExitOK || !strings.HasPrefix(res.stdout, "cleared ") {
		t.Fatalf("clear: exit = %d, stdout = %q", res.code, res.stdout)
	}

	bare := project(t, accountSchema, "")
	if res := run(t, "--config", bare, "cache", "clear"); res.code != ExitError || !strings.Contains(res.stderr, "cache_dir") {
		t.Fatalf("no cache_dir: exit = %d, stderr = %q", res.code, res.stderr)
	}
}

func TestUsageErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		args []string
	}{
		{"bad color", []string{"--color", "purple", "generate"}},
		{"bad format", []string{"--format", "xml", "generate"}},
		{"unknown command", []string{"deploy"}},
		{"missing config", []string{"--config", filepath.Join(t.TempDir(), "none.toml"), "generate"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := run(t, tt.args...)
			if res.code != ExitError {
				t.Fatalf("exit = %d, want %d; stderr = %q", res.code, ExitError, res.stderr)
			}
			if !strings.HasPrefix(res.stderr, "error:") {
				t.Fatalf("stderr = %q", res.stderr)
			}
		})
	}
}

func TestColorMode(t *testing.T) {
	t.Parallel()
	var stderr bytes.Buffer
	a := &app{stderr: &stderr, color: colorAuto}
	if a.colorize() {
		t.Fatal("auto mode coloured a buffer")
	}
	a.color = colorAlways
	if !a.colorize() {
		t.Fatal("always mode did not colour")
	}
}

func TestPrintDiagnosticsSortsByLocation(t *testing.T) {
	t.Parallel()
	var stderr bytes.Buffer
	a := &app{stderr: &stderr, format: formatJSON}
	err := a.printDiagnostics([]diagnostics.Diagnostic{
		diagnostics.Warning("late").At("b.erd", 1, 1).Build(),
		diagnostics.Error("second").At("a.erd", 4, 2).Build(),
		diagnostics.Error("first").At("a.erd", 4, 1).Build(),
	})
	if err != nil {
		t.Fatal(err)
	}
	var got []struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(stderr.Bytes(), &got); err != nil {
		t.Fatalf("stderr is not JSON: %v\n%s", err, stderr.String())
	}
	var order []string
	for _, d := range got {
		order = append(order, d.Message)
	}
	if diff := cmp.Diff([]string{"first", "second", "late"}, order); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}
