package engine_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/electwix/erd-catalyst/internal/engine"
	"github.com/electwix/erd-catalyst/internal/engine/builtin"
)

func TestRegistry(t *testing.T) {
	t.Parallel()
	r := builtin.Registry()

	want := []string{"postgres", "postgresql", "sqlite", "sqlite3"}
	if diff := cmp.Diff(want, r.List()); diff != "" {
		t.Fatalf("List mismatch (-want +got):\n%s", diff)
	}
	for dialect, name := range map[string]string{
		"postgresql": "postgresql",
		"Postgres":   "postgresql",
		"SQLITE":     "sqlite",
		"sqlite3":    "sqlite",
	} {
		eng, err := r.New(dialect)
		if err != nil {
			t.Fatalf("New(%q): %v", dialect, err)
		}
		if eng.Name() != name {
			t.Fatalf("New(%q).Name() = %q, want %q", dialect, eng.Name(), name)
		}
	}
	if _, err := r.New("oracle"); err == nil || !strings.Contains(err.Error(), "unsupported database dialect") {
		t.Fatalf("New(oracle) error = %v", err)
	}
	if err := r.Register("SQLite", nil); err == nil {
		t.Fatal("duplicate registration succeeded")
	}
	if !r.IsRegistered("postgres") || r.IsRegistered("mysql") {
		t.Fatal("IsRegistered mismatch")
	}
}

func TestQuoteIdent(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name string
		want string
	}{
		{"users", "users"},
		{"Organization", "Organization"},
		{"core.Account", "core.Account"},
		{"user", `"user"`},
		{"public.order", `public."order"`},
		{"billing/Invoice", `"billing/Invoice"`},
		{`we"ird`, `"we""ird"`},
		{"2fa", `"2fa"`},
	}
	for _, tc := range testCases {
		if got := engine.QuoteIdent(tc.name); got != tc.want {
			t.Errorf("QuoteIdent(%q) = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestDialects(t *testing.T) {
	t.Parallel()
	r := builtin.Registry()
	pg, _ := r.New("postgresql")
	lite, _ := r.New("sqlite")

	testCases := []struct {
		name string
		got  string
		want string
	}{
		{"pg string", pg.QuoteString("it's"), "'it''s'"},
		{"pg escape string", pg.QuoteString(`a\b`), `E'a\\b'`},
		{"sqlite string", lite.QuoteString(`it's a\b`), `'it''s a\b'`},
		{"pg set", pg.SetType("TEXT"), "TEXT[]"},
		{"sqlite set", lite.SetType("TEXT"), "TEXT"},
		{"pg call default", pg.CallDefault("now()"), "now()"},
		{"sqlite call default", lite.CallDefault("now()"), "(now())"},
		{"idents", engine.QuoteIdents(pg, []string{"a", "select"}), `a, "select"`},
	}
	for _, tc := range testCases {
		if tc.got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, tc.got, tc.want)
		}
	}

	for _, f := range []engine.Feature{engine.FeatureEnumTypes, engine.FeatureAlterConstraints, engine.FeatureMaterializedViews} {
		if !pg.SupportsFeature(f) {
			t.Errorf("postgresql lacks %s", f)
		}
		if lite.SupportsFeature(f) {
			t.Errorf("sqlite claims %s", f)
		}
	}
	if engine.Feature(99).String() != "unknown" || engine.FeatureArrays.String() != "arrays" {
		t.Error("Feature.String mismatch")
	}
}
