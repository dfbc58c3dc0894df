package fileset

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"testing/fstest"

	"github.com/google/go-cmp/cmp"
)

func schemaFS() fstest.MapFS {
	return fstest.MapFS{
		"schema/accounts.erd":         &fstest.MapFile{Mode: fs.ModePerm},
		"schema/billing/invoices.erd": &fstest.MapFile{Mode: fs.ModePerm},
		"schema/billing/notes.txt":    &fstest.MapFile{Mode: fs.ModePerm},
		"schema/billing/old/v1.erd":   &fstest.MapFile{Mode: fs.ModePerm},
		"plugins/grant.js":            &fstest.MapFile{Mode: fs.ModePerm},
		"plugins/seed.js":             &fstest.MapFile{Mode: fs.ModePerm},
	}
}

func TestResolverResolve(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		resolver Resolver
		patterns []string
		want     []string
	}{
		{
			name:     "globs are sorted and de-duplicated",
			resolver: NewResolver(schemaFS()),
			patterns: []string{"schema/*.erd", "plugins/*.js", "schema/accounts.erd"},
			want:     []string{"plugins/grant.js", "plugins/seed.js", "schema/accounts.erd"},
		},
		{
			name:     "double star crosses directories",
			resolver: NewResolver(schemaFS()),
			patterns: []string{"schema/**/*.erd"},
			want:     []string{"schema/accounts.erd", "schema/billing/invoices.erd", "schema/billing/old/v1.erd"},
		},
		{
			name:     "leading double star",
			resolver: NewResolver(schemaFS()),
			patterns: []string{"**/invoices.erd"},
			want:     []string{"schema/billing/invoices.erd"},
		},
		{
			name:     "directory expands to documents",
			resolver: NewResolver(schemaFS()),
			patterns: []string{"schema/billing"},
			want:     []string{"schema/billing/invoices.erd", "schema/billing/old/v1.erd"},
		},
		{
			name:     "directory with another extension",
			resolver: NewResolver(schemaFS()).WithExtension(".js"),
			patterns: []string{"plugins"},
			want:     []string{"plugins/grant.js", "plugins/seed.js"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.resolver.Resolve(tt.patterns)
			if err != nil {
				t.Fatalf("Resolve returned error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("paths mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolverResolveNoMatches(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(schemaFS())
	_, err := resolver.Resolve([]string{"models/*.erd", "schema/nope.erd", "missing/**/*.erd"})
	if err == nil {
		t.Fatal("expected error for missing patterns")
	}

	var noMatchErr NoMatchError
	if !errors.As(err, &noMatchErr) {
		t.Fatalf("expected NoMatchError, got %T: %v", err, err)
	}
	want := []string{"models/*.erd", "schema/nope.erd", "missing/**/*.erd"}
	if diff := cmp.Diff(want, noMatchErr.Patterns); diff != "" {
		t.Fatalf("missing patterns mismatch (-want +got):\n%s", diff)
	}
}

func TestResolverResolveInvalidPattern(t *testing.T) {
	t.Parallel()

	for _, pattern := range []string{"[", "schema/**/[.erd"} {
		_, err := NewResolver(schemaFS()).Resolve([]string{pattern})
		var patternErr PatternError
		if !errors.As(err, &patternErr) {
			t.Fatalf("%s: expected PatternError, got %T: %v", pattern, err, err)
		}
		if patternErr.Pattern != pattern {
			t.Fatalf("unexpected pattern on error: %q", patternErr.Pattern)
		}
	}
}

func TestResolverResolveNoPatterns(t *testing.T) {
	t.Parallel()

	_, err := NewResolver(fstest.MapFS{}).Resolve(nil)
	if !errors.Is(err, ErrNoPatterns) {
		t.Fatalf("expected ErrNoPatterns, got %v", err)
	}
}

func TestOSResolver(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "schema"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "schema", "a.erd"), []byte(":A\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	resolver, err := NewOSResolver(dir)
	if err != nil {
		t.Fatalf("NewOSResolver: %v", err)
	}
	got, err := resolver.Resolve([]string{"schema"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []string{filepath.Join(dir, "schema", "a.erd")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("paths mismatch (-want +got):\n%s", diff)
	}

	if _, err := NewOSResolver(filepath.Join(dir, "schema", "a.erd")); err == nil {
		t.Fatal("expected error for a file base")
	}
}

func TestMatchSegments(t *testing.T) {
	t.Parallel()
	tests := []struct {
		pattern, name string
		want          bool
	}{
		{"a/**/b.erd", "a/b.erd", true},
		{"a/**/b.erd", "a/x/y/b.erd", true},
		{"a/**", "a", true},
		{"a/**/*.erd", "a/x/b.txt", false},
		{"**", "anything/at/all", true},
		{"a/*/b.erd", "a/x/y/b.erd", false},
	}
	for _, tt := range tests {
		if got := matchSegments(splitSlash(tt.pattern), splitSlash(tt.name)); got != tt.want {
			t.Errorf("matchSegments(%q, %q) = %v, want %v", tt.pattern, tt.name, got, tt.want)
		}
	}
}

func splitSlash(s string) []string {
	return strings.Split(s, "/")
}
