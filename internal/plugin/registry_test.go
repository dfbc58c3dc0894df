package plugin_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/electwix/erd-catalyst/internal/plugin"
)

func TestRegister(t *testing.T) {
	t.Parallel()
	reg := plugin.NewRegistry()
	if err := reg.Register("grant", plugin.Funcs{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register("comment_on", plugin.Funcs{}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	tests := []struct {
		name    string
		keyword string
		handler plugin.Handler
		is      error
	}{
		{name: "duplicate differs only in case", keyword: "Grant", handler: plugin.Funcs{}, is: plugin.ErrDuplicateKeyword},
		{name: "built-in keyword", keyword: "index", handler: plugin.Funcs{}, is: plugin.ErrReservedKeyword},
		{name: "empty", keyword: "  ", handler: plugin.Funcs{}},
		{name: "leading digit", keyword: "9LIVES", handler: plugin.Funcs{}},
		{name: "nil handler", keyword: "AUDIT_LOG", handler: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := reg.Register(tt.keyword, tt.handler)
			if err == nil {
				t.Fatalf("Register(%q) succeeded", tt.keyword)
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Fatalf("Register(%q) error = %v, want %v", tt.keyword, err, tt.is)
			}
		})
	}

	if diff := cmp.Diff([]string{"COMMENT_ON", "GRANT"}, reg.Keywords()); diff != "" {
		t.Fatalf("keywords mismatch (-want +got):\n%s", diff)
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()
	var nilReg *plugin.Registry
	if _, ok := nilReg.Lookup("GRANT"); ok {
		t.Fatal("nil registry returned a handler")
	}
	if nilReg.Keywords() != nil {
		t.Fatal("nil registry returned keywords")
	}

	reg := plugin.NewRegistry()
	h := plugin.Funcs{EmitFunc: func(_ plugin.Block, node plugin.Node) (string, error) {
		return "-- " + node.(string), nil
	}}
	if err := reg.Register("NOTE", h); err != nil {
		t.Fatal(err)
	}
	got, ok := reg.Lookup("note")
	if !ok {
		t.Fatal("Lookup is case sensitive")
	}
	block := plugin.Block{Keyword: "NOTE", Body: "hello"}
	node, err := got.Parse(block)
	if err != nil {
		t.Fatal(err)
	}
	sql, err := got.Emit(block, node)
	if err != nil || sql != "-- hello" {
		t.Fatalf("Emit = %q, %v", sql, err)
	}
}

func TestFuncsDefaults(t *testing.T) {
	t.Parallel()
	block := plugin.Block{Keyword: "X", Body: "SELECT 1"}
	node, err := plugin.Funcs{}.Parse(block)
	if err != nil || node != "SELECT 1" {
		t.Fatalf("Parse = %v, %v", node, err)
	}
	sql, err := plugin.Funcs{}.Emit(block, struct{}{})
	if err != nil || sql != "SELECT 1" {
		t.Fatalf("Emit = %q, %v", sql, err)
	}
}
