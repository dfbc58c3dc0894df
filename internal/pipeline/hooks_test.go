package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/electwix/erd-catalyst/internal/compiler"
)

func TestHooks_Chain(t *testing.T) {
	t.Run("chains two hooks", func(t *testing.T) {
		var calls []string

		h1 := Hooks{
			BeforeCompile: func(context.Context, []string) error {
				calls = append(calls, "h1")
				return nil
			},
		}
		h2 := Hooks{
			BeforeCompile: func(context.Context, []string) error {
				calls = append(calls, "h2")
				return nil
			},
		}

		if err := h1.Chain(h2).BeforeCompile(context.Background(), nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff([]string{"h1", "h2"}, calls); diff != "" {
			t.Errorf("calls mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("first error stops chain", func(t *testing.T) {
		h1 := Hooks{
			AfterCompile: func(context.Context, []compiler.Result) error {
				return errors.New("h1 error")
			},
		}
		var h2Called bool
		h2 := Hooks{
			AfterCompile: func(context.Context, []compiler.Result) error {
				h2Called = true
				return nil
			},
		}

		err := h1.Chain(h2).AfterCompile(context.Background(), nil)
		if err == nil || err.Error() != "h1 error" {
			t.Errorf("error = %v, want 'h1 error'", err)
		}
		if h2Called {
			t.Error("h2 should not have been called")
		}
	})

	t.Run("nil hooks", func(t *testing.T) {
		var called bool
		h2 := Hooks{
			BeforeWrite: func(context.Context, []File) error {
				called = true
				return nil
			},
		}

		chained := Hooks{}.Chain(h2)
		if err := chained.BeforeWrite(context.Background(), nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !called {
			t.Error("h2 should have been called")
		}
		if chained.AfterWrite != nil {
			t.Error("chaining two nil hooks should stay nil")
		}
	})
}

func TestHooksRunOrder(t *testing.T) {
	t.Parallel()
	dir := project(t, map[string]string{"schema/a.erd": accountSchema})

	var calls []string
	record := func(name string) {
		calls = append(calls, name)
	}
	hooks := Hooks{
		BeforeCompile: func(_ context.Context, paths []string) error {
			record("before-compile")
			if len(paths) != 1 {
				t.Errorf("paths = %v", paths)
			}
			return nil
		},
		AfterCompile: func(_ context.Context, results []compiler.Result) error {
			record("after-compile")
			if len(results) != 1 || !results[0].Valid {
				t.Errorf("results = %+v", results)
			}
			return nil
		},
		BeforeWrite: func(_ context.Context, files []File) error {
			record("before-write")
			return nil
		},
		AfterWrite: func(_ context.Context, s Summary) error {
			record("after-write")
			if len(s.Written) != 1 {
				t.Errorf("written = %v", s.Written)
			}
			return nil
		},
	}

	p := Pipeline{Env: Environment{Writer: &MemoryWriter{}, Hooks: hooks}}
	if _, err := p.Run(context.Background(), RunOptions{ConfigPath: filepath.Join(dir, configName)}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"before-compile", "after-compile", "before-write", "after-write"}
	if diff := cmp.Diff(want, calls); diff != "" {
		t.Fatalf("hook order mismatch (-want +got):\n%s", diff)
	}
}

func TestHooksAbortRun(t *testing.T) {
	t.Parallel()
	dir := project(t, map[string]string{"schema/a.erd": accountSchema})
	errStop := errors.New("stop")

	w := &MemoryWriter{}
	p := Pipeline{Env: Environment{
		Writer: w,
		Hooks: Hooks{BeforeWrite: func(context.Context, []File) error {
			return errStop
		}},
	}}
	summary, err := p.Run(context.Background(), RunOptions{ConfigPath: filepath.Join(dir, configName)})
	if !errors.Is(err, errStop) {
		t.Fatalf("err = %v, want %v", err, errStop)
	}
	if len(summary.Files) != 1 || len(w.Paths()) != 0 {
		t.Fatalf("files = %d, written = %v", len(summary.Files), w.Paths())
	}
}
