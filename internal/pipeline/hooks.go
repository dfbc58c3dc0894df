package pipeline

import (
	"context"

	"github.com/electwix/erd-catalyst/internal/compiler"
)

// Hooks provides extension points in the pipeline execution.
// Each hook is called at a specific stage and can modify behavior or perform side effects.
type Hooks struct {
	// BeforeCompile is called with the resolved schema paths.
	// Return an error to abort the pipeline.
	BeforeCompile func(ctx context.Context, schemaPaths []string) error

	// AfterCompile is called once every document is compiled, before any
	// diagnostic fails the run.
	AfterCompile func(ctx context.Context, results []compiler.Result) error

	// BeforeWrite is called before writing files. It is skipped for dry
	// runs and checks.
	BeforeWrite func(ctx context.Context, files []File) error

	// AfterWrite is called after all files are written.
	AfterWrite func(ctx context.Context, summary Summary) error
}

// Chain combines two Hooks, calling h's hooks first, then other's hooks.
// If a hook in h returns an error, other's hook is not called.
func (h Hooks) Chain(other Hooks) Hooks {
	return Hooks{
		BeforeCompile: chainHook(h.BeforeCompile, other.BeforeCompile),
		AfterCompile:  chainHook(h.AfterCompile, other.AfterCompile),
		BeforeWrite:   chainHook(h.BeforeWrite, other.BeforeWrite),
		AfterWrite:    chainHook(h.AfterWrite, other.AfterWrite),
	}
}

func chainHook[T any](first, second func(context.Context, T) error) func(context.Context, T) error {
	if first == nil {
		return second
	}
	if second == nil {
		return first
	}
	return func(ctx context.Context, arg T) error {
		if err := first(ctx, arg); err != nil {
			return err
		}
		return second(ctx, arg)
	}
}
