// Package compiler runs one ERD document through the full pipeline: scan,
// parse, build, validate, generate and optionally lint. It performs no file
// I/O; callers hand it source bytes and receive a Result.
package compiler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/electwix/erd-catalyst/internal/cache"
	"github.com/electwix/erd-catalyst/internal/codegen"
	"github.com/electwix/erd-catalyst/internal/diagnostics"
	"github.com/electwix/erd-catalyst/internal/engine"
	"github.com/electwix/erd-catalyst/internal/engine/postgres"
	"github.com/electwix/erd-catalyst/internal/plugin"
	"github.com/electwix/erd-catalyst/internal/schema/builder"
	"github.com/electwix/erd-catalyst/internal/schema/lint"
	"github.com/electwix/erd-catalyst/internal/schema/model"
	"github.com/electwix/erd-catalyst/internal/schema/parser"
	"github.com/electwix/erd-catalyst/internal/schema/tokenizer"
	"github.com/electwix/erd-catalyst/internal/schema/validate"
	"github.com/electwix/erd-catalyst/internal/sidecar"
)

// Options configures one compilation.
type Options struct {
	Dialect     engine.Engine
	IfNotExists bool
	Sidecar     sidecar.Overlay
	Plugins     *plugin.Registry
	Header      []string
	// Lint appends linter findings to the diagnostics.
	Lint bool

	// Cache, when set, is consulted before compiling and filled afterwards.
	// Fingerprint must change whenever an input outside the source changes
	// the output, such as sidecar or plugin script contents.
	Cache       cache.Cache
	Fingerprint string
}

// Result is the outcome of one compilation. Generated reports that code
// generation ran to completion; Valid reports that no diagnostic is an
// error. Output is generated even for invalid documents.
type Result struct {
	Path        string
	Schema      *model.Schema
	Output      *codegen.Output
	SQL         string
	Diagnostics []diagnostics.Diagnostic
	Generated   bool
	Valid       bool
	// Cached is set when the result came from the cache. Schema and Output
	// are nil then.
	Cached bool
}

// Compile compiles src. The returned error is non-nil only when ctx is
// done; document problems are reported as diagnostics.
func Compile(ctx context.Context, path string, src []byte, opts Options) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if opts.Dialect == nil {
		opts.Dialect = postgres.New()
	}

	key := ""
	if opts.Cache != nil {
		key = cacheKey(path, src, opts)
		if entry, ok := opts.Cache.Get(ctx, key); ok {
			return Result{
				Path:        path,
				SQL:         entry.SQL,
				Diagnostics: entry.Diagnostics,
				Generated:   entry.Generated,
				Valid:       entry.Valid,
				Cached:      true,
			}, nil
		}
	}

	res := compile(path, src, opts)

	if opts.Cache != nil {
		// a failed write only costs a recompile next time
		_ = opts.Cache.Put(ctx, key, cache.Entry{
			SQL:         res.SQL,
			Diagnostics: res.Diagnostics,
			Generated:   res.Generated,
			Valid:       res.Valid,
		})
	}
	return res, nil
}

func compile(path string, src []byte, opts Options) Result {
	res := Result{Path: path}
	diags := diagnostics.NewCollection()

	tokens, err := tokenizer.Scan(path, src)
	diags.Add(lexDiagnostics(path, err)...)

	file, err := parser.Parse(path, src, tokens, parser.WithPlugins(opts.Plugins))
	diags.Add(parseDiagnostics(path, err)...)

	schema, built := builder.Build(file)
	diags.Add(built...)
	diags.Add(validate.Validate(schema)...)
	diags.Add(opts.Sidecar.Check(schema)...)
	if opts.Lint {
		diags.Add(lint.Lint(schema)...)
	}
	res.Schema = schema

	gen := codegen.New(codegen.Options{
		Dialect:     opts.Dialect,
		IfNotExists: opts.IfNotExists,
		Sidecar:     opts.Sidecar,
		Plugins:     opts.Plugins,
		Header:      strings.Join(opts.Header, "\n"),
	})
	out, err := gen.Generate(schema)
	if err != nil {
		diags.Add(diagnostics.Error(err.Error()).WithCode(diagnostics.CodeParse).At(path, 0, 0).Build())
	} else {
		res.Output = out
		res.SQL = out.SQL()
		res.Generated = true
	}

	res.Diagnostics = diags.All()
	res.Valid = !diags.HasErrors()
	return res
}

func lexDiagnostics(path string, err error) []diagnostics.Diagnostic {
	if err == nil {
		return nil
	}
	var errs tokenizer.Errors
	if !errors.As(err, &errs) {
		return []diagnostics.Diagnostic{diagnostics.Error(err.Error()).WithCode(diagnostics.CodeLex).At(path, 0, 0).Build()}
	}
	out := make([]diagnostics.Diagnostic, 0, len(errs))
	for _, e := range errs {
		out = append(out, diagnostics.Error(e.Message).WithCode(diagnostics.CodeLex).At(path, e.Line, e.Column).Build())
	}
	return out
}

func parseDiagnostics(path string, err error) []diagnostics.Diagnostic {
	if err == nil {
		return nil
	}
	var errs parser.Errors
	if !errors.As(err, &errs) {
		return []diagnostics.Diagnostic{diagnostics.Error(err.Error()).WithCode(diagnostics.CodeParse).At(path, 0, 0).Build()}
	}
	out := make([]diagnostics.Diagnostic, 0, len(errs))
	for _, e := range errs {
		out = append(out, diagnostics.Errorf("expected %s, found %s", e.Expected, e.Found).
			WithCode(diagnostics.CodeParse).
			At(path, e.Line, e.Column).
			Build())
	}
	return out
}

func cacheKey(path string, src []byte, opts Options) string {
	return cache.Key(
		path,
		string(src),
		opts.Dialect.Name(),
		strconv.FormatBool(opts.IfNotExists),
		strconv.FormatBool(opts.Lint),
		strings.Join(opts.Header, "\n"),
		strings.Join(opts.Plugins.Keywords(), ","),
		opts.Fingerprint,
	)
}
