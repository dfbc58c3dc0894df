// Package pipeline turns a project configuration into SQL files: it loads
// the configuration, sidecar and plugins, compiles every schema document and
// writes or checks the generated scripts.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/electwix/erd-catalyst/internal/cache"
	"github.com/electwix/erd-catalyst/internal/compiler"
	"github.com/electwix/erd-catalyst/internal/config"
	"github.com/electwix/erd-catalyst/internal/diagnostics"
	"github.com/electwix/erd-catalyst/internal/diff"
	"github.com/electwix/erd-catalyst/internal/engine"
	"github.com/electwix/erd-catalyst/internal/engine/builtin"
	"github.com/electwix/erd-catalyst/internal/logging"
	"github.com/electwix/erd-catalyst/internal/plugin"
	"github.com/electwix/erd-catalyst/internal/plugin/jsplugin"
	"github.com/electwix/erd-catalyst/internal/sidecar"
)

// OutputExt is the extension of generated scripts.
const OutputExt = ".sql"

// Environment captures external dependencies used by the pipeline.
type Environment struct {
	Logger *slog.Logger
	Writer Writer
	// Dialects resolves dialect names; nil means the built-in registry.
	Dialects *engine.Registry
	// Cache overrides the file cache configured by cache_dir.
	Cache cache.Cache
	Hooks Hooks
	// Plugin tunes the script runtime of every loaded plugin.
	Plugin jsplugin.Options
}

// Writer writes generated files to persistent storage.
type Writer interface {
	WriteFile(path string, data []byte) error
}

// Pipeline orchestrates configuration loading, compilation and output.
type Pipeline struct {
	Env Environment
}

// File is one generated script. Source is the schema document it came from.
type File struct {
	Path    string
	Source  string
	Content []byte
}

// Drift describes a generated script that differs from the one on disk.
type Drift struct {
	Path    string
	Missing bool
	Changes []diff.Change
}

// Summary captures what a run produced.
type Summary struct {
	Plan        config.JobPlan
	Files       []File
	Results     []compiler.Result
	Diagnostics []diagnostics.Diagnostic
	// Written lists the files that were rewritten; unchanged files are
	// skipped.
	Written []string
	Drift   []Drift
}

// RunOptions configures a pipeline execution.
type RunOptions struct {
	ConfigPath   string
	OutOverride  string
	Dialect      string
	DryRun       bool
	StrictConfig bool
	// Check compares generated scripts with the files on disk instead of
	// writing them.
	Check bool
	// Lint forces the linter on regardless of the configuration.
	Lint    bool
	NoCache bool
	// Concurrency bounds parallel compilations; zero means GOMAXPROCS.
	Concurrency int
}

// DiagnosticsError indicates that the run failed because of diagnostics.
// Diagnostic is the first failing one and Count the number of failures.
type DiagnosticsError struct {
	Diagnostic diagnostics.Diagnostic
	Count      int
	Cause      error
}

func (e *DiagnosticsError) Error() string {
	msg := e.Diagnostic.Error()
	if e.Count > 1 {
		msg += fmt.Sprintf(" (and %d more)", e.Count-1)
	}
	return msg
}

func (e *DiagnosticsError) Unwrap() error {
	return e.Cause
}

// WriteError wraps failures encountered while writing generated files.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// DriftError reports scripts on disk that no longer match their schema.
type DriftError struct {
	Paths []string
}

func (e *DriftError) Error() string {
	return "generated SQL is out of date: " + strings.Join(e.Paths, ", ")
}

// NewOSWriter returns a Writer that performs atomic writes on the local filesystem.
func NewOSWriter() Writer {
	return &osWriter{perm: 0o644}
}

type osWriter struct {
	perm fs.FileMode
}

func (w *osWriter) WriteFile(path string, data []byte) error {
	if path == "" {
		return errors.New("pipeline: empty path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".erd-catalyst-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpName)
		}
		_ = tmp.Close()
	}()
	if w.perm != 0 {
		if err := tmp.Chmod(w.perm); err != nil {
			return fmt.Errorf("chmod temp file: %w", err)
		}
	}
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	success = true
	return nil
}

// Run executes the pipeline according to the provided options.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (summary Summary, err error) {
	logger := logging.OrDiscard(p.Env.Logger)
	hooks := p.Env.Hooks

	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = config.DefaultFileName
	}
	absConfigPath, err := filepath.Abs(configPath)
	if err != nil {
		return summary, setupError(configPath, "resolve config path", err)
	}

	dialects := p.Env.Dialects
	if dialects == nil {
		dialects = builtin.Registry()
	}
	loaded, err := config.Load(absConfigPath, config.LoadOptions{Strict: opts.StrictConfig, Dialects: dialects})
	if err != nil {
		return summary, setupError(absConfigPath, "load config", err)
	}
	for _, w := range loaded.Warnings {
		summary.Diagnostics = append(summary.Diagnostics, diagnostics.Warning(w).At(absConfigPath, 1, 1).Build())
	}
	plan := loaded.Plan
	baseDir := filepath.Dir(absConfigPath)
	if opts.OutOverride != "" {
		plan.Out = opts.OutOverride
		if !filepath.IsAbs(plan.Out) {
			plan.Out = filepath.Join(baseDir, plan.Out)
		}
	}
	if opts.Dialect != "" {
		if !dialects.IsRegistered(opts.Dialect) {
			return summary, setupError(absConfigPath, "dialect",
				fmt.Errorf("unknown dialect %q (available: %s)", opts.Dialect, strings.Join(dialects.List(), ", ")))
		}
		plan.Dialect = strings.ToLower(opts.Dialect)
	}
	plan.Lint = plan.Lint || opts.Lint
	summary.Plan = plan

	dialect, err := dialects.New(plan.Dialect)
	if err != nil {
		return summary, setupError(absConfigPath, "dialect", err)
	}

	var fingerprint []string
	var overlay sidecar.Overlay
	if plan.Sidecar != "" {
		data, err := os.ReadFile(plan.Sidecar)
		if err != nil {
			return summary, setupError(plan.Sidecar, "read sidecar", err)
		}
		if overlay, err = sidecar.Parse(plan.Sidecar, data); err != nil {
			return summary, setupError(plan.Sidecar, "parse sidecar", err)
		}
		fingerprint = append(fingerprint, string(data))
	}

	plugins := plugin.NewRegistry()
	if len(plan.Plugins) > 0 {
		if err := jsplugin.Register(plugins, plan.Plugins, p.Env.Plugin); err != nil {
			return summary, setupError(absConfigPath, "load plugins", err)
		}
		for _, path := range plan.Plugins {
			data, err := os.ReadFile(path)
			if err != nil {
				return summary, setupError(path, "read plugin", err)
			}
			fingerprint = append(fingerprint, path, string(data))
		}
	}

	store := p.Env.Cache
	if opts.NoCache {
		store = nil
	} else if store == nil && plan.CacheDir != "" {
		fc, err := cache.NewFileCache(plan.CacheDir)
		if err != nil {
			return summary, setupError(absConfigPath, "open cache", err)
		}
		store = fc
	}

	if hooks.BeforeCompile != nil {
		if err := hooks.BeforeCompile(ctx, plan.Schemas); err != nil {
			return summary, err
		}
	}

	compileOpts := compiler.Options{
		Dialect:     dialect,
		IfNotExists: plan.IfNotExists,
		Sidecar:     overlay,
		Plugins:     plugins,
		Header:      plan.Header,
		Lint:        plan.Lint,
		Cache:       store,
		Fingerprint: cache.Key(fingerprint...),
	}
	results, err := compileAll(ctx, logger, plan.Schemas, compileOpts, opts.Concurrency)
	if err != nil {
		return summary, err
	}
	summary.Results = results
	for _, res := range results {
		summary.Diagnostics = append(summary.Diagnostics, res.Diagnostics...)
	}

	if hooks.AfterCompile != nil {
		if err := hooks.AfterCompile(ctx, results); err != nil {
			return summary, err
		}
	}

	root := commonDir(plan.Schemas)
	for _, res := range results {
		if !res.Generated {
			continue
		}
		summary.Files = append(summary.Files, File{
			Path:    outputPath(plan.Out, root, res.Path),
			Source:  res.Path,
			Content: []byte(res.SQL),
		})
	}

	if err := failure(summary.Diagnostics, plan.FailOnWarnings); err != nil {
		return summary, err
	}

	if opts.Check {
		if summary.Drift, err = checkDrift(summary.Files); err != nil {
			return summary, err
		}
		if len(summary.Drift) > 0 {
			paths := make([]string, len(summary.Drift))
			for i, d := range summary.Drift {
				paths[i] = d.Path
			}
			return summary, &DriftError{Paths: paths}
		}
		return summary, nil
	}

	if opts.DryRun {
		return summary, nil
	}

	if hooks.BeforeWrite != nil {
		if err := hooks.BeforeWrite(ctx, summary.Files); err != nil {
			return summary, err
		}
	}

	writer := p.Env.Writer
	if writer == nil {
		writer = NewOSWriter()
	}

	for _, file := range summary.Files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		same, cmpErr := fileMatches(file.Path, file.Content)
		if cmpErr != nil {
			return summary, &WriteError{Path: file.Path, Err: cmpErr}
		}
		if same {
			logger.Debug("unchanged", "path", file.Path)
			continue
		}
		if err := writer.WriteFile(file.Path, file.Content); err != nil {
			return summary, &WriteError{Path: file.Path, Err: err}
		}
		summary.Written = append(summary.Written, file.Path)
		logger.Info("wrote", "path", file.Path, "bytes", len(file.Content))
	}

	if hooks.AfterWrite != nil {
		if err := hooks.AfterWrite(ctx, summary); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// compileAll compiles paths concurrently. Results keep the order of paths.
// An unreadable document becomes an error diagnostic on its result.
func compileAll(ctx context.Context, logger *slog.Logger, paths []string, opts compiler.Options, limit int) ([]compiler.Result, error) {
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	results := make([]compiler.Result, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, path := range paths {
		g.Go(func() error {
			src, err := os.ReadFile(path)
			if err != nil {
				results[i] = compiler.Result{
					Path:        path,
					Diagnostics: []diagnostics.Diagnostic{diagnostics.Errorf("read schema: %v", err).At(path, 0, 0).Build()},
				}
				return nil
			}
			res, err := compiler.Compile(gctx, path, src, opts)
			if err != nil {
				return err
			}
			logger.Debug("compiled", "path", path, "cached", res.Cached, "valid", res.Valid,
				"diagnostics", len(res.Diagnostics))
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// failure returns a DiagnosticsError for the first error, or for the first
// warning when warnings are fatal.
func failure(diags []diagnostics.Diagnostic, failOnWarnings bool) error {
	var first *diagnostics.Diagnostic
	count := 0
	for i := range diags {
		if diags[i].IsError() || failOnWarnings && diags[i].IsWarning() {
			if first == nil {
				first = &diags[i]
			}
			count++
		}
	}
	if first == nil {
		return nil
	}
	return &DiagnosticsError{Diagnostic: *first, Count: count}
}

func setupError(path, what string, err error) error {
	d := diagnostics.Errorf("%s: %v", what, err).At(path, 1, 1).Build()
	return &DiagnosticsError{Diagnostic: d, Count: 1, Cause: err}
}

// checkDrift compares each file with its copy on disk.
func checkDrift(files []File) ([]Drift, error) {
	var drift []Drift
	for _, file := range files {
		existing, err := os.ReadFile(filepath.Clean(file.Path))
		if errors.Is(err, fs.ErrNotExist) {
			drift = append(drift, Drift{Path: file.Path, Missing: true})
			continue
		}
		if err != nil {
			return nil, err
		}
		res, err := diff.Compare(string(existing), string(file.Content))
		if err != nil {
			return nil, fmt.Errorf("compare %s: %w", file.Path, err)
		}
		if res.Drift {
			drift = append(drift, Drift{Path: file.Path, Changes: res.Changes})
		}
	}
	return drift, nil
}

// outputPath maps a schema document to its script under out, keeping the
// document's directory relative to root.
func outputPath(out, root, source string) string {
	rel, err := filepath.Rel(root, source)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		rel = filepath.Base(source)
	}
	return filepath.Join(out, strings.TrimSuffix(rel, filepath.Ext(rel))+OutputExt)
}

// commonDir returns the deepest directory containing every path.
func commonDir(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	dir := filepath.Dir(paths[0])
	for _, p := range paths[1:] {
		for !within(dir, p) {
			parent := filepath.Dir(dir)
			if parent == dir {
				return dir
			}
			dir = parent
		}
	}
	return dir
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func fileMatches(path string, content []byte) (bool, error) {
	existing, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return bytes.Equal(existing, content), nil
}
