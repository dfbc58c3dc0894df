// Package config loads and validates erd-catalyst.toml.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/electwix/erd-catalyst/internal/engine"
	"github.com/electwix/erd-catalyst/internal/engine/builtin"
	"github.com/electwix/erd-catalyst/internal/fileset"
)

// DefaultFileName is the configuration file Find looks for.
const DefaultFileName = "erd-catalyst.toml"

// PluginExt is the extension plugin directories expand to.
const PluginExt = ".js"

// Error reports an invalid configuration file. Key names the offending
// setting and is empty for file-level problems.
type Error struct {
	Path string
	Key  string
	Err  error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Path, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Config mirrors the TOML file.
type Config struct {
	Schemas        []string `toml:"schemas"`
	Out            string   `toml:"out"`
	Dialect        string   `toml:"dialect"`
	Sidecar        string   `toml:"sidecar"`
	Plugins        []string `toml:"plugins"`
	IfNotExists    bool     `toml:"if_not_exists"`
	CacheDir       string   `toml:"cache_dir"`
	FailOnWarnings bool     `toml:"fail_on_warnings"`
	Lint           bool     `toml:"lint"`
	Header         []string `toml:"header"`
}

// JobPlan is the resolved configuration handed to the pipeline. Paths are
// absolute or joined to the configuration file's directory.
type JobPlan struct {
	Schemas        []string
	Out            string
	Dialect        string
	Sidecar        string
	Plugins        []string
	IfNotExists    bool
	CacheDir       string
	FailOnWarnings bool
	Lint           bool
	Header         []string
}

// LoadOptions tunes loading.
type LoadOptions struct {
	// Strict rejects unknown keys instead of reporting them as warnings.
	Strict bool
	// Resolver overrides the resolver rooted at the file's directory.
	Resolver *fileset.Resolver
	// Dialects validates the dialect; nil means the built-in registry.
	Dialects *engine.Registry
}

// Result wraps a loaded plan alongside any non-fatal warnings.
type Result struct {
	Plan     JobPlan
	Warnings []string
}

// Load reads, validates and resolves the configuration at path.
func Load(path string, opts LoadOptions) (Result, error) {
	var res Result

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return res, &Error{Path: path, Err: err}
	}

	cfg, unknown, err := decode(data)
	if err != nil {
		return res, &Error{Path: path, Err: err}
	}
	if len(unknown) > 0 {
		err := fmt.Errorf("unknown configuration keys: %s", strings.Join(unknown, ", "))
		if opts.Strict {
			return res, &Error{Path: path, Err: err}
		}
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", path, err))
	}

	baseDir := filepath.Dir(path)
	var resolver fileset.Resolver
	if opts.Resolver != nil {
		resolver = *opts.Resolver
	} else {
		resolver, err = fileset.NewOSResolver(baseDir)
		if err != nil {
			return res, &Error{Path: path, Err: err}
		}
	}

	plan := JobPlan{
		IfNotExists:    cfg.IfNotExists,
		FailOnWarnings: cfg.FailOnWarnings,
		Lint:           cfg.Lint,
		Header:         cfg.Header,
	}

	if plan.Schemas, err = resolvePatterns(resolver, cfg.Schemas); err != nil {
		return res, &Error{Path: path, Key: "schemas", Err: err}
	}
	if cfg.Out == "" {
		return res, &Error{Path: path, Key: "out", Err: errors.New("is required")}
	}
	if plan.Out, err = resolveDir(baseDir, cfg.Out); err != nil {
		return res, &Error{Path: path, Key: "out", Err: err}
	}
	if plan.Dialect, err = resolveDialect(opts.Dialects, cfg.Dialect); err != nil {
		return res, &Error{Path: path, Key: "dialect", Err: err}
	}
	if cfg.Sidecar != "" {
		matches, err := resolver.Resolve([]string{cfg.Sidecar})
		if err != nil {
			return res, &Error{Path: path, Key: "sidecar", Err: err}
		}
		if len(matches) != 1 {
			return res, &Error{Path: path, Key: "sidecar", Err: fmt.Errorf("matched %d files, want one", len(matches))}
		}
		plan.Sidecar = matches[0]
	}
	if len(cfg.Plugins) > 0 {
		if plan.Plugins, err = resolvePatterns(resolver.WithExtension(PluginExt), cfg.Plugins); err != nil {
			return res, &Error{Path: path, Key: "plugins", Err: err}
		}
	}
	if cfg.CacheDir != "" {
		if plan.CacheDir, err = resolveDir(baseDir, cfg.CacheDir); err != nil {
			return res, &Error{Path: path, Key: "cache_dir", Err: err}
		}
	}

	res.Plan = plan
	return res, nil
}

// decode unmarshals data, returning the dotted names of keys Config does
// not declare.
func decode(data []byte) (Config, []string, error) {
	var cfg Config
	err := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(&cfg)
	if err == nil {
		return cfg, nil, nil
	}

	var strict *toml.StrictMissingError
	if !errors.As(err, &strict) {
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			row, col := decodeErr.Position()
			return cfg, nil, fmt.Errorf("line %d column %d: %w", row, col, err)
		}
		return cfg, nil, err
	}

	unknown := make([]string, 0, len(strict.Errors))
	for _, e := range strict.Errors {
		unknown = append(unknown, strings.Join(e.Key(), "."))
	}
	slices.Sort(unknown)
	unknown = slices.Compact(unknown)

	cfg = Config{}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, nil, err
	}
	return cfg, unknown, nil
}

func resolveDir(baseDir, dir string) (string, error) {
	if filepath.IsAbs(dir) {
		return "", errors.New("must be a relative path")
	}
	cleaned := filepath.Clean(dir)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", errors.New("must not traverse upwards")
	}
	return filepath.Join(baseDir, cleaned), nil
}

func resolveDialect(reg *engine.Registry, dialect string) (string, error) {
	if dialect == "" {
		return builtin.DefaultDialect, nil
	}
	if reg == nil {
		reg = builtin.Registry()
	}
	if !reg.IsRegistered(dialect) {
		return "", fmt.Errorf("unsupported dialect %q (known: %s)", dialect, strings.Join(reg.List(), ", "))
	}
	return strings.ToLower(dialect), nil
}

func resolvePatterns(resolver fileset.Resolver, patterns []string) ([]string, error) {
	paths, err := resolver.Resolve(patterns)
	if err == nil {
		return paths, nil
	}
	if errors.Is(err, fileset.ErrNoPatterns) {
		return nil, errors.New("must include at least one pattern")
	}
	var noMatchErr fileset.NoMatchError
	if errors.As(err, &noMatchErr) {
		return nil, fmt.Errorf("patterns matched no files: %s", strings.Join(noMatchErr.Patterns, ", "))
	}
	return nil, err
}

// Find returns the first DefaultFileName in dir or its parents.
func Find(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(abs, DefaultFileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", fmt.Errorf("%s not found in %s or any parent", DefaultFileName, dir)
		}
		abs = parent
	}
}
