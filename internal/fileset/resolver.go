// Package fileset resolves the schema, sidecar and plugin paths a run reads.
package fileset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

// SchemaExt is the extension of ERD documents.
const SchemaExt = ".erd"

// Resolver resolves glob patterns against an fs.FS and rewrites the
// discovered paths with a join function. Patterns may use "**" to match any
// number of directories, and a pattern naming a directory expands to the
// files below it that carry the resolver's extension.
type Resolver struct {
	fsys fs.FS
	join func(name string) string
	ext  string
}

// ErrNoPatterns indicates that Resolve was invoked without any glob patterns.
var ErrNoPatterns = errors.New("fileset: no patterns provided")

// PatternError wraps syntax issues reported while evaluating a glob pattern.
type PatternError struct {
	Pattern string
	Err     error
}

func (e PatternError) Error() string {
	return fmt.Sprintf("invalid glob pattern %q: %v", e.Pattern, e.Err)
}

func (e PatternError) Unwrap() error { return e.Err }

// NoMatchError describes which patterns failed to yield any results.
type NoMatchError struct {
	Patterns []string
}

func (e NoMatchError) Error() string {
	return "patterns matched no files: " + strings.Join(e.Patterns, ", ")
}

// NewResolver returns a resolver over fsys that keeps match names as they
// are. Directory patterns expand to SchemaExt files.
func NewResolver(fsys fs.FS) Resolver {
	return Resolver{fsys: fsys, join: func(name string) string { return name }, ext: SchemaExt}
}

// NewOSResolver returns a resolver rooted at base that yields absolute OS
// paths.
func NewOSResolver(base string) (Resolver, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return Resolver{}, fmt.Errorf("resolve base %q: %w", base, err)
	}
	info, err := os.Stat(absBase)
	if err != nil {
		return Resolver{}, fmt.Errorf("stat base %q: %w", absBase, err)
	}
	if !info.IsDir() {
		return Resolver{}, fmt.Errorf("base %q is not a directory", absBase)
	}
	return Resolver{
		fsys: os.DirFS(absBase),
		join: func(name string) string {
			if filepath.IsAbs(name) {
				return filepath.Clean(name)
			}
			return filepath.Join(absBase, filepath.FromSlash(name))
		},
		ext: SchemaExt,
	}, nil
}

// WithExtension returns a copy whose directory patterns expand to files
// ending in ext.
func (r Resolver) WithExtension(ext string) Resolver {
	r.ext = ext
	return r
}

// Resolve evaluates each pattern and returns the sorted, de-duplicated
// matches. Every pattern must match at least one file.
func (r Resolver) Resolve(patterns []string) ([]string, error) {
	if r.fsys == nil {
		return nil, errors.New("fileset: resolver has no filesystem")
	}
	if len(patterns) == 0 {
		return nil, ErrNoPatterns
	}
	join := r.join
	if join == nil {
		join = func(name string) string { return name }
	}

	var combined, missing []string
	for _, pattern := range patterns {
		matches, err := r.match(filepath.ToSlash(pattern))
		if err != nil {
			return nil, PatternError{Pattern: pattern, Err: err}
		}
		files, err := r.expand(matches)
		if err != nil {
			return nil, fmt.Errorf("fileset: %s: %w", pattern, err)
		}
		if len(files) == 0 {
			missing = append(missing, pattern)
			continue
		}
		for _, f := range files {
			combined = append(combined, join(f))
		}
	}
	if len(missing) > 0 {
		return nil, NoMatchError{Patterns: missing}
	}

	slices.Sort(combined)
	return slices.Compact(combined), nil
}

func (r Resolver) match(pattern string) ([]string, error) {
	if !strings.Contains(pattern, "**") {
		return fs.Glob(r.fsys, pattern)
	}
	// validate every segment up front so a bad pattern is not mistaken for
	// an empty match
	segments := strings.Split(pattern, "/")
	for _, seg := range segments {
		if seg == "**" {
			continue
		}
		if _, err := path.Match(seg, ""); err != nil {
			return nil, err
		}
	}

	root := staticPrefix(segments)
	var matches []string
	err := fs.WalkDir(r.fsys, root, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && name == root {
				return fs.SkipAll
			}
			return err
		}
		if matchSegments(segments, strings.Split(name, "/")) {
			matches = append(matches, name)
		}
		return nil
	})
	return matches, err
}

// expand replaces directories with the files below them carrying r.ext.
func (r Resolver) expand(matches []string) ([]string, error) {
	var files []string
	for _, m := range matches {
		info, err := fs.Stat(r.fsys, m)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, m)
			continue
		}
		err = fs.WalkDir(r.fsys, m, func(name string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && r.ext != "" && path.Ext(name) == r.ext {
				files = append(files, name)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

// staticPrefix returns the leading segments free of glob metacharacters.
func staticPrefix(segments []string) string {
	var fixed []string
	for _, seg := range segments[:len(segments)-1] {
		if strings.ContainsAny(seg, `*?[\`) {
			break
		}
		fixed = append(fixed, seg)
	}
	if len(fixed) == 0 {
		return "."
	}
	return path.Join(fixed...)
}

// matchSegments matches a slash-split name against pattern segments, where
// "**" matches zero or more whole segments.
func matchSegments(pattern, name []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			rest := pattern[1:]
			for i := 0; i <= len(name); i++ {
				if matchSegments(rest, name[i:]) {
					return true
				}
			}
			return false
		}
		if len(name) == 0 {
			return false
		}
		if ok, _ := path.Match(pattern[0], name[0]); !ok {
			return false
		}
		pattern, name = pattern[1:], name[1:]
	}
	return len(name) == 0
}
