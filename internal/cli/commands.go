package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/electwix/erd-catalyst/internal/cache"
	"github.com/electwix/erd-catalyst/internal/compiler"
	"github.com/electwix/erd-catalyst/internal/config"
	"github.com/electwix/erd-catalyst/internal/diagnostics"
	"github.com/electwix/erd-catalyst/internal/diff"
	"github.com/electwix/erd-catalyst/internal/engine/builtin"
	"github.com/electwix/erd-catalyst/internal/pipeline"
	"github.com/electwix/erd-catalyst/internal/schema/model"
	"github.com/electwix/erd-catalyst/internal/watch"
)

func (a *app) generateCommand() *cobra.Command {
	var opts pipeline.RunOptions
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Compile the configured schemas and write SQL files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			summary, err := a.runPipeline(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if opts.DryRun {
				for _, file := range summary.Files {
					_, _ = fmt.Fprintf(a.stdout, "-- %s\n%s", file.Path, file.Content)
				}
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.BoolVar(&opts.DryRun, "dry-run", false, "print the generated SQL instead of writing files")
	f.StringVarP(&opts.OutOverride, "out", "o", "", "override the output directory")
	f.StringVarP(&opts.Dialect, "dialect", "d", "", "override the SQL dialect")
	f.BoolVar(&opts.Lint, "lint", false, "run the linter as well")
	f.BoolVar(&opts.NoCache, "no-cache", false, "ignore the compile cache")
	f.IntVarP(&opts.Concurrency, "jobs", "j", 0, "parallel compilations (default: number of CPUs)")
	return cmd
}

func (a *app) checkCommand() *cobra.Command {
	var opts pipeline.RunOptions
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify that the SQL files on disk match the schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.Check = true
			summary, err := a.runPipeline(cmd.Context(), opts)
			var drift *pipeline.DriftError
			if !errors.As(err, &drift) {
				return err
			}
			for _, d := range summary.Drift {
				if d.Missing {
					_, _ = fmt.Fprintf(a.stdout, "%s: missing\n", d.Path)
					continue
				}
				_, _ = fmt.Fprintf(a.stdout, "%s: %d change(s)\n", d.Path, len(d.Changes))
				printChanges(a.stdout, d.Changes, false)
			}
			return exitStatus(ExitFailure)
		},
	}
	cmd.Flags().StringVarP(&opts.Dialect, "dialect", "d", "", "override the SQL dialect")
	cmd.Flags().StringVarP(&opts.OutOverride, "out", "o", "", "override the output directory")
	return cmd
}

func (a *app) lintCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lint",
		Short: "Report validation and lint findings without writing files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := a.runPipeline(cmd.Context(), pipeline.RunOptions{Lint: true, DryRun: true, NoCache: true})
			return err
		},
	}
}

// compileCommand compiles documents given on the command line without a
// configuration file.
func (a *app) compileCommand() *cobra.Command {
	var (
		dialect string
		opts    compiler.Options
	)
	cmd := &cobra.Command{
		Use:   "compile FILE...",
		Short: "Compile schema documents to stdout",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dialect == "" {
				dialect = builtin.DefaultDialect
			}
			engine, err := builtin.Registry().New(dialect)
			if err != nil {
				return err
			}
			opts.Dialect = engine

			var diags []diagnostics.Diagnostic
			for _, path := range args {
				src, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				res, err := compiler.Compile(cmd.Context(), path, src, opts)
				if err != nil {
					return err
				}
				diags = append(diags, res.Diagnostics...)
				if !res.Generated {
					continue
				}
				if len(args) > 1 {
					_, _ = fmt.Fprintf(a.stdout, "-- %s\n", path)
				}
				_, _ = io.WriteString(a.stdout, res.SQL)
			}
			if err := a.printDiagnostics(diags); err != nil {
				return err
			}
			if diagnostics.HasErrors(diags) {
				return exitStatus(ExitFailure)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&dialect, "dialect", "d", "", "SQL dialect (default "+builtin.DefaultDialect+")")
	f.BoolVar(&opts.IfNotExists, "if-not-exists", false, "guard CREATE statements with IF NOT EXISTS")
	f.BoolVar(&opts.Lint, "lint", false, "run the linter as well")
	return cmd
}

func (a *app) diffCommand() *cobra.Command {
	var statements bool
	cmd := &cobra.Command{
		Use:   "diff OLD.sql NEW.sql",
		Short: "Compare two DDL scripts statement by statement",
		Long: `diff compares two DDL scripts after normalizing comments, whitespace and
statement order. It exits with status 1 when they differ.`,
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			previous, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			next, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			res, err := diff.Compare(string(previous), string(next))
			if err != nil {
				return err
			}
			if a.format == formatJSON {
				if err := writeJSON(a.stdout, diffJSON(res)); err != nil {
					return err
				}
			} else {
				printChanges(a.stdout, res.Changes, statements)
				if a.verbose {
					_, _ = fmt.Fprintf(a.stdout, "previous root %s\nnext root     %s\n", res.PreviousRoot, res.NextRoot)
				}
			}
			if res.Drift {
				return exitStatus(ExitFailure)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&statements, "statements", "s", false, "print the differing statements")
	return cmd
}

func (a *app) relationsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "relations",
		Short: "List the relationships derived from the schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			summary, err := a.runPipeline(cmd.Context(), pipeline.RunOptions{DryRun: true, NoCache: true})
			if err != nil {
				return err
			}
			var rows []relationRow
			for _, res := range summary.Results {
				if res.Schema == nil {
					continue
				}
				for _, rel := range model.Relationships(res.Schema) {
					rows = append(rows, newRelationRow(res.Path, res.Schema, rel))
				}
			}
			if a.format == formatJSON {
				if rows == nil {
					rows = []relationRow{}
				}
				return writeJSON(a.stdout, rows)
			}
			for _, r := range rows {
				from := r.From
				if r.Field != "" {
					from += "." + r.Field
				}
				line := fmt.Sprintf("%s -> %s (%s)", from, r.To, r.Kind)
				if r.Via != "" {
					line += " via " + r.Via
				}
				_, _ = fmt.Fprintln(a.stdout, line)
			}
			return nil
		},
	}
}

func (a *app) watchCommand() *cobra.Command {
	var (
		opts     pipeline.RunOptions
		debounce time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Regenerate SQL whenever a schema, plugin, sidecar or the configuration changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, err := filepath.Abs(a.resolveConfig())
			if err != nil {
				return err
			}
			a.configPath = configPath
			build := func(ctx context.Context) error {
				_, err := a.runPipeline(ctx, opts)
				var status exitStatus
				if errors.As(err, &status) {
					return nil
				}
				return err
			}
			return watch.Run(cmd.Context(), []string{filepath.Dir(configPath)}, build, watch.Options{
				Debounce:   debounce,
				Logger:     a.logger(),
				Extensions: []string{".erd", ".toml", ".yaml", ".yml", config.PluginExt},
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.Dialect, "dialect", "d", "", "override the SQL dialect")
	f.StringVarP(&opts.OutOverride, "out", "o", "", "override the output directory")
	f.DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period before rebuilding")
	return cmd
}

func (a *app) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the compile cache",
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached compilation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fc, err := a.fileCache()
			if err != nil {
				return err
			}
			if err := fc.Clear(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(a.stdout, "cleared %s\n", fc.Dir())
			return nil
		},
	}

	var olderThan time.Duration
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove cached compilations older than a given age",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			fc, err := a.fileCache()
			if err != nil {
				return err
			}
			n, err := fc.Prune(time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(a.stdout, "pruned %d entr%s from %s\n", n, plural(n, "y", "ies"), fc.Dir())
			return nil
		},
	}
	pruneCmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "minimum age of removed entries")

	cmd.AddCommand(clearCmd, pruneCmd)
	return cmd
}

func (a *app) fileCache() (*cache.FileCache, error) {
	loaded, err := config.Load(a.resolveConfig(), config.LoadOptions{Strict: a.strictConfig})
	if err != nil {
		return nil, err
	}
	if loaded.Plan.CacheDir == "" {
		return nil, errors.New("cache_dir is not configured")
	}
	return cache.NewFileCache(loaded.Plan.CacheDir)
}

func printChanges(w io.Writer, changes []diff.Change, statements bool) {
	for _, c := range changes {
		_, _ = fmt.Fprintf(w, "%s %s\n", changeSymbol(c.Kind), c.Key)
		if !statements {
			continue
		}
		if c.Previous != "" {
			_, _ = fmt.Fprintf(w, "    - %s\n", c.Previous)
		}
		if c.Next != "" {
			_, _ = fmt.Fprintf(w, "    + %s\n", c.Next)
		}
	}
}

func changeSymbol(k diff.ChangeKind) string {
	switch k {
	case diff.Added:
		return "+"
	case diff.Removed:
		return "-"
	default:
		return "~"
	}
}

type changeJSON struct {
	Kind     string `json:"kind"`
	Key      string `json:"key"`
	Previous string `json:"previous,omitempty"`
	Next     string `json:"next,omitempty"`
}

type resultJSON struct {
	Changes      []changeJSON `json:"changes"`
	PreviousRoot string       `json:"previous_root"`
	NextRoot     string       `json:"next_root"`
	Drift        bool         `json:"drift"`
}

func diffJSON(res diff.Result) resultJSON {
	out := resultJSON{
		Changes:      make([]changeJSON, 0, len(res.Changes)),
		PreviousRoot: res.PreviousRoot,
		NextRoot:     res.NextRoot,
		Drift:        res.Drift,
	}
	for _, c := range res.Changes {
		out.Changes = append(out.Changes, changeJSON{Kind: c.Kind.String(), Key: c.Key, Previous: c.Previous, Next: c.Next})
	}
	return out
}

type relationRow struct {
	Path  string `json:"path"`
	Kind  string `json:"kind"`
	From  string `json:"from"`
	Field string `json:"field,omitempty"`
	To    string `json:"to"`
	Via   string `json:"via,omitempty"`
}

func newRelationRow(path string, s *model.Schema, rel model.Relationship) relationRow {
	row := relationRow{
		Path:  path,
		Kind:  rel.Kind.String(),
		From:  entityName(s, rel.From),
		Field: rel.Field,
		To:    entityName(s, rel.To),
	}
	if rel.Via != model.NoEntity {
		row.Via = entityName(s, rel.Via)
	}
	return row
}

func entityName(s *model.Schema, id model.EntityID) string {
	if e := s.Entity(id); e != nil {
		return e.Name
	}
	return "?"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
