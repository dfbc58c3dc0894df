// Package cli implements the erd-catalyst command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/electwix/erd-catalyst/internal/config"
	"github.com/electwix/erd-catalyst/internal/logging"
	"github.com/electwix/erd-catalyst/internal/pipeline"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1 // diagnostics, drift or differences
	ExitError   = 2 // usage, I/O and configuration problems
)

// version is set via ldflags: -ldflags="-X github.com/electwix/erd-catalyst/internal/cli.version=v1.0.0"
var version = "dev"

// exitStatus ends a command with a status code and no further message.
type exitStatus int

func (e exitStatus) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

// app carries the global flags and the streams shared by every command.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath   string
	verbose      bool
	quiet        bool
	jsonLog      bool
	strictConfig bool
	color        colorMode
	format       outputFormat
}

// Run executes the command line and returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr, color: colorAuto, format: formatText}
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}
	var status exitStatus
	if errors.As(err, &status) {
		return int(status)
	}
	_, _ = fmt.Fprintln(stderr, "error:", err)
	var derr *pipeline.DiagnosticsError
	var drift *pipeline.DriftError
	if errors.As(err, &drift) || errors.As(err, &derr) && derr.Cause == nil {
		return ExitFailure
	}
	return ExitError
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "erd-catalyst",
		Short: "Compile ERD schema documents to SQL DDL",
		Long: `erd-catalyst compiles .erd schema documents into deterministic SQL DDL
for PostgreSQL or SQLite, with validation, linting and drift checks.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "path to "+config.DefaultFileName+" (default: search upwards from the working directory)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	flags.BoolVarP(&a.quiet, "quiet", "q", false, "log errors only")
	flags.BoolVar(&a.jsonLog, "json-log", false, "write logs as JSON")
	flags.BoolVar(&a.strictConfig, "strict-config", false, "reject unknown configuration keys")
	flags.Var(&a.color, "color", "colour diagnostics: auto, always or never")
	flags.Var(&a.format, "format", "diagnostic output: text or json")

	root.AddCommand(
		a.generateCommand(),
		a.checkCommand(),
		a.lintCommand(),
		a.compileCommand(),
		a.diffCommand(),
		a.relationsCommand(),
		a.watchCommand(),
		a.cacheCommand(),
	)
	return root
}

func (a *app) logger() *slog.Logger {
	return logging.New(logging.Options{
		Verbose: a.verbose,
		Quiet:   a.quiet,
		JSON:    a.jsonLog,
		Writer:  a.stderr,
	})
}

// resolveConfig returns the --config value, or the nearest configuration
// file above the working directory.
func (a *app) resolveConfig() string {
	if a.configPath != "" {
		return a.configPath
	}
	if wd, err := os.Getwd(); err == nil {
		if found, err := config.Find(wd); err == nil {
			return found
		}
	}
	return config.DefaultFileName
}

func (a *app) pipeline() *pipeline.Pipeline {
	return &pipeline.Pipeline{Env: pipeline.Environment{
		Logger: a.logger(),
		Writer: pipeline.NewOSWriter(),
	}}
}

// runPipeline runs one pipeline pass and reports its diagnostics.
func (a *app) runPipeline(ctx context.Context, opts pipeline.RunOptions) (pipeline.Summary, error) {
	opts.ConfigPath = a.resolveConfig()
	opts.StrictConfig = a.strictConfig
	summary, err := a.pipeline().Run(ctx, opts)
	if perr := a.printDiagnostics(summary.Diagnostics); perr != nil {
		return summary, perr
	}
	var derr *pipeline.DiagnosticsError
	if errors.As(err, &derr) && derr.Cause == nil {
		// already printed with the rest
		return summary, exitStatus(ExitFailure)
	}
	return summary, err
}
