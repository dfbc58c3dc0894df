package cli

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"

	"github.com/electwix/erd-catalyst/internal/diagnostics"
)

var (
	_ pflag.Value = (*colorMode)(nil)
	_ pflag.Value = (*outputFormat)(nil)
)

type colorMode string

const (
	colorAuto   colorMode = "auto"
	colorAlways colorMode = "always"
	colorNever  colorMode = "never"
)

func (c *colorMode) String() string { return string(*c) }
func (c *colorMode) Type() string   { return "mode" }

func (c *colorMode) Set(s string) error {
	switch m := colorMode(s); m {
	case colorAuto, colorAlways, colorNever:
		*c = m
		return nil
	}
	return fmt.Errorf("must be auto, always or never")
}

type outputFormat string

const (
	formatText outputFormat = "text"
	formatJSON outputFormat = "json"
)

func (f *outputFormat) String() string { return string(*f) }
func (f *outputFormat) Type() string   { return "format" }

func (f *outputFormat) Set(s string) error {
	switch v := outputFormat(s); v {
	case formatText, formatJSON:
		*f = v
		return nil
	}
	return fmt.Errorf("must be text or json")
}

// colorize decides whether diagnostics written to stderr get colour.
func (a *app) colorize() bool {
	switch a.color {
	case colorAlways:
		return true
	case colorNever:
		return false
	}
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	f, ok := a.stderr.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// printDiagnostics writes diags to stderr in location order, as text or as
// a JSON array with --format json.
func (a *app) printDiagnostics(diags []diagnostics.Diagnostic) error {
	sorted := diagnostics.NewCollection()
	sorted.Add(diags...)
	sorted.SortByLocation()
	diags = sorted.All()
	if a.format == formatJSON {
		f := &diagnostics.JSONFormatter{Indent: true}
		return f.WriteAll(a.stderr, diags)
	}
	if len(diags) == 0 {
		return nil
	}
	f := diagnostics.NewFormatter()
	f.Colorize = a.colorize()
	f.ShowCodeDescription = a.verbose
	f.Sources = sources(diags)
	if err := f.WriteAll(a.stderr, diags); err != nil {
		return err
	}
	f.PrintSummary(a.stderr, diags)
	return nil
}

// sources reads the files diags point into so the formatter can show
// snippets. Unreadable files get none.
func sources(diags []diagnostics.Diagnostic) map[string][]byte {
	out := make(map[string][]byte)
	for _, d := range diags {
		path := d.Location.Path
		if _, seen := out[path]; seen || !d.HasLocation() {
			continue
		}
		if data, err := os.ReadFile(path); err == nil {
			out[path] = data
		}
	}
	return out
}
