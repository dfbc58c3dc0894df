// Package jsplugin builds plugin handlers from JavaScript files.
//
// A plugin script declares its keyword and up to two functions, either as
// globals or as properties of the predefined exports object:
//
//	exports.keyword = "GRANT";
//	exports.parse = function (body, block) { return { target: body.trim() }; };
//	exports.emit = function (node, block) { return "GRANT SELECT ON " + node.target + " TO reporting"; };
//
// parse receives the block body and returns any JSON-like value; emit
// receives that value and returns the SQL text. Either may be omitted, in
// which case the body is passed through unchanged.
package jsplugin

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/electwix/erd-catalyst/internal/plugin"
)

const (
	defaultTimeout      = 2 * time.Second
	defaultMaxCallStack = 500
	fixedSeed           = 12345
)

// Options bounds script execution.
type Options struct {
	// Timeout limits each script evaluation and each parse or emit call.
	Timeout time.Duration
	// MaxCallStack limits JavaScript recursion depth.
	MaxCallStack int
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.MaxCallStack <= 0 {
		o.MaxCallStack = defaultMaxCallStack
	}
	return o
}

// Handler is a plugin.Handler backed by one script. Calls are serialized
// because a goja runtime is not safe for concurrent use.
type Handler struct {
	Keyword string
	Path    string

	mu      sync.Mutex
	vm      *goja.Runtime
	parse   goja.Callable
	emit    goja.Callable
	timeout time.Duration
}

var _ plugin.Handler = (*Handler)(nil)

// Load reads and evaluates the script at path.
func Load(path string, opts Options) (*Handler, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("jsplugin: read %s: %w", path, err)
	}
	return Compile(path, string(src), opts)
}

// Compile evaluates src and returns its handler. path is used in errors.
func Compile(path, src string, opts Options) (*Handler, error) {
	opts = opts.withDefaults()
	vm := newRuntime(opts)
	exports := vm.NewObject()
	if err := vm.Set("exports", exports); err != nil {
		return nil, fmt.Errorf("jsplugin: %s: %w", path, err)
	}

	h := &Handler{Path: path, vm: vm, timeout: opts.Timeout}
	if _, err := h.run("load", func() (goja.Value, error) {
		return vm.RunScript(path, src)
	}); err != nil {
		return nil, err
	}

	keyword := h.export(exports, "keyword")
	if keyword == nil || goja.IsUndefined(keyword) || goja.IsNull(keyword) {
		return nil, fmt.Errorf("jsplugin: %s: script does not declare a keyword", path)
	}
	h.Keyword = keyword.String()

	var err error
	if h.parse, err = h.function(exports, "parse"); err != nil {
		return nil, err
	}
	if h.emit, err = h.function(exports, "emit"); err != nil {
		return nil, err
	}
	return h, nil
}

// Register loads every script in paths and registers its handler.
func Register(reg *plugin.Registry, paths []string, opts Options) error {
	for _, path := range paths {
		h, err := Load(path, opts)
		if err != nil {
			return err
		}
		if err := reg.Register(h.Keyword, h); err != nil {
			return fmt.Errorf("jsplugin: %s: %w", path, err)
		}
	}
	return nil
}

// Parse implements plugin.Handler.
func (h *Handler) Parse(block plugin.Block) (plugin.Node, error) {
	if h.parse == nil {
		return block.Body, nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	v, err := h.run("parse", func() (goja.Value, error) {
		return h.parse(goja.Undefined(), h.vm.ToValue(block.Body), h.blockValue(block))
	})
	if err != nil {
		return nil, err
	}
	if v == nil || goja.IsUndefined(v) {
		return nil, nil
	}
	return v.Export(), nil
}

// Emit implements plugin.Handler.
func (h *Handler) Emit(block plugin.Block, node plugin.Node) (string, error) {
	if h.emit == nil {
		return block.Body, nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	v, err := h.run("emit", func() (goja.Value, error) {
		return h.emit(goja.Undefined(), h.vm.ToValue(node), h.blockValue(block))
	})
	if err != nil {
		return "", err
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "", fmt.Errorf("jsplugin: %s: emit returned no SQL", h.Path)
	}
	s, ok := v.Export().(string)
	if !ok {
		return "", fmt.Errorf("jsplugin: %s: emit returned %s, want string", h.Path, v.ExportType())
	}
	return s, nil
}

// run executes fn under the handler timeout and translates script errors.
func (h *Handler) run(what string, fn func() (goja.Value, error)) (goja.Value, error) {
	timer := time.AfterFunc(h.timeout, func() {
		h.vm.Interrupt("timeout")
	})
	defer func() {
		timer.Stop()
		h.vm.ClearInterrupt()
	}()

	v, err := fn()
	if err == nil {
		return v, nil
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return nil, fmt.Errorf("jsplugin: %s: %s timed out after %s", h.Path, what, h.timeout)
	}
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return nil, fmt.Errorf("jsplugin: %s: %s: %s", h.Path, what, exc.Value().String())
	}
	return nil, fmt.Errorf("jsplugin: %s: %s: %w", h.Path, what, err)
}

func (h *Handler) export(exports *goja.Object, name string) goja.Value {
	if v := exports.Get(name); v != nil && !goja.IsUndefined(v) {
		return v
	}
	return h.vm.Get(name)
}

func (h *Handler) function(exports *goja.Object, name string) (goja.Callable, error) {
	v := h.export(exports, name)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("jsplugin: %s: %s is not a function", h.Path, name)
	}
	return fn, nil
}

func (h *Handler) blockValue(block plugin.Block) goja.Value {
	return h.vm.ToValue(map[string]any{
		"keyword": block.Keyword,
		"body":    block.Body,
		"line":    block.Span.StartLine,
	})
}

// newRuntime returns a runtime with a bounded stack, deterministic Math.random
// and no eval.
func newRuntime(opts Options) *goja.Runtime {
	vm := goja.New()
	vm.SetMaxCallStackSize(opts.MaxCallStack)
	seeded := rand.New(rand.NewSource(fixedSeed))
	vm.SetRandSource(func() float64 { return seeded.Float64() })
	vm.Set("eval", goja.Undefined())
	return vm
}
