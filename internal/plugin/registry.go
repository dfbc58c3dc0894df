// Package plugin exposes the extension point for additional top-level
// statements. A Registry is populated before a compilation run and passed to
// the parser and code generator; nothing in this package is global.
package plugin

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/electwix/erd-catalyst/internal/schema/tokenizer"
)

var (
	// ErrDuplicateKeyword is returned when a keyword is registered twice.
	ErrDuplicateKeyword = errors.New("plugin: keyword already registered")
	// ErrReservedKeyword is returned for keywords the built-in grammar owns.
	ErrReservedKeyword = errors.New("plugin: keyword is reserved by the DSL")
)

// Block is the raw statement handed to a plugin: the keyword that opened it
// and the verbatim text that followed, including indented continuation lines.
type Block struct {
	Keyword string
	Body    string
	Span    tokenizer.Span
}

// Node is a plugin-defined parse result.
type Node any

// Handler parses and emits one plugin statement kind.
type Handler interface {
	Parse(block Block) (Node, error)
	Emit(block Block, node Node) (string, error)
}

// Funcs adapts a pair of functions to Handler. A nil Parse stores the body
// as the node; a nil Emit emits the body verbatim.
type Funcs struct {
	ParseFunc func(block Block) (Node, error)
	EmitFunc  func(block Block, node Node) (string, error)
}

// Parse implements Handler.
func (f Funcs) Parse(block Block) (Node, error) {
	if f.ParseFunc == nil {
		return block.Body, nil
	}
	return f.ParseFunc(block)
}

// Emit implements Handler.
func (f Funcs) Emit(block Block, node Node) (string, error) {
	if f.EmitFunc == nil {
		return block.Body, nil
	}
	return f.EmitFunc(block, node)
}

// Registry maps keywords to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds keyword to h. Keywords are case-insensitive.
func (r *Registry) Register(keyword string, h Handler) error {
	key := strings.ToUpper(strings.TrimSpace(keyword))
	if !validKeyword(key) {
		return fmt.Errorf("plugin: invalid keyword %q", keyword)
	}
	if tokenizer.IsKeyword(key) {
		return fmt.Errorf("%w: %s", ErrReservedKeyword, key)
	}
	if h == nil {
		return fmt.Errorf("plugin: nil handler for %s", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateKeyword, key)
	}
	r.handlers[key] = h
	return nil
}

// Lookup returns the handler for keyword. A nil registry has no handlers.
func (r *Registry) Lookup(keyword string) (Handler, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[strings.ToUpper(keyword)]
	return h, ok
}

// Keywords returns the registered keywords in sorted order.
func (r *Registry) Keywords() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func validKeyword(k string) bool {
	if k == "" {
		return false
	}
	for i, r := range k {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}
