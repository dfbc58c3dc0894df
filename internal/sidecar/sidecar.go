// Package sidecar loads the optional YAML overlay that supplies
// environment-specific overrides to code generation.
//
// A sidecar document is keyed by entity name:
//
//	entities:
//	  Organization:
//	    rls: true
//	    partitions: {strategy: range, columns: [created_at]}
//	    migrations:
//	      post: |
//	        GRANT SELECT ON Organization TO reporting;
//
// Sidecar values win over the inline PARTITION and RLS directives.
package sidecar

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/electwix/erd-catalyst/internal/diagnostics"
	"github.com/electwix/erd-catalyst/internal/schema/model"
)

// Error reports a sidecar that could not be read or decoded.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("sidecar %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Partition overrides an entity's PARTITION BY clause.
type Partition struct {
	Strategy string   `yaml:"strategy"`
	Columns  []string `yaml:"columns"`
}

// Migrations holds free SQL appended after an entity's generated block.
type Migrations struct {
	Post string `yaml:"post"`
}

// Entity is the override set for one entity. A nil RLS leaves the inline
// directive in charge; false suppresses it.
type Entity struct {
	RLS        *bool      `yaml:"rls"`
	Partitions *Partition `yaml:"partitions"`
	Migrations Migrations `yaml:"migrations"`
}

// Overlay is a decoded sidecar document. The zero value overrides nothing.
type Overlay struct {
	Path     string            `yaml:"-"`
	Entities map[string]Entity `yaml:"entities"`

	lines map[string]int
}

// Entity returns the overrides for name.
func (o Overlay) Entity(name string) (Entity, bool) {
	e, ok := o.Entities[name]
	return e, ok
}

// Names returns the overridden entity names in sorted order.
func (o Overlay) Names() []string {
	names := make([]string, 0, len(o.Entities))
	for name := range o.Entities {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Load reads and decodes the sidecar at path.
func Load(path string) (Overlay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Overlay{}, &Error{Path: path, Err: err}
	}
	return Parse(path, data)
}

// Parse decodes a sidecar document. Unknown keys are rejected.
func Parse(path string, data []byte) (Overlay, error) {
	overlay := Overlay{Path: path}
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return overlay, &Error{Path: path, Err: err}
	}
	if len(root.Content) == 0 {
		return overlay, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&overlay); err != nil && !errors.Is(err, io.EOF) {
		return Overlay{Path: path}, &Error{Path: path, Err: err}
	}
	overlay.Path = path
	overlay.lines = entityLines(root.Content[0])
	return overlay, nil
}

// entityLines records the line of each key under "entities".
func entityLines(doc *yaml.Node) map[string]int {
	lines := make(map[string]int)
	if doc.Kind != yaml.MappingNode {
		return lines
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value != "entities" || doc.Content[i+1].Kind != yaml.MappingNode {
			continue
		}
		ents := doc.Content[i+1].Content
		for j := 0; j+1 < len(ents); j += 2 {
			lines[ents[j].Value] = ents[j].Line
		}
	}
	return lines
}

// Check reports overrides that do not apply to schema: unknown entities and
// partition columns the entity does not have.
func (o Overlay) Check(schema *model.Schema) []diagnostics.Diagnostic {
	var diags []diagnostics.Diagnostic
	for _, name := range o.Names() {
		loc := diagnostics.Location{Path: o.Path, Line: o.lines[name], Column: 1}
		ent := schema.EntityNamed(name)
		if ent == nil {
			diags = append(diags, diagnostics.Warningf("sidecar overrides unknown entity %s", name).
				WithCode(diagnostics.CodeUnknownSidecar).
				AtLocation(loc).
				InEntity(name).
				Build())
			continue
		}
		p := o.Entities[name].Partitions
		if p == nil {
			continue
		}
		for _, col := range p.Columns {
			if f := ent.Field(col); f == nil || !f.EmitsColumn() {
				diags = append(diags, diagnostics.Warningf("sidecar partitions %s by unknown column %s", name, col).
					WithCode(diagnostics.CodeUnknownSidecar).
					AtLocation(loc).
					InEntity(name).
					OnField(col).
					Build())
			}
		}
	}
	return diags
}
