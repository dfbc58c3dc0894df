package model

// RelationshipKind classifies a derived relationship.
type RelationshipKind int

const (
	ManyToOne RelationshipKind = iota + 1
	OneToOne
	OneToMany
	ManyToMany
)

func (k RelationshipKind) String() string {
	switch k {
	case ManyToOne:
		return "many-to-one"
	case OneToOne:
		return "one-to-one"
	case OneToMany:
		return "one-to-many"
	case ManyToMany:
		return "many-to-many"
	default:
		return "unknown"
	}
}

// Relationship is an edge derived from foreign keys and list fields.
type Relationship struct {
	Kind RelationshipKind
	From EntityID
	To   EntityID
	// Field is the field the edge comes from; empty for many-to-many edges.
	Field string
	// Via is the join entity of a many-to-many edge, NoEntity otherwise.
	Via EntityID
}

// Relationships derives the schema's relationships in declaration order:
//   - a column-bearing FK field gives many-to-one, or one-to-one when the
//     field is also UNIQUE;
//   - a list field without FK whose type names an entity gives one-to-many;
//   - an entity whose composite key contains two or more FK fields is a join
//     entity, linking every pair of their targets many-to-many.
func Relationships(s *Schema) []Relationship {
	var out []Relationship
	for _, e := range s.Entities {
		for _, f := range e.Fields {
			if fk, ok := f.ForeignKey(); ok && f.EmitsColumn() {
				kind := ManyToOne
				if f.Has(Unique) {
					kind = OneToOne
				}
				out = append(out, Relationship{Kind: kind, From: e.ID, To: fk.Target, Field: f.Name, Via: NoEntity})
				continue
			}
			if f.Cardinality == List && !f.Has(ForeignKey) && f.Type.Kind == TypeEntity {
				out = append(out, Relationship{Kind: OneToMany, From: e.ID, To: f.Type.Entity, Field: f.Name, Via: NoEntity})
			}
		}
		targets := JoinTargets(e)
		for i := 0; i < len(targets); i++ {
			for j := i + 1; j < len(targets); j++ {
				out = append(out, Relationship{Kind: ManyToMany, From: targets[i], To: targets[j], Via: e.ID})
			}
		}
	}
	return out
}

// JoinTargets returns the FK targets of the composite key's fields when two
// or more of them are foreign keys, and nil otherwise.
func JoinTargets(e *Entity) []EntityID {
	key, ok := e.CompositeKey()
	if !ok {
		return nil
	}
	var targets []EntityID
	for _, col := range key.Columns {
		f := e.Field(col)
		if f == nil {
			continue
		}
		if fk, ok := f.ForeignKey(); ok {
			targets = append(targets, fk.Target)
		}
	}
	if len(targets) < 2 {
		return nil
	}
	return targets
}

// Related reports whether id takes part in any relationship.
func Related(rels []Relationship, id EntityID) bool {
	for _, r := range rels {
		if r.From == id || r.To == id || r.Via == id {
			return true
		}
	}
	return false
}
