// Package schema holds the static per-entity metadata the data-access layer
// works against: columns, semantic field types and declared associations.
package schema

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

type Record map[string]any

// Get makes a Record usable as an evaluation context.
func (r Record) Get(key string) (any, error) {
	return r[key], nil
}

type SemanticType string

const (
	Text     SemanticType = "text"
	Number   SemanticType = "number"
	Date     SemanticType = "date"
	Boolean  SemanticType = "boolean"
	Selector SemanticType = "selector"
	Relation SemanticType = "relation"
)

type AssociationKind string

const (
	BelongsTo AssociationKind = "belongsTo"
	HasMany   AssociationKind = "hasMany"
	HasOne    AssociationKind = "hasOne"
)

// AssociationDescriptor describes one declared relation of an entity.
// For BelongsTo the foreign key column lives on the declaring entity,
// for HasMany and HasOne it lives on the target entity.
type AssociationDescriptor struct {
	Kind             AssociationKind `json:"kind"`
	ForeignKeyColumn string          `json:"foreignKeyColumn"`
	AliasName        string          `json:"aliasName"`
	TargetEntity     string          `json:"targetEntity"`
}

func (a AssociationDescriptor) IsParent() bool {
	return a.Kind == BelongsTo
}

type Entity struct {
	Name         string                  `json:"name"`
	Table        string                  `json:"table"`
	PrimaryKey   string                  `json:"primaryKey"`
	Columns      []string                `json:"columns"`
	Types        map[string]SemanticType `json:"types"`
	Associations []AssociationDescriptor `json:"associations"`
}

func (e *Entity) PK() string {
	if e.PrimaryKey == "" {
		return "id"
	}
	return e.PrimaryKey
}

func (e *Entity) Source() string {
	if e.Table == "" {
		return e.Name
	}
	return e.Table
}

func (e *Entity) HasColumn(name string) bool {
	for _, c := range e.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// TypeOf returns the declared semantic type of a column, Text by default.
func (e *Entity) TypeOf(column string) SemanticType {
	if t, ok := e.Types[column]; ok {
		return t
	}
	return Text
}

// Association looks an association up by its exact alias name.
func (e *Entity) Association(aliasName string) (AssociationDescriptor, bool) {
	for _, a := range e.Associations {
		if a.AliasName == aliasName {
			return a, true
		}
	}
	return AssociationDescriptor{}, false
}

// Persistable keeps only the payload keys that name a column.
func (e *Entity) Persistable(payload Record) Record {
	result := make(Record, len(payload))
	for k, v := range payload {
		if e.HasColumn(k) {
			result[k] = v
		}
	}
	return result
}

func (e *Entity) validate() error {
	if e.Name == "" {
		return errors.New("entity name is required")
	}
	if !e.HasColumn(e.PK()) {
		return fmt.Errorf("entity %s: primary key %q is not a column", e.Name, e.PK())
	}
	seen := map[string]bool{}
	for _, a := range e.Associations {
		if a.AliasName == "" || a.ForeignKeyColumn == "" || a.TargetEntity == "" {
			return fmt.Errorf("entity %s: incomplete association %+v", e.Name, a)
		}
		switch a.Kind {
		case BelongsTo:
			if !e.HasColumn(a.ForeignKeyColumn) {
				return fmt.Errorf("entity %s: foreign key %q is not a column", e.Name, a.ForeignKeyColumn)
			}
		case HasMany, HasOne:
		default:
			return fmt.Errorf("entity %s: unknown association kind %q", e.Name, a.Kind)
		}
		if seen[a.AliasName] {
			return fmt.Errorf("entity %s: duplicate association %q", e.Name, a.AliasName)
		}
		seen[a.AliasName] = true
	}
	return nil
}

// Registry is the immutable set of entities known to an adapter.
type Registry struct {
	entities map[string]*Entity
	order    []string
}

func NewRegistry(entities ...*Entity) (*Registry, error) {
	r := &Registry{entities: make(map[string]*Entity, len(entities))}
	for _, e := range entities {
		if err := e.validate(); err != nil {
			return nil, err
		}
		if _, found := r.entities[e.Name]; found {
			return nil, fmt.Errorf("duplicate entity %q", e.Name)
		}
		r.entities[e.Name] = e
		r.order = append(r.order, e.Name)
	}
	for _, e := range entities {
		for _, a := range e.Associations {
			target, found := r.entities[a.TargetEntity]
			if !found {
				return nil, fmt.Errorf("entity %s: unknown target entity %q", e.Name, a.TargetEntity)
			}
			if !a.IsParent() && !target.HasColumn(a.ForeignKeyColumn) {
				return nil, fmt.Errorf("entity %s: foreign key %q is not a column of %s",
					e.Name, a.ForeignKeyColumn, target.Name)
			}
		}
	}
	return r, nil
}

func (r *Registry) Entity(name string) (*Entity, bool) {
	e, found := r.entities[name]
	return e, found
}

// Lookup resolves an entity by name ignoring case.
func (r *Registry) Lookup(name string) (*Entity, bool) {
	if e, found := r.entities[name]; found {
		return e, true
	}
	for _, n := range r.order {
		if strings.EqualFold(n, name) {
			return r.entities[n], true
		}
	}
	return nil, false
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}
