// Package filter compiles flat lists of typed predicates joined by and/or
// connectors into a backend-neutral specification tree.
package filter

import (
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/schema"
	s "github.com/krew-solutions/ascetic-dal-go/asceticdal/specification/domain"
)

type Operator string

const (
	OpEqual          Operator = "equal"
	OpDifferent      Operator = "different"
	OpStartsWith     Operator = "startsWith"
	OpEndsWith       Operator = "endsWith"
	OpContains       Operator = "contains"
	OpDoesNotContain Operator = "doesNotContain"
	OpMatch          Operator = "match"
	OpGreaterThan    Operator = "greaterThan"
	OpGreaterOrEqual Operator = "greaterOrEqual"
	OpLessThan       Operator = "lessThan"
	OpLessOrEqual    Operator = "lessOrEqual"
	OpBetween        Operator = "between"
	OpBefore         Operator = "before"
	OpBeforeOrEqual  Operator = "beforeOrEqual"
	OpAfter          Operator = "after"
	OpAfterOrEqual   Operator = "afterOrEqual"
	OpDay            Operator = "day"
	OpMonth          Operator = "month"
	OpYear           Operator = "year"
	OpWeek           Operator = "week"
	OpIn             Operator = "in"
	OpNotIn          Operator = "notIn"
	OpIsNull         Operator = "isNull"
	OpIsNotNull      Operator = "isNotNull"
)

type Connector string

const (
	And Connector = "and"
	Or  Connector = "or"
)

type Field struct {
	Name string             `json:"name"`
	Type schema.SemanticType `json:"type"`
}

type Predicate struct {
	Parameter Operator `json:"parameter"`
	Value     any      `json:"value"`
	Field     Field    `json:"field"`
}

// Range is an inclusive interval. A predicate carrying a Range always
// compiles as between.
type Range struct {
	Start any `json:"start"`
	End   any `json:"end"`
}

// JoinDirective is a relation predicate resolved to a declared association:
// the root rows are restricted to those related to one of IDs, or to any
// related row when IDs is empty. Negated keeps the rows with no such
// relation instead.
type JoinDirective struct {
	TargetEntity string
	AliasName    string
	Association  schema.AssociationDescriptor
	IDs          []any
	Negated      bool
}

type CompiledQuery struct {
	// Filter is nil when every predicate became a join directive.
	Filter s.Visitable
	Joins  []JoinDirective
}

func (q CompiledQuery) IsEmpty() bool {
	return q.Filter == nil && len(q.Joins) == 0
}
