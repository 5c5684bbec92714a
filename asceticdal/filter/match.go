package filter

import (
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/schema"
	s "github.com/krew-solutions/ascetic-dal-go/asceticdal/specification/domain"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/specification/domain/operators"
)

var defaultOperators = operators.NewDefaultRegistry()

// Match evaluates the compiled filter against an in-memory record. Join
// directives are checked against the nested relation, when the record
// carries it, or against the belongs-to foreign key.
func Match(query CompiledQuery, record schema.Record) (bool, error) {
	for _, join := range query.Joins {
		if !matchJoin(join, record) {
			return false, nil
		}
	}
	if query.Filter == nil {
		return true, nil
	}
	v := s.NewEvaluateVisitor(recordContext(record), defaultOperators)
	if err := query.Filter.Accept(v); err != nil {
		return false, err
	}
	return v.Result()
}

func matchJoin(join JoinDirective, record schema.Record) bool {
	var candidates []any
	switch related := record[join.AliasName].(type) {
	case schema.Record:
		candidates = append(candidates, related["id"])
	case []schema.Record:
		for _, r := range related {
			candidates = append(candidates, r["id"])
		}
	default:
		if join.Association.IsParent() {
			candidates = append(candidates, record[join.Association.ForeignKeyColumn])
		}
	}
	return relatedTo(join, candidates) != join.Negated
}

func relatedTo(join JoinDirective, candidates []any) bool {
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if len(join.IDs) == 0 {
			return true
		}
		found, err := defaultOperators.ExecBinary(c, operators.OperatorIn, join.IDs)
		if err == nil && found == true {
			return true
		}
	}
	return false
}

type recordContext schema.Record

// Get treats a missing key as NULL, nested records as nested contexts.
func (r recordContext) Get(key string) (any, error) {
	switch v := r[key].(type) {
	case schema.Record:
		return recordContext(v), nil
	case map[string]any:
		return recordContext(v), nil
	default:
		return v, nil
	}
}
