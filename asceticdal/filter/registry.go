package filter

import (
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/schema"
	s "github.com/krew-solutions/ascetic-dal-go/asceticdal/specification/domain"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/specification/domain/operators"
)

var (
	// ErrUnparseable means the value does not parse as the field's type.
	ErrUnparseable = errors.New("value does not parse as the field type")
	// ErrUnsupported means the type does not support the operator.
	ErrUnsupported = errors.New("operator is not supported by the field type")
)

// Encoder builds the condition for one predicate against field.
type Encoder func(field s.Visitable, value any) (s.Visitable, error)

// TypeRegistry maps a semantic type to its operators and their encodings.
// It is read-only once built and safe for concurrent use.
type TypeRegistry struct {
	encoders map[schema.SemanticType]map[Operator]Encoder
}

func NewTypeRegistry() *TypeRegistry {
	r := &TypeRegistry{encoders: map[schema.SemanticType]map[Operator]Encoder{}}
	registerText(r)
	registerNumber(r)
	registerDate(r)
	registerBoolean(r)
	registerSelector(r)
	registerRelation(r)
	return r
}

func (r *TypeRegistry) Register(t schema.SemanticType, op Operator, enc Encoder) {
	if r.encoders[t] == nil {
		r.encoders[t] = map[Operator]Encoder{}
	}
	r.encoders[t][op] = enc
}

func (r *TypeRegistry) OperatorsFor(t schema.SemanticType) []Operator {
	ops := make([]Operator, 0, len(r.encoders[t]))
	for op := range r.encoders[t] {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

// Encode builds the condition for a predicate on fieldName. A range value
// switches the operator to between. Selector fields always compare for
// equality.
func (r *TypeRegistry) Encode(t schema.SemanticType, op Operator, value any, fieldName string) (s.Visitable, error) {
	if _, isRange := asRange(value); isRange {
		op = OpBetween
	}
	if t == schema.Selector {
		op = OpEqual
	}
	enc, found := r.encoders[t][op]
	if !found {
		return nil, errors.Wrapf(ErrUnsupported, "%s %s", t, op)
	}
	node, err := enc(s.Field(s.GlobalScope(), fieldName), value)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s %q", t, op, fieldName)
	}
	return node, nil
}

type comparisonFn func(left, right s.Visitable) s.InfixNode

func compare(fn comparisonFn, parse func(any) (any, error)) Encoder {
	return func(field s.Visitable, value any) (s.Visitable, error) {
		v, err := parse(value)
		if err != nil {
			return nil, err
		}
		return fn(field, s.Value(v)), nil
	}
}

func between(parse func(any) (any, error)) Encoder {
	return func(field s.Visitable, value any) (s.Visitable, error) {
		bounds, ok := asBounds(value)
		if !ok {
			return nil, ErrUnparseable
		}
		start, err := parse(bounds.Start)
		if err != nil {
			return nil, err
		}
		end, err := parse(bounds.End)
		if err != nil {
			return nil, err
		}
		return s.And(
			s.GreaterThanEqual(field, s.Value(start)),
			s.LessThanEqual(field, s.Value(end)),
		), nil
	}
}

func like(negate bool, pattern func(string) string) Encoder {
	return func(field s.Visitable, value any) (s.Visitable, error) {
		text, err := parseText(value)
		if err != nil {
			return nil, err
		}
		p := s.Value(pattern(escapeLike(text)))
		if negate {
			return s.NotILike(field, p), nil
		}
		return s.ILike(field, p), nil
	}
}

func exactly(v string) string { return v }

func prefix(v string) string { return v + "%" }

func suffix(v string) string { return "%" + v }

func substring(v string) string { return "%" + v + "%" }

func numberValue(v any) (any, error) { return parseNumber(v) }

func dateValue(v any) (any, error) {
	t, err := parseDate(v)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func registerText(r *TypeRegistry) {
	r.Register(schema.Text, OpEqual, like(false, exactly))
	r.Register(schema.Text, OpDifferent, like(true, exactly))
	r.Register(schema.Text, OpStartsWith, like(false, prefix))
	r.Register(schema.Text, OpEndsWith, like(false, suffix))
	r.Register(schema.Text, OpContains, like(false, substring))
	r.Register(schema.Text, OpDoesNotContain, like(true, substring))
	r.Register(schema.Text, OpMatch, func(field s.Visitable, value any) (s.Visitable, error) {
		text, err := parseText(value)
		if err != nil || text == "" {
			return nil, ErrUnparseable
		}
		return s.Match(field, s.Value(text)), nil
	})
}

func registerNumber(r *TypeRegistry) {
	r.Register(schema.Number, OpEqual, compare(s.Equal, numberValue))
	r.Register(schema.Number, OpDifferent, compare(s.NotEqual, numberValue))
	r.Register(schema.Number, OpGreaterThan, compare(s.GreaterThan, numberValue))
	r.Register(schema.Number, OpGreaterOrEqual, compare(s.GreaterThanEqual, numberValue))
	r.Register(schema.Number, OpLessThan, compare(s.LessThan, numberValue))
	r.Register(schema.Number, OpLessOrEqual, compare(s.LessThanEqual, numberValue))
	r.Register(schema.Number, OpBetween, between(numberValue))
}

func registerDate(r *TypeRegistry) {
	r.Register(schema.Date, OpEqual, compare(s.Equal, dateValue))
	r.Register(schema.Date, OpDifferent, compare(s.NotEqual, dateValue))
	r.Register(schema.Date, OpBefore, compare(s.LessThan, dateValue))
	r.Register(schema.Date, OpBeforeOrEqual, compare(s.LessThanEqual, dateValue))
	r.Register(schema.Date, OpAfter, compare(s.GreaterThan, dateValue))
	r.Register(schema.Date, OpAfterOrEqual, compare(s.GreaterThanEqual, dateValue))
	r.Register(schema.Date, OpBetween, between(dateValue))
	for op, part := range map[Operator]operators.DatePart{
		OpDay:   operators.DatePartDay,
		OpMonth: operators.DatePartMonth,
		OpYear:  operators.DatePartYear,
		OpWeek:  operators.DatePartWeek,
	} {
		r.Register(schema.Date, op, component(part))
	}
}

// component compares a calendar component of the field instead of the
// timestamp.
func component(part operators.DatePart) Encoder {
	return func(field s.Visitable, value any) (s.Visitable, error) {
		n, err := parseInteger(value)
		if err != nil {
			if t, dateErr := parseDate(value); dateErr == nil {
				n = int64(componentOf(part, t))
			} else {
				return nil, err
			}
		}
		return s.Equal(s.Extract(part, field), s.Value(int(n))), nil
	}
}

func componentOf(part operators.DatePart, t time.Time) int {
	switch part {
	case operators.DatePartDay:
		return t.Day()
	case operators.DatePartMonth:
		return int(t.Month())
	case operators.DatePartWeek:
		_, week := t.ISOWeek()
		return week
	}
	return t.Year()
}

func registerBoolean(r *TypeRegistry) {
	r.Register(schema.Boolean, OpEqual, func(field s.Visitable, value any) (s.Visitable, error) {
		b, err := parseBoolean(value)
		if err != nil {
			return nil, err
		}
		return s.Equal(field, s.Value(b)), nil
	})
}

func registerSelector(r *TypeRegistry) {
	r.Register(schema.Selector, OpEqual, like(false, exactly))
}

func registerRelation(r *TypeRegistry) {
	single := func(fn comparisonFn) Encoder {
		return func(field s.Visitable, value any) (s.Visitable, error) {
			ids, err := parseIDs(value)
			if err != nil || len(ids) != 1 {
				return nil, ErrUnparseable
			}
			return fn(field, s.Value(ids[0])), nil
		}
	}
	list := func(fn func(s.Visitable, s.ValueNode) s.InfixNode) Encoder {
		return func(field s.Visitable, value any) (s.Visitable, error) {
			ids, err := parseIDs(value)
			if err != nil {
				return nil, err
			}
			return fn(field, s.Value(Homogeneous(ids))), nil
		}
	}
	r.Register(schema.Relation, OpEqual, single(s.Equal))
	r.Register(schema.Relation, OpDifferent, single(s.NotEqual))
	r.Register(schema.Relation, OpIn, list(s.In))
	r.Register(schema.Relation, OpNotIn, list(s.NotIn))
	r.Register(schema.Relation, OpIsNull, func(field s.Visitable, _ any) (s.Visitable, error) {
		return s.IsNull(field), nil
	})
	r.Register(schema.Relation, OpIsNotNull, func(field s.Visitable, _ any) (s.Visitable, error) {
		return s.IsNotNull(field), nil
	})
}
