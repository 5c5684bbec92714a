package specification

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	s "github.com/krew-solutions/ascetic-dal-go/asceticdal/specification/domain"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/specification/domain/operators"
)

// CompileDocument renders an expression as a MongoDB query document.
// The tree shape is kept as is: nested $and/$or are not flattened.
func CompileDocument(exp s.Visitable, opts ...MongodbVisitorOption) (bson.D, error) {
	v := NewMongodbVisitor(opts...)
	err := exp.Accept(v)
	if err != nil {
		return nil, err
	}
	return v.Result()
}

type MongodbVisitorOption func(*MongodbVisitor)

// WithFieldMapper renames field paths, e.g. "id" to "_id".
func WithFieldMapper(mapper func(string) string) MongodbVisitorOption {
	return func(v *MongodbVisitor) {
		v.fieldMapper = mapper
	}
}

func NewMongodbVisitor(opts ...MongodbVisitorOption) *MongodbVisitor {
	v := &MongodbVisitor{
		fieldMapper: func(path string) string { return path },
	}
	for i := range opts {
		opts[i](v)
	}
	return v
}

var comparisonOperators = map[operators.Operator]string{
	operators.OperatorEq:    "$eq",
	operators.OperatorIs:    "$eq",
	operators.OperatorNe:    "$ne",
	operators.OperatorGt:    "$gt",
	operators.OperatorGte:   "$gte",
	operators.OperatorLt:    "$lt",
	operators.OperatorLte:   "$lte",
	operators.OperatorIn:    "$in",
	operators.OperatorNotIn: "$nin",
}

var datePartOperators = map[operators.DatePart]string{
	operators.DatePartDay:   "$dayOfMonth",
	operators.DatePartMonth: "$month",
	operators.DatePartYear:  "$year",
	operators.DatePartWeek:  "$isoWeek",
}

type operand interface{}

type fieldOperand struct {
	path string
}

type valueOperand struct {
	value any
}

// aggregation expression, only valid inside $expr
type expressionOperand struct {
	expr bson.D
}

type documentOperand struct {
	doc bson.D
}

type MongodbVisitor struct {
	stack       []operand
	fieldMapper func(string) string
}

func (v *MongodbVisitor) push(o operand) {
	v.stack = append(v.stack, o)
}

func (v *MongodbVisitor) pop() (operand, error) {
	if len(v.stack) == 0 {
		return nil, fmt.Errorf("malformed expression: operand stack is empty")
	}
	o := v.stack[len(v.stack)-1]
	v.stack = v.stack[:len(v.stack)-1]
	return o, nil
}

func (v *MongodbVisitor) popDocument() (bson.D, error) {
	o, err := v.pop()
	if err != nil {
		return nil, err
	}
	switch typed := o.(type) {
	case documentOperand:
		return typed.doc, nil
	case valueOperand:
		if b, ok := typed.value.(bool); ok {
			return bson.D{{Key: "$expr", Value: b}}, nil
		}
	case fieldOperand:
		return bson.D{{Key: typed.path, Value: bson.D{{Key: "$eq", Value: true}}}}, nil
	}
	return nil, fmt.Errorf("operand %T is not a boolean expression", o)
}

func (v *MongodbVisitor) VisitGlobalScope(_ s.GlobalScopeNode) error {
	return nil
}

func (v *MongodbVisitor) VisitObject(_ s.ObjectNode) error {
	return nil
}

func (v *MongodbVisitor) VisitField(n s.FieldNode) error {
	v.push(fieldOperand{path: v.fieldMapper(strings.Join(s.ExtractFieldPath(n), "."))})
	return nil
}

func (v *MongodbVisitor) VisitValue(n s.ValueNode) error {
	v.push(valueOperand{value: n.Value()})
	return nil
}

func (v *MongodbVisitor) VisitExtract(n s.ExtractNode) error {
	err := n.Operand().Accept(v)
	if err != nil {
		return err
	}
	o, err := v.pop()
	if err != nil {
		return err
	}
	field, ok := o.(fieldOperand)
	if !ok {
		return fmt.Errorf("cannot extract %s from %T", n.Part(), o)
	}
	op, ok := datePartOperators[n.Part()]
	if !ok {
		return fmt.Errorf("unsupported date part \"%s\"", n.Part())
	}
	v.push(expressionOperand{expr: bson.D{{Key: op, Value: "$" + field.path}}})
	return nil
}

func (v *MongodbVisitor) VisitPrefix(n s.PrefixNode) error {
	if n.Operator() != operators.OperatorNot {
		return fmt.Errorf("operator \"%s\" is not supported", n.Operator())
	}
	err := n.Operand().Accept(v)
	if err != nil {
		return err
	}
	doc, err := v.popDocument()
	if err != nil {
		return err
	}
	v.push(documentOperand{doc: bson.D{{Key: "$nor", Value: bson.A{doc}}}})
	return nil
}

func (v *MongodbVisitor) VisitPostfix(n s.PostfixNode) error {
	err := n.Operand().Accept(v)
	if err != nil {
		return err
	}
	o, err := v.pop()
	if err != nil {
		return err
	}
	field, ok := o.(fieldOperand)
	if !ok {
		return fmt.Errorf("operator \"%s\" requires a field, got %T", n.Operator(), o)
	}
	switch n.Operator() {
	case operators.OperatorIsNull:
		v.push(documentOperand{doc: bson.D{{Key: field.path, Value: nil}}})
	case operators.OperatorIsNotNull:
		v.push(documentOperand{doc: bson.D{{Key: field.path, Value: bson.D{{Key: "$ne", Value: nil}}}}})
	default:
		return fmt.Errorf("operator \"%s\" is not supported", n.Operator())
	}
	return nil
}

func (v *MongodbVisitor) VisitInfix(n s.InfixNode) error {
	if n.Operator() == operators.OperatorAnd || n.Operator() == operators.OperatorOr {
		return v.visitLogical(n)
	}
	err := n.Left().Accept(v)
	if err != nil {
		return err
	}
	err = n.Right().Accept(v)
	if err != nil {
		return err
	}
	right, err := v.pop()
	if err != nil {
		return err
	}
	left, err := v.pop()
	if err != nil {
		return err
	}
	value, ok := right.(valueOperand)
	if !ok {
		return fmt.Errorf("operator \"%s\" requires a value on the right, got %T", n.Operator(), right)
	}
	switch typed := left.(type) {
	case fieldOperand:
		doc, err := v.fieldComparison(typed.path, n.Operator(), value.value)
		if err != nil {
			return err
		}
		v.push(documentOperand{doc: doc})
	case expressionOperand:
		op, ok := comparisonOperators[n.Operator()]
		if !ok {
			return fmt.Errorf("operator \"%s\" is not supported on expressions", n.Operator())
		}
		v.push(documentOperand{doc: bson.D{{Key: "$expr", Value: bson.D{{Key: op, Value: bson.A{typed.expr, value.value}}}}}})
	default:
		return fmt.Errorf("operator \"%s\" requires a field on the left, got %T", n.Operator(), left)
	}
	return nil
}

func (v *MongodbVisitor) fieldComparison(path string, op operators.Operator, value any) (bson.D, error) {
	switch op {
	case operators.OperatorILike:
		return bson.D{{Key: path, Value: bson.D{
			{Key: "$regex", Value: operators.LikeToRegexp(fmt.Sprint(value))},
			{Key: "$options", Value: "is"},
		}}}, nil
	case operators.OperatorNotILike:
		return bson.D{{Key: path, Value: bson.D{
			{Key: "$not", Value: primitive.Regex{Pattern: operators.LikeToRegexp(fmt.Sprint(value)), Options: "is"}},
		}}}, nil
	case operators.OperatorMatch:
		// a text index covers the searchable fields of the collection
		return bson.D{{Key: "$text", Value: bson.D{{Key: "$search", Value: value}}}}, nil
	}
	mongoOp, ok := comparisonOperators[op]
	if !ok {
		return nil, fmt.Errorf("operator \"%s\" is not supported", op)
	}
	return bson.D{{Key: path, Value: bson.D{{Key: mongoOp, Value: value}}}}, nil
}

func (v *MongodbVisitor) visitLogical(n s.InfixNode) error {
	err := n.Left().Accept(v)
	if err != nil {
		return err
	}
	left, err := v.popDocument()
	if err != nil {
		return err
	}
	err = n.Right().Accept(v)
	if err != nil {
		return err
	}
	right, err := v.popDocument()
	if err != nil {
		return err
	}
	key := "$and"
	if n.Operator() == operators.OperatorOr {
		key = "$or"
	}
	v.push(documentOperand{doc: bson.D{{Key: key, Value: bson.A{left, right}}}})
	return nil
}

func (v *MongodbVisitor) Result() (bson.D, error) {
	doc, err := v.popDocument()
	if err != nil {
		return nil, err
	}
	if len(v.stack) != 0 {
		return nil, fmt.Errorf("malformed expression: %d dangling operands", len(v.stack))
	}
	return doc, nil
}
