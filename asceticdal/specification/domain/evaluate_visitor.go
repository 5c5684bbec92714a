package specification

import (
	"errors"
	"fmt"
	"time"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/specification/domain/operators"
)

var ErrKeyNotFound = errors.New("key not found")

// Context resolves a name to a value. Nested objects are Contexts themselves.
type Context interface {
	Get(string) (any, error)
}

func NewEvaluateVisitor(context Context, registry *operators.OperatorRegistry) *EvaluateVisitor {
	return &EvaluateVisitor{
		Context:  context,
		registry: registry,
	}
}

// EvaluateVisitor evaluates an expression against a Context in memory,
// following the same NULL semantics as the SQL rendition.
type EvaluateVisitor struct {
	currentValue any
	stack        []Context
	registry     *operators.OperatorRegistry
	Context
}

func (v *EvaluateVisitor) push(ctx Context) {
	v.stack = append(v.stack, v.Context)
	v.Context = ctx
}

func (v *EvaluateVisitor) pop() {
	v.Context = v.stack[len(v.stack)-1]
	v.stack = v.stack[:len(v.stack)-1]
}

func (v EvaluateVisitor) CurrentValue() any {
	return v.currentValue
}

func (v *EvaluateVisitor) SetCurrentValue(val any) {
	v.currentValue = val
}

func (v *EvaluateVisitor) VisitGlobalScope(n GlobalScopeNode) error {
	v.push(v.Context)
	return nil
}

func (v *EvaluateVisitor) VisitObject(n ObjectNode) error {
	err := n.Parent().Accept(v)
	if err != nil {
		return err
	}
	obj, err := v.Context.Get(n.Name())
	v.pop()
	if err != nil {
		return err
	}
	ctx, ok := obj.(Context)
	if !ok {
		ctx = nullContext{}
	}
	v.push(ctx)
	return nil
}

func (v *EvaluateVisitor) VisitField(n FieldNode) error {
	err := n.Object().Accept(v)
	if err != nil {
		return err
	}
	value, err := v.Context.Get(n.Name())
	v.pop()
	if err != nil {
		return err
	}
	v.SetCurrentValue(value)
	return nil
}

func (v *EvaluateVisitor) VisitValue(n ValueNode) error {
	v.SetCurrentValue(n.Value())
	return nil
}

func (v *EvaluateVisitor) VisitExtract(n ExtractNode) error {
	err := n.Operand().Accept(v)
	if err != nil {
		return err
	}
	if v.CurrentValue() == nil {
		return nil
	}
	t, ok := v.CurrentValue().(time.Time)
	if !ok {
		return fmt.Errorf("cannot extract %s from %T", n.Part(), v.CurrentValue())
	}
	switch n.Part() {
	case operators.DatePartDay:
		v.SetCurrentValue(t.Day())
	case operators.DatePartMonth:
		v.SetCurrentValue(int(t.Month()))
	case operators.DatePartYear:
		v.SetCurrentValue(t.Year())
	case operators.DatePartWeek:
		_, week := t.ISOWeek()
		v.SetCurrentValue(week)
	default:
		return fmt.Errorf("unsupported date part \"%s\"", n.Part())
	}
	return nil
}

func (v *EvaluateVisitor) VisitPrefix(n PrefixNode) error {
	err := n.Operand().Accept(v)
	if err != nil {
		return err
	}
	result, err := v.registry.ExecUnary(n.Operator(), v.CurrentValue())
	if err != nil {
		return err
	}
	v.SetCurrentValue(result)
	return nil
}

func (v *EvaluateVisitor) VisitPostfix(n PostfixNode) error {
	err := n.Operand().Accept(v)
	if err != nil {
		return err
	}
	result, err := v.registry.ExecUnary(n.Operator(), v.CurrentValue())
	if err != nil {
		return err
	}
	v.SetCurrentValue(result)
	return nil
}

func (v *EvaluateVisitor) VisitInfix(n InfixNode) error {
	err := n.Left().Accept(v)
	if err != nil {
		return err
	}
	left := v.CurrentValue()
	err = n.Right().Accept(v)
	if err != nil {
		return err
	}
	right := v.CurrentValue()
	result, err := v.registry.ExecBinary(left, n.Operator(), right)
	if err != nil {
		return err
	}
	v.SetCurrentValue(result)
	return nil
}

// Result reports whether the expression holds. NULL is treated as false,
// the way a WHERE clause treats it.
func (v EvaluateVisitor) Result() (bool, error) {
	result := v.CurrentValue()
	if result == nil {
		return false, nil
	}
	resultTyped, ok := result.(bool)
	if !ok {
		return false, errors.New("the result is not a bool")
	}
	return resultTyped, nil
}

type nullContext struct{}

func (nullContext) Get(string) (any, error) {
	return nil, nil
}
