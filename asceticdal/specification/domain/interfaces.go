package specification

import "github.com/krew-solutions/ascetic-dal-go/asceticdal/specification/domain/operators"

type EqualOperand = operators.EqualOperand
type LessThanOperand = operators.LessThanOperand
type GreaterThanOperand = operators.GreaterThanOperand
type GreaterThanEqualOperand = operators.GreaterThanEqualOperand
type LessThanEqualOperand = operators.LessThanEqualOperand
