package operators

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
)

type BinaryOp func(left, right any) (any, error)
type UnaryOp func(operand any) (any, error)

type binaryKey struct {
	left  reflect.Type
	op    Operator
	right reflect.Type
}

type unaryKey struct {
	op      Operator
	operand reflect.Type
}

// OperatorRegistry is read-only once populated, so a single instance may be
// shared by concurrent evaluations.
type OperatorRegistry struct {
	binary map[binaryKey]BinaryOp
	unary  map[unaryKey]UnaryOp

	patterns sync.Map // LIKE pattern -> *regexp.Regexp
}

func NewOperatorRegistry() *OperatorRegistry {
	return &OperatorRegistry{
		binary: make(map[binaryKey]BinaryOp),
		unary:  make(map[unaryKey]UnaryOp),
	}
}

func RegisterBinary[L, R any](reg *OperatorRegistry, op Operator, fn func(L, R) (any, error)) {
	var zeroL L
	var zeroR R
	key := binaryKey{
		left:  reflect.TypeOf(zeroL),
		op:    op,
		right: reflect.TypeOf(zeroR),
	}
	reg.binary[key] = func(left, right any) (any, error) {
		return fn(left.(L), right.(R))
	}
}

func RegisterUnary[T any](reg *OperatorRegistry, op Operator, fn func(T) (any, error)) {
	var zero T
	key := unaryKey{
		op:      op,
		operand: reflect.TypeOf(zero),
	}
	reg.unary[key] = func(operand any) (any, error) {
		return fn(operand.(T))
	}
}

// ExecBinary executes a binary operator with PostgreSQL NULL semantics.
func (r *OperatorRegistry) ExecBinary(left any, op Operator, right any) (any, error) {
	switch op {
	case OperatorAnd:
		return execAnd(left, right)
	case OperatorOr:
		return execOr(left, right)
	}

	if left == nil || right == nil {
		return nil, nil
	}

	switch op {
	case OperatorIn, OperatorNotIn:
		return r.execIn(left, op, right)
	case OperatorILike, OperatorNotILike:
		return r.execILike(left, op, right)
	case OperatorMatch:
		return execMatch(left, right)
	}

	left, right = normalizeNumbers(left, right)
	fn, err := r.lookupBinary(left, op, right)
	if err != nil {
		return nil, err
	}
	return fn(left, right)
}

// ExecUnary executes a unary operator with PostgreSQL NULL semantics.
func (r *OperatorRegistry) ExecUnary(op Operator, operand any) (any, error) {
	// definite result for any value including NULL
	if op == OperatorIsNull {
		return operand == nil, nil
	}
	if op == OperatorIsNotNull {
		return operand != nil, nil
	}

	if operand == nil {
		return nil, nil
	}

	fn, err := r.lookupUnary(op, operand)
	if err != nil {
		return nil, err
	}
	return fn(operand)
}

func (r *OperatorRegistry) lookupBinary(left any, op Operator, right any) (BinaryOp, error) {
	key := binaryKey{
		left:  reflect.TypeOf(left),
		op:    op,
		right: reflect.TypeOf(right),
	}
	fn, ok := r.binary[key]
	if ok {
		return fn, nil
	}

	if fallback := interfaceFallback(left, op); fallback != nil {
		return fallback, nil
	}

	return nil, fmt.Errorf("operator \"%s\" is not supported for %T and %T", op, left, right)
}

func (r *OperatorRegistry) lookupUnary(op Operator, operand any) (UnaryOp, error) {
	key := unaryKey{
		op:      op,
		operand: reflect.TypeOf(operand),
	}
	fn, ok := r.unary[key]
	if !ok {
		return nil, fmt.Errorf("operator \"%s\" is not supported for %T", op, operand)
	}
	return fn, nil
}

func interfaceFallback(left any, op Operator) BinaryOp {
	switch op {
	case OperatorEq, OperatorNe:
		if _, ok := left.(EqualOperand); !ok {
			return nil
		}
		return func(left, right any) (any, error) {
			r, ok := right.(EqualOperand)
			if !ok {
				return nil, fmt.Errorf("right operand %T does not implement EqualOperand", right)
			}
			eq := left.(EqualOperand).Equal(r)
			if op == OperatorNe {
				return !eq, nil
			}
			return eq, nil
		}
	case OperatorGt:
		if _, ok := left.(GreaterThanOperand); ok {
			return func(left, right any) (any, error) {
				r, ok := right.(GreaterThanOperand)
				if !ok {
					return nil, fmt.Errorf("right operand %T does not implement GreaterThanOperand", right)
				}
				return left.(GreaterThanOperand).GreaterThan(r), nil
			}
		}
	case OperatorGte:
		if _, ok := left.(GreaterThanEqualOperand); ok {
			return func(left, right any) (any, error) {
				r, ok := right.(GreaterThanEqualOperand)
				if !ok {
					return nil, fmt.Errorf("right operand %T does not implement GreaterThanEqualOperand", right)
				}
				return left.(GreaterThanEqualOperand).GreaterThanEqual(r), nil
			}
		}
	case OperatorLt:
		if _, ok := left.(LessThanOperand); ok {
			return func(left, right any) (any, error) {
				r, ok := right.(LessThanOperand)
				if !ok {
					return nil, fmt.Errorf("right operand %T does not implement LessThanOperand", right)
				}
				return left.(LessThanOperand).LessThan(r), nil
			}
		}
	case OperatorLte:
		if _, ok := left.(LessThanEqualOperand); ok {
			return func(left, right any) (any, error) {
				r, ok := right.(LessThanEqualOperand)
				if !ok {
					return nil, fmt.Errorf("right operand %T does not implement LessThanEqualOperand", right)
				}
				return left.(LessThanEqualOperand).LessThanEqual(r), nil
			}
		}
	}
	return nil
}

func (r *OperatorRegistry) execIn(left any, op Operator, right any) (any, error) {
	rv := reflect.ValueOf(right)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("operator \"%s\" requires a list, got %T", op, right)
	}
	found := false
	for i := 0; i < rv.Len() && !found; i++ {
		item := rv.Index(i).Interface()
		if item == nil {
			continue
		}
		l, it := normalizeNumbers(left, item)
		fn, err := r.lookupBinary(l, OperatorEq, it)
		if err != nil {
			continue
		}
		eq, err := fn(l, it)
		if err != nil {
			return nil, err
		}
		found = eq == true
	}
	if op == OperatorNotIn {
		return !found, nil
	}
	return found, nil
}

func (r *OperatorRegistry) execILike(left any, op Operator, right any) (any, error) {
	s, ok := left.(string)
	if !ok {
		s = fmt.Sprint(left)
	}
	pattern, ok := right.(string)
	if !ok {
		return nil, fmt.Errorf("operator \"%s\" requires a string pattern, got %T", op, right)
	}
	re, err := r.compileLike(pattern)
	if err != nil {
		return nil, err
	}
	matched := re.MatchString(s)
	if op == OperatorNotILike {
		return !matched, nil
	}
	return matched, nil
}

func (r *OperatorRegistry) compileLike(pattern string) (*regexp.Regexp, error) {
	if re, ok := r.patterns.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile("(?is)" + LikeToRegexp(pattern))
	if err != nil {
		return nil, err
	}
	r.patterns.Store(pattern, re)
	return re, nil
}

// LikeToRegexp translates a LIKE pattern (with backslash escapes) into an
// anchored regular expression.
func LikeToRegexp(pattern string) string {
	var b strings.Builder
	b.WriteString("^")
	escaped := false
	for _, ch := range pattern {
		switch {
		case escaped:
			b.WriteString(regexp.QuoteMeta(string(ch)))
			escaped = false
		case ch == '\\':
			escaped = true
		case ch == '%':
			b.WriteString(".*")
		case ch == '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(ch)))
		}
	}
	b.WriteString("$")
	return b.String()
}

// execMatch approximates plainto_tsquery: every search term must occur as a
// word of the document, case-insensitively.
func execMatch(left, right any) (any, error) {
	doc, ok := left.(string)
	if !ok {
		return nil, fmt.Errorf("operator \"@@\" requires string document, got %T", left)
	}
	query, ok := right.(string)
	if !ok {
		return nil, fmt.Errorf("operator \"@@\" requires string query, got %T", right)
	}
	words := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(doc), isSeparator) {
		words[w] = struct{}{}
	}
	terms := strings.FieldsFunc(strings.ToLower(query), isSeparator)
	if len(terms) == 0 {
		return false, nil
	}
	for _, t := range terms {
		if _, ok := words[t]; !ok {
			return false, nil
		}
	}
	return true, nil
}

func isSeparator(r rune) bool {
	return !(r == '_' || r == '-' || ('0' <= r && r <= '9') || ('a' <= r && r <= 'z') || r > 127)
}

// normalizeNumbers widens mixed numeric operands to float64 so that values
// decoded from different drivers compare with each other.
func normalizeNumbers(left, right any) (any, any) {
	if reflect.TypeOf(left) == reflect.TypeOf(right) {
		return left, right
	}
	l, lok := toFloat64(left)
	r, rok := toFloat64(right)
	if lok && rok {
		return l, r
	}
	return left, right
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// Three-valued logic: NULL AND FALSE = FALSE, NULL AND TRUE = NULL
func execAnd(left, right any) (any, error) {
	if left == nil {
		if val, ok := right.(bool); ok && !val {
			return false, nil
		}
		return nil, nil
	}
	if right == nil {
		if val, ok := left.(bool); ok && !val {
			return false, nil
		}
		return nil, nil
	}
	l, ok := left.(bool)
	if !ok {
		return nil, fmt.Errorf("operator \"AND\" requires bool, got %T", left)
	}
	r, ok := right.(bool)
	if !ok {
		return nil, fmt.Errorf("operator \"AND\" requires bool, got %T", right)
	}
	return l && r, nil
}

// Three-valued logic: NULL OR TRUE = TRUE, NULL OR FALSE = NULL
func execOr(left, right any) (any, error) {
	if left == nil {
		if val, ok := right.(bool); ok && val {
			return true, nil
		}
		return nil, nil
	}
	if right == nil {
		if val, ok := left.(bool); ok && val {
			return true, nil
		}
		return nil, nil
	}
	l, ok := left.(bool)
	if !ok {
		return nil, fmt.Errorf("operator \"OR\" requires bool, got %T", left)
	}
	r, ok := right.(bool)
	if !ok {
		return nil, fmt.Errorf("operator \"OR\" requires bool, got %T", right)
	}
	return l || r, nil
}
