package specification

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	s "github.com/krew-solutions/ascetic-dal-go/asceticdal/specification/domain"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/specification/domain/operators"
)

// Compile renders an expression as a PostgreSQL boolean expression with
// positional parameters.
func Compile(exp s.Visitable, opts ...PostgresqlVisitorOption) (sql string, params []any, err error) {
	v := NewPostgresqlVisitor(opts...)
	err = exp.Accept(v)
	if err != nil {
		return "", nil, err
	}
	return v.Result()
}

type PostgresqlVisitorOption func(*PostgresqlVisitor)

// PlaceholderIndex sets the number of parameters already bound by the
// enclosing statement, so the first placeholder becomes $(index+1).
func PlaceholderIndex(index int) PostgresqlVisitorOption {
	return func(v *PostgresqlVisitor) {
		v.placeholderIndex = index
	}
}

// WithTableAlias qualifies root-scope fields with the given table alias.
func WithTableAlias(alias string) PostgresqlVisitorOption {
	return func(v *PostgresqlVisitor) {
		v.tableAlias = alias
	}
}

func NewPostgresqlVisitor(opts ...PostgresqlVisitorOption) *PostgresqlVisitor {
	v := &PostgresqlVisitor{
		precedenceMapping: make(map[string]int),
	}
	// https://www.postgresql.org/docs/14/sql-syntax-lexical.html#SQL-PRECEDENCE-TABLE
	v.setPrecedence(160, ". LEFT")
	v.setPrecedence(160, ":: LEFT")
	v.setPrecedence(150, "[ LEFT")
	// all other native and user-defined operators 👇️
	v.setPrecedence(100, "(any other operator) LEFT")
	v.setPrecedence(90, "IN NON", "NOT IN NON", "ILIKE NON", "NOT ILIKE NON")
	v.setPrecedence(80, "< NON", "> NON", "= NON", "<= NON", ">= NON", "!= NON")
	v.setPrecedence(70, "IS NON", "IS NULL NON", "IS NOT NULL NON")
	v.setPrecedence(60, "NOT RIGHT")
	v.setPrecedence(50, "AND LEFT")
	v.setPrecedence(40, "OR LEFT")
	for i := range opts {
		opts[i](v)
	}
	return v
}

type PostgresqlVisitor struct {
	sql               strings.Builder
	placeholderIndex  int
	tableAlias        string
	parameters        []any
	precedence        int
	precedenceMapping map[string]int
}

func (v *PostgresqlVisitor) getNodePrecedenceKey(n s.Operable) string {
	return fmt.Sprintf("%s %s", n.Operator(), n.Associativity())
}

func (v *PostgresqlVisitor) setPrecedence(precedence int, operators ...string) {
	for _, op := range operators {
		v.precedenceMapping[op] = precedence
	}
}

func (v *PostgresqlVisitor) visit(precedenceKey string, callable func() error) error {
	outerPrecedence := v.precedence
	innerPrecedence, ok := v.precedenceMapping[precedenceKey]
	if !ok {
		innerPrecedence, ok = v.precedenceMapping["(any other operator) LEFT"]
		if !ok {
			innerPrecedence = outerPrecedence
		}
	}
	v.precedence = innerPrecedence
	if innerPrecedence < outerPrecedence {
		v.sql.WriteString("(")
	}
	err := callable()
	if err != nil {
		return err
	}
	if innerPrecedence < outerPrecedence {
		v.sql.WriteString(")")
	}
	v.precedence = outerPrecedence
	return nil
}

func (v *PostgresqlVisitor) VisitGlobalScope(_ s.GlobalScopeNode) error {
	return nil
}

func (v *PostgresqlVisitor) VisitObject(_ s.ObjectNode) error {
	return nil
}

func (v *PostgresqlVisitor) VisitField(n s.FieldNode) error {
	path := s.ExtractFieldPath(n)
	if len(path) == 1 && v.tableAlias != "" {
		path = append([]string{v.tableAlias}, path...)
	}
	v.sql.WriteString(pgx.Identifier(path).Sanitize())
	return nil
}

func (v *PostgresqlVisitor) VisitValue(n s.ValueNode) error {
	v.sql.WriteString(v.bind(n.Value()))
	return nil
}

func (v *PostgresqlVisitor) bind(value any) string {
	v.parameters = append(v.parameters, value)
	return fmt.Sprintf("$%d", v.placeholderIndex+len(v.parameters))
}

func (v *PostgresqlVisitor) VisitExtract(n s.ExtractNode) error {
	v.sql.WriteString("EXTRACT(")
	v.sql.WriteString(string(n.Part()))
	v.sql.WriteString(" FROM ")
	outerPrecedence := v.precedence
	v.precedence = 0
	err := n.Operand().Accept(v)
	v.precedence = outerPrecedence
	if err != nil {
		return err
	}
	v.sql.WriteString(")")
	return nil
}

func (v *PostgresqlVisitor) VisitPrefix(node s.PrefixNode) error {
	precedenceKey := v.getNodePrecedenceKey(node)
	return v.visit(precedenceKey, func() error {
		v.sql.WriteString(fmt.Sprintf("%s ", node.Operator()))
		return node.Operand().Accept(v)
	})
}

func (v *PostgresqlVisitor) VisitInfix(n s.InfixNode) error {
	precedenceKey := v.getNodePrecedenceKey(n)
	return v.visit(precedenceKey, func() error {
		switch n.Operator() {
		case operators.OperatorIn:
			return v.visitArrayComparison(n, " = ANY(")
		case operators.OperatorNotIn:
			return v.visitArrayComparison(n, " <> ALL(")
		case operators.OperatorMatch:
			return v.visitFullText(n)
		}
		err := n.Left().Accept(v)
		if err != nil {
			return err
		}
		v.sql.WriteString(fmt.Sprintf(" %s ", n.Operator()))
		return n.Right().Accept(v)
	})
}

// visitArrayComparison binds the whole list as one array parameter.
func (v *PostgresqlVisitor) visitArrayComparison(n s.InfixNode, opening string) error {
	err := n.Left().Accept(v)
	if err != nil {
		return err
	}
	v.sql.WriteString(opening)
	outerPrecedence := v.precedence
	v.precedence = 0
	err = n.Right().Accept(v)
	v.precedence = outerPrecedence
	if err != nil {
		return err
	}
	v.sql.WriteString(")")
	return nil
}

func (v *PostgresqlVisitor) visitFullText(n s.InfixNode) error {
	outerPrecedence := v.precedence
	v.precedence = 0
	defer func() { v.precedence = outerPrecedence }()

	v.sql.WriteString("to_tsvector(")
	err := n.Left().Accept(v)
	if err != nil {
		return err
	}
	v.sql.WriteString(") @@ plainto_tsquery(")
	err = n.Right().Accept(v)
	if err != nil {
		return err
	}
	v.sql.WriteString(")")
	return nil
}

func (v *PostgresqlVisitor) VisitPostfix(node s.PostfixNode) error {
	precedenceKey := v.getNodePrecedenceKey(node)
	return v.visit(precedenceKey, func() error {
		err := node.Operand().Accept(v)
		if err != nil {
			return err
		}
		v.sql.WriteString(fmt.Sprintf(" %s", node.Operator()))
		return nil
	})
}

func (v *PostgresqlVisitor) Result() (sql string, params []any, err error) {
	return v.sql.String(), v.parameters, nil
}
