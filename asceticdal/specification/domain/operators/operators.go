package operators

type Operator string

const (
	// Comparison

	OperatorEq  Operator = "="
	OperatorGt  Operator = ">"
	OperatorLt  Operator = "<"
	OperatorGte Operator = ">="
	OperatorLte Operator = "<="
	OperatorNe  Operator = "!="
	OperatorIs  Operator = "IS"

	// Membership

	OperatorIn    Operator = "IN"
	OperatorNotIn Operator = "NOT IN"

	// Pattern matching, case-insensitive. Right operand is a LIKE pattern.

	OperatorILike    Operator = "ILIKE"
	OperatorNotILike Operator = "NOT ILIKE"

	// Full-text search
	OperatorMatch Operator = "@@"

	// Logical operators

	OperatorAnd Operator = "AND"
	OperatorOr  Operator = "OR"
	OperatorNot Operator = "NOT"

	// Postfix

	OperatorIsNull    Operator = "IS NULL"
	OperatorIsNotNull Operator = "IS NOT NULL"
)

// DatePart is a calendar component of a timestamp.
type DatePart string

const (
	DatePartDay   DatePart = "DAY"
	DatePartMonth DatePart = "MONTH"
	DatePartYear  DatePart = "YEAR"
	DatePartWeek  DatePart = "WEEK"
)
