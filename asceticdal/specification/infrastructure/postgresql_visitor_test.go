package specification

import (
	"reflect"
	"testing"

	s "github.com/krew-solutions/ascetic-dal-go/asceticdal/specification/domain"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/specification/domain/operators"
)

func TestSimpleFieldRendering(t *testing.T) {
	obj := s.Object(s.GlobalScope(), "users")
	expr := s.Field(obj, "name")

	visitor := NewPostgresqlVisitor()
	err := expr.Accept(visitor)
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}

	sql, params, err := visitor.Result()
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}

	if sql != `"users"."name"` {
		t.Errorf(`Expected '"users"."name"', got %s`, sql)
	}

	if len(params) != 0 {
		t.Errorf("Expected no params, got %v", params)
	}
}

func TestValueParameterization(t *testing.T) {
	sql, params, err := Compile(s.Value(42))
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if sql != "$1" {
		t.Errorf("Expected '$1', got %s", sql)
	}
	if len(params) != 1 || params[0] != 42 {
		t.Errorf("Expected params [42], got %v", params)
	}
}

func TestCompile(t *testing.T) {
	gs := s.GlobalScope()
	name := s.Field(gs, "name")
	age := s.Field(gs, "age")

	tests := []struct {
		name     string
		exp      s.Visitable
		expected string
		params   []any
	}{
		{
			name:     "equal",
			exp:      s.Equal(name, s.Value("Ann")),
			expected: `"name" = $1`,
			params:   []any{"Ann"},
		},
		{
			name:     "left fold needs no parentheses",
			exp:      s.And(s.Or(s.Equal(name, s.Value("Ann")), s.GreaterThan(age, s.Value(20))), s.LessThan(age, s.Value(60))),
			expected: `("name" = $1 OR "age" > $2) AND "age" < $3`,
			params:   []any{"Ann", 20, 60},
		},
		{
			name:     "and inside or",
			exp:      s.Or(s.Equal(name, s.Value("Ann")), s.And(s.GreaterThanEqual(age, s.Value(18)), s.LessThanEqual(age, s.Value(30)))),
			expected: `"name" = $1 OR "age" >= $2 AND "age" <= $3`,
			params:   []any{"Ann", 18, 30},
		},
		{
			name:     "not",
			exp:      s.Not(s.Or(s.Equal(name, s.Value("Ann")), s.Equal(name, s.Value("Bob")))),
			expected: `NOT ("name" = $1 OR "name" = $2)`,
			params:   []any{"Ann", "Bob"},
		},
		{
			name:     "in",
			exp:      s.In(s.Field(gs, "authorId"), s.Value([]any{1, 2})),
			expected: `"authorId" = ANY($1)`,
			params:   []any{[]any{1, 2}},
		},
		{
			name:     "not in",
			exp:      s.NotIn(s.Field(gs, "authorId"), s.Value([]any{1, 2})),
			expected: `"authorId" <> ALL($1)`,
			params:   []any{[]any{1, 2}},
		},
		{
			name:     "ilike",
			exp:      s.ILike(name, s.Value("ann%")),
			expected: `"name" ILIKE $1`,
			params:   []any{"ann%"},
		},
		{
			name:     "not ilike",
			exp:      s.NotILike(name, s.Value("%ann%")),
			expected: `"name" NOT ILIKE $1`,
			params:   []any{"%ann%"},
		},
		{
			name:     "full text",
			exp:      s.Match(s.Field(gs, "body"), s.Value("quick fox")),
			expected: `to_tsvector("body") @@ plainto_tsquery($1)`,
			params:   []any{"quick fox"},
		},
		{
			name:     "extract",
			exp:      s.Equal(s.Extract(operators.DatePartMonth, s.Field(gs, "createdAt")), s.Value(3)),
			expected: `EXTRACT(MONTH FROM "createdAt") = $1`,
			params:   []any{3},
		},
		{
			name:     "is null",
			exp:      s.And(s.IsNull(s.Field(gs, "deletedAt")), s.IsNotNull(name)),
			expected: `"deletedAt" IS NULL AND "name" IS NOT NULL`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, params, err := Compile(tt.exp)
			if err != nil {
				t.Fatalf("Compile failed: %v", err)
			}
			if sql != tt.expected {
				t.Errorf("Expected SQL: %s, got: %s", tt.expected, sql)
			}
			if len(params) != len(tt.params) || (len(params) > 0 && !reflect.DeepEqual(params, tt.params)) {
				t.Errorf("Expected params %v, got %v", tt.params, params)
			}
		})
	}
}

func TestCompileWithOptions(t *testing.T) {
	exp := s.And(
		s.Equal(s.Field(s.GlobalScope(), "name"), s.Value("Ann")),
		s.Equal(s.Field(s.Object(s.GlobalScope(), "author"), "name"), s.Value("Bob")),
	)

	sql, params, err := Compile(exp, WithTableAlias("posts"), PlaceholderIndex(2))
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	expected := `"posts"."name" = $3 AND "author"."name" = $4`
	if sql != expected {
		t.Errorf("Expected SQL: %s, got: %s", expected, sql)
	}
	if len(params) != 2 {
		t.Errorf("Expected 2 params, got %v", params)
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	gs := s.GlobalScope()
	exp := s.Or(s.And(s.Equal(s.Field(gs, "a"), s.Value(1)), s.Equal(s.Field(gs, "b"), s.Value(2))), s.Equal(s.Field(gs, "c"), s.Value(3)))

	sql1, params1, err := Compile(exp)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	sql2, params2, err := Compile(exp)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if sql1 != sql2 || !reflect.DeepEqual(params1, params2) {
		t.Errorf("Expected identical output, got %q and %q", sql1, sql2)
	}
}
