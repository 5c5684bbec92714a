package specification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	s "github.com/krew-solutions/ascetic-dal-go/asceticdal/specification/domain"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/specification/domain/operators"
)

func TestCompileDocumentComparison(t *testing.T) {
	doc, err := CompileDocument(s.Equal(s.Field(s.GlobalScope(), "name"), s.Value("Ann")))
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "name", Value: bson.D{{Key: "$eq", Value: "Ann"}}}}, doc)
}

func TestCompileDocumentKeepsLeftLeaningTree(t *testing.T) {
	gs := s.GlobalScope()
	exp := s.And(
		s.Or(s.Equal(s.Field(gs, "name"), s.Value("Ann")), s.GreaterThan(s.Field(gs, "age"), s.Value(20))),
		s.LessThan(s.Field(gs, "age"), s.Value(60)),
	)

	doc, err := CompileDocument(exp)
	require.NoError(t, err)

	expected := bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "name", Value: bson.D{{Key: "$eq", Value: "Ann"}}}},
			bson.D{{Key: "age", Value: bson.D{{Key: "$gt", Value: 20}}}},
		}}},
		bson.D{{Key: "age", Value: bson.D{{Key: "$lt", Value: 60}}}},
	}}}
	assert.Equal(t, expected, doc)
}

func TestCompileDocumentOperators(t *testing.T) {
	gs := s.GlobalScope()

	tests := []struct {
		name     string
		exp      s.Visitable
		expected bson.D
	}{
		{
			name:     "in",
			exp:      s.In(s.Field(gs, "authorId"), s.Value([]any{1, 2})),
			expected: bson.D{{Key: "authorId", Value: bson.D{{Key: "$in", Value: []any{1, 2}}}}},
		},
		{
			name:     "not in",
			exp:      s.NotIn(s.Field(gs, "authorId"), s.Value([]any{1})),
			expected: bson.D{{Key: "authorId", Value: bson.D{{Key: "$nin", Value: []any{1}}}}},
		},
		{
			name: "ilike",
			exp:  s.ILike(s.Field(gs, "name"), s.Value("ann%")),
			expected: bson.D{{Key: "name", Value: bson.D{
				{Key: "$regex", Value: "^ann.*$"},
				{Key: "$options", Value: "is"},
			}}},
		},
		{
			name: "not ilike",
			exp:  s.NotILike(s.Field(gs, "name"), s.Value("%ann%")),
			expected: bson.D{{Key: "name", Value: bson.D{
				{Key: "$not", Value: primitive.Regex{Pattern: "^.*ann.*$", Options: "is"}},
			}}},
		},
		{
			name:     "full text",
			exp:      s.Match(s.Field(gs, "body"), s.Value("fox")),
			expected: bson.D{{Key: "$text", Value: bson.D{{Key: "$search", Value: "fox"}}}},
		},
		{
			name: "extract",
			exp:  s.Equal(s.Extract(operators.DatePartWeek, s.Field(gs, "createdAt")), s.Value(11)),
			expected: bson.D{{Key: "$expr", Value: bson.D{{Key: "$eq", Value: bson.A{
				bson.D{{Key: "$isoWeek", Value: "$createdAt"}}, 11,
			}}}}},
		},
		{
			name:     "is null",
			exp:      s.IsNull(s.Field(gs, "deletedAt")),
			expected: bson.D{{Key: "deletedAt", Value: nil}},
		},
		{
			name:     "is not null",
			exp:      s.IsNotNull(s.Field(gs, "deletedAt")),
			expected: bson.D{{Key: "deletedAt", Value: bson.D{{Key: "$ne", Value: nil}}}},
		},
		{
			name: "not",
			exp:  s.Not(s.Equal(s.Field(gs, "name"), s.Value("Ann"))),
			expected: bson.D{{Key: "$nor", Value: bson.A{
				bson.D{{Key: "name", Value: bson.D{{Key: "$eq", Value: "Ann"}}}},
			}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := CompileDocument(tt.exp)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, doc)
		})
	}
}

func TestCompileDocumentFieldMapper(t *testing.T) {
	mapper := func(path string) string {
		if path == "id" {
			return "_id"
		}
		return path
	}
	doc, err := CompileDocument(s.Equal(s.Field(s.GlobalScope(), "id"), s.Value(7)), WithFieldMapper(mapper))
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "_id", Value: bson.D{{Key: "$eq", Value: 7}}}}, doc)
}

func TestCompileDocumentRejectsValueOnTheLeft(t *testing.T) {
	_, err := CompileDocument(s.Equal(s.Value(1), s.Value(1)))
	assert.Error(t, err)
}
