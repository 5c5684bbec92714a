package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"syreclabs.com/go/faker"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/dalerr"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/schema"
	sql "github.com/krew-solutions/ascetic-dal-go/asceticdal/specification/infrastructure"
)

var (
	nameField    = Field{Name: "name", Type: schema.Text}
	ageField     = Field{Name: "age", Type: schema.Number}
	createdField = Field{Name: "createdAt", Type: schema.Date}
	authorField  = Field{Name: "authors", Type: schema.Relation}
)

var user = &schema.Entity{
	Name:    "User",
	Columns: []string{"id", "name", "age", "active", "createdAt", "teamId"},
	Types: map[string]schema.SemanticType{
		"name": schema.Text, "age": schema.Number, "active": schema.Boolean,
		"createdAt": schema.Date, "teamId": schema.Relation,
	},
}

var post = &schema.Entity{
	Name:    "Post",
	Columns: []string{"id", "title", "authorId"},
	Associations: []schema.AssociationDescriptor{
		{Kind: schema.BelongsTo, ForeignKeyColumn: "authorId", AliasName: "author", TargetEntity: "Author"},
		{Kind: schema.HasMany, ForeignKeyColumn: "postId", AliasName: "comments", TargetEntity: "Comment"},
	},
}

func people() []schema.Record {
	return []schema.Record{
		{"id": 1, "name": "Ann", "age": 17},
		{"id": 2, "name": "Bob", "age": 18},
		{"id": 3, "name": "ann", "age": 30},
		{"id": 4, "name": "Cid", "age": 31},
	}
}

func matchingIDs(t *testing.T, q CompiledQuery, rows []schema.Record) []any {
	t.Helper()
	var ids []any
	for _, row := range rows {
		ok, err := Match(q, row)
		require.NoError(t, err)
		if ok {
			ids = append(ids, row["id"])
		}
	}
	return ids
}

func compileSQL(t *testing.T, q CompiledQuery) (string, []any) {
	t.Helper()
	where, params, err := sql.Compile(q.Filter)
	require.NoError(t, err)
	return where, params
}

func TestCompileSinglePredicate(t *testing.T) {
	q, err := NewCompiler().Compile(user, []Predicate{{Parameter: OpEqual, Value: "Ann", Field: nameField}}, nil)
	require.NoError(t, err)

	where, params := compileSQL(t, q)
	assert.Equal(t, `"name" ILIKE $1`, where)
	assert.Equal(t, []any{"Ann"}, params)
	assert.Equal(t, []any{1, 3}, matchingIDs(t, q, people()))
}

func TestCompileBetweenIsInclusive(t *testing.T) {
	q, err := NewCompiler().Compile(user, []Predicate{{Parameter: OpBetween, Value: []any{18, 30}, Field: ageField}}, nil)
	require.NoError(t, err)

	where, params := compileSQL(t, q)
	assert.Equal(t, `"age" >= $1 AND "age" <= $2`, where)
	assert.Equal(t, []any{int64(18), int64(30)}, params)
	assert.Equal(t, []any{2, 3}, matchingIDs(t, q, people()))
}

func TestCompileRangeValueOverridesOperator(t *testing.T) {
	for _, value := range []any{
		Range{Start: 18, End: "30"},
		map[string]any{"start": 18.0, "end": 30},
	} {
		q, err := NewCompiler().Compile(user, []Predicate{{Parameter: OpEqual, Value: value, Field: ageField}}, nil)
		require.NoError(t, err)
		assert.Equal(t, []any{2, 3}, matchingIDs(t, q, people()))
	}
}

func TestCompileOr(t *testing.T) {
	q, err := NewCompiler().Compile(user, []Predicate{
		{Parameter: OpEqual, Value: "Ann", Field: nameField},
		{Parameter: OpGreaterThan, Value: 20, Field: ageField},
	}, []Connector{"or"})
	require.NoError(t, err)

	where, _ := compileSQL(t, q)
	assert.Equal(t, `"name" ILIKE $1 OR "age" > $2`, where)
	assert.Equal(t, []any{1, 3, 4}, matchingIDs(t, q, people()))
}

func TestCompileFoldsFromTheLeft(t *testing.T) {
	q, err := NewCompiler().Compile(user, []Predicate{
		{Parameter: OpEqual, Value: "Ann", Field: nameField},
		{Parameter: OpGreaterThan, Value: 20, Field: ageField},
		{Parameter: OpLessThan, Value: 31, Field: ageField},
	}, []Connector{"OR", "and"})
	require.NoError(t, err)

	where, params := compileSQL(t, q)
	assert.Equal(t, `("name" ILIKE $1 OR "age" > $2) AND "age" < $3`, where)
	assert.Equal(t, []any{"Ann", int64(20), int64(31)}, params)
	assert.Equal(t, []any{1, 3}, matchingIDs(t, q, people()))
}

func TestCompileIsDeterministic(t *testing.T) {
	c := NewCompiler()
	for i := 0; i < 20; i++ {
		predicates := []Predicate{
			{Parameter: OpContains, Value: faker.Name().FirstName(), Field: nameField},
			{Parameter: OpLessOrEqual, Value: faker.Number().NumberInt(2), Field: ageField},
			{Parameter: OpStartsWith, Value: faker.Lorem().Word(), Field: nameField},
			{Parameter: OpYear, Value: 2024, Field: createdField},
		}
		connectors := []Connector{"and", "or", "and"}
		first, err := c.Compile(user, predicates, connectors)
		require.NoError(t, err)
		second, err := c.Compile(user, predicates, connectors)
		require.NoError(t, err)
		assert.Equal(t, first, second)

		where1, params1 := compileSQL(t, first)
		where2, params2 := compileSQL(t, second)
		assert.Equal(t, where1, where2)
		assert.Equal(t, params1, params2)
	}
}

func TestCompileDropsUnparseableValues(t *testing.T) {
	c := NewCompiler()

	_, err := c.Compile(user, []Predicate{{Parameter: OpEqual, Value: "abc", Field: ageField}}, nil)
	require.Error(t, err)
	assert.True(t, dalerr.Is(err, dalerr.KindValidation))
	assert.Equal(t, dalerr.CodeEmptyFilter, dalerr.CodeOf(err))

	q, err := c.Compile(user, []Predicate{
		{Parameter: OpEqual, Value: "abc", Field: ageField},
		{Parameter: OpEqual, Value: "Ann", Field: nameField},
	}, []Connector{"or"})
	require.NoError(t, err)
	where, _ := compileSQL(t, q)
	assert.Equal(t, `"name" ILIKE $1`, where)
}

func TestCompileEmptyInput(t *testing.T) {
	_, err := NewCompiler().Compile(user, nil, nil)
	assert.Equal(t, dalerr.CodeEmptyFilter, dalerr.CodeOf(err))
}

func TestCompileTruncatesToConnectors(t *testing.T) {
	q, err := NewCompiler().Compile(user, []Predicate{
		{Parameter: OpEqual, Value: "Ann", Field: nameField},
		{Parameter: OpGreaterThan, Value: 20, Field: ageField},
		{Parameter: OpLessThan, Value: 31, Field: ageField},
	}, []Connector{"and"})
	require.NoError(t, err)
	where, _ := compileSQL(t, q)
	assert.Equal(t, `"name" ILIKE $1 AND "age" > $2`, where)

	q, err = NewCompiler().Compile(user, []Predicate{
		{Parameter: OpEqual, Value: "Ann", Field: nameField},
	}, []Connector{"or", "and", "xor"})
	require.NoError(t, err)
	where, _ = compileSQL(t, q)
	assert.Equal(t, `"name" ILIKE $1`, where)
}

func TestCompileRejectsUnknownConnector(t *testing.T) {
	_, err := NewCompiler().Compile(user, []Predicate{
		{Parameter: OpEqual, Value: "Ann", Field: nameField},
		{Parameter: OpGreaterThan, Value: 20, Field: ageField},
	}, []Connector{"xor"})
	assert.True(t, dalerr.Is(err, dalerr.KindValidation))
	assert.Equal(t, CodeInvalidConnector, dalerr.CodeOf(err))
}

func TestCompileDropsUnknownFields(t *testing.T) {
	q, err := NewCompiler().Compile(user, []Predicate{
		{Parameter: OpEqual, Value: "x", Field: Field{Name: "password", Type: schema.Text}},
		{Parameter: OpEqual, Value: "Ann", Field: nameField},
	}, []Connector{"and"})
	require.NoError(t, err)
	where, _ := compileSQL(t, q)
	assert.Equal(t, `"name" ILIKE $1`, where)
}

func TestCompileExtractsJoins(t *testing.T) {
	q, err := NewCompiler().Compile(post, []Predicate{
		{Parameter: OpEqual, Value: "Hello", Field: Field{Name: "title", Type: schema.Text}},
		{Parameter: OpIn, Value: []int{7, 8}, Field: authorField},
	}, []Connector{"and"})
	require.NoError(t, err)

	require.Len(t, q.Joins, 1)
	assert.Equal(t, "Author", q.Joins[0].TargetEntity)
	assert.Equal(t, "author", q.Joins[0].AliasName)
	assert.Equal(t, []any{int64(7), int64(8)}, q.Joins[0].IDs)
	where, _ := compileSQL(t, q)
	assert.Equal(t, `"title" ILIKE $1`, where)

	ok, err := Match(q, schema.Record{"title": "hello", "authorId": int32(8)})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = Match(q, schema.Record{"title": "hello", "authorId": 9})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompileOnlyJoins(t *testing.T) {
	q, err := NewCompiler().Compile(post, []Predicate{
		{Parameter: OpEqual, Value: "7", Field: Field{Name: "ALIASauthorIdALIASAuthorsALIAS", Type: schema.Relation}},
	}, nil)
	require.NoError(t, err)
	assert.Nil(t, q.Filter)
	require.Len(t, q.Joins, 1)
	assert.Equal(t, []any{"7"}, q.Joins[0].IDs)
}

func TestCompilePlainRelationColumn(t *testing.T) {
	q, err := NewCompiler().Compile(user, []Predicate{
		{Parameter: OpNotIn, Value: []any{1, 2}, Field: Field{Name: "teamId", Type: schema.Relation}},
	}, nil)
	require.NoError(t, err)
	where, params := compileSQL(t, q)
	assert.Equal(t, `"teamId" <> ALL($1)`, where)
	assert.Equal(t, []any{[]int64{1, 2}}, params)
}

func TestCompileParentRelationFiltersForeignKey(t *testing.T) {
	cases := []struct {
		name     string
		op       Operator
		value    any
		expected string
		params   []any
		matches  []any
	}{
		{"different", OpDifferent, 5, `"authorId" != $1`, []any{int64(5)}, []any{6, 7}},
		{"not in", OpNotIn, []any{5, 6}, `"authorId" <> ALL($1)`, []any{[]int64{5, 6}}, []any{7}},
		{"is null", OpIsNull, nil, `"authorId" IS NULL`, nil, []any{nil}},
		{"is not null", OpIsNotNull, nil, `"authorId" IS NOT NULL`, nil, []any{5, 6, 7}},
	}
	rows := []schema.Record{
		{"title": "a", "authorId": 5},
		{"title": "b", "authorId": 6},
		{"title": "c", "authorId": 7},
		{"title": "d", "authorId": nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := NewCompiler().Compile(post, []Predicate{
				{Parameter: tc.op, Value: tc.value, Field: authorField},
			}, nil)
			require.NoError(t, err)
			assert.Empty(t, q.Joins)

			where, params := compileSQL(t, q)
			assert.Equal(t, tc.expected, where)
			assert.Equal(t, tc.params, params)

			var matched []any
			for _, row := range rows {
				ok, err := Match(q, row)
				require.NoError(t, err)
				if ok {
					matched = append(matched, row["authorId"])
				}
			}
			assert.Equal(t, tc.matches, matched)
		})
	}
}

func TestCompileChildRelationOperators(t *testing.T) {
	cases := []struct {
		name    string
		op      Operator
		value   any
		ids     []any
		negated bool
		matches []string
	}{
		{"equal", OpEqual, 3, []any{int64(3)}, false, []string{"a"}},
		{"in", OpIn, []any{3, 4}, []any{int64(3), int64(4)}, false, []string{"a", "b"}},
		{"different", OpDifferent, 3, []any{int64(3)}, true, []string{"b", "c"}},
		{"not in", OpNotIn, []any{3, 4}, []any{int64(3), int64(4)}, true, []string{"c"}},
		{"is null", OpIsNull, nil, nil, true, []string{"c"}},
		{"is not null", OpIsNotNull, nil, nil, false, []string{"a", "b"}},
	}
	rows := []schema.Record{
		{"title": "a", "comments": []schema.Record{{"id": 3}}},
		{"title": "b", "comments": []schema.Record{{"id": 4}, {"id": 5}}},
		{"title": "c", "comments": []schema.Record{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := NewCompiler().Compile(post, []Predicate{
				{Parameter: tc.op, Value: tc.value, Field: Field{Name: "comments", Type: schema.Relation}},
			}, nil)
			require.NoError(t, err)
			assert.Nil(t, q.Filter)
			require.Len(t, q.Joins, 1)
			assert.Equal(t, "Comment", q.Joins[0].TargetEntity)
			assert.Equal(t, tc.ids, q.Joins[0].IDs)
			assert.Equal(t, tc.negated, q.Joins[0].Negated)

			var matched []string
			for _, row := range rows {
				ok, err := Match(q, row)
				require.NoError(t, err)
				if ok {
					matched = append(matched, row["title"].(string))
				}
			}
			assert.Equal(t, tc.matches, matched)
		})
	}
}

func TestCompileRejectsAssociationRange(t *testing.T) {
	_, err := NewCompiler().Compile(post, []Predicate{
		{Parameter: OpGreaterThan, Value: 3, Field: Field{Name: "comments", Type: schema.Relation}},
	}, nil)
	assert.True(t, dalerr.Is(err, dalerr.KindValidation))
}

func TestBuildCustomQuery(t *testing.T) {
	reg, err := schema.NewRegistry(user)
	require.NoError(t, err)
	c := NewCompiler()

	q, err := c.BuildCustomQuery([]Predicate{{Parameter: OpEqual, Value: true, Field: Field{Name: "active", Type: schema.Boolean}}}, nil, reg, "user")
	require.NoError(t, err)
	where, params := compileSQL(t, q)
	assert.Equal(t, `"active" = $1`, where)
	assert.Equal(t, []any{true}, params)

	_, err = c.BuildCustomQuery(nil, nil, reg, "Team")
	assert.Equal(t, CodeUnknownEntity, dalerr.CodeOf(err))
}

func TestMatchDateComponents(t *testing.T) {
	rows := []schema.Record{
		{"id": 1, "createdAt": time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)},
		{"id": 2, "createdAt": time.Date(2023, 3, 1, 10, 0, 0, 0, time.UTC)},
		{"id": 3},
	}
	c := NewCompiler()

	q, err := c.Compile(user, []Predicate{{Parameter: OpMonth, Value: 3, Field: createdField}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, matchingIDs(t, q, rows))

	q, err = c.Compile(user, []Predicate{{Parameter: OpAfter, Value: "2024-01-01", Field: createdField}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{1}, matchingIDs(t, q, rows))
}
