package document

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"syreclabs.com/go/faker"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/adapter"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/dalerr"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/filter"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/schema"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/session"
)

type call struct {
	op         string
	collection string
	filter     bson.D
	doc        bson.D
	opts       FindOptions
	field      string
}

type fakeTx struct {
	id         string
	ctx        context.Context
	committed  bool
	rolledBack bool
}

func (t *fakeTx) ID() string { return t.id }
func (t *fakeTx) Context() context.Context { return t.ctx }
func (t *fakeTx) Commit() error { t.committed = true; return nil }
func (t *fakeTx) Rollback() error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type txKey struct{}

// fakeDriver records every operation and replays programmed results.
type fakeDriver struct {
	*session.Signals
	calls     []call
	found     [][]bson.M
	distinct  []any
	updated   bson.M
	deleted   int64
	count     int64
	insertErr error
	txs       []*fakeTx
	txCtx     []bool
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{Signals: session.NewSignals()}
}

func (d *fakeDriver) record(ctx context.Context, c call) {
	d.calls = append(d.calls, c)
	d.txCtx = append(d.txCtx, ctx.Value(txKey{}) != nil)
}

func (d *fakeDriver) Find(ctx context.Context, collection string, f bson.D, opts FindOptions) ([]bson.M, error) {
	d.record(ctx, call{op: "find", collection: collection, filter: f, opts: opts})
	if len(d.found) == 0 {
		return []bson.M{}, nil
	}
	docs := d.found[0]
	d.found = d.found[1:]
	return docs, nil
}

func (d *fakeDriver) Count(ctx context.Context, collection string, f bson.D) (int64, error) {
	d.record(ctx, call{op: "count", collection: collection, filter: f})
	return d.count, nil
}

func (d *fakeDriver) Distinct(ctx context.Context, collection, field string, f bson.D) ([]any, error) {
	d.record(ctx, call{op: "distinct", collection: collection, filter: f, field: field})
	return d.distinct, nil
}

func (d *fakeDriver) InsertOne(ctx context.Context, collection string, doc bson.D) error {
	d.record(ctx, call{op: "insert", collection: collection, doc: doc})
	return d.insertErr
}

func (d *fakeDriver) UpdateOne(ctx context.Context, collection string, f, set bson.D) (bson.M, error) {
	d.record(ctx, call{op: "update", collection: collection, filter: f, doc: set})
	if d.updated == nil {
		return nil, mongo.ErrNoDocuments
	}
	return d.updated, nil
}

func (d *fakeDriver) DeleteMany(ctx context.Context, collection string, f bson.D) (int64, error) {
	d.record(ctx, call{op: "delete", collection: collection, filter: f})
	return d.deleted, nil
}

func (d *fakeDriver) Begin(ctx context.Context) (session.Transaction, error) {
	tx := &fakeTx{id: faker.Lorem().Word(), ctx: context.WithValue(ctx, txKey{}, true)}
	d.txs = append(d.txs, tx)
	return tx, nil
}

var (
	authorAssoc  = schema.AssociationDescriptor{Kind: schema.BelongsTo, ForeignKeyColumn: "authorId", AliasName: "author", TargetEntity: "Author"}
	reviewsAssoc = schema.AssociationDescriptor{Kind: schema.HasMany, ForeignKeyColumn: "bookId", AliasName: "reviews", TargetEntity: "Review"}
)

func newAdapter(t *testing.T) (*Adapter, *fakeDriver) {
	t.Helper()
	reg, err := schema.NewRegistry(
		&schema.Entity{
			Name:         "Book",
			Table:        "books",
			Columns:      []string{"id", "title", "authorId", "createdAt"},
			Associations: []schema.AssociationDescriptor{authorAssoc, reviewsAssoc},
		},
		&schema.Entity{Name: "Author", Table: "authors", Columns: []string{"id", "name"}},
		&schema.Entity{Name: "Review", Table: "reviews", Columns: []string{"id", "bookId", "body"}},
	)
	require.NoError(t, err)
	driver := newFakeDriver()
	a, err := New(driver, reg, "Book")
	require.NoError(t, err)
	return a, driver
}

func TestFindManyRendersQueryDocument(t *testing.T) {
	a, driver := newAdapter(t)
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	driver.found = [][]bson.M{{{"_id": "b1", "title": "Dune", "createdAt": primitive.NewDateTimeFromTime(created)}}}

	q, err := a.BuildCustomQuery([]filter.Predicate{
		{Parameter: filter.OpGreaterThan, Value: 2, Field: filter.Field{Name: "id", Type: schema.Number}},
		{Parameter: filter.OpEqual, Value: []any{"a1", "a2"}, Field: filter.Field{Name: "author", Type: schema.Relation}},
	}, []filter.Connector{filter.And}, "Book")
	require.NoError(t, err)

	books, err := a.FindMany(context.Background(), q, adapter.Page{Size: 10, Offset: 20}, nil)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, schema.Record{"id": "b1", "title": "Dune", "createdAt": created}, books[0])

	require.Len(t, driver.calls, 1)
	c := driver.calls[0]
	assert.Equal(t, "books", c.collection)
	assert.Equal(t, bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: "authorId", Value: bson.D{{Key: "$in", Value: bson.A{"a1", "a2"}}}}},
		bson.D{{Key: "_id", Value: bson.D{{Key: "$gt", Value: int64(2)}}}},
	}}}, c.filter)
	assert.Equal(t, FindOptions{Sort: bson.D{{Key: "createdAt", Value: -1}}, Skip: 20, Limit: 10}, c.opts)
}

func TestChildJoinResolvesParentsWithDistinct(t *testing.T) {
	a, driver := newAdapter(t)
	driver.distinct = []any{"b1", "b2"}
	driver.count = 2
	q := filter.CompiledQuery{Joins: []filter.JoinDirective{
		{TargetEntity: "Review", AliasName: "reviews", Association: reviewsAssoc, IDs: []any{"r1"}},
	}}

	n, err := a.GetCount(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.Len(t, driver.calls, 2)
	assert.Equal(t, call{op: "distinct", collection: "reviews", field: "bookId",
		filter: bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: bson.A{"r1"}}}}}}, driver.calls[0])
	assert.Equal(t, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: bson.A{"b1", "b2"}}}}}, driver.calls[1].filter)
}

func TestCreateAssignsIdAndSkipsResync(t *testing.T) {
	a, driver := newAdapter(t)
	title := faker.Lorem().Word()

	book, err := a.Create(context.Background(), schema.Record{"title": title})
	require.NoError(t, err)
	id, ok := book["id"].(string)
	require.True(t, ok)
	assert.Len(t, id, 26)
	assert.Equal(t, bson.D{{Key: "_id", Value: id}, {Key: "title", Value: title}}, driver.calls[0].doc)
	assert.True(t, driver.txCtx[0])
	assert.True(t, driver.txs[0].committed)

	_, err = a.Create(context.Background(), schema.Record{"id": "explicit", "title": title})
	assert.NoError(t, err)
}

func TestCreateNestedChildrenInTransaction(t *testing.T) {
	a, driver := newAdapter(t)
	book, err := a.Create(context.Background(), schema.Record{
		"title":   faker.Lorem().Word(),
		"reviews": []any{schema.Record{"body": faker.Lorem().Sentence(3)}},
	})
	require.NoError(t, err)
	reviews := book["reviews"].([]schema.Record)
	require.Len(t, reviews, 1)
	assert.Equal(t, book["id"], reviews[0]["bookId"])
	assert.Equal(t, "reviews", driver.calls[1].collection)
	assert.Equal(t, []bool{true, true}, driver.txCtx)
}

func TestDuplicateKeyRollsBack(t *testing.T) {
	a, driver := newAdapter(t)
	driver.insertErr = mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "duplicate key"}}}

	_, err := a.Create(context.Background(), schema.Record{"title": "Dune"})
	assert.True(t, dalerr.Is(err, dalerr.KindUniqueConstraint))
	assert.True(t, driver.txs[0].rolledBack)
}

func TestUpdate(t *testing.T) {
	a, driver := newAdapter(t)
	_, err := a.Update(context.Background(), "missing", schema.Record{"title": "Emma"})
	assert.True(t, dalerr.Is(err, dalerr.KindNotFound))

	driver.updated = bson.M{"_id": "b1", "title": "Emma"}
	book, err := a.Update(context.Background(), "b1", schema.Record{"id": "b1", "title": "Emma"})
	require.NoError(t, err)
	assert.Equal(t, schema.Record{"id": "b1", "title": "Emma"}, book)
	last := driver.calls[len(driver.calls)-1]
	assert.Equal(t, bson.D{{Key: "_id", Value: "b1"}}, last.filter)
	assert.Equal(t, bson.D{{Key: "title", Value: "Emma"}}, last.doc)
}

func TestDeleteAndResync(t *testing.T) {
	a, driver := newAdapter(t)
	ctx := context.Background()

	assert.True(t, dalerr.Is(a.Delete(ctx, "b1"), dalerr.KindNotFound))

	driver.deleted = 3
	n, err := a.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, bson.D{}, driver.calls[len(driver.calls)-1].filter)

	_, err = a.DeleteMany(ctx, filter.CompiledQuery{})
	assert.Equal(t, dalerr.CodeEmptyFilter, dalerr.CodeOf(err))

	err = a.ResyncSequence(ctx)
	assert.True(t, dalerr.Is(err, dalerr.KindNotImplemented))
	assert.Equal(t, BackendName, a.Backend())
}

func TestFindByIdWithEagerLoading(t *testing.T) {
	a, driver := newAdapter(t)
	driver.found = [][]bson.M{
		{{"_id": "b1", "title": "Dune", "authorId": "a1"}},
		{{"_id": "a1", "name": "Frank"}},
		{{"_id": "r1", "bookId": "b1", "body": "great"}},
	}

	book, err := a.FindByIdWithEagerLoading(context.Background(), "b1", 5)
	require.NoError(t, err)
	assert.Equal(t, schema.Record{"id": "a1", "name": "Frank"}, book["author"])
	assert.Equal(t, []schema.Record{{"id": "r1", "bookId": "b1", "body": "great"}}, book["reviews"])

	require.Len(t, driver.calls, 3)
	assert.Equal(t, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: bson.A{"a1"}}}}}, driver.calls[1].filter)
	assert.Equal(t, FindOptions{Sort: bson.D{{Key: "_id", Value: 1}}, Limit: 5}, driver.calls[2].opts)
}

func TestReadsRunInBorrowedTransaction(t *testing.T) {
	a, driver := newAdapter(t)
	ctx := context.Background()
	driver.found = [][]bson.M{{{"_id": "b1"}}, {{"_id": "b1"}}, {{"_id": "b1"}}}
	q := filter.CompiledQuery{Joins: []filter.JoinDirective{
		{TargetEntity: "Author", AliasName: "author", Association: authorAssoc, IDs: []any{"a1"}},
	}}

	tx, err := a.StartTransaction(ctx)
	require.NoError(t, err)
	_, err = a.FindManyWithTransaction(ctx, tx, q, adapter.Page{Size: 5}, nil)
	require.NoError(t, err)
	_, err = a.FindOneWithTransaction(ctx, tx, q, nil)
	require.NoError(t, err)
	_, err = a.FindAllWithTransaction(ctx, tx, adapter.Page{}, nil)
	require.NoError(t, err)
	_, err = a.GetCountWithTransaction(ctx, tx, q)
	require.NoError(t, err)
	require.NoError(t, a.RollbackTransaction(tx))

	assert.Equal(t, []bool{true, true, true, true}, driver.txCtx)
	assert.Equal(t, "count", driver.calls[3].op)
	assert.True(t, driver.txs[0].rolledBack)
}

func TestNegatedAndExistenceJoins(t *testing.T) {
	cases := []struct {
		name     string
		join     filter.JoinDirective
		distinct []any
		children bson.D
		expected bson.D
	}{
		{
			name:     "child not in",
			join:     filter.JoinDirective{TargetEntity: "Review", AliasName: "reviews", Association: reviewsAssoc, IDs: []any{"r1"}, Negated: true},
			distinct: []any{"b1"},
			children: bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: bson.A{"r1"}}}}},
			expected: bson.D{{Key: "_id", Value: bson.D{{Key: "$nin", Value: bson.A{"b1"}}}}},
		},
		{
			name:     "child absent",
			join:     filter.JoinDirective{TargetEntity: "Review", AliasName: "reviews", Association: reviewsAssoc, Negated: true},
			children: bson.D{},
			expected: bson.D{{Key: "_id", Value: bson.D{{Key: "$nin", Value: bson.A{}}}}},
		},
		{
			name:     "child exists",
			join:     filter.JoinDirective{TargetEntity: "Review", AliasName: "reviews", Association: reviewsAssoc},
			distinct: []any{"b1", "b2"},
			children: bson.D{},
			expected: bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: bson.A{"b1", "b2"}}}}},
		},
		{
			name:     "parent absent",
			join:     filter.JoinDirective{TargetEntity: "Author", AliasName: "author", Association: authorAssoc, Negated: true},
			expected: bson.D{{Key: "authorId", Value: nil}},
		},
		{
			name:     "parent not in",
			join:     filter.JoinDirective{TargetEntity: "Author", AliasName: "author", Association: authorAssoc, IDs: []any{"a1"}, Negated: true},
			expected: bson.D{{Key: "authorId", Value: bson.D{{Key: "$nin", Value: bson.A{"a1"}}}}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, driver := newAdapter(t)
			driver.distinct = tc.distinct
			_, err := a.GetCount(context.Background(), filter.CompiledQuery{Joins: []filter.JoinDirective{tc.join}})
			require.NoError(t, err)

			last := driver.calls[len(driver.calls)-1]
			assert.Equal(t, "count", last.op)
			assert.Equal(t, tc.expected, last.filter)
			if tc.children != nil {
				require.Len(t, driver.calls, 2)
				assert.Equal(t, "reviews", driver.calls[0].collection)
				assert.Equal(t, "bookId", driver.calls[0].field)
				assert.Equal(t, tc.children, driver.calls[0].filter)
			} else {
				assert.Len(t, driver.calls, 1)
			}
		})
	}
}
