// Package document implements the adapter contract on MongoDB. Entities map
// to collections and the primary key is stored as _id.
package document

import (
	"context"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/adapter"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/dalerr"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/filter"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/schema"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/session"
	mongospec "github.com/krew-solutions/ascetic-dal-go/asceticdal/specification/infrastructure"
)

const (
	BackendName = "mongodb"
	idField     = "_id"
)

type Backend struct {
	driver   Driver
	registry *schema.Registry
}

func NewBackend(driver Driver, registry *schema.Registry) *Backend {
	return &Backend{driver: driver, registry: registry}
}

func (b *Backend) Name() string {
	return BackendName
}

func (b *Backend) Begin(ctx context.Context) (session.Transaction, error) {
	return b.driver.Begin(ctx)
}

func (b *Backend) Select(
	ctx context.Context, tx session.Transaction, entity *schema.Entity, q filter.CompiledQuery, page adapter.Page, order []schema.OrderSpec,
) ([]schema.Record, error) {
	ctx = within(ctx, tx)
	query, err := b.query(ctx, entity, q)
	if err != nil {
		return nil, err
	}
	opts := FindOptions{Sort: sortDocument(entity, order), Skip: int64(page.Offset)}
	if page.Size > 0 {
		opts.Limit = int64(page.Size)
	}
	docs, err := b.driver.Find(ctx, entity.Source(), query, opts)
	if err != nil {
		return nil, classify(err, "find "+entity.Name)
	}
	return records(entity, docs), nil
}

func (b *Backend) Count(ctx context.Context, tx session.Transaction, entity *schema.Entity, q filter.CompiledQuery) (int64, error) {
	ctx = within(ctx, tx)
	query, err := b.query(ctx, entity, q)
	if err != nil {
		return 0, err
	}
	n, err := b.driver.Count(ctx, entity.Source(), query)
	if err != nil {
		return 0, classify(err, "count "+entity.Name)
	}
	return n, nil
}

func (b *Backend) DeleteWhere(ctx context.Context, tx session.Transaction, entity *schema.Entity, q filter.CompiledQuery) (int64, error) {
	ctx = within(ctx, tx)
	query, err := b.query(ctx, entity, q)
	if err != nil {
		return 0, err
	}
	n, err := b.driver.DeleteMany(ctx, entity.Source(), query)
	if err != nil {
		return 0, classify(err, "delete "+entity.Name)
	}
	return n, nil
}

// Insert assigns a ULID to rows without an id.
func (b *Backend) Insert(ctx context.Context, tx session.Transaction, entity *schema.Entity, values schema.Record) (schema.Record, error) {
	record := make(schema.Record, len(values)+1)
	for k, v := range values {
		record[k] = v
	}
	if record[entity.PK()] == nil {
		record[entity.PK()] = ulid.Make().String()
	}
	if err := b.driver.InsertOne(within(ctx, tx), entity.Source(), toDocument(entity, record)); err != nil {
		return nil, classify(err, "insert "+entity.Name)
	}
	return record, nil
}

func (b *Backend) Update(ctx context.Context, tx session.Transaction, entity *schema.Entity, id any, values schema.Record) (schema.Record, error) {
	set := toDocument(entity, values)
	doc, err := b.driver.UpdateOne(within(ctx, tx), entity.Source(), bson.D{{Key: idField, Value: id}}, set)
	if err != nil {
		return nil, classify(err, "update "+entity.Name)
	}
	return fromDocument(entity, doc), nil
}

func (b *Backend) ResyncSequence(context.Context, session.Transaction, *schema.Entity) error {
	return dalerr.NotImplemented("ResyncSequence", BackendName)
}

func (b *Backend) FetchByKeys(ctx context.Context, target *schema.Entity, column string, keys []any, limit int) ([]schema.Record, error) {
	query := bson.D{{Key: fieldName(target, column), Value: bson.D{{Key: "$in", Value: bson.A(keys)}}}}
	opts := FindOptions{Sort: bson.D{{Key: idField, Value: 1}}}
	if limit > 0 {
		opts.Limit = int64(limit)
	}
	docs, err := b.driver.Find(ctx, target.Source(), query, opts)
	if err != nil {
		return nil, classify(err, "fetch "+target.Name)
	}
	return records(target, docs), nil
}

// query renders join directives as semi-join conditions on the root
// collection, followed by the filter. Child joins resolve the parent ids
// with one distinct query each.
func (b *Backend) query(ctx context.Context, entity *schema.Entity, q filter.CompiledQuery) (bson.D, error) {
	var clauses bson.A
	for _, j := range q.Joins {
		clause, err := b.joinClause(ctx, entity, j)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}
	if q.Filter != nil {
		doc, err := mongospec.CompileDocument(q.Filter, mongospec.WithFieldMapper(FieldMapper(entity)))
		if err != nil {
			return nil, dalerr.Internal(errors.Wrap(err, "compile filter"), "find "+entity.Name)
		}
		clauses = append(clauses, doc)
	}
	switch len(clauses) {
	case 0:
		return bson.D{}, nil
	case 1:
		return clauses[0].(bson.D), nil
	}
	return bson.D{{Key: "$and", Value: clauses}}, nil
}

func (b *Backend) joinClause(ctx context.Context, entity *schema.Entity, j filter.JoinDirective) (bson.D, error) {
	membership := func(field string, values bson.A) bson.D {
		op := "$in"
		if j.Negated {
			op = "$nin"
		}
		return bson.D{{Key: field, Value: bson.D{{Key: op, Value: values}}}}
	}
	if j.Association.IsParent() {
		fk := fieldName(entity, j.Association.ForeignKeyColumn)
		if len(j.IDs) > 0 {
			return membership(fk, bson.A(j.IDs)), nil
		}
		if j.Negated {
			return bson.D{{Key: fk, Value: nil}}, nil
		}
		return bson.D{{Key: fk, Value: bson.D{{Key: "$ne", Value: nil}}}}, nil
	}
	target, found := b.registry.Lookup(j.TargetEntity)
	if !found {
		return nil, dalerr.New(dalerr.KindInternal, "unknown target entity %q of %s.%s", j.TargetEntity, entity.Name, j.AliasName)
	}
	children := bson.D{}
	if len(j.IDs) > 0 {
		children = bson.D{{Key: idField, Value: bson.D{{Key: "$in", Value: bson.A(j.IDs)}}}}
	}
	parents, err := b.driver.Distinct(ctx, target.Source(), fieldName(target, j.Association.ForeignKeyColumn), children)
	if err != nil {
		return nil, classify(err, "resolve "+entity.Name+"."+j.AliasName)
	}
	if parents == nil {
		parents = []any{}
	}
	return membership(idField, bson.A(parents)), nil
}

func within(ctx context.Context, tx session.Transaction) context.Context {
	if tx == nil {
		return ctx
	}
	return tx.Context()
}

// FieldMapper maps the primary key column of entity to _id.
func FieldMapper(entity *schema.Entity) func(string) string {
	return func(path string) string {
		return fieldName(entity, path)
	}
}

func fieldName(entity *schema.Entity, column string) string {
	if column == entity.PK() {
		return idField
	}
	return column
}

func sortDocument(entity *schema.Entity, order []schema.OrderSpec) bson.D {
	if len(order) == 0 {
		return nil
	}
	doc := make(bson.D, len(order))
	for i, o := range order {
		dir := 1
		if o.Direction == schema.Desc {
			dir = -1
		}
		doc[i] = bson.E{Key: fieldName(entity, o.Field), Value: dir}
	}
	return doc
}

func toDocument(entity *schema.Entity, values schema.Record) bson.D {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	doc := make(bson.D, 0, len(keys))
	for _, k := range keys {
		doc = append(doc, bson.E{Key: fieldName(entity, k), Value: values[k]})
	}
	return doc
}

func records(entity *schema.Entity, docs []bson.M) []schema.Record {
	result := make([]schema.Record, len(docs))
	for i, doc := range docs {
		result[i] = fromDocument(entity, doc)
	}
	return result
}

func fromDocument(entity *schema.Entity, doc bson.M) schema.Record {
	record := make(schema.Record, len(doc))
	for k, v := range doc {
		if k == idField {
			k = entity.PK()
		}
		record[k] = plain(v)
	}
	return record
}

// plain converts BSON-specific values into the types the rest of the
// package works with.
func plain(v any) any {
	switch typed := v.(type) {
	case primitive.DateTime:
		return typed.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(typed.T), 0).UTC()
	case primitive.A:
		list := make([]any, len(typed))
		for i, item := range typed {
			list[i] = plain(item)
		}
		return list
	case bson.M:
		record := make(schema.Record, len(typed))
		for k, item := range typed {
			record[k] = plain(item)
		}
		return record
	case bson.D:
		record := make(schema.Record, len(typed))
		for _, e := range typed {
			record[e.Key] = plain(e.Value)
		}
		return record
	}
	return v
}
