package document

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/session"
)

type FindOptions struct {
	Sort  bson.D
	Skip  int64
	Limit int64
}

// Driver is the subset of collection operations the backend needs. Inside a
// transaction ctx is the context returned by Transaction.Context.
type Driver interface {
	session.Observable
	Find(ctx context.Context, collection string, filter bson.D, opts FindOptions) ([]bson.M, error)
	Count(ctx context.Context, collection string, filter bson.D) (int64, error)
	Distinct(ctx context.Context, collection, field string, filter bson.D) ([]any, error)
	InsertOne(ctx context.Context, collection string, doc bson.D) error
	// UpdateOne sets fields of the first matching document and returns it
	// as updated, or mongo.ErrNoDocuments.
	UpdateOne(ctx context.Context, collection string, filter, set bson.D) (bson.M, error)
	DeleteMany(ctx context.Context, collection string, filter bson.D) (int64, error)
	Begin(ctx context.Context) (session.Transaction, error)
}

// MongoDriver executes operations on one database and reports each of them
// through the session signals, like the relational connections do.
type MongoDriver struct {
	*session.Signals
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoDriver(client *mongo.Client, database string) *MongoDriver {
	return &MongoDriver{Signals: session.NewSignals(), client: client, db: client.Database(database)}
}

func (d *MongoDriver) observe(operation, collection string, params ...any) func(error) {
	return d.Signals.Observe(nil, d, operation+" "+collection, params)
}

func (d *MongoDriver) Find(ctx context.Context, collection string, filter bson.D, o FindOptions) (docs []bson.M, err error) {
	end := d.observe("find", collection, filter, o.Sort, o.Skip, o.Limit)
	defer func() { end(err) }()

	opts := options.Find()
	if len(o.Sort) > 0 {
		opts.SetSort(o.Sort)
	}
	if o.Skip > 0 {
		opts.SetSkip(o.Skip)
	}
	if o.Limit > 0 {
		opts.SetLimit(o.Limit)
	}
	cursor, err := d.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	docs = []bson.M{}
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (d *MongoDriver) Count(ctx context.Context, collection string, filter bson.D) (n int64, err error) {
	end := d.observe("count", collection, filter)
	defer func() { end(err) }()
	return d.db.Collection(collection).CountDocuments(ctx, filter)
}

func (d *MongoDriver) Distinct(ctx context.Context, collection, field string, filter bson.D) (values []any, err error) {
	end := d.observe("distinct", collection, field, filter)
	defer func() { end(err) }()
	return d.db.Collection(collection).Distinct(ctx, field, filter)
}

func (d *MongoDriver) InsertOne(ctx context.Context, collection string, doc bson.D) (err error) {
	end := d.observe("insert", collection, doc)
	defer func() { end(err) }()
	_, err = d.db.Collection(collection).InsertOne(ctx, doc)
	return err
}

func (d *MongoDriver) UpdateOne(ctx context.Context, collection string, filter, set bson.D) (doc bson.M, err error) {
	end := d.observe("update", collection, filter, set)
	defer func() { end(err) }()
	coll := d.db.Collection(collection)
	if len(set) == 0 {
		err = coll.FindOne(ctx, filter).Decode(&doc)
		return doc, err
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err = coll.FindOneAndUpdate(ctx, filter, bson.D{{Key: "$set", Value: set}}, opts).Decode(&doc)
	return doc, err
}

func (d *MongoDriver) DeleteMany(ctx context.Context, collection string, filter bson.D) (n int64, err error) {
	end := d.observe("delete", collection, filter)
	defer func() { end(err) }()
	result, err := d.db.Collection(collection).DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

// Begin starts a multi-document transaction on a new client session. It
// requires a replica set or a sharded cluster.
func (d *MongoDriver) Begin(ctx context.Context) (session.Transaction, error) {
	sess, err := d.client.StartSession()
	if err != nil {
		return nil, errors.Wrap(err, "unable to start session")
	}
	if err := sess.StartTransaction(); err != nil {
		sess.EndSession(ctx)
		return nil, errors.Wrap(err, "unable to start transaction")
	}
	return &transaction{
		id:      uuid.NewString(),
		ctx:     mongo.NewSessionContext(ctx, sess),
		sess:    sess,
		signals: d.Signals,
	}, nil
}

type transaction struct {
	id      string
	ctx     mongo.SessionContext
	sess    mongo.Session
	signals *session.Signals
	closed  bool
}

func (t *transaction) ID() string {
	return t.id
}

func (t *transaction) Context() context.Context {
	return t.ctx
}

func (t *transaction) Commit() error {
	if t.closed {
		return errors.Errorf("transaction %s is already closed", t.id)
	}
	t.closed = true
	defer t.sess.EndSession(t.ctx)
	err := t.sess.CommitTransaction(t.ctx)
	outcome := session.Committed
	if err != nil {
		outcome = session.Failed
	}
	t.signals.OnTransactionEnded().Notify(session.TransactionEndedEvent{ID: t.id, Outcome: outcome, Err: err})
	return err
}

// Rollback after Commit is a no-op.
func (t *transaction) Rollback() error {
	if t.closed {
		return nil
	}
	t.closed = true
	defer t.sess.EndSession(t.ctx)
	err := t.sess.AbortTransaction(t.ctx)
	outcome := session.RolledBack
	if err != nil {
		outcome = session.Failed
	}
	t.signals.OnTransactionEnded().Notify(session.TransactionEndedEvent{ID: t.id, Outcome: outcome, Err: err})
	return err
}
