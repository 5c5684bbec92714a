// Package dal builds adapters for the backend named in the configuration.
// The choice is made once, when the DB is connected.
package dal

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/adapter"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/adapter/document"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/adapter/relational"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/alias"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/config"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/instrumentation"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/schema"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/session"
	pgxsession "github.com/krew-solutions/ascetic-dal-go/asceticdal/session/pgx"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/signals"
)

type settings struct {
	logger      zerolog.Logger
	registerer  prometheus.Registerer
	singularize alias.Singularizer
}

type Option func(*settings)

func WithLogger(logger zerolog.Logger) Option {
	return func(o *settings) {
		o.logger = logger
	}
}

// WithRegisterer registers the query metrics on reg. Without it no metrics
// are collected.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *settings) {
		o.registerer = reg
	}
}

func WithSingularizer(singularize alias.Singularizer) Option {
	return func(o *settings) {
		o.singularize = singularize
	}
}

type DB struct {
	cfg      config.Config
	registry *schema.Registry
	opts     settings
	pgPool   *pgxsession.SessionPool
	mongo    *mongo.Client
	driver   *document.MongoDriver
	detach   signals.Disposable
}

// Connect prepares the connection pool of the configured backend. Both
// drivers connect lazily, so an unreachable server surfaces on first use.
func Connect(ctx context.Context, cfg config.Config, registry *schema.Registry, opts ...Option) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := settings{logger: zerolog.Nop(), singularize: alias.Singularize}
	for _, opt := range opts {
		opt(&o)
	}
	db := &DB{cfg: cfg, registry: registry, opts: o}

	var source session.Observable
	switch cfg.Backend {
	case config.Postgres:
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, errors.Wrap(err, "create postgres pool")
		}
		db.pgPool = pgxsession.NewSessionPool(pool)
		source = db.pgPool
	case config.MongoDB:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoDB.URI))
		if err != nil {
			return nil, errors.Wrap(err, "create mongodb client")
		}
		db.mongo = client
		db.driver = document.NewMongoDriver(client, cfg.MongoDB.Database)
		source = db.driver
	}

	var metrics *instrumentation.Metrics
	if o.registerer != nil {
		var err error
		if metrics, err = instrumentation.NewMetrics(o.registerer); err != nil {
			_ = db.Close(ctx)
			return nil, errors.Wrap(err, "register metrics")
		}
	}
	logger := o.logger.With().Str("backend", string(cfg.Backend)).Logger()
	db.detach = instrumentation.Attach(source, string(cfg.Backend), instrumentation.NewQueryLogger(logger), metrics)
	return db, nil
}

func (db *DB) Backend() config.Backend {
	return db.cfg.Backend
}

func (db *DB) Config() config.Config {
	return db.cfg
}

// Adapter returns the data-access contract of one registered entity.
func (db *DB) Adapter(entityName string) (adapter.Adapter, error) {
	opts := []adapter.Option{
		adapter.WithLogger(db.opts.logger),
		adapter.WithSingularizer(db.opts.singularize),
		adapter.WithDefaultAssociationLimit(db.cfg.Eager.PerAssociationLimit),
	}
	if db.pgPool != nil {
		return relational.New(db.pgPool, db.registry, entityName, opts...)
	}
	return document.New(db.driver, db.registry, entityName, opts...)
}

func (db *DB) Close(ctx context.Context) error {
	if db.detach != nil {
		db.detach.Dispose()
	}
	if db.pgPool != nil {
		db.pgPool.Close()
	}
	if db.mongo != nil {
		return db.mongo.Disconnect(ctx)
	}
	return nil
}

// Open connects and returns the adapter of entityName together with the DB
// that owns its connections.
func Open(ctx context.Context, cfg config.Config, registry *schema.Registry, entityName string, opts ...Option) (adapter.Adapter, *DB, error) {
	db, err := Connect(ctx, cfg, registry, opts...)
	if err != nil {
		return nil, nil, err
	}
	a, err := db.Adapter(entityName)
	if err != nil {
		_ = db.Close(ctx)
		return nil, nil, err
	}
	return a, db, nil
}
