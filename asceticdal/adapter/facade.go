package adapter

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/alias"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/dalerr"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/eager"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/filter"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/schema"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/session"
	s "github.com/krew-solutions/ascetic-dal-go/asceticdal/specification/domain"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/write"
)

type Options struct {
	Logger      zerolog.Logger
	Compiler    *filter.Compiler
	Singularize alias.Singularizer
	// AssociationLimit replaces a per-association limit below one. Zero
	// leaves such loads unlimited.
	AssociationLimit int
}

type Option func(*Options)

func WithLogger(logger zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

func WithCompiler(compiler *filter.Compiler) Option {
	return func(o *Options) {
		o.Compiler = compiler
	}
}

func WithSingularizer(singularize alias.Singularizer) Option {
	return func(o *Options) {
		o.Singularize = singularize
	}
}

func WithDefaultAssociationLimit(limit int) Option {
	return func(o *Options) {
		o.AssociationLimit = limit
	}
}

func NewOptions(opts ...Option) Options {
	o := Options{Logger: zerolog.Nop(), Singularize: alias.Singularize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Compiler == nil {
		o.Compiler = filter.NewCompiler(filter.WithLogger(o.Logger), filter.WithSingularizer(o.Singularize))
	}
	return o
}

// Facade implements every Adapter operation on top of a Backend except
// ResyncSequence, which the concrete adapters define.
type Facade struct {
	entity   *schema.Entity
	registry *schema.Registry
	backend  Backend
	writer   *write.Coordinator
	loader   *eager.Batcher
	compiler *filter.Compiler
	logger   zerolog.Logger
	limit    int
}

func NewFacade(registry *schema.Registry, entityName string, backend Backend, opts ...Option) (*Facade, error) {
	entity, found := registry.Entity(entityName)
	if !found {
		return nil, dalerr.Validation(filter.CodeUnknownEntity, "unknown entity %q", entityName)
	}
	o := NewOptions(opts...)
	logger := o.Logger.With().Str("entity", entity.Name).Str("backend", backend.Name()).Logger()
	return &Facade{
		entity:   entity,
		registry: registry,
		backend:  backend,
		writer:   write.NewCoordinator(registry, backend, backend, write.WithLogger(logger), write.WithSingularizer(o.Singularize)),
		loader:   eager.NewBatcher(registry, backend),
		compiler: o.Compiler,
		logger:   logger,
		limit:    o.AssociationLimit,
	}, nil
}

func (f *Facade) Entity() *schema.Entity {
	return f.entity
}

func (f *Facade) Backend() string {
	return f.backend.Name()
}

func (f *Facade) Create(ctx context.Context, payload schema.Record) (schema.Record, error) {
	return f.writer.Create(ctx, nil, f.entity, payload)
}

func (f *Facade) CreateWithTransaction(ctx context.Context, tx session.Transaction, payload schema.Record) (schema.Record, error) {
	return f.writer.Create(ctx, tx, f.entity, payload)
}

func (f *Facade) Update(ctx context.Context, id any, payload schema.Record) (schema.Record, error) {
	return f.writer.Update(ctx, nil, f.entity, id, payload)
}

func (f *Facade) UpdateWithTransaction(ctx context.Context, tx session.Transaction, id any, payload schema.Record) (schema.Record, error) {
	return f.writer.Update(ctx, tx, f.entity, id, payload)
}

func (f *Facade) Delete(ctx context.Context, id any) error {
	return f.DeleteWithTransaction(ctx, nil, id)
}

func (f *Facade) DeleteWithTransaction(ctx context.Context, tx session.Transaction, id any) error {
	n, err := f.backend.DeleteWhere(ctx, tx, f.entity, f.byID(id))
	if err != nil {
		return err
	}
	if n == 0 {
		return dalerr.NotFound("%s %v", f.entity.Name, id)
	}
	return nil
}

func (f *Facade) DeleteMany(ctx context.Context, query filter.CompiledQuery) (int64, error) {
	return f.DeleteManyWithTransaction(ctx, nil, query)
}

// DeleteManyWithTransaction refuses an empty query; DeleteAll is explicit.
func (f *Facade) DeleteManyWithTransaction(ctx context.Context, tx session.Transaction, query filter.CompiledQuery) (int64, error) {
	if query.IsEmpty() {
		return 0, dalerr.EmptyFilter()
	}
	return f.backend.DeleteWhere(ctx, tx, f.entity, query)
}

func (f *Facade) DeleteAll(ctx context.Context) (int64, error) {
	return f.DeleteAllWithTransaction(ctx, nil)
}

func (f *Facade) DeleteAllWithTransaction(ctx context.Context, tx session.Transaction) (int64, error) {
	return f.backend.DeleteWhere(ctx, tx, f.entity, filter.CompiledQuery{})
}

func (f *Facade) FindAll(ctx context.Context, page Page, order []schema.OrderSpec) ([]schema.Record, error) {
	return f.FindAllWithTransaction(ctx, nil, page, order)
}

func (f *Facade) FindAllWithTransaction(ctx context.Context, tx session.Transaction, page Page, order []schema.OrderSpec) ([]schema.Record, error) {
	return f.find(ctx, tx, filter.CompiledQuery{}, page, order)
}

func (f *Facade) FindAllWithEagerLoading(ctx context.Context, page Page, perAssociationLimit int, order []schema.OrderSpec) ([]schema.Record, error) {
	return f.FindManyWithEagerLoading(ctx, filter.CompiledQuery{}, page, perAssociationLimit, order)
}

func (f *Facade) FindOne(ctx context.Context, query filter.CompiledQuery, order []schema.OrderSpec) (schema.Record, error) {
	return f.FindOneWithTransaction(ctx, nil, query, order)
}

func (f *Facade) FindOneWithTransaction(
	ctx context.Context, tx session.Transaction, query filter.CompiledQuery, order []schema.OrderSpec,
) (schema.Record, error) {
	rows, err := f.find(ctx, tx, query, Page{Size: 1}, order)
	return f.first(rows, err)
}

func (f *Facade) FindOneWithEagerLoading(ctx context.Context, query filter.CompiledQuery, perAssociationLimit int, order []schema.OrderSpec) (schema.Record, error) {
	rows, err := f.FindManyWithEagerLoading(ctx, query, Page{Size: 1}, perAssociationLimit, order)
	return f.first(rows, err)
}

func (f *Facade) FindMany(ctx context.Context, query filter.CompiledQuery, page Page, order []schema.OrderSpec) ([]schema.Record, error) {
	return f.find(ctx, nil, query, page, order)
}

func (f *Facade) FindManyWithTransaction(
	ctx context.Context, tx session.Transaction, query filter.CompiledQuery, page Page, order []schema.OrderSpec,
) ([]schema.Record, error) {
	return f.find(ctx, tx, query, page, order)
}

func (f *Facade) FindManyWithEagerLoading(
	ctx context.Context, query filter.CompiledQuery, page Page, perAssociationLimit int, order []schema.OrderSpec,
) ([]schema.Record, error) {
	rows, err := f.find(ctx, nil, query, page, order)
	if err != nil {
		return nil, err
	}
	return f.loader.Load(ctx, f.entity, rows, f.associationLimit(perAssociationLimit))
}

func (f *Facade) FindById(ctx context.Context, id any) (schema.Record, error) {
	return f.FindByIdWithTransaction(ctx, nil, id)
}

func (f *Facade) FindByIdWithTransaction(ctx context.Context, tx session.Transaction, id any) (schema.Record, error) {
	rows, err := f.find(ctx, tx, f.byID(id), Page{Size: 1}, nil)
	return f.first(rows, err)
}

func (f *Facade) FindByIdWithEagerLoading(ctx context.Context, id any, perAssociationLimit int) (schema.Record, error) {
	rows, err := f.find(ctx, nil, f.byID(id), Page{Size: 1}, nil)
	if err == nil {
		rows, err = f.loader.Load(ctx, f.entity, rows, f.associationLimit(perAssociationLimit))
	}
	return f.first(rows, err)
}

func (f *Facade) GetCount(ctx context.Context, query filter.CompiledQuery) (int64, error) {
	return f.GetCountWithTransaction(ctx, nil, query)
}

func (f *Facade) GetCountWithTransaction(ctx context.Context, tx session.Transaction, query filter.CompiledQuery) (int64, error) {
	return f.backend.Count(ctx, tx, f.entity, query)
}

func (f *Facade) BuildCustomQuery(predicates []filter.Predicate, connectors []filter.Connector, targetEntity string) (filter.CompiledQuery, error) {
	return f.compiler.BuildCustomQuery(predicates, connectors, f.registry, targetEntity)
}

func (f *Facade) StartTransaction(ctx context.Context) (session.Transaction, error) {
	tx, err := f.backend.Begin(ctx)
	if err != nil {
		return nil, dalerr.Internal(err, "begin transaction")
	}
	return tx, nil
}

func (f *Facade) CommitTransaction(tx session.Transaction) error {
	if err := tx.Commit(); err != nil {
		return dalerr.Internal(err, "commit transaction")
	}
	return nil
}

func (f *Facade) RollbackTransaction(tx session.Transaction) error {
	if err := tx.Rollback(); err != nil {
		return dalerr.Internal(err, "rollback transaction")
	}
	return nil
}

func (f *Facade) find(
	ctx context.Context, tx session.Transaction, query filter.CompiledQuery, page Page, order []schema.OrderSpec,
) ([]schema.Record, error) {
	rows, err := f.backend.Select(ctx, tx, f.entity, query, page, f.entity.SanitizeOrder(order))
	if err != nil {
		return nil, err
	}
	return alias.RehydrateAll(f.entity, rows), nil
}

// DefaultAssociationLimit is the limit eager loads use when the caller
// passes none.
func (f *Facade) DefaultAssociationLimit() int {
	return f.limit
}

func (f *Facade) associationLimit(limit int) int {
	if limit < 1 {
		return f.limit
	}
	return limit
}

func (f *Facade) first(rows []schema.Record, err error) (schema.Record, error) {
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, dalerr.NotFound("no %s matched", f.entity.Name)
	}
	return rows[0], nil
}

func (f *Facade) byID(id any) filter.CompiledQuery {
	return filter.CompiledQuery{Filter: s.Equal(s.Field(s.GlobalScope(), f.entity.PK()), s.Value(id))}
}

// WriteCoordinator exposes the coordinator so backends can reuse it for
// entities other than the facade's own.
func (f *Facade) WriteCoordinator() *write.Coordinator {
	return f.writer
}
