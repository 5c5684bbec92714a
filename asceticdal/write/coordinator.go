// Package write persists a root record together with its nested parents and
// children inside one transaction.
package write

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/alias"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/dalerr"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/schema"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/session"
)

// Store writes single rows of one backend.
type Store interface {
	Insert(ctx context.Context, tx session.Transaction, entity *schema.Entity, values schema.Record) (schema.Record, error)
	// Update returns the updated row, or NOT_FOUND.
	Update(ctx context.Context, tx session.Transaction, entity *schema.Entity, id any, values schema.Record) (schema.Record, error)
	// ResyncSequence runs on tx, or on its own when tx is nil.
	ResyncSequence(ctx context.Context, tx session.Transaction, entity *schema.Entity) error
}

type TxManager interface {
	Begin(ctx context.Context) (session.Transaction, error)
}

type Option func(*Coordinator)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func WithSingularizer(singularize alias.Singularizer) Option {
	return func(c *Coordinator) {
		c.singularize = singularize
	}
}

// Coordinator holds no per-call state and no locks; isolation between
// concurrent writers is left to the backend transaction.
type Coordinator struct {
	registry    *schema.Registry
	store       Store
	txm         TxManager
	logger      zerolog.Logger
	singularize alias.Singularizer
}

func NewCoordinator(registry *schema.Registry, store Store, txm TxManager, opts ...Option) *Coordinator {
	c := &Coordinator{
		registry:    registry,
		store:       store,
		txm:         txm,
		logger:      zerolog.Nop(),
		singularize: alias.Singularize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// plan collects what has to happen once the rows are written.
type plan struct {
	resync []*schema.Entity
}

func (p *plan) scheduleResync(entity *schema.Entity) {
	for _, e := range p.resync {
		if e == entity {
			return
		}
	}
	p.resync = append(p.resync, entity)
}

// Create inserts payload as a new root row. tx may be nil, in which case the
// coordinator owns the transaction. If the resync that follows a committed
// explicit-id insert fails, the committed record is returned with the error.
func (c *Coordinator) Create(ctx context.Context, tx session.Transaction, entity *schema.Entity, payload schema.Record) (schema.Record, error) {
	return c.run(ctx, tx, func(tx session.Transaction, p *plan) (schema.Record, error) {
		return c.persist(ctx, tx, entity, nil, payload, p)
	})
}

// Update writes payload over the row identified by id.
func (c *Coordinator) Update(ctx context.Context, tx session.Transaction, entity *schema.Entity, id any, payload schema.Record) (schema.Record, error) {
	if id == nil {
		return nil, dalerr.Validation("MISSING_ID", "update of %s requires an id", entity.Name)
	}
	return c.run(ctx, tx, func(tx session.Transaction, p *plan) (schema.Record, error) {
		return c.persist(ctx, tx, entity, id, payload, p)
	})
}

func (c *Coordinator) run(
	ctx context.Context, tx session.Transaction, write func(session.Transaction, *plan) (schema.Record, error),
) (schema.Record, error) {
	owned := tx == nil
	if owned {
		var err error
		tx, err = c.txm.Begin(ctx)
		if err != nil {
			return nil, dalerr.Internal(err, "begin transaction")
		}
	}
	p := &plan{}
	record, err := write(tx, p)
	if err != nil {
		if owned {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = multierror.Append(err, rbErr)
			}
			c.logger.Warn().Str("tx", tx.ID()).Err(err).Msg("write rolled back")
		}
		return nil, err
	}
	if !owned {
		return record, c.resync(ctx, tx, p)
	}
	if err := tx.Commit(); err != nil {
		return nil, dalerr.Internal(err, "commit transaction")
	}
	return record, c.resync(ctx, nil, p)
}

func (c *Coordinator) resync(ctx context.Context, tx session.Transaction, p *plan) error {
	var result error
	for _, entity := range p.resync {
		err := c.store.ResyncSequence(ctx, tx, entity)
		if err == nil || dalerr.Is(err, dalerr.KindNotImplemented) {
			continue
		}
		c.logger.Warn().Str("entity", entity.Name).Err(err).Msg("sequence resync failed")
		result = multierror.Append(result, err)
	}
	return result
}

// persist runs RESOLVE_PARENTS, PERSIST_ROOT and PERSIST_CHILDREN for one
// row. A nil id inserts.
func (c *Coordinator) persist(
	ctx context.Context, tx session.Transaction, entity *schema.Entity, id any, payload schema.Record, p *plan,
) (schema.Record, error) {
	values, parents, children := c.split(entity, payload)

	resolved := schema.Record{}
	for _, assoc := range parents {
		target, err := c.target(entity, assoc.AssociationDescriptor)
		if err != nil {
			return nil, err
		}
		parent, err := c.save(ctx, tx, target, parentPayload(payload, assoc), p)
		if err != nil {
			return nil, errors.WithMessagef(err, "persist %s.%s", entity.Name, assoc.AliasName)
		}
		values[assoc.ForeignKeyColumn] = parent[target.PK()]
		resolved[assoc.AliasName] = parent
	}

	var (
		record schema.Record
		err    error
	)
	if id != nil {
		delete(values, entity.PK())
		record, err = c.store.Update(ctx, tx, entity, id, values)
	} else {
		if values[entity.PK()] != nil {
			p.scheduleResync(entity)
		}
		record, err = c.store.Insert(ctx, tx, entity, values)
	}
	if err != nil {
		return nil, err
	}
	for k, v := range resolved {
		record[k] = v
	}

	rootID := record[entity.PK()]
	for _, assoc := range children {
		target, err := c.target(entity, assoc.AssociationDescriptor)
		if err != nil {
			return nil, err
		}
		items, single := childPayloads(payload, assoc)
		saved := make([]schema.Record, 0, len(items))
		for _, item := range items {
			item[assoc.ForeignKeyColumn] = rootID
			child, err := c.save(ctx, tx, target, item, p)
			if err != nil {
				return nil, errors.WithMessagef(err, "persist %s.%s", entity.Name, assoc.AliasName)
			}
			saved = append(saved, child)
		}
		if single {
			record[assoc.AliasName] = saved[0]
		} else {
			record[assoc.AliasName] = saved
		}
	}
	return record, nil
}

// save updates a nested row that carries its id and creates it otherwise.
func (c *Coordinator) save(ctx context.Context, tx session.Transaction, entity *schema.Entity, payload schema.Record, p *plan) (schema.Record, error) {
	if id := payload[entity.PK()]; id != nil {
		return c.persist(ctx, tx, entity, id, payload, p)
	}
	return c.persist(ctx, tx, entity, nil, payload, p)
}

func (c *Coordinator) target(entity *schema.Entity, assoc schema.AssociationDescriptor) (*schema.Entity, error) {
	target, found := c.registry.Entity(assoc.TargetEntity)
	if !found {
		return nil, dalerr.New(dalerr.KindInternal, "unknown target entity %q of %s.%s", assoc.TargetEntity, entity.Name, assoc.AliasName)
	}
	return target, nil
}

// split separates column values from nested association payloads. Nested
// associations are returned in declaration order together with the payload
// key they were found under.
func (c *Coordinator) split(entity *schema.Entity, payload schema.Record) (values schema.Record, parents, children []keyedAssociation) {
	values = schema.Record{}
	for key, v := range payload {
		if assoc, ok := c.association(entity, key); ok && isNested(v) {
			ka := keyedAssociation{AssociationDescriptor: assoc, key: key}
			if assoc.IsParent() {
				parents = append(parents, ka)
			} else {
				children = append(children, ka)
			}
			continue
		}
		if entity.HasColumn(key) {
			values[key] = v
			continue
		}
		c.logger.Debug().Str("entity", entity.Name).Str("key", key).Msg("payload key ignored")
	}
	sortByDeclaration(entity, parents)
	sortByDeclaration(entity, children)
	return values, parents, children
}

func (c *Coordinator) association(entity *schema.Entity, key string) (schema.AssociationDescriptor, bool) {
	if assoc, ok := entity.Association(key); ok {
		return assoc, true
	}
	if _, ok := alias.Decode(key); ok {
		return alias.Resolve(entity, key, c.singularize)
	}
	return schema.AssociationDescriptor{}, false
}
