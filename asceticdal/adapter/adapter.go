// Package adapter defines the uniform data-access contract and the facade
// both storage backends share.
package adapter

import (
	"context"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/eager"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/filter"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/schema"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/session"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/write"
)

// Page selects a window of rows. A Size below one means no limit.
type Page struct {
	Size   int
	Offset int
}

// Adapter is the data-access contract of one entity. A perAssociationLimit
// below one falls back to the adapter's default limit. Implementations hold no
// per-request state and may be shared between goroutines. Every method
// taking a session.Transaction borrows it: only the caller that started a
// transaction commits or rolls it back.
type Adapter interface {
	Entity() *schema.Entity
	Backend() string

	Create(ctx context.Context, payload schema.Record) (schema.Record, error)
	CreateWithTransaction(ctx context.Context, tx session.Transaction, payload schema.Record) (schema.Record, error)
	Update(ctx context.Context, id any, payload schema.Record) (schema.Record, error)
	UpdateWithTransaction(ctx context.Context, tx session.Transaction, id any, payload schema.Record) (schema.Record, error)
	Delete(ctx context.Context, id any) error
	DeleteWithTransaction(ctx context.Context, tx session.Transaction, id any) error
	DeleteMany(ctx context.Context, query filter.CompiledQuery) (int64, error)
	DeleteManyWithTransaction(ctx context.Context, tx session.Transaction, query filter.CompiledQuery) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
	DeleteAllWithTransaction(ctx context.Context, tx session.Transaction) (int64, error)

	FindAll(ctx context.Context, page Page, order []schema.OrderSpec) ([]schema.Record, error)
	FindAllWithTransaction(ctx context.Context, tx session.Transaction, page Page, order []schema.OrderSpec) ([]schema.Record, error)
	FindAllWithEagerLoading(ctx context.Context, page Page, perAssociationLimit int, order []schema.OrderSpec) ([]schema.Record, error)
	FindOne(ctx context.Context, query filter.CompiledQuery, order []schema.OrderSpec) (schema.Record, error)
	FindOneWithTransaction(ctx context.Context, tx session.Transaction, query filter.CompiledQuery, order []schema.OrderSpec) (schema.Record, error)
	FindOneWithEagerLoading(ctx context.Context, query filter.CompiledQuery, perAssociationLimit int, order []schema.OrderSpec) (schema.Record, error)
	FindMany(ctx context.Context, query filter.CompiledQuery, page Page, order []schema.OrderSpec) ([]schema.Record, error)
	FindManyWithTransaction(ctx context.Context, tx session.Transaction, query filter.CompiledQuery, page Page, order []schema.OrderSpec) ([]schema.Record, error)
	FindManyWithEagerLoading(ctx context.Context, query filter.CompiledQuery, page Page, perAssociationLimit int, order []schema.OrderSpec) ([]schema.Record, error)
	FindById(ctx context.Context, id any) (schema.Record, error)
	FindByIdWithTransaction(ctx context.Context, tx session.Transaction, id any) (schema.Record, error)
	FindByIdWithEagerLoading(ctx context.Context, id any, perAssociationLimit int) (schema.Record, error)
	GetCount(ctx context.Context, query filter.CompiledQuery) (int64, error)
	GetCountWithTransaction(ctx context.Context, tx session.Transaction, query filter.CompiledQuery) (int64, error)

	BuildCustomQuery(predicates []filter.Predicate, connectors []filter.Connector, targetEntity string) (filter.CompiledQuery, error)

	StartTransaction(ctx context.Context) (session.Transaction, error)
	CommitTransaction(tx session.Transaction) error
	RollbackTransaction(tx session.Transaction) error
	ResyncSequence(ctx context.Context) error
}

// Backend is what a storage engine supplies to the Facade. tx may be nil
// everywhere, in which case the statement runs on its own.
type Backend interface {
	write.Store
	write.TxManager
	eager.KeyFetcher

	Name() string
	Select(ctx context.Context, tx session.Transaction, entity *schema.Entity, query filter.CompiledQuery, page Page, order []schema.OrderSpec) ([]schema.Record, error)
	Count(ctx context.Context, tx session.Transaction, entity *schema.Entity, query filter.CompiledQuery) (int64, error)
	// DeleteWhere deletes the matching rows, all of them for an empty query.
	DeleteWhere(ctx context.Context, tx session.Transaction, entity *schema.Entity, query filter.CompiledQuery) (int64, error)
}
