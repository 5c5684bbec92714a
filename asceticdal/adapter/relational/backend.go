// Package relational implements the adapter contract on PostgreSQL through
// the pgx session pool.
package relational

import (
	"context"

	"github.com/pkg/errors"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/adapter"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/dalerr"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/filter"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/schema"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/session"
)

const BackendName = "postgres"

// Backend runs every statement either on the borrowed transaction or, when
// none is given, on a connection taken from the pool for that statement.
type Backend struct {
	pool    session.DbSessionPool
	queries queryBuilder
}

func NewBackend(pool session.DbSessionPool, registry *schema.Registry) *Backend {
	return &Backend{pool: pool, queries: queryBuilder{registry: registry}}
}

func (b *Backend) Name() string {
	return BackendName
}

func (b *Backend) Begin(ctx context.Context) (session.Transaction, error) {
	return b.pool.Begin(ctx)
}

func (b *Backend) Select(
	ctx context.Context, tx session.Transaction, entity *schema.Entity, q filter.CompiledQuery, page adapter.Page, order []schema.OrderSpec,
) ([]schema.Record, error) {
	st, err := b.queries.Select(entity, q, page, order)
	if err != nil {
		return nil, dalerr.Internal(err, "build select")
	}
	return b.fetch(ctx, tx, st)
}

func (b *Backend) Count(ctx context.Context, tx session.Transaction, entity *schema.Entity, q filter.CompiledQuery) (int64, error) {
	st, err := b.queries.Count(entity, q)
	if err != nil {
		return 0, dalerr.Internal(err, "build count")
	}
	var count int64
	err = b.connection(ctx, tx, func(conn session.DbConnection) error {
		return conn.QueryRow(st.String(), st.params...).Scan(&count)
	})
	if err != nil {
		return 0, classify(err, "count "+entity.Name)
	}
	return count, nil
}

func (b *Backend) DeleteWhere(ctx context.Context, tx session.Transaction, entity *schema.Entity, q filter.CompiledQuery) (int64, error) {
	st, err := b.queries.Delete(entity, q)
	if err != nil {
		return 0, dalerr.Internal(err, "build delete")
	}
	var affected int64
	err = b.connection(ctx, tx, func(conn session.DbConnection) error {
		result, err := conn.Exec(st.String(), st.params...)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, classify(err, "delete "+entity.Name)
	}
	return affected, nil
}

func (b *Backend) Insert(ctx context.Context, tx session.Transaction, entity *schema.Entity, values schema.Record) (schema.Record, error) {
	rows, err := b.fetch(ctx, tx, b.queries.Insert(entity, values))
	if err != nil {
		return nil, errors.WithMessagef(err, "insert %s", entity.Name)
	}
	if len(rows) == 0 {
		return nil, dalerr.New(dalerr.KindInternal, "insert %s returned no row", entity.Name)
	}
	return rows[0], nil
}

func (b *Backend) Update(ctx context.Context, tx session.Transaction, entity *schema.Entity, id any, values schema.Record) (schema.Record, error) {
	rows, err := b.fetch(ctx, tx, b.queries.Update(entity, id, values))
	if err != nil {
		return nil, errors.WithMessagef(err, "update %s", entity.Name)
	}
	if len(rows) == 0 {
		return nil, dalerr.NotFound("%s %v", entity.Name, id)
	}
	return rows[0], nil
}

func (b *Backend) ResyncSequence(ctx context.Context, tx session.Transaction, entity *schema.Entity) error {
	st := b.queries.ResyncSequence(entity)
	err := b.connection(ctx, tx, func(conn session.DbConnection) error {
		_, err := conn.Exec(st.String(), st.params...)
		return err
	})
	if err != nil {
		return classify(err, "resync sequence of "+entity.Name)
	}
	return nil
}

func (b *Backend) FetchByKeys(ctx context.Context, target *schema.Entity, column string, keys []any, limit int) ([]schema.Record, error) {
	return b.fetch(ctx, nil, b.queries.FetchByKeys(target, column, keys, limit))
}

func (b *Backend) fetch(ctx context.Context, tx session.Transaction, st *statement) ([]schema.Record, error) {
	var records []schema.Record
	err := b.connection(ctx, tx, func(conn session.DbConnection) error {
		rows, err := conn.Query(st.String(), st.params...)
		if err != nil {
			return err
		}
		records, err = scanRecords(rows)
		return err
	})
	if err != nil {
		return nil, classify(err, "query")
	}
	return records, nil
}

func (b *Backend) connection(ctx context.Context, tx session.Transaction, fn func(session.DbConnection) error) error {
	if tx != nil {
		s, ok := tx.(session.DbSession)
		if !ok {
			return dalerr.New(dalerr.KindInternal, "transaction %s does not belong to the %s backend", tx.ID(), BackendName)
		}
		return fn(s.Connection())
	}
	return b.pool.Session(ctx, func(s session.Session) error {
		dbs, ok := s.(session.DbSession)
		if !ok {
			return dalerr.New(dalerr.KindInternal, "session %T has no connection", s)
		}
		return fn(dbs.Connection())
	})
}

func scanRecords(rows session.Rows) (records []schema.Record, err error) {
	defer func() {
		if closeErr := rows.Close(); err == nil {
			err = closeErr
		}
	}()
	columns := rows.Columns()
	records = []schema.Record{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		record := make(schema.Record, len(columns))
		for i, col := range columns {
			record[col] = values[i]
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
