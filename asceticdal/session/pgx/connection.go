package pgx

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/session"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/session/result"
)

// executor interface for both *pgxpool.Conn and pgx.Tx
type executor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
}

// connection implements session.DbConnection and reports every statement
// to the pool signals.
type connection struct {
	ctx     context.Context
	exec    executor
	session session.Session
	signals *session.Signals
}

func (c *connection) Exec(query string, args ...any) (session.Result, error) {
	end := c.signals.Observe(c.session, c, query, args)
	tag, err := c.exec.Exec(c.ctx, query, args...)
	end(err)
	if err != nil {
		return nil, err
	}
	return result.NewResult(0, tag.RowsAffected()), nil
}

func (c *connection) Query(query string, args ...any) (session.Rows, error) {
	end := c.signals.Observe(c.session, c, query, args)
	rows, err := c.exec.Query(c.ctx, query, args...)
	if err != nil {
		end(err)
		return nil, err
	}
	return &rowsAdapter{rows: rows, end: end}, nil
}

func (c *connection) QueryRow(query string, args ...any) session.Row {
	end := c.signals.Observe(c.session, c, query, args)
	return &rowAdapter{row: c.exec.QueryRow(c.ctx, query, args...), end: end}
}

// rowsAdapter reports the end of the query when the rows are closed.
type rowsAdapter struct {
	rows pgx.Rows
	end  func(error)
}

func (r *rowsAdapter) Close() error {
	r.rows.Close()
	if r.end != nil {
		r.end(r.rows.Err())
		r.end = nil
	}
	return r.rows.Err()
}

func (r *rowsAdapter) Err() error {
	return r.rows.Err()
}

func (r *rowsAdapter) Next() bool {
	return r.rows.Next()
}

func (r *rowsAdapter) Scan(dest ...any) error {
	return r.rows.Scan(dest...)
}

func (r *rowsAdapter) Columns() []string {
	fields := r.rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}
	return columns
}

func (r *rowsAdapter) Values() ([]any, error) {
	return r.rows.Values()
}

type rowAdapter struct {
	row pgx.Row
	end func(error)
	err error
}

func (r *rowAdapter) Err() error {
	return r.err
}

func (r *rowAdapter) Scan(dest ...any) error {
	r.err = r.row.Scan(dest...)
	r.end(r.err)
	return r.err
}
