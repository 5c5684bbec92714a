package testutils

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/session"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/session/result"
)

// Query is one statement received by a DbSessionStub.
type Query struct {
	SQL    string
	Params []any
}

type response struct {
	rows         *RowsStub
	rowsAffected int64
	err          error
}

func NewDbSessionStub(rows ...*RowsStub) *DbSessionStub {
	stub := &DbSessionStub{}
	stub.conn = &connectionStub{session: stub}
	stub.Enqueue(rows...)
	return stub
}

// DbSessionStub records every statement and replays the queued responses in
// order. Once the queue is exhausted queries return no rows and statements
// affect nothing.
type DbSessionStub struct {
	mu        sync.Mutex
	queries   []Query
	responses []response
	conn      *connectionStub
}

func (s *DbSessionStub) Enqueue(rows ...*RowsStub) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.responses = append(s.responses, response{rows: r})
	}
}

// EnqueueExec queues the number of rows the next statement affects.
func (s *DbSessionStub) EnqueueExec(rowsAffected int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, response{rowsAffected: rowsAffected})
}

func (s *DbSessionStub) EnqueueError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, response{err: err})
}

func (s *DbSessionStub) Queries() []Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Query(nil), s.queries...)
}

func (s *DbSessionStub) QueryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}

// LastQuery returns the most recent statement, or the zero Query.
func (s *DbSessionStub) LastQuery() Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queries) == 0 {
		return Query{}
	}
	return s.queries[len(s.queries)-1]
}

func (s *DbSessionStub) Context() context.Context {
	return context.Background()
}

func (s *DbSessionStub) Atomic(callback session.SessionCallback) error {
	return callback(s)
}

func (s *DbSessionStub) Connection() session.DbConnection {
	return s.conn
}

func (s *DbSessionStub) receive(query string, args []any) response {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, Query{SQL: query, Params: args})
	if len(s.responses) == 0 {
		return response{rows: NewRowsStub()}
	}
	r := s.responses[0]
	s.responses = s.responses[1:]
	if r.rows == nil && r.err == nil {
		r.rows = NewRowsStub()
	}
	return r
}

type connectionStub struct {
	session *DbSessionStub
}

func (c *connectionStub) Exec(query string, args ...any) (session.Result, error) {
	r := c.session.receive(query, args)
	if r.err != nil {
		return nil, r.err
	}
	return result.NewResult(0, r.rowsAffected), nil
}

func (c *connectionStub) Query(query string, args ...any) (session.Rows, error) {
	r := c.session.receive(query, args)
	if r.err != nil {
		return nil, r.err
	}
	return r.rows, nil
}

func (c *connectionStub) QueryRow(query string, args ...any) session.Row {
	r := c.session.receive(query, args)
	return &RowStub{rows: r.rows, err: r.err}
}

// TxSessionStub is a transaction over a shared DbSessionStub, so statements
// of every transaction land in the same recording.
type TxSessionStub struct {
	*DbSessionStub
	id         string
	Committed  bool
	RolledBack bool
}

func (t *TxSessionStub) ID() string {
	return t.id
}

func (t *TxSessionStub) Commit() error {
	if t.Committed || t.RolledBack {
		return errors.New("transaction already closed")
	}
	t.Committed = true
	return nil
}

func (t *TxSessionStub) Rollback() error {
	if t.Committed {
		return nil
	}
	t.RolledBack = true
	return nil
}

func NewSessionPoolStub(stub *DbSessionStub) *SessionPoolStub {
	return &SessionPoolStub{Stub: stub}
}

// SessionPoolStub implements session.DbSessionPool over one DbSessionStub.
type SessionPoolStub struct {
	Stub         *DbSessionStub
	Transactions []*TxSessionStub
	BeginErr     error
}

func (p *SessionPoolStub) Session(_ context.Context, callback session.SessionPoolCallback) error {
	return callback(p.Stub)
}

func (p *SessionPoolStub) Begin(_ context.Context) (session.TxSession, error) {
	if p.BeginErr != nil {
		return nil, p.BeginErr
	}
	tx := &TxSessionStub{DbSessionStub: p.Stub, id: fmt.Sprintf("tx-%d", len(p.Transactions)+1)}
	p.Transactions = append(p.Transactions, tx)
	return tx, nil
}

// NewRowsStub builds an unnamed result set, for statements read by Scan.
func NewRowsStub(rows ...[]any) *RowsStub {
	return &RowsStub{
		rows:   rows,
		idx:    -1,
		Closed: false,
	}
}

// NewRecordsStub builds a result set whose rows are read by column name.
func NewRecordsStub(columns []string, rows ...[]any) *RowsStub {
	stub := NewRowsStub(rows...)
	stub.columns = columns
	return stub
}

type RowsStub struct {
	columns []string
	rows    [][]any
	idx     int
	Closed  bool
}

func (r *RowsStub) Close() error {
	r.Closed = true
	return nil
}

func (r *RowsStub) Err() error {
	return nil
}

func (r *RowsStub) Next() bool {
	r.idx++
	return r.idx < len(r.rows)
}

func (r *RowsStub) Columns() []string {
	return r.columns
}

func (r *RowsStub) Values() ([]any, error) {
	if r.idx < 0 || r.idx >= len(r.rows) {
		return nil, errors.New("no current row")
	}
	return append([]any(nil), r.rows[r.idx]...), nil
}

func (r *RowsStub) Scan(dest ...any) error {
	if r.idx < 0 || r.idx >= len(r.rows) {
		return errors.New("no current row")
	}

	row := r.rows[r.idx]
	for i, val := range row {
		if i >= len(dest) {
			break
		}

		switch d := dest[i].(type) {
		case *any:
			*d = val
		case *int:
			*d = toInt(val)
		case *int64:
			*d = toInt64(val)
		case *int32:
			*d = toInt32(val)
		case *string:
			*d = val.(string)
		case *bool:
			*d = val.(bool)
		case *[]byte:
			*d = val.([]byte)
		case *float64:
			*d = toFloat64(val)
		case sql.Scanner:
			if err := d.Scan(val); err != nil {
				return err
			}
		default:
			return errors.New("unsupported scan type")
		}
	}
	return nil
}

func toInt(val any) int {
	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case int32:
		return int(v)
	default:
		panic("cannot convert to int")
	}
}

func toInt64(val any) int64 {
	switch v := val.(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case int32:
		return int64(v)
	default:
		panic("cannot convert to int64")
	}
}

func toInt32(val any) int32 {
	switch v := val.(type) {
	case int:
		return int32(v)
	case int64:
		return int32(v)
	case int32:
		return v
	default:
		panic("cannot convert to int32")
	}
}

func toFloat64(val any) float64 {
	switch v := val.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		panic("cannot convert to float64")
	}
}

// RowStub fails with ErrNoRows when its result set is empty.
type RowStub struct {
	rows *RowsStub
	err  error
}

func (r *RowStub) Err() error {
	return r.err
}

func (r *RowStub) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if !r.rows.Next() {
		return ErrNoRows
	}
	return r.rows.Scan(dest...)
}

var ErrNoRows = pgx.ErrNoRows
