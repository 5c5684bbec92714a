package pgx

import (
	"context"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/session"
)

// Session represents a database session without transaction
type Session struct {
	ctx     context.Context
	conn    *pgxpool.Conn
	signals *session.Signals
}

func NewSession(ctx context.Context, conn *pgxpool.Conn, signals *session.Signals) *Session {
	return &Session{
		ctx:     ctx,
		conn:    conn,
		signals: signals,
	}
}

func (s *Session) Context() context.Context {
	return s.ctx
}

func (s *Session) Connection() session.DbConnection {
	return &connection{ctx: s.ctx, exec: s.conn, session: s, signals: s.signals}
}

func (s *Session) Atomic(callback session.SessionCallback) error {
	tx, err := s.conn.Begin(s.ctx)
	if err != nil {
		return errors.Wrap(err, "unable to start transaction")
	}
	return atomic(NewTransactionSession(s.ctx, tx, s.signals), callback)
}

// TransactionSession represents a session inside transaction
type TransactionSession struct {
	ctx     context.Context
	id      string
	tx      pgx.Tx
	signals *session.Signals
	release func()
}

func NewTransactionSession(ctx context.Context, tx pgx.Tx, signals *session.Signals) *TransactionSession {
	return &TransactionSession{
		ctx:     ctx,
		id:      uuid.NewString(),
		tx:      tx,
		signals: signals,
	}
}

func (s *TransactionSession) Context() context.Context {
	return s.ctx
}

func (s *TransactionSession) ID() string {
	return s.id
}

func (s *TransactionSession) Connection() session.DbConnection {
	return &connection{ctx: s.ctx, exec: s.tx, session: s, signals: s.signals}
}

func (s *TransactionSession) Atomic(callback session.SessionCallback) error {
	// Create savepoint (nested transaction)
	nestedTx, err := s.tx.Begin(s.ctx)
	if err != nil {
		return errors.Wrap(err, "unable to start savepoint")
	}
	return savepoint(NewSavepointSession(s.ctx, nestedTx, s), callback)
}

func (s *TransactionSession) Commit() error {
	defer s.done()
	if err := s.tx.Commit(s.ctx); err != nil {
		s.ended(session.Failed, err)
		return errors.Wrap(err, "failed to commit transaction")
	}
	s.ended(session.Committed, nil)
	return nil
}

func (s *TransactionSession) Rollback() error {
	defer s.done()
	if err := s.tx.Rollback(s.ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		s.ended(session.Failed, err)
		return errors.Wrap(err, "failed to rollback transaction")
	}
	s.ended(session.RolledBack, nil)
	return nil
}

func (s *TransactionSession) ended(outcome session.TransactionOutcome, err error) {
	s.signals.OnTransactionEnded().Notify(session.TransactionEndedEvent{ID: s.id, Outcome: outcome, Err: err})
}

func (s *TransactionSession) done() {
	if s.release != nil {
		s.release()
		s.release = nil
	}
}

// SavepointSession represents a session inside savepoint (nested transaction)
type SavepointSession struct {
	ctx    context.Context
	tx     pgx.Tx
	parent *TransactionSession
}

func NewSavepointSession(ctx context.Context, tx pgx.Tx, parent *TransactionSession) *SavepointSession {
	return &SavepointSession{
		ctx:    ctx,
		tx:     tx,
		parent: parent,
	}
}

func (s *SavepointSession) Context() context.Context {
	return s.ctx
}

func (s *SavepointSession) Connection() session.DbConnection {
	return &connection{ctx: s.ctx, exec: s.tx, session: s, signals: s.parent.signals}
}

func (s *SavepointSession) Atomic(callback session.SessionCallback) error {
	// Create nested savepoint
	nestedTx, err := s.tx.Begin(s.ctx)
	if err != nil {
		return errors.Wrap(err, "unable to start nested savepoint")
	}
	return savepoint(NewSavepointSession(s.ctx, nestedTx, s.parent), callback)
}

func atomic(txSession *TransactionSession, callback session.SessionCallback) error {
	err := callback(txSession)
	if err != nil {
		if txErr := txSession.Rollback(); txErr != nil {
			return multierror.Append(err, txErr)
		}
		return err
	}
	return txSession.Commit()
}

func savepoint(sp *SavepointSession, callback session.SessionCallback) error {
	err := callback(sp)
	if err != nil {
		if txErr := sp.tx.Rollback(sp.ctx); txErr != nil {
			return multierror.Append(err, txErr)
		}
		return err
	}
	if txErr := sp.tx.Commit(sp.ctx); txErr != nil {
		return errors.Wrap(txErr, "failed to commit savepoint")
	}
	return nil
}
