package session

import (
	"context"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/signals"
)

type SessionCallback func(Session) error

type Session interface {
	Context() context.Context
	Atomic(SessionCallback) error
}

type SessionPoolCallback func(Session) error

type SessionPool interface {
	Session(context.Context, SessionPoolCallback) error
}

// Db

type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}

type Rows interface {
	Close() error
	Err() error
	Next() bool
	Scan(dest ...any) error
	Columns() []string
	Values() ([]any, error)
}

type Row interface {
	Err() error
	Scan(dest ...any) error
}

type DbExecutor interface {
	Exec(query string, args ...any) (Result, error)
}

type DbQuerier interface {
	Query(query string, args ...any) (Rows, error)
}

type DbSingleQuerier interface {
	QueryRow(query string, args ...any) Row
}

type DbConnection interface {
	DbExecutor
	DbQuerier
	DbSingleQuerier
}

type DbSession interface {
	Session
	Connection() DbConnection
}

// Transaction is a backend-neutral handle of a transaction that is committed
// or rolled back by its owner rather than by an Atomic callback. A handle
// belongs to one call chain and must not be shared between goroutines.
type Transaction interface {
	ID() string
	Context() context.Context
	Commit() error
	Rollback() error
}

type TxSession interface {
	DbSession
	Transaction
}

type DbSessionPool interface {
	SessionPool
	Begin(context.Context) (TxSession, error)
}

// Observable exposes the events of everything executed through a pool.
type Observable interface {
	OnQueryStarted() signals.Signal[QueryStartedEvent]
	OnQueryEnded() signals.Signal[QueryEndedEvent]
	OnTransactionEnded() signals.Signal[TransactionEndedEvent]
}
