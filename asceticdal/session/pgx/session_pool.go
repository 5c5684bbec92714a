package pgx

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/session"
)

type SessionPool struct {
	*session.Signals
	pool *pgxpool.Pool
}

func NewSessionPool(pool *pgxpool.Pool) *SessionPool {
	return &SessionPool{Signals: session.NewSignals(), pool: pool}
}

func (p *SessionPool) Session(ctx context.Context, callback session.SessionPoolCallback) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Acquire connection from pool
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	return callback(NewSession(ctx, conn, p.Signals))
}

// Begin starts a transaction on a dedicated connection. The connection goes
// back to the pool on Commit or Rollback.
func (p *SessionPool) Begin(ctx context.Context) (session.TxSession, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := conn.Begin(ctx)
	if err != nil {
		conn.Release()
		return nil, errors.Wrap(err, "unable to start transaction")
	}
	txSession := NewTransactionSession(ctx, tx, p.Signals)
	txSession.release = conn.Release
	return txSession, nil
}

func (p *SessionPool) Close() {
	p.pool.Close()
}
