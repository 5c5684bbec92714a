package pgx_test

import (
	"context"
	"errors"
	"testing"

	"github.com/icrowley/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/session"
	pgxsession "github.com/krew-solutions/ascetic-dal-go/asceticdal/session/pgx"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/utils/testutils"
)

func setupPool(t *testing.T) *pgxsession.SessionPool {
	t.Helper()
	pool, err := testutils.NewPgxSessionPool()
	if err != nil {
		t.Skipf("postgres is not reachable: %v", err)
	}
	t.Cleanup(pool.Close)
	exec(t, pool, "DROP TABLE IF EXISTS dal_session_test; CREATE TABLE dal_session_test (id serial PRIMARY KEY, name text NOT NULL)")
	t.Cleanup(func() {
		_ = pool.Session(context.Background(), func(s session.Session) error {
			_, err := s.(session.DbSession).Connection().Exec("DROP TABLE IF EXISTS dal_session_test")
			return err
		})
	})
	return pool
}

func exec(t *testing.T, pool *pgxsession.SessionPool, sql string, args ...any) {
	t.Helper()
	err := pool.Session(context.Background(), func(s session.Session) error {
		_, err := s.(session.DbSession).Connection().Exec(sql, args...)
		return err
	})
	require.NoError(t, err)
}

func names(t *testing.T, pool *pgxsession.SessionPool) []string {
	t.Helper()
	var result []string
	err := pool.Session(context.Background(), func(s session.Session) error {
		rows, err := s.(session.DbSession).Connection().Query("SELECT id, name FROM dal_session_test ORDER BY id")
		if err != nil {
			return err
		}
		defer rows.Close()
		assert.Equal(t, []string{"id", "name"}, rows.Columns())
		for rows.Next() {
			values, err := rows.Values()
			if err != nil {
				return err
			}
			result = append(result, values[1].(string))
		}
		return rows.Err()
	})
	require.NoError(t, err)
	return result
}

func insert(s session.Session, name string) error {
	_, err := s.(session.DbSession).Connection().Exec("INSERT INTO dal_session_test (name) VALUES ($1)", name)
	return err
}

func TestAtomicCommitsAndRollsBack(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	kept, lost := fake.Word(), fake.Word()

	require.NoError(t, pool.Session(ctx, func(s session.Session) error {
		return s.Atomic(func(tx session.Session) error { return insert(tx, kept) })
	}))
	failure := errors.New("boom")
	err := pool.Session(ctx, func(s session.Session) error {
		return s.Atomic(func(tx session.Session) error {
			if err := insert(tx, lost); err != nil {
				return err
			}
			return failure
		})
	})
	assert.ErrorIs(t, err, failure)
	assert.Equal(t, []string{kept}, names(t, pool))
}

func TestSavepointRollbackKeepsOuterWork(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	outer, inner := fake.Word(), fake.Word()

	err := pool.Session(ctx, func(s session.Session) error {
		return s.Atomic(func(tx session.Session) error {
			if err := insert(tx, outer); err != nil {
				return err
			}
			_ = tx.Atomic(func(sp session.Session) error {
				if err := insert(sp, inner); err != nil {
					return err
				}
				return errors.New("undo inner")
			})
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, []string{outer}, names(t, pool))
}

func TestBeginNotifiesTransactionEnd(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	var outcomes []session.TransactionOutcome
	var queries int
	pool.OnTransactionEnded().Attach(func(e session.TransactionEndedEvent) { outcomes = append(outcomes, e.Outcome) }, "test")
	pool.OnQueryEnded().Attach(func(e session.QueryEndedEvent) { queries++ }, "test")

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, tx.ID())
	require.NoError(t, insert(tx, fake.Word()))
	require.NoError(t, tx.Commit())
	require.NoError(t, tx.Rollback())

	tx, err = pool.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, insert(tx, fake.Word()))
	require.NoError(t, tx.Rollback())

	assert.Equal(t, []session.TransactionOutcome{session.Committed, session.RolledBack, session.RolledBack}, outcomes)
	assert.Equal(t, 2, queries)
	assert.Len(t, names(t, pool), 1)
}
