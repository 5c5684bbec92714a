package relational

import (
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/dalerr"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// classify maps driver errors onto error kinds. Errors that already carry a
// kind keep it.
func classify(err error, message string) error {
	if err == nil {
		return nil
	}
	if isCategorized(err) {
		return errors.WithMessage(err, message)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return dalerr.Wrap(dalerr.KindNotFound, err, message)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return dalerr.Wrap(dalerr.KindUniqueConstraint, err, message+": "+pgErr.ConstraintName)
		case foreignKeyViolation:
			return dalerr.Wrap(dalerr.KindForeignKeyConstraint, err, message+": "+pgErr.ConstraintName)
		}
	}
	return dalerr.Internal(err, message)
}

func isCategorized(err error) bool {
	var e *dalerr.Error
	return errors.As(err, &e)
}
