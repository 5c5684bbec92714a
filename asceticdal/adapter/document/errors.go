package document

import (
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/dalerr"
)

func classify(err error, message string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return dalerr.Wrap(dalerr.KindNotFound, err, message)
	case mongo.IsDuplicateKeyError(err):
		return dalerr.Wrap(dalerr.KindUniqueConstraint, err, message)
	}
	return dalerr.Internal(err, message)
}
