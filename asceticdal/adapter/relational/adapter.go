package relational

import (
	"context"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/adapter"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/schema"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/session"
)

type Adapter struct {
	*adapter.Facade
	backend *Backend
}

var _ adapter.Adapter = (*Adapter)(nil)

func New(pool session.DbSessionPool, registry *schema.Registry, entityName string, opts ...adapter.Option) (*Adapter, error) {
	backend := NewBackend(pool, registry)
	facade, err := adapter.NewFacade(registry, entityName, backend, opts...)
	if err != nil {
		return nil, err
	}
	return &Adapter{Facade: facade, backend: backend}, nil
}

// ResyncSequence advances the id sequence of the entity table to the
// highest stored id.
func (a *Adapter) ResyncSequence(ctx context.Context) error {
	return a.backend.ResyncSequence(ctx, nil, a.Entity())
}
