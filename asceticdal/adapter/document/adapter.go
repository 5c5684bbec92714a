package document

import (
	"context"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/adapter"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/schema"
)

type Adapter struct {
	*adapter.Facade
	backend *Backend
}

var _ adapter.Adapter = (*Adapter)(nil)

func New(driver Driver, registry *schema.Registry, entityName string, opts ...adapter.Option) (*Adapter, error) {
	backend := NewBackend(driver, registry)
	facade, err := adapter.NewFacade(registry, entityName, backend, opts...)
	if err != nil {
		return nil, err
	}
	return &Adapter{Facade: facade, backend: backend}, nil
}

// ResyncSequence always fails with NOT_IMPLEMENTED: collections have no
// id sequence.
func (a *Adapter) ResyncSequence(ctx context.Context) error {
	return a.backend.ResyncSequence(ctx, nil, a.Entity())
}
