package backend

import (
	"fmt"

	"github.com/proxylink-dev/proxylink/pkg/models"
)

// Registry dispatches a connector kind to its adapter. The set is
// closed and built once: adding a backend kind is a code change here,
// not a runtime registration, which keeps the credential-exposure
// surface fixed.
type Registry struct {
	adapters map[models.Kind]Adapter
}

// NewRegistry builds the exhaustive kind -> adapter table.
func NewRegistry(limits Limits) *Registry {
	limits = limits.withDefaults()
	return &Registry{
		adapters: map[models.Kind]Adapter{
			models.KindRelational: NewRelationalAdapter(limits),
			models.KindDocument:   NewDocumentAdapter(limits),
			models.KindObject:     NewObjectAdapter(limits),
			models.KindHTTP:       NewHTTPAdapter(limits),
		},
	}
}

// ForKind returns the adapter for a connector kind.
func (r *Registry) ForKind(kind models.Kind) (Adapter, error) {
	adapter, ok := r.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("unsupported connector kind: %s", kind)
	}
	return adapter, nil
}
