package lifecycle

import (
	"context"
	"errors"

	"github.com/jbweber/anvil/internal/resource"
)

// Resolver maps an identifier to the backend owning it. Backends are probed
// in order and the first hit wins, so an id present in both namespaces
// always resolves to the earlier backend.
type Resolver struct {
	strategies []Backend
}

// NewResolver creates a Resolver probing backends in the given order. Nil
// backends are skipped.
func NewResolver(backends ...Backend) *Resolver {
	r := &Resolver{}
	for _, b := range backends {
		if b != nil {
			r.strategies = append(r.strategies, b)
		}
	}
	return r
}

// Resolve returns the owning backend and the resource's current view. A
// backend answering ResourceNotFound passes to the next; any other failure
// stops resolution and is returned as is.
func (r *Resolver) Resolve(ctx context.Context, id string) (Backend, resource.Resource, error) {
	if id == "" {
		return nil, resource.Resource{}, resource.NotFound()
	}

	for _, b := range r.strategies {
		res, err := b.Lookup(ctx, id)
		if err == nil {
			return b, res, nil
		}
		if errors.Is(err, resource.ErrResourceNotFound) {
			continue
		}
		return nil, resource.Resource{}, resource.AsError(err)
	}

	return nil, resource.Resource{}, resource.NotFound()
}
