package disbursement

import (
	"context"
	"fmt"
)

// Registry routes each request to the dispatcher registered for its payout
// method, falling back to the default when one is set.
type Registry struct {
	dispatchers map[string]Dispatcher
	fallback    Dispatcher
}

func NewRegistry(dispatchers ...MethodDispatcher) *Registry {
	registry := &Registry{dispatchers: map[string]Dispatcher{}}
	for _, d := range dispatchers {
		if d == nil {
			continue
		}
		method := normalizeMethod(d.Method())
		if method == "" {
			continue
		}
		registry.dispatchers[method] = d
	}
	return registry
}

// WithFallback sets the dispatcher used for unregistered methods.
func (r *Registry) WithFallback(d Dispatcher) *Registry {
	r.fallback = d
	return r
}

func (r *Registry) MethodExists(method string) bool {
	if r == nil {
		return false
	}
	_, ok := r.dispatchers[normalizeMethod(method)]
	return ok
}

func (r *Registry) Dispatch(ctx context.Context, req Request) error {
	if r == nil {
		return ErrMethodNotSupported
	}
	if d, ok := r.dispatchers[normalizeMethod(req.Method)]; ok {
		return d.Dispatch(ctx, req)
	}
	if r.fallback != nil {
		return r.fallback.Dispatch(ctx, req)
	}
	return fmt.Errorf("%w: %q", ErrMethodNotSupported, req.Method)
}

var _ Dispatcher = (*Registry)(nil)
