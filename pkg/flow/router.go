package flow

import (
	"context"
	"fmt"
)

// RouteFunc picks the route key for an input.
type RouteFunc func(ctx context.Context, input any) (string, error)

// Router dispatches each input to exactly one of its routes, chosen by the
// route function. An unmatched key falls back to the Default route when one
// is named, otherwise the invocation fails with a Permanent error.
type Router struct {
	name   string
	route  RouteFunc
	routes map[string]Primitive

	// Default names the route used when the key has no entry. Empty means
	// no fallback.
	Default string
}

var _ Primitive = (*Router)(nil)

// NewRouter builds a router over the given routes. The map is copied.
func NewRouter(name string, route RouteFunc, routes map[string]Primitive) *Router {
	if name == "" {
		panic("flow: router name must not be empty")
	}
	if route == nil {
		panic("flow: router route function must not be nil")
	}
	owned := make(map[string]Primitive, len(routes))
	for key, p := range routes {
		if p == nil {
			panic(fmt.Sprintf("flow: router route %q must not be nil", key))
		}
		owned[key] = p
	}
	return &Router{name: name, route: route, routes: owned}
}

func (r *Router) Name() string { return r.name }
func (r *Router) Type() string { return TypeRouter }

func (r *Router) Execute(ctx context.Context, input any) (any, error) {
	key, err := r.route(ctx, input)
	if err != nil {
		return nil, err
	}

	target, ok := r.routes[key]
	if !ok && r.Default != "" {
		target, ok = r.routes[r.Default]
	}
	if !ok {
		return nil, PermanentError(fmt.Errorf("router %q: no matching route for key %q", r.name, key))
	}

	Annotate(ctx, "route.key", key)
	return RunChild(ctx, target, input)
}
