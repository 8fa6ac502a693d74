// Package kit holds the transport-agnostic endpoint plumbing shared by
// the HTTP and MCP surfaces: the Endpoint shape, middleware chaining,
// and request-scoped context values.
package kit

import "context"

// Endpoint is one logical operation, independent of transport.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint with cross-cutting behaviour.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares left to right: the first wraps all the
// others.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
