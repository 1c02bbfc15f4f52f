package processor

import (
	"context"
	"fmt"
)

// Compile-time check that Router implements Processor.
var _ Processor = (*Router)(nil)

// Router dispatches each conversion kind to the processor that handles it.
type Router struct {
	routes map[string]Processor
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{routes: make(map[string]Processor)}
}

// Handle registers p for the given kinds.
func (r *Router) Handle(p Processor, kinds ...string) *Router {
	for _, k := range kinds {
		r.routes[k] = p
	}
	return r
}

// Supports reports whether a processor is registered for kind.
func (r *Router) Supports(kind string) bool {
	_, ok := r.routes[kind]
	return ok
}

// Submit forwards to the processor registered for req.Kind.
func (r *Router) Submit(ctx context.Context, req Request) (string, error) {
	p, ok := r.routes[req.Kind]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedKind, req.Kind)
	}
	return p.Submit(ctx, req)
}

// Describe forwards to the processor registered for kind.
func (r *Router) Describe(ctx context.Context, kind, taskID string) (Observation, error) {
	p, ok := r.routes[kind]
	if !ok {
		return Observation{}, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
	return p.Describe(ctx, kind, taskID)
}
