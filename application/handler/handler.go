// Package handler provides the typed registry that dispatches queued jobs.
package handler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/helixml/codeframe/domain/job"
)

// ErrNoHandler indicates no handler is registered for the job kind.
var ErrNoHandler = errors.New("no handler registered")

// Handler executes one claimed job.
type Handler interface {
	Execute(ctx context.Context, j job.Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, j job.Job) error

// Execute implements Handler.
func (f HandlerFunc) Execute(ctx context.Context, j job.Job) error {
	return f(ctx, j)
}

// Registry maps job kinds to their handlers.
type Registry struct {
	handlers map[job.Kind]Handler
	mu       sync.RWMutex
}

// NewRegistry creates a new handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[job.Kind]Handler),
	}
}

// Register adds a handler for a job kind.
// Subsequent registrations for the same kind will overwrite the previous handler.
func (r *Registry) Register(kind job.Kind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

// Register binds a typed payload handler. The job body is decoded into P
// before fn runs; a body that does not decode is a permanent failure.
func Register[P job.Payload](r *Registry, fn func(ctx context.Context, j job.Job, payload P) error) {
	var zero P
	r.Register(zero.Kind(), HandlerFunc(func(ctx context.Context, j job.Job) error {
		payload, err := job.Decode[P](j)
		if err != nil {
			return job.Permanent(err)
		}
		return fn(ctx, j, payload)
	}))
}

// Handler returns the handler for a job kind.
// Returns ErrNoHandler if no handler is registered.
func (r *Registry) Handler(kind job.Kind) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, kind)
	}
	return h, nil
}

// HasHandler checks if a handler is registered for the kind.
func (r *Registry) HasHandler(kind job.Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[kind]
	return ok
}

// Kinds returns all registered kinds, sorted.
func (r *Registry) Kinds() []job.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]job.Kind, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
