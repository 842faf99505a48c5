package workers

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"folio/internal/batch"
)

// Invocation is the unit of work a worker receives.
type Invocation = batch.Invocation

// Worker executes one capability.
type Worker interface {
	Run(ctx context.Context, inv Invocation) error
}

// WorkerFunc adapts a function to Worker.
type WorkerFunc func(ctx context.Context, inv Invocation) error

// Run calls f.
func (f WorkerFunc) Run(ctx context.Context, inv Invocation) error {
	return f(ctx, inv)
}

// Registry maps capability names to workers.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]Worker
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{workers: make(map[string]Worker)}
}

// Register binds name to w. Registering a name twice is an error.
func (r *Registry) Register(name string, w Worker) error {
	if name == "" || w == nil {
		return fmt.Errorf("register worker: name and worker are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.workers[name]; exists {
		return fmt.Errorf("register worker: %s already registered", name)
	}
	r.workers[name] = w
	return nil
}

// Lookup returns the worker bound to name.
func (r *Registry) Lookup(name string) (Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[name]
	return w, ok
}

// Names lists registered capabilities in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.workers))
}
