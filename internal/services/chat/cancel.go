package chat

import (
	"context"
	"sync"
)

// Registry tracks the cancellation signal of every in-flight stream
type Registry struct {
	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]context.CancelFunc)}
}

// Register derives a cancellable context for requestID
func (r *Registry) Register(parent context.Context, requestID string) context.Context {
	ctx, cancel := context.WithCancel(parent)

	r.mu.Lock()
	r.active[requestID] = cancel
	r.mu.Unlock()

	return ctx
}

// Cancel signals requestID. The record is consumed, so a second call
// reports ErrStreamNotFound.
func (r *Registry) Cancel(requestID string) error {
	r.mu.Lock()
	cancel, ok := r.active[requestID]
	delete(r.active, requestID)
	r.mu.Unlock()

	if !ok {
		return ErrStreamNotFound
	}
	cancel()
	return nil
}

// Remove releases requestID; it is safe to call more than once
func (r *Registry) Remove(requestID string) {
	r.mu.Lock()
	cancel, ok := r.active[requestID]
	delete(r.active, requestID)
	r.mu.Unlock()

	if ok {
		cancel()
	}
}

// Len returns the number of active streams
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
