package ai

import (
	"context"
	"sync"
)

type cancelHandle struct {
	cancel context.CancelFunc
	token  uint64
}

// CancelRegistry tracks the cancel handle of every in-flight
// generation, keyed by conversation UID. A conversation holds at most
// one handle at a time; registering over a live handle cancels the old
// run first.
type CancelRegistry struct {
	mu        sync.Mutex
	handles   map[string]cancelHandle
	nextToken uint64
}

// NewCancelRegistry creates an empty registry.
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{
		handles: make(map[string]cancelHandle),
	}
}

// Register stores the cancel handle for a conversation and returns a
// registration token. Any previous handle for the same conversation is
// cancelled and replaced.
func (r *CancelRegistry) Register(conversationUID string, cancel context.CancelFunc) uint64 {
	r.mu.Lock()
	r.nextToken++
	token := r.nextToken
	prev, ok := r.handles[conversationUID]
	r.handles[conversationUID] = cancelHandle{cancel: cancel, token: token}
	r.mu.Unlock()
	if ok {
		prev.cancel()
	}
	return token
}

// Cancel fires the handle for a conversation and removes it. It
// returns false when no generation is in flight.
func (r *CancelRegistry) Cancel(conversationUID string) bool {
	r.mu.Lock()
	handle, ok := r.handles[conversationUID]
	if ok {
		delete(r.handles, conversationUID)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	handle.cancel()
	return true
}

// Release removes the handle without firing it, but only while the
// registration token still matches: a finished run never drops the
// handle a successor registered for the same conversation. Safe to
// call whether or not the handle is still present.
func (r *CancelRegistry) Release(conversationUID string, token uint64) {
	r.mu.Lock()
	if handle, ok := r.handles[conversationUID]; ok && handle.token == token {
		delete(r.handles, conversationUID)
	}
	r.mu.Unlock()
}

// Active reports whether a generation currently holds a handle.
func (r *CancelRegistry) Active(conversationUID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handles[conversationUID]
	return ok
}

// Len returns the number of in-flight generations.
func (r *CancelRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}
