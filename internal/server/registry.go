// Package server keeps track of which live connection belongs to which user.
package server

import "sync"

// Registry maps each user to their single active connection handle. A newer
// registration for the same user replaces the older one; unregistering a
// handle that has been replaced leaves the newer entry alone.
type Registry[H comparable] struct {
	mu     sync.Mutex
	byUser map[uint]H
	byConn map[H]uint
}

// NewRegistry creates an empty registry.
func NewRegistry[H comparable]() *Registry[H] {
	return &Registry[H]{
		byUser: make(map[uint]H),
		byConn: make(map[H]uint),
	}
}

// Register records handle as the connection of userID. It returns the
// handle it replaced, if any.
func (r *Registry[H]) Register(userID uint, handle H) (H, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// The same handle moving to another user leaves no trace of the old one.
	if prevUser, ok := r.byConn[handle]; ok && prevUser != userID {
		delete(r.byUser, prevUser)
	}

	prev, replaced := r.byUser[userID]
	if replaced {
		delete(r.byConn, prev)
		if prev == handle {
			replaced = false
		}
	}
	r.byUser[userID] = handle
	r.byConn[handle] = userID
	return prev, replaced
}

// Unregister removes handle if it is still the current connection of its
// user. It reports whether anything was removed.
func (r *Registry[H]) Unregister(handle H) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byConn[handle]
	if !ok {
		return false
	}
	delete(r.byConn, handle)
	if current, ok := r.byUser[userID]; ok && current == handle {
		delete(r.byUser, userID)
	}
	return true
}

// LookupHandle returns the current connection of userID.
func (r *Registry[H]) LookupHandle(userID uint) (H, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.byUser[userID]
	return h, ok
}

// ResolveUser returns the user that handle is the current connection of.
// Replaced and unregistered handles resolve to nobody.
func (r *Registry[H]) ResolveUser(handle H) (uint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byConn[handle]
	return userID, ok
}

// Len returns the number of connected users.
func (r *Registry[H]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser)
}
