package chat

import (
	"slices"
	"sync"

	"github.com/samber/lo"
)

// Registry maps connection identifiers to usernames and keeps the presence
// set of identified users.
//
// Presence is a set: two connections joining with the same username share
// one presence entry, and the first of them to leave removes it.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]string
	presence    []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{connections: make(map[string]string)}
}

// Join associates username with connID and adds it to the presence set.
// Re-joining with the same username is idempotent. A connection that
// already carries a different username is rejected with
// ErrAlreadyIdentified.
func (r *Registry) Join(connID, username string) ([]string, error) {
	if connID == "" || username == "" {
		return nil, ErrMalformedEvent
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.connections[connID]; ok && current != username {
		return r.snapshot(), ErrAlreadyIdentified
	}

	r.connections[connID] = username
	if !lo.Contains(r.presence, username) {
		r.presence = append(r.presence, username)
	}
	return r.snapshot(), nil
}

// Leave drops the association of connID and removes its username from the
// presence set.
func (r *Registry) Leave(connID string) (string, []string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	username, ok := r.connections[connID]
	if !ok {
		return "", r.snapshot(), ErrUnknownConnection
	}

	delete(r.connections, connID)
	r.presence = lo.Without(r.presence, username)
	return username, r.snapshot(), nil
}

// Username returns the username bound to connID, if any.
func (r *Registry) Username(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	username, ok := r.connections[connID]
	return username, ok
}

// Presence lists identified usernames in first-join order.
func (r *Registry) Presence() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.snapshot()
}

func (r *Registry) snapshot() []string {
	if r.presence == nil {
		return []string{}
	}
	return slices.Clone(r.presence)
}
