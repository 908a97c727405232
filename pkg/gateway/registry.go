package gateway

import (
	"errors"
	"sync"
	"time"
)

// ErrDuplicateClient is returned by Registry.Insert when the id is
// already present. Callers must generate fresh ids per connection.
var ErrDuplicateClient = errors.New("gateway: client id already registered")

// Registry is the concurrency-safe store of live connections, keyed by
// connection id. It is the only mutable structure shared between the
// connection goroutines and the sweeper; all access goes through its
// methods, no external locking required.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry creates an empty registry. A Gateway owns one, but tests
// may construct a fresh registry in isolation.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Insert adds a new client record. The id must not already be present.
func (r *Registry) Insert(c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.clients[c.id]; exists {
		return ErrDuplicateClient
	}
	r.clients[c.id] = c
	return nil
}

// Get returns the record for id, if it is still registered.
func (r *Registry) Get(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

// Remove deletes the record for id. It is idempotent and reports whether
// an entry was actually removed, so callers can tell a real teardown
// from a repeat.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[id]; !ok {
		return false
	}
	delete(r.clients, id)
	return true
}

// All returns a snapshot of the current records. The snapshot may be
// momentarily stale; it never blocks concurrent inserts or removes.
func (r *Registry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snapshot := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		snapshot = append(snapshot, c)
	}
	return snapshot
}

// ByUserID returns the connections bound to userID. Linear scan; this is
// not a hot path.
func (r *Registry) ByUserID(userID string) []*Client {
	if userID == "" {
		return nil
	}
	var matched []*Client
	for _, c := range r.All() {
		if uid, ok := c.UserID(); ok && uid == userID {
			matched = append(matched, c)
		}
	}
	return matched
}

// TouchLiveness records liveness proof for id at the given time. It is a
// no-op when the entry is already gone and reports whether it applied.
func (r *Registry) TouchLiveness(id string, at time.Time) bool {
	r.mu.RLock()
	c, ok := r.clients[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	c.touchLiveness(at)
	return true
}

// Len returns the number of live records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
