package relay

import (
	"sync"
)

// Registry maps each user to their single live connection.
// A reconnect overwrites the previous entry (last-connect-wins); the
// superseded connection keeps its transport open until it disconnects on
// its own, and its cleanup must not evict the newer entry.
type Registry struct {
	byUser map[string]*Connection // user_id -> connection
	mu     sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]*Connection),
	}
}

// Register stores the connection as the user's live connection,
// unconditionally overwriting any previous entry. It returns the
// superseded connection, if there was one.
func (r *Registry) Register(conn *Connection) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.byUser[conn.UserID()]
	r.byUser[conn.UserID()] = conn
	return previous
}

// Lookup resolves a user's current connection. Absence means the user is
// not connected and the caller should drop the delivery silently.
func (r *Registry) Lookup(userID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, exists := r.byUser[userID]
	return conn, exists
}

// Unregister deletes the user's entry only if it is still owned by the
// given connection. A stale connection's delayed disconnect must not evict
// a newer connection's mapping.
func (r *Registry) Unregister(userID string, connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.byUser[userID]
	if !exists || current.ID != connectionID {
		return false
	}
	delete(r.byUser, userID)
	return true
}

// Count returns the number of registered users
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// All returns a snapshot of every registered connection
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connections := make([]*Connection, 0, len(r.byUser))
	for _, conn := range r.byUser {
		connections = append(connections, conn)
	}
	return connections
}
