package websocket

import (
	"sync"

	"github.com/samber/lo"
)

// Registry is the set of open push connections.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection // connection ID -> Connection
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
	}
}

// Add registers conn.
func (r *Registry) Add(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[conn.ID()] = conn
	return nil
}

// Remove unregisters conn. Removing an absent connection is a no-op.
func (r *Registry) Remove(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if registered, ok := r.connections[conn.ID()]; ok && registered == conn {
		delete(r.connections, conn.ID())
	}
}

// Snapshot returns the current connections. Callers may iterate it while
// connections are added or removed concurrently.
func (r *Registry) Snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.connections)
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// CloseAll closes and removes every connection.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := lo.Values(r.connections)
	r.connections = make(map[string]*Connection)
	r.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}
