package websocket

import "sync"

// Table maps connection IDs to live connections for message delivery. It is
// pure bookkeeping: session membership is the Session Registry's concern,
// this is only the transport-level lookup for fan-out.
type Table struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

// NewTable creates an empty connection table.
func NewTable() *Table {
	return &Table{
		conns: make(map[string]*Connection),
	}
}

// Add registers a connection under its ID.
func (t *Table) Add(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[conn.ID()] = conn
	return nil
}

// Remove deletes a connection, but only if the registered instance matches.
// A reconnect that reused an ID must not be evicted by the old connection's
// deferred cleanup.
func (t *Table) Remove(conn *Connection) {
	if conn == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if registered, exists := t.conns[conn.ID()]; exists && registered == conn {
		delete(t.conns, conn.ID())
	}
}

// Get returns the connection for an ID.
func (t *Table) Get(connID string) (*Connection, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	conn, exists := t.conns[connID]
	return conn, exists
}

// Len reports the number of live connections.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}
