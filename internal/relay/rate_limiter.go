package relay

import (
	"sync"
	"time"
)

// commandsPerWindow bounds remote command throughput per connection. The
// chattiest legitimate source is scroll-sync while a remote drags the
// mirror, which stays well under this.
const (
	commandsPerWindow = 300
	limiterWindow     = time.Minute
	limiterStaleAfter = 5 * time.Minute
)

// CommandLimiter applies a per-connection sliding window to inbound remote
// commands so one misbehaving remote cannot flood a session's presenter.
type CommandLimiter struct {
	mu      sync.Mutex
	clients map[string]*commandWindow
}

type commandWindow struct {
	count       int
	windowStart time.Time
}

// NewCommandLimiter creates a limiter with empty state.
func NewCommandLimiter() *CommandLimiter {
	return &CommandLimiter{
		clients: make(map[string]*commandWindow),
	}
}

// Allow reports whether the connection may send another command now.
func (l *CommandLimiter) Allow(connID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	w, exists := l.clients[connID]
	if !exists {
		l.clients[connID] = &commandWindow{count: 1, windowStart: now}
		return true
	}

	if now.Sub(w.windowStart) >= limiterWindow {
		w.count = 1
		w.windowStart = now
		return true
	}

	if w.count >= commandsPerWindow {
		return false
	}

	w.count++
	return true
}

// Forget drops a connection's window on disconnect.
func (l *CommandLimiter) Forget(connID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.clients, connID)
}

// Cleanup removes windows idle past the stale threshold. Called
// periodically; Forget already covers the common disconnect path.
func (l *CommandLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for connID, w := range l.clients {
		if now.Sub(w.windowStart) > limiterStaleAfter {
			delete(l.clients, connID)
		}
	}
}
