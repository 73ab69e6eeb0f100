package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voxdesk/internal/session"
)

// errDraining is reported by the readiness check once shutdown has begun.
var errDraining = errors.New("draining: not accepting live sessions")

// SessionInfo holds metadata about one live browser connection.
type SessionInfo struct {
	// ConnID is the unique identifier of the WebSocket connection. Each
	// connection may run several sessions over its lifetime.
	ConnID string

	// RemoteAddr is the client address as seen by the server.
	RemoteAddr string

	// ConnectedAt is when the connection was accepted.
	ConnectedAt time.Time

	// Session is the current state of the connection's controller.
	Session session.Snapshot
}

// liveConn is the registry entry for one connection.
type liveConn struct {
	info   SessionInfo
	ctrl   *session.Controller
	cancel context.CancelFunc
	done   chan struct{}
}

// SessionManager tracks the live connections so they can be listed and
// stopped together at shutdown. All exported methods are safe for concurrent
// use.
type SessionManager struct {
	mu       sync.Mutex
	conns    map[string]*liveConn
	draining bool
}

// NewSessionManager creates an empty SessionManager.
func NewSessionManager() *SessionManager {
	return &SessionManager{conns: make(map[string]*liveConn)}
}

// add registers a connection. It reports false once StopAll has begun.
func (sm *SessionManager) add(c *liveConn) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.draining {
		return false
	}
	sm.conns[c.info.ConnID] = c
	return true
}

// remove unregisters a connection and marks it done.
func (sm *SessionManager) remove(id string) {
	sm.mu.Lock()
	c, ok := sm.conns[id]
	delete(sm.conns, id)
	sm.mu.Unlock()
	if ok {
		close(c.done)
	}
}

// Count returns the number of open connections.
func (sm *SessionManager) Count() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.conns)
}

// List returns metadata about every open connection, including a fresh
// snapshot of its controller.
func (sm *SessionManager) List() []SessionInfo {
	sm.mu.Lock()
	conns := make([]*liveConn, 0, len(sm.conns))
	for _, c := range sm.conns {
		conns = append(conns, c)
	}
	sm.mu.Unlock()

	out := make([]SessionInfo, 0, len(conns))
	for _, c := range conns {
		info := c.info
		info.Session = c.ctrl.Snapshot()
		out = append(out, info)
	}
	return out
}

// Check is a readiness probe: it fails once the manager is draining.
func (sm *SessionManager) Check(context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.draining {
		return errDraining
	}
	return nil
}

// StopAll refuses new connections, cancels every open one, and waits until
// each has torn its session down or ctx expires.
func (sm *SessionManager) StopAll(ctx context.Context) error {
	sm.mu.Lock()
	sm.draining = true
	conns := make([]*liveConn, 0, len(sm.conns))
	for _, c := range sm.conns {
		conns = append(conns, c)
	}
	sm.mu.Unlock()

	for _, c := range conns {
		c.cancel()
	}
	for _, c := range conns {
		select {
		case <-c.done:
		case <-ctx.Done():
			slog.Warn("live connection did not stop in time", "conn_id", c.info.ConnID)
			return ctx.Err()
		}
	}
	if len(conns) > 0 {
		slog.Info("live connections stopped", "count", len(conns))
	}
	return nil
}
