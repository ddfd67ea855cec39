package ws

import "sync"

// Registry is the active-connections index keyed by session id, grounded
// on the teacher's internal/websocket/hub.go Hub.clients map plus its
// mu sync.RWMutex, generalized from "registered via channel ops" to a
// directly-locked map since this core's connection count is bounded by
// realistic session counts rather than needing the teacher's
// register/unregister channel indirection.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry constructs an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Add registers a connection under its session id.
func (r *Registry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.SessionID] = c
}

// Remove drops a connection from the registry.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, sessionID)
}

// Get returns the connection bound to a session, if any.
func (r *Registry) Get(sessionID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[sessionID]
	return c, ok
}

// Enqueue implements fanout.Outbound: a non-blocking send to the named
// session's connection. A missing connection counts as accepted — the
// session has already disconnected, which is not this layer's backpressure
// to report. An overflowing send queue closes the connection with code 1011
// ("Backpressure"), per spec.md §4.4/§6/§7.
func (r *Registry) Enqueue(sessionID string, frame []byte) bool {
	c, ok := r.Get(sessionID)
	if !ok {
		return true
	}
	if !c.Enqueue(frame) {
		c.CloseWithReason(1011, "Backpressure")
		return false
	}
	return true
}
