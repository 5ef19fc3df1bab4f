package push

import (
	"sync"
)

// MemoryConn is an in-process Conn used by tests and local development.
// Publish delivers synchronously, which preserves per-channel ordering by
// construction.
type MemoryConn struct {
	mu        sync.Mutex
	connected bool
	nextID    int
	handlers  map[string]map[int]Handler
}

// NewMemoryConn creates a disconnected in-process connection
func NewMemoryConn() *MemoryConn {
	return &MemoryConn{handlers: make(map[string]map[int]Handler)}
}

// Connect marks the connection up. Idempotent.
func (c *MemoryConn) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return nil
}

// Disconnect marks the connection down. Idempotent.
func (c *MemoryConn) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

// IsConnected reports the connection state
func (c *MemoryConn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Subscribe binds a handler to a channel
func (c *MemoryConn) Subscribe(channel string, h Handler) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handlers[channel] == nil {
		c.handlers[channel] = make(map[int]Handler)
	}
	id := c.nextID
	c.nextID++
	c.handlers[channel][id] = h

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers[channel], id)
	}, nil
}

// Publish delivers a payload to every handler bound to the channel.
// Dropped silently while disconnected, matching real transport behavior.
func (c *MemoryConn) Publish(channel string, data []byte) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	hs := make([]Handler, 0, len(c.handlers[channel]))
	for _, h := range c.handlers[channel] {
		hs = append(hs, h)
	}
	c.mu.Unlock()

	for _, h := range hs {
		h(data)
	}
}
