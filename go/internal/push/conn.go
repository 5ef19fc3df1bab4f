package push

// Handler receives the raw payload of one delta on a channel
type Handler func(data []byte)

// Conn is a shared bidirectional pub/sub connection. One Conn is created
// per application lifetime and injected into the Dispatcher; nothing in
// this package dials at import time.
//
// Semantics the rest of the engine relies on: deltas on one channel arrive
// in order, deltas across channels have no ordering guarantee, delivery is
// at-least-once while connected. A disconnected Conn is not an error state,
// it just delivers nothing.
type Conn interface {
	// Connect establishes the connection. Idempotent.
	Connect() error
	// Disconnect tears the connection down. Idempotent.
	Disconnect()
	// IsConnected reports the current connection state.
	IsConnected() bool
	// Subscribe binds a handler to a channel. The returned function removes
	// exactly this binding.
	Subscribe(channel string, h Handler) (func(), error)
}
