package push

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSConfig holds configuration for the NATS push connection
type NATSConfig struct {
	URL           string
	SubjectPrefix string // e.g. "pool.events"
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns default NATS connection configuration
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "pool.events",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// NATSConn adapts a core NATS connection to the Conn interface. Core NATS
// gives exactly the transport semantics the engine assumes: per-subject
// FIFO, no cross-subject ordering, fire-and-forget while disconnected.
type NATSConn struct {
	config NATSConfig

	mu sync.Mutex
	nc *nats.Conn
}

// NewNATSConn creates the adapter without dialing; Connect dials.
func NewNATSConn(config NATSConfig) *NATSConn {
	return &NATSConn{config: config}
}

// Connect dials the NATS server. Idempotent.
func (c *NATSConn) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nc != nil && !c.nc.IsClosed() {
		return nil
	}

	opts := []nats.Option{
		nats.MaxReconnects(c.config.MaxReconnects),
		nats.ReconnectWait(c.config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(c.config.URL, opts...)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	c.nc = nc

	log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS connected")
	return nil
}

// Disconnect closes the connection. Idempotent.
func (c *NATSConn) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nc != nil {
		c.nc.Close()
		c.nc = nil
	}
}

// IsConnected reports whether the NATS connection is currently up
func (c *NATSConn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nc != nil && c.nc.IsConnected()
}

// Subscribe binds a handler to the subject mapped from the channel name
func (c *NATSConn) Subscribe(channel string, h Handler) (func(), error) {
	c.mu.Lock()
	nc := c.nc
	c.mu.Unlock()

	if nc == nil {
		return nil, fmt.Errorf("subscribe %s: not connected", channel)
	}

	subject := c.subject(channel)
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		h(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	return func() {
		if err := sub.Unsubscribe(); err != nil {
			log.Debug().Err(err).Str("subject", subject).Msg("unsubscribe failed")
		}
	}, nil
}

func (c *NATSConn) subject(channel string) string {
	if c.config.SubjectPrefix == "" {
		return channel
	}
	return c.config.SubjectPrefix + "." + channel
}
