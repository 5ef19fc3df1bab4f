package push

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Dispatcher fans deltas from a shared Conn out to many independent
// consumers. Each channel is bound on the Conn at most once; consumers come
// and go across view mount/unmount cycles without disturbing each other.
type Dispatcher struct {
	mu       sync.Mutex
	conn     Conn
	channels map[string]*channelState
}

type channelState struct {
	unbind func()

	subMu sync.Mutex
	subs  []*Subscription
}

// Subscription is one consumer's binding to a channel. The handler lives in
// a slot the dispatcher reads at delivery time, so replacing it (because
// closed-over state changed) never requires resubscribing and never drops
// deltas in between.
type Subscription struct {
	dispatcher *Dispatcher
	channel    string
	consumerID string

	mu      sync.Mutex
	handler Handler
	closed  bool
}

// NewDispatcher creates a dispatcher around the shared connection
func NewDispatcher(conn Conn) *Dispatcher {
	return &Dispatcher{
		conn:     conn,
		channels: make(map[string]*channelState),
	}
}

// Connect brings the underlying connection up and binds every channel that
// has consumers. Idempotent; channels already bound stay bound.
func (d *Dispatcher) Connect() error {
	if err := d.conn.Connect(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for channel, cs := range d.channels {
		if cs.unbind != nil {
			continue
		}
		d.bindLocked(channel, cs)
	}
	return nil
}

// Disconnect unbinds all channels and tears the connection down.
// Consumer subscriptions survive and are rebound on the next Connect.
func (d *Dispatcher) Disconnect() {
	d.mu.Lock()
	for _, cs := range d.channels {
		if cs.unbind != nil {
			cs.unbind()
			cs.unbind = nil
		}
	}
	d.mu.Unlock()

	d.conn.Disconnect()
}

// IsConnected reports the state of the underlying connection
func (d *Dispatcher) IsConnected() bool {
	return d.conn.IsConnected()
}

// Subscribe registers a consumer handler on a channel. Many consumers may
// subscribe to the same channel; each receives every delta. Subscribing
// while disconnected is fine, deltas simply start flowing after Connect.
func (d *Dispatcher) Subscribe(channel, consumerID string, h Handler) *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()

	cs, ok := d.channels[channel]
	if !ok {
		cs = &channelState{}
		d.channels[channel] = cs
	}

	sub := &Subscription{
		dispatcher: d,
		channel:    channel,
		consumerID: consumerID,
		handler:    h,
	}

	cs.subMu.Lock()
	// A consumer re-subscribing under the same ID replaces its old binding.
	for i, existing := range cs.subs {
		if existing.consumerID == consumerID {
			existing.markClosed()
			cs.subs[i] = sub
			cs.subMu.Unlock()
			return sub
		}
	}
	cs.subs = append(cs.subs, sub)
	cs.subMu.Unlock()

	if cs.unbind == nil && d.conn.IsConnected() {
		d.bindLocked(channel, cs)
	}

	log.Debug().
		Str("channel", channel).
		Str("consumer_id", consumerID).
		Msg("consumer subscribed")

	return sub
}

// bindLocked binds the channel on the Conn. Caller holds d.mu.
func (d *Dispatcher) bindLocked(channel string, cs *channelState) {
	unbind, err := d.conn.Subscribe(channel, func(data []byte) {
		cs.deliver(channel, data)
	})
	if err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("failed to bind channel")
		return
	}
	cs.unbind = unbind
}

// deliver fans one delta out to every live consumer in subscribe order
func (cs *channelState) deliver(channel string, data []byte) {
	cs.subMu.Lock()
	subs := make([]*Subscription, len(cs.subs))
	copy(subs, cs.subs)
	cs.subMu.Unlock()

	for _, sub := range subs {
		h := sub.currentHandler()
		if h == nil {
			continue
		}
		h(data)
	}
}

// SetHandler swaps the handler the dispatcher invokes for this consumer
func (s *Subscription) SetHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.handler = h
}

// Unsubscribe removes only this consumer's binding. Other consumers on the
// same channel are unaffected. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.handler = nil
	s.mu.Unlock()

	d := s.dispatcher
	d.mu.Lock()
	defer d.mu.Unlock()

	cs, ok := d.channels[s.channel]
	if !ok {
		return
	}
	cs.subMu.Lock()
	for i, sub := range cs.subs {
		if sub == s {
			cs.subs = append(cs.subs[:i], cs.subs[i+1:]...)
			break
		}
	}
	empty := len(cs.subs) == 0
	cs.subMu.Unlock()

	if empty {
		if cs.unbind != nil {
			cs.unbind()
		}
		delete(d.channels, s.channel)
	}

	log.Debug().
		Str("channel", s.channel).
		Str("consumer_id", s.consumerID).
		Msg("consumer unsubscribed")
}

func (s *Subscription) currentHandler() Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.handler
}

func (s *Subscription) markClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.handler = nil
}
