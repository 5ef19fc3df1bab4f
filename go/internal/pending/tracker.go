package pending

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultWindow is the suppression window W. The exact value carries no
// deep rationale; it only needs to comfortably cover a mutation round trip.
const DefaultWindow = 5 * time.Second

type key struct {
	entityID uuid.UUID
	field    string
}

type entry struct {
	value     any
	createdAt time.Time
}

// Token identifies one optimistic write so a late mutation response can
// check whether it is still the current pending change before rolling back.
type Token struct {
	EntityID  uuid.UUID
	Field     string
	Value     any
	CreatedAt time.Time
}

// Tracker records optimistic local writes and decides whether an incoming
// delta is the echo of our own write (suppress) or a genuine external
// change (apply). Entries expire lazily on next lookup after the window.
//
// Values must be comparable; tracked fields are booleans, counts and enum
// strings.
type Tracker struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	window  time.Duration
	entries map[key]entry
}

// NewTracker creates a tracker with the given suppression window.
// A window of 0 falls back to DefaultWindow.
func NewTracker(clock clockwork.Clock, window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{
		clock:   clock,
		window:  window,
		entries: make(map[key]entry),
	}
}

// Begin records an optimistic write of value to the entity's field,
// replacing any prior pending change for the same field.
func (t *Tracker) Begin(entityID uuid.UUID, field string, value any) Token {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	t.entries[key{entityID, field}] = entry{value: value, createdAt: now}

	log.Debug().
		Str("entity_id", entityID.String()).
		Str("field", field).
		Interface("value", value).
		Msg("pending change recorded")

	return Token{EntityID: entityID, Field: field, Value: value, CreatedAt: now}
}

// Confirm reports whether an incoming delta value for the entity's field
// should be suppressed. True means the delta matches an in-flight pending
// change inside the window and is already reflected locally. A delta with a
// different value always wins immediately, the server is authoritative; the
// pending entry is cleared either way.
func (t *Tracker) Confirm(entityID uuid.UUID, field string, value any) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{entityID, field}
	e, ok := t.entries[k]
	if !ok {
		return false
	}
	delete(t.entries, k)

	if t.clock.Now().Sub(e.createdAt) >= t.window {
		// Entry outlived the window; treat the delta as external.
		return false
	}
	if e.value != value {
		log.Debug().
			Str("entity_id", entityID.String()).
			Str("field", field).
			Interface("pending", e.value).
			Interface("incoming", value).
			Msg("conflicting delta overrides pending change")
		return false
	}
	return true
}

// Rollback drops every pending entry for the entity, used when the
// optimistic mutation failed and the cache was restored.
func (t *Tracker) Rollback(entityID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for k := range t.entries {
		if k.entityID == entityID {
			delete(t.entries, k)
		}
	}
}

// StillCurrent reports whether the token's write is still the latest
// pending change for its field. A stale mutation response whose token no
// longer matches must not roll back the newer value.
func (t *Tracker) StillCurrent(tok Token) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key{tok.EntityID, tok.Field}]
	if !ok {
		return false
	}
	return e.value == tok.Value && e.createdAt.Equal(tok.CreatedAt)
}

// Pending returns the in-flight value for the entity's field, expiring the
// entry lazily when it outlived the window.
func (t *Tracker) Pending(entityID uuid.UUID, field string) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{entityID, field}
	e, ok := t.entries[k]
	if !ok {
		return nil, false
	}
	if t.clock.Now().Sub(e.createdAt) >= t.window {
		delete(t.entries, k)
		return nil, false
	}
	return e.value, true
}
