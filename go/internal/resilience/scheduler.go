package resilience

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultInterval between fallback refetch checks. This is a backstop, not
// the primary consistency mechanism; correctness never depends on it
// firing promptly.
const DefaultInterval = 120 * time.Second

// Scheduler periodically forces a full refetch of the primary collections,
// but only while the push connection is down. While connected every tick
// is a no-op.
type Scheduler struct {
	clock     clockwork.Clock
	interval  time.Duration
	connected func() bool
	refresh   func(ctx context.Context) error
}

// NewScheduler creates a scheduler. connected reports the push connection
// state; refresh replaces the primary collections. An interval of 0 falls
// back to DefaultInterval.
func NewScheduler(clock clockwork.Clock, interval time.Duration, connected func() bool, refresh func(ctx context.Context) error) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		clock:     clock,
		interval:  interval,
		connected: connected,
		refresh:   refresh,
	}
}

// Run ticks until the context is cancelled
func (s *Scheduler) Run(ctx context.Context) {
	log.Info().Dur("interval", s.interval).Msg("resilience scheduler started")

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("resilience scheduler shutting down")
			return
		case <-ticker.Chan():
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if s.connected() {
		return
	}
	log.Info().Msg("push connection down; falling back to full refetch")
	if err := s.refresh(ctx); err != nil {
		log.Error().Err(err).Msg("fallback refetch failed")
	}
}
