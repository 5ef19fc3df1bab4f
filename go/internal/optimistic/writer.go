package optimistic

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/matchpool/livesync/go/internal/cache"
	"github.com/matchpool/livesync/go/internal/models"
	"github.com/matchpool/livesync/go/internal/pending"
	"github.com/matchpool/livesync/go/internal/reconcile"
)

// ErrScheduleSettled is returned when a bet edit is attempted on a settled
// week. Settled is terminal for that schedule instance.
var ErrScheduleSettled = errors.New("schedule is settled")

// ErrNoSchedule is returned when no schedule is loaded yet
var ErrNoSchedule = errors.New("no schedule loaded")

// ErrUnknownMatch is returned when a score edit targets a match that is not
// in the current schedule
var ErrUnknownMatch = errors.New("match not in current schedule")

// MatchScore is the admin's score edit for one match. Nil fields are left
// untouched.
type MatchScore struct {
	ScoreTeamA  *int
	ScoreTeamB  *int
	IsCompleted *bool
}

// API is the collaborator mutation surface. No automatic retries; a failed
// mutation rolls the cache back and surfaces the error to the caller.
type API interface {
	UpdatePaymentStatus(ctx context.Context, userID, betID uuid.UUID, paid bool) error
	SaveBet(ctx context.Context, bet models.Bet) error
	DeleteBet(ctx context.Context, betID uuid.UUID) error
	SaveMatchResult(ctx context.Context, matchID uuid.UUID, score MatchScore) error
}

// Writer performs optimistic local mutations: write the cache and record a
// pending change first, then issue the network mutation. Confirmation
// clears the pending entry (via the push echo or the window); failure
// restores the pre-write snapshot, unless a newer pending change for the
// same field landed in the meantime.
type Writer struct {
	cache   *cache.Store
	tracker *pending.Tracker
	api     API
	clock   clockwork.Clock
}

// NewWriter wires the optimistic mutation entry points
func NewWriter(store *cache.Store, tracker *pending.Tracker, api API, clock clockwork.Clock) *Writer {
	return &Writer{cache: store, tracker: tracker, api: api, clock: clock}
}

// SetBetPaid toggles a participant's paid flag. The bet row and the
// denormalized payment record move together.
func (w *Writer) SetBetPaid(ctx context.Context, userID, betID uuid.UUID, paid bool) error {
	prevBet, hadBet := w.cache.BetByID(betID)
	prevRec, hadRec := w.cache.PaymentByUser(userID)

	status := models.PaymentStatusPending
	if paid {
		status = models.PaymentStatusPaid
	}

	w.cache.SetBetPaid(betID, paid)
	if hadRec {
		rec := *prevRec
		rec.Paid = paid
		rec.PaymentStatus = status
		w.cache.UpsertPayment(rec)
	}

	tok := w.tracker.Begin(betID, reconcile.FieldPaid, paid)

	if err := w.api.UpdatePaymentStatus(ctx, userID, betID, paid); err != nil {
		if w.tracker.StillCurrent(tok) {
			// Restore the snapshot, not the negation: a same-value write that
			// fails must leave the flag where it already was.
			if hadBet {
				w.cache.SetBetPaid(betID, prevBet.Paid)
			}
			if hadRec {
				w.cache.UpsertPayment(*prevRec)
			}
			w.tracker.Rollback(betID)
		}
		log.Warn().Err(err).
			Str("bet_id", betID.String()).
			Bool("paid", paid).
			Msg("payment mutation failed; rolled back")
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}

// SaveBet creates or updates a bet's predictions for the current week.
// Rejected locally once the week is settled.
func (w *Writer) SaveBet(ctx context.Context, bet models.Bet) error {
	schedule := w.cache.Schedule()
	if schedule == nil {
		return ErrNoSchedule
	}
	if !schedule.AcceptsBets(w.clock.Now()) {
		return ErrScheduleSettled
	}

	prev, existed := w.cache.BetByID(bet.ID)

	w.cache.UpsertBet(bet)
	tok := w.tracker.Begin(bet.ID, reconcile.FieldPredictions, bet.Fingerprint())

	if err := w.api.SaveBet(ctx, bet); err != nil {
		if w.tracker.StillCurrent(tok) {
			if existed {
				w.cache.UpsertBet(*prev)
			} else {
				w.cache.RemoveBet(bet.ID)
			}
			w.tracker.Rollback(bet.ID)
		}
		log.Warn().Err(err).
			Str("bet_id", bet.ID.String()).
			Msg("bet save failed; rolled back")
		return fmt.Errorf("save bet: %w", err)
	}
	return nil
}

// SetMatchScore applies an admin's score edit to a match. Each edited field
// gets its own pending entry so the push echo is suppressed per field.
// Failure restores the match's pre-edit snapshot, nil scores included.
func (w *Writer) SetMatchScore(ctx context.Context, matchID uuid.UUID, score MatchScore) error {
	schedule := w.cache.Schedule()
	if schedule == nil {
		return ErrNoSchedule
	}
	if schedule.IsSettled {
		return ErrScheduleSettled
	}

	var snapshot *models.Match
	for i := range schedule.Matches {
		if schedule.Matches[i].ID == matchID {
			snapshot = &schedule.Matches[i]
			break
		}
	}
	if snapshot == nil {
		return ErrUnknownMatch
	}

	w.cache.MergeMatch(matchID, cache.MatchPatch{
		ScoreTeamA:  score.ScoreTeamA,
		ScoreTeamB:  score.ScoreTeamB,
		IsCompleted: score.IsCompleted,
	})

	var tokens []pending.Token
	if score.ScoreTeamA != nil {
		tokens = append(tokens, w.tracker.Begin(matchID, reconcile.FieldScoreTeamA, *score.ScoreTeamA))
	}
	if score.ScoreTeamB != nil {
		tokens = append(tokens, w.tracker.Begin(matchID, reconcile.FieldScoreTeamB, *score.ScoreTeamB))
	}
	if score.IsCompleted != nil {
		tokens = append(tokens, w.tracker.Begin(matchID, reconcile.FieldIsCompleted, *score.IsCompleted))
	}

	if err := w.api.SaveMatchResult(ctx, matchID, score); err != nil {
		current := false
		for _, tok := range tokens {
			if w.tracker.StillCurrent(tok) {
				current = true
				break
			}
		}
		if current {
			w.cache.RestoreMatch(matchID, *snapshot)
			w.tracker.Rollback(matchID)
		}
		log.Warn().Err(err).
			Str("match_id", matchID.String()).
			Msg("score edit failed; rolled back")
		return fmt.Errorf("save match result: %w", err)
	}
	return nil
}

// DeleteBet removes a bet. List membership changes are explicit actions,
// so the rollback re-inserts the removed bet on failure.
func (w *Writer) DeleteBet(ctx context.Context, betID uuid.UUID) error {
	prev, existed := w.cache.BetByID(betID)
	if !existed {
		return nil
	}

	w.cache.RemoveBet(betID)

	if err := w.api.DeleteBet(ctx, betID); err != nil {
		w.cache.UpsertBet(*prev)
		log.Warn().Err(err).
			Str("bet_id", betID.String()).
			Msg("bet delete failed; rolled back")
		return fmt.Errorf("delete bet: %w", err)
	}
	return nil
}
