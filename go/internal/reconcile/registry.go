package reconcile

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/matchpool/livesync/go/internal/cache"
	"github.com/matchpool/livesync/go/internal/models"
	"github.com/matchpool/livesync/go/internal/pending"
	"github.com/matchpool/livesync/go/internal/push"
)

// Field names used with the pending tracker. Optimistic writers begin
// pending changes under the same names so echoes of our own writes are
// recognized.
const (
	FieldPaid        = "paid"
	FieldPredictions = "predictions"
	FieldScoreTeamA  = "scoreTeamA"
	FieldScoreTeamB  = "scoreTeamB"
	FieldIsCompleted = "isCompleted"
)

// Registry owns one merge policy per push channel. Every delta ends up as
// exactly one of: field-merge, upsert, remove, targeted refetch, or no-op.
// Policies are idempotent, so at-least-once delivery never double-counts,
// and they tolerate any cross-channel arrival order.
type Registry struct {
	cache      *cache.Store
	tracker    *pending.Tracker
	fetcher    Fetcher
	dispatcher *push.Dispatcher

	ctx  context.Context
	subs []*push.Subscription
}

// NewRegistry wires the registry against the shared cache, tracker,
// refetch surface and push dispatcher.
func NewRegistry(store *cache.Store, tracker *pending.Tracker, fetcher Fetcher, dispatcher *push.Dispatcher) *Registry {
	return &Registry{
		cache:      store,
		tracker:    tracker,
		fetcher:    fetcher,
		dispatcher: dispatcher,
	}
}

// Start subscribes the registry to every channel. The context bounds the
// refetches issued by policies.
func (r *Registry) Start(ctx context.Context) {
	r.ctx = ctx

	policies := map[string]func([]byte){
		ChannelScheduleCreated:    func(data []byte) { r.applyScheduleUpsert(ChannelScheduleCreated, data) },
		ChannelScheduleUpdated:    func(data []byte) { r.applyScheduleUpsert(ChannelScheduleUpdated, data) },
		ChannelScheduleDeleted:    r.applyScheduleDeleted,
		ChannelBetsUpdate:         r.applyBets,
		ChannelResultsUpdate:      r.applyResults,
		ChannelResultsDeleted:     r.applyResultsDeleted,
		ChannelAnnouncementUpdate: r.applyAnnouncement,
		ChannelPaymentsUpdate:     r.applyPayments,
		ChannelAdminUpdate:        r.applyAdmin,
		ChannelWeekSettled:        r.applyWeekSettled,
		ChannelSettingsUpdate:     r.applySettings,
	}

	for _, channel := range Channels() {
		policy := policies[channel]
		ch := channel
		r.subs = append(r.subs, r.dispatcher.Subscribe(ch, "reconciler", func(data []byte) {
			policy(data)
		}))
	}

	log.Info().Int("channels", len(r.subs)).Msg("reconciliation registry started")
}

// Stop removes the registry's subscriptions
func (r *Registry) Stop() {
	for _, sub := range r.subs {
		sub.Unsubscribe()
	}
	r.subs = nil
}

// RefreshAll refetches the primary collections and replaces them wholesale.
// Used to prime the cache on startup and by the resilience scheduler while
// the push connection is down.
func (r *Registry) RefreshAll(ctx context.Context) error {
	schedule, err := r.fetcher.FetchCurrentSchedule(ctx)
	if err != nil {
		return err
	}
	r.cache.SetSchedule(schedule)

	bets, err := r.fetcher.FetchCurrentBets(ctx)
	if err != nil {
		return err
	}
	r.cache.ReplaceBets(bets)

	payments, err := r.fetcher.FetchPayments(ctx)
	if err != nil {
		return err
	}
	r.cache.ReplacePayments(payments)

	announcements, err := r.fetcher.FetchAnnouncements(ctx)
	if err != nil {
		return err
	}
	r.cache.ReplaceAnnouncements(announcements)
	return nil
}

// applyScheduleUpsert handles schedule:created and schedule:updated. A full
// schedule replaces the cached one unless it is for an older week than the
// one currently displayed.
func (r *Registry) applyScheduleUpsert(channel string, data []byte) {
	var delta ScheduleDelta
	if err := json.Unmarshal(data, &delta); err != nil || delta.Schedule == nil {
		r.dropMalformed(channel, err)
		return
	}

	if current := r.cache.Schedule(); current != nil && weekBefore(delta.Schedule.Year, delta.Schedule.WeekNumber, current.Year, current.WeekNumber) {
		log.Debug().
			Int("week", delta.Schedule.WeekNumber).
			Int("year", delta.Schedule.Year).
			Msg("schedule delta for a past week; ignoring")
		return
	}
	r.cache.SetSchedule(delta.Schedule)
}

// applyScheduleDeleted handles schedule:deleted. Deleting the displayed
// week leaves the current week unknown, so the policy falls back to a
// targeted refetch of the schedule.
func (r *Registry) applyScheduleDeleted(data []byte) {
	var delta ScheduleDeletedDelta
	if err := json.Unmarshal(data, &delta); err != nil {
		r.dropMalformed(ChannelScheduleDeleted, err)
		return
	}
	if delta.ScheduleID == nil && (delta.WeekNumber == nil || delta.Year == nil) {
		r.dropMalformed(ChannelScheduleDeleted, nil)
		return
	}

	current := r.cache.Schedule()
	if current == nil {
		return
	}
	matches := (delta.ScheduleID != nil && *delta.ScheduleID == current.ID) ||
		(delta.WeekNumber != nil && delta.Year != nil && current.IsWeek(*delta.WeekNumber, *delta.Year))
	if !matches {
		return
	}

	r.cache.ClearSchedule()
	r.refetchSchedule()
}

// applyBets handles bets:update. Create/update with an embedded bet upserts
// it; without one the policy only knows "something changed" and refetches
// the bet collection, nothing else.
func (r *Registry) applyBets(data []byte) {
	var delta BetsDelta
	if err := json.Unmarshal(data, &delta); err != nil {
		r.dropMalformed(ChannelBetsUpdate, err)
		return
	}

	switch delta.Action {
	case BetActionDelete:
		if delta.BetID == nil {
			r.dropMalformed(ChannelBetsUpdate, nil)
			return
		}
		r.cache.RemoveBet(*delta.BetID)

	case BetActionCreate, BetActionUpdate:
		if delta.Bet == nil {
			r.refetchBets()
			return
		}
		if r.tracker.Confirm(delta.Bet.ID, FieldPredictions, delta.Bet.Fingerprint()) {
			// Echo of our own optimistic save; already reflected locally.
			return
		}
		r.cache.UpsertBet(*delta.Bet)

	default:
		r.dropMalformed(ChannelBetsUpdate, nil)
	}
}

// applyResults handles results:update, the busiest channel. Field overlay
// per match, guarded by week/year, with per-field pending suppression for
// the admin's own optimistic score edits. An embedded full schedule or
// recalculated bet list replaces the respective collection wholesale.
func (r *Registry) applyResults(data []byte) {
	var delta ResultsDelta
	if err := json.Unmarshal(data, &delta); err != nil || delta.MatchID == nil {
		r.dropMalformed(ChannelResultsUpdate, err)
		return
	}

	if delta.WeekNumber != nil && delta.Year != nil {
		if current := r.cache.Schedule(); current != nil && !current.IsWeek(*delta.WeekNumber, *delta.Year) {
			log.Debug().
				Int("week", *delta.WeekNumber).
				Int("year", *delta.Year).
				Msg("results delta for a different week; ignoring")
			return
		}
	}

	if delta.Schedule != nil {
		r.cache.SetSchedule(delta.Schedule)
	} else {
		patch := cache.MatchPatch{Result: delta.Result}
		if delta.ScoreTeamA != nil && !r.tracker.Confirm(*delta.MatchID, FieldScoreTeamA, *delta.ScoreTeamA) {
			patch.ScoreTeamA = delta.ScoreTeamA
		}
		if delta.ScoreTeamB != nil && !r.tracker.Confirm(*delta.MatchID, FieldScoreTeamB, *delta.ScoreTeamB) {
			patch.ScoreTeamB = delta.ScoreTeamB
		}
		if delta.IsCompleted != nil && !r.tracker.Confirm(*delta.MatchID, FieldIsCompleted, *delta.IsCompleted) {
			patch.IsCompleted = delta.IsCompleted
		}
		r.cache.MergeMatch(*delta.MatchID, patch)
	}

	if delta.Bets != nil {
		r.cache.ReplaceBets(delta.Bets)
	}
}

// applyResultsDeleted handles results:deleted. Cleared scores cannot be
// reconstructed from the delta, so refetch the schedule.
func (r *Registry) applyResultsDeleted(data []byte) {
	var delta ResultsDeletedDelta
	if err := json.Unmarshal(data, &delta); err != nil {
		r.dropMalformed(ChannelResultsDeleted, err)
		return
	}

	if delta.WeekNumber != nil && delta.Year != nil {
		if current := r.cache.Schedule(); current != nil && !current.IsWeek(*delta.WeekNumber, *delta.Year) {
			return
		}
	}
	r.refetchSchedule()
}

// applyAnnouncement handles announcement:update in its three forms
func (r *Registry) applyAnnouncement(data []byte) {
	var delta AnnouncementDelta
	if err := json.Unmarshal(data, &delta); err != nil {
		r.dropMalformed(ChannelAnnouncementUpdate, err)
		return
	}

	switch {
	case delta.Announcements != nil:
		r.cache.ReplaceAnnouncements(delta.Announcements)
	case delta.Announcement != nil:
		r.cache.UpsertAnnouncement(*delta.Announcement)
	case delta.Deleted != nil:
		r.cache.RemoveAnnouncement(*delta.Deleted)
	default:
		r.dropMalformed(ChannelAnnouncementUpdate, nil)
	}
}

// applyPayments handles payments:update. The paid flag is the one field a
// user toggles optimistically, so the tracker is consulted before any
// merge; a suppressed delta changes nothing observable.
func (r *Registry) applyPayments(data []byte) {
	var delta PaymentsDelta
	if err := json.Unmarshal(data, &delta); err != nil {
		r.dropMalformed(ChannelPaymentsUpdate, err)
		return
	}

	if delta.Bets != nil {
		r.cache.ReplaceBets(delta.Bets)
	}

	if delta.UserID == nil && delta.BetID == nil {
		if delta.Bets == nil {
			r.dropMalformed(ChannelPaymentsUpdate, nil)
		}
		return
	}

	var rec *models.PaymentRecord
	var found bool
	if delta.UserID != nil {
		rec, found = r.cache.PaymentByUser(*delta.UserID)
	} else {
		rec, found = r.cache.PaymentByBet(*delta.BetID)
	}
	if !found {
		// Record not in the cache yet; only the payments collection is stale.
		r.refetchPayments()
		return
	}

	paid, status, ok := paidFromDelta(&delta)
	if !ok {
		return
	}

	if rec.BetID != nil && r.tracker.Confirm(*rec.BetID, FieldPaid, paid) {
		// Echo of our own optimistic toggle; skip the merge and its
		// notification entirely.
		return
	}

	rec.Paid = paid
	rec.PaymentStatus = status
	r.cache.UpsertPayment(*rec)
	if rec.BetID != nil {
		r.cache.SetBetPaid(*rec.BetID, paid)
	}
}

// applyAdmin handles admin:update roster changes
func (r *Registry) applyAdmin(data []byte) {
	var delta AdminDelta
	if err := json.Unmarshal(data, &delta); err != nil {
		r.dropMalformed(ChannelAdminUpdate, err)
		return
	}

	switch {
	case delta.User != nil:
		r.cache.UpsertUser(*delta.User)
	case delta.Deleted != nil && *delta.Deleted && delta.UserID != nil:
		r.cache.RemoveUser(*delta.UserID)
	default:
		r.dropMalformed(ChannelAdminUpdate, nil)
	}
}

// applyWeekSettled marks the displayed schedule settled and triggers a
// one-time refetch of the settled-results projection. Duplicate settlement
// deltas change nothing and skip the refetch.
func (r *Registry) applyWeekSettled(data []byte) {
	var delta WeekSettledDelta
	if err := json.Unmarshal(data, &delta); err != nil {
		r.dropMalformed(ChannelWeekSettled, err)
		return
	}

	current := r.cache.Schedule()
	if current == nil || !current.IsWeek(delta.WeekNumber, delta.Year) {
		return
	}
	if !r.cache.SettleSchedule(delta.ActualTotalGoals) {
		return
	}

	log.Info().
		Int("week", delta.WeekNumber).
		Int("year", delta.Year).
		Int("winners", delta.WinnersCount).
		Msg("week settled")
	r.refetchSettledWeeks()
}

// applySettings handles settings:update key/value changes
func (r *Registry) applySettings(data []byte) {
	var delta SettingsDelta
	if err := json.Unmarshal(data, &delta); err != nil || delta.Key == "" {
		r.dropMalformed(ChannelSettingsUpdate, err)
		return
	}
	r.cache.SetSetting(delta.Key, delta.Value)
}

func (r *Registry) refetchSchedule() {
	schedule, err := r.fetcher.FetchCurrentSchedule(r.ctx)
	if err != nil {
		log.Error().Err(err).Msg("schedule refetch failed")
		return
	}
	r.cache.SetSchedule(schedule)
}

func (r *Registry) refetchBets() {
	bets, err := r.fetcher.FetchCurrentBets(r.ctx)
	if err != nil {
		log.Error().Err(err).Msg("bets refetch failed")
		return
	}
	r.cache.ReplaceBets(bets)
}

func (r *Registry) refetchPayments() {
	payments, err := r.fetcher.FetchPayments(r.ctx)
	if err != nil {
		log.Error().Err(err).Msg("payments refetch failed")
		return
	}
	r.cache.ReplacePayments(payments)
}

func (r *Registry) refetchSettledWeeks() {
	weeks, err := r.fetcher.FetchSettledWeeks(r.ctx)
	if err != nil {
		log.Error().Err(err).Msg("settled weeks refetch failed")
		return
	}
	r.cache.ReplaceSettledWeeks(weeks)
}

// dropMalformed logs and ignores a delta that cannot be applied. Malformed
// input never mutates the cache and never crashes the consumer.
func (r *Registry) dropMalformed(channel string, err error) {
	log.Warn().Err(err).Str("channel", channel).Msg("dropping malformed delta")
}

// weekBefore reports whether week a is strictly earlier than week b
func weekBefore(yearA, weekA, yearB, weekB int) bool {
	if yearA != yearB {
		return yearA < yearB
	}
	return weekA < weekB
}

// paidFromDelta normalizes the two redundant wire encodings of the paid
// state. Status wins when both are present.
func paidFromDelta(d *PaymentsDelta) (bool, models.PaymentStatus, bool) {
	if d.Status != nil {
		return *d.Status == models.PaymentStatusPaid, *d.Status, true
	}
	if d.Paid != nil {
		status := models.PaymentStatusPending
		if *d.Paid {
			status = models.PaymentStatusPaid
		}
		return *d.Paid, status, true
	}
	return false, "", false
}
