package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchpool/livesync/go/internal/cache"
	"github.com/matchpool/livesync/go/internal/models"
	"github.com/matchpool/livesync/go/internal/pending"
	"github.com/matchpool/livesync/go/internal/push"
)

type fakeFetcher struct {
	mu                 sync.Mutex
	scheduleCalls      int
	betsCalls          int
	paymentsCalls      int
	announcementsCalls int
	settledCalls       int

	schedule      *models.Schedule
	bets          []models.Bet
	payments      []models.PaymentRecord
	announcements []models.Announcement
	settled       []models.SettledWeek
}

func (f *fakeFetcher) FetchCurrentSchedule(ctx context.Context) (*models.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduleCalls++
	return f.schedule, nil
}

func (f *fakeFetcher) FetchCurrentBets(ctx context.Context) ([]models.Bet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.betsCalls++
	return f.bets, nil
}

func (f *fakeFetcher) FetchPayments(ctx context.Context) ([]models.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paymentsCalls++
	return f.payments, nil
}

func (f *fakeFetcher) FetchAnnouncements(ctx context.Context) ([]models.Announcement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.announcementsCalls++
	return f.announcements, nil
}

func (f *fakeFetcher) FetchSettledWeeks(ctx context.Context) ([]models.SettledWeek, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settledCalls++
	return f.settled, nil
}

func (f *fakeFetcher) calls() (schedule, bets, payments, announcements, settled int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scheduleCalls, f.betsCalls, f.paymentsCalls, f.announcementsCalls, f.settledCalls
}

type fixture struct {
	store   *cache.Store
	tracker *pending.Tracker
	fetcher *fakeFetcher
	conn    *push.MemoryConn
	clock   *clockwork.FakeClock

	mu      sync.Mutex
	changes map[cache.Collection]int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:   cache.NewStore(),
		fetcher: &fakeFetcher{},
		conn:    push.NewMemoryConn(),
		clock:   clockwork.NewFakeClock(),
		changes: make(map[cache.Collection]int),
	}
	f.tracker = pending.NewTracker(f.clock, 5*time.Second)
	f.store.OnChange(func(c cache.Collection) {
		f.mu.Lock()
		f.changes[c]++
		f.mu.Unlock()
	})

	dispatcher := push.NewDispatcher(f.conn)
	require.NoError(t, dispatcher.Connect())

	registry := NewRegistry(f.store, f.tracker, f.fetcher, dispatcher)
	registry.Start(context.Background())
	t.Cleanup(registry.Stop)
	return f
}

func (f *fixture) publish(t *testing.T, channel string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	f.conn.Publish(channel, data)
}

func (f *fixture) changeCount(c cache.Collection) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.changes[c]
}

func weekSchedule(week, year int) *models.Schedule {
	return &models.Schedule{
		ID:         uuid.New(),
		WeekNumber: week,
		Year:       year,
		Matches: []models.Match{
			{ID: uuid.New(), TeamA: "Lions", TeamB: "Bears", StartTime: time.Now()},
			{ID: uuid.New(), TeamA: "Jets", TeamB: "Bills", StartTime: time.Now()},
		},
	}
}

// --- payments:update ---

func paymentFixture(t *testing.T) (*fixture, uuid.UUID, uuid.UUID) {
	f := newFixture(t)
	userID := uuid.New()
	betID := uuid.New()
	f.store.UpsertBet(models.Bet{ID: betID, OwnerRef: userID.String()})
	f.store.ReplacePayments([]models.PaymentRecord{
		{UserID: userID, BetID: &betID, Paid: false, PaymentStatus: models.PaymentStatusPending, HasBet: true},
	})
	return f, userID, betID
}

func TestPayments_EchoOfOwnWriteSuppressed(t *testing.T) {
	f, _, betID := paymentFixture(t)

	// Optimistic toggle already reflected locally.
	f.store.SetBetPaid(betID, true)
	f.tracker.Begin(betID, FieldPaid, true)
	before := f.changeCount(cache.CollectionPayments)

	f.clock.Advance(200 * time.Millisecond)
	f.publish(t, ChannelPaymentsUpdate, map[string]any{"betId": betID, "status": "paid"})

	// Nothing observable changed beyond the cleared pending entry.
	assert.Equal(t, before, f.changeCount(cache.CollectionPayments))
	_, ok := f.tracker.Pending(betID, FieldPaid)
	assert.False(t, ok)

	bet, _ := f.store.BetByID(betID)
	assert.True(t, bet.Paid)
}

func TestPayments_ConflictingDeltaWinsImmediately(t *testing.T) {
	f, userID, betID := paymentFixture(t)

	f.store.SetBetPaid(betID, true)
	f.tracker.Begin(betID, FieldPaid, true)

	f.clock.Advance(200 * time.Millisecond)
	f.publish(t, ChannelPaymentsUpdate, map[string]any{"betId": betID, "status": "pending"})

	bet, _ := f.store.BetByID(betID)
	assert.False(t, bet.Paid, "conflicting delta must override the optimistic guess")
	rec, _ := f.store.PaymentByUser(userID)
	assert.Equal(t, models.PaymentStatusPending, rec.PaymentStatus)
	_, ok := f.tracker.Pending(betID, FieldPaid)
	assert.False(t, ok)
}

func TestPayments_ByUserID(t *testing.T) {
	f, userID, betID := paymentFixture(t)

	f.publish(t, ChannelPaymentsUpdate, map[string]any{"userId": userID, "paid": true})

	rec, _ := f.store.PaymentByUser(userID)
	assert.True(t, rec.Paid)
	assert.Equal(t, models.PaymentStatusPaid, rec.PaymentStatus)
	bet, _ := f.store.BetByID(betID)
	assert.True(t, bet.Paid)
}

func TestPayments_UnknownRecordRefetchesPayments(t *testing.T) {
	f := newFixture(t)
	f.fetcher.payments = []models.PaymentRecord{{UserID: uuid.New()}}

	f.publish(t, ChannelPaymentsUpdate, map[string]any{"userId": uuid.New(), "paid": true})

	_, _, payments, _, _ := f.fetcher.calls()
	assert.Equal(t, 1, payments)
	assert.Len(t, f.store.Payments(), 1)
}

func TestPayments_BatchBetsReplace(t *testing.T) {
	f, userID, _ := paymentFixture(t)
	recalculated := []models.Bet{{ID: uuid.New(), OwnerRef: "x"}, {ID: uuid.New(), OwnerRef: "y"}}

	f.publish(t, ChannelPaymentsUpdate, map[string]any{"userId": userID, "paid": true, "bets": recalculated})

	assert.Len(t, f.store.Bets(), 2)
}

func TestPayments_MissingKeysIgnored(t *testing.T) {
	f, _, _ := paymentFixture(t)
	before := f.store.Payments()

	f.publish(t, ChannelPaymentsUpdate, map[string]any{"paid": true})

	assert.Equal(t, before, f.store.Payments())
}

// --- bets:update ---

func TestBets_CreateWithoutBetRefetchesOnlyBets(t *testing.T) {
	f := newFixture(t)
	f.store.SetSchedule(weekSchedule(10, 2026))
	f.store.ReplaceAnnouncements([]models.Announcement{{ID: uuid.New(), Title: "hi"}})
	scheduleBefore := f.store.Schedule()
	announcementsBefore := f.store.Announcements()
	paymentsBefore := f.store.Payments()
	f.fetcher.bets = []models.Bet{{ID: uuid.New(), OwnerRef: "new"}}

	f.publish(t, ChannelBetsUpdate, map[string]any{"action": "create"})

	schedule, bets, payments, announcements, settled := f.fetcher.calls()
	assert.Equal(t, 1, bets)
	assert.Zero(t, schedule)
	assert.Zero(t, payments)
	assert.Zero(t, announcements)
	assert.Zero(t, settled)

	assert.Len(t, f.store.Bets(), 1)
	assert.Equal(t, scheduleBefore, f.store.Schedule())
	assert.Equal(t, announcementsBefore, f.store.Announcements())
	assert.Equal(t, paymentsBefore, f.store.Payments())
}

func TestBets_UpsertEmbeddedBet(t *testing.T) {
	f := newFixture(t)
	bet := models.Bet{ID: uuid.New(), OwnerRef: "alice", TotalGoals: 12}

	f.publish(t, ChannelBetsUpdate, map[string]any{"action": "create", "bet": bet})
	f.publish(t, ChannelBetsUpdate, map[string]any{"action": "create", "bet": bet})

	assert.Len(t, f.store.Bets(), 1)
}

func TestBets_EchoOfOwnSaveSuppressed(t *testing.T) {
	f := newFixture(t)
	bet := models.Bet{ID: uuid.New(), OwnerRef: "alice", TotalGoals: 12}
	f.store.UpsertBet(bet)
	f.tracker.Begin(bet.ID, FieldPredictions, bet.Fingerprint())
	before := f.changeCount(cache.CollectionBets)

	f.publish(t, ChannelBetsUpdate, map[string]any{"action": "update", "bet": bet})

	assert.Equal(t, before, f.changeCount(cache.CollectionBets))
	_, ok := f.tracker.Pending(bet.ID, FieldPredictions)
	assert.False(t, ok)
}

func TestBets_Delete(t *testing.T) {
	f := newFixture(t)
	bet := models.Bet{ID: uuid.New(), OwnerRef: "bob"}
	f.store.UpsertBet(bet)

	f.publish(t, ChannelBetsUpdate, map[string]any{"action": "delete", "betId": bet.ID})
	assert.Empty(t, f.store.Bets())

	// Duplicate delivery is harmless.
	f.publish(t, ChannelBetsUpdate, map[string]any{"action": "delete", "betId": bet.ID})
	assert.Empty(t, f.store.Bets())
}

func TestBets_UnknownActionIgnored(t *testing.T) {
	f := newFixture(t)
	f.publish(t, ChannelBetsUpdate, map[string]any{"action": "explode"})
	assert.Empty(t, f.store.Bets())
}

// --- results:update ---

func TestResults_FieldMerge(t *testing.T) {
	f := newFixture(t)
	schedule := weekSchedule(10, 2026)
	f.store.SetSchedule(schedule)
	matchID := schedule.Matches[0].ID

	f.publish(t, ChannelResultsUpdate, map[string]any{
		"matchId": matchID, "scoreTeamA": 2, "scoreTeamB": 1, "isCompleted": true,
		"weekNumber": 10, "year": 2026,
	})

	got := f.store.Schedule().Matches[0]
	require.NotNil(t, got.ScoreTeamA)
	assert.Equal(t, 2, *got.ScoreTeamA)
	assert.Equal(t, 1, *got.ScoreTeamB)
	assert.True(t, got.IsCompleted)
}

func TestResults_DuplicateDeltaIdempotent(t *testing.T) {
	f := newFixture(t)
	schedule := weekSchedule(10, 2026)
	f.store.SetSchedule(schedule)
	matchID := schedule.Matches[0].ID
	delta := map[string]any{"matchId": matchID, "scoreTeamA": 2, "scoreTeamB": 1, "isCompleted": true}

	f.publish(t, ChannelResultsUpdate, delta)
	first := f.store.Schedule()
	notifications := f.changeCount(cache.CollectionSchedule)

	f.publish(t, ChannelResultsUpdate, delta)

	assert.Equal(t, first, f.store.Schedule())
	assert.Equal(t, notifications, f.changeCount(cache.CollectionSchedule))
}

func TestResults_DifferentWeekIsNoOp(t *testing.T) {
	f := newFixture(t)
	schedule := weekSchedule(10, 2026)
	f.store.SetSchedule(schedule)

	f.publish(t, ChannelResultsUpdate, map[string]any{
		"matchId": schedule.Matches[0].ID, "scoreTeamA": 5, "weekNumber": 9, "year": 2026,
	})

	assert.Nil(t, f.store.Schedule().Matches[0].ScoreTeamA)
}

func TestResults_MissingMatchIDIgnored(t *testing.T) {
	f := newFixture(t)
	schedule := weekSchedule(10, 2026)
	f.store.SetSchedule(schedule)
	before := f.store.Schedule()

	f.publish(t, ChannelResultsUpdate, map[string]any{"scoreTeamA": 5})

	assert.Equal(t, before, f.store.Schedule())
}

func TestResults_EmbeddedScheduleAndBetsReplace(t *testing.T) {
	f := newFixture(t)
	f.store.SetSchedule(weekSchedule(10, 2026))
	replacement := weekSchedule(10, 2026)
	recalculated := []models.Bet{{ID: uuid.New(), OwnerRef: "alice"}}

	f.publish(t, ChannelResultsUpdate, map[string]any{
		"matchId": replacement.Matches[0].ID, "schedule": replacement, "bets": recalculated,
	})

	assert.Equal(t, replacement.ID, f.store.Schedule().ID)
	assert.Len(t, f.store.Bets(), 1)
}

func TestResults_PendingScoreEditSuppressed(t *testing.T) {
	f := newFixture(t)
	schedule := weekSchedule(10, 2026)
	f.store.SetSchedule(schedule)
	matchID := schedule.Matches[0].ID

	// Admin already typed the score locally.
	f.store.MergeMatch(matchID, cache.MatchPatch{ScoreTeamA: intPtr(2)})
	f.tracker.Begin(matchID, FieldScoreTeamA, 2)
	notifications := f.changeCount(cache.CollectionSchedule)

	f.publish(t, ChannelResultsUpdate, map[string]any{"matchId": matchID, "scoreTeamA": 2})

	assert.Equal(t, notifications, f.changeCount(cache.CollectionSchedule))
	assert.Equal(t, 2, *f.store.Schedule().Matches[0].ScoreTeamA)
}

// --- results:deleted ---

func TestResultsDeleted_RefetchesSchedule(t *testing.T) {
	f := newFixture(t)
	f.store.SetSchedule(weekSchedule(10, 2026))
	f.fetcher.schedule = weekSchedule(10, 2026)

	f.publish(t, ChannelResultsDeleted, map[string]any{"weekNumber": 10, "year": 2026})

	schedule, _, _, _, _ := f.fetcher.calls()
	assert.Equal(t, 1, schedule)
	assert.Equal(t, f.fetcher.schedule.ID, f.store.Schedule().ID)
}

func TestResultsDeleted_OtherWeekIgnored(t *testing.T) {
	f := newFixture(t)
	f.store.SetSchedule(weekSchedule(10, 2026))

	f.publish(t, ChannelResultsDeleted, map[string]any{"weekNumber": 3, "year": 2026})

	schedule, _, _, _, _ := f.fetcher.calls()
	assert.Zero(t, schedule)
}

// --- schedule channels ---

func TestScheduleUpdated_Replaces(t *testing.T) {
	f := newFixture(t)
	f.store.SetSchedule(weekSchedule(10, 2026))
	next := weekSchedule(11, 2026)

	f.publish(t, ChannelScheduleUpdated, map[string]any{"schedule": next})

	assert.Equal(t, next.ID, f.store.Schedule().ID)
}

func TestScheduleCreated_PastWeekIgnored(t *testing.T) {
	f := newFixture(t)
	current := weekSchedule(10, 2026)
	f.store.SetSchedule(current)

	f.publish(t, ChannelScheduleCreated, map[string]any{"schedule": weekSchedule(9, 2026)})

	assert.Equal(t, current.ID, f.store.Schedule().ID)
}

func TestScheduleCreated_MalformedLogsOwnChannel(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	f.conn.Publish(ChannelScheduleCreated, []byte("{not json"))

	assert.Contains(t, buf.String(), ChannelScheduleCreated)
	assert.NotContains(t, buf.String(), ChannelScheduleUpdated)
}

func TestScheduleDeleted_CurrentWeekRefetches(t *testing.T) {
	f := newFixture(t)
	current := weekSchedule(10, 2026)
	f.store.SetSchedule(current)
	f.fetcher.schedule = weekSchedule(11, 2026)

	f.publish(t, ChannelScheduleDeleted, map[string]any{"scheduleId": current.ID})

	schedule, _, _, _, _ := f.fetcher.calls()
	assert.Equal(t, 1, schedule)
	assert.Equal(t, 11, f.store.Schedule().WeekNumber)
}

func TestScheduleDeleted_OtherWeekIgnored(t *testing.T) {
	f := newFixture(t)
	current := weekSchedule(10, 2026)
	f.store.SetSchedule(current)

	f.publish(t, ChannelScheduleDeleted, map[string]any{"weekNumber": 4, "year": 2025})

	assert.Equal(t, current.ID, f.store.Schedule().ID)
}

func TestScheduleDeleted_MissingIdentifiersIgnored(t *testing.T) {
	f := newFixture(t)
	current := weekSchedule(10, 2026)
	f.store.SetSchedule(current)

	f.publish(t, ChannelScheduleDeleted, map[string]any{})

	assert.Equal(t, current.ID, f.store.Schedule().ID)
}

// --- week:settled ---

func TestWeekSettled_MarksAndRefetchesOnce(t *testing.T) {
	f := newFixture(t)
	f.store.SetSchedule(weekSchedule(10, 2026))
	f.fetcher.settled = []models.SettledWeek{{WeekNumber: 10, Year: 2026, ActualTotalGoals: 27}}

	delta := map[string]any{"weekNumber": 10, "year": 2026, "actualTotalGoals": 27, "winnersCount": 2}
	f.publish(t, ChannelWeekSettled, delta)

	got := f.store.Schedule()
	assert.True(t, got.IsSettled)
	assert.Equal(t, 27, *got.ActualTotalGoals)
	assert.Len(t, f.store.SettledWeeks(), 1)

	// Duplicate settlement delta must not refetch again.
	f.publish(t, ChannelWeekSettled, delta)
	_, _, _, _, settled := f.fetcher.calls()
	assert.Equal(t, 1, settled)
}

func TestWeekSettled_OtherWeekIgnored(t *testing.T) {
	f := newFixture(t)
	f.store.SetSchedule(weekSchedule(10, 2026))

	f.publish(t, ChannelWeekSettled, map[string]any{"weekNumber": 9, "year": 2026, "actualTotalGoals": 30, "winnersCount": 1})

	assert.False(t, f.store.Schedule().IsSettled)
}

// --- announcement:update ---

func TestAnnouncement_ThreeForms(t *testing.T) {
	f := newFixture(t)
	a := models.Announcement{ID: uuid.New(), Title: "one", CreatedAt: time.Now()}
	b := models.Announcement{ID: uuid.New(), Title: "two", CreatedAt: time.Now().Add(time.Minute)}

	f.publish(t, ChannelAnnouncementUpdate, map[string]any{"announcements": []models.Announcement{a}})
	assert.Len(t, f.store.Announcements(), 1)

	f.publish(t, ChannelAnnouncementUpdate, map[string]any{"announcement": b})
	assert.Len(t, f.store.Announcements(), 2)
	assert.Equal(t, "two", f.store.Announcements()[0].Title)

	f.publish(t, ChannelAnnouncementUpdate, map[string]any{"deleted": a.ID})
	assert.Len(t, f.store.Announcements(), 1)

	// None of the three forms present: ignored.
	f.publish(t, ChannelAnnouncementUpdate, map[string]any{})
	assert.Len(t, f.store.Announcements(), 1)
}

// --- admin:update / settings:update ---

func TestAdmin_UpsertAndRemove(t *testing.T) {
	f := newFixture(t)
	u := models.User{ID: uuid.New(), Name: "dora"}

	f.publish(t, ChannelAdminUpdate, map[string]any{"user": u})
	assert.Len(t, f.store.Users(), 1)

	f.publish(t, ChannelAdminUpdate, map[string]any{"deleted": true, "userId": u.ID})
	assert.Empty(t, f.store.Users())
}

func TestSettings_KeyValue(t *testing.T) {
	f := newFixture(t)

	f.publish(t, ChannelSettingsUpdate, map[string]any{"key": "entryFee", "value": "5"})

	v, ok := f.store.Setting("entryFee")
	require.True(t, ok)
	assert.Equal(t, "5", v)
}

// --- malformed payloads ---

func TestMalformedPayloads_NeverMutateOrPanic(t *testing.T) {
	f := newFixture(t)
	schedule := weekSchedule(10, 2026)
	f.store.SetSchedule(schedule)
	// An empty results:deleted delta carries no week guard and is allowed to
	// refetch; serve back the same schedule so the observable state is stable.
	f.fetcher.schedule = schedule
	before := f.store.Schedule()

	for _, channel := range Channels() {
		f.conn.Publish(channel, []byte("{not json"))
		f.conn.Publish(channel, []byte("{}"))
	}

	assert.Equal(t, before, f.store.Schedule())
	assert.Empty(t, f.store.Bets())
}

// --- RefreshAll ---

func TestRefreshAll_PrimesPrimaryCollections(t *testing.T) {
	f := newFixture(t)
	f.fetcher.schedule = weekSchedule(10, 2026)
	f.fetcher.bets = []models.Bet{{ID: uuid.New()}}
	f.fetcher.payments = []models.PaymentRecord{{UserID: uuid.New()}}
	f.fetcher.announcements = []models.Announcement{{ID: uuid.New()}}

	registry := NewRegistry(f.store, f.tracker, f.fetcher, push.NewDispatcher(push.NewMemoryConn()))
	require.NoError(t, registry.RefreshAll(context.Background()))

	assert.NotNil(t, f.store.Schedule())
	assert.Len(t, f.store.Bets(), 1)
	assert.Len(t, f.store.Payments(), 1)
	assert.Len(t, f.store.Announcements(), 1)
}

func intPtr(v int) *int { return &v }
