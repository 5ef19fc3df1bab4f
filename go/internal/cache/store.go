package cache

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/matchpool/livesync/go/internal/models"
)

// Collection names a tracked collection inside the store. Change listeners
// receive the collection that was touched so views can re-read selectively.
type Collection string

const (
	CollectionSchedule      Collection = "schedule"
	CollectionBets          Collection = "bets"
	CollectionPayments      Collection = "payments"
	CollectionAnnouncements Collection = "announcements"
	CollectionUsers         Collection = "users"
	CollectionSettings      Collection = "settings"
	CollectionSettledWeeks  Collection = "settledWeeks"
)

// Listener is invoked after a collection changed. Called outside the store
// lock, so listeners may re-read the store.
type Listener func(Collection)

// Store holds the authoritative in-memory dataset every view renders from.
// All mutations flow through reconciliation merges or optimistic local
// writes; readers get copies so nothing races with a later merge.
type Store struct {
	mu            sync.RWMutex
	schedule      *models.Schedule
	bets          []models.Bet
	payments      []models.PaymentRecord
	announcements []models.Announcement
	users         map[uuid.UUID]models.User
	settings      map[string]string
	settledWeeks  []models.SettledWeek

	listenerMu sync.RWMutex
	listeners  []Listener
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		users:    make(map[uuid.UUID]models.User),
		settings: make(map[string]string),
	}
}

// OnChange registers a listener for collection changes
func (s *Store) OnChange(l Listener) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Store) notify(c Collection) {
	s.listenerMu.RLock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.listenerMu.RUnlock()

	for _, l := range listeners {
		l(c)
	}
}

// MatchPatch is a field overlay for a single match. Nil fields leave the
// prior value untouched.
type MatchPatch struct {
	ScoreTeamA  *int
	ScoreTeamB  *int
	IsCompleted *bool
	Result      *models.MatchResult
}

// Schedule returns a copy of the current schedule, or nil if none is loaded
func (s *Store) Schedule() *models.Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSchedule(s.schedule)
}

// SetSchedule replaces the current schedule wholesale
func (s *Store) SetSchedule(schedule *models.Schedule) {
	s.mu.Lock()
	s.schedule = cloneSchedule(schedule)
	s.mu.Unlock()
	s.notify(CollectionSchedule)
}

// ClearSchedule drops the current schedule (e.g. the week was deleted)
func (s *Store) ClearSchedule() {
	s.mu.Lock()
	s.schedule = nil
	s.mu.Unlock()
	s.notify(CollectionSchedule)
}

// MergeMatch overlays patch fields onto the identified match. Returns false
// when the match is unknown or the patch changes nothing, in which case no
// change notification fires. Re-applying an identical patch is a no-op.
func (s *Store) MergeMatch(matchID uuid.UUID, patch MatchPatch) bool {
	s.mu.Lock()
	changed := false
	if s.schedule != nil {
		for i := range s.schedule.Matches {
			m := &s.schedule.Matches[i]
			if m.ID != matchID {
				continue
			}
			if patch.ScoreTeamA != nil && !intPtrEqual(m.ScoreTeamA, patch.ScoreTeamA) {
				v := *patch.ScoreTeamA
				m.ScoreTeamA = &v
				changed = true
			}
			if patch.ScoreTeamB != nil && !intPtrEqual(m.ScoreTeamB, patch.ScoreTeamB) {
				v := *patch.ScoreTeamB
				m.ScoreTeamB = &v
				changed = true
			}
			if patch.IsCompleted != nil && m.IsCompleted != *patch.IsCompleted {
				m.IsCompleted = *patch.IsCompleted
				changed = true
			}
			if patch.Result != nil && (m.Result == nil || *m.Result != *patch.Result) {
				v := *patch.Result
				m.Result = &v
				changed = true
			}
			break
		}
	}
	s.mu.Unlock()
	if changed {
		s.notify(CollectionSchedule)
	}
	return changed
}

// RestoreMatch overwrites the identified match's result fields wholesale
// from the given snapshot, including clearing them. Optimistic rollbacks
// need this because nil is a legitimate prior score.
func (s *Store) RestoreMatch(matchID uuid.UUID, snapshot models.Match) bool {
	s.mu.Lock()
	changed := false
	if s.schedule != nil {
		for i := range s.schedule.Matches {
			m := &s.schedule.Matches[i]
			if m.ID != matchID {
				continue
			}
			if !intPtrEqual(m.ScoreTeamA, snapshot.ScoreTeamA) {
				m.ScoreTeamA = cloneIntPtr(snapshot.ScoreTeamA)
				changed = true
			}
			if !intPtrEqual(m.ScoreTeamB, snapshot.ScoreTeamB) {
				m.ScoreTeamB = cloneIntPtr(snapshot.ScoreTeamB)
				changed = true
			}
			if m.IsCompleted != snapshot.IsCompleted {
				m.IsCompleted = snapshot.IsCompleted
				changed = true
			}
			break
		}
	}
	s.mu.Unlock()
	if changed {
		s.notify(CollectionSchedule)
	}
	return changed
}

// SettleSchedule marks the current schedule settled and records the actual
// total goals. Returns false if there is no schedule or it was already
// settled with the same total (duplicate settlement delta).
func (s *Store) SettleSchedule(actualTotalGoals int) bool {
	s.mu.Lock()
	changed := false
	if s.schedule != nil {
		if !s.schedule.IsSettled || !intPtrEqual(s.schedule.ActualTotalGoals, &actualTotalGoals) {
			s.schedule.IsSettled = true
			v := actualTotalGoals
			s.schedule.ActualTotalGoals = &v
			changed = true
		}
	}
	s.mu.Unlock()
	if changed {
		s.notify(CollectionSchedule)
	}
	return changed
}

// Bets returns a copy of the bet list
func (s *Store) Bets() []models.Bet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneBets(s.bets)
}

// BetByID returns a copy of the identified bet
func (s *Store) BetByID(id uuid.UUID) (*models.Bet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.bets {
		if s.bets[i].ID == id {
			return s.bets[i].Clone(), true
		}
	}
	return nil, false
}

// ReplaceBets swaps the bet list wholesale (targeted refetch landing)
func (s *Store) ReplaceBets(bets []models.Bet) {
	s.mu.Lock()
	s.bets = cloneBets(bets)
	s.mu.Unlock()
	s.notify(CollectionBets)
}

// UpsertBet inserts or replaces a bet by id
func (s *Store) UpsertBet(bet models.Bet) {
	s.mu.Lock()
	replaced := false
	for i := range s.bets {
		if s.bets[i].ID == bet.ID {
			s.bets[i] = *bet.Clone()
			replaced = true
			break
		}
	}
	if !replaced {
		s.bets = append(s.bets, *bet.Clone())
	}
	s.mu.Unlock()
	s.notify(CollectionBets)
}

// RemoveBet deletes a bet by id. Returns false when the bet was not present
// (duplicate delete delta), in which case no notification fires.
func (s *Store) RemoveBet(id uuid.UUID) bool {
	s.mu.Lock()
	removed := false
	for i := range s.bets {
		if s.bets[i].ID == id {
			s.bets = append(s.bets[:i], s.bets[i+1:]...)
			removed = true
			break
		}
	}
	s.mu.Unlock()
	if removed {
		s.notify(CollectionBets)
	}
	return removed
}

// SetBetPaid flips the paid flag on a bet. Returns false when the bet is
// unknown or already holds the value.
func (s *Store) SetBetPaid(id uuid.UUID, paid bool) bool {
	s.mu.Lock()
	changed := false
	for i := range s.bets {
		if s.bets[i].ID == id {
			if s.bets[i].Paid != paid {
				s.bets[i].Paid = paid
				changed = true
			}
			break
		}
	}
	s.mu.Unlock()
	if changed {
		s.notify(CollectionBets)
	}
	return changed
}

// Payments returns a copy of the payment records
func (s *Store) Payments() []models.PaymentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.PaymentRecord, len(s.payments))
	copy(out, s.payments)
	return out
}

// PaymentByUser returns a copy of the record for the given user
func (s *Store) PaymentByUser(userID uuid.UUID) (*models.PaymentRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.payments {
		if s.payments[i].UserID == userID {
			rec := s.payments[i]
			return &rec, true
		}
	}
	return nil, false
}

// PaymentByBet resolves a record through its secondary key
func (s *Store) PaymentByBet(betID uuid.UUID) (*models.PaymentRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.payments {
		if s.payments[i].BetID != nil && *s.payments[i].BetID == betID {
			rec := s.payments[i]
			return &rec, true
		}
	}
	return nil, false
}

// ReplacePayments swaps the payment records wholesale
func (s *Store) ReplacePayments(records []models.PaymentRecord) {
	s.mu.Lock()
	s.payments = make([]models.PaymentRecord, len(records))
	copy(s.payments, records)
	s.mu.Unlock()
	s.notify(CollectionPayments)
}

// UpsertPayment inserts or replaces a record keyed by user id
func (s *Store) UpsertPayment(rec models.PaymentRecord) {
	s.mu.Lock()
	replaced := false
	for i := range s.payments {
		if s.payments[i].UserID == rec.UserID {
			s.payments[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		s.payments = append(s.payments, rec)
	}
	s.mu.Unlock()
	s.notify(CollectionPayments)
}

// Announcements returns a copy of the announcements, newest first
func (s *Store) Announcements() []models.Announcement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Announcement, len(s.announcements))
	copy(out, s.announcements)
	return out
}

// ReplaceAnnouncements swaps the announcement list wholesale
func (s *Store) ReplaceAnnouncements(list []models.Announcement) {
	s.mu.Lock()
	s.announcements = make([]models.Announcement, len(list))
	copy(s.announcements, list)
	sortAnnouncements(s.announcements)
	s.mu.Unlock()
	s.notify(CollectionAnnouncements)
}

// UpsertAnnouncement inserts or replaces a single announcement, keeping
// recency order
func (s *Store) UpsertAnnouncement(a models.Announcement) {
	s.mu.Lock()
	replaced := false
	for i := range s.announcements {
		if s.announcements[i].ID == a.ID {
			s.announcements[i] = a
			replaced = true
			break
		}
	}
	if !replaced {
		s.announcements = append(s.announcements, a)
	}
	sortAnnouncements(s.announcements)
	s.mu.Unlock()
	s.notify(CollectionAnnouncements)
}

// RemoveAnnouncement deletes an announcement by id
func (s *Store) RemoveAnnouncement(id uuid.UUID) bool {
	s.mu.Lock()
	removed := false
	for i := range s.announcements {
		if s.announcements[i].ID == id {
			s.announcements = append(s.announcements[:i], s.announcements[i+1:]...)
			removed = true
			break
		}
	}
	s.mu.Unlock()
	if removed {
		s.notify(CollectionAnnouncements)
	}
	return removed
}

// Users returns a copy of the roster
func (s *Store) Users() []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// UpsertUser inserts or replaces a roster entry
func (s *Store) UpsertUser(u models.User) {
	s.mu.Lock()
	s.users[u.ID] = u
	s.mu.Unlock()
	s.notify(CollectionUsers)
}

// RemoveUser deletes a roster entry by id
func (s *Store) RemoveUser(id uuid.UUID) bool {
	s.mu.Lock()
	_, ok := s.users[id]
	if ok {
		delete(s.users, id)
	}
	s.mu.Unlock()
	if ok {
		s.notify(CollectionUsers)
	}
	return ok
}

// Setting returns a settings value
func (s *Store) Setting(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.settings[key]
	return v, ok
}

// SetSetting stores a settings value. Idempotent for identical values.
func (s *Store) SetSetting(key, value string) bool {
	s.mu.Lock()
	changed := s.settings[key] != value
	s.settings[key] = value
	s.mu.Unlock()
	if changed {
		s.notify(CollectionSettings)
	}
	return changed
}

// Settings returns a copy of the settings map
func (s *Store) Settings() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.settings))
	for k, v := range s.settings {
		out[k] = v
	}
	return out
}

// SettledWeeks returns a copy of the settled-results projection
func (s *Store) SettledWeeks() []models.SettledWeek {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SettledWeek, len(s.settledWeeks))
	copy(out, s.settledWeeks)
	return out
}

// ReplaceSettledWeeks swaps the settled-results projection wholesale,
// ordered newest week first regardless of API response order
func (s *Store) ReplaceSettledWeeks(weeks []models.SettledWeek) {
	s.mu.Lock()
	s.settledWeeks = make([]models.SettledWeek, len(weeks))
	copy(s.settledWeeks, weeks)
	sortSettledWeeks(s.settledWeeks)
	s.mu.Unlock()
	s.notify(CollectionSettledWeeks)
}

func sortSettledWeeks(list []models.SettledWeek) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Year != list[j].Year {
			return list[i].Year > list[j].Year
		}
		return list[i].WeekNumber > list[j].WeekNumber
	})
}

func sortAnnouncements(list []models.Announcement) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

func cloneSchedule(s *models.Schedule) *models.Schedule {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Matches = make([]models.Match, len(s.Matches))
	copy(cp.Matches, s.Matches)
	for i := range cp.Matches {
		cp.Matches[i].ScoreTeamA = cloneIntPtr(cp.Matches[i].ScoreTeamA)
		cp.Matches[i].ScoreTeamB = cloneIntPtr(cp.Matches[i].ScoreTeamB)
		if cp.Matches[i].Result != nil {
			v := *cp.Matches[i].Result
			cp.Matches[i].Result = &v
		}
	}
	cp.ActualTotalGoals = cloneIntPtr(s.ActualTotalGoals)
	return &cp
}

func cloneBets(bets []models.Bet) []models.Bet {
	out := make([]models.Bet, len(bets))
	for i := range bets {
		out[i] = *bets[i].Clone()
	}
	return out
}

func cloneIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
