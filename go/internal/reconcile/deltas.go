package reconcile

import (
	"github.com/google/uuid"
	"github.com/matchpool/livesync/go/internal/models"
)

// Channel names of the push taxonomy. One reconciliation policy exists per
// channel; deltas on one channel arrive in order, across channels they
// don't.
const (
	ChannelScheduleCreated    = "schedule:created"
	ChannelScheduleUpdated    = "schedule:updated"
	ChannelScheduleDeleted    = "schedule:deleted"
	ChannelBetsUpdate         = "bets:update"
	ChannelResultsUpdate      = "results:update"
	ChannelResultsDeleted     = "results:deleted"
	ChannelAnnouncementUpdate = "announcement:update"
	ChannelPaymentsUpdate     = "payments:update"
	ChannelAdminUpdate        = "admin:update"
	ChannelWeekSettled        = "week:settled"
	ChannelSettingsUpdate     = "settings:update"
)

// Channels lists every channel the registry binds
func Channels() []string {
	return []string{
		ChannelScheduleCreated,
		ChannelScheduleUpdated,
		ChannelScheduleDeleted,
		ChannelBetsUpdate,
		ChannelResultsUpdate,
		ChannelResultsDeleted,
		ChannelAnnouncementUpdate,
		ChannelPaymentsUpdate,
		ChannelAdminUpdate,
		ChannelWeekSettled,
		ChannelSettingsUpdate,
	}
}

// BetAction discriminates bets:update deltas
type BetAction string

const (
	BetActionCreate BetAction = "create"
	BetActionUpdate BetAction = "update"
	BetActionDelete BetAction = "delete"
)

// ScheduleDelta is the payload for schedule:created and schedule:updated
type ScheduleDelta struct {
	Schedule *models.Schedule `json:"schedule"`
}

// ScheduleDeletedDelta is the payload for schedule:deleted. The schedule is
// identified either by id or by week/year.
type ScheduleDeletedDelta struct {
	ScheduleID *uuid.UUID `json:"scheduleId,omitempty"`
	WeekNumber *int       `json:"weekNumber,omitempty"`
	Year       *int       `json:"year,omitempty"`
}

// BetsDelta is the payload for bets:update. Bet may be absent, in which
// case the delta only says "something changed" and forces a targeted
// refetch of the bet collection.
type BetsDelta struct {
	Action     BetAction   `json:"action"`
	Bet        *models.Bet `json:"bet,omitempty"`
	BetID      *uuid.UUID  `json:"betId,omitempty"`
	IsGuestBet *bool       `json:"isGuestBet,omitempty"`
}

// ResultsDelta is the payload for results:update. Everything beyond MatchID
// is optional; unset fields preserve prior cache values.
type ResultsDelta struct {
	MatchID     *uuid.UUID          `json:"matchId,omitempty"`
	ScoreTeamA  *int                `json:"scoreTeamA,omitempty"`
	ScoreTeamB  *int                `json:"scoreTeamB,omitempty"`
	IsCompleted *bool               `json:"isCompleted,omitempty"`
	Result      *models.MatchResult `json:"result,omitempty"`
	WeekNumber  *int                `json:"weekNumber,omitempty"`
	Year        *int                `json:"year,omitempty"`
	Schedule    *models.Schedule    `json:"schedule,omitempty"`
	Bets        []models.Bet        `json:"bets,omitempty"`
}

// ResultsDeletedDelta is the payload for results:deleted
type ResultsDeletedDelta struct {
	WeekNumber *int `json:"weekNumber,omitempty"`
	Year       *int `json:"year,omitempty"`
}

// AnnouncementDelta is the payload for announcement:update. Exactly one of
// the three forms is expected.
type AnnouncementDelta struct {
	Announcements []models.Announcement `json:"announcements,omitempty"`
	Announcement  *models.Announcement  `json:"announcement,omitempty"`
	Deleted       *uuid.UUID            `json:"deleted,omitempty"`
}

// PaymentsDelta is the payload for payments:update. The record is addressed
// by userId or by betId.
type PaymentsDelta struct {
	UserID *uuid.UUID            `json:"userId,omitempty"`
	BetID  *uuid.UUID            `json:"betId,omitempty"`
	Paid   *bool                 `json:"paid,omitempty"`
	Status *models.PaymentStatus `json:"status,omitempty"`
	Bets   []models.Bet          `json:"bets,omitempty"`
}

// AdminDelta is the payload for admin:update, either a full user upsert or
// a deletion marker.
type AdminDelta struct {
	User    *models.User `json:"user,omitempty"`
	Deleted *bool        `json:"deleted,omitempty"`
	UserID  *uuid.UUID   `json:"userId,omitempty"`
}

// WeekSettledDelta is the payload for week:settled. All fields required.
type WeekSettledDelta struct {
	WeekNumber       int `json:"weekNumber"`
	Year             int `json:"year"`
	ActualTotalGoals int `json:"actualTotalGoals"`
	WinnersCount     int `json:"winnersCount"`
}

// SettingsDelta is the payload for settings:update
type SettingsDelta struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
