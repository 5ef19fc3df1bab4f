package models

import (
	"time"

	"github.com/google/uuid"
)

// MatchResult represents the outcome of a match from the pool's point of view
type MatchResult string

const (
	MatchResultTeamA MatchResult = "teamA"
	MatchResultTeamB MatchResult = "teamB"
	MatchResultDraw  MatchResult = "draw"
)

// ScheduleState represents the lifecycle phase of a weekly schedule
type ScheduleState string

const (
	ScheduleStateUpcoming   ScheduleState = "upcoming"
	ScheduleStateInProgress ScheduleState = "inProgress"
	ScheduleStateSettled    ScheduleState = "settled"
)

// Match is a single fixture inside a weekly schedule. Score fields are
// pointers because a match that has not been played has no score at all,
// which is different from 0:0.
type Match struct {
	ID          uuid.UUID    `json:"id"`
	TeamA       string       `json:"teamA"`
	TeamB       string       `json:"teamB"`
	ScoreTeamA  *int         `json:"scoreTeamA,omitempty"`
	ScoreTeamB  *int         `json:"scoreTeamB,omitempty"`
	IsCompleted bool         `json:"isCompleted"`
	Result      *MatchResult `json:"result,omitempty"`
	StartTime   time.Time    `json:"startTime"`
}

// Outcome derives the match result from the recorded scores. It falls back
// to the explicit Result field when scores are absent (some feeds only send
// the verdict). Returns false when no outcome can be determined yet.
func (m *Match) Outcome() (MatchResult, bool) {
	if m.ScoreTeamA != nil && m.ScoreTeamB != nil {
		switch {
		case *m.ScoreTeamA > *m.ScoreTeamB:
			return MatchResultTeamA, true
		case *m.ScoreTeamA < *m.ScoreTeamB:
			return MatchResultTeamB, true
		default:
			return MatchResultDraw, true
		}
	}
	if m.Result != nil {
		return *m.Result, true
	}
	return "", false
}

// Schedule represents one week of matches for the pool
type Schedule struct {
	ID               uuid.UUID `json:"id"`
	WeekNumber       int       `json:"weekNumber"`
	Year             int       `json:"year"`
	Matches          []Match   `json:"matches"`
	IsSettled        bool      `json:"isSettled"`
	ActualTotalGoals *int      `json:"actualTotalGoals,omitempty"`
}

// State reports the schedule's lifecycle phase at the given time.
// upcoming until the first match kicks off, inProgress until the admin
// settles the week, settled thereafter.
func (s *Schedule) State(now time.Time) ScheduleState {
	if s.IsSettled {
		return ScheduleStateSettled
	}
	for i := range s.Matches {
		if !s.Matches[i].StartTime.After(now) {
			return ScheduleStateInProgress
		}
	}
	return ScheduleStateUpcoming
}

// AcceptsBets reports whether bet edits are still allowed. Settled schedules
// are terminal.
func (s *Schedule) AcceptsBets(now time.Time) bool {
	return s.State(now) != ScheduleStateSettled
}

// IsWeek reports whether the schedule is for the given week/year pair.
func (s *Schedule) IsWeek(weekNumber, year int) bool {
	return s.WeekNumber == weekNumber && s.Year == year
}
