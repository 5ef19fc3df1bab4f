package models

import (
	"github.com/google/uuid"
)

// SettledWinner is one winning participant in a settled week
type SettledWinner struct {
	OwnerRef string `json:"ownerRef"`
	Points   int    `json:"points"`
}

// SettledWeek is the server-computed projection of a finished week. It is a
// separate collection from the live Schedule so the "current week" and
// "most recently settled week" views can diverge right after settlement.
type SettledWeek struct {
	ScheduleID       uuid.UUID       `json:"scheduleId"`
	WeekNumber       int             `json:"weekNumber"`
	Year             int             `json:"year"`
	ActualTotalGoals int             `json:"actualTotalGoals"`
	WinnersCount     int             `json:"winnersCount"`
	Winners          []SettledWinner `json:"winners,omitempty"`
}
