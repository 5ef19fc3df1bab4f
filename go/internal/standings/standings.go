package standings

import (
	"sort"

	"github.com/matchpool/livesync/go/internal/models"
)

// Row is one participant's position in the live standings
type Row struct {
	BetID           string `json:"betId"`
	OwnerRef        string `json:"ownerRef"`
	IsGuestBet      bool   `json:"isGuestBet"`
	Points          int    `json:"points"`
	GoalsDifference int    `json:"goalsDifference"`
}

// Table ranks every bet against the schedule's completed matches: one point
// per correct pick, sorted by points descending with the total-goals
// difference as ascending tie-break. Recomputed on every relevant cache
// change rather than cached, it is cheap and purely derived.
func Table(schedule *models.Schedule, bets []models.Bet) []Row {
	if schedule == nil {
		return nil
	}

	actualGoals := 0
	if schedule.ActualTotalGoals != nil {
		actualGoals = *schedule.ActualTotalGoals
	}

	rows := make([]Row, 0, len(bets))
	for i := range bets {
		bet := &bets[i]
		points := 0
		for j := range schedule.Matches {
			m := &schedule.Matches[j]
			if !m.IsCompleted {
				continue
			}
			outcome, ok := m.Outcome()
			if !ok {
				continue
			}
			if pick, ok := bet.Predictions[m.ID]; ok && pick == outcome {
				points++
			}
		}
		diff := bet.TotalGoals - actualGoals
		if diff < 0 {
			diff = -diff
		}
		rows = append(rows, Row{
			BetID:           bet.ID.String(),
			OwnerRef:        bet.OwnerRef,
			IsGuestBet:      bet.IsGuestBet,
			Points:          points,
			GoalsDifference: diff,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Points != rows[j].Points {
			return rows[i].Points > rows[j].Points
		}
		if rows[i].GoalsDifference != rows[j].GoalsDifference {
			return rows[i].GoalsDifference < rows[j].GoalsDifference
		}
		return rows[i].OwnerRef < rows[j].OwnerRef
	})
	return rows
}

// Leader returns the current front-runner, or nil while no leader can be
// declared: before any match completed, or while the best score is still 0.
func Leader(schedule *models.Schedule, bets []models.Bet) *Row {
	if schedule == nil {
		return nil
	}

	anyCompleted := false
	for i := range schedule.Matches {
		if schedule.Matches[i].IsCompleted {
			anyCompleted = true
			break
		}
	}
	if !anyCompleted {
		return nil
	}

	rows := Table(schedule, bets)
	if len(rows) == 0 || rows[0].Points == 0 {
		return nil
	}
	leader := rows[0]
	return &leader
}
