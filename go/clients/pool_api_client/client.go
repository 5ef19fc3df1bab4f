package pool_api_client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/matchpool/livesync/go/clients"
	"github.com/matchpool/livesync/go/internal/models"
	"github.com/matchpool/livesync/go/internal/optimistic"
)

// PoolApiClient talks to the pool backend's REST surface. It implements
// both the registry's refetch interface and the optimistic writer's
// mutation interface.
type PoolApiClient struct {
	*clients.BaseClient
}

func NewPoolApiClient(baseURL, authToken string) *PoolApiClient {
	client := &PoolApiClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}

	client.SetHeader("Content-Type", "application/json")
	if authToken != "" {
		client.SetHeader("Authorization", "Bearer "+authToken)
	}

	return client
}

// FetchCurrentSchedule fetches the schedule for the current week
func (c *PoolApiClient) FetchCurrentSchedule(ctx context.Context) (*models.Schedule, error) {
	var schedule models.Schedule
	if err := c.GetJSON(ctx, CurrentScheduleEndpoint, &schedule); err != nil {
		return nil, fmt.Errorf("fetch current schedule: %w", err)
	}
	return &schedule, nil
}

// FetchCurrentBets fetches every bet for the current week
func (c *PoolApiClient) FetchCurrentBets(ctx context.Context) ([]models.Bet, error) {
	var bets []models.Bet
	if err := c.GetJSON(ctx, CurrentBetsEndpoint, &bets); err != nil {
		return nil, fmt.Errorf("fetch current bets: %w", err)
	}
	return bets, nil
}

// FetchPayments fetches the denormalized payment records
func (c *PoolApiClient) FetchPayments(ctx context.Context) ([]models.PaymentRecord, error) {
	var records []models.PaymentRecord
	if err := c.GetJSON(ctx, PaymentsEndpoint, &records); err != nil {
		return nil, fmt.Errorf("fetch payments: %w", err)
	}
	return records, nil
}

// FetchAnnouncements fetches the active announcements
func (c *PoolApiClient) FetchAnnouncements(ctx context.Context) ([]models.Announcement, error) {
	var list []models.Announcement
	if err := c.GetJSON(ctx, AnnouncementsEndpoint, &list); err != nil {
		return nil, fmt.Errorf("fetch announcements: %w", err)
	}
	return list, nil
}

// FetchSettledWeeks fetches the settled-results projection
func (c *PoolApiClient) FetchSettledWeeks(ctx context.Context) ([]models.SettledWeek, error) {
	var weeks []models.SettledWeek
	if err := c.GetJSON(ctx, SettledWeeksEndpoint, &weeks); err != nil {
		return nil, fmt.Errorf("fetch settled weeks: %w", err)
	}
	return weeks, nil
}

// UpdatePaymentStatus patches a participant's payment status
func (c *PoolApiClient) UpdatePaymentStatus(ctx context.Context, userID, betID uuid.UUID, paid bool) error {
	payload := map[string]any{
		"userId": userID,
		"betId":  betID,
		"paid":   paid,
	}
	if err := c.SendJSON(ctx, http.MethodPatch, PaymentStatusEndpoint, payload); err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}

// SaveBet creates or updates a bet
func (c *PoolApiClient) SaveBet(ctx context.Context, bet models.Bet) error {
	endpoint := BetsEndpoint + "/" + bet.ID.String()
	if err := c.SendJSON(ctx, http.MethodPut, endpoint, bet); err != nil {
		return fmt.Errorf("save bet: %w", err)
	}
	return nil
}

// SaveMatchResult patches one match's scores
func (c *PoolApiClient) SaveMatchResult(ctx context.Context, matchID uuid.UUID, score optimistic.MatchScore) error {
	payload := map[string]any{}
	if score.ScoreTeamA != nil {
		payload["scoreTeamA"] = *score.ScoreTeamA
	}
	if score.ScoreTeamB != nil {
		payload["scoreTeamB"] = *score.ScoreTeamB
	}
	if score.IsCompleted != nil {
		payload["isCompleted"] = *score.IsCompleted
	}
	endpoint := ResultsEndpoint + "/" + matchID.String()
	if err := c.SendJSON(ctx, http.MethodPatch, endpoint, payload); err != nil {
		return fmt.Errorf("save match result: %w", err)
	}
	return nil
}

// DeleteBet removes a bet
func (c *PoolApiClient) DeleteBet(ctx context.Context, betID uuid.UUID) error {
	if _, err := c.Delete(ctx, BetsEndpoint+"/"+betID.String()); err != nil {
		return fmt.Errorf("delete bet: %w", err)
	}
	return nil
}
