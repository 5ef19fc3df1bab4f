package reconcile

import (
	"context"

	"github.com/matchpool/livesync/go/internal/models"
)

// Fetcher is the collaborator REST surface the registry uses for targeted
// refetches. Each call fetches exactly one collection; the registry
// replaces that collection wholesale and nothing else.
type Fetcher interface {
	FetchCurrentSchedule(ctx context.Context) (*models.Schedule, error)
	FetchCurrentBets(ctx context.Context) ([]models.Bet, error)
	FetchPayments(ctx context.Context) ([]models.PaymentRecord, error)
	FetchAnnouncements(ctx context.Context) ([]models.Announcement, error)
	FetchSettledWeeks(ctx context.Context) ([]models.SettledWeek, error)
}
