package pool_api_client

const (
	// API Endpoints
	CurrentScheduleEndpoint = "/api/schedules/current"
	CurrentBetsEndpoint     = "/api/bets/current"
	PaymentsEndpoint        = "/api/payments"
	AnnouncementsEndpoint   = "/api/announcements"
	SettledWeeksEndpoint    = "/api/results/settled"
	BetsEndpoint            = "/api/bets"
	ResultsEndpoint         = "/api/results"
	PaymentStatusEndpoint   = "/api/payments/status"
)
