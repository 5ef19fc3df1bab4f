package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/matchpool/livesync/go/internal/cache"
	"github.com/matchpool/livesync/go/internal/models"
	"github.com/matchpool/livesync/go/internal/standings"
)

// Server exposes the reconciled cache to the browser views: snapshot
// endpoints per view plus a WebSocket that pushes change notices so views
// know when to re-read. The cache is the only data source; the server
// never talks to the backend itself.
type Server struct {
	cache             *cache.Store
	connectionManager *ConnectionManager
	httpServer        *http.Server
}

// DashboardView is what the main dashboard renders
type DashboardView struct {
	Schedule      *models.Schedule      `json:"schedule"`
	Announcements []models.Announcement `json:"announcements"`
	Standings     []standings.Row       `json:"standings"`
	Leader        *standings.Row        `json:"leader"`
	LastSettled   *models.SettledWeek   `json:"lastSettled,omitempty"`
}

// AdminView is what the admin console renders
type AdminView struct {
	Schedule *models.Schedule       `json:"schedule"`
	Bets     []models.Bet           `json:"bets"`
	Payments []models.PaymentRecord `json:"payments"`
	Users    []models.User          `json:"users"`
	Settings map[string]string      `json:"settings"`
}

// ProfileView is one participant's personal page
type ProfileView struct {
	Bet     *models.Bet           `json:"bet"`
	Payment *models.PaymentRecord `json:"payment"`
}

// NewServer wires the gateway against the cache. Change notices flow from
// the cache's listener into the WebSocket fanout.
func NewServer(addr string, store *cache.Store, config ConnectionConfig) *Server {
	cm := NewConnectionManager(config)
	s := &Server{
		cache:             store,
		connectionManager: cm,
	}

	store.OnChange(func(c cache.Collection) {
		cm.Notify(c)
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/views/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /api/views/admin", s.handleAdmin)
	mux.HandleFunc("GET /api/views/profile", s.handleProfile)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebSocket)

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(mux)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start runs the broadcast loop and the HTTP server until the context is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	go s.connectionManager.Start(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("gateway shutdown failed")
		}
	}()

	log.Info().Str("addr", s.httpServer.Addr).Msg("gateway listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	schedule := s.cache.Schedule()
	bets := s.cache.Bets()

	view := DashboardView{
		Schedule:      schedule,
		Announcements: s.cache.Announcements(),
		Standings:     standings.Table(schedule, bets),
		Leader:        standings.Leader(schedule, bets),
	}
	if settled := s.cache.SettledWeeks(); len(settled) > 0 {
		view.LastSettled = &settled[0]
	}
	writeJSON(w, view)
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, AdminView{
		Schedule: s.cache.Schedule(),
		Bets:     s.cache.Bets(),
		Payments: s.cache.Payments(),
		Users:    s.cache.Users(),
		Settings: s.cache.Settings(),
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("userId"))
	if err != nil {
		http.Error(w, "invalid userId", http.StatusBadRequest)
		return
	}

	view := ProfileView{}
	if rec, ok := s.cache.PaymentByUser(userID); ok {
		view.Payment = rec
		if rec.BetID != nil {
			if bet, ok := s.cache.BetByID(*rec.BetID); ok {
				view.Bet = bet
			}
		}
	}
	writeJSON(w, view)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":      "ok",
		"connections": s.connectionManager.ConnectionCount(),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if err := s.connectionManager.UpgradeConnection(w, r); err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
