package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/matchpool/livesync/go/clients/pool_api_client"
	"github.com/matchpool/livesync/go/internal/cache"
	"github.com/matchpool/livesync/go/internal/gateway"
	"github.com/matchpool/livesync/go/internal/pending"
	"github.com/matchpool/livesync/go/internal/push"
	"github.com/matchpool/livesync/go/internal/reconcile"
	"github.com/matchpool/livesync/go/internal/resilience"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	config, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	clock := clockwork.NewRealClock()
	store := cache.NewStore()
	tracker := pending.NewTracker(clock, config.pendingWindow())
	api := pool_api_client.NewPoolApiClient(config.API.BaseURL, os.Getenv("POOL_API_TOKEN"))

	conn := push.NewNATSConn(config.natsConfig())
	dispatcher := push.NewDispatcher(conn)

	registry := reconcile.NewRegistry(store, tracker, api, dispatcher)
	registry.Start(ctx)
	defer registry.Stop()

	if err := dispatcher.Connect(); err != nil {
		// Not fatal: the resilience scheduler keeps the cache fresh until
		// the push connection comes up.
		log.Error().Err(err).Msg("push connection failed; running degraded")
	}
	defer dispatcher.Disconnect()

	primeCtx, primeCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := registry.RefreshAll(primeCtx); err != nil {
		log.Error().Err(err).Msg("initial cache prime failed")
	}
	primeCancel()

	scheduler := resilience.NewScheduler(clock, config.resilienceInterval(), dispatcher.IsConnected, registry.RefreshAll)
	go scheduler.Run(ctx)

	server := gateway.NewServer(config.HTTP.Addr, store, gateway.DefaultConnectionConfig())
	if err := server.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("gateway server failed")
	}

	log.Info().Msg("shutdown complete")
}
