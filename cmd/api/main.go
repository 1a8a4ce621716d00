package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"civicpulse/internal/api"
	"civicpulse/internal/api/handlers"
	"civicpulse/internal/config"
	"civicpulse/internal/domain/services"
	"civicpulse/internal/domain/services/ai"
	"civicpulse/internal/infrastructure/cache"
	"civicpulse/internal/infrastructure/database"
	"civicpulse/internal/infrastructure/database/repository"
	"civicpulse/internal/infrastructure/gateway"
	"civicpulse/internal/streaming"
	"civicpulse/pkg/logger"
)

func main() {
	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		TimeFormat: cfg.Logger.TimeFormat,
	})
	logger.SetGlobal(log)

	log.Info().
		Str("app", cfg.App.Name).
		Str("env", cfg.App.Environment).
		Str("version", cfg.App.Version).
		Msg("starting CivicPulse")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to PostgreSQL")
	}
	defer db.Close()

	redisCache, err := cache.NewRedis(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer redisCache.Close()

	repos := repository.NewRepositories(db.Pool(), log)

	// Event stream; NATS is optional and the bus falls back to local delivery
	var natsPublisher *streaming.NATSPublisher
	if cfg.NATS.Enabled {
		natsPublisher, err = streaming.NewNATSPublisher(ctx, cfg.NATS, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to NATS, continuing with local events only")
			natsPublisher = nil
		}
	}
	// The bus owns the NATS connection and closes it.
	eventBus := streaming.NewEventBus(natsPublisher, log)
	eventBus.Start(ctx)
	defer eventBus.Close()

	wsHub := streaming.NewWebSocketHub(eventBus, log)
	go wsHub.Run(ctx)

	events := streaming.NewEventBusPublisher(eventBus)

	// Collaborators
	gatewayClient := gateway.NewClient(cfg.Gateway, log)
	verifier := ai.NewVerifier(cfg.Oracle, log)

	// Services
	identity := services.NewIdentityResolver(repos.Identities, cfg.Intake.CountryCode, log)
	conversation := services.NewConversationResolver(repos.Reports, cfg.Intake.AddressWindow)
	engine := services.NewBroadcastEngine(repos.Citizens, repos.Broadcasts, gatewayClient, events,
		cfg.Broadcast.Workers, cfg.Intake.CountryCode, log)
	status := services.NewStatusService(repos.Reports, repos.Citizens, engine, events, log)
	intake := services.NewIntakePipeline(repos.Reports, gatewayClient, verifier, engine, identity, events, cfg.Intake, log)
	commands := services.NewCommandProcessor(repos.Reports, status, engine, log)

	// Jobs run on their own context so in-flight work can drain on shutdown.
	queueCtx, stopQueue := context.WithCancel(context.Background())
	defer stopQueue()
	queue := services.NewSenderQueue(queueCtx, cfg.Intake.SenderIdleTimeout, redisCache, cfg.Intake.SenderLockTTL, log)

	router := services.NewRouter(cfg.Intake.OperatorAddress, cfg.Intake.CountryCode, cfg.Intake.DedupTTL, services.RouterDeps{
		Dedup:        redisCache,
		Queue:        queue,
		Commands:     commands,
		Conversation: conversation,
		Intake:       intake,
		Identity:     identity,
		Replier:      engine,
	}, log)

	if cfg.Intake.OperatorAddress == "" {
		log.Warn().Msg("no operator address configured, VERIFY/REJECT commands are disabled")
	}

	if cfg.Reconciler.Enabled {
		reconciler := services.NewReconciler(repos.Reports, redisCache,
			cfg.Reconciler.Interval, cfg.Reconciler.BatchSize, cfg.Reconciler.LockTTL, log)
		go func() {
			if err := reconciler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("reconciler stopped with error")
			}
		}()
	}

	h := handlers.NewHandlers(handlers.Dependencies{
		Postgres:    db,
		Redis:       redisCache,
		Router:      router,
		Reports:     repos.Reports,
		Status:      status,
		Broadcaster: engine,
		Broadcasts:  repos.Broadcasts,
		WSHub:       wsHub,
		EventBus:    eventBus,
		Version:     cfg.App.Version,
		Logger:      log,
	})

	httpHandler := api.NewRouter(*cfg, h, redisCache, log).Setup()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler:      httpHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().
			Str("addr", httpServer.Addr).
			Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Stop taking webhooks first, then drain what was already accepted.
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if err := queue.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Int("active_senders", queue.ActiveKeys()).Msg("sender queue did not drain")
	}
	intake.Wait()

	cancel()
	stopQueue()

	log.Info().Msg("shutdown complete")
}
