package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"windalert/internal/api"
	"windalert/internal/channel"
	"windalert/internal/config"
	"windalert/internal/engine"
	"windalert/internal/store"
	ws "windalert/internal/websocket"
	"windalert/internal/wind"
	"windalert/internal/worker"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	if err := pgStore.RunMigrations(ctx, "migrations"); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	redisStore, err := store.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisStore.Close()
	logger.Info("connected to Redis")

	// Delivery channel
	var ch channel.Channel
	if cfg.TelegramBaseURL != "" {
		ch = channel.NewTelegramWithBaseURL(cfg.TelegramToken, cfg.TelegramBaseURL)
	} else {
		ch = channel.NewTelegram(cfg.TelegramToken)
	}

	cb := engine.NewCircuitBreaker(redisStore.Client(), logger)
	rl := engine.NewRateLimiter(redisStore.Client(), logger)

	hub := ws.NewHub(logger)
	go hub.Run()

	// Scheduler with optional operator email alerts
	scheduler := engine.NewScheduler(pgStore, pgStore, pgStore, logger)
	if cfg.SMTPHost != "" && cfg.AlertTo != "" {
		scheduler.WithOpsAlerter(channel.NewEmailAlerter(
			cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword,
			cfg.AlertFrom, cfg.AlertTo,
		))
		logger.Info("operator email alerts enabled", "to", cfg.AlertTo)
	}

	// Worker pool and ledger dispatcher share one worker identity per
	// process; claims and outcome marks must agree on it.
	workerID := uuid.NewString()
	deliverer := worker.NewDeliverer(pgStore, ch, pgStore, cb, rl, hub, logger, worker.DelivererConfig{
		WorkerID:        workerID,
		MaxRetries:      cfg.MaxRetries,
		RatePerChat:     cfg.RatePerChat,
		AutoUnsubscribe: cfg.AutoUnsubscribe,
	})
	pool := worker.NewPool(cfg.NumWorkers, deliverer, logger)
	pool.Start(ctx)

	dispatcher := worker.NewDispatcher(pgStore, pool, workerID, cfg.LeaseTTL, logger)
	go dispatcher.Start(ctx)

	// Wind event source
	loc, err := time.LoadLocation(cfg.WindTimezone)
	if err != nil {
		logger.Error("invalid wind timezone", "error", err, "timezone", cfg.WindTimezone)
		os.Exit(1)
	}
	tracker := &wind.Tracker{
		Sector:         wind.NewSector(uint16(cfg.WindSectorFrom), uint16(cfg.WindSectorTo)),
		SpeedThreshold: cfg.WindSpeedThreshold,
		CandidateSteps: cfg.WindCandidateSteps,
		CooldownSteps:  cfg.WindCooldownSteps,
	}
	poller := wind.NewPoller(cfg.WindURL, cfg.WindPollInterval, tracker, &wind.Parser{Location: loc}, scheduler, logger)
	go poller.Run(ctx)

	router := api.NewRouter(pgStore, redisStore, scheduler, cb, ch.Name(), hub)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// The dispatcher must stop submitting before the pool's channel closes.
	dispatcher.Wait()
	pool.Stop()

	logger.Info("server stopped")
}
