package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"finsights/internal/config"
	"finsights/internal/ingest"
	"finsights/internal/provider/gemini"
	"finsights/internal/publisher"
	"finsights/internal/scheduler"
	"finsights/internal/settings"
	"finsights/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	runOnce := flag.Bool("run-once", false, "run one ingestion immediately and exit")
	flag.Parse()

	// Setup logger
	logger := setupLogger("info")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Initialize RabbitMQ publisher
	rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
		URL:        cfg.RabbitMQ.URL,
		Exchange:   cfg.RabbitMQ.Exchange,
		RoutingKey: cfg.RabbitMQ.RoutingKey,
		QueueName:  cfg.RabbitMQ.QueueName,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer rabbitMQ.Close()

	// Initialize stores
	newsStore := postgres.NewNewsStore(db)
	runStore := postgres.NewRunStore(db)
	settingsStore := postgres.NewSettingsStore(db)
	scheduleStore := postgres.NewScheduleStore(db)
	symbolStore := postgres.NewSymbolStore(db)

	// Provider and services
	factory := gemini.NewFactory(logger)

	settingsService := settings.NewService(settingsStore, scheduleStore, factory, logger)

	ingestService := ingest.NewService(
		providerFactory{factory},
		settingsService,
		newsStore,
		runStore,
		symbolStore,
		rabbitMQ,
		logger,
	)

	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		logger.Error("invalid scheduler timezone", "timezone", cfg.Scheduler.Timezone, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if *runOnce {
		run, err := ingestService.RunIngestion(ctx, "startup", "cli", time.Now())
		if err != nil {
			logger.Error("ingestion run failed", "error", err)
			os.Exit(1)
		}
		logger.Info("ingestion run finished",
			"run_id", run.ID,
			"status", string(run.Status),
			"items_added", run.ItemsAdded(),
		)
		return
	}

	sched := scheduler.New(ingestService, scheduleStore, cfg.Scheduler.RunTimeout, loc, logger)

	logger.Info("starting finsights ingestion service",
		"timezone", cfg.Scheduler.Timezone,
		"run_timeout", cfg.Scheduler.RunTimeout,
	)

	if err := sched.Start(ctx); err != nil && err != context.Canceled {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
}

// providerFactory adapts the concrete Gemini factory to the ingest
// service's interface.
type providerFactory struct {
	factory *gemini.Factory
}

func (f providerFactory) New(ctx context.Context, apiKey, model string) (ingest.Provider, error) {
	return f.factory.New(ctx, apiKey, model)
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
