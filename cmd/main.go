package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"health-service/internal/api"
	"health-service/internal/config"
	"health-service/internal/crypto"
	"health-service/internal/db"
	"health-service/internal/kafka"
	"health-service/internal/logging"
	"health-service/internal/models"
	"health-service/internal/providers"
	"health-service/internal/services"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Errorf("Failed to open store: %v", err)
		log.Fatalf("Store init failed: %v", err)
	}
	defer store.Close()

	var sealer *crypto.Sealer
	if cfg.EncryptionKey != "" {
		sealer, err = crypto.NewSealer(cfg.EncryptionKey)
		if err != nil {
			log.Fatalf("Invalid ENCRYPTION_KEY: %v", err)
		}
	} else {
		logger.Warn("ENCRYPTION_KEY not set, raw telemetry payloads are stored unsealed")
	}

	// Notification fan-out
	hub := services.NewAlertHub(logger)
	notifier := services.NewNotifier(logger, cfg.Notification.QueueSize, cfg.Notification.MaxWorkers)
	notifier.AddSink(hub, models.SeverityInfo)

	if cfg.Telegram.BotToken != "" {
		minSeverity, err := models.ParseSeverity(cfg.Telegram.MinSeverity)
		if err != nil {
			log.Fatalf("Invalid TELEGRAM_MIN_SEVERITY: %v", err)
		}
		tg, err := providers.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.RateLimit, logger)
		if err != nil {
			logger.Errorf("Telegram disabled: %v", err)
		} else {
			notifier.AddSink(tg, minSeverity)
			logger.Infof("Telegram notifications enabled for %s and above", minSeverity)
		}
	}

	kafkaCfg := kafka.Config{
		Broker:         cfg.Kafka.Broker,
		TelemetryTopic: cfg.Kafka.TelemetryTopic,
		AlertTopic:     cfg.Kafka.AlertTopic,
		GroupID:        cfg.Kafka.GroupID,
	}
	var producer *kafka.Producer
	if cfg.Kafka.Broker != "" {
		producer = kafka.NewProducer(kafkaCfg)
		notifier.AddSink(producer, models.SeverityInfo)
	}

	var wg sync.WaitGroup
	notifier.Start(&wg)

	ingestor := services.NewIngestor(store, services.IngestConfig{
		Thresholds:     cfg.Alerting.Thresholds,
		SuppressWindow: cfg.Alerting.SuppressWindow,
		Sealer:         sealer,
		Queue:          notifier,
	}, logger)
	dashboard := services.NewDashboard(store, cfg.Alerting.Thresholds, cfg.Alerting.StaleAfter)
	diagnostics := services.NewDiagnostics(store, logger)

	// Initialize Kafka consumer
	var consumer *kafka.Consumer
	if cfg.Kafka.Broker != "" {
		consumer = kafka.NewConsumer(kafkaCfg, ingestor, logger)
		consumer.Start(ctx, &wg)
		logger.Infof("Kafka consumer initialized with topic: %s", cfg.Kafka.TelemetryTopic)
	}

	// Start API server
	handler := api.NewHandler(store, ingestor, dashboard, diagnostics, hub, logger)
	router := api.NewRouter(logger, cfg, handler)
	srv := &http.Server{
		Addr:              cfg.API.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("Starting API server on %s", cfg.API.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("API server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API shutdown failed: %v", err)
	}
	if consumer != nil {
		consumer.Close()
	}
	// Sinks close only after every worker has returned.
	notifier.Stop()
	wg.Wait()
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Warnf("Kafka writer close: %v", err)
		}
	}
	logger.Info("Service stopped")
}

func openStore(ctx context.Context, cfg config.Config, logger *logging.Logger) (db.Store, error) {
	if cfg.Store == "memory" {
		logger.Warn("Using in-memory store, data is lost on restart")
		return db.NewMemoryStore(), nil
	}
	conn, err := db.New(ctx, cfg.DB.DSN)
	if err != nil {
		return nil, err
	}
	if err := conn.Migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	logger.Info("Connected to database")
	return conn, nil
}
