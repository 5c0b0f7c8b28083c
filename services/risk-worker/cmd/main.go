package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/freshbasket/fulfillment-core/pkg"
	"github.com/freshbasket/fulfillment-core/pkg/cache"
	"github.com/freshbasket/fulfillment-core/pkg/database"
	"github.com/freshbasket/fulfillment-core/pkg/fraud"
	kafkautils "github.com/freshbasket/fulfillment-core/pkg/kafka"
	"github.com/freshbasket/fulfillment-core/pkg/notifications"
	"github.com/freshbasket/fulfillment-core/pkg/repositories"
	"github.com/freshbasket/fulfillment-core/pkg/utils"
	"github.com/freshbasket/fulfillment-core/services/risk-worker/configs"
	"github.com/freshbasket/fulfillment-core/services/risk-worker/internal/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// main initializes and runs the risk worker service.
func main() {
	// Initialize global logger with default configuration
	pkg.InitLogger()
	logger := pkg.Logger
	defer logger.Sync() // Ensure all buffered logs are flushed on exit

	// Load configuration from environment and optional config file
	cfg, err := configs.Load(logger)
	if err != nil {
		logger.Fatal("failed_to_load_config", zap.Error(err))
	}

	// Initialize PostgreSQL database connection. Migrations are owned by
	// order-api; the worker assumes the schema is already in place.
	dbConfig := database.Config{
		PrimaryDSN: cfg.PrimaryDbAddr,
		ReadDSNs:   []string{cfg.ReadDbAddr},
		MaxConns:   cfg.MaxDbCons,
		MinConns:   cfg.MinDbCons,
	}
	db, disconnect, err := database.New(context.Background(), logger, dbConfig)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer disconnect() // Ensure database connections are closed on shutdown

	// Create a context that can be canceled for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis client for scan dedupe and distributed rate limiting
	redisClient, redisCloser, err := cache.New(ctx, cache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		logger.Fatal("Failed to initialize redis", zap.Error(err))
	}
	logger.Info("Redis client initialized successfully")

	// Ensure the DLQ topic exists before the consumer starts routing to it
	err = kafkautils.InitKafkaTopics(logger, ctx, kafkautils.KafkaConfig{
		BootstrapServers: cfg.KafkaBrokers,
		Topics: []kafkautils.TopicConfig{
			{
				Topic:             cfg.KafkaDLQTopic,
				NumPartitions:     int(cfg.KafkaPartition),
				ReplicationFactor: 1,
				Config: map[string]string{
					"cleanup.policy": "delete",
					"retention.ms":   fmt.Sprintf("%d", cfg.KafkaDLQRetention.Milliseconds()),
				},
			},
		},
	})
	if err != nil {
		logger.Fatal("failed to initialize kafka topics", zap.Error(err))
	}

	// Initialize repositories for data access
	orderRepo := repositories.NewOrderRepository()
	userRepo := repositories.NewUserRepository()
	slotRepo := repositories.NewSlotRepository()
	alertRepo := repositories.NewRiskAlertRepository()

	// Admin notifications raised by the engine go through the same bus and
	// webhook path as in order-api, so alert routing is uniform.
	bus := notifications.NewBus(logger)
	bus.Subscribe(notifications.TopicAdmin, notifications.NewDashboardLogSubscriber(logger).Handle)
	if !utils.IsEmpty(cfg.AdminWebhookURL) {
		webhook := notifications.NewWebhookSubscriber(cfg.AdminWebhookURL, logger)
		bus.Subscribe(notifications.TopicAdmin, webhook.Handle)
	}
	notifier := notifications.NewNotifier(nil, nil, bus, logger)

	engine := fraud.NewEngine(db, db, orderRepo, userRepo, slotRepo, alertRepo,
		fraud.DefaultRules(), cache.NewScanMarker(redisClient), notifier, logger)

	// Shared limiter caps evaluation throughput across worker replicas
	limiter := pkg.NewDistributedLimiter(redisClient, "global:risk_scan_rate",
		cfg.ScanRateLimit, cfg.ScanRateBurst, time.Second, logger)
	scanner := services.NewRiskScanner(logger, cfg, engine, limiter)

	// Set up Kafka scan job consumer
	riskHandler := services.NewKafkaRiskConsumer(services.KafkaRiskConfig{
		Context: ctx,
		Logger:  logger,
		Config:  cfg,
		Scanner: scanner,
	})
	closeRiskConsumer := riskHandler.Start()

	// Expose Prometheus metrics
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
	go func() {
		logger.Info("Metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	// Handle graceful shutdown on SIGINT or SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	osSignal := <-sigChan
	logger.Info("Received shutdown signal", zap.String("signal", osSignal.String()))
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	cancel() // Trigger context cancellation
	closeRiskConsumer()
	_ = metricsSrv.Shutdown(shutdownCtx)
	bus.Drain()
	redisCloser()
	logger.Info("Service shutdown completed successfully")
}
