package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/freshbasket/fulfillment-core/pkg/cache"
	"github.com/freshbasket/fulfillment-core/pkg/database"
	"github.com/freshbasket/fulfillment-core/pkg/delivery"
	"github.com/freshbasket/fulfillment-core/pkg/fraud"
	middleware "github.com/freshbasket/fulfillment-core/pkg/middlewares"
	"github.com/freshbasket/fulfillment-core/pkg/notifications"
	"github.com/freshbasket/fulfillment-core/pkg/repositories"
	"github.com/freshbasket/fulfillment-core/pkg/utils"
	"github.com/freshbasket/fulfillment-core/services/order-api/configs"
	"github.com/freshbasket/fulfillment-core/services/order-api/internal/handlers"
	"github.com/freshbasket/fulfillment-core/services/order-api/internal/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewApp wires dependencies, builds the Gin engine, and returns an
// *http.Server and a cleanup func. Configuration comes from the environment
// via configs.Load.
func NewApp(ctx context.Context, logger *zap.Logger) (*http.Server, func(), error) {
	cfg, err := configs.Load(logger)
	if err != nil {
		return nil, nil, err
	}

	// Initialize postgres db
	dbConfig := database.Config{
		PrimaryDSN: cfg.PrimaryDbAddr,
		ReadDSNs:   []string{cfg.ReadDbAddr},
		MaxConns:   cfg.MaxDbCons,
		MinConns:   cfg.MinDbCons,
	}
	db, disconnect, err := database.New(ctx, logger, dbConfig)
	if err != nil {
		return nil, nil, err
	}

	// Run migrations on primary
	if err := database.RunMigrations(logger, cfg.PrimaryDbAddr); err != nil {
		disconnect()
		return nil, nil, err
	}

	// Optional Redis: scan dedupe degrades gracefully without it.
	var marker fraud.ScanMarker
	redisClose := func() {}
	if !utils.IsEmpty(cfg.RedisAddr) {
		redisClient, closer, err := cache.New(ctx, cache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			disconnect()
			return nil, nil, err
		}
		marker = cache.NewScanMarker(redisClient)
		redisClose = closer
	}

	// Repositories
	orderRepo := repositories.NewOrderRepository()
	userRepo := repositories.NewUserRepository()
	productRepo := repositories.NewProductRepository()
	slotRepo := repositories.NewSlotRepository()
	alertRepo := repositories.NewRiskAlertRepository()
	notificationRepo := repositories.NewNotificationRepository()

	// Slot allocation
	registry := delivery.NewStrategyRegistry(cfg.DefaultSlotStrategy)
	registry.Register(delivery.NewEarliestAvailableStrategy(slotRepo))
	registry.Register(delivery.NewWeekendPriorityStrategy(slotRepo))
	allocator := delivery.NewAllocator(slotRepo, registry, logger)

	// Notifications
	bus := notifications.NewBus(logger)
	bus.Subscribe(notifications.TopicUser, notifications.NewEmailLogSubscriber(logger).Handle)
	bus.Subscribe(notifications.TopicAdmin, notifications.NewDashboardLogSubscriber(logger).Handle)
	if !utils.IsEmpty(cfg.AdminWebhookURL) {
		webhook := notifications.NewWebhookSubscriber(cfg.AdminWebhookURL, logger)
		bus.Subscribe(notifications.TopicAdmin, webhook.Handle)
	}
	notifier := notifications.NewNotifier(db, notificationRepo, bus, logger)

	// Risk engine; the dispatcher decides whether evaluation happens here or
	// on the worker.
	engine := fraud.NewEngine(db, db, orderRepo, userRepo, slotRepo, alertRepo,
		fraud.DefaultRules(), marker, notifier, logger)

	var dispatcher services.RiskDispatcher
	if utils.IsEmpty(cfg.KafkaBrokers) {
		logger.Warn("no kafka brokers configured, risk scans run in-process")
		dispatcher = services.NewInlineRiskDispatcher(logger, engine)
	} else {
		dispatcher = services.NewKafkaRiskDispatcher(logger, ctx, cfg)
	}

	// Services and handlers
	inventory := services.NewInventoryService(logger, productRepo)
	pricing := services.NewPricingService(logger, productRepo)
	orderService := services.NewOrderService(logger, cfg, db, db, orderRepo, userRepo,
		inventory, pricing, allocator, notifier, dispatcher)
	adminService := services.NewAdminService(logger, cfg, db, slotRepo, alertRepo, engine)

	baseHandler := handlers.NewBaseHandler(logger)
	orderHandler := handlers.NewOrderHandler(logger, orderService)
	adminHandler := handlers.NewAdminHandler(logger, adminService)

	// Router
	r := gin.Default()

	api := r.Group("/api/v1")
	api.Use(middleware.TraceID())
	api.Use(middleware.Metrics())

	orderHandler.RegisterRoutes(api)
	adminHandler.RegisterRoutes(api)
	baseHandler.RegisterRoutes(r)

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	cleanup := func() {
		dispatcher.Close()
		bus.Drain()
		redisClose()
		disconnect()
	}

	return srv, cleanup, nil
}
