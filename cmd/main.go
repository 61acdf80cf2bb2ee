package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gosharedmw "github.com/Tesseract-Nexus/go-shared/middleware"
	"github.com/Tesseract-Nexus/go-shared/rbac"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"fulfillment-service/internal/carriers"
	"fulfillment-service/internal/config"
	"fulfillment-service/internal/events"
	"fulfillment-service/internal/handlers"
	"fulfillment-service/internal/jobs"
	"fulfillment-service/internal/middleware"
	"fulfillment-service/internal/repository"
	"fulfillment-service/internal/services"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.Info("Starting Fulfillment Service...")

	// Connect to database
	db, err := connectDatabase(cfg)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	logger.Info("Database connected successfully")

	if err := repository.Migrate(db, logger); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize Redis client (optional - tracking locks degrade to no-ops without it)
	redisClient := connectRedis(cfg.RedisURL, logger)
	var locker repository.Locker = repository.NoopLocker{}
	if redisClient != nil {
		locker = repository.NewRedisLocker(redisClient)
		defer redisClient.Close()
	}

	// Initialize NATS events publisher (optional - service works without NATS)
	var (
		publisher      services.EventPublisher
		eventsLiveness handlers.ConnectionChecker
	)
	if cfg.NATSURL != "" {
		eventsPublisher, err := events.NewPublisher(cfg.NATSURL, cfg.StoreID, logger)
		if err != nil {
			logger.Warnf("Failed to initialize events publisher: %v. Events will not be published.", err)
		} else {
			publisher = eventsPublisher
			eventsLiveness = eventsPublisher
			defer eventsPublisher.Close()
			logger.Info("✓ NATS events publisher initialized")
		}
	} else {
		logger.Info("NATS_URL not configured, event publishing disabled")
	}

	// Logistics provider
	client := carriers.NewShiprocketClient(cfg.CarrierConfig(), logger)

	// Initialize repositories
	orderRepo := repository.NewOrderRepository(db)
	returnRepo := repository.NewReturnRepository(db)

	// Initialize services
	shipmentService := services.NewShipmentOrchestrator(orderRepo, client, publisher, services.ShipmentSettings{
		PickupLocation: cfg.Shiprocket.PickupLocation,
		PickupPincode:  cfg.Shiprocket.PickupPincode,
	}, logger)
	trackingService := services.NewTrackingReconciler(orderRepo, returnRepo, client, locker, publisher, cfg.Tracking.Workers, logger)
	returnService := services.NewReturnOrchestrator(orderRepo, returnRepo, client, publisher, services.ReturnSettings{
		Warehouse: cfg.WarehouseParty(),
	}, logger)

	// Initialize handlers
	fulfillmentHandler := handlers.NewFulfillmentHandler(shipmentService, trackingService, logger)
	returnHandler := handlers.NewReturnHandler(returnService, trackingService, logger)
	webhookHandler := handlers.NewWebhookHandler(trackingService, cfg.Shiprocket.WebhookSecret, logger)
	healthHandler := handlers.NewHealthHandler(db, eventsLiveness)

	// Initialize RBAC middleware
	rbacMw := rbac.NewMiddlewareWithURL(cfg.StaffURL, nil)
	logger.Info("✓ RBAC middleware initialized")

	// Start tracking sync job
	jobCtx, jobCancel := context.WithCancel(context.Background())
	var trackingJob *jobs.TrackingSyncJob
	if cfg.Tracking.Enabled {
		trackingJob = jobs.NewTrackingSyncJob(trackingService, cfg.Tracking.Interval, logger)
		go trackingJob.Start(jobCtx)
		logger.WithField("interval", cfg.Tracking.Interval.String()).Info("Tracking sync job started")
	}

	router := setupRouter(cfg, logger, rbacMw, redisClient, routes{
		fulfillment: fulfillmentHandler,
		returns:     returnHandler,
		webhooks:    webhookHandler,
		health:      healthHandler,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Infof("Fulfillment service starting on %s (environment: %s)", server.Addr, cfg.Server.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	jobCancel()
	if trackingJob != nil {
		trackingJob.Stop()
		logger.Info("Tracking sync job stopped")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server shutdown complete")
}

// connectDatabase establishes a connection to the PostgreSQL database
func connectDatabase(cfg *config.Config) (*gorm.DB, error) {
	logLevel := gormlogger.Warn
	if !cfg.IsProduction() {
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.GetDatabaseDSN()), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(logLevel),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// connectRedis returns nil when Redis is not configured or unreachable
func connectRedis(redisURL string, logger *logrus.Logger) *redis.Client {
	if redisURL == "" {
		logger.Info("REDIS_URL not configured, tracking locks disabled")
		return nil
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warnf("Failed to parse Redis URL: %v. Continuing without Redis...", err)
		return nil
	}

	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warnf("Failed to connect to Redis: %v. Continuing without Redis...", err)
		client.Close()
		return nil
	}

	logger.Info("✓ Connected to Redis for tracking locks")
	return client
}

type routes struct {
	fulfillment *handlers.FulfillmentHandler
	returns     *handlers.ReturnHandler
	webhooks    *handlers.WebhookHandler
	health      *handlers.HealthHandler
}

// setupRouter configures the Gin router with routes and middleware
func setupRouter(cfg *config.Config, logger *logrus.Logger, rbacMw *rbac.Middleware, redisClient *redis.Client, h routes) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(gosharedmw.SecurityHeaders())

	// Rate limiting middleware (uses Redis for distributed rate limiting)
	if redisClient != nil {
		router.Use(gosharedmw.RedisRateLimitMiddlewareWithProfile(redisClient, "standard"))
		logger.Info("✓ Redis-based rate limiting enabled")
	} else {
		router.Use(gosharedmw.RateLimit())
		logger.Info("✓ In-memory rate limiting enabled (Redis unavailable)")
	}

	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.CORS())
	router.Use(middleware.ErrorHandler(logger))

	// Health check endpoints (no auth required)
	router.GET("/health", h.health.Health)
	router.GET("/ready", h.health.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Payment completion hook from the checkout flow (cluster-internal only)
	router.POST("/internal/orders/:orderId/automate-shipping", h.fulfillment.AutomateShipping)

	// Carrier webhooks (HMAC verified, no auth)
	webhooks := router.Group("/webhooks")
	{
		webhooks.POST("/shiprocket", h.webhooks.ShiprocketWebhook)
	}

	// IstioAuth middleware - extracts JWT claims from x-jwt-claim-* headers
	api := router.Group("/api")
	api.Use(gosharedmw.IstioAuth(gosharedmw.IstioAuthConfig{
		RequireAuth:        true,
		AllowLegacyHeaders: true,
		SkipPaths:          []string{"/health", "/ready", "/metrics", "/webhooks/", "/internal/"},
	}))

	// Storefront - any authenticated customer
	api.POST("/storefront/returns", h.returns.CreateReturn)

	fulfillment := api.Group("/fulfillment")
	{
		// Forward shipments
		fulfillment.GET("/orders/:orderId", rbacMw.RequirePermission(rbac.PermissionShippingRead), h.fulfillment.GetOrder)
		fulfillment.POST("/orders/:orderId/shipment", rbacMw.RequirePermission(rbac.PermissionShippingCreate), h.fulfillment.CreateShipment)
		fulfillment.POST("/orders/:orderId/shipment/process", rbacMw.RequirePermission(rbac.PermissionShippingCreate), h.fulfillment.ProcessShipment)
		fulfillment.POST("/orders/:orderId/shipment/automate", rbacMw.RequirePermission(rbac.PermissionShippingCreate), h.fulfillment.AutomateShipping)
		fulfillment.POST("/orders/:orderId/shipment/cancel", rbacMw.RequirePermission(rbac.PermissionShippingUpdate), h.fulfillment.CancelShipment)
		fulfillment.POST("/orders/:orderId/shipment/label", rbacMw.RequirePermission(rbac.PermissionShippingUpdate), h.fulfillment.GenerateLabel)

		// Tracking
		fulfillment.POST("/orders/:orderId/tracking/sync", rbacMw.RequirePermission(rbac.PermissionShippingUpdate), h.fulfillment.SyncTracking)
		fulfillment.POST("/tracking/bulk-sync", rbacMw.RequirePermission(rbac.PermissionShippingManage), h.fulfillment.BulkSyncTracking)

		// Returns
		fulfillment.GET("/returns/:returnId", rbacMw.RequirePermission(rbac.PermissionShippingRead), h.returns.GetReturn)
		fulfillment.PUT("/returns/:returnId/status", rbacMw.RequirePermission(rbac.PermissionShippingUpdate), h.returns.UpdateReturnStatus)
		fulfillment.POST("/returns/:returnId/shipment/retry", rbacMw.RequirePermission(rbac.PermissionShippingUpdate), h.returns.RetryReturnShipment)
		fulfillment.POST("/returns/:returnId/tracking/sync", rbacMw.RequirePermission(rbac.PermissionShippingUpdate), h.returns.SyncReturnTracking)
		fulfillment.POST("/returns/:returnId/refund-complete", rbacMw.RequirePermission(rbac.PermissionShippingManage), h.returns.MarkRefundComplete)
	}

	return router
}
