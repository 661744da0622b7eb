package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"logistics-service/internal/config"
	"logistics-service/internal/events"
	"logistics-service/internal/handlers"
	"logistics-service/internal/middleware"
	"logistics-service/internal/models"
	"logistics-service/internal/repository"
	"logistics-service/internal/services"

	gosharedmw "github.com/Tesseract-Nexus/go-shared/middleware"
	"github.com/Tesseract-Nexus/go-shared/rbac"
	"github.com/Tesseract-Nexus/go-shared/tracing"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate models
	if err := db.AutoMigrate(
		&models.ProductStock{},
		&models.StockMovement{},
		&models.ReplenishmentOrder{},
		&models.ReplenishmentOrderItem{},
		&models.ShippingZone{},
		&models.ZoneCarrier{},
		&models.ShippingRateRule{},
		&models.ShippingPolicy{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Seed a starter shipping configuration for the dev tenant
	if seedTenant := os.Getenv("SEED_TENANT_ID"); seedTenant != "" {
		if err := repository.SeedShippingDefaults(db, seedTenant); err != nil {
			log.Printf("Warning: Failed to seed shipping defaults: %v", err)
		}
	}

	// Initialize logrus logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Environment == "production" {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}

	// Initialize Redis cache (optional - graceful degradation when unset)
	redisClient, err := config.InitRedis(cfg)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v", err)
		log.Println("Continuing without caching...")
		redisClient = nil
	} else if redisClient != nil {
		log.Println("✓ Connected to Redis for caching")
	}

	// Initialize NATS event publisher (optional - graceful degradation if NATS unavailable)
	var eventPublisher *events.Publisher
	if cfg.NATSURL != "" {
		eventPublisher, err = events.NewPublisher(cfg.NATSURL, logger)
		if err != nil {
			log.Printf("Warning: Failed to initialize NATS event publisher: %v", err)
			log.Println("Continuing without event publishing...")
			eventPublisher = nil
		} else {
			log.Println("✓ Connected to NATS JetStream for event publishing")
			defer eventPublisher.Close()
		}
	} else {
		log.Println("NATS_URL not configured, event publishing disabled")
	}

	// Initialize repositories
	stockRepo := repository.NewStockRepository(db, redisClient)
	rateRepo := repository.NewRateRepository(db, redisClient)

	// Initialize services
	stockService := services.NewStockService(stockRepo, eventPublisher, logger)
	replenishmentService := services.NewReplenishmentService(stockRepo, eventPublisher, logger)
	rateService := services.NewRateService(rateRepo, eventPublisher, logger)

	// Initialize handlers
	stockHandler := handlers.NewStockHandler(stockService, replenishmentService)
	shippingHandler := handlers.NewShippingHandler(rateService)
	importHandler := handlers.NewImportHandler(stockService, rateService)
	healthHandler := handlers.NewHealthHandler(stockRepo)

	// Initialize OpenTelemetry tracing
	var tracerProvider *tracing.TracerProvider
	if cfg.Environment == "production" {
		tracerProvider, err = tracing.InitTracer(tracing.ProductionConfig("logistics-service"))
	} else {
		tracerProvider, err = tracing.InitTracer(tracing.DefaultConfig("logistics-service"))
	}
	if err != nil {
		log.Printf("WARNING: Failed to initialize tracing: %v (continuing without tracing)", err)
	} else {
		log.Println("✓ OpenTelemetry tracing initialized")
	}

	// Initialize Prometheus metrics
	metrics := gosharedmw.InitGlobalMetrics("tesseract", "logistics_service")
	log.Println("✓ Prometheus metrics initialized")

	// Initialize RBAC middleware
	staffServiceURL := os.Getenv("STAFF_SERVICE_URL")
	if staffServiceURL == "" {
		staffServiceURL = "http://staff-service:8080"
	}
	rbacMiddleware := rbac.NewMiddlewareWithURL(staffServiceURL, nil)
	log.Println("✓ RBAC middleware initialized")

	// Initialize Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// Add observability middleware (metrics + tracing)
	router.Use(metrics.Middleware())
	router.Use(tracing.GinMiddleware("logistics-service"))

	// Add CORS middleware
	router.Use(middleware.CORS())

	// Health check endpoints (no auth required)
	router.GET("/health", handlers.HealthCheck)
	router.GET("/health/extended", healthHandler.ExtendedHealthCheck)
	router.GET("/ready", handlers.HealthCheck)
	router.GET("/metrics", gosharedmw.Handler())

	// Protected API routes
	api := router.Group("/api/v1")

	// Authentication middleware using Istio JWT claims
	// Istio validates JWT and injects x-jwt-claim-* headers.
	// Outside the mesh, USE_DEV_AUTH=true swaps in a mock user context.
	if os.Getenv("USE_DEV_AUTH") == "true" && cfg.Environment != "production" {
		api.Use(middleware.DevelopmentAuthMiddleware())
	} else {
		api.Use(gosharedmw.IstioAuth(gosharedmw.IstioAuthConfig{
			RequireAuth:        true,
			AllowLegacyHeaders: false,
			SkipPaths:          []string{"/health", "/ready", "/metrics"},
		}))
	}
	api.Use(middleware.TenantMiddleware())

	// Stock ledger routes with RBAC
	stock := api.Group("/stock")
	{
		stock.GET("", rbacMiddleware.RequirePermission(rbac.PermissionInventoryRead), stockHandler.ListProducts)
		stock.PUT("", rbacMiddleware.RequirePermission(rbac.PermissionInventoryUpdate), stockHandler.UpsertProduct)
		stock.GET("/:productId", rbacMiddleware.RequirePermission(rbac.PermissionInventoryRead), stockHandler.GetProduct)
		stock.POST("/:productId/adjust", rbacMiddleware.RequirePermission(rbac.PermissionInventoryAdjust), stockHandler.AdjustStock)
		stock.PUT("/:productId/replenishment-status", rbacMiddleware.RequirePermission(rbac.PermissionInventoryUpdate), stockHandler.SetReplenishmentStatus)
		stock.GET("/:productId/needs-restock", rbacMiddleware.RequirePermission(rbac.PermissionInventoryRead), stockHandler.NeedsRestock)
		stock.GET("/:productId/movements", rbacMiddleware.RequirePermission(rbac.PermissionInventoryRead), stockHandler.ListMovements)

		// Import
		stock.GET("/import/template", rbacMiddleware.RequirePermission(rbac.PermissionInventoryRead), importHandler.GetStockImportTemplate)
		stock.POST("/import", rbacMiddleware.RequirePermission(rbac.PermissionInventoryUpdate), importHandler.ImportStock)
	}

	// Replenishment planner routes with RBAC
	replenishment := api.Group("/replenishment")
	{
		replenishment.GET("/candidates", rbacMiddleware.RequirePermission(rbac.PermissionInventoryRead), stockHandler.ListCandidates)
		replenishment.POST("/estimate", rbacMiddleware.RequirePermission(rbac.PermissionInventoryRead), stockHandler.EstimateCost)
		replenishment.GET("/orders", rbacMiddleware.RequirePermission(rbac.PermissionInventoryRead), stockHandler.ListOrders)
		replenishment.POST("/orders", rbacMiddleware.RequirePermission(rbac.PermissionInventoryUpdate), stockHandler.CreateOrder)
		replenishment.GET("/orders/:orderId", rbacMiddleware.RequirePermission(rbac.PermissionInventoryRead), stockHandler.GetOrder)
		replenishment.POST("/orders/:orderId/cancel", rbacMiddleware.RequirePermission(rbac.PermissionInventoryUpdate), stockHandler.CancelOrder)
		replenishment.POST("/confirm/:productId", rbacMiddleware.RequirePermission(rbac.PermissionInventoryAdjust), stockHandler.ConfirmRestock)
	}

	// Shipping routes with RBAC
	shipping := api.Group("/shipping")
	{
		shipping.GET("/zones", rbacMiddleware.RequirePermission(rbac.PermissionShippingRead), shippingHandler.ListZones)
		shipping.POST("/zones", rbacMiddleware.RequirePermission(rbac.PermissionShippingCreate), shippingHandler.CreateZone)
		shipping.GET("/zones/:zoneId", rbacMiddleware.RequirePermission(rbac.PermissionShippingRead), shippingHandler.GetZone)
		shipping.PUT("/zones/:zoneId", rbacMiddleware.RequirePermission(rbac.PermissionShippingUpdate), shippingHandler.UpdateZone)
		shipping.DELETE("/zones/:zoneId", rbacMiddleware.RequirePermission(rbac.PermissionShippingManage), shippingHandler.DeleteZone)

		shipping.GET("/rates", rbacMiddleware.RequirePermission(rbac.PermissionShippingRead), shippingHandler.ListRules)
		shipping.POST("/rates", rbacMiddleware.RequirePermission(rbac.PermissionShippingUpdate), shippingHandler.UpsertRule)
		shipping.DELETE("/rates/:ruleId", rbacMiddleware.RequirePermission(rbac.PermissionShippingManage), shippingHandler.DeleteRule)
		shipping.GET("/rates/import/template", rbacMiddleware.RequirePermission(rbac.PermissionShippingRead), importHandler.GetRateRuleImportTemplate)
		shipping.POST("/rates/import", rbacMiddleware.RequirePermission(rbac.PermissionShippingUpdate), importHandler.ImportRateRules)

		shipping.GET("/policy", rbacMiddleware.RequirePermission(rbac.PermissionShippingRead), shippingHandler.GetPolicy)
		shipping.PUT("/policy", rbacMiddleware.RequirePermission(rbac.PermissionShippingManage), shippingHandler.SetPolicy)

		// Rate resolution for checkout
		shipping.POST("/resolve", rbacMiddleware.RequirePermission(rbac.PermissionShippingRead), shippingHandler.ResolveRate)
	}

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Logistics service starting on port %s", cfg.Port)
		if err := router.Run(":" + cfg.Port); err != nil {
			log.Fatal("Failed to start server:", err)
		}
	}()

	// Wait for interrupt signal
	<-quit
	log.Println("Shutting down logistics-service...")

	// Shutdown tracer provider
	if tracerProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer provider: %v", err)
		} else {
			log.Println("✓ Tracer provider shut down")
		}
	}

	log.Println("Logistics service stopped")
}
