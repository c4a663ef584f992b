package main

import (
	"context"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"catalog-sync-service/internal/clients/shopify"
	"catalog-sync-service/internal/config"
	"catalog-sync-service/internal/database"
	"catalog-sync-service/internal/handlers"
	"catalog-sync-service/internal/middleware"
	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/repository"
	"catalog-sync-service/internal/services"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logrus logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	log := logger.WithField("service", "catalog-sync-service")

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL, cfg.Environment)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}

	// Auto-migrate models
	if err := db.AutoMigrate(
		&models.SyncRun{},
		&models.SyncRunLog{},
	); err != nil {
		log.WithError(err).Warn("Auto-migration failed")
	}
	log.Info("Database models migrated")

	// Initialize Shopify client
	if cfg.ShopifyStore == "" || cfg.ShopifyAccessToken == "" {
		log.Fatal("SHOPIFY_STORE and SHOPIFY_ACCESS_TOKEN are required")
	}
	client := shopify.NewClient(shopify.Config{
		StoreName:         cfg.ShopifyStore,
		AccessToken:       cfg.ShopifyAccessToken,
		APIVersion:        cfg.ShopifyAPIVersion,
		RequestsPerSecond: cfg.RequestsPerSecond,
		RetryAfterDefault: cfg.RetryAfterDefault,
	}, log)

	// Verify the store has a resolvable stock location before serving.
	if cfg.LocationID == 0 {
		locationID, err := client.PrimaryLocation(context.Background())
		if err != nil {
			log.WithError(err).Fatal("Failed to resolve store stock location")
		}
		cfg.LocationID = locationID
		log.WithField("locationId", locationID).Info("Resolved store stock location")
	}

	// Initialize repositories and services
	runRepo := repository.NewRunRepository(db)
	syncService := services.NewSyncService(runRepo, client, cfg, log)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler()
	runHandler := handlers.NewRunHandler(syncService, cfg)

	// Setup router
	router := setupRouter(cfg, log, healthHandler, runHandler)

	// Start server
	log.WithFields(logrus.Fields{
		"port":        cfg.Port,
		"environment": cfg.Environment,
	}).Info("Catalog Sync Service starting")
	if err := router.Run(":" + cfg.Port); err != nil {
		log.WithError(err).Fatal("Failed to start server")
	}
}

// setupRouter configures the HTTP router
func setupRouter(
	cfg *config.Config,
	log *logrus.Entry,
	healthHandler *handlers.HealthHandler,
	runHandler *handlers.RunHandler,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	// Security headers middleware
	router.Use(middleware.SecurityHeaders())

	// CORS middleware
	allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
	var origins []string
	if allowedOrigins != "" {
		origins = strings.Split(allowedOrigins, ",")
	} else {
		origins = []string{
			"http://localhost:3000",
			"http://localhost:3001",
		}
	}
	router.Use(middleware.CORS(origins))

	// Request logging
	router.Use(middleware.RequestLogger(log))

	// Health check
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// API routes
	v1 := router.Group("/api/v1")
	{
		runs := v1.Group("/runs")
		{
			runs.GET("", runHandler.ListRuns)
			runs.POST("", runHandler.CreateRun)
			runs.POST("/preview", runHandler.PreviewRun)
			runs.GET("/:id", runHandler.GetRun)
			runs.POST("/:id/cancel", runHandler.CancelRun)
			runs.GET("/:id/logs", runHandler.GetRunLogs)
		}
	}

	return router
}
