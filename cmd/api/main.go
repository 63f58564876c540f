package main

import (
	"fmt"
	"log"

	"valencia-data-detective/config"
	"valencia-data-detective/handlers"
	"valencia-data-detective/middleware"
	"valencia-data-detective/models"
	"valencia-data-detective/services"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.GetDSN()), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get sql db handle: %v", err)
	}
	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	// The API owns the schema. Migrating the measurement tables here
	// also creates the composite keys the capture daemon's
	// ON CONFLICT inserts rely on.
	if err := db.AutoMigrate(
		&models.User{},
		&models.TrafficMeasurement{},
		&models.TrafficSituation{},
		&models.AirQualityMeasurement{},
		&models.WeatherObservation{},
	); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// Redis is optional: a failed connection degrades to uncached reads
	cache, err := services.NewCacheService(cfg.Redis)
	if err != nil {
		log.Printf("Redis unavailable, running without cache: %v", err)
	}
	defer cache.Close()

	authService := services.NewAuthService(cfg.JWT)

	authHandler := handlers.NewAuthHandler(db, authService)
	trafficHandler := handlers.NewTrafficHandler(db, cache)
	situationsHandler := handlers.NewSituationsHandler(db, cache)
	airHandler := handlers.NewAirQualityHandler(db, cache)
	weatherHandler := handlers.NewWeatherHandler(db, cache)
	statsHandler := handlers.NewStatsHandler(cfg.Stats.Dir, cache)

	// Initialize Gin router
	router := gin.Default()
	router.Use(middleware.SetupCORS(cfg.CORS))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "UP",
			"message": "Valencia Data API is running",
			"cache":   cache.Available(),
		})
	})

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/logout", authHandler.Logout)
		}

		v1.GET("/traffic", trafficHandler.GetMeasurements)
		v1.GET("/situations", situationsHandler.GetSituations)
		v1.GET("/air-quality", airHandler.GetMeasurements)
		v1.GET("/weather", weatherHandler.GetObservations)
		v1.GET("/stats/annual", statsHandler.GetAnnual)

		v1.GET("/live/ws", handlers.LiveWebSocket(cache, authService))
	}

	// Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
