package main

import (
	"context"
	"log"
	"time"

	"stockpoint/internal/api"
	"stockpoint/internal/cache"
	"stockpoint/internal/config"
	"stockpoint/internal/database"
	"stockpoint/internal/fulfillment"
	"stockpoint/internal/logger"

	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Initialize logger
	logger := logger.New(cfg.LogLevel)

	// Initialize database
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Initialize redis
	rdb, err := cache.New(cfg.RedisURL)
	if err != nil {
		logger.Fatal("Failed to configure redis", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx); err != nil {
		logger.Warn("Redis unreachable at startup", zap.Error(err))
	}
	cancel()

	// Domain event publisher
	publisher := fulfillment.NewKafkaPublisher(cfg.KafkaBrokers, cfg.StockTopic, logger)
	defer publisher.Close()

	// Initialize API server
	server := api.New(cfg, logger, db, rdb, publisher)

	// Start server
	logger.Info("Starting API server on port " + cfg.APIPort)
	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}
