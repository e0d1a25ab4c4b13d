package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"stockpoint/internal/cache"
	"stockpoint/internal/config"
	"stockpoint/internal/database"
	"stockpoint/internal/fulfillment"
	"stockpoint/internal/ledger"
	"stockpoint/internal/logger"
	"stockpoint/internal/registry"
	"stockpoint/internal/worker"

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

	// Initialize redis (scan lock + cache invalidation)
	rdb, err := cache.New(cfg.RedisURL)
	if err != nil {
		logger.Fatal("Failed to configure redis", zap.Error(err))
	}

	// Wire the same fulfillment pipeline the API uses
	reg := registry.New(db.DB, logger)
	led := ledger.New(db.DB, logger)
	agg := ledger.NewAggregator(db.DB, rdb, logger)
	publisher := fulfillment.NewKafkaPublisher(cfg.KafkaBrokers, cfg.StockTopic, logger)
	defer publisher.Close()
	hooks := fulfillment.NewHooks(db.DB, led, agg, reg, publisher, nil, cfg.GlobalLocationID, logger)

	// Initialize worker
	w := worker.New(cfg, logger, hooks)

	// Background fill-missing-rows scan
	scanCtx, cancelScan := context.WithCancel(context.Background())
	scanner := worker.NewScanner(db.DB, rdb, cfg.ScanLockTTL, logger)
	go scanner.Loop(scanCtx, cfg.ScanInterval)

	// Start worker
	logger.Info("Starting worker...")
	go w.Start()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	cancelScan()
	w.Stop()
}
