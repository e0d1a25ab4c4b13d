package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"stockpoint/internal/api/handlers"
	"stockpoint/internal/api/middleware"
	"stockpoint/internal/cache"
	"stockpoint/internal/config"
	"stockpoint/internal/database"
	"stockpoint/internal/deadline"
	"stockpoint/internal/diagnostics"
	"stockpoint/internal/fulfillment"
	"stockpoint/internal/ingest"
	"stockpoint/internal/ledger"
	"stockpoint/internal/logger"
	"stockpoint/internal/registry"
	"stockpoint/internal/selection"
	"stockpoint/internal/services/postcode"

	"github.com/gin-gonic/gin"
)

type Server struct {
	config *config.Config
	logger *logger.Logger
	db     *database.Database
	guard  *ingest.Guard
	router *gin.Engine
	server *http.Server
}

// New is the composition root: every service is constructed here and handed
// down explicitly, so tests can build isolated instances the same way.
func New(cfg *config.Config, log *logger.Logger, db *database.Database, rdb *cache.RedisClient, publisher fulfillment.EventPublisher) *Server {
	// Set Gin mode
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS())

	// Core services
	reg := registry.New(db.DB, log)
	led := ledger.New(db.DB, log)
	agg := ledger.NewAggregator(db.DB, rdb, log)
	calc := deadline.NewCalculator(cfg.Timezone())
	bridge := selection.NewBridge(db.DB, rdb, cfg.CookieSecret, cfg.CookieTTL, cfg.SelectionTTL, log)
	hooks := fulfillment.NewHooks(db.DB, led, agg, reg, publisher, nil, cfg.GlobalLocationID, log)
	guard := ingest.NewGuard(cfg.IngestGuardTTL)
	gate := ingest.NewGate(db.DB, led, agg, guard,
		ingest.GlobalLocationStrategy{LocationID: cfg.GlobalLocationID}, log)
	diag := diagnostics.New(db.DB, led, agg, log)
	lookup := postcode.New(cfg.PostcodeAPIURL, cfg.LookupTimeout, log)

	// Handlers
	stockHandler := handlers.NewStockHandler(db.DB, gate, led, agg, log)
	locationHandler := handlers.NewLocationHandler(reg, agg, calc, log)
	selectionHandler := handlers.NewSelectionHandler(bridge, lookup, log)
	orderHandler := handlers.NewOrderHandler(db.DB, hooks, bridge, log)
	adminHandler := handlers.NewAdminHandler(db.DB, diag, led, log)

	// Routes
	v1 := router.Group("/api/v1")
	{
		// Locations
		locations := v1.Group("/locations")
		{
			locations.GET("", locationHandler.List)
			locations.GET("/:id", locationHandler.Get)
			locations.POST("", locationHandler.Create)
			locations.PUT("/:id", locationHandler.Update)
			locations.DELETE("/:id", locationHandler.Delete)
			locations.GET("/:id/deadline", locationHandler.Deadline)
		}

		// Stock
		stock := v1.Group("/stock")
		{
			stock.POST("/delta", stockHandler.ApplyDelta)
		}
		products := v1.Group("/products")
		{
			products.GET("/:id/stock", stockHandler.Breakdown)
			products.PUT("/:id/stock", stockHandler.SetQuantity)
			products.POST("/:id/initialize", stockHandler.Initialize)
		}

		// Selection bridge
		sel := v1.Group("/selection")
		{
			sel.GET("", selectionHandler.Get)
			sel.PUT("", selectionHandler.Set)
			sel.DELETE("", selectionHandler.Clear)
		}
		v1.POST("/rates/select", selectionHandler.SelectRates)

		// Orders
		orders := v1.Group("/orders")
		{
			orders.POST("", orderHandler.Create)
			orders.GET("/:id", orderHandler.Get)
			orders.POST("/:id/reduce-stock", orderHandler.ReduceStock)
			orders.POST("/:id/restore-stock", orderHandler.RestoreStock)
		}

		// Admin diagnostics
		admin := v1.Group("/admin")
		{
			admin.GET("/ghost-stock.csv", adminHandler.GhostStockCSV)
			admin.GET("/investigate/:id", adminHandler.Investigate)
			admin.POST("/fix-stock/:id", adminHandler.FixStock)
			admin.POST("/sync-snapshot/:id", adminHandler.SyncSnapshot)
			admin.DELETE("/orphan-row", adminHandler.DeleteOrphanRow)
			admin.GET("/ledger", adminHandler.LedgerReport)
			admin.POST("/ledger/delete", adminHandler.BulkDeleteEntries)
		}
	}

	return &Server{
		config: cfg,
		logger: log,
		db:     db,
		guard:  guard,
		router: router,
	}
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%s", s.config.APIHost, s.config.APIPort)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting server on " + addr)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	s.guard.Close()
	return s.server.Shutdown(ctx)
}

// Router exposes the underlying engine for handler tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}
