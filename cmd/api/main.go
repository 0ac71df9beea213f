// cmd/api/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/minishop/storefront-backend/internal/config"
	"github.com/minishop/storefront-backend/internal/domain/backup"
	"github.com/minishop/storefront-backend/internal/domain/cart"
	"github.com/minishop/storefront-backend/internal/domain/catalog"
	"github.com/minishop/storefront-backend/internal/domain/order"
	"github.com/minishop/storefront-backend/internal/domain/stock"
	"github.com/minishop/storefront-backend/internal/domain/store"
	"github.com/minishop/storefront-backend/internal/infrastructure/blob"
	mongodb "github.com/minishop/storefront-backend/internal/infrastructure/database/mongo"
	redisdb "github.com/minishop/storefront-backend/internal/infrastructure/database/redis"
	"github.com/minishop/storefront-backend/internal/interfaces/http"
	"github.com/minishop/storefront-backend/internal/interfaces/http/routes"
	"github.com/minishop/storefront-backend/internal/notify"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("🚀 Starting %s v%s in %s mode", cfg.App.Name, cfg.App.Version, cfg.App.Environment)

	logger := newLogger(cfg)

	// Connect to MongoDB
	mongoClient, err := mongodb.NewConnection(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer mongoClient.Close()

	// Connect to Redis
	redisClient, err := redisdb.NewConnection(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	// Ensure indexes
	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), 30*time.Second)
	if err := mongoClient.EnsureIndexes(indexCtx); err != nil {
		log.Fatalf("Index creation failed: %v", err)
	}
	cancelIndexes()

	db := mongoClient.Database

	// Blob storage
	blobs, err := blob.NewGridFSStore(db, "uploads")
	if err != nil {
		log.Fatalf("Failed to create blob store: %v", err)
	}

	// Admin notifications
	var notifier notify.Notifier = notify.Nop{}
	if cfg.Bot.Token != "" {
		notifier = notify.NewBotNotifier(cfg.Bot.APIBase, cfg.Bot.Token, cfg.Security.AdminIDs, cfg.Bot.Timeout, logger)
	}

	// Wire domain services
	ledger := stock.NewLedger(db, logger)
	builder := catalog.NewBuilder(db, logger)
	catalogCache := catalog.NewCache(db, redisClient.GetClient(), builder, cfg.Catalog.CacheTTL, cfg.Catalog.VersionTTL, logger)
	catalogService := catalog.NewService(db, catalogCache, blobs, logger)
	cartRepo := cart.NewMongoRepository(db)
	cartService := cart.NewService(cartRepo, catalogService, ledger, cfg.Cart.Expiry, logger)
	storeService := store.NewService(db, redisClient.GetClient(), logger)
	backupService := backup.NewService(db, catalogCache, logger)
	orderService := order.NewService(db, cartService, ledger, storeService, blobs, notifier, cfg.Orders.MaxReceiptSize, cfg.Orders.RetainDecided, logger)

	// Background loops
	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()

	sweeper := cart.NewSweeper(cartRepo, ledger, cfg.Cart.Expiry, cfg.Cart.SweepInterval, cfg.Cart.SweepBatch, logger)
	go sweeper.Run(bgCtx)
	go orderService.RunPurge(bgCtx, cfg.Orders.PurgeInterval)

	log.Println("✅ All systems operational!")

	// Create and start HTTP server
	server := http.NewServer(cfg, mongoClient, redisClient, &routes.Deps{
		Config:         cfg,
		CatalogCache:   catalogCache,
		CatalogService: catalogService,
		CartService:    cartService,
		OrderService:   orderService,
		StoreService:   storeService,
		BackupService:  backupService,
		Blobs:          blobs,
	})

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("👋 Shutting down gracefully...")

	// Stop background loops first, then drain HTTP
	cancelBg()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		log.Printf("Failed to shutdown HTTP server gracefully: %v", err)
	}

	log.Println("✅ Server shutdown completed")
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	}
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}
