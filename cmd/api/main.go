package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/illegalcall/imaginify/internal/api"
	"github.com/illegalcall/imaginify/internal/cache"
	"github.com/illegalcall/imaginify/internal/checkout"
	"github.com/illegalcall/imaginify/internal/config"
	"github.com/illegalcall/imaginify/internal/images"
	"github.com/illegalcall/imaginify/internal/ledger"
	"github.com/illegalcall/imaginify/internal/media"
	"github.com/illegalcall/imaginify/internal/users"
	"github.com/illegalcall/imaginify/pkg/database"
	"github.com/illegalcall/imaginify/pkg/kafka"
)

func main() {
	// Load configuration
	cfg := config.LoadConfig()
	logger := config.NewLogger(cfg.Server)

	// Initialize database clients
	db, err := database.NewClients(cfg.Database.URL, &redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Error("Failed to initialize database clients", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("✅ Connected to databases")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = database.CreateTables(ctx, db.DB)
	cancel()
	if err != nil {
		logger.Error("Failed to create tables", "error", err)
		os.Exit(1)
	}

	// Initialize Kafka producer
	producer, err := kafka.NewProducer(cfg.Kafka.Broker, cfg.Kafka.RetryMax, cfg.Kafka.RetryBackoff)
	if err != nil {
		logger.Error("Failed to create Kafka producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()
	logger.Info("✅ Connected to Kafka")

	index, err := media.NewCloudinaryIndex(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret, logger)
	if err != nil {
		logger.Error("Failed to initialize media index", "error", err)
		os.Exit(1)
	}

	// Services
	views := cache.NewViews(db.Redis, cfg.Server.CacheExpiration, logger)
	credits := ledger.New(db.DB, logger)

	userService := users.NewService(db.DB, users.Defaults{
		StartingBalance: cfg.Credits.StartingBalance,
		PlanID:          cfg.Credits.BasePlanID,
	}, views, logger)

	imageService := images.NewService(db.DB, credits, index, views, images.Options{
		Folder:            cfg.Cloudinary.Folder,
		TransformationFee: cfg.Credits.TransformationFee,
		PageSize:          cfg.Credits.PageSize,
	}, logger)

	checkoutService := checkout.NewService(db.DB, credits, checkout.NewStripeGateway(cfg.Stripe.SecretKey), checkout.Options{
		Currency:      cfg.Stripe.Currency,
		BaseURL:       cfg.App.BaseURL,
		WebhookSecret: cfg.Stripe.WebhookSecret,
	}, logger)

	server := api.NewServer(cfg, api.Deps{
		Users:     userService,
		Images:    imageService,
		Checkout:  checkoutService,
		Views:     views,
		Redis:     db.Redis,
		Publisher: kafka.NewPublisher(producer, cfg.Kafka.Topic),
	}, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()
	logger.Info("🚀 API listening", "port", cfg.Server.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received shutdown signal", "signal", sig)

	if err := server.Shutdown(); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	logger.Info("🛑 API stopped")
}
