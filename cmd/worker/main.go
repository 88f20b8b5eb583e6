package main

import (
	"context"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/illegalcall/imaginify/internal/checkout"
	"github.com/illegalcall/imaginify/internal/config"
	"github.com/illegalcall/imaginify/internal/ledger"
	"github.com/illegalcall/imaginify/internal/worker"
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

	// Initialize Kafka consumer
	consumer, err := kafka.NewConsumer(cfg.Kafka.Broker, cfg.Kafka.Group)
	if err != nil {
		logger.Error("Failed to create Kafka consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()
	logger.Info("✅ Connected to Kafka")

	// The worker only finalizes; it never opens checkout sessions.
	finalizer := checkout.NewService(db.DB, ledger.New(db.DB, logger), nil, checkout.Options{
		Currency:      cfg.Stripe.Currency,
		BaseURL:       cfg.App.BaseURL,
		WebhookSecret: cfg.Stripe.WebhookSecret,
	}, logger)

	w := worker.NewWorker(cfg, finalizer, db.Redis, consumer, logger)
	if err := w.Start(context.Background()); err != nil {
		logger.Error("Worker error", "error", err)
		os.Exit(1)
	}
}
