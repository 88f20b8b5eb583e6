package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

type Clients struct {
	DB    *sqlx.DB
	Redis *redis.Client
}

func NewClients(dbURL string, redisOpts *redis.Options) (*Clients, error) {
	// Connect to PostgreSQL
	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(redisOpts)

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Clients{
		DB:    db,
		Redis: redisClient,
	}, nil
}

// Close releases both connections.
func (c *Clients) Close() error {
	dbErr := c.DB.Close()
	if err := c.Redis.Close(); err != nil {
		return err
	}
	return dbErr
}

// Schema creates the users, transactions and images tables. Foreign keys carry
// no cascade rules; dependent rows are left in place when a user is removed.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	external_id TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL UNIQUE,
	username TEXT NOT NULL UNIQUE,
	photo TEXT NOT NULL DEFAULT '',
	first_name TEXT,
	last_name TEXT,
	plan_id INTEGER NOT NULL DEFAULT 1,
	credit_balance INTEGER NOT NULL DEFAULT 10,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS transactions (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	stripe_id TEXT NOT NULL UNIQUE,
	amount INTEGER NOT NULL,
	plan TEXT NOT NULL DEFAULT '',
	credits INTEGER NOT NULL DEFAULT 0,
	buyer_id UUID REFERENCES users(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS images (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	title TEXT NOT NULL,
	transformation_type TEXT NOT NULL,
	public_id TEXT NOT NULL,
	secure_url TEXT NOT NULL,
	width INTEGER,
	height INTEGER,
	config JSONB NOT NULL DEFAULT '{}',
	transformation_url TEXT,
	aspect_ratio VARCHAR(10),
	color VARCHAR(20),
	prompt TEXT,
	author_id UUID REFERENCES users(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_images_updated_at ON images (updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_images_author_id ON images (author_id);
CREATE INDEX IF NOT EXISTS idx_images_public_id ON images (public_id);
CREATE INDEX IF NOT EXISTS idx_transactions_buyer_id ON transactions (buyer_id);
`

// CreateTables ensures the application schema exists.
func (c *Clients) CreateTables(ctx context.Context) error {
	return CreateTables(ctx, c.DB)
}

func CreateTables(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	slog.Info("✅ Tables are ready!")
	return nil
}
