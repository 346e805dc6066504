package database

import (
	"context"
	"database/sql"
	"fmt"

	"shop-svc/config"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id SERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		price DECIMAL(10, 2) NOT NULL CHECK (price >= 0),
		stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
		images TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id UUID PRIMARY KEY,
		order_number VARCHAR(32) NOT NULL UNIQUE,
		user_id INTEGER NOT NULL,
		items JSONB NOT NULL,
		shipping_address JSONB NOT NULL,
		payment_method VARCHAR(32) NOT NULL,
		items_price DECIMAL(12, 2) NOT NULL DEFAULT 0,
		tax_price DECIMAL(12, 2) NOT NULL DEFAULT 0,
		shipping_price DECIMAL(12, 2) NOT NULL DEFAULT 0,
		total_price DECIMAL(12, 2) NOT NULL DEFAULT 0,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		is_paid BOOLEAN NOT NULL DEFAULT FALSE,
		paid_at TIMESTAMP NULL,
		payment_result JSONB NULL,
		is_delivered BOOLEAN NOT NULL DEFAULT FALSE,
		delivered_at TIMESTAMP NULL,
		tracking_number VARCHAR(64) NOT NULL DEFAULT '',
		estimated_delivery TIMESTAMP NULL,
		notes TEXT NOT NULL DEFAULT '',
		revision INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders (user_id, created_at DESC)`,
}

func InitDB(cfg config.Database, logger *zap.Logger) (*sql.DB, error) {
	psqlInfo := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name)

	db, err := sql.Open("postgres", psqlInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := Migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Database connection established", zap.String("database", cfg.Name))
	return db, nil
}

// Migrate creates the tables the service needs if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
