// Package database persists dispatched intents and realized-PnL records
// to PostgreSQL. Persistence is optional: the coordinator runs fully
// in-memory when the database is disabled.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"bybit-trading-bot/config"
	"bybit-trading-bot/internal/logging"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger *logging.Logger
}

// NewDB creates a new database connection pool and verifies it
func NewDB(cfg config.DatabaseConfig, logger *logging.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log := logger.WithComponent("DATABASE")
	log.Info("connected to postgres", "database", cfg.Database, "host", cfg.Host)

	return &DB{Pool: pool, logger: log}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info("database connection closed")
	}
}

// RunMigrations creates the schema if it does not exist
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info("running database migrations")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS intents (
			id UUID PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(4) NOT NULL,
			entry_type VARCHAR(20) NOT NULL,
			entry_price DECIMAL(20, 8) NOT NULL,
			stop_loss DECIMAL(20, 8),
			take_profit DECIMAL(20, 8),
			quantity DECIMAL(20, 8) NOT NULL,
			profile VARCHAR(20),
			order_id VARCHAR(64),
			created_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_intents_symbol ON intents(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_intents_created_at ON intents(created_at)`,

		`CREATE TABLE IF NOT EXISTS closed_pnl (
			id VARCHAR(96) PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(4) NOT NULL,
			pnl DECIMAL(20, 8) NOT NULL,
			quantity DECIMAL(20, 8) NOT NULL,
			closed_at TIMESTAMP NOT NULL,
			recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_closed_pnl_symbol ON closed_pnl(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_closed_pnl_closed_at ON closed_pnl(closed_at)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.logger.Info("database migrations complete")
	return nil
}
