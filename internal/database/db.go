package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"coinbase-trading-bot/internal/logging"
)

// Config holds PostgreSQL connection settings
type Config struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"-"`
	Name     string `json:"name"`
	SSLMode  string `json:"ssl_mode"`
}

// DB wraps the connection pool. When the database is disabled the bot
// still runs; trade history just lives in memory for the session.
type DB struct {
	pool   *pgxpool.Pool
	logger *logging.Logger
}

// Connect opens the pool, verifies connectivity and runs migrations
func Connect(ctx context.Context, config Config) (*DB, error) {
	logger := logging.WithComponent("database")

	sslMode := config.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		config.User, config.Password, config.Host, config.Port, config.Name, sslMode)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("database: parsing config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("database: creating pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}

	db := &DB{pool: pool, logger: logger}
	if err := db.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("Database connected", "host", config.Host, "db", config.Name)
	return db, nil
}

// migrate applies the schema. Statements are idempotent so startup is
// safe to repeat.
func (db *DB) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id BIGSERIAL PRIMARY KEY,
			strategy_name VARCHAR(50) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(4) NOT NULL,
			quantity DOUBLE PRECISION NOT NULL,
			price DOUBLE PRECISION NOT NULL,
			profit_loss DOUBLE PRECISION NOT NULL DEFAULT 0,
			fees DOUBLE PRECISION NOT NULL DEFAULT 0,
			status VARCHAR(20) NOT NULL,
			order_id VARCHAR(64),
			executed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_strategy ON trades(strategy_name)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_executed_at ON trades(executed_at DESC)`,
		`CREATE TABLE IF NOT EXISTS portfolio_snapshots (
			id BIGSERIAL PRIMARY KEY,
			total_value_usd DOUBLE PRECISION NOT NULL,
			cash_usd DOUBLE PRECISION NOT NULL,
			holdings JSONB NOT NULL DEFAULT '[]',
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_recorded_at ON portfolio_snapshots(recorded_at DESC)`,
	}

	for _, stmt := range statements {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("database: migration failed: %w", err)
		}
	}
	db.logger.Info("Migrations applied")
	return nil
}

// Pool exposes the raw pool for the repository
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Healthy reports whether the database responds to a ping
func (db *DB) Healthy(ctx context.Context) bool {
	if db == nil || db.pool == nil {
		return false
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.pool.Ping(pingCtx) == nil
}

// Close shuts the pool down
func (db *DB) Close() {
	if db != nil && db.pool != nil {
		db.pool.Close()
	}
}
