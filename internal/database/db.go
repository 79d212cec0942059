package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"cryptosim-bot/internal/logging"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Config holds database configuration
type Config struct {
	URL      string `json:"url"` // Full DSN, takes precedence over the fields below
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"-"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
	MaxConns int32  `json:"max_conns"`
	MinConns int32  `json:"min_conns"`
}

// DSN returns the connection string for cfg
func (cfg Config) DSN() string {
	if cfg.URL != "" {
		return cfg.URL
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, sslMode,
	)
}

// NewDB creates a new database connection
func NewDB(ctx context.Context, cfg Config, logger zerolog.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	poolConfig.MinConns = 1
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logger = logger.With().Str("component", "database").Logger()
	logger.Info().Str("database", poolConfig.ConnConfig.Database).Msg("Connected to PostgreSQL")

	return &DB{Pool: pool, logger: logger}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("Database connection closed")
	}
}

// RunMigrations creates the bot tables and seeds the singleton rows
func (db *DB) RunMigrations(ctx context.Context) error {
	logger := logging.DatabaseContext(db.logger, "migrate", "schema")
	logger.Info().Msg("Running database migrations")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS bot_commands (
			id UUID PRIMARY KEY,
			command VARCHAR(10) NOT NULL,
			symbol VARCHAR(20),
			processed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bot_commands_pending ON bot_commands(processed, created_at)`,

		`CREATE TABLE IF NOT EXISTS bot_trades (
			id UUID PRIMARY KEY,
			type VARCHAR(4) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			amount DECIMAL(30, 12) NOT NULL,
			price DECIMAL(30, 12) NOT NULL,
			total DECIMAL(30, 12) NOT NULL,
			reason TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bot_trades_created ON bot_trades(created_at DESC)`,

		`CREATE TABLE IF NOT EXISTS portfolios (
			id INTEGER PRIMARY KEY,
			usdt_balance DECIMAL(30, 12) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`INSERT INTO portfolios (id, usdt_balance) VALUES (1, 10000) ON CONFLICT (id) DO NOTHING`,

		`CREATE TABLE IF NOT EXISTS positions (
			id UUID PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			amount DECIMAL(30, 12) NOT NULL,
			entry_price DECIMAL(30, 12) NOT NULL,
			entry_time TIMESTAMPTZ NOT NULL,
			stop_loss_pct DECIMAL(10, 4) NOT NULL,
			take_profit_pct DECIMAL(10, 4) NOT NULL,
			highest_price DECIMAL(30, 12) NOT NULL,
			status VARCHAR(10) NOT NULL DEFAULT 'OPEN',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_positions_open_symbol ON positions(symbol) WHERE status = 'OPEN'`,

		`CREATE TABLE IF NOT EXISTS bot_status (
			id INTEGER PRIMARY KEY,
			status VARCHAR(10) NOT NULL,
			symbol VARCHAR(20),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`INSERT INTO bot_status (id, status, symbol) VALUES (1, 'IDLE', 'BTC') ON CONFLICT (id) DO NOTHING`,

		`CREATE TABLE IF NOT EXISTS bot_logs (
			id BIGSERIAL PRIMARY KEY,
			type VARCHAR(10) NOT NULL,
			message TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bot_logs_created ON bot_logs(created_at DESC)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			logger.Error().Err(err).Int("statement", i+1).Msg("Migration failed")
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	logger.Info().Int("statements", len(migrations)).Msg("Database migrations completed")
	return nil
}
