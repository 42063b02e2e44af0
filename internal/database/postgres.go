package database

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stwalsh4118/rentaltax/internal/config"
)

// Database wraps the pgx connection pool and provides database operations.
type Database struct {
	Pool *pgxpool.Pool
}

// DSN builds the PostgreSQL connection string for cfg.
func DSN(cfg config.DatabaseConfig) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, cfg.Port),
		Path:     "/" + cfg.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// NewPostgresPool creates a new PostgreSQL connection pool using pgx.
// It configures the pool based on the provided database configuration,
// tests the connection, and returns a Database instance.
func NewPostgresPool(ctx context.Context, cfg config.DatabaseConfig) (*Database, error) {
	poolConfig, err := pgxpool.ParseConfig(DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MinConns = int32(cfg.PoolMin)
	poolConfig.MaxConns = int32(cfg.PoolMax)

	poolConfig.ConnConfig.ConnectTimeout = 5 * time.Second
	poolConfig.MaxConnIdleTime = 30 * time.Second
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{Pool: pool}, nil
}

// schemaStatements create the calc_records table and its lookup indexes.
// Each statement is idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS calc_records (
		id             BIGSERIAL PRIMARY KEY,
		client_id      VARCHAR(64) NULL,
		openid         VARCHAR(64) NULL,
		house_type     VARCHAR(32) NOT NULL,
		monthly_rent   NUMERIC(10,2) NOT NULL,
		prop_deduction BOOLEAN NOT NULL DEFAULT FALSE,
		inc_deduction  BOOLEAN NOT NULL DEFAULT FALSE,
		prop_half      BOOLEAN NOT NULL DEFAULT FALSE,
		property_base  NUMERIC(10,2) NOT NULL,
		income_base    NUMERIC(10,2) NOT NULL,
		property_rate  NUMERIC(6,4) NOT NULL,
		income_rate    NUMERIC(6,4) NOT NULL,
		property_tax   NUMERIC(10,2) NOT NULL,
		income_tax     NUMERIC(10,2) NOT NULL,
		total_tax      NUMERIC(10,2) NOT NULL,
		ua             VARCHAR(255) NULL,
		ip             VARCHAR(64) NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT calc_records_one_identity CHECK (client_id IS NULL OR openid IS NULL)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_calc_records_client ON calc_records (client_id)`,
	`CREATE INDEX IF NOT EXISTS idx_calc_records_openid ON calc_records (openid)`,
	`CREATE INDEX IF NOT EXISTS idx_calc_records_type ON calc_records (house_type)`,
	`CREATE INDEX IF NOT EXISTS idx_calc_records_rent ON calc_records (monthly_rent)`,
	`CREATE INDEX IF NOT EXISTS idx_calc_records_time ON calc_records (created_at)`,
}

// EnsureSchema creates the calc_records table if it does not exist.
// It never drops or alters existing objects.
func (db *Database) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// Ping checks if the database connection is alive.
// It returns an error if the connection is not available.
func (db *Database) Ping(ctx context.Context) error {
	if db == nil || db.Pool == nil {
		return fmt.Errorf("database is not configured")
	}
	return db.Pool.Ping(ctx)
}

// Close gracefully closes the database connection pool.
// It waits for all connections to be returned to the pool before closing.
func (db *Database) Close() {
	if db != nil && db.Pool != nil {
		db.Pool.Close()
	}
}

// Stats returns statistics about the connection pool.
func (db *Database) Stats() *pgxpool.Stat {
	if db == nil || db.Pool == nil {
		return nil
	}
	return db.Pool.Stat()
}
