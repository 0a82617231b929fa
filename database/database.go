package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"settlement-service/config"
)

var DB *sql.DB

func InitDB(cfg *config.Config) error {
	var err error
	DB, err = sql.Open("mysql", cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}
	DB.SetMaxOpenConns(50)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := DB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if err := Migrate(ctx, DB); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	config.GetLogger().WithField("host", cfg.DBHost).Info("database connection established")
	return nil
}

func CloseDB() {
	if DB != nil {
		if err := DB.Close(); err != nil {
			config.LogError(config.GetLogger(), "database", "CloseDB", "close connection", nil, err)
		}
	}
}

// Migrate creates the schema when missing. bills.active_key and pricing_configs.active_key are
// NULL once a bill is paid or a config is deactivated, so the unique index enforces at most one
// active row per table / tenant.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS restaurant_tables (
		tenant_id VARCHAR(64) NOT NULL,
		id VARCHAR(64) NOT NULL,
		number INT NOT NULL,
		capacity INT NOT NULL DEFAULT 0,
		current_session_id VARCHAR(128) NOT NULL DEFAULT '',
		waiter_called TINYINT(1) NOT NULL DEFAULT 0,
		version BIGINT NOT NULL DEFAULT 0,
		updated_at DATETIME(6) NOT NULL,
		PRIMARY KEY (tenant_id, id),
		UNIQUE KEY uniq_table_number (tenant_id, number)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		tenant_id VARCHAR(64) NOT NULL,
		id VARCHAR(64) NOT NULL,
		table_id VARCHAR(64) NOT NULL,
		session_id VARCHAR(128) NOT NULL DEFAULT '',
		customer_name VARCHAR(255) NOT NULL DEFAULT '',
		items JSON NOT NULL,
		status VARCHAR(16) NOT NULL,
		payment_status VARCHAR(16) NOT NULL,
		version BIGINT NOT NULL DEFAULT 0,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		PRIMARY KEY (tenant_id, id),
		KEY idx_orders_table (tenant_id, table_id, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS bills (
		tenant_id VARCHAR(64) NOT NULL,
		id VARCHAR(64) NOT NULL,
		table_id VARCHAR(64) NOT NULL,
		status VARCHAR(16) NOT NULL,
		total DECIMAL(20,2) NOT NULL DEFAULT 0,
		active_key VARCHAR(160) NULL,
		body JSON NOT NULL,
		version BIGINT NOT NULL DEFAULT 0,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		PRIMARY KEY (tenant_id, id),
		UNIQUE KEY uniq_bills_active (active_key),
		KEY idx_bills_status (tenant_id, status, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		tenant_id VARCHAR(64) NOT NULL,
		idempotency_key VARCHAR(255) NOT NULL,
		bill_id VARCHAR(64) NOT NULL,
		amount DECIMAL(20,2) NOT NULL,
		method VARCHAR(32) NOT NULL,
		tx_id VARCHAR(255) NOT NULL DEFAULT '',
		created_at DATETIME(6) NOT NULL,
		PRIMARY KEY (tenant_id, idempotency_key)
	)`,
	`CREATE TABLE IF NOT EXISTS pricing_configs (
		tenant_id VARCHAR(64) NOT NULL,
		version BIGINT NOT NULL,
		active_key VARCHAR(64) NULL,
		body JSON NOT NULL,
		effective_from DATETIME(6) NOT NULL,
		PRIMARY KEY (tenant_id, version),
		UNIQUE KEY uniq_pricing_active (active_key)
	)`,
	`CREATE TABLE IF NOT EXISTS calls (
		tenant_id VARCHAR(64) NOT NULL,
		id VARCHAR(64) NOT NULL,
		table_id VARCHAR(64) NOT NULL,
		session_id VARCHAR(128) NOT NULL DEFAULT '',
		type VARCHAR(16) NOT NULL,
		status VARCHAR(16) NOT NULL,
		resolved_by VARCHAR(128) NOT NULL DEFAULT '',
		created_at DATETIME(6) NOT NULL,
		resolved_at DATETIME(6) NULL,
		PRIMARY KEY (tenant_id, id),
		KEY idx_calls_active (tenant_id, status, table_id)
	)`,
}
