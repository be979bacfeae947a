package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
)

const createTransfersTable = `
CREATE TABLE IF NOT EXISTS treasure_transfers (
	id UUID PRIMARY KEY,
	from_key VARCHAR(255) NOT NULL,
	to_key VARCHAR(255) NOT NULL,
	amount BIGINT NOT NULL CHECK (amount > 0),
	from_balance BIGINT NOT NULL,
	to_balance BIGINT NOT NULL,
	principal VARCHAR(255) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

// Open connects to Postgres through the pgx stdlib driver and pings it.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	conn, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return conn, nil
}

// Initialize creates the journal table if it does not exist.
func Initialize(ctx context.Context, conn *sql.DB) error {
	if _, err := conn.ExecContext(ctx, createTransfersTable); err != nil {
		return fmt.Errorf("create treasure_transfers table: %w", err)
	}
	return nil
}
