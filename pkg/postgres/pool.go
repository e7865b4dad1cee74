// Package postgres provides PostgreSQL connection pooling and the
// durable dispatch ledger used when a database is configured.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool wraps pgxpool.Pool with domain-specific query methods
type Pool struct {
	*pgxpool.Pool
}

// NewPoolFromURL creates a pool from a connection URL
func NewPoolFromURL(ctx context.Context, url string) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolCfg.MaxConns = 25
	poolCfg.MinConns = 5
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// InitSchema creates the dispatch ledger tables if they do not exist
func (p *Pool) InitSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS dispatch_calls (
    threat_id  TEXT PRIMARY KEY,
    status     TEXT NOT NULL DEFAULT 'pending',
    outcome    TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS dispatch_notifications (
    threat_id  TEXT NOT NULL,
    recipient  TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (threat_id, recipient)
);`

	if _, err := p.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create dispatch ledger schema: %w", err)
	}
	return nil
}

// Health verifies database connectivity
func (p *Pool) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.Ping(ctx)
}
