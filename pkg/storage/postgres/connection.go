// Package postgres provides the PostgreSQL connection pool and the
// Redis client used by the role, assignment and invite stores.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/gatherhq/gather/pkg/storage"
)

// Connect opens the primary connection pool and verifies it with a
// bounded ping. The pool is safe for concurrent use; every request
// handling unit borrows a connection per statement.
func Connect(ctx context.Context, config storage.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", config.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(config.PostgresMaxConns)
	db.SetMaxIdleConns(config.PostgresMinConns)
	db.SetConnMaxLifetime(config.PostgresMaxLifetime)
	db.SetConnMaxIdleTime(config.PostgresMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, config.PostgresTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return db, nil
}

// PoolStats is the subset of sql.DBStats exported to metrics gauges.
type PoolStats struct {
	Active int
	Idle   int
}

// Stats reports current pool usage.
func Stats(db *sql.DB) PoolStats {
	s := db.Stats()
	return PoolStats{
		Active: s.InUse,
		Idle:   s.Idle,
	}
}
