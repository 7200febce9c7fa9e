package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Pool sizing for a read-heavy search workload: serving queries dominate,
// with a single reconciliation writer in the background. Idle connections
// are kept warm so facet and suggestion bursts do not pay dial latency.
const (
	poolMaxOpen     = 25
	poolMaxIdle     = 10
	poolMaxIdleTime = 5 * time.Minute
	poolMaxLifetime = 30 * time.Minute
)

func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(poolMaxOpen)
	db.SetMaxIdleConns(poolMaxIdle)
	db.SetConnMaxIdleTime(poolMaxIdleTime)
	db.SetConnMaxLifetime(poolMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}
