package client

import (
	"context"
	"database/sql"
	"time"

	"roombook/pkg/logger"

	_ "github.com/lib/pq"
)

const (
	postgresConnectAttempts = 10
	postgresRetryDelay      = 2 * time.Second
)

// SetPostgres opens the pool and waits for the database to accept
// connections, retrying while it starts up.
func (c *Client) SetPostgres(log *logger.Logger, dsn string, maxConns int) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal("Failed to open Postgres pool", "error", err)
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	for attempt := 1; attempt <= postgresConnectAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), postgresRetryDelay)
		err = db.PingContext(ctx)
		cancel()
		if err == nil {
			log.Info("Successfully connected to Postgres", "attempt", attempt)
			c.Postgres = db
			return
		}
		log.Warn("Postgres not ready yet",
			"attempt", attempt,
			"max_attempts", postgresConnectAttempts,
			"error", err,
		)
		time.Sleep(postgresRetryDelay)
	}

	log.Fatal("Failed to connect to Postgres", "error", err)
}
